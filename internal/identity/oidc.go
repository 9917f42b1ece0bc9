package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"instructor-core/internal/domain"
)

// OIDCVerifier valida ID tokens emitidos por el proveedor para el inicio de sesion federado.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier descubre la configuracion del emisor y prepara el verificador.
func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	if issuer == "" || clientID == "" {
		return nil, errors.New("oidc issuer and client id are required")
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("init oidc provider: %w", err)
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func newOIDCVerifierWithKeySet(issuer, clientID string, keySet oidc.KeySet) *OIDCVerifier {
	return &OIDCVerifier{
		verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: clientID}),
	}
}

func (v *OIDCVerifier) VerifyAssertion(ctx context.Context, rawToken string) (domain.ExternalIdentity, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return domain.ExternalIdentity{}, ErrAssertionInvalid
	}
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return domain.ExternalIdentity{}, fmt.Errorf("%w: %v", ErrAssertionInvalid, err)
	}

	var claims struct {
		Subject       string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return domain.ExternalIdentity{}, fmt.Errorf("%w: claims: %v", ErrAssertionInvalid, err)
	}
	if claims.Subject == "" || claims.Email == "" {
		return domain.ExternalIdentity{}, fmt.Errorf("%w: missing subject or email", ErrAssertionInvalid)
	}

	return domain.ExternalIdentity{
		SubjectID: claims.Subject,
		Email:     strings.ToLower(strings.TrimSpace(claims.Email)),
		Verified:  claims.EmailVerified,
	}, nil
}
