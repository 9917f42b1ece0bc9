package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"instructor-core/internal/domain"
)

// SessionScope se decide una sola vez al emitir el token.
type SessionScope string

const (
	ScopeShort    SessionScope = "short"
	ScopeExtended SessionScope = "extended"
)

// ScopeFor traduce la casilla "recordarme" al alcance del token.
func ScopeFor(remember bool) SessionScope {
	if remember {
		return ScopeExtended
	}
	return ScopeShort
}

const (
	tokenTypeSession = "session"
	tokenTypePending = "pending"
)

var (
	ErrJWTInvalid = errors.New("jwt invalid")
	ErrJWTExpired = errors.New("jwt expired")
	ErrJWTRevoked = errors.New("jwt revoked")
)

// JWTService emite y valida tokens de sesion y tickets de verificacion pendiente.
type JWTService struct {
	secret      []byte
	issuer      string
	shortTTL    time.Duration
	extendedTTL time.Duration
	pendingTTL  time.Duration
	revocations RevocationStore
	now         func() time.Time
}

type SessionToken struct {
	Token     string       `json:"token"`
	Scope     SessionScope `json:"scope"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// SessionClaims viaja en el token de sesion, ligado al perfil.
type SessionClaims struct {
	ProfileID  string               `json:"pid"`
	Status     domain.ProfileStatus `json:"status"`
	Scope      SessionScope         `json:"scope"`
	Generation int64                `json:"gen"`
	TokenType  string               `json:"typ"`
	jwt.RegisteredClaims
}

// PendingClaims identifica a un sujeto que aun no verifico su email.
type PendingClaims struct {
	Email     string `json:"email,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

func NewJWTService(secret, issuer string, shortTTL, extendedTTL, pendingTTL time.Duration, revocations RevocationStore) *JWTService {
	if shortTTL <= 0 {
		shortTTL = 12 * time.Hour
	}
	if extendedTTL <= 0 {
		extendedTTL = 30 * 24 * time.Hour
	}
	if pendingTTL <= 0 {
		pendingTTL = 2 * time.Hour
	}
	if strings.TrimSpace(issuer) == "" {
		issuer = "instructor-core"
	}
	if revocations == nil {
		revocations = NewMemoryRevocationStore()
	}
	return &JWTService{
		secret:      []byte(secret),
		issuer:      issuer,
		shortTTL:    shortTTL,
		extendedTTL: extendedTTL,
		pendingTTL:  pendingTTL,
		revocations: revocations,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *JWTService) IssueSession(profile domain.Profile, scope SessionScope) (SessionToken, error) {
	if len(s.secret) == 0 || strings.TrimSpace(profile.ID) == "" {
		return SessionToken{}, ErrJWTInvalid
	}
	ttl := s.shortTTL
	if scope == ScopeExtended {
		ttl = s.extendedTTL
	} else {
		scope = ScopeShort
	}
	gen, err := s.revocations.Generation(profile.ID)
	if err != nil {
		return SessionToken{}, err
	}
	now := s.now()
	expiresAt := now.Add(ttl)
	claims := SessionClaims{
		ProfileID:  profile.ID,
		Status:     profile.Status,
		Scope:      scope,
		Generation: gen,
		TokenType:  tokenTypeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   profile.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return SessionToken{}, err
	}
	return SessionToken{Token: signed, Scope: scope, ExpiresAt: expiresAt}, nil
}

func (s *JWTService) ParseSession(token string) (SessionClaims, error) {
	var claims SessionClaims
	if err := s.parse(token, &claims); err != nil {
		return SessionClaims{}, err
	}
	if claims.TokenType != tokenTypeSession ||
		strings.TrimSpace(claims.ProfileID) == "" ||
		claims.Subject != claims.ProfileID ||
		claims.Issuer != s.issuer {
		return SessionClaims{}, ErrJWTInvalid
	}
	gen, err := s.revocations.Generation(claims.ProfileID)
	if err != nil {
		return SessionClaims{}, err
	}
	if claims.Generation < gen {
		return SessionClaims{}, ErrJWTRevoked
	}
	return claims, nil
}

// Revoke invalida todos los tokens de sesion emitidos hasta ahora para el perfil.
func (s *JWTService) Revoke(profileID string) error {
	_, err := s.revocations.Revoke(profileID)
	return err
}

func (s *JWTService) IssuePending(ident domain.ExternalIdentity) (SessionToken, error) {
	if len(s.secret) == 0 || strings.TrimSpace(ident.SubjectID) == "" {
		return SessionToken{}, ErrJWTInvalid
	}
	now := s.now()
	expiresAt := now.Add(s.pendingTTL)
	claims := PendingClaims{
		Email:     ident.Email,
		TokenType: tokenTypePending,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   ident.SubjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return SessionToken{}, err
	}
	return SessionToken{Token: signed, ExpiresAt: expiresAt}, nil
}

func (s *JWTService) ParsePending(token string) (PendingClaims, error) {
	var claims PendingClaims
	if err := s.parse(token, &claims); err != nil {
		return PendingClaims{}, err
	}
	if claims.TokenType != tokenTypePending ||
		strings.TrimSpace(claims.Subject) == "" ||
		claims.Issuer != s.issuer {
		return PendingClaims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) parse(token string, claims jwt.Claims) error {
	if len(s.secret) == 0 || strings.TrimSpace(token) == "" {
		return ErrJWTInvalid
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrJWTExpired
		}
		return ErrJWTInvalid
	}
	return nil
}
