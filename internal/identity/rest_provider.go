package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"instructor-core/internal/domain"
)

// RESTProvider implementa Provider contra una API estilo identity-toolkit.
type RESTProvider struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
	logger  *zap.Logger
}

// NewRESTProvider construye el adaptador HTTP del proveedor de identidad.
func NewRESTProvider(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *RESTProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RESTProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
		client:  &http.Client{},
		logger:  logger,
	}
}

type accountResponse struct {
	LocalID       string `json:"localId"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
}

type lookupResponse struct {
	Users []accountResponse `json:"users"`
}

type errorResponse struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *RESTProvider) CreateIdentity(ctx context.Context, email, password string) (domain.ExternalIdentity, error) {
	var resp accountResponse
	err := p.call(ctx, "accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return domain.ExternalIdentity{}, err
	}
	return domain.ExternalIdentity{SubjectID: resp.LocalID, Email: resp.Email, Verified: false}, nil
}

func (p *RESTProvider) SignIn(ctx context.Context, email, password string) (domain.ExternalIdentity, error) {
	var resp accountResponse
	err := p.call(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return domain.ExternalIdentity{}, err
	}
	account, err := p.lookup(ctx, resp.LocalID)
	if err != nil {
		return domain.ExternalIdentity{}, err
	}
	return domain.ExternalIdentity{SubjectID: account.LocalID, Email: account.Email, Verified: account.EmailVerified}, nil
}

func (p *RESTProvider) SendVerification(ctx context.Context, subjectID string) error {
	return p.call(ctx, "accounts:sendOobCode", map[string]any{
		"requestType": "VERIFY_EMAIL",
		"localId":     subjectID,
	}, nil)
}

func (p *RESTProvider) GetVerificationState(ctx context.Context, subjectID string) (bool, error) {
	account, err := p.lookup(ctx, subjectID)
	if err != nil {
		return false, err
	}
	return account.EmailVerified, nil
}

func (p *RESTProvider) Reauthenticate(ctx context.Context, subjectID, password string) error {
	account, err := p.lookup(ctx, subjectID)
	if err != nil {
		return err
	}
	var resp accountResponse
	err = p.call(ctx, "accounts:signInWithPassword", map[string]any{
		"email":    account.Email,
		"password": password,
	}, &resp)
	if err != nil {
		return err
	}
	if resp.LocalID != subjectID {
		return ErrInvalidCredential
	}
	return nil
}

func (p *RESTProvider) RotateCredential(ctx context.Context, subjectID, newPassword string) error {
	return p.call(ctx, "accounts:update", map[string]any{
		"localId":  subjectID,
		"password": newPassword,
	}, nil)
}

func (p *RESTProvider) lookup(ctx context.Context, subjectID string) (accountResponse, error) {
	var resp lookupResponse
	if err := p.call(ctx, "accounts:lookup", map[string]any{"localId": []string{subjectID}}, &resp); err != nil {
		return accountResponse{}, err
	}
	if len(resp.Users) == 0 {
		return accountResponse{}, fmt.Errorf("%w: subject not found", ErrInvalidCredential)
	}
	return resp.Users[0], nil
}

// call ejecuta una operacion acotada por el timeout configurado y traduce los errores.
func (p *RESTProvider) call(ctx context.Context, method string, payload any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal request: %v", ErrPermanent, err)
	}

	endpoint := p.baseURL + "/" + method + "?key=" + url.QueryEscape(p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", ErrTransient, ErrTimeout)
		}
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}

	if resp.StatusCode >= 400 {
		var er errorResponse
		_ = json.Unmarshal(respBody, &er)
		code := ""
		if er.Error != nil {
			code = er.Error.Message
		}
		translated := translateError(resp.StatusCode, code)
		p.logger.Debug("identity provider error",
			zap.String("method", method),
			zap.Int("status", resp.StatusCode),
			zap.Error(translated),
		)
		return translated
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: unmarshal response: %v", ErrPermanent, err)
	}
	return nil
}

// translateError convierte codigos crudos del proveedor en la taxonomia del paquete.
func translateError(status int, raw string) error {
	code := strings.TrimSpace(raw)
	if idx := strings.IndexAny(code, " :"); idx > 0 {
		code = code[:idx]
	}
	switch code {
	case "EMAIL_EXISTS":
		return ErrEmailExists
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "EMAIL_NOT_FOUND", "USER_NOT_FOUND", "USER_DISABLED":
		return ErrInvalidCredential
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return ErrRateLimited
	}
	if status >= 500 || status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status=%d", ErrTransient, status)
	}
	return fmt.Errorf("%w: status=%d", ErrPermanent, status)
}
