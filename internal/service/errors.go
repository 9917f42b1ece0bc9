package service

import (
	"errors"
	"fmt"

	"instructor-core/internal/identity"
)

var (
	ErrInvalidEmail          = errors.New("invalid email")
	ErrInvalidCredential     = errors.New("invalid credential")
	ErrAlreadyVerified       = errors.New("identity already verified")
	ErrRateLimited           = errors.New("rate limited")
	ErrProfileNotFound       = errors.New("profile not found")
	ErrProfileSuspended      = errors.New("profile suspended")
	ErrIdentityNotVerified   = errors.New("identity not verified")
	ErrAlreadySubmitted      = errors.New("application already submitted")
	ErrCrossIdentityConflict = errors.New("email is linked to a different identity")
	ErrValidation            = errors.New("validation error")
	ErrTransientProvider     = errors.New("identity provider temporarily unavailable")
	ErrPermanentProvider     = errors.New("identity provider error")
)

// ValidationError describe un campo de onboarding faltante o mal formado.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func validationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// translateProviderError mapea los errores del adaptador a la taxonomia del servicio.
func translateProviderError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, identity.ErrInvalidCredential), errors.Is(err, identity.ErrAssertionInvalid):
		return ErrInvalidCredential
	case errors.Is(err, identity.ErrRateLimited):
		return ErrRateLimited
	case errors.Is(err, identity.ErrTransient):
		return fmt.Errorf("%w: %v", ErrTransientProvider, err)
	default:
		return fmt.Errorf("%w: %v", ErrPermanentProvider, err)
	}
}
