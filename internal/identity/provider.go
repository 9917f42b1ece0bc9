package identity

import (
	"context"
	"errors"

	"instructor-core/internal/domain"
)

// Errores traducidos del proveedor. Los codigos crudos nunca salen de este paquete.
var (
	ErrEmailExists       = errors.New("identity: email already in use")
	ErrInvalidCredential = errors.New("identity: invalid credential")
	ErrRateLimited       = errors.New("identity: too many attempts")
	ErrTransient         = errors.New("identity: transient provider error")
	ErrPermanent         = errors.New("identity: permanent provider error")
	ErrTimeout           = errors.New("identity: provider call timed out")
	ErrAssertionInvalid  = errors.New("identity: external assertion invalid")
)

// Provider es el adaptador del proveedor de identidad externo: credenciales y
// prueba de verificacion de email le pertenecen.
type Provider interface {
	CreateIdentity(ctx context.Context, email, password string) (domain.ExternalIdentity, error)
	SignIn(ctx context.Context, email, password string) (domain.ExternalIdentity, error)
	SendVerification(ctx context.Context, subjectID string) error
	GetVerificationState(ctx context.Context, subjectID string) (bool, error)
	Reauthenticate(ctx context.Context, subjectID, password string) error
	RotateCredential(ctx context.Context, subjectID, newPassword string) error
}

// StateSubscriber entrega cambios de estado de una identidad en modo push.
// Tras retornar la funcion de baja no se invoca mas el callback.
type StateSubscriber interface {
	SubscribeAuthState(ctx context.Context, subjectID string, fn func(domain.ExternalIdentity)) (func(), error)
}

// StatePublisher difunde cambios de estado recibidos del proveedor.
type StatePublisher interface {
	PublishAuthState(ctx context.Context, state domain.ExternalIdentity) error
}

// AssertionVerifier valida una asercion externa (ID token) y devuelve la identidad.
type AssertionVerifier interface {
	VerifyAssertion(ctx context.Context, rawToken string) (domain.ExternalIdentity, error)
}
