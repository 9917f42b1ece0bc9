package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"instructor-core/internal/domain"
	"instructor-core/internal/identity"
	"instructor-core/internal/repository"
)

const (
	DestinationOnboarding = "onboarding"
	DestinationDashboard  = "dashboard"
)

const minPasswordLength = 8

// Route indica a donde debe ir el cliente tras iniciar sesion.
type Route struct {
	Destination string                `json:"destination"`
	Step        domain.OnboardingStep `json:"step"`
}

type SessionResult struct {
	Token   SessionToken   `json:"session"`
	Profile domain.Profile `json:"profile"`
	Route   Route          `json:"route"`
}

type LoginInput struct {
	Email     string
	Password  string
	Assertion string
	Remember  bool
}

// SessionService cambia identidades verificadas por sesiones de la aplicacion.
type SessionService struct {
	logger       *zap.Logger
	idp          identity.Provider
	assertions   identity.AssertionVerifier
	profiles     repository.ProfileRepository
	applications repository.ApplicationRepository
	tokens       *JWTService
	hashCost     int
}

func NewSessionService(logger *zap.Logger, idp identity.Provider, assertions identity.AssertionVerifier, profiles repository.ProfileRepository, applications repository.ApplicationRepository, tokens *JWTService) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		logger:       logger,
		idp:          idp,
		assertions:   assertions,
		profiles:     profiles,
		applications: applications,
		tokens:       tokens,
		hashCost:     bcrypt.DefaultCost,
	}
}

// Exchange es idempotente: repetirlo solo emite otro token para el mismo perfil.
func (s *SessionService) Exchange(ctx context.Context, ident domain.ExternalIdentity, scope SessionScope) (SessionResult, error) {
	if !ident.Verified {
		return SessionResult{}, ErrIdentityNotVerified
	}
	profile, err := s.profiles.FindByExternalID(ctx, ident.SubjectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Error("verified identity has no profile", zap.String("subject_id", ident.SubjectID))
			return SessionResult{}, ErrProfileNotFound
		}
		return SessionResult{}, err
	}
	return s.open(ctx, profile, scope)
}

func (s *SessionService) Login(ctx context.Context, in LoginInput) (SessionResult, error) {
	var (
		ident domain.ExternalIdentity
		err   error
	)
	if strings.TrimSpace(in.Assertion) != "" {
		if s.assertions == nil {
			return SessionResult{}, ErrInvalidCredential
		}
		ident, err = s.assertions.VerifyAssertion(ctx, in.Assertion)
	} else {
		emailAddr := normalizeEmail(in.Email)
		if emailAddr == "" || strings.TrimSpace(in.Password) == "" {
			return SessionResult{}, ErrInvalidCredential
		}
		ident, err = s.idp.SignIn(ctx, emailAddr, in.Password)
	}
	if err != nil {
		return SessionResult{}, translateProviderError(err)
	}
	return s.Exchange(ctx, ident, ScopeFor(in.Remember))
}

// Refresh rota un token de sesion vigente conservando su alcance.
func (s *SessionService) Refresh(ctx context.Context, token string) (SessionResult, error) {
	claims, err := s.tokens.ParseSession(token)
	if err != nil {
		return SessionResult{}, err
	}
	profile, err := s.loadProfile(ctx, claims.ProfileID)
	if err != nil {
		return SessionResult{}, err
	}
	return s.open(ctx, profile, claims.Scope)
}

// ChangePassword rota la credencial en el proveedor e invalida las sesiones previas.
func (s *SessionService) ChangePassword(ctx context.Context, profileID, current, next string, scope SessionScope) (SessionToken, error) {
	if len(next) < minPasswordLength {
		return SessionToken{}, validationError("new_password", "password must have at least 8 characters")
	}
	profile, err := s.loadProfile(ctx, profileID)
	if err != nil {
		return SessionToken{}, err
	}
	if profile.ExternalSubjectID == "" {
		return SessionToken{}, ErrProfileNotFound
	}
	if err := s.idp.Reauthenticate(ctx, profile.ExternalSubjectID, current); err != nil {
		return SessionToken{}, translateProviderError(err)
	}
	if err := s.idp.RotateCredential(ctx, profile.ExternalSubjectID, next); err != nil {
		return SessionToken{}, translateProviderError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.hashCost)
	if err != nil {
		return SessionToken{}, err
	}
	hashStr := string(hash)
	profile, err = s.profiles.Patch(ctx, profile.ID, domain.ProfilePatch{PasswordHash: &hashStr})
	if err != nil {
		return SessionToken{}, err
	}
	if err := s.tokens.Revoke(profile.ID); err != nil {
		return SessionToken{}, err
	}
	s.logger.Info("credential rotated", zap.String("profile_id", profile.ID))
	return s.tokens.IssueSession(profile, scope)
}

func (s *SessionService) loadProfile(ctx context.Context, profileID string) (domain.Profile, error) {
	profile, err := s.profiles.FindByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Profile{}, ErrProfileNotFound
		}
		return domain.Profile{}, err
	}
	if profile.Status == domain.ProfileStatusSuspended {
		return domain.Profile{}, ErrProfileSuspended
	}
	return profile, nil
}

func (s *SessionService) open(ctx context.Context, profile domain.Profile, scope SessionScope) (SessionResult, error) {
	if profile.Status == domain.ProfileStatusSuspended {
		return SessionResult{}, ErrProfileSuspended
	}
	profile, err := s.fixupLegacyFlag(ctx, profile)
	if err != nil {
		return SessionResult{}, err
	}
	submitted, err := s.hasApplication(ctx, profile.ID)
	if err != nil {
		return SessionResult{}, err
	}
	route := Route{Destination: DestinationOnboarding, Step: domain.CurrentStep(profile, submitted)}
	if profile.InformationGatheringComplete {
		route.Destination = DestinationDashboard
	}
	token, err := s.tokens.IssueSession(profile, scope)
	if err != nil {
		return SessionResult{}, err
	}
	return SessionResult{Token: token, Profile: profile, Route: route}, nil
}

// fixupLegacyFlag marca IGC en perfiles que completaron los pasos antes de que existiera el flag.
func (s *SessionService) fixupLegacyFlag(ctx context.Context, profile domain.Profile) (domain.Profile, error) {
	if profile.InformationGatheringComplete || !profile.HasOnboardingFields() {
		return profile, nil
	}
	complete := true
	updated, err := s.profiles.Patch(ctx, profile.ID, domain.ProfilePatch{InformationGatheringComplete: &complete})
	if err != nil {
		return domain.Profile{}, err
	}
	s.logger.Info("information gathering flag backfilled", zap.String("profile_id", profile.ID))
	return updated, nil
}

func (s *SessionService) hasApplication(ctx context.Context, profileID string) (bool, error) {
	if s.applications == nil {
		return false, nil
	}
	_, err := s.applications.FindByProfileID(ctx, profileID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, err
}
