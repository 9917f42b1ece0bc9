package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"instructor-core/internal/domain"
	"instructor-core/internal/identity"
	"instructor-core/internal/repository"
)

type LinkageOutcome string

const (
	OutcomeCreatedNew              LinkageOutcome = "created_new"
	OutcomeSignedInVerified        LinkageOutcome = "signed_in_existing_verified"
	OutcomeSignedInUnverified      LinkageOutcome = "signed_in_existing_unverified"
	OutcomeRejectedWrongCredential LinkageOutcome = "rejected_wrong_credential"
	OutcomeRejectedAlreadyVerified LinkageOutcome = "rejected_already_verified"
)

// ResolveInput llega del formulario de registro. Assertion tiene prioridad sobre Password.
type ResolveInput struct {
	Email     string
	Password  string
	FullName  string
	Assertion string
}

// LinkageResult describe la decision tomada. Los rechazos no son errores de ejecucion.
type LinkageResult struct {
	Outcome          LinkageOutcome
	Identity         domain.ExternalIdentity
	Profile          domain.Profile
	VerificationSent bool
}

// Err mapea los resultados de rechazo a la taxonomia de errores.
func (r LinkageResult) Err() error {
	switch r.Outcome {
	case OutcomeRejectedWrongCredential:
		return ErrInvalidCredential
	case OutcomeRejectedAlreadyVerified:
		return ErrAlreadyVerified
	default:
		return nil
	}
}

// LinkageService vincula identidades externas con perfiles locales.
type LinkageService struct {
	logger     *zap.Logger
	idp        identity.Provider
	assertions identity.AssertionVerifier
	profiles   repository.ProfileRepository
	limiter    ResendLimiter
	hashCost   int
	now        func() time.Time
}

func NewLinkageService(logger *zap.Logger, idp identity.Provider, assertions identity.AssertionVerifier, profiles repository.ProfileRepository, limiter ResendLimiter) *LinkageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limiter == nil {
		limiter = NewResendLimiter(time.Minute, 1)
	}
	return &LinkageService{
		logger:     logger,
		idp:        idp,
		assertions: assertions,
		profiles:   profiles,
		limiter:    limiter,
		hashCost:   bcrypt.DefaultCost,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *LinkageService) Resolve(ctx context.Context, in ResolveInput) (LinkageResult, error) {
	if s.idp == nil || s.profiles == nil {
		return LinkageResult{}, errors.New("linkage service not configured")
	}
	var (
		res LinkageResult
		err error
	)
	if strings.TrimSpace(in.Assertion) != "" {
		res, err = s.resolveAssertion(ctx, in)
	} else {
		res, err = s.resolvePassword(ctx, in)
	}
	if err != nil {
		return LinkageResult{}, err
	}
	linkageOutcomes.WithLabelValues(string(res.Outcome)).Inc()
	s.logger.Info("linkage resolved",
		zap.String("outcome", string(res.Outcome)),
		zap.String("subject_id", res.Identity.SubjectID),
		zap.String("profile_id", res.Profile.ID),
		zap.Bool("verification_sent", res.VerificationSent),
	)
	return res, nil
}

func (s *LinkageService) resolvePassword(ctx context.Context, in ResolveInput) (LinkageResult, error) {
	emailAddr := normalizeEmail(in.Email)
	if emailAddr == "" || !strings.Contains(emailAddr, "@") {
		return LinkageResult{}, ErrInvalidEmail
	}
	if strings.TrimSpace(in.Password) == "" {
		return LinkageResult{}, validationError("password", "password is required")
	}

	ident, err := s.idp.CreateIdentity(ctx, emailAddr, in.Password)
	switch {
	case err == nil:
	case errors.Is(err, identity.ErrEmailExists):
		return s.resumeExisting(ctx, emailAddr, in)
	default:
		return LinkageResult{}, translateProviderError(err)
	}

	// Desde aqui la identidad existe en el proveedor y nunca se borra.
	profile, err := s.ensureProfile(ctx, ident, emailAddr, in.FullName, in.Password)
	if err != nil {
		return LinkageResult{}, err
	}
	return LinkageResult{
		Outcome:          OutcomeCreatedNew,
		Identity:         ident,
		Profile:          profile,
		VerificationSent: s.sendVerification(ctx, ident.SubjectID),
	}, nil
}

func (s *LinkageService) resumeExisting(ctx context.Context, emailAddr string, in ResolveInput) (LinkageResult, error) {
	ident, err := s.idp.SignIn(ctx, emailAddr, in.Password)
	if errors.Is(err, identity.ErrInvalidCredential) {
		return LinkageResult{Outcome: OutcomeRejectedWrongCredential}, nil
	}
	if err != nil {
		return LinkageResult{}, translateProviderError(err)
	}
	if ident.Verified {
		return LinkageResult{Outcome: OutcomeRejectedAlreadyVerified, Identity: ident}, nil
	}

	profile, err := s.profiles.FindByExternalID(ctx, ident.SubjectID)
	if errors.Is(err, pgx.ErrNoRows) {
		// Un intento previo creo la identidad pero no llego a crear el perfil.
		profile, err = s.ensureProfile(ctx, ident, emailAddr, in.FullName, in.Password)
	}
	if err != nil {
		return LinkageResult{}, err
	}
	return LinkageResult{
		Outcome:          OutcomeSignedInUnverified,
		Identity:         ident,
		Profile:          profile,
		VerificationSent: s.sendVerification(ctx, ident.SubjectID),
	}, nil
}

func (s *LinkageService) resolveAssertion(ctx context.Context, in ResolveInput) (LinkageResult, error) {
	if s.assertions == nil {
		return LinkageResult{}, fmt.Errorf("%w: external sign-in not configured", ErrPermanentProvider)
	}
	ident, err := s.assertions.VerifyAssertion(ctx, in.Assertion)
	if errors.Is(err, identity.ErrAssertionInvalid) {
		return LinkageResult{Outcome: OutcomeRejectedWrongCredential}, nil
	}
	if err != nil {
		return LinkageResult{}, translateProviderError(err)
	}
	ident.Email = normalizeEmail(ident.Email)
	if emailAddr := normalizeEmail(in.Email); emailAddr != "" && emailAddr != ident.Email {
		return LinkageResult{Outcome: OutcomeRejectedWrongCredential}, nil
	}

	profile, err := s.profiles.FindByExternalID(ctx, ident.SubjectID)
	if err == nil {
		res := LinkageResult{Identity: ident, Profile: profile, Outcome: OutcomeSignedInVerified}
		if !ident.Verified {
			res.Outcome = OutcomeSignedInUnverified
			res.VerificationSent = s.sendVerification(ctx, ident.SubjectID)
		}
		return res, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return LinkageResult{}, err
	}

	profile, err = s.ensureProfile(ctx, ident, ident.Email, in.FullName, "")
	if err != nil {
		return LinkageResult{}, err
	}
	res := LinkageResult{Outcome: OutcomeCreatedNew, Identity: ident, Profile: profile}
	if !ident.Verified {
		res.VerificationSent = s.sendVerification(ctx, ident.SubjectID)
	}
	return res, nil
}

// ensureProfile crea el perfil del sujeto. Si la insercion choca con una
// restriccion de unicidad, el registro existente es la fuente de verdad.
func (s *LinkageService) ensureProfile(ctx context.Context, ident domain.ExternalIdentity, emailAddr, fullName, password string) (domain.Profile, error) {
	if ident.Email != "" {
		emailAddr = normalizeEmail(ident.Email)
	}
	var passwordHash string
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
		if err != nil {
			return domain.Profile{}, err
		}
		passwordHash = string(hash)
	}
	now := s.now()
	profile := domain.Profile{
		ID:                uuid.NewString(),
		ExternalSubjectID: ident.SubjectID,
		Email:             emailAddr,
		FullName:          strings.TrimSpace(fullName),
		PasswordHash:      passwordHash,
		ExpertiseAreas:    []string{},
		Status:            domain.ProfileStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err := s.profiles.Create(ctx, profile)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, repository.ErrConflict) {
		return domain.Profile{}, err
	}
	return s.recoverConflict(ctx, ident.SubjectID, emailAddr)
}

func (s *LinkageService) recoverConflict(ctx context.Context, subjectID, emailAddr string) (domain.Profile, error) {
	existing, err := s.profiles.FindByExternalID(ctx, subjectID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Profile{}, err
	}

	byEmail, err := s.profiles.FindByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Profile{}, fmt.Errorf("profile conflict for subject %s could not be resolved", subjectID)
		}
		return domain.Profile{}, err
	}
	if byEmail.ExternalSubjectID != "" {
		s.logger.Warn("email already linked to another identity",
			zap.String("profile_id", byEmail.ID),
			zap.String("subject_id", subjectID),
		)
		return domain.Profile{}, ErrCrossIdentityConflict
	}

	err = s.profiles.LinkExternalSubject(ctx, byEmail.ID, subjectID)
	if errors.Is(err, repository.ErrConflict) {
		// Otro intento vinculo el perfil primero.
		existing, findErr := s.profiles.FindByExternalID(ctx, subjectID)
		if findErr == nil {
			return existing, nil
		}
		return domain.Profile{}, ErrCrossIdentityConflict
	}
	if err != nil {
		return domain.Profile{}, err
	}
	byEmail.ExternalSubjectID = subjectID
	s.logger.Info("linked existing profile to identity",
		zap.String("profile_id", byEmail.ID),
		zap.String("subject_id", subjectID),
	)
	return byEmail, nil
}

// sendVerification es best effort: el fallo no deshace la identidad ni el perfil.
func (s *LinkageService) sendVerification(ctx context.Context, subjectID string) bool {
	if !s.limiter.Allow(subjectID) {
		resendRejected.Inc()
		s.logger.Debug("verification send suppressed by cooldown", zap.String("subject_id", subjectID))
		return false
	}
	if err := s.idp.SendVerification(ctx, subjectID); err != nil {
		s.logger.Warn("send verification failed", zap.String("subject_id", subjectID), zap.Error(err))
		return false
	}
	return true
}

// ResendVerification reenvia el correo de verificacion respetando el cooldown.
func (s *LinkageService) ResendVerification(ctx context.Context, subjectID string) error {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return ErrInvalidCredential
	}
	verified, err := s.idp.GetVerificationState(ctx, subjectID)
	if err != nil {
		return translateProviderError(err)
	}
	if verified {
		return ErrAlreadyVerified
	}
	if !s.limiter.Allow(subjectID) {
		resendRejected.Inc()
		return ErrRateLimited
	}
	if err := s.idp.SendVerification(ctx, subjectID); err != nil {
		return translateProviderError(err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
