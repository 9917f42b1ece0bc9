package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"instructor-core/internal/blob"
	"instructor-core/internal/domain"
	"instructor-core/internal/email"
	"instructor-core/internal/events"
	"instructor-core/internal/repository"
)

const (
	credentialFolder      = "credentials"
	maxExpertiseLength    = 80
	maxOtherLength        = 200
	maxCredentialNotesLen = 1000
)

type OnboardingState struct {
	Profile     domain.Profile        `json:"profile"`
	Step        domain.OnboardingStep `json:"step"`
	Application *domain.Application   `json:"application,omitempty"`
}

type ExpertiseInput struct {
	Areas     []string
	OtherText string
}

type CredentialInput struct {
	Data     []byte
	Filename string
	Notes    string
}

// SubmitResult marca con Duplicate los reenvios de una solicitud ya registrada.
type SubmitResult struct {
	Application domain.Application `json:"application"`
	Duplicate   bool               `json:"duplicate"`
}

// OnboardingService guarda cada paso apenas se completa y controla el orden en el servidor.
type OnboardingService struct {
	logger       *zap.Logger
	profiles     repository.ProfileRepository
	applications repository.ApplicationRepository
	blobs        blob.Store
	publisher    events.Publisher
	mailer       email.Sender
	now          func() time.Time
}

func NewOnboardingService(logger *zap.Logger, profiles repository.ProfileRepository, applications repository.ApplicationRepository, blobs blob.Store, publisher events.Publisher, mailer email.Sender) *OnboardingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	if mailer == nil {
		mailer = email.NewDisabledSender("not configured")
	}
	return &OnboardingService{
		logger:       logger,
		profiles:     profiles,
		applications: applications,
		blobs:        blobs,
		publisher:    publisher,
		mailer:       mailer,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *OnboardingService) State(ctx context.Context, profileID string) (OnboardingState, error) {
	profile, err := s.loadProfile(ctx, profileID)
	if err != nil {
		return OnboardingState{}, err
	}
	app, err := s.findApplication(ctx, profile.ID)
	if err != nil {
		return OnboardingState{}, err
	}
	state := OnboardingState{Profile: profile, Step: domain.CurrentStep(profile, app != nil), Application: app}
	return state, nil
}

func (s *OnboardingService) SaveExpertise(ctx context.Context, profileID string, in ExpertiseInput) (OnboardingState, error) {
	profile, err := s.editableProfile(ctx, profileID)
	if err != nil {
		return OnboardingState{}, err
	}
	areas, other, err := normalizeExpertise(in)
	if err != nil {
		return OnboardingState{}, err
	}
	profile, err = s.patchDraft(ctx, profile.ID, domain.ProfilePatch{
		ExpertiseAreas: &areas,
		OtherExpertise: &other,
	})
	if err != nil {
		return OnboardingState{}, err
	}
	return OnboardingState{Profile: profile, Step: domain.CurrentStep(profile, false)}, nil
}

func (s *OnboardingService) SaveCredential(ctx context.Context, profileID string, in CredentialInput) (OnboardingState, error) {
	profile, err := s.editableProfile(ctx, profileID)
	if err != nil {
		return OnboardingState{}, err
	}
	if len(profile.ExpertiseAreas) == 0 {
		return OnboardingState{}, validationError("expertise_areas", "complete expertise areas before uploading a credential")
	}
	notes := strings.TrimSpace(in.Notes)
	if utf8.RuneCountInString(notes) > maxCredentialNotesLen {
		return OnboardingState{}, validationError("credential_notes", "credential notes are too long")
	}
	if s.blobs == nil {
		return OnboardingState{}, errors.New("blob store not configured")
	}

	obj, err := s.blobs.Upload(ctx, in.Data, credentialFolder, profile.ID, in.Filename)
	if err != nil {
		if errors.Is(err, blob.ErrEmpty) || errors.Is(err, blob.ErrTooLarge) || errors.Is(err, blob.ErrUnsupportedType) {
			return OnboardingState{}, validationError("credential", strings.TrimPrefix(err.Error(), "blob: "))
		}
		return OnboardingState{}, err
	}

	previous := profile.CredentialStoragePath
	complete := true
	updated, err := s.patchDraft(ctx, profile.ID, domain.ProfilePatch{
		CredentialBlobRef:            &obj.URL,
		CredentialStoragePath:        &obj.StoragePath,
		CredentialNotes:              &notes,
		InformationGatheringComplete: &complete,
	})
	if err != nil {
		if delErr := s.blobs.Delete(ctx, obj.StoragePath); delErr != nil {
			s.logger.Warn("orphan credential cleanup failed", zap.String("path", obj.StoragePath), zap.Error(delErr))
		}
		return OnboardingState{}, err
	}
	if previous != "" && previous != obj.StoragePath {
		if err := s.blobs.Delete(ctx, previous); err != nil {
			s.logger.Warn("previous credential cleanup failed", zap.String("path", previous), zap.Error(err))
		}
	}
	return OnboardingState{Profile: updated, Step: domain.CurrentStep(updated, false)}, nil
}

// Submit es idempotente: la unicidad por perfil la garantiza el almacen.
func (s *OnboardingService) Submit(ctx context.Context, profileID string) (SubmitResult, error) {
	profile, err := s.loadProfile(ctx, profileID)
	if err != nil {
		return SubmitResult{}, err
	}
	existing, err := s.findApplication(ctx, profile.ID)
	if err != nil {
		return SubmitResult{}, err
	}
	if existing != nil {
		applicationsSubmitted.WithLabelValues("duplicate").Inc()
		return SubmitResult{Application: *existing, Duplicate: true}, nil
	}
	if profile.Status == domain.ProfileStatusSuspended {
		return SubmitResult{}, ErrProfileSuspended
	}

	if err := validateExpertise(profile.ExpertiseAreas, profile.OtherExpertise); err != nil {
		return SubmitResult{}, err
	}
	switch {
	case profile.CredentialBlobRef == "":
		return SubmitResult{}, validationError("credential", "a credential upload is required")
	case !profile.InformationGatheringComplete:
		return SubmitResult{}, validationError("credential", "credential step is not complete")
	}

	app := domain.Application{
		ID:          uuid.NewString(),
		ProfileID:   profile.ID,
		SubmittedAt: s.now(),
		Decision:    domain.DecisionPending,
	}
	if err := s.applications.Create(ctx, app); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return SubmitResult{}, err
		}
		stored, findErr := s.applications.FindByProfileID(ctx, profile.ID)
		if findErr != nil {
			return SubmitResult{}, findErr
		}
		applicationsSubmitted.WithLabelValues("duplicate").Inc()
		return SubmitResult{Application: stored, Duplicate: true}, nil
	}

	applicationsSubmitted.WithLabelValues("created").Inc()
	s.logger.Info("application submitted", zap.String("profile_id", profile.ID), zap.String("application_id", app.ID))
	s.notifySubmitted(ctx, profile, app)
	return SubmitResult{Application: app}, nil
}

func (s *OnboardingService) notifySubmitted(ctx context.Context, profile domain.Profile, app domain.Application) {
	evt := events.ApplicationSubmitted{
		ApplicationID:  app.ID,
		ProfileID:      profile.ID,
		Email:          profile.Email,
		FullName:       profile.FullName,
		ExpertiseAreas: profile.ExpertiseAreas,
		CredentialURL:  profile.CredentialBlobRef,
		SubmittedAt:    app.SubmittedAt,
	}
	if err := s.publisher.PublishApplicationSubmitted(ctx, evt); err != nil {
		s.logger.Warn("publish application event failed", zap.String("application_id", app.ID), zap.Error(err))
	}
	if err := s.mailer.SendApplicationReceived(ctx, profile.Email, profile.FullName, app.SubmittedAt); err != nil {
		s.logger.Warn("send application receipt failed", zap.String("application_id", app.ID), zap.Error(err))
	}
}

func (s *OnboardingService) loadProfile(ctx context.Context, profileID string) (domain.Profile, error) {
	profile, err := s.profiles.FindByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Profile{}, ErrProfileNotFound
		}
		return domain.Profile{}, err
	}
	return profile, nil
}

// editableProfile rechaza cambios en perfiles suspendidos o ya enviados a revision.
func (s *OnboardingService) editableProfile(ctx context.Context, profileID string) (domain.Profile, error) {
	profile, err := s.loadProfile(ctx, profileID)
	if err != nil {
		return domain.Profile{}, err
	}
	if profile.Status == domain.ProfileStatusSuspended {
		return domain.Profile{}, ErrProfileSuspended
	}
	app, err := s.findApplication(ctx, profile.ID)
	if err != nil {
		return domain.Profile{}, err
	}
	if app != nil {
		return domain.Profile{}, ErrAlreadySubmitted
	}
	return profile, nil
}

// patchDraft persiste un paso solo mientras no exista solicitud, aun con un Submit concurrente.
func (s *OnboardingService) patchDraft(ctx context.Context, profileID string, patch domain.ProfilePatch) (domain.Profile, error) {
	profile, err := s.profiles.PatchDraft(ctx, profileID, patch)
	switch {
	case errors.Is(err, repository.ErrProfileLocked):
		return domain.Profile{}, ErrAlreadySubmitted
	case errors.Is(err, pgx.ErrNoRows):
		return domain.Profile{}, ErrProfileNotFound
	}
	return profile, err
}

func (s *OnboardingService) findApplication(ctx context.Context, profileID string) (*domain.Application, error) {
	app, err := s.applications.FindByProfileID(ctx, profileID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &app, nil
}

func normalizeExpertise(in ExpertiseInput) ([]string, string, error) {
	seen := make(map[string]struct{}, len(in.Areas))
	areas := make([]string, 0, len(in.Areas))
	hasOther := false
	for _, raw := range in.Areas {
		area := strings.Join(strings.Fields(raw), " ")
		if area == "" {
			continue
		}
		if strings.EqualFold(area, domain.ExpertiseOther) || strings.EqualFold(area, "Others") {
			area = domain.ExpertiseOther
			hasOther = true
		}
		if utf8.RuneCountInString(area) > maxExpertiseLength {
			return nil, "", validationError("expertise_areas", "expertise area names must be at most 80 characters")
		}
		key := strings.ToLower(area)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		areas = append(areas, area)
	}
	other := ""
	if hasOther {
		other = strings.TrimSpace(in.OtherText)
	}
	if err := validateExpertise(areas, other); err != nil {
		return nil, "", err
	}
	return areas, other, nil
}

// validateExpertise es la condicion de salida del paso 1, aplicada al guardar y al enviar.
func validateExpertise(areas []string, other string) error {
	if len(areas) == 0 {
		return validationError("expertise_areas", "select at least one expertise area")
	}
	if len(areas) > domain.MaxExpertiseAreas {
		return validationError("expertise_areas", "select at most 4 expertise areas")
	}
	hasOther := false
	for _, area := range areas {
		if strings.TrimSpace(area) == "" {
			return validationError("expertise_areas", "expertise areas cannot be blank")
		}
		if strings.EqualFold(area, domain.ExpertiseOther) || strings.EqualFold(area, "Others") {
			hasOther = true
		}
	}
	if !hasOther {
		return nil
	}
	other = strings.TrimSpace(other)
	if other == "" {
		return validationError("other_expertise", "Others requires description")
	}
	if utf8.RuneCountInString(other) > maxOtherLength {
		return validationError("other_expertise", "description is too long")
	}
	return nil
}
