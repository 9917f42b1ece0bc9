package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"instructor-core/internal/domain"
)

// ProfileRepository define el contrato de persistencia de perfiles de instructor.
// Las busquedas sin resultado devuelven pgx.ErrNoRows; las violaciones de unicidad, ErrConflict.
type ProfileRepository interface {
	Create(ctx context.Context, profile domain.Profile) error
	FindByID(ctx context.Context, id string) (domain.Profile, error)
	FindByExternalID(ctx context.Context, subjectID string) (domain.Profile, error)
	FindByEmail(ctx context.Context, email string) (domain.Profile, error)
	Patch(ctx context.Context, id string, patch domain.ProfilePatch) (domain.Profile, error)
	// PatchDraft aplica el patch solo si el perfil no tiene solicitud; si la tiene devuelve ErrProfileLocked.
	PatchDraft(ctx context.Context, id string, patch domain.ProfilePatch) (domain.Profile, error)
	LinkExternalSubject(ctx context.Context, id, subjectID string) error
}

// PgProfileRepository implementa ProfileRepository usando pgxpool.
type PgProfileRepository struct {
	pool *pgxpool.Pool
}

func NewPgProfileRepository(pool *pgxpool.Pool) *PgProfileRepository {
	return &PgProfileRepository{pool: pool}
}

const profileColumns = `
	id, COALESCE(external_subject_id, ''), email, full_name, COALESCE(password_hash, ''),
	expertise_areas, other_expertise, COALESCE(credential_blob_ref, ''),
	COALESCE(credential_storage_path, ''), credential_notes, bio,
	information_gathering_complete, status, created_at, updated_at
`

func (r *PgProfileRepository) Create(ctx context.Context, profile domain.Profile) error {
	const query = `
		INSERT INTO instructor_profiles (
			id, external_subject_id, email, full_name, password_hash, expertise_areas,
			other_expertise, credential_blob_ref, credential_storage_path, credential_notes,
			bio, information_gathering_complete, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	areas := profile.ExpertiseAreas
	if areas == nil {
		areas = []string{}
	}
	_, err := r.pool.Exec(ctx, query,
		profile.ID,
		nullable(profile.ExternalSubjectID),
		profile.Email,
		profile.FullName,
		nullable(profile.PasswordHash),
		areas,
		profile.OtherExpertise,
		nullable(profile.CredentialBlobRef),
		nullable(profile.CredentialStoragePath),
		profile.CredentialNotes,
		profile.Bio,
		profile.InformationGatheringComplete,
		string(profile.Status),
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create profile: %w", ErrConflict)
	}
	return err
}

func (r *PgProfileRepository) FindByID(ctx context.Context, id string) (domain.Profile, error) {
	return r.findOne(ctx, `WHERE id = $1`, id)
}

func (r *PgProfileRepository) FindByExternalID(ctx context.Context, subjectID string) (domain.Profile, error) {
	return r.findOne(ctx, `WHERE external_subject_id = $1`, subjectID)
}

func (r *PgProfileRepository) FindByEmail(ctx context.Context, email string) (domain.Profile, error) {
	return r.findOne(ctx, `WHERE LOWER(email) = LOWER($1)`, email)
}

func (r *PgProfileRepository) findOne(ctx context.Context, where string, arg any) (domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM instructor_profiles ` + where
	var (
		p      domain.Profile
		status string
	)
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&p.ID,
		&p.ExternalSubjectID,
		&p.Email,
		&p.FullName,
		&p.PasswordHash,
		&p.ExpertiseAreas,
		&p.OtherExpertise,
		&p.CredentialBlobRef,
		&p.CredentialStoragePath,
		&p.CredentialNotes,
		&p.Bio,
		&p.InformationGatheringComplete,
		&status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Profile{}, err
	}
	p.Status = domain.ProfileStatus(status)
	return p, err
}

func (r *PgProfileRepository) Patch(ctx context.Context, id string, patch domain.ProfilePatch) (domain.Profile, error) {
	return r.update(ctx, id, patch, false)
}

func (r *PgProfileRepository) PatchDraft(ctx context.Context, id string, patch domain.ProfilePatch) (domain.Profile, error) {
	p, err := r.update(ctx, id, patch, true)
	if !errors.Is(err, pgx.ErrNoRows) {
		return p, err
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM instructor_profiles WHERE id = $1)`, id).Scan(&exists); err != nil {
		return domain.Profile{}, err
	}
	if exists {
		return domain.Profile{}, ErrProfileLocked
	}
	return domain.Profile{}, pgx.ErrNoRows
}

func (r *PgProfileRepository) update(ctx context.Context, id string, patch domain.ProfilePatch, draftOnly bool) (domain.Profile, error) {
	if patch.Empty() {
		return r.FindByID(ctx, id)
	}

	sets, args := patchAssignments(patch)
	args = append(args, time.Now().UTC(), id)

	var (
		p      domain.Profile
		status string
	)
	err := r.pool.QueryRow(ctx, updateQuery(sets, len(args), draftOnly), args...).Scan(
		&p.ID,
		&p.ExternalSubjectID,
		&p.Email,
		&p.FullName,
		&p.PasswordHash,
		&p.ExpertiseAreas,
		&p.OtherExpertise,
		&p.CredentialBlobRef,
		&p.CredentialStoragePath,
		&p.CredentialNotes,
		&p.Bio,
		&p.InformationGatheringComplete,
		&status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return domain.Profile{}, err
	}
	p.Status = domain.ProfileStatus(status)
	return p, nil
}

// updateQuery espera updated_at e id como los dos ultimos argumentos.
func updateQuery(sets []string, argCount int, draftOnly bool) string {
	where := fmt.Sprintf("id = $%d", argCount)
	if draftOnly {
		where += ` AND NOT EXISTS (SELECT 1 FROM instructor_applications a WHERE a.profile_id = instructor_profiles.id)`
	}
	return fmt.Sprintf(
		`UPDATE instructor_profiles SET %s, updated_at = $%d WHERE %s RETURNING %s`,
		strings.Join(sets, ", "), argCount-1, where, profileColumns,
	)
}

// LinkExternalSubject fija el sujeto externo solo si aun no estaba vinculado.
func (r *PgProfileRepository) LinkExternalSubject(ctx context.Context, id, subjectID string) error {
	const query = `
		UPDATE instructor_profiles
		SET external_subject_id = $1, updated_at = $2
		WHERE id = $3 AND external_subject_id IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, subjectID, time.Now().UTC(), id)
	if isUniqueViolation(err) {
		return fmt.Errorf("link subject: %w", ErrConflict)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("link subject: %w", ErrConflict)
	}
	return nil
}

func patchAssignments(patch domain.ProfilePatch) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.FullName != nil {
		add("full_name", *patch.FullName)
	}
	if patch.PasswordHash != nil {
		add("password_hash", nullable(*patch.PasswordHash))
	}
	if patch.ExpertiseAreas != nil {
		areas := *patch.ExpertiseAreas
		if areas == nil {
			areas = []string{}
		}
		add("expertise_areas", areas)
	}
	if patch.OtherExpertise != nil {
		add("other_expertise", *patch.OtherExpertise)
	}
	if patch.CredentialBlobRef != nil {
		add("credential_blob_ref", nullable(*patch.CredentialBlobRef))
	}
	if patch.CredentialStoragePath != nil {
		add("credential_storage_path", nullable(*patch.CredentialStoragePath))
	}
	if patch.CredentialNotes != nil {
		add("credential_notes", *patch.CredentialNotes)
	}
	if patch.Bio != nil {
		add("bio", *patch.Bio)
	}
	if patch.InformationGatheringComplete != nil {
		add("information_gathering_complete", *patch.InformationGatheringComplete)
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	return sets, args
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
