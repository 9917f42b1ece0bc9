package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"instructor-core/internal/domain"
)

// ApplicationRepository es la cola de revision: una solicitud por perfil.
type ApplicationRepository interface {
	Create(ctx context.Context, app domain.Application) error
	FindByProfileID(ctx context.Context, profileID string) (domain.Application, error)
}

type PgApplicationRepository struct {
	pool *pgxpool.Pool
}

func NewPgApplicationRepository(pool *pgxpool.Pool) *PgApplicationRepository {
	return &PgApplicationRepository{pool: pool}
}

func (r *PgApplicationRepository) Create(ctx context.Context, app domain.Application) error {
	const query = `
		INSERT INTO instructor_applications (id, profile_id, submitted_at, decision)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query,
		app.ID,
		app.ProfileID,
		app.SubmittedAt,
		string(app.Decision),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create application: %w", ErrConflict)
	}
	return err
}

func (r *PgApplicationRepository) FindByProfileID(ctx context.Context, profileID string) (domain.Application, error) {
	const query = `
		SELECT id, profile_id, submitted_at, decision
		FROM instructor_applications
		WHERE profile_id = $1
	`
	var (
		app      domain.Application
		decision string
	)
	err := r.pool.QueryRow(ctx, query, profileID).Scan(
		&app.ID,
		&app.ProfileID,
		&app.SubmittedAt,
		&decision,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Application{}, err
	}
	app.Decision = domain.ApplicationDecision(decision)
	return app, err
}
