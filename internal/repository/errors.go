package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrConflict indica que una restriccion de unicidad rechazo la escritura.
var ErrConflict = errors.New("unique constraint conflict")

// ErrProfileLocked indica que el perfil ya tiene una solicitud y no admite cambios de onboarding.
var ErrProfileLocked = errors.New("profile locked by submitted application")

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
