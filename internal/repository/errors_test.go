package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "instructor_profiles_subject_unique"}
	if !isUniqueViolation(dup) {
		t.Fatalf("expected unique violation")
	}
	if !isUniqueViolation(fmt.Errorf("insert: %w", dup)) {
		t.Fatalf("expected wrapped unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("foreign key violation is not a uniqueness conflict")
	}
	if isUniqueViolation(errors.New("boom")) {
		t.Fatalf("plain error is not a uniqueness conflict")
	}
}
