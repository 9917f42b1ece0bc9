package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"instructor-core/internal/domain"
)

func newTestJWTService() *JWTService {
	return NewJWTService("secret", "instructor-core", 15*time.Minute, 24*time.Hour, time.Hour, NewMemoryRevocationStore())
}

func TestJWTService_IssueParseSession(t *testing.T) {
	svc := newTestJWTService()
	profile := domain.Profile{ID: "p1", Status: domain.ProfileStatusPending}

	tok, err := svc.IssueSession(profile, ScopeShort)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	claims, err := svc.ParseSession(tok.Token)
	if err != nil {
		t.Fatalf("parse session: %v", err)
	}
	if claims.ProfileID != "p1" || claims.Status != domain.ProfileStatusPending || claims.Scope != ScopeShort {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestJWTService_ScopeDecidesLifetime(t *testing.T) {
	svc := newTestJWTService()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	profile := domain.Profile{ID: "p1", Status: domain.ProfileStatusActive}

	short, err := svc.IssueSession(profile, ScopeFor(false))
	if err != nil {
		t.Fatalf("issue short: %v", err)
	}
	extended, err := svc.IssueSession(profile, ScopeFor(true))
	if err != nil {
		t.Fatalf("issue extended: %v", err)
	}
	if !short.ExpiresAt.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected short expiry %v", short.ExpiresAt)
	}
	if !extended.ExpiresAt.Equal(now.Add(24*time.Hour)) || extended.Scope != ScopeExtended {
		t.Fatalf("unexpected extended token %+v", extended)
	}

	now = now.Add(time.Hour)
	if _, err := svc.ParseSession(short.Token); !errors.Is(err, ErrJWTExpired) {
		t.Fatalf("expected short token expired, got %v", err)
	}
	if _, err := svc.ParseSession(extended.Token); err != nil {
		t.Fatalf("expected extended token valid, got %v", err)
	}
}

func TestJWTService_RevokeInvalidatesPriorTokens(t *testing.T) {
	svc := newTestJWTService()
	profile := domain.Profile{ID: "p1", Status: domain.ProfileStatusActive}

	old, err := svc.IssueSession(profile, ScopeExtended)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := svc.Revoke("p1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.ParseSession(old.Token); !errors.Is(err, ErrJWTRevoked) {
		t.Fatalf("expected ErrJWTRevoked, got %v", err)
	}

	fresh, err := svc.IssueSession(profile, ScopeExtended)
	if err != nil {
		t.Fatalf("issue fresh: %v", err)
	}
	if _, err := svc.ParseSession(fresh.Token); err != nil {
		t.Fatalf("expected token issued after revoke to be valid, got %v", err)
	}
}

func TestJWTService_PendingTicket(t *testing.T) {
	svc := newTestJWTService()
	ticket, err := svc.IssuePending(domain.ExternalIdentity{SubjectID: "sub-1", Email: "a@b.com"})
	if err != nil {
		t.Fatalf("issue pending: %v", err)
	}
	claims, err := svc.ParsePending(ticket.Token)
	if err != nil {
		t.Fatalf("parse pending: %v", err)
	}
	if claims.Subject != "sub-1" || claims.Email != "a@b.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := svc.ParseSession(ticket.Token); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected pending ticket rejected as session, got %v", err)
	}
	session, _ := svc.IssueSession(domain.Profile{ID: "p1"}, ScopeShort)
	if _, err := svc.ParsePending(session.Token); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected session token rejected as ticket, got %v", err)
	}
}

func TestJWTService_RejectsEmptySecret(t *testing.T) {
	svc := NewJWTService("", "", 0, 0, 0, nil)
	if _, err := svc.IssueSession(domain.Profile{ID: "p1"}, ScopeShort); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid on empty secret, got %v", err)
	}
}

func TestJWTService_RejectsWrongIssuer(t *testing.T) {
	svc := newTestJWTService()
	now := time.Now().UTC()
	claims := SessionClaims{
		ProfileID: "p1",
		TokenType: tokenTypeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "other-issuer",
			Subject:   "p1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := svc.ParseSession(signed); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid for wrong issuer, got %v", err)
	}
}
