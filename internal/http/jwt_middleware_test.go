package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"instructor-core/internal/domain"
	"instructor-core/internal/service"
)

func newMiddlewareJWT() *service.JWTService {
	return service.NewJWTService("secret", "instructor-core", 15*time.Minute, time.Hour, time.Hour, service.NewMemoryRevocationStore())
}

func TestSessionAuthMiddleware_AllowsValidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := newMiddlewareJWT()
	tok, err := jwtSvc.IssueSession(domain.Profile{ID: "p1", Status: domain.ProfileStatusPending}, service.ScopeShort)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	r := gin.New()
	r.GET("/protected", SessionAuthMiddleware(jwtSvc), func(c *gin.Context) {
		claims, ok := GetSessionClaims(c)
		if !ok || claims.ProfileID != "p1" {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSessionAuthMiddleware_RejectsMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", SessionAuthMiddleware(newMiddlewareJWT()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestPendingAuthMiddleware_AcceptsQueryTicket(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := newMiddlewareJWT()
	ticket, err := jwtSvc.IssuePending(domain.ExternalIdentity{SubjectID: "sub-1"})
	if err != nil {
		t.Fatalf("issue pending: %v", err)
	}

	r := gin.New()
	r.GET("/stream", PendingAuthMiddleware(jwtSvc), func(c *gin.Context) {
		claims, ok := GetPendingClaims(c)
		if !ok || claims.Subject != "sub-1" {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/stream?ticket="+ticket.Token, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
