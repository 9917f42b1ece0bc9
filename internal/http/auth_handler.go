package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"instructor-core/internal/domain"
	"instructor-core/internal/service"
)

const streamHeartbeat = 15 * time.Second

// AuthHandler expone registro, verificacion y sesiones.
type AuthHandler struct {
	logger    *zap.Logger
	linkage   *service.LinkageService
	detector  *service.VerificationDetector
	sessions  *service.SessionService
	jwtServ   *service.JWTService
	heartbeat time.Duration
}

func NewAuthHandler(logger *zap.Logger, linkage *service.LinkageService, detector *service.VerificationDetector, sessions *service.SessionService, jwtServ *service.JWTService) *AuthHandler {
	return &AuthHandler{
		logger:    logger,
		linkage:   linkage,
		detector:  detector,
		sessions:  sessions,
		jwtServ:   jwtServ,
		heartbeat: streamHeartbeat,
	}
}

// Signup maneja POST /auth/signup.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FullName  string `json:"full_name"`
		Assertion string `json:"assertion"`
		Remember  bool   `json:"remember"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid signup request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.linkage.Resolve(c.Request.Context(), service.ResolveInput{
		Email:     req.Email,
		Password:  req.Password,
		FullName:  req.FullName,
		Assertion: req.Assertion,
	})
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		respondError(c, h.logger, "signup", err)
		return
	}

	body := gin.H{
		"outcome":           res.Outcome,
		"profile":           res.Profile,
		"verification_sent": res.VerificationSent,
	}
	if res.Identity.Verified {
		session, err := h.sessions.Exchange(c.Request.Context(), res.Identity, service.ScopeFor(req.Remember))
		if err != nil {
			respondError(c, h.logger, "signup exchange", err)
			return
		}
		body["session"] = session.Token
		body["route"] = session.Route
		body["profile"] = session.Profile
	} else {
		ticket, err := h.jwtServ.IssuePending(res.Identity)
		if err != nil {
			respondError(c, h.logger, "signup ticket", err)
			return
		}
		body["ticket"] = ticket
	}

	status := http.StatusOK
	if res.Outcome == service.OutcomeCreatedNew {
		status = http.StatusCreated
	}
	c.JSON(status, body)
}

// ResendVerification maneja POST /auth/verification/resend.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	claims, ok := GetPendingClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing ticket"})
		return
	}
	if err := h.linkage.ResendVerification(c.Request.Context(), claims.Subject); err != nil {
		respondError(c, h.logger, "resend verification", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "verification_sent"})
}

// VerificationStream maneja GET /auth/verification/stream (SSE). Espera hasta que
// la identidad se verifique; si el cliente se desconecta la observacion se detiene.
func (h *AuthHandler) VerificationStream(c *gin.Context) {
	claims, ok := GetPendingClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing ticket"})
		return
	}
	remember, _ := strconv.ParseBool(c.Query("remember"))

	ctx := c.Request.Context()
	watch, err := h.detector.Watch(ctx, claims.Subject)
	if err != nil {
		respondError(c, h.logger, "verification watch", err)
		return
	}
	defer watch.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.SSEvent("waiting", gin.H{"subject_id": claims.Subject})
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("verification stream closed by client", zap.String("subject_id", claims.Subject))
			return
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			c.Writer.Flush()
		case evt, ok := <-watch.Events():
			if !ok {
				return
			}
			ident := domain.ExternalIdentity{SubjectID: evt.SubjectID, Email: claims.Email, Verified: true}
			res, err := h.sessions.Exchange(ctx, ident, service.ScopeFor(remember))
			if err != nil {
				h.logger.Error("verification exchange failed", zap.String("subject_id", evt.SubjectID), zap.Error(err))
				c.SSEvent("error", gin.H{"error": "could not open session"})
				c.Writer.Flush()
				return
			}
			c.SSEvent("verified", gin.H{
				"source":  evt.Source,
				"session": res.Token,
				"profile": res.Profile,
				"route":   res.Route,
			})
			c.Writer.Flush()
			return
		}
	}
}

// Login maneja POST /auth/session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		Assertion string `json:"assertion"`
		Remember  bool   `json:"remember"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.sessions.Login(c.Request.Context(), service.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		Assertion: req.Assertion,
		Remember:  req.Remember,
	})
	if err != nil {
		respondError(c, h.logger, "login", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Refresh maneja POST /auth/session/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	res, err := h.sessions.Refresh(c.Request.Context(), token)
	if err != nil {
		respondError(c, h.logger, "refresh session", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ChangePassword maneja POST /auth/password.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims, ok := GetSessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	var req struct {
		CurrentPassword string `json:"current_password" binding:"required"`
		NewPassword     string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid change password request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	token, err := h.sessions.ChangePassword(c.Request.Context(), claims.ProfileID, req.CurrentPassword, req.NewPassword, claims.Scope)
	if err != nil {
		respondError(c, h.logger, "change password", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": token})
}
