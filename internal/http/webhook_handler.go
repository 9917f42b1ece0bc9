package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"instructor-core/internal/domain"
	"instructor-core/internal/identity"
)

const webhookTokenHeader = "X-Webhook-Token"

// IdentityWebhookHandler recibe cambios de estado del proveedor y los difunde a los detectores.
type IdentityWebhookHandler struct {
	logger    *zap.Logger
	publisher identity.StatePublisher
	token     string
}

func NewIdentityWebhookHandler(logger *zap.Logger, publisher identity.StatePublisher, token string) *IdentityWebhookHandler {
	return &IdentityWebhookHandler{logger: logger, publisher: publisher, token: strings.TrimSpace(token)}
}

// AuthStateChanged maneja POST /identity/events.
func (h *IdentityWebhookHandler) AuthStateChanged(c *gin.Context) {
	if h.token == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "webhook disabled"})
		return
	}
	got := c.GetHeader(webhookTokenHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook token"})
		return
	}

	var req struct {
		SubjectID     string `json:"subject_id" binding:"required"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid identity event", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	state := domain.ExternalIdentity{SubjectID: req.SubjectID, Email: req.Email, Verified: req.EmailVerified}
	if err := h.publisher.PublishAuthState(c.Request.Context(), state); err != nil {
		h.logger.Error("publish auth state failed", zap.String("subject_id", req.SubjectID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not publish event"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
