package http

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"instructor-core/internal/service"
)

// OnboardingHandler expone los pasos de onboarding del instructor autenticado.
type OnboardingHandler struct {
	logger         *zap.Logger
	onboarding     *service.OnboardingService
	maxUploadBytes int64
}

func NewOnboardingHandler(logger *zap.Logger, onboarding *service.OnboardingService, maxUploadBytes int64) *OnboardingHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &OnboardingHandler{logger: logger, onboarding: onboarding, maxUploadBytes: maxUploadBytes}
}

// State maneja GET /onboarding.
func (h *OnboardingHandler) State(c *gin.Context) {
	claims, ok := GetSessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	state, err := h.onboarding.State(c.Request.Context(), claims.ProfileID)
	if err != nil {
		respondError(c, h.logger, "onboarding state", err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// SaveExpertise maneja PUT /onboarding/expertise.
func (h *OnboardingHandler) SaveExpertise(c *gin.Context) {
	claims, ok := GetSessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	var req struct {
		ExpertiseAreas []string `json:"expertise_areas"`
		OtherExpertise string   `json:"other_expertise"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid expertise request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	state, err := h.onboarding.SaveExpertise(c.Request.Context(), claims.ProfileID, service.ExpertiseInput{
		Areas:     req.ExpertiseAreas,
		OtherText: req.OtherExpertise,
	})
	if err != nil {
		respondError(c, h.logger, "save expertise", err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// SaveCredential maneja POST /onboarding/credential (multipart: file, notes).
func (h *OnboardingHandler) SaveCredential(c *gin.Context) {
	claims, ok := GetSessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if header.Size > h.maxUploadBytes {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "file exceeds size limit", "field": "credential"})
		return
	}
	file, err := header.Open()
	if err != nil {
		h.logger.Error("open upload failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		h.logger.Error("read upload failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}

	state, err := h.onboarding.SaveCredential(c.Request.Context(), claims.ProfileID, service.CredentialInput{
		Data:     data,
		Filename: header.Filename,
		Notes:    c.PostForm("notes"),
	})
	if err != nil {
		respondError(c, h.logger, "save credential", err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// Submit maneja POST /onboarding/submit. Un reenvio devuelve la solicitud existente.
func (h *OnboardingHandler) Submit(c *gin.Context) {
	claims, ok := GetSessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	res, err := h.onboarding.Submit(c.Request.Context(), claims.ProfileID)
	if err != nil {
		respondError(c, h.logger, "submit application", err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, res)
}
