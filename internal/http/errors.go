package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"instructor-core/internal/service"
)

// respondError traduce los errores del servicio a respuestas HTTP.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	var vErr *service.ValidationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": vErr.Message, "field": vErr.Field})
		return
	}

	status, message := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, service.ErrInvalidEmail):
		status, message = http.StatusBadRequest, "invalid email"
	case errors.Is(err, service.ErrInvalidCredential):
		status, message = http.StatusUnauthorized, "invalid credential"
	case errors.Is(err, service.ErrJWTInvalid), errors.Is(err, service.ErrJWTExpired), errors.Is(err, service.ErrJWTRevoked):
		status, message = http.StatusUnauthorized, tokenErrorMessage(err)
	case errors.Is(err, service.ErrAlreadyVerified):
		status, message = http.StatusConflict, "identity already verified, sign in instead"
	case errors.Is(err, service.ErrCrossIdentityConflict):
		status, message = http.StatusConflict, "email is linked to a different sign-in method"
	case errors.Is(err, service.ErrAlreadySubmitted):
		status, message = http.StatusConflict, "application already submitted"
	case errors.Is(err, service.ErrRateLimited):
		status, message = http.StatusTooManyRequests, "too many requests, try again later"
	case errors.Is(err, service.ErrProfileNotFound):
		status, message = http.StatusNotFound, "profile not found, contact support"
	case errors.Is(err, service.ErrProfileSuspended):
		status, message = http.StatusForbidden, "profile suspended"
	case errors.Is(err, service.ErrIdentityNotVerified):
		status, message = http.StatusForbidden, "email not verified"
	case errors.Is(err, service.ErrTransientProvider):
		status, message = http.StatusServiceUnavailable, "identity provider unavailable, retry"
	case errors.Is(err, service.ErrPermanentProvider):
		status, message = http.StatusBadGateway, "identity provider error"
	}

	if status >= http.StatusInternalServerError {
		logger.Error(op+" failed", zap.Error(err))
	} else {
		logger.Debug(op+" rejected", zap.Error(err))
	}
	c.JSON(status, gin.H{"error": message})
}
