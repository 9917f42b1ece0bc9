package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"instructor-core/internal/service"
)

const (
	sessionClaimsKey = "session_claims"
	pendingClaimsKey = "pending_claims"
)

// SessionAuthMiddleware valida el token de sesion y guarda los claims en el contexto.
func SessionAuthMiddleware(jwtSvc *service.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSvc == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "jwt not configured"})
			return
		}
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := jwtSvc.ParseSession(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": tokenErrorMessage(err)})
			return
		}
		c.Set(sessionClaimsKey, claims)
		c.Next()
	}
}

// PendingAuthMiddleware valida el ticket de verificacion pendiente. EventSource no
// permite cabeceras, por eso tambien se acepta el parametro ?ticket=.
func PendingAuthMiddleware(jwtSvc *service.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSvc == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "jwt not configured"})
			return
		}
		token, ok := bearerToken(c)
		if !ok {
			token = strings.TrimSpace(c.Query("ticket"))
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing ticket"})
			return
		}
		claims, err := jwtSvc.ParsePending(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": tokenErrorMessage(err)})
			return
		}
		c.Set(pendingClaimsKey, claims)
		c.Next()
	}
}

func GetSessionClaims(c *gin.Context) (service.SessionClaims, bool) {
	val, ok := c.Get(sessionClaimsKey)
	if !ok {
		return service.SessionClaims{}, false
	}
	claims, ok := val.(service.SessionClaims)
	return claims, ok
}

func GetPendingClaims(c *gin.Context) (service.PendingClaims, bool) {
	val, ok := c.Get(pendingClaimsKey)
	if !ok {
		return service.PendingClaims{}, false
	}
	claims, ok := val.(service.PendingClaims)
	return claims, ok
}

func bearerToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	return token, token != ""
}

func tokenErrorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrJWTExpired):
		return "token expired"
	case errors.Is(err, service.ErrJWTRevoked):
		return "token revoked"
	default:
		return "invalid token"
	}
}
