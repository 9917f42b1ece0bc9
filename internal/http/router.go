package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"instructor-core/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	jwtSvc *service.JWTService,
	authH *AuthHandler,
	onboardingH *OnboardingHandler,
	webhookH *IdentityWebhookHandler,
	ingress *IPRateLimiter,
) *gin.Engine {
	r := gin.New()
	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := r.Group("/auth")
	auth.POST("/signup", RateLimitMiddleware(ingress), jsonContentTypeMiddleware(), authH.Signup)
	auth.POST("/session", RateLimitMiddleware(ingress), jsonContentTypeMiddleware(), authH.Login)
	auth.POST("/session/refresh", jsonContentTypeMiddleware(), authH.Refresh)
	auth.POST("/password", SessionAuthMiddleware(jwtSvc), jsonContentTypeMiddleware(), authH.ChangePassword)
	auth.POST("/verification/resend", PendingAuthMiddleware(jwtSvc), jsonContentTypeMiddleware(), authH.ResendVerification)
	auth.GET("/verification/stream", PendingAuthMiddleware(jwtSvc), authH.VerificationStream)

	r.POST("/identity/events", jsonContentTypeMiddleware(), webhookH.AuthStateChanged)

	onboarding := r.Group("/onboarding", SessionAuthMiddleware(jwtSvc), jsonContentTypeMiddleware())
	onboarding.GET("", onboardingH.State)
	onboarding.PUT("/expertise", onboardingH.SaveExpertise)
	onboarding.POST("/credential", onboardingH.SaveCredential)
	onboarding.POST("/submit", onboardingH.Submit)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
