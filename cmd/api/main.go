package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"instructor-core/internal/blob"
	"instructor-core/internal/config"
	"instructor-core/internal/db"
	"instructor-core/internal/email"
	"instructor-core/internal/events"
	apihttp "instructor-core/internal/http"
	"instructor-core/internal/identity"
	"instructor-core/internal/repository"
	"instructor-core/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	profileRepo := repository.NewPgProfileRepository(pool)
	applicationRepo := repository.NewPgApplicationRepository(pool)

	var (
		resendLimiter = service.NewResendLimiter(cfg.ResendCooldown, cfg.ResendMaxPerWindow)
		revocations   = service.NewMemoryRevocationStore()
		stateHub      interface {
			identity.StateSubscriber
			identity.StatePublisher
		} = identity.NewMemoryStateHub()
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory fallbacks", zap.Error(err))
		} else {
			resendLimiter = service.NewRedisResendLimiter(redisClient, cfg.ResendCooldown, cfg.ResendMaxPerWindow)
			revocations = service.NewRedisRevocationStore(redisClient)
			stateHub = identity.NewRedisStateHub(redisClient, logger)
		}
		cancel()
	}

	idp := identity.NewRESTProvider(cfg.IdentityBaseURL, cfg.IdentityAPIKey, cfg.IdentityTimeout, logger)
	var assertions identity.AssertionVerifier
	if cfg.OIDCIssuer != "" && cfg.OIDCClientID != "" {
		verifier, err := identity.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
		if err != nil {
			logger.Warn("oidc verifier init failed, external sign-in disabled", zap.Error(err))
		} else {
			assertions = verifier
		}
	}

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	publisher := events.NewNoopPublisher()
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaApplicationsTopic, logger)
		if err != nil {
			logger.Warn("kafka publisher init failed", zap.Error(err))
		} else {
			defer kafkaPub.Close()
			publisher = kafkaPub
		}
	}

	blobStore, err := blob.NewDiskStore(cfg.BlobRoot, cfg.BlobPublicURL, cfg.BlobMaxBytes)
	if err != nil {
		logger.Fatal("blob store", zap.Error(err))
	}

	jwtSvc := service.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, cfg.SessionTTL, cfg.RememberTTL, cfg.PendingTTL, revocations)
	linkageSvc := service.NewLinkageService(logger, idp, assertions, profileRepo, resendLimiter)
	detector := service.NewVerificationDetector(logger, idp, stateHub, cfg.VerificationPollInterval, cfg.VerificationMaxBackoff)
	sessionSvc := service.NewSessionService(logger, idp, assertions, profileRepo, applicationRepo, jwtSvc)
	onboardingSvc := service.NewOnboardingService(logger, profileRepo, applicationRepo, blobStore, publisher, emailSender)

	router := apihttp.NewRouter(
		logger,
		jwtSvc,
		apihttp.NewAuthHandler(logger, linkageSvc, detector, sessionSvc, jwtSvc),
		apihttp.NewOnboardingHandler(logger, onboardingSvc, cfg.BlobMaxBytes),
		apihttp.NewIdentityWebhookHandler(logger, stateHub, cfg.IdentityWebhookToken),
		apihttp.NewIPRateLimiter(cfg.SignupRPS, cfg.SignupBurst, 10*time.Minute),
	)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
