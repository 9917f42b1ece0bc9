package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	JWTSecret   string        `env:"JWT_SECRET,required,notEmpty"`
	JWTIssuer   string        `env:"JWT_ISSUER" envDefault:"instructor-core"`
	SessionTTL  time.Duration `env:"SESSION_TTL" envDefault:"12h"`
	RememberTTL time.Duration `env:"SESSION_REMEMBER_TTL" envDefault:"720h"`
	PendingTTL  time.Duration `env:"PENDING_TICKET_TTL" envDefault:"2h"`

	IdentityBaseURL      string        `env:"IDP_BASE_URL,required,notEmpty"`
	IdentityAPIKey       string        `env:"IDP_API_KEY,required,notEmpty"`
	IdentityTimeout      time.Duration `env:"IDP_TIMEOUT" envDefault:"10s"`
	IdentityWebhookToken string        `env:"IDP_WEBHOOK_TOKEN"`
	// OIDCIssuer debe ser el emisor de tokens del mismo proveedor de identidad: su sub se usa en SendVerification y en el sondeo.
	OIDCIssuer           string        `env:"OIDC_ISSUER"`
	OIDCClientID         string        `env:"OIDC_CLIENT_ID"`

	VerificationPollInterval time.Duration `env:"VERIFICATION_POLL_INTERVAL" envDefault:"3s"`
	VerificationMaxBackoff   time.Duration `env:"VERIFICATION_MAX_BACKOFF" envDefault:"30s"`
	ResendCooldown           time.Duration `env:"RESEND_COOLDOWN" envDefault:"60s"`
	ResendMaxPerWindow       int           `env:"RESEND_MAX_PER_WINDOW" envDefault:"1"`

	BlobRoot      string `env:"BLOB_ROOT" envDefault:"./data/blobs"`
	BlobPublicURL string `env:"BLOB_PUBLIC_URL" envDefault:"http://localhost:8080/files"`
	BlobMaxBytes  int64  `env:"BLOB_MAX_BYTES" envDefault:"10485760"`

	SignupRPS   float64 `env:"SIGNUP_RPS" envDefault:"2"`
	SignupBurst int     `env:"SIGNUP_BURST" envDefault:"5"`

	KafkaBrokers           []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaApplicationsTopic string   `env:"KAFKA_APPLICATIONS_TOPIC" envDefault:"instructor.applications"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
