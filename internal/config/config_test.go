package config

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/instructors")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("IDP_BASE_URL", "https://idp.example.com/v1")
	t.Setenv("IDP_API_KEY", "key")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPPort != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.HTTPPort)
	}
	if cfg.ResendCooldown != time.Minute {
		t.Fatalf("expected resend cooldown 1m, got %v", cfg.ResendCooldown)
	}
	if cfg.RememberTTL != 720*time.Hour {
		t.Fatalf("expected remember ttl 720h, got %v", cfg.RememberTTL)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers: %+v", cfg.KafkaBrokers)
	}
}

func TestLoadConfig_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("IDP_BASE_URL", "")
	t.Setenv("IDP_API_KEY", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for missing required variables")
	}
}
