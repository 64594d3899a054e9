package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("SESSION_BACKEND", "")
	t.Setenv("SESSION_TTL", "")
	t.Setenv("BOOKING_DAYS_AHEAD", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.SessionBackend != SessionBackendRedis {
		t.Fatalf("expected redis session backend, got %s", cfg.SessionBackend)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("expected 30m idle window, got %s", cfg.SessionTTL)
	}
	if cfg.BookingDaysAhead != 14 {
		t.Fatalf("expected 14 days ahead, got %d", cfg.BookingDaysAhead)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("SESSION_BACKEND", " DynamoDB ")
	t.Setenv("SESSION_TTL", "45m")
	t.Setenv("BOOKING_DAYS_AHEAD", "21")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("REMINDER_LEAD_TIME", "not-a-duration")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.SessionBackend != SessionBackendDynamo {
		t.Fatalf("expected dynamodb backend, got %q", cfg.SessionBackend)
	}
	if cfg.SessionTTL != 45*time.Minute {
		t.Fatalf("expected session ttl override, got %s", cfg.SessionTTL)
	}
	if cfg.BookingDaysAhead != 21 {
		t.Fatalf("expected days ahead override, got %d", cfg.BookingDaysAhead)
	}
	if !cfg.RedisTLS {
		t.Fatalf("expected redis tls enabled")
	}
	if cfg.ReminderLeadTime != 24*time.Hour {
		t.Fatalf("expected invalid duration to fall back to default, got %s", cfg.ReminderLeadTime)
	}
}
