package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("PORT", "")
	t.Setenv("JWT_ACCESS_TTL", "")
	t.Setenv("STORE_DRIVER", "")

	cfg := Load()

	if cfg.Env != "dev" {
		t.Fatalf("got env %q, want dev", cfg.Env)
	}
	if cfg.Port != 8080 {
		t.Fatalf("got port %d, want 8080", cfg.Port)
	}
	if cfg.JWTAccessTTL != 7*24*time.Hour {
		t.Fatalf("got ttl %s, want 168h", cfg.JWTAccessTTL)
	}
	if cfg.UsesMemoryStore() {
		t.Fatalf("expected postgres store by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("CLASSIFIER_TIMEOUT", "750ms")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("MAX_UPLOAD_MB", "2")

	cfg := Load()

	if cfg.Port != 9090 {
		t.Fatalf("got port %d, want 9090", cfg.Port)
	}
	if !cfg.UsesMemoryStore() {
		t.Fatalf("expected memory store")
	}
	if cfg.ClassifierTimeout != 750*time.Millisecond {
		t.Fatalf("got classifier timeout %s", cfg.ClassifierTimeout)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSOrigins)
	}
	if cfg.MaxUploadBytes() != 2<<20 {
		t.Fatalf("got max upload %d", cfg.MaxUploadBytes())
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("UPLOAD_TIMEOUT", "-3s")

	cfg := Load()

	if cfg.Port != 8080 {
		t.Fatalf("got port %d, want fallback 8080", cfg.Port)
	}
	if cfg.UploadTimeout != 10*time.Second {
		t.Fatalf("got upload timeout %s, want fallback", cfg.UploadTimeout)
	}
}
