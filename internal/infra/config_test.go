package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("PORT", "")
	t.Setenv("EDIT_HISTORY_LIMIT", "")
	t.Setenv("EDIT_SESSION_TTL_SECONDS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port mismatch: got %q want %q", cfg.Port, "8080")
	}
	if cfg.EditHistoryLimit != 10 {
		t.Fatalf("EditHistoryLimit mismatch: got %d want 10", cfg.EditHistoryLimit)
	}
	if cfg.EditSessionTTL != 30*time.Minute {
		t.Fatalf("EditSessionTTL mismatch: got %s", cfg.EditSessionTTL)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("CORSOrigins mismatch: %#v", cfg.CORSOrigins)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestLoadConfigRejectsTinyHistoryLimit(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("EDIT_HISTORY_LIMIT", "1")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for EDIT_HISTORY_LIMIT below 2")
	}
}

func TestLoadConfigTrimsCORSOrigins(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("CORS_ORIGINS", " https://studio.example.com , http://localhost:3000 ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	want := []string{"https://studio.example.com", "http://localhost:3000"}
	if len(cfg.CORSOrigins) != len(want) {
		t.Fatalf("CORSOrigins mismatch: got %#v want %#v", cfg.CORSOrigins, want)
	}
	for i := range want {
		if cfg.CORSOrigins[i] != want[i] {
			t.Fatalf("CORSOrigins[%d] = %q, want %q", i, cfg.CORSOrigins[i], want[i])
		}
	}
}
