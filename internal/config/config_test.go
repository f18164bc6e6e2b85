package config

import (
	"os"
	"testing"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	os.Unsetenv("DATABASE_URL")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestLoadDefaults(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/hms_test")
	defer os.Unsetenv("DATABASE_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("Port = %q, want 8000", cfg.Port)
	}
	if !cfg.IsDev() {
		t.Error("default ENV should be development")
	}
	if cfg.UploadMaxBytes != 10*1024*1024 {
		t.Errorf("UploadMaxBytes = %d, want 10MiB", cfg.UploadMaxBytes)
	}
	if cfg.DBMaxConns != 20 || cfg.DBMinConns != 5 {
		t.Errorf("pool sizes = %d/%d, want 20/5", cfg.DBMaxConns, cfg.DBMinConns)
	}
}

func TestValidateRequiresIssuerOutsideDev(t *testing.T) {
	cfg := &Config{Env: "production", UploadMaxBytes: 1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for production without AUTH_ISSUER")
	}
	cfg.AuthIssuer = "https://auth.example.org"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateUploadMax(t *testing.T) {
	cfg := &Config{Env: "development", UploadMaxBytes: 0}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive UPLOAD_MAX_BYTES")
	}
}
