package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.DB.Path != "app.db" || cfg.Log.Level != "info" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Auth.TokenTTL != 12*time.Hour || cfg.Horizon.Inclusive != "left" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `port: "9000"
db:
  path: file.db
log:
  level: warn
auth:
  signing_key: from-file
  token_ttl: 30m
`)
	t.Setenv("TCC_LOG_LEVEL", "error")
	t.Setenv("TCC_AUTH_SIGNING_KEY", "from-env")

	fs := Flags("test")
	if err := fs.Parse([]string{"--config", path, "--port", "9100"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg, err := Load(fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9100" {
		t.Fatalf("flag should win: port=%q", cfg.Port)
	}
	if cfg.Log.Level != "error" || cfg.Auth.SigningKey != "from-env" {
		t.Fatalf("env should win over file: %+v", cfg)
	}
	if cfg.DB.Path != "file.db" || cfg.Auth.TokenTTL != 30*time.Minute {
		t.Fatalf("file values lost: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	fs := Flags("test")
	if err := fs.Parse([]string{"--config", filepath.Join(t.TempDir(), "missing.yml")}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := Load(fs); err == nil {
		t.Fatal("expected error for an explicit missing file")
	}

	fs = Flags("test")
	path := writeConfig(t, "auth:\n  token_ttl: 0s\n")
	if err := fs.Parse([]string{"--config", path}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := Load(fs); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err=%v; want ErrInvalid", err)
	}
}
