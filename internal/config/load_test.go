package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
telegram:
  token: "tok"
source:
  url: "https://forms.example.com"
refresh:
  interval: "10m"
notify:
  window_start: "09:00"
  chunk_size: 500
storage:
  driver: "memory"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source.URL != "https://forms.example.com" {
		t.Fatalf("url = %q", cfg.Source.URL)
	}
	if cfg.Refresh.Interval != "10m" {
		t.Fatalf("interval = %q", cfg.Refresh.Interval)
	}
	if cfg.Notify.ChunkSize != 500 {
		t.Fatalf("chunk size = %d", cfg.Notify.ChunkSize)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "config.yaml", `
telegram:
  token: "tok"
source:
  url: "https://x"
notifer:
  window_start: "09:00"
`)
	_, err := Load(path)
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected config Error for misspelled key, got %v", err)
	}
}

func TestLoadRequiresSourceURL(t *testing.T) {
	path := writeFile(t, "config.yaml", `
telegram:
  token: "tok"
source:
  url: ""
`)
	_, err := Load(path)
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Field != "source.url" {
		t.Fatalf("expected source.url error, got %v", err)
	}
}

func TestLoadTokenFromEnv(t *testing.T) {
	t.Setenv(TokenEnv, "env-token")
	path := writeFile(t, "config.yaml", `
telegram: {}
source:
  url: "https://x"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("token = %q, want env override", cfg.Telegram.Token)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeFile(t, "config.yaml", `
telegram:
  token: "tok"
source:
  url: "https://x"
refresh:
  interval: "ten minutes"
`)
	_, err := Load(path)
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Field != "refresh.interval" {
		t.Fatalf("expected refresh.interval error, got %v", err)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", DefaultRefreshInterval)
	if err != nil || d != DefaultRefreshInterval {
		t.Fatalf("empty: d=%v err=%v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "45s", DefaultRefreshInterval)
	if err != nil || d.Seconds() != 45 {
		t.Fatalf("explicit: d=%v err=%v", d, err)
	}
}
