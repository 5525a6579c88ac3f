package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	doc := `
website_url = "https://shop.example.test/"
engine = "rod"
headless = false
max_search_attempts = 5

[timeouts]
search = "20s"
popup = "bogus"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SHOPBOT_ENGINE", "playwright")
	t.Setenv("SHOPBOT_DATA_DIR", "")

	cfg, err := Load(path, filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WebsiteURL != "https://shop.example.test/" {
		t.Fatalf("website: %s", cfg.WebsiteURL)
	}
	if cfg.Engine != "playwright" {
		t.Fatalf("env should override file engine, got %s", cfg.Engine)
	}
	if cfg.Headless {
		t.Fatalf("expected headless=false from file")
	}
	if cfg.MaxSearchAttempts != 5 {
		t.Fatalf("attempts: %d", cfg.MaxSearchAttempts)
	}
	if cfg.Timeouts.Search != 20*time.Second {
		t.Fatalf("search timeout: %s", cfg.Timeouts.Search)
	}
	if cfg.Timeouts.Popup != 3*time.Second {
		t.Fatalf("invalid duration should keep default, got %s", cfg.Timeouts.Popup)
	}
	if cfg.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("data dir override: %s", cfg.DataDir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml"), ""); err == nil {
		t.Fatalf("expected error for explicit missing file")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.MaxSearchAttempts != 3 || cfg.InteractiveSearchAttempts != 0 {
		t.Fatalf("unexpected attempt defaults: %+v", cfg)
	}
	if cfg.Timeouts.Confirmation != 15*time.Second || cfg.Timeouts.Popup != 3*time.Second {
		t.Fatalf("unexpected timeout defaults: %+v", cfg.Timeouts)
	}
	if !cfg.Headless {
		t.Fatalf("expected headless by default")
	}
}

func TestLoadRejectsUnboundedProgrammaticSearch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("max_search_attempts = 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path, ""); err == nil {
		t.Fatalf("expected error for max_search_attempts = 0 in file")
	}

	empty := filepath.Join(t.TempDir(), "empty.toml")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SHOPBOT_MAX_SEARCH_ATTEMPTS", "0")
	if _, err := Load(empty, ""); err == nil {
		t.Fatalf("expected error for SHOPBOT_MAX_SEARCH_ATTEMPTS=0")
	}
}

func TestLoadAllowsUnboundedInteractiveSearch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("interactive_search_attempts = 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.InteractiveSearchAttempts != 0 {
		t.Fatalf("expected unbounded interactive search, got %d", cfg.InteractiveSearchAttempts)
	}
	path = filepath.Join(t.TempDir(), "negative.toml")
	if err := os.WriteFile(path, []byte("interactive_search_attempts = -1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path, ""); err == nil {
		t.Fatalf("expected error for negative interactive attempts")
	}
}
