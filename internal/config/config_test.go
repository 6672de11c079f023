package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != ModeOffline || cfg.HTTPAddr != ":8080" || cfg.DBDriver != "sqlite" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.AutosaveTTL != 7*24*time.Hour {
		t.Fatalf("autosave ttl = %v", cfg.AutosaveTTL)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := "http_addr: \":9090\"\ncors_origins:\n  - https://a.example\n  - https://b.example\nautosave_ttl: 1h\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HTTP_ADDR", ":7070")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":7070" {
		t.Fatalf("env should win over file, got %s", cfg.HTTPAddr)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("cors = %v", cfg.CORSOrigins)
	}
	if cfg.AutosaveTTL != time.Hour {
		t.Fatalf("ttl = %v", cfg.AutosaveTTL)
	}
}

func TestLoadCommaSeparatedEnv(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[0] != "https://a.example" {
		t.Fatalf("cors = %v", cfg.CORSOrigins)
	}
}

func TestOnlineModeRejectsWeakSecret(t *testing.T) {
	t.Setenv("MODE", "online")
	t.Setenv("AUTH_HMAC_SECRET", "short")
	if _, err := Load(t.TempDir()); !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("got %v", err)
	}

	t.Setenv("AUTH_HMAC_SECRET", "0123456789abcdef0123456789abcdef")
	if _, err := Load(t.TempDir()); err != nil {
		t.Fatal(err)
	}
}

func TestValidate(t *testing.T) {
	base := Config{Mode: ModeOffline, DBDriver: "sqlite", BlobDriver: "fs"}
	cases := map[string]func(*Config){
		"mode":  func(c *Config) { c.Mode = "staging" },
		"db":    func(c *Config) { c.DBDriver = "mysql" },
		"blob":  func(c *Config) { c.BlobDriver = "gcs" },
		"minio": func(c *Config) { c.BlobDriver = "minio" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)
			if err := c.Validate(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
