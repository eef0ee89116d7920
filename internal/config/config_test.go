package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  port: 9443
  host: "127.0.0.1"
files:
  root: "/srv/files"
watcher:
  debounce: 2s
auth:
  token_ttl: 15m
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9443 {
		t.Errorf("Server.Port = %d, want 9443", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Files.Root != "/srv/files" {
		t.Errorf("Files.Root = %q, want %q", cfg.Files.Root, "/srv/files")
	}
	if cfg.Watcher.Debounce != 2*time.Second {
		t.Errorf("Watcher.Debounce = %v, want 2s", cfg.Watcher.Debounce)
	}
	if cfg.Auth.TokenTTL != 15*time.Minute {
		t.Errorf("Auth.TokenTTL = %v, want 15m", cfg.Auth.TokenTTL)
	}

	// Defaults should still be applied for unspecified fields.
	if cfg.Files.MaxUploadBytes != 64*1024*1024 {
		t.Errorf("Files.MaxUploadBytes = %d, want default 64MiB", cfg.Files.MaxUploadBytes)
	}
	if cfg.Database.Path == "" {
		t.Error("Database.Path should have a default, got empty")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(cfgPath, []byte(":::not valid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cfgPath)
	if err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
}

func TestTLSEnabled(t *testing.T) {
	tests := []struct {
		name string
		cert string
		key  string
		want bool
	}{
		{"both set", "/etc/cert.pem", "/etc/key.pem", true},
		{"cert only", "/etc/cert.pem", "", false},
		{"key only", "", "/etc/key.pem", false},
		{"neither", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Server.CertFile = tt.cert
			cfg.Server.KeyFile = tt.key
			if got := cfg.TLSEnabled(); got != tt.want {
				t.Errorf("TLSEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}
