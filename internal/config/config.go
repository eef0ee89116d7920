package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Files    FilesConfig    `yaml:"files"`
	Watcher  WatcherConfig  `yaml:"watcher"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// CertFile/KeyFile enable TLS when both are set.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type FilesConfig struct {
	// Root is the directory tree served to clients. Every user-visible path
	// is resolved under it.
	Root           string `yaml:"root"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type WatcherConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

type AuthConfig struct {
	TokenTTL time.Duration `yaml:"token_ttl"`
	// CacheDir is the badger directory holding the token cache.
	CacheDir string `yaml:"cache_dir"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8443,
		},
		Files: FilesConfig{
			Root:           "./files",
			MaxUploadBytes: 64 * 1024 * 1024,
		},
		Watcher: WatcherConfig{
			Debounce: time.Second,
		},
		Auth: AuthConfig{
			TokenTTL: 30 * time.Minute,
			CacheDir: "./tokens",
		},
		Database: DatabaseConfig{
			Path: "./users.db",
		},
	}
}

// TLSEnabled reports whether both certificate and key paths are configured.
func (c *Config) TLSEnabled() bool {
	return c.Server.CertFile != "" && c.Server.KeyFile != ""
}
