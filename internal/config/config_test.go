package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDecodeDefaults(t *testing.T) {
	t.Setenv("NEBULA_HOME", t.TempDir())
	v := viper.New()
	setup(v)

	cfg, err := decode(v)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Origin.Timeout != 30*time.Second {
		t.Errorf("Origin.Timeout = %v, want 30s", cfg.Origin.Timeout)
	}
	if cfg.Sync.Concurrency != 1 {
		t.Errorf("Sync.Concurrency = %d, want 1", cfg.Sync.Concurrency)
	}
	if cfg.Sync.Interval != 15*time.Minute {
		t.Errorf("Sync.Interval = %v, want 15m", cfg.Sync.Interval)
	}
	if cfg.Storage.IndexBackend != "json" {
		t.Errorf("Storage.IndexBackend = %q, want %q", cfg.Storage.IndexBackend, "json")
	}
	if want := filepath.Join(Dir(), "bundles"); cfg.Storage.Root != want {
		t.Errorf("Storage.Root = %q, want %q", cfg.Storage.Root, want)
	}
}

func TestDecodeEnvOverride(t *testing.T) {
	t.Setenv("NEBULA_HOME", t.TempDir())
	t.Setenv("NEBULA_ORIGIN_URL", "https://mirror.example.com")
	t.Setenv("NEBULA_SYNC_CONCURRENCY", "8")
	t.Setenv("NEBULA_STORAGE_INDEX_BACKEND", "sqlite")
	v := viper.New()
	setup(v)

	cfg, err := decode(v)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Origin.URL != "https://mirror.example.com" {
		t.Errorf("Origin.URL = %q", cfg.Origin.URL)
	}
	if cfg.Sync.Concurrency != 8 {
		t.Errorf("Sync.Concurrency = %d, want 8", cfg.Sync.Concurrency)
	}
	if cfg.Storage.IndexBackend != "sqlite" {
		t.Errorf("Storage.IndexBackend = %q, want sqlite", cfg.Storage.IndexBackend)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		Storage: Storage{Root: "/tmp/b", IndexBackend: "json"},
		Sync:    Sync{Concurrency: 1, Interval: time.Minute},
		Logging: Logging{Level: "info", Format: "json"},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate(valid) = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"backend", func(c *Config) { c.Storage.IndexBackend = "etcd" }, "index_backend"},
		{"concurrency", func(c *Config) { c.Sync.Concurrency = 0 }, "concurrency"},
		{"interval", func(c *Config) { c.Sync.Interval = 0 }, "interval"},
		{"format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"root", func(c *Config) { c.Storage.Root = "" }, "storage.root"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestSetWritesOnlyExplicitKeys(t *testing.T) {
	home := t.TempDir()
	t.Setenv("NEBULA_HOME", home)

	if err := Set("origin.url", "https://cdn.example.com"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := Set("sync.concurrency", "4"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(home, "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.Contains(content, "https://cdn.example.com") {
		t.Errorf("config file missing origin url:\n%s", content)
	}
	if strings.Contains(content, "index_backend") {
		t.Errorf("config file contains defaults:\n%s", content)
	}
	if Get("sync.concurrency") != "4" {
		t.Errorf("Get(sync.concurrency) = %q, want 4", Get("sync.concurrency"))
	}
}

func TestSetUnknownKey(t *testing.T) {
	t.Setenv("NEBULA_HOME", t.TempDir())
	if err := Set("no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}
