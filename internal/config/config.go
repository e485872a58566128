package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nebula-labs/nebula/internal/branding"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Config is the decoded configuration handed to constructors.
type Config struct {
	Origin  Origin  `mapstructure:"origin"`
	Storage Storage `mapstructure:"storage"`
	Sync    Sync    `mapstructure:"sync"`
	Logging Logging `mapstructure:"logging"`
	Metrics Metrics `mapstructure:"metrics"`
}

// Origin configures the catalog client.
type Origin struct {
	URL       string        `mapstructure:"url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// Storage configures where payloads and the index live.
type Storage struct {
	Root         string `mapstructure:"root"`
	IndexBackend string `mapstructure:"index_backend"`
}

// Sync configures batch synchronization.
type Sync struct {
	Concurrency  int           `mapstructure:"concurrency"`
	PruneOrphans bool          `mapstructure:"prune_orphans"`
	Interval     time.Duration `mapstructure:"interval"`
}

// Logging configures the zap logger.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Metrics configures the daemon status server.
type Metrics struct {
	Addr string `mapstructure:"addr"`
}

// Dir returns the config directory: $NEBULA_HOME when set, else ~/.nebula.
func Dir() string {
	if v := os.Getenv(branding.EnvVar("HOME")); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// FilePath returns the full path to the config file.
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

func defaultValues() map[string]any {
	return map[string]any{
		"origin.url":            branding.DefaultOrigin(),
		"origin.timeout":        "30s",
		"origin.user_agent":     branding.CLIName() + "-sync",
		"storage.root":          filepath.Join(Dir(), "bundles"),
		"storage.index_backend": "json",
		"sync.concurrency":      1,
		"sync.prune_orphans":    false,
		"sync.interval":         "15m",
		"logging.level":         "info",
		"logging.format":        "console",
		"metrics.addr":          ":9464",
	}
}

// Keys returns every supported configuration key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(defaultValues()))
	for k := range defaultValues() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func setup(v *viper.Viper) {
	for k, val := range defaultValues() {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(branding.EnvPrefix())
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load initializes Viper to read from the config file and environment.
func Load() {
	setup(viper.GetViper())
	viper.SetConfigFile(FilePath())
	viper.SetConfigType(fileType)

	// Ignore error if config file doesn't exist yet.
	_ = viper.ReadInConfig()
}

// Decode returns the loaded configuration, validated.
func Decode() (*Config, error) {
	return decode(viper.GetViper())
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var problems []string
	if c.Origin.Timeout < 0 {
		problems = append(problems, "origin.timeout must not be negative")
	}
	if c.Storage.Root == "" {
		problems = append(problems, "storage.root is required")
	}
	switch c.Storage.IndexBackend {
	case "json", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("storage.index_backend %q must be json or sqlite", c.Storage.IndexBackend))
	}
	if c.Sync.Concurrency < 1 {
		problems = append(problems, "sync.concurrency must be at least 1")
	}
	if c.Sync.Interval <= 0 {
		problems = append(problems, "sync.interval must be positive")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be json or console", c.Logging.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Get returns a config value by key. Returns empty string if not set.
func Get(key string) string {
	return viper.GetString(key)
}

// Set writes a config key-value pair and saves the config file. Only keys
// listed by Keys are accepted.
func Set(key, value string) error {
	if _, ok := defaultValues()[key]; !ok {
		return fmt.Errorf("unknown config key %q (known keys: %s)", key, strings.Join(Keys(), ", "))
	}
	if err := EnsureDir(); err != nil {
		return err
	}

	// Write through a fresh instance so defaults are not persisted.
	file := viper.New()
	file.SetConfigFile(FilePath())
	file.SetConfigType(fileType)
	if _, err := os.Stat(FilePath()); err == nil {
		if err := file.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	file.Set(key, value)

	if err := file.WriteConfigAs(FilePath()); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	viper.Set(key, value)
	return nil
}
