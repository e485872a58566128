// Package branding provides compile-time identity values for the CLI.
//
// Values come from the embedded branding.yaml, overlaid on hard defaults, so
// a fork can rename the binary, home directory and environment prefix
// without touching code.
package branding

import (
	_ "embed"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

//go:embed branding.yaml
var rawBranding []byte

var (
	once     sync.Once
	defaults brand
)

type brand struct {
	CLIName       string `yaml:"cli_name"`
	DisplayName   string `yaml:"display_name"`
	Description   string `yaml:"description"`
	HomeDir       string `yaml:"home_dir"`
	EnvPrefix     string `yaml:"env_prefix"`
	GoModule      string `yaml:"go_module"`
	DefaultOrigin string `yaml:"default_origin"`
}

func load() {
	once.Do(func() {
		defaults = brand{
			CLIName:       "nebula",
			DisplayName:   "Nebula",
			Description:   "Bundle sync and dependency-resolution engine",
			HomeDir:       ".nebula",
			EnvPrefix:     "NEBULA",
			GoModule:      "github.com/nebula-labs/nebula",
			DefaultOrigin: "",
		}
		_ = yaml.Unmarshal(rawBranding, &defaults)
	})
}

// CLIName returns the root command name (e.g., "nebula").
func CLIName() string { load(); return defaults.CLIName }

// DisplayName returns the human-readable product name.
func DisplayName() string { load(); return defaults.DisplayName }

// Description returns the short product description.
func Description() string { load(); return defaults.Description }

// HomeDir returns the dot-directory name under $HOME (e.g., ".nebula").
func HomeDir() string { load(); return defaults.HomeDir }

// EnvPrefix returns the environment variable prefix (e.g., "NEBULA").
func EnvPrefix() string { load(); return defaults.EnvPrefix }

// GoModule returns the Go module path.
func GoModule() string { load(); return defaults.GoModule }

// DefaultOrigin returns the catalog origin used when none is configured.
func DefaultOrigin() string { load(); return defaults.DefaultOrigin }

// EnvVar returns a fully qualified env var name, e.g., EnvVar("HOME") → "NEBULA_HOME".
func EnvVar(suffix string) string {
	load()
	return defaults.EnvPrefix + "_" + strings.ToUpper(suffix)
}
