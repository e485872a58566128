// Package config manages user-level settings stored at ~/.nebula/config.yaml.
// Values may be overridden by NEBULA_* environment variables, with dots in
// keys replaced by underscores (e.g., NEBULA_ORIGIN_URL).
package config
