// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for axm-go. Settings pass through a
// five-layer override chain: defaults -> config file -> .env file ->
// environment -> CLI flags.
package config

import (
	"time"

	"github.com/tonimelisma/axm-go/internal/credentials"
)

// Config is the flat top-level structure parsed from a TOML file. Durations
// are kept as strings ("30s", "2m") and parsed during resolution.
type Config struct {
	ClientID       string `toml:"client_id"`
	TeamID         string `toml:"team_id"`
	KeyID          string `toml:"key_id"`
	PrivateKeyPath string `toml:"private_key_path"`
	Scope          string `toml:"scope"`

	CacheKey  string `toml:"cache_key"`
	CachePath string `toml:"cache_path"`

	LogLevel string `toml:"log_level"`

	PageLimit            int    `toml:"page_limit"`
	ActivitySettle       string `toml:"activity_settle"`
	ActivityPollInterval string `toml:"activity_poll_interval"`
	ActivityMaxPolls     int    `toml:"activity_max_polls"`
	HTTPTimeout          string `toml:"http_timeout"`
}

// CLIOverrides holds values from CLI flags that override every other layer.
// Empty strings mean "not specified".
type CLIOverrides struct {
	ConfigPath string // --config
	EnvFile    string // --env-file
	LogLevel   string // derived from --verbose/--debug/--quiet
}

// Resolved is the final configuration after every override layer, with
// durations parsed and the scope normalized. It is what the CLI consumes.
type Resolved struct {
	ClientID       string            `json:"client_id"`
	TeamID         string            `json:"team_id"`
	KeyID          string            `json:"key_id"`
	PrivateKeyPath string            `json:"private_key_path"`
	Scope          credentials.Scope `json:"scope"`

	// CacheKey is the token cache secret. Never print it.
	CacheKey  string `json:"-"`
	CachePath string `json:"cache_path"`

	LogLevel string `json:"log_level"`

	PageLimit            int           `json:"page_limit"`
	ActivitySettle       time.Duration `json:"activity_settle"`
	ActivityPollInterval time.Duration `json:"activity_poll_interval"`
	ActivityMaxPolls     int           `json:"activity_max_polls"`
	HTTPTimeout          time.Duration `json:"http_timeout"`

	// Sources record where the file layers came from, for diagnostics.
	ConfigPath string `json:"config_path"`
	EnvFile    string `json:"env_file,omitempty"`
}

// CredentialSource converts the resolved identity settings into the input
// expected by credentials.Load.
func (r *Resolved) CredentialSource() credentials.Source {
	return credentials.Source{
		ClientID:       r.ClientID,
		TeamID:         r.TeamID,
		KeyID:          r.KeyID,
		Scope:          r.Scope.String(),
		PrivateKeyPath: r.PrivateKeyPath,
	}
}
