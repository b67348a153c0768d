package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tonimelisma/axm-go/internal/credentials"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions, since a silently ignored typo is hard to debug.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with default values. This supports running from
// environment variables alone.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> .env file -> environment variables -> CLI flags.
// An explicitly named config or env file must exist; default locations are
// optional.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Resolved, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// 1. Config path: CLI > env > default.
	cfgPath, explicitCfg := pick(cli.ConfigPath, env.ConfigPath, DefaultConfigPath())

	var (
		cfg *Config
		err error
	)

	if explicitCfg {
		cfg, err = Load(cfgPath)
	} else {
		cfg, err = LoadOrDefault(cfgPath)
	}

	if err != nil {
		return nil, err
	}

	logger.Debug("config file resolved", slog.String("path", cfgPath), slog.Bool("explicit", explicitCfg))

	// 2. .env file, below the real environment.
	envPath, explicitEnv := pick(cli.EnvFile, env.EnvFile, DefaultEnvFile())

	fileValues, err := ReadEnvFile(envPath, explicitEnv, logger)
	if err != nil {
		return nil, err
	}

	applyEnvValues(cfg, fileValues)

	// 3. Environment variables.
	applyEnvValues(cfg, env.Values)

	// 4. CLI flags.
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	r := newResolved(cfg)
	r.ConfigPath = cfgPath

	if fileValues != nil {
		r.EnvFile = envPath
	}

	return r, nil
}

// pick returns the first non-empty of flag and env, reporting it as
// explicit, or fallback otherwise.
func pick(flag, env, fallback string) (string, bool) {
	if flag != "" {
		return flag, true
	}

	if env != "" {
		return env, true
	}

	return fallback, false
}

// newResolved converts a validated Config. Parse errors cannot occur here
// because Validate already checked every field.
func newResolved(cfg *Config) *Resolved {
	r := &Resolved{
		ClientID:         strings.TrimSpace(cfg.ClientID),
		TeamID:           strings.TrimSpace(cfg.TeamID),
		KeyID:            strings.TrimSpace(cfg.KeyID),
		PrivateKeyPath:   expandHome(strings.TrimSpace(cfg.PrivateKeyPath)),
		CacheKey:         strings.TrimSpace(cfg.CacheKey),
		CachePath:        expandHome(strings.TrimSpace(cfg.CachePath)),
		LogLevel:         strings.ToLower(cfg.LogLevel),
		PageLimit:        cfg.PageLimit,
		ActivityMaxPolls: cfg.ActivityMaxPolls,
	}

	if cfg.Scope != "" {
		r.Scope, _ = credentials.ParseScope(cfg.Scope)
	}

	if r.CachePath == "" {
		r.CachePath = DefaultCachePath()
	}

	r.ActivitySettle, _ = time.ParseDuration(cfg.ActivitySettle)
	r.ActivityPollInterval, _ = time.ParseDuration(cfg.ActivityPollInterval)
	r.HTTPTimeout, _ = time.ParseDuration(cfg.HTTPTimeout)

	return r
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}

	return home + p[1:]
}
