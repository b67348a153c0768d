package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tonimelisma/axm-go/internal/credentials"
)

// Validation range constants.
const (
	minPageLimit        = 1
	maxPageLimit        = 1000
	minActivitySettle   = 0
	minPollInterval     = 1 * time.Second
	minActivityMaxPolls = 1
	maxActivityMaxPolls = 1000
	minHTTPTimeout      = 1 * time.Second
)

// validLogLevels are the accepted log_level values.
var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// can fix every problem in one pass. Missing identity fields are not errors
// here; see Resolved.RequireCredentials.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Scope != "" {
		if _, err := credentials.ParseScope(cfg.Scope); err != nil {
			errs = append(errs, fmt.Errorf("scope: %w", err))
		}
	}

	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", cfg.LogLevel))
	}

	if cfg.PageLimit < minPageLimit || cfg.PageLimit > maxPageLimit {
		errs = append(errs, fmt.Errorf("page_limit: must be between %d and %d, got %d", minPageLimit, maxPageLimit, cfg.PageLimit))
	}

	if cfg.ActivityMaxPolls < minActivityMaxPolls || cfg.ActivityMaxPolls > maxActivityMaxPolls {
		errs = append(errs, fmt.Errorf("activity_max_polls: must be between %d and %d, got %d",
			minActivityMaxPolls, maxActivityMaxPolls, cfg.ActivityMaxPolls))
	}

	errs = append(errs, validateDuration("activity_settle", cfg.ActivitySettle, minActivitySettle)...)
	errs = append(errs, validateDuration("activity_poll_interval", cfg.ActivityPollInterval, minPollInterval)...)
	errs = append(errs, validateDuration("http_timeout", cfg.HTTPTimeout, minHTTPTimeout)...)

	return errors.Join(errs...)
}

func validateDuration(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be at least %s, got %s", field, minimum, d)}
	}

	return nil
}

// RequireCredentials reports every identity setting an API call needs but
// the resolved configuration lacks. Commands that only touch local state
// skip this check.
func (r *Resolved) RequireCredentials() error {
	var errs []error

	required := []struct {
		value string
		key   string
		env   string
	}{
		{r.ClientID, "client_id", EnvClientID},
		{r.KeyID, "key_id", EnvKeyID},
		{r.PrivateKeyPath, "private_key_path", EnvPrivateKeyPath},
		{r.Scope.String(), "scope", EnvScope},
		{r.CacheKey, "cache_key", EnvCacheKey},
	}

	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			errs = append(errs, fmt.Errorf("%s: not set (config key %s or env %s)", f.key, f.key, f.env))
		}
	}

	return errors.Join(errs...)
}
