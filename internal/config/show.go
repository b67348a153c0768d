package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as an annotated summary
// to w, for the "config show" command. The cache key is reported only as
// set or unset.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration\n")
	ew.printf("# config file: %s\n", r.ConfigPath)

	if r.EnvFile != "" {
		ew.printf("# env file:    %s\n", r.EnvFile)
	}

	ew.printf("\n[identity]\n")
	ew.printf("  client_id        = %q\n", r.ClientID)
	ew.printf("  team_id          = %q\n", r.TeamID)
	ew.printf("  key_id           = %q\n", r.KeyID)
	ew.printf("  private_key_path = %q\n", r.PrivateKeyPath)
	ew.printf("  scope            = %q\n", r.Scope)

	if r.Scope != "" {
		ew.printf("  # api base: %s\n", r.Scope.BaseURL())
	}

	ew.printf("\n[cache]\n")
	ew.printf("  cache_path = %q\n", r.CachePath)
	ew.printf("  cache_key  = %s\n", setOrUnset(r.CacheKey))

	ew.printf("\n[behavior]\n")
	ew.printf("  log_level              = %q\n", r.LogLevel)
	ew.printf("  page_limit             = %d\n", r.PageLimit)
	ew.printf("  activity_settle        = %q\n", r.ActivitySettle)
	ew.printf("  activity_poll_interval = %q\n", r.ActivityPollInterval)
	ew.printf("  activity_max_polls     = %d\n", r.ActivityMaxPolls)
	ew.printf("  http_timeout           = %q\n", r.HTTPTimeout)

	return ew.err
}

func setOrUnset(s string) string {
	if s == "" {
		return "(unset)"
	}

	return "(set)"
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
