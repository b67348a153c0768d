package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names. The APPLE_* and AXM_FERNET_KEY names are the
// ones used in AxM_Variables.env files, so existing files work unchanged.
const (
	EnvClientID       = "APPLE_CLIENT_ID"
	EnvTeamID         = "APPLE_TEAM_ID"
	EnvKeyID          = "APPLE_KEY_ID"
	EnvPrivateKeyPath = "APPLE_PRIVATE_KEY_PATH"
	EnvScope          = "APPLE_SCOPE"
	EnvCacheKey       = "AXM_CACHE_KEY"
	EnvFernetKey      = "AXM_FERNET_KEY"
	EnvCachePath      = "AXM_CACHE_PATH"
	EnvConfig         = "AXM_CONFIG"
	EnvEnvFile        = "AXM_ENV_FILE"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // AXM_CONFIG: override config file path
	EnvFile    string // AXM_ENV_FILE: override .env file path
	Values     map[string]string
}

// settingVars are the variables that map onto Config fields, in the order
// they are applied. AXM_FERNET_KEY precedes AXM_CACHE_KEY so the new name wins.
var settingVars = []string{
	EnvClientID, EnvTeamID, EnvKeyID, EnvPrivateKeyPath, EnvScope,
	EnvFernetKey, EnvCacheKey, EnvCachePath,
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// Unset and empty variables are omitted from Values.
func ReadEnvOverrides() EnvOverrides {
	values := map[string]string{}

	for _, name := range settingVars {
		if v := os.Getenv(name); v != "" {
			values[name] = v
		}
	}

	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		EnvFile:    os.Getenv(EnvEnvFile),
		Values:     values,
	}
}

// ReadEnvFile parses a dotenv file without touching the process environment.
// A missing file yields (nil, nil) unless required is set.
func ReadEnvFile(path string, required bool, logger *slog.Logger) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			logger.Debug("no env file", slog.String("path", path))
			return nil, nil
		}

		return nil, fmt.Errorf("config: reading env file %s: %w", path, err)
	}

	logger.Debug("loaded env file", slog.String("path", path), slog.Int("keys", len(values)))

	return values, nil
}

// applyEnvValues overlays variable values onto cfg. Empty values are ignored.
func applyEnvValues(cfg *Config, values map[string]string) {
	for _, name := range settingVars {
		v := values[name]
		if v == "" {
			continue
		}

		switch name {
		case EnvClientID:
			cfg.ClientID = v
		case EnvTeamID:
			cfg.TeamID = v
		case EnvKeyID:
			cfg.KeyID = v
		case EnvPrivateKeyPath:
			cfg.PrivateKeyPath = v
		case EnvScope:
			cfg.Scope = v
		case EnvFernetKey, EnvCacheKey:
			cfg.CacheKey = v
		case EnvCachePath:
			cfg.CachePath = v
		}
	}
}
