package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "axm-go"

// File names inside the application directories.
const (
	configFileName = "config.toml"
	cacheFileName  = "token.cache"
	// envFileName is the file the vendor scripts read their settings from.
	envFileName = "AxM_Variables.env"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/axm-go).
// On macOS, uses ~/Library/Application Support/axm-go.
// Other platforms fall back to ~/.config/axm-go.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_CONFIG_HOME", home, ".config")
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for persisted state
// (the token cache).
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/axm-go).
// On macOS, config and data share ~/Library/Application Support/axm-go.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_DATA_HOME", home, filepath.Join(".local", "share"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

func xdgDir(envVar, home, fallback string) string {
	if xdg := os.Getenv(envVar); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, fallback, appName)
}

// DefaultConfigPath returns the full path to the default config file.
// This is the fallback when neither AXM_CONFIG nor --config is specified.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// DefaultCachePath returns the default token cache location.
func DefaultCachePath() string {
	dir := DefaultDataDir()
	if dir == "" {
		return cacheFileName
	}

	return filepath.Join(dir, cacheFileName)
}

// DefaultEnvFile returns the .env file to read when none is specified:
// AxM_Variables.env in the working directory if present, otherwise the one
// in the config directory. The result may not exist.
func DefaultEnvFile() string {
	if _, err := os.Stat(envFileName); err == nil {
		return envFileName
	}

	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, envFileName)
}
