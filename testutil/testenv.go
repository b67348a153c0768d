// Package testutil provides shared environment helpers for the live E2E
// tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
)

// LiveCredentialVars are the settings a live run needs.
var LiveCredentialVars = []string{
	"APPLE_CLIENT_ID",
	"APPLE_KEY_ID",
	"APPLE_PRIVATE_KEY_PATH",
	"APPLE_SCOPE",
}

// LoadDotEnv reads KEY=VALUE pairs from a .env file into the process
// environment. A missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	if _, err := os.Stat(envPath); err != nil {
		return
	}

	if err := godotenv.Load(envPath); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: parsing %s: %v\n", envPath, err)
		os.Exit(1)
	}
}

// MissingVars returns the names in vars that are unset or empty.
func MissingVars(vars []string) []string {
	var missing []string

	for _, v := range vars {
		if strings.TrimSpace(os.Getenv(v)) == "" {
			missing = append(missing, v)
		}
	}

	return missing
}

// ValidateAllowlist crashes the process if AXM_ALLOWED_TEST_CLIENTS is not
// set or does not list the configured client ID. Live tests talk to a real
// organization, so the client must be opted in explicitly.
func ValidateAllowlist() {
	allowlist := os.Getenv("AXM_ALLOWED_TEST_CLIENTS")
	if allowlist == "" {
		fmt.Fprintln(os.Stderr, "FATAL: AXM_ALLOWED_TEST_CLIENTS not set")
		fmt.Fprintln(os.Stderr, "Example: AXM_ALLOWED_TEST_CLIENTS=BUSINESSAPI.0000-0000")
		os.Exit(1)
	}

	clientID := strings.TrimSpace(os.Getenv("APPLE_CLIENT_ID"))

	allowed := strings.Split(allowlist, ",")
	for i := range allowed {
		allowed[i] = strings.TrimSpace(allowed[i])
	}

	if !slices.Contains(allowed, clientID) {
		fmt.Fprintf(os.Stderr, "FATAL: APPLE_CLIENT_ID=%q is not in AXM_ALLOWED_TEST_CLIENTS=%q\n", clientID, allowlist)
		os.Exit(1)
	}
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}
