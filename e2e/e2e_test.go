//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/axm-go/testutil"
)

var (
	binaryPath string
	tempRoot   string
)

func TestMain(m *testing.M) {
	moduleRoot := testutil.FindModuleRoot("..")
	testutil.LoadDotEnv(filepath.Join(moduleRoot, ".env"))

	if missing := testutil.MissingVars(testutil.LiveCredentialVars); len(missing) > 0 {
		fmt.Fprintf(os.Stderr, "skipping e2e: %s not set\n", strings.Join(missing, ", "))
		os.Exit(0)
	}

	testutil.ValidateAllowlist()

	var err error

	tempRoot, err = os.MkdirTemp("", "axm-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp dir: %v\n", err)
		os.Exit(1)
	}

	binaryPath = filepath.Join(tempRoot, "axm-go")

	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Dir = moduleRoot
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "building binary: %v\n", err)
		os.Exit(1)
	}

	// Keep the token cache and any config lookups away from the real home.
	os.Setenv("XDG_CONFIG_HOME", filepath.Join(tempRoot, "config"))
	os.Setenv("XDG_DATA_HOME", filepath.Join(tempRoot, "data"))
	os.Setenv("AXM_CACHE_KEY", "e2e-cache-key")
	os.Unsetenv("AXM_FERNET_KEY")
	os.Unsetenv("AXM_CONFIG")

	code := m.Run()

	os.RemoveAll(tempRoot)
	os.Exit(code)
}

func runCLI(t *testing.T, args ...string) (string, string) {
	t.Helper()

	cmd := exec.Command(binaryPath, args...)
	cmd.Dir = t.TempDir()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		t.Fatalf("CLI command %v failed: %v\nstdout: %s\nstderr: %s", args, err, stdout.String(), stderr.String())
	}

	return stdout.String(), stderr.String()
}

func TestE2E_ReadOnly(t *testing.T) {
	t.Run("token_fetch_then_cache", func(t *testing.T) {
		runCLI(t, "token", "clear")

		stdout, _ := runCLI(t, "token", "--json")

		var first map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &first))
		assert.Equal(t, false, first["cached"])

		stdout, _ = runCLI(t, "token", "--json")

		var second map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &second))
		assert.Equal(t, true, second["cached"])
		assert.Equal(t, first["expires_at"], second["expires_at"])
	})

	t.Run("servers_json", func(t *testing.T) {
		stdout, _ := runCLI(t, "servers", "--json")

		var servers []map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &servers))

		for _, s := range servers {
			assert.Equal(t, "mdmServers", s["type"])
			assert.NotEmpty(t, s["id"])
		}
	})

	t.Run("devices_csv", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "orgDevices.csv")
		_, stderr := runCLI(t, "devices", "--output", out)
		assert.Contains(t, stderr, "Wrote")

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("\xef\xbb\xbfid,type")), "csv should start with BOM and id,type")
	})

	t.Run("token_never_printed", func(t *testing.T) {
		stdout, stderr := runCLI(t, "--debug", "token")
		assert.NotContains(t, stdout+stderr, "eyJ", "no JWT may appear in output")
	})
}

// TestE2E_AssignRoundTrip moves one device to a server and back. It runs
// only when AXM_E2E_SERIAL, AXM_E2E_SERVER_ID and AXM_E2E_HOME_SERVER_ID
// are all set, since it changes real assignments.
func TestE2E_AssignRoundTrip(t *testing.T) {
	serial := os.Getenv("AXM_E2E_SERIAL")
	target := os.Getenv("AXM_E2E_SERVER_ID")
	home := os.Getenv("AXM_E2E_HOME_SERVER_ID")

	if serial == "" || target == "" || home == "" {
		t.Skip("AXM_E2E_SERIAL, AXM_E2E_SERVER_ID or AXM_E2E_HOME_SERVER_ID not set")
	}

	dir := t.TempDir()

	stdout, _ := runCLI(t, "assign", "--server", target, "--dir", dir, "--json", serial)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, "COMPLETED", res["status"])

	runCLI(t, "assign", "--server", home, "--dir", dir, serial)
}
