package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/axm-go/internal/axm"
	"github.com/tonimelisma/axm-go/internal/config"
)

const utf8BOM = "\xef\xbb\xbf"

// staticTokens is a TokenSource that never expires.
type staticTokens struct{}

func (staticTokens) Token(context.Context) (string, error) { return "test-token", nil }

func (staticTokens) Invalidate(context.Context) error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestCLIContext returns a quiet CLIContext with short activity timings.
// When baseURL is set, the API client points at it.
func newTestCLIContext(t *testing.T, baseURL string) *CLIContext {
	t.Helper()

	cc := &CLIContext{
		Cfg: &config.Resolved{
			PageLimit:            axm.DefaultPageLimit,
			ActivitySettle:       time.Millisecond,
			ActivityPollInterval: time.Millisecond,
			ActivityMaxPolls:     3,
			HTTPTimeout:          5 * time.Second,
			CachePath:            filepath.Join(t.TempDir(), "token.cache"),
		},
		Logger: discardLogger(),
		Flags:  CLIFlags{Quiet: true},
	}

	if baseURL != "" {
		cc.client = axm.NewClient(baseURL, &http.Client{Timeout: 5 * time.Second}, staticTokens{}, cc.Logger)
	}

	return cc
}

// newTestCmd returns a bare command carrying cc, with captured output.
func newTestCmd(cc *CLIContext) (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	cmd := &cobra.Command{}
	cmd.SetContext(context.WithValue(context.Background(), cliContextKey{}, cc))

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	return cmd, &stdout, &stderr
}

func writeJSONResponse(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}
