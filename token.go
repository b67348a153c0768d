package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/axm-go/internal/tokenfile"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Obtain an access token and show its scope and expiry",
		Long: `Obtain an access token, from the encrypted cache when it is still valid or
from the token endpoint otherwise, and show its scope and expiry. The token
value itself is never printed.`,
		RunE: runToken,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the cached access token",
		RunE:  runTokenClear,
	})

	return cmd
}

// tokenOutput is the JSON schema for `token --json`.
type tokenOutput struct {
	Scope     string    `json:"scope"`
	ExpiresAt time.Time `json:"expires_at"`
	Cached    bool      `json:"cached"`
	CachePath string    `json:"cache_path"`
}

func runToken(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	m, err := cc.Manager()
	if err != nil {
		return err
	}

	tok, err := m.GetValidToken(cmd.Context())
	if err != nil {
		return err
	}

	cc.Logger.Info("token ready", slog.Any("token", tok))

	if cc.Flags.JSON {
		return writeJSON(cmd.OutOrStdout(), tokenOutput{
			Scope:     tok.Scope.String(),
			ExpiresAt: tok.ExpiresAt.UTC(),
			Cached:    tok.Cached,
			CachePath: cc.Cfg.CachePath,
		})
	}

	source := "token endpoint"
	if tok.Cached {
		source = "cache"
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Scope:   %s\n", tok.Scope)
	fmt.Fprintf(w, "Expires: %s (in %s)\n", formatTime(tok.ExpiresAt), formatRemaining(time.Until(tok.ExpiresAt)))
	fmt.Fprintf(w, "Source:  %s\n", source)

	return nil
}

func runTokenClear(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := (tokenfile.FileStorage{Path: cc.Cfg.CachePath}).Remove(); err != nil {
		return err
	}

	cc.Logger.Info("token cache cleared", slog.String("path", cc.Cfg.CachePath))
	cc.Statusf("Token cache cleared.\n")

	return nil
}
