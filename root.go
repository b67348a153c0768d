package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/axm-go/internal/auth"
	"github.com/tonimelisma/axm-go/internal/axm"
	"github.com/tonimelisma/axm-go/internal/config"
	"github.com/tonimelisma/axm-go/internal/credentials"
	"github.com/tonimelisma/axm-go/internal/tokenfile"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagEnvFile    string
	flagJSON       bool
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// It is available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Resolved

// CLIContext carries what every API command needs. The auth manager and
// API client are built on first use so commands that only read local state
// never touch the private key.
type CLIContext struct {
	Cfg    *config.Resolved
	Logger *slog.Logger
	Flags  CLIFlags

	manager *auth.Manager
	client  *axm.Client
}

// CLIFlags is a snapshot of the global flags.
type CLIFlags struct {
	JSON    bool
	Verbose bool
	Debug   bool
	Quiet   bool
}

type cliContextKey struct{}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "axm-go",
		Short:   "Apple School and Business Manager API client",
		Long:    "Export devices and MDM servers and run device assignment activities against the Apple School and Business Manager API.",
		Version: version,
		// Silence Cobra's default error/usage printing; main reports errors.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(); err != nil {
				return err
			}

			cc := &CLIContext{
				Cfg:    resolvedCfg,
				Logger: buildLogger(),
				Flags: CLIFlags{
					JSON:    flagJSON,
					Verbose: flagVerbose,
					Debug:   flagDebug,
					Quiet:   flagQuiet,
				},
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "dotenv file with AXM_* settings")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable info logging")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newDevicesCmd())
	cmd.AddCommand(newDeviceCmd())
	cmd.AddCommand(newServersCmd())
	cmd.AddCommand(newActivityCmd(axm.ActivityAssign))
	cmd.AddCommand(newActivityCmd(axm.ActivityUnassign))
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// and stores the result in resolvedCfg for use by subcommands.
func loadConfig() error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		EnvFile:    flagEnvFile,
		LogLevel:   flagLogLevel(),
	}

	env := config.ReadEnvOverrides()

	resolved, err := config.Resolve(env, cli, bootstrapLogger())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// flagLogLevel maps the verbosity flags to a log level name, or "" when
// none is set.
func flagLogLevel() string {
	switch {
	case flagDebug:
		return "debug"
	case flagVerbose:
		return "info"
	case flagQuiet:
		return "error"
	default:
		return ""
	}
}

// bootstrapLogger is used while the configuration itself is being loaded,
// before log_level is known. Only the CLI flags apply.
func bootstrapLogger() *slog.Logger {
	return newLogger(parseLevel(flagLogLevel(), slog.LevelWarn))
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose, --debug
// and --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	level := slog.LevelWarn

	if resolvedCfg != nil {
		level = parseLevel(resolvedCfg.LogLevel, level)
	}

	return newLogger(parseLevel(flagLogLevel(), level))
}

func parseLevel(name string, fallback slog.Level) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// mustCLIContext returns the CLIContext stored by PersistentPreRunE.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("axm-go: command run without CLI context")
	}

	return cc
}

// Manager returns the token manager, building it from the credentials and
// the encrypted token cache on first use.
func (cc *CLIContext) Manager() (*auth.Manager, error) {
	if cc.manager != nil {
		return cc.manager, nil
	}

	if err := cc.Cfg.RequireCredentials(); err != nil {
		return nil, fmt.Errorf("incomplete configuration:\n%w", err)
	}

	creds, err := credentials.Load(cc.Cfg.CredentialSource(), cc.Logger)
	if err != nil {
		return nil, err
	}

	cache, err := tokenfile.NewCache(tokenfile.FileStorage{Path: cc.Cfg.CachePath}, cc.Cfg.CacheKey, cc.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening token cache: %w", err)
	}

	m, err := auth.NewManager(auth.Config{
		Credentials: creds,
		Cache:       cache,
		HTTPClient:  cc.httpClient(),
		Logger:      cc.Logger,
	})
	if err != nil {
		return nil, err
	}

	cc.manager = m

	return m, nil
}

// Client returns the API client for the configured scope.
func (cc *CLIContext) Client() (*axm.Client, error) {
	if cc.client != nil {
		return cc.client, nil
	}

	m, err := cc.Manager()
	if err != nil {
		return nil, err
	}

	c := axm.NewClient(cc.Cfg.Scope.BaseURL(), cc.httpClient(), m, cc.Logger)
	c.SetPageLimit(cc.Cfg.PageLimit)

	cc.client = c

	return c, nil
}

func (cc *CLIContext) httpClient() *http.Client {
	return &http.Client{Timeout: cc.Cfg.HTTPTimeout}
}

// exitCode maps an error to the process exit status: 130 for an
// interrupted run, 1 for everything else.
func exitCode(err error) int {
	if errors.Is(err, context.Canceled) {
		return exitInterrupted
	}

	return 1
}

const exitInterrupted = 130

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitCode(err))
}
