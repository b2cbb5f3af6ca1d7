package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/pilotdata/pilotcli/internal/auth"
	"github.com/pilotdata/pilotcli/internal/config"
	"github.com/pilotdata/pilotcli/internal/identity"
	"github.com/pilotdata/pilotcli/internal/platform"
	"github.com/pilotdata/pilotcli/internal/transfer"
	"github.com/pilotdata/pilotcli/internal/ui"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// CLIFlags is a snapshot of the global flags for one invocation.
type CLIFlags struct {
	ConfigPath string
	JSON       bool
	Verbose    bool
	Debug      bool
	Quiet      bool
}

// CLIContext carries the resolved settings and the shared clients of one
// invocation. The root PersistentPreRunE builds it and stores it in the
// command context; subcommands fetch it with mustCLIContext.
type CLIContext struct {
	Flags    CLIFlags
	Settings *config.Settings
	Logger   *slog.Logger

	// Out reports progress and asks for confirmation. Terminal is the same
	// handler when the session is interactive, nil otherwise.
	Out      ui.Handler
	Terminal *ui.Terminal

	Store  *identity.Store
	Auth   *auth.Manager
	Client *platform.Client

	stdout io.Writer
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// mustCLIContext returns the CLIContext of a running command. A missing
// context is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cc == nil {
		panic("pilotcli: command ran without a CLIContext")
	}

	return cc
}

// newRootCmd builds the root command with every subcommand registered.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pilotcli",
		Short:   "Research data platform CLI",
		Long:    "Upload, download and manage files in the green and core zones of the research data platform.",
		Version: version,
		// Errors are printed by main's error funnel.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := newCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cmd.SetContext(withCLIContext(ctx, cc))

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "settings file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show informational log messages")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "show debug log messages")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "only print errors")

	cmd.AddCommand(newUserCmd())
	cmd.AddCommand(newFileCmd())
	cmd.AddCommand(newFolderCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// newCLIContext resolves settings for cmd and builds the shared clients.
// Nothing here touches the network or requires a login.
func newCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	flags := CLIFlags{
		ConfigPath: flagConfigPath,
		JSON:       flagJSON,
		Verbose:    flagVerbose,
		Debug:      flagDebug,
		Quiet:      flagQuiet,
	}

	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	if f := cmd.Flags().Lookup("thread"); f != nil && f.Changed {
		n, err := cmd.Flags().GetInt("thread")
		if err != nil {
			return nil, err
		}

		cli.Threads = &n
	}

	settings, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	logger := buildLogger(os.Stderr, settings.LogLevel, flags)

	cc := &CLIContext{
		Flags:    flags,
		Settings: settings,
		Logger:   logger,
		stdout:   os.Stdout,
	}

	if ui.IsInteractive() {
		cc.Terminal = ui.NewTerminal(flags.Quiet)
		cc.Out = cc.Terminal
	} else {
		cc.Out = ui.NewAutoAbort(os.Stderr, flags.Quiet)
	}

	hc := newHTTPClient(settings)

	cc.Store = identity.NewStore(settings.IdentityPath, identity.CloudMode(), logger)
	cc.Auth = auth.NewManager(
		auth.NewConfig(settings.Service.KeycloakURL, settings.Service.KeycloakRealmURL, settings.Service.ClientID, settings.WarnWindow, hc),
		cc.Store, logger,
	)
	cc.Client = platform.NewClient(platform.NewEndpoints(settings.Service), hc, cc.Auth, version, logger)

	logger.Debug("settings resolved",
		slog.String("settings_path", settings.SettingsPath),
		slog.String("identity_path", settings.IdentityPath),
		slog.Int("threads", settings.Threads),
	)

	return cc, nil
}

// buildLogger returns a text logger on w. The settings level is the
// baseline; --verbose, --debug and --quiet override it.
func buildLogger(w io.Writer, level string, flags CLIFlags) *slog.Logger {
	lvl := slog.LevelWarn

	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	}

	switch {
	case flags.Debug:
		lvl = slog.LevelDebug
	case flags.Verbose:
		lvl = slog.LevelInfo
	case flags.Quiet:
		lvl = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// newHTTPClient has no overall timeout: transfers run for as long as they
// need. Connection setup and the wait for response headers are bounded.
func newHTTPClient(s *config.Settings) *http.Client {
	dialer := &net.Dialer{Timeout: s.ConnectTimeout}

	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   s.ConnectTimeout,
			ResponseHeaderTimeout: s.DataTimeout,
			MaxIdleConnsPerHost:   s.Threads + 2,
			ForceAttemptHTTP2:     true,
		},
	}
}

// login loads the stored identity. Commands that talk to the platform call
// it first.
func (cc *CLIContext) login() error {
	return cc.Auth.Load()
}

// handler returns Out, or a handler that accepts every confirmation when
// the command was given -y.
func (cc *CLIContext) handler(yes bool) ui.Handler {
	if yes {
		return ui.AssumeYes(cc.Out)
	}

	return cc.Out
}

// driver wires the transfer engines for one command.
func (cc *CLIContext) driver(threads int, yes bool) *transfer.Driver {
	out := cc.handler(yes)
	limiter := transfer.NewBandwidthLimiter(cc.Settings.BandwidthLimit, cc.Logger)

	up := transfer.NewUploader(cc.Client, out, transfer.UploaderConfig{
		ChunkSize: cc.Settings.ChunkSize,
		BatchSize: cc.Settings.UploadBatchSize,
		Limiter:   limiter,
	}, cc.Logger)
	down := transfer.NewDownloader(cc.Client, out, limiter, cc.Logger)
	watchdog := auth.NewWatchdog(cc.Auth, cc.Store, cc.Settings.WatchdogInterval, cc.Settings.WarnWindow, cc.Logger)

	return transfer.NewDriver(up, down, watchdog, threads, cc.Logger)
}
