package main

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/storyscript/platform-reporting/internal/config"
	"github.com/storyscript/platform-reporting/internal/logging"
	"github.com/storyscript/platform-reporting/internal/telemetry"
	"github.com/storyscript/platform-reporting/pkg/reporting"
	"github.com/storyscript/platform-reporting/pkg/reporting/agents"
	"github.com/storyscript/platform-reporting/pkg/reporting/agents/console"
)

const serviceName = "storyreport"

// drainTimeout bounds how long a command waits for queued reports on exit.
const drainTimeout = 30 * time.Second

// cli holds state shared by all commands.
type cli struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "storyreport",
		Short: "Report story failures to crash, chat and analytics services",
		Long: `storyreport fans story failures out to the reporting agents enabled by
its configuration: Sentry for crashes, Slack for chat, CleverTap for
analytics and cxdb for archiving. App owners registered under "apps"
receive redacted chat reports when user reporting is enabled.

Configuration is read from --config (YAML), a .env file and
STORYREPORT_ environment variables.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&c.logFormat, "log-format", "", "Log format: json, console (overrides config)")

	rootCmd.AddCommand(newSendCmd(c))
	rootCmd.AddCommand(newAgentsCmd(c))
	return rootCmd
}

// setup loads the configuration and builds the logger.
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Log.Format = c.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg

	if cfg.Log.Output == "" || cfg.Log.Output == "stderr" {
		c.logger = logging.NewWithWriter(cfg.Log, cmd.ErrOrStderr())
	} else {
		c.logger = logging.New(cfg.Log)
	}
	return nil
}

// newReporter builds the reporter with telemetry installed. The returned
// function drains the reporter, then stops telemetry. With dryRun set the
// configured agents are replaced by a console agent writing to out.
func (c *cli) newReporter(dryRun bool, out io.Writer) (*reporting.Reporter, func() error, error) {
	_, shutdownTelemetry, err := telemetry.Init(serviceName, c.cfg.Release, c.cfg.Telemetry)
	if err != nil {
		return nil, nil, err
	}

	var r *reporting.Reporter
	if dryRun {
		r = reporting.New(c.cfg.Reporting, c.cfg.Release, c.logger,
			reporting.WithCrashAgent(console.New(console.WithWriter(out), console.WithVerbose())))
	} else {
		r = agents.NewReporter(c.cfg.Reporting, c.cfg.Release, c.logger)
	}
	c.cfg.RegisterApps(r)

	closeFn := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := r.Close(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("reporter did not drain cleanly")
		}
		return shutdownTelemetry(ctx)
	}
	return r, closeFn, nil
}
