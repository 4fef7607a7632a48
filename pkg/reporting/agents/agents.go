// Package agents builds the reporting agents enabled by a reporting.Config.
package agents

import (
	"github.com/rs/zerolog"

	"github.com/storyscript/platform-reporting/pkg/reporting"
	"github.com/storyscript/platform-reporting/pkg/reporting/agents/clevertap"
	"github.com/storyscript/platform-reporting/pkg/reporting/agents/cxdb"
	"github.com/storyscript/platform-reporting/pkg/reporting/agents/sentry"
	"github.com/storyscript/platform-reporting/pkg/reporting/agents/slack"
)

// FromConfig returns the reporter options for every agent cfg enables.
// Agents whose keys are absent are left unset. An agent that fails to build
// (bad DSN, unreachable cxdb) is logged and left unset.
func FromConfig(cfg reporting.Config, release string, logger zerolog.Logger) []reporting.Option {
	var opts []reporting.Option

	if cfg.SentryDSN != "" {
		a, err := sentry.New(cfg.SentryDSN, release)
		if err != nil {
			logger.Error().Err(err).Str("agent", sentry.Name).Msg("crash agent disabled")
		} else {
			opts = append(opts, reporting.WithCrashAgent(a))
		}
	}

	switch {
	case cfg.SlackWebhook != "":
		opts = append(opts, reporting.WithChatAgent(slack.New(cfg.SlackWebhook, release, logger)))
	case cfg.UserReporting:
		// No operator channel, but app owners may still receive their reports.
		opts = append(opts, reporting.WithUserChatAgent(slack.New("", release, logger)))
	}

	if cfg.CleverTap.Configured() {
		opts = append(opts, reporting.WithAnalyticsAgent(
			clevertap.New(cfg.CleverTap.Account, cfg.CleverTap.Pass, release, logger)))
	}

	if cfg.CXDBAddr != "" {
		a, err := cxdb.Dial(cfg.CXDBAddr)
		if err != nil {
			logger.Error().Err(err).Str("agent", cxdb.Name).Msg("archive agent disabled")
		} else {
			opts = append(opts, reporting.WithArchiveAgent(a))
		}
	}

	return opts
}

// NewReporter builds a Reporter with the agents enabled by cfg. Extra options
// are applied after the configured agents and may replace them.
func NewReporter(cfg reporting.Config, release string, logger zerolog.Logger, extra ...reporting.Option) *reporting.Reporter {
	opts := append(FromConfig(cfg, release, logger), extra...)
	return reporting.New(cfg, release, logger, opts...)
}
