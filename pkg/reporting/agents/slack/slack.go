// Package slack provides the chat reporting agent that posts to Slack
// incoming webhooks.
package slack

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/storyscript/platform-reporting/pkg/reporting"
	"github.com/storyscript/platform-reporting/pkg/reporting/transport"
	"github.com/tidwall/sjson"
)

// Name is the agent name used in logs and metrics.
const Name = "slack"

const header = "An exception occurred with the following information:"

// Option configures the agent.
type Option func(*Agent)

// WithTransport overrides the HTTP transport.
func WithTransport(t *transport.Client) Option {
	return func(a *Agent) {
		if t != nil {
			a.transport = t
		}
	}
}

// WithSanitizer overrides the trace sanitizer.
func WithSanitizer(s *reporting.Sanitizer) Option {
	return func(a *Agent) {
		if s != nil {
			a.sanitizer = s
		}
	}
}

// Agent posts reports to a Slack webhook.
type Agent struct {
	webhook   string
	release   string
	logger    zerolog.Logger
	transport *transport.Client
	sanitizer *reporting.Sanitizer
}

var _ reporting.Agent = (*Agent)(nil)

// New creates a chat agent. webhook may be empty, in which case only reports
// carrying a webhook override are delivered.
func New(webhook, release string, logger zerolog.Logger, opts ...Option) *Agent {
	a := &Agent{
		webhook:   webhook,
		release:   release,
		logger:    logger.With().Str("agent", Name).Logger(),
		transport: transport.New(),
		sanitizer: reporting.DefaultSanitizer(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements reporting.Agent.
func (a *Agent) Name() string { return Name }

// Publish posts the report to opts.Webhook, or the agent's webhook when no
// override is given.
func (a *Agent) Publish(ctx context.Context, err error, ec reporting.ExceptionContext, opts reporting.AgentOptions) error {
	webhook := a.webhook
	if opts.Webhook != "" {
		webhook = opts.Webhook
	}
	if webhook == "" || err == nil {
		return nil
	}

	msg := a.Message(err, ec, opts)
	if opts.Redact {
		msg = a.sanitizer.ScrubMessage(msg)
	}

	body, serr := sjson.SetBytes([]byte(`{}`), "text", msg)
	if serr != nil {
		return fmt.Errorf("slack: encode payload: %w", serr)
	}

	if _, perr := a.transport.PostJSON(ctx, webhook, body, nil); perr != nil {
		return fmt.Errorf("slack: %w", perr)
	}
	a.logger.Debug().Str("report_id", ec.ReportID).Bool("redacted", opts.Redact).Msg("report posted")
	return nil
}

// Message renders the chat message for a report.
func (a *Agent) Message(err error, ec reporting.ExceptionContext, opts reporting.AgentOptions) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n")

	release := ec.PlatformRelease
	if release == "" {
		release = a.release
	}
	field(&b, "Release", release)
	field(&b, "App Name", ec.AppName)
	field(&b, "App UUID", ec.AppUUID)
	field(&b, "App Version", ec.AppVersion)
	field(&b, "Story Name", ec.StoryName)
	field(&b, "Story Line", ec.StoryLineString())
	b.WriteString("\n")

	if opts.NoStacktrace {
		fmt.Fprintf(&b, "*Error*: %s", reporting.Summary(err))
		return b.String()
	}

	b.WriteString("```")
	b.WriteString(a.sanitizer.FormatTrace(err, opts.FullStacktrace))
	b.WriteString("```")
	return b.String()
}

func field(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "*%s*: %s\n", label, value)
}

// Flush is a no-op; posts are synchronous.
func (a *Agent) Flush(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (a *Agent) Close() error {
	return nil
}
