// Package sentry provides the crash reporting agent backed by Sentry.
package sentry

import (
	"context"
	"fmt"
	"time"

	sentrygo "github.com/getsentry/sentry-go"

	"github.com/storyscript/platform-reporting/pkg/reporting"
)

// Name is the agent name used in logs and metrics.
const Name = "sentry"

// contextKey is the Sentry context the report metadata is attached under.
const contextKey = "story"

// defaultFlushTimeout bounds Flush when ctx has no deadline.
const defaultFlushTimeout = 5 * time.Second

// Hub is the subset of *sentry.Hub used by the agent.
// The real *sentry.Hub satisfies this interface.
type Hub interface {
	ConfigureScope(f func(scope *sentrygo.Scope))
	CaptureEvent(event *sentrygo.Event) *sentrygo.EventID
	Flush(timeout time.Duration) bool
}

// Option configures the agent.
type Option func(*agentConfig)

type agentConfig struct {
	environment string
	sanitizer   *reporting.Sanitizer
	transport   sentrygo.Transport
	startTime   time.Time
}

// WithEnvironment sets the Sentry environment.
func WithEnvironment(env string) Option {
	return func(c *agentConfig) { c.environment = env }
}

// WithSanitizer overrides the trace sanitizer.
func WithSanitizer(s *reporting.Sanitizer) Option {
	return func(c *agentConfig) {
		if s != nil {
			c.sanitizer = s
		}
	}
}

// WithTransport overrides the Sentry transport.
func WithTransport(t sentrygo.Transport) Option {
	return func(c *agentConfig) { c.transport = t }
}

// Agent publishes reports to Sentry as messages.
type Agent struct {
	hub       Hub
	release   string
	sanitizer *reporting.Sanitizer
	startTime time.Time
}

var _ reporting.Agent = (*Agent)(nil)

// New creates a Sentry agent for dsn. An empty dsn yields an agent that
// publishes nothing.
func New(dsn, release string, opts ...Option) (*Agent, error) {
	cfg := &agentConfig{
		sanitizer: reporting.DefaultSanitizer(),
		startTime: reporting.ProcessStart(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	a := &Agent{release: release, sanitizer: cfg.sanitizer, startTime: cfg.startTime}
	if dsn == "" {
		return a, nil
	}

	client, err := sentrygo.NewClient(sentrygo.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		Environment:      cfg.environment,
		Transport:        cfg.transport,
		AttachStacktrace: false,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry client: %w", err)
	}
	a.hub = sentrygo.NewHub(client, sentrygo.NewScope())
	return a, nil
}

// NewWithHub creates an agent that publishes through hub.
func NewWithHub(hub Hub, release string, opts ...Option) *Agent {
	a, _ := New("", release, opts...)
	a.hub = hub
	return a
}

// Name implements reporting.Agent.
func (a *Agent) Name() string { return Name }

// Enabled reports whether the agent has a Sentry client.
func (a *Agent) Enabled() bool { return a.hub != nil }

// Publish sends err to Sentry. The hub scope is cleared before the report is
// built and again once it has been captured.
func (a *Agent) Publish(ctx context.Context, err error, ec reporting.ExceptionContext, opts reporting.AgentOptions) error {
	if a.hub == nil || err == nil {
		return nil
	}

	a.hub.ConfigureScope(func(scope *sentrygo.Scope) { scope.Clear() })
	defer a.hub.ConfigureScope(func(scope *sentrygo.Scope) { scope.Clear() })

	event := a.buildEvent(err, ec, opts)
	if id := a.hub.CaptureEvent(event); id == nil {
		return fmt.Errorf("sentry: event %s was not captured", ec.ReportID)
	}
	return nil
}

func (a *Agent) buildEvent(err error, ec reporting.ExceptionContext, opts reporting.AgentOptions) *sentrygo.Event {
	event := sentrygo.NewEvent()
	event.Level = sentrygo.LevelError
	event.Message = a.sanitizer.FormatTrace(err, opts.FullStacktrace)
	event.Release = a.release

	storyCtx := sentrygo.Context{}
	for k, v := range ec.Fields() {
		if v == "" {
			storyCtx[k] = nil
			continue
		}
		storyCtx[k] = v
	}
	event.Contexts[contextKey] = storyCtx
	event.Contexts["runtime_state"] = sentrygo.Context(reporting.CaptureSystemState(a.startTime).Map())

	event.Tags["report_id"] = ec.ReportID
	event.Tags["error_type"] = reporting.ErrorType(err)
	if ec.AppUUID != "" {
		event.Tags["app_uuid"] = ec.AppUUID
	}
	event.Fingerprint = []string{reporting.Fingerprint(err, ec)}

	for k, v := range a.sanitizer.ScrubMetadata(opts.Extra) {
		event.Extra[k] = v
	}
	return event
}

// Flush waits for buffered events within ctx's deadline (5s without one).
func (a *Agent) Flush(ctx context.Context) error {
	if a.hub == nil {
		return nil
	}
	timeout := defaultFlushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return ctx.Err()
	}
	if !a.hub.Flush(timeout) {
		return fmt.Errorf("sentry: flush timed out after %s", timeout)
	}
	return nil
}

// Close is a no-op; buffered events are delivered by Flush.
func (a *Agent) Close() error {
	return nil
}
