// reporter.go provides the Reporter: the dispatcher that owns the configured
// agents, the per-app registry and the report queue.

package reporting

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Config holds the reporting configuration supplied once at startup.
// An empty key leaves the corresponding agent unset.
type Config struct {
	// SentryDSN enables the crash agent.
	SentryDSN string `koanf:"sentry_dsn"`

	// SlackWebhook enables the operator chat agent.
	SlackWebhook string `koanf:"slack_webhook"`

	// CleverTap enables the analytics agent when both fields are set.
	CleverTap CleverTapConfig `koanf:"clevertap_config"`

	// UserReporting allows reports to be forwarded to app owners.
	UserReporting bool `koanf:"user_reporting"`

	// UserReportingStacktrace allows user-tier reports to include stack traces.
	UserReportingStacktrace bool `koanf:"user_reporting_stacktrace"`

	// CXDBAddr enables the archive agent (host:port of a cxdb server).
	CXDBAddr string `koanf:"cxdb_addr"`

	// QueueSize is the report queue capacity (default: 1000).
	QueueSize int `koanf:"queue_size"`
}

// CleverTapConfig holds the analytics account credentials.
type CleverTapConfig struct {
	Account string `koanf:"account"`
	Pass    string `koanf:"pass"`
}

// Configured reports whether both credentials are present.
func (c CleverTapConfig) Configured() bool {
	return c.Account != "" && c.Pass != ""
}

// tier distinguishes operator-configured agents from app-owner agents.
type tier string

const (
	tierOperator tier = "operator"
	tierUser     tier = "user"
)

// Option configures a Reporter.
type Option func(*reporterConfig)

type reporterConfig struct {
	crash, chat, analytics, archive Agent
	userChat                        Agent
	registry                        *Registry
	queueSize                       int
	meterProvider                   metric.MeterProvider
	tracerProvider                  trace.TracerProvider
}

// WithCrashAgent sets the crash collector agent.
func WithCrashAgent(a Agent) Option {
	return func(c *reporterConfig) { c.crash = a }
}

// WithChatAgent sets the operator chat agent. It also serves user-tier
// deliveries unless WithUserChatAgent is given.
func WithChatAgent(a Agent) Option {
	return func(c *reporterConfig) { c.chat = a }
}

// WithAnalyticsAgent sets the analytics agent.
func WithAnalyticsAgent(a Agent) Option {
	return func(c *reporterConfig) { c.analytics = a }
}

// WithArchiveAgent sets the archive agent, run after analytics.
func WithArchiveAgent(a Agent) Option {
	return func(c *reporterConfig) { c.archive = a }
}

// WithUserChatAgent sets the chat agent used for user-tier deliveries when
// no operator chat agent is configured.
func WithUserChatAgent(a Agent) Option {
	return func(c *reporterConfig) { c.userChat = a }
}

// WithRegistry shares an existing per-app registry.
func WithRegistry(r *Registry) Option {
	return func(c *reporterConfig) { c.registry = r }
}

// WithQueueSize overrides Config.QueueSize.
func WithQueueSize(size int) Option {
	return func(c *reporterConfig) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// WithMeterProvider sets the meter provider (default: the global provider).
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *reporterConfig) { c.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider (default: the global provider).
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *reporterConfig) { c.tracerProvider = tp }
}

// Reporter captures failures and fans them out to agents.
//
// A nil or zero Reporter is uninitialized: captures are silently dropped.
// Agents and configuration are fixed at construction; the registry is the
// only state that changes afterwards, through RegisterApp.
type Reporter struct {
	initialized bool

	cfg     Config
	release string
	logger  zerolog.Logger

	crash     Agent
	chat      Agent
	analytics Agent
	archive   Agent
	userChat  Agent

	registry *Registry
	queue    *reportQueue
	metrics  *reporterMetrics
	tracer   trace.Tracer
}

// New creates an initialized Reporter and starts its queue worker.
// Agents are supplied through options; see package agents for building them
// from Config.
func New(cfg Config, release string, logger zerolog.Logger, opts ...Option) *Reporter {
	rc := &reporterConfig{queueSize: cfg.QueueSize}
	for _, opt := range opts {
		opt(rc)
	}
	if rc.registry == nil {
		rc.registry = NewRegistry()
	}
	if rc.meterProvider == nil {
		rc.meterProvider = otel.GetMeterProvider()
	}
	if rc.tracerProvider == nil {
		rc.tracerProvider = otel.GetTracerProvider()
	}

	r := &Reporter{
		initialized: true,
		cfg:         cfg,
		release:     release,
		logger:      logger.With().Str("component", "reporting").Logger(),
		crash:       rc.crash,
		chat:        rc.chat,
		analytics:   rc.analytics,
		archive:     rc.archive,
		userChat:    rc.userChat,
		registry:    rc.registry,
		tracer:      rc.tracerProvider.Tracer(instrumentationName),
	}
	if r.chat != nil {
		r.userChat = r.chat
	}

	m, err := newReporterMetrics(rc.meterProvider)
	if err != nil {
		r.logger.Warn().Err(err).Msg("reporting metrics disabled")
	}
	r.metrics = m

	r.queue = newReportQueue(rc.queueSize, r.handleReport, r.handleDropped)
	return r
}

// ready reports whether the reporter was built with New.
func (r *Reporter) ready() bool {
	return r != nil && r.initialized
}

// Release returns the platform release attached to every report.
func (r *Reporter) Release() string {
	if !r.ready() {
		return ""
	}
	return r.release
}

// Registry returns the per-app agent registry.
func (r *Reporter) Registry() *Registry {
	if !r.ready() {
		return nil
	}
	return r.registry
}

// RegisterApp stores or overwrites the reporting configuration of appID.
func (r *Reporter) RegisterApp(appID string, cfg AppAgents) {
	if !r.ready() {
		return
	}
	r.registry.Register(appID, cfg)
	r.logger.Debug().Str("app_uuid", appID).Bool("slack", cfg.SlackWebhook != "").Msg("app reporting agents registered")
}

// Agents returns the names of the configured operator agents in dispatch order.
func (r *Reporter) Agents() []string {
	var names []string
	for _, a := range r.operatorAgents() {
		names = append(names, a.Name())
	}
	return names
}

// operatorAgents returns the configured operator agents in their fixed order:
// crash, chat, analytics, archive.
func (r *Reporter) operatorAgents() []Agent {
	if !r.ready() {
		return nil
	}
	var agents []Agent
	for _, a := range []Agent{r.crash, r.chat, r.analytics, r.archive} {
		if a != nil {
			agents = append(agents, a)
		}
	}
	return agents
}

// allAgents returns every distinct agent, including a standalone user chat agent.
func (r *Reporter) allAgents() []Agent {
	agents := r.operatorAgents()
	if r.ready() && r.userChat != nil && !sameAgent(r.userChat, r.chat) {
		agents = append(agents, r.userChat)
	}
	return agents
}

func sameAgent(a, b Agent) bool {
	if a == nil || b == nil {
		return false
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) || !reflect.TypeOf(a).Comparable() {
		return false
	}
	return a == b
}

// Flush waits for queued reports to be dispatched, then flushes every agent.
func (r *Reporter) Flush(ctx context.Context) error {
	if !r.ready() {
		return nil
	}
	if err := r.queue.Flush(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range r.allAgents() {
		g.Go(func() error {
			return a.Flush(gctx)
		})
	}
	return g.Wait()
}

// Close drains the queue, then flushes and closes every agent. Reports
// captured after Close are dropped. Without a deadline on ctx, draining is
// bounded by a 30s timeout.
func (r *Reporter) Close(ctx context.Context) error {
	if !r.ready() {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultCloseTimeout)
		defer cancel()
	}

	var errs []error
	if err := r.queue.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range r.allAgents() {
		g.Go(func() error {
			return errors.Join(a.Flush(gctx), a.Close())
		})
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Reporter) handleDropped(rep report) {
	r.metrics.recordDropped(rep.ctx, "queue_full")
	r.logger.Warn().
		Str("report_id", rep.id).
		Str("error_type", ErrorType(rep.err)).
		Msg("report queue full, dropped oldest report")
}

func newReportID() string {
	return uuid.NewString()
}

// startTime is used for uptime in runtime state attached to reports.
var startTime = time.Now()

// ProcessStart returns the time the package was initialized.
func ProcessStart() time.Time {
	return startTime
}
