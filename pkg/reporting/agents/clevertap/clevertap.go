// Package clevertap provides the analytics reporting agent that uploads
// failure events to CleverTap.
package clevertap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/storyscript/platform-reporting/pkg/reporting"
	"github.com/storyscript/platform-reporting/pkg/reporting/transport"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Name is the agent name used in logs and metrics.
const Name = "clevertap"

// DefaultEndpoint is the CleverTap event upload API.
const DefaultEndpoint = "https://api.clevertap.com/1/upload"

// Option configures the agent.
type Option func(*Agent)

// WithEndpoint overrides the upload endpoint.
func WithEndpoint(url string) Option {
	return func(a *Agent) {
		if url != "" {
			a.endpoint = url
		}
	}
}

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

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

// Agent uploads one analytics event per report.
type Agent struct {
	accountID   string
	accountPass string
	release     string
	endpoint    string
	logger      zerolog.Logger
	transport   *transport.Client
	sanitizer   *reporting.Sanitizer
	now         func() time.Time
}

var _ reporting.Agent = (*Agent)(nil)

// New creates an analytics agent for the given account credentials.
func New(accountID, accountPass, release string, logger zerolog.Logger, opts ...Option) *Agent {
	a := &Agent{
		accountID:   accountID,
		accountPass: accountPass,
		release:     release,
		endpoint:    DefaultEndpoint,
		logger:      logger.With().Str("agent", Name).Logger(),
		transport:   transport.New(),
		sanitizer:   reporting.DefaultSanitizer(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements reporting.Agent.
func (a *Agent) Name() string { return Name }

// Publish uploads the report as an event. Reports without both an analytics
// identity and an event name are skipped.
func (a *Agent) Publish(ctx context.Context, err error, ec reporting.ExceptionContext, opts reporting.AgentOptions) error {
	if opts.AnalyticsIdentity == "" || opts.AnalyticsEvent == "" || err == nil {
		return nil
	}

	body, berr := a.Payload(err, ec, opts)
	if berr != nil {
		return fmt.Errorf("clevertap: encode payload: %w", berr)
	}

	header := http.Header{}
	header.Set("X-CleverTap-Account-Id", a.accountID)
	header.Set("X-CleverTap-Passcode", a.accountPass)

	resp, perr := a.transport.PostJSON(ctx, a.endpoint, body, header)
	if perr != nil {
		return fmt.Errorf("clevertap: %w", perr)
	}

	result := gjson.ParseBytes(resp.Body)
	if status := result.Get("status").String(); status != "success" {
		return fmt.Errorf("clevertap: upload rejected (status=%q, error=%q)", status, result.Get("error").String())
	}
	if unprocessed := result.Get("unprocessed.#").Int(); unprocessed > 0 {
		return fmt.Errorf("clevertap: %d event(s) unprocessed", unprocessed)
	}

	a.logger.Debug().Str("report_id", ec.ReportID).Str("event", opts.AnalyticsEvent).Msg("event uploaded")
	return nil
}

// Payload renders the upload body: {"d":[{ts, identity, evtName, evtData}]}.
func (a *Agent) Payload(err error, ec reporting.ExceptionContext, opts reporting.AgentOptions) ([]byte, error) {
	release := ec.PlatformRelease
	if release == "" {
		release = a.release
	}

	fields := []struct {
		path  string
		value any
	}{
		{"d.0.ts", float64(a.now().UnixMilli()) / 1000},
		{"d.0.identity", opts.AnalyticsIdentity},
		{"d.0.evtName", opts.AnalyticsEvent},
		{"d.0.evtData.Stacktrace", a.sanitizer.FormatTrace(err, opts.FullStacktrace)},
		{"d.0.evtData.App Name", ec.AppName},
		{"d.0.evtData.App UUID", ec.AppUUID},
		{"d.0.evtData.App Version", ec.AppVersion},
		{"d.0.evtData.Story name", ec.StoryName},
		{"d.0.evtData.Story Line", ec.StoryLineString()},
		{"d.0.evtData.Platform Release", release},
	}

	body := []byte(`{"d":[]}`)
	var serr error
	for _, f := range fields {
		if s, ok := f.value.(string); ok && s == "" {
			continue
		}
		if body, serr = sjson.SetBytes(body, f.path, f.value); serr != nil {
			return nil, serr
		}
	}
	return body, nil
}

// Flush is a no-op; uploads are synchronous.
func (a *Agent) Flush(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (a *Agent) Close() error {
	return nil
}
