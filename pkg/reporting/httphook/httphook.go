// Package httphook reports story failures raised while serving HTTP requests.
package httphook

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/storyscript/platform-reporting/pkg/reporting"
)

// FailureMessage is the status text sent with the 500 response.
const FailureMessage = "Story execution failed"

// AnalyticsEvent is the analytics event name recorded for request failures.
const AnalyticsEvent = "App Request Failure"

// AppInfo describes a deployed app for reporting purposes.
type AppInfo struct {
	AppID      string
	AppName    string
	Version    string
	OwnerEmail string
}

// AppResolver looks up a deployed app by id.
type AppResolver interface {
	ResolveApp(appID string) (AppInfo, bool)
}

// AppResolverFunc adapts a function to AppResolver.
type AppResolverFunc func(appID string) (AppInfo, bool)

// ResolveApp implements AppResolver.
func (f AppResolverFunc) ResolveApp(appID string) (AppInfo, bool) {
	return f(appID)
}

// Option configures a Hook.
type Option func(*Hook)

// WithAppResolver sets the resolver used to enrich reports with app details.
func WithAppResolver(r AppResolver) Option {
	return func(h *Hook) { h.apps = r }
}

// WithUserAgents opts request failures into per-app (user-tier) delivery.
// By default only operator agents receive them.
func WithUserAgents(allow bool) Option {
	return func(h *Hook) { h.allowUserAgents = allow }
}

// Hook turns request failures into 500 responses and reports.
type Hook struct {
	reporter        *reporting.Reporter
	logger          zerolog.Logger
	apps            AppResolver
	allowUserAgents bool
}

// New creates a Hook. A nil reporter is allowed; failures are then only
// logged.
func New(reporter *reporting.Reporter, logger zerolog.Logger, opts ...Option) *Hook {
	h := &Hook{
		reporter: reporter,
		logger:   logger.With().Str("component", "httphook").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleStoryError logs err, replies 500 and captures err. Story errors are
// reported with their own story and line; other errors get storyName as a
// context override when it is known.
func (h *Hook) HandleStoryError(w http.ResponseWriter, r *http.Request, appID, storyName string, err error) {
	h.logger.Error().
		Err(err).
		Str("app_uuid", appID).
		Str("story_name", storyName).
		Msgf("Story execution failed; cause=%v", err)

	http.Error(w, FailureMessage, http.StatusInternalServerError)

	h.reporter.CaptureContext(r.Context(), err, h.captureOptions(appID, storyName, err))
}

// captureOptions builds the options for a request failure. The app's owner
// receives the report only when the hook was built WithUserAgents(true) and
// user-tier reporting is enabled.
func (h *Hook) captureOptions(appID, storyName string, err error) reporting.CaptureOptions {
	opts := reporting.CaptureOptions{AllowUserAgents: h.allowUserAgents}

	app, known := h.resolve(appID)
	if known && app.OwnerEmail != "" {
		opts.AnalyticsIdentity = app.OwnerEmail
		opts.AnalyticsEvent = AnalyticsEvent
	}

	var se *reporting.StoryError
	if errors.As(err, &se) {
		return opts
	}

	if appID != "" {
		opts.AppUUID = &appID
	}
	if known {
		if app.AppName != "" {
			opts.AppName = &app.AppName
		}
		if app.Version != "" {
			opts.AppVersion = &app.Version
		}
	}
	if storyName != "" {
		opts.StoryName = &storyName
	}
	return opts
}

func (h *Hook) resolve(appID string) (AppInfo, bool) {
	if h.apps == nil || appID == "" {
		return AppInfo{}, false
	}
	return h.apps.ResolveApp(appID)
}

// Middleware recovers panics raised by next, replies 500 and captures the
// panic with the options attached to the request context.
func (h *Hook) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}

			perr := reporting.NewPanicError(p)
			h.logger.Error().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Interface("panic", p).
				Msg("request handler panicked")

			http.Error(w, FailureMessage, http.StatusInternalServerError)
			h.reporter.CaptureContext(r.Context(), perr, reporting.CaptureOptions{})
		}()
		next.ServeHTTP(w, r)
	})
}
