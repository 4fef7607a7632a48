// capture.go implements capture (fire-and-forget) and dispatch (fan-out to
// agents) for the Reporter.

package reporting

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Capture schedules err for reporting and returns immediately. It never
// blocks on delivery and never panics; failures to schedule are logged.
func (r *Reporter) Capture(err error, opts CaptureOptions) {
	r.capture(context.Background(), err, opts)
}

// CaptureContext is Capture with options attached to ctx (see
// WithCaptureOptions) merged under opts. Values on ctx stay available to the
// dispatch; its cancellation does not.
func (r *Reporter) CaptureContext(ctx context.Context, err error, opts CaptureOptions) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctxOpts, ok := CaptureOptionsFromContext(ctx); ok {
		opts = ctxOpts.Merge(opts)
	}
	r.capture(context.WithoutCancel(ctx), err, opts)
}

func (r *Reporter) capture(ctx context.Context, err error, opts CaptureOptions) {
	if !r.ready() || err == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Msg("failed to schedule exception report")
		}
	}()

	rep := report{ctx: ctx, err: err, opts: opts, id: newReportID()}
	r.metrics.recordCapture(ctx)
	if qerr := r.queue.Enqueue(rep); qerr != nil {
		r.metrics.recordDropped(ctx, "closed")
		r.logger.Warn().
			Err(qerr).
			Str("report_id", rep.id).
			Str("error_type", ErrorType(err)).
			Msg("failed to schedule exception report")
	}
}

// Dispatch builds the report for err and delivers it to every configured
// agent before returning. Most callers want Capture instead.
func (r *Reporter) Dispatch(ctx context.Context, err error, opts CaptureOptions) {
	if !r.ready() || err == nil {
		return
	}
	r.dispatch(report{ctx: ctx, err: err, opts: opts, id: newReportID()})
}

func (r *Reporter) handleReport(rep report) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Str("report_id", rep.id).Interface("panic", p).Msg("exception report dispatch panicked")
		}
	}()
	r.dispatch(rep)
}

func (r *Reporter) dispatch(rep report) {
	ctx := rep.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	ec, fwd := buildContext(rep.err, rep.opts, r.release, rep.id)

	ctx, span := r.tracer.Start(ctx, "reporting.dispatch", trace.WithAttributes(
		attribute.String("report.id", ec.ReportID),
		attribute.String("error.type", ErrorType(rep.err)),
		attribute.String("app.uuid", ec.AppUUID),
		attribute.String("story.name", ec.StoryName),
	))
	defer span.End()

	failed := 0
	for _, a := range r.operatorAgents() {
		if !r.publish(ctx, a, tierOperator, rep.err, ec, fwd) {
			failed++
		}
	}

	if !r.cfg.UserReporting {
		r.finishSpan(span, failed)
		return
	}

	if rep.opts.AllowUserAgents && ec.AppUUID != "" && r.userChat != nil {
		if app, ok := r.registry.Lookup(ec.AppUUID); ok && app.SlackWebhook != "" {
			user := fwd.Clone()
			user.Webhook = app.SlackWebhook
			user.Redact = true
			if r.cfg.UserReportingStacktrace {
				user.FullStacktrace = true
			} else {
				user.FullStacktrace = false
				user.NoStacktrace = true
			}
			if !r.publish(ctx, r.userChat, tierUser, rep.err, ec, user) {
				failed++
			}
		}
	}
	r.finishSpan(span, failed)
}

func (r *Reporter) finishSpan(span trace.Span, failed int) {
	span.SetAttributes(attribute.Int("report.failed_agents", failed))
	if failed > 0 {
		span.SetStatus(codes.Error, "reporting agent failed")
	}
}

// publish runs one agent inside its own failure boundary. Errors and panics
// are logged with the agent name and never propagate. Returns false when
// the agent failed.
func (r *Reporter) publish(ctx context.Context, a Agent, t tier, err error, ec ExceptionContext, opts AgentOptions) (ok bool) {
	name := a.Name()
	defer func() {
		if p := recover(); p != nil {
			ok = false
			r.metrics.recordPublish(ctx, name, t, outcomePanicked)
			r.logger.Error().
				Str("agent", name).
				Str("tier", string(t)).
				Str("report_id", ec.ReportID).
				Interface("panic", p).
				Msgf("unhandled %s reporting agent error", name)
		}
	}()

	if perr := a.Publish(ctx, err, ec, opts.Clone()); perr != nil {
		r.metrics.recordPublish(ctx, name, t, outcomeFailed)
		r.logger.Error().
			Err(perr).
			Str("agent", name).
			Str("tier", string(t)).
			Str("report_id", ec.ReportID).
			Msgf("unhandled %s reporting agent error", name)
		return false
	}

	r.metrics.recordPublish(ctx, name, t, outcomeDelivered)
	return true
}

// Recover captures a panic and returns the recovered value. Unlike a plain
// deferred recover it reports the panic (with its stack) before returning.
// It does not re-panic.
//
// Use in defer:
//
//	func handle(ctx context.Context) {
//	    defer reporter.Recover(ctx, reporting.CaptureOptions{})
//	    // code that might panic
//	}
func (r *Reporter) Recover(ctx context.Context, opts CaptureOptions) any {
	p := recover()
	if p == nil {
		return nil
	}

	r.CaptureContext(ctx, NewPanicError(p), opts)
	return p
}
