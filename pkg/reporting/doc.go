// Package reporting provides the exception reporting pipeline for the story
// execution platform.
//
// A failure raised while running a story (or while serving a request) is
// captured by a Reporter, normalized into an ExceptionContext and fanned out
// to every configured operator agent: a crash collector, a chat webhook, an
// analytics event service and an optional cxdb archive. Applications can
// register their own chat webhook; reports are then forwarded to the app
// owner as well when user reporting is enabled and the caller opts in.
//
// # Core Components
//
//   - ExceptionContext: story/app/line metadata detached from the error type
//   - CaptureOptions / AgentOptions: caller input and the options forwarded to agents
//   - Agent: destination for reports (sentry, slack, clevertap, cxdb, console)
//   - Reporter: the dispatcher, work queue and per-app Registry
//   - Sanitizer: strips the working directory from traces and redacts secrets
//
// # Quick Start
//
//	reporter := agents.NewReporter(reporting.Config{
//	    SentryDSN:    os.Getenv("SENTRY_DSN"),
//	    SlackWebhook: os.Getenv("SLACK_WEBHOOK"),
//	}, release, logger)
//	defer reporter.Close(ctx)
//
// Package agents builds the configured agents; New accepts them directly
// through WithCrashAgent, WithChatAgent and friends.
//
//	reporter.RegisterApp(appID, reporting.AppAgents{SlackWebhook: hook})
//	reporter.Capture(err, reporting.CaptureOptions{AllowUserAgents: true})
//
// # Design Principles
//
//   - Capture never blocks and never panics: reports are queued and dispatched by a worker
//   - One agent failing never stops the others: each publish has its own failure boundary
//   - Callers' options are never mutated: forwarded options are built fresh per report
package reporting
