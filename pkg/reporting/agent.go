// agent.go defines the Agent interface for report destinations.

package reporting

import "context"

// Agent is a destination for exception reports.
// Implementations must be safe for concurrent use.
type Agent interface {
	// Name identifies the agent in logs and metrics (e.g. "sentry").
	Name() string

	// Publish delivers one report. An agent without enough configuration to
	// act returns nil without doing anything. Errors are logged by the
	// Reporter and never reach the code that captured the failure.
	Publish(ctx context.Context, err error, ec ExceptionContext, opts AgentOptions) error

	// Flush ensures any buffered reports are delivered.
	// For synchronous agents, this may be a no-op.
	Flush(ctx context.Context) error

	// Close releases resources held by the agent.
	Close() error
}
