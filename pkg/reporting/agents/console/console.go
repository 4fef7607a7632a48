// Package console provides an agent that prints reports in human-readable
// form. Useful for development and dry runs.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/storyscript/platform-reporting/pkg/reporting"
)

// Name identifies the console agent in logs and metrics.
const Name = "console"

// Option configures the console agent.
type Option func(*Agent)

// WithVerbose includes the formatted traceback in every report.
func WithVerbose() Option {
	return func(a *Agent) { a.verbose = true }
}

// WithWriter sets the destination (default: os.Stderr).
func WithWriter(w io.Writer) Option {
	return func(a *Agent) { a.out = w }
}

// WithSanitizer sets the sanitizer used for messages and tracebacks.
func WithSanitizer(s *reporting.Sanitizer) Option {
	return func(a *Agent) { a.sanitizer = s }
}

// Agent writes reports to a writer.
type Agent struct {
	mu        sync.Mutex
	out       io.Writer
	verbose   bool
	sanitizer *reporting.Sanitizer
	now       func() time.Time
}

var _ reporting.Agent = (*Agent)(nil)

// New creates a console agent.
func New(opts ...Option) *Agent {
	a := &Agent{
		out:       os.Stderr,
		sanitizer: reporting.DefaultSanitizer(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements reporting.Agent.
func (a *Agent) Name() string { return Name }

// Publish formats the report and writes it out.
//
// Format:
//
//	[STORYREPORT] <timestamp> <error_type> in <story>:<line> (app: <name> <uuid>)
//	        Message: ...
func (a *Agent) Publish(ctx context.Context, err error, ec reporting.ExceptionContext, opts reporting.AgentOptions) error {
	var b strings.Builder

	parts := []string{fmt.Sprintf("[STORYREPORT] %s %s", a.now().UTC().Format(time.RFC3339), reporting.ErrorType(err))}
	if ec.StoryName != "" {
		where := ec.StoryName
		if line := ec.StoryLineString(); line != "" {
			where += ":" + line
		}
		parts = append(parts, "in "+where)
	}
	if ec.AppName != "" || ec.AppUUID != "" {
		parts = append(parts, fmt.Sprintf("(app: %s)", strings.TrimSpace(ec.AppName+" "+ec.AppUUID)))
	}
	b.WriteString(strings.Join(parts, " "))
	b.WriteString("\n")

	fmt.Fprintf(&b, "        Message: %s\n", a.sanitizer.ScrubMessage(reporting.Summary(err)))
	fmt.Fprintf(&b, "        Report: %s\n", ec.ReportID)
	fmt.Fprintf(&b, "        Fingerprint: %s\n", reporting.Fingerprint(err, ec))
	if opts.AnalyticsIdentity != "" {
		fmt.Fprintf(&b, "        Analytics: %s (%s)\n", opts.AnalyticsEvent, opts.AnalyticsIdentity)
	}

	if a.verbose && !opts.NoStacktrace {
		b.WriteString("        Traceback:\n")
		trace := a.sanitizer.ScrubMessage(a.sanitizer.FormatTrace(err, opts.FullStacktrace))
		for _, line := range strings.Split(trace, "\n") {
			fmt.Fprintf(&b, "          %s\n", line)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, werr := io.WriteString(a.out, b.String()); werr != nil {
		return fmt.Errorf("write report: %w", werr)
	}
	return nil
}

// Flush is a no-op.
func (a *Agent) Flush(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (a *Agent) Close() error {
	return nil
}
