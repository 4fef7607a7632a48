// Package cxdb provides the archive agent that persists every report to cxdb
// as SystemMessage items, one cxdb context per app.
package cxdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/storyscript/platform-reporting/pkg/reporting"
	cxdbclient "github.com/strongdm/ai-cxdb/clients/go"
	cxdtypes "github.com/strongdm/ai-cxdb/clients/go/types"
)

// Name is the agent name used in logs and metrics.
const Name = "cxdb"

// unlinkedApp is the context key for reports that carry no app.
const unlinkedApp = ""

// Client is the minimal interface for cxdb client operations.
// The real *cxdb.Client satisfies this interface.
type Client interface {
	CreateContext(ctx context.Context, baseTurnID uint64) (*cxdbclient.ContextHead, error)
	AppendTurn(ctx context.Context, req *cxdbclient.AppendRequest) (*cxdbclient.AppendResult, error)
}

// Option configures the archive agent.
type Option func(*agentConfig)

type agentConfig struct {
	labels    []string
	clientTag string
	closer    func() error
	sanitizer *reporting.Sanitizer
	now       func() time.Time
}

// WithLabels sets the labels attached to contexts created by the agent.
// The app name (or "unlinked") is appended per context.
func WithLabels(labels []string) Option {
	return func(c *agentConfig) {
		c.labels = labels
	}
}

// WithClientTag sets the client tag recorded on created contexts.
func WithClientTag(tag string) Option {
	return func(c *agentConfig) {
		c.clientTag = tag
	}
}

// WithCloser sets a function run by Close, typically the client's Close.
func WithCloser(fn func() error) Option {
	return func(c *agentConfig) {
		c.closer = fn
	}
}

// WithSanitizer overrides the trace sanitizer.
func WithSanitizer(s *reporting.Sanitizer) Option {
	return func(c *agentConfig) {
		if s != nil {
			c.sanitizer = s
		}
	}
}

// Agent appends reports to cxdb.
type Agent struct {
	client    Client
	labels    []string
	clientTag string
	closer    func() error
	sanitizer *reporting.Sanitizer
	now       func() time.Time

	mu       sync.Mutex
	contexts map[string]uint64
}

var _ reporting.Agent = (*Agent)(nil)

// New creates an archive agent writing through client.
func New(client Client, opts ...Option) *Agent {
	cfg := &agentConfig{
		labels:    []string{"exception"},
		clientTag: "storyreport",
		sanitizer: reporting.DefaultSanitizer(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Agent{
		client:    client,
		labels:    cfg.labels,
		clientTag: cfg.clientTag,
		closer:    cfg.closer,
		sanitizer: cfg.sanitizer,
		now:       cfg.now,
		contexts:  make(map[string]uint64),
	}
}

// Dial connects to the cxdb server at addr and returns an archive agent that
// closes the connection on Close.
func Dial(addr string, opts ...Option) (*Agent, error) {
	client, err := cxdbclient.Dial(addr, cxdbclient.WithClientTag("storyreport"))
	if err != nil {
		return nil, fmt.Errorf("dial cxdb %s: %w", addr, err)
	}
	closeClient := func() error {
		client.Close()
		return nil
	}
	return New(client, append([]Option{WithCloser(closeClient)}, opts...)...), nil
}

// Name implements reporting.Agent.
func (a *Agent) Name() string { return Name }

// Publish appends the report to the app's context, creating it on first use.
func (a *Agent) Publish(ctx context.Context, err error, ec reporting.ExceptionContext, opts reporting.AgentOptions) error {
	if err == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	contextID, created, cerr := a.contextFor(ctx, ec.AppUUID)
	if cerr != nil {
		return cerr
	}

	item := a.buildConversationItem(err, ec, opts, created)

	payload, perr := cxdbclient.EncodeMsgpack(item)
	if perr != nil {
		return fmt.Errorf("encode payload: %w", perr)
	}

	req := &cxdbclient.AppendRequest{
		ContextID:      contextID,
		ParentTurnID:   0,
		TypeID:         cxdtypes.TypeIDConversationItem,
		TypeVersion:    cxdtypes.TypeVersionConversationItem,
		Payload:        payload,
		IdempotencyKey: ec.ReportID,
	}

	if _, aerr := a.client.AppendTurn(ctx, req); aerr != nil {
		return fmt.Errorf("append turn: %w", aerr)
	}
	return nil
}

// contextFor returns the context id for appID. Callers hold a.mu.
func (a *Agent) contextFor(ctx context.Context, appID string) (uint64, bool, error) {
	if id, ok := a.contexts[appID]; ok {
		return id, false, nil
	}
	head, err := a.client.CreateContext(ctx, 0)
	if err != nil {
		if appID == unlinkedApp {
			return 0, false, fmt.Errorf("create unlinked context: %w", err)
		}
		return 0, false, fmt.Errorf("create context for app %s: %w", appID, err)
	}
	a.contexts[appID] = head.ContextID
	return head.ContextID, true, nil
}

// buildConversationItem creates a canonical ConversationItem for a report.
func (a *Agent) buildConversationItem(err error, ec reporting.ExceptionContext, opts reporting.AgentOptions, first bool) *cxdtypes.ConversationItem {
	// "ErrorType: truncated message", at most 100 chars
	title := reporting.ErrorType(err)
	if msg := reporting.Summary(err); msg != "" {
		const maxMsgLen = 80
		if len(msg) > maxMsgLen {
			msg = msg[:maxMsgLen] + "..."
		}
		title += ": " + msg
	}
	if len(title) > 100 {
		title = title[:97] + "..."
	}

	item := &cxdtypes.ConversationItem{
		ItemType:  cxdtypes.ItemTypeSystem,
		Status:    cxdtypes.ItemStatusComplete,
		Timestamp: a.now().UnixMilli(),
		ID:        ec.ReportID,
		System: &cxdtypes.SystemMessage{
			Kind:    cxdtypes.SystemKindError,
			Title:   title,
			Content: a.buildDetails(err, ec, opts),
		},
	}

	// cxdb expects context metadata on the first turn.
	if first {
		label := ec.AppName
		if ec.AppUUID == unlinkedApp {
			label = "unlinked"
		} else if label == "" {
			label = ec.AppUUID
		}
		labels := append(append([]string{}, a.labels...), label)
		item.ContextMetadata = &cxdtypes.ContextMetadata{
			Labels:    labels,
			ClientTag: a.clientTag,
		}
	}

	return item
}

// buildDetails encodes the report as JSON for SystemMessage.Content.
func (a *Agent) buildDetails(err error, ec reporting.ExceptionContext, opts reporting.AgentOptions) string {
	details := map[string]any{
		"report_id":        ec.ReportID,
		"error_type":       reporting.ErrorType(err),
		"message":          err.Error(),
		"fingerprint":      reporting.Fingerprint(err, ec),
		"platform_release": ec.PlatformRelease,
		"traceback":        a.sanitizer.FormatTrace(err, opts.FullStacktrace),
	}
	for k, v := range ec.Fields() {
		if v != "" {
			details[k] = v
		}
	}
	if ec.StoryLine != nil {
		details["story_line"] = *ec.StoryLine
	}
	if opts.AnalyticsEvent != "" {
		details["analytics_event"] = opts.AnalyticsEvent
	}
	if len(opts.Extra) > 0 {
		details["extra"] = a.sanitizer.ScrubMetadata(opts.Extra)
	}

	jsonBytes, merr := json.Marshal(details)
	if merr != nil {
		return fmt.Sprintf(`{"error":"failed to encode details: %s"}`, merr)
	}
	return string(jsonBytes)
}

// Flush is a no-op for the archive agent (writes are synchronous).
func (a *Agent) Flush(ctx context.Context) error {
	return nil
}

// Close closes the underlying connection when the agent owns it.
func (a *Agent) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer()
}
