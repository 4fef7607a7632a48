package reporting

import (
	"context"
	"sync"
)

// publishCall records one Publish invocation.
type publishCall struct {
	err  error
	ec   ExceptionContext
	opts AgentOptions
}

// mockAgent is a test agent that records calls and can fail or panic.
type mockAgent struct {
	name string

	mu         sync.Mutex
	calls      []publishCall
	flushes    int
	closes     int
	publishErr error
	panicValue any
	onPublish  func()
}

func newMockAgent(name string) *mockAgent {
	return &mockAgent{name: name}
}

func (m *mockAgent) Name() string { return m.name }

func (m *mockAgent) Publish(ctx context.Context, err error, ec ExceptionContext, opts AgentOptions) error {
	m.mu.Lock()
	m.calls = append(m.calls, publishCall{err: err, ec: ec, opts: opts})
	onPublish := m.onPublish
	m.mu.Unlock()

	if onPublish != nil {
		onPublish()
	}
	if m.panicValue != nil {
		panic(m.panicValue)
	}
	return m.publishErr
}

func (m *mockAgent) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

func (m *mockAgent) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func (m *mockAgent) getCalls() []publishCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]publishCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// orderLog records the order agents were invoked in.
type orderLog struct {
	mu    sync.Mutex
	names []string
}

func (o *orderLog) hook(name string) func() {
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.names = append(o.names, name)
	}
}

func (o *orderLog) get() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.names...)
}
