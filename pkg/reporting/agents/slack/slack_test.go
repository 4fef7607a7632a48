package slack

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/storyscript/platform-reporting/pkg/reporting"
	"github.com/storyscript/platform-reporting/pkg/reporting/transport"
)

type webhookRecorder struct {
	mu     sync.Mutex
	bodies []string
	paths  []string
	status int
}

func (w *webhookRecorder) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	w.mu.Lock()
	w.bodies = append(w.bodies, string(b))
	w.paths = append(w.paths, r.URL.Path)
	status := w.status
	w.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	rw.WriteHeader(status)
}

func newAgent(webhook string) *Agent {
	return New(webhook, "1.2.3", zerolog.Nop(),
		WithTransport(transport.New(transport.WithInitialInterval(time.Millisecond))))
}

func testContext() reporting.ExceptionContext {
	line := 12
	return reporting.ExceptionContext{
		ReportID:        "r-1",
		StoryName:       "main.story",
		StoryLine:       &line,
		AppName:         "shop",
		AppUUID:         "app-1",
		AppVersion:      "v2",
		PlatformRelease: "1.2.3",
	}
}

func TestPublish_PostsTextPayload(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	a := newAgent(srv.URL + "/operator")
	err := reporting.NewStoryError("instruction failed", nil, nil, nil)

	require.NoError(t, a.Publish(context.Background(), err, testContext(), reporting.AgentOptions{FullStacktrace: true}))
	require.Len(t, rec.bodies, 1)
	assert.Equal(t, "/operator", rec.paths[0])

	text := gjson.Get(rec.bodies[0], "text").String()
	assert.True(t, strings.HasPrefix(text, header))
	assert.Contains(t, text, "*Release*: 1.2.3\n")
	assert.Contains(t, text, "*App Name*: shop\n")
	assert.Contains(t, text, "*App UUID*: app-1\n")
	assert.Contains(t, text, "*App Version*: v2\n")
	assert.Contains(t, text, "*Story Name*: main.story\n")
	assert.Contains(t, text, "*Story Line*: 12\n")
	assert.Contains(t, text, "```reporting.StoryError: instruction failed\n\nTraceback:\n")
	assert.True(t, strings.HasSuffix(text, "```"))
}

func TestPublish_NoStacktrace(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	a := newAgent(srv.URL)
	err := reporting.NewStoryError("instruction failed\nmore detail", nil, nil, errors.New("root"))

	require.NoError(t, a.Publish(context.Background(), err, testContext(), reporting.AgentOptions{NoStacktrace: true}))
	require.Len(t, rec.bodies, 1)

	text := gjson.Get(rec.bodies[0], "text").String()
	assert.Contains(t, text, "*Error*: instruction failed")
	assert.NotContains(t, text, "```")
	assert.NotContains(t, text, "Traceback")
}

func TestPublish_WebhookOverride(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	a := newAgent(srv.URL + "/operator")
	require.NoError(t, a.Publish(context.Background(), errors.New("x"), testContext(),
		reporting.AgentOptions{Webhook: srv.URL + "/app"}))
	require.Len(t, rec.paths, 1)
	assert.Equal(t, "/app", rec.paths[0])
}

func TestPublish_NoDestinationIsNoop(t *testing.T) {
	a := newAgent("")
	assert.NoError(t, a.Publish(context.Background(), errors.New("x"), testContext(), reporting.AgentOptions{}))
}

func TestPublish_AbsentFieldsAreBlank(t *testing.T) {
	a := newAgent("")
	msg := a.Message(errors.New("x"), reporting.ExceptionContext{}, reporting.AgentOptions{})
	assert.Contains(t, msg, "*Release*: 1.2.3\n")
	assert.Contains(t, msg, "*Story Name*: \n")
	assert.Contains(t, msg, "*Story Line*: \n")
}

func TestPublish_RedactsUserReports(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	a := newAgent(srv.URL)
	err := errors.New("login failed for admin@example.com with password=hunter2")
	require.NoError(t, a.Publish(context.Background(), err, testContext(),
		reporting.AgentOptions{NoStacktrace: true, Redact: true}))

	text := gjson.Get(rec.bodies[0], "text").String()
	assert.NotContains(t, text, "admin@example.com")
	assert.NotContains(t, text, "hunter2")
	assert.Contains(t, text, "[REDACTED]")
}

func TestPublish_RetriesThenFails(t *testing.T) {
	rec := &webhookRecorder{status: http.StatusInternalServerError}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	a := newAgent(srv.URL)
	err := a.Publish(context.Background(), errors.New("x"), testContext(), reporting.AgentOptions{})
	require.Error(t, err)
	assert.Len(t, rec.bodies, transport.DefaultMaxTries)
}
