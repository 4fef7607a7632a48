// Package transport provides the retrying HTTP client used by the webhook and
// analytics reporting agents.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxTries is the number of attempts made before giving up.
	DefaultMaxTries = 3

	// DefaultInitialInterval is the first backoff delay.
	DefaultInitialInterval = 200 * time.Millisecond

	maxResponseBytes = 1 << 20
)

// StatusError is returned when the remote end answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Response is a successful (2xx) reply.
type Response struct {
	StatusCode int
	Body       []byte
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithMaxTries sets the number of attempts (minimum 1).
func WithMaxTries(n uint) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTries = n
		}
	}
}

// WithInitialInterval sets the first backoff delay.
func WithInitialInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.initialInterval = d
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// Client posts JSON payloads with retry and exponential backoff.
// It is safe for concurrent use.
type Client struct {
	http            *http.Client
	maxTries        uint
	initialInterval time.Duration
	userAgent       string
}

// New creates a Client with a 10s per-attempt timeout and 3 attempts.
func New(opts ...Option) *Client {
	c := &Client{
		http:            &http.Client{Timeout: DefaultTimeout},
		maxTries:        DefaultMaxTries,
		initialInterval: DefaultInitialInterval,
		userAgent:       "storyreport",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PostJSON sends body to url as application/json. Network errors, 429 and
// 5xx responses are retried; other 4xx responses fail immediately.
func (c *Client) PostJSON(ctx context.Context, target string, body []byte, header http.Header) (*Response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval

	op := func() (*Response, error) {
		return c.attempt(ctx, target, body, header)
	}

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.maxTries),
	)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", redactURL(target), err)
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, target string, body []byte, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = redactURL(uerr.URL)
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Response{StatusCode: resp.StatusCode, Body: data}, nil
	}

	statusErr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 256)}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, statusErr
	default:
		return nil, backoff.Permanent(statusErr)
	}
}

// redactURL strips everything after the host so webhook secrets embedded in
// the path never reach logs.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<invalid url>"
	}
	return u.Scheme + "://" + u.Host
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
