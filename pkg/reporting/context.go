// context.go provides utilities for carrying capture options through
// context.Context, so request handlers can attach app/story details early and
// have them picked up when a failure is captured later.

package reporting

import "context"

// Context key types (unexported to avoid collisions)
type captureOptionsKey struct{}

// WithCaptureOptions returns a context carrying opts merged on top of any
// options already attached to ctx.
func WithCaptureOptions(ctx context.Context, opts CaptureOptions) context.Context {
	if existing, ok := CaptureOptionsFromContext(ctx); ok {
		opts = existing.Merge(opts)
	}
	return context.WithValue(ctx, captureOptionsKey{}, opts)
}

// CaptureOptionsFromContext extracts capture options from ctx.
// Returns the zero value and false if none are attached.
func CaptureOptionsFromContext(ctx context.Context) (CaptureOptions, bool) {
	if ctx == nil {
		return CaptureOptions{}, false
	}
	opts, ok := ctx.Value(captureOptionsKey{}).(CaptureOptions)
	return opts, ok
}
