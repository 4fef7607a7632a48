// story_error.go defines the story failure error type and stack-carrying errors.

package reporting

import (
	"fmt"
	"runtime/debug"
)

// App identifies the application a story belongs to.
type App struct {
	AppID   string
	AppName string
	Version string
}

// Story is the story that was executing when a failure occurred.
type Story struct {
	Name string
	App  *App
}

// Line is the story instruction that failed.
type Line struct {
	// LineNumber is the instruction's line number in the story source.
	LineNumber int

	// Method is the instruction method (e.g. "run", "if").
	Method string

	// Container is the container the instruction ran in, if any.
	Container string
}

// StackTracer is implemented by errors that carry a formatted stack trace.
type StackTracer interface {
	StackTrace() string
}

// StoryError is raised when a story instruction fails. It carries a
// back-reference to the story and the failing line, plus an optional root
// cause.
type StoryError struct {
	Message string
	Story   *Story
	Line    *Line

	// Root is the error that caused this failure, if any.
	Root error

	stack string
}

// NewStoryError creates a StoryError and records the caller's stack.
func NewStoryError(message string, story *Story, line *Line, root error) *StoryError {
	return &StoryError{
		Message: message,
		Story:   story,
		Line:    line,
		Root:    root,
		stack:   string(debug.Stack()),
	}
}

func (e *StoryError) Error() string {
	if e.Message == "" && e.Root != nil {
		return e.Root.Error()
	}
	return e.Message
}

// Unwrap returns the root cause.
func (e *StoryError) Unwrap() error {
	return e.Root
}

// StackTrace returns the stack recorded when the error was created.
func (e *StoryError) StackTrace() string {
	return e.stack
}

// stackError attaches a stack trace to an arbitrary error.
type stackError struct {
	err   error
	stack string
}

// WithStack wraps err with the current goroutine's stack trace.
// Returns nil if err is nil; errors that already carry a stack are returned as is.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(StackTracer); ok {
		return err
	}
	return &stackError{err: err, stack: string(debug.Stack())}
}

func (e *stackError) Error() string      { return e.err.Error() }
func (e *stackError) Unwrap() error      { return e.err }
func (e *stackError) StackTrace() string { return e.stack }

// PanicError wraps a value recovered from a panic.
type PanicError struct {
	Value any
	stack string
}

// NewPanicError wraps a recovered value together with the current stack.
func NewPanicError(recovered any) *PanicError {
	return &PanicError{Value: recovered, stack: string(debug.Stack())}
}

func (e *PanicError) Error() string {
	return "panic: " + formatRecovered(e.Value)
}

// Unwrap returns the recovered value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// StackTrace returns the stack captured at recovery time.
func (e *PanicError) StackTrace() string {
	return e.stack
}

// formatRecovered formats a recovered panic value as a string.
func formatRecovered(recovered any) string {
	if recovered == nil {
		return "<nil>"
	}
	if err, ok := recovered.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", recovered)
}
