// trace.go implements the trace formatting rule shared by all agents.

package reporting

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrorType returns the dynamic type name of err without the pointer star
// (e.g. "reporting.StoryError"). Stack wrappers added by WithStack and the
// wrappers created by fmt.Errorf with %w are looked through.
func ErrorType(err error) string {
	if err == nil {
		return "<nil>"
	}
	if se, ok := err.(*stackError); ok {
		return ErrorType(se.err)
	}
	if inner := unwrapFmt(err); inner != nil {
		return ErrorType(inner)
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}

// unwrapFmt returns the error wrapped by a fmt.Errorf %w wrapper (the first
// one for multiple %w verbs), or nil when err is not such a wrapper.
func unwrapFmt(err error) error {
	switch reflect.TypeOf(err).String() {
	case "*fmt.wrapError":
		return errors.Unwrap(err)
	case "*fmt.wrapErrors":
		if u, ok := err.(interface{ Unwrap() []error }); ok {
			for _, inner := range u.Unwrap() {
				if inner != nil {
					return inner
				}
			}
		}
	}
	return nil
}

// RootCause returns the root cause carried by a StoryError in err's chain,
// or nil.
func RootCause(err error) error {
	var se *StoryError
	if errors.As(err, &se) && se.Root != nil {
		return se.Root
	}
	return nil
}

// StackOf returns the stack trace carried by err, or "" if it has none.
func StackOf(err error) string {
	var st StackTracer
	if errors.As(err, &st) {
		return st.StackTrace()
	}
	return ""
}

// Summary returns the one-line summary of err used when stack traces are
// suppressed.
func Summary(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	return msg
}

// FormatTrace renders err using the default sanitizer. See Sanitizer.FormatTrace.
func FormatTrace(err error, withRoot bool) string {
	return defaultSanitizer.FormatTrace(err, withRoot)
}

// FormatTrace renders err as
//
//	{ErrorType}: {message}
//
//	Traceback:
//	{trace}
//
// When withRoot is set and err carries a root cause, the root cause is
// rendered first under a "Root Traceback:" heading.
func (s *Sanitizer) FormatTrace(err error, withRoot bool) string {
	if err == nil {
		return ""
	}

	primary := fmt.Sprintf("%s: %s\n\nTraceback:\n%s",
		ErrorType(err), err.Error(), s.CleanupTrace(StackOf(err)))

	if !withRoot {
		return primary
	}
	root := RootCause(err)
	if root == nil {
		return primary
	}

	return fmt.Sprintf("%s: %s\n\nRoot Traceback:\n%s\n%s",
		ErrorType(root), root.Error(), s.CleanupTrace(StackOf(root)), primary)
}
