// fingerprint.go generates stable hashes for grouping similar reports.

package reporting

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Fingerprint generates a hash for grouping similar failures.
// The fingerprint is based on:
//   - error type and root-cause error type
//   - app uuid and story name
//   - First 3 stack frames (function names only, normalized)
//
// It ignores variable data like report ids, messages, story lines,
// source line numbers and memory addresses.
func Fingerprint(err error, ec ExceptionContext) string {
	var parts []string
	parts = append(parts, ErrorType(err))
	if root := RootCause(err); root != nil {
		parts = append(parts, ErrorType(root))
	}
	parts = append(parts, ec.AppUUID)
	parts = append(parts, ec.StoryName)

	frames := normalizeStackTrace(StackOf(err))
	parts = append(parts, frames...)

	input := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(input))

	// Return hex-encoded first 16 bytes (32 hex chars)
	return hex.EncodeToString(hash[:16])
}

// Regex patterns for stack trace parsing
var (
	// Match function names like "main.doSomething" or "pkg/subpkg.Function"
	funcNamePattern = regexp.MustCompile(`^([a-zA-Z0-9_./()*-]+\.[a-zA-Z0-9_]+)`)

	// Match memory addresses like "0x1234abcd"
	memAddrPattern = regexp.MustCompile(`0x[0-9a-fA-F]+`)

	// Match offset patterns like "+0x123"
	offsetPattern = regexp.MustCompile(`\+0x[0-9a-fA-F]+`)
)

// normalizeStackTrace extracts the first 3 function names from a stack
// trace, skipping runtime/debug frames and the stack capture helpers.
func normalizeStackTrace(trace string) []string {
	if trace == "" {
		return nil
	}

	var frames []string
	for _, line := range strings.Split(trace, "\n") {
		// File path lines are indented with a tab
		if strings.HasPrefix(line, "\t") {
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "goroutine ") {
			continue
		}

		funcLine := memAddrPattern.ReplaceAllString(line, "")
		funcLine = offsetPattern.ReplaceAllString(funcLine, "")
		if idx := strings.LastIndex(funcLine, "("); idx > 0 {
			funcLine = funcLine[:idx]
		}
		funcLine = strings.TrimSpace(funcLine)

		if strings.HasPrefix(funcLine, "runtime/debug.") || isCaptureHelper(funcLine) {
			continue
		}

		if match := funcNamePattern.FindString(funcLine); match != "" {
			frames = append(frames, match)
			if len(frames) >= 3 {
				break
			}
		}
	}

	return frames
}

// isCaptureHelper reports frames belonging to the constructors that record stacks.
func isCaptureHelper(fn string) bool {
	for _, name := range []string{".NewStoryError", ".WithStack", ".NewPanicError", ".(*Reporter).Recover"} {
		if strings.HasSuffix(fn, name) {
			return true
		}
	}
	return false
}
