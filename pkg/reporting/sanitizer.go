// sanitizer.go strips local paths from traces and redacts sensitive data
// before reports leave the process.

package reporting

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// SanitizerConfig controls sanitizing behavior.
type SanitizerConfig struct {
	// WorkDir is the directory removed from traces. Defaults to the process
	// working directory.
	WorkDir string

	// MaxTraceSize is the maximum length for a formatted trace (default: 32768).
	// Zero disables truncation.
	MaxTraceSize int

	// MaxMessageSize is the maximum length for a redacted message (default: 4096).
	MaxMessageSize int

	// MaxValueSize is the maximum length per metadata value (default: 1024).
	MaxValueSize int
}

// DefaultSanitizerConfig returns production-safe defaults.
func DefaultSanitizerConfig() SanitizerConfig {
	return SanitizerConfig{
		WorkDir:        workDir(),
		MaxTraceSize:   32768,
		MaxMessageSize: 4096,
		MaxValueSize:   1024,
	}
}

// Compiled regex patterns for message scrubbing (compiled once at package init)
var messageScrubPatterns = []*regexp.Regexp{
	// API keys and tokens
	regexp.MustCompile(`(?i)(api[_-]?key|token)[=:\s]+['"]?[\w\-\.]+['"]?`),
	regexp.MustCompile(`(?i)(authorization|bearer)[=:\s]+['"]?[\w\-\.]+['"]?[\s]+['"]?[\w\-\.]+['"]?`),
	regexp.MustCompile(`(?i)sk-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`(?i)ghp_[a-zA-Z0-9]{36}`),
	regexp.MustCompile(`(?i)github_pat_[a-zA-Z0-9_]{22,}`),
	regexp.MustCompile(`(?i)xox[baprs]-[a-zA-Z0-9\-]{10,}`), // Slack tokens
	regexp.MustCompile(`https://hooks\.slack\.com/services/[A-Za-z0-9/]+`),
	regexp.MustCompile(`(?i)eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`), // JWT

	// Credentials
	regexp.MustCompile(`(?i)password[=:\s]+['"]?[^\s'"",]+['"]?`),
	regexp.MustCompile(`(?i)secret[=:\s]+['"]?[^\s'"",]+['"]?`),
	regexp.MustCompile(`(?i)passwd[=:\s]+['"]?[^\s'"",]+['"]?`),
	regexp.MustCompile(`(?i)[a-z]+://[^:/\s]+:[^@/\s]+@`), // userinfo in URLs (postgres://u:p@host)

	// PII
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
}

// Sensitive metadata key patterns (case-insensitive substring match)
var sensitiveKeyPatterns = []string{
	"token",
	"key",
	"secret",
	"password",
	"passcode",
	"credential",
	"auth",
	"dsn",
	"webhook",
}

var defaultSanitizer = NewSanitizer(DefaultSanitizerConfig())

// Sanitizer removes local paths from traces and redacts sensitive data.
type Sanitizer struct {
	cfg SanitizerConfig
}

// NewSanitizer creates a new sanitizer with the given configuration.
func NewSanitizer(cfg SanitizerConfig) *Sanitizer {
	if cfg.WorkDir != "" {
		cfg.WorkDir = filepath.Clean(cfg.WorkDir)
	}
	return &Sanitizer{cfg: cfg}
}

// DefaultSanitizer returns the sanitizer bound to the process working directory.
func DefaultSanitizer() *Sanitizer {
	return defaultSanitizer
}

// Cleanup removes the process working directory from a trace.
func Cleanup(trace string) string {
	return defaultSanitizer.Cleanup(trace)
}

// Cleanup removes every literal occurrence of the working directory from
// trace. Applying it twice yields the same result as applying it once.
func (s *Sanitizer) Cleanup(trace string) string {
	dir := s.cfg.WorkDir
	if trace == "" || dir == "" || dir == "." {
		return trace
	}
	// Removing one occurrence can splice together a new one.
	for strings.Contains(trace, dir) {
		trace = strings.ReplaceAll(trace, dir, "")
	}
	return trace
}

// CleanupTrace removes the working directory and enforces MaxTraceSize.
func (s *Sanitizer) CleanupTrace(trace string) string {
	trace = s.Cleanup(trace)
	if s.cfg.MaxTraceSize > 0 && len(trace) > s.cfg.MaxTraceSize {
		trace = truncateWithMarker(trace, s.cfg.MaxTraceSize)
	}
	return trace
}

// ScrubMessage redacts secrets and PII from a message that leaves the
// operator's control (user-tier reports).
func (s *Sanitizer) ScrubMessage(msg string) string {
	if s.cfg.MaxMessageSize > 0 && len(msg) > s.cfg.MaxMessageSize {
		msg = truncateWithMarker(msg, s.cfg.MaxMessageSize)
	}

	result := msg
	for _, pattern := range messageScrubPatterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// ScrubMetadata redacts values of sensitive keys and truncates long values.
func (s *Sanitizer) ScrubMetadata(meta map[string]string) map[string]string {
	if meta == nil {
		return nil
	}

	result := make(map[string]string, len(meta))
	for key, value := range meta {
		if isSensitiveKey(key) {
			result[key] = "[REDACTED]"
			continue
		}
		if s.cfg.MaxValueSize > 0 && len(value) > s.cfg.MaxValueSize {
			value = truncateWithMarker(value, s.cfg.MaxValueSize)
		}
		result[key] = value
	}
	return result
}

// isSensitiveKey checks if a metadata key matches sensitive patterns.
func isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}

// truncateWithMarker truncates a string and adds a truncation marker.
func truncateWithMarker(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	marker := "...[TRUNCATED]"
	if maxLen <= len(marker) {
		return marker[:maxLen]
	}
	return s[:maxLen-len(marker)] + marker
}

func workDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Clean(dir)
}
