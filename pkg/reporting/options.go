// options.go defines the caller-supplied capture options, the options
// forwarded to agents and the merge that turns one into the other.

package reporting

import (
	"errors"
	"fmt"
	"maps"
	"strconv"
)

// ExceptionContext is the normalized failure metadata handed to every agent.
// It is built once per report and never modified afterwards.
type ExceptionContext struct {
	// ReportID uniquely identifies the report (UUID).
	ReportID string

	StoryName string

	// StoryLine is the failing instruction's line number.
	// Uses pointer to distinguish "not set" from line zero.
	StoryLine *int

	AppName    string
	AppUUID    string
	AppVersion string

	// PlatformRelease is the reporter's own release identifier.
	PlatformRelease string
}

// StoryLineString returns the story line as text, or "" when unknown.
func (c ExceptionContext) StoryLineString() string {
	if c.StoryLine == nil {
		return ""
	}
	return strconv.Itoa(*c.StoryLine)
}

// Fields returns the context as a flat map keyed by the wire field names.
// Absent fields map to "".
func (c ExceptionContext) Fields() map[string]string {
	return map[string]string{
		"app_uuid":         c.AppUUID,
		"app_name":         c.AppName,
		"app_version":      c.AppVersion,
		"story_name":       c.StoryName,
		"story_line":       c.StoryLineString(),
		"platform_release": c.PlatformRelease,
	}
}

// CaptureOptions is the caller's input to Capture. The zero value requests
// an operator-tier report with full stack traces.
type CaptureOptions struct {
	// Context overrides. These win over anything carried by the error and
	// are never forwarded to agents.
	StoryName  *string
	StoryLine  *int
	AppName    *string
	AppUUID    *string
	AppVersion *string

	// Story and Line are fallback references used when the error does not
	// carry its own.
	Story *Story
	Line  *Line

	// FullStacktrace includes the root-cause trace. Nil means true.
	FullStacktrace *bool

	// NoStacktrace reduces chat reports to a one-line summary.
	NoStacktrace bool

	// AllowUserAgents opts this report into per-app (user-tier) delivery.
	AllowUserAgents bool

	// Webhook overrides the chat agent destination.
	Webhook string

	// AnalyticsIdentity and AnalyticsEvent are required by the analytics agent.
	AnalyticsIdentity string
	AnalyticsEvent    string

	// Extra holds pass-through keys forwarded untouched to agents.
	Extra map[string]string
}

// AgentOptions is the option set every agent receives. It is built fresh for
// each report.
type AgentOptions struct {
	FullStacktrace    bool
	NoStacktrace      bool
	Webhook           string
	AnalyticsIdentity string
	AnalyticsEvent    string

	// Redact asks the agent to scrub secrets from what it sends. Set for
	// user-tier deliveries.
	Redact bool

	Extra map[string]string
}

// Clone returns a copy of o that shares no mutable state with it.
func (o AgentOptions) Clone() AgentOptions {
	o.Extra = maps.Clone(o.Extra)
	return o
}

// Option map keys understood by OptionsFromMap.
const (
	KeyStoryName         = "story_name"
	KeyStoryLine         = "story_line"
	KeyAppName           = "app_name"
	KeyAppUUID           = "app_uuid"
	KeyAppVersion        = "app_version"
	KeyFullStacktrace    = "full_stacktrace"
	KeyNoStacktrace      = "no_stacktrace"
	KeyAllowUserAgents   = "allow_user_agents"
	KeyWebhook           = "webhook"
	KeyAnalyticsIdentity = "clever_ident"
	KeyAnalyticsEvent    = "clever_event"
)

// ErrInvalidOption is returned by OptionsFromMap for values of the wrong type.
var ErrInvalidOption = errors.New("invalid capture option")

// OptionsFromMap converts a loosely-typed option map into CaptureOptions.
// Unrecognized keys land in Extra, formatted with %v. The input map is not
// modified.
func OptionsFromMap(m map[string]any) (CaptureOptions, error) {
	var opts CaptureOptions
	for key, value := range m {
		var err error
		switch key {
		case KeyStoryName:
			opts.StoryName, err = stringPtr(key, value)
		case KeyAppName:
			opts.AppName, err = stringPtr(key, value)
		case KeyAppUUID:
			opts.AppUUID, err = stringPtr(key, value)
		case KeyAppVersion:
			opts.AppVersion, err = stringPtr(key, value)
		case KeyStoryLine:
			var line int
			line, err = intValue(key, value)
			if err == nil {
				opts.StoryLine = &line
			}
		case KeyFullStacktrace:
			var b bool
			b, err = boolValue(key, value)
			if err == nil {
				opts.FullStacktrace = &b
			}
		case KeyNoStacktrace:
			opts.NoStacktrace, err = boolValue(key, value)
		case KeyAllowUserAgents:
			opts.AllowUserAgents, err = boolValue(key, value)
		case KeyWebhook:
			opts.Webhook, err = stringValue(key, value)
		case KeyAnalyticsIdentity:
			opts.AnalyticsIdentity, err = stringValue(key, value)
		case KeyAnalyticsEvent:
			opts.AnalyticsEvent, err = stringValue(key, value)
		default:
			if opts.Extra == nil {
				opts.Extra = make(map[string]string)
			}
			opts.Extra[key] = fmt.Sprintf("%v", value)
		}
		if err != nil {
			return CaptureOptions{}, err
		}
	}
	return opts, nil
}

// Merge returns o with every field set in override applied on top.
func (o CaptureOptions) Merge(override CaptureOptions) CaptureOptions {
	out := o
	setIf(&out.StoryName, override.StoryName)
	setIf(&out.StoryLine, override.StoryLine)
	setIf(&out.AppName, override.AppName)
	setIf(&out.AppUUID, override.AppUUID)
	setIf(&out.AppVersion, override.AppVersion)
	setIf(&out.Story, override.Story)
	setIf(&out.Line, override.Line)
	setIf(&out.FullStacktrace, override.FullStacktrace)
	out.NoStacktrace = o.NoStacktrace || override.NoStacktrace
	out.AllowUserAgents = o.AllowUserAgents || override.AllowUserAgents
	if override.Webhook != "" {
		out.Webhook = override.Webhook
	}
	if override.AnalyticsIdentity != "" {
		out.AnalyticsIdentity = override.AnalyticsIdentity
	}
	if override.AnalyticsEvent != "" {
		out.AnalyticsEvent = override.AnalyticsEvent
	}
	if len(override.Extra) > 0 {
		out.Extra = maps.Clone(o.Extra)
		if out.Extra == nil {
			out.Extra = make(map[string]string, len(override.Extra))
		}
		maps.Copy(out.Extra, override.Extra)
	}
	return out
}

// buildContext merges what err carries with opts into the report context and
// the forwarded agent options. Context overrides are absorbed; opts is left
// untouched.
func buildContext(err error, opts CaptureOptions, release, reportID string) (ExceptionContext, AgentOptions) {
	ec := ExceptionContext{
		ReportID:        reportID,
		PlatformRelease: release,
	}

	story, line := opts.Story, opts.Line
	var se *StoryError
	if errors.As(err, &se) {
		if se.Story != nil {
			story = se.Story
		}
		if se.Line != nil {
			line = se.Line
		}
	}

	if story != nil {
		ec.StoryName = story.Name
		if story.App != nil {
			ec.AppName = story.App.AppName
			ec.AppUUID = story.App.AppID
			ec.AppVersion = story.App.Version
		}
	}
	if line != nil {
		ln := line.LineNumber
		ec.StoryLine = &ln
	}

	if opts.StoryName != nil {
		ec.StoryName = *opts.StoryName
	}
	if opts.StoryLine != nil {
		ln := *opts.StoryLine
		ec.StoryLine = &ln
	}
	if opts.AppName != nil {
		ec.AppName = *opts.AppName
	}
	if opts.AppUUID != nil {
		ec.AppUUID = *opts.AppUUID
	}
	if opts.AppVersion != nil {
		ec.AppVersion = *opts.AppVersion
	}

	fwd := AgentOptions{
		FullStacktrace:    true,
		NoStacktrace:      opts.NoStacktrace,
		Webhook:           opts.Webhook,
		AnalyticsIdentity: opts.AnalyticsIdentity,
		AnalyticsEvent:    opts.AnalyticsEvent,
		Extra:             maps.Clone(opts.Extra),
	}
	if opts.FullStacktrace != nil {
		fwd.FullStacktrace = *opts.FullStacktrace
	}

	return ec, fwd
}

func setIf[T any](dst **T, src *T) {
	if src != nil {
		*dst = src
	}
}

func stringValue(key string, value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidOption, key, value)
	}
}

func stringPtr(key string, value any) (*string, error) {
	s, err := stringValue(key, value)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func boolValue(key string, value any) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("%w: %s: %v", ErrInvalidOption, key, err)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%w: %s must be a bool, got %T", ErrInvalidOption, key, value)
	}
}

func intValue(key string, value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidOption, key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %s must be an integer, got %T", ErrInvalidOption, key, value)
	}
}
