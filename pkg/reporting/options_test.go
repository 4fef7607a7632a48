package reporting

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsFromMap(t *testing.T) {
	input := map[string]any{
		KeyStoryName:         "a.story",
		KeyStoryLine:         "12",
		KeyAppName:           "shop",
		KeyAppUUID:           "app-1",
		KeyAppVersion:        "v1",
		KeyFullStacktrace:    false,
		KeyNoStacktrace:      "true",
		KeyAllowUserAgents:   true,
		KeyWebhook:           "https://hooks.example.com/x",
		KeyAnalyticsIdentity: "me@example.com",
		KeyAnalyticsEvent:    "Story Failed",
		"request_id":         42,
	}

	opts, err := OptionsFromMap(input)
	require.NoError(t, err)

	assert.Equal(t, "a.story", *opts.StoryName)
	assert.Equal(t, 12, *opts.StoryLine)
	assert.Equal(t, "shop", *opts.AppName)
	assert.Equal(t, "app-1", *opts.AppUUID)
	assert.Equal(t, "v1", *opts.AppVersion)
	assert.False(t, *opts.FullStacktrace)
	assert.True(t, opts.NoStacktrace)
	assert.True(t, opts.AllowUserAgents)
	assert.Equal(t, "https://hooks.example.com/x", opts.Webhook)
	assert.Equal(t, "me@example.com", opts.AnalyticsIdentity)
	assert.Equal(t, "Story Failed", opts.AnalyticsEvent)
	assert.Equal(t, map[string]string{"request_id": "42"}, opts.Extra)

	// Input map is left untouched.
	assert.Len(t, input, 12)
}

func TestOptionsFromMap_InvalidValues(t *testing.T) {
	tests := []map[string]any{
		{KeyStoryName: 5},
		{KeyStoryLine: "twelve"},
		{KeyStoryLine: []int{1}},
		{KeyNoStacktrace: "maybe"},
		{KeyAllowUserAgents: 1},
	}
	for _, input := range tests {
		_, err := OptionsFromMap(input)
		assert.True(t, errors.Is(err, ErrInvalidOption), "input %v: got %v", input, err)
	}
}

func TestCaptureOptions_Merge(t *testing.T) {
	a, b := "a.story", "b.story"
	base := CaptureOptions{
		StoryName:         &a,
		Webhook:           "https://base",
		AnalyticsIdentity: "base-id",
		Extra:             map[string]string{"k1": "v1", "k2": "base"},
	}
	override := CaptureOptions{
		StoryName:       &b,
		AllowUserAgents: true,
		Extra:           map[string]string{"k2": "override"},
	}

	got := base.Merge(override)
	assert.Equal(t, "b.story", *got.StoryName)
	assert.Equal(t, "https://base", got.Webhook)
	assert.Equal(t, "base-id", got.AnalyticsIdentity)
	assert.True(t, got.AllowUserAgents)
	assert.Equal(t, map[string]string{"k1": "v1", "k2": "override"}, got.Extra)

	// Base is not modified.
	assert.Equal(t, "base", base.Extra["k2"])
	assert.Equal(t, "a.story", *base.StoryName)
}

func TestBuildContext_PriorityOrder(t *testing.T) {
	errStory := &Story{Name: "err.story", App: &App{AppID: "err-app", AppName: "err-name", Version: "1"}}
	optStory := &Story{Name: "opt.story", App: &App{AppID: "opt-app"}}
	optLine := &Line{LineNumber: 99}

	// Fallback references are used when the error carries none.
	ec, _ := buildContext(errors.New("plain"), CaptureOptions{Story: optStory, Line: optLine}, "r", "id")
	assert.Equal(t, "opt.story", ec.StoryName)
	assert.Equal(t, "opt-app", ec.AppUUID)
	assert.Equal(t, "99", ec.StoryLineString())

	// The error's own story wins over the fallback.
	err := NewStoryError("x", errStory, &Line{LineNumber: 3}, nil)
	ec, _ = buildContext(err, CaptureOptions{Story: optStory, Line: optLine}, "r", "id")
	assert.Equal(t, "err.story", ec.StoryName)
	assert.Equal(t, "err-app", ec.AppUUID)
	assert.Equal(t, "3", ec.StoryLineString())

	// Field overrides win over everything.
	name := "override.story"
	line := 0
	ec, _ = buildContext(err, CaptureOptions{StoryName: &name, StoryLine: &line}, "r", "id")
	assert.Equal(t, "override.story", ec.StoryName)
	assert.Equal(t, "0", ec.StoryLineString())
	assert.Equal(t, "err-name", ec.AppName)
}

func TestBuildContext_AbsentFields(t *testing.T) {
	ec, fwd := buildContext(errors.New("plain"), CaptureOptions{}, "1.0", "id-1")

	assert.Equal(t, "id-1", ec.ReportID)
	assert.Equal(t, "1.0", ec.PlatformRelease)
	assert.Empty(t, ec.StoryName)
	assert.Nil(t, ec.StoryLine)
	assert.Empty(t, ec.StoryLineString())
	assert.Empty(t, ec.AppUUID)

	assert.True(t, fwd.FullStacktrace)
	assert.Nil(t, fwd.Extra)
}

func TestBuildContext_StoryWithoutApp(t *testing.T) {
	err := NewStoryError("x", &Story{Name: "solo.story"}, nil, nil)
	ec, _ := buildContext(err, CaptureOptions{}, "r", "id")
	assert.Equal(t, "solo.story", ec.StoryName)
	assert.Empty(t, ec.AppName)
	assert.Nil(t, ec.StoryLine)
}

func TestExceptionContext_Fields(t *testing.T) {
	line := 5
	ec := ExceptionContext{StoryName: "s", StoryLine: &line, AppUUID: "u", PlatformRelease: "r"}
	fields := ec.Fields()
	assert.Equal(t, "5", fields["story_line"])
	assert.Equal(t, "u", fields["app_uuid"])
	assert.Equal(t, "", fields["app_name"])
	assert.Equal(t, "r", fields["platform_release"])
	assert.Len(t, fields, 6)
}

func TestAgentOptions_Clone(t *testing.T) {
	o := AgentOptions{Extra: map[string]string{"k": "v"}}
	c := o.Clone()
	c.Extra["k"] = "changed"
	assert.Equal(t, "v", o.Extra["k"])
}
