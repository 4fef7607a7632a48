package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "info", Format: FormatJSON}, &buf)

	logger.Info().Str("agent", "slack").Msg("hello")
	logger.Debug().Msg("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Equal(t, "hello", gjson.Get(lines[0], "message").String())
	assert.Equal(t, "slack", gjson.Get(lines[0], "agent").String())
	assert.Equal(t, "info", gjson.Get(lines[0], "level").String())
	assert.True(t, gjson.Get(lines[0], "time").Exists())
}

func TestNewWithWriter_Levels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
	}{
		{"debug", true},
		{"info", false},
		{"", false},
		{"bogus", false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(Config{Level: tt.level}, &buf)
			logger.Debug().Msg("debug line")
			assert.Equal(t, tt.wantDebug, buf.Len() > 0)
		})
	}
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Format: FormatConsole}, &buf)
	logger.Warn().Msg("console line")

	out := buf.String()
	assert.Contains(t, out, "console line")
	assert.False(t, gjson.Valid(strings.TrimSpace(out)), "console output should not be JSON")
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storyreport.log")
	logger := New(Config{Output: path})
	logger.Error().Msg("to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "to file", gjson.GetBytes(data, "message").String())
}
