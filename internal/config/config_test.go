package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyscript/platform-reporting/pkg/reporting"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const sampleYAML = `
log:
  level: debug
  format: console
telemetry:
  exporter: stdout
release: "1.4.2"
reporting:
  sentry_dsn: https://public@sentry.example.com/1
  slack_webhook: https://hooks.example.com/operator
  clevertap_config:
    account: acc
    pass: secret
  user_reporting: true
  user_reporting_stacktrace: true
  queue_size: 50
apps:
  - id: app-1
    slack_webhook: https://hooks.example.com/app-1
  - id: app-2
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "none", cfg.Telemetry.Exporter)
	assert.Equal(t, "0.0.0", cfg.Release)
	assert.Equal(t, reporting.DefaultQueueSize, cfg.Reporting.QueueSize)
	assert.Empty(t, cfg.Reporting.SentryDSN)
	assert.Empty(t, cfg.Apps)
}

func TestLoad_File(t *testing.T) {
	cfg, err := load(writeFile(t, "storyreport.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "stdout", cfg.Telemetry.Exporter)
	assert.Equal(t, "1.4.2", cfg.Release)
	assert.Equal(t, "https://public@sentry.example.com/1", cfg.Reporting.SentryDSN)
	assert.Equal(t, "https://hooks.example.com/operator", cfg.Reporting.SlackWebhook)
	assert.Equal(t, reporting.CleverTapConfig{Account: "acc", Pass: "secret"}, cfg.Reporting.CleverTap)
	assert.True(t, cfg.Reporting.UserReporting)
	assert.True(t, cfg.Reporting.UserReportingStacktrace)
	assert.Equal(t, 50, cfg.Reporting.QueueSize)
	assert.Equal(t, []AppConfig{
		{ID: "app-1", SlackWebhook: "https://hooks.example.com/app-1"},
		{ID: "app-2"},
	}, cfg.Apps)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("STORYREPORT_RELEASE", "2.0.0")
	t.Setenv("STORYREPORT_REPORTING__SENTRY_DSN", "https://other@sentry.example.com/2")
	t.Setenv("STORYREPORT_REPORTING__CXDB_ADDR", "localhost:9009")

	cfg, err := load(writeFile(t, "storyreport.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "2.0.0", cfg.Release)
	assert.Equal(t, "https://other@sentry.example.com/2", cfg.Reporting.SentryDSN)
	assert.Equal(t, "localhost:9009", cfg.Reporting.CXDBAddr)
}

func TestLoadWithEnvFile(t *testing.T) {
	envFile := writeFile(t, ".env", "STORYREPORT_REPORTING__SLACK_WEBHOOK=https://hooks.example.com/from-env\n")
	t.Cleanup(func() { os.Unsetenv("STORYREPORT_REPORTING__SLACK_WEBHOOK") })

	cfg, err := LoadWithEnvFile("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/from-env", cfg.Reporting.SlackWebhook)
}

func TestLoadWithEnvFile_Missing(t *testing.T) {
	_, err := LoadWithEnvFile("", filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "reporting.sentry_dsn", envKey("STORYREPORT_REPORTING__SENTRY_DSN"))
	assert.Equal(t, "reporting.clevertap_config.account", envKey("STORYREPORT_REPORTING__CLEVERTAP_CONFIG__ACCOUNT"))
	assert.Equal(t, "release", envKey("STORYREPORT_RELEASE"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "half clevertap",
			mutate:  func(c *Config) { c.Reporting.CleverTap.Account = "acc" },
			wantErr: "account and pass must be set together",
		},
		{
			name:    "negative queue",
			mutate:  func(c *Config) { c.Reporting.QueueSize = -1 },
			wantErr: "reporting.queue_size",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: `unknown format "xml"`,
		},
		{
			name:    "unknown exporter",
			mutate:  func(c *Config) { c.Telemetry.Exporter = "zipkin" },
			wantErr: "unknown telemetry exporter",
		},
		{
			name:    "app without id",
			mutate:  func(c *Config) { c.Apps = []AppConfig{{SlackWebhook: "https://x"}} },
			wantErr: "apps[0]: id is required",
		},
		{
			name:    "duplicate app",
			mutate:  func(c *Config) { c.Apps = []AppConfig{{ID: "a"}, {ID: "a"}} },
			wantErr: `duplicate id "a"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRegisterApps(t *testing.T) {
	cfg := &Config{Apps: []AppConfig{
		{ID: "app-1", SlackWebhook: "https://hooks.example.com/app-1"},
		{ID: "app-2"},
	}}
	r := reporting.New(reporting.Config{}, "1.0.0", zerolog.Nop())
	defer r.Close(context.Background())

	cfg.RegisterApps(r)

	assert.Equal(t, []string{"app-1", "app-2"}, r.Registry().Apps())
	app, ok := r.Registry().Lookup("app-1")
	require.True(t, ok)
	assert.Equal(t, "https://hooks.example.com/app-1", app.SlackWebhook)
}

func TestLoad_DotEnvInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STORYREPORT_RELEASE=9.9.9\n"), 0600))
	t.Chdir(dir)
	t.Cleanup(func() { os.Unsetenv("STORYREPORT_RELEASE") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "9.9.9", cfg.Release)
}

func TestLoad_NoDotEnv(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0", cfg.Release)
}

func TestLoad_MalformedDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STORYREPORT_RELEASE=\"1.0\n"), 0600))
	t.Chdir(dir)

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load env file .env")
}
