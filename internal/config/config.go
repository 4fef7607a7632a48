// Package config loads storyreport configuration from a YAML file, a .env
// file and STORYREPORT_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/storyscript/platform-reporting/internal/logging"
	"github.com/storyscript/platform-reporting/internal/telemetry"
	"github.com/storyscript/platform-reporting/pkg/reporting"
)

// EnvPrefix prefixes every environment override. Nesting levels are
// separated by a double underscore: STORYREPORT_REPORTING__SENTRY_DSN sets
// reporting.sentry_dsn.
const EnvPrefix = "STORYREPORT_"

type Config struct {
	Log       logging.Config   `koanf:"log"`
	Telemetry telemetry.Config `koanf:"telemetry"`
	Release   string           `koanf:"release"`
	Reporting reporting.Config `koanf:"reporting"`
	Apps      []AppConfig      `koanf:"apps"`
}

// AppConfig is the per-app agent configuration registered at startup.
type AppConfig struct {
	ID           string `koanf:"id"`
	SlackWebhook string `koanf:"slack_webhook"`
}

// Load reads defaults, then the YAML file at path (if any), then the
// environment. Values from a .env file in the working directory are added
// to the environment first without overriding variables already set.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	return load(path)
}

// loadDotEnv loads envFile when it exists. A missing file is not an error.
func loadDotEnv(envFile string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", envFile, err)
	}
	return nil
}

// LoadWithEnvFile is Load with an explicit .env file, which must exist.
func LoadWithEnvFile(path, envFile string) (*Config, error) {
	if err := godotenv.Load(envFile); err != nil {
		return nil, fmt.Errorf("load env file %s: %w", envFile, err)
	}
	return load(path)
}

func load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", logging.FormatJSON)
	k.Set("log.output", "stderr")
	k.Set("telemetry.exporter", telemetry.ExporterNone)
	k.Set("release", "0.0.0")
	k.Set("reporting.queue_size", reporting.DefaultQueueSize)

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// 2. Load from ENV (STORYREPORT_REPORTING__SENTRY_DSN -> reporting.sentry_dsn)
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate rejects settings no component can honor.
func (c *Config) Validate() error {
	var errs []error

	switch c.Log.Format {
	case "", logging.FormatJSON, logging.FormatConsole:
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	if err := telemetry.Validate(c.Telemetry); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	ct := c.Reporting.CleverTap
	if (ct.Account == "") != (ct.Pass == "") {
		errs = append(errs, errors.New("reporting.clevertap_config: account and pass must be set together"))
	}
	if c.Reporting.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("reporting.queue_size: must not be negative, got %d", c.Reporting.QueueSize))
	}

	seen := make(map[string]bool, len(c.Apps))
	for i, app := range c.Apps {
		if app.ID == "" {
			errs = append(errs, fmt.Errorf("apps[%d]: id is required", i))
			continue
		}
		if seen[app.ID] {
			errs = append(errs, fmt.Errorf("apps[%d]: duplicate id %q", i, app.ID))
		}
		seen[app.ID] = true
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RegisterApps adds every configured app to r's registry.
func (c *Config) RegisterApps(r *reporting.Reporter) {
	for _, app := range c.Apps {
		r.RegisterApp(app.ID, reporting.AppAgents{SlackWebhook: app.SlackWebhook})
	}
}
