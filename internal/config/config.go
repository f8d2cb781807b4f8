// Package config loads tapwire settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/tapwire/internal/batch"
	"github.com/ppiankov/tapwire/internal/export"
	"github.com/ppiankov/tapwire/internal/logging"
	"github.com/ppiankov/tapwire/internal/scrub"
)

// Environment variables that override the file.
const (
	EnvEndpoint           = "TAPWIRE_TRACING_ENDPOINT"
	EnvAPIKey             = "TAPWIRE_API_KEY"
	EnvMaxQueueSize       = "TAPWIRE_PROCESS_MAX_QUEUE_SIZE"
	EnvScheduleDelay      = "TAPWIRE_PROCESS_SCHEDULE_DELAY"
	EnvMaxExportBatchSize = "TAPWIRE_PROCESS_MAX_EXPORT_BATCH_SIZE"
	EnvExportTimeout      = "TAPWIRE_PROCESS_EXPORT_TIMEOUT"
)

// DefaultEndpoint is the collector used when none is configured.
const DefaultEndpoint = "https://cloud.tapwire.dev"

var (
	ErrMissingEndpoint = errors.New("tracing endpoint is required")
	ErrMissingAPIKey   = errors.New("API key is required")
)

// Process configures the batch queue. Durations are in milliseconds.
type Process struct {
	MaxQueueSize        int `yaml:"max_queue_size"`
	ScheduleDelayMillis int `yaml:"schedule_delay_millis"`
	MaxExportBatchSize  int `yaml:"max_export_batch_size"`
	ExportTimeoutMillis int `yaml:"export_timeout_millis"`
}

// Config is the full tapwire configuration.
type Config struct {
	Endpoint    string            `yaml:"endpoint"`
	APIKey      string            `yaml:"api_key"`
	Headers     map[string]string `yaml:"headers"`
	HTTPTimeout time.Duration     `yaml:"http_timeout"`
	Dump        string            `yaml:"dump"`
	Process     Process           `yaml:"process"`
	Scrub       scrub.Config      `yaml:"scrub"`
	Logging     logging.Config    `yaml:"logging"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:    DefaultEndpoint,
		HTTPTimeout: export.DefaultTimeout,
		Process: Process{
			MaxQueueSize:        2048,
			ScheduleDelayMillis: 5000,
			MaxExportBatchSize:  512,
			ExportTimeoutMillis: 30000,
		},
		Scrub: scrub.Config{Mode: scrub.ModeDefault},
	}
}

// DefaultPath returns ~/.tapwire/config.yaml, or "" when there is no home
// directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".tapwire", "config.yaml")
}

// Load reads path (DefaultPath when empty) and applies environment
// overrides. A missing file yields defaults. Invalid YAML is an error.
// Load does not validate.
func Load(path string, log zerolog.Logger) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	applyEnv(cfg, os.LookupEnv, log)
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool), log zerolog.Logger) {
	if v, ok := lookup(EnvEndpoint); ok && v != "" {
		cfg.Endpoint = v
	}
	if v, ok := lookup(EnvAPIKey); ok && v != "" {
		cfg.APIKey = v
	}

	ints := []struct {
		env string
		dst *int
	}{
		{EnvMaxQueueSize, &cfg.Process.MaxQueueSize},
		{EnvScheduleDelay, &cfg.Process.ScheduleDelayMillis},
		{EnvMaxExportBatchSize, &cfg.Process.MaxExportBatchSize},
		{EnvExportTimeout, &cfg.Process.ExportTimeoutMillis},
	}
	for _, e := range ints {
		v, ok := lookup(e.env)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Warn().Str("env", e.env).Str("value", v).Int("default", *e.dst).Msg("invalid integer, using default")
			continue
		}
		*e.dst = n
	}
}

// Validate reports every problem found in c.
func (c *Config) Validate() error {
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, ErrMissingEndpoint)
	}
	if c.APIKey == "" {
		errs = append(errs, ErrMissingAPIKey)
	}

	p := c.Process
	for name, v := range map[string]int{
		"max_queue_size":        p.MaxQueueSize,
		"schedule_delay_millis": p.ScheduleDelayMillis,
		"max_export_batch_size": p.MaxExportBatchSize,
		"export_timeout_millis": p.ExportTimeoutMillis,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("process.%s must be positive, got %d", name, v))
		}
	}
	if p.MaxExportBatchSize > p.MaxQueueSize && p.MaxQueueSize > 0 {
		errs = append(errs, fmt.Errorf("process.max_export_batch_size (%d) exceeds max_queue_size (%d)",
			p.MaxExportBatchSize, p.MaxQueueSize))
	}
	if _, err := scrub.FromConfig(&c.Scrub); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Batch returns the queue settings.
func (c *Config) Batch() batch.Config {
	return batch.Config{
		MaxQueueSize:       c.Process.MaxQueueSize,
		MaxExportBatchSize: c.Process.MaxExportBatchSize,
		ScheduleDelay:      time.Duration(c.Process.ScheduleDelayMillis) * time.Millisecond,
		ExportTimeout:      time.Duration(c.Process.ExportTimeoutMillis) * time.Millisecond,
	}
}

// HTTP returns the exporter settings.
func (c *Config) HTTP() export.HTTPConfig {
	return export.HTTPConfig{
		Endpoint: c.Endpoint,
		APIKey:   c.APIKey,
		Headers:  c.Headers,
		Timeout:  c.HTTPTimeout,
	}
}

// Scrubber builds the configured scrubber.
func (c *Config) Scrubber() (scrub.Scrubber, error) {
	return scrub.FromConfig(&c.Scrub)
}
