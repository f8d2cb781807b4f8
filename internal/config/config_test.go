package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/tapwire/internal/logging"
	"github.com/ppiankov/tapwire/internal/model"
	"github.com/ppiankov/tapwire/internal/scrub"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), logging.Nop())
	require.NoError(t, err)

	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
	assert.Equal(t, 2048, cfg.Process.MaxQueueSize)
	assert.Equal(t, 512, cfg.Process.MaxExportBatchSize)
	assert.Equal(t, 5*time.Second, cfg.Batch().ScheduleDelay)
	assert.Equal(t, 30*time.Second, cfg.Batch().ExportTimeout)
	assert.Equal(t, 5*time.Second, cfg.HTTP().Timeout)
}

func TestLoadYAMLOverridesSomeFields(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
endpoint: https://collector.internal/v1/spans
api_key: file-key
http_timeout: 2s
headers:
  X-Team: ml
process:
  max_queue_size: 100
scrub:
  mode: custom
  extra_patterns: ["customer_id"]
`)
	cfg, err := Load(path, logging.Nop())
	require.NoError(t, err)

	assert.Equal(t, "https://collector.internal/v1/spans", cfg.Endpoint)
	assert.Equal(t, 2*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "ml", cfg.HTTP().Headers["X-Team"])
	assert.Equal(t, 100, cfg.Process.MaxQueueSize)
	assert.Equal(t, 512, cfg.Process.MaxExportBatchSize, "unset fields keep defaults")

	s, err := cfg.Scrubber()
	require.NoError(t, err)
	out := s.Scrub(model.Attributes{"customer_id": "c1", "password": "p"})
	assert.Equal(t, scrub.Marker("customer_id"), out["customer_id"])
	assert.Equal(t, "p", out["password"], "custom mode drops the built-in set")
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "process: [unclosed")
	_, err := Load(path, logging.Nop())
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvEndpoint, "https://env.example")
	t.Setenv(EnvAPIKey, "env-key")
	t.Setenv(EnvMaxQueueSize, "64")
	t.Setenv(EnvScheduleDelay, "250")
	t.Setenv(EnvMaxExportBatchSize, "not-a-number")

	path := writeConfig(t, t.TempDir(), "api_key: file-key\n")
	cfg, err := Load(path, logging.Nop())
	require.NoError(t, err)

	assert.Equal(t, "https://env.example", cfg.Endpoint)
	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, 64, cfg.Process.MaxQueueSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Batch().ScheduleDelay)
	assert.Equal(t, 512, cfg.Process.MaxExportBatchSize, "unparsable value keeps the default")
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Endpoint = ""
	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrMissingEndpoint)
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	cfg = DefaultConfig()
	cfg.APIKey = "k"
	require.NoError(t, cfg.Validate())

	cfg.Process.MaxExportBatchSize = 4096
	assert.ErrorContains(t, cfg.Validate(), "exceeds max_queue_size")

	cfg = DefaultConfig()
	cfg.APIKey = "k"
	cfg.Process.ScheduleDelayMillis = 0
	assert.ErrorContains(t, cfg.Validate(), "schedule_delay_millis must be positive")

	cfg = DefaultConfig()
	cfg.APIKey = "k"
	cfg.Scrub.ExtraPatterns = []string{"tapwire_.*"}
	assert.ErrorIs(t, cfg.Validate(), scrub.ErrProtectedPattern)
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "api_key: k\n")

	got := make(chan *Config, 4)
	w, err := NewWatcher(path, func(c *Config) { got <- c }, logging.Nop())
	require.NoError(t, err)
	w.delay = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// an invalid config is not delivered
	require.NoError(t, os.WriteFile(path, []byte("api_key: \"\"\n"), 0600))
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, got)

	require.NoError(t, os.WriteFile(path, []byte("api_key: k\nscrub:\n  extra_patterns: [ssn]\n"), 0600))

	select {
	case cfg := <-got:
		assert.Equal(t, []string{"ssn"}, cfg.Scrub.ExtraPatterns)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}

	cancel()
	require.NoError(t, <-done)
}
