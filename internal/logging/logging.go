// Package logging provides JSON structured logging using zerolog.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the process-wide logger.
type Config struct {
	Level  string `yaml:"level"  json:"level"`
	Debug  bool   `yaml:"debug"  json:"debug"`
	Output string `yaml:"output" json:"output"` // "stdout", "stderr" (default), "discard"
}

var (
	mu     sync.RWMutex
	global = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	// zerolog's global floor defaults to debug; leave filtering to each
	// logger's own level so "trace" is reachable.
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
}

// Init replaces the process-wide logger. Telemetry output goes to stderr by
// default so it never mixes with a host application's stdout.
func Init(cfg Config) error {
	var out io.Writer = os.Stderr
	switch cfg.Output {
	case "stdout":
		out = os.Stdout
	case "discard":
		out = io.Discard
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	} else if cfg.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return err
		}
	}

	mu.Lock()
	global = zerolog.New(out).Level(level).With().Timestamp().Logger()
	mu.Unlock()
	return nil
}

// Logger returns the process-wide logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// WithComponent returns a sub-logger tagged with the component name.
func WithComponent(component string) zerolog.Logger {
	return Logger().With().Str("component", component).Logger()
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
