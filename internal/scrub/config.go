package scrub

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Mode selects which scrubber the pipeline uses.
type Mode string

const (
	ModeDefault Mode = "default" // built-in patterns plus extra_patterns
	ModeNone    Mode = "none"    // pass-through
	ModeCustom  Mode = "custom"  // extra_patterns only
)

// Config holds operator-defined scrubbing customizations.
type Config struct {
	Mode          Mode     `yaml:"mode"`
	ExtraPatterns []string `yaml:"extra_patterns"`
}

// LoadConfig reads a scrub config from a standalone YAML file.
// A missing file returns nil config (not error).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read scrub config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse scrub config: %w", err)
	}
	return &cfg, nil
}

// FromConfig builds the scrubber cfg describes. A nil config yields the
// default scrubber.
func FromConfig(cfg *Config) (Scrubber, error) {
	if cfg == nil {
		return New()
	}
	switch cfg.Mode {
	case "", ModeDefault:
		return New(cfg.ExtraPatterns...)
	case ModeNone:
		return NoOp{}, nil
	case ModeCustom:
		if len(cfg.ExtraPatterns) == 0 {
			return nil, fmt.Errorf("scrub mode %q requires extra_patterns", cfg.Mode)
		}
		return NewWithBase(nil, cfg.ExtraPatterns...)
	default:
		return nil, fmt.Errorf("unknown scrub mode %q", cfg.Mode)
	}
}
