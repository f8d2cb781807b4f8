package cli

import (
	"context"
	"fmt"

	"github.com/ppiankov/tapwire/internal/admit"
	"github.com/ppiankov/tapwire/internal/batch"
	"github.com/ppiankov/tapwire/internal/config"
	"github.com/ppiankov/tapwire/internal/decode"
	"github.com/ppiankov/tapwire/internal/export"
	"github.com/ppiankov/tapwire/internal/logging"
	"github.com/ppiankov/tapwire/internal/pipeline"
	"github.com/ppiankov/tapwire/internal/provider"
	"github.com/ppiankov/tapwire/internal/tracer"
)

// stack is a running capture pipeline.
type stack struct {
	queue    *batch.Processor
	pipe     *pipeline.Pipeline
	recorder *tracer.Recorder
}

// newStack wires exporters, queue, pipeline and recorder from cfg. With
// noExport set only the dump file (if any) receives spans.
func newStack(cfg *config.Config, dump string, noExport bool) (*stack, error) {
	var exporters export.Multi
	if !noExport {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		exporters = append(exporters, export.NewHTTP(cfg.HTTP(), logging.WithComponent("export")))
	}
	if dump == "" {
		dump = cfg.Dump
	}
	if dump != "" {
		f, err := export.OpenFile(dump)
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, f)
	}
	if len(exporters) == 0 {
		return nil, fmt.Errorf("nothing to export to: drop --no-export or set --dump")
	}

	scrubber, err := cfg.Scrubber()
	if err != nil {
		return nil, fmt.Errorf("invalid scrub config: %w", err)
	}

	queue := batch.New(exporters, cfg.Batch(), logging.WithComponent("batch"))
	pipe := pipeline.New(
		admit.New(logging.WithComponent("admit")),
		decode.NewStage(provider.NewRegistry(), logging.WithComponent("decode")),
		scrubber,
		queue,
		logging.WithComponent("pipeline"),
	)
	return &stack{
		queue:    queue,
		pipe:     pipe,
		recorder: tracer.New(pipe, version, logging.WithComponent("tracer")),
	}, nil
}

// reload swaps in the scrubber of a freshly loaded config.
func (s *stack) reload(cfg *config.Config) {
	scrubber, err := cfg.Scrubber()
	if err != nil {
		log := logging.WithComponent("config")
		log.Error().Err(err).Msg("scrubber not reloaded")
		return
	}
	s.pipe.SetScrubber(scrubber)
}

// close flushes and stops the pipeline.
func (s *stack) close(ctx context.Context) (batch.Stats, error) {
	err := s.pipe.Shutdown(ctx)
	return s.queue.Stats(), err
}
