package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/backmassage/shrinkwrap/internal/config"
	"github.com/backmassage/shrinkwrap/internal/logging"
	"github.com/backmassage/shrinkwrap/internal/orchestrator"
	"golang.org/x/sync/errgroup"
)

// Processor handles one input file. Satisfied by orchestrator.Orchestrator.
type Processor interface {
	ProcessFile(ctx context.Context, path string) orchestrator.FileResult
}

// Run discovers the work list and dispatches it to a bounded pool of
// workers. A panic while processing one file is converted into a failed
// result for that file; the rest of the batch continues. Context
// cancellation stops dispatching new files but lets in-flight files return.
func Run(ctx context.Context, cfg *config.Config, orch Processor) (*RunStats, error) {
	log := logging.WithComponent("pipeline")

	for _, dir := range []string{cfg.JobDir(), cfg.TempDir(), cfg.DoneDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}

	files, err := Discover(cfg)
	if err != nil {
		return nil, fmt.Errorf("discovering inputs: %w", err)
	}
	log.Info().Int("files", len(files)).Int("workers", cfg.Workers).Msg("batch discovered")

	stats := NewRunStats()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, path := range files {
		if gctx.Err() != nil {
			break
		}
		path := path
		g.Go(func() error {
			stats.Add(processSafely(gctx, orch, path))
			return nil
		})
	}
	_ = g.Wait()

	return stats, ctx.Err()
}

// processSafely runs one file through the orchestrator, recovering a panic
// into a failed result so a single bad input cannot take down the batch.
func processSafely(ctx context.Context, orch Processor, path string) (res orchestrator.FileResult) {
	defer func() {
		if r := recover(); r != nil {
			log := logging.WithFile("pipeline", path)
			log.Error().
				Interface("panic", r).Msg("worker panicked, isolating file")
			res = orchestrator.FileResult{
				Path:  path,
				Class: orchestrator.ClassFailed,
				Err:   fmt.Errorf("panic while processing: %v", r),
			}
		}
	}()
	return orch.ProcessFile(ctx, path)
}
