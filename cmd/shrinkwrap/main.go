// Command shrinkwrap is the entrypoint for the batch transcoder CLI. It
// parses flags, validates config and paths, and either runs system check
// (--check) or the full pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/backmassage/shrinkwrap/internal/check"
	"github.com/backmassage/shrinkwrap/internal/config"
	"github.com/backmassage/shrinkwrap/internal/crfsearch"
	"github.com/backmassage/shrinkwrap/internal/display"
	"github.com/backmassage/shrinkwrap/internal/encode"
	"github.com/backmassage/shrinkwrap/internal/jobstore"
	"github.com/backmassage/shrinkwrap/internal/langdetect"
	"github.com/backmassage/shrinkwrap/internal/logging"
	"github.com/backmassage/shrinkwrap/internal/orchestrator"
	"github.com/backmassage/shrinkwrap/internal/pipeline"
	"github.com/backmassage/shrinkwrap/internal/probe"
)

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Load config from defaults, config file/env overlay, and CLI flags.
	cfg := config.DefaultConfig()
	if err := config.ParseFlags(&cfg, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "shrinkwrap: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "shrinkwrap: %v\n", err)
		return 1
	}

	logging.Configure(logging.Options{
		Verbose: cfg.Verbose,
		Console: logging.IsTerminal(os.Stderr),
	})
	log := logging.Base()

	// 2. System check mode runs diagnostics and exits.
	if cfg.CheckOnly {
		check.RunCheck(&cfg, log)
		return 0
	}

	// 3. Resolve and validate paths: input must exist, output is created if
	// needed and must not be inside the input root.
	inputAbs, err := absPath(cfg.InputRoot)
	if err != nil {
		log.Error().Str("path", cfg.InputRoot).Msg("input root not found")
		return 1
	}
	if err := os.MkdirAll(cfg.OutputRoot, 0o755); err != nil {
		log.Error().Err(err).Str("path", cfg.OutputRoot).Msg("cannot create output root")
		return 1
	}
	outputAbs, err := absPath(cfg.OutputRoot)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.OutputRoot).Msg("cannot resolve output root")
		return 1
	}
	if err := cfg.ValidatePaths(inputAbs, outputAbs); err != nil {
		log.Error().Err(err).Msg("invalid path layout")
		return 1
	}
	cfg.InputRoot = inputAbs
	cfg.OutputRoot = outputAbs

	// 4. Fail fast when the required external tools are missing.
	if !cfg.DryRun {
		if err := check.CheckDeps(&cfg); err != nil {
			log.Error().Err(err).Msg("dependency check failed")
			return 1
		}
	}

	log.Info().Str("in", cfg.InputRoot).Str("out", cfg.OutputRoot).
		Int("workers", cfg.Workers).Bool("dry_run", cfg.DryRun).Msg("starting batch")

	// 5. Wire the collaborators and run the batch under signal cancellation.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := jobstore.NewStore(cfg.JobDir())
	if err != nil {
		log.Error().Err(err).Msg("cannot open job store")
		return 1
	}

	var detector langdetect.Detector
	if _, lerr := exec.LookPath(cfg.DetectBinary); lerr == nil {
		detector = langdetect.Command{Binary: cfg.DetectBinary}
	} else {
		log.Warn().Str("binary", cfg.DetectBinary).
			Msg("language classifier unavailable, untagged audio will be accepted")
	}

	searchEngine := crfsearch.NewEngine(&cfg,
		crfsearch.Command{Binary: cfg.SearchBinary}, store, logging.WithComponent("crfsearch"))
	encodeRunner := encode.NewRunner(&cfg,
		encode.FFmpeg{Verbose: cfg.Verbose}, store, logging.WithComponent("encode"))
	orch := orchestrator.New(&cfg, probe.FFprobe{}, detector, searchEngine, encodeRunner, store)

	stats, runErr := pipeline.Run(ctx, &cfg, orch)
	if stats != nil && !cfg.DryRun {
		pipeline.PostActions(&cfg, store)
	}
	if stats != nil {
		printSummary(&cfg, stats)
	}

	switch {
	case runErr != nil:
		log.Warn().Err(runErr).Msg("batch interrupted")
		return 130
	case stats != nil && stats.Failed > 0:
		return 2
	default:
		return 0
	}
}

// printSummary logs the batch totals.
func printSummary(cfg *config.Config, stats *pipeline.RunStats) {
	log := logging.WithComponent("summary")
	log.Info().
		Int("total", stats.Total).
		Int("completed", stats.Completed).
		Int("skipped", stats.Skipped).
		Int("retryable", stats.Retryable).
		Int("failed", stats.Failed).
		Str("elapsed", display.FormatDuration(stats.Elapsed())).
		Msg("batch finished")
	if cfg.DryRun {
		log.Info().Int("previewed", stats.DryRun).Msg("dry run, nothing was encoded or moved")
		return
	}
	if stats.Completed > 0 {
		log.Info().
			Str("input", display.FormatBytes(stats.InputBytes)).
			Str("output", display.FormatBytes(stats.OutputBytes)).
			Str("saved", display.FormatBytesWithSign(stats.SpaceSaved())).
			Msg("space reclaimed")
	}
}

// absPath resolves path to an absolute, symlink-free form. The path must exist.
func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
