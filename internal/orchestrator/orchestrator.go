// Package orchestrator drives one input file through the full job state
// machine: probe, screening, stream selection, quality search, encode with
// remediation, and finalization. Every stage transition is persisted before
// the stage's external work starts, so a crash resumes at the interrupted
// stage instead of the beginning.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/backmassage/shrinkwrap/internal/config"
	"github.com/backmassage/shrinkwrap/internal/crfsearch"
	"github.com/backmassage/shrinkwrap/internal/encode"
	"github.com/backmassage/shrinkwrap/internal/jobstore"
	"github.com/backmassage/shrinkwrap/internal/langdetect"
	"github.com/backmassage/shrinkwrap/internal/logging"
	"github.com/backmassage/shrinkwrap/internal/naming"
	"github.com/backmassage/shrinkwrap/internal/probe"
	"github.com/backmassage/shrinkwrap/internal/selector"
	"github.com/rs/zerolog"
)

// Class is the file-level outcome category, aggregated into run stats.
type Class int

const (
	ClassCompleted Class = iota
	ClassSkipped
	ClassRetryable // left in place for a future run
	ClassFailed
	ClassDryRun
)

// String returns the class's log name.
func (c Class) String() string {
	switch c {
	case ClassCompleted:
		return "completed"
	case ClassSkipped:
		return "skipped"
	case ClassRetryable:
		return "retryable"
	case ClassFailed:
		return "failed"
	default:
		return "dry-run"
	}
}

// FileResult is the outcome of processing one input file.
type FileResult struct {
	Path        string
	Class       Class
	Condition   selector.Condition
	InputBytes  int64
	OutputBytes int64
	Err         error
}

// Orchestrator holds the collaborators for per-file processing. All external
// tools sit behind interfaces so the state machine is testable without
// subprocesses.
type Orchestrator struct {
	cfg        *config.Config
	prober     probe.Prober
	detector   langdetect.Detector
	search     *crfsearch.Engine
	encoder    *encode.Runner
	store      *jobstore.Store
	collisions *naming.CollisionResolver
	log        zerolog.Logger
}

// New wires an Orchestrator from its collaborators.
func New(cfg *config.Config, prober probe.Prober, detector langdetect.Detector,
	search *crfsearch.Engine, encoder *encode.Runner, store *jobstore.Store) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		prober:     prober,
		detector:   detector,
		search:     search,
		encoder:    encoder,
		store:      store,
		collisions: naming.NewCollisionResolver(),
		log:        logging.WithComponent("orchestrator"),
	}
}

// ProcessFile runs path through the state machine and returns its outcome.
//
// Flow:
//  1. Content hash identifies the file; an unreadable file is routed to the
//     unreadable holding area without a record.
//  2. A surviving terminal record means a crash interrupted finalization:
//     the side effects are re-run without invoking any external tool.
//  3. Otherwise the file is probed, screened, its streams selected, its
//     quality parameter decided, and the encode performed, resuming at
//     whichever stage the record points to.
func (o *Orchestrator) ProcessFile(ctx context.Context, path string) FileResult {
	log := logging.WithFile("orchestrator", path)

	hash, size, err := probe.ContentHash(path)
	if err != nil {
		log.Error().Err(err).Msg("cannot read input for hashing")
		if !o.cfg.DryRun {
			o.moveToHolding(path, config.HoldUnreadable, log)
		}
		return FileResult{Path: path, Class: ClassFailed, Err: err}
	}

	if o.cfg.DryRun {
		return o.dryRun(ctx, path, size, log)
	}

	rec, found := o.store.Load(hash)
	if found && rec.Status.Terminal() {
		log.Info().Str("status", string(rec.Status)).Msg("resuming interrupted finalization")
		return o.finalize(path, rec, size, log)
	}
	if !found {
		rec = jobstore.New(hash)
	}

	mi, err := o.prober.Probe(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return FileResult{Path: path, Class: ClassRetryable, Err: ctx.Err()}
		}
		log.Error().Err(err).Msg("probe failed, routing to unreadable holding")
		rec.Status = jobstore.StatusErrorPermanent
		rec.LastError = "probe failed: " + err.Error()
		rec.FailCategory = config.HoldUnreadable
		if serr := o.store.Save(rec); serr != nil {
			return FileResult{Path: path, Class: ClassFailed, Err: serr}
		}
		return o.finalize(path, rec, size, log)
	}
	mi.ContentHash = hash
	if mi.Size == 0 {
		mi.Size = size
	}

	return o.run(ctx, path, rec, mi, log)
}

// run sequences the stages from wherever the record left off.
func (o *Orchestrator) run(ctx context.Context, path string, rec *jobstore.Record, mi *probe.MediaInput, log zerolog.Logger) FileResult {
	// A retryable record resumes at the stage its progress implies: a
	// decided parameter pair goes straight back to the encode.
	stage := rec.Status
	if stage == jobstore.StatusErrorRetryable {
		if rec.Decided() {
			stage = jobstore.StatusPreprocessingDone
		} else {
			stage = jobstore.StatusPending
		}
	}

	if stage == jobstore.StatusPending || stage == jobstore.StatusPreprocessingStarted {
		res, done := o.preprocess(ctx, path, rec, mi, log)
		if done {
			return res
		}
		stage = jobstore.StatusCRFSearchStarted
	}

	if stage == jobstore.StatusCRFSearchStarted {
		rec.Status = jobstore.StatusCRFSearchStarted
		if err := o.store.Save(rec); err != nil {
			return FileResult{Path: path, Class: ClassFailed, Err: err}
		}
		if err := o.search.Run(ctx, rec, path); err != nil {
			return o.classifyError(ctx, path, rec, mi, err, log)
		}
		rec.Status = jobstore.StatusPreprocessingDone
		if err := o.store.Save(rec); err != nil {
			return FileResult{Path: path, Class: ClassFailed, Err: err}
		}
	}

	return o.encodePhase(ctx, path, rec, mi, log)
}

// preprocess runs screening and stream selection. The bool result reports
// whether processing ended here (skip, failure, or persistence error).
func (o *Orchestrator) preprocess(ctx context.Context, path string, rec *jobstore.Record, mi *probe.MediaInput, log zerolog.Logger) (FileResult, bool) {
	rec.Status = jobstore.StatusPreprocessingStarted
	if err := o.store.Save(rec); err != nil {
		return FileResult{Path: path, Class: ClassFailed, Err: err}, true
	}

	if out := selector.Screen(o.cfg, mi); out.Verdict != selector.Proceed {
		return o.settleOutcome(path, rec, mi, out, log), true
	}

	sel, out := selector.SelectStreams(ctx, o.cfg, mi, o.detector, log)
	if out.Verdict != selector.Proceed {
		return o.settleOutcome(path, rec, mi, out, log), true
	}
	rec.Streams = sel
	return FileResult{}, false
}

// encodePhase performs the encode with remediation, then moves the finished
// output into place and finalizes.
func (o *Orchestrator) encodePhase(ctx context.Context, path string, rec *jobstore.Record, mi *probe.MediaInput, log zerolog.Logger) FileResult {
	if !rec.Decided() {
		// Contract violation: the search stage must always leave a decision,
		// manual fallback included. Fail the file permanently rather than
		// invoking the transcoder with a zero quality parameter.
		err := fmt.Errorf("record %s reached encode phase undecided", rec.Hash)
		log.Error().Err(err).Msg("state machine contract violation")
		rec.Status = jobstore.StatusErrorPermanent
		rec.LastError = err.Error()
		rec.FailCategory = config.HoldFailed
		if serr := o.store.Save(rec); serr != nil {
			return FileResult{Path: path, Class: ClassFailed, Err: serr}
		}
		return o.finalize(path, rec, mi.Size, log)
	}

	rec.Status = jobstore.StatusEncodingStarted
	if err := o.store.Save(rec); err != nil {
		return FileResult{Path: path, Class: ClassFailed, Err: err}
	}

	log.Info().Str("encoder", rec.ChosenEncoder).Int("crf", rec.ChosenCRF).
		Bool("manual", rec.Streams.ManualMode).Msg("starting encode")

	tempOut, err := o.encoder.Encode(ctx, rec, mi)
	if err != nil {
		return o.classifyError(ctx, path, rec, mi, err, log)
	}

	// The output move happens during finalization so a crash here replays it.
	rec.Status = jobstore.StatusCompleted
	rec.TempOutputPath = tempOut
	if err := o.store.Save(rec); err != nil {
		return FileResult{Path: path, Class: ClassFailed, Err: err}
	}
	return o.finalize(path, rec, mi.Size, log)
}

// classifyError applies the error taxonomy: context cancellation leaves the
// record untouched for the next run; structural encode failures are
// permanent; everything else is retryable with a bounded retry count.
func (o *Orchestrator) classifyError(ctx context.Context, path string, rec *jobstore.Record, mi *probe.MediaInput, err error, log zerolog.Logger) FileResult {
	if ctx.Err() != nil {
		return FileResult{Path: path, Class: ClassRetryable, Err: ctx.Err()}
	}

	rec.LastError = err.Error()

	if errors.Is(err, encode.ErrOversizedAtCeiling) || errors.Is(err, encode.ErrOutputMissing) {
		log.Error().Err(err).Msg("permanent encode failure")
		rec.Status = jobstore.StatusErrorPermanent
		rec.FailCategory = config.HoldFailed
		if errors.Is(err, encode.ErrOversizedAtCeiling) {
			rec.FailCategory = config.HoldOversized
		}
		if serr := o.store.Save(rec); serr != nil {
			return FileResult{Path: path, Class: ClassFailed, Err: serr}
		}
		res := o.finalize(path, rec, mi.Size, log)
		res.Err = err
		return res
	}

	rec.RetryCount++
	if rec.RetryCount >= o.cfg.MaxRetries {
		log.Error().Err(err).Int("retries", rec.RetryCount).
			Msg("retry budget exhausted, failing permanently")
		rec.Status = jobstore.StatusErrorPermanent
		rec.FailCategory = config.HoldFailed
		if serr := o.store.Save(rec); serr != nil {
			return FileResult{Path: path, Class: ClassFailed, Err: serr}
		}
		res := o.finalize(path, rec, mi.Size, log)
		res.Err = err
		return res
	}

	log.Warn().Err(err).Int("retry", rec.RetryCount).Int("max", o.cfg.MaxRetries).
		Msg("retryable failure, will try again next run")
	rec.Status = jobstore.StatusErrorRetryable
	if serr := o.store.Save(rec); serr != nil {
		return FileResult{Path: path, Class: ClassFailed, Err: serr}
	}
	return FileResult{Path: path, Class: ClassRetryable, InputBytes: mi.Size, Err: err}
}

// settleOutcome converts a Skip or Fail selector outcome into its terminal
// record status and runs finalization.
func (o *Orchestrator) settleOutcome(path string, rec *jobstore.Record, mi *probe.MediaInput, out selector.Outcome, log zerolog.Logger) FileResult {
	switch out.Verdict {
	case selector.Skip:
		log.Info().Str("condition", out.Condition.String()).Msg(out.Message)
		rec.Status = jobstore.StatusSkipped
	default:
		log.Error().Str("condition", out.Condition.String()).Msg(out.Message)
		rec.Status = jobstore.StatusErrorPermanent
		rec.FailCategory = config.HoldFailed
	}
	rec.LastError = out.Message
	if err := o.store.Save(rec); err != nil {
		return FileResult{Path: path, Class: ClassFailed, Err: err}
	}

	res := o.finalize(path, rec, mi.Size, log)
	res.Condition = out.Condition
	return res
}

// dryRun reports what would happen to path without persisting anything or
// invoking the search or encode tools.
func (o *Orchestrator) dryRun(ctx context.Context, path string, size int64, log zerolog.Logger) FileResult {
	mi, err := o.prober.Probe(ctx, path)
	if err != nil {
		log.Error().Err(err).Msg("dry run: probe failed")
		return FileResult{Path: path, Class: ClassDryRun, InputBytes: size, Err: err}
	}
	mi.Size = size

	if out := selector.Screen(o.cfg, mi); out.Verdict != selector.Proceed {
		log.Info().Str("condition", out.Condition.String()).Msgf("dry run: would settle: %s", out.Message)
		return FileResult{Path: path, Class: ClassDryRun, Condition: out.Condition, InputBytes: size}
	}
	sel, out := selector.SelectStreams(ctx, o.cfg, mi, o.detector, log)
	if out.Verdict != selector.Proceed {
		log.Info().Str("condition", out.Condition.String()).Msgf("dry run: would settle: %s", out.Message)
		return FileResult{Path: path, Class: ClassDryRun, Condition: out.Condition, InputBytes: size}
	}

	log.Info().
		Ints("video", sel.Video).Ints("audio", sel.Audio).Ints("subtitle", sel.Subtitle).
		Msg("dry run: would encode")
	return FileResult{Path: path, Class: ClassDryRun, InputBytes: size}
}
