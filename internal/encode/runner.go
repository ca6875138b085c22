package encode

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/backmassage/shrinkwrap/internal/config"
	"github.com/backmassage/shrinkwrap/internal/jobstore"
	"github.com/backmassage/shrinkwrap/internal/probe"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Structural failures of the encode phase. Both are permanent: retrying the
// same command cannot fix them.
var (
	// ErrOversizedAtCeiling means the output exceeded the input size with
	// the quality parameter already at the absolute ceiling.
	ErrOversizedAtCeiling = errors.New("output oversized with quality parameter at ceiling")

	// ErrOutputMissing means the transcoder exited zero but produced no file.
	ErrOutputMissing = errors.New("transcoder reported success but output file is missing")
)

// ExecError wraps a transcoder failure with its captured stderr transcript.
// These are the retryable encode failures.
type ExecError struct {
	Stderr string
	Err    error
}

func (e *ExecError) Error() string { return fmt.Sprintf("transcoder failed: %v", e.Err) }
func (e *ExecError) Unwrap() error { return e.Err }

// Runner performs the real encode with remediation. All persisted state
// transitions go through the job store so a crash at any point resumes with
// the next parameter to try, not the first.
type Runner struct {
	cfg   *config.Config
	exec  Executor
	store *jobstore.Store
	log   zerolog.Logger
}

// NewRunner constructs a Runner. The executor is injectable for tests.
func NewRunner(cfg *config.Config, exec Executor, store *jobstore.Store, log zerolog.Logger) *Runner {
	return &Runner{cfg: cfg, exec: exec, store: store, log: log}
}

// Encode runs the transcode for rec, remediating oversized outputs by
// escalating the quality parameter until the output fits or the ceiling is
// hit. On success it returns the finished temp output path; the caller moves
// it into place.
//
// The loop persists the escalated parameter before re-encoding, so the
// record always reflects the next parameter to try.
func (r *Runner) Encode(ctx context.Context, rec *jobstore.Record, mi *probe.MediaInput) (string, error) {
	if !rec.Decided() {
		// Programming-contract violation, not a user error: the orchestrator
		// must not reach the encode phase without a decided parameter pair.
		return "", fmt.Errorf("encode phase entered with undecided encoder/parameter (hash %s)", rec.Hash)
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		outPath, err := r.encodeOnce(ctx, rec, mi)
		if err != nil {
			return "", err
		}

		outInfo, err := os.Stat(outPath)
		if err != nil {
			return "", ErrOutputMissing
		}

		if outInfo.Size() <= mi.Size {
			return outPath, nil
		}

		// Oversized: the attempt is discarded and the parameter escalated.
		overshoot := float64(outInfo.Size()) / float64(mi.Size)
		_ = os.Remove(outPath)

		if rec.ChosenCRF >= r.cfg.CRFCeiling {
			return "", fmt.Errorf("%w (crf %d, output %d%% of input)",
				ErrOversizedAtCeiling, rec.ChosenCRF, int(overshoot*100))
		}

		next := rec.ChosenCRF + Increment(overshoot)
		if next > r.cfg.CRFCeiling {
			next = r.cfg.CRFCeiling
		}
		r.log.Warn().
			Int("crf", rec.ChosenCRF).
			Int("next_crf", next).
			Int("output_pct", int(overshoot*100)).
			Msg("output larger than input, escalating quality parameter")

		rec.ChosenCRF = next
		rec.TempOutputPath = ""
		if err := r.store.Save(rec); err != nil {
			return "", err
		}
	}
}

// encodeOnce performs a single transcode attempt, including the MP4→MKV
// container fallback: when the MP4 mux fails, the same logical encode is
// retried once into MKV with stream-copy-friendly codec choices before the
// attempt is classified as failed.
func (r *Runner) encodeOnce(ctx context.Context, rec *jobstore.Record, mi *probe.MediaInput) (string, error) {
	container := r.cfg.OutputContainer
	outPath := r.tempPath(rec, container)

	args := BuildArgs(r.cfg, mi, rec, container, outPath)
	rec.TempOutputPath = outPath
	rec.FFmpegCommand = strings.Join(args, " ")
	if err := r.store.Save(rec); err != nil {
		return "", err
	}

	stderr, err := r.exec.Run(ctx, args)
	if err == nil {
		return outPath, nil
	}
	_ = os.Remove(outPath)

	if container != config.ContainerMP4 {
		return "", &ExecError{Stderr: stderr, Err: err}
	}

	r.log.Warn().Err(err).Msg("mp4 encode failed, retrying once with mkv container")
	mkvPath := replaceExt(outPath, ".mkv")
	args = BuildArgs(r.cfg, mi, rec, config.ContainerMKV, mkvPath)
	rec.TempOutputPath = mkvPath
	rec.FFmpegCommand = strings.Join(args, " ")
	if err := r.store.Save(rec); err != nil {
		return "", err
	}

	stderr2, err2 := r.exec.Run(ctx, args)
	if err2 == nil {
		return mkvPath, nil
	}
	_ = os.Remove(mkvPath)
	return "", &ExecError{Stderr: stderr + "\n" + stderr2, Err: err2}
}

// tempPath reuses the persisted in-flight output path when its container
// matches, so a resumed run keeps its bookkeeping stable; otherwise it mints
// a fresh name.
func (r *Runner) tempPath(rec *jobstore.Record, container config.Container) string {
	ext := "." + string(container)
	if rec.TempOutputPath != "" && filepath.Ext(rec.TempOutputPath) == ext {
		return rec.TempOutputPath
	}
	return filepath.Join(r.cfg.TempDir(), uuid.NewString()+ext)
}

// Increment computes the quality-parameter escalation step from the
// overshoot ratio (output/input, > 1). A bare miss bumps by the minimum of
// 3; a 50% overshoot bumps by 8.
func Increment(overshoot float64) int {
	step := int(math.Round(3 + (overshoot-1)*10))
	if step < 3 {
		step = 3
	}
	return step
}

func replaceExt(path, newExt string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + newExt
}
