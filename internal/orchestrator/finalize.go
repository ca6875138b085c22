package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/backmassage/shrinkwrap/internal/config"
	"github.com/backmassage/shrinkwrap/internal/jobstore"
	"github.com/backmassage/shrinkwrap/internal/naming"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

// finalize runs the side effects of a terminal record, then deletes it.
// Every step is idempotent: a crash mid-finalization leaves the terminal
// record in place and the next run replays the remaining steps.
func (o *Orchestrator) finalize(path string, rec *jobstore.Record, inputSize int64, log zerolog.Logger) FileResult {
	res := FileResult{Path: path, InputBytes: inputSize}

	switch rec.Status {
	case jobstore.StatusCompleted:
		outBytes, err := o.finalizeCompleted(path, rec, inputSize, log)
		if err != nil {
			log.Error().Err(err).Msg("finalization failed, record kept for next run")
			res.Class = ClassFailed
			res.Err = err
			return res
		}
		res.Class = ClassCompleted
		res.OutputBytes = outBytes

	case jobstore.StatusSkipped:
		o.moveToHolding(path, config.HoldSkipped, log)
		res.Class = ClassSkipped

	case jobstore.StatusErrorPermanent:
		o.removeTempOutput(rec)
		o.moveToHolding(path, o.holdingCategory(rec), log)
		res.Class = ClassFailed
		if rec.LastError != "" {
			res.Err = fmt.Errorf("%s", rec.LastError)
		}

	default:
		res.Class = ClassFailed
		res.Err = fmt.Errorf("finalize called on non-terminal status %q", rec.Status)
		return res
	}

	if err := o.store.Delete(rec.Hash); err != nil {
		log.Warn().Err(err).Msg("could not delete finished job record")
	}
	return res
}

// finalizeCompleted moves the finished output into place, archives the
// original, and writes the per-file success entry. Returns the output size.
func (o *Orchestrator) finalizeCompleted(path string, rec *jobstore.Record, inputSize int64, log zerolog.Logger) (int64, error) {
	container := o.cfg.OutputContainer
	if ext := strings.TrimPrefix(filepath.Ext(rec.TempOutputPath), "."); ext != "" {
		container = config.Container(ext)
	}
	requested, err := naming.OutputPath(o.cfg, path, container)
	if err != nil {
		return 0, err
	}
	finalPath := o.collisions.Resolve(path, requested)

	// Move the temp output into place unless a previous run already did.
	if _, err := os.Stat(rec.TempOutputPath); err == nil {
		if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
			return 0, err
		}
		if err := os.Rename(rec.TempOutputPath, finalPath); err != nil {
			return 0, err
		}
		log.Info().Str("output", finalPath).Msg("output placed")
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return 0, fmt.Errorf("finished output missing at %s: %w", finalPath, err)
	}

	if err := o.writeDoneEntry(path, rec, inputSize, info.Size()); err != nil {
		log.Warn().Err(err).Msg("could not write success entry")
	}
	o.archiveOriginal(path, log)
	return info.Size(), nil
}

// writeDoneEntry records one success line in the done directory, merged into
// the success log by the post-batch cleanup.
func (o *Orchestrator) writeDoneEntry(path string, rec *jobstore.Record, inputBytes, outputBytes int64) error {
	if err := os.MkdirAll(o.cfg.DoneDir(), 0o755); err != nil {
		return err
	}
	line := fmt.Sprintf("%s\t%s\t%s\t%d\t%d\n",
		time.Now().UTC().Format(time.RFC3339), path,
		fmt.Sprintf("%s crf %d", rec.ChosenEncoder, rec.ChosenCRF),
		inputBytes, outputBytes)
	entry := filepath.Join(o.cfg.DoneDir(), rec.Hash+".done")
	return renameio.WriteFile(entry, []byte(line), 0o644)
}

// archiveOriginal moves the completed input under the archive root, mirroring
// its input-relative path. No archive root configured means the original
// stays where it is.
func (o *Orchestrator) archiveOriginal(path string, log zerolog.Logger) {
	if o.cfg.ArchiveRoot == "" {
		return
	}
	rel, err := filepath.Rel(o.cfg.InputRoot, path)
	if err != nil {
		log.Warn().Err(err).Msg("cannot archive input outside the input root")
		return
	}
	dest := filepath.Join(o.cfg.ArchiveRoot, rel)
	if err := movePath(path, dest); err != nil {
		log.Warn().Err(err).Str("dest", dest).Msg("could not archive original")
		return
	}
	log.Info().Str("dest", dest).Msg("original archived")
}

// holdingCategory returns the holding subdirectory recorded when the failure
// was classified. Records written before the category existed fall back to
// the generic failed area.
func (o *Orchestrator) holdingCategory(rec *jobstore.Record) string {
	if rec.FailCategory != "" {
		return rec.FailCategory
	}
	return config.HoldFailed
}

// moveToHolding routes path into the holding directory for category,
// preserving its input-relative layout. Failures are logged, not fatal:
// leaving the file in place only means it is re-examined next run.
func (o *Orchestrator) moveToHolding(path, category string, log zerolog.Logger) {
	rel, err := filepath.Rel(o.cfg.InputRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	dest := filepath.Join(o.cfg.HoldingDir(category), rel)
	if err := movePath(path, dest); err != nil {
		log.Warn().Err(err).Str("dest", dest).Msg("could not move input to holding")
		return
	}
	log.Info().Str("dest", dest).Str("category", category).Msg("input moved to holding")
}

// removeTempOutput discards any in-flight encode output of a failed job.
func (o *Orchestrator) removeTempOutput(rec *jobstore.Record) {
	if rec.TempOutputPath != "" {
		_ = os.Remove(rec.TempOutputPath)
	}
}

// movePath renames src to dest, creating parent directories. A rename across
// filesystems falls back to copy-and-delete.
func movePath(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(dest, data, 0o644); err != nil {
		return err
	}
	return os.Remove(src)
}
