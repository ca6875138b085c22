package pipeline

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/backmassage/shrinkwrap/internal/config"
	"github.com/backmassage/shrinkwrap/internal/jobstore"
	"github.com/backmassage/shrinkwrap/internal/logging"
	"github.com/google/renameio/v2"
)

// PostActions runs the cleanup that belongs after all workers have exited:
// merging per-file success entries into the success log, discarding temp
// outputs no live record references, and pruning input directories the batch
// emptied out. Each step logs its own failures and continues.
func PostActions(cfg *config.Config, store *jobstore.Store) {
	log := logging.WithComponent("cleanup")

	if err := mergeDoneEntries(cfg); err != nil {
		log.Warn().Err(err).Msg("could not merge success entries")
	}
	if cfg.CleanupStaleTemp {
		cleanStaleTemp(cfg, store)
	}
	pruneEmptyDirs(cfg)
}

// mergeDoneEntries appends every per-file success entry to the success log
// in filename order, then removes the entries. The log is rewritten
// atomically, so a crash leaves either the old log or the fully merged one.
func mergeDoneEntries(cfg *config.Config) error {
	entries, err := filepath.Glob(filepath.Join(cfg.DoneDir(), "*.done"))
	if err != nil || len(entries) == 0 {
		return err
	}
	sort.Strings(entries)

	var merged strings.Builder
	if existing, err := os.ReadFile(cfg.SuccessLog()); err == nil {
		merged.Write(existing)
	}
	for _, entry := range entries {
		data, err := os.ReadFile(entry)
		if err != nil {
			continue
		}
		merged.Write(data)
	}

	if err := renameio.WriteFile(cfg.SuccessLog(), []byte(merged.String()), 0o644); err != nil {
		return err
	}
	for _, entry := range entries {
		_ = os.Remove(entry)
	}
	return nil
}

// cleanStaleTemp removes temp outputs that no live job record claims.
// In-flight outputs of retryable jobs are kept for resume.
func cleanStaleTemp(cfg *config.Config, store *jobstore.Store) {
	log := logging.WithComponent("cleanup")

	live := make(map[string]bool)
	recs, err := store.List()
	if err != nil {
		log.Warn().Err(err).Msg("could not list job records, skipping temp cleanup")
		return
	}
	for _, rec := range recs {
		if rec.TempOutputPath != "" {
			live[rec.TempOutputPath] = true
		}
	}

	files, err := os.ReadDir(cfg.TempDir())
	if err != nil {
		return
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		path := filepath.Join(cfg.TempDir(), f.Name())
		if live[path] {
			continue
		}
		if err := os.Remove(path); err == nil {
			log.Info().Str("path", path).Msg("removed stale temp output")
		}
	}
}

// pruneEmptyDirs removes input directories left empty after their files were
// encoded and archived or routed to holding. Deepest directories go first so
// newly emptied parents are caught in the same pass. The input root itself
// and the holding area are never removed.
func pruneEmptyDirs(cfg *config.Config) {
	holdingRoot := cfg.HoldingDir("")

	var dirs []string
	_ = filepath.WalkDir(cfg.InputRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path == cfg.InputRoot || strings.HasPrefix(path, holdingRoot) {
			return nil
		}
		dirs = append(dirs, path)
		return nil
	})

	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		// Remove succeeds only on empty directories.
		_ = os.Remove(dir)
	}
}
