package jobstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
)

// Store reads and writes one record file per content hash under a single
// directory. Saves are atomic (write + fsync + rename), so a crash mid-save
// leaves either the old record or the new one, never a torn file. A corrupt
// or partial record is reported as not found: the caller recomputes instead
// of crashing.
//
// No cross-process locking is needed; the dispatcher guarantees at most one
// worker owns a given hash within a run, and writes are whole-record
// overwrites.
type Store struct {
	dir string
}

// NewStore creates the record directory if needed and returns the store.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(hash string) string {
	return filepath.Join(s.dir, hash+".job")
}

// Load returns the record for hash, or ok=false when no usable record
// exists. Corrupt records are deleted on sight so the next save starts
// clean.
func (s *Store) Load(hash string) (*Record, bool) {
	data, err := os.ReadFile(s.path(hash))
	if err != nil {
		return nil, false
	}

	rec, err := unmarshal(data)
	if err != nil || rec.Hash != hash {
		_ = os.Remove(s.path(hash))
		return nil, false
	}
	return rec, true
}

// Save atomically persists rec, stamping LastUpdated.
func (s *Store) Save(rec *Record) error {
	if rec.Hash == "" {
		return errors.New("record has no hash")
	}
	rec.LastUpdated = time.Now()

	if err := renameio.WriteFile(s.path(rec.Hash), rec.marshal(), 0o644); err != nil {
		return fmt.Errorf("save job record %s: %w", rec.Hash, err)
	}
	return nil
}

// List returns every readable record in the store. Corrupt files are
// skipped, not deleted; Load handles that when the hash is next seen.
func (s *Store) List() ([]*Record, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.job"))
	if err != nil {
		return nil, err
	}
	recs := make([]*Record, 0, len(matches))
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			continue
		}
		if rec, err := unmarshal(data); err == nil {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

// Delete removes the record for hash. Deleting a missing record is not an
// error; terminal finalization may run more than once.
func (s *Store) Delete(hash string) error {
	err := os.Remove(s.path(hash))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete job record %s: %w", hash, err)
	}
	return nil
}
