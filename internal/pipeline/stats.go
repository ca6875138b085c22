package pipeline

import (
	"sync"
	"time"

	"github.com/backmassage/shrinkwrap/internal/orchestrator"
)

// RunStats aggregates per-file outcomes across the batch. All methods are
// goroutine-safe.
type RunStats struct {
	mu sync.Mutex

	Total     int
	Completed int
	Skipped   int
	Retryable int
	Failed    int
	DryRun    int

	InputBytes  int64 // inputs of completed encodes
	OutputBytes int64 // their finished outputs

	Started time.Time
}

// NewRunStats returns stats with the start time stamped.
func NewRunStats() *RunStats {
	return &RunStats{Started: time.Now()}
}

// Add records one file result.
func (s *RunStats) Add(res orchestrator.FileResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Total++
	switch res.Class {
	case orchestrator.ClassCompleted:
		s.Completed++
		s.InputBytes += res.InputBytes
		s.OutputBytes += res.OutputBytes
	case orchestrator.ClassSkipped:
		s.Skipped++
	case orchestrator.ClassRetryable:
		s.Retryable++
	case orchestrator.ClassFailed:
		s.Failed++
	case orchestrator.ClassDryRun:
		s.DryRun++
	}
}

// SpaceSaved returns the byte delta of completed encodes (positive when
// outputs are smaller than their inputs).
func (s *RunStats) SpaceSaved() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.InputBytes - s.OutputBytes
}

// Elapsed returns the wall time since the run started.
func (s *RunStats) Elapsed() time.Duration {
	return time.Since(s.Started)
}
