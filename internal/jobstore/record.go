// Package jobstore persists per-file encoding progress. One flat key/value
// file per content hash; losing a record only forces recomputation, never
// corrupts an input.
package jobstore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Status is the job state machine position persisted between runs.
type Status string

const (
	StatusPending              Status = "pending"
	StatusPreprocessingStarted Status = "preprocessing_started"
	StatusCRFSearchStarted     Status = "crf_search_started"
	StatusPreprocessingDone    Status = "preprocessing_done"
	StatusEncodingStarted      Status = "encoding_started"
	StatusCompleted            Status = "completed"
	StatusErrorRetryable       Status = "error_retryable"
	StatusErrorPermanent       Status = "error_permanent"
	StatusSkipped              Status = "skipped"
)

// Valid reports whether s is a known status value. Records with unknown
// statuses are treated as corrupt by the store.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPreprocessingStarted, StatusCRFSearchStarted,
		StatusPreprocessingDone, StatusEncodingStarted, StatusCompleted,
		StatusErrorRetryable, StatusErrorPermanent, StatusSkipped:
		return true
	}
	return false
}

// Terminal reports whether s is a state that is finalized rather than
// resumed: the record is deleted once the terminal side effects have run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusSkipped || s == StatusErrorPermanent
}

// SearchResult is the recorded outcome of one candidate encoder's quality
// search, kept for crash-safe resume.
type SearchResult struct {
	CRF    int
	Ratio  float64
	Failed bool
}

// Selection is the persisted stream selection.
type Selection struct {
	Video      []int
	Audio      []int
	Subtitle   []int
	ManualMode bool
}

// Record is the persisted job state for one input, keyed by content hash.
type Record struct {
	Hash   string
	Status Status

	ChosenEncoder string
	ChosenCRF     int

	Streams        Selection
	PredictedRatio *float64

	// Per-candidate quality search bookkeeping. SearchCurrent names the
	// candidate whose search was in flight when the record was last saved.
	Searches      map[string]SearchResult
	SearchCurrent string
	SearchSeconds float64

	RetryCount int
	LastError  string

	// FailCategory names the holding subdirectory a permanently failed
	// input is routed to, recorded when the failure is classified so
	// finalization never depends on error message wording.
	FailCategory string

	TempOutputPath string
	FFmpegCommand  string

	LastUpdated time.Time
}

// New returns a fresh pending record for hash.
func New(hash string) *Record {
	return &Record{
		Hash:     hash,
		Status:   StatusPending,
		Searches: make(map[string]SearchResult),
	}
}

// Decided reports whether both encoder and quality parameter have been
// resolved. The orchestrator must not enter the encode phase otherwise.
func (r *Record) Decided() bool {
	return r.ChosenEncoder != "" && r.ChosenCRF > 0
}

// --- Flat key/value serialization ---
//
// The on-disk format is one "key=value" pair per line, human readable and
// order-stable. Unknown keys are ignored on load so records survive minor
// version drift.

func (r *Record) marshal() []byte {
	var b strings.Builder
	put := func(k, v string) {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteByte('\n')
	}

	put("hash", r.Hash)
	put("status", string(r.Status))
	put("chosen_encoder", r.ChosenEncoder)
	put("chosen_crf", strconv.Itoa(r.ChosenCRF))
	put("streams_video", joinInts(r.Streams.Video))
	put("streams_audio", joinInts(r.Streams.Audio))
	put("streams_subtitle", joinInts(r.Streams.Subtitle))
	put("manual_mode", strconv.FormatBool(r.Streams.ManualMode))
	if r.PredictedRatio != nil {
		put("predicted_ratio", strconv.FormatFloat(*r.PredictedRatio, 'f', 6, 64))
	}
	put("search_current", r.SearchCurrent)
	put("search_seconds", strconv.FormatFloat(r.SearchSeconds, 'f', 3, 64))
	put("retry_count", strconv.Itoa(r.RetryCount))
	put("last_error", sanitizeValue(r.LastError))
	put("fail_category", r.FailCategory)
	put("temp_output_path", r.TempOutputPath)
	put("ffmpeg_command", sanitizeValue(r.FFmpegCommand))
	put("last_updated", r.LastUpdated.UTC().Format(time.RFC3339))

	encoders := make([]string, 0, len(r.Searches))
	for enc := range r.Searches {
		encoders = append(encoders, enc)
	}
	sort.Strings(encoders)
	for _, enc := range encoders {
		res := r.Searches[enc]
		if res.Failed {
			put("search."+enc, "failed")
			continue
		}
		put("search."+enc, fmt.Sprintf("%d %s", res.CRF, strconv.FormatFloat(res.Ratio, 'f', 6, 64)))
	}

	return []byte(b.String())
}

func unmarshal(data []byte) (*Record, error) {
	r := &Record{Searches: make(map[string]SearchResult)}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("malformed record line %q", line)
		}

		switch {
		case key == "hash":
			r.Hash = value
		case key == "status":
			r.Status = Status(value)
		case key == "chosen_encoder":
			r.ChosenEncoder = value
		case key == "chosen_crf":
			r.ChosenCRF, _ = strconv.Atoi(value)
		case key == "streams_video":
			r.Streams.Video = splitInts(value)
		case key == "streams_audio":
			r.Streams.Audio = splitInts(value)
		case key == "streams_subtitle":
			r.Streams.Subtitle = splitInts(value)
		case key == "manual_mode":
			r.Streams.ManualMode = value == "true"
		case key == "predicted_ratio":
			f, err := strconv.ParseFloat(value, 64)
			if err == nil {
				r.PredictedRatio = &f
			}
		case key == "search_current":
			r.SearchCurrent = value
		case key == "search_seconds":
			r.SearchSeconds, _ = strconv.ParseFloat(value, 64)
		case key == "retry_count":
			r.RetryCount, _ = strconv.Atoi(value)
		case key == "last_error":
			r.LastError = value
		case key == "fail_category":
			r.FailCategory = value
		case key == "temp_output_path":
			r.TempOutputPath = value
		case key == "ffmpeg_command":
			r.FFmpegCommand = value
		case key == "last_updated":
			r.LastUpdated, _ = time.Parse(time.RFC3339, value)
		case strings.HasPrefix(key, "search."):
			enc := strings.TrimPrefix(key, "search.")
			if value == "failed" {
				r.Searches[enc] = SearchResult{Failed: true}
				break
			}
			crfStr, ratioStr, _ := strings.Cut(value, " ")
			crf, err1 := strconv.Atoi(crfStr)
			ratio, err2 := strconv.ParseFloat(ratioStr, 64)
			if err1 == nil && err2 == nil {
				r.Searches[enc] = SearchResult{CRF: crf, Ratio: ratio}
			}
		}
	}

	if r.Hash == "" || !r.Status.Valid() {
		return nil, fmt.Errorf("record missing hash or valid status")
	}
	return r, nil
}

// sanitizeValue keeps multi-line tool output from breaking the line format.
func sanitizeValue(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}

func splitInts(s string) []int {
	if s == "" {
		return nil
	}
	var out []int
	for _, p := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			out = append(out, n)
		}
	}
	return out
}
