// Package config holds runtime configuration: defaults, the optional YAML
// config file, CLI flag parsing, and validation.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Container is the output container format.
type Container string

const (
	ContainerMP4 Container = "mp4" // Default; falls back to MKV on mux failure.
	ContainerMKV Container = "mkv" // Matroska (full stream-copy support).
)

// Holding categories. Each maps to a subdirectory of HoldingRoot where
// inputs are routed when they leave the pipeline without a normal encode.
const (
	HoldSkipped    = "skipped"
	HoldFailed     = "failed"
	HoldOversized  = "oversized"
	HoldUnreadable = "unreadable"
)

// Config holds all runtime settings. It is populated by [DefaultConfig],
// optionally overlaid by [LoadFile] and env overrides, and finally mutated
// by [ParseFlags] before being passed (by pointer) to packages that need it.
type Config struct {
	// Paths (set from positional args).
	InputRoot  string
	OutputRoot string

	// ArchiveRoot receives completed originals and exhausted source
	// directories. Empty disables archival moves.
	ArchiveRoot string

	// HoldingRoot receives skipped/failed/oversized/unreadable inputs.
	// Derived from InputRoot when empty ("<input>/_holding").
	HoldingRoot string

	// Dispatcher settings.
	Workers             int      // Default: 2 parallel workers.
	RandomOrder         bool     // Shuffle the work list before dispatch.
	IncludeExcludedDirs bool     // Override directory keyword exclusion.
	ExcludedDirKeywords []string // Directory name fragments never descended into.

	// Encoder candidates, tried in order by the quality search.
	Encoders []string // Default: libx265, libsvtav1.

	// Quality search settings.
	ManualMode        bool    // Skip the search, use ManualCRF outright.
	ManualCRF         int     // Fallback/manual quality parameter. Default: 28.
	CRFCeiling        int     // Absolute parameter ceiling. Default: 55.
	MinQuality        float64 // VMAF floor passed to the search tool. Default: 93.
	MaxEncodedPercent float64 // Predicted-size ceiling in percent. Default: 80.
	SampleInterval    string  // Sampling interval for the search tool. Default: "5m".
	SearchBinary      string  // External crf-search binary. Default: "ab-av1".

	// Stream selection.
	LanguageAllowList  []string // Audio/subtitle language tags carried through.
	VideoCodecSkip     []string // Video codecs whose streams are dropped.
	AllowNoAudio       bool     // Permit video-only output when no audio survives.
	MinAudioSampleRate int      // Usability floor in Hz. Default: 22050.

	// Language detection.
	DetectBinary    string // External classifier binary. Default: "lingua-probe".
	DetectWindows   int    // Majority-vote sample windows. Default: 3.
	DetectWindowSec int    // Seconds per sample window. Default: 30.

	// File-level skip checks.
	ExcludedFormats []string // Source video codecs skipped outright (e.g. av1).
	MinVideoBitrate int64    // Bitrate floor in bits/s; below it the file is skipped.
	MinInputSize    int64    // Files smaller than this are skipped as suspect.
	MarkerComment   string   // Metadata comment identifying our own outputs.

	// Encode settings.
	OutputContainer Container
	MaxRetries      int // Retryable-failure ceiling per file. Default: 3.

	// Behavior flags.
	DryRun    bool
	NoRename  bool // Suppress output filename sanitation.
	Verbose   bool
	CheckOnly bool // Run tool diagnostics and exit.

	// Post actions.
	CleanupStaleTemp bool // Default: true.
}

// DefaultConfig returns a Config with all defaults. Used as the base before
// [LoadFile] and [ParseFlags] apply overrides.
func DefaultConfig() Config {
	return Config{
		Workers:             2,
		ExcludedDirKeywords: []string{"_holding", "_archive", ".shrinkwrap", "_tmp"},
		Encoders:            []string{"libx265", "libsvtav1"},
		ManualCRF:           28,
		CRFCeiling:          55,
		MinQuality:          93,
		MaxEncodedPercent:   80,
		SampleInterval:      "5m",
		SearchBinary:        "ab-av1",
		LanguageAllowList:   []string{"eng"},
		VideoCodecSkip:      []string{"mjpeg", "png", "bmp", "gif"},
		MinAudioSampleRate:  22050,
		DetectBinary:        "lingua-probe",
		DetectWindows:       3,
		DetectWindowSec:     30,
		ExcludedFormats:     []string{"av1"},
		MinVideoBitrate:     700_000,
		MinInputSize:        1_000_000,
		MarkerComment:       "shrinkwrap",
		OutputContainer:     ContainerMP4,
		MaxRetries:          3,
		CleanupStaleTemp:    true,
	}
}

// StateDir returns the per-output-root location for job records, temp
// outputs, and per-file success entries.
func (c *Config) StateDir() string {
	return filepath.Join(c.OutputRoot, ".shrinkwrap")
}

// JobDir returns the JobRecord store directory.
func (c *Config) JobDir() string { return filepath.Join(c.StateDir(), "jobs") }

// TempDir returns the in-flight encode output directory.
func (c *Config) TempDir() string { return filepath.Join(c.StateDir(), "tmp") }

// DoneDir returns the per-file success entry directory, merged into the
// success log by the dispatcher after each batch.
func (c *Config) DoneDir() string { return filepath.Join(c.StateDir(), "done") }

// SuccessLog returns the merged success log path.
func (c *Config) SuccessLog() string { return filepath.Join(c.StateDir(), "success.log") }

// HoldingDir returns the holding directory for a category (HoldSkipped etc.).
func (c *Config) HoldingDir(category string) string {
	root := c.HoldingRoot
	if root == "" {
		root = filepath.Join(c.InputRoot, "_holding")
	}
	return filepath.Join(root, category)
}

// NormalizeDirArg strips trailing slashes from a directory path.
// The filesystem root "/" is returned unchanged so we don't produce an empty string.
func NormalizeDirArg(path string) string {
	if path == "/" {
		return "/"
	}
	return strings.TrimRight(path, "/")
}

// Validate checks enum and range fields. When not in CheckOnly mode, it also
// requires that both input and output root paths are non-empty.
func (c *Config) Validate() error {
	switch c.OutputContainer {
	case ContainerMKV, ContainerMP4:
		// valid
	default:
		return errors.New("invalid container (use 'mkv' or 'mp4')")
	}

	if c.Workers < 1 {
		return errors.New("workers must be >= 1")
	}
	if len(c.Encoders) == 0 {
		return errors.New("need at least one candidate encoder")
	}
	if c.ManualCRF <= 0 {
		return errors.New("manual CRF must be positive")
	}
	if c.CRFCeiling < c.ManualCRF {
		return fmt.Errorf("CRF ceiling %d is below the manual CRF %d", c.CRFCeiling, c.ManualCRF)
	}
	if c.MaxRetries < 1 {
		return errors.New("max retries must be >= 1")
	}
	if c.MaxEncodedPercent <= 0 || c.MaxEncodedPercent > 100 {
		return errors.New("max encoded percent must be in (0, 100]")
	}

	if c.CheckOnly {
		return nil
	}
	if c.InputRoot == "" || c.OutputRoot == "" {
		return errors.New("need exactly input_root and output_root")
	}
	return nil
}

// ValidatePaths ensures the resolved output root is not inside (or equal to)
// the resolved input root. This prevents the pipeline from recursively
// discovering its own output files. Both arguments must be absolute,
// symlink-resolved paths.
func (c *Config) ValidatePaths(inputAbs, outputAbs string) error {
	sep := string(filepath.Separator)
	if outputAbs == inputAbs || strings.HasPrefix(outputAbs+sep, inputAbs+sep) {
		return errors.New("output root must not be inside input root")
	}
	return nil
}
