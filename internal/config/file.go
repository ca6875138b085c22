package config

// This file implements the optional YAML config file and .env overlay.
// Precedence (lowest to highest): DefaultConfig → YAML file → environment
// (after .env loading) → CLI flags.

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the subset of Config settable from a YAML file.
// Pointer fields distinguish "absent" from zero values so the file only
// overrides what it mentions.
type fileConfig struct {
	Workers             *int     `yaml:"workers"`
	Encoders            []string `yaml:"encoders"`
	ManualCRF           *int     `yaml:"manual_crf"`
	CRFCeiling          *int     `yaml:"crf_ceiling"`
	MinQuality          *float64 `yaml:"min_quality"`
	MaxEncodedPercent   *float64 `yaml:"max_encoded_percent"`
	SampleInterval      *string  `yaml:"sample_interval"`
	SearchBinary        *string  `yaml:"search_binary"`
	LanguageAllowList   []string `yaml:"languages"`
	VideoCodecSkip      []string `yaml:"video_codec_skip"`
	ExcludedFormats     []string `yaml:"excluded_formats"`
	ExcludedDirKeywords []string `yaml:"excluded_dir_keywords"`
	MinVideoBitrate     *int64   `yaml:"min_video_bitrate"`
	MinInputSize        *int64   `yaml:"min_input_size"`
	MinAudioSampleRate  *int     `yaml:"min_audio_sample_rate"`
	DetectBinary        *string  `yaml:"detect_binary"`
	DetectWindows       *int     `yaml:"detect_windows"`
	DetectWindowSec     *int     `yaml:"detect_window_sec"`
	MaxRetries          *int     `yaml:"max_retries"`
	OutputContainer     *string  `yaml:"container"`
	ArchiveRoot         *string  `yaml:"archive_root"`
	HoldingRoot         *string  `yaml:"holding_root"`
	MarkerComment       *string  `yaml:"marker_comment"`
}

// LoadFile overlays cfg with settings from a YAML file. A missing file is
// not an error (the file is optional); a malformed one is.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %q: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}

	applyFile(cfg, &fc)
	return nil
}

func applyFile(cfg *Config, fc *fileConfig) {
	if fc.Workers != nil {
		cfg.Workers = *fc.Workers
	}
	if len(fc.Encoders) > 0 {
		cfg.Encoders = fc.Encoders
	}
	if fc.ManualCRF != nil {
		cfg.ManualCRF = *fc.ManualCRF
	}
	if fc.CRFCeiling != nil {
		cfg.CRFCeiling = *fc.CRFCeiling
	}
	if fc.MinQuality != nil {
		cfg.MinQuality = *fc.MinQuality
	}
	if fc.MaxEncodedPercent != nil {
		cfg.MaxEncodedPercent = *fc.MaxEncodedPercent
	}
	if fc.SampleInterval != nil {
		cfg.SampleInterval = *fc.SampleInterval
	}
	if fc.SearchBinary != nil {
		cfg.SearchBinary = *fc.SearchBinary
	}
	if len(fc.LanguageAllowList) > 0 {
		cfg.LanguageAllowList = fc.LanguageAllowList
	}
	if len(fc.VideoCodecSkip) > 0 {
		cfg.VideoCodecSkip = fc.VideoCodecSkip
	}
	if len(fc.ExcludedFormats) > 0 {
		cfg.ExcludedFormats = fc.ExcludedFormats
	}
	if len(fc.ExcludedDirKeywords) > 0 {
		cfg.ExcludedDirKeywords = fc.ExcludedDirKeywords
	}
	if fc.MinVideoBitrate != nil {
		cfg.MinVideoBitrate = *fc.MinVideoBitrate
	}
	if fc.MinInputSize != nil {
		cfg.MinInputSize = *fc.MinInputSize
	}
	if fc.MinAudioSampleRate != nil {
		cfg.MinAudioSampleRate = *fc.MinAudioSampleRate
	}
	if fc.DetectBinary != nil {
		cfg.DetectBinary = *fc.DetectBinary
	}
	if fc.DetectWindows != nil {
		cfg.DetectWindows = *fc.DetectWindows
	}
	if fc.DetectWindowSec != nil {
		cfg.DetectWindowSec = *fc.DetectWindowSec
	}
	if fc.MaxRetries != nil {
		cfg.MaxRetries = *fc.MaxRetries
	}
	if fc.OutputContainer != nil {
		cfg.OutputContainer = Container(*fc.OutputContainer)
	}
	if fc.ArchiveRoot != nil {
		cfg.ArchiveRoot = *fc.ArchiveRoot
	}
	if fc.HoldingRoot != nil {
		cfg.HoldingRoot = *fc.HoldingRoot
	}
	if fc.MarkerComment != nil {
		cfg.MarkerComment = *fc.MarkerComment
	}
}

// LoadEnv loads an optional .env file into the process environment and then
// applies SHRINKWRAP_* overrides to cfg. Unset variables leave cfg untouched.
func LoadEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %q: %w", envFile, err)
		}
	} else {
		// Default .env in the working directory is best-effort.
		_ = godotenv.Load()
	}

	if v := os.Getenv("SHRINKWRAP_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("SHRINKWRAP_MANUAL_CRF"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ManualCRF = n
		}
	}
	if v := os.Getenv("SHRINKWRAP_CRF_CEILING"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CRFCeiling = n
		}
	}
	if v := os.Getenv("SHRINKWRAP_SEARCH_BINARY"); v != "" {
		cfg.SearchBinary = v
	}
	if v := os.Getenv("SHRINKWRAP_ARCHIVE_ROOT"); v != "" {
		cfg.ArchiveRoot = v
	}
	return nil
}
