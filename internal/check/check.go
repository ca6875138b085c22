// Package check provides system diagnostics (--check mode) and pre-pipeline
// dependency validation for ffmpeg, ffprobe, the quality search tool, and the
// configured encoders.
package check

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/backmassage/shrinkwrap/internal/config"
	"github.com/rs/zerolog"
)

// Sentinel errors returned by CheckDeps when a required tool is missing.
var (
	ErrFfmpegNotFound  = errors.New("ffmpeg not found on PATH")
	ErrFfprobeNotFound = errors.New("ffprobe not found on PATH")
	ErrSearchNotFound  = errors.New("quality search binary not found on PATH")
	ErrEncoderFailed   = errors.New("test encode failed for a configured encoder")
)

// CheckDeps is the pre-pipeline validation: ffmpeg, ffprobe, and the search
// binary must be on PATH, and every configured encoder must pass a short test
// encode. In manual mode the search binary is not required.
func CheckDeps(cfg *config.Config) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return ErrFfmpegNotFound
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return ErrFfprobeNotFound
	}
	if !cfg.ManualMode {
		if _, err := exec.LookPath(cfg.SearchBinary); err != nil {
			return fmt.Errorf("%w (%s)", ErrSearchNotFound, cfg.SearchBinary)
		}
	}
	for _, enc := range cfg.Encoders {
		if !runSilent("ffmpeg", encoderTestArgs(enc)...) {
			return fmt.Errorf("%w (%s)", ErrEncoderFailed, enc)
		}
	}
	return nil
}

// RunCheck runs the interactive --check flow: prints availability of ffmpeg,
// ffprobe, the search binary, the language classifier, and every configured
// encoder. Informational only, it does not stop on failure.
func RunCheck(cfg *config.Config, log zerolog.Logger) {
	log.Info().Msg("=== System Check ===")

	checkVersion(log, "ffmpeg")
	checkVersion(log, "ffprobe")
	checkBinary(log, "search tool", cfg.SearchBinary)
	checkBinary(log, "language classifier", cfg.DetectBinary)

	for _, enc := range cfg.Encoders {
		if runSilent("ffmpeg", encoderTestArgs(enc)...) {
			log.Info().Str("encoder", enc).Msg("test encode ok")
		} else {
			log.Error().Str("encoder", enc).Msg("test encode failed")
		}
	}
}

// checkVersion verifies name is on PATH and logs its version banner line.
func checkVersion(log zerolog.Logger, name string) {
	if _, err := exec.LookPath(name); err != nil {
		log.Error().Str("tool", name).Msg("not found on PATH")
		return
	}
	out, err := exec.Command(name, "-version").Output()
	if err != nil {
		log.Warn().Err(err).Str("tool", name).Msg("found but -version failed")
		return
	}
	firstLine := strings.TrimSpace(string(out))
	if idx := strings.Index(firstLine, "\n"); idx > 0 {
		firstLine = firstLine[:idx]
	}
	log.Info().Str("tool", name).Msg(firstLine)
}

func checkBinary(log zerolog.Logger, label, name string) {
	if path, err := exec.LookPath(name); err == nil {
		log.Info().Str("tool", name).Str("path", path).Msgf("%s found", label)
	} else {
		log.Warn().Str("tool", name).Msgf("%s not found on PATH", label)
	}
}

// encoderTestArgs returns the ffmpeg arguments for a minimal test encode with
// the given video encoder.
func encoderTestArgs(encoder string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=black:s=256x256:d=0.1",
		"-c:v", encoder,
		"-f", "null", "-",
	}
}

// runSilent runs a command and returns true if it exits with status 0.
// Both stdout and stderr are discarded.
func runSilent(name string, args ...string) bool {
	cmd := exec.Command(name, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run() == nil
}
