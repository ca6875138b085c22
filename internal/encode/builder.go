// Package encode constructs and runs the real ffmpeg transcode, including
// the MP4→MKV container fallback and the oversized-output remediation loop.
package encode

import (
	"fmt"
	"strconv"

	"github.com/backmassage/shrinkwrap/internal/config"
	"github.com/backmassage/shrinkwrap/internal/jobstore"
	"github.com/backmassage/shrinkwrap/internal/probe"
)

// BuildArgs constructs the complete ffmpeg argument slice for one encode
// attempt. Every carried stream gets an explicit -map directive from the
// persisted selection; nothing is mapped implicitly.
func BuildArgs(cfg *config.Config, mi *probe.MediaInput, rec *jobstore.Record, container config.Container, outputPath string) []string {
	args := make([]string, 0, 48)

	// --- Preamble ---
	args = append(args, "ffmpeg", "-hide_banner", "-nostdin", "-y")
	if cfg.Verbose {
		args = append(args, "-loglevel", "info", "-stats")
	} else {
		args = append(args, "-loglevel", "error")
	}

	// --- Input ---
	args = append(args, "-i", mi.Path)

	// --- Stream maps ---
	for _, idx := range rec.Streams.Video {
		args = append(args, "-map", fmt.Sprintf("0:%d", idx))
	}
	for _, idx := range rec.Streams.Audio {
		args = append(args, "-map", fmt.Sprintf("0:%d", idx))
	}
	for _, idx := range rec.Streams.Subtitle {
		args = append(args, "-map", fmt.Sprintf("0:%d", idx))
	}

	// --- Video codec ---
	args = append(args,
		"-c:v", rec.ChosenEncoder,
		"-crf", strconv.Itoa(rec.ChosenCRF),
	)

	// --- Audio ---
	if len(rec.Streams.Audio) == 0 {
		args = append(args, "-an")
	} else {
		args = append(args, "-c:a", "copy")
	}

	// --- Subtitles ---
	if len(rec.Streams.Subtitle) > 0 {
		if container == config.ContainerMP4 {
			args = append(args, "-c:s", "mov_text")
		} else {
			args = append(args, "-c:s", "copy")
		}
	}

	// --- Marker metadata (drives the already-encoded skip check) ---
	args = append(args, "-metadata", "comment="+cfg.MarkerComment)

	// --- Container opts ---
	if container == config.ContainerMP4 {
		args = append(args, "-movflags", "+faststart")
	}

	// --- Output ---
	args = append(args, outputPath)
	return args
}
