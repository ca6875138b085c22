package selector

import (
	"strings"

	"github.com/backmassage/shrinkwrap/internal/config"
	"github.com/backmassage/shrinkwrap/internal/probe"
)

// Screen runs the file-level skip checks, in cheapest-first order:
//
//  1. minimum input size (suspect/corrupt files)
//  2. already-encoded marker in the container comment
//  3. source video codec on the excluded-formats list
//  4. no video streams at all
//  5. video bitrate below the configured floor
//
// All screening conditions are skips, not errors: the input is routed to
// the skip holding area and never touches a subprocess.
func Screen(cfg *config.Config, mi *probe.MediaInput) Outcome {
	if mi.Size > 0 && mi.Size < cfg.MinInputSize {
		return skip(CondInputTooSmall, "input is %d bytes (min %d)", mi.Size, cfg.MinInputSize)
	}

	if cfg.MarkerComment != "" && strings.Contains(mi.Comment(), cfg.MarkerComment) {
		return skip(CondAlreadyEncoded, "container comment carries the %q marker", cfg.MarkerComment)
	}

	v := mi.PrimaryVideo()
	if v == nil {
		return skip(CondNoStreamsFound, "no video streams found")
	}

	for _, excluded := range cfg.ExcludedFormats {
		if strings.EqualFold(v.Codec, excluded) {
			return skip(CondFormatExcluded, "source codec %q is excluded", v.Codec)
		}
	}

	if br := mi.VideoBitRate(); br > 0 && br < cfg.MinVideoBitrate {
		return skip(CondBitrateTooLow, "video bitrate %d b/s below floor %d", br, cfg.MinVideoBitrate)
	}

	return Ok
}
