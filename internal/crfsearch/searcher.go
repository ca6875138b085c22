// Package crfsearch drives the external quality-search tool across the
// configured candidate encoders and records the best (encoder, CRF,
// predicted ratio) triple. The search never produces a real encode; the
// external tool performs sampled trial encodes internally.
package crfsearch

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

// Options carries the per-invocation search parameters.
type Options struct {
	SampleInterval    string  // e.g. "5m"
	MaxEncodedPercent float64 // predicted-size ceiling, percent of input
	MinQuality        float64 // quality floor (VMAF)
}

// Searcher invokes the external search tool for one (encoder, input) pair
// and returns its combined output text. A non-zero exit is an error; the
// output is still returned for logging.
type Searcher interface {
	Search(ctx context.Context, encoder, input string, opts Options) (string, error)
}

// Command is the production Searcher backed by an ab-av1 style binary.
type Command struct {
	Binary string
}

// Search runs `<binary> crf-search` for the candidate encoder.
func (c Command) Search(ctx context.Context, encoder, input string, opts Options) (string, error) {
	cmd := exec.CommandContext(ctx, c.Binary,
		"crf-search",
		"-e", encoder,
		"-i", input,
		"--sample-every", opts.SampleInterval,
		"--max-encoded-percent", strconv.FormatFloat(opts.MaxEncodedPercent, 'f', -1, 64),
		"--min-vmaf", strconv.FormatFloat(opts.MinQuality, 'f', -1, 64),
	)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("%s crf-search (%s): %w", c.Binary, encoder, err)
	}
	return out.String(), nil
}
