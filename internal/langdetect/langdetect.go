// Package langdetect wraps the external spoken-language classifier. The
// selector consults it only for audio streams whose language tag is missing
// or "und"; results from several sample windows are combined by majority
// vote to smooth over intros, music, and silence.
package langdetect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Detector classifies the spoken language of one audio stream within a
// time window of the input file. Implementations are external tools; tests
// substitute stubs.
type Detector interface {
	Detect(ctx context.Context, path string, streamIndex int, offset, window time.Duration) (string, error)
}

// Majority samples `windows` evenly spaced windows across the input's
// duration and returns the most frequent detected language. Ties go to the
// earliest window's result. Individual window failures are skipped; the call
// fails only when every window fails.
func Majority(ctx context.Context, d Detector, path string, streamIndex int, duration time.Duration, windows int, window time.Duration) (string, error) {
	if windows < 1 {
		windows = 1
	}

	counts := make(map[string]int)
	order := make([]string, 0, windows)
	var lastErr error

	for i := 0; i < windows; i++ {
		// Space windows across the middle of the file; the first and last
		// few percent are usually titles and credits.
		offset := duration * time.Duration(i+1) / time.Duration(windows+1)

		lang, err := d.Detect(ctx, path, streamIndex, offset, window)
		if err != nil {
			lastErr = err
			continue
		}
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" {
			continue
		}
		if counts[lang] == 0 {
			order = append(order, lang)
		}
		counts[lang]++
	}

	best := ""
	bestCount := 0
	for _, lang := range order {
		if counts[lang] > bestCount {
			best = lang
			bestCount = counts[lang]
		}
	}
	if best == "" {
		if lastErr != nil {
			return "", fmt.Errorf("language detection failed on all windows: %w", lastErr)
		}
		return "", errors.New("language detection produced no result")
	}
	return best, nil
}

// Command runs a configured external classifier binary. The tool is invoked
// as:
//
//	<binary> --model <profile> --input <path> --stream <idx> --offset <sec> --window <sec>
//
// and must print the detected language code as the first token of stdout.
type Command struct {
	Binary string
}

// Detect implements Detector by shelling out to the classifier.
func (c Command) Detect(ctx context.Context, path string, streamIndex int, offset, window time.Duration) (string, error) {
	cmd := exec.CommandContext(ctx, c.Binary,
		"--model", ActiveProfile().Model,
		"--input", path,
		"--stream", strconv.Itoa(streamIndex),
		"--offset", strconv.Itoa(int(offset.Seconds())),
		"--window", strconv.Itoa(int(window.Seconds())),
	)

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w", c.Binary, err)
	}

	fields := strings.Fields(out.String())
	if len(fields) == 0 {
		return "", fmt.Errorf("%s: empty output", c.Binary)
	}
	return fields[0], nil
}
