// Package display holds human-readable formatting helpers for the run
// summary.
package display

import (
	"fmt"
	"time"
)

// FormatBytes returns a human-readable size (B, KiB, MiB, GiB, TiB, PiB).
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	suffixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	if exp >= len(suffixes) {
		exp = len(suffixes) - 1
		div = 1
		for i := 0; i <= exp; i++ {
			div *= unit
		}
	}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), suffixes[exp])
}

// FormatBytesWithSign prefixes with + or - for delta display (e.g. "- 1.2 GiB").
func FormatBytesWithSign(bytes int64) string {
	sign := ""
	if bytes > 0 {
		sign = "+ "
	} else if bytes < 0 {
		sign = "- "
		bytes = -bytes
	}
	return sign + FormatBytes(bytes)
}

// FormatDuration renders d as "1h02m03s" / "2m03s" / "4s" for the summary.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
