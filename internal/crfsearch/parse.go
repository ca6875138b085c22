package crfsearch

import (
	"errors"
	"regexp"
	"strconv"
)

// Output-parsing regexes for the external search tool. The tool reports a
// chosen CRF and a predicted output/input size percentage in free text, e.g.
//
//	crf 24 VMAF 95.10 predicted video stream size 1.32 GiB (55%)
//	best crf 28, size ratio 60.5%
var (
	reCRF        = regexp.MustCompile(`crf (\d+)`)
	rePercParens = regexp.MustCompile(`\((\d+(?:\.\d+)?)%\)`)
	rePercRatio  = regexp.MustCompile(`ratio\s*[:=]?\s*(\d+(?:\.\d+)?)%?`)
)

var errUnparseable = errors.New("no crf/ratio pair found in search output")

// parseOutput extracts the reported CRF and predicted size ratio (as a
// fraction, 0.55 for 55%) from the tool's output text.
func parseOutput(text string) (crf int, ratio float64, err error) {
	m := reCRF.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, errUnparseable
	}
	crf, err = strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, errUnparseable
	}

	p := rePercParens.FindStringSubmatch(text)
	if p == nil {
		p = rePercRatio.FindStringSubmatch(text)
	}
	if p == nil {
		return 0, 0, errUnparseable
	}
	pct, err := strconv.ParseFloat(p[1], 64)
	if err != nil {
		return 0, 0, errUnparseable
	}

	return crf, pct / 100, nil
}

// valid reports whether a parsed result is usable. A non-positive CRF or
// ratio, or a ratio wildly above the configured ceiling (ceiling plus 15
// percentage points), marks the candidate as failed rather than fatal.
func valid(crf int, ratio, maxEncodedPercent float64) bool {
	if crf <= 0 || ratio <= 0 {
		return false
	}
	return ratio <= (maxEncodedPercent+15)/100
}
