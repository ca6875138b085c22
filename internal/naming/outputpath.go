// Package naming maps input paths to output paths. Outputs mirror the
// input-relative directory layout under the output root, with the extension
// replaced by the chosen container and the filename optionally sanitized.
package naming

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/backmassage/shrinkwrap/internal/config"
)

var (
	reHostileChars = regexp.MustCompile(`[<>:"|?*\x00-\x1f]`)
	reMultiSpace   = regexp.MustCompile(`\s{2,}`)
)

// OutputPath returns the destination path for inputPath: the same relative
// location under the output root, with the container extension. Filename
// sanitation is skipped when cfg.NoRename is set.
func OutputPath(cfg *config.Config, inputPath string, container config.Container) (string, error) {
	rel, err := filepath.Rel(cfg.InputRoot, inputPath)
	if err != nil {
		return "", fmt.Errorf("input %s is not under the input root: %w", inputPath, err)
	}

	dir := filepath.Dir(rel)
	base := filepath.Base(rel)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if !cfg.NoRename {
		stem = SanitizeName(stem)
	}

	return filepath.Join(cfg.OutputRoot, dir, stem+"."+string(container)), nil
}

// SanitizeName strips filesystem-hostile characters and collapses runs of
// whitespace. The result is never empty; a name reduced to nothing becomes
// "unnamed".
func SanitizeName(stem string) string {
	s := reHostileChars.ReplaceAllString(stem, "")
	s = reMultiSpace.ReplaceAllString(s, " ")
	s = strings.Trim(s, " .")
	if s == "" {
		return "unnamed"
	}
	return s
}
