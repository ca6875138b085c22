// Package pipeline discovers the work list, dispatches files to the bounded
// worker pool, aggregates run statistics, and performs the post-batch
// cleanup.
package pipeline

import (
	"io/fs"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"

	"github.com/backmassage/shrinkwrap/internal/config"
)

// Supported media file extensions (lowercase, with leading dot).
var mediaExtensions = map[string]bool{
	".mkv":  true,
	".mp4":  true,
	".avi":  true,
	".m4v":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".ts":   true,
	".m2ts": true,
	".mpg":  true,
	".mpeg": true,
	".vob":  true,
	".ogv":  true,
}

// Discover walks the input root and collects files with media extensions.
// Directories whose names contain an excluded keyword are pruned unless
// cfg.IncludeExcludedDirs is set; the state and holding directories are
// always pruned. The result is sorted lexicographically, then shuffled when
// cfg.RandomOrder is set.
func Discover(cfg *config.Config) ([]string, error) {
	var files []string
	err := filepath.WalkDir(cfg.InputRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != cfg.InputRoot && excludedDir(cfg, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if mediaExtensions[ext] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	if cfg.RandomOrder {
		rand.Shuffle(len(files), func(i, j int) {
			files[i], files[j] = files[j], files[i]
		})
	}
	return files, nil
}

// excludedDir reports whether a directory name should be pruned. Internal
// bookkeeping directories are pruned regardless of IncludeExcludedDirs.
func excludedDir(cfg *config.Config, name string) bool {
	lower := strings.ToLower(name)
	if lower == "_holding" || lower == ".shrinkwrap" {
		return true
	}
	if cfg.IncludeExcludedDirs {
		return false
	}
	for _, kw := range cfg.ExcludedDirKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
