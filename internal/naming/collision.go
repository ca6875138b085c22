package naming

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// CollisionResolver arbitrates final output paths within one run. Mirroring
// sanitized input names into the output tree can map distinct inputs to the
// same path ("what?.avi" and "what!.avi" both sanitize to "what"), and with
// concurrent workers the later encode would silently overwrite the earlier
// one. The first input to request a path owns it; later claimants get a
// " - dupN" variant. Goroutine-safe.
type CollisionResolver struct {
	mu     sync.Mutex
	owners map[string]string // final output path → owning input path
}

func NewCollisionResolver() *CollisionResolver {
	return &CollisionResolver{owners: make(map[string]string)}
}

// Resolve returns the output path input may write to. Resolution is stable
// per input: a finalization replayed after a crash asks again and receives
// the same answer, so the moved output is found rather than duplicated.
func (cr *CollisionResolver) Resolve(input, requested string) string {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if cr.claim(input, requested) {
		return requested
	}

	dir := filepath.Dir(requested)
	base := filepath.Base(requested)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for n := 1; ; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s - dup%d%s", stem, n, ext))
		if cr.claim(input, candidate) {
			return candidate
		}
	}
}

// claim records input as the owner of path. A path already owned by a
// different input cannot be claimed; re-claiming one's own path succeeds.
func (cr *CollisionResolver) claim(input, path string) bool {
	if owner, taken := cr.owners[path]; taken && owner != input {
		return false
	}
	cr.owners[path] = input
	return true
}
