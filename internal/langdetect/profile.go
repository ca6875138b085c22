package langdetect

import (
	"runtime"
	"sync"
)

// Profile selects the classifier model configuration for this machine.
// Larger models are noticeably more accurate but need more cores to keep a
// sample window under a few seconds of wall time.
type Profile struct {
	Model string // model name passed to the classifier binary
	Cores int    // cores observed when the profile was chosen
}

var (
	profileOnce sync.Once
	profile     Profile
)

// ActiveProfile returns the process-wide model profile, probing hardware
// capability on first use. A worker only ever needs one value for its
// lifetime, so this is a lazily cached computation rather than anything
// resembling a reconfigurable singleton.
func ActiveProfile() Profile {
	profileOnce.Do(func() {
		cores := runtime.NumCPU()
		model := "small"
		if cores >= 8 {
			model = "medium"
		}
		if cores <= 2 {
			model = "tiny"
		}
		profile = Profile{Model: model, Cores: cores}
	})
	return profile
}
