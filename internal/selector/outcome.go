// Package selector implements the per-file screening checks and the
// stream-selection decision matrix. Skip and failure conditions are plain
// values, never panics or sentinel control-flow errors, so the orchestrator's
// transition table can switch on them directly.
package selector

import "fmt"

// Condition identifies why a file was screened out or selection failed.
type Condition int

const (
	CondNone Condition = iota
	CondAlreadyEncoded
	CondBitrateTooLow
	CondFormatExcluded
	CondNoStreamsFound
	CondNoSuitableAudio
	CondInputTooSmall
)

// String returns the condition's wire/log name.
func (c Condition) String() string {
	switch c {
	case CondAlreadyEncoded:
		return "already_encoded"
	case CondBitrateTooLow:
		return "bitrate_too_low"
	case CondFormatExcluded:
		return "format_excluded"
	case CondNoStreamsFound:
		return "no_streams_found"
	case CondNoSuitableAudio:
		return "no_suitable_audio"
	case CondInputTooSmall:
		return "input_too_small"
	default:
		return "none"
	}
}

// Verdict is the three-way result of screening or selection.
type Verdict int

const (
	Proceed Verdict = iota
	Skip            // not an error; routed to the skip holding area
	Fail            // structural; routed to the permanent-error holding area
)

// Outcome couples a verdict with its condition and a human-readable message.
type Outcome struct {
	Verdict   Verdict
	Condition Condition
	Message   string
}

// Ok is the proceed outcome.
var Ok = Outcome{Verdict: Proceed}

func skip(c Condition, format string, args ...any) Outcome {
	return Outcome{Verdict: Skip, Condition: c, Message: fmt.Sprintf(format, args...)}
}

func fail(c Condition, format string, args ...any) Outcome {
	return Outcome{Verdict: Fail, Condition: c, Message: fmt.Sprintf(format, args...)}
}
