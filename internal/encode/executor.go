package encode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Executor runs a fully built command line. The pipeline depends on this
// interface so tests can substitute stub transcoders with size behavior.
type Executor interface {
	Run(ctx context.Context, args []string) (stderr string, err error)
}

// FFmpeg is the production Executor. When verbose, stderr is tee'd to
// os.Stderr in real time; otherwise it is captured silently for the failure
// transcript.
type FFmpeg struct {
	Verbose bool
}

// Run executes args[0] with the remaining arguments.
func (f FFmpeg) Run(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	var stderrBuf bytes.Buffer
	if f.Verbose {
		cmd.Stderr = io.MultiWriter(&stderrBuf, os.Stderr)
	} else {
		cmd.Stderr = &stderrBuf
	}

	err := cmd.Run()
	return stderrBuf.String(), err
}
