package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

type planStatus int

const (
	// planConverged means the tool exited 0: applying the configuration
	// would change nothing.
	planConverged planStatus = iota
	// planDiverged covers every nonzero exit: changes pending or the plan
	// itself errored. The tool does not let us tell these apart and retry
	// behavior is identical for both, so neither do we.
	planDiverged
)

type planResult struct {
	Status planStatus
	Output string
}

const maxPlanOutputBytes = 1024 * 1024

var execCommand = func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, name, args...)
}

// runPlan invokes `<tfBin> plan -detailed-exitcode` with the working
// directory set to workingDir. Both output streams are echoed live to
// stdout/stderr and accumulated into a single bounded buffer; interleaving
// across the two streams is not guaranteed. Failure to launch the binary is
// an error; a nonzero exit is a normal planDiverged result.
var runPlan = func(ctx context.Context, tfBin, workingDir string, stdout, stderr io.Writer) (planResult, error) {
	buffer := &limitedBuffer{max: maxPlanOutputBytes}
	cmd := execCommand(ctx, tfBin, "plan", "-detailed-exitcode")
	cmd.Dir = workingDir
	cmd.Stdout = io.MultiWriter(stdout, buffer)
	cmd.Stderr = io.MultiWriter(stderr, buffer)
	cmd.Env = os.Environ()

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintf(stdout, "\n%s exited with code %d\n", tfBin, exitErr.ExitCode())
			return planResult{Status: planDiverged, Output: buffer.String()}, nil
		}
		return planResult{}, fmt.Errorf("run %s: %w", tfBin, err)
	}
	fmt.Fprintf(stdout, "\n%s exited with code 0\n", tfBin)
	return planResult{Status: planConverged, Output: buffer.String()}, nil
}

// limitedBuffer keeps the most recent max bytes written to it. Stdout and
// stderr copy into it from separate goroutines, hence the mutex.
type limitedBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.max <= 0 {
		return len(p), nil
	}
	if len(p) >= b.max {
		b.buf = append(b.buf[:0], p[len(p)-b.max:]...)
		return len(p), nil
	}
	if len(b.buf)+len(p) > b.max {
		drop := len(b.buf) + len(p) - b.max
		b.buf = append(b.buf[:0], b.buf[drop:]...)
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
