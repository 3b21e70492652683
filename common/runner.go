package common

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Runner invokes external tools. Every call is bounded by a timeout and a timed-out
// process is killed.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error)
	LookPath(name string) (string, error)
}

// ExecRunner runs real subprocesses.
type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = 5 * time.Second
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, &ToolError{
			Tool:     name,
			Args:     args,
			Output:   string(output),
			TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
			Err:      err,
		}
	}
	return output, nil
}

func (r *ExecRunner) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, ErrToolMissing)
	}
	return path, nil
}
