package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"

	"github.com/portcheck/portcheck/pkg/model"
)

// runResult captures one subprocess invocation.
type runResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// run executes a command in dir under the context deadline. The command gets
// its own process group so that expiry or cancellation kills the whole
// subprocess tree, not just the immediate child.
func run(ctx context.Context, dir string, timeout time.Duration, name string, args ...string) (*runResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, model.NewError(model.ErrKindInternal, "start "+name, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	killed := false
	var waitErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		killed = true
		// Negative pid addresses the whole process group.
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		waitErr = <-done
	}

	res := &runResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		TimedOut: killed,
	}

	if killed {
		res.ExitCode = -1
		return res, model.NewError(model.ErrKindTimeout, name+" exceeded deadline", ctx.Err())
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, model.NewError(model.ErrKindInternal, "wait for "+name, waitErr)
	}
	return res, nil
}
