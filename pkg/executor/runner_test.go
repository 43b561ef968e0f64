package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/portcheck/portcheck/pkg/model"
)

func TestRunCapturesOutputAndExitCode(t *testing.T) {
	res, err := run(context.Background(), t.TempDir(), 5*time.Second, "/bin/sh", "-c", "echo out; echo err >&2")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Stdout != "out\n" {
		t.Errorf("stdout: %q", res.Stdout)
	}
	if res.Stderr != "err\n" {
		t.Errorf("stderr: %q", res.Stderr)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code: %d", res.ExitCode)
	}
}

func TestRunReportsNonZeroExit(t *testing.T) {
	res, err := run(context.Background(), t.TempDir(), 5*time.Second, "/bin/sh", "-c", "exit 3")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code: got %d, want 3", res.ExitCode)
	}
}

func TestRunKillsOnTimeout(t *testing.T) {
	start := time.Now()
	res, err := run(context.Background(), t.TempDir(), 100*time.Millisecond, "/bin/sh", "-c", "sleep 10")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if model.KindOf(err) != model.ErrKindTimeout {
		t.Errorf("error kind: got %s, want %s", model.KindOf(err), model.ErrKindTimeout)
	}
	if res == nil || !res.TimedOut {
		t.Fatalf("result: %+v", res)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("kill took %v, process group not terminated", elapsed)
	}
}

func TestRunMissingBinary(t *testing.T) {
	_, err := run(context.Background(), t.TempDir(), time.Second, "/nonexistent/binary")
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	var merr *model.MigrationError
	if !errors.As(err, &merr) {
		t.Errorf("error type: %T", err)
	}
}
