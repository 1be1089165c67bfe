//go:build !windows
// +build !windows

package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
)

// HostRunner runs commands directly on the host machine without isolation.
// It should only be used when Docker is unavailable or explicitly requested.
type HostRunner struct {
	config Config
}

// NewHostRunner creates a host runner rooted at cfg.Root.
func NewHostRunner(cfg Config) *HostRunner {
	return &HostRunner{config: cfg}
}

// Run executes command with "sh -c" inside the workspace root.
func (r *HostRunner) Run(ctx context.Context, command string) (Result, error) {
	cctx, cancel := context.WithTimeout(ctx, r.config.timeout())
	defer cancel()

	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = r.config.Root
	// New process group so cancellation kills every child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return Result{}, err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-cctx.Done():
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	res := Result{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}

	if cctx.Err() != nil {
		res.TimedOut = true
		res.Code = -1
		return res, cctx.Err()
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			// A non-zero exit is a normal command outcome.
			res.Code = exitErr.ExitCode()
			return res, nil
		}
		res.Code = 1
		return res, waitErr
	}

	return res, nil
}

// Close implements Runner.
func (r *HostRunner) Close() error { return nil }
