package sandbox

import (
	"context"
)

// Result captures output of a command.
type Result struct {
	Stdout   string
	Stderr   string
	Code     int
	TimedOut bool
}

// Runner runs shell commands against a workspace directory.
// Implementations should isolate the command from the host where they can.
type Runner interface {
	// Run executes command through a POSIX shell in the workspace root.
	// A timed out command returns a Result with TimedOut set and a non-nil error.
	Run(ctx context.Context, command string) (Result, error)
	// Close releases any resources held by the runner.
	Close() error
}

// Copier moves raw file contents in and out of an isolated environment.
// Paths are absolute paths inside that environment.
type Copier interface {
	CopyIn(ctx context.Context, dst string, content []byte) error
	CopyOut(ctx context.Context, src string) ([]byte, error)
}
