package backend

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/ChamsBouzaiene/stepwise/internal/sandbox"
)

// DefaultMaxOutputBytes caps the combined output returned by Execute.
const DefaultMaxOutputBytes = 100_000

// SandboxBackend is a FilesystemBackend that can also run shell commands
// through a sandbox.Runner. When the runner is a sandbox.Copier, batch
// transfers go through it instead of the host filesystem.
type SandboxBackend struct {
	*FilesystemBackend
	runner   sandbox.Runner
	workdir  string
	maxBytes int
}

// NewSandboxBackend creates a sandbox backend over fsb. workdir is where the
// root is visible inside the sandbox; it is only used for copies.
func NewSandboxBackend(fsb *FilesystemBackend, runner sandbox.Runner, workdir string) *SandboxBackend {
	if workdir == "" {
		workdir = "/workspace"
	}
	return &SandboxBackend{
		FilesystemBackend: fsb,
		runner:            runner,
		workdir:           workdir,
		maxBytes:          DefaultMaxOutputBytes,
	}
}

// SetMaxOutputBytes changes the Execute output cap.
func (b *SandboxBackend) SetMaxOutputBytes(n int) {
	if n > 0 {
		b.maxBytes = n
	}
}

// Execute runs command in the sandbox. A command that times out or is
// cancelled yields a nil ExitCode together with whatever output it produced.
func (b *SandboxBackend) Execute(ctx context.Context, command string) (ExecuteResponse, error) {
	res, err := b.runner.Run(ctx, command)
	if err != nil && !res.TimedOut {
		return ExecuteResponse{}, err
	}

	var out strings.Builder
	out.WriteString(res.Stdout)
	if res.Stderr != "" {
		if out.Len() > 0 && !strings.HasSuffix(res.Stdout, "\n") {
			out.WriteByte('\n')
		}
		out.WriteString(res.Stderr)
	}

	resp := ExecuteResponse{Output: out.String()}
	if len(resp.Output) > b.maxBytes {
		resp.Output = resp.Output[:b.maxBytes]
		resp.Truncated = true
	}
	if res.TimedOut {
		if ctx.Err() != nil {
			return resp, ctx.Err()
		}
		resp.Output += "\n[command timed out]"
		return resp, nil
	}
	code := res.Code
	resp.ExitCode = &code
	return resp, nil
}

// Close releases the runner.
func (b *SandboxBackend) Close() error {
	return b.runner.Close()
}

// UploadFiles copies files into the sandbox when it supports copies and
// falls back to the host root otherwise.
func (b *SandboxBackend) UploadFiles(ctx context.Context, files []FileUpload) []UploadResult {
	copier, ok := b.runner.(sandbox.Copier)
	if !ok {
		return b.FilesystemBackend.UploadFiles(ctx, files)
	}
	results := make([]UploadResult, len(files))
	for i, f := range files {
		results[i] = UploadResult{Path: f.Path}
		vp, err := NormalizePath(f.Path)
		if err != nil {
			results[i].Error = CodeOf(err)
			continue
		}
		results[i].Path = vp
		if err := copier.CopyIn(ctx, path.Join(b.workdir, vp), f.Content); err != nil {
			results[i].Error = classifyCopyError(err)
		}
	}
	return results
}

// DownloadFiles copies files out of the sandbox when it supports copies and
// falls back to the host root otherwise.
func (b *SandboxBackend) DownloadFiles(ctx context.Context, paths []string) []DownloadResult {
	copier, ok := b.runner.(sandbox.Copier)
	if !ok {
		return b.FilesystemBackend.DownloadFiles(ctx, paths)
	}
	results := make([]DownloadResult, len(paths))
	for i, p := range paths {
		results[i] = DownloadResult{Path: p}
		vp, err := NormalizePath(p)
		if err != nil {
			results[i].Error = CodeOf(err)
			continue
		}
		results[i].Path = vp
		data, err := copier.CopyOut(ctx, path.Join(b.workdir, vp))
		if err != nil {
			results[i].Error = classifyCopyError(err)
			continue
		}
		results[i].Content = data
	}
	return results
}

func classifyCopyError(err error) ErrorCode {
	switch {
	case errors.Is(err, sandbox.ErrNotFound):
		return ErrFileNotFound
	case strings.Contains(err.Error(), "is a directory"):
		return ErrIsDirectory
	case strings.Contains(strings.ToLower(err.Error()), "permission denied"):
		return ErrPermissionDenied
	}
	return classifyOSError(err)
}
