// Package backend defines the file capability the agent tools operate on and
// its providers: in-memory state, local disk, sandboxed disk and a
// prefix-routing composite.
//
// Every path is a virtual absolute path ("/dir/file.txt"). Optional
// capabilities (command execution, batch transfer) are discovered with
// AsExecutor and AsTransferer rather than through a type hierarchy.
package backend

import (
	"context"
	"time"

	"github.com/ChamsBouzaiene/stepwise/internal/state"
)

// FileInfo describes one entry returned by Ls or Glob.
type FileInfo struct {
	Path       string    `json:"path"`
	IsDir      bool      `json:"is_dir,omitempty"`
	Size       int64     `json:"size,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitempty"`
}

// WriteResult is the outcome of Write. Error is empty on success.
type WriteResult struct {
	Path  string `json:"path"`
	Error string `json:"error,omitempty"`
}

// OK reports whether the write succeeded.
func (r WriteResult) OK() bool { return r.Error == "" }

// EditResult is the outcome of Edit. Error is empty on success.
type EditResult struct {
	Path        string `json:"path"`
	Occurrences int    `json:"occurrences"`
	Error       string `json:"error,omitempty"`
}

// OK reports whether the edit succeeded.
func (r EditResult) OK() bool { return r.Error == "" }

// GrepMatch is a single line containing the search pattern.
type GrepMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Backend is the file capability every provider implements.
type Backend interface {
	// Ls lists the direct children of a directory.
	Ls(ctx context.Context, path string) ([]FileInfo, error)
	// Read returns cat -n style numbered lines. offset is 0-based, limit <= 0
	// means DefaultReadLimit.
	Read(ctx context.Context, path string, offset, limit int) (string, error)
	// ReadRaw returns the stored record without formatting.
	ReadRaw(ctx context.Context, path string) (state.FileRecord, error)
	// Write creates a new file. Writing to an existing path fails.
	Write(ctx context.Context, path, content string) WriteResult
	// Edit replaces old with new. It fails when old is missing, or when it
	// occurs more than once and replaceAll is false.
	Edit(ctx context.Context, path, old, new string, replaceAll bool) EditResult
	// Grep finds lines containing the literal pattern under path (default "/"),
	// optionally restricted to files matching glob.
	Grep(ctx context.Context, pattern, path, glob string) ([]GrepMatch, error)
	// Glob returns files under path (default "/") whose path relative to it
	// matches pattern. "**" matches any number of directories.
	Glob(ctx context.Context, pattern, path string) ([]FileInfo, error)
}

// ExecuteResponse is the outcome of a shell command.
type ExecuteResponse struct {
	Output string `json:"output"`
	// ExitCode is nil when the command did not run to completion.
	ExitCode  *int `json:"exit_code"`
	Truncated bool `json:"truncated"`
}

// Executor is the optional command execution capability.
type Executor interface {
	Execute(ctx context.Context, command string) (ExecuteResponse, error)
}

// FileUpload is one file to upload.
type FileUpload struct {
	Path    string
	Content []byte
}

// UploadResult is the per-path outcome of an upload. Error is empty on success.
type UploadResult struct {
	Path  string    `json:"path"`
	Error ErrorCode `json:"error,omitempty"`
}

// DownloadResult is the per-path outcome of a download. Error is empty on success.
type DownloadResult struct {
	Path    string    `json:"path"`
	Content []byte    `json:"content,omitempty"`
	Error   ErrorCode `json:"error,omitempty"`
}

// FileTransferer is the optional batch transfer capability. Batches may
// partially succeed; each path carries its own result.
type FileTransferer interface {
	UploadFiles(ctx context.Context, files []FileUpload) []UploadResult
	DownloadFiles(ctx context.Context, paths []string) []DownloadResult
}

// capabilityRouter lets wrapping backends expose capabilities of the backend
// they delegate to.
type capabilityRouter interface {
	executor() (Executor, bool)
	transferer() (FileTransferer, bool)
}

// AsExecutor reports whether b can execute commands.
func AsExecutor(b Backend) (Executor, bool) {
	if r, ok := b.(capabilityRouter); ok {
		return r.executor()
	}
	e, ok := b.(Executor)
	return e, ok
}

// AsTransferer reports whether b supports batch upload and download.
func AsTransferer(b Backend) (FileTransferer, bool) {
	if r, ok := b.(capabilityRouter); ok {
		return r.transferer()
	}
	t, ok := b.(FileTransferer)
	return t, ok
}
