package backend

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"syscall"
)

// ErrorCode is the closed taxonomy of file operation failures.
type ErrorCode string

const (
	ErrFileNotFound     ErrorCode = "file_not_found"
	ErrPermissionDenied ErrorCode = "permission_denied"
	ErrIsDirectory      ErrorCode = "is_directory"
	ErrInvalidPath      ErrorCode = "invalid_path"
)

// FileOperationError reports a failed file operation.
type FileOperationError struct {
	Op   string
	Path string
	Code ErrorCode
	Err  error
}

func (e *FileOperationError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Code)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FileOperationError) Unwrap() error { return e.Err }

// CodeOf extracts the taxonomy code from err, or "" if err is not a FileOperationError.
func CodeOf(err error) ErrorCode {
	var fe *FileOperationError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

func fileError(op, p string, code ErrorCode) error {
	return &FileOperationError{Op: op, Path: p, Code: code}
}

// classifyOSError maps an OS error onto the taxonomy. Anything that is not a
// missing file, a permission problem or a directory becomes invalid_path.
func classifyOSError(err error) ErrorCode {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrFileNotFound
	case errors.Is(err, fs.ErrPermission):
		return ErrPermissionDenied
	case errors.Is(err, syscall.EISDIR):
		return ErrIsDirectory
	}
	return ErrInvalidPath
}

func wrapOSError(op, p string, err error) error {
	return &FileOperationError{Op: op, Path: p, Code: classifyOSError(err), Err: err}
}

// NormalizePath validates a virtual path and returns its cleaned form.
// Paths must be absolute and may not escape the root with "..".
func NormalizePath(p string) (string, error) {
	if p == "" {
		return "", fileError("validate", p, ErrInvalidPath)
	}
	if strings.HasPrefix(p, "~") || strings.ContainsRune(p, 0) {
		return "", fileError("validate", p, ErrInvalidPath)
	}
	if !strings.HasPrefix(p, "/") {
		return "", fileError("validate", p, ErrInvalidPath)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fileError("validate", p, ErrInvalidPath)
		}
	}
	return path.Clean(p), nil
}

// normalizeDir is NormalizePath with "" meaning the root.
func normalizeDir(p string) (string, error) {
	if p == "" {
		return "/", nil
	}
	return NormalizePath(p)
}
