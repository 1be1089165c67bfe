package filesystem

import (
	"context"
	"fmt"

	"github.com/ChamsBouzaiene/stepwise/internal/backend"
	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

func readFileImpl(ctx context.Context, rt *engine.Runtime, path string, offset, limit int) (string, error) {
	if path == "" {
		return "", fmt.Errorf("file_path is required")
	}
	out, err := rt.Backend.Read(ctx, path, offset, limit)
	if err != nil {
		return "", err
	}
	rt.Emit(engine.Event{Type: engine.EventFileRead, Path: path})
	return out, nil
}

// NewReadFileTool reads a file as numbered lines.
func NewReadFileTool() engine.Tool {
	return engine.Tool{
		Name: "read_file",
		Description: fmt.Sprintf(`Reads a file and returns its lines numbered like 'cat -n'.

By default up to %d lines are returned starting at the top of the file; use offset (0-based line) and limit to page through longer files. Lines longer than %d characters continue on rows numbered N.1, N.2 and so on.`,
			backend.DefaultReadLimit, backend.MaxLineLength),
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"file_path": {"type": "string", "description": "Absolute file path"},
				"offset": {"type": "integer", "minimum": 0, "description": "First line to return, 0-based (default: 0)"},
				"limit": {"type": "integer", "minimum": 1, "description": "Maximum number of lines to return"}
			},
			"required": ["file_path"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			rt, err := engine.MustRuntime(ctx)
			if err != nil {
				return "", err
			}
			path, err := engine.ArgString(args, "file_path")
			if err != nil {
				return "", err
			}
			offset, err := engine.ArgInt(args, "offset", 0)
			if err != nil {
				return "", err
			}
			limit, err := engine.ArgInt(args, "limit", backend.DefaultReadLimit)
			if err != nil {
				return "", err
			}
			return readFileImpl(ctx, rt, path, offset, limit)
		},
		Retryable:  true,
		KeepResult: true,
	}
}
