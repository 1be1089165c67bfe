package filesystem

import (
	"context"
	"errors"
	"fmt"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

func writeFileImpl(ctx context.Context, rt *engine.Runtime, path, content string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("file_path is required")
	}
	rt.Emit(engine.Event{Type: engine.EventFileWriteStart, Path: path})
	res := rt.Backend.Write(ctx, path, content)
	if !res.OK() {
		return "", errors.New(res.Error)
	}
	rt.Emit(engine.Event{Type: engine.EventFileWritten, Path: res.Path, Count: len(content)})
	return fmt.Sprintf("Updated file %s", res.Path), nil
}

// NewWriteFileTool creates new files. Existing files are changed with edit_file.
func NewWriteFileTool() engine.Tool {
	return engine.Tool{
		Name:        "write_file",
		Description: "Creates a new file with the given content. Fails if the file already exists; use edit_file to change existing files.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"file_path": {"type": "string", "description": "Absolute path of the file to create"},
				"content": {"type": "string", "description": "Full file content"}
			},
			"required": ["file_path", "content"]
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
			content, err := engine.ArgString(args, "content")
			if err != nil {
				return "", err
			}
			return writeFileImpl(ctx, rt, path, content)
		},
	}
}
