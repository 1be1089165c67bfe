package filesystem

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

func lsImpl(ctx context.Context, rt *engine.Runtime, dir string) (string, error) {
	if dir == "" {
		dir = "/"
	}
	entries, err := rt.Backend.Ls(ctx, dir)
	if err != nil {
		return "", err
	}
	rt.Emit(engine.Event{Type: engine.EventList, Path: dir, Count: len(entries)})

	if len(entries) == 0 {
		return fmt.Sprintf("No files found in %s", dir), nil
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.Path)
		if e.IsDir && !strings.HasSuffix(e.Path, "/") {
			b.WriteByte('/')
		}
	}
	return b.String(), nil
}

// NewLsTool lists the direct children of a directory.
func NewLsTool() engine.Tool {
	return engine.Tool{
		Name:        "ls",
		Description: "Lists the files and directories directly under a path. Directories end with '/'. Use absolute paths starting with '/'.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Absolute directory path (default: /)"}
			}
		}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			rt, err := engine.MustRuntime(ctx)
			if err != nil {
				return "", err
			}
			dir, err := engine.ArgString(args, "path")
			if err != nil {
				return "", err
			}
			return lsImpl(ctx, rt, dir)
		},
		Retryable:  true,
		KeepResult: true,
	}
}
