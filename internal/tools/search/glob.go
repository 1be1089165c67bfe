package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

const maxGlobResults = 1000

func globImpl(ctx context.Context, rt *engine.Runtime, pattern, path string) (string, error) {
	if pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}
	infos, err := rt.Backend.Glob(ctx, pattern, path)
	if err != nil {
		return "", err
	}
	rt.Emit(engine.Event{Type: engine.EventGlob, Pattern: pattern, Path: path, Count: len(infos)})

	if len(infos) == 0 {
		return fmt.Sprintf("No files match %q", pattern), nil
	}
	var b strings.Builder
	for i, info := range infos {
		if i == maxGlobResults {
			fmt.Fprintf(&b, "\n[%d more files not shown]", len(infos)-maxGlobResults)
			break
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(info.Path)
	}
	return b.String(), nil
}

// NewGlobTool finds files by name pattern.
func NewGlobTool() engine.Tool {
	return engine.Tool{
		Name:        "glob",
		Description: `Finds files whose path matches a glob pattern such as "**/*.go" or "src/*.ts". "**" matches any number of directories. Patterns are relative to path (default: /).`,
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"pattern": {"type": "string", "minLength": 1, "description": "Glob pattern"},
				"path": {"type": "string", "description": "Directory to search from (default: /)"}
			},
			"required": ["pattern"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			rt, err := engine.MustRuntime(ctx)
			if err != nil {
				return "", err
			}
			pattern, err := engine.ArgString(args, "pattern")
			if err != nil {
				return "", err
			}
			path, err := engine.ArgString(args, "path")
			if err != nil {
				return "", err
			}
			return globImpl(ctx, rt, pattern, path)
		},
		Retryable:  true,
		KeepResult: true,
	}
}
