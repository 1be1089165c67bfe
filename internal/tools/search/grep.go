package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ChamsBouzaiene/stepwise/internal/backend"
	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

// Output modes for grep.
const (
	ModeFilesWithMatches = "files_with_matches"
	ModeContent          = "content"
	ModeCount            = "count"
)

func grepImpl(ctx context.Context, rt *engine.Runtime, pattern, path, glob, mode string) (string, error) {
	if pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}
	if mode == "" {
		mode = ModeFilesWithMatches
	}
	switch mode {
	case ModeFilesWithMatches, ModeContent, ModeCount:
	default:
		return "", fmt.Errorf("unknown output_mode %q", mode)
	}

	matches, err := rt.Backend.Grep(ctx, pattern, path, glob)
	if err != nil {
		return "", err
	}
	rt.Emit(engine.Event{Type: engine.EventSearch, Pattern: pattern, Path: path, Count: len(matches)})

	if len(matches) == 0 {
		return fmt.Sprintf("No matches found for %q", pattern), nil
	}
	return formatMatches(matches, mode), nil
}

func formatMatches(matches []backend.GrepMatch, mode string) string {
	var b strings.Builder
	switch mode {
	case ModeContent:
		for i, m := range matches {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%s:%d: %s", m.Path, m.Line, m.Text)
		}
	default:
		counts := make(map[string]int)
		var paths []string
		for _, m := range matches {
			if counts[m.Path] == 0 {
				paths = append(paths, m.Path)
			}
			counts[m.Path]++
		}
		sort.Strings(paths)
		for i, p := range paths {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(p)
			if mode == ModeCount {
				fmt.Fprintf(&b, ": %d", counts[p])
			}
		}
	}
	if len(matches) >= backend.MaxGrepMatches {
		fmt.Fprintf(&b, "\n[results truncated at %d matches; narrow the search]", backend.MaxGrepMatches)
	}
	return b.String()
}

// NewGrepTool searches file contents for a literal pattern.
func NewGrepTool() engine.Tool {
	return engine.Tool{
		Name: "grep",
		Description: `Searches file contents for a literal text pattern (not a regex).

output_mode selects what is returned: "files_with_matches" (default) lists matching files, "content" lists matching lines as path:line: text, "count" lists match counts per file. Narrow with path and glob (e.g. "*.go").`,
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"pattern": {"type": "string", "minLength": 1, "description": "Literal text to search for"},
				"path": {"type": "string", "description": "Directory to search (default: /)"},
				"glob": {"type": "string", "description": "Only search files matching this glob"},
				"output_mode": {"type": "string", "enum": ["files_with_matches", "content", "count"]}
			},
			"required": ["pattern"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			rt, err := engine.MustRuntime(ctx)
			if err != nil {
				return "", err
			}
			var pattern, path, glob, mode string
			for key, dst := range map[string]*string{"pattern": &pattern, "path": &path, "glob": &glob, "output_mode": &mode} {
				if *dst, err = engine.ArgString(args, key); err != nil {
					return "", err
				}
			}
			return grepImpl(ctx, rt, pattern, path, glob, mode)
		},
		Retryable:  true,
		KeepResult: true,
	}
}
