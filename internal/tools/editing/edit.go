package editing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

const maxEditLines = 500

func editFileImpl(ctx context.Context, rt *engine.Runtime, path, oldString, newString string, replaceAll bool) (string, error) {
	if path == "" {
		return "", fmt.Errorf("file_path is required")
	}
	if lines := strings.Count(oldString, "\n"); lines > maxEditLines {
		return "", fmt.Errorf("old_string is %d lines (max %d); break the change into smaller edits", lines, maxEditLines)
	}

	rec, err := rt.Backend.ReadRaw(ctx, path)
	if err != nil {
		return "", err
	}
	content := rec.Text()
	if isGen, marker := isGeneratedFile(content); isGen {
		return "", fmt.Errorf("file appears to be generated (found %q); edit the generator instead", marker)
	}

	res := rt.Backend.Edit(ctx, path, oldString, newString, replaceAll)
	if !res.OK() {
		return "", errors.New(res.Error + whitespaceHint(content, oldString))
	}
	rt.Emit(engine.Event{Type: engine.EventFileEdited, Path: res.Path, Count: res.Occurrences})
	return fmt.Sprintf("Successfully replaced %d occurrence(s) in %s", res.Occurrences, res.Path), nil
}

// whitespaceHint explains a failed match when old exists in content modulo
// whitespace.
func whitespaceHint(content, old string) string {
	if old == "" || strings.Contains(content, old) {
		return ""
	}
	normalizedContent := strings.Join(strings.Fields(content), " ")
	normalizedOld := strings.Join(strings.Fields(old), " ")
	if normalizedOld != "" && strings.Contains(normalizedContent, normalizedOld) {
		return " (the text exists with different whitespace or indentation)"
	}
	return ""
}

func isGeneratedFile(content string) (bool, string) {
	preview := content
	if len(content) > 500 {
		preview = content[:500]
	}

	markers := []string{
		"Code generated",
		"DO NOT EDIT",
		"Auto-generated",
		"automatically generated",
	}
	for _, marker := range markers {
		if strings.Contains(preview, marker) {
			return true, marker
		}
	}
	return false, ""
}

// NewEditFileTool performs exact string replacement in an existing file.
func NewEditFileTool() engine.Tool {
	return engine.Tool{
		Name: "edit_file",
		Description: `Replaces exact text in an existing file.

old_string must match the file exactly, including indentation. The edit fails if old_string is missing, or if it occurs more than once and replace_all is false; add surrounding context to make it unique. Read the file first.`,
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"file_path": {"type": "string", "description": "Absolute path of the file to edit"},
				"old_string": {"type": "string", "minLength": 1, "description": "Exact text to replace"},
				"new_string": {"type": "string", "description": "Replacement text"},
				"replace_all": {"type": "boolean", "description": "Replace every occurrence (default: false)"}
			},
			"required": ["file_path", "old_string", "new_string"]
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
			oldString, err := engine.ArgString(args, "old_string")
			if err != nil {
				return "", err
			}
			newString, err := engine.ArgString(args, "new_string")
			if err != nil {
				return "", err
			}
			replaceAll, err := engine.ArgBool(args, "replace_all", false)
			if err != nil {
				return "", err
			}
			return editFileImpl(ctx, rt, path, oldString, newString, replaceAll)
		},
	}
}
