package prompts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ProjectType represents the type of project.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeRust    ProjectType = "rust"
	ProjectTypeUnknown ProjectType = "unknown"
)

// RulesPath is the per-workspace file whose contents extend the prompt.
const RulesPath = ".stepwise/rules"

var manifests = []struct {
	file string
	kind ProjectType
}{
	{"go.mod", ProjectTypeGo},
	{"package.json", ProjectTypeNode},
	{"pyproject.toml", ProjectTypePython},
	{"requirements.txt", ProjectTypePython},
	{"Cargo.toml", ProjectTypeRust},
}

var extensions = map[string]ProjectType{
	".go":  ProjectTypeGo,
	".ts":  ProjectTypeNode,
	".tsx": ProjectTypeNode,
	".js":  ProjectTypeNode,
	".jsx": ProjectTypeNode,
	".py":  ProjectTypePython,
	".rs":  ProjectTypeRust,
}

// DetectProjectType checks for a manifest first and falls back to counting
// source extensions in the root; at least three files of one kind are needed.
func DetectProjectType(root string) ProjectType {
	for _, m := range manifests {
		if _, err := os.Stat(filepath.Join(root, m.file)); err == nil {
			return m.kind
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return ProjectTypeUnknown
	}
	counts := map[ProjectType]int{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if kind, ok := extensions[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			counts[kind]++
		}
	}

	best, bestCount := ProjectTypeUnknown, 0
	for _, kind := range []ProjectType{ProjectTypeGo, ProjectTypeNode, ProjectTypePython, ProjectTypeRust} {
		if counts[kind] > bestCount {
			best, bestCount = kind, counts[kind]
		}
	}
	if bestCount >= 3 {
		return best
	}
	return ProjectTypeUnknown
}

// TestCommand returns the usual test command for a project type.
func TestCommand(pt ProjectType) string {
	switch pt {
	case ProjectTypeGo:
		return "go test ./..."
	case ProjectTypeNode:
		return "npm test"
	case ProjectTypePython:
		return "pytest"
	case ProjectTypeRust:
		return "cargo test"
	}
	return ""
}

// LoadRules reads RulesPath under root. A missing file yields "".
func LoadRules(root string) (string, error) {
	data, err := os.ReadFile(filepath.Join(root, RulesPath))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read rules file: %w", err)
	}
	return string(data), nil
}
