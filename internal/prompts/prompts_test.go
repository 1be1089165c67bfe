package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func touch(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		p := filepath.Join(root, n)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDetectProjectType(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  ProjectType
	}{
		{name: "go manifest", files: []string{"go.mod"}, want: ProjectTypeGo},
		{name: "python requirements", files: []string{"requirements.txt"}, want: ProjectTypePython},
		{name: "rust by extension", files: []string{"a.rs", "b.rs", "c.rs", "x.py"}, want: ProjectTypeRust},
		{name: "too few files", files: []string{"a.ts", "b.ts"}, want: ProjectTypeUnknown},
		{name: "empty", want: ProjectTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			touch(t, root, tt.files...)
			if got := DetectProjectType(root); got != tt.want {
				t.Errorf("DetectProjectType() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLoadRules(t *testing.T) {
	root := t.TempDir()
	rules, err := LoadRules(root)
	if err != nil || rules != "" {
		t.Fatalf("missing rules = %q, %v", rules, err)
	}
	if err := os.MkdirAll(filepath.Join(root, ".stepwise"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, RulesPath), []byte("use tabs\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if rules, err = LoadRules(root); err != nil || rules != "use tabs\n" {
		t.Errorf("rules = %q, %v", rules, err)
	}
}

func TestPromptBuilder(t *testing.T) {
	got, err := NewPromptBuilder("hello {{name}}").AddFragment("  ").AddFragment("bye {{name}}").SetVariable("name", "ada").Build()
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello ada\n\nbye ada" {
		t.Errorf("Build() = %q", got)
	}
	if _, err := NewPromptBuilder("hi {{who}}").Build(); err == nil || !strings.Contains(err.Error(), "{{who}}") {
		t.Errorf("unset variable error = %v", err)
	}
}

func TestSystemPrompt(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "go.mod")
	touch(t, root, RulesPath)
	if err := os.WriteFile(filepath.Join(root, RulesPath), []byte("never touch vendor/"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := SystemPrompt(Options{Tools: []string{"ls", "task"}, Subagents: []string{"general-purpose"}, Root: root})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Available tools: ls, task.", "Available subagents: general-purpose.", "a go project", `"go test ./..."`, "never touch vendor/"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}

	mem, err := SystemPrompt(Options{Tools: []string{"ls"}})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(mem, "Workspace:") || strings.Contains(mem, "subagents") {
		t.Errorf("in-memory prompt = %s", mem)
	}
}
