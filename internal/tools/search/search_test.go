package search

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/stepwise/internal/backend"
	"github.com/ChamsBouzaiene/stepwise/internal/engine"
	"github.com/ChamsBouzaiene/stepwise/internal/state"
)

func seeded(t *testing.T) (context.Context, *[]engine.Event) {
	t.Helper()
	st := state.New()
	now := time.Now()
	st.Files.Put("/src/main.go", state.NewFileRecord("package main\n// TODO: wire flags\nfunc main() {}", now))
	st.Files.Put("/src/util.go", state.NewFileRecord("package main\n// TODO: a\n// TODO: b", now))
	st.Files.Put("/README.md", state.NewFileRecord("# demo\nTODO: docs", now))
	var events []engine.Event
	rt := engine.NewRuntime(st, backend.NewStateBackend(st), func(ev engine.Event) { events = append(events, ev) })
	return engine.WithRuntime(context.Background(), rt), &events
}

func TestGrep(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		want    []string
		notWant []string
		wantErr string
	}{
		{
			name: "files with matches",
			args: map[string]any{"pattern": "TODO"},
			want: []string{"/README.md", "/src/main.go", "/src/util.go"},
		},
		{
			name:    "content restricted by glob",
			args:    map[string]any{"pattern": "TODO", "glob": "*.go", "output_mode": "content"},
			want:    []string{"/src/main.go:2: // TODO: wire flags"},
			notWant: []string{"README"},
		},
		{
			name: "count",
			args: map[string]any{"pattern": "TODO", "path": "/src", "output_mode": "count"},
			want: []string{"/src/util.go: 2", "/src/main.go: 1"},
		},
		{
			name: "no matches",
			args: map[string]any{"pattern": "FIXME"},
			want: []string{"No matches"},
		},
		{
			name:    "bad mode",
			args:    map[string]any{"pattern": "x", "output_mode": "json"},
			wantErr: "unknown output_mode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, _ := seeded(t)
			out, err := NewGrepTool().Fn(ctx, tt.args)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("grep: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("grep output %q missing %q", out, w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("grep output %q should not contain %q", out, w)
				}
			}
		})
	}
}

func TestGlob(t *testing.T) {
	ctx, events := seeded(t)
	out, err := NewGlobTool().Fn(ctx, map[string]any{"pattern": "**/*.go"})
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if out != "/src/main.go\n/src/util.go" {
		t.Errorf("glob = %q", out)
	}
	last := (*events)[len(*events)-1]
	if last.Type != engine.EventGlob || last.Count != 2 || last.Pattern != "**/*.go" {
		t.Errorf("glob event = %+v", last)
	}
}
