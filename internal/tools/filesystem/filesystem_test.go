package filesystem

import (
	"context"
	"strings"
	"testing"

	"github.com/ChamsBouzaiene/stepwise/internal/backend"
	"github.com/ChamsBouzaiene/stepwise/internal/engine"
	"github.com/ChamsBouzaiene/stepwise/internal/state"
)

func newCtx(t *testing.T) (context.Context, *state.AgentState, *[]engine.Event) {
	t.Helper()
	st := state.New()
	var events []engine.Event
	rt := engine.NewRuntime(st, backend.NewStateBackend(st), func(ev engine.Event) { events = append(events, ev) })
	return engine.WithRuntime(context.Background(), rt), st, &events
}

func TestWriteThenRead(t *testing.T) {
	ctx, st, events := newCtx(t)

	out, err := NewWriteFileTool().Fn(ctx, map[string]any{"file_path": "/a.txt", "content": "hello\nworld"})
	if err != nil {
		t.Fatalf("write_file: %v", err)
	}
	if !strings.Contains(out, "/a.txt") {
		t.Errorf("write_file result = %q", out)
	}
	if _, ok := st.Files.Get("/a.txt"); !ok {
		t.Fatal("file not stored in state")
	}

	out, err = NewReadFileTool().Fn(ctx, map[string]any{"file_path": "/a.txt"})
	if err != nil {
		t.Fatalf("read_file: %v", err)
	}
	want := "     1\thello\n     2\tworld"
	if out != want {
		t.Errorf("read_file = %q, want %q", out, want)
	}

	var types []engine.EventType
	for _, ev := range *events {
		types = append(types, ev.Type)
	}
	wantTypes := []engine.EventType{engine.EventFileWriteStart, engine.EventFileWritten, engine.EventFileRead}
	if len(types) != len(wantTypes) {
		t.Fatalf("events = %v, want %v", types, wantTypes)
	}
	for i := range wantTypes {
		if types[i] != wantTypes[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], wantTypes[i])
		}
	}
}

func TestWriteExistingFails(t *testing.T) {
	ctx, _, _ := newCtx(t)
	args := map[string]any{"file_path": "/a.txt", "content": "x"}
	if _, err := NewWriteFileTool().Fn(ctx, args); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := NewWriteFileTool().Fn(ctx, args); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("second write error = %v, want already exists", err)
	}
}

func TestReadFile(t *testing.T) {
	ctx, _, _ := newCtx(t)
	if _, err := NewWriteFileTool().Fn(ctx, map[string]any{"file_path": "/l.txt", "content": "a\nb\nc\nd"}); err != nil {
		t.Fatal(err)
	}
	if _, err := NewWriteFileTool().Fn(ctx, map[string]any{"file_path": "/empty.txt", "content": ""}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		args    map[string]any
		want    string
		wantErr string
	}{
		{name: "page", args: map[string]any{"file_path": "/l.txt", "offset": float64(1), "limit": float64(2)}, want: "     2\tb\n     3\tc"},
		{name: "empty file", args: map[string]any{"file_path": "/empty.txt"}, want: "empty contents"},
		{name: "offset past end", args: map[string]any{"file_path": "/l.txt", "offset": float64(10)}, wantErr: "exceeds file length"},
		{name: "missing", args: map[string]any{"file_path": "/nope.txt"}, wantErr: "file_not_found"},
		{name: "no path", args: map[string]any{}, wantErr: "file_path is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewReadFileTool().Fn(ctx, tt.args)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("read_file = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestLs(t *testing.T) {
	ctx, _, events := newCtx(t)
	for _, p := range []string{"/src/main.go", "/README.md"} {
		if _, err := NewWriteFileTool().Fn(ctx, map[string]any{"file_path": p, "content": "x"}); err != nil {
			t.Fatal(err)
		}
	}
	out, err := NewLsTool().Fn(ctx, map[string]any{})
	if err != nil {
		t.Fatalf("ls: %v", err)
	}
	if !strings.Contains(out, "/README.md") || !strings.Contains(out, "/src/") {
		t.Errorf("ls = %q", out)
	}
	last := (*events)[len(*events)-1]
	if last.Type != engine.EventList || last.Count != 2 {
		t.Errorf("last event = %+v, want list with count 2", last)
	}
}

func TestToolsRequireRuntime(t *testing.T) {
	for _, tool := range []engine.Tool{NewLsTool(), NewReadFileTool(), NewWriteFileTool()} {
		if _, err := tool.Fn(context.Background(), map[string]any{"file_path": "/a"}); err != engine.ErrNoRuntime {
			t.Errorf("%s without runtime: err = %v", tool.Name, err)
		}
	}
}
