package planning

import (
	"context"
	"strings"
	"testing"

	"github.com/ChamsBouzaiene/stepwise/internal/backend"
	"github.com/ChamsBouzaiene/stepwise/internal/engine"
	"github.com/ChamsBouzaiene/stepwise/internal/state"
)

func todo(id, content, status string) map[string]any {
	return map[string]any{"id": id, "content": content, "status": status}
}

func TestWriteTodos(t *testing.T) {
	st := state.New()
	var events []engine.Event
	rt := engine.NewRuntime(st, backend.NewStateBackend(st), func(ev engine.Event) { events = append(events, ev) })
	ctx := engine.WithRuntime(context.Background(), rt)
	write := NewWriteTodosTool()

	_, err := write.Fn(ctx, map[string]any{"todos": []any{
		todo("1", "read code", "in_progress"),
		todo("2", "write fix", "pending"),
	}})
	if err != nil {
		t.Fatalf("write_todos: %v", err)
	}

	out, err := write.Fn(ctx, map[string]any{"merge": true, "todos": []any{
		todo("1", "read code", "completed"),
		todo("3", "run tests", ""),
	}})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	got := st.Todos()
	if len(got) != 3 || got[0].Status != state.TodoCompleted || got[2].Status != state.TodoPending {
		t.Errorf("todos = %+v", got)
	}
	if !strings.Contains(out, "3 [pending] run tests") {
		t.Errorf("result = %q", out)
	}
	if len(events) != 2 || events[1].Type != engine.EventTodosChanged || len(events[1].Todos) != 3 {
		t.Errorf("events = %+v", events)
	}

	if _, err := write.Fn(ctx, map[string]any{"todos": []any{todo("x", "y", "blocked")}}); err == nil {
		t.Error("invalid status accepted")
	}
	if len(st.Todos()) != 3 {
		t.Error("failed write changed the list")
	}

	out, err = NewReadTodosTool().Fn(ctx, nil)
	if err != nil {
		t.Fatalf("read_todos: %v", err)
	}
	if !strings.Contains(out, `"id":"3"`) {
		t.Errorf("read_todos = %s", out)
	}
}

func TestWriteTodosReplaces(t *testing.T) {
	st := state.New()
	ctx := engine.WithRuntime(context.Background(), engine.NewRuntime(st, nil, nil))
	write := NewWriteTodosTool()
	if _, err := write.Fn(ctx, map[string]any{"todos": []any{todo("1", "a", "pending"), todo("2", "b", "pending")}}); err != nil {
		t.Fatal(err)
	}
	if _, err := write.Fn(ctx, map[string]any{"todos": []any{todo("9", "c", "pending")}}); err != nil {
		t.Fatal(err)
	}
	if got := st.Todos(); len(got) != 1 || got[0].ID != "9" {
		t.Errorf("todos = %+v", got)
	}
}
