package state

import (
	"testing"
	"time"
)

func TestFileRecordRoundTrip(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := NewFileRecord("a\nb\n", now)
	if got := rec.Text(); got != "a\nb\n" {
		t.Fatalf("Text() = %q, want %q", got, "a\nb\n")
	}
	if len(rec.Content) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(rec.Content))
	}

	later := now.Add(time.Minute)
	updated := rec.WithContent("c", later)
	if !updated.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt changed: %v", updated.CreatedAt)
	}
	if !updated.ModifiedAt.Equal(later) {
		t.Errorf("ModifiedAt = %v, want %v", updated.ModifiedAt, later)
	}
}

func TestChildSharesFilesNotTodos(t *testing.T) {
	parent := New()
	if err := parent.SetTodos([]TodoItem{{ID: "1", Content: "plan", Status: TodoPending}}); err != nil {
		t.Fatalf("SetTodos: %v", err)
	}

	child := parent.NewChild()
	if len(child.Todos()) != 0 {
		t.Fatalf("child should start with no todos")
	}
	child.Files.Put("/shared.txt", NewFileRecord("x", time.Now()))
	if err := child.SetTodos([]TodoItem{{ID: "c", Content: "child", Status: TodoInProgress}}); err != nil {
		t.Fatalf("SetTodos: %v", err)
	}

	if _, ok := parent.Files.Get("/shared.txt"); !ok {
		t.Errorf("parent should see file written by child")
	}
	todos := parent.Todos()
	if len(todos) != 1 || todos[0].ID != "1" {
		t.Errorf("parent todos changed: %+v", todos)
	}
}

func TestMergeTodos(t *testing.T) {
	st := New()
	_ = st.SetTodos([]TodoItem{
		{ID: "a", Content: "first", Status: TodoPending},
		{ID: "b", Content: "second", Status: TodoPending},
	})
	err := st.MergeTodos([]TodoItem{
		{ID: "b", Content: "second", Status: TodoCompleted},
		{ID: "c", Content: "third", Status: TodoInProgress},
	})
	if err != nil {
		t.Fatalf("MergeTodos: %v", err)
	}
	todos := st.Todos()
	if len(todos) != 3 {
		t.Fatalf("expected 3 todos, got %d", len(todos))
	}
	if todos[1].Status != TodoCompleted {
		t.Errorf("b status = %s, want completed", todos[1].Status)
	}
	if todos[2].ID != "c" {
		t.Errorf("expected c appended last, got %s", todos[2].ID)
	}
}

func TestTodoValidation(t *testing.T) {
	tests := []struct {
		name  string
		items []TodoItem
	}{
		{"missing id", []TodoItem{{Content: "x", Status: TodoPending}}},
		{"duplicate id", []TodoItem{{ID: "a", Status: TodoPending}, {ID: "a", Status: TodoPending}}},
		{"bad status", []TodoItem{{ID: "a", Status: "done"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := New().SetTodos(tt.items); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}

func TestSnapshotRestore(t *testing.T) {
	st := New()
	st.Files.Put("/a.txt", NewFileRecord("hello", time.Now()))
	_ = st.SetTodos([]TodoItem{{ID: "1", Content: "x", Status: TodoPending}})

	restored := Restore(st.Snapshot())
	rec, ok := restored.Files.Get("/a.txt")
	if !ok || rec.Text() != "hello" {
		t.Fatalf("restored file = %+v (ok=%v)", rec, ok)
	}
	if len(restored.Todos()) != 1 {
		t.Errorf("restored todos = %+v", restored.Todos())
	}
	if restored.Files == st.Files {
		t.Errorf("restored state must not alias the original table")
	}
}
