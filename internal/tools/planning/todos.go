// Package planning provides the todo list tools backed by the run state.
package planning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"
	"github.com/ChamsBouzaiene/stepwise/internal/state"
)

func parseTodos(raw any) ([]state.TodoItem, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("todos must be an array")
	}
	items := make([]state.TodoItem, 0, len(list))
	for i, v := range list {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("todo %d is not an object", i+1)
		}
		id, _ := m["id"].(string)
		content, _ := m["content"].(string)
		status, _ := m["status"].(string)
		if status == "" {
			status = string(state.TodoPending)
		}
		items = append(items, state.TodoItem{ID: id, Content: content, Status: state.TodoStatus(status)})
	}
	return items, nil
}

func formatTodos(items []state.TodoItem) string {
	if len(items) == 0 {
		return "The todo list is empty."
	}
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s [%s] %s", it.ID, it.Status, it.Content)
	}
	return b.String()
}

func writeTodosImpl(rt *engine.Runtime, items []state.TodoItem, merge bool) (string, error) {
	var err error
	if merge {
		err = rt.State.MergeTodos(items)
	} else {
		err = rt.State.SetTodos(items)
	}
	if err != nil {
		return "", err
	}
	todos := rt.State.Todos()
	rt.Emit(engine.Event{Type: engine.EventTodosChanged, Todos: todos, Count: len(todos)})
	return "Updated todo list:\n" + formatTodos(todos), nil
}

// NewWriteTodosTool replaces or merges the run's todo list.
func NewWriteTodosTool() engine.Tool {
	return engine.Tool{
		Name: "write_todos",
		Description: `Creates and updates the task list for the current work.

WHEN TO USE:
- Tasks with 3 or more distinct steps
- When the user gives several things to do

Keep exactly one task in_progress while working and mark tasks completed as soon as they are done. With merge=true, items whose id already exists are updated and new ids are appended; otherwise the list is replaced.`,
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"todos": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"id": {"type": "string", "minLength": 1},
							"content": {"type": "string"},
							"status": {"type": "string", "enum": ["pending", "in_progress", "completed", "cancelled"]}
						},
						"required": ["id", "content"]
					}
				},
				"merge": {"type": "boolean", "description": "Merge into the existing list instead of replacing it"}
			},
			"required": ["todos"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			rt, ok := engine.RuntimeFrom(ctx)
			if !ok || rt.State == nil {
				return "", engine.ErrNoRuntime
			}
			items, err := parseTodos(args["todos"])
			if err != nil {
				return "", err
			}
			merge, err := engine.ArgBool(args, "merge", false)
			if err != nil {
				return "", err
			}
			return writeTodosImpl(rt, items, merge)
		},
	}
}

// NewReadTodosTool returns the current todo list as JSON.
func NewReadTodosTool() engine.Tool {
	return engine.Tool{
		Name:        "read_todos",
		Description: "Returns the current task list with ids and statuses.",
		SchemaJSON:  `{"type": "object", "properties": {}}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			rt, ok := engine.RuntimeFrom(ctx)
			if !ok || rt.State == nil {
				return "", engine.ErrNoRuntime
			}
			todos := rt.State.Todos()
			if todos == nil {
				todos = []state.TodoItem{}
			}
			out, err := json.Marshal(map[string]any{"todos": todos})
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
		Retryable: true,
	}
}
