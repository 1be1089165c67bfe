package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// ToolFunc executes a tool call. Tools reach the run's state and backend
// through RuntimeFrom(ctx).
type ToolFunc func(ctx context.Context, args map[string]any) (string, error)

type Tool struct {
	Name        string
	Description string
	SchemaJSON  string
	Fn          ToolFunc
	// Retryable marks idempotent tools whose transient failures may be retried.
	Retryable bool
	// KeepResult exempts the tool's results from eviction. File tools set it,
	// since their output already pages through the backend.
	KeepResult bool
}

// ValidateArgs validates the provided arguments against the tool's JSON schema.
func (t Tool) ValidateArgs(args map[string]any) error {
	if t.SchemaJSON == "" {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(t.SchemaJSON),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return &ToolValidationError{ToolName: t.Name, Errors: msgs}
}

type ToolRegistry map[string]Tool

// Register adds t, replacing any tool with the same name.
func (r ToolRegistry) Register(t Tool) {
	r[t.Name] = t
}

// Names returns the registered tool names in lexical order.
func (r ToolRegistry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns provider schemas sorted by name so requests are stable.
func (r ToolRegistry) Schemas() []ToolSchema {
	s := make([]ToolSchema, 0, len(r))
	for _, name := range r.Names() {
		t := r[name]
		s = append(s, ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			JSONSchema:  t.SchemaJSON,
		})
	}
	return s
}

// Subset returns a registry holding only the named tools. Unknown names are
// reported as an error.
func (r ToolRegistry) Subset(names ...string) (ToolRegistry, error) {
	out := make(ToolRegistry, len(names))
	for _, name := range names {
		t, ok := r[name]
		if !ok {
			return nil, fmt.Errorf("unknown tool %q (available: %v)", name, r.Names())
		}
		out[name] = t
	}
	return out, nil
}

// Without returns a copy of r minus the named tools.
func (r ToolRegistry) Without(names ...string) ToolRegistry {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	out := make(ToolRegistry, len(r))
	for name, t := range r {
		if !drop[name] {
			out[name] = t
		}
	}
	return out
}
