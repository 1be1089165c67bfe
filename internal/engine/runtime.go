package engine

import (
	"context"
	"errors"

	"github.com/ChamsBouzaiene/stepwise/internal/backend"
	"github.com/ChamsBouzaiene/stepwise/internal/state"
)

// Runtime is what a tool sees of the run executing it.
type Runtime struct {
	State      *state.AgentState
	Backend    backend.Backend
	ThreadID   string
	ToolCallID string
	ToolName   string
	Step       int

	emit func(Event)
}

// Emit publishes ev on the run's event stream, filling in the run
// coordinates the tool left empty.
func (r *Runtime) Emit(ev Event) {
	if r == nil || r.emit == nil {
		return
	}
	if ev.ThreadID == "" {
		ev.ThreadID = r.ThreadID
	}
	if ev.Step == 0 {
		ev.Step = r.Step
	}
	if ev.ToolCallID == "" {
		ev.ToolCallID = r.ToolCallID
	}
	if ev.ToolName == "" {
		ev.ToolName = r.ToolName
	}
	r.emit(ev)
}

type runtimeKey struct{}

// WithRuntime attaches rt to ctx.
func WithRuntime(ctx context.Context, rt *Runtime) context.Context {
	return context.WithValue(ctx, runtimeKey{}, rt)
}

// RuntimeFrom returns the runtime of the tool call executing under ctx.
func RuntimeFrom(ctx context.Context) (*Runtime, bool) {
	rt, ok := ctx.Value(runtimeKey{}).(*Runtime)
	return rt, ok && rt != nil
}

// NewRuntime builds a runtime for code that calls tools outside a run, such
// as tests.
func NewRuntime(st *state.AgentState, be backend.Backend, emit func(Event)) *Runtime {
	return &Runtime{State: st, Backend: be, emit: emit}
}

// ErrNoRuntime is returned by tools invoked outside a run.
var ErrNoRuntime = errors.New("tool runtime not available in context")

// MustRuntime is RuntimeFrom for tools that cannot work without a state and
// a backend.
func MustRuntime(ctx context.Context) (*Runtime, error) {
	rt, ok := RuntimeFrom(ctx)
	if !ok || rt.Backend == nil || rt.State == nil {
		return nil, ErrNoRuntime
	}
	return rt, nil
}
