package subagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

// forwardSteps reports each nested tool call to the parent as a
// subagent-step event. Approval events are passed through tagged with the
// subagent, so a host answering approvals sees the nested requests.
func forwardSteps(parent *engine.Runtime, name string) engine.Hook {
	return engine.HookFunc(func(_ context.Context, ev engine.Event) {
		switch ev.Type {
		case engine.EventToolCall:
			parent.Emit(engine.Event{
				Type:     engine.EventSubagentStep,
				Subagent: name,
				Text:     ev.ToolName,
				Args:     ev.Args,
			})
		case engine.EventApprovalRequested, engine.EventApprovalResponse:
			parent.Emit(engine.Event{
				Type:       ev.Type,
				Subagent:   name,
				ToolCallID: ev.ToolCallID,
				ToolName:   ev.ToolName,
				Approval:   ev.Approval,
				Decision:   ev.Decision,
			})
		}
	})
}

// Run executes one delegated task and returns the subagent's final text.
// Failures come back as errors for the caller to report as a tool result.
func (d *Dispatcher) Run(ctx context.Context, rt *engine.Runtime, name, task string) (string, error) {
	spec, ok := d.specs[name]
	if !ok {
		return "", fmt.Errorf("unknown subagent %q (available: %s)", name, strings.Join(d.Names(), ", "))
	}
	agent, err := d.agentFor(ctx, spec, engine.Hooks{forwardSteps(rt, name)})
	if err != nil {
		return "", fmt.Errorf("build subagent %q: %w", name, err)
	}

	child := rt.State.NewChild()
	rt.Emit(engine.Event{Type: engine.EventSubagentStart, Subagent: name, Text: task})
	d.logger.Printf("[%s] subagent %s started", rt.ThreadID, name)

	res, err := agent.Run(ctx, engine.RunInput{
		ThreadID: rt.ThreadID + "/" + name + "/" + rt.ToolCallID,
		Prompt:   task,
		State:    child,
		Backend:  rt.Backend,
	})
	if err != nil {
		rt.Emit(engine.Event{Type: engine.EventSubagentFinish, Subagent: name, Error: err.Error(), IsError: true})
		d.logger.Printf("[%s] subagent %s failed: %v", rt.ThreadID, name, err)
		return "", fmt.Errorf("subagent %s failed: %w", name, err)
	}

	// Files are shared by reference; a run that swapped its state still
	// hands its files back, last writer wins.
	if res.State != nil && res.State.Files != rt.State.Files {
		rt.State.Files.Merge(res.State.Files.Snapshot())
	}

	text := res.Text
	if res.Reason != engine.DoneCompleted {
		text = fmt.Sprintf("%s\n[subagent stopped: %s after %d steps]", text, res.Reason, res.Steps)
	}
	rt.Emit(engine.Event{Type: engine.EventSubagentFinish, Subagent: name, Text: text, Reason: res.Reason})
	d.logger.Printf("[%s] subagent %s finished (%s, %d steps)", rt.ThreadID, name, res.Reason, res.Steps)
	return text, nil
}

// Tool returns the task tool dispatching to d's subagents.
func (d *Dispatcher) Tool() engine.Tool {
	var b strings.Builder
	b.WriteString(`Launches a subagent to carry out a self-contained task in its own context.

The subagent shares your files but not your todo list, and returns a single final report. Give it a complete, detailed task description; it cannot ask follow-up questions. Launch several tasks in one step to work in parallel.

Available subagents:`)
	for _, n := range d.Names() {
		fmt.Fprintf(&b, "\n- %s: %s", n, d.specs[n].Description)
	}

	return engine.Tool{
		Name:        TaskToolName,
		Description: b.String(),
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"description": {"type": "string", "minLength": 1, "description": "Complete description of the task"},
				"subagent_type": {"type": "string", "description": "Subagent to use (default: general-purpose)"}
			},
			"required": ["description"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			rt, err := engine.MustRuntime(ctx)
			if err != nil {
				return "", err
			}
			task, err := engine.ArgString(args, "description")
			if err != nil {
				return "", err
			}
			name, err := engine.ArgString(args, "subagent_type")
			if err != nil {
				return "", err
			}
			if name == "" {
				name = GeneralPurpose
			}
			return d.Run(ctx, rt, name, task)
		},
	}
}
