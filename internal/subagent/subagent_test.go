package subagent

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"
	"github.com/ChamsBouzaiene/stepwise/internal/tools"
)

// scriptedLLM replays responses in order, then answers "done".
type scriptedLLM struct {
	mu          sync.Mutex
	responses   []engine.LLMResponse
	err         error
	lastRequest []engine.ChatMessage
}

func (s *scriptedLLM) Chat(ctx context.Context, model string, msgs []engine.ChatMessage, schemas []engine.ToolSchema, opts engine.ChatOptions) (engine.LLMResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRequest = append([]engine.ChatMessage(nil), msgs...)
	if s.err != nil {
		return engine.LLMResponse{}, s.err
	}
	if len(s.responses) == 0 {
		return text("done"), nil
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r, nil
}

func (s *scriptedLLM) Stream(ctx context.Context, model string, msgs []engine.ChatMessage, schemas []engine.ToolSchema, opts engine.ChatOptions) (<-chan engine.StreamEvent, <-chan error) {
	events := make(chan engine.StreamEvent)
	errs := make(chan error, 1)
	close(events)
	errs <- errors.New("streaming not scripted")
	close(errs)
	return events, errs
}

func text(s string) engine.LLMResponse {
	return engine.LLMResponse{Assistant: engine.ChatMessage{Role: engine.RoleAssistant, Content: s}}
}

func calls(cs ...engine.ToolCall) engine.LLMResponse {
	return engine.LLMResponse{Assistant: engine.ChatMessage{Role: engine.RoleAssistant}, ToolCalls: cs}
}

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func parentAgent(t *testing.T, parentLLM, childLLM engine.LLMClient) *engine.Agent {
	t.Helper()
	reg := tools.NewToolRegistry(tools.DefaultToolSet())
	cfg := engine.DefaultAgentConfig()
	cfg.Retry = engine.RetryConfig{
		LLMPolicy:  engine.RetryPolicy{MaxRetries: 1, InitialDelay: time.Millisecond, Multiplier: 1},
		ToolPolicy: engine.RetryPolicy{MaxRetries: 0, InitialDelay: time.Millisecond, Multiplier: 1},
	}
	d, err := NewDispatcher(cfg, parentLLM, reg, quiet(), Spec{
		Name:        "writer",
		Description: "writes files",
		LLM:         childLLM,
		MaxSteps:    5,
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	reg.Register(d.Tool())

	a, err := engine.NewAgentBuilder().
		WithConfig(cfg).
		WithLLM(parentLLM).
		WithToolRegistry(reg).
		WithLogger(quiet()).
		Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return a
}

func TestSubagentSharesFilesNotTodos(t *testing.T) {
	parentLLM := &scriptedLLM{responses: []engine.LLMResponse{
		calls(engine.ToolCall{ID: "call_task", Name: TaskToolName, Args: map[string]any{
			"description":   "write the shared file",
			"subagent_type": "writer",
		}}),
		text("all done"),
	}}
	childLLM := &scriptedLLM{responses: []engine.LLMResponse{
		calls(
			engine.ToolCall{ID: "c1", Name: "write_file", Args: map[string]any{"file_path": "/shared.txt", "content": "from child"}},
			engine.ToolCall{ID: "c2", Name: "write_todos", Args: map[string]any{"todos": []any{
				map[string]any{"id": "1", "content": "child task", "status": "completed"},
			}}},
		),
		text("wrote /shared.txt"),
	}}

	a := parentAgent(t, parentLLM, childLLM)
	var events []engine.Event
	for ev := range a.Stream(context.Background(), engine.RunInput{Prompt: "delegate"}) {
		events = append(events, ev)
	}

	final := events[len(events)-1]
	if final.Type != engine.EventDone {
		t.Fatalf("final event = %+v", final)
	}
	if _, ok := final.State.Files["/shared.txt"]; !ok {
		t.Error("parent state is missing /shared.txt")
	}
	if len(final.State.Todos) != 0 {
		t.Errorf("child todos leaked into parent: %+v", final.State.Todos)
	}

	var sub []engine.EventType
	var taskResult string
	for _, ev := range events {
		switch ev.Type {
		case engine.EventSubagentStart, engine.EventSubagentStep, engine.EventSubagentFinish:
			sub = append(sub, ev.Type)
			if ev.Subagent != "writer" {
				t.Errorf("subagent name = %q", ev.Subagent)
			}
		case engine.EventToolResult:
			if ev.ToolName == TaskToolName {
				taskResult = ev.Result
			}
		}
	}
	want := []engine.EventType{engine.EventSubagentStart, engine.EventSubagentStep, engine.EventSubagentStep, engine.EventSubagentFinish}
	if len(sub) != len(want) {
		t.Fatalf("subagent events = %v, want %v", sub, want)
	}
	for i := range want {
		if sub[i] != want[i] {
			t.Errorf("subagent event %d = %s, want %s", i, sub[i], want[i])
		}
	}
	if taskResult != "wrote /shared.txt" {
		t.Errorf("task result = %q", taskResult)
	}
}

func TestSubagentFailureBecomesToolResult(t *testing.T) {
	parentLLM := &scriptedLLM{responses: []engine.LLMResponse{
		calls(engine.ToolCall{ID: "call_task", Name: TaskToolName, Args: map[string]any{
			"description":   "fail please",
			"subagent_type": "writer",
		}}),
		text("recovered"),
	}}
	childLLM := &scriptedLLM{err: errors.New("invalid api key")}

	res, err := parentAgent(t, parentLLM, childLLM).Run(context.Background(), engine.RunInput{Prompt: "delegate"})
	if err != nil {
		t.Fatalf("parent run failed: %v", err)
	}
	if res.Text != "recovered" {
		t.Errorf("text = %q", res.Text)
	}
	var result string
	for _, m := range res.Messages {
		if m.Role == engine.RoleTool && m.Name == TaskToolName {
			result = m.Content
		}
	}
	if !strings.HasPrefix(result, "ERROR:") || !strings.Contains(result, "subagent writer failed") {
		t.Errorf("task result = %q", result)
	}
}

// guardedParent builds a parent whose "danger" tool requires approval, and
// a general-purpose subagent that inherits it.
func guardedParent(t *testing.T, parentLLM, childLLM engine.LLMClient, approve engine.ApprovalFunc, ran *int) *engine.Agent {
	t.Helper()
	reg := engine.ToolRegistry{}
	reg.Register(engine.Tool{
		Name:       "danger",
		SchemaJSON: `{"type":"object"}`,
		Fn: func(context.Context, map[string]any) (string, error) {
			*ran++
			return "boom", nil
		},
	})
	cfg := engine.DefaultAgentConfig()
	cfg.InterruptOn = map[string]engine.ToolPolicy{"danger": engine.RequireApproval()}
	d, err := NewDispatcher(cfg, childLLM, reg, quiet())
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	if approve != nil {
		d.WithApproval(approve)
	}
	reg.Register(d.Tool())

	b := engine.NewAgentBuilder().WithConfig(cfg).WithLLM(parentLLM).WithToolRegistry(reg).WithLogger(quiet())
	if approve != nil {
		b.WithApproval(approve)
	}
	a, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return a
}

func delegate(task string) engine.LLMResponse {
	return calls(engine.ToolCall{ID: "call_task", Name: TaskToolName, Args: map[string]any{"description": task}})
}

func TestSubagentInheritsApprovalGuards(t *testing.T) {
	tests := []struct {
		name    string
		approve engine.ApprovalFunc
		wantRan int
		want    string
	}{
		{name: "no handler denies", wantRan: 0, want: "was denied and did not run"},
		{
			name: "handler denies",
			approve: func(context.Context, engine.ApprovalRequest) (engine.Decision, error) {
				return engine.Deny("not in a subagent"), nil
			},
			wantRan: 0,
			want:    "not in a subagent",
		},
		{
			name: "handler approves",
			approve: func(context.Context, engine.ApprovalRequest) (engine.Decision, error) {
				return engine.Approve(), nil
			},
			wantRan: 1,
			want:    "boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ran := 0
			parentLLM := &scriptedLLM{responses: []engine.LLMResponse{delegate("run danger"), text("ok")}}
			childLLM := &scriptedLLM{responses: []engine.LLMResponse{
				calls(engine.ToolCall{ID: "c1", Name: "danger"}),
				text("reported"),
			}}
			a := guardedParent(t, parentLLM, childLLM, tt.approve, &ran)

			var requested, answered int
			var final engine.Event
			for ev := range a.Stream(context.Background(), engine.RunInput{Prompt: "delegate"}) {
				switch ev.Type {
				case engine.EventApprovalRequested:
					requested++
					if ev.Subagent != GeneralPurpose || ev.Approval == nil || ev.Approval.ToolName != "danger" {
						t.Errorf("forwarded request = %+v", ev)
					}
				case engine.EventApprovalResponse:
					answered++
				}
				final = ev
			}
			if final.Type != engine.EventDone {
				t.Fatalf("final event = %+v", final)
			}
			if ran != tt.wantRan {
				t.Errorf("guarded tool ran %d times, want %d", ran, tt.wantRan)
			}
			if answered != 1 {
				t.Errorf("%d approval responses forwarded, want 1", answered)
			}
			if tt.approve != nil && requested != 1 {
				t.Errorf("%d approval requests forwarded, want 1", requested)
			}

			// The child's own tool result carries the outcome.
			for _, m := range childLLM.lastRequest {
				if m.Role == engine.RoleTool && m.ToolCallID == "c1" && !strings.Contains(m.Content, tt.want) {
					t.Errorf("child tool result = %q, want %q", m.Content, tt.want)
				}
			}
		})
	}
}

type panickingLLM struct{}

func (panickingLLM) Chat(context.Context, string, []engine.ChatMessage, []engine.ToolSchema, engine.ChatOptions) (engine.LLMResponse, error) {
	panic("provider bug")
}

func (panickingLLM) Stream(context.Context, string, []engine.ChatMessage, []engine.ToolSchema, engine.ChatOptions) (<-chan engine.StreamEvent, <-chan error) {
	panic("provider bug")
}

func TestSubagentPanicBecomesToolResult(t *testing.T) {
	parentLLM := &scriptedLLM{responses: []engine.LLMResponse{
		calls(engine.ToolCall{ID: "call_task", Name: TaskToolName, Args: map[string]any{
			"description":   "crash",
			"subagent_type": "writer",
		}}),
		text("carried on"),
	}}

	res, err := parentAgent(t, parentLLM, panickingLLM{}).Run(context.Background(), engine.RunInput{Prompt: "delegate"})
	if err != nil {
		t.Fatalf("parent run failed: %v", err)
	}
	if res.Reason != engine.DoneCompleted || res.Text != "carried on" {
		t.Errorf("parent result = %q/%q", res.Reason, res.Text)
	}
	var result string
	for _, m := range res.Messages {
		if m.Role == engine.RoleTool && m.Name == TaskToolName {
			result = m.Content
		}
	}
	if !strings.HasPrefix(result, "ERROR:") || !strings.Contains(result, "provider bug") {
		t.Errorf("task result = %q", result)
	}
}

func TestUnknownSubagent(t *testing.T) {
	parentLLM := &scriptedLLM{responses: []engine.LLMResponse{
		calls(engine.ToolCall{ID: "call_task", Name: TaskToolName, Args: map[string]any{
			"description":   "x",
			"subagent_type": "nobody",
		}}),
	}}
	res, err := parentAgent(t, parentLLM, &scriptedLLM{}).Run(context.Background(), engine.RunInput{Prompt: "go"})
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range res.Messages {
		if m.Role == engine.RoleTool && !strings.Contains(m.Content, "available: general-purpose, writer") {
			t.Errorf("tool result = %q", m.Content)
		}
	}
}

func TestNewDispatcher(t *testing.T) {
	reg := tools.NewToolRegistry(tools.ToolSet{Filesystem: true})
	cfg := engine.DefaultAgentConfig()

	tests := []struct {
		name    string
		specs   []Spec
		wantErr string
	}{
		{name: "defaults"},
		{name: "unnamed", specs: []Spec{{}}, wantErr: "without a name"},
		{name: "duplicate", specs: []Spec{{Name: "a"}, {Name: "a"}}, wantErr: "duplicate"},
		{name: "unknown tool", specs: []Spec{{Name: "a", Tools: []string{"execute"}}}, wantErr: "unknown tool"},
		{name: "subset", specs: []Spec{{Name: "reader", Tools: []string{"read_file", "ls"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDispatcher(cfg, &scriptedLLM{}, reg, nil, tt.specs...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if d.Names()[0] != GeneralPurpose {
				t.Errorf("names = %v", d.Names())
			}
		})
	}
}
