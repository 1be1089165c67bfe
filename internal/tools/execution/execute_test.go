package execution

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/stepwise/internal/backend"
	"github.com/ChamsBouzaiene/stepwise/internal/engine"
	"github.com/ChamsBouzaiene/stepwise/internal/state"
)

// execBackend adds a scripted Execute to the in-memory backend.
type execBackend struct {
	*backend.StateBackend
	resp backend.ExecuteResponse
	err  error
	got  string
}

func (b *execBackend) Execute(ctx context.Context, command string) (backend.ExecuteResponse, error) {
	b.got = command
	return b.resp, b.err
}

func intPtr(i int) *int { return &i }

func TestExecute(t *testing.T) {
	tests := []struct {
		name    string
		resp    backend.ExecuteResponse
		err     error
		want    []string
		wantErr string
	}{
		{
			name: "success",
			resp: backend.ExecuteResponse{Output: "ok", ExitCode: intPtr(0)},
			want: []string{"ok\n", "[exit code 0]"},
		},
		{
			name: "failure exit code is a result",
			resp: backend.ExecuteResponse{Output: "boom\n", ExitCode: intPtr(2)},
			want: []string{"boom", "[exit code 2]"},
		},
		{
			name: "truncated without exit",
			resp: backend.ExecuteResponse{Output: "partial", Truncated: true},
			want: []string{"[output truncated]", "[command did not complete]"},
		},
		{
			name:    "runner error",
			err:     errors.New("docker unavailable"),
			wantErr: "docker unavailable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := state.New()
			be := &execBackend{StateBackend: backend.NewStateBackend(st), resp: tt.resp, err: tt.err}
			var events []engine.Event
			rt := engine.NewRuntime(st, be, func(ev engine.Event) { events = append(events, ev) })
			ctx := engine.WithRuntime(context.Background(), rt)

			out, err := NewExecuteTool().Fn(ctx, map[string]any{"command": "make test"})
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %v, want %q", err, tt.wantErr)
				}
			} else {
				if err != nil {
					t.Fatalf("execute: %v", err)
				}
				for _, w := range tt.want {
					if !strings.Contains(out, w) {
						t.Errorf("output %q missing %q", out, w)
					}
				}
			}
			if be.got != "make test" {
				t.Errorf("command = %q", be.got)
			}
			if len(events) != 2 || events[0].Type != engine.EventExecuteStart || events[1].Type != engine.EventExecuteFinish {
				t.Fatalf("events = %+v", events)
			}
			if events[1].Truncated != tt.resp.Truncated {
				t.Errorf("finish truncated = %v", events[1].Truncated)
			}
		})
	}
}

func TestExecuteWithoutCapability(t *testing.T) {
	st := state.New()
	rt := engine.NewRuntime(st, backend.NewStateBackend(st), nil)
	ctx := engine.WithRuntime(context.Background(), rt)
	_, err := NewExecuteTool().Fn(ctx, map[string]any{"command": "ls"})
	if err == nil || !strings.Contains(err.Error(), "cannot execute") {
		t.Errorf("error = %v", err)
	}
}

func TestParseTimeoutArg(t *testing.T) {
	tests := []struct {
		in   any
		want time.Duration
	}{
		{nil, defaultTimeout},
		{float64(1), minTimeout},
		{float64(30), 30 * time.Second},
		{float64(100000), maxTimeout},
		{"soon", defaultTimeout},
	}
	for _, tt := range tests {
		if got := parseTimeoutArg(tt.in); got != tt.want {
			t.Errorf("parseTimeoutArg(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
