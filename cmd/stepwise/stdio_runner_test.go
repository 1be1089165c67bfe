package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/stepwise/internal/checkpoint"
	"github.com/ChamsBouzaiene/stepwise/internal/engine"
	"github.com/ChamsBouzaiene/stepwise/internal/protocol"
	"github.com/ChamsBouzaiene/stepwise/internal/tools"
)

type scriptedLLM struct {
	mu        sync.Mutex
	responses []engine.LLMResponse
}

func (s *scriptedLLM) Chat(ctx context.Context, model string, msgs []engine.ChatMessage, schemas []engine.ToolSchema, opts engine.ChatOptions) (engine.LLMResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.responses) == 0 {
		return engine.LLMResponse{Assistant: engine.ChatMessage{Role: engine.RoleAssistant, Content: "done"}}, nil
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

func writeCall() *scriptedLLM {
	return &scriptedLLM{responses: []engine.LLMResponse{{
		Assistant: engine.ChatMessage{Role: engine.RoleAssistant},
		ToolCalls: []engine.ToolCall{{ID: "c1", Name: "write_file", Args: map[string]any{"file_path": "/a.txt", "content": "x"}}},
	}}}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) messages(t *testing.T) []protocol.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []protocol.Message
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m protocol.Message
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad output line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

// waitFor returns the n-th (1-based) message of type typ.
func waitFor(t *testing.T, out *syncBuffer, typ engine.EventType, n int) protocol.Message {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		seen := 0
		for _, m := range out.messages(t) {
			if m.Type == typ {
				if seen++; seen == n {
					return m
				}
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %s message #%d in output:\n%s", typ, n, out.buf.String())
	return protocol.Message{}
}

type harness struct {
	out  *syncBuffer
	in   *io.PipeWriter
	done chan error
}

func startServer(t *testing.T, interruptMode bool) *harness {
	t.Helper()
	out := &syncBuffer{}
	srv := newStdIOServer(protocol.NewEncoder(out))
	cp := checkpoint.NewMemorySaver()

	b := engine.NewAgentBuilder().
		WithLLM(writeCall()).
		WithToolRegistry(tools.NewToolRegistry(tools.DefaultToolSet())).
		WithInterruptOn("write_file", engine.RequireApproval()).
		WithCheckpointer(cp).
		WithLogger(log.New(io.Discard, "", 0))
	if interruptMode {
		b.WithInterruptMode(true)
	} else {
		b.WithApproval(srv.approve)
	}
	agent, err := b.Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	srv.env = &runtimeEnv{Agent: agent, Checkpointer: cp}

	inR, inW := io.Pipe()
	h := &harness{out: out, in: inW, done: make(chan error, 1)}
	go func() { h.done <- srv.serve(context.Background(), protocol.NewDecoder(inR)) }()
	return h
}

func (h *harness) send(t *testing.T, format string, args ...any) {
	t.Helper()
	if _, err := fmt.Fprintf(h.in, format+"\n", args...); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) close(t *testing.T) {
	t.Helper()
	h.in.Close()
	select {
	case err := <-h.done:
		if err != nil {
			t.Errorf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after EOF")
	}
}

func TestStdIOLiveApproval(t *testing.T) {
	h := startServer(t, false)
	h.send(t, `{"type":"start_session","session_id":"s1"}`)
	if m := waitFor(t, h.out, protocol.EventSessionStarted, 1); m.SessionID != "s1" || m.Reason != "" {
		t.Errorf("session started = %+v", m)
	}
	h.send(t, `{"type":"user_message","session_id":"s1","message":"write it"}`)

	req := waitFor(t, h.out, engine.EventApprovalRequested, 1)
	h.send(t, `{"type":"approval_response","session_id":"s1","approval_id":%q,"decision":"approve"}`, req.Approval.ApprovalID)

	done := waitFor(t, h.out, engine.EventDone, 1)
	if done.Reason != engine.DoneCompleted || done.SessionID != "s1" {
		t.Errorf("done = %+v", done)
	}
	result := waitFor(t, h.out, engine.EventToolResult, 1)
	if result.Result != "Updated file /a.txt" {
		t.Errorf("tool result = %q", result.Result)
	}
	h.close(t)
}

func TestStdIOParkedApprovalResumes(t *testing.T) {
	h := startServer(t, true)
	h.send(t, `{"type":"start_session","session_id":"s2"}`)
	h.send(t, `{"type":"user_message","session_id":"s2","message":"write it"}`)

	req := waitFor(t, h.out, engine.EventApprovalRequested, 1)
	if parked := waitFor(t, h.out, engine.EventDone, 1); parked.Reason != engine.DoneInterrupted {
		t.Fatalf("first run reason = %q, want interrupted", parked.Reason)
	}

	h.send(t, `{"type":"approval_response","session_id":"s2","approval_id":%q,"decision":"deny","message":"not now"}`, req.Approval.ApprovalID)
	resumed := waitFor(t, h.out, engine.EventDone, 2)
	if resumed.Reason != engine.DoneCompleted {
		t.Errorf("resumed reason = %q", resumed.Reason)
	}
	result := waitFor(t, h.out, engine.EventToolResult, 1)
	if !strings.Contains(result.Result, "denied") || !strings.Contains(result.Result, "not now") {
		t.Errorf("tool result = %q", result.Result)
	}
	h.close(t)
}

func TestStdIOProtocolErrors(t *testing.T) {
	h := startServer(t, false)
	h.send(t, `{"type":"user_message","session_id":"ghost","message":"hi"}`)
	h.send(t, `not json`)
	h.send(t, `{"type":"approval_response","session_id":"ghost","approval_id":"a","decision":"approve"}`)

	first := waitFor(t, h.out, protocol.EventProtocolError, 1)
	if !strings.Contains(first.Error, "session not found") {
		t.Errorf("first error = %q", first.Error)
	}
	if second := waitFor(t, h.out, protocol.EventProtocolError, 2); !strings.Contains(second.Error, "decode command") {
		t.Errorf("second error = %q", second.Error)
	}
	waitFor(t, h.out, protocol.EventProtocolError, 3)
	h.close(t)
}
