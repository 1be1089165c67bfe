package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/stepwise/internal/backend"
	"github.com/ChamsBouzaiene/stepwise/internal/state"
)

// StopFunc ends a run after a step when it returns true. It sees the step
// number and the assistant message of that step.
type StopFunc func(step int, last ChatMessage) bool

// Agent runs conversations against one model and tool set. An Agent is
// safe for concurrent use on different threads.
type Agent struct {
	llm          LLMClient
	summarizer   LLMClient
	tools        ToolRegistry
	cfg          AgentConfig
	newBackend   func(st *state.AgentState) backend.Backend
	checkpointer Checkpointer
	approve      ApprovalFunc
	hooks        Hooks
	logger       *log.Logger
	stopWhen     StopFunc
}

// RunInput starts or continues a thread.
type RunInput struct {
	// ThreadID selects the checkpoint to continue. Empty starts a new thread.
	ThreadID string
	Prompt   string
	// Messages seed a thread that has no checkpoint.
	Messages []ChatMessage
	// State seeds a thread that has no checkpoint. Subagents pass a child
	// state sharing the parent's files.
	State *state.AgentState
	// Backend overrides the agent's backend factory for this run.
	Backend backend.Backend
}

// Result is the outcome of a finished run.
type Result struct {
	ThreadID string
	Text     string
	Reason   string
	Steps    int
	Messages []ChatMessage
	State    *state.AgentState
	Usage    Usage
	Pending  *PendingInterrupt
}

// Config returns a copy of the agent's configuration.
func (a *Agent) Config() AgentConfig { return a.cfg }

// Tools returns the agent's tool registry.
func (a *Agent) Tools() ToolRegistry { return a.tools }

// LLM returns the agent's model client.
func (a *Agent) LLM() LLMClient { return a.llm }

// Checkpointer returns the configured checkpointer, or nil.
func (a *Agent) Checkpointer() Checkpointer { return a.checkpointer }

func (a *Agent) summaryLLM() LLMClient {
	if a.summarizer != nil {
		return a.summarizer
	}
	return a.llm
}

func (a *Agent) parallelism() int {
	if a.cfg.ParallelTools <= 0 {
		return 1
	}
	return a.cfg.ParallelTools
}

func (a *Agent) newRun(ctx context.Context, threadID string, out chan<- Event) *run {
	if threadID == "" {
		threadID = uuid.NewString()
	}
	return &run{a: a, hookCtx: ctx, threadID: threadID, st: state.New(), out: out}
}

func (a *Agent) backendFor(r *run, override backend.Backend) backend.Backend {
	if override != nil {
		return override
	}
	if a.newBackend != nil {
		return a.newBackend(r.st)
	}
	return backend.NewStateBackend(r.st)
}

// launch runs body on its own goroutine and closes the returned channel
// after the terminal event. A panic in body ends the run with an error.
func (a *Agent) launch(ctx context.Context, threadID string, body func(*run) (string, error)) (*run, <-chan Event) {
	out := make(chan Event, 64)
	r := a.newRun(ctx, threadID, out)
	go func() {
		defer close(out)
		r.finish(r.guard(body))
	}()
	return r, out
}

func (r *run) guard(body func(*run) (string, error)) (reason string, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.a.logger.Printf("[%s] run panicked at step %d: %v", r.threadID, r.stepN, p)
			reason, err = "", fmt.Errorf("run panicked: %v", p)
		}
	}()
	return body(r)
}

// Stream starts a run and returns its events. The channel is closed after
// exactly one done or error event. Callers must drain it; cancel ctx to
// stop the run early.
func (a *Agent) Stream(ctx context.Context, in RunInput) <-chan Event {
	_, out := a.launch(ctx, in.ThreadID, func(r *run) (string, error) { return a.start(ctx, r, in) })
	return out
}

// Run is Stream for callers that only want the outcome.
func (a *Agent) Run(ctx context.Context, in RunInput) (*Result, error) {
	r, out := a.launch(ctx, in.ThreadID, func(r *run) (string, error) { return a.start(ctx, r, in) })
	for range out {
	}
	return r.result(), r.err
}

func (a *Agent) start(ctx context.Context, r *run, in RunInput) (string, error) {
	cp, err := r.load(ctx)
	if err != nil {
		// The stored thread is unreadable, not missing: keep it rather than
		// overwrite it with this fresh history.
		r.noSave = err
	}
	if cp == nil {
		if in.State != nil {
			r.st = in.State
		}
		r.messages = append(r.messages, in.Messages...)
	}
	r.be = a.backendFor(r, in.Backend)

	// A new prompt settles whatever the thread left open, including a
	// parked approval.
	if cp != nil {
		var n int
		r.messages, n = PatchDanglingToolCalls(r.messages)
		if n > 0 {
			a.logger.Printf("[%s] patched %d dangling tool calls", r.threadID, n)
		}
	}
	if in.Prompt != "" {
		r.messages = append(r.messages, ChatMessage{Role: RoleUser, Content: in.Prompt})
	}
	if len(r.messages) == 0 {
		return "", errNothingToRun(r.threadID)
	}
	return r.loop(ctx)
}

// Resume continues a checkpointed thread. If the thread is parked on an
// approval, decision settles it; a nil decision asks the approval handler
// again. Without a parked approval, unresolved calls of earlier turns are
// patched and the loop continues.
func (a *Agent) Resume(ctx context.Context, threadID string, decision *Decision) <-chan Event {
	_, out := a.launch(ctx, threadID, func(r *run) (string, error) { return a.resume(ctx, r, decision) })
	return out
}

// ResumeRun is Resume for callers that only want the outcome.
func (a *Agent) ResumeRun(ctx context.Context, threadID string, decision *Decision) (*Result, error) {
	r, out := a.launch(ctx, threadID, func(r *run) (string, error) { return a.resume(ctx, r, decision) })
	for range out {
	}
	return r.result(), r.err
}

func (a *Agent) resume(ctx context.Context, r *run, decision *Decision) (string, error) {
	if a.checkpointer == nil {
		return "", errors.New("resume requires a checkpointer")
	}
	cp, err := r.load(ctx)
	if err != nil {
		return "", err
	}
	if cp == nil {
		return "", fmt.Errorf("thread %s: %w", r.threadID, ErrCheckpointNotFound)
	}
	r.be = a.backendFor(r, nil)

	if cp.Pending == nil {
		var n int
		r.messages, n = PatchDanglingToolCalls(r.messages)
		if n > 0 {
			a.logger.Printf("[%s] patched %d dangling tool calls", r.threadID, n)
		}
		return r.loop(ctx)
	}

	var n int
	r.messages, n = patchDangling(r.messages, true)
	if n > 0 {
		a.logger.Printf("[%s] patched %d dangling tool calls", r.threadID, n)
	}
	reason, err := r.resumePending(ctx, cp.Pending, decision)
	if err != nil || reason != "" {
		return reason, err
	}
	return r.loop(ctx)
}
