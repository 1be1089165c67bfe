package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/stepwise/internal/backend"
	"github.com/ChamsBouzaiene/stepwise/internal/state"
)

// run is one invocation of an agent on a thread. It is driven by a single
// goroutine; only emit may be called from tool goroutines.
type run struct {
	a        *Agent
	hookCtx  context.Context
	threadID string
	st       *state.AgentState
	be       backend.Backend
	messages []ChatMessage

	stepN     int // last step number on the thread
	steps     int // steps taken by this invocation
	usage     Usage
	text      string
	createdAt time.Time
	pending   *PendingInterrupt
	reason    string
	err       error
	noSave    error // why checkpoints of this run must not be written

	out     chan<- Event
	mu      sync.Mutex
	segment string
}

func (r *run) emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitLocked(ev)
}

// emitLocked closes an open text segment before any non-text event.
func (r *run) emitLocked(ev Event) {
	if ev.ThreadID == "" {
		ev.ThreadID = r.threadID
	}
	if ev.Step == 0 {
		ev.Step = r.stepN
	}
	if r.segment != "" && ev.Type != EventText {
		r.send(Event{Type: EventTextEnd, ThreadID: r.threadID, Step: r.stepN, SegmentID: r.segment})
		r.segment = ""
	}
	r.send(ev)
}

func (r *run) send(ev Event) {
	r.a.hooks.OnEvent(r.hookCtx, ev)
	r.out <- ev
}

// emitText publishes a text delta, opening a segment if none is open.
func (r *run) emitText(delta string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.segment == "" {
		r.segment = uuid.NewString()
		r.send(Event{Type: EventTextStart, ThreadID: r.threadID, Step: r.stepN, SegmentID: r.segment})
	}
	r.send(Event{Type: EventText, ThreadID: r.threadID, Step: r.stepN, SegmentID: r.segment, Text: delta})
}

func (r *run) closeText() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.segment != "" {
		r.send(Event{Type: EventTextEnd, ThreadID: r.threadID, Step: r.stepN, SegmentID: r.segment})
		r.segment = ""
	}
}

// load restores the thread's checkpoint if there is one. Failures other
// than a missing checkpoint are reported and the run starts fresh.
func (r *run) load(ctx context.Context) (*Checkpoint, error) {
	if r.a.checkpointer == nil {
		return nil, nil
	}
	cp, err := r.a.checkpointer.Load(ctx, r.threadID)
	if errors.Is(err, ErrCheckpointNotFound) {
		return nil, nil
	}
	if err != nil {
		r.a.logger.Printf("%s", &EngineContextError{Err: err, ThreadID: r.threadID, Operation: "checkpoint_load"})
		r.emit(Event{Type: EventCheckpointError, Error: err.Error()})
		return nil, err
	}
	r.messages = append([]ChatMessage(nil), cp.Messages...)
	r.st = state.Restore(cp.State)
	r.stepN = cp.Step
	r.createdAt = cp.CreatedAt
	r.emit(Event{Type: EventCheckpointLoaded, Count: len(cp.Messages)})
	return cp, nil
}

// loop takes steps until the model stops asking for tools, the step
// ceiling is reached, an interrupt parks the run or ctx is cancelled.
func (r *run) loop(ctx context.Context) (string, error) {
	for {
		if max := r.a.cfg.MaxSteps; max > 0 && r.steps >= max {
			return DoneMaxSteps, nil
		}
		if err := ctx.Err(); err != nil {
			return "", canceled(err)
		}
		reason, err := r.step(ctx)
		if err != nil || reason != "" {
			return reason, err
		}
	}
}

// resumePending finishes the parked step: the pending call is settled with
// decision (or asked again when nil) and the rest of that turn's calls go
// through the normal gate.
func (r *run) resumePending(ctx context.Context, p *PendingInterrupt, decision *Decision) (string, error) {
	calls := unresolvedCalls(r.messages)
	if len(calls) == 0 {
		return "", nil
	}
	r.emit(Event{Type: EventStepStart})
	pending, err := r.dispatch(ctx, calls, decision, p.ToolCallID, p.ApprovalID)
	if err != nil {
		r.emit(Event{Type: EventStepFinish})
		return "", err
	}
	r.emit(Event{Type: EventStepFinish})
	r.save(ctx, pending)
	if pending != nil {
		r.pending = pending
		return DoneInterrupted, nil
	}
	return "", nil
}

// finish emits the single terminal event.
func (r *run) finish(reason string, err error) {
	r.closeText()
	r.reason, r.err = reason, err
	if err != nil {
		if IsCanceled(err) {
			r.a.logger.Printf("[%s] run cancelled at step %d", r.threadID, r.stepN)
		} else {
			r.a.logger.Printf("[%s] run failed at step %d: %v", r.threadID, r.stepN, err)
		}
		r.emit(Event{Type: EventError, Error: err.Error()})
		return
	}
	snap := r.st.Snapshot()
	usage := r.usage
	ev := Event{Type: EventDone, Reason: reason, Text: r.text, State: &snap, Usage: &usage}
	if reason == DoneInterrupted && r.pending != nil {
		ev.Approval = &ApprovalRequest{
			ApprovalID: r.pending.ApprovalID,
			ToolCallID: r.pending.ToolCallID,
			ToolName:   r.pending.ToolName,
			Args:       r.pending.Args,
		}
	}
	r.emit(ev)
}

// result is read after the event channel is closed.
func (r *run) result() *Result {
	return &Result{
		ThreadID: r.threadID,
		Text:     r.text,
		Reason:   r.reason,
		Steps:    r.stepN,
		Messages: append([]ChatMessage(nil), r.messages...),
		State:    r.st,
		Usage:    r.usage,
		Pending:  r.pending,
	}
}

func errNothingToRun(threadID string) error {
	return fmt.Errorf("thread %s: no prompt and no history to run", threadID)
}
