package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// toolOutcome is the text recorded for one call of a step.
type toolOutcome struct {
	content string
	isErr   bool
}

func errOutcome(format string, args ...any) toolOutcome {
	return toolOutcome{content: "ERROR: " + fmt.Sprintf(format, args...), isErr: true}
}

// requestMessages is the history as sent to the model, with the system
// prompt in front.
func (r *run) requestMessages() []ChatMessage {
	msgs := make([]ChatMessage, 0, len(r.messages)+1)
	if r.a.cfg.SystemPrompt != "" {
		msgs = append(msgs, ChatMessage{Role: RoleSystem, Content: r.a.cfg.SystemPrompt})
	}
	return append(msgs, r.messages...)
}

func (r *run) onRetry(what string) func(int, time.Duration, error) {
	return func(attempt int, delay time.Duration, err error) {
		r.a.logger.Printf("[%s] retrying %s (attempt %d) in %v: %v", r.threadID, what, attempt, delay, err)
	}
}

// callModel runs one model request with retry. Text is published on the
// event stream: incrementally when streaming, as one delta otherwise.
func (r *run) callModel(ctx context.Context) (LLMResponse, error) {
	msgs := r.requestMessages()
	schemas := r.a.tools.Schemas()
	opts := ChatOptions{Temperature: r.a.cfg.Temperature, MaxOutputTokens: r.a.cfg.MaxOutputTokens}
	policy := r.a.cfg.Retry.LLMPolicy

	if r.a.cfg.Streaming {
		return RetryWithPolicy(ctx, policy, func(ctx context.Context) (LLMResponse, error) {
			return r.consumeStream(ctx, msgs, schemas, opts)
		}, ClassifyLLMError, r.onRetry("model stream"))
	}

	resp, err := RetryLLMCall(ctx, policy, r.a.llm, r.a.cfg.Model, msgs, schemas, opts, r.onRetry("model call"))
	if err != nil {
		return LLMResponse{}, err
	}
	if resp.Assistant.Content != "" {
		r.emitText(resp.Assistant.Content)
	}
	return resp, nil
}

// step performs one model turn and, if the model asked for tools, one
// dispatch round. It returns a done reason when the run should end. A step
// that fails still emits step-finish, ahead of the terminal error.
func (r *run) step(ctx context.Context) (_ string, err error) {
	r.stepN++
	r.steps++
	r.emit(Event{Type: EventStepStart})
	defer func() {
		if err != nil {
			r.closeText()
			r.emit(Event{Type: EventStepFinish})
		}
	}()

	r.messages = r.summarize(ctx, r.messages)

	resp, err := r.callModel(ctx)
	if err != nil {
		if IsCanceled(err) {
			return "", err
		}
		return "", &EngineContextError{Err: err, ThreadID: r.threadID, Step: r.stepN, Operation: "llm_call"}
	}
	if err := ctx.Err(); err != nil {
		return "", canceled(err)
	}
	r.closeText()
	r.usage.add(resp.Usage)

	calls := make([]ToolCall, len(resp.ToolCalls))
	for i, c := range resp.ToolCalls {
		if c.ID == "" {
			c.ID = "call_" + uuid.NewString()
		}
		calls[i] = c
	}
	assistant := resp.Assistant
	assistant.Role = RoleAssistant
	assistant.ToolCalls = calls
	r.messages = append(r.messages, assistant)
	if assistant.Content != "" {
		r.text = assistant.Content
	}

	if len(calls) == 0 {
		r.emit(Event{Type: EventStepFinish})
		r.save(ctx, nil)
		return DoneCompleted, nil
	}

	pending, err := r.dispatch(ctx, calls, nil, "", "")
	if err != nil {
		return "", err
	}
	r.emit(Event{Type: EventStepFinish})
	r.save(ctx, pending)
	if pending != nil {
		r.pending = pending
		return DoneInterrupted, nil
	}
	if r.a.stopWhen != nil && r.a.stopWhen(r.stepN, assistant) {
		return DoneStopped, nil
	}
	return "", nil
}

// dispatch resolves approvals for calls in call order, runs the approved
// ones concurrently and appends one result per resolved call, again in call
// order. When a call has to wait for an interrupt, dispatch stops there:
// calls before it still run and the interrupt is returned.
//
// preset is the decision for the call with id presetFor, captured before
// this run; approvalID is the id of the request it answers.
func (r *run) dispatch(ctx context.Context, calls []ToolCall, preset *Decision, presetFor, approvalID string) (*PendingInterrupt, error) {
	results := make([]toolOutcome, len(calls))
	args := make([]map[string]any, len(calls))
	var jobs []int
	var pending *PendingInterrupt
	resolved := len(calls)

gating:
	for i, call := range calls {
		if err := ctx.Err(); err != nil {
			return nil, canceled(err)
		}
		r.emit(Event{Type: EventToolCall, ToolCallID: call.ID, ToolName: call.Name, Args: call.Args})

		if call.Error != "" {
			results[i] = errOutcome("tool call %s was malformed: %s", call.Name, call.Error)
			continue
		}
		tool, ok := r.a.tools[call.Name]
		if !ok {
			results[i] = errOutcome("tool not found: %s (available tools: %v)", call.Name, r.a.tools.Names())
			continue
		}

		var p *Decision
		aid := ""
		if call.ID == presetFor {
			p, aid = preset, approvalID
		}
		g, err := r.gate(ctx, call, p, aid)
		if err != nil {
			return nil, err
		}
		switch g.outcome {
		case gateDenied:
			results[i] = toolOutcome{content: g.message}
		case gateInterrupt:
			pending = &PendingInterrupt{
				ApprovalID: g.request.ApprovalID,
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Args:       call.Args,
				Step:       r.stepN,
			}
			resolved = i
			break gating
		case gateExecute:
			if err := tool.ValidateArgs(g.args); err != nil {
				results[i] = errOutcome("validation failed for tool %s: %v", call.Name, err)
				continue
			}
			args[i] = g.args
			jobs = append(jobs, i)
		}
	}

	var eg errgroup.Group
	eg.SetLimit(r.a.parallelism())
	for _, i := range jobs {
		eg.Go(func() error {
			results[i] = r.runTool(ctx, calls[i], args[i])
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, canceled(err)
	}

	for i := 0; i < resolved; i++ {
		content := r.evict(ctx, calls[i], results[i].content)
		r.messages = append(r.messages, ToolMessage(calls[i], content))
		r.emit(Event{
			Type:       EventToolResult,
			ToolCallID: calls[i].ID,
			ToolName:   calls[i].Name,
			Result:     content,
			IsError:    results[i].isErr,
		})
	}
	return pending, nil
}

// runTool executes one approved call. Tool failures and panics become
// error text for the model; they never end the run.
func (r *run) runTool(ctx context.Context, call ToolCall, args map[string]any) (out toolOutcome) {
	defer func() {
		if p := recover(); p != nil {
			r.a.logger.Printf("[%s] tool %s panicked: %v", r.threadID, call.Name, p)
			out = errOutcome("tool %s panicked: %v", call.Name, p)
		}
	}()
	if err := ctx.Err(); err != nil {
		return errOutcome("tool %s was not run: %v", call.Name, canceled(err))
	}

	rt := &Runtime{
		State:      r.st,
		Backend:    r.be,
		ThreadID:   r.threadID,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Step:       r.stepN,
		emit:       r.emit,
	}
	tool := r.a.tools[call.Name]
	res, err := RetryToolCall(WithRuntime(ctx, rt), r.a.cfg.Retry.ToolPolicy, tool, args, r.onRetry("tool "+call.Name))
	if err != nil {
		return errOutcome("execution failed for tool %s: %v", call.Name, err)
	}
	return toolOutcome{content: res}
}

// save writes a checkpoint of the run. Nothing is saved once ctx is done,
// so a cancelled step never reaches storage.
func (r *run) save(ctx context.Context, pending *PendingInterrupt) {
	if r.a.checkpointer == nil || ctx.Err() != nil {
		return
	}
	if r.noSave != nil {
		r.emit(Event{Type: EventCheckpointError, Error: fmt.Sprintf("checkpoint not saved: thread could not be loaded: %v", r.noSave)})
		return
	}
	now := time.Now().UTC()
	if r.createdAt.IsZero() {
		r.createdAt = now
	}
	cp := &Checkpoint{
		ThreadID:  r.threadID,
		Step:      r.stepN,
		Messages:  append([]ChatMessage(nil), r.messages...),
		State:     r.st.Snapshot(),
		Pending:   pending,
		CreatedAt: r.createdAt,
		UpdatedAt: now,
	}
	if err := r.a.checkpointer.Save(ctx, cp); err != nil {
		r.a.logger.Printf("%s", &EngineContextError{Err: err, ThreadID: r.threadID, Step: r.stepN, Operation: "checkpoint_save"})
		r.emit(Event{Type: EventCheckpointError, Error: err.Error()})
		return
	}
	r.emit(Event{Type: EventCheckpointSaved, Count: len(cp.Messages)})
}
