package engine

import (
	"context"
	"strings"
)

// consumeStream reads one streamed response, publishing text as it
// arrives. An error after text was published is not retryable: the
// consumer has already seen part of this turn.
func (r *run) consumeStream(ctx context.Context, msgs []ChatMessage, schemas []ToolSchema, opts ChatOptions) (LLMResponse, error) {
	deltaCh, errCh := r.a.llm.Stream(ctx, r.a.cfg.Model, msgs, schemas, opts)

	var text strings.Builder
	var resp LLMResponse
	emitted := false

	fail := func(err error) (LLMResponse, error) {
		if emitted {
			return LLMResponse{}, &EngineError{Err: err, Class: RetryClassNonRetryable}
		}
		return LLMResponse{}, err
	}

	for deltaCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return LLMResponse{}, canceled(ctx.Err())
		case ev, ok := <-deltaCh:
			if !ok {
				deltaCh = nil
				continue
			}
			switch ev.Type {
			case "text_delta":
				if ev.Text == "" {
					continue
				}
				text.WriteString(ev.Text)
				r.emitText(ev.Text)
				emitted = true
			case "tool_call":
				resp.ToolCalls = append(resp.ToolCalls, ev.ToolCall)
			case "usage":
				resp.Usage = ev.Usage
			case "finish":
				resp.FinishReason = ev.Finish
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return fail(err)
			}
		}
	}

	resp.Assistant = ChatMessage{Role: RoleAssistant, Content: text.String()}
	return resp, nil
}
