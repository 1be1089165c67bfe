package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const summarizeSystem = `You compress prior chat history for an agent that will continue the task. Preserve decisions, file paths, function names, errors, open todos and tool outcomes. Omit pleasantries and redundant logs.`

// SummarizeOld asks llm for a summary of window and returns it as one
// synthetic message.
func SummarizeOld(ctx context.Context, llm LLMClient, model string, maxTokens int, window []ChatMessage) (ChatMessage, error) {
	msgs := []ChatMessage{
		{Role: RoleSystem, Content: summarizeSystem},
		{Role: RoleUser, Content: "Summarize the following conversation so it can replace it. Keep every fact the rest of the task depends on.\n\n" + RenderForSummary(window)},
	}
	resp, err := llm.Chat(ctx, model, msgs, nil, ChatOptions{MaxOutputTokens: maxTokens})
	if err != nil {
		return ChatMessage{}, err
	}
	text := strings.TrimSpace(resp.Assistant.Content)
	if text == "" {
		return ChatMessage{}, fmt.Errorf("summary model returned no text")
	}
	return ChatMessage{Role: RoleUser, Content: "<history_summary>\n" + text + "\n</history_summary>"}, nil
}

// RenderForSummary flattens messages into a transcript for the summary prompt.
func RenderForSummary(ms []ChatMessage) string {
	var b strings.Builder
	for _, m := range ms {
		b.WriteString("[" + string(m.Role))
		if m.Name != "" {
			b.WriteString(" " + m.Name)
		}
		b.WriteString("] ")
		b.WriteString(m.Content)
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Args)
			fmt.Fprintf(&b, "\n  -> %s(%s)", tc.Name, args)
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

// summarize replaces all but the newest KeepMessages messages of msgs with a
// summary once the estimate passes the trigger. Any failure leaves msgs
// untouched.
func (r *run) summarize(ctx context.Context, msgs []ChatMessage) []ChatMessage {
	cfg := r.a.cfg.Context
	if cfg.SummarizeTriggerTokens <= 0 {
		return msgs
	}
	keep := cfg.KeepMessages
	if keep < 0 {
		keep = 0
	}
	if len(msgs) < keep+1 {
		return msgs
	}
	before := EstimateHistoryTokens(msgs)
	if before <= cfg.SummarizeTriggerTokens {
		return msgs
	}

	split := len(msgs) - keep
	model := cfg.SummaryModel
	if model == "" {
		model = r.a.cfg.Model
	}
	summary, err := SummarizeOld(ctx, r.a.summaryLLM(), model, cfg.SummaryMaxTokens, msgs[:split])
	if err != nil {
		r.a.logger.Printf("%s", &EngineContextError{Err: err, ThreadID: r.threadID, Step: r.stepN, Operation: "summarization"})
		return msgs
	}

	out := make([]ChatMessage, 0, keep+1)
	out = append(out, summary)
	out = append(out, detachOrphans(msgs[split:])...)
	r.emit(Event{Type: EventSummarized, Count: split, Text: fmt.Sprintf("~%d -> ~%d tokens", before, EstimateHistoryTokens(out))})
	return out
}

// detachOrphans rewrites leading tool results whose call was summarized
// away as user messages, since providers reject results without a call.
func detachOrphans(tail []ChatMessage) []ChatMessage {
	out := append([]ChatMessage(nil), tail...)
	for i := range out {
		if out[i].Role != RoleTool {
			break
		}
		out[i] = ChatMessage{
			Role:    RoleUser,
			Content: fmt.Sprintf("[result of %s call %s]\n%s", out[i].Name, out[i].ToolCallID, out[i].Content),
		}
	}
	return out
}
