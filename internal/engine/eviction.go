package engine

import (
	"context"
	"fmt"
)

// EvictionPath is where the result of call is stored when evicted.
func EvictionPath(call ToolCall) string {
	return fmt.Sprintf("%s/%s_%s", EvictionDir, sanitizeID(call.Name), sanitizeID(call.ID))
}

// evict stores an oversized result in the backend and returns a pointer to
// it. If the write fails the original content is returned.
func (r *run) evict(ctx context.Context, call ToolCall, content string) string {
	limit := r.a.cfg.Context.EvictionTokenLimit
	if limit <= 0 || r.a.tools[call.Name].KeepResult {
		return content
	}
	tokens := EstimateTokens(content)
	if tokens <= limit {
		return content
	}

	p := EvictionPath(call)
	if res := r.be.Write(ctx, p, content); !res.OK() {
		r.a.logger.Printf("%s", &EngineContextError{
			Err:       fmt.Errorf("evict result to %s: %s", p, res.Error),
			ThreadID:  r.threadID,
			Step:      r.stepN,
			ToolName:  call.Name,
			Operation: "eviction",
		})
		return content
	}
	r.emit(Event{Type: EventEvicted, ToolCallID: call.ID, ToolName: call.Name, Path: p, Count: tokens})
	return fmt.Sprintf("Tool result too large (~%d tokens); the full output was saved to %s. "+
		"Read it with read_file using offset and limit to page through it; long lines continue on rows numbered N.1, N.2.", tokens, p)
}
