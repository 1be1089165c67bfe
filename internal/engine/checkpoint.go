package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ChamsBouzaiene/stepwise/internal/state"
)

// Checkpoint is a durable snapshot of one thread.
type Checkpoint struct {
	ThreadID  string            `json:"thread_id"`
	Step      int               `json:"step"`
	Messages  []ChatMessage     `json:"messages"`
	State     state.Snapshot    `json:"state"`
	Pending   *PendingInterrupt `json:"pending,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Checkpointer persists checkpoints keyed by thread id. Save overwrites the
// previous checkpoint of the same thread. Load returns ErrCheckpointNotFound
// for unknown threads.
type Checkpointer interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, threadID string) (*Checkpoint, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, threadID string) error
	Exists(ctx context.Context, threadID string) (bool, error)
}

// cancelledResult is the synthetic result patched in for a call that never
// completed.
func cancelledResult(call ToolCall) string {
	return fmt.Sprintf("Tool call %s (id %s) was cancelled before it completed; no result is available.", call.Name, call.ID)
}

// PatchDanglingToolCalls returns msgs with a synthetic cancellation result
// inserted after every assistant turn whose tool calls are not all
// answered, and with tool results that answer no call removed. The second
// return value counts inserted results.
func PatchDanglingToolCalls(msgs []ChatMessage) ([]ChatMessage, int) {
	return patchDangling(msgs, false)
}

// patchDangling implements PatchDanglingToolCalls. With keepLastOpen the
// final assistant turn is left as is so a pending interrupt can resolve it.
func patchDangling(msgs []ChatMessage, keepLastOpen bool) ([]ChatMessage, int) {
	lastAssistant := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleAssistant {
			lastAssistant = i
			break
		}
	}

	out := make([]ChatMessage, 0, len(msgs))
	patched := 0
	var open []ToolCall
	answered := map[string]bool{}
	skipPatch := false

	flush := func() {
		if !skipPatch {
			for _, c := range open {
				if !answered[c.ID] {
					out = append(out, ToolMessage(c, cancelledResult(c)))
					patched++
				}
			}
		}
		open = nil
		answered = map[string]bool{}
		skipPatch = false
	}

	for i, m := range msgs {
		switch m.Role {
		case RoleTool:
			if answered[m.ToolCallID] || !containsCall(open, m.ToolCallID) {
				continue
			}
			answered[m.ToolCallID] = true
			out = append(out, m)
		case RoleAssistant:
			flush()
			open = append(open, m.ToolCalls...)
			skipPatch = keepLastOpen && i == lastAssistant
			out = append(out, m)
		default:
			flush()
			out = append(out, m)
		}
	}
	flush()
	return out, patched
}

func containsCall(calls []ToolCall, id string) bool {
	for _, c := range calls {
		if c.ID == id {
			return true
		}
	}
	return false
}

// unresolvedCalls returns the calls of the final assistant turn that have
// no result yet, in call order.
func unresolvedCalls(msgs []ChatMessage) []ToolCall {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != RoleAssistant {
			continue
		}
		answered := map[string]bool{}
		for _, m := range msgs[i+1:] {
			if m.Role == RoleTool {
				answered[m.ToolCallID] = true
			}
		}
		var out []ToolCall
		for _, c := range msgs[i].ToolCalls {
			if !answered[c.ID] {
				out = append(out, c)
			}
		}
		return out
	}
	return nil
}
