// engine/hook_logger.go
package engine

import (
	"context"
	"log"
	"strconv"
)

// LoggerHook writes one log line per event. Text deltas are skipped; the
// closing text-end line carries the segment id instead.
type LoggerHook struct{ L *log.Logger }

func (h LoggerHook) OnEvent(_ context.Context, ev Event) {
	l := h.L
	if l == nil {
		l = log.Default()
	}
	switch ev.Type {
	case EventText, EventTextStart:
	case EventStepStart, EventStepFinish:
		l.Printf("[%s] %s step=%d", ev.ThreadID, ev.Type, ev.Step)
	case EventToolCall:
		l.Printf("[%s] tool → %s id=%s args=%v", ev.ThreadID, ev.ToolName, ev.ToolCallID, ev.Args)
	case EventToolResult:
		l.Printf("[%s] tool %s result: %s", ev.ThreadID, ev.ToolName, preview(ev.Result, 100))
	case EventExecuteFinish:
		code := "none"
		if ev.ExitCode != nil {
			code = strconv.Itoa(*ev.ExitCode)
		}
		l.Printf("[%s] execute exit=%s truncated=%v", ev.ThreadID, code, ev.Truncated)
	case EventApprovalRequested, EventApprovalResponse:
		l.Printf("[%s] %s tool=%s", ev.ThreadID, ev.Type, ev.ToolName)
	case EventCheckpointError, EventError:
		l.Printf("[%s] %s: %s", ev.ThreadID, ev.Type, ev.Error)
	case EventDone:
		tokens := 0
		if ev.Usage != nil {
			tokens = ev.Usage.Total
		}
		l.Printf("[%s] done: reason=%s steps=%d tokens=%d", ev.ThreadID, ev.Reason, ev.Step, tokens)
	default:
		l.Printf("[%s] %s step=%d path=%s count=%d", ev.ThreadID, ev.Type, ev.Step, ev.Path, ev.Count)
	}
}

func preview(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
