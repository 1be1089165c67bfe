package engine

import (
	"github.com/ChamsBouzaiene/stepwise/internal/state"
)

// EventType tags an Event.
type EventType string

const (
	EventStepStart  EventType = "step-start"
	EventStepFinish EventType = "step-finish"

	EventTextStart EventType = "text-start"
	EventText      EventType = "text"
	EventTextEnd   EventType = "text-end"

	EventToolCall     EventType = "tool-call"
	EventToolResult   EventType = "tool-result"
	EventTodosChanged EventType = "todos-changed"

	EventFileWriteStart EventType = "file-write-start"
	EventFileWritten    EventType = "file-written"
	EventFileEdited     EventType = "file-edited"
	EventFileRead       EventType = "file-read"
	EventList           EventType = "list"
	EventGlob           EventType = "glob"
	EventSearch         EventType = "search"

	EventExecuteStart  EventType = "execute-start"
	EventExecuteFinish EventType = "execute-finish"
	EventHTTPStart     EventType = "http-start"
	EventHTTPFinish    EventType = "http-finish"

	EventSubagentStart  EventType = "subagent-start"
	EventSubagentStep   EventType = "subagent-step"
	EventSubagentFinish EventType = "subagent-finish"

	EventCheckpointSaved  EventType = "checkpoint-saved"
	EventCheckpointLoaded EventType = "checkpoint-loaded"
	EventCheckpointError  EventType = "checkpoint-error"

	EventSummarized EventType = "summarized"
	EventEvicted    EventType = "evicted"

	EventApprovalRequested EventType = "approval-requested"
	EventApprovalResponse  EventType = "approval-response"

	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Done reasons.
const (
	DoneCompleted   = "completed"
	DoneMaxSteps    = "max_steps"
	DoneInterrupted = "interrupted"
	DoneStopped     = "stopped"
)

// Event is one unit of observable run progress. Type selects which of the
// optional fields are meaningful.
type Event struct {
	Type     EventType `json:"type"`
	ThreadID string    `json:"thread_id,omitempty"`
	Step     int       `json:"step"`

	// text-*
	SegmentID string `json:"segment_id,omitempty"`
	Text      string `json:"text,omitempty"`

	// tool-call, tool-result and tool-specific events
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Result     string         `json:"result,omitempty"`
	IsError    bool           `json:"is_error,omitempty"`

	// filesystem, search, http
	Path       string `json:"path,omitempty"`
	Pattern    string `json:"pattern,omitempty"`
	Count      int    `json:"count,omitempty"`
	URL        string `json:"url,omitempty"`
	Method     string `json:"method,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`

	// execute-*
	Command   string `json:"command,omitempty"`
	ExitCode  *int   `json:"exit_code,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`

	Todos []state.TodoItem `json:"todos,omitempty"`

	// subagent-*
	Subagent string `json:"subagent,omitempty"`

	Approval *ApprovalRequest `json:"approval,omitempty"`
	Decision *Decision        `json:"decision,omitempty"`

	// done
	Reason string          `json:"reason,omitempty"`
	State  *state.Snapshot `json:"state,omitempty"`
	Usage  *Usage          `json:"usage,omitempty"`

	// error, checkpoint-error
	Error string `json:"error,omitempty"`
}

// IsTerminal reports whether ev ends the stream.
func (ev Event) IsTerminal() bool {
	return ev.Type == EventDone || ev.Type == EventError
}
