package engine

import (
	"context"
	"fmt"
)

// MessageRole represents the role of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ChatMessage is the provider-agnostic message we pass around.
type ChatMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
	// Name is the tool name on tool messages.
	Name string `json:"name,omitempty"`
	// ToolCallID pairs a tool message with the assistant call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// ToolCalls are the calls requested by an assistant message. Providers
	// need them to rebuild the assistant turn.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Validate checks if the ChatMessage is valid.
func (m ChatMessage) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
	default:
		return fmt.Errorf("invalid message role: %s", m.Role)
	}
	if m.Role == RoleTool && m.ToolCallID == "" {
		return fmt.Errorf("tool messages must have a ToolCallID")
	}
	return nil
}

// ToolMessage builds the history entry answering call.
func ToolMessage(call ToolCall, content string) ChatMessage {
	return ChatMessage{Role: RoleTool, Name: call.Name, ToolCallID: call.ID, Content: content}
}

// Usage holds token accounting returned by providers.
type Usage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

func (u *Usage) add(o Usage) {
	u.Prompt += o.Prompt
	u.Completion += o.Completion
	u.Total += o.Total
}

// ToolCall represents a function/tool the assistant requested.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
	// Error is set by the provider when the call arrived malformed (for
	// example a stream that ended mid-arguments).
	Error string `json:"error,omitempty"`
}

// LLMResponse is a normalized result of one chat call.
type LLMResponse struct {
	Assistant    ChatMessage
	ToolCalls    []ToolCall
	Usage        Usage
	FinishReason string // "stop" | "length" | "tool_calls" | "content_filter"
}

// LLMClient is the model capability: given a conversation and a tool
// catalog it returns text or tool calls.
type LLMClient interface {
	Chat(ctx context.Context, model string, messages []ChatMessage, toolSchemas []ToolSchema, opts ChatOptions) (LLMResponse, error)
	// Stream delivers the same response incrementally. The error channel
	// yields at most one value and is closed when the stream ends.
	Stream(ctx context.Context, model string, messages []ChatMessage, toolSchemas []ToolSchema, opts ChatOptions) (<-chan StreamEvent, <-chan error)
}

// ChatOptions keeps knobs forwarded to the SDK.
type ChatOptions struct {
	Temperature     float32
	MaxOutputTokens int
}

// ToolSchema is the JSON schema the provider expects for function calling.
type ToolSchema struct {
	Name        string
	Description string
	JSONSchema  string
}

// StreamEvent is one incremental piece of a streamed response.
type StreamEvent struct {
	Type     string   // "text_delta" | "tool_call" | "usage" | "finish"
	Text     string   // text_delta
	ToolCall ToolCall // tool_call
	Usage    Usage    // usage
	Finish   string   // finish
}
