package providers

import (
	"errors"
	"strings"
	"testing"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

func TestNewFromLookup(t *testing.T) {
	env := func(vals map[string]string) func(string) string {
		return func(k string) string { return vals[k] }
	}
	tests := []struct {
		name      string
		provider  string
		model     string
		env       map[string]string
		wantModel string
		wantErr   string
	}{
		{name: "default provider", env: map[string]string{"OPENAI_API_KEY": "k"}, wantModel: "gpt-4o-mini"},
		{name: "model from env", provider: "anthropic", env: map[string]string{"ANTHROPIC_API_KEY": "k", "ANTHROPIC_MODEL": "claude-x"}, wantModel: "claude-x"},
		{name: "explicit model wins", provider: "deepseek", model: "deepseek-reasoner", env: map[string]string{"DEEPSEEK_API_KEY": "k", "DEEPSEEK_MODEL": "other"}, wantModel: "deepseek-reasoner"},
		{name: "local needs no key", provider: "ollama", env: map[string]string{}, wantModel: "llama3.1"},
		{name: "missing key", provider: "groq", env: map[string]string{}, wantErr: "GROQ_API_KEY not set"},
		{name: "unknown", provider: "acme", env: map[string]string{}, wantErr: "unknown LLM provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, model, err := newFromLookup(tt.provider, tt.model, env(tt.env))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if client == nil || model != tt.wantModel {
				t.Errorf("model = %q, want %q", model, tt.wantModel)
			}
		})
	}
}

func TestPairedToolMessages(t *testing.T) {
	msgs := []engine.ChatMessage{
		{Role: engine.RoleUser, Content: "hi"},
		{Role: engine.RoleTool, ToolCallID: "stray", Content: "x"},
		{Role: engine.RoleAssistant, ToolCalls: []engine.ToolCall{{ID: "a"}, {ID: "b"}}},
		{Role: engine.RoleTool, ToolCallID: "a", Content: "ra"},
		{Role: engine.RoleTool, ToolCallID: "a", Content: "duplicate"},
		{Role: engine.RoleTool, ToolCallID: "b", Content: "rb"},
	}
	got := pairedToolMessages(msgs)
	if len(got) != 4 {
		t.Fatalf("kept %d messages: %+v", len(got), got)
	}
	if got[2].Content != "ra" || got[3].Content != "rb" {
		t.Errorf("tool results = %+v", got[2:])
	}
}

func TestDecodeArgs(t *testing.T) {
	tests := []struct {
		raw           string
		wantKeys      int
		wantMalformed string
	}{
		{raw: "", wantKeys: 0},
		{raw: `{"path":"/a"}`, wantKeys: 1},
		{raw: `{"path":"/a`, wantMalformed: "ended prematurely"},
		{raw: `{"path":}`, wantMalformed: "invalid JSON"},
	}
	for _, tt := range tests {
		args, malformed := decodeArgs([]byte(tt.raw))
		if tt.wantMalformed != "" {
			if !strings.Contains(malformed, tt.wantMalformed) {
				t.Errorf("decodeArgs(%q) malformed = %q", tt.raw, malformed)
			}
			continue
		}
		if malformed != "" || len(args) != tt.wantKeys {
			t.Errorf("decodeArgs(%q) = %v, %q", tt.raw, args, malformed)
		}
	}
}

func TestWrapErrorClassifies(t *testing.T) {
	tests := []struct {
		msg       string
		wantClass engine.RetryClass
		wantAfter string
	}{
		{msg: "error, status code: 429, Retry-After: 12", wantClass: engine.RetryClassRetryable, wantAfter: "12"},
		{msg: "error, status code: 503", wantClass: engine.RetryClassRetryable},
		{msg: "error, status code: 401, invalid api key", wantClass: engine.RetryClassNonRetryable},
	}
	for _, tt := range tests {
		var ee *engine.EngineError
		if !errors.As(wrapError(errors.New(tt.msg)), &ee) {
			t.Fatalf("wrapError(%q) is not an EngineError", tt.msg)
		}
		if ee.Class != tt.wantClass || ee.RetryAfter != tt.wantAfter {
			t.Errorf("wrapError(%q) = class %v retry-after %q", tt.msg, ee.Class, ee.RetryAfter)
		}
	}
}

func TestFinishReason(t *testing.T) {
	if finishReason(true, "end_turn") != "tool_calls" {
		t.Error("calls should win")
	}
	if finishReason(false, "max_tokens") != "length" || finishReason(false, "length") != "length" {
		t.Error("length not mapped")
	}
	if finishReason(false, "end_turn") != "stop" {
		t.Error("default should be stop")
	}
}
