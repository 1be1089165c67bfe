package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

// toolResultPrefix marks tool results that report a failure.
const toolResultPrefix = "ERROR:"

// pairedToolMessages drops tool messages that do not answer a call of the
// closest preceding assistant message. Providers reject unpaired results.
func pairedToolMessages(messages []engine.ChatMessage) []engine.ChatMessage {
	out := make([]engine.ChatMessage, 0, len(messages))
	open := map[string]bool{}
	for _, m := range messages {
		switch m.Role {
		case engine.RoleAssistant:
			open = make(map[string]bool, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				open[tc.ID] = true
			}
		case engine.RoleTool:
			if !open[m.ToolCallID] {
				continue
			}
			delete(open, m.ToolCallID)
		default:
			open = map[string]bool{}
		}
		out = append(out, m)
	}
	return out
}

func schemaObject(ts engine.ToolSchema) (map[string]any, error) {
	if ts.JSONSchema == "" {
		return map[string]any{"type": "object", "properties": map[string]any{}}, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(ts.JSONSchema), &obj); err != nil {
		return nil, fmt.Errorf("invalid tool schema JSON for %s: %w", ts.Name, err)
	}
	return obj, nil
}

// decodeArgs parses raw call arguments. A malformed payload is reported on
// the call instead of failing the response.
func decodeArgs(raw []byte) (map[string]any, string) {
	args := map[string]any{}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return args, ""
	}
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		if !strings.HasSuffix(trimmed, "}") {
			return map[string]any{}, fmt.Sprintf("arguments ended prematurely (%d bytes received); the output token limit may be too low", len(trimmed))
		}
		return map[string]any{}, fmt.Sprintf("invalid JSON in arguments: %v", err)
	}
	return args, ""
}

func contentOrPlaceholder(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}

// extractErrorMetadata extracts HTTP status code and Retry-After header from
// an SDK error message.
func extractErrorMetadata(err error) (int, string) {
	if err == nil {
		return 0, ""
	}

	errStr := err.Error()
	var httpStatus int
	for _, code := range []int{
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusBadRequest,
		http.StatusPaymentRequired,
	} {
		if strings.Contains(errStr, fmt.Sprint(code)) {
			httpStatus = code
			break
		}
	}

	var retryAfter string
	lower := strings.ToLower(errStr)
	for _, marker := range []string{"retry-after", "retry after"} {
		if idx := strings.Index(lower, marker); idx != -1 {
			parts := strings.Fields(strings.TrimLeft(errStr[idx+len(marker):], ": "))
			if len(parts) > 0 {
				retryAfter = parts[0]
			}
			break
		}
	}
	return httpStatus, retryAfter
}

func wrapError(err error) error {
	httpStatus, retryAfter := extractErrorMetadata(err)
	return engine.WrapLLMError(err, httpStatus, retryAfter)
}

func finishReason(hasCalls bool, raw string) string {
	switch {
	case hasCalls:
		return "tool_calls"
	case raw == "max_tokens" || raw == "length":
		return "length"
	case raw == "content_filter" || raw == "content_filtered" || raw == "refusal":
		return "content_filter"
	}
	return "stop"
}
