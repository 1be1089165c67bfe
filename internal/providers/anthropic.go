package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicClient implements engine.LLMClient on the Anthropic messages API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicClient creates a client. model is the default used when a
// request names none.
func NewAnthropicClient(apiKey, model string, opts ...anthropic.ClientOption) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}
	return &AnthropicClient{client: anthropic.NewClient(apiKey, opts...), model: model}, nil
}

// anthropicMessages converts history. Consecutive tool results are sent in
// a single user turn, as the API requires.
func anthropicMessages(messages []engine.ChatMessage) ([]anthropic.MessageSystemPart, []anthropic.Message) {
	var system []anthropic.MessageSystemPart
	var out []anthropic.Message

	for _, msg := range pairedToolMessages(messages) {
		switch msg.Role {
		case engine.RoleSystem:
			system = append(system, anthropic.MessageSystemPart{Type: "text", Text: msg.Content})
		case engine.RoleUser:
			out = append(out, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(msg.Content)},
			})
		case engine.RoleAssistant:
			var content []anthropic.MessageContent
			if strings.TrimSpace(msg.Content) != "" {
				content = append(content, anthropic.NewTextMessageContent(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Args)
				content = append(content, anthropic.NewToolUseMessageContent(tc.ID, tc.Name, json.RawMessage(argsJSON)))
			}
			if len(content) == 0 {
				content = append(content, anthropic.NewTextMessageContent(" "))
			}
			out = append(out, anthropic.Message{Role: anthropic.RoleAssistant, Content: content})
		case engine.RoleTool:
			result := anthropic.NewToolResultMessageContent(
				msg.ToolCallID,
				contentOrPlaceholder(msg.Content),
				strings.HasPrefix(msg.Content, toolResultPrefix),
			)
			if n := len(out); n > 0 && out[n-1].Role == anthropic.RoleUser && isToolResultTurn(out[n-1]) {
				out[n-1].Content = append(out[n-1].Content, result)
				continue
			}
			out = append(out, anthropic.Message{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{result}})
		}
	}
	return system, out
}

func isToolResultTurn(m anthropic.Message) bool {
	for _, c := range m.Content {
		if c.Type != "tool_result" {
			return false
		}
	}
	return len(m.Content) > 0
}

func anthropicTools(schemas []engine.ToolSchema) ([]anthropic.ToolDefinition, error) {
	defs := make([]anthropic.ToolDefinition, 0, len(schemas))
	for _, ts := range schemas {
		obj, err := schemaObject(ts)
		if err != nil {
			return nil, err
		}
		defs = append(defs, anthropic.ToolDefinition{
			Name:        ts.Name,
			Description: ts.Description,
			InputSchema: obj,
		})
	}
	return defs, nil
}

func (c *AnthropicClient) request(model string, messages []engine.ChatMessage, schemas []engine.ToolSchema, opts engine.ChatOptions) (anthropic.MessagesRequest, error) {
	if model == "" {
		model = c.model
	}
	tools, err := anthropicTools(schemas)
	if err != nil {
		return anthropic.MessagesRequest{}, err
	}
	system, msgs := anthropicMessages(messages)

	maxTokens := defaultAnthropicMaxTokens
	if opts.MaxOutputTokens > 0 {
		maxTokens = opts.MaxOutputTokens
	}
	temperature := float32(0.1)
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}

	req := anthropic.MessagesRequest{
		Model:       anthropic.Model(model),
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}
	if len(system) > 0 {
		req.MultiSystem = system
	}
	if len(tools) > 0 {
		req.Tools = tools
	}
	return req, nil
}

func toolCallFrom(c anthropic.MessageContent) (engine.ToolCall, bool) {
	if c.Type != "tool_use" || c.MessageContentToolUse == nil || c.MessageContentToolUse.ID == "" {
		return engine.ToolCall{}, false
	}
	tu := c.MessageContentToolUse
	args, malformed := decodeArgs(tu.Input)
	return engine.ToolCall{ID: tu.ID, Name: tu.Name, Args: args, Error: malformed}, true
}

// Chat implements engine.LLMClient.
func (c *AnthropicClient) Chat(ctx context.Context, model string, messages []engine.ChatMessage, schemas []engine.ToolSchema, opts engine.ChatOptions) (engine.LLMResponse, error) {
	req, err := c.request(model, messages, schemas, opts)
	if err != nil {
		return engine.LLMResponse{}, err
	}
	resp, err := c.client.CreateMessages(ctx, req)
	if err != nil {
		return engine.LLMResponse{}, wrapError(err)
	}

	var text strings.Builder
	var calls []engine.ToolCall
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			text.WriteString(*block.Text)
			continue
		}
		if tc, ok := toolCallFrom(block); ok {
			calls = append(calls, tc)
		}
	}

	return engine.LLMResponse{
		Assistant: engine.ChatMessage{Role: engine.RoleAssistant, Content: text.String(), ToolCalls: calls},
		ToolCalls: calls,
		Usage: engine.Usage{
			Prompt:     resp.Usage.InputTokens,
			Completion: resp.Usage.OutputTokens,
			Total:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		FinishReason: finishReason(len(calls) > 0, string(resp.StopReason)),
	}, nil
}

// Stream implements engine.LLMClient. The SDK streams through callbacks
// that run on this goroutine; they are adapted to the event channel.
func (c *AnthropicClient) Stream(ctx context.Context, model string, messages []engine.ChatMessage, schemas []engine.ToolSchema, opts engine.ChatOptions) (<-chan engine.StreamEvent, <-chan error) {
	eventCh := make(chan engine.StreamEvent, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(eventCh)

		failed := false
		fail := func(err error) {
			if !failed {
				failed = true
				errCh <- err
			}
		}
		send := func(ev engine.StreamEvent) {
			select {
			case eventCh <- ev:
			case <-ctx.Done():
			}
		}

		base, err := c.request(model, messages, schemas, opts)
		if err != nil {
			fail(err)
			return
		}
		req := anthropic.MessagesStreamRequest{MessagesRequest: base}

		req.OnError = func(errResp anthropic.ErrorResponse) {
			fail(fmt.Errorf("anthropic streaming error: %s", errResp.Error.Message))
		}
		req.OnContentBlockDelta = func(delta anthropic.MessagesEventContentBlockDeltaData) {
			if delta.Delta.Type == "text_delta" && delta.Delta.Text != nil {
				send(engine.StreamEvent{Type: "text_delta", Text: *delta.Delta.Text})
			}
		}
		hasCalls := false
		req.OnContentBlockStop = func(_ anthropic.MessagesEventContentBlockStopData, content anthropic.MessageContent) {
			if tc, ok := toolCallFrom(content); ok {
				hasCalls = true
				send(engine.StreamEvent{Type: "tool_call", ToolCall: tc})
			}
		}

		resp, err := c.client.CreateMessagesStream(ctx, req)
		if err != nil {
			fail(wrapError(err))
			return
		}
		if failed {
			return
		}
		if resp.Usage.InputTokens > 0 || resp.Usage.OutputTokens > 0 {
			send(engine.StreamEvent{Type: "usage", Usage: engine.Usage{
				Prompt:     resp.Usage.InputTokens,
				Completion: resp.Usage.OutputTokens,
				Total:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
			}})
		}
		send(engine.StreamEvent{Type: "finish", Finish: finishReason(hasCalls, string(resp.StopReason))})
	}()

	return eventCh, errCh
}
