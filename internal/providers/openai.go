package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAIClient implements engine.LLMClient on the chat completions API. It
// also serves OpenAI-compatible endpoints through baseURL.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	baseURL string
	logger  *log.Logger
}

// NewOpenAIClient creates a client. An empty baseURL uses the OpenAI API.
func NewOpenAIClient(apiKey, model, baseURL string) (*OpenAIClient, error) {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{
		client:  openai.NewClientWithConfig(config),
		model:   model,
		baseURL: baseURL,
		logger:  log.Default(),
	}, nil
}

// SetLogger redirects diagnostics about malformed streamed tool calls.
func (c *OpenAIClient) SetLogger(l *log.Logger) {
	if l != nil {
		c.logger = l
	}
}

func openaiMessages(messages []engine.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range pairedToolMessages(messages) {
		switch msg.Role {
		case engine.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: msg.Content})
		case engine.RoleUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content})
		case engine.RoleAssistant:
			// Some compatible servers reject a null content; a space is
			// accepted everywhere.
			content := msg.Content
			if content == "" {
				content = " "
			}
			var calls []openai.ToolCall
			for _, tc := range msg.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Args)
				calls = append(calls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				Content:   content,
				ToolCalls: calls,
			})
		case engine.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: msg.ToolCallID,
				Name:       msg.Name,
				Content:    contentOrPlaceholder(msg.Content),
			})
		}
	}
	return out
}

func openaiTools(schemas []engine.ToolSchema) ([]openai.Tool, error) {
	tools := make([]openai.Tool, 0, len(schemas))
	for _, ts := range schemas {
		obj, err := schemaObject(ts)
		if err != nil {
			return nil, err
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ts.Name,
				Description: ts.Description,
				Parameters:  obj,
			},
		})
	}
	return tools, nil
}

func (c *OpenAIClient) request(model string, messages []engine.ChatMessage, schemas []engine.ToolSchema, opts engine.ChatOptions) (openai.ChatCompletionRequest, error) {
	if model == "" {
		model = c.model
	}
	tools, err := openaiTools(schemas)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: openaiMessages(messages),
	}
	if len(tools) > 0 {
		req.Tools = tools
		req.ToolChoice = "auto"
	}
	if opts.MaxOutputTokens > 0 {
		req.MaxTokens = opts.MaxOutputTokens
	}
	if opts.Temperature > 0 {
		req.Temperature = &opts.Temperature
	}
	return req, nil
}

// Chat implements engine.LLMClient.
func (c *OpenAIClient) Chat(ctx context.Context, model string, messages []engine.ChatMessage, schemas []engine.ToolSchema, opts engine.ChatOptions) (engine.LLMResponse, error) {
	req, err := c.request(model, messages, schemas, opts)
	if err != nil {
		return engine.LLMResponse{}, err
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return engine.LLMResponse{}, wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return engine.LLMResponse{}, fmt.Errorf("empty response from %s", c.endpoint())
	}

	choice := resp.Choices[0]
	var calls []engine.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		args, malformed := decodeArgs([]byte(tc.Function.Arguments))
		calls = append(calls, engine.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args, Error: malformed})
	}

	return engine.LLMResponse{
		Assistant: engine.ChatMessage{Role: engine.RoleAssistant, Content: choice.Message.Content, ToolCalls: calls},
		ToolCalls: calls,
		Usage: engine.Usage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
			Total:      resp.Usage.TotalTokens,
		},
		FinishReason: finishReason(len(calls) > 0, string(choice.FinishReason)),
	}, nil
}

func (c *OpenAIClient) endpoint() string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return "OpenAI"
}

// callAccumulator collects the deltas of one streamed tool call.
type callAccumulator struct {
	index int
	id    string
	name  string
	args  strings.Builder
}

// Stream implements engine.LLMClient. Tool calls are emitted once the
// stream ends, in the order the model produced them.
func (c *OpenAIClient) Stream(ctx context.Context, model string, messages []engine.ChatMessage, schemas []engine.ToolSchema, opts engine.ChatOptions) (<-chan engine.StreamEvent, <-chan error) {
	eventCh := make(chan engine.StreamEvent, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(eventCh)

		send := func(ev engine.StreamEvent) bool {
			select {
			case eventCh <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		req, err := c.request(model, messages, schemas, opts)
		if err != nil {
			errCh <- err
			return
		}
		req.Stream = true
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

		stream, err := c.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			errCh <- wrapError(err)
			return
		}
		defer stream.Close()

		calls := map[int]*callAccumulator{}
		var usage engine.Usage
		var rawFinish string

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				errCh <- wrapError(err)
				return
			}
			if chunk.Usage != nil && chunk.Usage.TotalTokens > 0 {
				usage = engine.Usage{
					Prompt:     chunk.Usage.PromptTokens,
					Completion: chunk.Usage.CompletionTokens,
					Total:      chunk.Usage.TotalTokens,
				}
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.FinishReason != "" {
				rawFinish = string(choice.FinishReason)
			}
			if choice.Delta.Content != "" {
				if !send(engine.StreamEvent{Type: "text_delta", Text: choice.Delta.Content}) {
					return
				}
			}
			for _, d := range choice.Delta.ToolCalls {
				idx := len(calls)
				if d.Index != nil {
					idx = *d.Index
				}
				acc, ok := calls[idx]
				if !ok {
					acc = &callAccumulator{index: idx}
					calls[idx] = acc
				}
				if d.ID != "" {
					acc.id = d.ID
				}
				if d.Function.Name != "" {
					acc.name = d.Function.Name
				}
				acc.args.WriteString(d.Function.Arguments)
			}
		}

		ordered := make([]*callAccumulator, 0, len(calls))
		for _, acc := range calls {
			if acc.name != "" {
				ordered = append(ordered, acc)
			}
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].index < ordered[j].index })
		for _, acc := range ordered {
			args, malformed := decodeArgs([]byte(acc.args.String()))
			if malformed != "" {
				c.logger.Printf("openai: tool call %s (%s) malformed: %s", acc.name, acc.id, malformed)
			}
			if !send(engine.StreamEvent{Type: "tool_call", ToolCall: engine.ToolCall{
				ID:    acc.id,
				Name:  acc.name,
				Args:  args,
				Error: malformed,
			}}) {
				return
			}
		}
		if usage.Total > 0 && !send(engine.StreamEvent{Type: "usage", Usage: usage}) {
			return
		}
		send(engine.StreamEvent{Type: "finish", Finish: finishReason(len(ordered) > 0, rawFinish)})
	}()

	return eventCh, errCh
}
