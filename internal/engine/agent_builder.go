package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/ChamsBouzaiene/stepwise/internal/backend"
	"github.com/ChamsBouzaiene/stepwise/internal/state"
)

// AgentBuilder helps construct an Agent with a fluent API.
type AgentBuilder struct {
	config       AgentConfig
	llm          LLMClient
	summarizer   LLMClient
	tools        ToolRegistry
	hooks        Hooks
	newBackend   func(*state.AgentState) backend.Backend
	checkpointer Checkpointer
	approve      ApprovalFunc
	logger       *log.Logger
	stopWhen     StopFunc
	contextSet   bool
}

// NewAgentBuilder creates a new agent builder with default configuration.
func NewAgentBuilder() *AgentBuilder {
	return &AgentBuilder{
		config: DefaultAgentConfig(),
	}
}

// WithConfig replaces the whole configuration. Later With calls still apply.
func (b *AgentBuilder) WithConfig(cfg AgentConfig) *AgentBuilder {
	b.config = cfg
	b.contextSet = true
	return b
}

// WithName sets the name used in logs and subagent events.
func (b *AgentBuilder) WithName(name string) *AgentBuilder {
	b.config.Name = name
	return b
}

// WithModel sets the model name.
func (b *AgentBuilder) WithModel(model string) *AgentBuilder {
	b.config.Model = model
	return b
}

// WithLLM sets the LLM client.
func (b *AgentBuilder) WithLLM(llm LLMClient) *AgentBuilder {
	b.llm = llm
	return b
}

// WithSummaryLLM sets a separate client for history summaries.
func (b *AgentBuilder) WithSummaryLLM(llm LLMClient) *AgentBuilder {
	b.summarizer = llm
	return b
}

// WithSystemPrompt sets the system prompt sent ahead of every request.
func (b *AgentBuilder) WithSystemPrompt(prompt string) *AgentBuilder {
	b.config.SystemPrompt = prompt
	return b
}

// WithMaxSteps sets the maximum number of steps per invocation.
func (b *AgentBuilder) WithMaxSteps(maxSteps int) *AgentBuilder {
	b.config.MaxSteps = maxSteps
	return b
}

// WithMaxOutputTokens sets the maximum output tokens for LLM responses.
func (b *AgentBuilder) WithMaxOutputTokens(tokens int) *AgentBuilder {
	b.config.MaxOutputTokens = tokens
	return b
}

// WithRetryConfig sets the retry configuration.
func (b *AgentBuilder) WithRetryConfig(cfg RetryConfig) *AgentBuilder {
	b.config.Retry = cfg
	return b
}

// WithContextConfig sets the eviction and summarization thresholds.
func (b *AgentBuilder) WithContextConfig(cfg ContextConfig) *AgentBuilder {
	b.config.Context = cfg
	b.contextSet = true
	return b
}

// WithToolRegistry sets the tools the model may call.
func (b *AgentBuilder) WithToolRegistry(reg ToolRegistry) *AgentBuilder {
	b.tools = reg
	return b
}

// WithParallelTools bounds concurrent tool execution within a step.
func (b *AgentBuilder) WithParallelTools(n int) *AgentBuilder {
	b.config.ParallelTools = n
	return b
}

// WithStreaming enables or disables streaming mode.
func (b *AgentBuilder) WithStreaming(streaming bool) *AgentBuilder {
	b.config.Streaming = streaming
	return b
}

// WithHooks sets custom hooks.
func (b *AgentBuilder) WithHooks(hooks Hooks) *AgentBuilder {
	b.hooks = hooks
	return b
}

// WithLogger sets the logger for engine diagnostics.
func (b *AgentBuilder) WithLogger(l *log.Logger) *AgentBuilder {
	b.logger = l
	return b
}

// WithBackend uses be for every run.
func (b *AgentBuilder) WithBackend(be backend.Backend) *AgentBuilder {
	b.newBackend = func(*state.AgentState) backend.Backend { return be }
	return b
}

// WithBackendFactory builds a backend per run from the run's state. The
// default is a StateBackend over the state's file map.
func (b *AgentBuilder) WithBackendFactory(f func(*state.AgentState) backend.Backend) *AgentBuilder {
	b.newBackend = f
	return b
}

// WithCheckpointer persists the thread after each step.
func (b *AgentBuilder) WithCheckpointer(cp Checkpointer) *AgentBuilder {
	b.checkpointer = cp
	return b
}

// WithInterruptOn guards the named tool with policy.
func (b *AgentBuilder) WithInterruptOn(tool string, policy ToolPolicy) *AgentBuilder {
	if b.config.InterruptOn == nil {
		b.config.InterruptOn = map[string]ToolPolicy{}
	}
	b.config.InterruptOn[tool] = policy
	return b
}

// WithApproval sets the callback that decides guarded calls.
func (b *AgentBuilder) WithApproval(f ApprovalFunc) *AgentBuilder {
	b.approve = f
	return b
}

// WithInterruptMode parks guarded calls in a checkpoint when no approval
// callback is set.
func (b *AgentBuilder) WithInterruptMode(on bool) *AgentBuilder {
	b.config.InterruptMode = on
	return b
}

// WithStopWhen ends the run after any step for which f returns true.
func (b *AgentBuilder) WithStopWhen(f StopFunc) *AgentBuilder {
	b.stopWhen = f
	return b
}

// Build constructs the Agent instance.
func (b *AgentBuilder) Build(ctx context.Context) (*Agent, error) {
	if b.llm == nil {
		return nil, fmt.Errorf("LLM client not configured: use WithLLM")
	}
	if b.tools == nil {
		return nil, fmt.Errorf("tools not configured: use WithToolRegistry")
	}
	if b.config.Model == "" {
		return nil, fmt.Errorf("model not configured: use WithModel")
	}
	for name := range b.config.InterruptOn {
		if _, ok := b.tools[name]; !ok {
			return nil, fmt.Errorf("interrupt configured for unknown tool %q", name)
		}
	}
	if b.config.InterruptMode && b.checkpointer == nil && b.approve == nil {
		return nil, fmt.Errorf("interrupt mode requires a checkpointer: use WithCheckpointer")
	}
	if !b.contextSet {
		b.config.Context = ContextConfigForModel(b.config.Model)
	}
	if b.config.Context.KeepMessages < 0 {
		return nil, fmt.Errorf("context keep messages must be >= 0, got %d", b.config.Context.KeepMessages)
	}

	logger := b.logger
	if logger == nil {
		logger = log.Default()
	}
	hooks := b.hooks
	if hooks == nil {
		hooks = Hooks{}
	}

	logInitialConfiguration(logger, b.config, b.tools)

	return &Agent{
		llm:          b.llm,
		summarizer:   b.summarizer,
		tools:        b.tools,
		cfg:          b.config,
		newBackend:   b.newBackend,
		checkpointer: b.checkpointer,
		approve:      b.approve,
		hooks:        hooks,
		logger:       logger,
		stopWhen:     b.stopWhen,
	}, nil
}

// logInitialConfiguration logs the model, the estimated prompt overhead and
// the tool catalog.
func logInitialConfiguration(logger *log.Logger, cfg AgentConfig, tools ToolRegistry) {
	systemTokens := 0
	if cfg.SystemPrompt != "" {
		systemTokens = EstimateTokens(cfg.SystemPrompt)
	}
	toolTokens := 0
	for _, s := range tools.Schemas() {
		toolTokens += EstimateTokens(s.Name) + EstimateTokens(s.Description) + EstimateTokens(s.JSONSchema) + 10
	}
	logger.Printf("agent %s: model=%s system=~%d tokens tools=~%d tokens", cfg.Name, cfg.Model, systemTokens, toolTokens)
	if len(tools) > 0 {
		logger.Printf("agent %s: %d tools %v", cfg.Name, len(tools), tools.Names())
	}
}
