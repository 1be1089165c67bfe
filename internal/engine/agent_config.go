package engine

// AgentConfig holds configuration for an agent instance.
type AgentConfig struct {
	// Name identifies the agent in logs; subagents use their spec name.
	Name            string
	Model           string
	SystemPrompt    string
	MaxSteps        int
	MaxOutputTokens int
	Temperature     float32
	// Streaming uses LLMClient.Stream so text reaches the event stream as
	// it is generated.
	Streaming bool
	// ParallelTools bounds concurrently executing tool calls within a step.
	// 1 runs them one after another.
	ParallelTools int
	Retry         RetryConfig
	Context       ContextConfig
	// InterruptOn maps tool names to approval policies.
	InterruptOn map[string]ToolPolicy
	// InterruptMode parks guarded calls in a checkpoint when no approval
	// handler is configured, instead of denying them.
	InterruptMode bool
}

// DefaultMaxSteps is the step ceiling used when none is configured.
const DefaultMaxSteps = 50

// DefaultAgentConfig returns a default agent configuration.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Name:            "main",
		Model:           "gpt-4o-mini",
		MaxSteps:        DefaultMaxSteps,
		MaxOutputTokens: 8192,
		ParallelTools:   4,
		Retry:           DefaultRetryConfig(),
		Context:         DefaultContextConfig(),
		InterruptOn:     map[string]ToolPolicy{},
	}
}
