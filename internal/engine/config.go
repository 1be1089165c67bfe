package engine

// EvictionDir is the reserved backend directory for evicted tool results.
const EvictionDir = "/large_tool_results"

// ContextConfig bounds how much history the model sees.
type ContextConfig struct {
	// EvictionTokenLimit moves tool results estimated above this many tokens
	// to the backend. 0 disables eviction.
	EvictionTokenLimit int
	// SummarizeTriggerTokens summarizes history once its estimate exceeds
	// this many tokens. 0 disables summarization.
	SummarizeTriggerTokens int
	// KeepMessages is how many recent messages survive summarization verbatim.
	KeepMessages int
	// SummaryModel overrides the model used for the summary call.
	SummaryModel string
	// SummaryMaxTokens bounds the summary response.
	SummaryMaxTokens int
}

// DefaultContextConfig returns the context limits used when none are configured.
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		EvictionTokenLimit:     20000,
		SummarizeTriggerTokens: 170000,
		KeepMessages:           6,
		SummaryMaxTokens:       1024,
	}
}
