package engine

import "strings"

// ContextConfigForModel returns DefaultContextConfig with the summarization
// trigger scaled to the model's context window, leaving room for output.
func ContextConfigForModel(model string) ContextConfig {
	cfg := DefaultContextConfig()

	m := strings.ToLower(model)
	switch {
	// 200k windows
	case strings.Contains(m, "claude") || strings.Contains(m, "sonnet") ||
		strings.Contains(m, "opus") || strings.Contains(m, "kimi"):
		cfg.SummarizeTriggerTokens = 170000
	// 128k windows
	case strings.Contains(m, "gpt-4o") || strings.Contains(m, "gpt-4.1") || strings.Contains(m, "o3") || strings.Contains(m, "o4"):
		cfg.SummarizeTriggerTokens = 100000
	case strings.Contains(m, "deepseek"):
		cfg.SummarizeTriggerTokens = 50000
	case strings.Contains(m, "gpt-3.5"):
		cfg.SummarizeTriggerTokens = 12000
		cfg.EvictionTokenLimit = 4000
	}
	return cfg
}
