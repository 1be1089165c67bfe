package providers

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

// providerSpec describes how to reach one provider. All providers except
// anthropic speak the OpenAI chat completions protocol.
type providerSpec struct {
	keyEnv       string
	modelEnv     string
	baseURLEnv   string
	defaultModel string
	defaultBase  string
	// localKey is used when keyEnv is unset, for local servers that ignore it.
	localKey  string
	anthropic bool
}

var knownProviders = map[string]providerSpec{
	"openai":    {keyEnv: "OPENAI_API_KEY", modelEnv: "OPENAI_MODEL", baseURLEnv: "OPENAI_BASE_URL", defaultModel: "gpt-4o-mini"},
	"anthropic": {keyEnv: "ANTHROPIC_API_KEY", modelEnv: "ANTHROPIC_MODEL", defaultModel: "claude-sonnet-4-20250514", anthropic: true},
	"kimi": {keyEnv: "KIMI_API_KEY", modelEnv: "KIMI_MODEL", baseURLEnv: "KIMI_BASE_URL",
		defaultModel: "kimi-k2-250711", defaultBase: "https://ark.ap-southeast.bytepluses.com/api/v3"},
	"gemini": {keyEnv: "GEMINI_API_KEY", modelEnv: "GEMINI_MODEL",
		defaultModel: "gemini-1.5-flash", defaultBase: "https://generativelanguage.googleapis.com/v1beta/openai"},
	"deepseek": {keyEnv: "DEEPSEEK_API_KEY", modelEnv: "DEEPSEEK_MODEL",
		defaultModel: "deepseek-chat", defaultBase: "https://api.deepseek.com/v1"},
	"groq": {keyEnv: "GROQ_API_KEY", modelEnv: "GROQ_MODEL",
		defaultModel: "llama-3.1-70b-versatile", defaultBase: "https://api.groq.com/openai/v1"},
	"lmstudio": {keyEnv: "LMSTUDIO_API_KEY", modelEnv: "LMSTUDIO_MODEL", baseURLEnv: "LMSTUDIO_BASE_URL",
		defaultModel: "local-model", defaultBase: "http://localhost:1234/v1", localKey: "lm-studio"},
	"ollama": {keyEnv: "OLLAMA_API_KEY", modelEnv: "OLLAMA_MODEL", baseURLEnv: "OLLAMA_BASE_URL",
		defaultModel: "llama3.1", defaultBase: "http://localhost:11434/v1", localKey: "ollama"},
}

// Providers returns the supported provider names.
func Providers() []string {
	names := make([]string, 0, len(knownProviders))
	for n := range knownProviders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New creates a client for provider, reading its key and base URL from the
// environment. An empty model falls back to the provider's model variable,
// then to its default. It returns the model name actually used.
func New(provider, model string) (engine.LLMClient, string, error) {
	return newFromLookup(provider, model, os.Getenv)
}

func newFromLookup(provider, model string, getenv func(string) string) (engine.LLMClient, string, error) {
	if provider == "" {
		provider = "openai"
	}
	provider = strings.ToLower(provider)
	spec, ok := knownProviders[provider]
	if !ok {
		return nil, "", fmt.Errorf("unknown LLM provider: %s (supported: %s)", provider, strings.Join(Providers(), ", "))
	}

	apiKey := getenv(spec.keyEnv)
	if apiKey == "" {
		apiKey = spec.localKey
	}
	if apiKey == "" {
		return nil, "", fmt.Errorf("%s not set", spec.keyEnv)
	}
	if model == "" && spec.modelEnv != "" {
		model = getenv(spec.modelEnv)
	}
	if model == "" {
		model = spec.defaultModel
	}

	if spec.anthropic {
		client, err := NewAnthropicClient(apiKey, model)
		if err != nil {
			return nil, "", err
		}
		return client, model, nil
	}

	baseURL := spec.defaultBase
	if spec.baseURLEnv != "" {
		if v := getenv(spec.baseURLEnv); v != "" {
			baseURL = v
		}
	}
	client, err := NewOpenAIClient(apiKey, model, baseURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create %s client: %w", provider, err)
	}
	return client, model, nil
}
