// Package prompts composes the system prompt of the main agent.
package prompts

import (
	"fmt"
	"sort"
	"strings"
)

// PromptBuilder composes a prompt from fragments and {{name}} variables.
type PromptBuilder struct {
	fragments []string
	variables map[string]string
}

// NewPromptBuilder starts a builder from base.
func NewPromptBuilder(base string) *PromptBuilder {
	return &PromptBuilder{fragments: []string{base}, variables: map[string]string{}}
}

// AddFragment appends a fragment. Empty fragments are skipped.
func (b *PromptBuilder) AddFragment(text string) *PromptBuilder {
	if strings.TrimSpace(text) != "" {
		b.fragments = append(b.fragments, text)
	}
	return b
}

// SetVariable sets a variable for template substitution.
func (b *PromptBuilder) SetVariable(key, value string) *PromptBuilder {
	b.variables[key] = value
	return b
}

// Build joins the fragments and substitutes variables. A placeholder left
// without a value is an error.
func (b *PromptBuilder) Build() (string, error) {
	result := strings.Join(b.fragments, "\n\n")

	keys := make([]string, 0, len(b.variables))
	for k := range b.variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		result = strings.ReplaceAll(result, fmt.Sprintf("{{%s}}", k), b.variables[k])
	}

	if i := strings.Index(result, "{{"); i != -1 {
		end := strings.Index(result[i:], "}}")
		if end != -1 {
			return "", fmt.Errorf("prompt variable %s has no value", result[i:i+end+2])
		}
	}
	return result, nil
}
