package engine

import (
	"encoding/json"
	"strings"
	"unicode"
	"unicode/utf8"
)

// messageOverhead approximates role names and separators per message.
const messageOverhead = 4

// EstimateTokens is a character based token estimate: about four runes per
// token plus a small charge for whitespace, which tokenizers split on.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	runes := utf8.RuneCountInString(text)
	ws := strings.Count(text, " ") + strings.Count(text, "\n") + strings.Count(text, "\t")
	est := runes/4 + ws/6
	if est < 1 {
		return 1
	}
	return est
}

// EstimateMessageTokens estimates one message including its tool calls.
func EstimateMessageTokens(m ChatMessage) int {
	total := messageOverhead + EstimateTokens(m.Content)
	for _, tc := range m.ToolCalls {
		total += EstimateTokens(tc.Name)
		if args, err := json.Marshal(tc.Args); err == nil {
			total += EstimateTokens(string(args))
		}
	}
	return total
}

// EstimateHistoryTokens sums EstimateMessageTokens over msgs.
func EstimateHistoryTokens(msgs []ChatMessage) int {
	total := 0
	for _, m := range msgs {
		total += EstimateMessageTokens(m)
	}
	return total
}

// sanitizeID maps an identifier onto characters safe for a file name.
func sanitizeID(id string) string {
	if id == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_') {
			return r
		}
		return '_'
	}, id)
}
