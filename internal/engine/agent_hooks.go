package engine

import (
	"log"
)

// DefaultHooks returns the hooks used by the CLI: one log line per event.
func DefaultHooks(l *log.Logger) Hooks {
	return Hooks{LoggerHook{L: l}}
}
