package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/stepwise/internal/backend"
	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

const (
	defaultTimeout = 120 * time.Second
	minTimeout     = 5 * time.Second
	maxTimeout     = 10 * time.Minute
)

func executeImpl(ctx context.Context, rt *engine.Runtime, command string, timeout time.Duration) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", fmt.Errorf("command is required")
	}
	exec, ok := backend.AsExecutor(rt.Backend)
	if !ok {
		return "", fmt.Errorf("the active backend cannot execute commands")
	}

	rt.Emit(engine.Event{Type: engine.EventExecuteStart, Command: command})
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := exec.Execute(runCtx, command)
	rt.Emit(engine.Event{
		Type:      engine.EventExecuteFinish,
		Command:   command,
		ExitCode:  resp.ExitCode,
		Truncated: resp.Truncated,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return formatResponse(resp), nil
}

func formatResponse(resp backend.ExecuteResponse) string {
	var b strings.Builder
	b.WriteString(resp.Output)
	if resp.Output != "" && !strings.HasSuffix(resp.Output, "\n") {
		b.WriteByte('\n')
	}
	if resp.Truncated {
		b.WriteString("[output truncated]\n")
	}
	if resp.ExitCode != nil {
		fmt.Fprintf(&b, "[exit code %d]", *resp.ExitCode)
	} else {
		b.WriteString("[command did not complete]")
	}
	return b.String()
}

func parseTimeoutArg(value any) time.Duration {
	var seconds float64
	switch v := value.(type) {
	case float64:
		seconds = v
	case int:
		seconds = float64(v)
	default:
		return defaultTimeout
	}
	if seconds <= 0 {
		return defaultTimeout
	}
	timeout := time.Duration(seconds) * time.Second
	if timeout < minTimeout {
		timeout = minTimeout
	}
	if timeout > maxTimeout {
		timeout = maxTimeout
	}
	return timeout
}

// NewExecuteTool runs shell commands on backends that support execution.
func NewExecuteTool() engine.Tool {
	return engine.Tool{
		Name:        "execute",
		Description: "Runs a shell command in the workspace and returns its combined output and exit code. Long output is truncated. Only available when the backend supports command execution.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"command": {"type": "string", "minLength": 1, "description": "Shell command to run"},
				"timeout_seconds": {"type": "integer", "minimum": 5, "maximum": 600, "description": "Maximum seconds to allow the command to run (default: 120)"}
			},
			"required": ["command"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			rt, err := engine.MustRuntime(ctx)
			if err != nil {
				return "", err
			}
			command, err := engine.ArgString(args, "command")
			if err != nil {
				return "", err
			}
			return executeImpl(ctx, rt, command, parseTimeoutArg(args["timeout_seconds"]))
		},
	}
}
