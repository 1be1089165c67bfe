package prompts

import (
	"fmt"
	"strings"
)

const agentPrompt = `You are stepwise, an agent that completes tasks by calling tools step by step.

Rules:
- Read a file before you change it. Prefer edit_file over rewriting whole files.
- write_file only creates new files; it fails when the path already exists.
- Keep a todo list with write_todos for work that takes more than a few steps, and mark items completed as you go.
- Large tool results are saved under /large_tool_results/; read them in pages with read_file offset and limit.
- Some tools need human approval. A denied call did not run; adjust your plan instead of retrying it unchanged.
- When the task is done, reply with a short summary of what changed.

Available tools: {{tools}}.`

const subagentFragment = `Delegate self-contained research or multi-step work with the task tool. Each subagent starts with a fresh context and shares your files but not your todo list. Available subagents: {{subagents}}.`

const workspaceFragment = `Workspace: the files under / map to {{root}} on disk.{{project}}`

// Options describes what the agent can do in this session.
type Options struct {
	Tools     []string
	Subagents []string
	// Root is the host directory behind the backend, or empty for an
	// in-memory workspace.
	Root string
}

// SystemPrompt builds the main agent's prompt for opts. When Root is set,
// the detected project type and the workspace rules file are included.
// Rules are appended verbatim, after variable substitution.
func SystemPrompt(opts Options) (string, error) {
	b := NewPromptBuilder(agentPrompt).SetVariable("tools", strings.Join(opts.Tools, ", "))

	if len(opts.Subagents) > 0 {
		b.AddFragment(subagentFragment).SetVariable("subagents", strings.Join(opts.Subagents, ", "))
	}

	rules := ""
	if opts.Root != "" {
		project := ""
		if pt := DetectProjectType(opts.Root); pt != ProjectTypeUnknown {
			project = fmt.Sprintf(" It looks like a %s project", pt)
			if cmd := TestCommand(pt); cmd != "" {
				project += fmt.Sprintf("; run its tests with %q through execute when available", cmd)
			}
			project += "."
		}
		b.AddFragment(workspaceFragment).SetVariable("root", opts.Root).SetVariable("project", project)

		var err error
		if rules, err = LoadRules(opts.Root); err != nil {
			return "", err
		}
	}
	prompt, err := b.Build()
	if err != nil {
		return "", err
	}
	if rules = strings.TrimSpace(rules); rules != "" {
		prompt += "\n\nWorkspace rules:\n" + rules
	}
	return prompt, nil
}
