// Package subagent implements the task tool: it runs a nested, bounded
// agent loop that shares the parent's files but keeps its own todo list.
package subagent

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

// GeneralPurpose is the subagent registered when no spec claims its name.
const GeneralPurpose = "general-purpose"

// TaskToolName is the name of the dispatch tool.
const TaskToolName = "task"

// DefaultMaxSteps bounds a subagent run when its spec sets no limit.
const DefaultMaxSteps = 25

const generalPurposePrompt = `You are a general-purpose subagent working on one delegated task.

Complete the task using the tools available, then reply with a concise report of what you did and what you found. Your final message is returned to the agent that delegated the task, so include every detail it needs.`

// Spec describes one named subagent.
type Spec struct {
	Name         string
	Description  string
	SystemPrompt string
	// Tools names the parent tools the subagent may use. Empty means every
	// parent tool except task.
	Tools []string
	// Model overrides the parent's model name.
	Model string
	// LLM overrides the parent's client.
	LLM      engine.LLMClient
	MaxSteps int
}

// Dispatcher owns the subagent specs of one parent agent.
type Dispatcher struct {
	parent  engine.AgentConfig
	llm     engine.LLMClient
	tools   engine.ToolRegistry
	specs   map[string]Spec
	logger  *log.Logger
	approve engine.ApprovalFunc
}

// NewDispatcher validates specs against the parent's tools. parentTools must
// not contain the task tool itself. A general-purpose subagent is added
// unless specs define one.
func NewDispatcher(parent engine.AgentConfig, llm engine.LLMClient, parentTools engine.ToolRegistry, logger *log.Logger, specs ...Spec) (*Dispatcher, error) {
	if llm == nil {
		return nil, fmt.Errorf("subagent dispatcher requires an LLM client")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	d := &Dispatcher{
		parent: parent,
		llm:    llm,
		tools:  parentTools.Without(TaskToolName),
		specs:  make(map[string]Spec, len(specs)+1),
		logger: logger,
	}
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("subagent spec without a name")
		}
		if _, dup := d.specs[s.Name]; dup {
			return nil, fmt.Errorf("duplicate subagent %q", s.Name)
		}
		if _, err := d.toolsFor(s); err != nil {
			return nil, fmt.Errorf("subagent %q: %w", s.Name, err)
		}
		d.specs[s.Name] = s
	}
	if _, ok := d.specs[GeneralPurpose]; !ok {
		d.specs[GeneralPurpose] = Spec{
			Name:         GeneralPurpose,
			Description:  "General-purpose agent for researching questions, searching files and carrying out multi-step tasks in an isolated context.",
			SystemPrompt: generalPurposePrompt,
		}
	}
	return d, nil
}

// WithApproval sets the callback asked about guarded calls made inside a
// subagent. Without one those calls are denied: subagents never park an
// interrupt, since they have no checkpoint of their own.
func (d *Dispatcher) WithApproval(f engine.ApprovalFunc) *Dispatcher {
	d.approve = f
	return d
}

// Names returns the registered subagent names in lexical order.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.specs))
	for n := range d.specs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (d *Dispatcher) toolsFor(s Spec) (engine.ToolRegistry, error) {
	if len(s.Tools) == 0 {
		return d.tools, nil
	}
	return d.tools.Subset(s.Tools...)
}

// agentFor builds the nested agent for s. Retry, context and streaming
// settings are inherited from the parent, and so are the approval guards of
// every tool the subagent keeps.
func (d *Dispatcher) agentFor(ctx context.Context, s Spec, hooks engine.Hooks) (*engine.Agent, error) {
	tools, err := d.toolsFor(s)
	if err != nil {
		return nil, err
	}
	cfg := d.parent
	cfg.Name = s.Name
	cfg.SystemPrompt = s.SystemPrompt
	cfg.InterruptOn = nil
	for name, policy := range d.parent.InterruptOn {
		if _, ok := tools[name]; !ok {
			continue
		}
		if cfg.InterruptOn == nil {
			cfg.InterruptOn = map[string]engine.ToolPolicy{}
		}
		cfg.InterruptOn[name] = policy
	}
	cfg.InterruptMode = false
	if s.Model != "" {
		cfg.Model = s.Model
	}
	cfg.MaxSteps = s.MaxSteps
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	llm := d.llm
	if s.LLM != nil {
		llm = s.LLM
	}
	b := engine.NewAgentBuilder().
		WithConfig(cfg).
		WithLLM(llm).
		WithToolRegistry(tools).
		WithHooks(hooks).
		WithLogger(d.logger)
	if d.approve != nil {
		b.WithApproval(d.approve)
	}
	return b.Build(ctx)
}
