package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/ChamsBouzaiene/stepwise/internal/backend"
	"github.com/ChamsBouzaiene/stepwise/internal/checkpoint"
	"github.com/ChamsBouzaiene/stepwise/internal/config"
	"github.com/ChamsBouzaiene/stepwise/internal/engine"
	"github.com/ChamsBouzaiene/stepwise/internal/prompts"
	"github.com/ChamsBouzaiene/stepwise/internal/providers"
	"github.com/ChamsBouzaiene/stepwise/internal/sandbox"
	"github.com/ChamsBouzaiene/stepwise/internal/state"
	"github.com/ChamsBouzaiene/stepwise/internal/subagent"
	"github.com/ChamsBouzaiene/stepwise/internal/tools"
)

// largeResultsPrefix keeps evicted tool results in run state even when the
// rest of the tree lives on disk.
const largeResultsPrefix = "/large_tool_results/"

type envOptions struct {
	ConfigPath string
	Root       string
	Approve    engine.ApprovalFunc
	Hooks      engine.Hooks
	Logger     *log.Logger
}

type runtimeEnv struct {
	Config       config.RunConfig
	Agent        *engine.Agent
	Checkpointer engine.Checkpointer
	closers      []io.Closer
}

func (r *runtimeEnv) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}
}

func prepareRuntimeEnv(ctx context.Context, opts envOptions) (_ *runtimeEnv, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Root != "" {
		cfg.Backend.Root = opts.Root
	}

	env := &runtimeEnv{Config: cfg}
	defer func() {
		if err != nil {
			env.Close()
		}
	}()

	llm, model, err := providers.New(cfg.Provider, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	cfg.Model = model
	env.Config = cfg
	logger.Printf("provider=%s model=%s", cfg.Provider, model)

	newBackend, root, err := backendFactory(ctx, cfg, env)
	if err != nil {
		return nil, err
	}

	cp, closer, err := checkpoint.Open(ctx, cfg.Checkpoint.Kind, cfg.Checkpoint.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoints: %w", err)
	}
	env.closers = append(env.closers, closer)
	env.Checkpointer = cp

	agentCfg := cfg.AgentConfig()
	set := tools.DefaultToolSet()
	set.Web = cfg.Web
	registry := tools.NewToolRegistry(set)

	specs := make([]subagent.Spec, 0, len(cfg.Subagents))
	for _, s := range cfg.Subagents {
		specs = append(specs, subagent.Spec{
			Name:         s.Name,
			Description:  s.Description,
			SystemPrompt: s.SystemPrompt,
			Tools:        s.Tools,
			Model:        s.Model,
			MaxSteps:     s.MaxSteps,
		})
	}
	dispatcher, err := subagent.NewDispatcher(agentCfg, llm, registry, logger, specs...)
	if err != nil {
		return nil, fmt.Errorf("failed to configure subagents: %w", err)
	}
	if opts.Approve != nil {
		dispatcher.WithApproval(opts.Approve)
	}
	registry.Register(dispatcher.Tool())
	logger.Printf("subagents: %v", dispatcher.Names())

	if agentCfg.SystemPrompt == "" {
		agentCfg.SystemPrompt, err = prompts.SystemPrompt(prompts.Options{
			Tools:     registry.Names(),
			Subagents: dispatcher.Names(),
			Root:      root,
		})
		if err != nil {
			return nil, err
		}
	}

	b := engine.NewAgentBuilder().
		WithConfig(agentCfg).
		WithLLM(llm).
		WithToolRegistry(registry).
		WithCheckpointer(cp).
		WithHooks(opts.Hooks).
		WithLogger(logger)
	if opts.Approve != nil {
		b.WithApproval(opts.Approve)
	}
	if newBackend != nil {
		b.WithBackendFactory(newBackend)
	}
	agent, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}
	env.Agent = agent
	return env, nil
}

// backendFactory returns nil for the state backend, which is the engine
// default, along with the host root of disk-backed kinds.
func backendFactory(ctx context.Context, cfg config.RunConfig, env *runtimeEnv) (func(*state.AgentState) backend.Backend, string, error) {
	if cfg.Backend.Kind == "" || cfg.Backend.Kind == "state" {
		return nil, "", nil
	}

	root := cfg.Backend.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("failed to get current directory: %w", err)
		}
		root = wd
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve root: %w", err)
	}
	if info, err := os.Stat(absRoot); err != nil || !info.IsDir() {
		return nil, "", fmt.Errorf("backend root is not a valid directory: %s", absRoot)
	}
	log.Printf("Workspace root: %s", absRoot)

	fsb, err := backend.NewFilesystemBackend(absRoot)
	if err != nil {
		return nil, "", err
	}
	var disk backend.Backend = fsb
	if cfg.Backend.Kind == "sandbox" {
		sbCfg := cfg.SandboxConfig()
		sbCfg.Root = absRoot
		sb := backend.NewSandboxBackend(fsb, sandbox.NewRunner(ctx, sbCfg), sbCfg.Workdir)
		env.closers = append(env.closers, sb)
		disk = sb
	}

	return func(st *state.AgentState) backend.Backend {
		return backend.NewCompositeBackend(disk, map[string]backend.Backend{
			largeResultsPrefix: backend.NewStateBackend(st),
		})
	}, absRoot, nil
}
