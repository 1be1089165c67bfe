// Package config loads the run configuration for the stepwise CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"
	"github.com/ChamsBouzaiene/stepwise/internal/sandbox"
)

// RunConfig holds everything needed to assemble an agent for one session.
type RunConfig struct {
	Provider        string `yaml:"provider"`
	Model           string `yaml:"model,omitempty"`
	SystemPrompt    string `yaml:"system_prompt,omitempty"`
	MaxSteps        int    `yaml:"max_steps"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
	ParallelTools   int    `yaml:"parallel_tools"`
	Streaming       bool   `yaml:"streaming"`

	Eviction      EvictionConfig      `yaml:"eviction"`
	Summarization SummarizationConfig `yaml:"summarization"`

	// InterruptOn lists the tools whose calls need approval.
	InterruptOn   map[string]bool `yaml:"interrupt_on,omitempty"`
	InterruptMode bool            `yaml:"interrupt_mode"`

	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Backend    BackendConfig    `yaml:"backend"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	Subagents  []SubagentConfig `yaml:"subagents,omitempty"`
	// Web enables the http_request tool.
	Web bool `yaml:"web"`
}

// EvictionConfig controls when large tool results move to the backend.
// Zero keeps the engine default; a negative limit disables eviction.
type EvictionConfig struct {
	TokenLimit int `yaml:"token_limit"`
}

// SummarizationConfig controls history summarization. A zero trigger uses
// the model's default window; a negative one disables summarization.
type SummarizationConfig struct {
	TriggerTokens int    `yaml:"trigger_tokens"`
	KeepMessages  int    `yaml:"keep_messages"`
	Model         string `yaml:"model,omitempty"`
}

type CheckpointConfig struct {
	Kind string `yaml:"kind"` // memory, file or sqlite
	Path string `yaml:"path,omitempty"`
}

type BackendConfig struct {
	Kind string `yaml:"kind"` // state, filesystem or sandbox
	Root string `yaml:"root,omitempty"`
}

type SandboxConfig struct {
	Mode    string        `yaml:"mode"` // host, docker or auto
	Image   string        `yaml:"image"`
	CPU     string        `yaml:"cpu"`
	Memory  string        `yaml:"memory"`
	Timeout time.Duration `yaml:"timeout"`
}

// SubagentConfig declares a named subagent available through the task tool.
type SubagentConfig struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	SystemPrompt string   `yaml:"system_prompt,omitempty"`
	Tools        []string `yaml:"tools,omitempty"`
	Model        string   `yaml:"model,omitempty"`
	MaxSteps     int      `yaml:"max_steps,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() RunConfig {
	sb := sandbox.DefaultConfig()
	return RunConfig{
		Provider:        "openai",
		MaxSteps:        engine.DefaultMaxSteps,
		MaxOutputTokens: 8192,
		ParallelTools:   4,
		Streaming:       true,
		Summarization:   SummarizationConfig{KeepMessages: engine.DefaultContextConfig().KeepMessages},
		InterruptOn:     map[string]bool{"execute": true},
		Checkpoint:      CheckpointConfig{Kind: "memory"},
		Backend:         BackendConfig{Kind: "state"},
		Sandbox: SandboxConfig{
			Mode:    string(sb.Mode),
			Image:   sb.DockerImage,
			CPU:     sb.CPU,
			Memory:  sb.Memory,
			Timeout: sb.CmdTimeout,
		},
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	return filepath.Join(dir, "stepwise", "config.yaml"), nil
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (RunConfig, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return RunConfig{}, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return RunConfig{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return RunConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// Save writes cfg to path with owner-only permissions.
func Save(path string, cfg RunConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *RunConfig) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	if v, ok := lookup("LLM_PROVIDER"); ok && v != "" {
		c.Provider = v
	}
	str("STEPWISE_PROVIDER", &c.Provider)
	str("STEPWISE_MODEL", &c.Model)
	str("STEPWISE_CHECKPOINT", &c.Checkpoint.Kind)
	str("STEPWISE_CHECKPOINT_PATH", &c.Checkpoint.Path)
	str("STEPWISE_BACKEND", &c.Backend.Kind)
	str("STEPWISE_ROOT", &c.Backend.Root)
	str("STEPWISE_SANDBOX_MODE", &c.Sandbox.Mode)
	str("STEPWISE_DOCKER_IMAGE", &c.Sandbox.Image)
	str("STEPWISE_DOCKER_CPU", &c.Sandbox.CPU)
	str("STEPWISE_DOCKER_MEMORY", &c.Sandbox.Memory)

	for key, dst := range map[string]*int{
		"STEPWISE_MAX_STEPS":      &c.MaxSteps,
		"STEPWISE_PARALLEL_TOOLS": &c.ParallelTools,
		"STEPWISE_EVICTION_LIMIT": &c.Eviction.TokenLimit,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	if v, ok := lookup("STEPWISE_CMD_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("STEPWISE_CMD_TIMEOUT: invalid duration %q", v)
		}
		c.Sandbox.Timeout = d
	}
	if v, ok := lookup("STEPWISE_INTERRUPT_ON"); ok {
		c.InterruptOn = map[string]bool{}
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				c.InterruptOn[name] = true
			}
		}
	}
	return nil
}

// Validate checks the enumerated fields.
func (c RunConfig) Validate() error {
	switch c.Checkpoint.Kind {
	case "", "memory", "file", "sqlite":
	default:
		return fmt.Errorf("checkpoint.kind: unknown kind %q (want memory, file or sqlite)", c.Checkpoint.Kind)
	}
	switch c.Backend.Kind {
	case "", "state", "filesystem", "sandbox":
	default:
		return fmt.Errorf("backend.kind: unknown kind %q (want state, filesystem or sandbox)", c.Backend.Kind)
	}
	if _, err := sandbox.ParseMode(c.Sandbox.Mode); err != nil {
		return fmt.Errorf("sandbox.mode: %w", err)
	}
	if c.MaxSteps < 0 || c.ParallelTools < 0 {
		return fmt.Errorf("max_steps and parallel_tools must not be negative")
	}
	seen := map[string]bool{}
	for i, s := range c.Subagents {
		if s.Name == "" {
			return fmt.Errorf("subagents[%d]: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("subagents[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// AgentConfig translates c into the engine configuration.
func (c RunConfig) AgentConfig() engine.AgentConfig {
	cfg := engine.DefaultAgentConfig()
	if c.Model != "" {
		cfg.Model = c.Model
	}
	cfg.SystemPrompt = c.SystemPrompt
	if c.MaxSteps > 0 {
		cfg.MaxSteps = c.MaxSteps
	}
	if c.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = c.MaxOutputTokens
	}
	if c.ParallelTools > 0 {
		cfg.ParallelTools = c.ParallelTools
	}
	cfg.Streaming = c.Streaming
	cfg.InterruptMode = c.InterruptMode

	cfg.Context = engine.ContextConfigForModel(cfg.Model)
	switch {
	case c.Eviction.TokenLimit < 0:
		cfg.Context.EvictionTokenLimit = 0
	case c.Eviction.TokenLimit > 0:
		cfg.Context.EvictionTokenLimit = c.Eviction.TokenLimit
	}
	switch {
	case c.Summarization.TriggerTokens < 0:
		cfg.Context.SummarizeTriggerTokens = 0
	case c.Summarization.TriggerTokens > 0:
		cfg.Context.SummarizeTriggerTokens = c.Summarization.TriggerTokens
	}
	if c.Summarization.KeepMessages > 0 {
		cfg.Context.KeepMessages = c.Summarization.KeepMessages
	}
	if c.Summarization.Model != "" {
		cfg.Context.SummaryModel = c.Summarization.Model
	}

	for name, on := range c.InterruptOn {
		if on {
			cfg.InterruptOn[name] = engine.RequireApproval()
		}
	}
	return cfg
}

// SandboxConfig translates the sandbox section, rooted at the backend root.
func (c RunConfig) SandboxConfig() sandbox.Config {
	mode, _ := sandbox.ParseMode(c.Sandbox.Mode)
	return sandbox.Config{
		Mode:        mode,
		Root:        c.Backend.Root,
		DockerImage: c.Sandbox.Image,
		Workdir:     sandbox.DefaultConfig().Workdir,
		CPU:         c.Sandbox.CPU,
		Memory:      c.Sandbox.Memory,
		CmdTimeout:  c.Sandbox.Timeout,
	}
}
