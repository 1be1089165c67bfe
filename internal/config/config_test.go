package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks the variables Load consults so the host environment
// cannot leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"LLM_PROVIDER", "STEPWISE_PROVIDER", "STEPWISE_MODEL", "STEPWISE_CHECKPOINT",
		"STEPWISE_BACKEND", "STEPWISE_SANDBOX_MODE", "STEPWISE_DOCKER_IMAGE", "STEPWISE_MAX_STEPS",
		"STEPWISE_CMD_TIMEOUT", "STEPWISE_EVICTION_LIMIT", "STEPWISE_PARALLEL_TOOLS"} {
		t.Setenv(k, "")
	}
	t.Setenv("STEPWISE_INTERRUPT_ON", "")
	os.Unsetenv("STEPWISE_INTERRUPT_ON")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Checkpoint.Kind != "memory" || cfg.Backend.Kind != "state" || !cfg.InterruptOn["execute"] {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
provider: anthropic
model: claude-3-5-sonnet-latest
max_steps: 12
eviction:
  token_limit: 500
summarization:
  trigger_tokens: 9000
  keep_messages: 4
  model: claude-3-5-haiku-latest
interrupt_on:
  execute: false
  write_file: true
checkpoint:
  kind: sqlite
  path: /tmp/cp.db
backend:
  kind: filesystem
  root: /srv/work
sandbox:
  mode: docker
  timeout: 30s
subagents:
  - name: researcher
    description: reads code
    tools: [read_file, grep]
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != "anthropic" || cfg.MaxSteps != 12 || cfg.Checkpoint.Kind != "sqlite" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Sandbox.Timeout != 30*time.Second || cfg.Sandbox.Image != "alpine:latest" {
		t.Errorf("sandbox = %+v", cfg.Sandbox)
	}
	if len(cfg.Subagents) != 1 || cfg.Subagents[0].Tools[1] != "grep" {
		t.Errorf("subagents = %+v", cfg.Subagents)
	}

	ac := cfg.AgentConfig()
	if ac.MaxSteps != 12 || ac.Context.EvictionTokenLimit != 500 || ac.Context.SummarizeTriggerTokens != 9000 {
		t.Errorf("agent config = %+v", ac)
	}
	if ac.Context.KeepMessages != 4 || ac.Context.SummaryModel != "claude-3-5-haiku-latest" {
		t.Errorf("context = %+v", ac.Context)
	}
	if _, ok := ac.InterruptOn["execute"]; ok {
		t.Error("execute disabled in the file should not be guarded")
	}
	if _, ok := ac.InterruptOn["write_file"]; !ok {
		t.Error("write_file should be guarded")
	}
	if sc := cfg.SandboxConfig(); sc.Root != "/srv/work" || sc.CmdTimeout != 30*time.Second {
		t.Errorf("sandbox config = %+v", sc)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"LLM_PROVIDER":          "groq",
		"STEPWISE_MODEL":        "llama",
		"STEPWISE_MAX_STEPS":    "7",
		"STEPWISE_CMD_TIMEOUT":  "45s",
		"STEPWISE_INTERRUPT_ON": "execute, write_file",
	}
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != "groq" || cfg.Model != "llama" || cfg.MaxSteps != 7 || cfg.Sandbox.Timeout != 45*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.InterruptOn) != 2 || !cfg.InterruptOn["write_file"] {
		t.Errorf("interrupt_on = %v", cfg.InterruptOn)
	}

	bad := Default()
	err = bad.applyEnv(func(k string) (string, bool) {
		if k == "STEPWISE_MAX_STEPS" {
			return "many", true
		}
		return "", false
	})
	if err == nil || !strings.Contains(err.Error(), "STEPWISE_MAX_STEPS") {
		t.Errorf("err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RunConfig)
		wantErr string
	}{
		{name: "ok", mutate: func(*RunConfig) {}},
		{name: "checkpoint", mutate: func(c *RunConfig) { c.Checkpoint.Kind = "redis" }, wantErr: "checkpoint.kind"},
		{name: "backend", mutate: func(c *RunConfig) { c.Backend.Kind = "s3" }, wantErr: "backend.kind"},
		{name: "sandbox", mutate: func(c *RunConfig) { c.Sandbox.Mode = "vm" }, wantErr: "sandbox.mode"},
		{name: "unnamed subagent", mutate: func(c *RunConfig) { c.Subagents = []SubagentConfig{{}} }, wantErr: "name is required"},
		{name: "duplicate subagent", mutate: func(c *RunConfig) {
			c.Subagents = []SubagentConfig{{Name: "a"}, {Name: "a"}}
		}, wantErr: "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Model = "gpt-4o"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v", info.Mode().Perm())
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Model != "gpt-4o" {
		t.Errorf("model = %q", got.Model)
	}
}
