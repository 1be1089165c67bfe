package sandbox

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// Mode represents the sandbox execution mode.
type Mode string

const (
	// ModeDocker uses a Docker container for isolation.
	ModeDocker Mode = "docker"
	// ModeHost runs commands directly on the host (no isolation).
	ModeHost Mode = "host"
	// ModeAuto selects Docker if available, otherwise falls back to host.
	ModeAuto Mode = "auto"
)

const defaultCmdTimeout = 2 * time.Minute

// Config holds configuration for sandbox execution.
type Config struct {
	Mode        Mode
	Root        string        // Host workspace directory
	DockerImage string        // Image for the sandbox container
	Workdir     string        // Mount point of Root inside the container
	CPU         string        // CPU limit (e.g., "2")
	Memory      string        // Memory limit (e.g., "1g")
	CmdTimeout  time.Duration // Default command timeout (0 = use default)
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Mode:        ModeAuto,
		DockerImage: "alpine:latest",
		Workdir:     "/workspace",
		CPU:         "2",
		Memory:      "1g",
		CmdTimeout:  defaultCmdTimeout,
	}
}

// ParseMode converts a textual mode into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDocker:
		return ModeDocker, nil
	case ModeHost:
		return ModeHost, nil
	case ModeAuto, "":
		return ModeAuto, nil
	}
	return "", fmt.Errorf("unknown sandbox mode %q", s)
}

func (c Config) timeout() time.Duration {
	if c.CmdTimeout > 0 {
		return c.CmdTimeout
	}
	return defaultCmdTimeout
}

// NewRunner creates a runner for cfg.Root according to cfg.Mode:
//   - "docker": use Docker, falling back to host with a warning if unavailable
//   - "host": run on the host (no isolation)
//   - "auto": use Docker if the daemon answers, otherwise host
func NewRunner(ctx context.Context, cfg Config) Runner {
	if cfg.Root == "" {
		cfg.Root = "."
	}

	switch cfg.Mode {
	case ModeHost:
		log.Printf("WARNING: Using host executor (no sandboxing). This is insecure and should only be used for development.")
		return NewHostRunner(cfg)

	case ModeDocker, ModeAuto:
		dockerRunner, err := NewDockerRunner(ctx, cfg)
		if err == nil {
			return dockerRunner
		}
		if cfg.Mode == ModeDocker {
			log.Printf("WARNING: Docker mode requested but unavailable: %v. Falling back to host executor.", err)
		} else {
			log.Printf("WARNING: Docker not available (%v). Using host executor (no sandboxing).", err)
		}
		return NewHostRunner(cfg)

	default:
		log.Printf("WARNING: Unknown sandbox mode %q, defaulting to host executor.", cfg.Mode)
		return NewHostRunner(cfg)
	}
}
