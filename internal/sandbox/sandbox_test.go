//go:build !windows

package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestHostRunner(t *testing.T) {
	dir := t.TempDir()
	r := NewHostRunner(Config{Root: dir, CmdTimeout: 5 * time.Second})

	tests := []struct {
		name     string
		command  string
		wantOut  string
		wantErr  string
		wantCode int
	}{
		{name: "stdout", command: "echo hello", wantOut: "hello"},
		{name: "stderr", command: "echo oops 1>&2", wantErr: "oops"},
		{name: "exit code", command: "exit 3", wantCode: 3},
		{name: "runs in root", command: "touch marker && ls", wantOut: "marker"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Run(context.Background(), tt.command)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if !strings.Contains(res.Stdout, tt.wantOut) {
				t.Errorf("stdout = %q, want %q", res.Stdout, tt.wantOut)
			}
			if !strings.Contains(res.Stderr, tt.wantErr) {
				t.Errorf("stderr = %q, want %q", res.Stderr, tt.wantErr)
			}
			if res.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", res.Code, tt.wantCode)
			}
		})
	}
}

func TestHostRunnerTimeout(t *testing.T) {
	r := NewHostRunner(Config{Root: t.TempDir(), CmdTimeout: 100 * time.Millisecond})
	res, err := r.Run(context.Background(), "sleep 5")
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !res.TimedOut {
		t.Errorf("expected TimedOut to be set")
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"docker": ModeDocker, "HOST": ModeHost, "": ModeAuto, " auto ": ModeAuto} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseMode("vm"); err == nil {
		t.Errorf("expected error for unknown mode")
	}
}

func TestParseCPU(t *testing.T) {
	if got := parseCPU("1.5"); got != 1_500_000_000 {
		t.Errorf("parseCPU(1.5) = %d", got)
	}
	if got := parseCPU("bogus"); got != 2_000_000_000 {
		t.Errorf("parseCPU(bogus) = %d", got)
	}
}
