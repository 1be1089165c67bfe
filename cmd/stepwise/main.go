// Command stepwise runs a tool-using agent interactively or over the NDJSON
// stdio protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/ChamsBouzaiene/stepwise/internal/checkpoint"
	"github.com/ChamsBouzaiene/stepwise/internal/config"
	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fs := flag.NewFlagSet("stepwise", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to the YAML config (default: user config dir)")
	root := fs.String("root", "", "Workspace root for the filesystem and sandbox backends")
	stdioMode := fs.Bool("stdio", false, "Serve the agent over the NDJSON stdio protocol")
	thread := fs.String("thread", "", "Continue this checkpointed thread")
	resume := fs.Bool("resume", false, "Resume the thread's parked approval before reading input")
	list := fs.Bool("list", false, "List checkpointed threads and exit")
	_ = fs.Parse(os.Args[1:])

	if *configPath == "" {
		if p, err := config.DefaultPath(); err == nil {
			*configPath = p
		}
	}

	var err error
	switch {
	case *stdioMode:
		// Logs go to stderr so they don't corrupt the protocol.
		log.SetOutput(os.Stderr)
		err = runStdIO(ctx, envOptions{ConfigPath: *configPath, Root: *root})
	case *list:
		err = listThreads(ctx, envOptions{ConfigPath: *configPath, Root: *root})
	default:
		err = runREPL(ctx, replOptions{
			env:    envOptions{ConfigPath: *configPath, Root: *root},
			thread: *thread,
			resume: *resume,
		})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

func listThreads(ctx context.Context, opts envOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	saver, closer, err := checkpoint.Open(ctx, cfg.Checkpoint.Kind, cfg.Checkpoint.Path)
	if err != nil {
		return err
	}
	defer closer.Close()

	ids, err := saver.List(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		cp, err := saver.Load(ctx, id)
		if err != nil {
			fmt.Printf("%s\t(unreadable: %v)\n", id, err)
			continue
		}
		status := "idle"
		if cp.Pending != nil {
			status = "awaiting approval for " + cp.Pending.ToolName
		}
		fmt.Printf("%s\tstep=%d\tmessages=%d\t%s\n", id, cp.Step, len(cp.Messages), status)
	}
	return nil
}

// reasonNote explains a non-completed run to the user.
func reasonNote(reason string) string {
	switch reason {
	case engine.DoneMaxSteps:
		return "stopped: step limit reached"
	case engine.DoneInterrupted:
		return "paused: waiting for approval (rerun with -resume)"
	case engine.DoneStopped:
		return "stopped by stop condition"
	}
	return ""
}
