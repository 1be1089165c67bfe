package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

type replOptions struct {
	env    envOptions
	thread string
	resume bool
}

// console serializes prompts on one input stream. The REPL loop is blocked
// draining a run while an approval prompt reads, so they never compete.
type console struct {
	in  *bufio.Scanner
	out io.Writer
}

func (c *console) ask(prompt string) (string, bool) {
	fmt.Fprint(c.out, prompt)
	if !c.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.in.Text()), true
}

// approve asks the user about one guarded call: y approves, n denies with
// an optional reason, e replaces the arguments with a JSON object.
func (c *console) approve(ctx context.Context, req engine.ApprovalRequest) (engine.Decision, error) {
	args, _ := json.Marshal(req.Args)
	fmt.Fprintf(c.out, "\napproval needed: %s %s\n", req.ToolName, args)
	for {
		if err := ctx.Err(); err != nil {
			return engine.Decision{}, err
		}
		answer, ok := c.ask("approve? [y]es / [n]o / [e]dit: ")
		if !ok {
			return engine.Deny("no answer: input closed"), nil
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return engine.Approve(), nil
		case "n", "no":
			reason, _ := c.ask("reason (optional): ")
			return engine.Deny(reason), nil
		case "e", "edit":
			raw, ok := c.ask("new arguments (JSON): ")
			if !ok {
				return engine.Deny("no answer: input closed"), nil
			}
			var edited map[string]any
			if err := json.Unmarshal([]byte(raw), &edited); err != nil {
				fmt.Fprintf(c.out, "invalid JSON: %v\n", err)
				continue
			}
			return engine.Edit(edited), nil
		}
	}
}

func runREPL(ctx context.Context, opts replOptions) error {
	con := &console{in: bufio.NewScanner(os.Stdin), out: os.Stdout}
	con.in.Buffer(make([]byte, 0, 64*1024), 1<<20)

	logger := log.New(os.Stderr, "", log.LstdFlags)
	opts.env.Approve = con.approve
	opts.env.Logger = logger
	opts.env.Hooks = append(engine.DefaultHooks(logger), engine.NewResponseHook())

	env, err := prepareRuntimeEnv(ctx, opts.env)
	if err != nil {
		return err
	}
	defer env.Close()

	thread := opts.thread
	if opts.resume {
		if thread == "" {
			return errors.New("-resume needs -thread")
		}
		thread = drain(env.Agent.Resume(ctx, thread, nil), thread)
	}

	log.Printf("stepwise ready (model: %s, backend: %s, checkpoints: %s)",
		env.Config.Model, env.Config.Backend.Kind, env.Config.Checkpoint.Kind)
	for {
		line, ok := con.ask("you> ")
		if !ok {
			return nil
		}
		if line == "" {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		thread = drain(env.Agent.Stream(ctx, engine.RunInput{ThreadID: thread, Prompt: line}), thread)
		fmt.Println()
	}
}

// drain consumes a run's events and returns the thread id to continue with.
func drain(events <-chan engine.Event, thread string) string {
	for ev := range events {
		switch ev.Type {
		case engine.EventDone:
			if note := reasonNote(ev.Reason); note != "" {
				fmt.Printf("[%s]\n", note)
			}
			thread = ev.ThreadID
		case engine.EventError:
			fmt.Println("error: " + ev.Error)
			if ev.ThreadID != "" {
				thread = ev.ThreadID
			}
		}
	}
	return thread
}
