package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/ChamsBouzaiene/stepwise/internal/config"
	"github.com/ChamsBouzaiene/stepwise/internal/engine"
	"github.com/ChamsBouzaiene/stepwise/internal/protocol"
)

func runStdIO(ctx context.Context, opts envOptions) error {
	log.Println("Starting stdio bridge (--stdio)")
	srv := newStdIOServer(protocol.NewEncoder(os.Stdout))

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	// With interrupt mode, guarded calls park in the checkpoint and a later
	// approval_response resumes the thread. Otherwise the run waits on the
	// session for the answer.
	if !cfg.InterruptMode {
		opts.Approve = srv.approve
	}
	logger := log.New(os.Stderr, "", log.LstdFlags)
	opts.Logger = logger
	opts.Hooks = engine.DefaultHooks(logger)
	env, err := prepareRuntimeEnv(ctx, opts)
	if err != nil {
		return err
	}
	defer env.Close()
	srv.env = env

	return srv.serve(ctx, protocol.NewDecoder(os.Stdin))
}

type stdioServer struct {
	enc      *protocol.Encoder
	env      *runtimeEnv
	mu       sync.Mutex
	sessions map[string]*session
	wg       sync.WaitGroup
	// eof is closed when stdin ends; runs still waiting for an approval
	// are denied instead of blocking shutdown.
	eof chan struct{}
}

type session struct {
	id string

	mu      sync.Mutex
	cancel  context.CancelFunc // non-nil while a run is active
	waiting map[string]chan engine.Decision
}

type sessionKey struct{}

func newStdIOServer(enc *protocol.Encoder) *stdioServer {
	return &stdioServer{enc: enc, sessions: map[string]*session{}, eof: make(chan struct{})}
}

func (s *stdioServer) send(m protocol.Message) {
	if err := s.enc.Encode(m); err != nil {
		log.Printf("stdio: write failed: %v", err)
	}
}

func (s *stdioServer) serve(ctx context.Context, dec *protocol.Decoder) error {
	defer s.wg.Wait()
	for {
		if ctx.Err() != nil {
			s.cancelAll()
			return nil
		}
		cmd, err := dec.Next()
		if errors.Is(err, io.EOF) {
			close(s.eof)
			return nil
		}
		if errors.Is(err, protocol.ErrInput) {
			close(s.eof)
			s.cancelAll()
			return err
		}
		if err != nil {
			s.send(protocol.ProtocolError("", err))
			continue
		}
		if err := s.handle(ctx, cmd); err != nil {
			log.Printf("stdio command error: %v", err)
		}
	}
}

func (s *stdioServer) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.stop()
	}
}

func (s *stdioServer) session(id string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return sess, nil
}

func (s *stdioServer) handle(ctx context.Context, cmd protocol.Command) error {
	switch c := cmd.(type) {
	case protocol.StartSessionCommand:
		return s.startSession(ctx, c)
	case protocol.UserMessageCommand:
		sess, err := s.session(c.SessionID)
		if err != nil {
			s.send(protocol.ProtocolError(c.SessionID, err))
			return err
		}
		return s.launch(ctx, sess, func(runCtx context.Context) <-chan engine.Event {
			return s.env.Agent.Stream(runCtx, engine.RunInput{ThreadID: sess.id, Prompt: c.Message})
		})
	case protocol.ApprovalResponseCommand:
		return s.answer(ctx, c)
	case protocol.CancelCommand:
		sess, err := s.session(c.SessionID)
		if err != nil {
			s.send(protocol.ProtocolError(c.SessionID, err))
			return nil
		}
		if sess.stop() {
			s.send(protocol.Cancelled(c.SessionID, "cancelled by user request"))
		}
		return nil
	default:
		err := fmt.Errorf("unsupported command type %T", cmd)
		s.send(protocol.ProtocolError("", err))
		return err
	}
}

func (s *stdioServer) startSession(ctx context.Context, c protocol.StartSessionCommand) error {
	id := c.SessionID
	if id == "" {
		id = protocol.NewSessionID()
	}
	s.mu.Lock()
	if _, exists := s.sessions[id]; exists {
		s.mu.Unlock()
		err := fmt.Errorf("session already exists: %s", id)
		s.send(protocol.ProtocolError(id, err))
		return err
	}
	s.sessions[id] = &session{id: id, waiting: map[string]chan engine.Decision{}}
	s.mu.Unlock()

	resumed, err := s.env.Checkpointer.Exists(ctx, id)
	if err != nil {
		log.Printf("checkpoint lookup for %s: %v", id, err)
	}
	s.send(protocol.SessionStarted(id, resumed))
	return nil
}

// launch runs start on its own goroutine and forwards the events. One run
// per session at a time.
func (s *stdioServer) launch(ctx context.Context, sess *session, start func(context.Context) <-chan engine.Event) error {
	sess.mu.Lock()
	if sess.cancel != nil {
		sess.mu.Unlock()
		err := fmt.Errorf("session %s already has a running request", sess.id)
		s.send(protocol.ProtocolError(sess.id, err))
		return err
	}
	runCtx, cancel := context.WithCancel(context.WithValue(ctx, sessionKey{}, sess))
	sess.cancel = cancel
	sess.mu.Unlock()

	events := start(runCtx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			sess.mu.Lock()
			sess.cancel = nil
			sess.mu.Unlock()
			cancel()
		}()
		for ev := range events {
			s.send(protocol.Message{SessionID: sess.id, Event: ev})
		}
	}()
	return nil
}

// stop cancels the active run. It reports whether one was running.
func (sess *session) stop() bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.cancel == nil {
		return false
	}
	sess.cancel()
	return true
}

// approve blocks the run until the client answers req on the run's session.
func (s *stdioServer) approve(ctx context.Context, req engine.ApprovalRequest) (engine.Decision, error) {
	sess, ok := ctx.Value(sessionKey{}).(*session)
	if !ok {
		return engine.Deny("approval requested outside a session"), nil
	}
	ch := make(chan engine.Decision, 1)
	sess.mu.Lock()
	sess.waiting[req.ApprovalID] = ch
	sess.mu.Unlock()
	defer func() {
		sess.mu.Lock()
		delete(sess.waiting, req.ApprovalID)
		sess.mu.Unlock()
	}()

	select {
	case d := <-ch:
		return d, nil
	case <-s.eof:
		return engine.Deny("no answer: input closed"), nil
	case <-ctx.Done():
		return engine.Decision{}, ctx.Err()
	}
}

// answer delivers an approval to a waiting run, or resumes a thread whose
// approval was parked in its checkpoint.
func (s *stdioServer) answer(ctx context.Context, c protocol.ApprovalResponseCommand) error {
	sess, err := s.session(c.SessionID)
	if err != nil {
		s.send(protocol.ProtocolError(c.SessionID, err))
		return err
	}
	decision := c.EngineDecision()

	sess.mu.Lock()
	ch, live := sess.waiting[c.ApprovalID]
	sess.mu.Unlock()
	if live {
		select {
		case ch <- decision:
		default:
			s.send(protocol.ProtocolError(sess.id, fmt.Errorf("approval %s already answered", c.ApprovalID)))
		}
		return nil
	}

	cp, err := s.env.Checkpointer.Load(ctx, sess.id)
	if err != nil || cp.Pending == nil || cp.Pending.ApprovalID != c.ApprovalID {
		err := fmt.Errorf("no pending approval %s in session %s", c.ApprovalID, sess.id)
		s.send(protocol.ProtocolError(sess.id, err))
		return err
	}
	return s.launch(ctx, sess, func(runCtx context.Context) <-chan engine.Event {
		return s.env.Agent.Resume(runCtx, sess.id, &decision)
	})
}
