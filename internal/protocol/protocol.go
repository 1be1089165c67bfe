// Package protocol defines the NDJSON messages exchanged with a stepwise
// process in --stdio mode: commands on stdin, events on stdout.
package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

// CommandType enumerates all supported client -> engine commands.
type CommandType string

const (
	CommandStartSession     CommandType = "start_session"
	CommandUserMessage      CommandType = "user_message"
	CommandApprovalResponse CommandType = "approval_response"
	CommandCancel           CommandType = "cancel"
)

// Command is a marker interface implemented by all protocol commands.
type Command interface {
	GetType() CommandType
}

// StartSessionCommand opens a session. A known session id resumes the
// checkpointed thread of that name.
type StartSessionCommand struct {
	Type      CommandType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
}

// GetType implements Command.
func (c StartSessionCommand) GetType() CommandType { return CommandStartSession }

// UserMessageCommand sends a user instruction to the engine.
type UserMessageCommand struct {
	Type      CommandType `json:"type"`
	SessionID string      `json:"session_id"`
	Message   string      `json:"message"`
	RequestID string      `json:"request_id,omitempty"`
}

// GetType implements Command.
func (c UserMessageCommand) GetType() CommandType { return CommandUserMessage }

// ApprovalResponseCommand answers an approval-requested event.
type ApprovalResponseCommand struct {
	Type       CommandType         `json:"type"`
	SessionID  string              `json:"session_id"`
	ApprovalID string              `json:"approval_id"`
	Decision   engine.DecisionType `json:"decision"`
	Message    string              `json:"message,omitempty"`
	Args       map[string]any      `json:"args,omitempty"`
}

// GetType implements Command.
func (c ApprovalResponseCommand) GetType() CommandType { return CommandApprovalResponse }

// EngineDecision converts the response into an engine decision.
func (c ApprovalResponseCommand) EngineDecision() engine.Decision {
	return engine.Decision{Type: c.Decision, Message: c.Message, Args: c.Args}
}

// CancelCommand aborts the session's running request.
type CancelCommand struct {
	Type      CommandType `json:"type"`
	SessionID string      `json:"session_id"`
}

// GetType implements Command.
func (c CancelCommand) GetType() CommandType { return CommandCancel }

type rawCommand struct {
	Type CommandType `json:"type"`
}

// DecodeCommand converts raw JSON into a strongly typed command.
func DecodeCommand(data []byte) (Command, error) {
	var base rawCommand
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}

	switch base.Type {
	case CommandStartSession:
		var cmd StartSessionCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode start_session: %w", err)
		}
		return cmd, nil
	case CommandUserMessage:
		var cmd UserMessageCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode user_message: %w", err)
		}
		if cmd.SessionID == "" {
			return nil, errors.New("user_message requires session_id")
		}
		if cmd.Message == "" {
			return nil, errors.New("user_message requires message")
		}
		return cmd, nil
	case CommandApprovalResponse:
		var cmd ApprovalResponseCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode approval_response: %w", err)
		}
		if cmd.SessionID == "" || cmd.ApprovalID == "" {
			return nil, errors.New("approval_response requires session_id and approval_id")
		}
		switch cmd.Decision {
		case engine.DecisionApprove, engine.DecisionDeny, engine.DecisionEdit:
		default:
			return nil, fmt.Errorf("approval_response: unknown decision %q", cmd.Decision)
		}
		if cmd.Decision == engine.DecisionEdit && cmd.Args == nil {
			return nil, errors.New("approval_response: edit requires args")
		}
		return cmd, nil
	case CommandCancel:
		var cmd CancelCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode cancel: %w", err)
		}
		if cmd.SessionID == "" {
			return nil, errors.New("cancel requires session_id")
		}
		return cmd, nil
	default:
		return nil, fmt.Errorf("unknown command type: %s", base.Type)
	}
}

// NewSessionID generates a new opaque session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Session-level event types. Everything else on the wire is an engine event.
const (
	EventSessionStarted engine.EventType = "session-started"
	EventCancelled      engine.EventType = "cancelled"
	EventProtocolError  engine.EventType = "protocol-error"
)

// Message is one outgoing NDJSON line: an engine event tagged with the
// session it belongs to.
type Message struct {
	SessionID string `json:"session_id,omitempty"`
	engine.Event
}

// SessionStarted announces the id the client must use for later commands.
func SessionStarted(sessionID string, resumed bool) Message {
	m := Message{SessionID: sessionID, Event: engine.Event{Type: EventSessionStarted, ThreadID: sessionID}}
	if resumed {
		m.Reason = "resumed"
	}
	return m
}

// Cancelled reports that a cancel command took effect.
func Cancelled(sessionID, reason string) Message {
	return Message{SessionID: sessionID, Event: engine.Event{Type: EventCancelled, Reason: reason}}
}

// ProtocolError reports a command that could not be decoded or routed.
func ProtocolError(sessionID string, err error) Message {
	return Message{SessionID: sessionID, Event: engine.Event{Type: EventProtocolError, Error: err.Error()}}
}

// Encoder writes messages as NDJSON. It is safe for concurrent use.
type Encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// Encode writes m followed by a newline.
func (e *Encoder) Encode(m Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(m)
}

// ErrInput marks a failure of the underlying reader, after which the
// decoder cannot continue.
var ErrInput = errors.New("read commands")

// maxLineBytes bounds one incoming command line.
const maxLineBytes = 4 << 20

// Decoder reads NDJSON commands.
type Decoder struct {
	sc *bufio.Scanner
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Decoder{sc: sc}
}

// Next returns the next command. Blank lines are skipped. It returns io.EOF
// at the end of input; a malformed line yields a decode error and the
// decoder stays usable.
func (d *Decoder) Next() (Command, error) {
	for d.sc.Scan() {
		line := d.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		return DecodeCommand(line)
	}
	if err := d.sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInput, err)
	}
	return nil, io.EOF
}
