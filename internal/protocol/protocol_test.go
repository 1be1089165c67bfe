package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    CommandType
		wantErr string
	}{
		{name: "start", line: `{"type":"start_session"}`, want: CommandStartSession},
		{name: "message", line: `{"type":"user_message","session_id":"s","message":"hi"}`, want: CommandUserMessage},
		{name: "message without session", line: `{"type":"user_message","message":"hi"}`, wantErr: "requires session_id"},
		{name: "empty message", line: `{"type":"user_message","session_id":"s"}`, wantErr: "requires message"},
		{name: "approve", line: `{"type":"approval_response","session_id":"s","approval_id":"a","decision":"approve"}`, want: CommandApprovalResponse},
		{name: "edit without args", line: `{"type":"approval_response","session_id":"s","approval_id":"a","decision":"edit"}`, wantErr: "edit requires args"},
		{name: "bad decision", line: `{"type":"approval_response","session_id":"s","approval_id":"a","decision":"maybe"}`, wantErr: "unknown decision"},
		{name: "cancel", line: `{"type":"cancel","session_id":"s"}`, want: CommandCancel},
		{name: "unknown", line: `{"type":"reboot"}`, wantErr: "unknown command type"},
		{name: "garbage", line: `{`, wantErr: "decode command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := DecodeCommand([]byte(tt.line))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if cmd.GetType() != tt.want {
				t.Errorf("type = %s, want %s", cmd.GetType(), tt.want)
			}
		})
	}
}

func TestApprovalResponseDecision(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"type":"approval_response","session_id":"s","approval_id":"a","decision":"edit","args":{"command":"ls"}}`))
	if err != nil {
		t.Fatal(err)
	}
	d := cmd.(ApprovalResponseCommand).EngineDecision()
	if d.Type != engine.DecisionEdit || d.Args["command"] != "ls" {
		t.Errorf("decision = %+v", d)
	}
}

func TestEncoderFlattensEvent(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	ev := engine.Event{Type: engine.EventToolResult, Step: 2, ToolName: "ls", Result: "/a"}
	if err := enc.Encode(Message{SessionID: "s1", Event: ev}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Encode(SessionStarted("s1", true)); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatal(err)
	}
	if got["session_id"] != "s1" || got["type"] != "tool-result" || got["tool_name"] != "ls" || got["step"] != float64(2) {
		t.Errorf("message = %v", got)
	}
	if !strings.Contains(lines[1], `"reason":"resumed"`) {
		t.Errorf("session started = %s", lines[1])
	}
}

func TestDecoderSkipsBlankLinesAndRecovers(t *testing.T) {
	in := "\n{\"type\":\"start_session\"}\nnot json\n{\"type\":\"cancel\",\"session_id\":\"s\"}\n"
	dec := NewDecoder(strings.NewReader(in))

	cmd, err := dec.Next()
	if err != nil || cmd.GetType() != CommandStartSession {
		t.Fatalf("first = %v, %v", cmd, err)
	}
	if _, err := dec.Next(); err == nil {
		t.Fatal("expected a decode error for the malformed line")
	}
	cmd, err = dec.Next()
	if err != nil || cmd.GetType() != CommandCancel {
		t.Fatalf("third = %v, %v", cmd, err)
	}
	if _, err := dec.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("end = %v, want EOF", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("pipe broken") }

func TestDecoderReadFailure(t *testing.T) {
	_, err := NewDecoder(failingReader{}).Next()
	if !errors.Is(err, ErrInput) {
		t.Errorf("err = %v, want ErrInput", err)
	}
}
