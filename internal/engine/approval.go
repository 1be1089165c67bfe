package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ToolPolicy decides whether a call to one tool needs human approval.
// When is consulted per call if set; otherwise Require applies.
type ToolPolicy struct {
	Require bool
	When    func(args map[string]any) bool
}

// RequireApproval is a policy that guards every call.
func RequireApproval() ToolPolicy { return ToolPolicy{Require: true} }

// RequireApprovalWhen guards the calls for which pred returns true.
func RequireApprovalWhen(pred func(args map[string]any) bool) ToolPolicy {
	return ToolPolicy{When: pred}
}

func (p ToolPolicy) requires(args map[string]any) bool {
	if p.When != nil {
		return p.When(args)
	}
	return p.Require
}

// ApprovalRequest is sent to the decision callback and on the event stream.
type ApprovalRequest struct {
	ApprovalID string         `json:"approval_id"`
	ToolCallID string         `json:"tool_call_id"`
	ToolName   string         `json:"tool_name"`
	Args       map[string]any `json:"args,omitempty"`
}

// DecisionType is the outcome of an approval request.
type DecisionType string

const (
	DecisionApprove DecisionType = "approve"
	DecisionDeny    DecisionType = "deny"
	// DecisionEdit approves the call with replaced arguments.
	DecisionEdit DecisionType = "edit"
)

// Decision answers an ApprovalRequest.
type Decision struct {
	Type    DecisionType   `json:"type"`
	Message string         `json:"message,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
}

// Approve returns an approving decision.
func Approve() Decision { return Decision{Type: DecisionApprove} }

// Deny returns a denying decision. message is shown to the model.
func Deny(message string) Decision { return Decision{Type: DecisionDeny, Message: message} }

// Edit approves the call with args replacing the model's arguments.
func Edit(args map[string]any) Decision { return Decision{Type: DecisionEdit, Args: args} }

func (d Decision) approved() bool { return d.Type == DecisionApprove || d.Type == DecisionEdit }

func (d Decision) argsFor(orig map[string]any) map[string]any {
	if d.Type == DecisionEdit && d.Args != nil {
		return d.Args
	}
	return orig
}

// ApprovalFunc resolves an approval request. It may block until a human
// answers; it must return when ctx is done.
type ApprovalFunc func(ctx context.Context, req ApprovalRequest) (Decision, error)

// PendingInterrupt is a guarded call parked in a checkpoint until a
// decision arrives through Agent.Resume.
type PendingInterrupt struct {
	ApprovalID string         `json:"approval_id"`
	ToolCallID string         `json:"tool_call_id"`
	ToolName   string         `json:"tool_name"`
	Args       map[string]any `json:"args,omitempty"`
	Step       int            `json:"step"`
}

type gateOutcome int

const (
	gateExecute gateOutcome = iota
	gateDenied
	gateInterrupt
)

type gateResult struct {
	outcome gateOutcome
	args    map[string]any
	message string // denial text for gateDenied
	request ApprovalRequest
}

func denialMessage(call ToolCall, reason string) string {
	msg := fmt.Sprintf("Tool call %s (id %s) was denied and did not run.", call.Name, call.ID)
	if reason != "" {
		msg += " Reason: " + reason
	}
	return msg
}

const noHandlerReason = "approval is required but no approval handler is configured"

// gate runs the approval state machine for one call. preset, when non-nil,
// is a decision captured before the run (a resumed interrupt) and is used
// instead of asking the callback. approvalID reuses the id of that earlier
// request.
func (r *run) gate(ctx context.Context, call ToolCall, preset *Decision, approvalID string) (gateResult, error) {
	policy, guarded := r.a.cfg.InterruptOn[call.Name]
	if preset == nil && (!guarded || !policy.requires(call.Args)) {
		return gateResult{outcome: gateExecute, args: call.Args}, nil
	}

	if approvalID == "" {
		approvalID = uuid.NewString()
	}
	req := ApprovalRequest{
		ApprovalID: approvalID,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Args:       call.Args,
	}

	var decision Decision
	switch {
	case preset != nil:
		decision = *preset
	case r.a.approve != nil:
		r.emit(Event{Type: EventApprovalRequested, ToolCallID: call.ID, ToolName: call.Name, Approval: &req})
		d, err := r.a.approve(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return gateResult{}, canceled(ctx.Err())
			}
			r.a.logger.Printf("approval handler failed for %s: %v", call.Name, err)
			d = Deny("approval handler failed: " + err.Error())
		}
		decision = d
	case r.a.cfg.InterruptMode && r.a.checkpointer != nil:
		r.emit(Event{Type: EventApprovalRequested, ToolCallID: call.ID, ToolName: call.Name, Approval: &req})
		return gateResult{outcome: gateInterrupt, request: req}, nil
	default:
		decision = Deny(noHandlerReason)
	}

	r.emit(Event{Type: EventApprovalResponse, ToolCallID: call.ID, ToolName: call.Name, Approval: &req, Decision: &decision})
	if !decision.approved() {
		return gateResult{outcome: gateDenied, message: denialMessage(call, decision.Message), request: req}, nil
	}
	return gateResult{outcome: gateExecute, args: decision.argsFor(call.Args), request: req}, nil
}
