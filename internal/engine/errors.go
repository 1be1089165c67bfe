package engine

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RetryClass indicates whether an error should be retried.
type RetryClass string

const (
	RetryClassRetryable    RetryClass = "retryable"     // Definitely retry
	RetryClassMaybe        RetryClass = "maybe"         // Retry with caution (limited attempts)
	RetryClassNonRetryable RetryClass = "non_retryable" // Never retry
)

// ErrCheckpointNotFound is returned by Checkpointer.Load for unknown threads.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// EngineError wraps errors with classification metadata.
type EngineError struct {
	Err         error
	Class       RetryClass
	HTTPStatus  int
	RetryAfter  string // Retry-After header value if present
	IsRateLimit bool
	IsAuth      bool
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("engine error: %s", e.Class)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// errorRule maps message fragments onto a retry class. Rules are checked in
// order; the first hit wins.
type errorRule struct {
	class     RetryClass
	fragments []string
}

var llmErrorRules = []errorRule{
	{RetryClassNonRetryable, []string{"401", "403", "unauthorized", "forbidden", "invalid api key", "authentication failed"}},
	{RetryClassNonRetryable, []string{"402", "quota", "billing", "payment required"}},
	{RetryClassNonRetryable, []string{"content filter", "safety", "guardrail", "policy violation"}},
	{RetryClassRetryable, []string{"429", "rate limit", "too many requests", "overloaded"}},
	{RetryClassRetryable, []string{"500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable", "gateway timeout"}},
	{RetryClassMaybe, []string{"context deadline exceeded", "deadline exceeded"}},
	{RetryClassRetryable, []string{"timeout", "connection reset", "connection refused", "no such host", "eof", "temporary failure"}},
	{RetryClassMaybe, []string{"context length", "token limit", "maximum context length"}},
	{RetryClassNonRetryable, []string{"400", "bad request", "invalid request", "malformed"}},
}

var toolErrorRules = []errorRule{
	{RetryClassNonRetryable, []string{"file_not_found", "no such file", "invalid_path", "permission", "not found", "validation failed"}},
	{RetryClassRetryable, []string{"timeout", "connection reset", "connection refused", "temporary", "resource temporarily unavailable"}},
	{RetryClassRetryable, []string{"500", "502", "503", "504", "service unavailable"}},
}

func classify(rules []errorRule, err error) RetryClass {
	msg := strings.ToLower(err.Error())
	for _, r := range rules {
		for _, f := range r.fragments {
			if strings.Contains(msg, f) {
				return r.class
			}
		}
	}
	return RetryClassNonRetryable
}

// ClassifyLLMError classifies an error from an LLM provider call.
func ClassifyLLMError(err error) RetryClass {
	if err == nil {
		return RetryClassNonRetryable
	}
	if errors.Is(err, errCanceled) {
		return RetryClassNonRetryable
	}
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Class
	}
	return classify(llmErrorRules, err)
}

// ClassifyToolError classifies an error from a tool execution. Tools not
// marked retryable never retry.
func ClassifyToolError(err error, toolRetryable bool) RetryClass {
	if err == nil || !toolRetryable {
		return RetryClassNonRetryable
	}
	var ve *ToolValidationError
	if errors.As(err, &ve) {
		return RetryClassNonRetryable
	}
	return classify(toolErrorRules, err)
}

// ExtractRetryAfter extracts the Retry-After value carried by err.
// Returns 0 if not found or invalid.
func ExtractRetryAfter(err error) time.Duration {
	var engineErr *EngineError
	if !errors.As(err, &engineErr) || engineErr.RetryAfter == "" {
		return 0
	}
	var seconds int
	if _, err := fmt.Sscanf(engineErr.RetryAfter, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(engineErr.RetryAfter); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// WrapLLMError wraps an LLM provider error with classification metadata.
// A known HTTP status overrides message-based classification.
func WrapLLMError(err error, httpStatus int, retryAfter string) error {
	if err == nil {
		return nil
	}
	class := ClassifyLLMError(err)
	switch {
	case httpStatus == http.StatusTooManyRequests || httpStatus >= 500:
		class = RetryClassRetryable
	case httpStatus >= 400 && httpStatus != http.StatusRequestTimeout:
		class = RetryClassNonRetryable
	}
	return &EngineError{
		Err:         err,
		Class:       class,
		HTTPStatus:  httpStatus,
		RetryAfter:  retryAfter,
		IsRateLimit: httpStatus == http.StatusTooManyRequests,
		IsAuth:      httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden,
	}
}

// RetryExhaustedError indicates that all retry attempts have been exhausted.
type RetryExhaustedError struct {
	Err         error
	Attempts    int
	MaxAttempts int
	IsGuarded   bool // a "maybe" class error with a tighter cap
}

func (e *RetryExhaustedError) Error() string {
	if e.IsGuarded {
		return fmt.Sprintf("guarded retries exhausted after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// IsRetryExhausted checks if an error is a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var retryExhausted *RetryExhaustedError
	return errors.As(err, &retryExhausted)
}

// ToolValidationError indicates that tool arguments failed JSON schema validation.
type ToolValidationError struct {
	ToolName string
	Errors   []string
}

func (e *ToolValidationError) Error() string {
	return fmt.Sprintf("tool %s validation failed: %s", e.ToolName, strings.Join(e.Errors, "; "))
}

// EngineContextError wraps errors with the thread, step and operation in
// which they happened.
type EngineContextError struct {
	Err       error
	ThreadID  string
	Step      int
	ToolName  string
	Operation string // "llm_call", "tool_execution", "summarization", "checkpoint_save", ...
}

func (e *EngineContextError) Error() string {
	if e.ToolName != "" {
		return fmt.Sprintf("[thread=%s step=%d op=%s tool=%s] %v",
			e.ThreadID, e.Step, e.Operation, e.ToolName, e.Err)
	}
	return fmt.Sprintf("[thread=%s step=%d op=%s] %v",
		e.ThreadID, e.Step, e.Operation, e.Err)
}

func (e *EngineContextError) Unwrap() error {
	return e.Err
}

// errCanceled marks cancellation observed at a suspension point.
var errCanceled = errors.New("execution cancelled")

// IsCanceled reports whether err came from run cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, errCanceled)
}

func canceled(cause error) error {
	return fmt.Errorf("%w: %v", errCanceled, cause)
}
