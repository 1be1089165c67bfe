package engine

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines retry behavior for a specific operation type.
type RetryPolicy struct {
	MaxRetries   int           // 0 = no retries
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool // add up to 20% random delay
}

// RetryConfig holds separate retry policies for LLM and tool calls.
type RetryConfig struct {
	LLMPolicy  RetryPolicy
	ToolPolicy RetryPolicy
}

// DefaultRetryConfig returns the retry policies used when none are configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		LLMPolicy: RetryPolicy{
			MaxRetries:   3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		ToolPolicy: RetryPolicy{
			MaxRetries:   2,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
	}
}

// RetryableFunc is a function that can be retried.
type RetryableFunc[T any] func(ctx context.Context) (T, error)

// maxGuardedRetries caps retries for RetryClassMaybe errors.
const maxGuardedRetries = 2

// RetryWithPolicy executes fn, retrying per policy while classifyError allows
// it. Returns the result on success, the error itself when it is not
// retryable, or a RetryExhaustedError.
func RetryWithPolicy[T any](
	ctx context.Context,
	policy RetryPolicy,
	fn RetryableFunc[T],
	classifyError func(error) RetryClass,
	onRetry func(attempt int, delay time.Duration, err error),
) (T, error) {
	var zero T

	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, canceled(ctx.Err())
		}

		class := classifyError(err)
		if class == RetryClassNonRetryable {
			return zero, err
		}
		if attempt >= policy.MaxRetries {
			if policy.MaxRetries == 0 {
				return zero, err
			}
			return zero, &RetryExhaustedError{Err: err, Attempts: attempt + 1, MaxAttempts: policy.MaxRetries + 1}
		}
		if class == RetryClassMaybe && attempt >= maxGuardedRetries {
			return zero, &RetryExhaustedError{Err: err, Attempts: attempt + 1, MaxAttempts: maxGuardedRetries + 1, IsGuarded: true}
		}

		delay := calculateDelay(policy, attempt, err)
		if onRetry != nil {
			onRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, canceled(ctx.Err())
		case <-timer.C:
		}
	}
}

// calculateDelay computes the delay for a retry attempt, honouring
// Retry-After when the provider sent one.
func calculateDelay(policy RetryPolicy, attempt int, err error) time.Duration {
	if retryAfter := ExtractRetryAfter(err); retryAfter > 0 {
		if policy.MaxDelay > 0 && retryAfter > policy.MaxDelay {
			return policy.MaxDelay
		}
		return retryAfter
	}

	mult := policy.Multiplier
	if mult <= 0 {
		mult = 1
	}
	delay := float64(policy.InitialDelay) * math.Pow(mult, float64(attempt))
	if policy.MaxDelay > 0 && delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}
	if policy.Jitter {
		delay += rand.Float64() * 0.2 * delay
	}
	return time.Duration(delay)
}

// RetryLLMCall wraps an LLM call with retry logic.
func RetryLLMCall(
	ctx context.Context,
	policy RetryPolicy,
	llm LLMClient,
	model string,
	messages []ChatMessage,
	toolSchemas []ToolSchema,
	opts ChatOptions,
	onRetry func(attempt int, delay time.Duration, err error),
) (LLMResponse, error) {
	return RetryWithPolicy(
		ctx,
		policy,
		func(ctx context.Context) (LLMResponse, error) {
			return llm.Chat(ctx, model, messages, toolSchemas, opts)
		},
		ClassifyLLMError,
		onRetry,
	)
}

// RetryToolCall runs tool with retry logic. Tools not marked Retryable run
// exactly once.
func RetryToolCall(
	ctx context.Context,
	policy RetryPolicy,
	tool Tool,
	args map[string]any,
	onRetry func(attempt int, delay time.Duration, err error),
) (string, error) {
	if !tool.Retryable {
		policy = RetryPolicy{}
	}
	return RetryWithPolicy(
		ctx,
		policy,
		func(ctx context.Context) (string, error) {
			return tool.Fn(ctx, args)
		},
		func(err error) RetryClass {
			return ClassifyToolError(err, tool.Retryable)
		},
		onRetry,
	)
}
