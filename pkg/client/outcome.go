package client

import "context"

// OutcomeKind tags the result of a single request attempt.
type OutcomeKind int

const (
	// OutcomeSuccess carries the raw response payload.
	OutcomeSuccess OutcomeKind = iota

	// OutcomeThrottled means the server answered 429 Too Many Requests.
	OutcomeThrottled

	// OutcomeFailure carries a non-retryable cause.
	OutcomeFailure
)

// String returns the metric label for the kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeThrottled:
		return "throttled"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one request attempt.
type Outcome struct {
	Kind    OutcomeKind
	Payload []byte
	Err     error
}

// Success wraps a response payload.
func Success(payload []byte) Outcome {
	return Outcome{Kind: OutcomeSuccess, Payload: payload}
}

// Throttled signals that the caller must slow down.
func Throttled() Outcome {
	return Outcome{Kind: OutcomeThrottled}
}

// Failure wraps a hard failure.
func Failure(err error) Outcome {
	return Outcome{Kind: OutcomeFailure, Err: err}
}

// Executor performs exactly one request per call and never retries.
type Executor interface {
	Execute(ctx context.Context, target string) Outcome
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, target string) Outcome

// Execute calls f(ctx, target).
func (f ExecutorFunc) Execute(ctx context.Context, target string) Outcome {
	return f(ctx, target)
}
