package types

import (
	"errors"
	"fmt"
)

// FailureKind classifies terminal execution failures.
type FailureKind string

const (
	FailureNone        FailureKind = ""
	FailureSimulation  FailureKind = "simulation-rejected"
	FailureReverted    FailureKind = "reverted"
	FailureNotIncluded FailureKind = "not-included"
	FailureTimeout     FailureKind = "timeout"
	FailureProvider    FailureKind = "provider-error"
)

// Retryable reports whether a failure of this kind may be retried by the
// caller. Everything except provider errors is terminal for the opportunity.
func (k FailureKind) Retryable() bool {
	return k == FailureProvider
}

// ErrAllProvidersFailed is returned when every provider in the pool failed
// for a single operation. The caller may retry in place; the pool keeps
// running health checks in the background.
var ErrAllProvidersFailed = errors.New("all providers failed")

// ErrCircuitOpen is returned by admission while the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// ExecutionError wraps an execution failure with its classification.
type ExecutionError struct {
	Kind FailureKind
	Err  error
}

func (e *ExecutionError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}

	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NewExecutionError builds a classified execution error.
func NewExecutionError(kind FailureKind, err error) *ExecutionError {
	return &ExecutionError{Kind: kind, Err: err}
}
