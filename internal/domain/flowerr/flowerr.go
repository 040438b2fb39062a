// Package flowerr is the structured error type carried through node
// execution, error handling, and the progress stream (§7). It mirrors the
// shape of internal/domain/errors.ExecutionError but keys its taxonomy off
// domain.ErrorKind and adds the Recoverable flag the Error Handler (§4.5)
// switches on.
package flowerr

import (
	"fmt"

	"github.com/mbflowrt/flowengine/internal/domain"
)

// Error is the structured error attached to a failed Node Execution Record
// and propagated to the Error Handler, Circuit Breaker, and caller.
type Error struct {
	Kind        domain.ErrorKind
	ExecutionID string
	FlowID      string
	NodeID      string
	Message     string
	Cause       error
	Recoverable bool
}

func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("flow %s execution %s node %s: [%s] %s", e.FlowID, e.ExecutionID, e.NodeID, e.Kind, e.Message)
	}
	return fmt.Sprintf("flow %s execution %s: [%s] %s", e.FlowID, e.ExecutionID, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error, inferring Recoverable from Kind when not given
// explicitly: validation and circuit-open are never recoverable by retry,
// timeout/external/resource default to recoverable.
func New(kind domain.ErrorKind, message string, cause error) *Error {
	return &Error{
		Kind:        kind,
		Message:     message,
		Cause:       cause,
		Recoverable: defaultRecoverable(kind),
	}
}

func defaultRecoverable(kind domain.ErrorKind) bool {
	switch kind {
	case domain.ErrorKindTimeout, domain.ErrorKindExternal, domain.ErrorKindResource:
		return true
	default:
		return false
	}
}

// WithContext returns a copy of e with the execution/flow/node identifiers
// filled in, for handlers that build the error before the record exists.
func (e *Error) WithContext(flowID, executionID, nodeID string) *Error {
	cp := *e
	cp.FlowID = flowID
	cp.ExecutionID = executionID
	cp.NodeID = nodeID
	return &cp
}

// Validation builds a validation-kind error (never recoverable).
func Validation(message string, cause error) *Error {
	return New(domain.ErrorKindValidation, message, cause)
}

// Timeout builds a timeout-kind error.
func Timeout(message string, cause error) *Error {
	return New(domain.ErrorKindTimeout, message, cause)
}

// Cancelled builds a cancelled-kind error.
func Cancelled(message string) *Error {
	e := New(domain.ErrorKindCancelled, message, nil)
	e.Recoverable = false
	return e
}

// CircuitOpen builds a circuit-open-kind error.
func CircuitOpen(nodeID string) *Error {
	e := New(domain.ErrorKindCircuitOpen, fmt.Sprintf("circuit open for node %s", nodeID), nil)
	e.NodeID = nodeID
	e.Recoverable = false
	return e
}

// External builds an external-kind error (the default for node executor
// failures that reach out to a third-party system).
func External(message string, cause error) *Error {
	return New(domain.ErrorKindExternal, message, cause)
}

// Resource builds a resource-kind error (pool exhaustion, rate limit).
func Resource(message string, cause error) *Error {
	return New(domain.ErrorKindResource, message, cause)
}

// NodeFailed wraps an arbitrary node executor error as node-failed, keeping
// the cause for Unwrap. Used by the Error Handler when a node executor
// returns a plain error rather than an *Error.
func NodeFailed(cause error) *Error {
	if fe, ok := cause.(*Error); ok {
		return fe
	}
	return New(domain.ErrorKindNodeFailed, cause.Error(), cause)
}

// As reports whether err is, or wraps, a *Error and returns it.
func As(err error) (*Error, bool) {
	fe, ok := err.(*Error)
	if ok {
		return fe, true
	}
	type unwrapper interface{ Unwrap() error }
	for u, ok := err.(unwrapper); ok; u, ok = err.(unwrapper) {
		err = u.Unwrap()
		if fe, ok := err.(*Error); ok {
			return fe, true
		}
	}
	return nil, false
}
