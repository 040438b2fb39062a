package domain

import "fmt"

// ExecutionStatus is the status lattice from §3: pending -> running ->
// {completed|failed|cancelled}. Transitions are monotonic; IsTerminal once
// true never becomes false for a given execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the status is one that requires endTimestamp set.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

func (s ExecutionStatus) String() string { return string(s) }

// NodeRecordStatus is the status of one Node Execution Record (§3).
type NodeRecordStatus string

const (
	NodeRecordCompleted NodeRecordStatus = "completed"
	NodeRecordFailed    NodeRecordStatus = "failed"
	NodeRecordSkipped   NodeRecordStatus = "skipped"
	NodeRecordCancelled NodeRecordStatus = "cancelled"
)

func (s NodeRecordStatus) String() string { return string(s) }

// NodeExecutionRecord is one node attempt (§3): a node may appear multiple
// times in an execution's record list across retries and loop iterations.
type NodeExecutionRecord struct {
	NodeID    string           `json:"nodeId"`
	NodeType  string           `json:"nodeType"`
	Status    NodeRecordStatus `json:"status"`
	Output    any              `json:"output,omitempty"`
	Error     string           `json:"error,omitempty"`
	StartedAt int64            `json:"startedAt"`
	EndedAt   int64            `json:"endedAt"`
	Attempt   int              `json:"attempt"`
}

// ErrorKind is the error taxonomy from §7.
type ErrorKind string

const (
	ErrorKindValidation   ErrorKind = "validation"
	ErrorKindTimeout      ErrorKind = "timeout"
	ErrorKindCancelled    ErrorKind = "cancelled"
	ErrorKindCircuitOpen  ErrorKind = "circuit-open"
	ErrorKindNodeFailed   ErrorKind = "node-failed"
	ErrorKindExternal     ErrorKind = "external"
	ErrorKindResource     ErrorKind = "resource"
)

func (k ErrorKind) String() string { return string(k) }

// Strategy is a node's declared error-recovery policy (§4.5).
type Strategy string

const (
	StrategyFail           Strategy = "fail"
	StrategyRetry          Strategy = "retry"
	StrategySkip           Strategy = "skip"
	StrategyRedirect       Strategy = "redirect"
	StrategyFallbackOutput Strategy = "fallback-output"
)

func (s Strategy) String() string { return string(s) }

// ParseStrategy reads a strategy from a node config value, defaulting to fail
// per §4.5 ("declared on the node's config, default fail").
func ParseStrategy(v any) Strategy {
	s, ok := v.(string)
	if !ok {
		return StrategyFail
	}
	switch Strategy(s) {
	case StrategyRetry, StrategySkip, StrategyRedirect, StrategyFallbackOutput:
		return Strategy(s)
	default:
		return StrategyFail
	}
}

// CircuitState is the Circuit Breaker's state machine (§4.6).
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

func (s CircuitState) String() string { return string(s) }

// ParallelMode is the Parallel Execution Manager's aggregation mode (§4.7).
type ParallelMode string

const (
	ParallelModeAll          ParallelMode = "ALL"
	ParallelModeRace         ParallelMode = "RACE"
	ParallelModeFirstSuccess ParallelMode = "FIRST_SUCCESS"
)

func (m ParallelMode) String() string { return string(m) }

// DomainError is a lightweight structured error used for domain invariant
// violations that are not part of the execution-time Error Kind taxonomy
// (e.g. malformed flow construction).
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeAlreadyExists     = "ALREADY_EXISTS"
	ErrCodeInvariantViolated = "INVARIANT_VIOLATED"
	ErrCodeInvalidState      = "INVALID_STATE"
	ErrCodeCyclicDependency  = "CYCLIC_DEPENDENCY"
	ErrCodeInvalidType       = "INVALID_TYPE"
)

// NewDomainError creates a new domain error.
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// VariableType is a coarse runtime type tag used by VariableSchema to do
// permissive, best-effort validation of resolved variable values. Scope
// values are dynamically typed (§4.1), so this is informational rather than
// a strict static type system.
type VariableType string

const (
	VariableTypeString  VariableType = "string"
	VariableTypeInt     VariableType = "int"
	VariableTypeFloat   VariableType = "float"
	VariableTypeBool    VariableType = "bool"
	VariableTypeObject  VariableType = "object"
	VariableTypeArray   VariableType = "array"
	VariableTypeAny     VariableType = "any"
	VariableTypeUnknown VariableType = "unknown"
)

func (t VariableType) String() string { return string(t) }

// InferType reports the VariableType that best describes a resolved value.
func InferType(v any) VariableType {
	switch v.(type) {
	case nil:
		return VariableTypeUnknown
	case string:
		return VariableTypeString
	case int, int32, int64:
		return VariableTypeInt
	case float32, float64:
		return VariableTypeFloat
	case bool:
		return VariableTypeBool
	case map[string]any:
		return VariableTypeObject
	case []any:
		return VariableTypeArray
	default:
		return VariableTypeUnknown
	}
}
