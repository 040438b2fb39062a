// Package flowengine is the Flow Execution Engine: the DFS traversal over a
// domain.Flow, its Execution Context, Node Registry, per-node Error Handler,
// Circuit Breaker, Parallel Execution Manager, and Wait-For-Reply
// Coordinator (spec §4). It is grounded on
// internal/application/executor's template/condition evaluation and
// circuit-breaker/retry primitives, rebuilt against the string-ID
// domain model in internal/domain.
package flowengine

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mbflowrt/flowengine/internal/domain"
)

// Scope is the Context Scope of §4.1: the four namespaces a `{{...}}` path
// resolves against. input is the trigger payload the flow started with;
// variables is the mutable workflow-scoped bag nodes write into via
// variable-updates; nodes is keyed by node ID and holds each node's last
// output; trigger carries the originating Trigger's config.
type Scope struct {
	Input     map[string]any
	Variables map[string]any
	Nodes     map[string]any
	Trigger   map[string]any
}

func newScope(input map[string]any, trigger map[string]any) *Scope {
	if input == nil {
		input = map[string]any{}
	}
	if trigger == nil {
		trigger = map[string]any{}
	}
	return &Scope{
		Input:     input,
		Variables: map[string]any{},
		Nodes:     map[string]any{},
		Trigger:   trigger,
	}
}

// asMap exposes the scope as the flat namespace map expr-lang and the
// template resolver read dotted paths against: input.*, variables.*,
// nodes.*, trigger.*.
func (s *Scope) asMap() map[string]any {
	return map[string]any{
		"input":     s.Input,
		"variables": s.Variables,
		"nodes":     s.Nodes,
		"trigger":   s.Trigger,
	}
}

// clone performs the copy-on-write snapshot the Parallel Execution Manager
// hands each branch (§4.7): a branch mutates its own copy and never the
// parent's until the manager merges on completion.
func (s *Scope) clone() *Scope {
	return &Scope{
		Input:     deepCopyMap(s.Input),
		Variables: deepCopyMap(s.Variables),
		Nodes:     deepCopyMap(s.Nodes),
		Trigger:   deepCopyMap(s.Trigger),
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

// mergeInto applies last-writer-wins merge of a branch's Variables/Nodes
// deltas onto the parent scope, per §4.7's merge rule. Input and Trigger are
// read-only for the flow's lifetime and are not merged.
func (parent *Scope) mergeInto(child *Scope) {
	for k, v := range child.Variables {
		parent.Variables[k] = v
	}
	for k, v := range child.Nodes {
		parent.Nodes[k] = v
	}
}

// ExecutionContext is the mutable, concurrency-safe state one flow
// execution carries as it traverses nodes: the Context Scope plus the
// bookkeeping (records, pending waits) the engine and its collaborators
// read and append to.
type ExecutionContext struct {
	mu sync.RWMutex

	ExecutionID string
	FlowID      string

	scope   *Scope
	log     zerolog.Logger
	events  []ProgressEvent
	records []domain.NodeExecutionRecord
}

// NewExecutionContext starts a fresh context for one flow execution, seeded
// with the trigger's input payload and config (§3, §4.1).
func NewExecutionContext(executionID, flowID string, input, triggerConfig map[string]any, log zerolog.Logger) *ExecutionContext {
	return &ExecutionContext{
		ExecutionID: executionID,
		FlowID:      flowID,
		scope:       newScope(input, triggerConfig),
		log:         log.With().Str("execution_id", executionID).Str("flow_id", flowID).Logger(),
	}
}

// SetVariable writes into the workflow-scoped variables namespace.
func (ec *ExecutionContext) SetVariable(key string, value any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.scope.Variables[key] = value
}

// SetVariables merges a batch of variable-updates (§4.3's NodeResult field).
func (ec *ExecutionContext) SetVariables(updates map[string]any) {
	if len(updates) == 0 {
		return
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()
	for k, v := range updates {
		ec.scope.Variables[k] = v
	}
}

// SetNodeOutput records a node's output under nodes.<nodeID> for downstream
// `{{nodes.<id>.field}}` references.
func (ec *ExecutionContext) SetNodeOutput(nodeID string, output any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.scope.Nodes[nodeID] = output
}

// Snapshot returns the flat namespace map for expression/template
// evaluation. Callers must not mutate the result.
func (ec *ExecutionContext) Snapshot() map[string]any {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return map[string]any{
		"input":     ec.scope.Input,
		"variables": ec.scope.Variables,
		"nodes":     ec.scope.Nodes,
		"trigger":   ec.scope.Trigger,
	}
}

// Fork produces an isolated child ExecutionContext for one parallel branch
// (§4.7): a copy-on-write clone of the scope, same identifiers, child
// logger. The parent is untouched until Merge is called with the result.
func (ec *ExecutionContext) Fork() *ExecutionContext {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return &ExecutionContext{
		ExecutionID: ec.ExecutionID,
		FlowID:      ec.FlowID,
		scope:       ec.scope.clone(),
		log:         ec.log,
	}
}

// Merge folds a branch's Variables/Nodes deltas back with last-writer-wins
// semantics (§4.7).
func (ec *ExecutionContext) Merge(child *ExecutionContext) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.scope.mergeInto(child.scope)
}

// Logger returns the context-scoped zerolog logger.
func (ec *ExecutionContext) Logger() zerolog.Logger { return ec.log }

// RecordEvent appends a progress-stream event (§6.5) for later draining by
// the engine's subscriber fan-out.
func (ec *ExecutionContext) RecordEvent(ev ProgressEvent) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.events = append(ec.events, ev)
}

// DrainEvents returns and clears buffered progress events.
func (ec *ExecutionContext) DrainEvents() []ProgressEvent {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := ec.events
	ec.events = nil
	return out
}

// AppendNodeRecord appends one Node Execution Record (§3): a node may be
// recorded multiple times per traversal frame across retries and loop
// iterations, so this is always an append, never an overwrite.
func (ec *ExecutionContext) AppendNodeRecord(rec domain.NodeExecutionRecord) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.records = append(ec.records, rec)
}

// NodeRecords returns the ordered Node Execution Records collected so far.
// Callers must not mutate the result.
func (ec *ExecutionContext) NodeRecords() []domain.NodeExecutionRecord {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.records
}

// AdoptRecords copies a forked branch's Node Execution Records onto the
// parent, regardless of the branch's outcome — §8's invariant 2 requires a
// record for every attempt, including branches a Parallel Execution Manager
// mode discards (§4.7's cancelled losers still show a "cancelled" record).
func (ec *ExecutionContext) AdoptRecords(child *ExecutionContext) {
	child.mu.RLock()
	recs := append([]domain.NodeExecutionRecord(nil), child.records...)
	child.mu.RUnlock()

	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.records = append(ec.records, recs...)
}

// Resolver resolves `{{dotted.path}}` references against an
// ExecutionContext's scope snapshot (§4.1). String values are fully
// substituted when the whole string is a single reference (preserving
// type), otherwise interpolated as text.
type Resolver struct{}

// NewResolver constructs a Resolver. It holds no state; one instance is
// shared across an engine.
func NewResolver() *Resolver { return &Resolver{} }

var placeholderCutset = "{} \t"

// ResolveString substitutes every `{{path}}` occurrence in s using scope.
// A string that is exactly one placeholder returns the referenced value
// with its original type; anything else is stringified and concatenated.
func (r *Resolver) ResolveString(s string, scope map[string]any) (any, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	if trimmed := strings.TrimSpace(s); strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") &&
		strings.Count(trimmed, "{{") == 1 {
		path := strings.Trim(strings.TrimSuffix(strings.TrimPrefix(trimmed, "{{"), "}}"), " ")
		return r.ResolvePath(path, scope)
	}

	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += start
		b.WriteString(rest[:start])
		path := strings.TrimSpace(rest[start+2 : end])
		val, err := r.ResolvePath(path, scope)
		if err != nil {
			return nil, err
		}
		if val != nil {
			b.WriteString(fmt.Sprint(val))
		}
		rest = rest[end+2:]
	}
	return b.String(), nil
}

// ResolvePath walks a dotted path (e.g. "nodes.fetch.body.items.0") through
// scope, descending into maps by key and into slices by numeric index.
// Missing paths resolve to nil rather than erroring, so default handling in
// node configs can rely on zero values.
func (r *Resolver) ResolvePath(path string, scope map[string]any) (any, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("empty variable path")
	}
	segs := strings.Split(path, ".")
	var cur any = scope
	for _, seg := range segs {
		if cur == nil {
			return nil, nil
		}
		switch c := cur.(type) {
		case map[string]any:
			cur = c[seg]
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(c) {
				return nil, nil
			}
			cur = c[idx]
		default:
			return nil, nil
		}
	}
	return cur, nil
}

// ResolveConfig recursively resolves every string field of a node config
// map against scope, leaving non-string values untouched (§4.1, §4.4).
func (r *Resolver) ResolveConfig(config map[string]any, scope map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(config))
	for k, v := range config {
		rv, err := r.resolveValue(v, scope)
		if err != nil {
			return nil, fmt.Errorf("resolving config field %q: %w", k, err)
		}
		out[k] = rv
	}
	return out, nil
}

func (r *Resolver) resolveValue(v any, scope map[string]any) (any, error) {
	switch t := v.(type) {
	case string:
		return r.ResolveString(t, scope)
	case map[string]any:
		return r.ResolveConfig(t, scope)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			rv, err := r.resolveValue(e, scope)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}
