package flowengine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/mbflowrt/flowengine/internal/domain"
)

// NodeExecutor is the interface every node implementation satisfies (§4.3).
// Execute receives the node's already-resolved config (variable references
// substituted against the Context Scope) and returns a NodeResult; it must
// respect ctx cancellation for anything that blocks.
type NodeExecutor interface {
	Execute(ctx context.Context, ec *ExecutionContext, node *domain.Node) NodeResult
}

// NodeExecutorFunc adapts a plain function to NodeExecutor.
type NodeExecutorFunc func(ctx context.Context, ec *ExecutionContext, node *domain.Node) NodeResult

func (f NodeExecutorFunc) Execute(ctx context.Context, ec *ExecutionContext, node *domain.Node) NodeResult {
	return f(ctx, ec, node)
}

// registration bundles an executor with its optional config schema (§4.4,
// OQ-3): when Schema is non-nil, Registry.Validate rejects nodes whose
// config doesn't conform instead of silently tolerating it.
type registration struct {
	executor NodeExecutor
	schema   *gojsonschema.Schema
}

// Registry is the Node Registry of §4.4: a lookup from a node's
// RegistryKey() (type or type:subtype) to its executor, with an alias table
// for renamed/deprecated type tags and a skip-with-reason policy for
// lookups that resolve to nothing (OQ-3 resolution b in SPEC_FULL.md).
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]registration
	aliases  map[string]string
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]registration),
		aliases: make(map[string]string),
	}
}

// Register binds a node type (or type:subtype) key to an executor.
func (r *Registry) Register(key string, executor NodeExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = registration{executor: executor}
}

// RegisterWithSchema binds a key to an executor and a JSON schema (raw JSON
// document) its node configs must validate against.
func (r *Registry) RegisterWithSchema(key string, executor NodeExecutor, rawSchema []byte) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(rawSchema))
	if err != nil {
		return fmt.Errorf("compiling schema for %q: %w", key, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = registration{executor: executor, schema: schema}
	return nil
}

// Alias maps an additional lookup key (e.g. a deprecated type name) onto an
// already-registered key.
func (r *Registry) Alias(alias, target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alias] = target
}

// Lookup resolves a node to its executor, following the node's
// RegistryKey() then its bare Type() then the alias table. ok is false when
// nothing matches, at which point the caller (Engine.runNode) applies the
// skip-with-reason policy rather than failing the whole execution.
func (r *Registry) Lookup(node *domain.Node) (NodeExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, key := range []string{node.RegistryKey(), node.Type()} {
		if reg, ok := r.entries[key]; ok {
			return reg.executor, true
		}
		if target, ok := r.aliases[key]; ok {
			if reg, ok := r.entries[target]; ok {
				return reg.executor, true
			}
		}
	}
	return nil, false
}

// Validate checks a node's config against its registered schema, if any.
// Nodes with no schema registered always pass: schema validation is an
// opt-in strictness layer, not a universal requirement (OQ-3).
func (r *Registry) Validate(node *domain.Node) error {
	r.mu.RLock()
	reg, ok := r.entries[node.RegistryKey()]
	if !ok {
		reg, ok = r.entries[node.Type()]
	}
	r.mu.RUnlock()
	if !ok || reg.schema == nil {
		return nil
	}

	raw, err := json.Marshal(node.Config())
	if err != nil {
		return fmt.Errorf("marshalling config for node %s: %w", node.ID(), err)
	}
	result, err := reg.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("validating config for node %s: %w", node.ID(), err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("node %s config invalid: %v", node.ID(), msgs)
	}
	return nil
}
