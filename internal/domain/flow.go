package domain

import (
	"fmt"
)

// LoopNodeType is the registry type reserved for loop-head nodes. A loop
// re-enters its own body through an explicit loop-head (§3), so edges
// targeting a loop-head are exempt from the acyclicity check that otherwise
// applies to normal traversal.
const LoopNodeType = "loop"

// Flow is an immutable value for the duration of a run: an identifier, an
// ordered set of Nodes, an ordered set of Edges, and zero or more Triggers.
// Flow is built once (via FlowBuilder) and never mutated by the engine.
type Flow struct {
	id          string
	name        string
	version     string
	nodes       []*Node
	edges       []*Edge
	triggers    []*Trigger
	nodeByID    map[string]*Node
	edgesByFrom map[string][]*Edge
	edgesByTo   map[string][]*Edge
}

// Builder assembles a Flow, validating structural invariants as entities are
// added (unique IDs, edges referencing existing nodes, no self-loops).
type Builder struct {
	id       string
	name     string
	version  string
	nodes    []*Node
	edges    []*Edge
	triggers []*Trigger
	nodeIDs  map[string]struct{}
	edgeIDs  map[string]struct{}
	err      error
}

// NewBuilder starts a new Flow builder.
func NewBuilder(id, name, version string) *Builder {
	return &Builder{
		id:      id,
		name:    name,
		version: version,
		nodeIDs: make(map[string]struct{}),
		edgeIDs: make(map[string]struct{}),
	}
}

// AddNode appends a Node to the flow under construction.
func (b *Builder) AddNode(n *Node) *Builder {
	if b.err != nil {
		return b
	}
	if _, exists := b.nodeIDs[n.ID()]; exists {
		b.err = NewDomainError(ErrCodeAlreadyExists, fmt.Sprintf("duplicate node id %s", n.ID()), nil)
		return b
	}
	b.nodeIDs[n.ID()] = struct{}{}
	b.nodes = append(b.nodes, n)
	return b
}

// AddEdge appends an Edge to the flow under construction.
func (b *Builder) AddEdge(e *Edge) *Builder {
	if b.err != nil {
		return b
	}
	if _, exists := b.edgeIDs[e.ID()]; exists {
		b.err = NewDomainError(ErrCodeAlreadyExists, fmt.Sprintf("duplicate edge id %s", e.ID()), nil)
		return b
	}
	if _, exists := b.nodeIDs[e.FromID()]; !exists {
		b.err = NewDomainError(ErrCodeNotFound, fmt.Sprintf("edge %s references unknown source node %s", e.ID(), e.FromID()), nil)
		return b
	}
	if _, exists := b.nodeIDs[e.ToID()]; !exists {
		b.err = NewDomainError(ErrCodeNotFound, fmt.Sprintf("edge %s references unknown target node %s", e.ID(), e.ToID()), nil)
		return b
	}
	if e.FromID() == e.ToID() {
		b.err = NewDomainError(ErrCodeInvalidInput, "self-loop edges are not allowed", nil)
		return b
	}
	b.edgeIDs[e.ID()] = struct{}{}
	b.edges = append(b.edges, e)
	return b
}

// AddTrigger appends a Trigger to the flow under construction.
func (b *Builder) AddTrigger(t *Trigger) *Builder {
	if b.err != nil {
		return b
	}
	b.triggers = append(b.triggers, t)
	return b
}

// Build finalizes the Flow, running structural validation (acyclicity
// excepted at loop-head targets) before returning.
func (b *Builder) Build() (*Flow, error) {
	if b.err != nil {
		return nil, b.err
	}
	f := &Flow{
		id:          b.id,
		name:        b.name,
		version:     b.version,
		nodes:       b.nodes,
		edges:       b.edges,
		triggers:    b.triggers,
		nodeByID:    make(map[string]*Node, len(b.nodes)),
		edgesByFrom: make(map[string][]*Edge),
		edgesByTo:   make(map[string][]*Edge),
	}
	for _, n := range f.nodes {
		f.nodeByID[n.ID()] = n
	}
	for _, e := range f.edges {
		f.edgesByFrom[e.FromID()] = append(f.edgesByFrom[e.FromID()], e)
		f.edgesByTo[e.ToID()] = append(f.edgesByTo[e.ToID()], e)
	}
	if err := f.ValidateStructure(); err != nil {
		return nil, err
	}
	return f, nil
}

// ID returns the flow ID.
func (f *Flow) ID() string { return f.id }

// Name returns the flow name.
func (f *Flow) Name() string { return f.name }

// Version returns the flow version.
func (f *Flow) Version() string { return f.version }

// Nodes returns the ordered set of nodes.
func (f *Flow) Nodes() []*Node { return f.nodes }

// Edges returns the ordered set of edges.
func (f *Flow) Edges() []*Edge { return f.edges }

// Triggers returns the flow's triggers.
func (f *Flow) Triggers() []*Trigger { return f.triggers }

// Node looks up a node by ID.
func (f *Flow) Node(id string) (*Node, bool) {
	n, ok := f.nodeByID[id]
	return n, ok
}

// OutgoingEdges returns the edges leaving nodeID, in declared order.
func (f *Flow) OutgoingEdges(nodeID string) []*Edge {
	return f.edgesByFrom[nodeID]
}

// IncomingEdges returns the edges entering nodeID, in declared order.
func (f *Flow) IncomingEdges(nodeID string) []*Edge {
	return f.edgesByTo[nodeID]
}

// EntryNodes identifies start nodes per §4.10: (1) nodes whose type matches a
// known trigger kind; else (2) nodes with no incoming edges; else (3) the
// first declared node. triggerKinds names which registry types count as
// trigger kinds for step (1).
func (f *Flow) EntryNodes(triggerKinds map[string]bool) []*Node {
	var triggerTyped []*Node
	for _, n := range f.nodes {
		if triggerKinds[n.Type()] {
			triggerTyped = append(triggerTyped, n)
		}
	}
	if len(triggerTyped) > 0 {
		return triggerTyped
	}

	var noIncoming []*Node
	for _, n := range f.nodes {
		if len(f.edgesByTo[n.ID()]) == 0 {
			noIncoming = append(noIncoming, n)
		}
	}
	if len(noIncoming) > 0 {
		return noIncoming
	}

	if len(f.nodes) > 0 {
		return []*Node{f.nodes[0]}
	}
	return nil
}

// TerminalNodes returns nodes with no outgoing edges, used by
// collect-final-output (§4.2).
func (f *Flow) TerminalNodes() []*Node {
	var out []*Node
	for _, n := range f.nodes {
		if len(f.edgesByFrom[n.ID()]) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// ValidateStructure checks the invariants required of any Flow: at least one
// node, edges reference existing nodes (enforced at build time already), and
// acyclicity of normal (non-loop-head) traversal.
func (f *Flow) ValidateStructure() error {
	if len(f.nodes) == 0 {
		return NewDomainError(ErrCodeValidationFailed, "flow must have at least one node", nil)
	}
	return f.checkForCycles()
}

// ValidateForExecution additionally requires at least one trigger.
func (f *Flow) ValidateForExecution() error {
	if err := f.ValidateStructure(); err != nil {
		return err
	}
	if len(f.triggers) == 0 {
		return NewDomainError(ErrCodeValidationFailed, "flow must have at least one trigger for execution", nil)
	}
	return nil
}

// checkForCycles runs DFS cycle detection over edges whose target is not a
// loop-head node; loop re-entry is expected and exempt (§3).
func (f *Flow) checkForCycles() error {
	adj := make(map[string][]string)
	for _, e := range f.edges {
		target, ok := f.nodeByID[e.ToID()]
		if ok && target.Type() == LoopNodeType {
			continue
		}
		adj[e.FromID()] = append(adj[e.FromID()], e.ToID())
	}

	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var dfs func(id string) error
	dfs = func(id string) error {
		visited[id] = true
		recStack[id] = true
		for _, next := range adj[id] {
			if !visited[next] {
				if err := dfs(next); err != nil {
					return err
				}
			} else if recStack[next] {
				return NewDomainError(ErrCodeCyclicDependency, fmt.Sprintf("cycle detected involving node %s", next), nil)
			}
		}
		recStack[id] = false
		return nil
	}

	for _, n := range f.nodes {
		if !visited[n.ID()] {
			if err := dfs(n.ID()); err != nil {
				return err
			}
		}
	}
	return nil
}
