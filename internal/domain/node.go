package domain

// Node is a step in a Flow. It carries a type tag, an optional subtype tag
// used for compound registry lookups (type:subtype), and an arbitrary
// JSON-shaped configuration map resolved against the Context Scope before
// execution. Nodes are immutable value objects owned by a Flow.
type Node struct {
	id      string
	flowID  string
	typ     string
	subtype string
	name    string
	config  map[string]any
}

// NewNode creates a new Node instance.
func NewNode(id, flowID, typ, subtype, name string, config map[string]any) *Node {
	if config == nil {
		config = make(map[string]any)
	}
	return &Node{
		id:      id,
		flowID:  flowID,
		typ:     typ,
		subtype: subtype,
		name:    name,
		config:  config,
	}
}

// ID returns the node ID.
func (n *Node) ID() string { return n.id }

// FlowID returns the flow ID this node belongs to.
func (n *Node) FlowID() string { return n.flowID }

// Type returns the type tag of the node.
func (n *Node) Type() string { return n.typ }

// Subtype returns the optional subtype tag, empty if none declared.
func (n *Node) Subtype() string { return n.subtype }

// Name returns the human-readable name of the node.
func (n *Node) Name() string { return n.name }

// Config returns the configuration of the node.
func (n *Node) Config() map[string]any { return n.config }

// RegistryKey returns the compound type:subtype key used for alias lookups,
// or just Type() when no subtype is declared.
func (n *Node) RegistryKey() string {
	if n.subtype == "" {
		return n.typ
	}
	return n.typ + ":" + n.subtype
}
