package workflow

import (
	"strconv"
	"strings"

	"github.com/mbflowrt/flowengine/internal/domain"
)

// ToFlow converts a Definition — the package's fluent-builder DSL shape —
// into a domain.Flow the engine can execute. A NodeDef's Type may carry a
// "type:subtype" compound (matching domain.Node.RegistryKey()); Condition
// becomes the outgoing edge's guard for edges declared without one of
// their own, EdgeDef.Type becomes the edge's branch label.
func (d Definition) ToFlow(id string) (*domain.Flow, error) {
	b := domain.NewBuilder(id, d.Name, d.Version)

	conditionByNode := make(map[string]string, len(d.Nodes))
	for _, n := range d.Nodes {
		typ, subtype := splitRegistryKey(n.Type)
		b.AddNode(domain.NewNode(n.ID, id, typ, subtype, n.Handler, n.Config))
		if n.Condition != "" {
			conditionByNode[n.ID] = n.Condition
		}
	}

	for i, e := range d.Edges {
		condition := e.Condition
		if condition == "" {
			condition = conditionByNode[e.From]
		}
		edgeID := e.From + "->" + e.To
		if i > 0 {
			edgeID = edgeIDFor(e, i)
		}
		b.AddEdge(domain.NewEdge(edgeID, id, e.From, e.To, e.Type, condition))
	}

	for _, t := range d.Triggers {
		b.AddTrigger(domain.NewTrigger(t.ID, id, t.Type, t.Config))
	}

	return b.Build()
}

func edgeIDFor(e EdgeDef, i int) string {
	return e.From + "->" + e.To + "#" + strconv.Itoa(i)
}

func splitRegistryKey(t string) (typ, subtype string) {
	if idx := strings.IndexByte(t, ':'); idx >= 0 {
		return t[:idx], t[idx+1:]
	}
	return t, ""
}
