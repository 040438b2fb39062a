package workflow

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidationError reports one structural problem found while loading a
// Definition from YAML, grounded on the teacher's
// internal/application/importer.ValidationError.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadYAML parses data into a Definition and validates its structural
// invariants (unique node IDs, edges referencing known nodes, no
// self-loops) before the caller calls ToFlow. Grounded on the teacher's
// YAMLImporter.ImportFromYAML/validateYAML, adapted from its
// models.Workflow shape onto this package's Definition.
func LoadYAML(data []byte) (Definition, error) {
	content := strings.TrimSpace(strings.TrimPrefix(string(data), "\xef\xbb\xbf"))
	if content == "" {
		return Definition{}, fmt.Errorf("empty YAML content")
	}

	var def Definition
	if err := yaml.Unmarshal([]byte(content), &def); err != nil {
		return Definition{}, fmt.Errorf("parsing workflow YAML: %w", err)
	}
	if err := validateDefinition(&def); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// ExportYAML serializes a Definition back to YAML, the inverse of LoadYAML.
func ExportYAML(def Definition) ([]byte, error) {
	return yaml.Marshal(def)
}

func validateDefinition(d *Definition) error {
	if d.Name == "" {
		return &ValidationError{Field: "name", Message: "workflow name is required"}
	}
	if len(d.Nodes) == 0 {
		return &ValidationError{Field: "nodes", Message: "at least one node is required"}
	}

	nodeIDs := make(map[string]bool, len(d.Nodes))
	for idx, n := range d.Nodes {
		if n.ID == "" {
			return &ValidationError{Field: fmt.Sprintf("nodes[%d].id", idx), Message: "node ID is required"}
		}
		if nodeIDs[n.ID] {
			return &ValidationError{Field: fmt.Sprintf("nodes[%d].id", idx), Message: fmt.Sprintf("duplicate node ID: %s", n.ID)}
		}
		nodeIDs[n.ID] = true
		if n.Type == "" {
			return &ValidationError{Field: fmt.Sprintf("nodes[%d].type", idx), Message: "node type is required"}
		}
	}

	for idx, e := range d.Edges {
		if e.From == "" || e.To == "" {
			return &ValidationError{Field: fmt.Sprintf("edges[%d]", idx), Message: "edge requires both from and to"}
		}
		if !nodeIDs[e.From] {
			return &ValidationError{Field: fmt.Sprintf("edges[%d].from", idx), Message: fmt.Sprintf("edge references unknown source node: %s", e.From)}
		}
		if !nodeIDs[e.To] {
			return &ValidationError{Field: fmt.Sprintf("edges[%d].to", idx), Message: fmt.Sprintf("edge references unknown target node: %s", e.To)}
		}
		if e.From == e.To {
			return &ValidationError{Field: fmt.Sprintf("edges[%d]", idx), Message: "self-loop edges are not allowed"}
		}
	}

	for idx, t := range d.Triggers {
		if t.Type == "" {
			return &ValidationError{Field: fmt.Sprintf("triggers[%d].type", idx), Message: "trigger type is required"}
		}
	}
	return nil
}
