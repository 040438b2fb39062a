package flowengine

import (
	"github.com/mbflowrt/flowengine/internal/domain"
	"github.com/mbflowrt/flowengine/internal/domain/flowerr"
)

// NodeResult is the value every NodeExecutor returns (§4.3): whether it
// succeeded, its output payload, the structured error on failure, whether
// the engine should keep traversing, which outgoing edge labels to follow
// next (empty means "all matching edges"), and any variable-updates to
// fold into the Execution Context.
type NodeResult struct {
	Success        bool
	Output         any
	Err            *flowerr.Error
	Continue       bool
	NextBranches   []string
	VariableUpdate map[string]any
	Skipped        bool
}

// Ok builds a successful NodeResult that continues traversal.
func Ok(output any) NodeResult {
	return NodeResult{Success: true, Output: output, Continue: true}
}

// OkBranch builds a successful NodeResult that restricts traversal to the
// given outgoing edge labels (e.g. a conditional router's "true"/"false").
func OkBranch(output any, branches ...string) NodeResult {
	r := Ok(output)
	r.NextBranches = branches
	return r
}

// Failed builds a failed NodeResult carrying the structured error.
func Failed(err *flowerr.Error) NodeResult {
	return NodeResult{Success: false, Err: err, Continue: false}
}

// recordStatus maps a NodeResult outcome to the Node Execution Record
// status recorded for it (§3).
func (r NodeResult) recordStatus() domain.NodeRecordStatus {
	switch {
	case r.Skipped:
		return domain.NodeRecordSkipped
	case r.Success:
		return domain.NodeRecordCompleted
	case r.Err != nil && r.Err.Kind == domain.ErrorKindCancelled:
		return domain.NodeRecordCancelled
	default:
		return domain.NodeRecordFailed
	}
}
