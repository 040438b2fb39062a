package nodes

import (
	"context"
	"encoding/json"

	"github.com/mbflowrt/flowengine/internal/domain"
	"github.com/mbflowrt/flowengine/internal/domain/flowerr"
	"github.com/mbflowrt/flowengine/internal/flowengine"
)

// DataMergerConfig names the node outputs to merge, last-listed wins on
// key conflicts (matching the Parallel Execution Manager's merge rule,
// §4.7).
type DataMergerConfig struct {
	Sources   []string `json:"sources"`
	OutputKey string   `json:"outputKey"`
}

// DataMergerExecutor merges several prior node outputs (read from
// nodes.<id> in the scope) into a single object.
type DataMergerExecutor struct{}

func (e *DataMergerExecutor) Execute(ctx context.Context, ec *flowengine.ExecutionContext, node *domain.Node) flowengine.NodeResult {
	cfg, err := decode[DataMergerConfig](node.Config())
	if err != nil {
		return flowengine.Failed(flowerr.Validation("parsing data-merger config", err))
	}
	nodesScope, _ := ec.Snapshot()["nodes"].(map[string]any)

	merged := map[string]any{}
	for _, src := range cfg.Sources {
		if out, ok := nodesScope[src].(map[string]any); ok {
			for k, v := range out {
				merged[k] = v
			}
		}
	}
	outputKey := cfg.OutputKey
	if outputKey == "" {
		return flowengine.Ok(merged)
	}
	return flowengine.Ok(map[string]any{outputKey: merged})
}

// DataAggregatorConfig collects a list of values resolved from a dotted
// path for each of several node outputs.
type DataAggregatorConfig struct {
	Sources   []string `json:"sources"`
	Field     string   `json:"field"`
	OutputKey string   `json:"outputKey"`
}

// DataAggregatorExecutor gathers one field from each source node's output
// into an ordered array.
type DataAggregatorExecutor struct {
	Resolver *flowengine.Resolver
}

func (e *DataAggregatorExecutor) Execute(ctx context.Context, ec *flowengine.ExecutionContext, node *domain.Node) flowengine.NodeResult {
	cfg, err := decode[DataAggregatorConfig](node.Config())
	if err != nil {
		return flowengine.Failed(flowerr.Validation("parsing data-aggregator config", err))
	}
	scope := ec.Snapshot()

	out := make([]any, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		path := "nodes." + src
		if cfg.Field != "" {
			path += "." + cfg.Field
		}
		val, _ := e.Resolver.ResolvePath(path, scope)
		out = append(out, val)
	}

	outputKey := cfg.OutputKey
	if outputKey == "" {
		outputKey = "items"
	}
	return flowengine.Ok(map[string]any{outputKey: out})
}

// JSONParserConfig names the raw text field to parse and the key to store
// the decoded structure under.
type JSONParserConfig struct {
	InputPath string `json:"inputPath"`
	OutputKey string `json:"outputKey"`
}

// JSONParserExecutor decodes a JSON string resolved from the scope into a
// structured value.
type JSONParserExecutor struct {
	Resolver *flowengine.Resolver
}

func (e *JSONParserExecutor) Execute(ctx context.Context, ec *flowengine.ExecutionContext, node *domain.Node) flowengine.NodeResult {
	cfg, err := decode[JSONParserConfig](node.Config())
	if err != nil || cfg.InputPath == "" {
		return flowengine.Failed(flowerr.Validation("json-parser node missing inputPath", err))
	}

	raw, _ := e.Resolver.ResolvePath(cfg.InputPath, ec.Snapshot())
	text, ok := raw.(string)
	if !ok {
		return flowengine.Failed(flowerr.Validation("json-parser inputPath did not resolve to a string", nil))
	}

	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return flowengine.Failed(flowerr.Validation("invalid JSON input", err))
	}

	outputKey := cfg.OutputKey
	if outputKey == "" {
		outputKey = "output"
	}
	return flowengine.Ok(map[string]any{outputKey: parsed})
}
