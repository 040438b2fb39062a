package flowengine

import (
	"context"
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mbflowrt/flowengine/internal/domain"
	"github.com/mbflowrt/flowengine/internal/domain/flowerr"
	"github.com/mbflowrt/flowengine/internal/metrics"
	"github.com/mbflowrt/flowengine/internal/tracing"
)

// maxLoopIterations is the hard ceiling applied when a loop node's config
// omits maxIterations (OQ-1), guarding against an unbounded body.
const maxLoopIterations = 10_000

// Options configures one Engine instance.
type Options struct {
	Registry           *Registry
	Resolver           *Resolver
	Parallel           *ParallelManager
	Breakers           *CircuitBreakerRegistry
	Persistence        PersistenceCollaborator
	Subscriber         Subscriber
	TriggerKinds       map[string]bool // registry types that count as trigger kinds for EntryNodes
	MaxConcurrency     int             // parallel fan-out cap per node (§5 default 32)
	Log                zerolog.Logger
}

// Engine is the Flow Execution Engine of §4.10: it identifies entry nodes,
// performs a depth-first traversal applying the Node Registry, Error
// Handler, and Parallel Execution Manager, and emits lifecycle events to
// the progress stream while honoring cancellation/deadline.
type Engine struct {
	registry    *Registry
	resolver    *Resolver
	parallel    *ParallelManager
	errHandler  *ErrorHandler
	persistence PersistenceCollaborator
	subscriber  Subscriber
	triggerKind map[string]bool
	maxConc     int
	log         zerolog.Logger

	active   map[string]context.CancelFunc
	activeMu chan struct{} // binary semaphore guarding `active`
}

// NewEngine constructs an Engine from Options, defaulting unset fields.
func NewEngine(opt Options) *Engine {
	if opt.Registry == nil {
		opt.Registry = NewRegistry()
	}
	if opt.Resolver == nil {
		opt.Resolver = NewResolver()
	}
	if opt.Parallel == nil {
		opt.Parallel = NewParallelManager()
	}
	if opt.Breakers == nil {
		opt.Breakers = NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig())
	}
	if opt.MaxConcurrency <= 0 {
		opt.MaxConcurrency = 32
	}
	e := &Engine{
		registry:    opt.Registry,
		resolver:    opt.Resolver,
		parallel:    opt.Parallel,
		errHandler:  NewErrorHandler(opt.Breakers),
		persistence: opt.Persistence,
		subscriber:  opt.Subscriber,
		triggerKind: opt.TriggerKinds,
		maxConc:     opt.MaxConcurrency,
		log:         opt.Log,
		active:      make(map[string]context.CancelFunc),
		activeMu:    make(chan struct{}, 1),
	}
	e.activeMu <- struct{}{}
	return e
}

// ExecuteOptions carries §6.1's execute(flow, options) inputs.
type ExecuteOptions struct {
	Input       map[string]any
	Trigger     map[string]any
	Owner       string
	Timeout     time.Duration
	ExecutionID string // optional caller-supplied id, e.g. so a REST caller can poll before completion
}

// Result is what Execute returns: final status, the merged variable scope,
// per-node outputs, the ordered Node Execution Records (§3), and the
// terminal error if any.
type Result struct {
	ExecutionID   string
	FlowID        string
	Status        domain.ExecutionStatus
	Variables     map[string]any
	NodeOutputs   map[string]any
	NodeExecutions []domain.NodeExecutionRecord
	Err           *flowerr.Error
}

// Execute runs flow to completion (or cancellation/timeout), per §4.10.
func (e *Engine) Execute(ctx context.Context, flow *domain.Flow, opts ExecuteOptions) (*Result, error) {
	executionID := opts.ExecutionID
	if executionID == "" {
		executionID = uuid.NewString()
	}
	ctx, span := tracing.StartSpan(ctx, "flowengine.Execute", map[string]string{
		"execution.id": executionID,
		"flow.id":      flow.ID(),
	})
	defer span.End()

	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	e.registerActive(executionID, cancel)
	defer func() {
		e.unregisterActive(executionID)
		cancel()
	}()

	ec := NewExecutionContext(executionID, flow.ID(), opts.Input, opts.Trigger, e.log)
	metrics.ExecutionsStarted.Inc()

	if e.persistence != nil {
		_ = e.persistence.CreateExecution(runCtx, ExecutionRecord{
			ID: executionID, FlowID: flow.ID(), Owner: opts.Owner,
			Status: string(domain.ExecutionStatusRunning), Trigger: opts.Trigger, Input: opts.Input,
			StartedAt: time.Now().Unix(),
		})
	}
	e.emit(ec, EventExecutionStarted, "", nil)

	entries := flow.EntryNodes(e.triggerKind)
	status := domain.ExecutionStatusCompleted
	var finalErr *flowerr.Error

	for _, n := range entries {
		visited := make(map[string]bool)
		if err := e.traverse(runCtx, ec, flow, n, visited); err != nil {
			finalErr = err
			break
		}
	}

	switch {
	case runCtx.Err() == context.Canceled:
		status = domain.ExecutionStatusCancelled
	case runCtx.Err() == context.DeadlineExceeded:
		status = domain.ExecutionStatusFailed
		finalErr = flowerr.Timeout("execution deadline exceeded", runCtx.Err())
	case finalErr != nil:
		status = domain.ExecutionStatusFailed
	}

	e.finish(ctx, ec, status, finalErr)
	metrics.ExecutionsCompleted.WithLabelValues(string(status)).Inc()

	snapshot := ec.Snapshot()
	return &Result{
		ExecutionID:    executionID,
		FlowID:         flow.ID(),
		Status:         status,
		Variables:      snapshot["variables"].(map[string]any),
		NodeOutputs:    snapshot["nodes"].(map[string]any),
		NodeExecutions: ec.NodeRecords(),
		Err:            finalErr,
	}, nil
}

func (e *Engine) finish(ctx context.Context, ec *ExecutionContext, status domain.ExecutionStatus, finalErr *flowerr.Error) {
	evType := EventExecutionCompleted
	errMsg := ""
	switch status {
	case domain.ExecutionStatusFailed:
		evType = EventExecutionFailed
		if finalErr != nil {
			errMsg = finalErr.Error()
		}
	case domain.ExecutionStatusCancelled:
		evType = EventExecutionCancelled
	}
	e.emit(ec, evType, "", map[string]any{"error": errMsg})

	if e.persistence != nil {
		snapshot := ec.Snapshot()
		_ = e.persistence.UpdateExecution(ctx, ExecutionRecord{
			ID: ec.ExecutionID, FlowID: ec.FlowID, Status: string(status),
			Outputs: snapshot["nodes"].(map[string]any), NodeResults: ec.NodeRecords(), Error: errMsg,
			FinishedAt: time.Now().Unix(),
		})
	}
}

// Cancel trips the abort signal for a running execution (§6.6, §4.10).
func (e *Engine) Cancel(executionID string) bool {
	<-e.activeMu
	cancel, ok := e.active[executionID]
	e.activeMu <- struct{}{}
	if !ok {
		return false
	}
	cancel()
	return true
}

func (e *Engine) registerActive(id string, cancel context.CancelFunc) {
	<-e.activeMu
	e.active[id] = cancel
	e.activeMu <- struct{}{}
}

func (e *Engine) unregisterActive(id string) {
	<-e.activeMu
	delete(e.active, id)
	e.activeMu <- struct{}{}
}

// traverse walks flow depth-first from n, left-to-right in edge order
// (§4.10). visited guards against re-entering a node within one traversal
// (loop bodies use a distinct execution frame per iteration instead).
func (e *Engine) traverse(ctx context.Context, ec *ExecutionContext, flow *domain.Flow, n *domain.Node, visited map[string]bool) *flowerr.Error {
	if ctx.Err() != nil {
		return flowerr.Cancelled("execution cancelled")
	}
	if visited[n.ID()] {
		return nil
	}
	visited[n.ID()] = true

	if n.Type() == domain.LoopNodeType {
		return e.runLoop(ctx, ec, flow, n, visited)
	}

	result := e.runNode(ctx, ec, flow, n)
	if result.Err != nil && !result.Continue {
		return result.Err
	}

	next := e.nextNodes(flow, n, ec, result)
	if len(next) > 1 && e.declaresParallel(n) {
		return e.runParallelBranches(ctx, ec, flow, n, next)
	}
	for _, nb := range next {
		visitedCopy := visited
		if err := e.traverse(ctx, ec, flow, nb, visitedCopy); err != nil {
			return err
		}
	}
	return nil
}

// runNode resolves config, validates, executes under the node-type
// circuit (via the Error Handler), records the result, merges variable
// updates, and stores output — the per-node body of §4.10's Traversal step.
func (e *Engine) runNode(ctx context.Context, ec *ExecutionContext, flow *domain.Flow, n *domain.Node) NodeResult {
	start := time.Now()
	e.emit(ec, EventNodeStarted, n.ID(), nil)

	if err := e.registry.Validate(n); err != nil {
		res := Failed(flowerr.Validation(err.Error(), err).WithContext(flow.ID(), ec.ExecutionID, n.ID()))
		e.emit(ec, EventNodeFailed, n.ID(), map[string]any{"error": res.Err.Error()})
		return res
	}

	resolvedConfig, err := e.resolver.ResolveConfig(n.Config(), ec.Snapshot())
	if err != nil {
		res := Failed(flowerr.Validation("resolving node config", err).WithContext(flow.ID(), ec.ExecutionID, n.ID()))
		e.emit(ec, EventNodeFailed, n.ID(), map[string]any{"error": res.Err.Error()})
		return res
	}
	resolvedNode := domain.NewNode(n.ID(), n.FlowID(), n.Type(), n.Subtype(), n.Name(), resolvedConfig)

	executor, ok := e.registry.Lookup(resolvedNode)
	if !ok {
		// Skip-with-reason (OQ-3): an unregistered node type never aborts
		// the whole execution, it is recorded as skipped and traversal
		// continues along the default edges.
		e.log.Warn().Str("node_id", n.ID()).Str("node_type", n.RegistryKey()).Msg("no executor registered, skipping")
		now := time.Now().UnixMilli()
		reason := "no executor registered for " + n.RegistryKey()
		output := map[string]any{"skipped": true, "reason": reason}
		res := NodeResult{Success: true, Output: output, Continue: true, Skipped: true}
		ec.AppendNodeRecord(domain.NodeExecutionRecord{
			NodeID: n.ID(), NodeType: n.RegistryKey(),
			Status: res.recordStatus(), Output: output,
			StartedAt: now, EndedAt: now, Attempt: 1,
		})
		ec.SetNodeOutput(n.ID(), output)
		e.emit(ec, EventNodeCompleted, n.ID(), map[string]any{"skipped": true, "reason": reason})
		return res
	}

	result, attempts := e.errHandler.Run(ctx, ec, resolvedNode, executor)
	metrics.NodeDuration.WithLabelValues(n.RegistryKey()).Observe(time.Since(start).Seconds())
	metrics.NodeAttempts.WithLabelValues(n.RegistryKey()).Observe(float64(attempts))

	ec.SetVariables(result.VariableUpdate)
	ec.SetNodeOutput(n.ID(), result.Output)

	if result.Success {
		e.emit(ec, EventNodeCompleted, n.ID(), map[string]any{"output": result.Output})
	} else {
		e.emit(ec, EventNodeFailed, n.ID(), map[string]any{"error": result.Err.Error()})
	}
	return result
}

// nextNodes resolves a node's outgoing edges to the set of successor
// nodes to visit next, applying NextBranches label filtering (if the
// result restricted it) and edge condition evaluation (§4.2).
func (e *Engine) nextNodes(flow *domain.Flow, n *domain.Node, ec *ExecutionContext, result NodeResult) []*domain.Node {
	edges := flow.OutgoingEdges(n.ID())
	scope := ec.Snapshot()

	var out []*domain.Node
	for _, edge := range edges {
		if len(result.NextBranches) > 0 && !containsLabel(result.NextBranches, edge.Label()) {
			continue
		}
		if edge.Condition() != "" {
			ok, err := evalCondition(edge.Condition(), scope)
			if err != nil || !ok {
				continue
			}
		}
		if target, ok := flow.Node(edge.ToID()); ok {
			out = append(out, target)
		}
	}
	return out
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

func evalCondition(condition string, scope map[string]any) (bool, error) {
	program, err := expr.Compile(condition, expr.Env(scope), expr.AsBool())
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, scope)
	if err != nil {
		return false, err
	}
	b, _ := out.(bool)
	return b, nil
}

// declaresParallel reports whether a node's config opts into fan-out
// (§4.10's "node's type declares parallel semantics").
func (e *Engine) declaresParallel(n *domain.Node) bool {
	v, ok := n.Config()["parallel"].(bool)
	return ok && v
}

func (e *Engine) runParallelBranches(ctx context.Context, ec *ExecutionContext, flow *domain.Flow, n *domain.Node, next []*domain.Node) *flowerr.Error {
	mode := domain.ParallelMode(fmt.Sprint(n.Config()["parallelMode"]))
	if mode == "" {
		mode = domain.ParallelModeAll
	}

	// At most e.maxConc branches traverse at once; the others block here
	// until a running branch finishes or the fan-out is cancelled.
	sem := make(chan struct{}, e.maxConc)
	branches := make([]Branch, 0, len(next))
	for _, nb := range next {
		nb := nb
		branches = append(branches, Branch{
			Label: nb.ID(),
			Run: func(bctx context.Context, bec *ExecutionContext) NodeResult {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-bctx.Done():
					return Failed(flowerr.Cancelled("execution cancelled"))
				}
				if err := e.traverse(bctx, bec, flow, nb, map[string]bool{}); err != nil {
					return Failed(err)
				}
				return Ok(nil)
			},
		})
	}

	metrics.ParallelBranches.WithLabelValues(string(mode)).Add(float64(len(branches)))
	result := e.parallel.Execute(ctx, ec, mode, branches)
	if !result.Success {
		return result.Err
	}
	return nil
}

// runLoop implements the loop-node semantics resolved by OQ-1: sequential
// execution frames over an items collection (or a bare counter), setting
// itemVar/indexVar as variables on the execution context, honoring
// maxIterations, and allowing the body to end the loop early by routing to
// a "break" edge. An optional config.concurrent=true delegates iterations
// to the Parallel Execution Manager in ALL mode instead of running them
// sequentially.
func (e *Engine) runLoop(ctx context.Context, ec *ExecutionContext, flow *domain.Flow, n *domain.Node, visited map[string]bool) *flowerr.Error {
	config := n.Config()
	resolvedConfig, err := e.resolver.ResolveConfig(config, ec.Snapshot())
	if err != nil {
		return flowerr.Validation("resolving loop config", err).WithContext(flow.ID(), ec.ExecutionID, n.ID())
	}

	items := toItemSlice(resolvedConfig["items"], config)
	itemVar := stringOr(config["itemVar"], "item")
	indexVar := stringOr(config["indexVar"], "index")
	maxIter := maxLoopIterations
	if mi, ok := toInt(config["maxIterations"]); ok && mi > 0 && mi < maxIter {
		maxIter = mi
	}
	if len(items) > maxIter {
		items = items[:maxIter]
	}

	bodyEdges := flow.OutgoingEdges(n.ID())
	var bodyTargets []*domain.Node
	for _, edge := range bodyEdges {
		if edge.Label() == "break" {
			continue
		}
		if t, ok := flow.Node(edge.ToID()); ok {
			bodyTargets = append(bodyTargets, t)
		}
	}

	concurrent, _ := config["concurrent"].(bool)
	if concurrent {
		branches := make([]Branch, 0, len(items))
		for i, item := range items {
			i, item := i, item
			branches = append(branches, Branch{
				Label: fmt.Sprintf("%s-%d", n.ID(), i),
				Run: func(bctx context.Context, bec *ExecutionContext) NodeResult {
					bec.SetVariable(itemVar, item)
					bec.SetVariable(indexVar, i)
					frame := map[string]bool{}
					for _, t := range bodyTargets {
						if err := e.traverse(bctx, bec, flow, t, frame); err != nil {
							return Failed(err)
						}
					}
					return Ok(nil)
				},
			})
		}
		result := e.parallel.Execute(ctx, ec, domain.ParallelModeAll, branches)
		if !result.Success {
			return result.Err
		}
		return nil
	}

	for i, item := range items {
		if ctx.Err() != nil {
			return flowerr.Cancelled("execution cancelled")
		}
		ec.SetVariable(itemVar, item)
		ec.SetVariable(indexVar, i)

		broke := false
		frame := map[string]bool{}
		for _, t := range bodyTargets {
			if broke {
				break
			}
			if result := e.runNode(ctx, ec, flow, t); !result.Success && !result.Continue {
				return result.Err
			} else if containsLabel(result.NextBranches, "break") {
				broke = true
				continue
			} else {
				frame[t.ID()] = true
				for _, nb := range e.nextNodes(flow, t, ec, result) {
					if err := e.traverse(ctx, ec, flow, nb, frame); err != nil {
						return err
					}
				}
			}
		}
		if broke {
			break
		}
	}
	return nil
}

func toItemSlice(v any, rawConfig map[string]any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case nil:
		if count, ok := toInt(rawConfig["count"]); ok {
			out := make([]any, count)
			for i := range out {
				out[i] = i
			}
			return out
		}
		return nil
	default:
		return []any{t}
	}
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func (e *Engine) emit(ec *ExecutionContext, evType EventType, nodeID string, payload map[string]any) {
	ev := ProgressEvent{Type: evType, ExecutionID: ec.ExecutionID, Timestamp: time.Now().Unix(), NodeID: nodeID, Payload: payload}
	ec.RecordEvent(ev)
	if e.subscriber != nil {
		e.subscriber.Publish(ev)
	}
}
