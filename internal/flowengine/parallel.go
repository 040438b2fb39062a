package flowengine

import (
	"context"
	"sort"
	"sync"

	"github.com/mbflowrt/flowengine/internal/domain"
	"github.com/mbflowrt/flowengine/internal/domain/flowerr"
)

// BranchResult is one fan-out branch's outcome, carrying the forked
// ExecutionContext the Parallel Execution Manager merges back on success
// (§4.7).
type BranchResult struct {
	Label  string
	Result NodeResult
	Ctx    *ExecutionContext

	index int // position of the branch in the input slice
}

// ParallelManager runs a set of branches concurrently against isolated
// copy-on-write forks of the parent ExecutionContext and aggregates them
// per mode (§4.7):
//
//   - ALL waits for every branch; any failure fails the whole fan-out.
//   - RACE takes the first branch to finish (success or failure) as the
//     result, cancelling the rest.
//   - FIRST_SUCCESS returns the first successful branch, cancelling the
//     rest; if every branch fails, the fan-out fails.
//
// Only successful branches are merged back into the parent context,
// last-writer-wins on conflicting keys, in branch-input order for ALL (for
// RACE/FIRST_SUCCESS there is exactly one branch to merge).
type ParallelManager struct{}

// NewParallelManager constructs a ParallelManager. It holds no state.
func NewParallelManager() *ParallelManager { return &ParallelManager{} }

// Branch is one unit of fan-out work: a label for diagnostics/merge
// ordering and the function to run against its forked context.
type Branch struct {
	Label string
	Run   func(ctx context.Context, ec *ExecutionContext) NodeResult
}

// Execute runs branches under mode, merging successful forks back into
// parent and returning the aggregated NodeResult. Every branch's forked
// Node Execution Records are adopted onto parent regardless of outcome
// (§8 invariant 2), which means Execute waits for every branch to
// acknowledge cancellation before returning, even in RACE/FIRST_SUCCESS
// mode: the decision is made as soon as the winner is known, but the
// records aren't complete until the losers have actually stopped.
func (m *ParallelManager) Execute(ctx context.Context, parent *ExecutionContext, mode domain.ParallelMode, branches []Branch) NodeResult {
	if len(branches) == 0 {
		return Ok(nil)
	}

	branchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan BranchResult, len(branches))
	var wg sync.WaitGroup
	for i, b := range branches {
		i, b := i, b
		fork := parent.Fork()
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := b.Run(branchCtx, fork)
			results <- BranchResult{Label: b.Label, Result: res, Ctx: fork, index: i}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var final NodeResult
	switch mode {
	case domain.ParallelModeRace:
		final = m.race(parent, results, cancel, len(branches))
	case domain.ParallelModeFirstSuccess:
		final = m.firstSuccess(parent, results, cancel, len(branches))
	default:
		final = m.all(parent, results, len(branches))
	}
	return final
}

func (m *ParallelManager) race(parent *ExecutionContext, results <-chan BranchResult, cancel context.CancelFunc, total int) NodeResult {
	var first *BranchResult
	collected := make([]BranchResult, 0, total)
	for br := range results {
		if first == nil {
			first = &br
			cancel()
		}
		collected = append(collected, br)
	}
	for _, br := range collected {
		parent.AdoptRecords(br.Ctx)
	}
	if first == nil {
		return Failed(flowerr.External("no parallel branch produced a result", nil))
	}
	if first.Result.Success {
		parent.Merge(first.Ctx)
	}
	return first.Result
}

func (m *ParallelManager) firstSuccess(parent *ExecutionContext, results <-chan BranchResult, cancel context.CancelFunc, total int) NodeResult {
	collected := make([]BranchResult, 0, total)
	var winner *BranchResult
	for br := range results {
		collected = append(collected, br)
		if br.Result.Success && winner == nil {
			winner = &collected[len(collected)-1]
			cancel()
		}
	}
	for _, br := range collected {
		parent.AdoptRecords(br.Ctx)
	}
	if winner != nil {
		parent.Merge(winner.Ctx)
		return winner.Result
	}
	var lastErr *flowerr.Error
	for _, br := range collected {
		lastErr = br.Result.Err
	}
	if lastErr == nil {
		lastErr = flowerr.External("all parallel branches failed", nil)
	}
	return Failed(lastErr)
}

func (m *ParallelManager) all(parent *ExecutionContext, results <-chan BranchResult, total int) NodeResult {
	collected := make([]BranchResult, 0, total)
	for br := range results {
		collected = append(collected, br)
	}
	sort.Slice(collected, func(a, b int) bool { return collected[a].index < collected[b].index })

	outputs := make(map[string]any, len(collected))
	var firstErr *flowerr.Error
	for _, br := range collected {
		parent.AdoptRecords(br.Ctx)
		if br.Result.Success {
			parent.Merge(br.Ctx)
			outputs[br.Label] = br.Result.Output
		} else if firstErr == nil {
			firstErr = br.Result.Err
		}
	}
	if firstErr != nil {
		return Failed(firstErr)
	}
	return Ok(outputs)
}
