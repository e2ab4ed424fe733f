package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stackform/stackform/internal/ir"
	"github.com/stackform/stackform/internal/logging"
)

// ItemStatus tracks one plan item through the apply pass.
type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusInProgress ItemStatus = "in-progress"
	StatusApplied    ItemStatus = "applied"
	StatusFailed     ItemStatus = "failed"
	StatusSkipped    ItemStatus = "skipped"
)

// ApplyEvent reports progress for one plan item.
type ApplyEvent struct {
	Addr     string
	Action   ir.Action
	Status   ItemStatus
	Duration time.Duration
	Error    error
}

// ApplyCallback receives apply events if set.
type ApplyCallback func(event ApplyEvent)

// ApplyPlan walks the plan in its computed order, invoking the provider
// adapter per item and committing each success into state. A failed item
// halts everything depending on it, directly or transitively, as skipped;
// independent branches keep going. The returned state reflects exactly the
// items that succeeded, alongside a PartialApplyError when any item
// failed or was skipped.
func (e *Engine) ApplyPlan(ctx context.Context, plan *ir.Plan, state *ir.State) (*ir.State, error) {
	return e.ApplyPlanWithCallback(ctx, plan, state, nil)
}

func (e *Engine) ApplyPlanWithCallback(ctx context.Context, plan *ir.Plan, state *ir.State, callback ApplyCallback) (*ir.State, error) {
	emit := func(event ApplyEvent) {
		if callback != nil {
			callback(event)
		}
	}

	var items []*ir.PlanItem
	for _, item := range plan.Items {
		if item.Action != ir.ActionNoOp {
			items = append(items, item)
		}
	}
	deps := buildItemDeps(items)
	status := make([]ItemStatus, len(items))
	errByItem := make([]error, len(items))
	for i := range status {
		status[i] = StatusPending
	}

	var mu sync.Mutex
	if e.Parallelism > 1 && len(items) > 1 {
		e.applyParallel(ctx, items, deps, status, errByItem, state, &mu, emit)
	} else {
		e.applySequential(ctx, items, deps, status, errByItem, state, &mu, emit)
	}

	applied := 0
	var failed, skipped []string
	var errs []error
	for i, item := range items {
		switch status[i] {
		case StatusApplied:
			applied++
		case StatusFailed:
			failed = append(failed, item.Addr)
			if errByItem[i] != nil {
				errs = append(errs, errByItem[i])
			}
		case StatusSkipped:
			skipped = append(skipped, item.Addr)
		}
	}
	// The serial only moves when the document actually changed.
	if applied > 0 {
		state.Serial++
		state.Outputs = resolveOutputs(plan.Outputs, state)
	}
	if len(failed) > 0 || len(skipped) > 0 {
		return state, &PartialApplyError{Failed: failed, Skipped: skipped, Errs: errs}
	}
	return state, nil
}

func (e *Engine) applySequential(ctx context.Context, items []*ir.PlanItem, deps [][]int, status []ItemStatus, errByItem []error, state *ir.State, mu *sync.Mutex, emit func(ApplyEvent)) {
	for i, item := range items {
		if blockedBy(i, deps, status) {
			status[i] = StatusSkipped
			emit(ApplyEvent{Addr: item.Addr, Action: item.Action, Status: StatusSkipped})
			continue
		}
		if err := ctx.Err(); err != nil {
			status[i] = StatusSkipped
			emit(ApplyEvent{Addr: item.Addr, Action: item.Action, Status: StatusSkipped, Error: err})
			continue
		}

		status[i] = StatusInProgress
		emit(ApplyEvent{Addr: item.Addr, Action: item.Action, Status: StatusInProgress})
		start := time.Now()
		if err := e.applyItem(ctx, item, state, mu); err != nil {
			status[i] = StatusFailed
			errByItem[i] = err
			emit(ApplyEvent{Addr: item.Addr, Action: item.Action, Status: StatusFailed, Duration: time.Since(start), Error: err})
			continue
		}
		status[i] = StatusApplied
		emit(ApplyEvent{Addr: item.Addr, Action: item.Action, Status: StatusApplied, Duration: time.Since(start)})
	}
}

// applyParallel runs disjoint subgraphs concurrently. Item statuses are
// the shared coordination point: a worker sleeps on the cond until every
// dependency has settled, then either runs or skips itself. State writes
// stay serialized behind mu.
func (e *Engine) applyParallel(ctx context.Context, items []*ir.PlanItem, deps [][]int, status []ItemStatus, errByItem []error, state *ir.State, mu *sync.Mutex, emit func(ApplyEvent)) {
	var statusMu sync.Mutex
	cond := sync.NewCond(&statusMu)
	sem := make(chan struct{}, e.Parallelism)

	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(i int, item *ir.PlanItem) {
			defer wg.Done()

			statusMu.Lock()
			for {
				settled := true
				blocked := false
				for _, d := range deps[i] {
					switch status[d] {
					case StatusFailed, StatusSkipped:
						blocked = true
					case StatusApplied:
					default:
						settled = false
					}
				}
				if blocked {
					status[i] = StatusSkipped
					statusMu.Unlock()
					emit(ApplyEvent{Addr: item.Addr, Action: item.Action, Status: StatusSkipped})
					cond.Broadcast()
					return
				}
				if settled {
					break
				}
				cond.Wait()
			}
			status[i] = StatusInProgress
			statusMu.Unlock()

			if err := ctx.Err(); err != nil {
				statusMu.Lock()
				status[i] = StatusSkipped
				statusMu.Unlock()
				emit(ApplyEvent{Addr: item.Addr, Action: item.Action, Status: StatusSkipped, Error: err})
				cond.Broadcast()
				return
			}

			sem <- struct{}{}
			defer func() { <-sem }()

			emit(ApplyEvent{Addr: item.Addr, Action: item.Action, Status: StatusInProgress})
			start := time.Now()
			err := e.applyItem(ctx, item, state, mu)

			statusMu.Lock()
			if err != nil {
				status[i] = StatusFailed
				errByItem[i] = err
			} else {
				status[i] = StatusApplied
			}
			statusMu.Unlock()

			if err != nil {
				emit(ApplyEvent{Addr: item.Addr, Action: item.Action, Status: StatusFailed, Duration: time.Since(start), Error: err})
			} else {
				emit(ApplyEvent{Addr: item.Addr, Action: item.Action, Status: StatusApplied, Duration: time.Since(start)})
			}
			cond.Broadcast()
		}(i, items[i])
	}
	wg.Wait()
}

// blockedBy reports whether any dependency of item i failed or was
// skipped. Skip status propagates transitively through this check.
func blockedBy(i int, deps [][]int, status []ItemStatus) bool {
	for _, d := range deps[i] {
		if status[d] == StatusFailed || status[d] == StatusSkipped {
			return true
		}
	}
	return false
}

// buildItemDeps wires ordering edges between actionable plan items.
// Creates and updates wait on earlier items of every address they depend
// on, and the create half of a replacement waits on its delete half.
// Deletes run dependents-first: a dependency's delete waits on the deletes
// of everything that recorded a dependency on it.
func buildItemDeps(items []*ir.PlanItem) [][]int {
	deps := make([][]int, len(items))

	forwardByAddr := make(map[string][]int)
	deleteByAddr := make(map[string][]int)
	for i, item := range items {
		if item.Action == ir.ActionDelete {
			deleteByAddr[item.Addr] = append(deleteByAddr[item.Addr], i)
		} else {
			forwardByAddr[item.Addr] = append(forwardByAddr[item.Addr], i)
		}
	}

	for i, item := range items {
		switch item.Action {
		case ir.ActionCreate, ir.ActionUpdate:
			for _, depAddr := range itemDepAddrs(item.Desired) {
				for _, j := range forwardByAddr[depAddr] {
					if j < i {
						deps[i] = append(deps[i], j)
					}
				}
				for _, j := range deleteByAddr[depAddr] {
					if j < i {
						deps[i] = append(deps[i], j)
					}
				}
			}
			if item.Replace {
				for _, j := range deleteByAddr[item.Addr] {
					if j < i {
						deps[i] = append(deps[i], j)
					}
				}
			}
		case ir.ActionDelete:
			if item.Prior == nil {
				continue
			}
			// delete(B) waits on delete(A) for every A recorded as
			// depending on B.
			for j, other := range items {
				if j == i || other.Action != ir.ActionDelete || other.Prior == nil {
					continue
				}
				for _, dep := range other.Prior.Dependencies {
					if dep == item.Addr {
						deps[i] = append(deps[i], j)
					}
				}
			}
		}
	}
	return deps
}

// itemDepAddrs lists the addresses a desired node depends on, combining
// explicit depends_on with embedded references.
func itemDepAddrs(node *ir.ResourceNode) []string {
	if node == nil {
		return nil
	}
	seen := make(map[string]bool)
	var addrs []string
	add := func(addr string) {
		if !seen[addr] {
			seen[addr] = true
			addrs = append(addrs, addr)
		}
	}
	for _, dep := range node.DependsOn {
		add(dep)
	}
	for _, ref := range ExtractReferences(node.Attributes) {
		add(ref.Addr())
	}
	return addrs
}

// applyItem performs one provider call under the per-item timeout and, on
// success, commits the result into state. State is only ever mutated here,
// after the external operation succeeded.
func (e *Engine) applyItem(ctx context.Context, item *ir.PlanItem, state *ir.State, mu *sync.Mutex) error {
	logging.Debug("applying item", "addr", item.Addr, "action", item.Action)

	timeout := e.ItemTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	itemCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	provName := providerFor(item)
	adapter, err := e.registry.Get(provName)
	if err != nil {
		return fmt.Errorf("provider not loaded for %s: %w", item.Addr, err)
	}

	retryPolicy := DefaultRetryPolicy()

	switch item.Action {
	case ir.ActionCreate, ir.ActionUpdate:
		mu.Lock()
		attrs, resolveErr := resolveAttributes(item.Desired.Attributes, state)
		mu.Unlock()
		if resolveErr != nil {
			return fmt.Errorf("failed to resolve references for %s: %w", item.Addr, resolveErr)
		}

		var outputs map[string]any
		op := "create"
		call := func() error {
			var applyErr error
			outputs, applyErr = adapter.Create(itemCtx, item.Desired, attrs)
			return applyErr
		}
		if item.Action == ir.ActionUpdate {
			op = "update"
			call = func() error {
				var applyErr error
				outputs, applyErr = adapter.Update(itemCtx, item.Desired, attrs, item.Prior, item.Diff)
				return applyErr
			}
		}
		if err := RetryWithBackoff(itemCtx, retryPolicy, call, IsTransientError); err != nil {
			if errors.Is(err, context.DeadlineExceeded) && itemCtx.Err() != nil {
				return &TimeoutError{Addr: item.Addr, Timeout: timeout}
			}
			return &ProviderError{Addr: item.Addr, Op: op, Err: err}
		}

		depAddrs := itemDepAddrs(item.Desired)
		sort.Strings(depAddrs)
		newRes := &ir.ResourceState{
			Kind:         item.Desired.Kind,
			Name:         item.Desired.Name,
			Provider:     item.Desired.Provider,
			Inputs:       item.Desired.Attributes,
			Outputs:      outputs,
			Dependencies: depAddrs,
		}
		mu.Lock()
		replaced := false
		for i, res := range state.Resources {
			if res.Addr() == item.Addr {
				state.Resources[i] = newRes
				replaced = true
				break
			}
		}
		if !replaced {
			state.Resources = append(state.Resources, newRes)
		}
		mu.Unlock()

	case ir.ActionDelete:
		call := func() error {
			return adapter.Delete(itemCtx, item.Prior)
		}
		if err := RetryWithBackoff(itemCtx, retryPolicy, call, IsTransientError); err != nil {
			if errors.Is(err, context.DeadlineExceeded) && itemCtx.Err() != nil {
				return &TimeoutError{Addr: item.Addr, Timeout: timeout}
			}
			return &ProviderError{Addr: item.Addr, Op: "delete", Err: err}
		}
		mu.Lock()
		for i, res := range state.Resources {
			if res.Addr() == item.Addr {
				state.Resources = append(state.Resources[:i], state.Resources[i+1:]...)
				break
			}
		}
		mu.Unlock()
	}
	return nil
}

func providerFor(item *ir.PlanItem) string {
	if item.Desired != nil {
		return item.Desired.Provider
	}
	if item.Prior != nil {
		return item.Prior.Provider
	}
	return ""
}

// resolveAttributes replaces every Reference placeholder with the concrete
// value recorded for the target node, preferring provider-returned outputs
// over declared inputs.
func resolveAttributes(attrs map[string]any, state *ir.State) (map[string]any, error) {
	resolved, err := resolveValue(attrs, state)
	if err != nil {
		return nil, err
	}
	return resolved.(map[string]any), nil
}

func resolveValue(v any, state *ir.State) (any, error) {
	switch val := v.(type) {
	case ir.Reference:
		res, ok := state.Resource(val.Addr())
		if !ok {
			return nil, fmt.Errorf("reference %s: resource not in state", val)
		}
		if out, ok := res.Outputs[val.Field]; ok {
			return out, nil
		}
		if in, ok := res.Inputs[val.Field]; ok {
			return in, nil
		}
		return nil, fmt.Errorf("reference %s: field not found", val)
	case map[string]any:
		resolved := make(map[string]any, len(val))
		for k, nested := range val {
			rv, err := resolveValue(nested, state)
			if err != nil {
				return nil, err
			}
			resolved[k] = rv
		}
		return resolved, nil
	case []any:
		resolved := make([]any, len(val))
		for i, nested := range val {
			rv, err := resolveValue(nested, state)
			if err != nil {
				return nil, err
			}
			resolved[i] = rv
		}
		return resolved, nil
	default:
		return v, nil
	}
}

// resolveOutputs resolves declared output values against the final state.
// Outputs whose references cannot be resolved keep their placeholder form
// rather than failing the whole apply.
func resolveOutputs(outputs map[string]any, state *ir.State) map[string]any {
	if len(outputs) == 0 {
		return nil
	}
	resolved := make(map[string]any, len(outputs))
	for name, val := range outputs {
		rv, err := resolveValue(val, state)
		if err != nil {
			logging.Warn("output not resolvable", "output", name, "error", err)
			resolved[name] = val
			continue
		}
		resolved[name] = rv
	}
	return resolved
}
