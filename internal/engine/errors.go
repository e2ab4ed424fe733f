package engine

import (
	"fmt"
	"strings"
	"time"
)

// UnknownReferenceError means an attribute or depends_on entry points at a
// node identity that is not part of the declaration set. It fails graph
// construction outright; unresolved references are never deferred to apply.
type UnknownReferenceError struct {
	Source string // address of the referencing node
	Target string // address that could not be resolved
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("%s references unknown resource %s", e.Source, e.Target)
}

// CycleError carries one concrete cycle path through the dependency graph.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// UnsafeReplaceError means a node needs a destroy-and-recreate but the
// recorded state still holds resources depending on it. The model does not
// reconcile replacements mid-dependency-chain, so planning fails.
type UnsafeReplaceError struct {
	Addr      string
	Dependent string
}

func (e *UnsafeReplaceError) Error() string {
	return fmt.Sprintf("cannot replace %s: %s still depends on it", e.Addr, e.Dependent)
}

// ProviderError wraps a failure reported by a provider adapter for a
// single plan item.
type ProviderError struct {
	Addr string
	Op   string // "create", "update", "delete"
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// TimeoutError marks a plan item whose provider call exceeded its deadline.
// It fails the item under the same partial-failure rule as any other error.
type TimeoutError struct {
	Addr    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Addr, e.Timeout)
}

// PartialApplyError reports an apply pass where some items failed or were
// skipped. The returned state still reflects every item that succeeded.
type PartialApplyError struct {
	Failed  []string // addresses whose apply step failed, in plan order
	Skipped []string // addresses skipped because a dependency failed
	Errs    []error
}

func (e *PartialApplyError) Error() string {
	return fmt.Sprintf("apply incomplete: %d failed, %d skipped", len(e.Failed), len(e.Skipped))
}

func (e *PartialApplyError) Unwrap() []error { return e.Errs }
