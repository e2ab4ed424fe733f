package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/stackform/stackform/internal/ir"
	"github.com/stackform/stackform/internal/logging"
	"github.com/stackform/stackform/internal/provider"
)

// Engine orchestrates planning and applying of resource graphs.
type Engine struct {
	registry *provider.Registry

	// Policy classifies which attributes force a replacement per kind.
	Policy ImmutablePolicy

	// Parallelism bounds how many disjoint plan items may be applied
	// concurrently. Values below 2 mean strictly sequential apply.
	Parallelism int

	// ItemTimeout bounds each provider call. Zero means DefaultTimeout.
	ItemTimeout time.Duration
}

func NewEngine(registry *provider.Registry) *Engine {
	return &Engine{registry: registry}
}

// CreatePlan computes an ordered sequence of plan items by diffing the
// declaration set against recorded state. Planning is pure: no provider is
// invoked and no state is mutated, so every plan-time error leaves the
// caller free to retry.
func (e *Engine) CreatePlan(cfg *ir.Config, state *ir.State) (*ir.Plan, error) {
	return e.CreatePlanWithTargets(cfg, state, nil)
}

// CreatePlanWithTargets computes a plan restricted to the given addresses
// and their transitive dependencies. Nil or empty targets plan everything.
func (e *Engine) CreatePlanWithTargets(cfg *ir.Config, state *ir.State, targets []string) (*ir.Plan, error) {
	nodes := cfg.Nodes.Nodes()
	logging.Debug("creating plan", "resources", len(nodes), "state_resources", len(state.Resources), "targets", len(targets))

	plan := &ir.Plan{
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Summary:   &ir.PlanSummary{},
		Outputs:   cfg.Outputs,
	}

	graph, err := ResolveReferences(nodes)
	if err != nil {
		return nil, err
	}
	order, err := graph.TopoOrder()
	if err != nil {
		return nil, err
	}

	stateMap := make(map[string]*ir.ResourceState)
	for _, res := range state.Resources {
		stateMap[res.Addr()] = res
	}

	var targetSet map[string]bool
	if len(targets) > 0 {
		targetSet = make(map[string]bool)
		for _, t := range targets {
			if _, declared := cfg.Nodes.Get(t); !declared {
				if _, recorded := stateMap[t]; !recorded {
					return nil, fmt.Errorf("unknown target %s: not declared and not recorded in state", t)
				}
			}
			targetSet[t] = true
			for _, dep := range graph.TransitiveDeps(t) {
				targetSet[dep] = true
			}
		}
	}

	for _, addr := range order {
		node, ok := cfg.Nodes.Get(addr)
		if !ok {
			continue
		}
		prior := stateMap[addr]

		if targetSet != nil && !targetSet[addr] {
			plan.Items = append(plan.Items, &ir.PlanItem{Addr: addr, Action: ir.ActionNoOp, Desired: node, Prior: prior})
			plan.Summary.NoOp++
			continue
		}

		if prior == nil {
			plan.Items = append(plan.Items, &ir.PlanItem{
				Addr:    addr,
				Action:  ir.ActionCreate,
				Desired: node,
				Diff:    buildCreateDiff(node.Attributes),
			})
			plan.Summary.Create++
			continue
		}

		diff, changed := diffAttributes(prior.Inputs, node.Attributes)
		changed = filterIgnoredChanges(node, changed)
		if len(changed) == 0 {
			plan.Items = append(plan.Items, &ir.PlanItem{Addr: addr, Action: ir.ActionNoOp, Desired: node, Prior: prior})
			plan.Summary.NoOp++
			continue
		}

		replace := false
		for _, field := range changed {
			if e.Policy.Immutable(node.Kind, field) {
				diff[field].ForcesReplacement = true
				replace = true
			}
		}

		if replace {
			if node.Lifecycle != nil && node.Lifecycle.PreventDestroy {
				return nil, fmt.Errorf("resource %s has prevent_destroy set but plan requires replacement", addr)
			}
			// Replacement is destroy-then-recreate. The model cannot
			// reconcile a disappearing dependency under live dependents,
			// so any recorded dependent fails the plan outright.
			for _, res := range state.Resources {
				for _, dep := range res.Dependencies {
					if dep == addr && res.Addr() != addr {
						return nil, &UnsafeReplaceError{Addr: addr, Dependent: res.Addr()}
					}
				}
			}
			plan.Items = append(plan.Items,
				&ir.PlanItem{Addr: addr, Action: ir.ActionDelete, Replace: true, Prior: prior, Diff: diff},
				&ir.PlanItem{Addr: addr, Action: ir.ActionCreate, Replace: true, Desired: node, Diff: buildCreateDiff(node.Attributes)},
			)
			plan.Summary.Replace++
			continue
		}

		changedDiff := make(map[string]*ir.AttributeDiff, len(changed))
		for _, field := range changed {
			changedDiff[field] = diff[field]
		}
		plan.Items = append(plan.Items, &ir.PlanItem{
			Addr:    addr,
			Action:  ir.ActionUpdate,
			Desired: node,
			Prior:   prior,
			Diff:    changedDiff,
		})
		plan.Summary.Update++
	}

	// Resources recorded in state but gone from the declarations are
	// deleted dependents-first: removing a dependency while a dependent
	// still exists must never happen.
	revOrder, err := BuildGraphFromState(state).ReverseTopoOrder()
	if err != nil {
		return nil, err
	}
	for _, addr := range revOrder {
		prior, ok := stateMap[addr]
		if !ok {
			continue
		}
		if _, declared := cfg.Nodes.Get(addr); declared {
			continue
		}
		if targetSet != nil && !targetSet[addr] {
			continue
		}
		plan.Items = append(plan.Items, &ir.PlanItem{
			Addr:   addr,
			Action: ir.ActionDelete,
			Prior:  prior,
			Diff:   buildDeleteDiff(prior.Inputs),
		})
		plan.Summary.Delete++
	}

	return plan, nil
}

// filterIgnoredChanges drops changed fields listed in the node's
// lifecycle ignore_changes set.
func filterIgnoredChanges(node *ir.ResourceNode, changed []string) []string {
	if node.Lifecycle == nil || len(node.Lifecycle.IgnoreChanges) == 0 {
		return changed
	}
	ignore := make(map[string]bool, len(node.Lifecycle.IgnoreChanges))
	for _, f := range node.Lifecycle.IgnoreChanges {
		ignore[f] = true
	}
	var kept []string
	for _, f := range changed {
		if !ignore[f] {
			kept = append(kept, f)
		}
	}
	return kept
}

// diffAttributes compares prior and desired attributes field by field and
// returns the full diff plus the sorted list of changed field names.
// Values are compared by canonical JSON encoding, which treats a typed
// Reference and its serialized {"$ref": ...} form as equal.
func diffAttributes(prior, desired map[string]any) (map[string]*ir.AttributeDiff, []string) {
	keys := make(map[string]bool)
	for k := range prior {
		keys[k] = true
	}
	for k := range desired {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	diff := make(map[string]*ir.AttributeDiff)
	var changed []string
	for _, k := range sorted {
		priorVal, inPrior := prior[k]
		desiredVal, inDesired := desired[k]
		switch {
		case !inPrior:
			diff[k] = &ir.AttributeDiff{After: desiredVal, Action: "create"}
			changed = append(changed, k)
		case !inDesired:
			diff[k] = &ir.AttributeDiff{Before: priorVal, Action: "delete"}
			changed = append(changed, k)
		case canonical(priorVal) != canonical(desiredVal):
			diff[k] = &ir.AttributeDiff{Before: priorVal, After: desiredVal, Action: "update"}
			changed = append(changed, k)
		}
	}
	return diff, changed
}

func buildCreateDiff(attrs map[string]any) map[string]*ir.AttributeDiff {
	diff := make(map[string]*ir.AttributeDiff, len(attrs))
	for k, v := range attrs {
		diff[k] = &ir.AttributeDiff{After: v, Action: "create"}
	}
	return diff
}

func buildDeleteDiff(attrs map[string]any) map[string]*ir.AttributeDiff {
	diff := make(map[string]*ir.AttributeDiff, len(attrs))
	for k, v := range attrs {
		diff[k] = &ir.AttributeDiff{Before: v, Action: "delete"}
	}
	return diff
}

// canonical renders a value as JSON for comparison. encoding/json sorts
// map keys, so equal values always produce equal encodings.
func canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
