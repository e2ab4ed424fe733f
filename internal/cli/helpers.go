package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/stackform/stackform/internal/engine"
	"github.com/stackform/stackform/internal/ir"
	"github.com/stackform/stackform/internal/provider"
	"github.com/stackform/stackform/providers/mem"
	"github.com/stackform/stackform/providers/null"
)

// resolveWorkdir turns the optional positional argument into the
// declaration directory.
func resolveWorkdir(args []string) (string, error) {
	if len(args) == 0 {
		return os.Getwd()
	}
	abs, err := filepath.Abs(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %s: %w", args[0], err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("failed to stat path %s: %w", args[0], err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", args[0])
	}
	return abs, nil
}

// statePath returns the recorded-state location for a workdir.
func statePath(wd string) string {
	return filepath.Join(wd, ".stackform", "state.json")
}

// newRegistry builds a registry with the built-in providers available.
func newRegistry() *provider.Registry {
	registry := provider.NewRegistry()
	_ = registry.Register("null", null.New)
	_ = registry.Register("mem", mem.New)
	return registry
}

// newEngine builds an engine, loading the immutable policy table if one
// was configured.
func newEngine(registry *provider.Registry) (*engine.Engine, error) {
	eng := engine.NewEngine(registry)
	if policyPath != "" {
		policy, err := engine.LoadImmutablePolicy(policyPath)
		if err != nil {
			return nil, err
		}
		eng.Policy = policy
	}
	return eng, nil
}

// loadConfigProviders loads every provider referenced by declared nodes.
func loadConfigProviders(registry *provider.Registry, cfg *ir.Config) error {
	seen := make(map[string]bool)
	for _, node := range cfg.Nodes.Nodes() {
		if node.Provider != "" && !seen[node.Provider] {
			seen[node.Provider] = true
			if err := registry.Load(node.Provider); err != nil {
				return fmt.Errorf("failed to load provider %s: %w", node.Provider, err)
			}
		}
	}
	return nil
}

// loadStateProviders loads providers referenced by recorded resources,
// needed for deletes of nodes no longer declared.
func loadStateProviders(registry *provider.Registry, st *ir.State) error {
	seen := make(map[string]bool)
	for _, res := range st.Resources {
		if res.Provider != "" && !seen[res.Provider] {
			seen[res.Provider] = true
			if err := registry.Load(res.Provider); err != nil {
				return fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
			}
		}
	}
	return nil
}

// actionable counts the plan items that will touch a provider.
func actionable(plan *ir.Plan) int {
	n := 0
	for _, item := range plan.Items {
		if item.Action != ir.ActionNoOp {
			n++
		}
	}
	return n
}

// renderPlanItems prints the detailed item list for a plan.
func renderPlanItems(plan *ir.Plan) {
	for _, item := range plan.Items {
		if item.Action == ir.ActionNoOp {
			continue
		}

		symbol := "~"
		color := "\033[33m"
		verb := "updated"
		switch item.Action {
		case ir.ActionCreate:
			symbol, color, verb = "+", "\033[32m", "created"
		case ir.ActionDelete:
			symbol, color, verb = "-", "\033[31m", "deleted"
		}
		if item.Replace {
			verb += " (replacement)"
		}

		fmt.Printf("\n%s  # %s will be %s\033[0m\n", color, item.Addr, verb)
		fmt.Printf("%s  %s %s {\033[0m\n", color, symbol, item.Addr)
		renderDiff(item.Diff)
		fmt.Printf("%s    }\033[0m\n", color)
	}
}

func renderDiff(diff map[string]*ir.AttributeDiff) {
	keys := make([]string, 0, len(diff))
	for k := range diff {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		d := diff[key]
		marker := ""
		if d.ForcesReplacement {
			marker = " # forces replacement"
		}
		switch d.Action {
		case "create":
			fmt.Printf("\033[32m      + %s = %v\033[0m%s\n", key, formatValue(d.After), marker)
		case "delete":
			fmt.Printf("\033[31m      - %s = %v\033[0m%s\n", key, formatValue(d.Before), marker)
		default:
			fmt.Printf("\033[33m      ~ %s = %v -> %v\033[0m%s\n", key, formatValue(d.Before), formatValue(d.After), marker)
		}
	}
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	case ir.Reference:
		return fmt.Sprintf("(reference to %s)", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// renderPlanSummary prints the plan summary counts.
func renderPlanSummary(plan *ir.Plan) {
	fmt.Println("\nPlan Summary:")
	fmt.Printf("  Create:  %d\n", plan.Summary.Create)
	fmt.Printf("  Update:  %d\n", plan.Summary.Update)
	fmt.Printf("  Delete:  %d\n", plan.Summary.Delete)
	fmt.Printf("  Replace: %d\n", plan.Summary.Replace)
	fmt.Printf("  NoOp:    %d\n", plan.Summary.NoOp)
}

// confirm prompts for a y/n answer.
func confirm(prompt string) bool {
	fmt.Printf("\n%s (y/n): ", prompt)
	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "yes"
}
