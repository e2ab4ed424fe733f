package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackform/stackform/internal/decl"
	"github.com/stackform/stackform/internal/state"
)

var (
	planOutFile string
	planTargets []string
)

var planCmd = &cobra.Command{
	Use:   "plan [dir]",
	Short: "Generate an execution plan",
	Long: `Generates an execution plan showing what actions stackform will take to
reach the state declared in your configuration.

The plan shows resources to be created, updated, replaced, and deleted,
in the order they will be applied.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planOutFile, "out", "o", "", "Write the plan to a JSON file")
	planCmd.Flags().StringSliceVar(&planTargets, "target", nil, "Limit planning to the given resource addresses")
}

func runPlan(cmd *cobra.Command, args []string) error {
	wd, err := resolveWorkdir(args)
	if err != nil {
		return err
	}

	cfg, err := decl.LoadDir(wd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	stateMgr := state.NewManager(statePath(wd))
	current, err := stateMgr.Read()
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	eng, err := newEngine(newRegistry())
	if err != nil {
		return err
	}

	plan, err := eng.CreatePlanWithTargets(cfg, current, planTargets)
	if err != nil {
		return fmt.Errorf("plan generation failed: %w", err)
	}

	if actionable(plan) == 0 {
		fmt.Println("No changes. Resources are up to date.")
		return nil
	}

	fmt.Println("Stackform will perform the following actions:")
	renderPlanItems(plan)
	renderPlanSummary(plan)

	if planOutFile != "" {
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize plan: %w", err)
		}
		if err := os.WriteFile(planOutFile, data, 0644); err != nil {
			return fmt.Errorf("failed to write plan file: %w", err)
		}
		fmt.Printf("\nPlan written to %s\n", planOutFile)
	}
	return nil
}
