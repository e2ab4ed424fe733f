package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackform/stackform/internal/engine"
	"github.com/stackform/stackform/internal/ir"
	"github.com/stackform/stackform/internal/state"
)

var (
	destroyAutoApprove bool
	destroyParallelism int
)

var destroyCmd = &cobra.Command{
	Use:   "destroy [dir]",
	Short: "Destroy all managed resources",
	Long: `Deletes every resource tracked in the state file, dependents before
their dependencies. This is the inverse of 'stackform apply'.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval before destroying")
	destroyCmd.Flags().IntVar(&destroyParallelism, "parallelism", 1, "Destroy up to N independent resources concurrently")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	wd, err := resolveWorkdir(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	stateMgr := state.NewManager(statePath(wd))
	current, err := stateMgr.Read()
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	if len(current.Resources) == 0 {
		fmt.Println("Nothing to destroy. State holds no resources.")
		return nil
	}

	registry := newRegistry()
	if err := loadStateProviders(registry, current); err != nil {
		return err
	}

	eng, err := newEngine(registry)
	if err != nil {
		return err
	}
	eng.Parallelism = destroyParallelism

	// Destroying is planning against an empty declaration set: every
	// recorded resource becomes a delete in reverse dependency order.
	empty := &ir.Config{Nodes: ir.NewNodeSet()}
	plan, err := eng.CreatePlan(empty, current)
	if err != nil {
		return fmt.Errorf("destroy plan generation failed: %w", err)
	}

	fmt.Println("Stackform will destroy the following resources:")
	renderPlanItems(plan)
	renderPlanSummary(plan)

	if !destroyAutoApprove && !confirm("Do you really want to destroy all resources?") {
		fmt.Println("Destroy cancelled.")
		return nil
	}

	newState, applyErr := eng.ApplyPlan(ctx, plan, current)
	if err := stateMgr.Write(newState); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	if applyErr != nil {
		var partial *engine.PartialApplyError
		if errors.As(applyErr, &partial) {
			fmt.Printf("\nDestroy incomplete: %d failed, %d skipped.\n", len(partial.Failed), len(partial.Skipped))
		}
		return applyErr
	}

	fmt.Printf("\nDestroy complete! %d resources deleted.\n", plan.Summary.Delete)
	return nil
}
