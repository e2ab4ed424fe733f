package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackform/stackform/internal/decl"
	"github.com/stackform/stackform/internal/engine"
	"github.com/stackform/stackform/internal/state"
)

var (
	applyAutoApprove bool
	applyParallelism int
	applyTargets     []string
)

var applyCmd = &cobra.Command{
	Use:   "apply [dir]",
	Short: "Apply a configuration",
	Long: `Plans and applies the declared configuration, creating, updating,
replacing, and deleting resources as needed to converge recorded state.

A failed resource halts everything that depends on it; independent
resources are still applied, and the state file reflects exactly what
succeeded.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of the plan before applying")
	applyCmd.Flags().IntVar(&applyParallelism, "parallelism", 1, "Apply up to N independent resources concurrently")
	applyCmd.Flags().StringSliceVar(&applyTargets, "target", nil, "Limit the apply to the given resource addresses")
}

func runApply(cmd *cobra.Command, args []string) error {
	wd, err := resolveWorkdir(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	cfg, err := decl.LoadDir(wd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	registry := newRegistry()
	if err := loadConfigProviders(registry, cfg); err != nil {
		return err
	}

	stateMgr := state.NewManager(statePath(wd))
	current, err := stateMgr.Read()
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	if err := loadStateProviders(registry, current); err != nil {
		return err
	}

	eng, err := newEngine(registry)
	if err != nil {
		return err
	}
	eng.Parallelism = applyParallelism

	plan, err := eng.CreatePlanWithTargets(cfg, current, applyTargets)
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

	if !applyAutoApprove && !confirm("Do you want to perform these actions?") {
		fmt.Println("Apply cancelled.")
		return nil
	}

	fmt.Printf("\nApplying %d changes...\n", actionable(plan))

	newState, applyErr := eng.ApplyPlanWithCallback(ctx, plan, current, func(event engine.ApplyEvent) {
		switch event.Status {
		case engine.StatusInProgress:
			fmt.Printf("%s: %s...\n", event.Addr, event.Action)
		case engine.StatusApplied:
			fmt.Printf("%s: %s complete (%.1fs)\n", event.Addr, event.Action, event.Duration.Seconds())
		case engine.StatusFailed:
			fmt.Printf("%s: failed: %v\n", event.Addr, event.Error)
		case engine.StatusSkipped:
			fmt.Printf("%s: skipped (dependency failed)\n", event.Addr)
		}
	})

	// Persist whatever succeeded before reporting errors.
	if err := stateMgr.Write(newState); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	if applyErr != nil {
		var partial *engine.PartialApplyError
		if errors.As(applyErr, &partial) {
			fmt.Printf("\nApply incomplete: %d failed, %d skipped. Succeeded changes are recorded in state.\n",
				len(partial.Failed), len(partial.Skipped))
		}
		return applyErr
	}

	fmt.Printf("\nApply complete! Resources: %d added, %d changed, %d destroyed.\n",
		plan.Summary.Create+plan.Summary.Replace, plan.Summary.Update, plan.Summary.Delete+plan.Summary.Replace)

	if len(newState.Outputs) > 0 {
		fmt.Println("\nOutputs:")
		renderOutputs(newState.Outputs)
	}
	return nil
}
