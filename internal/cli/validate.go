package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackform/stackform/internal/decl"
	"github.com/stackform/stackform/internal/engine"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Validate the configuration",
	Long: `Parses the declaration files, resolves every cross-resource reference,
and checks the dependency graph for cycles. These are the checks that
must hold before a plan can be computed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	wd, err := resolveWorkdir(args)
	if err != nil {
		return err
	}

	cfg, err := decl.LoadDir(wd)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	graph, err := engine.ResolveReferences(cfg.Nodes.Nodes())
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	if _, err := graph.TopoOrder(); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	fmt.Printf("Configuration valid: %d resources, %d outputs.\n", cfg.Nodes.Len(), len(cfg.Outputs))
	return nil
}
