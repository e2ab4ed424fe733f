package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackform/stackform/internal/decl"
	"github.com/stackform/stackform/internal/engine"
)

var graphCmd = &cobra.Command{
	Use:   "graph [dir]",
	Short: "Output the dependency graph in DOT format",
	Long: `Generates a visual representation of the resource dependency graph in
Graphviz DOT format. Pipe the output to 'dot' to render an image:

  stackform graph | dot -Tpng > graph.png`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	wd, err := resolveWorkdir(args)
	if err != nil {
		return err
	}

	cfg, err := decl.LoadDir(wd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	graph, err := engine.ResolveReferences(cfg.Nodes.Nodes())
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}

	fmt.Println("digraph stackform {")
	fmt.Println("  rankdir = \"BT\";")
	fmt.Println("  node [shape = rect];")
	fmt.Println()

	for _, node := range cfg.Nodes.Nodes() {
		fmt.Printf("  %q;\n", node.Addr())
	}
	fmt.Println()

	for _, node := range cfg.Nodes.Nodes() {
		for _, dep := range graph.Dependencies(node.Addr()) {
			fmt.Printf("  %q -> %q;\n", node.Addr(), dep)
		}
	}

	fmt.Println("}")
	return nil
}
