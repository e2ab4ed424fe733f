package cli

import (
	"github.com/spf13/cobra"

	"github.com/stackform/stackform/internal/logging"
)

var (
	logLevel   string
	policyPath string
)

var rootCmd = &cobra.Command{
	Use:   "stackform",
	Short: "Declarative resource graph planner and applier",
	Long: `Stackform manages declared resources by resolving their references into
a dependency graph, planning create/update/replace/delete actions against
recorded state, and applying the plan in dependency order.

Plans are deterministic: identical declarations always produce the same
ordered action sequence.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&policyPath, "immutable-policy", "", "Path to a JSON table of immutable attributes per resource kind")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(outputCmd)
	rootCmd.AddCommand(versionCmd)
}
