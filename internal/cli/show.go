package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/stackform/stackform/internal/state"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show [dir]",
	Short: "Show the recorded state",
	Long:  `Displays a human-readable view of the recorded state file.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output in JSON format")
}

func runShow(cmd *cobra.Command, args []string) error {
	wd, err := resolveWorkdir(args)
	if err != nil {
		return err
	}

	st, err := state.NewManager(statePath(wd)).Read()
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if showJSON {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize state: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("State: version=%d serial=%d lineage=%s\n", st.Version, st.Serial, st.Lineage)
	fmt.Printf("Resources: %d\n", len(st.Resources))

	for _, res := range st.Resources {
		fmt.Printf("\n# %s\n", res.Addr())
		fmt.Printf("  provider = %s\n", res.Provider)
		if len(res.Dependencies) > 0 {
			fmt.Printf("  depends on: %v\n", res.Dependencies)
		}
		keys := make([]string, 0, len(res.Outputs))
		for k := range res.Outputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s = %v\n", k, formatValue(res.Outputs[k]))
		}
	}

	if len(st.Outputs) > 0 {
		fmt.Println("\nOutputs:")
		renderOutputs(st.Outputs)
	}
	return nil
}
