package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/stackform/stackform/internal/state"
)

var outputCmd = &cobra.Command{
	Use:   "output [dir] [name]",
	Short: "Show output values from the recorded state",
	Args:  cobra.MaximumNArgs(2),
	RunE:  runOutput,
}

func runOutput(cmd *cobra.Command, args []string) error {
	var dirArgs []string
	var name string
	if len(args) > 0 {
		dirArgs = args[:1]
	}
	if len(args) > 1 {
		name = args[1]
	}

	wd, err := resolveWorkdir(dirArgs)
	if err != nil {
		return err
	}

	st, err := state.NewManager(statePath(wd)).Read()
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if name != "" {
		val, ok := st.Outputs[name]
		if !ok {
			return fmt.Errorf("output %q not found in state", name)
		}
		fmt.Println(formatValue(val))
		return nil
	}

	if len(st.Outputs) == 0 {
		fmt.Println("No outputs recorded.")
		return nil
	}
	renderOutputs(st.Outputs)
	return nil
}

// renderOutputs prints outputs sorted by name.
func renderOutputs(outputs map[string]any) {
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s = %v\n", name, formatValue(outputs[name]))
	}
}
