package ir

// Config represents the top-level declaration set.
type Config struct {
	Nodes   *NodeSet
	Outputs map[string]any // values may embed References
}
