package ir

// Action classifies what the executor must do for one node.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionNoOp   Action = "noop"
)

// Plan is a calculated execution plan: an ordered sequence of items,
// produced fresh each planning pass and consumed once by the executor.
type Plan struct {
	CreatedAt string         `json:"createdAt"`
	Items     []*PlanItem    `json:"items"`
	Summary   *PlanSummary   `json:"summary"`
	Outputs   map[string]any `json:"outputs,omitempty"`
}

// PlanItem is one planned action for one node. A replacement is modeled as
// two ordered items with Replace set: a delete followed by a create.
type PlanItem struct {
	Addr    string                    `json:"addr"`
	Action  Action                    `json:"action"`
	Replace bool                      `json:"replace,omitempty"`
	Desired *ResourceNode             `json:"desired,omitempty"`
	Prior   *ResourceState            `json:"prior,omitempty"`
	Diff    map[string]*AttributeDiff `json:"diff,omitempty"`
}

type AttributeDiff struct {
	Before            any    `json:"before,omitempty"`
	After             any    `json:"after,omitempty"`
	Action            string `json:"action"` // "create", "update", "delete"
	ForcesReplacement bool   `json:"forcesReplacement,omitempty"`
}

type PlanSummary struct {
	Create  int `json:"create"`
	Update  int `json:"update"`
	Delete  int `json:"delete"`
	Replace int `json:"replace"`
	NoOp    int `json:"noop"`
}
