package ir

import "fmt"

// State is the recorded state: last-known concrete attribute values per
// node identity. It is mutated only after a node's apply step succeeds.
type State struct {
	Version   int              `json:"version"`
	Serial    int              `json:"serial"`
	Lineage   string           `json:"lineage"`
	Resources []*ResourceState `json:"resources"`
	Outputs   map[string]any   `json:"outputs,omitempty"`
}

type ResourceState struct {
	Kind         string         `json:"kind"`
	Name         string         `json:"name"`
	Provider     string         `json:"provider"`
	Inputs       map[string]any `json:"inputs,omitempty"`  // declared attributes
	Outputs      map[string]any `json:"outputs,omitempty"` // provider-returned, includes assigned ids
	Dependencies []string       `json:"dependencies,omitempty"`
}

// Addr returns the resource's address (kind.name).
func (r *ResourceState) Addr() string {
	return fmt.Sprintf("%s.%s", r.Kind, r.Name)
}

// Resource looks up a state entry by address.
func (s *State) Resource(addr string) (*ResourceState, bool) {
	for _, r := range s.Resources {
		if r.Addr() == addr {
			return r, true
		}
	}
	return nil, false
}
