package engine

import (
	"encoding/json"
	"fmt"
	"os"
)

// ImmutablePolicy maps a resource kind to the attribute names that cannot
// be updated in place. A change to any listed field forces a replacement.
// The table is deliberately external configuration: which fields a real
// provider can mutate is not something the core can infer.
type ImmutablePolicy map[string][]string

// Immutable reports whether the given field of the given kind forces a
// replacement when changed.
func (p ImmutablePolicy) Immutable(kind, field string) bool {
	for _, f := range p[kind] {
		if f == field {
			return true
		}
	}
	return false
}

// LoadImmutablePolicy reads a policy table from a JSON document of the
// form {"kind": ["field", ...], ...}.
func LoadImmutablePolicy(path string) (ImmutablePolicy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read immutable policy %s: %w", path, err)
	}
	var p ImmutablePolicy
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to parse immutable policy %s: %w", path, err)
	}
	return p, nil
}
