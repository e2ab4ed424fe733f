package engine

import (
	"sort"

	"github.com/stackform/stackform/internal/ir"
)

// Graph is a directed acyclic graph of resources, edges pointing from
// dependent to dependency. Nodes keep their declaration order so that
// topological ordering is deterministic across runs given identical input.
type Graph struct {
	nodes map[string]*graphNode
	order []string // addresses in declaration (first-seen) order
}

type graphNode struct {
	addr       string
	deps       []string // addresses this node depends on
	dependents []string // addresses depending on this node
}

// ResolveReferences builds the dependency graph for a declaration set. It
// scans every attribute value for Reference placeholders and combines them
// with explicit DependsOn entries. A reference to an identity absent from
// the set is a hard error here, never at apply time. Resolution is pure.
func ResolveReferences(nodes []*ir.ResourceNode) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*graphNode)}
	for _, node := range nodes {
		addr := node.Addr()
		g.nodes[addr] = &graphNode{addr: addr}
		g.order = append(g.order, addr)
	}

	for _, node := range nodes {
		addr := node.Addr()
		gn := g.nodes[addr]

		for _, dep := range node.DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				return nil, &UnknownReferenceError{Source: addr, Target: dep}
			}
			gn.addEdge(dep)
		}

		for _, ref := range ExtractReferences(node.Attributes) {
			target := ref.Addr()
			if _, ok := g.nodes[target]; !ok {
				return nil, &UnknownReferenceError{Source: addr, Target: target}
			}
			gn.addEdge(target)
		}
	}

	g.buildDependents()
	return g, nil
}

// BuildGraphFromState builds a graph over recorded state entries using
// their stored dependency lists, for ordering deletions. Dependencies that
// are no longer present in state get placeholder nodes so ordering among
// the remaining entries still holds.
func BuildGraphFromState(state *ir.State) *Graph {
	g := &Graph{nodes: make(map[string]*graphNode)}
	for _, res := range state.Resources {
		addr := res.Addr()
		if _, ok := g.nodes[addr]; !ok {
			g.nodes[addr] = &graphNode{addr: addr}
			g.order = append(g.order, addr)
		}
	}
	for _, res := range state.Resources {
		gn := g.nodes[res.Addr()]
		for _, dep := range res.Dependencies {
			if _, ok := g.nodes[dep]; !ok {
				g.nodes[dep] = &graphNode{addr: dep}
				g.order = append(g.order, dep)
			}
			gn.addEdge(dep)
		}
	}
	g.buildDependents()
	return g
}

func (n *graphNode) addEdge(dep string) {
	if dep == n.addr {
		return
	}
	for _, d := range n.deps {
		if d == dep {
			return
		}
	}
	n.deps = append(n.deps, dep)
}

func (g *Graph) buildDependents() {
	for _, addr := range g.order {
		for _, dep := range g.nodes[addr].deps {
			g.nodes[dep].dependents = append(g.nodes[dep].dependents, addr)
		}
	}
}

// TopoOrder returns every address with dependencies before dependents.
// Nodes with no remaining ordering constraint are emitted in declaration
// order, so the result is stable and reproducible. A cycle fails the whole
// ordering with a CycleError; no partial order is ever returned.
func (g *Graph) TopoOrder() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for addr, node := range g.nodes {
		inDegree[addr] = len(node.deps)
	}

	sorted := make([]string, 0, len(g.nodes))
	emitted := make(map[string]bool, len(g.nodes))
	for len(sorted) < len(g.order) {
		progressed := false
		for _, addr := range g.order {
			if emitted[addr] || inDegree[addr] != 0 {
				continue
			}
			emitted[addr] = true
			sorted = append(sorted, addr)
			for _, dependent := range g.nodes[addr].dependents {
				inDegree[dependent]--
			}
			progressed = true
		}
		if !progressed {
			return nil, &CycleError{Path: g.findCycle(emitted)}
		}
	}
	return sorted, nil
}

// ReverseTopoOrder returns the destruction order: dependents strictly
// before their dependencies.
func (g *Graph) ReverseTopoOrder() ([]string, error) {
	order, err := g.TopoOrder()
	if err != nil {
		return nil, err
	}
	rev := make([]string, len(order))
	for i, addr := range order {
		rev[len(order)-1-i] = addr
	}
	return rev, nil
}

// Dependencies returns the direct dependencies of addr.
func (g *Graph) Dependencies(addr string) []string {
	if n, ok := g.nodes[addr]; ok {
		return n.deps
	}
	return nil
}

// Dependents returns the addresses directly depending on addr.
func (g *Graph) Dependents(addr string) []string {
	if n, ok := g.nodes[addr]; ok {
		return n.dependents
	}
	return nil
}

// TransitiveDeps returns every address reachable from addr along
// dependency edges.
func (g *Graph) TransitiveDeps(addr string) []string {
	var out []string
	seen := map[string]bool{addr: true}
	stack := append([]string(nil), g.Dependencies(addr)...)
	for len(stack) > 0 {
		next := stack[0]
		stack = stack[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		out = append(out, next)
		stack = append(stack, g.Dependencies(next)...)
	}
	return out
}

// findCycle walks the unemitted remainder of the graph to produce one
// concrete cycle path for the error message.
func (g *Graph) findCycle(emitted map[string]bool) []string {
	var start string
	for _, addr := range g.order {
		if !emitted[addr] {
			start = addr
			break
		}
	}
	if start == "" {
		return nil
	}

	// Every unemitted node has at least one unemitted dependency, so
	// following those edges must eventually revisit a node.
	var path []string
	pos := make(map[string]int)
	cur := start
	for {
		if i, seen := pos[cur]; seen {
			return append(path[i:], cur)
		}
		pos[cur] = len(path)
		path = append(path, cur)
		for _, dep := range g.nodes[cur].deps {
			if !emitted[dep] {
				cur = dep
				break
			}
		}
	}
}

// ExtractReferences collects every Reference placeholder embedded in an
// attribute value, recursing into lists and nested maps. Map keys are
// visited in sorted order so the result is stable.
func ExtractReferences(v any) []ir.Reference {
	var refs []ir.Reference
	switch val := v.(type) {
	case ir.Reference:
		refs = append(refs, val)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			refs = append(refs, ExtractReferences(val[k])...)
		}
	case []any:
		for _, nested := range val {
			refs = append(refs, ExtractReferences(nested)...)
		}
	}
	return refs
}
