package ir

import (
	"encoding/json"
	"fmt"
)

// ResourceNode is a single declared resource. Identity is (Kind, Name) and
// must be unique within a declaration set. Attribute values are literals,
// lists, nested maps, or Reference placeholders.
type ResourceNode struct {
	Kind       string         `json:"kind"` // e.g. "compute.Instance"
	Name       string         `json:"name"`
	Provider   string         `json:"provider"`
	Lifecycle  *Lifecycle     `json:"lifecycle,omitempty"`
	DependsOn  []string       `json:"dependsOn,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type Lifecycle struct {
	PreventDestroy bool     `json:"preventDestroy,omitempty"`
	IgnoreChanges  []string `json:"ignoreChanges,omitempty"`
}

// Addr returns the node's address (kind.name).
func (n *ResourceNode) Addr() string {
	return fmt.Sprintf("%s.%s", n.Kind, n.Name)
}

// Reference is a typed placeholder for another node's field, embedded in
// attribute values by a declaration front-end. It stays unresolved until
// graph build time.
type Reference struct {
	Kind  string
	Name  string
	Field string
}

// Addr returns the address of the referenced node.
func (r Reference) Addr() string {
	return fmt.Sprintf("%s.%s", r.Kind, r.Name)
}

func (r Reference) String() string {
	return fmt.Sprintf("%s.%s.%s", r.Kind, r.Name, r.Field)
}

// MarshalJSON encodes a reference as {"$ref": "kind.name.field"} so that
// attribute maps containing references stay plain serializable documents.
func (r Reference) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"$ref": r.String()})
}

// DuplicateIdentityError is returned when two nodes share (kind, name).
type DuplicateIdentityError struct {
	Kind string
	Name string
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("duplicate resource identity %s.%s", e.Kind, e.Name)
}

// NodeSet is an ordered collection of resource nodes. Declaration order is
// preserved so downstream ordering stays deterministic.
type NodeSet struct {
	nodes []*ResourceNode
	index map[string]*ResourceNode
}

func NewNodeSet() *NodeSet {
	return &NodeSet{index: make(map[string]*ResourceNode)}
}

// Define adds a node to the set, enforcing identity uniqueness.
func (s *NodeSet) Define(node *ResourceNode) error {
	addr := node.Addr()
	if _, exists := s.index[addr]; exists {
		return &DuplicateIdentityError{Kind: node.Kind, Name: node.Name}
	}
	s.nodes = append(s.nodes, node)
	s.index[addr] = node
	return nil
}

// Get looks up a node by address.
func (s *NodeSet) Get(addr string) (*ResourceNode, bool) {
	n, ok := s.index[addr]
	return n, ok
}

// Nodes returns all nodes in declaration order.
func (s *NodeSet) Nodes() []*ResourceNode {
	return s.nodes
}

func (s *NodeSet) Len() int {
	return len(s.nodes)
}
