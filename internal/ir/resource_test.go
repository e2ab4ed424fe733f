package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeSet_PreservesDeclarationOrder(t *testing.T) {
	set := NewNodeSet()
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, set.Define(&ResourceNode{Kind: "null_resource", Name: name}))
	}

	var names []string
	for _, n := range set.Nodes() {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)
	assert.Equal(t, 3, set.Len())
}

func TestNodeSet_DuplicateIdentity(t *testing.T) {
	set := NewNodeSet()
	require.NoError(t, set.Define(&ResourceNode{Kind: "net_network", Name: "main"}))

	err := set.Define(&ResourceNode{Kind: "net_network", Name: "main"})
	var dup *DuplicateIdentityError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "net_network", dup.Kind)
	assert.Equal(t, "main", dup.Name)

	// Same name under a different kind is a distinct identity.
	require.NoError(t, set.Define(&ResourceNode{Kind: "net_subnet", Name: "main"}))
}

func TestNodeSet_Get(t *testing.T) {
	set := NewNodeSet()
	want := &ResourceNode{Kind: "net_network", Name: "main"}
	require.NoError(t, set.Define(want))

	got, ok := set.Get("net_network.main")
	require.True(t, ok)
	assert.Same(t, want, got)

	_, ok = set.Get("net_network.other")
	assert.False(t, ok)
}

func TestReference_Addresses(t *testing.T) {
	ref := Reference{Kind: "net_network", Name: "main", Field: "id"}
	assert.Equal(t, "net_network.main", ref.Addr())
	assert.Equal(t, "net_network.main.id", ref.String())
}

func TestReference_MarshalJSON(t *testing.T) {
	attrs := map[string]any{
		"network_id": Reference{Kind: "net_network", Name: "main", Field: "id"},
		"count":      2,
	}
	b, err := json.Marshal(attrs)
	require.NoError(t, err)
	assert.JSONEq(t, `{"network_id": {"$ref": "net_network.main.id"}, "count": 2}`, string(b))
}

func TestResourceNode_Addr(t *testing.T) {
	n := &ResourceNode{Kind: "compute_instance", Name: "web"}
	assert.Equal(t, "compute_instance.web", n.Addr())
}
