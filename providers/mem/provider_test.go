package mem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackform/stackform/internal/ir"
)

func newProvider(t *testing.T) *Provider {
	t.Helper()
	a, err := New()
	require.NoError(t, err)
	return a.(*Provider)
}

func TestCreate_AssignsID(t *testing.T) {
	p := newProvider(t)
	node := &ir.ResourceNode{Kind: "net_network", Name: "main"}

	out, err := p.Create(context.Background(), node, map[string]any{"cidr": "10.0.0.0/16"})
	require.NoError(t, err)
	assert.NotEmpty(t, out["id"])
	assert.Equal(t, "10.0.0.0/16", out["cidr"])
	assert.Equal(t, 1, p.Len())
}

func TestCreate_DistinctIDs(t *testing.T) {
	p := newProvider(t)
	node := &ir.ResourceNode{Kind: "net_network", Name: "main"}

	first, err := p.Create(context.Background(), node, nil)
	require.NoError(t, err)
	second, err := p.Create(context.Background(), node, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first["id"], second["id"])
	assert.Equal(t, 2, p.Len())
}

func TestUpdate_KeepsIdentifier(t *testing.T) {
	p := newProvider(t)
	node := &ir.ResourceNode{Kind: "net_network", Name: "main"}

	created, err := p.Create(context.Background(), node, map[string]any{"mtu": 1500})
	require.NoError(t, err)

	prior := &ir.ResourceState{Kind: "net_network", Name: "main", Outputs: created}
	updated, err := p.Update(context.Background(), node, map[string]any{"mtu": 9000}, prior, nil)
	require.NoError(t, err)

	assert.Equal(t, created["id"], updated["id"])
	assert.Equal(t, 9000, updated["mtu"])
	assert.Equal(t, 1, p.Len())
}

func TestUpdate_AdoptsUnknownObject(t *testing.T) {
	p := newProvider(t)
	node := &ir.ResourceNode{Kind: "net_network", Name: "imported"}
	prior := &ir.ResourceState{Kind: "net_network", Name: "imported", Outputs: map[string]any{"id": "mem-external"}}

	out, err := p.Update(context.Background(), node, map[string]any{"mtu": 1500}, prior, nil)
	require.NoError(t, err)
	assert.Equal(t, "mem-external", out["id"])
	assert.Equal(t, 1, p.Len())
}

func TestDelete_RemovesObject(t *testing.T) {
	p := newProvider(t)
	node := &ir.ResourceNode{Kind: "net_network", Name: "main"}

	created, err := p.Create(context.Background(), node, nil)
	require.NoError(t, err)
	require.Equal(t, 1, p.Len())

	prior := &ir.ResourceState{Kind: "net_network", Name: "main", Outputs: created}
	require.NoError(t, p.Delete(context.Background(), prior))
	assert.Equal(t, 0, p.Len())
}

func TestDelete_MissingObjectIsNoOp(t *testing.T) {
	p := newProvider(t)
	prior := &ir.ResourceState{Kind: "net_network", Name: "gone", Outputs: map[string]any{"id": "never-existed"}}
	assert.NoError(t, p.Delete(context.Background(), prior))
}

func TestCancelledContext(t *testing.T) {
	p := newProvider(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Create(ctx, &ir.ResourceNode{Kind: "net_network", Name: "main"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
