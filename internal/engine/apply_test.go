package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackform/stackform/internal/ir"
	"github.com/stackform/stackform/internal/provider"
)

// stubAdapter is a controllable in-memory adapter. failOn makes a call
// against the given address fail, hangOn makes it block until the call
// context expires.
type stubAdapter struct {
	mu     sync.Mutex
	calls  []string
	seen   map[string]map[string]any
	failOn map[string]error
	hangOn map[string]bool
	serial int
}

func newStubAdapter() *stubAdapter {
	return &stubAdapter{
		seen:   make(map[string]map[string]any),
		failOn: make(map[string]error),
		hangOn: make(map[string]bool),
	}
}

func (s *stubAdapter) record(op, addr string, attrs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, op+" "+addr)
	if attrs != nil {
		s.seen[addr] = attrs
	}
}

func (s *stubAdapter) callErr(ctx context.Context, addr string) error {
	s.mu.Lock()
	hang := s.hangOn[addr]
	err := s.failOn[addr]
	s.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (s *stubAdapter) Create(ctx context.Context, node *ir.ResourceNode, attrs map[string]any) (map[string]any, error) {
	addr := node.Addr()
	if err := s.callErr(ctx, addr); err != nil {
		return nil, err
	}
	s.record("create", addr, attrs)
	s.mu.Lock()
	s.serial++
	id := fmt.Sprintf("stub-%d", s.serial)
	s.mu.Unlock()
	outputs := map[string]any{"id": id}
	for k, v := range attrs {
		outputs[k] = v
	}
	return outputs, nil
}

func (s *stubAdapter) Update(ctx context.Context, node *ir.ResourceNode, attrs map[string]any, prior *ir.ResourceState, diff map[string]*ir.AttributeDiff) (map[string]any, error) {
	addr := node.Addr()
	if err := s.callErr(ctx, addr); err != nil {
		return nil, err
	}
	s.record("update", addr, attrs)
	outputs := map[string]any{"id": prior.Outputs["id"]}
	for k, v := range attrs {
		outputs[k] = v
	}
	return outputs, nil
}

func (s *stubAdapter) Delete(ctx context.Context, prior *ir.ResourceState) error {
	addr := prior.Addr()
	if err := s.callErr(ctx, addr); err != nil {
		return err
	}
	s.record("delete", addr, nil)
	return nil
}

func (s *stubAdapter) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func testEngine(t *testing.T, stub *stubAdapter) *Engine {
	t.Helper()
	reg := provider.NewRegistry()
	require.NoError(t, reg.Register("null", func() (provider.Adapter, error) { return stub, nil }))
	require.NoError(t, reg.Load("null"))
	return NewEngine(reg)
}

func TestApplyPlan_CreateCommitsState(t *testing.T) {
	stub := newStubAdapter()
	eng := testEngine(t, stub)

	cfg := config(t, node("net_network", "net", attrs(map[string]any{"cidr": "10.0.0.0/16"})))
	st := emptyState()

	plan, err := eng.CreatePlan(cfg, st)
	require.NoError(t, err)

	newState, err := eng.ApplyPlan(context.Background(), plan, st)
	require.NoError(t, err)

	assert.Equal(t, []string{"create net_network.net"}, stub.callLog())
	res, ok := newState.Resource("net_network.net")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.0/16", res.Inputs["cidr"])
	assert.NotEmpty(t, res.Outputs["id"])
	assert.Equal(t, 1, newState.Serial)
}

func TestApplyPlan_RoundTripConverges(t *testing.T) {
	stub := newStubAdapter()
	eng := testEngine(t, stub)

	cfg := config(t,
		node("net_network", "net", attrs(map[string]any{"cidr": "10.0.0.0/16"})),
		node("net_subnet", "sub", attrs(map[string]any{
			"network_id": ir.Reference{Kind: "net_network", Name: "net", Field: "id"},
		})),
	)
	st := emptyState()

	plan, err := eng.CreatePlan(cfg, st)
	require.NoError(t, err)
	st, err = eng.ApplyPlan(context.Background(), plan, st)
	require.NoError(t, err)

	// An unchanged declaration set against the resulting state must plan
	// to nothing but no-ops.
	replan, err := eng.CreatePlan(cfg, st)
	require.NoError(t, err)
	for _, item := range replan.Items {
		assert.Equal(t, ir.ActionNoOp, item.Action, "unexpected action for %s", item.Addr)
	}
}

func TestApplyPlan_ResolvesReferencesFromOutputs(t *testing.T) {
	stub := newStubAdapter()
	eng := testEngine(t, stub)

	cfg := config(t,
		node("net_network", "net"),
		node("net_subnet", "sub", attrs(map[string]any{
			"network_id": ir.Reference{Kind: "net_network", Name: "net", Field: "id"},
		})),
	)
	st := emptyState()

	plan, err := eng.CreatePlan(cfg, st)
	require.NoError(t, err)
	st, err = eng.ApplyPlan(context.Background(), plan, st)
	require.NoError(t, err)

	netRes, ok := st.Resource("net_network.net")
	require.True(t, ok)
	assert.Equal(t, netRes.Outputs["id"], stub.seen["net_subnet.sub"]["network_id"],
		"subnet must receive the network's live id, not a placeholder")
}

func TestApplyPlan_PartialFailureSkipsDependents(t *testing.T) {
	stub := newStubAdapter()
	stub.failOn["net_network.net"] = errors.New("quota exhausted")
	eng := testEngine(t, stub)

	cfg := config(t,
		node("net_network", "net"),
		node("net_subnet", "sub", attrs(map[string]any{
			"network_id": ir.Reference{Kind: "net_network", Name: "net", Field: "id"},
		})),
		node("null_resource", "independent"),
	)
	st := emptyState()

	plan, err := eng.CreatePlan(cfg, st)
	require.NoError(t, err)
	st, err = eng.ApplyPlan(context.Background(), plan, st)

	var partial *PartialApplyError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{"net_network.net"}, partial.Failed)
	assert.Equal(t, []string{"net_subnet.sub"}, partial.Skipped)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "net_network.net", provErr.Addr)

	// The independent branch still applied and landed in state.
	_, ok := st.Resource("null_resource.independent")
	assert.True(t, ok)
	_, ok = st.Resource("net_network.net")
	assert.False(t, ok, "failed resource must not be recorded")
	_, ok = st.Resource("net_subnet.sub")
	assert.False(t, ok, "skipped resource must not be recorded")
}

func TestApplyPlan_DeleteFailureSkipsDependencyDelete(t *testing.T) {
	// A depended on B; both are removed from the declarations. A's delete
	// runs first and fails, so B's delete must be skipped and B must
	// survive in state: removing a dependency while a dependent still
	// exists is never allowed.
	stub := newStubAdapter()
	stub.failOn["null_resource.a"] = errors.New("still in use")
	eng := testEngine(t, stub)

	cfg := config(t)
	st := &ir.State{Version: 1, Resources: []*ir.ResourceState{
		{Kind: "null_resource", Name: "b", Provider: "null"},
		{Kind: "null_resource", Name: "a", Provider: "null", Dependencies: []string{"null_resource.b"}},
	}}

	plan, err := eng.CreatePlan(cfg, st)
	require.NoError(t, err)
	st, err = eng.ApplyPlan(context.Background(), plan, st)

	var partial *PartialApplyError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{"null_resource.a"}, partial.Failed)
	assert.Equal(t, []string{"null_resource.b"}, partial.Skipped)

	_, ok := st.Resource("null_resource.a")
	assert.True(t, ok, "failed delete must leave the resource in state")
	_, ok = st.Resource("null_resource.b")
	assert.True(t, ok, "a dependency must not be deleted under a surviving dependent")
}

func TestApplyPlan_FullyFailedApplyKeepsSerial(t *testing.T) {
	stub := newStubAdapter()
	stub.failOn["null_resource.only"] = errors.New("quota exhausted")
	eng := testEngine(t, stub)

	cfg := config(t, node("null_resource", "only"))
	st := emptyState()

	plan, err := eng.CreatePlan(cfg, st)
	require.NoError(t, err)
	st, err = eng.ApplyPlan(context.Background(), plan, st)

	var partial *PartialApplyError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 0, st.Serial, "an apply that changed nothing must not advance the serial")
	assert.Empty(t, st.Resources)
}

func TestApplyPlan_DeleteRemovesFromState(t *testing.T) {
	stub := newStubAdapter()
	eng := testEngine(t, stub)

	cfg := config(t)
	st := &ir.State{Version: 1, Resources: []*ir.ResourceState{{
		Kind: "null_resource", Name: "gone", Provider: "null",
		Outputs: map[string]any{"id": "stub-1"},
	}}}

	plan, err := eng.CreatePlan(cfg, st)
	require.NoError(t, err)
	st, err = eng.ApplyPlan(context.Background(), plan, st)
	require.NoError(t, err)

	assert.Equal(t, []string{"delete null_resource.gone"}, stub.callLog())
	assert.Empty(t, st.Resources)
}

func TestApplyPlan_ReplaceDeletesBeforeCreating(t *testing.T) {
	stub := newStubAdapter()
	eng := testEngine(t, stub)
	eng.Policy = ImmutablePolicy{"net_network": {"cidr"}}

	cfg := config(t, node("net_network", "net", attrs(map[string]any{"cidr": "10.1.0.0/16"})))
	st := &ir.State{Version: 1, Resources: []*ir.ResourceState{{
		Kind: "net_network", Name: "net", Provider: "null",
		Inputs:  map[string]any{"cidr": "10.0.0.0/16"},
		Outputs: map[string]any{"id": "stub-old"},
	}}}

	plan, err := eng.CreatePlan(cfg, st)
	require.NoError(t, err)
	st, err = eng.ApplyPlan(context.Background(), plan, st)
	require.NoError(t, err)

	assert.Equal(t, []string{"delete net_network.net", "create net_network.net"}, stub.callLog())
	res, ok := st.Resource("net_network.net")
	require.True(t, ok)
	assert.NotEqual(t, "stub-old", res.Outputs["id"])
}

func TestApplyPlan_ParallelAppliesAll(t *testing.T) {
	stub := newStubAdapter()
	eng := testEngine(t, stub)
	eng.Parallelism = 4

	set := ir.NewNodeSet()
	for i := 0; i < 8; i++ {
		require.NoError(t, set.Define(node("null_resource", fmt.Sprintf("r%d", i))))
	}
	cfg := &ir.Config{Nodes: set}
	st := emptyState()

	plan, err := eng.CreatePlan(cfg, st)
	require.NoError(t, err)
	st, err = eng.ApplyPlan(context.Background(), plan, st)
	require.NoError(t, err)

	assert.Len(t, st.Resources, 8)
	assert.Len(t, stub.callLog(), 8)
}

func TestApplyPlan_ParallelRespectsDependencies(t *testing.T) {
	stub := newStubAdapter()
	eng := testEngine(t, stub)
	eng.Parallelism = 4

	cfg := config(t,
		node("net_network", "net"),
		node("net_subnet", "sub", attrs(map[string]any{
			"network_id": ir.Reference{Kind: "net_network", Name: "net", Field: "id"},
		})),
	)
	st := emptyState()

	plan, err := eng.CreatePlan(cfg, st)
	require.NoError(t, err)
	_, err = eng.ApplyPlan(context.Background(), plan, st)
	require.NoError(t, err)

	calls := stub.callLog()
	require.Len(t, calls, 2)
	assert.Equal(t, "create net_network.net", calls[0])
	assert.Equal(t, "create net_subnet.sub", calls[1])
}

func TestApplyPlan_ParallelSkipPropagates(t *testing.T) {
	stub := newStubAdapter()
	stub.failOn["net_network.net"] = errors.New("quota exhausted")
	eng := testEngine(t, stub)
	eng.Parallelism = 4

	cfg := config(t,
		node("net_network", "net"),
		node("net_subnet", "sub", attrs(map[string]any{
			"network_id": ir.Reference{Kind: "net_network", Name: "net", Field: "id"},
		})),
		node("compute_instance", "inst", attrs(map[string]any{
			"subnet_id": ir.Reference{Kind: "net_subnet", Name: "sub", Field: "id"},
		})),
	)
	st := emptyState()

	plan, err := eng.CreatePlan(cfg, st)
	require.NoError(t, err)
	_, err = eng.ApplyPlan(context.Background(), plan, st)

	var partial *PartialApplyError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{"net_network.net"}, partial.Failed)
	assert.ElementsMatch(t, []string{"net_subnet.sub", "compute_instance.inst"}, partial.Skipped)
}

func TestApplyPlan_ItemTimeout(t *testing.T) {
	stub := newStubAdapter()
	stub.hangOn["null_resource.slow"] = true
	eng := testEngine(t, stub)
	eng.ItemTimeout = 50 * time.Millisecond

	cfg := config(t, node("null_resource", "slow"))
	st := emptyState()

	plan, err := eng.CreatePlan(cfg, st)
	require.NoError(t, err)
	_, err = eng.ApplyPlan(context.Background(), plan, st)

	var partial *PartialApplyError
	require.ErrorAs(t, err, &partial)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "null_resource.slow", timeoutErr.Addr)
	assert.Equal(t, 50*time.Millisecond, timeoutErr.Timeout)
}

func TestApplyPlan_ResolvesOutputs(t *testing.T) {
	stub := newStubAdapter()
	eng := testEngine(t, stub)

	set := ir.NewNodeSet()
	require.NoError(t, set.Define(node("net_network", "net", attrs(map[string]any{"cidr": "10.0.0.0/16"}))))
	cfg := &ir.Config{
		Nodes: set,
		Outputs: map[string]any{
			"network_id": ir.Reference{Kind: "net_network", Name: "net", Field: "id"},
		},
	}
	st := emptyState()

	plan, err := eng.CreatePlan(cfg, st)
	require.NoError(t, err)
	st, err = eng.ApplyPlan(context.Background(), plan, st)
	require.NoError(t, err)

	res, _ := st.Resource("net_network.net")
	assert.Equal(t, res.Outputs["id"], st.Outputs["network_id"])
}

func TestApplyPlan_RetriesTransientErrors(t *testing.T) {
	stub := newStubAdapter()
	var attempts int
	flaky := &flakyAdapter{inner: stub, failures: 2, err: errors.New("throttled: rate exceeded"), attempts: &attempts}

	reg := provider.NewRegistry()
	require.NoError(t, reg.Register("null", func() (provider.Adapter, error) { return flaky, nil }))
	require.NoError(t, reg.Load("null"))
	eng := NewEngine(reg)

	cfg := config(t, node("null_resource", "retry"))
	st := emptyState()

	plan, err := eng.CreatePlan(cfg, st)
	require.NoError(t, err)
	st, err = eng.ApplyPlan(context.Background(), plan, st)
	require.NoError(t, err)

	assert.Equal(t, 3, attempts)
	_, ok := st.Resource("null_resource.retry")
	assert.True(t, ok)
}

// flakyAdapter fails the first N create calls with a fixed error, then
// delegates to the wrapped adapter.
type flakyAdapter struct {
	inner    provider.Adapter
	failures int
	err      error
	attempts *int
}

func (f *flakyAdapter) Create(ctx context.Context, node *ir.ResourceNode, attrs map[string]any) (map[string]any, error) {
	*f.attempts++
	if *f.attempts <= f.failures {
		return nil, f.err
	}
	return f.inner.Create(ctx, node, attrs)
}

func (f *flakyAdapter) Update(ctx context.Context, node *ir.ResourceNode, attrs map[string]any, prior *ir.ResourceState, diff map[string]*ir.AttributeDiff) (map[string]any, error) {
	return f.inner.Update(ctx, node, attrs, prior, diff)
}

func (f *flakyAdapter) Delete(ctx context.Context, prior *ir.ResourceState) error {
	return f.inner.Delete(ctx, prior)
}
