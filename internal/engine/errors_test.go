package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "net_subnet.a references unknown resource net_network.ghost",
		(&UnknownReferenceError{Source: "net_subnet.a", Target: "net_network.ghost"}).Error())
	assert.Equal(t, "dependency cycle: a.a -> b.b -> a.a",
		(&CycleError{Path: []string{"a.a", "b.b", "a.a"}}).Error())
	assert.Equal(t, "cannot replace net_network.main: net_subnet.a still depends on it",
		(&UnsafeReplaceError{Addr: "net_network.main", Dependent: "net_subnet.a"}).Error())
	assert.Equal(t, "net_network.main timed out after 5s",
		(&TimeoutError{Addr: "net_network.main", Timeout: 5 * time.Second}).Error())
	assert.Equal(t, "apply incomplete: 1 failed, 2 skipped",
		(&PartialApplyError{Failed: []string{"a.a"}, Skipped: []string{"b.b", "c.c"}}).Error())
}

func TestProviderError_Unwrap(t *testing.T) {
	cause := errors.New("quota exhausted")
	err := &ProviderError{Addr: "net_network.main", Op: "create", Err: cause}
	assert.Equal(t, "create failed for net_network.main: quota exhausted", err.Error())
	require.ErrorIs(t, err, cause)
}

func TestPartialApplyError_UnwrapFindsItemErrors(t *testing.T) {
	timeout := &TimeoutError{Addr: "a.a", Timeout: time.Second}
	prov := &ProviderError{Addr: "b.b", Op: "update", Err: errors.New("boom")}
	partial := &PartialApplyError{Failed: []string{"a.a", "b.b"}, Errs: []error{timeout, prov}}

	var te *TimeoutError
	require.ErrorAs(t, partial, &te)
	assert.Equal(t, "a.a", te.Addr)

	var pe *ProviderError
	require.ErrorAs(t, partial, &pe)
	assert.Equal(t, "b.b", pe.Addr)
}
