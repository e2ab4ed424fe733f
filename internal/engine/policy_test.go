package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImmutablePolicy_Immutable(t *testing.T) {
	p := ImmutablePolicy{"net_network": {"cidr", "region"}}

	assert.True(t, p.Immutable("net_network", "cidr"))
	assert.True(t, p.Immutable("net_network", "region"))
	assert.False(t, p.Immutable("net_network", "name"))
	assert.False(t, p.Immutable("net_subnet", "cidr"))

	var empty ImmutablePolicy
	assert.False(t, empty.Immutable("net_network", "cidr"))
}

func TestLoadImmutablePolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"net_network": ["cidr"], "compute_instance": ["image", "zone"]}`), 0o644))

	p, err := LoadImmutablePolicy(path)
	require.NoError(t, err)
	assert.True(t, p.Immutable("net_network", "cidr"))
	assert.True(t, p.Immutable("compute_instance", "zone"))
	assert.False(t, p.Immutable("compute_instance", "name"))
}

func TestLoadImmutablePolicy_MissingFile(t *testing.T) {
	_, err := LoadImmutablePolicy(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestLoadImmutablePolicy_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`["not", "an", "object"]`), 0o644))

	_, err := LoadImmutablePolicy(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse immutable policy")
}
