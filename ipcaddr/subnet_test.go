package ipcaddr

import (
	"testing"

	"github.com/stretchr/testify/require"

	address "github.com/filecoin-project/go-address"
)

func mustAddr(t *testing.T, _ string) address.Address {
	t.Helper()
	a, err := address.NewIDAddress(1)
	require.NoError(t, err)
	return a
}

// Ported from original_source/src/cross.rs's test_is_bottomup.
func TestIsBottomUp(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{"/root/f01", "/root/f01/f02", false},
		{"/root/f01", "/root", true},
		{"/root/f01", "/root/f02/f02", true},
		{"/root/f01/f02", "/root/f01/f02/f03", false},
	}
	for _, c := range cases {
		from, err := ParseSubnetID(c.from)
		require.NoError(t, err)
		to, err := ParseSubnetID(c.to)
		require.NoError(t, err)
		require.Equal(t, c.want, IsBottomUp(from, to), "from=%s to=%s", c.from, c.to)
	}
}

func TestCommonParent(t *testing.T) {
	a, err := ParseSubnetID("/root/f01/f02")
	require.NoError(t, err)
	b, err := ParseSubnetID("/root/f01/f03")
	require.NoError(t, err)
	common := a.CommonParent(b)
	require.Equal(t, "/root/f01", common.String())
}

func TestDown(t *testing.T) {
	ancestor, err := ParseSubnetID("/root/f01")
	require.NoError(t, err)
	dest, err := ParseSubnetID("/root/f01/f02/f03")
	require.NoError(t, err)
	next, err := ancestor.Down(dest)
	require.NoError(t, err)
	require.Equal(t, "/root/f01/f02", next.String())

	_, err = dest.Down(ancestor)
	require.Error(t, err)
}

func TestParentRoundTrip(t *testing.T) {
	id, err := ParseSubnetID("/root/f01/f02")
	require.NoError(t, err)
	parent, ok := id.Parent()
	require.True(t, ok)
	require.Equal(t, "/root/f01", parent.String())

	_, ok = NewRootSubnetID("root").Parent()
	require.False(t, ok)
}

func TestIPCAddressRoundTrip(t *testing.T) {
	sub, err := ParseSubnetID("/root/f01")
	require.NoError(t, err)
	addr := NewIPCAddress(sub, mustAddr(t, "f01"))
	parsed, err := ParseIPCAddress(addr.String())
	require.NoError(t, err)
	require.True(t, addr.Equals(parsed))
}
