package gateway

import (
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/stretchr/testify/require"

	"github.com/consensus-shipyard/ipc-gateway/ipcaddr"
)

// TestFundReleasePropagate adapts the upstream devnet integration scenario
// (fund a subnet from the parent, release value back up, then propagate the
// resulting postbox entry) to a direct state-level test, since this module
// carries no chain-sync/validator-mining harness to drive an end-to-end
// devnet test against.
func TestFundReleasePropagate(t *testing.T) {
	store := newTestStore(t)
	st := newTestState(t, store)

	root := ipcaddr.NewRootSubnetID("/root")
	child := ipcaddr.NewSubnetID(root, mustAddrN(t, 101))
	require.NoError(t, st.Register(store, child, abi.NewTokenAmount(100)))

	user := mustAddrN(t, 201)

	_, err := st.Fund(store, root, child, 1, user, abi.NewTokenAmount(0))
	require.Error(t, err, "zero value is rejected")
	fee, err := st.Fund(store, root, child, 1, user, abi.NewTokenAmount(1000))
	require.NoError(t, err)
	require.True(t, fee.Equals(CrossMsgFee), "the collected fee is reported for the actor to forward")

	sub, found, err := st.GetSubnet(store, child)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, sub.TopDownQueue, 1)
	require.True(t, sub.CircSupply.Equals(big.Sub(abi.NewTokenAmount(1000), CrossMsgFee)), "circ_supply is credited net of CrossMsgFee")

	_, err = st.Release(store, root, 1, user, abi.NewTokenAmount(1000))
	require.Error(t, err, "the root network has no parent to release to")

	doBurn, err := st.Release(store, child, 1, user, abi.NewTokenAmount(1000))
	require.NoError(t, err)
	require.True(t, doBurn, "a bottom-up transfer carrying value burns at the source")
	require.Equal(t, uint64(1), st.BottomUpNonce)

	caller := ipcaddr.NewIPCAddress(child, user)
	other := mustAddrN(t, 202)
	m := CrossMsg{
		From:  caller,
		To:    ipcaddr.NewIPCAddress(root, other),
		Value: abi.NewTokenAmount(5),
	}
	key, err := st.InsertPostbox(store, []ipcaddr.IPCAddress{caller}, m)
	require.NoError(t, err)

	notOwner := ipcaddr.NewIPCAddress(child, other)
	_, _, err = st.Propagate(store, key, child, 1, notOwner, abi.NewTokenAmount(0))
	require.Error(t, err, "only a whitelisted owner may propagate")

	require.NoError(t, st.WhitelistPropagator(store, key, caller, []ipcaddr.IPCAddress{notOwner}))
	doBurn, _, err = st.Propagate(store, key, child, 1, notOwner, CrossMsgFee)
	require.NoError(t, err)
	require.True(t, doBurn, "propagating a bottom-up message burns its value at the source")

	_, _, err = st.Propagate(store, key, child, 1, notOwner, abi.NewTokenAmount(0))
	require.Error(t, err, "the postbox entry is removed once propagated")
}
