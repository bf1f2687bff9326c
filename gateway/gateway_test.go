package gateway

import (
	"context"
	"testing"

	address "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/specs-actors/v8/actors/util/adt"
	datastore "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/stretchr/testify/require"

	"github.com/consensus-shipyard/ipc-gateway/ipcaddr"
)

// newTestStore builds an in-memory adt.Store, the same cbor.NewCborStore-
// over-a-memory-blockstore pattern sa8-eudico's chain.go uses to wrap a
// blockstore for HAMT access.
func newTestStore(t *testing.T) adt.Store {
	t.Helper()
	bs := blockstore.NewBlockstore(dssync.MutexWrap(datastore.NewMapDatastore()))
	return adt.WrapStore(context.Background(), cbor.NewCborStore(bs))
}

func mustAddrN(t *testing.T, id uint64) address.Address {
	t.Helper()
	a, err := address.NewIDAddress(id)
	require.NoError(t, err)
	return a
}

func newTestState(t *testing.T, store adt.Store) *State {
	t.Helper()
	st, err := ConstructState(store, &ConstructorParams{
		NetworkName:  "/root",
		MinStake:     abi.NewTokenAmount(100),
		CheckPeriod:  10,
		CronPeriod:   10,
		GenesisEpoch: 0,
	})
	require.NoError(t, err)
	return st
}

func TestRegisterAddStakeKill(t *testing.T) {
	store := newTestStore(t)
	st := newTestState(t, store)

	root := ipcaddr.NewRootSubnetID("/root")
	child := ipcaddr.NewSubnetID(root, mustAddrN(t, 101))

	require.Error(t, st.Register(store, child, abi.NewTokenAmount(50)), "below min stake")
	require.NoError(t, st.Register(store, child, abi.NewTokenAmount(100)))
	require.Error(t, st.Register(store, child, abi.NewTokenAmount(200)), "already registered")

	sub, found, err := st.GetSubnet(store, child)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, StatusActive, sub.Status)

	require.NoError(t, st.AddStake(store, child, abi.NewTokenAmount(50)))
	sub, _, err = st.GetSubnet(store, child)
	require.NoError(t, err)
	require.True(t, sub.Stake.Equals(abi.NewTokenAmount(150)))

	require.NoError(t, st.ReleaseStake(store, child, abi.NewTokenAmount(100), abi.NewTokenAmount(150)))
	sub, _, err = st.GetSubnet(store, child)
	require.NoError(t, err)
	require.Equal(t, StatusInactive, sub.Status, "stake fell below min_stake")

	_, err = st.Kill(store, child, abi.NewTokenAmount(50))
	require.NoError(t, err)
	_, found, err = st.GetSubnet(store, child)
	require.NoError(t, err)
	require.False(t, found)
}

func TestCommitTopDownAndApplyMessage(t *testing.T) {
	store := newTestStore(t)
	st := newTestState(t, store)

	root := ipcaddr.NewRootSubnetID("/root")
	child := ipcaddr.NewSubnetID(root, mustAddrN(t, 101))
	require.NoError(t, st.Register(store, child, abi.NewTokenAmount(100)))

	userAddr := mustAddrN(t, 201)
	m := &CrossMsg{
		From:  ipcaddr.NewIPCAddress(root, userAddr),
		To:    ipcaddr.NewIPCAddress(child, userAddr),
		Value: abi.NewTokenAmount(10),
	}
	doBurn, err := st.CommitCrossMessage(store, root, 1, m)
	require.NoError(t, err)
	require.False(t, doBurn, "top-down messages never burn at the parent")

	sub, found, err := st.GetSubnet(store, child)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, sub.TopDownQueue, 1)
	require.True(t, sub.CircSupply.Equals(abi.NewTokenAmount(10)))

	queued := sub.TopDownQueue[0]
	local, err := st.ApplyMessage(store, child, &queued, abi.NewTokenAmount(1000))
	require.NoError(t, err)
	require.True(t, local, "destination subnet equals current subnet")
	require.Equal(t, uint64(1), st.AppliedTopDownNonce)

	_, err = st.ApplyMessage(store, child, &queued, abi.NewTokenAmount(1000))
	require.Error(t, err, "nonce already applied")
}

func TestBottomUpStateTransitionMaxNonceSpecialCase(t *testing.T) {
	store := newTestStore(t)
	st := newTestState(t, store)
	require.Equal(t, MaxNonce, st.AppliedBottomUpNonce)
	require.NoError(t, st.bottomUpStateTransition(0))
	require.Equal(t, uint64(0), st.AppliedBottomUpNonce)
	require.NoError(t, st.bottomUpStateTransition(1))
	require.Error(t, st.bottomUpStateTransition(3), "must be the immediate next nonce")
}

func TestCheckpointAppendMsgMetaDedupByDifference(t *testing.T) {
	root := ipcaddr.NewRootSubnetID("/root")
	ch := NewCheckpoint(root, 10)

	from := ipcaddr.NewSubnetID(root, mustAddrN(t, 1))
	to := ipcaddr.NewSubnetID(root, mustAddrN(t, 2))

	meta := CrossMsgMeta{From: from, To: to, Nonce: 0, Value: abi.NewTokenAmount(5)}
	ch.AppendMsgMeta(meta)
	require.Len(t, ch.Data.CrossMsgs, 1)

	ch.AppendMsgMeta(meta)
	require.Len(t, ch.Data.CrossMsgs, 1, "identical meta for the same pair is not duplicated")

	different := meta
	different.Value = abi.NewTokenAmount(6)
	ch.AppendMsgMeta(different)
	require.Len(t, ch.Data.CrossMsgs, 2, "a differing meta for the same pair is appended, not replaced")
}

func TestAddChildCheckRejectsDuplicateCID(t *testing.T) {
	root := ipcaddr.NewRootSubnetID("/root")
	child := ipcaddr.NewSubnetID(root, mustAddrN(t, 1))

	win := NewCheckpoint(root, 10)
	commit := NewCheckpoint(child, 5)

	require.NoError(t, win.AddChildCheck(commit))
	require.Len(t, win.Data.Children, 1)
	require.Len(t, win.Data.Children[0].Checks, 1)

	require.Error(t, win.AddChildCheck(commit), "the same checkpoint CID cannot be recorded twice")
}

func TestCommitChildCheckpointValidatesChain(t *testing.T) {
	store := newTestStore(t)
	st := newTestState(t, store)

	root := ipcaddr.NewRootSubnetID("/root")
	child := ipcaddr.NewSubnetID(root, mustAddrN(t, 1))
	require.NoError(t, st.Register(store, child, abi.NewTokenAmount(100)))

	first := NewCheckpoint(child, 10)
	_, err := st.CommitChildCheckpoint(store, child, first, big.Zero())
	require.NoError(t, err)

	firstCid, err := first.CID()
	require.NoError(t, err)

	second := NewCheckpoint(child, 20)
	second.Data.PrevCheck = firstCid
	_, err = st.CommitChildCheckpoint(store, child, second, big.Zero())
	require.NoError(t, err)

	stale := NewCheckpoint(child, 30)
	_, err = st.CommitChildCheckpoint(store, child, stale, big.Zero())
	require.Error(t, err, "prev_check must match the subnet's last committed checkpoint")
}

func TestCronWeightedConsensus(t *testing.T) {
	store := newTestStore(t)
	st := newTestState(t, store)

	v1, v2, v3 := mustAddrN(t, 11), mustAddrN(t, 12), mustAddrN(t, 13)
	require.NoError(t, st.AddValidator(store, v1, abi.NewTokenAmount(40)))
	require.NoError(t, st.AddValidator(store, v2, abi.NewTokenAmount(35)))
	require.NoError(t, st.AddValidator(store, v3, abi.NewTokenAmount(25)))

	root := ipcaddr.NewRootSubnetID("/root")
	epoch := abi.ChainEpoch(10)
	cc := CronCheckpoint{
		Epoch: epoch,
		TopDownMsgs: []CrossMsg{
			{
				From:  ipcaddr.NewIPCAddress(root, v1),
				To:    ipcaddr.NewIPCAddress(root, v2),
				Value: abi.NewTokenAmount(7),
			},
		},
	}

	w1, err := st.ValidateCronSubmitter(store, epoch, v1)
	require.NoError(t, err)
	msgs, err := st.HandleCronSubmission(store, epoch, v1, w1, cc)
	require.NoError(t, err)
	require.Nil(t, msgs, "below 2/3 threshold")

	w2, err := st.ValidateCronSubmitter(store, epoch, v2)
	require.NoError(t, err)
	msgs, err = st.HandleCronSubmission(store, epoch, v2, w2, cc)
	require.NoError(t, err)
	require.NotNil(t, msgs, "75/100 exceeds the 2/3 threshold and executes immediately")
	require.Equal(t, epoch, st.LastCronExecutedEpoch)

	_, err = st.ValidateCronSubmitter(store, epoch, v3)
	require.Error(t, err, "epoch already executed")
}
