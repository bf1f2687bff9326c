package gateway

import (
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/specs-actors/v8/actors/builtin"
	"github.com/filecoin-project/specs-actors/v8/actors/util/adt"
	cid "github.com/ipfs/go-cid"

	"github.com/consensus-shipyard/ipc-gateway/ipcaddr"
)

// Store is the HAMT-backed store every State accessor reads and writes
// through, the same adt.Store the rest of the specs-actors family actors use.
type Store = adt.Store

// stringKey adapts an arbitrary string to adt.Map's abi.Keyer interface, the
// way sa8-eudico's sca_state.go keys its subnet map by SubnetID string.
type stringKey string

func (s stringKey) Key() string { return string(s) }

// State is the gateway actor's state root, composing the Subnet Registry,
// Cross-Message Router bookkeeping, Checkpoint Engine and Cron Voting Engine
// containers named in spec.md section 3.
type State struct {
	NetworkName string
	MinStake    abi.TokenAmount

	Subnets      cid.Cid
	TotalSubnets uint64

	CheckPeriod abi.ChainEpoch
	Checkpoints cid.Cid

	Postbox cid.Cid

	BottomUpNonce        uint64
	BottomUpMsgMetas     cid.Cid
	AppliedBottomUpNonce uint64
	AppliedTopDownNonce  uint64

	GenesisEpoch           abi.ChainEpoch
	CronPeriod             abi.ChainEpoch
	LastCronExecutedEpoch  abi.ChainEpoch
	ExecutableEpochQueue   []abi.ChainEpoch
	CronSubmissions        cid.Cid

	ValidatorsRoot cid.Cid
	TotalWeight    abi.TokenAmount
}

// ConstructorParams configures a new gateway's genesis state, per spec.md
// section 6's Constructor operation.
type ConstructorParams struct {
	NetworkName  string
	MinStake     abi.TokenAmount
	CheckPeriod  abi.ChainEpoch
	CronPeriod   abi.ChainEpoch
	GenesisEpoch abi.ChainEpoch
}

// ConstructState builds the empty gateway state described by params, filling
// in DefaultMinSubnetStake/DefaultCheckpointPeriod/DefaultCronPeriod when the
// caller leaves them at zero, per sa8-eudico's sca_state.go conventions.
func ConstructState(store adt.Store, params *ConstructorParams) (*State, error) {
	emptySubnets, err := adt.StoreEmptyMap(store, builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, serializationError("creating empty subnets map: %s", err)
	}
	emptyCheckpoints, err := adt.StoreEmptyMap(store, builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, serializationError("creating empty checkpoints map: %s", err)
	}
	emptyPostbox, err := adt.StoreEmptyMap(store, builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, serializationError("creating empty postbox map: %s", err)
	}
	emptyBottomUpMetas, err := adt.StoreEmptyMap(store, builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, serializationError("creating empty bottom-up msg meta map: %s", err)
	}
	emptyCronSubmissions, err := adt.StoreEmptyMap(store, builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, serializationError("creating empty cron submissions map: %s", err)
	}
	emptyValidators, err := adt.StoreEmptyMap(store, builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, serializationError("creating empty validators map: %s", err)
	}

	minStake := params.MinStake
	if minStake.IsZero() {
		minStake = DefaultMinSubnetStake
	}
	checkPeriod := params.CheckPeriod
	if checkPeriod == 0 {
		checkPeriod = DefaultCheckpointPeriod
	}
	cronPeriod := params.CronPeriod
	if cronPeriod == 0 {
		cronPeriod = DefaultCronPeriod
	}

	return &State{
		NetworkName: params.NetworkName,
		MinStake:    minStake,

		Subnets:      emptySubnets,
		TotalSubnets: 0,

		CheckPeriod: checkPeriod,
		Checkpoints: emptyCheckpoints,

		Postbox: emptyPostbox,

		BottomUpNonce:        0,
		BottomUpMsgMetas:     emptyBottomUpMetas,
		AppliedBottomUpNonce: MaxNonce,
		AppliedTopDownNonce:  0,

		GenesisEpoch:          params.GenesisEpoch,
		CronPeriod:            cronPeriod,
		LastCronExecutedEpoch: params.GenesisEpoch,
		ExecutableEpochQueue:  nil,
		CronSubmissions:       emptyCronSubmissions,

		ValidatorsRoot: emptyValidators,
		TotalWeight:    big.Zero(),
	}, nil
}

// NetworkSubnetID parses st.NetworkName back into an ipcaddr.SubnetID.
func (st *State) NetworkSubnetID() (ipcaddr.SubnetID, error) {
	id, err := ipcaddr.ParseSubnetID(st.NetworkName)
	if err != nil {
		return ipcaddr.SubnetID{}, illegalState("network name %q is not a valid subnet id: %s", st.NetworkName, err)
	}
	return id, nil
}

// GetSubnet loads the Subnet registered under id, if any.
func (st *State) GetSubnet(store adt.Store, id ipcaddr.SubnetID) (*Subnet, bool, error) {
	subnets, err := adt.AsMap(store, st.Subnets, builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, false, serializationError("loading subnets: %s", err)
	}
	var sub Subnet
	found, err := subnets.Get(stringKey(id.String()), &sub)
	if err != nil {
		return nil, false, serializationError("getting subnet %s: %s", id, err)
	}
	if !found {
		return nil, false, nil
	}
	sub.ID = id
	return &sub, true, nil
}

// ListSubnets returns every registered Subnet, used by the read-only API
// layer.
func (st *State) ListSubnets(store adt.Store) ([]*Subnet, error) {
	subnets, err := adt.AsMap(store, st.Subnets, builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, serializationError("loading subnets: %s", err)
	}
	var out []*Subnet
	var sub Subnet
	err = subnets.ForEach(&sub, func(key string) error {
		id, perr := ipcaddr.ParseSubnetID(key)
		if perr != nil {
			return perr
		}
		cp := sub
		cp.ID = id
		out = append(out, &cp)
		return nil
	})
	if err != nil {
		return nil, serializationError("iterating subnets: %s", err)
	}
	return out, nil
}

func (st *State) flushSubnet(store adt.Store, sub *Subnet) error {
	subnets, err := adt.AsMap(store, st.Subnets, builtin.DefaultHamtBitwidth)
	if err != nil {
		return serializationError("loading subnets: %s", err)
	}
	if err := subnets.Put(stringKey(sub.ID.String()), sub); err != nil {
		return serializationError("flushing subnet %s: %s", sub.ID, err)
	}
	root, err := subnets.Root()
	if err != nil {
		return serializationError("flushing subnets root: %s", err)
	}
	st.Subnets = root
	return nil
}

func (st *State) removeSubnet(store adt.Store, id ipcaddr.SubnetID) error {
	subnets, err := adt.AsMap(store, st.Subnets, builtin.DefaultHamtBitwidth)
	if err != nil {
		return serializationError("loading subnets: %s", err)
	}
	if err := subnets.Delete(stringKey(id.String())); err != nil {
		return serializationError("removing subnet %s: %s", id, err)
	}
	root, err := subnets.Root()
	if err != nil {
		return serializationError("flushing subnets root: %s", err)
	}
	st.Subnets = root
	st.TotalSubnets--
	return nil
}

// GetWindowCheckpoint returns the checkpoint accumulating commits for epoch's
// window, creating an empty template rooted at the network's own subnet id
// if the window has no checkpoint yet. Per spec.md section 4.3.
func (st *State) GetWindowCheckpoint(store adt.Store, epoch abi.ChainEpoch) (*Checkpoint, error) {
	if epoch < 0 {
		return nil, illegalArgument("epoch %d is negative", epoch)
	}
	winEpoch := WindowEpoch(epoch, st.CheckPeriod)
	checkpoints, err := adt.AsMap(store, st.Checkpoints, builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, serializationError("loading checkpoints: %s", err)
	}
	var ch Checkpoint
	found, err := checkpoints.Get(abi.IntKey(int64(winEpoch)), &ch)
	if err != nil {
		return nil, serializationError("getting checkpoint at %d: %s", winEpoch, err)
	}
	if found {
		return &ch, nil
	}
	netID, err := st.NetworkSubnetID()
	if err != nil {
		return nil, err
	}
	return NewCheckpoint(netID, winEpoch), nil
}

func (st *State) flushWindowCheckpoint(store adt.Store, ch *Checkpoint) error {
	checkpoints, err := adt.AsMap(store, st.Checkpoints, builtin.DefaultHamtBitwidth)
	if err != nil {
		return serializationError("loading checkpoints: %s", err)
	}
	if err := checkpoints.Put(abi.IntKey(int64(ch.Data.Epoch)), ch); err != nil {
		return serializationError("flushing checkpoint at %d: %s", ch.Data.Epoch, err)
	}
	root, err := checkpoints.Root()
	if err != nil {
		return serializationError("flushing checkpoints root: %s", err)
	}
	st.Checkpoints = root
	return nil
}

// storeBottomUpMsgMeta persists meta keyed by its own bottom-up nonce, so the
// registry spec.md section 3 calls "bottomup_msg_metas (indexed by bottomup
// nonce)" can be looked up directly by nonce without a separate counter.
func (st *State) storeBottomUpMsgMeta(store adt.Store, meta CrossMsgMeta) error {
	metas, err := adt.AsMap(store, st.BottomUpMsgMetas, builtin.DefaultHamtBitwidth)
	if err != nil {
		return serializationError("loading bottom-up message metas: %s", err)
	}
	m := meta
	if err := metas.Put(abi.UIntKey(meta.Nonce), &m); err != nil {
		return serializationError("storing bottom-up message meta at nonce %d: %s", meta.Nonce, err)
	}
	root, err := metas.Root()
	if err != nil {
		return serializationError("flushing bottom-up message metas root: %s", err)
	}
	st.BottomUpMsgMetas = root
	return nil
}

// GetBottomUpMsgMeta looks up a previously committed bottom-up message meta
// by its nonce, used by the read-only API layer.
func (st *State) GetBottomUpMsgMeta(store adt.Store, nonce uint64) (CrossMsgMeta, bool, error) {
	metas, err := adt.AsMap(store, st.BottomUpMsgMetas, builtin.DefaultHamtBitwidth)
	if err != nil {
		return CrossMsgMeta{}, false, serializationError("loading bottom-up message metas: %s", err)
	}
	var meta CrossMsgMeta
	found, err := metas.Get(abi.UIntKey(nonce), &meta)
	if err != nil {
		return CrossMsgMeta{}, false, serializationError("getting bottom-up message meta at nonce %d: %s", nonce, err)
	}
	return meta, found, nil
}

func (st *State) putPostboxItem(store adt.Store, key cid.Cid, item PostBoxItem) error {
	postbox, err := adt.AsMap(store, st.Postbox, builtin.DefaultHamtBitwidth)
	if err != nil {
		return serializationError("loading postbox: %s", err)
	}
	if err := postbox.Put(stringKey(key.KeyString()), &item); err != nil {
		return serializationError("storing postbox entry %s: %s", key, err)
	}
	root, err := postbox.Root()
	if err != nil {
		return serializationError("flushing postbox root: %s", err)
	}
	st.Postbox = root
	return nil
}

func (st *State) getPostboxItem(store adt.Store, key cid.Cid) (PostBoxItem, bool, error) {
	postbox, err := adt.AsMap(store, st.Postbox, builtin.DefaultHamtBitwidth)
	if err != nil {
		return PostBoxItem{}, false, serializationError("loading postbox: %s", err)
	}
	var item PostBoxItem
	found, err := postbox.Get(stringKey(key.KeyString()), &item)
	if err != nil {
		return PostBoxItem{}, false, serializationError("getting postbox entry %s: %s", key, err)
	}
	return item, found, nil
}

func (st *State) deletePostboxItem(store adt.Store, key cid.Cid) error {
	postbox, err := adt.AsMap(store, st.Postbox, builtin.DefaultHamtBitwidth)
	if err != nil {
		return serializationError("loading postbox: %s", err)
	}
	if err := postbox.Delete(stringKey(key.KeyString())); err != nil {
		return serializationError("deleting postbox entry %s: %s", key, err)
	}
	root, err := postbox.Root()
	if err != nil {
		return serializationError("flushing postbox root: %s", err)
	}
	st.Postbox = root
	return nil
}

func (st *State) getCronSubmission(store adt.Store, epoch abi.ChainEpoch) (*CronSubmission, bool, error) {
	subs, err := adt.AsMap(store, st.CronSubmissions, builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, false, serializationError("loading cron submissions: %s", err)
	}
	var sub CronSubmission
	found, err := subs.Get(abi.IntKey(int64(epoch)), &sub)
	if err != nil {
		return nil, false, serializationError("getting cron submission at %d: %s", epoch, err)
	}
	if !found {
		return nil, false, nil
	}
	return &sub, true, nil
}

func (st *State) getOrCreateCronSubmission(store adt.Store, epoch abi.ChainEpoch) (*CronSubmission, error) {
	sub, found, err := st.getCronSubmission(store, epoch)
	if err != nil {
		return nil, err
	}
	if found {
		return sub, nil
	}
	return &CronSubmission{TotalSubmittedWeight: big.Zero(), MostVotedHash: cid.Undef}, nil
}

func (st *State) putCronSubmission(store adt.Store, epoch abi.ChainEpoch, sub *CronSubmission) error {
	subs, err := adt.AsMap(store, st.CronSubmissions, builtin.DefaultHamtBitwidth)
	if err != nil {
		return serializationError("loading cron submissions: %s", err)
	}
	if err := subs.Put(abi.IntKey(int64(epoch)), sub); err != nil {
		return serializationError("flushing cron submission at %d: %s", epoch, err)
	}
	root, err := subs.Root()
	if err != nil {
		return serializationError("flushing cron submissions root: %s", err)
	}
	st.CronSubmissions = root
	return nil
}

func (st *State) deleteCronSubmission(store adt.Store, epoch abi.ChainEpoch) error {
	subs, err := adt.AsMap(store, st.CronSubmissions, builtin.DefaultHamtBitwidth)
	if err != nil {
		return serializationError("loading cron submissions: %s", err)
	}
	if err := subs.Delete(abi.IntKey(int64(epoch))); err != nil {
		return serializationError("deleting cron submission at %d: %s", epoch, err)
	}
	root, err := subs.Root()
	if err != nil {
		return serializationError("flushing cron submissions root: %s", err)
	}
	st.CronSubmissions = root
	return nil
}
