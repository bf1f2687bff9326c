package gateway

import (
	"github.com/filecoin-project/go-state-types/abi"
	cid "github.com/ipfs/go-cid"

	"github.com/consensus-shipyard/ipc-gateway/ipcaddr"
)

// PostBoxItem is a cross-message staged for manual propagation, per spec.md
// section 4.2. A nil/empty Owners means the entry is public - anyone may
// propagate it.
type PostBoxItem struct {
	CrossMsg CrossMsg
	Owners   []ipcaddr.IPCAddress
}

func containsIPCAddress(owners []ipcaddr.IPCAddress, addr ipcaddr.IPCAddress) bool {
	for _, o := range owners {
		if o.Equals(addr) {
			return true
		}
	}
	return false
}

// InsertPostbox stores msg under the CID of (msg, owners), returning the key
// a later Propagate/WhitelistPropagator call must reference. Per spec.md
// section 4.2's ApplyMessage non-local-destination path.
func (st *State) InsertPostbox(store Store, owners []ipcaddr.IPCAddress, msg CrossMsg) (cid.Cid, error) {
	item := PostBoxItem{CrossMsg: msg, Owners: owners}
	key, err := cidOf(&item)
	if err != nil {
		return cid.Undef, err
	}
	if err := st.putPostboxItem(store, key, item); err != nil {
		return cid.Undef, err
	}
	return key, nil
}

// WhitelistPropagator implements spec.md section 4.2: only an existing owner
// of a non-public entry may add further owners.
func (st *State) WhitelistPropagator(store Store, key cid.Cid, caller ipcaddr.IPCAddress, toAdd []ipcaddr.IPCAddress) error {
	item, has, err := st.getPostboxItem(store, key)
	if err != nil {
		return err
	}
	if !has {
		return notFound("postbox entry %s not found", key)
	}
	if len(item.Owners) == 0 {
		return illegalState("cannot whitelist propagators on a public postbox entry")
	}
	if !containsIPCAddress(item.Owners, caller) {
		return illegalState("caller is not an owner of postbox entry %s", key)
	}
	item.Owners = append(item.Owners, toAdd...)
	return st.putPostboxItem(store, key, item)
}

// Propagate implements spec.md section 4.2: re-runs commit logic on the
// staged message exactly as SendCross would, deducting the fee from the
// caller's supplied value and removing the entry on success.
func (st *State) Propagate(store Store, key cid.Cid, curr ipcaddr.SubnetID, epoch abi.ChainEpoch, caller ipcaddr.IPCAddress, valueReceived abi.TokenAmount) (doBurn bool, remainder abi.TokenAmount, err error) {
	item, has, err := st.getPostboxItem(store, key)
	if err != nil {
		return false, abi.TokenAmount{}, err
	}
	if !has {
		return false, abi.TokenAmount{}, notFound("postbox entry %s not found", key)
	}
	if len(item.Owners) > 0 && !containsIPCAddress(item.Owners, caller) {
		return false, abi.TokenAmount{}, illegalState("caller is not an owner of postbox entry %s", key)
	}

	value := valueReceived
	if err := CollectCrossFee(&value, CrossMsgFee); err != nil {
		return false, abi.TokenAmount{}, err
	}

	msg := item.CrossMsg
	doBurn, err = st.CommitCrossMessage(store, curr, epoch, &msg)
	if err != nil {
		return false, abi.TokenAmount{}, err
	}

	if err := st.deletePostboxItem(store, key); err != nil {
		return false, abi.TokenAmount{}, err
	}
	return doBurn, value, nil
}
