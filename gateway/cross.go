package gateway

import (
	address "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	builtin0 "github.com/filecoin-project/specs-actors/v8/actors/builtin"

	"github.com/consensus-shipyard/ipc-gateway/ipcaddr"
)

// HCMsgType tags the direction of a CrossMsg as a classification variant,
// per spec.md section 9 ("polymorphism across message classifications is
// expressed as a tagged variant, not inheritance").
type HCMsgType int

const (
	Unknown HCMsgType = iota
	BottomUp
	TopDown
)

// CrossMsg is a single cross-subnet message, per spec.md section 3. The Rust
// original splits this into StorableMsg (the payload) and CrossMsg (a wrapper
// batch of StorableMsg + metadata); this implementation collapses the two,
// since nothing in spec.md's data model needs the batch-of-raw-msgs
// indirection the Rust wire format used for AMT storage efficiency - each
// CrossMsg here is already the unit stored in a Subnet's top-down queue or a
// checkpoint's bottom-up batch.
type CrossMsg struct {
	From    ipcaddr.IPCAddress
	To      ipcaddr.IPCAddress
	Method  abi.MethodNum
	Params  []byte
	Value   abi.TokenAmount
	Nonce   uint64
	Wrapped bool
}

// RawType classifies m by comparing the subnets of From and To alone,
// ignoring any notion of "current subnet". Ported from
// original_source/src/cross.rs's hc_type/is_bottomup.
func (m *CrossMsg) RawType() HCMsgType {
	if m.From.Subnet.Equals(m.To.Subnet) {
		return Unknown
	}
	if ipcaddr.IsBottomUp(m.From.Subnet, m.To.Subnet) {
		return BottomUp
	}
	return TopDown
}

// ApplyType classifies m as seen from curr, per spec.md section 4.2: bottom-up
// iff LCA(curr, to) == LCA(from, to) and the raw direction was bottom-up;
// otherwise top-down. Ported from original_source/src/cross.rs's apply_type.
func ApplyType(curr ipcaddr.SubnetID, m *CrossMsg) HCMsgType {
	rawCommon := m.From.Subnet.CommonParent(m.To.Subnet)
	currCommon := curr.CommonParent(m.To.Subnet)
	if currCommon.Equals(rawCommon) && m.RawType() == BottomUp {
		return BottomUp
	}
	return TopDown
}

// CommitTopDown locates the next-hop child of curr on the path to m.To,
// requires it registered, assigns the message the child's next top-down
// nonce, appends it to the child's queue, and credits the child's
// circulating supply. Per spec.md section 4.2.
func (st *State) CommitTopDown(rt Store, curr ipcaddr.SubnetID, m *CrossMsg) error {
	next, err := curr.Down(m.To.Subnet)
	if err != nil {
		return illegalArgument("no next hop toward %s from %s: %s", m.To.Subnet, curr, err)
	}
	sub, found, err := st.GetSubnet(rt, next)
	if err != nil {
		return err
	}
	if !found {
		return notFound("next-hop subnet %s is not registered", next)
	}
	if sub.Status != StatusActive {
		return illegalState("next-hop subnet %s is not active", next)
	}
	m.Nonce = sub.NextTopDownNonce
	sub.TopDownQueue = append(sub.TopDownQueue, *m)
	sub.NextTopDownNonce++
	sub.CircSupply = big.Add(sub.CircSupply, m.Value)
	return st.flushSubnet(rt, sub)
}

// CommitBottomUp appends m to the current window checkpoint's cross-message
// batch and advances the bottom-up nonce. Per spec.md section 4.2.
func (st *State) CommitBottomUp(rt Store, epoch abi.ChainEpoch, m *CrossMsg) error {
	ch, err := st.GetWindowCheckpoint(rt, epoch)
	if err != nil {
		return err
	}
	m.Nonce = st.BottomUpNonce
	st.BottomUpNonce++
	ch.AppendMsgMeta(CrossMsgMeta{
		From:  m.From.Subnet,
		To:    m.To.Subnet,
		Nonce: m.Nonce,
		Value: m.Value,
	})
	return st.flushWindowCheckpoint(rt, ch)
}

// CommitCrossMessage dispatches m to CommitTopDown or CommitBottomUp based on
// its classification at curr, and reports whether the message's value should
// be burned locally (bottom-up messages carrying value burn at the source,
// per spec.md section 4.2/4.6).
func (st *State) CommitCrossMessage(rt Store, curr ipcaddr.SubnetID, epoch abi.ChainEpoch, m *CrossMsg) (doBurn bool, err error) {
	switch ApplyType(curr, m) {
	case TopDown:
		return false, st.CommitTopDown(rt, curr, m)
	case BottomUp:
		if err := st.CommitBottomUp(rt, epoch, m); err != nil {
			return false, err
		}
		return m.Value.GreaterThan(big.Zero()), nil
	default:
		return false, illegalArgument("cannot classify cross message from %s to %s", m.From, m.To)
	}
}

// SendCross implements the SendCross operation of spec.md section 6/4.2: the
// destination may not equal curr, From is rewritten to (curr, caller),
// value_received must equal m.Value, and the fee is deducted before commit.
// The caller's actor type is not checked, here or in Actor.SendCross, so
// signable callers are accepted as well.
func (st *State) SendCross(rt Store, curr ipcaddr.SubnetID, epoch abi.ChainEpoch, caller ipcaddr.IPCAddress, valueReceived abi.TokenAmount, m *CrossMsg) (doBurn bool, err error) {
	if m.To.Subnet.Equals(curr) {
		return false, illegalArgument("destination subnet equals current subnet")
	}
	m.From = ipcaddr.NewIPCAddress(curr, caller.Raw)
	if !valueReceived.Equals(m.Value) {
		return false, illegalArgument("value received %s does not match message value %s", valueReceived, m.Value)
	}
	if err := CollectCrossFee(&m.Value, CrossMsgFee); err != nil {
		return false, err
	}
	return st.CommitCrossMessage(rt, curr, epoch, m)
}

// ApplyMessage implements the ApplyMessage operation of spec.md section 4.2:
// validates the appropriate monotonic nonce depending on direction, then
// either dispatches locally or enqueues into the postbox.
func (st *State) ApplyMessage(rt Store, curr ipcaddr.SubnetID, m *CrossMsg, localBalance abi.TokenAmount) (local bool, err error) {
	switch m.RawType() {
	case BottomUp:
		if err := st.bottomUpStateTransition(m.Nonce); err != nil {
			return false, err
		}
	case TopDown:
		if localBalance.LessThan(m.Value) {
			return false, illegalState("insufficient balance to mint top-down value")
		}
		if st.AppliedTopDownNonce != m.Nonce {
			return false, illegalState("top-down nonce %d is not the next expected nonce %d", m.Nonce, st.AppliedTopDownNonce)
		}
		st.AppliedTopDownNonce++
	default:
		return false, illegalArgument("cannot apply a message with unknown classification")
	}

	if m.To.Subnet.Equals(curr) {
		return true, nil
	}
	_, err = st.InsertPostbox(rt, []ipcaddr.IPCAddress{m.From}, *m)
	return false, err
}

// Fund implements spec.md section 6's Fund operation: injects a top-down
// message crediting caller's own address in subnet with valueReceived minus
// CrossMsgFee, per spec.md section 4.6's fee accounting, and reports the
// collected fee so the actor layer can forward it to the destination
// subnet's actor.
func (st *State) Fund(rt Store, curr, subnet ipcaddr.SubnetID, epoch abi.ChainEpoch, caller address.Address, valueReceived abi.TokenAmount) (fee abi.TokenAmount, err error) {
	if valueReceived.LessThanEqual(big.Zero()) {
		return big.Zero(), illegalArgument("no funds included in fund")
	}
	m := &CrossMsg{
		From:  ipcaddr.NewIPCAddress(curr, caller),
		To:    ipcaddr.NewIPCAddress(subnet, caller),
		Value: valueReceived,
	}
	if err := CollectCrossFee(&m.Value, CrossMsgFee); err != nil {
		return big.Zero(), err
	}
	if _, err := st.CommitCrossMessage(rt, curr, epoch, m); err != nil {
		return big.Zero(), err
	}
	return CrossMsgFee, nil
}

// Release implements spec.md section 6's Release operation: injects a
// bottom-up message releasing valueReceived minus CrossMsgFee from curr back
// to caller's address in curr's parent, with From set to (curr,
// BurntFundsActorAddr) per original_source/src/cross.rs's new_release_msg,
// and reports whether the caller must burn the released value locally
// (bottom-up transfers carrying value burn at the source, per spec.md
// section 4.6).
func (st *State) Release(rt Store, curr ipcaddr.SubnetID, epoch abi.ChainEpoch, caller address.Address, valueReceived abi.TokenAmount) (doBurn bool, err error) {
	if valueReceived.LessThanEqual(big.Zero()) {
		return false, illegalArgument("no funds included in release")
	}
	parent, has := curr.Parent()
	if !has {
		return false, illegalState("root network has no parent to release to")
	}
	m := &CrossMsg{
		From:  ipcaddr.NewIPCAddress(curr, builtin0.BurntFundsActorAddr),
		To:    ipcaddr.NewIPCAddress(parent, caller),
		Value: valueReceived,
	}
	if err := CollectCrossFee(&m.Value, CrossMsgFee); err != nil {
		return false, err
	}
	return st.CommitCrossMessage(rt, curr, epoch, m)
}

// bottomUpStateTransition validates and advances applied_bottomup_nonce, with
// the MAX->0 special-case first transition. Ported from
// original_source/gateway/src/state.rs's bottomup_state_transition.
func (st *State) bottomUpStateTransition(nonce uint64) error {
	switch {
	case st.AppliedBottomUpNonce == MaxNonce && nonce == 0:
		st.AppliedBottomUpNonce = 0
	case st.AppliedBottomUpNonce+1 == nonce:
		st.AppliedBottomUpNonce++
	default:
		return illegalState("bottom-up nonce %d is not the next expected nonce", nonce)
	}
	if st.AppliedBottomUpNonce != nonce {
		return illegalState("bottom-up nonce %d does not match applied nonce %d", nonce, st.AppliedBottomUpNonce)
	}
	return nil
}
