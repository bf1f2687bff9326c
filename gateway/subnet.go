package gateway

import (
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"

	"github.com/consensus-shipyard/ipc-gateway/ipcaddr"
)

// Status is a Subnet's lifecycle state, per spec.md section 3.
type Status int

const (
	StatusActive Status = iota
	StatusInactive
	StatusKilled
)

// DefaultMinSubnetStake and DefaultCheckpointPeriod are the Constructor
// defaults when a caller does not override them, carried over from
// sa8-eudico's sca_state.go (MinSubnetStake, DefaultCheckpointPeriod).
var (
	DefaultMinSubnetStake   = abi.NewTokenAmount(1e18)
	DefaultCheckpointPeriod = abi.ChainEpoch(10)
	DefaultCronPeriod       = abi.ChainEpoch(10)
)

// MaxNonce is the sentinel "no messages applied yet" value for
// applied_bottomup_nonce, ported from sa8-eudico's sca_state.go.
const MaxNonce = ^uint64(0)

// Subnet tracks one registered child subnet, per spec.md section 3.
type Subnet struct {
	ID               ipcaddr.SubnetID
	Stake            abi.TokenAmount
	Status           Status
	TopDownQueue     []CrossMsg
	NextTopDownNonce uint64
	CircSupply       abi.TokenAmount
	PrevCheckpoint   *Checkpoint
}

// checkStatus recomputes Active/Inactive based on MinStake, per spec.md
// section 3's invariant: stake >= min_stake => Active, falling below =>
// Inactive. Killed is terminal and is never touched here.
func (s *Subnet) checkStatus(minStake abi.TokenAmount) {
	if s.Status == StatusKilled {
		return
	}
	if s.Stake.LessThan(minStake) {
		s.Status = StatusInactive
	} else {
		s.Status = StatusActive
	}
}

// Register implements spec.md section 4.1's register operation: requires
// value >= min_stake and that the caller's subnet is not already registered.
func (st *State) Register(rt Store, id ipcaddr.SubnetID, value abi.TokenAmount) error {
	if _, has, err := st.GetSubnet(rt, id); err != nil {
		return err
	} else if has {
		return illegalArgument("subnet %s is already registered", id)
	}
	if value.LessThan(st.MinStake) {
		return illegalArgument("register does not carry enough funds to stake: %s < %s", value, st.MinStake)
	}
	sub := &Subnet{
		ID:         id,
		Stake:      value,
		Status:     StatusActive,
		CircSupply: big.Zero(),
	}
	st.TotalSubnets++
	return st.flushSubnet(rt, sub)
}

// AddStake implements spec.md section 4.1's add_stake operation.
func (st *State) AddStake(rt Store, id ipcaddr.SubnetID, value abi.TokenAmount) error {
	if value.LessThanEqual(big.Zero()) {
		return illegalArgument("no funds included in add_stake")
	}
	sub, has, err := st.GetSubnet(rt, id)
	if err != nil {
		return err
	}
	if !has {
		return notFound("subnet %s has not been registered", id)
	}
	sub.Stake = big.Add(sub.Stake, value)
	sub.checkStatus(st.MinStake)
	return st.flushSubnet(rt, sub)
}

// ReleaseStake implements spec.md section 4.1's release_stake operation. The
// caller is responsible for sending the returned amount back to the subnet
// actor once this call succeeds.
func (st *State) ReleaseStake(rt Store, id ipcaddr.SubnetID, amount abi.TokenAmount, currentBalance abi.TokenAmount) error {
	if amount.LessThanEqual(big.Zero()) {
		return illegalArgument("no funds included in release_stake")
	}
	sub, has, err := st.GetSubnet(rt, id)
	if err != nil {
		return err
	}
	if !has {
		return notFound("subnet %s has not been registered", id)
	}
	if sub.Stake.LessThan(amount) {
		return illegalState("subnet %s is not allowed to release %s, only %s staked", id, amount, sub.Stake)
	}
	if currentBalance.LessThan(amount) {
		return illegalState("actor balance %s is insufficient to release %s", currentBalance, amount)
	}
	sub.Stake = big.Sub(sub.Stake, amount)
	sub.checkStatus(st.MinStake)
	return st.flushSubnet(rt, sub)
}

// Kill implements spec.md section 4.1's kill operation: fails if circulating
// supply is nonzero, otherwise removes the subnet and reports the stake to
// refund.
func (st *State) Kill(rt Store, id ipcaddr.SubnetID, currentBalance abi.TokenAmount) (refund abi.TokenAmount, err error) {
	sub, has, err := st.GetSubnet(rt, id)
	if err != nil {
		return abi.TokenAmount{}, err
	}
	if !has {
		return abi.TokenAmount{}, notFound("subnet %s has not been registered", id)
	}
	if currentBalance.LessThan(sub.Stake) {
		return abi.TokenAmount{}, illegalState("actor balance %s is insufficient to refund stake %s", currentBalance, sub.Stake)
	}
	if sub.CircSupply.GreaterThan(big.Zero()) {
		return abi.TokenAmount{}, illegalState("cannot kill subnet %s with nonzero circulating supply %s", id, sub.CircSupply)
	}
	if err := st.removeSubnet(rt, id); err != nil {
		return abi.TokenAmount{}, err
	}
	return sub.Stake, nil
}
