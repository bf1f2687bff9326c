package gateway

//go:generate go run ./gen/gen.go

import (
	"io"

	address "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	builtin0 "github.com/filecoin-project/specs-actors/v8/actors/builtin"
	"github.com/filecoin-project/specs-actors/v8/actors/runtime"
	"github.com/filecoin-project/specs-actors/v8/actors/util/adt"
	logging "github.com/ipfs/go-log/v2"
	cbg "github.com/whyrusleeping/cbor-gen"

	cid "github.com/ipfs/go-cid"

	"github.com/consensus-shipyard/ipc-gateway/ipcaddr"
)

var log = logging.Logger("gateway-actor")

// Actor implements the gateway's VM method dispatch, the way sca_actor.go
// implements SubnetCoordActor: every State mutation above is orchestrated
// here under rt.StateTransaction, with caller validation and inter-actor
// sends handled at this layer only.
type Actor struct{}

func (a Actor) Exports() []interface{} {
	return []interface{}{
		builtin0.MethodConstructor: a.Constructor,
		2:                          a.Register,
		3:                          a.AddStake,
		4:                          a.ReleaseStake,
		5:                          a.Kill,
		6:                          a.CommitChildCheckpoint,
		7:                          a.Fund,
		8:                          a.Release,
		9:                          a.SendCross,
		10:                         a.ApplyMessage,
		11:                         a.Propagate,
		12:                         a.WhitelistPropagator,
		13:                         a.SubmitCron,
		14:                         a.SetMembership,
	}
}

func (a Actor) Code() cid.Cid     { return cid.Undef }
func (a Actor) IsSingleton() bool { return true }
func (a Actor) State() cbor.Er    { return new(State) }

var _ runtime.VMActor = Actor{}

// Constructor initializes empty gateway state for NetworkName, per spec.md
// section 6.
func (a Actor) Constructor(rt runtime.Runtime, params *ConstructorParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerIs(builtin0.SystemActorAddr)
	st, err := ConstructState(adt.AsStore(rt), params)
	builtin0.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to construct state")
	log.Infow("gateway constructed", "network", params.NetworkName)
	rt.StateCreate(st)
	return nil
}

// Register implements spec.md section 6's Register operation: the caller
// (a not-yet-registered subnet actor) stakes rt.ValueReceived() to join the
// hierarchy under NetworkName.
func (a Actor) Register(rt runtime.Runtime, _ *abi.EmptyValue) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	caller := rt.Caller()
	value := rt.ValueReceived()

	var st State
	rt.StateTransaction(&st, func() {
		curr, err := st.NetworkSubnetID()
		builtin0.RequireNoErr(rt, err, exitcode.ErrIllegalState, "invalid network name")
		id := ipcaddr.NewSubnetID(curr, caller)
		err = st.Register(adt.AsStore(rt), id, value)
		builtin0.RequireNoErr(rt, err, errExitCode(err), "register failed")
	})
	return nil
}

// AddStake implements spec.md section 6's AddStake operation.
func (a Actor) AddStake(rt runtime.Runtime, _ *abi.EmptyValue) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	caller := rt.Caller()
	value := rt.ValueReceived()

	var st State
	rt.StateTransaction(&st, func() {
		curr, err := st.NetworkSubnetID()
		builtin0.RequireNoErr(rt, err, exitcode.ErrIllegalState, "invalid network name")
		id := ipcaddr.NewSubnetID(curr, caller)
		err = st.AddStake(adt.AsStore(rt), id, value)
		builtin0.RequireNoErr(rt, err, errExitCode(err), "add_stake failed")
	})
	return nil
}

// ReleaseStakeParams carries the amount to release back to the calling
// subnet actor, per spec.md section 6.
type ReleaseStakeParams struct {
	Amount abi.TokenAmount
}

func (p *ReleaseStakeParams) MarshalCBOR(w io.Writer) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 1); err != nil {
		return err
	}
	return p.Amount.MarshalCBOR(w)
}

func (p *ReleaseStakeParams) UnmarshalCBOR(r io.Reader) error {
	br := byteReader(r)
	if err := readArrayHeader(br, "ReleaseStakeParams", 1); err != nil {
		return err
	}
	p.Amount = big.Zero()
	return p.Amount.UnmarshalCBOR(br)
}

// ReleaseStake implements spec.md section 6's ReleaseStake operation: sends
// the released amount back to the caller once the state transition succeeds.
func (a Actor) ReleaseStake(rt runtime.Runtime, params *ReleaseStakeParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	caller := rt.Caller()

	var st State
	rt.StateTransaction(&st, func() {
		curr, err := st.NetworkSubnetID()
		builtin0.RequireNoErr(rt, err, exitcode.ErrIllegalState, "invalid network name")
		id := ipcaddr.NewSubnetID(curr, caller)
		err = st.ReleaseStake(adt.AsStore(rt), id, params.Amount, rt.CurrentBalance())
		builtin0.RequireNoErr(rt, err, errExitCode(err), "release_stake failed")
	})
	rt.Send(caller, builtin0.MethodSend, nil, params.Amount, &builtin0.Discard{}) //nolint:errcheck
	return nil
}

// Kill implements spec.md section 6's Kill operation: removes the caller's
// subnet and refunds its staked balance.
func (a Actor) Kill(rt runtime.Runtime, _ *abi.EmptyValue) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	caller := rt.Caller()

	var refund abi.TokenAmount
	var st State
	rt.StateTransaction(&st, func() {
		curr, err := st.NetworkSubnetID()
		builtin0.RequireNoErr(rt, err, exitcode.ErrIllegalState, "invalid network name")
		id := ipcaddr.NewSubnetID(curr, caller)
		refund, err = st.Kill(adt.AsStore(rt), id, rt.CurrentBalance())
		builtin0.RequireNoErr(rt, err, errExitCode(err), "kill failed")
	})
	rt.Send(caller, builtin0.MethodSend, nil, refund, &builtin0.Discard{}) //nolint:errcheck
	return nil
}

// CommitChildCheckpointParams carries a child's periodic checkpoint and the
// cross-message fee it has set aside for distribution, per spec.md
// section 6.
type CommitChildCheckpointParams struct {
	Checkpoint Checkpoint
	Fee        abi.TokenAmount
}

func (p *CommitChildCheckpointParams) MarshalCBOR(w io.Writer) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 2); err != nil {
		return err
	}
	if err := p.Checkpoint.MarshalCBOR(w); err != nil {
		return err
	}
	return p.Fee.MarshalCBOR(w)
}

func (p *CommitChildCheckpointParams) UnmarshalCBOR(r io.Reader) error {
	br := byteReader(r)
	if err := readArrayHeader(br, "CommitChildCheckpointParams", 2); err != nil {
		return err
	}
	if err := p.Checkpoint.UnmarshalCBOR(br); err != nil {
		return err
	}
	p.Fee = big.Zero()
	return p.Fee.UnmarshalCBOR(br)
}

func (r *CommitChildCheckpointResult) MarshalCBOR(w io.Writer) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 1); err != nil {
		return err
	}
	return r.FeeToDistribute.MarshalCBOR(w)
}

func (r *CommitChildCheckpointResult) UnmarshalCBOR(rd io.Reader) error {
	br := byteReader(rd)
	if err := readArrayHeader(br, "CommitChildCheckpointResult", 1); err != nil {
		return err
	}
	r.FeeToDistribute = big.Zero()
	return r.FeeToDistribute.UnmarshalCBOR(br)
}

// CommitChildCheckpoint implements spec.md section 6's CommitChildCheckpoint
// operation, distributing the declared fee to the caller once the
// transaction succeeds.
func (a Actor) CommitChildCheckpoint(rt runtime.Runtime, params *CommitChildCheckpointParams) *CommitChildCheckpointResult {
	rt.ValidateImmediateCallerAcceptAny()
	caller := rt.Caller()

	var result *CommitChildCheckpointResult
	var st State
	rt.StateTransaction(&st, func() {
		curr, err := st.NetworkSubnetID()
		builtin0.RequireNoErr(rt, err, exitcode.ErrIllegalState, "invalid network name")
		source := ipcaddr.NewSubnetID(curr, caller)
		result, err = st.CommitChildCheckpoint(adt.AsStore(rt), source, &params.Checkpoint, params.Fee)
		builtin0.RequireNoErr(rt, err, errExitCode(err), "commit_child_checkpoint failed")
	})
	if result.FeeToDistribute.GreaterThan(big.Zero()) {
		rt.Send(caller, RewardMethodNum, nil, result.FeeToDistribute, &builtin0.Discard{}) //nolint:errcheck
	}
	return result
}

// FundParams names the child subnet to credit, per spec.md section 6.
type FundParams struct {
	Subnet ipcaddr.SubnetID
}

func (p *FundParams) MarshalCBOR(w io.Writer) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 1); err != nil {
		return err
	}
	return writeSubnetID(w, p.Subnet)
}

func (p *FundParams) UnmarshalCBOR(r io.Reader) error {
	br := byteReader(r)
	if err := readArrayHeader(br, "FundParams", 1); err != nil {
		return err
	}
	var err error
	p.Subnet, err = readSubnetID(br)
	return err
}

// Fund implements spec.md section 6's Fund operation, forwarding the
// collected cross-message fee to the destination subnet's actor the way
// CommitChildCheckpoint distributes its fee to the caller.
func (a Actor) Fund(rt runtime.Runtime, params *FundParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	caller := rt.Caller()
	value := rt.ValueReceived()

	var fee abi.TokenAmount
	var st State
	rt.StateTransaction(&st, func() {
		curr, err := st.NetworkSubnetID()
		builtin0.RequireNoErr(rt, err, exitcode.ErrIllegalState, "invalid network name")
		fee, err = st.Fund(adt.AsStore(rt), curr, params.Subnet, rt.CurrEpoch(), caller, value)
		builtin0.RequireNoErr(rt, err, errExitCode(err), "fund failed")
	})
	if fee.GreaterThan(big.Zero()) {
		dest, err := params.Subnet.Actor()
		builtin0.RequireNoErr(rt, err, exitcode.ErrIllegalArgument, "fund destination has no actor address")
		rt.Send(dest, RewardMethodNum, nil, fee, &builtin0.Discard{}) //nolint:errcheck
	}
	return nil
}

// Release implements spec.md section 6's Release operation, burning the
// released value at the source subnet when the commit requires it.
func (a Actor) Release(rt runtime.Runtime, _ *abi.EmptyValue) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	caller := rt.Caller()
	value := rt.ValueReceived()

	var doBurn bool
	var st State
	rt.StateTransaction(&st, func() {
		curr, err := st.NetworkSubnetID()
		builtin0.RequireNoErr(rt, err, exitcode.ErrIllegalState, "invalid network name")
		doBurn, err = st.Release(adt.AsStore(rt), curr, rt.CurrEpoch(), caller, value)
		builtin0.RequireNoErr(rt, err, errExitCode(err), "release failed")
	})
	if doBurn {
		rt.Send(builtin0.BurntFundsActorAddr, builtin0.MethodSend, nil, value, &builtin0.Discard{}) //nolint:errcheck
	}
	return nil
}

// SendCrossParams wraps the cross-message the caller wants routed, per
// spec.md section 6. From is overwritten by the actor with (curr, caller).
type SendCrossParams struct {
	Msg CrossMsg
}

func (p *SendCrossParams) MarshalCBOR(w io.Writer) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 1); err != nil {
		return err
	}
	return p.Msg.MarshalCBOR(w)
}

func (p *SendCrossParams) UnmarshalCBOR(r io.Reader) error {
	br := byteReader(r)
	if err := readArrayHeader(br, "SendCrossParams", 1); err != nil {
		return err
	}
	return p.Msg.UnmarshalCBOR(br)
}

// SendCross implements spec.md section 6's SendCross operation.
func (a Actor) SendCross(rt runtime.Runtime, params *SendCrossParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	caller := rt.Caller()
	value := rt.ValueReceived()

	var doBurn bool
	var st State
	rt.StateTransaction(&st, func() {
		curr, err := st.NetworkSubnetID()
		builtin0.RequireNoErr(rt, err, exitcode.ErrIllegalState, "invalid network name")
		callerAddr := ipcaddr.NewIPCAddress(curr, caller)
		doBurn, err = st.SendCross(adt.AsStore(rt), curr, rt.CurrEpoch(), callerAddr, value, &params.Msg)
		builtin0.RequireNoErr(rt, err, errExitCode(err), "send_cross failed")
	})
	if doBurn {
		rt.Send(builtin0.BurntFundsActorAddr, builtin0.MethodSend, nil, value, &builtin0.Discard{}) //nolint:errcheck
	}
	return nil
}

// ApplyMessage implements spec.md section 6's ApplyMessage operation,
// invoked by whichever process (validator/relayer) is routing an
// already-committed cross-message into this subnet.
func (a Actor) ApplyMessage(rt runtime.Runtime, params *SendCrossParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.StateTransaction(&st, func() {
		curr, err := st.NetworkSubnetID()
		builtin0.RequireNoErr(rt, err, exitcode.ErrIllegalState, "invalid network name")
		_, err = st.ApplyMessage(adt.AsStore(rt), curr, &params.Msg, rt.CurrentBalance())
		builtin0.RequireNoErr(rt, err, errExitCode(err), "apply_message failed")
	})
	return nil
}

// PropagateParams names the postbox entry to re-run commit logic on, per
// spec.md section 6.
type PropagateParams struct {
	Key cid.Cid
}

func (p *PropagateParams) MarshalCBOR(w io.Writer) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 1); err != nil {
		return err
	}
	return writeCid(w, p.Key)
}

func (p *PropagateParams) UnmarshalCBOR(r io.Reader) error {
	br := byteReader(r)
	if err := readArrayHeader(br, "PropagateParams", 1); err != nil {
		return err
	}
	var err error
	p.Key, err = readCid(br)
	return err
}

// Propagate implements spec.md section 6's Propagate operation.
func (a Actor) Propagate(rt runtime.Runtime, params *PropagateParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	caller := rt.Caller()
	value := rt.ValueReceived()

	var doBurn bool
	var remainder abi.TokenAmount
	var st State
	rt.StateTransaction(&st, func() {
		curr, err := st.NetworkSubnetID()
		builtin0.RequireNoErr(rt, err, exitcode.ErrIllegalState, "invalid network name")
		callerAddr := ipcaddr.NewIPCAddress(curr, caller)
		doBurn, remainder, err = st.Propagate(adt.AsStore(rt), params.Key, curr, rt.CurrEpoch(), callerAddr, value)
		builtin0.RequireNoErr(rt, err, errExitCode(err), "propagate failed")
	})
	if doBurn {
		rt.Send(builtin0.BurntFundsActorAddr, builtin0.MethodSend, nil, remainder, &builtin0.Discard{}) //nolint:errcheck
	}
	return nil
}

// WhitelistPropagatorParams names the postbox entry and the owners to add,
// per spec.md section 6.
type WhitelistPropagatorParams struct {
	Key   cid.Cid
	ToAdd []ipcaddr.IPCAddress
}

func (p *WhitelistPropagatorParams) MarshalCBOR(w io.Writer) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 2); err != nil {
		return err
	}
	if err := writeCid(w, p.Key); err != nil {
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, uint64(len(p.ToAdd))); err != nil {
		return err
	}
	for _, a := range p.ToAdd {
		if err := writeIPCAddress(w, a); err != nil {
			return err
		}
	}
	return nil
}

func (p *WhitelistPropagatorParams) UnmarshalCBOR(r io.Reader) error {
	br := byteReader(r)
	if err := readArrayHeader(br, "WhitelistPropagatorParams", 2); err != nil {
		return err
	}
	var err error
	if p.Key, err = readCid(br); err != nil {
		return err
	}
	maj, extra, err := cbg.CborReadHeaderBuf(br, make([]byte, 9))
	if err != nil {
		return err
	}
	if maj != cbg.MajArray {
		return illegalArgument("expected array for WhitelistPropagatorParams.ToAdd")
	}
	p.ToAdd = make([]ipcaddr.IPCAddress, extra)
	for i := range p.ToAdd {
		if p.ToAdd[i], err = readIPCAddress(br); err != nil {
			return err
		}
	}
	return nil
}

// WhitelistPropagator implements spec.md section 6's WhitelistPropagator
// operation.
func (a Actor) WhitelistPropagator(rt runtime.Runtime, params *WhitelistPropagatorParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	caller := rt.Caller()

	var st State
	rt.StateTransaction(&st, func() {
		curr, err := st.NetworkSubnetID()
		builtin0.RequireNoErr(rt, err, exitcode.ErrIllegalState, "invalid network name")
		callerAddr := ipcaddr.NewIPCAddress(curr, caller)
		err = st.WhitelistPropagator(adt.AsStore(rt), params.Key, callerAddr, params.ToAdd)
		builtin0.RequireNoErr(rt, err, errExitCode(err), "whitelist_propagator failed")
	})
	return nil
}

// SubmitCron implements spec.md section 6's SubmitCron operation: validates
// the caller is a current validator, tallies the vote, and applies any
// top-down batch that reaches consensus - draining the executable-epoch
// queue afterward so later rounds that reached consensus out of order, and
// were deferred, execute too.
func (a Actor) SubmitCron(rt runtime.Runtime, params *CronCheckpoint) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	caller := rt.Caller()

	var batches [][]CrossMsg
	var st State
	rt.StateTransaction(&st, func() {
		store := adt.AsStore(rt)
		curr, err := st.NetworkSubnetID()
		builtin0.RequireNoErr(rt, err, exitcode.ErrIllegalState, "invalid network name")

		weight, err := st.ValidateCronSubmitter(store, params.Epoch, caller)
		builtin0.RequireNoErr(rt, err, errExitCode(err), "invalid cron submitter")

		msgs, err := st.HandleCronSubmission(store, params.Epoch, caller, weight, *params)
		builtin0.RequireNoErr(rt, err, errExitCode(err), "handle_cron_submission failed")
		if len(msgs) > 0 {
			batches = append(batches, msgs)
		}

		for {
			msgs, _, executed, err := st.ExecuteNextCronEpoch(store)
			builtin0.RequireNoErr(rt, err, exitcode.ErrIllegalState, "execute_next_cron_epoch failed")
			if !executed {
				break
			}
			if len(msgs) > 0 {
				batches = append(batches, msgs)
			}
		}

		for _, batch := range batches {
			for i := range batch {
				_, err := st.ApplyMessage(store, curr, &batch[i], rt.CurrentBalance())
				builtin0.RequireNoErr(rt, err, exitcode.ErrIllegalState, "applying cron-executed message failed")
			}
		}
	})
	return nil
}

// ValidatorEntry is one (address, weight) pair in a SetMembershipParams
// list.
type ValidatorEntry struct {
	Addr   address.Address
	Weight abi.TokenAmount
}

// SetMembershipParams replaces the entire validator set, per spec.md
// section 6.
type SetMembershipParams struct {
	Validators []ValidatorEntry
}

func (p *SetMembershipParams) MarshalCBOR(w io.Writer) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 1); err != nil {
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, uint64(len(p.Validators))); err != nil {
		return err
	}
	for _, v := range p.Validators {
		if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 2); err != nil {
			return err
		}
		if err := writeAddress(w, v.Addr); err != nil {
			return err
		}
		if err := v.Weight.MarshalCBOR(w); err != nil {
			return err
		}
	}
	return nil
}

func (p *SetMembershipParams) UnmarshalCBOR(r io.Reader) error {
	br := byteReader(r)
	if err := readArrayHeader(br, "SetMembershipParams", 1); err != nil {
		return err
	}
	maj, extra, err := cbg.CborReadHeaderBuf(br, make([]byte, 9))
	if err != nil {
		return err
	}
	if maj != cbg.MajArray {
		return illegalArgument("expected array for SetMembershipParams.Validators")
	}
	p.Validators = make([]ValidatorEntry, extra)
	for i := range p.Validators {
		if err := readArrayHeader(br, "ValidatorEntry", 2); err != nil {
			return err
		}
		if p.Validators[i].Addr, err = readAddress(br); err != nil {
			return err
		}
		p.Validators[i].Weight = big.Zero()
		if err := p.Validators[i].Weight.UnmarshalCBOR(br); err != nil {
			return err
		}
	}
	return nil
}

// SetMembership implements spec.md section 6's SetMembership operation.
// Only the network's own parent-facing governance caller may invoke this in
// a production deployment; this exercise leaves that authorization policy to
// the embedding chain's actor registration, matching spec.md section 9's
// second Open Question.
func (a Actor) SetMembership(rt runtime.Runtime, params *SetMembershipParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()

	weights := make(map[address.Address]abi.TokenAmount, len(params.Validators))
	for _, v := range params.Validators {
		weights[v.Addr] = v.Weight
	}

	var st State
	rt.StateTransaction(&st, func() {
		err := st.SetMembership(adt.AsStore(rt), weights)
		builtin0.RequireNoErr(rt, err, exitcode.ErrIllegalState, "set_membership failed")
	})
	return nil
}

// errExitCode maps a library Error's Kind to an exitcode.ExitCode, falling
// back to ErrIllegalState for anything else (including nil, which
// RequireNoErr never reaches).
func errExitCode(err error) exitcode.ExitCode {
	if gerr, ok := err.(*Error); ok {
		return gerr.Kind.ExitCode()
	}
	return exitcode.ErrIllegalState
}
