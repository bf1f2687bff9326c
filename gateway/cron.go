package gateway

import (
	address "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/specs-actors/v8/actors/builtin"
	"github.com/filecoin-project/specs-actors/v8/actors/util/adt"
	cid "github.com/ipfs/go-cid"
)

// CronCheckpoint is one validator's proposed batch of top-down messages for
// a cron epoch, per spec.md section 3/4.4. Ported from
// original_source/gateway/src/cron.rs's CronCheckpoint.
type CronCheckpoint struct {
	Epoch       abi.ChainEpoch
	TopDownMsgs []CrossMsg
}

// Hash validates that TopDownMsgs are strictly ascending and distinct by
// nonce, then returns the Blake2b-256 CID of the canonical encoding. Ported
// from original_source/gateway/src/cron.rs's CronCheckpoint::hash.
func (cc *CronCheckpoint) Hash() (cid.Cid, error) {
	for i := 1; i < len(cc.TopDownMsgs); i++ {
		prev, cur := cc.TopDownMsgs[i-1].Nonce, cc.TopDownMsgs[i].Nonce
		switch {
		case cur == prev:
			return cid.Undef, illegalArgument("top-down messages have duplicate nonce %d", cur)
		case cur < prev:
			return cid.Undef, illegalArgument("top-down messages are not sorted by nonce")
		}
	}
	return cidOf(cc)
}

// CronVoteCount tallies the weight behind one candidate checkpoint hash.
type CronVoteCount struct {
	Hash   cid.Cid
	Weight abi.TokenAmount
}

// CronSubmissionEntry pairs a candidate checkpoint with its hash, so a
// ConsensusReached round can recover the checkpoint behind the leading hash.
type CronSubmissionEntry struct {
	Hash       cid.Cid
	Checkpoint CronCheckpoint
}

// CronSubmission is the in-progress tally for one cron epoch, per spec.md
// section 3/4.4. Ported from original_source/gateway/src/cron.rs's
// CronSubmission, using slices rather than a BTreeMap/HashMap since the
// validator set per round is small and linear scans keep the type
// cbor-gen-friendly.
type CronSubmission struct {
	TotalSubmittedWeight abi.TokenAmount
	MostVotedHash        cid.Cid
	Submitters           []address.Address
	Counts               []CronVoteCount
	Submissions          []CronSubmissionEntry
}

func (cs *CronSubmission) hasSubmitted(addr address.Address) bool {
	for _, s := range cs.Submitters {
		if s == addr {
			return true
		}
	}
	return false
}

func (cs *CronSubmission) findCount(h cid.Cid) (*CronVoteCount, bool) {
	for i := range cs.Counts {
		if cs.Counts[i].Hash.Equals(h) {
			return &cs.Counts[i], true
		}
	}
	return nil, false
}

func (cs *CronSubmission) findSubmission(h cid.Cid) (*CronCheckpoint, bool) {
	for i := range cs.Submissions {
		if cs.Submissions[i].Hash.Equals(h) {
			return &cs.Submissions[i].Checkpoint, true
		}
	}
	return nil, false
}

// Submit records a validator's vote, rejecting replay, persisting the
// checkpoint the first time its hash is seen, and updating the leading hash.
// Ported from original_source/gateway/src/cron.rs's CronSubmission::submit.
func (cs *CronSubmission) Submit(submitter address.Address, weight abi.TokenAmount, cc CronCheckpoint) error {
	if cs.hasSubmitted(submitter) {
		return illegalArgument("validator %s has already submitted for this epoch", submitter)
	}
	h, err := cc.Hash()
	if err != nil {
		return err
	}
	if _, found := cs.findSubmission(h); !found {
		cs.Submissions = append(cs.Submissions, CronSubmissionEntry{Hash: h, Checkpoint: cc})
	}
	cs.Submitters = append(cs.Submitters, submitter)
	cs.TotalSubmittedWeight = big.Add(cs.TotalSubmittedWeight, weight)

	count, found := cs.findCount(h)
	if !found {
		cs.Counts = append(cs.Counts, CronVoteCount{Hash: h, Weight: weight})
		count = &cs.Counts[len(cs.Counts)-1]
	} else {
		count.Weight = big.Add(count.Weight, weight)
	}

	if cs.MostVotedHash == cid.Undef {
		cs.MostVotedHash = h
	} else if lead, found := cs.findCount(cs.MostVotedHash); found && count.Weight.GreaterThan(lead.Weight) {
		cs.MostVotedHash = h
	}
	return nil
}

// abort resets the tally but keeps the recorded submissions, so a later
// identical vote in the same epoch still dedups correctly. Ported from
// original_source/gateway/src/cron.rs's CronSubmission::abort.
func (cs *CronSubmission) abort() {
	cs.TotalSubmittedWeight = big.Zero()
	cs.MostVotedHash = cid.Undef
	cs.Submitters = nil
	cs.Counts = nil
}

// ExecutionStatus is the outcome of tallying a cron round, per spec.md
// section 4.4.
type ExecutionStatus int

const (
	ThresholdNotReached ExecutionStatus = iota
	ReachingConsensus
	RoundAbort
	ConsensusReached
)

// DeriveExecutionStatus implements spec.md section 4.4's weighted-stake
// threshold math: threshold = total_weight * 2/3. This deviates intentionally
// from original_source/gateway/src/cron.rs's unweighted u16 vote counting -
// see DESIGN.md.
func DeriveExecutionStatus(totalWeight, submittedWeight, leaderWeight abi.TokenAmount) ExecutionStatus {
	threshold := big.Div(big.Mul(totalWeight, big.NewInt(2)), big.NewInt(3))
	switch {
	case submittedWeight.LessThanEqual(threshold):
		return ThresholdNotReached
	case leaderWeight.GreaterThan(threshold):
		return ConsensusReached
	case big.Sub(threshold, leaderWeight).GreaterThanEqual(big.Sub(totalWeight, submittedWeight)):
		return RoundAbort
	default:
		return ReachingConsensus
	}
}

// ValidateCronSubmitter implements spec.md section 4.4's submission-epoch
// domain check and validator-weight lookup. Ported from
// original_source/gateway/src/lib.rs's validate_submitter.
func (st *State) ValidateCronSubmitter(store Store, epoch abi.ChainEpoch, submitter address.Address) (weight abi.TokenAmount, err error) {
	if (epoch-st.GenesisEpoch)%st.CronPeriod != 0 {
		return abi.TokenAmount{}, illegalArgument("epoch %d is not a valid cron submission epoch", epoch)
	}
	if epoch <= st.LastCronExecutedEpoch {
		return abi.TokenAmount{}, illegalArgument("epoch %d has already been executed", epoch)
	}
	weight, found, err := st.GetValidatorWeight(store, submitter)
	if err != nil {
		return abi.TokenAmount{}, err
	}
	if !found {
		return abi.TokenAmount{}, illegalArgument("%s is not a validator", submitter)
	}
	return weight, nil
}

// HandleCronSubmission implements spec.md section 4.4's per-epoch tally and
// execution-status branching, including the "unstick" queue for rounds that
// reach consensus out of order. Ported from
// original_source/gateway/src/lib.rs's handle_cron_submission.
func (st *State) HandleCronSubmission(store Store, epoch abi.ChainEpoch, submitter address.Address, weight abi.TokenAmount, cc CronCheckpoint) ([]CrossMsg, error) {
	sub, err := st.getOrCreateCronSubmission(store, epoch)
	if err != nil {
		return nil, err
	}
	if err := sub.Submit(submitter, weight, cc); err != nil {
		return nil, err
	}

	leader, found := sub.findCount(sub.MostVotedHash)
	if !found {
		return nil, illegalState("missing vote count for leading hash")
	}
	status := DeriveExecutionStatus(st.TotalWeight, sub.TotalSubmittedWeight, leader.Weight)

	switch status {
	case ThresholdNotReached, ReachingConsensus:
		return nil, st.putCronSubmission(store, epoch, sub)
	case RoundAbort:
		sub.abort()
		return nil, st.putCronSubmission(store, epoch, sub)
	case ConsensusReached:
		checkpoint, found := sub.findSubmission(sub.MostVotedHash)
		if !found {
			return nil, illegalState("missing submission for leading hash")
		}
		if st.LastCronExecutedEpoch+st.CronPeriod != epoch {
			st.insertExecutableEpoch(epoch)
			return nil, st.putCronSubmission(store, epoch, sub)
		}
		st.LastCronExecutedEpoch = epoch
		if err := st.deleteCronSubmission(store, epoch); err != nil {
			return nil, err
		}
		return checkpoint.TopDownMsgs, nil
	default:
		return nil, illegalState("unknown execution status")
	}
}

// ExecuteNextCronEpoch pops the smallest element of executable_epoch_queue
// when it is immediately next after last_cron_executed_epoch and returns that
// epoch's messages; it executes at most one epoch per call, and callers loop
// until executed is false. This prevents the livelock spec.md section 4.4
// calls "unsticking": a round that reaches consensus out of order waits here
// until every earlier epoch has executed.
func (st *State) ExecuteNextCronEpoch(store Store) (msgs []CrossMsg, epoch abi.ChainEpoch, executed bool, err error) {
	if len(st.ExecutableEpochQueue) == 0 {
		return nil, 0, false, nil
	}
	next := st.ExecutableEpochQueue[0]
	if next > st.LastCronExecutedEpoch+st.CronPeriod {
		return nil, 0, false, nil
	}
	st.ExecutableEpochQueue = st.ExecutableEpochQueue[1:]
	st.LastCronExecutedEpoch = next

	sub, found, err := st.getCronSubmission(store, next)
	if err != nil {
		return nil, 0, false, err
	}
	if !found {
		return nil, next, true, nil
	}
	checkpoint, found := sub.findSubmission(sub.MostVotedHash)
	if !found {
		return nil, next, true, nil
	}
	if err := st.deleteCronSubmission(store, next); err != nil {
		return nil, 0, false, err
	}
	return checkpoint.TopDownMsgs, next, true, nil
}

func (st *State) insertExecutableEpoch(epoch abi.ChainEpoch) {
	for i, e := range st.ExecutableEpochQueue {
		if e == epoch {
			return
		}
		if e > epoch {
			st.ExecutableEpochQueue = append(st.ExecutableEpochQueue[:i:i], append([]abi.ChainEpoch{epoch}, st.ExecutableEpochQueue[i:]...)...)
			return
		}
	}
	st.ExecutableEpochQueue = append(st.ExecutableEpochQueue, epoch)
}

// AddValidator implements spec.md section 4.5's SetMembership-adjacent
// single-validator add/update: replaces an existing weight rather than
// accumulating it.
func (st *State) AddValidator(store adt.Store, addr address.Address, weight abi.TokenAmount) error {
	validators, err := adt.AsMap(store, st.ValidatorsRoot, builtin.DefaultHamtBitwidth)
	if err != nil {
		return serializationError("loading validators: %s", err)
	}
	var existing abi.TokenAmount
	found, err := validators.Get(abi.AddrKey(addr), &existing)
	if err != nil {
		return serializationError("getting validator %s: %s", addr, err)
	}
	if found {
		st.TotalWeight = big.Sub(st.TotalWeight, existing)
	}
	w := weight
	if err := validators.Put(abi.AddrKey(addr), &w); err != nil {
		return serializationError("storing validator %s: %s", addr, err)
	}
	st.TotalWeight = big.Add(st.TotalWeight, weight)
	root, err := validators.Root()
	if err != nil {
		return err
	}
	st.ValidatorsRoot = root
	return nil
}

// RemoveValidator drops addr from the validator set, subtracting its weight
// from the cached total.
func (st *State) RemoveValidator(store adt.Store, addr address.Address) error {
	validators, err := adt.AsMap(store, st.ValidatorsRoot, builtin.DefaultHamtBitwidth)
	if err != nil {
		return serializationError("loading validators: %s", err)
	}
	var existing abi.TokenAmount
	found, err := validators.Get(abi.AddrKey(addr), &existing)
	if err != nil {
		return serializationError("getting validator %s: %s", addr, err)
	}
	if !found {
		return notFound("%s is not a validator", addr)
	}
	if err := validators.Delete(abi.AddrKey(addr)); err != nil {
		return serializationError("removing validator %s: %s", addr, err)
	}
	st.TotalWeight = big.Sub(st.TotalWeight, existing)
	root, err := validators.Root()
	if err != nil {
		return err
	}
	st.ValidatorsRoot = root
	return nil
}

// GetValidatorWeight looks up addr's current voting weight.
func (st *State) GetValidatorWeight(store adt.Store, addr address.Address) (abi.TokenAmount, bool, error) {
	validators, err := adt.AsMap(store, st.ValidatorsRoot, builtin.DefaultHamtBitwidth)
	if err != nil {
		return abi.TokenAmount{}, false, serializationError("loading validators: %s", err)
	}
	var weight abi.TokenAmount
	found, err := validators.Get(abi.AddrKey(addr), &weight)
	if err != nil {
		return abi.TokenAmount{}, false, serializationError("getting validator %s: %s", addr, err)
	}
	return weight, found, nil
}

// SetMembership atomically replaces the entire validator set, per spec.md
// section 4.5 and section 6's SetMembership operation.
func (st *State) SetMembership(store adt.Store, weights map[address.Address]abi.TokenAmount) error {
	validators, err := adt.MakeEmptyMap(store, builtin.DefaultHamtBitwidth)
	if err != nil {
		return serializationError("creating validators map: %s", err)
	}
	total := big.Zero()
	for addr, weight := range weights {
		w := weight
		if err := validators.Put(abi.AddrKey(addr), &w); err != nil {
			return serializationError("storing validator %s: %s", addr, err)
		}
		total = big.Add(total, weight)
	}
	root, err := validators.Root()
	if err != nil {
		return err
	}
	st.ValidatorsRoot = root
	st.TotalWeight = total
	return nil
}
