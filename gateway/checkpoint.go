package gateway

import (
	"bytes"
	"io"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	cid "github.com/ipfs/go-cid"
	"github.com/minio/blake2b-simd"
	"github.com/multiformats/go-multihash"

	"github.com/consensus-shipyard/ipc-gateway/ipcaddr"
)

// blake2b256MultihashCode is the multihash code for a 32-byte Blake2b
// digest (BLAKE2B_MIN is the 8-bit variant; +31 steps to the 256-bit one).
const blake2b256MultihashCode = multihash.BLAKE2B_MIN + 31

// cborMarshaler is the subset of cbor.Marshaler this package's canonical
// hashing needs.
type cborMarshaler interface {
	MarshalCBOR(w io.Writer) error
}

// cidOf computes the CID of m's canonical cbor-gen tuple encoding, the way
// spec.md section 6 requires ("CIDs are v1 with DAG-CBOR codec", hashed with
// Blake2b-256). See DESIGN.md for why this uses cbor-gen's own canonical
// tuple encoding rather than a separate ipld-prime schema.
func cidOf(m cborMarshaler) (cid.Cid, error) {
	var buf bytes.Buffer
	if err := m.MarshalCBOR(&buf); err != nil {
		return cid.Undef, serializationError("marshaling for cid: %s", err)
	}
	digest := blake2b.Sum256(buf.Bytes())
	mh, err := multihash.Encode(digest[:], blake2b256MultihashCode)
	if err != nil {
		return cid.Undef, serializationError("encoding multihash: %s", err)
	}
	return cid.NewCidV1(cid.DagCBOR, mh), nil
}

// CrossMsgMeta summarizes a batch of bottom-up cross-messages destined from
// one subnet toward another, carried inside a Checkpoint. Per spec.md
// section 3.
type CrossMsgMeta struct {
	From, To ipcaddr.SubnetID
	Nonce    uint64
	Value    abi.TokenAmount
}

// Equal reports field-for-field equality, used by AppendMsgMeta's
// dedup-by-difference rule.
func (m CrossMsgMeta) Equal(other CrossMsgMeta) bool {
	return m.From.Equals(other.From) && m.To.Equals(other.To) &&
		m.Nonce == other.Nonce && m.Value.Equals(other.Value)
}

// ChildCheck records, for one child subnet, every child-checkpoint CID
// committed into the current window - plural, because a child may commit
// more than once before the window closes. Ported from
// original_source/src/checkpoint.rs's ChildCheck.
type ChildCheck struct {
	Source ipcaddr.SubnetID
	Checks []cid.Cid
}

// CheckData is the hashed portion of a Checkpoint - everything except the
// signature. Per spec.md section 3.
type CheckData struct {
	Source    ipcaddr.SubnetID
	TipSet    []byte
	Epoch     abi.ChainEpoch
	PrevCheck cid.Cid
	Children  []ChildCheck
	CrossMsgs []CrossMsgMeta
}

// Checkpoint is a child subnet's periodic, hash-chained commitment to the
// parent. Per spec.md section 3.
type Checkpoint struct {
	Data CheckData
	Sig  []byte
}

// NewCheckpoint returns an empty checkpoint template for source at epoch.
func NewCheckpoint(source ipcaddr.SubnetID, epoch abi.ChainEpoch) *Checkpoint {
	return &Checkpoint{Data: CheckData{Source: source, Epoch: epoch, PrevCheck: cid.Undef}}
}

// CID computes ch's content address, hashing CheckData only - the signature
// is excluded, per spec.md section 3.
func (ch *Checkpoint) CID() (cid.Cid, error) {
	return cidOf(&ch.Data)
}

// AppendMsgMeta appends meta to ch's cross-message batch unless an entry for
// the same (from, to) pair already exists and is identical. Ported from
// original_source/src/checkpoint.rs's append_msgmeta.
func (ch *Checkpoint) AppendMsgMeta(meta CrossMsgMeta) {
	for _, existing := range ch.Data.CrossMsgs {
		if existing.From.Equals(meta.From) && existing.To.Equals(meta.To) {
			if !existing.Equal(meta) {
				ch.Data.CrossMsgs = append(ch.Data.CrossMsgs, meta)
			}
			return
		}
	}
	ch.Data.CrossMsgs = append(ch.Data.CrossMsgs, meta)
}

// AddChildCheck records commit's CID under its source, rejecting a CID
// already present for that source - the mechanism behind spec.md section 8's
// idempotent-dedup law. Ported from original_source/src/checkpoint.rs's
// add_child_check.
func (ch *Checkpoint) AddChildCheck(commit *Checkpoint) error {
	commitCid, err := commit.CID()
	if err != nil {
		return err
	}
	for i := range ch.Data.Children {
		cc := &ch.Data.Children[i]
		if !cc.Source.Equals(commit.Data.Source) {
			continue
		}
		for _, existing := range cc.Checks {
			if existing.Equals(commitCid) {
				return illegalArgument("child checkpoint being committed already exists for source %s", commit.Data.Source)
			}
		}
		cc.Checks = append(cc.Checks, commitCid)
		return nil
	}
	ch.Data.Children = append(ch.Data.Children, ChildCheck{
		Source: commit.Data.Source,
		Checks: []cid.Cid{commitCid},
	})
	return nil
}

// WindowEpoch returns the epoch of the active checkpoint window for epoch
// under period - the first multiple of period strictly after epoch. Ported
// from original_source/src/checkpoint.rs's window_epoch.
func WindowEpoch(epoch, period abi.ChainEpoch) abi.ChainEpoch {
	ind := epoch / period
	return period * (ind + 1)
}

// CheckpointEpochOf returns the epoch of the most recently closed checkpoint
// window at or before epoch. Ported from
// original_source/src/checkpoint.rs's checkpoint_epoch.
func CheckpointEpochOf(epoch, period abi.ChainEpoch) abi.ChainEpoch {
	return (epoch / period) * period
}

// CommitChildCheckpointResult carries the fee that must be distributed to
// the committing subnet actor once CommitChildCheckpoint succeeds. The
// transfer itself happens after the state transaction commits, per spec.md
// section 5 and the fee/burn ordering decided in DESIGN.md's Open Questions.
type CommitChildCheckpointResult struct {
	FeeToDistribute abi.TokenAmount
}

// CommitChildCheckpoint implements spec.md section 4.3: validates the
// checkpoint chain for source, persists any bottom-up message metas it
// carries, records its CID in the current window checkpoint, and updates
// the subnet's previous-checkpoint pointer.
func (st *State) CommitChildCheckpoint(store Store, source ipcaddr.SubnetID, commit *Checkpoint, declaredFee abi.TokenAmount) (*CommitChildCheckpointResult, error) {
	if !commit.Data.Source.Equals(source) {
		return nil, illegalArgument("checkpoint source %s does not match caller's subnet %s", commit.Data.Source, source)
	}
	sub, has, err := st.GetSubnet(store, source)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, notFound("subnet %s is not registered", source)
	}
	if sub.Status != StatusActive {
		return nil, illegalState("subnet %s is not active", source)
	}

	if sub.PrevCheckpoint != nil {
		if commit.Data.Epoch <= sub.PrevCheckpoint.Data.Epoch {
			return nil, illegalArgument("checkpoint epoch %d is not after previous epoch %d", commit.Data.Epoch, sub.PrevCheckpoint.Data.Epoch)
		}
		prevCid, err := sub.PrevCheckpoint.CID()
		if err != nil {
			return nil, err
		}
		if !commit.Data.PrevCheck.Equals(prevCid) {
			return nil, illegalArgument("checkpoint's prev_check is not consistent with the previously committed checkpoint")
		}
	}

	result := &CommitChildCheckpointResult{FeeToDistribute: big.Zero()}
	if len(commit.Data.CrossMsgs) > 0 {
		total := big.Zero()
		for _, meta := range commit.Data.CrossMsgs {
			total = big.Add(total, meta.Value)
			if err := st.storeBottomUpMsgMeta(store, meta); err != nil {
				return nil, err
			}
		}
		sub.CircSupply = big.Sub(sub.CircSupply, total)
		result.FeeToDistribute = declaredFee
	}

	win, err := st.GetWindowCheckpoint(store, commit.Data.Epoch)
	if err != nil {
		return nil, err
	}
	if err := win.AddChildCheck(commit); err != nil {
		return nil, err
	}
	if err := st.flushWindowCheckpoint(store, win); err != nil {
		return nil, err
	}

	sub.PrevCheckpoint = commit
	if err := st.flushSubnet(store, sub); err != nil {
		return nil, err
	}

	return result, nil
}
