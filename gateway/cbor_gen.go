package gateway

// Code in this file follows the github.com/whyrusleeping/cbor-gen runtime
// conventions used throughout specs-actors-family actors, hand-maintained
// rather than generated because cbor-gen cannot encode the ipcaddr types most
// of them embed (see gen/gen.go). Every type here is encoded as a fixed-length CBOR
// array (a "tuple"), field order matching struct declaration order, per
// spec.md section 6.

import (
	"bufio"
	"fmt"
	"io"

	address "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	cid "github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"

	"github.com/consensus-shipyard/ipc-gateway/ipcaddr"
)

func byteReader(r io.Reader) cbg.ByteReadReader {
	if br, ok := r.(cbg.ByteReadReader); ok {
		return br
	}
	return bufio.NewReader(r)
}

func writeString(w io.Writer, s string) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajTextString, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(br cbg.ByteReadReader) (string, error) {
	return cbg.ReadString(br)
}

func writeBytes(w io.Writer, b []byte) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajByteString, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(br cbg.ByteReadReader) ([]byte, error) {
	maj, l, err := cbg.CborReadHeaderBuf(br, make([]byte, 9))
	if err != nil {
		return nil, err
	}
	if maj != cbg.MajByteString {
		return nil, fmt.Errorf("expected byte string, got major type %d", maj)
	}
	buf := make([]byte, l)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeUint64(w io.Writer, v uint64) error {
	return cbg.WriteMajorTypeHeader(w, cbg.MajUnsignedInt, v)
}

func readUint64(br cbg.ByteReadReader) (uint64, error) {
	maj, v, err := cbg.CborReadHeaderBuf(br, make([]byte, 9))
	if err != nil {
		return 0, err
	}
	if maj != cbg.MajUnsignedInt {
		return 0, fmt.Errorf("expected uint, got major type %d", maj)
	}
	return v, nil
}

func writeInt64(w io.Writer, v int64) error {
	if v >= 0 {
		return cbg.WriteMajorTypeHeader(w, cbg.MajUnsignedInt, uint64(v))
	}
	return cbg.WriteMajorTypeHeader(w, cbg.MajNegativeInt, uint64(-v-1))
}

func readInt64(br cbg.ByteReadReader) (int64, error) {
	maj, v, err := cbg.CborReadHeaderBuf(br, make([]byte, 9))
	if err != nil {
		return 0, err
	}
	switch maj {
	case cbg.MajUnsignedInt:
		return int64(v), nil
	case cbg.MajNegativeInt:
		return -1 - int64(v), nil
	default:
		return 0, fmt.Errorf("expected int, got major type %d", maj)
	}
}

func writeBool(w io.Writer, v bool) error {
	return cbg.WriteBool(w, v)
}

func readBool(br cbg.ByteReadReader) (bool, error) {
	return cbg.ReadBool(br)
}

// writeCid encodes an undefined CID (e.g. a first checkpoint's PrevCheck) as
// CBOR null, since cbg.WriteCid rejects cid.Undef.
func writeCid(w io.Writer, c cid.Cid) error {
	if c == cid.Undef {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	return cbg.WriteCid(w, c)
}

func readCid(br cbg.ByteReadReader) (cid.Cid, error) {
	b, err := br.ReadByte()
	if err != nil {
		return cid.Undef, err
	}
	if b == cbg.CborNull[0] {
		return cid.Undef, nil
	}
	if err := br.UnreadByte(); err != nil {
		return cid.Undef, err
	}
	return cbg.ReadCid(br)
}

func writeAddress(w io.Writer, a address.Address) error {
	return writeBytes(w, a.Bytes())
}

func readAddress(br cbg.ByteReadReader) (address.Address, error) {
	b, err := readBytes(br)
	if err != nil {
		return address.Undef, err
	}
	return address.NewFromBytes(b)
}

func writeSubnetID(w io.Writer, id ipcaddr.SubnetID) error {
	return writeString(w, id.String())
}

func readSubnetID(br cbg.ByteReadReader) (ipcaddr.SubnetID, error) {
	s, err := readString(br)
	if err != nil {
		return ipcaddr.SubnetID{}, err
	}
	return ipcaddr.ParseSubnetID(s)
}

func writeIPCAddress(w io.Writer, a ipcaddr.IPCAddress) error {
	return writeString(w, a.String())
}

func readIPCAddress(br cbg.ByteReadReader) (ipcaddr.IPCAddress, error) {
	s, err := readString(br)
	if err != nil {
		return ipcaddr.IPCAddress{}, err
	}
	return ipcaddr.ParseIPCAddress(s)
}

func readArrayHeader(br cbg.ByteReadReader, name string, n int) error {
	maj, extra, err := cbg.CborReadHeaderBuf(br, make([]byte, 9))
	if err != nil {
		return err
	}
	if maj != cbg.MajArray || extra != uint64(n) {
		return fmt.Errorf("cbor input for %s had wrong array size/type: %d/%d", name, maj, extra)
	}
	return nil
}

// --- CrossMsg ---

func (m *CrossMsg) MarshalCBOR(w io.Writer) error {
	if m == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 7); err != nil {
		return err
	}
	if err := writeIPCAddress(w, m.From); err != nil {
		return err
	}
	if err := writeIPCAddress(w, m.To); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(m.Method)); err != nil {
		return err
	}
	if err := writeBytes(w, m.Params); err != nil {
		return err
	}
	if err := m.Value.MarshalCBOR(w); err != nil {
		return err
	}
	if err := writeUint64(w, m.Nonce); err != nil {
		return err
	}
	return writeBool(w, m.Wrapped)
}

func (m *CrossMsg) UnmarshalCBOR(r io.Reader) error {
	br := byteReader(r)
	if err := readArrayHeader(br, "CrossMsg", 7); err != nil {
		return err
	}
	var err error
	if m.From, err = readIPCAddress(br); err != nil {
		return err
	}
	if m.To, err = readIPCAddress(br); err != nil {
		return err
	}
	method, err := readUint64(br)
	if err != nil {
		return err
	}
	m.Method = abi.MethodNum(method)
	if m.Params, err = readBytes(br); err != nil {
		return err
	}
	m.Value = big.Zero()
	if err := m.Value.UnmarshalCBOR(br); err != nil {
		return err
	}
	if m.Nonce, err = readUint64(br); err != nil {
		return err
	}
	if m.Wrapped, err = readBool(br); err != nil {
		return err
	}
	return nil
}

func writeCrossMsgSlice(w io.Writer, msgs []CrossMsg) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, uint64(len(msgs))); err != nil {
		return err
	}
	for i := range msgs {
		if err := msgs[i].MarshalCBOR(w); err != nil {
			return err
		}
	}
	return nil
}

func readCrossMsgSlice(br cbg.ByteReadReader) ([]CrossMsg, error) {
	maj, extra, err := cbg.CborReadHeaderBuf(br, make([]byte, 9))
	if err != nil {
		return nil, err
	}
	if maj != cbg.MajArray {
		return nil, fmt.Errorf("expected array of CrossMsg, got major type %d", maj)
	}
	out := make([]CrossMsg, extra)
	for i := range out {
		if err := out[i].UnmarshalCBOR(br); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// --- CrossMsgMeta ---

func (m *CrossMsgMeta) MarshalCBOR(w io.Writer) error {
	if m == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 4); err != nil {
		return err
	}
	if err := writeSubnetID(w, m.From); err != nil {
		return err
	}
	if err := writeSubnetID(w, m.To); err != nil {
		return err
	}
	if err := writeUint64(w, m.Nonce); err != nil {
		return err
	}
	return m.Value.MarshalCBOR(w)
}

func (m *CrossMsgMeta) UnmarshalCBOR(r io.Reader) error {
	br := byteReader(r)
	if err := readArrayHeader(br, "CrossMsgMeta", 4); err != nil {
		return err
	}
	var err error
	if m.From, err = readSubnetID(br); err != nil {
		return err
	}
	if m.To, err = readSubnetID(br); err != nil {
		return err
	}
	if m.Nonce, err = readUint64(br); err != nil {
		return err
	}
	m.Value = big.Zero()
	return m.Value.UnmarshalCBOR(br)
}

func writeCrossMsgMetaSlice(w io.Writer, metas []CrossMsgMeta) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, uint64(len(metas))); err != nil {
		return err
	}
	for i := range metas {
		if err := metas[i].MarshalCBOR(w); err != nil {
			return err
		}
	}
	return nil
}

func readCrossMsgMetaSlice(br cbg.ByteReadReader) ([]CrossMsgMeta, error) {
	maj, extra, err := cbg.CborReadHeaderBuf(br, make([]byte, 9))
	if err != nil {
		return nil, err
	}
	if maj != cbg.MajArray {
		return nil, fmt.Errorf("expected array of CrossMsgMeta, got major type %d", maj)
	}
	out := make([]CrossMsgMeta, extra)
	for i := range out {
		if err := out[i].UnmarshalCBOR(br); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// --- ChildCheck ---

func (c *ChildCheck) MarshalCBOR(w io.Writer) error {
	if c == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 2); err != nil {
		return err
	}
	if err := writeSubnetID(w, c.Source); err != nil {
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, uint64(len(c.Checks))); err != nil {
		return err
	}
	for _, ck := range c.Checks {
		if err := writeCid(w, ck); err != nil {
			return err
		}
	}
	return nil
}

func (c *ChildCheck) UnmarshalCBOR(r io.Reader) error {
	br := byteReader(r)
	if err := readArrayHeader(br, "ChildCheck", 2); err != nil {
		return err
	}
	var err error
	if c.Source, err = readSubnetID(br); err != nil {
		return err
	}
	maj, extra, err := cbg.CborReadHeaderBuf(br, make([]byte, 9))
	if err != nil {
		return err
	}
	if maj != cbg.MajArray {
		return fmt.Errorf("expected array of cid for ChildCheck.Checks, got major type %d", maj)
	}
	c.Checks = make([]cid.Cid, extra)
	for i := range c.Checks {
		if c.Checks[i], err = readCid(br); err != nil {
			return err
		}
	}
	return nil
}

func writeChildCheckSlice(w io.Writer, children []ChildCheck) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, uint64(len(children))); err != nil {
		return err
	}
	for i := range children {
		if err := children[i].MarshalCBOR(w); err != nil {
			return err
		}
	}
	return nil
}

func readChildCheckSlice(br cbg.ByteReadReader) ([]ChildCheck, error) {
	maj, extra, err := cbg.CborReadHeaderBuf(br, make([]byte, 9))
	if err != nil {
		return nil, err
	}
	if maj != cbg.MajArray {
		return nil, fmt.Errorf("expected array of ChildCheck, got major type %d", maj)
	}
	out := make([]ChildCheck, extra)
	for i := range out {
		if err := out[i].UnmarshalCBOR(br); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// --- CheckData / Checkpoint ---

func (cd *CheckData) MarshalCBOR(w io.Writer) error {
	if cd == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 6); err != nil {
		return err
	}
	if err := writeSubnetID(w, cd.Source); err != nil {
		return err
	}
	if err := writeBytes(w, cd.TipSet); err != nil {
		return err
	}
	if err := writeInt64(w, int64(cd.Epoch)); err != nil {
		return err
	}
	if err := writeCid(w, cd.PrevCheck); err != nil {
		return err
	}
	if err := writeChildCheckSlice(w, cd.Children); err != nil {
		return err
	}
	return writeCrossMsgMetaSlice(w, cd.CrossMsgs)
}

func (cd *CheckData) UnmarshalCBOR(r io.Reader) error {
	br := byteReader(r)
	if err := readArrayHeader(br, "CheckData", 6); err != nil {
		return err
	}
	var err error
	if cd.Source, err = readSubnetID(br); err != nil {
		return err
	}
	if cd.TipSet, err = readBytes(br); err != nil {
		return err
	}
	epoch, err := readInt64(br)
	if err != nil {
		return err
	}
	cd.Epoch = abi.ChainEpoch(epoch)
	if cd.PrevCheck, err = readCid(br); err != nil {
		return err
	}
	if cd.Children, err = readChildCheckSlice(br); err != nil {
		return err
	}
	if cd.CrossMsgs, err = readCrossMsgMetaSlice(br); err != nil {
		return err
	}
	return nil
}

func (ch *Checkpoint) MarshalCBOR(w io.Writer) error {
	if ch == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 2); err != nil {
		return err
	}
	if err := ch.Data.MarshalCBOR(w); err != nil {
		return err
	}
	return writeBytes(w, ch.Sig)
}

func (ch *Checkpoint) UnmarshalCBOR(r io.Reader) error {
	br := byteReader(r)
	if err := readArrayHeader(br, "Checkpoint", 2); err != nil {
		return err
	}
	if err := ch.Data.UnmarshalCBOR(br); err != nil {
		return err
	}
	sig, err := readBytes(br)
	if err != nil {
		return err
	}
	ch.Sig = sig
	return nil
}

func writeCheckpointPtr(w io.Writer, ch *Checkpoint) error {
	if ch == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	return ch.MarshalCBOR(w)
}

func readCheckpointPtr(br cbg.ByteReadReader) (*Checkpoint, error) {
	b, err := br.ReadByte()
	if err != nil {
		return nil, err
	}
	if b == cbg.CborNull[0] {
		return nil, nil
	}
	if err := br.UnreadByte(); err != nil {
		return nil, err
	}
	ch := new(Checkpoint)
	if err := ch.UnmarshalCBOR(br); err != nil {
		return nil, err
	}
	return ch, nil
}

// --- CronCheckpoint ---

func (cc *CronCheckpoint) MarshalCBOR(w io.Writer) error {
	if cc == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 2); err != nil {
		return err
	}
	if err := writeInt64(w, int64(cc.Epoch)); err != nil {
		return err
	}
	return writeCrossMsgSlice(w, cc.TopDownMsgs)
}

func (cc *CronCheckpoint) UnmarshalCBOR(r io.Reader) error {
	br := byteReader(r)
	if err := readArrayHeader(br, "CronCheckpoint", 2); err != nil {
		return err
	}
	epoch, err := readInt64(br)
	if err != nil {
		return err
	}
	cc.Epoch = abi.ChainEpoch(epoch)
	if cc.TopDownMsgs, err = readCrossMsgSlice(br); err != nil {
		return err
	}
	return nil
}

// --- CronVoteCount / CronSubmissionEntry / CronSubmission ---

func (c *CronVoteCount) MarshalCBOR(w io.Writer) error {
	if c == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 2); err != nil {
		return err
	}
	if err := writeCid(w, c.Hash); err != nil {
		return err
	}
	return c.Weight.MarshalCBOR(w)
}

func (c *CronVoteCount) UnmarshalCBOR(r io.Reader) error {
	br := byteReader(r)
	if err := readArrayHeader(br, "CronVoteCount", 2); err != nil {
		return err
	}
	var err error
	if c.Hash, err = readCid(br); err != nil {
		return err
	}
	c.Weight = big.Zero()
	return c.Weight.UnmarshalCBOR(br)
}

func (e *CronSubmissionEntry) MarshalCBOR(w io.Writer) error {
	if e == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 2); err != nil {
		return err
	}
	if err := writeCid(w, e.Hash); err != nil {
		return err
	}
	return e.Checkpoint.MarshalCBOR(w)
}

func (e *CronSubmissionEntry) UnmarshalCBOR(r io.Reader) error {
	br := byteReader(r)
	if err := readArrayHeader(br, "CronSubmissionEntry", 2); err != nil {
		return err
	}
	var err error
	if e.Hash, err = readCid(br); err != nil {
		return err
	}
	return e.Checkpoint.UnmarshalCBOR(br)
}

func (cs *CronSubmission) MarshalCBOR(w io.Writer) error {
	if cs == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 5); err != nil {
		return err
	}
	if err := cs.TotalSubmittedWeight.MarshalCBOR(w); err != nil {
		return err
	}
	if err := writeCid(w, cs.MostVotedHash); err != nil {
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, uint64(len(cs.Submitters))); err != nil {
		return err
	}
	for _, s := range cs.Submitters {
		if err := writeAddress(w, s); err != nil {
			return err
		}
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, uint64(len(cs.Counts))); err != nil {
		return err
	}
	for i := range cs.Counts {
		if err := cs.Counts[i].MarshalCBOR(w); err != nil {
			return err
		}
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, uint64(len(cs.Submissions))); err != nil {
		return err
	}
	for i := range cs.Submissions {
		if err := cs.Submissions[i].MarshalCBOR(w); err != nil {
			return err
		}
	}
	return nil
}

func (cs *CronSubmission) UnmarshalCBOR(r io.Reader) error {
	br := byteReader(r)
	if err := readArrayHeader(br, "CronSubmission", 5); err != nil {
		return err
	}
	cs.TotalSubmittedWeight = big.Zero()
	if err := cs.TotalSubmittedWeight.UnmarshalCBOR(br); err != nil {
		return err
	}
	var err error
	if cs.MostVotedHash, err = readCid(br); err != nil {
		return err
	}

	maj, extra, err := cbg.CborReadHeaderBuf(br, make([]byte, 9))
	if err != nil {
		return err
	}
	if maj != cbg.MajArray {
		return fmt.Errorf("expected array of address for CronSubmission.Submitters, got major type %d", maj)
	}
	cs.Submitters = make([]address.Address, extra)
	for i := range cs.Submitters {
		if cs.Submitters[i], err = readAddress(br); err != nil {
			return err
		}
	}

	maj, extra, err = cbg.CborReadHeaderBuf(br, make([]byte, 9))
	if err != nil {
		return err
	}
	if maj != cbg.MajArray {
		return fmt.Errorf("expected array of CronVoteCount, got major type %d", maj)
	}
	cs.Counts = make([]CronVoteCount, extra)
	for i := range cs.Counts {
		if err := cs.Counts[i].UnmarshalCBOR(br); err != nil {
			return err
		}
	}

	maj, extra, err = cbg.CborReadHeaderBuf(br, make([]byte, 9))
	if err != nil {
		return err
	}
	if maj != cbg.MajArray {
		return fmt.Errorf("expected array of CronSubmissionEntry, got major type %d", maj)
	}
	cs.Submissions = make([]CronSubmissionEntry, extra)
	for i := range cs.Submissions {
		if err := cs.Submissions[i].UnmarshalCBOR(br); err != nil {
			return err
		}
	}
	return nil
}

// --- Subnet ---

func (s *Subnet) MarshalCBOR(w io.Writer) error {
	if s == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 6); err != nil {
		return err
	}
	if err := s.Stake.MarshalCBOR(w); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(s.Status)); err != nil {
		return err
	}
	if err := writeCrossMsgSlice(w, s.TopDownQueue); err != nil {
		return err
	}
	if err := writeUint64(w, s.NextTopDownNonce); err != nil {
		return err
	}
	if err := s.CircSupply.MarshalCBOR(w); err != nil {
		return err
	}
	return writeCheckpointPtr(w, s.PrevCheckpoint)
}

func (s *Subnet) UnmarshalCBOR(r io.Reader) error {
	br := byteReader(r)
	if err := readArrayHeader(br, "Subnet", 6); err != nil {
		return err
	}
	s.Stake = big.Zero()
	if err := s.Stake.UnmarshalCBOR(br); err != nil {
		return err
	}
	status, err := readUint64(br)
	if err != nil {
		return err
	}
	s.Status = Status(status)
	if s.TopDownQueue, err = readCrossMsgSlice(br); err != nil {
		return err
	}
	if s.NextTopDownNonce, err = readUint64(br); err != nil {
		return err
	}
	s.CircSupply = big.Zero()
	if err := s.CircSupply.UnmarshalCBOR(br); err != nil {
		return err
	}
	if s.PrevCheckpoint, err = readCheckpointPtr(br); err != nil {
		return err
	}
	return nil
}

// --- State ---

func writeChainEpochSlice(w io.Writer, epochs []abi.ChainEpoch) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, uint64(len(epochs))); err != nil {
		return err
	}
	for _, e := range epochs {
		if err := writeInt64(w, int64(e)); err != nil {
			return err
		}
	}
	return nil
}

func readChainEpochSlice(br cbg.ByteReadReader) ([]abi.ChainEpoch, error) {
	maj, extra, err := cbg.CborReadHeaderBuf(br, make([]byte, 9))
	if err != nil {
		return nil, err
	}
	if maj != cbg.MajArray {
		return nil, fmt.Errorf("expected array of ChainEpoch, got major type %d", maj)
	}
	out := make([]abi.ChainEpoch, extra)
	for i := range out {
		e, err := readInt64(br)
		if err != nil {
			return nil, err
		}
		out[i] = abi.ChainEpoch(e)
	}
	return out, nil
}

func (st *State) MarshalCBOR(w io.Writer) error {
	if st == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 18); err != nil {
		return err
	}
	if err := writeString(w, st.NetworkName); err != nil {
		return err
	}
	if err := st.MinStake.MarshalCBOR(w); err != nil {
		return err
	}
	if err := writeCid(w, st.Subnets); err != nil {
		return err
	}
	if err := writeUint64(w, st.TotalSubnets); err != nil {
		return err
	}
	if err := writeInt64(w, int64(st.CheckPeriod)); err != nil {
		return err
	}
	if err := writeCid(w, st.Checkpoints); err != nil {
		return err
	}
	if err := writeCid(w, st.Postbox); err != nil {
		return err
	}
	if err := writeUint64(w, st.BottomUpNonce); err != nil {
		return err
	}
	if err := writeCid(w, st.BottomUpMsgMetas); err != nil {
		return err
	}
	if err := writeUint64(w, st.AppliedBottomUpNonce); err != nil {
		return err
	}
	if err := writeUint64(w, st.AppliedTopDownNonce); err != nil {
		return err
	}
	if err := writeInt64(w, int64(st.GenesisEpoch)); err != nil {
		return err
	}
	if err := writeInt64(w, int64(st.CronPeriod)); err != nil {
		return err
	}
	if err := writeInt64(w, int64(st.LastCronExecutedEpoch)); err != nil {
		return err
	}
	if err := writeChainEpochSlice(w, st.ExecutableEpochQueue); err != nil {
		return err
	}
	if err := writeCid(w, st.CronSubmissions); err != nil {
		return err
	}
	if err := writeCid(w, st.ValidatorsRoot); err != nil {
		return err
	}
	return st.TotalWeight.MarshalCBOR(w)
}

func (st *State) UnmarshalCBOR(r io.Reader) error {
	br := byteReader(r)
	if err := readArrayHeader(br, "State", 18); err != nil {
		return err
	}
	var err error
	if st.NetworkName, err = readString(br); err != nil {
		return err
	}
	st.MinStake = big.Zero()
	if err := st.MinStake.UnmarshalCBOR(br); err != nil {
		return err
	}
	if st.Subnets, err = readCid(br); err != nil {
		return err
	}
	if st.TotalSubnets, err = readUint64(br); err != nil {
		return err
	}
	checkPeriod, err := readInt64(br)
	if err != nil {
		return err
	}
	st.CheckPeriod = abi.ChainEpoch(checkPeriod)
	if st.Checkpoints, err = readCid(br); err != nil {
		return err
	}
	if st.Postbox, err = readCid(br); err != nil {
		return err
	}
	if st.BottomUpNonce, err = readUint64(br); err != nil {
		return err
	}
	if st.BottomUpMsgMetas, err = readCid(br); err != nil {
		return err
	}
	if st.AppliedBottomUpNonce, err = readUint64(br); err != nil {
		return err
	}
	if st.AppliedTopDownNonce, err = readUint64(br); err != nil {
		return err
	}
	genesisEpoch, err := readInt64(br)
	if err != nil {
		return err
	}
	st.GenesisEpoch = abi.ChainEpoch(genesisEpoch)
	cronPeriod, err := readInt64(br)
	if err != nil {
		return err
	}
	st.CronPeriod = abi.ChainEpoch(cronPeriod)
	lastCronExecuted, err := readInt64(br)
	if err != nil {
		return err
	}
	st.LastCronExecutedEpoch = abi.ChainEpoch(lastCronExecuted)
	if st.ExecutableEpochQueue, err = readChainEpochSlice(br); err != nil {
		return err
	}
	if st.CronSubmissions, err = readCid(br); err != nil {
		return err
	}
	if st.ValidatorsRoot, err = readCid(br); err != nil {
		return err
	}
	st.TotalWeight = big.Zero()
	return st.TotalWeight.UnmarshalCBOR(br)
}

// --- PostBoxItem ---

func (p *PostBoxItem) MarshalCBOR(w io.Writer) error {
	if p == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 2); err != nil {
		return err
	}
	if err := p.CrossMsg.MarshalCBOR(w); err != nil {
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, uint64(len(p.Owners))); err != nil {
		return err
	}
	for _, o := range p.Owners {
		if err := writeIPCAddress(w, o); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostBoxItem) UnmarshalCBOR(r io.Reader) error {
	br := byteReader(r)
	if err := readArrayHeader(br, "PostBoxItem", 2); err != nil {
		return err
	}
	if err := p.CrossMsg.UnmarshalCBOR(br); err != nil {
		return err
	}
	maj, extra, err := cbg.CborReadHeaderBuf(br, make([]byte, 9))
	if err != nil {
		return err
	}
	if maj != cbg.MajArray {
		return fmt.Errorf("expected array of IPCAddress for PostBoxItem.Owners, got major type %d", maj)
	}
	p.Owners = make([]ipcaddr.IPCAddress, extra)
	for i := range p.Owners {
		if p.Owners[i], err = readIPCAddress(br); err != nil {
			return err
		}
	}
	return nil
}
