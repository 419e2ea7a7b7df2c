package types

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ledgersync/ledgersync/crypto"
	"github.com/ledgersync/ledgersync/crypto/encoding"
	lsproto "github.com/ledgersync/ledgersync/proto/ledgersync/types"
)

// LedgerHeader describes a committed point of the ledger.
type LedgerHeader struct {
	Epoch       uint64
	Accumulator AccumulatorState
	// Timestamp is the commit time in unix milliseconds.
	Timestamp int64
	// NextValidatorSet is set only on the header that closes Epoch.
	NextValidatorSet *ValidatorSet
}

// StateVersion is the number of transactions committed up to this header.
func (h LedgerHeader) StateVersion() uint64 {
	return h.Accumulator.StateVersion
}

// IsEndOfEpoch reports whether the header closes its epoch.
func (h LedgerHeader) IsEndOfEpoch() bool {
	return h.NextValidatorSet != nil
}

func (h LedgerHeader) ValidateBasic() error {
	if err := h.Accumulator.ValidateBasic(); err != nil {
		return fmt.Errorf("wrong Accumulator: %w", err)
	}
	if h.Timestamp < 0 {
		return fmt.Errorf("negative Timestamp %d", h.Timestamp)
	}
	return nil
}

func (h LedgerHeader) String() string {
	return fmt.Sprintf("LedgerHeader{epoch:%d %v eoe:%t}", h.Epoch, h.Accumulator, h.IsEndOfEpoch())
}

func (h LedgerHeader) ToProto() (*lsproto.LedgerHeader, error) {
	pb := &lsproto.LedgerHeader{
		Epoch:       h.Epoch,
		Accumulator: h.Accumulator.ToProto(),
		Timestamp:   h.Timestamp,
	}

	if h.NextValidatorSet != nil {
		vals, err := h.NextValidatorSet.ToProto()
		if err != nil {
			return nil, err
		}
		pb.NextValidatorSet = vals
	}

	return pb, nil
}

func LedgerHeaderFromProto(pb *lsproto.LedgerHeader) (LedgerHeader, error) {
	if pb == nil {
		return LedgerHeader{}, errors.New("nil ledger header")
	}

	acc, err := AccumulatorStateFromProto(pb.Accumulator)
	if err != nil {
		return LedgerHeader{}, err
	}

	h := LedgerHeader{
		Epoch:       pb.Epoch,
		Accumulator: acc,
		Timestamp:   pb.Timestamp,
	}

	if pb.NextValidatorSet != nil {
		vals, err := ValidatorSetFromProto(pb.NextValidatorSet)
		if err != nil {
			return LedgerHeader{}, fmt.Errorf("next validator set: %w", err)
		}
		h.NextValidatorSet = vals
	}

	return h, h.ValidateBasic()
}

//-----------------------------------------------------------------------------

// TimestampedSignature is a validator's signature over the vote data of a
// header, made at Timestamp (unix milliseconds).
type TimestampedSignature struct {
	PubKey    crypto.PubKey
	Timestamp int64
	Signature []byte
}

// NodeID is the identity of the signer.
func (s TimestampedSignature) NodeID() NodeID {
	return NodeIDFromPubKey(s.PubKey)
}

func (s TimestampedSignature) ToProto() (*lsproto.TimestampedSignature, error) {
	pk, err := encoding.PubKeyToProto(s.PubKey)
	if err != nil {
		return nil, err
	}

	return &lsproto.TimestampedSignature{
		PubKey:    pk,
		Timestamp: s.Timestamp,
		Signature: s.Signature,
	}, nil
}

func TimestampedSignatureFromProto(pb *lsproto.TimestampedSignature) (TimestampedSignature, error) {
	if pb == nil {
		return TimestampedSignature{}, errors.New("nil signature")
	}

	pk, err := encoding.PubKeyFromProto(pb.PubKey)
	if err != nil {
		return TimestampedSignature{}, err
	}

	return TimestampedSignature{
		PubKey:    pk,
		Timestamp: pb.Timestamp,
		Signature: pb.Signature,
	}, nil
}

//-----------------------------------------------------------------------------

// LedgerProof is a header together with the validator signatures over it.
// Proofs are immutable once built.
type LedgerProof struct {
	Header     LedgerHeader
	Signatures []TimestampedSignature
}

// StateVersion is the version of the proven accumulator.
func (p *LedgerProof) StateVersion() uint64 {
	return p.Header.StateVersion()
}

func (p *LedgerProof) Epoch() uint64 {
	return p.Header.Epoch
}

func (p *LedgerProof) Accumulator() AccumulatorState {
	return p.Header.Accumulator
}

// IsEndOfEpoch reports whether the proven header closes its epoch.
func (p *LedgerProof) IsEndOfEpoch() bool {
	return p.Header.IsEndOfEpoch()
}

// Compare orders proofs by epoch and then by state version.
func (p *LedgerProof) Compare(other *LedgerProof) int {
	switch {
	case p.Header.Epoch < other.Header.Epoch:
		return -1
	case p.Header.Epoch > other.Header.Epoch:
		return 1
	default:
		return p.Header.Accumulator.Compare(other.Header.Accumulator)
	}
}

// IsNewerThan reports whether p is strictly ahead of other.
func (p *LedgerProof) IsNewerThan(other *LedgerProof) bool {
	return p.Compare(other) > 0
}

// SameHeader reports whether both proofs prove the same ledger point. The
// signature lists may differ.
func (p *LedgerProof) SameHeader(other *LedgerProof) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.Header.Epoch == other.Header.Epoch &&
		p.Header.Accumulator.Equal(other.Header.Accumulator) &&
		p.Header.Timestamp == other.Header.Timestamp &&
		p.Header.NextValidatorSet.Equal(other.Header.NextValidatorSet)
}

// ValidateBasic performs stateless validation.
func (p *LedgerProof) ValidateBasic() error {
	if p == nil {
		return errors.New("nil ledger proof")
	}
	return p.Header.ValidateBasic()
}

func (p *LedgerProof) String() string {
	if p == nil {
		return "nil-LedgerProof"
	}
	return fmt.Sprintf("LedgerProof{%v sigs:%d}", p.Header, len(p.Signatures))
}

// MarshalZerologObject formats this proof for logging purposes
func (p *LedgerProof) MarshalZerologObject(e *zerolog.Event) {
	if p != nil {
		e.Uint64("epoch", p.Header.Epoch)
		e.Uint64("version", p.StateVersion())
		e.Str("accumulator", fmt.Sprintf("%X", p.Header.Accumulator.Hash))
		e.Int64("timestamp", p.Header.Timestamp)
		e.Bool("end_of_epoch", p.IsEndOfEpoch())
		e.Int("sigs", len(p.Signatures))
	}
}

func (p *LedgerProof) ToProto() (*lsproto.LedgerProof, error) {
	if p == nil {
		return nil, errors.New("nil ledger proof")
	}

	header, err := p.Header.ToProto()
	if err != nil {
		return nil, err
	}

	pb := &lsproto.LedgerProof{
		Header:     header,
		Signatures: make([]*lsproto.TimestampedSignature, len(p.Signatures)),
	}
	for i, sig := range p.Signatures {
		sp, err := sig.ToProto()
		if err != nil {
			return nil, err
		}
		pb.Signatures[i] = sp
	}

	return pb, nil
}

func LedgerProofFromProto(pb *lsproto.LedgerProof) (*LedgerProof, error) {
	if pb == nil {
		return nil, errors.New("nil ledger proof")
	}

	header, err := LedgerHeaderFromProto(pb.Header)
	if err != nil {
		return nil, err
	}

	p := &LedgerProof{
		Header:     header,
		Signatures: make([]TimestampedSignature, len(pb.Signatures)),
	}
	for i, sp := range pb.Signatures {
		sig, err := TimestampedSignatureFromProto(sp)
		if err != nil {
			return nil, fmt.Errorf("signature #%d: %w", i, err)
		}
		p.Signatures[i] = sig
	}

	return p, nil
}

//-----------------------------------------------------------------------------

// TxnsAndProof is a contiguous run of committed transactions starting right
// after Head and ending at Tail.
type TxnsAndProof struct {
	Txns Txns
	Head *LedgerProof
	Tail *LedgerProof
}

// ValidateBasic checks the shape of the batch: both ends present, the
// transaction count matches the version gap, and the batch stays within one
// epoch (Head may close the previous one).
func (t *TxnsAndProof) ValidateBasic() error {
	if t == nil {
		return errors.New("nil txns and proof")
	}
	if err := t.Head.ValidateBasic(); err != nil {
		return fmt.Errorf("head: %w", err)
	}
	if err := t.Tail.ValidateBasic(); err != nil {
		return fmt.Errorf("tail: %w", err)
	}

	headVersion, tailVersion := t.Head.StateVersion(), t.Tail.StateVersion()
	if tailVersion < headVersion || tailVersion-headVersion != uint64(len(t.Txns)) {
		return fmt.Errorf("%d txns do not span versions %d..%d", len(t.Txns), headVersion, tailVersion)
	}

	switch {
	case t.Head.Epoch() == t.Tail.Epoch():
	case t.Head.IsEndOfEpoch() && t.Head.Epoch()+1 == t.Tail.Epoch():
	default:
		return fmt.Errorf("batch spans epochs %d..%d", t.Head.Epoch(), t.Tail.Epoch())
	}

	return nil
}

func (t *TxnsAndProof) String() string {
	return fmt.Sprintf("TxnsAndProof{%d txns %v..%v}", len(t.Txns), t.Head.Accumulator(), t.Tail.Accumulator())
}

func (t *TxnsAndProof) ToProto() (*lsproto.TxnsAndProof, error) {
	if t == nil {
		return nil, errors.New("nil txns and proof")
	}

	head, err := t.Head.ToProto()
	if err != nil {
		return nil, err
	}
	tail, err := t.Tail.ToProto()
	if err != nil {
		return nil, err
	}

	return &lsproto.TxnsAndProof{
		Txns: t.Txns.ToSliceOfBytes(),
		Head: head,
		Tail: tail,
	}, nil
}

func TxnsAndProofFromProto(pb *lsproto.TxnsAndProof) (*TxnsAndProof, error) {
	if pb == nil {
		return nil, errors.New("nil txns and proof")
	}

	head, err := LedgerProofFromProto(pb.Head)
	if err != nil {
		return nil, fmt.Errorf("head: %w", err)
	}
	tail, err := LedgerProofFromProto(pb.Tail)
	if err != nil {
		return nil, fmt.Errorf("tail: %w", err)
	}

	t := &TxnsAndProof{
		Txns: ToTxns(pb.Txns),
		Head: head,
		Tail: tail,
	}

	return t, t.ValidateBasic()
}
