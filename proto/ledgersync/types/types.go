// Package types holds the wire representation of the ledger types. The layout
// follows types.proto; messages are encoded with gogo/protobuf.
package types

import (
	proto "github.com/gogo/protobuf/proto"

	crypto "github.com/ledgersync/ledgersync/proto/ledgersync/crypto"
)

type AccumulatorState struct {
	StateVersion uint64 `protobuf:"varint,1,opt,name=state_version,json=stateVersion,proto3" json:"state_version,omitempty"`
	Hash         []byte `protobuf:"bytes,2,opt,name=hash,proto3" json:"hash,omitempty"`
}

func (m *AccumulatorState) Reset()         { *m = AccumulatorState{} }
func (m *AccumulatorState) String() string { return proto.CompactTextString(m) }
func (*AccumulatorState) ProtoMessage()    {}

func (m *AccumulatorState) GetStateVersion() uint64 {
	if m != nil {
		return m.StateVersion
	}
	return 0
}

func (m *AccumulatorState) GetHash() []byte {
	if m != nil {
		return m.Hash
	}
	return nil
}

type Validator struct {
	PubKey      *crypto.PublicKey `protobuf:"bytes,1,opt,name=pub_key,json=pubKey,proto3" json:"pub_key,omitempty"`
	VotingPower int64             `protobuf:"varint,2,opt,name=voting_power,json=votingPower,proto3" json:"voting_power,omitempty"`
}

func (m *Validator) Reset()         { *m = Validator{} }
func (m *Validator) String() string { return proto.CompactTextString(m) }
func (*Validator) ProtoMessage()    {}

func (m *Validator) GetPubKey() *crypto.PublicKey {
	if m != nil {
		return m.PubKey
	}
	return nil
}

type ValidatorSet struct {
	Validators []*Validator `protobuf:"bytes,1,rep,name=validators,proto3" json:"validators,omitempty"`
}

func (m *ValidatorSet) Reset()         { *m = ValidatorSet{} }
func (m *ValidatorSet) String() string { return proto.CompactTextString(m) }
func (*ValidatorSet) ProtoMessage()    {}

func (m *ValidatorSet) GetValidators() []*Validator {
	if m != nil {
		return m.Validators
	}
	return nil
}

// LedgerHeader carries NextValidatorSet only when it closes an epoch.
type LedgerHeader struct {
	Epoch            uint64            `protobuf:"varint,1,opt,name=epoch,proto3" json:"epoch,omitempty"`
	Accumulator      *AccumulatorState `protobuf:"bytes,2,opt,name=accumulator,proto3" json:"accumulator,omitempty"`
	Timestamp        int64             `protobuf:"varint,3,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
	NextValidatorSet *ValidatorSet     `protobuf:"bytes,4,opt,name=next_validator_set,json=nextValidatorSet,proto3" json:"next_validator_set,omitempty"`
}

func (m *LedgerHeader) Reset()         { *m = LedgerHeader{} }
func (m *LedgerHeader) String() string { return proto.CompactTextString(m) }
func (*LedgerHeader) ProtoMessage()    {}

func (m *LedgerHeader) GetAccumulator() *AccumulatorState {
	if m != nil {
		return m.Accumulator
	}
	return nil
}

func (m *LedgerHeader) GetNextValidatorSet() *ValidatorSet {
	if m != nil {
		return m.NextValidatorSet
	}
	return nil
}

type TimestampedSignature struct {
	PubKey    *crypto.PublicKey `protobuf:"bytes,1,opt,name=pub_key,json=pubKey,proto3" json:"pub_key,omitempty"`
	Timestamp int64             `protobuf:"varint,2,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
	Signature []byte            `protobuf:"bytes,3,opt,name=signature,proto3" json:"signature,omitempty"`
}

func (m *TimestampedSignature) Reset()         { *m = TimestampedSignature{} }
func (m *TimestampedSignature) String() string { return proto.CompactTextString(m) }
func (*TimestampedSignature) ProtoMessage()    {}

func (m *TimestampedSignature) GetPubKey() *crypto.PublicKey {
	if m != nil {
		return m.PubKey
	}
	return nil
}

type LedgerProof struct {
	Header     *LedgerHeader           `protobuf:"bytes,1,opt,name=header,proto3" json:"header,omitempty"`
	Signatures []*TimestampedSignature `protobuf:"bytes,2,rep,name=signatures,proto3" json:"signatures,omitempty"`
}

func (m *LedgerProof) Reset()         { *m = LedgerProof{} }
func (m *LedgerProof) String() string { return proto.CompactTextString(m) }
func (*LedgerProof) ProtoMessage()    {}

func (m *LedgerProof) GetHeader() *LedgerHeader {
	if m != nil {
		return m.Header
	}
	return nil
}

func (m *LedgerProof) GetSignatures() []*TimestampedSignature {
	if m != nil {
		return m.Signatures
	}
	return nil
}

type TxnsAndProof struct {
	Txns [][]byte     `protobuf:"bytes,1,rep,name=txns,proto3" json:"txns,omitempty"`
	Head *LedgerProof `protobuf:"bytes,2,opt,name=head,proto3" json:"head,omitempty"`
	Tail *LedgerProof `protobuf:"bytes,3,opt,name=tail,proto3" json:"tail,omitempty"`
}

func (m *TxnsAndProof) Reset()         { *m = TxnsAndProof{} }
func (m *TxnsAndProof) String() string { return proto.CompactTextString(m) }
func (*TxnsAndProof) ProtoMessage()    {}

func (m *TxnsAndProof) GetHead() *LedgerProof {
	if m != nil {
		return m.Head
	}
	return nil
}

func (m *TxnsAndProof) GetTail() *LedgerProof {
	if m != nil {
		return m.Tail
	}
	return nil
}

// CommittedTxn is the stored form of a committed transaction.
type CommittedTxn struct {
	Txn         []byte            `protobuf:"bytes,1,opt,name=txn,proto3" json:"txn,omitempty"`
	Accumulator *AccumulatorState `protobuf:"bytes,2,opt,name=accumulator,proto3" json:"accumulator,omitempty"`
}

func (m *CommittedTxn) Reset()         { *m = CommittedTxn{} }
func (m *CommittedTxn) String() string { return proto.CompactTextString(m) }
func (*CommittedTxn) ProtoMessage()    {}

func (m *CommittedTxn) GetAccumulator() *AccumulatorState {
	if m != nil {
		return m.Accumulator
	}
	return nil
}
