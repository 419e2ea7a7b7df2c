package types

import (
	"fmt"

	"github.com/google/orderedcode"

	"github.com/ledgersync/ledgersync/crypto"
	"github.com/ledgersync/ledgersync/crypto/tmhash"
)

const voteDomain = "ledgersync/vote"

// VoteData is the part of a committed header that validators vote on.
type VoteData struct {
	Epoch            uint64
	Accumulator      AccumulatorState
	Timestamp        int64
	NextValidatorSet []byte
}

// NewVoteData derives the vote data implied by a header.
func NewVoteData(h LedgerHeader) VoteData {
	return VoteData{
		Epoch:            h.Epoch,
		Accumulator:      h.Accumulator,
		Timestamp:        h.Timestamp,
		NextValidatorSet: h.NextValidatorSet.Hash(),
	}
}

// SignBytes returns the hash a validator signs when voting for vd at the
// given time (unix milliseconds).
func (vd VoteData) SignBytes(timestamp int64) []byte {
	bz, err := orderedcode.Append(nil,
		voteDomain,
		vd.Epoch,
		vd.Accumulator.StateVersion,
		string(vd.Accumulator.Hash),
		vd.Timestamp,
		string(vd.NextValidatorSet),
		timestamp,
	)
	if err != nil {
		panic(fmt.Errorf("encoding vote sign bytes: %w", err))
	}

	return tmhash.Sum(bz)
}

// SignLedgerHeader has every key sign the header at timestamp and returns the
// resulting proof.
func SignLedgerHeader(h LedgerHeader, privKeys []crypto.PrivKey, timestamp int64) (*LedgerProof, error) {
	vd := NewVoteData(h)
	signBytes := vd.SignBytes(timestamp)

	proof := &LedgerProof{
		Header:     h,
		Signatures: make([]TimestampedSignature, 0, len(privKeys)),
	}
	for _, pk := range privKeys {
		sig, err := pk.Sign(signBytes)
		if err != nil {
			return nil, err
		}
		proof.Signatures = append(proof.Signatures, TimestampedSignature{
			PubKey:    pk.PubKey(),
			Timestamp: timestamp,
			Signature: sig,
		})
	}

	return proof, nil
}

// VerifySignatures checks every signature of the proof against the key it
// names.
func (p *LedgerProof) VerifySignatures() error {
	vd := NewVoteData(p.Header)
	for i, sig := range p.Signatures {
		if sig.PubKey == nil || !sig.PubKey.VerifySignature(vd.SignBytes(sig.Timestamp), sig.Signature) {
			var id NodeID
			if sig.PubKey != nil {
				id = sig.NodeID()
			}
			return ErrInvalidSignature{Index: i, NodeID: id}
		}
	}
	return nil
}
