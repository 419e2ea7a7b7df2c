package types

import (
	"errors"
	"fmt"

	"github.com/ledgersync/ledgersync/crypto"
	"github.com/ledgersync/ledgersync/crypto/encoding"
	lsproto "github.com/ledgersync/ledgersync/proto/ledgersync/types"
)

// Validator is a participant of an epoch's validator set.
type Validator struct {
	PubKey      crypto.PubKey
	VotingPower int64
}

// NewValidator returns a new validator with the given pubkey and voting power.
func NewValidator(pubKey crypto.PubKey, votingPower int64) *Validator {
	return &Validator{
		PubKey:      pubKey,
		VotingPower: votingPower,
	}
}

// NodeID is the identity of the node holding this validator key.
func (v *Validator) NodeID() NodeID {
	return NodeIDFromPubKey(v.PubKey)
}

// ValidateBasic performs basic validation.
func (v *Validator) ValidateBasic() error {
	if v == nil {
		return errors.New("nil validator")
	}
	if v.PubKey == nil {
		return errors.New("validator does not have a public key")
	}
	if v.VotingPower <= 0 {
		return fmt.Errorf("validator %v has non-positive voting power %d", v.NodeID(), v.VotingPower)
	}
	return nil
}

// Copy creates a new copy of the validator so we can mutate it.
func (v *Validator) Copy() *Validator {
	vCopy := *v
	return &vCopy
}

// String returns a string representation of String.
//
// 1. address
// 2. public key
// 3. voting power
func (v *Validator) String() string {
	if v == nil {
		return "nil-Validator"
	}
	return fmt.Sprintf("Validator{%v %v VP:%v}",
		v.NodeID().ShortString(),
		v.PubKey,
		v.VotingPower)
}

// ToProto converts Valiator to protobuf
func (v *Validator) ToProto() (*lsproto.Validator, error) {
	if v == nil {
		return nil, errors.New("nil validator")
	}

	pk, err := encoding.PubKeyToProto(v.PubKey)
	if err != nil {
		return nil, err
	}

	return &lsproto.Validator{
		PubKey:      pk,
		VotingPower: v.VotingPower,
	}, nil
}

// ValidatorFromProto sets a protobuf Validator to the given pointer.
// It returns an error if the public key is invalid.
func ValidatorFromProto(vp *lsproto.Validator) (*Validator, error) {
	if vp == nil {
		return nil, errors.New("nil validator")
	}

	pk, err := encoding.PubKeyFromProto(vp.PubKey)
	if err != nil {
		return nil, err
	}

	v := NewValidator(pk, vp.VotingPower)
	return v, v.ValidateBasic()
}
