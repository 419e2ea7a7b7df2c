package types

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/orderedcode"

	"github.com/ledgersync/ledgersync/crypto/tmhash"
	lsproto "github.com/ledgersync/ledgersync/proto/ledgersync/types"
)

// MaxTotalVotingPower - the maximum allowed total voting power.
// It needs to be sufficiently small to, in all cases, avoid overflow of the
// quorum arithmetic.
const MaxTotalVotingPower = int64(math.MaxInt64) / 8

// ValidatorSet represent a set of *Validator of one epoch. Validators are
// kept sorted by NodeID. A ValidatorSet is immutable once built.
type ValidatorSet struct {
	Validators []*Validator

	totalVotingPower int64
}

// NewValidatorSet initializes a ValidatorSet by copying over the values from
// `valz`, a list of Validators. Every validator must have positive voting
// power and a distinct key.
func NewValidatorSet(valz []*Validator) (*ValidatorSet, error) {
	if len(valz) == 0 {
		return nil, errors.New("validator set is empty")
	}

	vals := &ValidatorSet{Validators: make([]*Validator, 0, len(valz))}
	for _, val := range valz {
		if err := val.ValidateBasic(); err != nil {
			return nil, fmt.Errorf("invalid validator %v: %w", val, err)
		}
		vals.Validators = append(vals.Validators, val.Copy())
	}

	sort.Sort(ValidatorsByNodeID(vals.Validators))

	for i := 1; i < len(vals.Validators); i++ {
		if vals.Validators[i-1].NodeID() == vals.Validators[i].NodeID() {
			return nil, fmt.Errorf("duplicate validator %v", vals.Validators[i].NodeID())
		}
	}

	for _, val := range vals.Validators {
		vals.totalVotingPower += val.VotingPower
		if vals.totalVotingPower > MaxTotalVotingPower {
			return nil, fmt.Errorf("total voting power exceeds the maximum allowed %d", MaxTotalVotingPower)
		}
	}

	return vals, nil
}

// MustNewValidatorSet is NewValidatorSet that panics on error.
func MustNewValidatorSet(valz []*Validator) *ValidatorSet {
	vals, err := NewValidatorSet(valz)
	if err != nil {
		panic(err)
	}
	return vals
}

// Size returns the length of the validator set.
func (vals *ValidatorSet) Size() int {
	return len(vals.Validators)
}

// TotalVotingPower returns the sum of the voting powers of all validators.
func (vals *ValidatorSet) TotalVotingPower() int64 {
	return vals.totalVotingPower
}

// VotingPowerNeeded is the power a quorum must strictly exceed.
func (vals *ValidatorSet) VotingPowerNeeded() int64 {
	return vals.TotalVotingPower() * 2 / 3
}

// GetByNodeID returns an index of the validator with the given NodeID and
// the validator itself (copy) if found. Otherwise, -1 and nil are returned.
func (vals *ValidatorSet) GetByNodeID(id NodeID) (index int, val *Validator) {
	i := sort.Search(len(vals.Validators), func(i int) bool {
		return vals.Validators[i].NodeID() >= id
	})
	if i < len(vals.Validators) && vals.Validators[i].NodeID() == id {
		return i, vals.Validators[i].Copy()
	}
	return -1, nil
}

// HasNodeID returns true if the NodeID given is in the validator set, false -
// otherwise.
func (vals *ValidatorSet) HasNodeID(id NodeID) bool {
	idx, _ := vals.GetByNodeID(id)
	return idx != -1
}

// NodeIDs lists the validators' node identities in set order.
func (vals *ValidatorSet) NodeIDs() []NodeID {
	ids := make([]NodeID, len(vals.Validators))
	for i, val := range vals.Validators {
		ids[i] = val.NodeID()
	}
	return ids
}

// VerifyQuorum checks that the distinct validators among sigs hold more than
// two thirds of the total voting power. Signatures by keys outside the set
// contribute nothing; signature bytes are not checked here.
func (vals *ValidatorSet) VerifyQuorum(sigs []TimestampedSignature) error {
	var (
		talliedVotingPower int64
		votingPowerNeeded  = vals.VotingPowerNeeded()
		seen               = make(map[NodeID]struct{}, len(sigs))
	)

	for _, sig := range sigs {
		if sig.PubKey == nil {
			continue
		}

		id := sig.NodeID()
		if _, ok := seen[id]; ok {
			continue
		}

		_, val := vals.GetByNodeID(id)
		if val == nil || !val.PubKey.Equals(sig.PubKey) {
			continue
		}

		seen[id] = struct{}{}
		talliedVotingPower += val.VotingPower
	}

	if talliedVotingPower > votingPowerNeeded {
		return nil
	}

	return ErrNotEnoughVotingPowerSigned{Got: talliedVotingPower, Needed: votingPowerNeeded}
}

// Hash commits to the validators and their voting power.
func (vals *ValidatorSet) Hash() []byte {
	if vals == nil {
		return nil
	}

	var (
		bz  []byte
		err error
	)
	for _, val := range vals.Validators {
		bz, err = orderedcode.Append(bz, val.PubKey.Type(), string(val.PubKey.Bytes()), val.VotingPower)
		if err != nil {
			panic(err)
		}
	}

	return tmhash.Sum(bz)
}

// Equal compares membership and voting power.
func (vals *ValidatorSet) Equal(other *ValidatorSet) bool {
	if vals == nil || other == nil {
		return vals == other
	}
	return bytes.Equal(vals.Hash(), other.Hash())
}

// String returns a string representation of ValidatorSet.
//
// See StringIndented.
func (vals *ValidatorSet) String() string {
	return vals.StringIndented("")
}

// StringIndented returns an intended String.
//
// See Validator#String.
func (vals *ValidatorSet) StringIndented(indent string) string {
	if vals == nil {
		return "nil-ValidatorSet"
	}
	var valStrings []string
	for _, val := range vals.Validators {
		valStrings = append(valStrings, val.String())
	}
	return fmt.Sprintf(`ValidatorSet{
%s  TotalVotingPower: %v
%s  Validators:
%s    %v
%s}`,
		indent, vals.totalVotingPower,
		indent,
		indent, strings.Join(valStrings, "\n"+indent+"    "),
		indent)
}

// ToProto converts ValidatorSet to protobuf
func (vals *ValidatorSet) ToProto() (*lsproto.ValidatorSet, error) {
	if vals == nil {
		return nil, errors.New("nil validator set") // validator set should never be nil
	}

	vp := new(lsproto.ValidatorSet)
	valsProto := make([]*lsproto.Validator, len(vals.Validators))
	for i := 0; i < len(vals.Validators); i++ {
		valp, err := vals.Validators[i].ToProto()
		if err != nil {
			return nil, err
		}
		valsProto[i] = valp
	}
	vp.Validators = valsProto

	return vp, nil
}

// ValidatorSetFromProto sets a protobuf ValidatorSet to the given pointer.
// It returns an error if any of the validators from the set or the proposer
// is invalid
func ValidatorSetFromProto(vp *lsproto.ValidatorSet) (*ValidatorSet, error) {
	if vp == nil {
		return nil, errors.New("nil validator set") // validator set should never be nil, bigger issues are at play if empty
	}

	valsProto := make([]*Validator, len(vp.Validators))
	for i := 0; i < len(vp.Validators); i++ {
		v, err := ValidatorFromProto(vp.Validators[i])
		if err != nil {
			return nil, err
		}
		valsProto[i] = v
	}

	return NewValidatorSet(valsProto)
}

//----------------------------------------

// ValidatorsByNodeID implements sort.Interface for []*Validator based on
// the NodeIDs.
type ValidatorsByNodeID []*Validator

func (valz ValidatorsByNodeID) Len() int { return len(valz) }

func (valz ValidatorsByNodeID) Less(i, j int) bool {
	return valz[i].NodeID() < valz[j].NodeID()
}

func (valz ValidatorsByNodeID) Swap(i, j int) {
	valz[i], valz[j] = valz[j], valz[i]
}
