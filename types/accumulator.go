package types

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledgersync/ledgersync/crypto/tmhash"
	tmbytes "github.com/ledgersync/ledgersync/libs/bytes"
	lsproto "github.com/ledgersync/ledgersync/proto/ledgersync/types"
)

// AccumulatorState commits to the full ordered history of transactions up to
// StateVersion. Each transaction advances the version by one and folds its
// hash into Hash.
type AccumulatorState struct {
	StateVersion uint64
	Hash         tmbytes.HexBytes
}

// GenesisAccumulator returns the accumulator at version zero.
func GenesisAccumulator(seed []byte) AccumulatorState {
	return AccumulatorState{StateVersion: 0, Hash: tmhash.Sum(seed)}
}

// Accumulate extends parent by a single transaction hash.
func Accumulate(parent AccumulatorState, txnHash []byte) AccumulatorState {
	return AccumulatorState{
		StateVersion: parent.StateVersion + 1,
		Hash:         tmhash.SumMany(parent.Hash, txnHash),
	}
}

// AccumulateAll folds txnHashes into start in order.
func AccumulateAll(start AccumulatorState, txnHashes [][]byte) AccumulatorState {
	acc := start
	for _, h := range txnHashes {
		acc = Accumulate(acc, h)
	}
	return acc
}

// VerifyAccumulator reports whether folding txnHashes into start yields end.
func VerifyAccumulator(start AccumulatorState, txnHashes [][]byte, end AccumulatorState) bool {
	return AccumulateAll(start, txnHashes).Equal(end)
}

// Equal compares version and hash.
func (a AccumulatorState) Equal(b AccumulatorState) bool {
	return a.StateVersion == b.StateVersion && bytes.Equal(a.Hash, b.Hash)
}

// Compare orders accumulator states by version.
func (a AccumulatorState) Compare(b AccumulatorState) int {
	switch {
	case a.StateVersion < b.StateVersion:
		return -1
	case a.StateVersion > b.StateVersion:
		return 1
	default:
		return 0
	}
}

func (a AccumulatorState) ValidateBasic() error {
	if len(a.Hash) != tmhash.Size {
		return fmt.Errorf("wrong accumulator hash size: expected %d, got %d", tmhash.Size, len(a.Hash))
	}
	return nil
}

func (a AccumulatorState) String() string {
	return fmt.Sprintf("Accumulator{%d:%v}", a.StateVersion, a.Hash.ShortString())
}

func (a AccumulatorState) ToProto() *lsproto.AccumulatorState {
	return &lsproto.AccumulatorState{
		StateVersion: a.StateVersion,
		Hash:         a.Hash,
	}
}

func AccumulatorStateFromProto(pb *lsproto.AccumulatorState) (AccumulatorState, error) {
	if pb == nil {
		return AccumulatorState{}, errors.New("nil accumulator state")
	}

	acc := AccumulatorState{
		StateVersion: pb.StateVersion,
		Hash:         pb.Hash,
	}

	return acc, acc.ValidateBasic()
}
