package ledger

import (
	"fmt"
	"time"

	"github.com/ledgersync/ledgersync/crypto"
	"github.com/ledgersync/ledgersync/types"
)

// Producer extends a ledger with batches signed by the full validator set. It
// stands in for the consensus layer when running simulations.
type Producer struct {
	committer *Committer
	privKeys  []crypto.PrivKey
	now       func() time.Time
}

// NewProducer returns a Producer signing with privKeys, which must belong to
// the validator set that signs the committer's next proof.
func NewProducer(committer *Committer, privKeys []crypto.PrivKey) *Producer {
	return &Producer{
		committer: committer,
		privKeys:  privKeys,
		now:       time.Now,
	}
}

// Produce commits txns in the current epoch.
func (p *Producer) Produce(txns types.Txns) (*types.TxnsAndProof, error) {
	return p.produce(txns, nil, nil)
}

// ProduceEpochEnd commits txns in a batch closing the current epoch and
// hands the signing role over to nextPrivKeys.
func (p *Producer) ProduceEpochEnd(txns types.Txns, nextPrivKeys []crypto.PrivKey, votingPower int64) (*types.TxnsAndProof, error) {
	nextVals, err := ValidatorSetFor(nextPrivKeys, votingPower)
	if err != nil {
		return nil, err
	}

	return p.produce(txns, nextVals, nextPrivKeys)
}

// ValidatorSetFor returns the set of validators signing with privKeys, each
// with the same voting power.
func ValidatorSetFor(privKeys []crypto.PrivKey, votingPower int64) (*types.ValidatorSet, error) {
	valz := make([]*types.Validator, len(privKeys))
	for i, pk := range privKeys {
		valz[i] = types.NewValidator(pk.PubKey(), votingPower)
	}
	return types.NewValidatorSet(valz)
}

// NewGenesis returns the proof of the empty ledger seeded with seed. It closes
// epoch zero and hands over to vals.
func NewGenesis(seed []byte, vals *types.ValidatorSet, privKeys []crypto.PrivKey) (*types.LedgerProof, error) {
	return types.SignLedgerHeader(types.LedgerHeader{
		Epoch:            0,
		Accumulator:      types.GenesisAccumulator(seed),
		NextValidatorSet: vals,
	}, privKeys, 0)
}

func (p *Producer) produce(txns types.Txns, nextVals *types.ValidatorSet, nextPrivKeys []crypto.PrivKey) (*types.TxnsAndProof, error) {
	head := p.committer.LastProof()

	epoch := head.Epoch()
	if head.IsEndOfEpoch() {
		epoch++
	}

	now := p.now().UnixMilli()
	if now < head.Header.Timestamp {
		now = head.Header.Timestamp
	}

	tail, err := types.SignLedgerHeader(types.LedgerHeader{
		Epoch:            epoch,
		Accumulator:      types.AccumulateAll(head.Accumulator(), txns.Hashes()),
		Timestamp:        now,
		NextValidatorSet: nextVals,
	}, p.privKeys, now)
	if err != nil {
		return nil, fmt.Errorf("signing header: %w", err)
	}

	batch := &types.TxnsAndProof{Txns: txns, Head: head, Tail: tail}
	if err := p.committer.Commit(batch); err != nil {
		return nil, err
	}

	if nextVals != nil {
		p.privKeys = nextPrivKeys
	}

	return batch, nil
}
