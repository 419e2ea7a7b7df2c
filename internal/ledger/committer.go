package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ledgersync/ledgersync/internal/store"
	"github.com/ledgersync/ledgersync/libs/log"
	"github.com/ledgersync/ledgersync/types"
)

// ErrNotContiguous is returned when a batch neither extends nor overlaps the
// local ledger tip.
var ErrNotContiguous = errors.New("batch does not connect to the ledger tip")

// Committer appends batches to the ledger store and publishes a
// types.LedgerUpdate for each of them. Commits are serialized and updates are
// published in commit order.
type Committer struct {
	logger log.Logger
	store  *store.LedgerStore

	mtx         sync.Mutex
	tip         *types.LedgerProof
	validators  *types.ValidatorSet
	subscribers []func(types.LedgerUpdate)
}

// NewCommitter resumes from the last proof held by ledgerStore, which must
// have been initialized with a genesis.
func NewCommitter(logger log.Logger, ledgerStore *store.LedgerStore) (*Committer, error) {
	tip, err := ledgerStore.LastProof()
	if err != nil {
		return nil, err
	}
	if tip == nil {
		return nil, errors.New("ledger store has no genesis")
	}

	validators, err := validatorsAfter(ledgerStore, tip)
	if err != nil {
		return nil, err
	}

	return &Committer{
		logger:     logger,
		store:      ledgerStore,
		tip:        tip,
		validators: validators,
	}, nil
}

// validatorsAfter returns the validator set that signs the proofs following
// tip.
func validatorsAfter(ledgerStore *store.LedgerStore, tip *types.LedgerProof) (*types.ValidatorSet, error) {
	if tip.IsEndOfEpoch() {
		return tip.Header.NextValidatorSet, nil
	}

	epochProof, err := ledgerStore.GetEpochProof(tip.Epoch())
	if err != nil {
		return nil, err
	}
	if epochProof == nil {
		return nil, fmt.Errorf("missing epoch proof for epoch %d", tip.Epoch())
	}

	return epochProof.Header.NextValidatorSet, nil
}

// Subscribe registers fn to be called with every subsequent LedgerUpdate.
// fn runs while the commit lock is held, so it must not block or call back
// into the Committer.
func (c *Committer) Subscribe(fn func(types.LedgerUpdate)) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.subscribers = append(c.subscribers, fn)
}

// LastProof returns the current ledger tip.
func (c *Committer) LastProof() *types.LedgerProof {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.tip
}

// ValidatorSet returns the validator set that signs the next proof.
func (c *Committer) ValidatorSet() *types.ValidatorSet {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.validators
}

// Commit appends batch to the ledger. A batch whose tail is not ahead of the
// tip is ignored. A batch that starts before the tip but ends after it is
// trimmed to the part that extends the tip.
func (c *Committer) Commit(batch *types.TxnsAndProof) error {
	if err := batch.ValidateBasic(); err != nil {
		return err
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	if !batch.Tail.IsNewerThan(c.tip) {
		c.logger.Debug("ignoring stale batch", "tail", batch.Tail, "tip", c.tip)
		return nil
	}

	trimmed, err := c.trim(batch)
	if err != nil {
		return err
	}

	if err := c.store.SaveBatch(trimmed); err != nil {
		return fmt.Errorf("saving batch: %w", err)
	}

	c.tip = trimmed.Tail
	if trimmed.Tail.IsEndOfEpoch() {
		c.validators = trimmed.Tail.Header.NextValidatorSet
		c.logger.Info("entered new epoch",
			"epoch", trimmed.Tail.Epoch()+1,
			"validators", c.validators.Size())
	}

	c.logger.Debug("committed batch",
		"txns", len(trimmed.Txns),
		"version", trimmed.Tail.StateVersion(),
		"epoch", trimmed.Tail.Epoch())

	update := types.LedgerUpdate{NewTxns: trimmed.Txns, Tail: trimmed.Tail}
	for _, fn := range c.subscribers {
		fn(update)
	}

	return nil
}

func (c *Committer) trim(batch *types.TxnsAndProof) (*types.TxnsAndProof, error) {
	head, tip := batch.Head, c.tip

	if head.Accumulator().Equal(tip.Accumulator()) {
		if !head.SameHeader(tip) {
			return nil, fmt.Errorf("%w: batch head %v differs from the tip %v", ErrNotContiguous, head, tip)
		}
		return batch, nil
	}

	if head.StateVersion() > tip.StateVersion() {
		return nil, fmt.Errorf("%w: batch starts at %v, tip is %v", ErrNotContiguous, head.Accumulator(), tip.Accumulator())
	}

	// an overlapping batch must start at a proof this ledger committed
	stored, err := c.store.LoadProof(head.Epoch(), head.StateVersion())
	if err != nil {
		return nil, err
	}
	if !stored.SameHeader(head) {
		return nil, fmt.Errorf("%w: batch head %v is not a committed proof", ErrNotContiguous, head)
	}

	overlap := tip.StateVersion() - head.StateVersion()
	if !types.VerifyAccumulator(head.Accumulator(), batch.Txns[:overlap].Hashes(), tip.Accumulator()) {
		return nil, fmt.Errorf("%w: batch diverges from the tip at %v", ErrNotContiguous, tip.Accumulator())
	}

	trimmed := &types.TxnsAndProof{
		Txns: batch.Txns[overlap:],
		Head: tip,
		Tail: batch.Tail,
	}

	return trimmed, trimmed.ValidateBasic()
}
