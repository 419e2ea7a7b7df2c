package ledger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/ledgersync/ledgersync/internal/store"
	"github.com/ledgersync/ledgersync/internal/test/factory"
	"github.com/ledgersync/ledgersync/libs/log"
	"github.com/ledgersync/ledgersync/types"
)

func newTestCommitter(t *testing.T, chain *factory.Chain) (*Committer, *store.LedgerStore) {
	t.Helper()

	ls := store.NewLedgerStore(dbm.NewMemDB())
	require.NoError(t, ls.SaveGenesis(chain.Genesis()))

	c, err := NewCommitter(log.TestingLogger(), ls)
	require.NoError(t, err)
	return c, ls
}

func TestCommitterPublishesUpdates(t *testing.T) {
	chain := factory.NewChain(t, 4)
	c, _ := newTestCommitter(t, chain)

	var updates []types.LedgerUpdate
	c.Subscribe(func(u types.LedgerUpdate) { updates = append(updates, u) })

	b1 := chain.Extend(3)
	require.NoError(t, c.Commit(b1))
	b2 := chain.Extend(2)
	require.NoError(t, c.Commit(b2))

	require.Len(t, updates, 2)
	assert.Equal(t, b1.Txns, updates[0].NewTxns)
	assert.True(t, b2.Tail.SameHeader(updates[1].Tail))
	assert.True(t, b2.Tail.SameHeader(c.LastProof()))
}

func TestCommitterIgnoresStaleBatch(t *testing.T) {
	chain := factory.NewChain(t, 4)
	c, _ := newTestCommitter(t, chain)

	calls := 0
	c.Subscribe(func(types.LedgerUpdate) { calls++ })

	b1 := chain.Extend(3)
	require.NoError(t, c.Commit(b1))
	require.NoError(t, c.Commit(b1))
	assert.Equal(t, 1, calls)
}

func TestCommitterTrimsOverlap(t *testing.T) {
	chain := factory.NewChain(t, 4)
	c, _ := newTestCommitter(t, chain)

	b1 := chain.Extend(2)
	chain.Extend(3)
	require.NoError(t, c.Commit(b1))

	var got types.LedgerUpdate
	c.Subscribe(func(u types.LedgerUpdate) { got = u })

	// a batch from genesis to the new tip overlaps the first two txns
	overlapping := chain.Batch(chain.Genesis(), chain.Tip())
	require.NoError(t, c.Commit(overlapping))

	assert.Equal(t, chain.Txns[2:], got.NewTxns)
	assert.True(t, chain.Tip().SameHeader(c.LastProof()))
}

func TestCommitterRejectsGapAndFork(t *testing.T) {
	chain := factory.NewChain(t, 4)
	c, _ := newTestCommitter(t, chain)

	chain.Extend(2)
	gap := chain.Extend(2)
	require.True(t, errors.Is(c.Commit(gap), ErrNotContiguous))

	forked := chain.Batch(chain.Genesis(), chain.Tip())
	forked.Txns[0] = types.Txn("fork")
	require.NoError(t, c.Commit(chain.Batch(chain.Genesis(), chain.Proofs[1])))
	require.True(t, errors.Is(c.Commit(forked), ErrNotContiguous))
}

func TestCommitterRejectsForgedHead(t *testing.T) {
	chain := factory.NewChain(t, 4)
	c, ls := newTestCommitter(t, chain)

	b1 := chain.Extend(3)
	b2 := chain.Extend(2)
	require.NoError(t, c.Commit(b1))
	chain.EndEpoch(2, chain.Validators, chain.PrivKeys)
	chain.Extend(3)

	// the tip, claiming to close epoch one
	atTip := *b1.Tail
	atTip.Header.NextValidatorSet = chain.Validators
	forged := chain.Batch(&atTip, chain.Tip())
	require.True(t, errors.Is(c.Commit(forged), ErrNotContiguous))

	// genesis with another timestamp, overlapping the tip
	genesis := *chain.Genesis()
	genesis.Header.Timestamp++
	overlapping := chain.Batch(&genesis, b2.Tail)
	require.True(t, errors.Is(c.Commit(overlapping), ErrNotContiguous))

	require.True(t, b1.Tail.SameHeader(c.LastProof()))
	restarted, err := NewCommitter(log.TestingLogger(), ls)
	require.NoError(t, err)
	require.True(t, b1.Tail.SameHeader(restarted.LastProof()))
}

func TestCommitterSwapsValidatorsAtEpochEnd(t *testing.T) {
	chain := factory.NewChain(t, 4)
	c, ls := newTestCommitter(t, chain)
	require.True(t, chain.Validators.Equal(c.ValidatorSet()))

	nextVals, nextKeys := factory.NamedValidatorSet("epoch2", 3, 10)
	require.NoError(t, c.Commit(chain.EndEpoch(2, nextVals, nextKeys)))
	require.True(t, nextVals.Equal(c.ValidatorSet()))

	// a committer restarted from the store resumes with the same set
	require.NoError(t, c.Commit(chain.Extend(1)))
	restarted, err := NewCommitter(log.TestingLogger(), ls)
	require.NoError(t, err)
	require.True(t, nextVals.Equal(restarted.ValidatorSet()))
}

func TestProducer(t *testing.T) {
	chain := factory.NewChain(t, 4)
	c, _ := newTestCommitter(t, chain)

	p := NewProducer(c, chain.PrivKeys)
	batch, err := p.Produce(factory.Txns(0, 3))
	require.NoError(t, err)
	require.NoError(t, c.ValidatorSet().VerifyQuorum(batch.Tail.Signatures))
	require.NoError(t, batch.Tail.VerifySignatures())
	require.EqualValues(t, 3, c.LastProof().StateVersion())

	_, nextKeys := factory.NamedValidatorSet("epoch2", 2, 10)
	batch, err = p.ProduceEpochEnd(factory.Txns(3, 1), nextKeys, 10)
	require.NoError(t, err)
	require.True(t, batch.Tail.IsEndOfEpoch())

	batch, err = p.Produce(factory.Txns(4, 2))
	require.NoError(t, err)
	require.EqualValues(t, 2, batch.Tail.Epoch())
	require.NoError(t, batch.Head.Header.NextValidatorSet.VerifyQuorum(batch.Tail.Signatures))
}

func TestNewGenesis(t *testing.T) {
	vals, privKeys := factory.ValidatorSet(3, 10)

	genesis, err := NewGenesis([]byte(factory.GenesisSeed), vals, privKeys)
	require.NoError(t, err)
	require.True(t, genesis.IsEndOfEpoch())
	require.EqualValues(t, 0, genesis.StateVersion())
	require.True(t, vals.Equal(genesis.Header.NextValidatorSet))
	require.True(t, factory.GenesisProof(t, vals, privKeys).SameHeader(genesis))

	again, err := ValidatorSetFor(privKeys, 10)
	require.NoError(t, err)
	require.True(t, vals.Equal(again))
}
