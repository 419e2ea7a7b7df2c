package factory

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgersync/ledgersync/crypto"
	"github.com/ledgersync/ledgersync/types"
)

// GenesisSeed seeds the genesis accumulator of every test chain.
const GenesisSeed = "ledgersync-test-genesis"

// GenesisProof returns the proof of the empty ledger. It closes epoch zero and
// hands over to vals, so it doubles as the epoch proof of epoch one.
func GenesisProof(t testing.TB, vals *types.ValidatorSet, privKeys []crypto.PrivKey) *types.LedgerProof {
	t.Helper()

	proof, err := types.SignLedgerHeader(types.LedgerHeader{
		Epoch:            0,
		Accumulator:      types.GenesisAccumulator([]byte(GenesisSeed)),
		NextValidatorSet: vals,
	}, privKeys, 0)
	require.NoError(t, err)

	return proof
}

// Txns returns n distinct transactions starting at offset.
func Txns(offset, n int) types.Txns {
	txs := make(types.Txns, n)
	for i := range txs {
		txs[i] = types.Txn(fmt.Sprintf("txn-%d", offset+i))
	}
	return txs
}

// Chain is an in-memory signed ledger used to build sync fixtures.
type Chain struct {
	t testing.TB

	Validators *types.ValidatorSet
	PrivKeys   []crypto.PrivKey

	// Proofs holds every committed proof, genesis first.
	Proofs []*types.LedgerProof
	// Txns holds every committed transaction; Txns[v-1] has version v.
	Txns types.Txns
}

// NewChain starts a ledger with numValidators validators in epoch one.
func NewChain(t testing.TB, numValidators int) *Chain {
	t.Helper()

	vals, privKeys := ValidatorSet(numValidators, 10)
	return &Chain{
		t:          t,
		Validators: vals,
		PrivKeys:   privKeys,
		Proofs:     []*types.LedgerProof{GenesisProof(t, vals, privKeys)},
	}
}

// Genesis returns the first proof of the chain.
func (c *Chain) Genesis() *types.LedgerProof {
	return c.Proofs[0]
}

// Tip returns the latest proof of the chain.
func (c *Chain) Tip() *types.LedgerProof {
	return c.Proofs[len(c.Proofs)-1]
}

// Extend commits n new transactions in the current epoch and returns the
// batch that carries the chain from its previous tip to the new one.
func (c *Chain) Extend(n int) *types.TxnsAndProof {
	c.t.Helper()
	return c.extend(n, nil, nil)
}

// EndEpoch commits n transactions in a batch whose tail closes the current
// epoch and hands over to nextVals.
func (c *Chain) EndEpoch(n int, nextVals *types.ValidatorSet, nextPrivKeys []crypto.PrivKey) *types.TxnsAndProof {
	c.t.Helper()
	return c.extend(n, nextVals, nextPrivKeys)
}

func (c *Chain) extend(n int, nextVals *types.ValidatorSet, nextPrivKeys []crypto.PrivKey) *types.TxnsAndProof {
	head := c.Tip()
	txns := Txns(len(c.Txns), n)

	epoch := head.Epoch()
	if head.IsEndOfEpoch() {
		epoch++
	}

	acc := types.AccumulateAll(head.Accumulator(), txns.Hashes())
	timestamp := int64(acc.StateVersion) * 1000

	tail, err := types.SignLedgerHeader(types.LedgerHeader{
		Epoch:            epoch,
		Accumulator:      acc,
		Timestamp:        timestamp,
		NextValidatorSet: nextVals,
	}, c.PrivKeys, timestamp+1)
	require.NoError(c.t, err)

	c.Txns = append(c.Txns, txns...)
	c.Proofs = append(c.Proofs, tail)
	if nextVals != nil {
		c.Validators, c.PrivKeys = nextVals, nextPrivKeys
	}

	return &types.TxnsAndProof{Txns: txns, Head: head, Tail: tail}
}

// Batch returns the transactions between two proofs of the chain.
func (c *Chain) Batch(head, tail *types.LedgerProof) *types.TxnsAndProof {
	return &types.TxnsAndProof{
		Txns: append(types.Txns{}, c.Txns[head.StateVersion():tail.StateVersion()]...),
		Head: head,
		Tail: tail,
	}
}
