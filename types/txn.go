package types

import (
	"fmt"

	"github.com/ledgersync/ledgersync/crypto/tmhash"
)

// Txn is an opaque committed transaction.
type Txn []byte

// Hash computes the hash folded into the accumulator for this transaction.
func (tx Txn) Hash() []byte { return tmhash.Sum(tx) }

// String returns the hex-encoded transaction as a string.
func (tx Txn) String() string { return fmt.Sprintf("Txn{%X}", []byte(tx)) }

// Txns is a slice of Txn.
type Txns []Txn

// Hashes returns the hash of every transaction, in order.
func (txs Txns) Hashes() [][]byte {
	hashes := make([][]byte, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.Hash()
	}
	return hashes
}

// ToSliceOfBytes converts a Txns to a slice of byte slices.
func (txs Txns) ToSliceOfBytes() [][]byte {
	txBzs := make([][]byte, len(txs))
	for i := 0; i < len(txs); i++ {
		txBzs[i] = txs[i]
	}
	return txBzs
}

// ToTxns converts a raw slice of byte slices into a Txns type.
func ToTxns(raw [][]byte) Txns {
	txs := make(Txns, len(raw))
	for i := 0; i < len(raw); i++ {
		txs[i] = raw[i]
	}
	return txs
}
