package types

// LedgerUpdate is published after each successful commit to the local ledger.
type LedgerUpdate struct {
	NewTxns Txns
	Tail    *LedgerProof
}

// NextValidatorSet is the validator set of the following epoch when the
// update closes an epoch, nil otherwise.
func (u LedgerUpdate) NextValidatorSet() *ValidatorSet {
	if u.Tail == nil {
		return nil
	}
	return u.Tail.Header.NextValidatorSet
}
