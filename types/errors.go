package types

import "fmt"

// ErrNotEnoughVotingPowerSigned is returned when not enough validators signed
// a ledger proof.
type ErrNotEnoughVotingPowerSigned struct {
	Got    int64
	Needed int64
}

func (e ErrNotEnoughVotingPowerSigned) Error() string {
	return fmt.Sprintf("invalid proof -- insufficient voting power: got %d, needed more than %d", e.Got, e.Needed)
}

// ErrInvalidSignature is returned when a signature does not verify against
// the key it names.
type ErrInvalidSignature struct {
	Index  int
	NodeID NodeID
}

func (e ErrInvalidSignature) Error() string {
	return fmt.Sprintf("invalid signature #%d from %v", e.Index, e.NodeID)
}
