package factory

import (
	"fmt"
	"sort"

	"github.com/ledgersync/ledgersync/crypto"
	"github.com/ledgersync/ledgersync/crypto/ed25519"
	"github.com/ledgersync/ledgersync/types"
)

// Validator returns a validator derived from secret and its private key.
func Validator(secret string, votingPower int64) (*types.Validator, crypto.PrivKey) {
	privKey := ed25519.GenPrivKeyFromSecret([]byte(secret))
	return types.NewValidator(privKey.PubKey(), votingPower), privKey
}

// ValidatorSet returns a validator set of numValidators equal-power
// validators. The private keys are returned in validator set order.
func ValidatorSet(numValidators int, votingPower int64) (*types.ValidatorSet, []crypto.PrivKey) {
	return NamedValidatorSet("validator", numValidators, votingPower)
}

// NamedValidatorSet is ValidatorSet with keys derived from prefix, so that
// distinct prefixes yield disjoint sets.
func NamedValidatorSet(prefix string, numValidators int, votingPower int64) (*types.ValidatorSet, []crypto.PrivKey) {
	var (
		valz     = make([]*types.Validator, numValidators)
		privKeys = make([]crypto.PrivKey, numValidators)
	)

	for i := 0; i < numValidators; i++ {
		valz[i], privKeys[i] = Validator(fmt.Sprintf("%s-%d", prefix, i), votingPower)
	}

	sort.Slice(privKeys, func(i, j int) bool {
		return types.NodeIDFromPubKey(privKeys[i].PubKey()) < types.NodeIDFromPubKey(privKeys[j].PubKey())
	})

	return types.MustNewValidatorSet(valz), privKeys
}
