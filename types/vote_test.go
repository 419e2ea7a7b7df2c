package types_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersync/ledgersync/crypto"
	"github.com/ledgersync/ledgersync/crypto/ed25519"
	"github.com/ledgersync/ledgersync/crypto/secp256k1"
	"github.com/ledgersync/ledgersync/internal/test/factory"
	"github.com/ledgersync/ledgersync/types"
)

func TestVoteSignBytes(t *testing.T) {
	header := types.LedgerHeader{
		Epoch:       3,
		Accumulator: types.GenesisAccumulator([]byte("g")),
		Timestamp:   1000,
	}
	vd := types.NewVoteData(header)

	assert.Equal(t, vd.SignBytes(5), vd.SignBytes(5))
	assert.NotEqual(t, vd.SignBytes(5), vd.SignBytes(6))

	other := header
	other.Epoch++
	assert.NotEqual(t, vd.SignBytes(5), types.NewVoteData(other).SignBytes(5))

	vals, _ := factory.ValidatorSet(2, 1)
	closing := header
	closing.NextValidatorSet = vals
	assert.NotEqual(t, vd.SignBytes(5), types.NewVoteData(closing).SignBytes(5))
}

func TestLedgerProofVerifySignatures(t *testing.T) {
	header := types.LedgerHeader{Epoch: 1, Accumulator: types.GenesisAccumulator([]byte("g"))}
	proof, err := types.SignLedgerHeader(header, []crypto.PrivKey{
		ed25519.GenPrivKeyFromSecret([]byte("a")),
		secp256k1.GenPrivKeySecp256k1([]byte("b")),
	}, 42)
	require.NoError(t, err)
	require.Len(t, proof.Signatures, 2)
	require.NoError(t, proof.VerifySignatures())

	// a signature from a different time does not verify
	proof.Signatures[1].Timestamp++
	err = proof.VerifySignatures()
	var sigErr types.ErrInvalidSignature
	require.True(t, errors.As(err, &sigErr))
	assert.Equal(t, 1, sigErr.Index)
	assert.Equal(t, proof.Signatures[1].NodeID(), sigErr.NodeID)
}
