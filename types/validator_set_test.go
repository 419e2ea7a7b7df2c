package types_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersync/ledgersync/crypto"
	"github.com/ledgersync/ledgersync/crypto/ed25519"
	"github.com/ledgersync/ledgersync/internal/test/factory"
	"github.com/ledgersync/ledgersync/types"
)

func TestNewValidatorSet(t *testing.T) {
	v1, _ := factory.Validator("a", 10)
	v2, _ := factory.Validator("b", 20)

	vals, err := types.NewValidatorSet([]*types.Validator{v2, v1})
	require.NoError(t, err)
	assert.Equal(t, 2, vals.Size())
	assert.EqualValues(t, 30, vals.TotalVotingPower())
	assert.EqualValues(t, 20, vals.VotingPowerNeeded())
	assert.True(t, vals.Validators[0].NodeID() < vals.Validators[1].NodeID())

	idx, val := vals.GetByNodeID(v2.NodeID())
	require.NotEqual(t, -1, idx)
	assert.True(t, val.PubKey.Equals(v2.PubKey))
	assert.True(t, vals.HasNodeID(v1.NodeID()))

	other, _ := factory.Validator("c", 1)
	assert.False(t, vals.HasNodeID(other.NodeID()))

	_, err = types.NewValidatorSet(nil)
	assert.Error(t, err)

	_, err = types.NewValidatorSet([]*types.Validator{v1, v1})
	assert.Error(t, err)

	_, err = types.NewValidatorSet([]*types.Validator{types.NewValidator(v1.PubKey, 0)})
	assert.Error(t, err)
}

func TestValidatorSetVerifyQuorum(t *testing.T) {
	vals, privKeys := factory.ValidatorSet(4, 10)
	header := types.LedgerHeader{Epoch: 1, Accumulator: types.GenesisAccumulator([]byte("g"))}

	signedBy := func(keys ...crypto.PrivKey) []types.TimestampedSignature {
		proof, err := types.SignLedgerHeader(header, keys, 5)
		require.NoError(t, err)
		return proof.Signatures
	}

	outsider := ed25519.GenPrivKeyFromSecret([]byte("outsider"))

	testCases := []struct {
		name    string
		sigs    []types.TimestampedSignature
		wantGot int64
		ok      bool
	}{
		{"all validators", signedBy(privKeys...), 40, true},
		{"three of four", signedBy(privKeys[:3]...), 30, true},
		{"exactly two thirds is not enough", signedBy(privKeys[:2]...), 20, false},
		{"duplicates count once", append(signedBy(privKeys[:2]...), signedBy(privKeys[0])...), 20, false},
		{"outsiders contribute nothing", signedBy(privKeys[0], privKeys[1], outsider), 20, false},
		{"outsiders are ignored", signedBy(privKeys[0], privKeys[1], privKeys[2], outsider), 30, true},
		{"no signatures", nil, 0, false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := vals.VerifyQuorum(tc.sigs)
			if tc.ok {
				require.NoError(t, err)
				return
			}

			var vpErr types.ErrNotEnoughVotingPowerSigned
			require.True(t, errors.As(err, &vpErr), "unexpected error %v", err)
			assert.Equal(t, tc.wantGot, vpErr.Got)
			assert.EqualValues(t, 26, vpErr.Needed)
		})
	}
}

func TestValidatorSetProtoAndHash(t *testing.T) {
	vals, _ := factory.ValidatorSet(3, 7)

	pb, err := vals.ToProto()
	require.NoError(t, err)

	got, err := types.ValidatorSetFromProto(pb)
	require.NoError(t, err)
	assert.True(t, vals.Equal(got))
	assert.Equal(t, vals.Hash(), got.Hash())

	other, _ := factory.NamedValidatorSet("other", 3, 7)
	assert.False(t, vals.Equal(other))
	assert.NotEqual(t, vals.Hash(), other.Hash())

	var nilSet *types.ValidatorSet
	assert.Nil(t, nilSet.Hash())
	assert.True(t, nilSet.Equal(nil))
	assert.False(t, nilSet.Equal(vals))
}
