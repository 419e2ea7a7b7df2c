package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersync/ledgersync/crypto/tmhash"
	"github.com/ledgersync/ledgersync/internal/test/factory"
	"github.com/ledgersync/ledgersync/types"
)

func TestAccumulate(t *testing.T) {
	genesis := types.GenesisAccumulator([]byte("genesis"))
	require.EqualValues(t, 0, genesis.StateVersion)
	require.NoError(t, genesis.ValidateBasic())

	txnHash := types.Txn("a").Hash()
	next := types.Accumulate(genesis, txnHash)

	assert.EqualValues(t, 1, next.StateVersion)
	assert.Equal(t, tmhash.SumMany(genesis.Hash, txnHash), []byte(next.Hash))
	assert.Equal(t, 1, next.Compare(genesis))
	assert.Equal(t, -1, genesis.Compare(next))
	assert.Equal(t, 0, next.Compare(next))
}

func TestVerifyAccumulator(t *testing.T) {
	start := types.GenesisAccumulator([]byte("genesis"))
	txns := factory.Txns(0, 5)
	end := types.AccumulateAll(start, txns.Hashes())

	require.EqualValues(t, 5, end.StateVersion)
	require.True(t, types.VerifyAccumulator(start, txns.Hashes(), end))

	testCases := map[string]func() (types.AccumulatorState, [][]byte, types.AccumulatorState){
		"tampered txn": func() (types.AccumulatorState, [][]byte, types.AccumulatorState) {
			tampered := append(types.Txns{}, txns...)
			tampered[2] = types.Txn("evil")
			return start, tampered.Hashes(), end
		},
		"reordered txns": func() (types.AccumulatorState, [][]byte, types.AccumulatorState) {
			reordered := types.Txns{txns[1], txns[0], txns[2], txns[3], txns[4]}
			return start, reordered.Hashes(), end
		},
		"missing txn": func() (types.AccumulatorState, [][]byte, types.AccumulatorState) {
			return start, txns[:4].Hashes(), end
		},
		"wrong start": func() (types.AccumulatorState, [][]byte, types.AccumulatorState) {
			return types.GenesisAccumulator([]byte("other")), txns.Hashes(), end
		},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			s, hashes, e := tc()
			require.False(t, types.VerifyAccumulator(s, hashes, e))
		})
	}
}

func TestAccumulatorStateProto(t *testing.T) {
	acc := types.AccumulateAll(types.GenesisAccumulator([]byte("g")), factory.Txns(0, 3).Hashes())

	got, err := types.AccumulatorStateFromProto(acc.ToProto())
	require.NoError(t, err)
	require.True(t, acc.Equal(got))

	_, err = types.AccumulatorStateFromProto(nil)
	require.Error(t, err)

	pb := acc.ToProto()
	pb.Hash = pb.Hash[:5]
	_, err = types.AccumulatorStateFromProto(pb)
	require.Error(t, err)
}
