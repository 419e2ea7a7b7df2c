package ledgersync

import (
	"testing"
	"time"

	"github.com/gogo/protobuf/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersync/ledgersync/internal/test/factory"
	syncproto "github.com/ledgersync/ledgersync/proto/ledgersync/sync"
	lsproto "github.com/ledgersync/ledgersync/proto/ledgersync/types"
	"github.com/ledgersync/ledgersync/types"
)

// TestMessagesOverTheWire sends every remote message through the envelope
// wrapper and its binary encoding.
func TestMessagesOverTheWire(t *testing.T) {
	chain := factory.NewChain(t, 3)
	batch := chain.Extend(4)

	msgs := []Event{
		StatusRequest{},
		StatusResponse{Header: batch.Tail},
		SyncRequest{Header: batch.Head},
		SyncResponse{TxnsAndProof: batch},
		LedgerStatusUpdate{Header: batch.Tail},
	}

	for _, msg := range msgs {
		pb, err := EncodeMessage(msg)
		require.NoError(t, err)

		wrapper := new(syncproto.Message)
		require.NoError(t, wrapper.Wrap(pb))
		bz, err := proto.Marshal(wrapper)
		require.NoError(t, err)

		received := new(syncproto.Message)
		require.NoError(t, proto.Unmarshal(bz, received))
		inner, err := received.Unwrap()
		require.NoError(t, err)

		decoded, err := DecodeMessage(inner)
		require.NoError(t, err)
		requireEnvelopes(t, []Envelope{{Message: msg}}, []Envelope{{Message: decoded}})
	}
}

func TestEncodeMessageErrors(t *testing.T) {
	_, err := EncodeMessage(SyncCheckTrigger{})
	require.Error(t, err)

	_, err = EncodeMessage(SyncResponse{})
	require.Error(t, err)

	_, err = EncodeMessage(StatusResponse{})
	require.Error(t, err)
}

func TestDecodeMessageErrors(t *testing.T) {
	chain := factory.NewChain(t, 3)
	batch := chain.Extend(4)

	tp, err := batch.ToProto()
	require.NoError(t, err)
	tp.Txns = tp.Txns[:2]

	testCases := map[string]proto.Message{
		"unknown type":       &lsproto.AccumulatorState{},
		"nil header":         &syncproto.StatusResponse{},
		"header without acc": &syncproto.SyncRequest{Header: &lsproto.LedgerProof{Header: &lsproto.LedgerHeader{}}},
		"short batch":        &syncproto.SyncResponse{TxnsAndProof: tp},
	}

	for name, pb := range testCases {
		pb := pb
		t.Run(name, func(t *testing.T) {
			_, err := DecodeMessage(pb)
			require.Error(t, err)
		})
	}
}

func TestEnvelope(t *testing.T) {
	local := Envelope{Delay: time.Second, Message: SyncCheckTrigger{}}
	assert.True(t, local.IsLocal())
	assert.Equal(t, "Envelope{local ledgersync.SyncCheckTrigger in 1s}", local.String())

	remote := Envelope{To: types.NodeID("0123456789abcdef0123456789abcdef01234567"), Message: StatusRequest{}}
	assert.False(t, remote.IsLocal())
	assert.Equal(t, "Envelope{ledgersync.StatusRequest to 012345}", remote.String())
}
