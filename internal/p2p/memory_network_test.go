package p2p_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"

	"github.com/ledgersync/ledgersync/internal/p2p"
	"github.com/ledgersync/ledgersync/internal/test/factory"
	"github.com/ledgersync/ledgersync/libs/log"
	lsproto "github.com/ledgersync/ledgersync/proto/ledgersync/types"
	syncproto "github.com/ledgersync/ledgersync/proto/ledgersync/sync"
	"github.com/ledgersync/ledgersync/types"
)

func testChannelDescriptor(capacity int) *p2p.ChannelDescriptor {
	return &p2p.ChannelDescriptor{
		ID:                 0x70,
		Name:               "test",
		MessageType:        new(syncproto.Message),
		RecvBufferCapacity: capacity,
	}
}

type testNode struct {
	id          types.NodeID
	channel     *p2p.Channel
	peerUpdates *p2p.PeerUpdates
}

func setupNetwork(ctx context.Context, t *testing.T, capacity int, secrets ...string) (*p2p.MemoryNetwork, []*testNode) {
	t.Helper()

	network, err := p2p.NewMemoryNetwork(log.TestingLogger(), testChannelDescriptor(capacity))
	require.NoError(t, err)

	nodes := make([]*testNode, len(secrets))
	for i, secret := range secrets {
		id := factory.NodeID(secret)
		ch, updates, err := network.AddNode(ctx, id)
		require.NoError(t, err)
		nodes[i] = &testNode{id: id, channel: ch, peerUpdates: updates}
	}
	return network, nodes
}

func requireUpdate(t *testing.T, node *testNode, expected p2p.PeerUpdate) {
	t.Helper()
	select {
	case update := <-node.peerUpdates.Updates():
		require.Equal(t, expected, update)
	case <-time.After(time.Second):
		t.Fatalf("node %s: timed out waiting for %v", node.id, expected)
	}
}

func requireEnvelope(ctx context.Context, t *testing.T, node *testNode) *p2p.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	iter := node.channel.Receive(ctx)
	require.True(t, iter.Next(ctx), "node %s: no envelope received", node.id)
	return iter.Envelope()
}

func TestNewMemoryNetworkRequiresWrapper(t *testing.T) {
	_, err := p2p.NewMemoryNetwork(log.NewNopLogger(), &p2p.ChannelDescriptor{
		ID:          1,
		MessageType: new(syncproto.StatusRequest),
	})
	require.Error(t, err)
}

func TestMemoryNetworkAddNode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	network, nodes := setupNetwork(ctx, t, 1, "a")

	_, _, err := network.AddNode(ctx, nodes[0].id)
	require.True(t, errors.Is(err, p2p.ErrNodeExists))

	_, _, err = network.AddNode(ctx, types.NodeID("not-a-node"))
	require.Error(t, err)

	require.True(t, errors.Is(network.Connect(ctx, nodes[0].id, factory.NodeID("b")), p2p.ErrUnknownNode))
	require.Error(t, network.Connect(ctx, nodes[0].id, nodes[0].id))
}

func TestMemoryNetworkSendReceive(t *testing.T) {
	defer leaktest.Check(t)()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	network, nodes := setupNetwork(ctx, t, 4, "a", "b")
	a, b := nodes[0], nodes[1]

	require.NoError(t, network.Connect(ctx, a.id, b.id))
	requireUpdate(t, a, p2p.PeerUpdate{NodeID: b.id, Status: p2p.PeerStatusUp})
	requireUpdate(t, b, p2p.PeerUpdate{NodeID: a.id, Status: p2p.PeerStatusUp})
	require.True(t, network.IsConnected(a.id, b.id))

	// connecting twice is a no-op
	require.NoError(t, network.Connect(ctx, b.id, a.id))

	header := &lsproto.LedgerProof{}
	require.NoError(t, a.channel.Send(ctx, p2p.Envelope{
		To:      b.id,
		Message: &syncproto.SyncRequest{Header: header},
	}))

	envelope := requireEnvelope(ctx, t, b)
	require.Equal(t, a.id, envelope.From)
	require.Equal(t, p2p.ChannelID(0x70), envelope.ChannelID)
	require.IsType(t, &syncproto.SyncRequest{}, envelope.Message)

	cancel()
}

func TestMemoryNetworkBroadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	network, nodes := setupNetwork(ctx, t, 4, "a", "b", "c")
	require.NoError(t, network.ConnectAll(ctx))

	require.NoError(t, nodes[0].channel.Send(ctx, p2p.Envelope{
		Broadcast: true,
		Message:   &syncproto.StatusRequest{},
	}))

	for _, node := range nodes[1:] {
		envelope := requireEnvelope(ctx, t, node)
		require.Equal(t, nodes[0].id, envelope.From)
		require.IsType(t, &syncproto.StatusRequest{}, envelope.Message)
	}
}

func TestMemoryNetworkDropsUnconnected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, nodes := setupNetwork(ctx, t, 4, "a", "b")

	require.NoError(t, nodes[0].channel.Send(ctx, p2p.Envelope{
		To:      nodes[1].id,
		Message: &syncproto.StatusRequest{},
	}))

	rctx, rcancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer rcancel()
	require.False(t, nodes[1].channel.Receive(rctx).Next(rctx))
}

func TestMemoryNetworkPeerErrorDisconnects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	network, nodes := setupNetwork(ctx, t, 4, "a", "b")
	a, b := nodes[0], nodes[1]

	require.NoError(t, network.Connect(ctx, a.id, b.id))
	requireUpdate(t, a, p2p.PeerUpdate{NodeID: b.id, Status: p2p.PeerStatusUp})
	requireUpdate(t, b, p2p.PeerUpdate{NodeID: a.id, Status: p2p.PeerStatusUp})

	require.NoError(t, a.channel.SendError(ctx, p2p.PeerError{NodeID: b.id, Err: errors.New("boom")}))

	requireUpdate(t, a, p2p.PeerUpdate{NodeID: b.id, Status: p2p.PeerStatusDown})
	requireUpdate(t, b, p2p.PeerUpdate{NodeID: a.id, Status: p2p.PeerStatusDown})
	require.False(t, network.IsConnected(a.id, b.id))
}

func TestMemoryNetworkRemoveNode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	network, nodes := setupNetwork(ctx, t, 4, "a", "b")
	a, b := nodes[0], nodes[1]

	require.NoError(t, network.Connect(ctx, a.id, b.id))
	requireUpdate(t, a, p2p.PeerUpdate{NodeID: b.id, Status: p2p.PeerStatusUp})
	requireUpdate(t, b, p2p.PeerUpdate{NodeID: a.id, Status: p2p.PeerStatusUp})

	require.NoError(t, network.RemoveNode(ctx, b.id))
	requireUpdate(t, a, p2p.PeerUpdate{NodeID: b.id, Status: p2p.PeerStatusDown})
	require.Equal(t, []types.NodeID{a.id}, network.NodeIDs())

	require.True(t, errors.Is(network.RemoveNode(ctx, b.id), p2p.ErrUnknownNode))
}

func TestMemoryNetworkDropsWhenFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	network, nodes := setupNetwork(ctx, t, 1, "a", "b")
	a, b := nodes[0], nodes[1]
	require.NoError(t, network.Connect(ctx, a.id, b.id))

	// nobody reads b's channel, so only the first message fits its buffer
	for i := 0; i < 3; i++ {
		require.NoError(t, a.channel.Send(ctx, p2p.Envelope{To: b.id, Message: &syncproto.StatusRequest{}}))
	}

	requireEnvelope(ctx, t, b)

	rctx, rcancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer rcancel()
	iter := b.channel.Receive(rctx)
	received := 0
	for iter.Next(rctx) {
		received++
	}
	require.LessOrEqual(t, received, 1)
}
