package p2p

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/gogo/protobuf/proto"

	"github.com/ledgersync/ledgersync/libs/log"
	"github.com/ledgersync/ledgersync/types"
)

var (
	ErrNodeExists  = errors.New("node already exists")
	ErrUnknownNode = errors.New("unknown node")
)

// MemoryNetwork is an in-process network of nodes sharing a single channel.
// Every message crossing it is wrapped and protobuf encoded, so peers only
// ever see what survives the wire format.
//
// Delivery never blocks the sender: a message for a peer whose inbound buffer
// is full is dropped, like a congested connection would.
type MemoryNetwork struct {
	logger log.Logger
	chDesc *ChannelDescriptor

	mtx   sync.RWMutex
	nodes map[types.NodeID]*memoryNode
}

type memoryNode struct {
	id        types.NodeID
	inCh      chan Envelope
	outCh     chan Envelope
	errCh     chan PeerError
	updatesCh chan PeerUpdate
	peers     map[types.NodeID]struct{}
	cancel    context.CancelFunc
}

// NewMemoryNetwork creates a network carrying the channel described by
// chDesc. The descriptor's MessageType must implement Wrapper.
func NewMemoryNetwork(logger log.Logger, chDesc *ChannelDescriptor) (*MemoryNetwork, error) {
	if _, ok := chDesc.MessageType.(Wrapper); !ok {
		return nil, fmt.Errorf("channel %d message type %T does not implement Wrapper",
			chDesc.ID, chDesc.MessageType)
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &MemoryNetwork{
		logger: logger,
		chDesc: chDesc,
		nodes:  make(map[types.NodeID]*memoryNode),
	}, nil
}

// AddNode attaches a node to the network and returns its channel and peer
// update subscription. The node is routed until ctx ends or RemoveNode is
// called.
func (n *MemoryNetwork) AddNode(ctx context.Context, id types.NodeID) (*Channel, *PeerUpdates, error) {
	if err := id.Validate(); err != nil {
		return nil, nil, err
	}

	n.mtx.Lock()
	defer n.mtx.Unlock()

	if _, ok := n.nodes[id]; ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNodeExists, id)
	}

	bufSize := n.chDesc.RecvBufferCapacity
	if bufSize <= 0 {
		bufSize = 1
	}

	nctx, cancel := context.WithCancel(ctx)
	node := &memoryNode{
		id:        id,
		inCh:      make(chan Envelope, bufSize),
		outCh:     make(chan Envelope),
		errCh:     make(chan PeerError),
		updatesCh: make(chan PeerUpdate, bufSize),
		peers:     make(map[types.NodeID]struct{}),
		cancel:    cancel,
	}
	n.nodes[id] = node

	go n.routeNode(nctx, node)

	ch := NewChannel(n.chDesc.ID, n.chDesc.Name, node.inCh, node.outCh, node.errCh)
	return ch, NewPeerUpdates(node.updatesCh), nil
}

// RemoveNode disconnects the node from all its peers and stops routing it.
func (n *MemoryNetwork) RemoveNode(ctx context.Context, id types.NodeID) error {
	n.mtx.Lock()
	node, ok := n.nodes[id]
	if !ok {
		n.mtx.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	peers := make([]types.NodeID, 0, len(node.peers))
	for peerID := range node.peers {
		peers = append(peers, peerID)
	}
	n.mtx.Unlock()

	for _, peerID := range peers {
		if err := n.Disconnect(ctx, id, peerID); err != nil {
			return err
		}
	}

	n.mtx.Lock()
	delete(n.nodes, id)
	n.mtx.Unlock()
	node.cancel()
	return nil
}

// Connect connects two nodes and notifies both of them.
func (n *MemoryNetwork) Connect(ctx context.Context, a, b types.NodeID) error {
	if a == b {
		return fmt.Errorf("cannot connect node %s to itself", a)
	}

	n.mtx.Lock()
	nodeA, nodeB, err := n.pairLocked(a, b)
	if err != nil {
		n.mtx.Unlock()
		return err
	}
	if _, ok := nodeA.peers[b]; ok {
		n.mtx.Unlock()
		return nil
	}
	nodeA.peers[b] = struct{}{}
	nodeB.peers[a] = struct{}{}
	n.mtx.Unlock()

	n.logger.Debug("connected peers", "a", a, "b", b)

	if err := notify(ctx, nodeA, PeerUpdate{NodeID: b, Status: PeerStatusUp}); err != nil {
		return err
	}
	return notify(ctx, nodeB, PeerUpdate{NodeID: a, Status: PeerStatusUp})
}

// ConnectAll connects every pair of nodes in the network.
func (n *MemoryNetwork) ConnectAll(ctx context.Context) error {
	ids := n.NodeIDs()
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			if err := n.Connect(ctx, ids[i], ids[j]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Disconnect disconnects two nodes and notifies both of them.
func (n *MemoryNetwork) Disconnect(ctx context.Context, a, b types.NodeID) error {
	n.mtx.Lock()
	nodeA, nodeB, err := n.pairLocked(a, b)
	if err != nil {
		n.mtx.Unlock()
		return err
	}
	if _, ok := nodeA.peers[b]; !ok {
		n.mtx.Unlock()
		return nil
	}
	delete(nodeA.peers, b)
	delete(nodeB.peers, a)
	n.mtx.Unlock()

	n.logger.Debug("disconnected peers", "a", a, "b", b)

	if err := notify(ctx, nodeA, PeerUpdate{NodeID: b, Status: PeerStatusDown}); err != nil {
		return err
	}
	return notify(ctx, nodeB, PeerUpdate{NodeID: a, Status: PeerStatusDown})
}

// NodeIDs returns the IDs of all nodes in the network, sorted.
func (n *MemoryNetwork) NodeIDs() []types.NodeID {
	n.mtx.RLock()
	ps := NewPeerSet()
	for id := range n.nodes {
		ps.Apply(PeerUpdate{NodeID: id, Status: PeerStatusUp})
	}
	n.mtx.RUnlock()
	return ps.Peers()
}

// IsConnected reports whether a and b are connected.
func (n *MemoryNetwork) IsConnected(a, b types.NodeID) bool {
	n.mtx.RLock()
	defer n.mtx.RUnlock()
	node, ok := n.nodes[a]
	if !ok {
		return false
	}
	_, ok = node.peers[b]
	return ok
}

func (n *MemoryNetwork) pairLocked(a, b types.NodeID) (*memoryNode, *memoryNode, error) {
	nodeA, ok := n.nodes[a]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownNode, a)
	}
	nodeB, ok := n.nodes[b]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownNode, b)
	}
	return nodeA, nodeB, nil
}

func notify(ctx context.Context, node *memoryNode, update PeerUpdate) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case node.updatesCh <- update:
		return nil
	}
}

// routeNode routes outbound messages and peer errors of a single node.
func (n *MemoryNetwork) routeNode(ctx context.Context, node *memoryNode) {
	logger := n.logger.With("node", node.id)
	for {
		select {
		case <-ctx.Done():
			return

		case envelope := <-node.outCh:
			n.route(logger, node, envelope)

		case peerErr := <-node.errCh:
			logger.Error("peer error, disconnecting", "peer", peerErr.NodeID, "err", peerErr.Err)
			if err := n.Disconnect(ctx, node.id, peerErr.NodeID); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("failed to disconnect peer", "peer", peerErr.NodeID, "err", err)
			}
		}
	}
}

func (n *MemoryNetwork) route(logger log.Logger, from *memoryNode, envelope Envelope) {
	bz, err := n.encode(envelope.Message)
	if err != nil {
		logger.Error("failed to encode message", "msg", envelope.Message, "err", err)
		return
	}

	n.mtx.RLock()
	defer n.mtx.RUnlock()

	var targets []*memoryNode
	if envelope.Broadcast {
		for peerID := range from.peers {
			targets = append(targets, n.nodes[peerID])
		}
	} else if _, ok := from.peers[envelope.To]; ok {
		targets = append(targets, n.nodes[envelope.To])
	} else {
		logger.Debug("dropping message for unconnected peer", "peer", envelope.To)
		return
	}

	for _, to := range targets {
		msg, err := n.decode(bz)
		if err != nil {
			logger.Error("failed to decode message", "peer", to.id, "err", err)
			continue
		}

		select {
		case to.inCh <- Envelope{From: from.id, Message: msg, ChannelID: n.chDesc.ID}:
		default:
			logger.Debug("dropping message, peer inbound buffer full", "peer", to.id)
		}
	}
}

func (n *MemoryNetwork) encode(msg proto.Message) ([]byte, error) {
	wrapper := n.newWrapper()
	if err := wrapper.Wrap(msg); err != nil {
		return nil, err
	}
	return proto.Marshal(wrapper)
}

func (n *MemoryNetwork) decode(bz []byte) (proto.Message, error) {
	wrapper := n.newWrapper()
	if err := proto.Unmarshal(bz, wrapper); err != nil {
		return nil, err
	}
	return wrapper.Unwrap()
}

func (n *MemoryNetwork) newWrapper() Wrapper {
	return reflect.New(reflect.TypeOf(n.chDesc.MessageType).Elem()).Interface().(Wrapper)
}
