package p2p

import (
	"sort"
	"sync"

	"github.com/ledgersync/ledgersync/types"
)

// PeerStatus is a peer status.
type PeerStatus string

const (
	PeerStatusUp   PeerStatus = "up"   // connected and ready
	PeerStatusDown PeerStatus = "down" // disconnected
)

// PeerUpdate is a peer update event sent via PeerUpdates.
type PeerUpdate struct {
	NodeID types.NodeID
	Status PeerStatus
}

// PeerUpdates is a peer update subscription with notifications about peer
// events (currently just status changes).
type PeerUpdates struct {
	updatesCh chan PeerUpdate
}

// NewPeerUpdates creates a new PeerUpdates subscription. It is primarily for
// internal use, callers should typically use MemoryNetwork.AddNode().
func NewPeerUpdates(updatesCh chan PeerUpdate) *PeerUpdates {
	return &PeerUpdates{updatesCh: updatesCh}
}

// Updates returns a channel for consuming peer updates.
func (pu *PeerUpdates) Updates() <-chan PeerUpdate {
	return pu.updatesCh
}

// PeerSet tracks the peers a reactor currently considers connected.
type PeerSet struct {
	mtx   sync.RWMutex
	peers map[types.NodeID]struct{}
}

func NewPeerSet() *PeerSet {
	return &PeerSet{peers: make(map[types.NodeID]struct{})}
}

// Apply records a peer update. It returns true if the set changed.
func (ps *PeerSet) Apply(update PeerUpdate) bool {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()

	_, ok := ps.peers[update.NodeID]
	switch update.Status {
	case PeerStatusUp:
		ps.peers[update.NodeID] = struct{}{}
		return !ok
	case PeerStatusDown:
		delete(ps.peers, update.NodeID)
		return ok
	}
	return false
}

// IsConnected reports whether the peer is in the set.
func (ps *PeerSet) IsConnected(id types.NodeID) bool {
	ps.mtx.RLock()
	defer ps.mtx.RUnlock()
	_, ok := ps.peers[id]
	return ok
}

// Peers returns the connected peers sorted by ID.
func (ps *PeerSet) Peers() []types.NodeID {
	ps.mtx.RLock()
	defer ps.mtx.RUnlock()

	ids := make([]types.NodeID, 0, len(ps.peers))
	for id := range ps.peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Size returns the number of connected peers.
func (ps *PeerSet) Size() int {
	ps.mtx.RLock()
	defer ps.mtx.RUnlock()
	return len(ps.peers)
}
