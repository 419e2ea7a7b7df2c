package behaviour //nolint:misspell

import (
	"context"
	"errors"
	"sync"

	"github.com/ledgersync/ledgersync/internal/p2p"
	"github.com/ledgersync/ledgersync/libs/log"
	"github.com/ledgersync/ledgersync/types"
)

// Reporter provides an interface for reactors to report the behaviour
// of peers synchronously to other components.
type Reporter interface {
	Report(behaviour PeerBehaviour) error
}

// ChannelReporter reports peer behaviour to the network through a channel.
// Bad behaviour is sent as a peer error, which disconnects the peer.
type ChannelReporter struct {
	ctx     context.Context
	logger  log.Logger
	channel *p2p.Channel
}

// NewChannelReporter returns a new ChannelReporter which sends on channel
// until ctx ends.
func NewChannelReporter(ctx context.Context, logger log.Logger, channel *p2p.Channel) *ChannelReporter {
	return &ChannelReporter{
		ctx:     ctx,
		logger:  logger,
		channel: channel,
	}
}

// Report reports the behaviour of a peer to the network.
func (cr *ChannelReporter) Report(behaviour PeerBehaviour) error {
	switch reason := behaviour.reason.(type) {
	case validSyncResponse:
		cr.logger.Debug("peer behaved", "peer", behaviour.peerID, "reason", reason.explanation)
		return nil

	case badMessage:
		return cr.sendError(behaviour.peerID, reason.explanation)

	case invalidSyncResponse:
		return cr.sendError(behaviour.peerID, reason.explanation)

	default:
		return errors.New("unknown reason reported")
	}
}

func (cr *ChannelReporter) sendError(peerID types.NodeID, explanation string) error {
	cr.logger.Info("reporting peer", "peer", peerID, "reason", explanation)
	return cr.channel.SendError(cr.ctx, p2p.PeerError{
		NodeID: peerID,
		Err:    errors.New(explanation),
	})
}

// MockReporter is a concrete implementation of the Reporter
// interface used in reactor tests to ensure reactors report the correct
// behaviour in manufactured scenarios.
type MockReporter struct {
	mtx sync.RWMutex
	pb  map[types.NodeID][]PeerBehaviour
}

// NewMockReporter returns a Reporter which records all reported
// behaviours in memory.
func NewMockReporter() *MockReporter {
	return &MockReporter{
		pb: map[types.NodeID][]PeerBehaviour{},
	}
}

// Report stores the PeerBehaviour produced by the peer identified by peerID.
func (mpbr *MockReporter) Report(behaviour PeerBehaviour) error {
	mpbr.mtx.Lock()
	defer mpbr.mtx.Unlock()
	mpbr.pb[behaviour.peerID] = append(mpbr.pb[behaviour.peerID], behaviour)

	return nil
}

// GetBehaviours returns all behaviours reported on the peer identified by peerID.
func (mpbr *MockReporter) GetBehaviours(peerID types.NodeID) []PeerBehaviour {
	mpbr.mtx.RLock()
	defer mpbr.mtx.RUnlock()
	if items, ok := mpbr.pb[peerID]; ok {
		result := make([]PeerBehaviour, len(items))
		copy(result, items)

		return result
	}

	return []PeerBehaviour{}
}
