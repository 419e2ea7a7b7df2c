package ledgersync

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/ledgersync/ledgersync/behaviour"
	"github.com/ledgersync/ledgersync/config"
	"github.com/ledgersync/ledgersync/libs/log"
	"github.com/ledgersync/ledgersync/types"
)

//go:generate mockery --case underscore --name PeersView
//go:generate mockery --case underscore --name VerifiedSyncResponseHandler

// PeersView is the directory of peers the driver may sync from.
type PeersView interface {
	Peers() []types.NodeID
	IsConnected(peer types.NodeID) bool
}

// VerifiedSyncResponseHandler receives the batches that passed verification.
// It must not block; the resulting LedgerUpdate is fed back to the driver.
type VerifiedSyncResponseHandler interface {
	HandleVerifiedSyncResponse(peer types.NodeID, batch *types.TxnsAndProof)
}

// VerifiedSyncResponseHandlerFunc adapts a function to a
// VerifiedSyncResponseHandler.
type VerifiedSyncResponseHandlerFunc func(peer types.NodeID, batch *types.TxnsAndProof)

func (f VerifiedSyncResponseHandlerFunc) HandleVerifiedSyncResponse(peer types.NodeID, batch *types.TxnsAndProof) {
	f(peer, batch)
}

// stateBox lets atomic.Value hold the SyncState interface across the three
// concrete state types.
type stateBox struct {
	state SyncState
}

// LocalSyncService drives the local node towards the ledger of its peers.
//
// It is not safe for concurrent use: Handle and HandleRemote must be called
// from a single goroutine. SyncState may be called from any goroutine.
type LocalSyncService struct {
	logger   log.Logger
	cfg      *config.LedgerSyncConfig
	outbox   Outbox
	peers    PeersView
	verifier *Verifier
	verified VerifiedSyncResponseHandler
	reporter behaviour.Reporter
	metrics  *Metrics
	rng      *rand.Rand

	state     atomic.Value // stateBox
	requestID uint64
	round     uint64
}

// LocalSyncServiceOption sets an optional parameter on the LocalSyncService.
type LocalSyncServiceOption func(*LocalSyncService)

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) LocalSyncServiceOption {
	return func(s *LocalSyncService) { s.metrics = metrics }
}

// WithRandSource sets the source used to pick peers for sync checks.
func WithRandSource(src rand.Source) LocalSyncServiceOption {
	return func(s *LocalSyncService) { s.rng = rand.New(src) } // nolint:gosec
}

// NewLocalSyncService returns an idle LocalSyncService at currentHeader.
func NewLocalSyncService(
	logger log.Logger,
	cfg *config.LedgerSyncConfig,
	currentHeader *types.LedgerProof,
	outbox Outbox,
	peers PeersView,
	verifier *Verifier,
	verified VerifiedSyncResponseHandler,
	reporter behaviour.Reporter,
	options ...LocalSyncServiceOption,
) *LocalSyncService {
	s := &LocalSyncService{
		logger:   logger,
		cfg:      cfg,
		outbox:   outbox,
		peers:    peers,
		verifier: verifier,
		verified: verified,
		reporter: reporter,
		metrics:  NopMetrics(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())), // nolint:gosec
	}
	for _, option := range options {
		option(s)
	}

	s.setState(NewIdleState(currentHeader))
	s.metrics.CurrentStateVersion.Set(float64(currentHeader.StateVersion()))
	return s
}

// SyncState returns the current state.
func (s *LocalSyncService) SyncState() SyncState {
	return s.state.Load().(stateBox).state
}

func (s *LocalSyncService) setState(state SyncState) {
	s.state.Store(stateBox{state: state})
}

// Handle processes a local event: a trigger, a timeout, a LocalSyncRequest or
// a types.LedgerUpdate. Events that do not apply to the current state are
// ignored.
func (s *LocalSyncService) Handle(event Event) {
	current := s.SyncState()
	next := s.handle(current, event)
	s.transition(current, next, event)
}

// HandleRemote processes a message received from peer.
func (s *LocalSyncService) HandleRemote(peer types.NodeID, msg Event) {
	current := s.SyncState()
	next := s.handleRemote(current, peer, msg)
	s.transition(current, next, msg)
}

func (s *LocalSyncService) transition(current, next SyncState, event Event) {
	if next.CurrentHeader().Compare(current.CurrentHeader()) < 0 {
		panic(fmt.Sprintf("current header went backwards handling %T in %v: %v -> %v",
			event, current, current.CurrentHeader(), next.CurrentHeader()))
	}
	if current != next {
		s.logger.Debug("sync state changed", "event", fmt.Sprintf("%T", event), "from", current, "to", next)
	}
	s.setState(next)
}

func (s *LocalSyncService) handle(state SyncState, event Event) SyncState {
	switch event := event.(type) {
	case SyncCheckTrigger:
		if state, ok := state.(*IdleState); ok {
			return s.initSyncCheck(state)
		}

	case SyncCheckReceiveStatusTimeout:
		if state, ok := state.(*SyncCheckState); ok && state.Round() == event.Round {
			return s.processSyncCheckReceiveStatusTimeout(state)
		}

	case SyncRequestTimeout:
		if state, ok := state.(*SyncingState); ok {
			return s.processSyncRequestTimeout(state, event)
		}

	case SyncLedgerUpdateTimeout:
		if state, ok := state.(*SyncingState); ok {
			return s.processSyncLedgerUpdateTimeout(state, event)
		}

	case types.LedgerUpdate:
		return s.processLedgerUpdate(state, event)

	case LocalSyncRequest:
		return s.processLocalSyncRequest(state, event)

	default:
		panic(fmt.Sprintf("unknown event %T in %v", event, state))
	}

	return state
}

func (s *LocalSyncService) handleRemote(state SyncState, peer types.NodeID, msg Event) SyncState {
	switch msg := msg.(type) {
	case StatusResponse:
		if state, ok := state.(*SyncCheckState); ok {
			return s.processStatusResponse(state, peer, msg)
		}

	case SyncResponse:
		if state, ok := state.(*SyncingState); ok {
			return s.processSyncResponse(state, peer, msg)
		}
		s.logger.Debug("unexpected sync response", "peer", peer, "state", state)

	case LedgerStatusUpdate:
		return s.processLedgerStatusUpdate(state, peer, msg)

	default:
		panic(fmt.Sprintf("unknown remote message %T from %v in %v", msg, peer, state))
	}

	return state
}

//-----------------------------------------------------------------------------
// sync check

func (s *LocalSyncService) initSyncCheck(state *IdleState) SyncState {
	peers := s.choosePeersForSyncCheck()
	s.round++

	s.logger.Debug("starting sync check", "round", s.round, "peers", len(peers))
	s.metrics.SyncChecks.Add(1)

	for _, peer := range peers {
		s.outbox.Dispatch(Envelope{To: peer, Message: StatusRequest{}})
	}
	s.outbox.Dispatch(Envelope{
		Delay:   s.cfg.SyncCheckReceiveStatusTimeout,
		Message: SyncCheckReceiveStatusTimeout{Round: s.round},
	})

	return NewSyncCheckState(state.CurrentHeader(), s.round, peers)
}

func (s *LocalSyncService) choosePeersForSyncCheck() []types.NodeID {
	peers := s.peers.Peers()
	s.rng.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })
	if len(peers) > s.cfg.SyncCheckMaxPeers {
		peers = peers[:s.cfg.SyncCheckMaxPeers]
	}
	return peers
}

func (s *LocalSyncService) processStatusResponse(state *SyncCheckState, peer types.NodeID, resp StatusResponse) SyncState {
	if !state.HasAskedPeer(peer) {
		s.logger.Debug("status response from a peer not asked", "peer", peer)
		return state
	}
	if state.ReceivedResponseFrom(peer) {
		return state
	}

	state = state.WithStatusResponse(peer, resp.Header)
	if state.GotAllResponses() {
		return s.startSyncIfBehind(state)
	}
	return state
}

func (s *LocalSyncService) processSyncCheckReceiveStatusTimeout(state *SyncCheckState) SyncState {
	if len(state.Responses()) == 0 {
		s.logger.Debug("no status responses received", "round", state.Round())
		return s.goToIdle(state)
	}
	return s.startSyncIfBehind(state)
}

// startSyncIfBehind starts syncing from every peer that reported the highest
// header, if that header is ahead of the local ledger.
func (s *LocalSyncService) startSyncIfBehind(state *SyncCheckState) SyncState {
	responses := state.Responses()

	var maxHeader *types.LedgerProof
	for _, header := range responses {
		if maxHeader == nil || header.Compare(maxHeader) > 0 {
			maxHeader = header
		}
	}
	if maxHeader == nil || !maxHeader.IsNewerThan(state.CurrentHeader()) {
		return s.goToIdle(state)
	}

	candidates := make([]types.NodeID, 0, len(responses))
	for peer, header := range responses {
		if header.Compare(maxHeader) == 0 {
			candidates = append(candidates, peer)
		}
	}

	return s.startSync(state, candidates, maxHeader)
}

//-----------------------------------------------------------------------------
// syncing

func (s *LocalSyncService) goToIdle(state SyncState) SyncState {
	return NewIdleState(state.CurrentHeader())
}

func (s *LocalSyncService) startSync(state SyncState, candidates []types.NodeID, target *types.LedgerProof) SyncState {
	s.logger.Info("syncing", "target", target.StateVersion(), "current", state.CurrentHeader().StateVersion(),
		"candidates", len(candidates))
	return s.processSync(NewSyncingState(state.CurrentHeader(), candidates, target))
}

func (s *LocalSyncService) processSync(state *SyncingState) SyncState {
	s.updateTargetMetrics(state)

	if state.IsFullySynced() {
		s.logger.Info("fully synced", "version", state.CurrentHeader().StateVersion())
		return s.goToIdle(state)
	}

	if state.WaitingForResponse() {
		return state
	}

	peer, state, ok := state.FetchNextCandidatePeer(s.peers.IsConnected)
	if !ok {
		s.logger.Debug("no connected candidate peer, starting a new sync check")
		return s.initSyncCheck(NewIdleState(state.CurrentHeader()))
	}

	return s.sendSyncRequest(state, peer)
}

func (s *LocalSyncService) sendSyncRequest(state *SyncingState, peer types.NodeID) SyncState {
	s.requestID++
	current := state.CurrentHeader()

	s.logger.Debug("sending sync request", "peer", peer, "request", s.requestID, "from", current.StateVersion())
	s.metrics.SyncRequestsSent.Add(1)

	s.outbox.Dispatch(Envelope{To: peer, Message: SyncRequest{Header: current}})
	s.outbox.Dispatch(Envelope{
		Delay:   s.cfg.SyncRequestTimeout,
		Message: SyncRequestTimeout{Peer: peer, RequestID: s.requestID, Header: current},
	})

	return state.WithPendingRequest(&PendingRequest{
		Peer:      peer,
		RequestID: s.requestID,
		Header:    current,
	})
}

func (s *LocalSyncService) processSyncResponse(state *SyncingState, peer types.NodeID, resp SyncResponse) SyncState {
	if !state.WaitingForResponseFrom(peer) {
		s.logger.Debug("unexpected sync response", "peer", peer, "state", state)
		return state
	}

	batch := resp.TxnsAndProof
	requested := state.PendingRequest().Header
	if !batch.Head.Accumulator().Equal(requested.Accumulator()) {
		s.logger.Debug("sync response does not start at the requested header", "peer", peer,
			"head", batch.Head.StateVersion(), "requested", requested.StateVersion())
		return state
	}
	if !batch.Head.SameHeader(requested) {
		return s.rejectSyncResponse(state, peer,
			fmt.Errorf("head %v differs from the requested header %v", batch.Head, requested))
	}

	if len(batch.Txns) == 0 {
		s.logger.Debug("empty sync response", "peer", peer)
		s.metrics.EmptyResponses.Add(1)
		return s.processSync(state.ClearPendingRequest().RemoveCandidate(peer))
	}

	if err := s.verifier.Verify(batch); err != nil {
		return s.rejectSyncResponse(state, peer, err)
	}

	s.metrics.VerifiedResponses.Add(1)
	if rerr := s.reporter.Report(behaviour.ValidSyncResponse(peer,
		fmt.Sprintf("%d txns up to version %d", len(batch.Txns), batch.Tail.StateVersion()))); rerr != nil {
		s.logger.Error("failed to report peer", "peer", peer, "err", rerr)
	}

	s.outbox.Dispatch(Envelope{
		Delay:   s.cfg.SyncLedgerUpdateTimeout,
		Message: SyncLedgerUpdateTimeout{StateVersion: state.CurrentHeader().StateVersion()},
	})
	s.verified.HandleVerifiedSyncResponse(peer, batch)

	return state.ClearPendingRequest()
}

func (s *LocalSyncService) rejectSyncResponse(state *SyncingState, peer types.NodeID, err error) SyncState {
	s.logger.Info("invalid sync response", "peer", peer, "err", err)
	s.metrics.InvalidResponses.Add(1)
	if rerr := s.reporter.Report(behaviour.InvalidSyncResponse(peer, err.Error())); rerr != nil {
		s.logger.Error("failed to report peer", "peer", peer, "err", rerr)
	}
	return s.processSync(state.ClearPendingRequest().RemoveCandidate(peer))
}

func (s *LocalSyncService) processSyncRequestTimeout(state *SyncingState, timeout SyncRequestTimeout) SyncState {
	if !state.PendingRequest().Matches(timeout) {
		return state
	}

	s.logger.Debug("sync request timed out", "peer", timeout.Peer, "request", timeout.RequestID)
	s.metrics.TimedOutRequests.Add(1)

	return s.processSync(state.ClearPendingRequest().RemoveCandidate(timeout.Peer))
}

func (s *LocalSyncService) processSyncLedgerUpdateTimeout(state *SyncingState, timeout SyncLedgerUpdateTimeout) SyncState {
	if state.CurrentHeader().StateVersion() == timeout.StateVersion {
		s.logger.Debug("verified batch not committed in time", "version", timeout.StateVersion)
	}
	return s.processSync(state)
}

func (s *LocalSyncService) processLedgerUpdate(state SyncState, update types.LedgerUpdate) SyncState {
	if update.Tail.IsNewerThan(state.CurrentHeader()) {
		if next := update.NextValidatorSet(); next != nil {
			s.logger.Info("switching validator set", "epoch", update.Tail.Epoch()+1, "validators", next.Size())
			s.verifier.SetValidatorSet(next)
		}
		state = state.WithCurrentHeader(update.Tail)
		s.metrics.CurrentStateVersion.Set(float64(update.Tail.StateVersion()))
	}

	syncing, ok := state.(*SyncingState)
	if !ok {
		return state
	}

	// The pending request was sent from an older header. Its response would
	// be dropped as stale, so stop waiting for it.
	if pending := syncing.PendingRequest(); pending != nil && !pending.Header.SameHeader(syncing.CurrentHeader()) {
		syncing = syncing.ClearPendingRequest()
	}

	return s.processSync(syncing)
}

func (s *LocalSyncService) processLocalSyncRequest(state SyncState, req LocalSyncRequest) SyncState {
	if req.Target == nil {
		return state
	}

	switch state := state.(type) {
	case *IdleState, *SyncCheckState:
		return s.startSync(state, req.TargetNodes, req.Target)

	case *SyncingState:
		return s.updateSyncingTarget(state, req.Target, req.TargetNodes)

	default:
		panic(fmt.Sprintf("unknown sync state %T", state))
	}
}

func (s *LocalSyncService) processLedgerStatusUpdate(state SyncState, peer types.NodeID, update LedgerStatusUpdate) SyncState {
	switch state := state.(type) {
	case *IdleState:
		if !update.Header.IsNewerThan(state.CurrentHeader()) {
			return state
		}
		return s.startSync(state, []types.NodeID{peer}, update.Header)

	case *SyncingState:
		return s.updateSyncingTarget(state, update.Header, []types.NodeID{peer})

	case *SyncCheckState:
		return state

	default:
		panic(fmt.Sprintf("unknown sync state %T", state))
	}
}

// updateSyncingTarget raises the target and queues the peers that reported
// it. A target that is not ahead of the current one is ignored.
func (s *LocalSyncService) updateSyncingTarget(state *SyncingState, target *types.LedgerProof, peers []types.NodeID) SyncState {
	if !target.IsNewerThan(state.TargetHeader()) {
		s.logger.Debug("already targeting a newer header", "target", state.TargetHeader().StateVersion())
		return state
	}

	state = state.WithTargetHeader(target).WithCandidatePeers(peers)
	s.updateTargetMetrics(state)
	return state
}

func (s *LocalSyncService) updateTargetMetrics(state *SyncingState) {
	target, current := state.TargetHeader().StateVersion(), state.CurrentHeader().StateVersion()
	s.metrics.TargetStateVersion.Set(float64(target))
	if target > current {
		s.metrics.TargetCurrentDiff.Set(float64(target - current))
	} else {
		s.metrics.TargetCurrentDiff.Set(0)
	}
}
