package ledgersync

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/ledgersync/ledgersync/types"
)

// SyncState is the state of LocalSyncService. It is one of *IdleState,
// *SyncCheckState or *SyncingState. States are immutable: every With* method
// returns a modified copy.
type SyncState interface {
	// CurrentHeader is the latest header committed by the local ledger.
	CurrentHeader() *types.LedgerProof
	// WithCurrentHeader returns a copy of the state at header.
	WithCurrentHeader(header *types.LedgerProof) SyncState

	String() string
	zerolog.LogObjectMarshaler

	isSyncState()
}

//-----------------------------------------------------------------------------

// IdleState waits for the next sync check.
type IdleState struct {
	currentHeader *types.LedgerProof
}

var _ SyncState = (*IdleState)(nil)

func NewIdleState(currentHeader *types.LedgerProof) *IdleState {
	return &IdleState{currentHeader: currentHeader}
}

func (s *IdleState) CurrentHeader() *types.LedgerProof { return s.currentHeader }

func (s *IdleState) WithCurrentHeader(header *types.LedgerProof) SyncState {
	return NewIdleState(header)
}

func (s *IdleState) String() string {
	return fmt.Sprintf("Idle{current:%d}", s.currentHeader.StateVersion())
}

// MarshalZerologObject formats this state for logging purposes
func (s *IdleState) MarshalZerologObject(e *zerolog.Event) {
	e.Str("state", "idle")
	e.Uint64("current", s.currentHeader.StateVersion())
}

func (*IdleState) isSyncState() {}

//-----------------------------------------------------------------------------

// SyncCheckState collects status responses from the peers asked in one sync
// check round.
type SyncCheckState struct {
	currentHeader *types.LedgerProof
	round         uint64
	peersAsked    map[types.NodeID]struct{}
	responses     map[types.NodeID]*types.LedgerProof
}

var _ SyncState = (*SyncCheckState)(nil)

func NewSyncCheckState(currentHeader *types.LedgerProof, round uint64, peersAsked []types.NodeID) *SyncCheckState {
	asked := make(map[types.NodeID]struct{}, len(peersAsked))
	for _, peer := range peersAsked {
		asked[peer] = struct{}{}
	}
	return &SyncCheckState{
		currentHeader: currentHeader,
		round:         round,
		peersAsked:    asked,
		responses:     make(map[types.NodeID]*types.LedgerProof),
	}
}

func (s *SyncCheckState) CurrentHeader() *types.LedgerProof { return s.currentHeader }

// Round identifies the sync check. Receive timeouts of other rounds are
// ignored.
func (s *SyncCheckState) Round() uint64 { return s.round }

// PeersAsked returns the peers asked for their status, sorted.
func (s *SyncCheckState) PeersAsked() []types.NodeID {
	peers := make([]types.NodeID, 0, len(s.peersAsked))
	for peer := range s.peersAsked {
		peers = append(peers, peer)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

// Responses returns a copy of the headers received so far, by peer.
func (s *SyncCheckState) Responses() map[types.NodeID]*types.LedgerProof {
	responses := make(map[types.NodeID]*types.LedgerProof, len(s.responses))
	for peer, header := range s.responses {
		responses[peer] = header
	}
	return responses
}

func (s *SyncCheckState) HasAskedPeer(peer types.NodeID) bool {
	_, ok := s.peersAsked[peer]
	return ok
}

func (s *SyncCheckState) ReceivedResponseFrom(peer types.NodeID) bool {
	_, ok := s.responses[peer]
	return ok
}

func (s *SyncCheckState) GotAllResponses() bool {
	return len(s.responses) == len(s.peersAsked)
}

// WithStatusResponse returns a copy of the state with peer's header recorded.
func (s *SyncCheckState) WithStatusResponse(peer types.NodeID, header *types.LedgerProof) *SyncCheckState {
	c := s.copy()
	c.responses[peer] = header
	return c
}

func (s *SyncCheckState) WithCurrentHeader(header *types.LedgerProof) SyncState {
	c := s.copy()
	c.currentHeader = header
	return c
}

func (s *SyncCheckState) copy() *SyncCheckState {
	c := &SyncCheckState{
		currentHeader: s.currentHeader,
		round:         s.round,
		peersAsked:    s.peersAsked, // never modified after construction
		responses:     make(map[types.NodeID]*types.LedgerProof, len(s.responses)+1),
	}
	for peer, header := range s.responses {
		c.responses[peer] = header
	}
	return c
}

func (s *SyncCheckState) String() string {
	return fmt.Sprintf("SyncCheck{current:%d round:%d responses:%d/%d}",
		s.currentHeader.StateVersion(), s.round, len(s.responses), len(s.peersAsked))
}

// MarshalZerologObject formats this state for logging purposes
func (s *SyncCheckState) MarshalZerologObject(e *zerolog.Event) {
	e.Str("state", "sync_check")
	e.Uint64("current", s.currentHeader.StateVersion())
	e.Uint64("round", s.round)
	e.Int("responses", len(s.responses))
	e.Int("peers_asked", len(s.peersAsked))
}

func (*SyncCheckState) isSyncState() {}

//-----------------------------------------------------------------------------

// PendingRequest is the sync request the driver is waiting on.
type PendingRequest struct {
	Peer      types.NodeID
	RequestID uint64
	// Header is the local header the batch was requested after.
	Header *types.LedgerProof
}

// Matches reports whether a timeout belongs to this request.
func (r *PendingRequest) Matches(timeout SyncRequestTimeout) bool {
	return r != nil &&
		r.Peer == timeout.Peer &&
		r.RequestID == timeout.RequestID &&
		r.Header.SameHeader(timeout.Header)
}

// SyncingState pulls batches from candidate peers until the local ledger
// reaches the target header.
type SyncingState struct {
	currentHeader  *types.LedgerProof
	targetHeader   *types.LedgerProof
	candidatePeers []types.NodeID
	pendingRequest *PendingRequest
}

var _ SyncState = (*SyncingState)(nil)

func NewSyncingState(currentHeader *types.LedgerProof, candidatePeers []types.NodeID, targetHeader *types.LedgerProof) *SyncingState {
	s := &SyncingState{
		currentHeader: currentHeader,
		targetHeader:  targetHeader,
	}
	s.candidatePeers = appendUnique(nil, candidatePeers)
	return s
}

func (s *SyncingState) CurrentHeader() *types.LedgerProof { return s.currentHeader }

func (s *SyncingState) TargetHeader() *types.LedgerProof { return s.targetHeader }

// CandidatePeers returns the candidate queue, next candidate first.
func (s *SyncingState) CandidatePeers() []types.NodeID {
	peers := make([]types.NodeID, len(s.candidatePeers))
	copy(peers, s.candidatePeers)
	return peers
}

// PendingRequest returns the outstanding request, or nil.
func (s *SyncingState) PendingRequest() *PendingRequest { return s.pendingRequest }

func (s *SyncingState) WaitingForResponse() bool { return s.pendingRequest != nil }

func (s *SyncingState) WaitingForResponseFrom(peer types.NodeID) bool {
	return s.pendingRequest != nil && s.pendingRequest.Peer == peer
}

// IsFullySynced reports whether the current header reached the target.
func (s *SyncingState) IsFullySynced() bool {
	return s.currentHeader.Compare(s.targetHeader) >= 0
}

// FetchNextCandidatePeer picks the first connected candidate and moves it to
// the back of the queue. It returns false if no candidate is connected.
func (s *SyncingState) FetchNextCandidatePeer(isConnected func(types.NodeID) bool) (types.NodeID, *SyncingState, bool) {
	for i, peer := range s.candidatePeers {
		if !isConnected(peer) {
			continue
		}
		c := s.copy()
		c.candidatePeers = make([]types.NodeID, 0, len(s.candidatePeers))
		c.candidatePeers = append(c.candidatePeers, s.candidatePeers[:i]...)
		c.candidatePeers = append(c.candidatePeers, s.candidatePeers[i+1:]...)
		c.candidatePeers = append(c.candidatePeers, peer)
		return peer, c, true
	}
	return "", s, false
}

func (s *SyncingState) WithPendingRequest(request *PendingRequest) *SyncingState {
	c := s.copy()
	c.pendingRequest = request
	return c
}

func (s *SyncingState) ClearPendingRequest() *SyncingState {
	return s.WithPendingRequest(nil)
}

func (s *SyncingState) RemoveCandidate(peer types.NodeID) *SyncingState {
	c := s.copy()
	c.candidatePeers = make([]types.NodeID, 0, len(s.candidatePeers))
	for _, p := range s.candidatePeers {
		if p != peer {
			c.candidatePeers = append(c.candidatePeers, p)
		}
	}
	return c
}

func (s *SyncingState) WithTargetHeader(header *types.LedgerProof) *SyncingState {
	c := s.copy()
	c.targetHeader = header
	return c
}

// WithCandidatePeers returns a copy with the peers not yet queued appended
// to the candidate queue.
func (s *SyncingState) WithCandidatePeers(peers []types.NodeID) *SyncingState {
	c := s.copy()
	c.candidatePeers = appendUnique(c.CandidatePeers(), peers)
	return c
}

func (s *SyncingState) WithCurrentHeader(header *types.LedgerProof) SyncState {
	c := s.copy()
	c.currentHeader = header
	return c
}

// copy is shallow; candidatePeers is never modified in place.
func (s *SyncingState) copy() *SyncingState {
	c := *s
	return &c
}

func (s *SyncingState) String() string {
	pending := "none"
	if s.pendingRequest != nil {
		pending = fmt.Sprintf("%s#%d", s.pendingRequest.Peer.ShortString(), s.pendingRequest.RequestID)
	}
	return fmt.Sprintf("Syncing{current:%d target:%d candidates:%d pending:%s}",
		s.currentHeader.StateVersion(), s.targetHeader.StateVersion(), len(s.candidatePeers), pending)
}

// MarshalZerologObject formats this state for logging purposes
func (s *SyncingState) MarshalZerologObject(e *zerolog.Event) {
	e.Str("state", "syncing")
	e.Uint64("current", s.currentHeader.StateVersion())
	e.Uint64("target", s.targetHeader.StateVersion())
	e.Int("candidates", len(s.candidatePeers))
	if s.pendingRequest != nil {
		e.Str("pending_peer", string(s.pendingRequest.Peer))
		e.Uint64("pending_request", s.pendingRequest.RequestID)
	}
}

func (*SyncingState) isSyncState() {}

func appendUnique(dst []types.NodeID, peers []types.NodeID) []types.NodeID {
	seen := make(map[types.NodeID]struct{}, len(dst)+len(peers))
	for _, peer := range dst {
		seen[peer] = struct{}{}
	}
	for _, peer := range peers {
		if _, ok := seen[peer]; ok {
			continue
		}
		seen[peer] = struct{}{}
		dst = append(dst, peer)
	}
	return dst
}
