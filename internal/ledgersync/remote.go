package ledgersync

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"

	"github.com/ledgersync/ledgersync/config"
	"github.com/ledgersync/ledgersync/libs/log"
	"github.com/ledgersync/ledgersync/types"
)

//go:generate mockery --case underscore --name LedgerReader

// LedgerReader gives read access to the committed ledger.
type LedgerReader interface {
	// GetNextCommittedBatch returns up to maxCount transactions following
	// start together with the proof of the last one. It returns nil when
	// nothing newer than start is committed.
	GetNextCommittedBatch(start *types.LedgerProof, maxCount int) (*types.TxnsAndProof, error)
	// GetEpochProof returns the proof that opened epoch, or nil.
	GetEpochProof(epoch uint64) (*types.LedgerProof, error)
	// GetLastProof returns the latest committed proof.
	GetLastProof() (*types.LedgerProof, error)
}

// RemoteSyncService answers status and sync requests from peers, and tells
// peers about local ledger updates.
//
// HandleRemote is safe for concurrent use. ProcessLedgerUpdate must be called
// from a single goroutine.
type RemoteSyncService struct {
	logger     log.Logger
	cfg        *config.LedgerSyncConfig
	reader     LedgerReader
	outbox     Outbox
	peers      PeersView
	localState func() SyncState
	metrics    *Metrics

	currentHeader atomic.Value // *types.LedgerProof
	cache         *lru.Cache
	limiter       *rate.Limiter

	mtx sync.Mutex
	rng *rand.Rand
}

// NewRemoteSyncService returns a RemoteSyncService advertising the last proof
// held by reader. localState reports the state of the local driver; no status
// updates are sent while it is syncing.
func NewRemoteSyncService(
	logger log.Logger,
	cfg *config.LedgerSyncConfig,
	reader LedgerReader,
	outbox Outbox,
	peers PeersView,
	localState func() SyncState,
	metrics *Metrics,
) (*RemoteSyncService, error) {
	header, err := reader.GetLastProof()
	if err != nil {
		return nil, fmt.Errorf("loading last proof: %w", err)
	}
	if header == nil {
		return nil, fmt.Errorf("ledger has no genesis")
	}

	cache, err := lru.New(cfg.ResponseCacheSize)
	if err != nil {
		return nil, err
	}

	burst := int(cfg.MaxLedgerUpdatesRate)
	if burst < 1 {
		burst = 1
	}

	s := &RemoteSyncService{
		logger:     logger,
		cfg:        cfg,
		reader:     reader,
		outbox:     outbox,
		peers:      peers,
		localState: localState,
		metrics:    metrics,
		cache:      cache,
		limiter:    rate.NewLimiter(rate.Limit(cfg.MaxLedgerUpdatesRate), burst),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())), // nolint:gosec
	}
	s.currentHeader.Store(header)

	return s, nil
}

// CurrentHeader returns the header advertised to peers.
func (s *RemoteSyncService) CurrentHeader() *types.LedgerProof {
	return s.currentHeader.Load().(*types.LedgerProof)
}

// HandleRemote answers a request from peer. Requests that cannot be served
// are dropped without a response; the requester times out and moves on.
func (s *RemoteSyncService) HandleRemote(peer types.NodeID, msg Event) error {
	switch msg := msg.(type) {
	case StatusRequest:
		s.metrics.StatusRequestsServed.Add(1)
		s.outbox.Dispatch(Envelope{To: peer, Message: StatusResponse{Header: s.CurrentHeader()}})

	case SyncRequest:
		batch := s.nextBatch(peer, msg.Header)
		if batch == nil {
			s.metrics.SyncRequestsDropped.Add(1)
			return nil
		}
		s.metrics.SyncRequestsServed.Add(1)
		s.outbox.Dispatch(Envelope{To: peer, Message: SyncResponse{TxnsAndProof: batch}})

	default:
		return fmt.Errorf("unexpected message %T", msg)
	}
	return nil
}

func (s *RemoteSyncService) nextBatch(peer types.NodeID, start *types.LedgerProof) *types.TxnsAndProof {
	key := cacheKey(start)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*types.TxnsAndProof)
	}

	batch, err := s.reader.GetNextCommittedBatch(start, s.cfg.ResponseBatchSize)
	if err != nil {
		s.logger.Debug("cannot serve sync request", "peer", peer, "from", start.StateVersion(), "err", err)
		return nil
	}
	if batch == nil {
		s.logger.Debug("nothing to serve", "peer", peer, "from", start.StateVersion())
		return nil
	}

	s.cache.Add(key, batch)
	return batch
}

// cacheKey identifies the whole header of start, so a request that only
// shares its accumulator with a served one is looked up in the ledger again.
func cacheKey(start *types.LedgerProof) string {
	h := start.Header
	return fmt.Sprintf("%d/%d/%X/%d/%X",
		h.Epoch, h.Accumulator.StateVersion, h.Accumulator.Hash, h.Timestamp, h.NextValidatorSet.Hash())
}

// ProcessLedgerUpdate advertises the new tail and pushes it to a random
// subset of peers, unless the local node is syncing.
func (s *RemoteSyncService) ProcessLedgerUpdate(update types.LedgerUpdate) {
	current := s.CurrentHeader()
	if !update.Tail.IsNewerThan(current) {
		return
	}

	if update.Tail.Epoch() != current.Epoch() {
		s.cache.Purge()
	}
	s.currentHeader.Store(update.Tail)

	if _, syncing := s.localState().(*SyncingState); syncing {
		return
	}
	if !s.limiter.Allow() {
		s.logger.Debug("ledger status update rate limited", "version", update.Tail.StateVersion())
		return
	}

	for _, peer := range s.choosePeersToNotify() {
		s.metrics.LedgerStatusUpdatesSent.Add(1)
		s.outbox.Dispatch(Envelope{To: peer, Message: LedgerStatusUpdate{Header: update.Tail}})
	}
}

func (s *RemoteSyncService) choosePeersToNotify() []types.NodeID {
	peers := s.peers.Peers()

	s.mtx.Lock()
	s.rng.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })
	s.mtx.Unlock()

	if len(peers) > s.cfg.LedgerStatusUpdateMaxPeersToNotify {
		peers = peers[:s.cfg.LedgerStatusUpdateMaxPeersToNotify]
	}
	return peers
}

// ValidatorSetAfter returns the validator set that signs the proofs
// following tip.
func ValidatorSetAfter(reader LedgerReader, tip *types.LedgerProof) (*types.ValidatorSet, error) {
	if tip.IsEndOfEpoch() {
		return tip.Header.NextValidatorSet, nil
	}

	epochProof, err := reader.GetEpochProof(tip.Epoch())
	if err != nil {
		return nil, err
	}
	if epochProof == nil {
		return nil, fmt.Errorf("missing epoch proof for epoch %d", tip.Epoch())
	}
	return epochProof.Header.NextValidatorSet, nil
}
