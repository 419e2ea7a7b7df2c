package ledgersync

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/Workiva/go-datastructures/queue"

	"github.com/ledgersync/ledgersync/behaviour"
	"github.com/ledgersync/ledgersync/config"
	"github.com/ledgersync/ledgersync/internal/p2p"
	"github.com/ledgersync/ledgersync/libs/log"
	"github.com/ledgersync/ledgersync/libs/service"
	syncproto "github.com/ledgersync/ledgersync/proto/ledgersync/sync"
	"github.com/ledgersync/ledgersync/types"
)

const (
	// LedgerSyncChannel carries every ledger sync message.
	LedgerSyncChannel = p2p.ChannelID(0x70)

	// number of events kept to explain an invariant violation
	historySize = 25

	// verified batches waiting to be committed
	applyBufferSize = 16
)

// GetChannelDescriptor returns the descriptor of the ledger sync channel.
func GetChannelDescriptor(cfg *config.P2PConfig) *p2p.ChannelDescriptor {
	return &p2p.ChannelDescriptor{
		ID:                 LedgerSyncChannel,
		Name:               "ledgersync",
		MessageType:        new(syncproto.Message),
		RecvBufferCapacity: cfg.RecvBufferCapacity,
	}
}

// LedgerWriter is the ledger the reactor commits verified batches to.
type LedgerWriter interface {
	// Subscribe registers fn to be called with every LedgerUpdate. fn must
	// not block.
	Subscribe(fn func(types.LedgerUpdate))
	Commit(batch *types.TxnsAndProof) error
}

// remoteEvent is a decoded message from a peer, queued for the driver.
type remoteEvent struct {
	peer types.NodeID
	msg  Event
}

// Reactor runs ledger sync over a p2p channel. A single goroutine owns the
// LocalSyncService and feeds it peer responses, timeouts and ledger updates
// in the order they are queued. Requests from peers are answered by the
// RemoteSyncService on the receiving goroutine.
type Reactor struct {
	service.BaseService
	logger log.Logger

	cfg         *config.LedgerSyncConfig
	channel     *p2p.Channel
	peerUpdates *p2p.PeerUpdates
	peers       *p2p.PeerSet
	ledger      LedgerWriter
	reporter    behaviour.Reporter
	metrics     *Metrics

	local  *LocalSyncService
	remote *RemoteSyncService

	events   *queue.Queue // inbound to the driver
	outbound *queue.Queue // Envelopes to peers
	applyCh  chan *types.TxnsAndProof
	history  []Event
}

// NewReactor returns a reactor syncing the ledger read through reader and
// written through ledger. The channel and the reporter are bound to ctx.
func NewReactor(
	ctx context.Context,
	logger log.Logger,
	cfg *config.LedgerSyncConfig,
	channel *p2p.Channel,
	peerUpdates *p2p.PeerUpdates,
	reader LedgerReader,
	ledger LedgerWriter,
	metrics *Metrics,
) (*Reactor, error) {
	r := &Reactor{
		logger:      logger,
		cfg:         cfg,
		channel:     channel,
		peerUpdates: peerUpdates,
		peers:       p2p.NewPeerSet(),
		ledger:      ledger,
		reporter:    behaviour.NewChannelReporter(ctx, logger, channel),
		metrics:     metrics,
		events:      queue.New(64),
		outbound:    queue.New(64),
		applyCh:     make(chan *types.TxnsAndProof, applyBufferSize),
		history:     make([]Event, 0, historySize),
	}

	// Subscribe before reading the tip so no commit is missed. Updates that
	// are not newer than the tip are ignored by both services.
	ledger.Subscribe(func(update types.LedgerUpdate) {
		r.enqueue(update)
	})

	tip, err := reader.GetLastProof()
	if err != nil {
		return nil, fmt.Errorf("loading last proof: %w", err)
	}
	if tip == nil {
		return nil, errors.New("ledger has no genesis")
	}
	validators, err := ValidatorSetAfter(reader, tip)
	if err != nil {
		return nil, err
	}

	outbox := reactorOutbox{r}
	r.local = NewLocalSyncService(
		logger,
		cfg,
		tip,
		outbox,
		r.peers,
		NewVerifier(validators),
		VerifiedSyncResponseHandlerFunc(r.applyVerified),
		r.reporter,
		WithMetrics(metrics),
	)
	r.remote, err = NewRemoteSyncService(logger, cfg, reader, outbox, r.peers, r.local.SyncState, metrics)
	if err != nil {
		return nil, err
	}

	r.BaseService = *service.NewBaseService(logger, "LedgerSync", r)
	return r, nil
}

// OnStart starts the event loop, the channel and peer update listeners and
// the committing goroutine. The first sync check is triggered right away.
func (r *Reactor) OnStart(ctx context.Context) error {
	go r.processEvents()
	go r.processOutbound(ctx)
	go r.processChannel(ctx)
	go r.processPeerUpdates(ctx)
	go r.applyRoutine(ctx)
	go r.syncCheckRoutine(ctx)

	r.enqueue(SyncCheckTrigger{})
	return nil
}

// OnStop disposes of the queues, which ends the event loop and the outbound
// sender. The other goroutines end with the start context.
func (r *Reactor) OnStop() {
	r.events.Dispose()
	r.outbound.Dispose()
}

// SyncState returns the state of the local sync driver.
func (r *Reactor) SyncState() SyncState {
	return r.local.SyncState()
}

// CurrentHeader returns the header advertised to peers.
func (r *Reactor) CurrentHeader() *types.LedgerProof {
	return r.remote.CurrentHeader()
}

// RequestSync asks the driver to sync to target from the given peers.
func (r *Reactor) RequestSync(target *types.LedgerProof, peers []types.NodeID) {
	r.enqueue(LocalSyncRequest{Target: target, TargetNodes: peers})
}

func (r *Reactor) enqueue(event Event) {
	if err := r.events.Put(event); err != nil && !errors.Is(err, queue.ErrDisposed) {
		r.logger.Error("failed to queue event", "event", fmt.Sprintf("%T", event), "err", err)
	}
}

// processEvents hands queued events to the driver one at a time. On an
// invariant violation it panics with the most recent events.
func (r *Reactor) processEvents() {
	defer func() {
		if e := recover(); e != nil {
			var b strings.Builder
			for i, j := len(r.history)-1, 0; i >= 0; i, j = i-1, j+1 {
				fmt.Fprintf(&b, "%d: %T %+v\n", j, r.history[i], r.history[i])
			}
			panic(fmt.Sprintf("%v\nlast events:\n%v", e, b.String()))
		}
	}()

	for {
		items, err := r.events.Get(1)
		if err != nil {
			if !errors.Is(err, queue.ErrDisposed) {
				r.logger.Error("event queue failed", "err", err)
			}
			return
		}

		event := items[0]
		r.history = append(r.history, event)
		if len(r.history) > historySize {
			r.history = r.history[1:]
		}

		switch event := event.(type) {
		case remoteEvent:
			r.local.HandleRemote(event.peer, event.msg)

		case types.LedgerUpdate:
			r.remote.ProcessLedgerUpdate(event)
			r.local.Handle(event)

		default:
			r.local.Handle(event)
		}
	}
}

// processOutbound encodes and sends envelopes queued by the services.
func (r *Reactor) processOutbound(ctx context.Context) {
	for {
		items, err := r.outbound.Get(1)
		if err != nil {
			return
		}

		envelope := items[0].(Envelope)
		msg, err := EncodeMessage(envelope.Message)
		if err != nil {
			r.logger.Error("failed to encode message", "envelope", envelope, "err", err)
			continue
		}

		if err := r.channel.Send(ctx, p2p.Envelope{To: envelope.To, Message: msg}); err != nil {
			return
		}
	}
}

// processChannel handles messages received from peers. A message that cannot
// be decoded gets the sender reported.
func (r *Reactor) processChannel(ctx context.Context) {
	iter := r.channel.Receive(ctx)
	for iter.Next(ctx) {
		envelope := iter.Envelope()
		if err := r.handleMessage(envelope); err != nil {
			r.logger.Error("failed to process message", "ch_id", r.channel.ID, "peer", envelope.From, "err", err)
			if rerr := r.reporter.Report(behaviour.BadMessage(envelope.From, err.Error())); rerr != nil {
				return
			}
		}
	}
}

func (r *Reactor) handleMessage(envelope *p2p.Envelope) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("panic in processing message: %v", e)
			r.logger.Error(
				"recovering from processing message panic",
				"err", err,
				"stack", string(debug.Stack()),
			)
		}
	}()

	r.logger.Debug("received message", "message", envelope.Message, "peer", envelope.From)

	msg, err := DecodeMessage(envelope.Message)
	if err != nil {
		return err
	}

	switch msg.(type) {
	case StatusRequest, SyncRequest:
		return r.remote.HandleRemote(envelope.From, msg)

	case StatusResponse, SyncResponse, LedgerStatusUpdate:
		r.enqueue(remoteEvent{peer: envelope.From, msg: msg})
		return nil

	default:
		return fmt.Errorf("unexpected message: %T", msg)
	}
}

func (r *Reactor) processPeerUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-r.peerUpdates.Updates():
			r.logger.Debug("received peer update", "peer", update.NodeID, "status", update.Status)
			r.peers.Apply(update)
		}
	}
}

// syncCheckRoutine triggers a sync check every SyncCheckInterval. The driver
// ignores triggers unless it is idle.
func (r *Reactor) syncCheckRoutine(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SyncCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.enqueue(SyncCheckTrigger{})
		}
	}
}

// applyVerified is called by the driver with a verified batch. A batch that
// does not fit in the buffer is dropped; the driver requests it again when
// its SyncLedgerUpdateTimeout fires.
func (r *Reactor) applyVerified(peer types.NodeID, batch *types.TxnsAndProof) {
	select {
	case r.applyCh <- batch:
	default:
		r.logger.Info("dropping verified batch, commit queue full", "peer", peer, "tail", batch.Tail.StateVersion())
	}
}

func (r *Reactor) applyRoutine(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-r.applyCh:
			if err := r.ledger.Commit(batch); err != nil {
				r.logger.Error("failed to commit synced batch", "tail", batch.Tail.StateVersion(), "err", err)
			}
		}
	}
}

// reactorOutbox sends remote envelopes through the outbound queue and
// delivers local ones back to the event loop once their delay has passed.
type reactorOutbox struct {
	r *Reactor
}

func (o reactorOutbox) Dispatch(envelope Envelope) {
	if !envelope.IsLocal() {
		if err := o.r.outbound.Put(envelope); err != nil && !errors.Is(err, queue.ErrDisposed) {
			o.r.logger.Error("failed to queue envelope", "envelope", envelope, "err", err)
		}
		return
	}

	if envelope.Delay <= 0 {
		o.r.enqueue(envelope.Message)
		return
	}
	time.AfterFunc(envelope.Delay, func() {
		o.r.enqueue(envelope.Message)
	})
}
