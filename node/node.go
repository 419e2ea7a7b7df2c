package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dbm "github.com/tendermint/tm-db"

	"github.com/ledgersync/ledgersync/config"
	"github.com/ledgersync/ledgersync/internal/ledger"
	"github.com/ledgersync/ledgersync/internal/ledgersync"
	"github.com/ledgersync/ledgersync/internal/p2p"
	"github.com/ledgersync/ledgersync/internal/store"
	"github.com/ledgersync/ledgersync/libs/log"
	"github.com/ledgersync/ledgersync/libs/service"
	"github.com/ledgersync/ledgersync/types"
)

// Node is a ledger store, the committer appending to it and the ledger sync
// reactor keeping it up to date with the network.
type Node struct {
	service.BaseService
	logger log.Logger

	config  *config.Config
	nodeKey types.NodeKey

	db        dbm.DB
	store     *store.LedgerStore
	committer *ledger.Committer
	reactor   *ledgersync.Reactor
}

// Option sets an optional parameter on the Node.
type Option func(*options)

type options struct {
	dbProvider config.DBProvider
	metrics    *ledgersync.Metrics
	readerWrap func(ledgersync.LedgerReader) ledgersync.LedgerReader
}

// WithDBProvider overrides the database built from the config.
func WithDBProvider(dbProvider config.DBProvider) Option {
	return func(o *options) { o.dbProvider = dbProvider }
}

// WithMetrics sets the ledger sync metrics.
func WithMetrics(metrics *ledgersync.Metrics) Option {
	return func(o *options) { o.metrics = metrics }
}

// WithLedgerReader wraps the ledger reader the node serves peers from.
func WithLedgerReader(wrap func(ledgersync.LedgerReader) ledgersync.LedgerReader) Option {
	return func(o *options) { o.readerWrap = wrap }
}

// MemDBProvider returns a fresh in-memory database.
func MemDBProvider(*config.DBContext) (dbm.DB, error) {
	return dbm.NewMemDB(), nil
}

// New opens the ledger of the node, initializing it with genesis when it is
// empty, and attaches the node to network. The node's channel and reporter
// live until ctx ends.
func New(
	ctx context.Context,
	cfg *config.Config,
	logger log.Logger,
	nodeKey types.NodeKey,
	genesis *types.LedgerProof,
	network *p2p.MemoryNetwork,
	opts ...Option,
) (*Node, error) {
	o := options{
		dbProvider: config.DefaultDBProvider,
		metrics:    ledgersync.NopMetrics(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := o.dbProvider(&config.DBContext{ID: "ledger", Config: cfg})
	if err != nil {
		return nil, fmt.Errorf("opening ledger db: %w", err)
	}

	n, err := makeNode(ctx, cfg, logger, nodeKey, genesis, network, db, o)
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			logger.Error("failed to close ledger db", "err", cerr)
		}
		return nil, err
	}
	return n, nil
}

func makeNode(
	ctx context.Context,
	cfg *config.Config,
	logger log.Logger,
	nodeKey types.NodeKey,
	genesis *types.LedgerProof,
	network *p2p.MemoryNetwork,
	db dbm.DB,
	o options,
) (*Node, error) {
	ledgerStore := store.NewLedgerStore(db)
	if err := ledgerStore.SaveGenesis(genesis); err != nil {
		return nil, fmt.Errorf("initializing ledger: %w", err)
	}

	committer, err := ledger.NewCommitter(logger.With("module", "ledger"), ledgerStore)
	if err != nil {
		return nil, err
	}

	channel, peerUpdates, err := network.AddNode(ctx, nodeKey.ID)
	if err != nil {
		return nil, err
	}

	var reader ledgersync.LedgerReader = ledgerStore
	if o.readerWrap != nil {
		reader = o.readerWrap(reader)
	}

	reactor, err := ledgersync.NewReactor(
		ctx,
		logger.With("module", "ledgersync"),
		cfg.LedgerSync,
		channel,
		peerUpdates,
		reader,
		committer,
		o.metrics,
	)
	if err != nil {
		return nil, err
	}

	n := &Node{
		logger:    logger,
		config:    cfg,
		nodeKey:   nodeKey,
		db:        db,
		store:     ledgerStore,
		committer: committer,
		reactor:   reactor,
	}
	n.BaseService = *service.NewBaseService(logger, "Node", n)
	return n, nil
}

// OnStart starts the ledger sync reactor.
func (n *Node) OnStart(ctx context.Context) error {
	last := n.committer.LastProof()
	n.logger.Info("starting node",
		"id", n.nodeKey.ID,
		"moniker", n.config.Moniker,
		"version", last.StateVersion(),
		"epoch", last.Epoch())

	return n.reactor.Start(ctx)
}

// OnStop stops the reactor and closes the ledger database.
func (n *Node) OnStop() {
	if n.reactor.IsRunning() {
		if err := n.reactor.Stop(); err != nil && !errors.Is(err, service.ErrAlreadyStopped) {
			n.logger.Error("failed to stop ledger sync reactor", "err", err)
		}
	}
	if err := n.db.Close(); err != nil {
		n.logger.Error("failed to close ledger db", "err", err)
	}
}

// ID returns the node's id on the network.
func (n *Node) ID() types.NodeID { return n.nodeKey.ID }

// Committer returns the committer appending to the node's ledger.
func (n *Node) Committer() *ledger.Committer { return n.committer }

// Store returns the node's ledger store.
func (n *Node) Store() *store.LedgerStore { return n.store }

// Reactor returns the ledger sync reactor.
func (n *Node) Reactor() *ledgersync.Reactor { return n.reactor }

// LastProof returns the tip of the node's ledger.
func (n *Node) LastProof() *types.LedgerProof { return n.committer.LastProof() }

// StartPrometheusServer serves the metrics of the default Prometheus
// registry under /metrics until ctx ends.
func StartPrometheusServer(ctx context.Context, cfg *config.InstrumentationConfig, logger log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer, promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{MaxRequestsInFlight: cfg.MaxOpenConnections},
		),
	))
	srv := &http.Server{
		Addr:              cfg.PrometheusListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("prometheus server starting", "address", cfg.PrometheusListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return err
		}
		logger.Info("prometheus server stopped")
		return nil

	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("prometheus server: %w", err)
	}
}
