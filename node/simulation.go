package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/creachadair/taskgroup"
	"golang.org/x/sync/errgroup"

	"github.com/ledgersync/ledgersync/config"
	"github.com/ledgersync/ledgersync/crypto"
	"github.com/ledgersync/ledgersync/crypto/ed25519"
	"github.com/ledgersync/ledgersync/internal/ledger"
	"github.com/ledgersync/ledgersync/internal/ledgersync"
	"github.com/ledgersync/ledgersync/internal/p2p"
	"github.com/ledgersync/ledgersync/libs/log"
	"github.com/ledgersync/ledgersync/types"
)

const (
	simulationGenesisSeed = "ledgersync-simulation"
	validatorVotingPower  = 10
)

// SimulationConfig describes an in-process network where a leader holds a
// ledger the other nodes have to sync.
type SimulationConfig struct {
	// Number of nodes, the leader included.
	Nodes int
	// Number of nodes that serve tampered batches. They hold the leader's
	// ledger when the simulation starts.
	Faulty int
	// Number of validators signing each epoch.
	Validators int

	// Batches committed by the leader before the simulation starts.
	InitialBatches int
	// Batches committed by the leader while the simulation runs, one every
	// ProduceInterval.
	LiveBatches     int
	ProduceInterval time.Duration
	// Transactions per batch.
	BatchSize int
	// Batches per epoch. Each epoch is signed by a fresh validator set.
	EpochLength int

	// How often sync progress is logged.
	ReportInterval time.Duration
}

// DefaultSimulationConfig returns a small network with one faulty node.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		Nodes:           4,
		Faulty:          1,
		Validators:      4,
		InitialBatches:  200,
		LiveBatches:     50,
		ProduceInterval: 100 * time.Millisecond,
		BatchSize:       20,
		EpochLength:     50,
		ReportInterval:  time.Second,
	}
}

// ValidateBasic performs basic validation.
func (cfg SimulationConfig) ValidateBasic() error {
	switch {
	case cfg.Nodes < 2:
		return errors.New("nodes must be at least 2")
	case cfg.Faulty < 0:
		return errors.New("faulty can't be negative")
	case cfg.Faulty > cfg.Nodes-2:
		return errors.New("at least one honest node besides the leader is needed")
	case cfg.Validators <= 0:
		return errors.New("validators must be positive")
	case cfg.InitialBatches < 0 || cfg.LiveBatches < 0:
		return errors.New("batch counts can't be negative")
	case cfg.LiveBatches > 0 && cfg.ProduceInterval <= 0:
		return errors.New("produce interval must be positive")
	case cfg.BatchSize <= 0:
		return errors.New("batch size must be positive")
	case cfg.EpochLength <= 0:
		return errors.New("epoch length must be positive")
	case cfg.ReportInterval <= 0:
		return errors.New("report interval must be positive")
	}
	return nil
}

// NodeStatus is the position of a node's ledger.
type NodeStatus struct {
	ID           types.NodeID
	Faulty       bool
	StateVersion uint64
	Epoch        uint64
}

// SimulationResult is returned once every node caught up with the leader.
type SimulationResult struct {
	Elapsed time.Duration
	Tip     *types.LedgerProof
	Nodes   []NodeStatus
}

// Simulation runs the ledger sync protocol between in-process nodes.
type Simulation struct {
	logger log.Logger
	cfg    *config.Config
	simCfg SimulationConfig

	network  *p2p.MemoryNetwork
	leader   *Node
	nodes    []*Node
	faulty   map[types.NodeID]bool
	producer *ledger.Producer
	produced int
}

// NewSimulation builds the network, commits the leader's initial ledger and
// copies it to the faulty nodes. newMetrics returns the metrics of a node;
// nil disables them.
func NewSimulation(
	ctx context.Context,
	cfg *config.Config,
	simCfg SimulationConfig,
	logger log.Logger,
	newMetrics func(id types.NodeID) *ledgersync.Metrics,
) (*Simulation, error) {
	if err := simCfg.ValidateBasic(); err != nil {
		return nil, err
	}

	network, err := p2p.NewMemoryNetwork(logger.With("module", "p2p"), ledgersync.GetChannelDescriptor(cfg.P2P))
	if err != nil {
		return nil, err
	}

	privKeys := genPrivKeys(simCfg.Validators)
	vals, err := ledger.ValidatorSetFor(privKeys, validatorVotingPower)
	if err != nil {
		return nil, err
	}
	genesis, err := ledger.NewGenesis([]byte(simulationGenesisSeed), vals, privKeys)
	if err != nil {
		return nil, err
	}

	s := &Simulation{
		logger:  logger,
		cfg:     cfg,
		simCfg:  simCfg,
		network: network,
		faulty:  make(map[types.NodeID]bool),
	}

	for i := 0; i < simCfg.Nodes; i++ {
		nodeKey := types.GenNodeKey()
		isFaulty := i >= simCfg.Nodes-simCfg.Faulty

		opts := []Option{WithDBProvider(MemDBProvider)}
		if newMetrics != nil {
			opts = append(opts, WithMetrics(newMetrics(nodeKey.ID)))
		}
		if isFaulty {
			opts = append(opts, WithLedgerReader(NewTamperingReader))
			s.faulty[nodeKey.ID] = true
		}

		n, err := New(ctx, cfg, logger.With("node", nodeKey.ID.ShortString()), nodeKey, genesis, network, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating node %d: %w", i, err)
		}
		s.nodes = append(s.nodes, n)
	}

	s.leader = s.nodes[0]
	s.producer = ledger.NewProducer(s.leader.Committer(), privKeys)

	var initial []*types.TxnsAndProof
	for i := 0; i < simCfg.InitialBatches; i++ {
		batch, err := s.produce()
		if err != nil {
			return nil, err
		}
		initial = append(initial, batch)
	}

	// Faulty nodes serve a full ledger, so honest nodes pick them as
	// candidates.
	g := taskgroup.New(nil)
	for _, n := range s.nodes {
		if !s.faulty[n.ID()] {
			continue
		}
		n := n
		g.Go(func() error {
			for _, batch := range initial {
				if err := n.Committer().Commit(batch); err != nil {
					return fmt.Errorf("seeding faulty node %s: %w", n.ID(), err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s, nil
}

func genPrivKeys(n int) []crypto.PrivKey {
	privKeys := make([]crypto.PrivKey, n)
	for i := range privKeys {
		privKeys[i] = ed25519.GenPrivKey()
	}
	return privKeys
}

// produce commits the next batch on the leader, closing the epoch every
// EpochLength batches.
func (s *Simulation) produce() (*types.TxnsAndProof, error) {
	txns := make(types.Txns, s.simCfg.BatchSize)
	for i := range txns {
		txns[i] = types.Txn(fmt.Sprintf("sim-txn-%d-%d", s.produced, i))
	}
	s.produced++

	if s.produced%s.simCfg.EpochLength == 0 {
		return s.producer.ProduceEpochEnd(txns, genPrivKeys(s.simCfg.Validators), validatorVotingPower)
	}
	return s.producer.Produce(txns)
}

// Leader returns the node every other node syncs from.
func (s *Simulation) Leader() *Node { return s.leader }

// Nodes returns every node of the simulation, the leader first.
func (s *Simulation) Nodes() []*Node { return s.nodes }

// Run starts the nodes, connects them and waits until every node holds the
// leader's ledger after the live batches were produced. The nodes are
// stopped before Run returns.
func (s *Simulation) Run(ctx context.Context) (*SimulationResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	for _, n := range s.nodes {
		if err := n.Start(ctx); err != nil {
			return nil, err
		}
	}
	defer s.stop()

	if err := s.network.ConnectAll(ctx); err != nil {
		return nil, err
	}

	produced := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	if s.cfg.Instrumentation.Prometheus {
		g.Go(func() error {
			return StartPrometheusServer(gctx, s.cfg.Instrumentation, s.logger)
		})
	}
	g.Go(func() error {
		defer close(produced)
		return s.produceLive(gctx)
	})

	var result *SimulationResult
	g.Go(func() error {
		defer cancel()
		tip, err := s.waitForSync(gctx, produced)
		if err != nil {
			return err
		}
		result = &SimulationResult{Elapsed: time.Since(start), Tip: tip, Nodes: s.Status()}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ctx.Err()
	}
	return result, nil
}

func (s *Simulation) produceLive(ctx context.Context) error {
	if s.simCfg.LiveBatches == 0 {
		return nil
	}

	ticker := time.NewTicker(s.simCfg.ProduceInterval)
	defer ticker.Stop()

	for i := 0; i < s.simCfg.LiveBatches; i++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.produce(); err != nil {
				return fmt.Errorf("producing batch: %w", err)
			}
		}
	}
	return nil
}

// waitForSync returns the leader's tip once production is over and every
// node holds it.
func (s *Simulation) waitForSync(ctx context.Context, produced <-chan struct{}) (*types.LedgerProof, error) {
	report := time.NewTicker(s.simCfg.ReportInterval)
	defer report.Stop()
	poll := time.NewTicker(20 * time.Millisecond)
	defer poll.Stop()

	done := false
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-produced:
			done = true
			produced = nil

		case <-report.C:
			s.logProgress()

		case <-poll.C:
			if !done {
				continue
			}
			tip := s.leader.LastProof()
			if s.allAt(tip) {
				s.logger.Info("all nodes synced", "version", tip.StateVersion(), "epoch", tip.Epoch())
				return tip, nil
			}
		}
	}
}

func (s *Simulation) allAt(tip *types.LedgerProof) bool {
	for _, n := range s.nodes {
		if !n.LastProof().SameHeader(tip) {
			return false
		}
	}
	return true
}

func (s *Simulation) logProgress() {
	tip := s.leader.LastProof()
	for _, status := range s.Status() {
		s.logger.Info("sync progress",
			"node", status.ID.ShortString(),
			"faulty", status.Faulty,
			"version", status.StateVersion,
			"behind", tip.StateVersion()-status.StateVersion)
	}
}

// Status returns the ledger position of every node.
func (s *Simulation) Status() []NodeStatus {
	statuses := make([]NodeStatus, len(s.nodes))
	for i, n := range s.nodes {
		last := n.LastProof()
		statuses[i] = NodeStatus{
			ID:           n.ID(),
			Faulty:       s.faulty[n.ID()],
			StateVersion: last.StateVersion(),
			Epoch:        last.Epoch(),
		}
	}
	return statuses
}

func (s *Simulation) stop() {
	g := taskgroup.New(nil)
	for _, n := range s.nodes {
		n := n
		g.Go(func() error {
			if !n.IsRunning() {
				return nil
			}
			return n.Stop()
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("failed to stop node", "err", err)
	}
}

// TamperingReader serves batches with their first transaction altered, so
// they fail the accumulator check of honest peers.
type TamperingReader struct {
	ledgersync.LedgerReader
}

// NewTamperingReader wraps reader in a TamperingReader.
func NewTamperingReader(reader ledgersync.LedgerReader) ledgersync.LedgerReader {
	return TamperingReader{LedgerReader: reader}
}

func (r TamperingReader) GetNextCommittedBatch(start *types.LedgerProof, maxCount int) (*types.TxnsAndProof, error) {
	batch, err := r.LedgerReader.GetNextCommittedBatch(start, maxCount)
	if err != nil || batch == nil || len(batch.Txns) == 0 {
		return batch, err
	}

	txns := append(types.Txns{}, batch.Txns...)
	txns[0] = append(types.Txn("tampered/"), txns[0]...)
	return &types.TxnsAndProof{Txns: txns, Head: batch.Head, Tail: batch.Tail}, nil
}
