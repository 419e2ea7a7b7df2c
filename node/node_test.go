package node

import (
	"context"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/ledgersync/ledgersync/config"
	"github.com/ledgersync/ledgersync/internal/ledger"
	"github.com/ledgersync/ledgersync/internal/ledgersync"
	"github.com/ledgersync/ledgersync/internal/p2p"
	"github.com/ledgersync/ledgersync/internal/test/factory"
	"github.com/ledgersync/ledgersync/libs/log"
	"github.com/ledgersync/ledgersync/types"
)

func newTestNode(ctx context.Context, t *testing.T, network *p2p.MemoryNetwork, genesis *types.LedgerProof, opts ...Option) *Node {
	t.Helper()

	cfg, err := config.ResetTestRoot(t.TempDir(), t.Name())
	require.NoError(t, err)

	opts = append([]Option{WithDBProvider(MemDBProvider)}, opts...)
	n, err := New(ctx, cfg, log.TestingLogger(), types.GenNodeKey(), genesis, network, opts...)
	require.NoError(t, err)
	return n
}

func newTestNetwork(t *testing.T) *p2p.MemoryNetwork {
	t.Helper()

	network, err := p2p.NewMemoryNetwork(log.TestingLogger(), ledgersync.GetChannelDescriptor(config.TestP2PConfig()))
	require.NoError(t, err)
	return network
}

func TestNodeStartStop(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chain := factory.NewChain(t, 4)
	n := newTestNode(ctx, t, newTestNetwork(t), chain.Genesis())

	require.NoError(t, n.Start(ctx))
	require.True(t, n.IsRunning())
	require.True(t, n.Reactor().IsRunning())
	assert.True(t, n.LastProof().SameHeader(chain.Genesis()))

	require.NoError(t, n.Stop())
	require.False(t, n.IsRunning())
	require.False(t, n.Reactor().IsRunning())
}

func TestNodeStopsWithContext(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()
	ctx, cancel := context.WithCancel(context.Background())

	chain := factory.NewChain(t, 4)
	n := newTestNode(ctx, t, newTestNetwork(t), chain.Genesis())
	require.NoError(t, n.Start(ctx))

	cancel()
	select {
	case <-n.Quit():
	case <-time.After(5 * time.Second):
		t.Fatal("node did not stop")
	}
}

func TestNodeRejectsForeignGenesis(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chain := factory.NewChain(t, 4)
	other := factory.NewChain(t, 2)
	n := newTestNode(ctx, t, newTestNetwork(t), chain.Genesis())

	// the same database opened with another genesis
	_, err := New(ctx, config.TestConfig(), log.TestingLogger(), types.GenNodeKey(), other.Genesis(), newTestNetwork(t),
		WithDBProvider(func(*config.DBContext) (dbm.DB, error) { return n.db, nil }))
	require.Error(t, err)
}

func TestNodesSync(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chain := factory.NewChain(t, 4)
	network := newTestNetwork(t)
	leader := newTestNode(ctx, t, network, chain.Genesis())
	follower := newTestNode(ctx, t, network, chain.Genesis())

	producer := ledger.NewProducer(leader.Committer(), chain.PrivKeys)
	for i := 0; i < 10; i++ {
		_, err := producer.Produce(factory.Txns(i*4, 4))
		require.NoError(t, err)
	}

	require.NoError(t, leader.Start(ctx))
	require.NoError(t, follower.Start(ctx))
	require.NoError(t, network.ConnectAll(ctx))

	require.Eventually(t, func() bool {
		return follower.LastProof().SameHeader(leader.LastProof())
	}, 10*time.Second, 20*time.Millisecond)
}

func TestTamperingReader(t *testing.T) {
	chain := factory.NewChain(t, 4)
	batch := chain.Extend(3)

	reader := NewTamperingReader(staticReader{batch: batch})
	tampered, err := reader.GetNextCommittedBatch(chain.Genesis(), 10)
	require.NoError(t, err)

	assert.NotEqual(t, batch.Txns[0], tampered.Txns[0])
	assert.Equal(t, batch.Txns[1:], tampered.Txns[1:])
	assert.Equal(t, factory.Txns(0, 3), batch.Txns, "the served batch must not change")
	require.Error(t, ledgersync.NewVerifier(chain.Genesis().Header.NextValidatorSet).Verify(tampered))

	empty, err := NewTamperingReader(staticReader{}).GetNextCommittedBatch(chain.Genesis(), 10)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestStartPrometheusServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := config.TestInstrumentationConfig()
	cfg.PrometheusListenAddr = "127.0.0.1:0"

	errCh := make(chan error, 1)
	go func() { errCh <- StartPrometheusServer(ctx, cfg, log.TestingLogger()) }()

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("prometheus server did not stop")
	}
}

type staticReader struct {
	batch *types.TxnsAndProof
}

func (r staticReader) GetNextCommittedBatch(*types.LedgerProof, int) (*types.TxnsAndProof, error) {
	return r.batch, nil
}

func (r staticReader) GetEpochProof(uint64) (*types.LedgerProof, error) { return nil, nil }

func (r staticReader) GetLastProof() (*types.LedgerProof, error) { return nil, nil }
