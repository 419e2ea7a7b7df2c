package config

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	assert := assert.New(t)

	// set up some defaults
	cfg := DefaultConfig()
	assert.NotNil(cfg.P2P)
	assert.NotNil(cfg.LedgerSync)
	assert.NotNil(cfg.Instrumentation)

	// check the root dir stuff...
	cfg.SetRoot("/foo")
	cfg.NodeKey = "node/key.json"
	cfg.DBPath = "/opt/data"

	assert.Equal("/foo/node/key.json", cfg.NodeKeyFile())
	assert.Equal("/opt/data", cfg.DBDir())
	assert.Equal("/foo", cfg.P2P.RootDir)
}

func TestConfigValidateBasic(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.ValidateBasic())

	// tamper with sync request timeout
	cfg.LedgerSync.SyncRequestTimeout = -10 * time.Second
	assert.Error(t, cfg.ValidateBasic())

	cfg = TestConfig()
	assert.NoError(t, cfg.ValidateBasic())

	cfg.LogFormat = "xml"
	assert.Error(t, cfg.ValidateBasic())

	cfg = TestConfig()
	cfg.DBBackend = "cleveldb"
	assert.Error(t, cfg.ValidateBasic())
}

func TestLedgerSyncConfigValidateBasic(t *testing.T) {
	assert.NoError(t, DefaultLedgerSyncConfig().ValidateBasic())
	assert.NoError(t, TestLedgerSyncConfig().ValidateBasic())

	fieldsToTest := []string{
		"SyncCheckInterval",
		"SyncCheckMaxPeers",
		"SyncCheckReceiveStatusTimeout",
		"SyncRequestTimeout",
		"SyncLedgerUpdateTimeout",
		"ResponseBatchSize",
		"ResponseCacheSize",
		"LedgerStatusUpdateMaxPeersToNotify",
		"MaxLedgerUpdatesRate",
	}

	for _, fieldName := range fieldsToTest {
		t.Run(fieldName, func(t *testing.T) {
			cfg := TestLedgerSyncConfig()
			field := reflect.ValueOf(cfg).Elem().FieldByName(fieldName)
			require.True(t, field.IsValid())

			switch field.Kind() {
			case reflect.Float64:
				field.SetFloat(-1)
			default:
				field.SetInt(-1)
			}
			assert.Error(t, cfg.ValidateBasic())
		})
	}
}

func TestP2PConfigValidateBasic(t *testing.T) {
	cfg := TestP2PConfig()
	assert.NoError(t, cfg.ValidateBasic())

	cfg.RecvBufferCapacity = 0
	assert.Error(t, cfg.ValidateBasic())
}

func TestInstrumentationConfigValidateBasic(t *testing.T) {
	cfg := TestInstrumentationConfig()
	assert.NoError(t, cfg.ValidateBasic())

	// tamper with maximum open connections
	cfg.MaxOpenConnections = -1
	assert.Error(t, cfg.ValidateBasic())
}

func TestDefaultDBProvider(t *testing.T) {
	cfg := TestConfig().SetRoot(t.TempDir())

	db, err := DefaultDBProvider(&DBContext{ID: "ledger", Config: cfg})
	require.NoError(t, err)
	require.NoError(t, db.Set([]byte("k"), []byte("v")))
	require.NoError(t, db.Close())

	cfg.DBBackend = "goleveldb"
	db, err = DefaultDBProvider(&DBContext{ID: "ledger", Config: cfg})
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.DirExists(t, filepath.Join(cfg.DBDir(), "ledger.db"))

	cfg.DBBackend = "rocksdb"
	_, err = DefaultDBProvider(&DBContext{ID: "ledger", Config: cfg})
	require.Error(t, err)
}
