package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// LogFormatPlain is a format for colored text
	LogFormatPlain = "plain"
	// LogFormatJSON is a format for json output
	LogFormatJSON = "json"

	// DefaultLogLevel defines a default log level as INFO.
	DefaultLogLevel = "info"
)

// NOTE: Most of the structs & relevant comments + the
// default configuration options were used to manually
// generate the config.toml. Please reflect any changes
// made here in the defaultConfigTemplate constant in
// config/toml.go
// NOTE: libs/cli must know to look in the config dir!
var (
	DefaultLedgerSyncDir = ".ledgersync"
	defaultConfigDir     = "config"
	defaultDataDir       = "data"

	defaultConfigFileName = "config.toml"
	defaultNodeKeyName    = "node_key.json"

	defaultConfigFilePath = filepath.Join(defaultConfigDir, defaultConfigFileName)
	defaultNodeKeyPath    = filepath.Join(defaultConfigDir, defaultNodeKeyName)
)

// Config defines the top level configuration for a ledger sync node
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	// Options for services
	P2P             *P2PConfig             `mapstructure:"p2p"`
	LedgerSync      *LedgerSyncConfig      `mapstructure:"ledger-sync"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// DefaultConfig returns a default configuration for a ledger sync node
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		P2P:             DefaultP2PConfig(),
		LedgerSync:      DefaultLedgerSyncConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		P2P:             TestP2PConfig(),
		LedgerSync:      TestLedgerSyncConfig(),
		Instrumentation: TestInstrumentationConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	cfg.P2P.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.P2P.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [p2p] section: %w", err)
	}
	if err := cfg.LedgerSync.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [ledger-sync] section: %w", err)
	}
	if err := cfg.Instrumentation.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [instrumentation] section: %w", err)
	}
	return nil
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration for a ledger sync node
type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home"`

	// A custom human readable name for this node
	Moniker string `mapstructure:"moniker"`

	// Database backend: goleveldb | memdb
	// * goleveldb (github.com/syndtr/goleveldb - most popular implementation)
	//   - pure go
	//   - stable
	// * memdb
	//   - in memory, nothing survives a restart
	DBBackend string `mapstructure:"db-backend"`

	// Database directory
	DBPath string `mapstructure:"db-dir"`

	// Output level for logging
	LogLevel string `mapstructure:"log-level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log-format"`

	// A JSON file containing the private key that identifies the node
	NodeKey string `mapstructure:"node-key-file"`
}

// DefaultBaseConfig returns a default base configuration for a ledger sync node
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		NodeKey:   defaultNodeKeyPath,
		Moniker:   defaultMoniker,
		LogLevel:  DefaultLogLevel,
		LogFormat: LogFormatPlain,
		DBBackend: "goleveldb",
		DBPath:    defaultDataDir,
	}
}

// TestBaseConfig returns a base configuration for testing a ledger sync node
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.DBBackend = "memdb"
	return cfg
}

// NodeKeyFile returns the full path to the node_key.json file
func (cfg BaseConfig) NodeKeyFile() string {
	return rootify(cfg.NodeKey, cfg.RootDir)
}

// DBDir returns the full path to the database directory
func (cfg BaseConfig) DBDir() string {
	return rootify(cfg.DBPath, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case LogFormatPlain, LogFormatJSON:
	default:
		return errors.New("unknown log format (must be 'plain' or 'json')")
	}
	switch cfg.DBBackend {
	case "goleveldb", "memdb":
	default:
		return fmt.Errorf("unsupported db backend %q (must be 'goleveldb' or 'memdb')", cfg.DBBackend)
	}
	return nil
}

//-----------------------------------------------------------------------------
// P2PConfig

// P2PConfig defines the configuration options for the peer-to-peer networking layer
type P2PConfig struct { //nolint: maligned
	RootDir string `mapstructure:"home"`

	// Maximum number of inbound messages buffered per channel. Messages
	// arriving while the buffer is full are dropped.
	RecvBufferCapacity int `mapstructure:"recv-buffer-capacity"`
}

// DefaultP2PConfig returns a default configuration for the peer-to-peer layer
func DefaultP2PConfig() *P2PConfig {
	return &P2PConfig{
		RecvBufferCapacity: 128,
	}
}

// TestP2PConfig returns a configuration for testing the peer-to-peer layer
func TestP2PConfig() *P2PConfig {
	cfg := DefaultP2PConfig()
	cfg.RecvBufferCapacity = 32
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *P2PConfig) ValidateBasic() error {
	if cfg.RecvBufferCapacity <= 0 {
		return errors.New("recv-buffer-capacity must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// LedgerSyncConfig

// LedgerSyncConfig defines the configuration for the ledger sync service.
type LedgerSyncConfig struct {
	// How often an idle node asks its peers for their ledger status.
	SyncCheckInterval time.Duration `mapstructure:"sync-check-interval"`

	// Maximum number of peers asked for their status in one sync check.
	SyncCheckMaxPeers int `mapstructure:"sync-check-max-peers"`

	// How long a sync check waits for status responses.
	SyncCheckReceiveStatusTimeout time.Duration `mapstructure:"sync-check-receive-status-timeout"`

	// How long to wait for a sync response before trying another peer.
	SyncRequestTimeout time.Duration `mapstructure:"sync-request-timeout"`

	// How long to wait for a verified batch to be committed before
	// requesting again.
	SyncLedgerUpdateTimeout time.Duration `mapstructure:"sync-ledger-update-timeout"`

	// Maximum number of transactions served in one sync response.
	ResponseBatchSize int `mapstructure:"response-batch-size"`

	// Number of served batches kept in memory.
	ResponseCacheSize int `mapstructure:"response-cache-size"`

	// Maximum number of random peers told about each local ledger update.
	LedgerStatusUpdateMaxPeersToNotify int `mapstructure:"ledger-status-update-max-peers-to-notify"`

	// Maximum number of ledger status updates sent per second.
	MaxLedgerUpdatesRate float64 `mapstructure:"max-ledger-updates-rate"`
}

// DefaultLedgerSyncConfig returns a default configuration for the ledger
// sync service.
func DefaultLedgerSyncConfig() *LedgerSyncConfig {
	return &LedgerSyncConfig{
		SyncCheckInterval:                  5 * time.Second,
		SyncCheckMaxPeers:                  10,
		SyncCheckReceiveStatusTimeout:      5 * time.Second,
		SyncRequestTimeout:                 5 * time.Second,
		SyncLedgerUpdateTimeout:            time.Second,
		ResponseBatchSize:                  50,
		ResponseCacheSize:                  128,
		LedgerStatusUpdateMaxPeersToNotify: 10,
		MaxLedgerUpdatesRate:               50,
	}
}

// TestLedgerSyncConfig returns a default configuration for testing the ledger
// sync service.
func TestLedgerSyncConfig() *LedgerSyncConfig {
	cfg := DefaultLedgerSyncConfig()
	cfg.SyncCheckInterval = 100 * time.Millisecond
	cfg.SyncCheckReceiveStatusTimeout = 200 * time.Millisecond
	cfg.SyncRequestTimeout = 200 * time.Millisecond
	cfg.SyncLedgerUpdateTimeout = 100 * time.Millisecond
	cfg.ResponseBatchSize = 10
	cfg.ResponseCacheSize = 16
	return cfg
}

// ValidateBasic performs basic validation.
func (cfg *LedgerSyncConfig) ValidateBasic() error {
	switch {
	case cfg.SyncCheckInterval <= 0:
		return errors.New("sync-check-interval must be positive")
	case cfg.SyncCheckMaxPeers <= 0:
		return errors.New("sync-check-max-peers must be positive")
	case cfg.SyncCheckReceiveStatusTimeout <= 0:
		return errors.New("sync-check-receive-status-timeout must be positive")
	case cfg.SyncRequestTimeout <= 0:
		return errors.New("sync-request-timeout must be positive")
	case cfg.SyncLedgerUpdateTimeout <= 0:
		return errors.New("sync-ledger-update-timeout must be positive")
	case cfg.ResponseBatchSize <= 0:
		return errors.New("response-batch-size must be positive")
	case cfg.ResponseCacheSize < 0:
		return errors.New("response-cache-size can't be negative")
	case cfg.LedgerStatusUpdateMaxPeersToNotify < 0:
		return errors.New("ledger-status-update-max-peers-to-notify can't be negative")
	case cfg.MaxLedgerUpdatesRate <= 0:
		return errors.New("max-ledger-updates-rate must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics on
	// PrometheusListenAddr.
	// Check out the documentation for the list of available metrics.
	Prometheus bool `mapstructure:"prometheus"`

	// Address to listen for Prometheus collector(s) connections.
	PrometheusListenAddr string `mapstructure:"prometheus-listen-addr"`

	// Maximum number of simultaneous connections.
	// If you want to accept a larger number than the default, make sure
	// you increase your OS limits.
	// 0 - unlimited.
	MaxOpenConnections int `mapstructure:"max-open-connections"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:           false,
		PrometheusListenAddr: ":26660",
		MaxOpenConnections:   3,
		Namespace:            "ledgersync",
	}
}

// TestInstrumentationConfig returns a default configuration for metrics
// reporting.
func TestInstrumentationConfig() *InstrumentationConfig {
	return DefaultInstrumentationConfig()
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *InstrumentationConfig) ValidateBasic() error {
	if cfg.MaxOpenConnections < 0 {
		return errors.New("max-open-connections can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

//-----------------------------------------------------------------------------
// Moniker

var defaultMoniker = getDefaultMoniker()

// getDefaultMoniker returns a default moniker, which is the host name. If runtime
// fails to get the host name, "anonymous" will be returned.
func getDefaultMoniker() string {
	moniker, err := os.Hostname()
	if err != nil {
		moniker = "anonymous"
	}
	return moniker
}
