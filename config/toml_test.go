package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ensureFiles(t *testing.T, rootDir string, files ...string) {
	for _, f := range files {
		p := rootify(f, rootDir)
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
}

func TestEnsureRoot(t *testing.T) {
	// setup temp dir for test
	tmpDir := t.TempDir()

	// create root dir
	require.NoError(t, EnsureRoot(tmpDir))

	// make sure config is set properly
	data, err := os.ReadFile(filepath.Join(tmpDir, defaultConfigFilePath))
	require.NoError(t, err)

	checkConfig(t, string(data))

	ensureFiles(t, tmpDir, "data")
}

func TestEnsureTestRoot(t *testing.T) {
	testName := "ensureTestRoot"

	// create root dir
	cfg, err := ResetTestRoot(t.TempDir(), testName)
	require.NoError(t, err)
	rootDir := cfg.RootDir

	// make sure config is set properly
	data, err := os.ReadFile(filepath.Join(rootDir, defaultConfigFilePath))
	require.NoError(t, err)

	checkConfig(t, string(data))

	ensureFiles(t, rootDir, defaultDataDir, defaultConfigFilePath)
	assert.Equal(t, "memdb", cfg.DBBackend)
}

func checkConfig(t *testing.T, configFile string) {
	t.Helper()
	// list of words we expect in the config
	var elems = []string{
		"moniker",
		"db-backend",
		"log-level",
		"p2p",
		"ledger-sync",
		"sync-check-interval",
		"response-batch-size",
		"max-ledger-updates-rate",
		"instrumentation",
		"prometheus",
	}
	for _, e := range elems {
		if !strings.Contains(configFile, e) {
			t.Errorf("config file was expected to contain %s but did not", e)
		}
	}
}

// TestConfigTemplateIsValidTOML parses the rendered template with an
// independent TOML decoder.
func TestConfigTemplateIsValidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := DefaultConfig()
	cfg.LedgerSync.ResponseBatchSize = 77
	require.NoError(t, cfg.WriteToTemplate(path))

	var raw map[string]interface{}
	_, err := toml.DecodeFile(path, &raw)
	require.NoError(t, err)

	section, ok := raw["ledger-sync"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 77, section["response-batch-size"])
	assert.Equal(t, "5s", section["sync-check-interval"])
	assert.EqualValues(t, 50.0, section["max-ledger-updates-rate"])
}

// TestConfigTemplateRoundTrip renders a config and reads it back through
// viper, the way the CLI loads it.
func TestConfigTemplateRoundTrip(t *testing.T) {
	rootDir := t.TempDir()
	require.NoError(t, EnsureRoot(rootDir))

	cfg := TestConfig().SetRoot(rootDir)
	cfg.LedgerSync.SyncCheckMaxPeers = 3
	cfg.Instrumentation.Prometheus = true
	require.NoError(t, WriteConfigFile(rootDir, cfg))

	v := viper.New()
	v.SetConfigFile(filepath.Join(rootDir, defaultConfigFilePath))
	require.NoError(t, v.ReadInConfig())

	loaded := DefaultConfig()
	require.NoError(t, v.Unmarshal(loaded))
	loaded.SetRoot(rootDir)

	assert.Equal(t, cfg.BaseConfig, loaded.BaseConfig)
	assert.Equal(t, cfg.P2P, loaded.P2P)
	assert.Equal(t, cfg.LedgerSync, loaded.LedgerSync)
	assert.Equal(t, cfg.Instrumentation, loaded.Instrumentation)
	require.NoError(t, loaded.ValidateBasic())
}
