package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersync/ledgersync/config"
	"github.com/ledgersync/ledgersync/libs/cli"
	"github.com/ledgersync/ledgersync/libs/log"
	tmos "github.com/ledgersync/ledgersync/libs/os"
	"github.com/ledgersync/ledgersync/types"
	"github.com/ledgersync/ledgersync/version"
)

// writeConfigVals writes a toml file with the given values.
// It returns an error if writing was impossible.
func writeConfigVals(dir string, vals map[string]string) error {
	data := ""
	for k, v := range vals {
		data += fmt.Sprintf("%s = \"%s\"\n", k, v)
	}
	cfile := filepath.Join(dir, "config.toml")
	return os.WriteFile(cfile, []byte(data), 0600)
}

// clearConfig clears env vars, the given root dir, and resets viper.
func clearConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	require.NoError(t, os.Unsetenv("LSHOME"))
	require.NoError(t, os.Unsetenv("LS_HOME"))
	require.NoError(t, os.RemoveAll(dir))

	viper.Reset()
	conf := config.DefaultConfig()
	conf.SetRoot(dir)

	return conf
}

// prepare new rootCmd
func testRootCmd(conf *config.Config) *cobra.Command {
	logger := log.NewNopLogger()
	cmd := RootCommand(conf, logger)
	cmd.AddCommand(
		MakeInitFilesCommand(conf, logger),
		MakeShowNodeIDCommand(conf),
		MakeSimulateCommand(conf, logger),
		VersionCmd,
	)
	var l string
	cmd.PersistentFlags().String("log", l, "Log")
	return cmd
}

func testSetup(ctx context.Context, t *testing.T, conf *config.Config, args []string, env map[string]string) error {
	t.Helper()

	cmd := testRootCmd(conf)
	viper.Set(cli.HomeFlag, conf.RootDir)

	// run with the args and env
	args = append([]string{cmd.Use}, args...)
	return RunWithArgs(ctx, cmd, args, env)
}

// testOutput runs the root command with args and returns what it printed.
func testOutput(ctx context.Context, t *testing.T, conf *config.Config, args ...string) string {
	t.Helper()

	var buf bytes.Buffer
	cmd := testRootCmd(conf)
	cmd.SetOut(&buf)
	viper.Set(cli.HomeFlag, conf.RootDir)

	require.NoError(t, RunWithArgs(ctx, cmd, append([]string{cmd.Use}, args...), nil))
	return buf.String()
}

func TestRootHome(t *testing.T) {
	defaultRoot := t.TempDir()
	newRoot := filepath.Join(defaultRoot, "something-else")
	cases := []struct {
		args []string
		env  map[string]string
		root string
	}{
		{nil, nil, defaultRoot},
		{[]string{"--home", newRoot}, nil, newRoot},
		{nil, map[string]string{"LSHOME": newRoot}, newRoot},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			conf := clearConfig(t, tc.root)

			err := testSetup(ctx, t, conf, tc.args, tc.env)
			require.NoError(t, err)

			require.Equal(t, tc.root, conf.RootDir)
			require.Equal(t, tc.root, conf.P2P.RootDir)
			require.FileExists(t, filepath.Join(tc.root, "config", "config.toml"))
		})
	}
}

func TestRootFlagsEnv(t *testing.T) {
	// defaults
	defaults := config.DefaultConfig()
	defaultDir := t.TempDir()

	defaultLogLvl := defaults.LogLevel

	cases := []struct {
		args     []string
		env      map[string]string
		logLevel string
	}{
		{[]string{"--log", "debug"}, nil, defaultLogLvl},           // wrong flag
		{[]string{"--log-level", "debug"}, nil, "debug"},           // right flag
		{nil, map[string]string{"LS_LOG_LEVEL": "debug"}, "debug"}, // right env
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			conf := clearConfig(t, defaultDir)

			err := testSetup(ctx, t, conf, tc.args, tc.env)
			require.NoError(t, err)

			assert.Equal(t, tc.logLevel, conf.LogLevel)
		})
	}
}

func TestRootConfig(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// write non-default config
	nonDefaultLogLvl := "debug"
	cvals := map[string]string{
		"log-level": nonDefaultLogLvl,
	}

	cases := []struct {
		args   []string
		env    map[string]string
		logLvl string
	}{
		{nil, nil, nonDefaultLogLvl},                // should load config
		{[]string{"--log-level=info"}, nil, "info"}, // flag over rides
	}

	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			defaultRoot := t.TempDir()
			conf := clearConfig(t, defaultRoot)
			conf.LogLevel = tc.logLvl

			configFilePath := filepath.Join(defaultRoot, "config")
			require.NoError(t, tmos.EnsureDir(configFilePath, 0700))
			require.NoError(t, writeConfigVals(configFilePath, cvals))

			cmd := testRootCmd(conf)

			// run with the args and env
			tc.args = append([]string{cmd.Use}, tc.args...)
			require.NoError(t, RunWithArgs(ctx, cmd, tc.args, tc.env))

			require.Equal(t, tc.logLvl, conf.LogLevel)
		})
	}
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conf := clearConfig(t, t.TempDir())
	err := testSetup(ctx, t, conf, []string{"--log-format", "xml"}, nil)
	require.Error(t, err)
}

func TestInitFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := t.TempDir()
	conf := clearConfig(t, root)

	id := strings.TrimSpace(testOutput(ctx, t, conf, "init"))
	require.FileExists(t, filepath.Join(root, "config", "config.toml"))
	require.FileExists(t, conf.NodeKeyFile())

	nodeKey, err := types.LoadNodeKey(conf.NodeKeyFile())
	require.NoError(t, err)
	require.Equal(t, string(nodeKey.ID), id)

	// a second init keeps the key
	require.Equal(t, id, strings.TrimSpace(testOutput(ctx, t, conf, "init")))
	require.Equal(t, id, strings.TrimSpace(testOutput(ctx, t, conf, "show-node-id")))
}

func TestShowNodeIDWithoutKey(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conf := clearConfig(t, t.TempDir())
	require.Error(t, testSetup(ctx, t, conf, []string{"show-node-id"}, nil))
}

func TestVersionCmd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conf := clearConfig(t, t.TempDir())
	require.Equal(t, version.Version+"\n", testOutput(ctx, t, conf, "version"))

	var info version.Info
	require.NoError(t, json.Unmarshal([]byte(testOutput(ctx, t, conf, "version", "--verbose")), &info))
	require.Equal(t, version.Current(), info)
}

func TestSimulateCmd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conf := clearConfig(t, t.TempDir())
	out := testOutput(ctx, t, conf, "simulate",
		"--nodes", "3",
		"--faulty", "1",
		"--validators", "3",
		"--initial-batches", "5",
		"--live-batches", "2",
		"--produce-interval", "10ms",
		"--batch-size", "2",
		"--epoch-length", "3",
	)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	require.True(t, strings.HasPrefix(lines[0], "synced to version 14 (epoch 2)"), lines[0])
	for _, line := range lines[2:] {
		assert.Equal(t, "14", strings.Fields(line)[2], line)
	}
}

// RunWithArgs executes the given command with the specified command line args
// and environmental variables set. It returns any error returned from cmd.Execute()
func RunWithArgs(ctx context.Context, cmd *cobra.Command, args []string, env map[string]string) error {
	oargs := os.Args
	oenv := map[string]string{}
	// defer returns the environment back to normal
	defer func() {
		os.Args = oargs
		for k, v := range oenv {
			os.Setenv(k, v)
		}
	}()

	// set the args and env how we want them
	os.Args = args
	for k, v := range env {
		// backup old value if there, to restore at end
		oenv[k] = os.Getenv(k)
		err := os.Setenv(k, v)
		if err != nil {
			return err
		}
	}

	// and finally run the command
	return cmd.ExecuteContext(ctx)
}
