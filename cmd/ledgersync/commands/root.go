package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ledgersync/ledgersync/config"
	"github.com/ledgersync/ledgersync/libs/cli"
	"github.com/ledgersync/ledgersync/libs/log"
)

// ParseConfig retrieves the default environment configuration,
// sets up the ledgersync root and ensures that the root exists
func ParseConfig(conf *config.Config) (*config.Config, error) {
	if err := viper.Unmarshal(conf); err != nil {
		return nil, err
	}

	conf.SetRoot(conf.RootDir)

	if err := conf.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("error in config file: %w", err)
	}
	return conf, nil
}

// RootCommand constructs the root command-line entry point for ledgersync.
// The configuration and logger passed in are updated in place once the
// flags, environment and config file have been read.
func RootCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledgersync",
		Short: "Verified ledger synchronization between peers",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == VersionCmd.Name() {
				return nil
			}

			pconf, err := ParseConfig(conf)
			if err != nil {
				return err
			}
			*conf = *pconf

			if err := config.EnsureRoot(conf.RootDir); err != nil {
				return err
			}

			return log.OverrideWithNewLogger(logger, conf.LogFormat, conf.LogLevel)
		},
	}
	cmd.PersistentFlags().String("log-level", conf.LogLevel, "log level")
	cmd.PersistentFlags().String("log-format", conf.LogFormat, "log format (plain|json)")

	return cli.PrepareBaseCmd(cmd, "LS", os.ExpandEnv(filepath.Join("$HOME", config.DefaultLedgerSyncDir)))
}
