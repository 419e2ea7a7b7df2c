package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ledgersync/ledgersync/config"
	"github.com/ledgersync/ledgersync/libs/log"
	tmos "github.com/ledgersync/ledgersync/libs/os"
	"github.com/ledgersync/ledgersync/types"
)

// MakeInitFilesCommand returns the command that writes the config file and
// node key of a new node.
func MakeInitFilesCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the config file and node key of a ledgersync node",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initFilesWithConfig(conf, logger); err != nil {
				return err
			}
			nodeKey, err := types.LoadNodeKey(conf.NodeKeyFile())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), nodeKey.ID)
			return nil
		},
	}
}

func initFilesWithConfig(conf *config.Config, logger log.Logger) error {
	nodeKeyFile := conf.NodeKeyFile()
	if tmos.FileExists(nodeKeyFile) {
		logger.Info("found node key", "path", nodeKeyFile)
	} else {
		if _, err := types.LoadOrGenNodeKey(nodeKeyFile); err != nil {
			return err
		}
		logger.Info("generated node key", "path", nodeKeyFile)
	}

	if err := config.WriteConfigFile(conf.RootDir, conf); err != nil {
		return err
	}
	logger.Info("wrote config file", "home", conf.RootDir)
	return nil
}
