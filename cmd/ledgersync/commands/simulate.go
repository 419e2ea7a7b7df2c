package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ledgersync/ledgersync/config"
	"github.com/ledgersync/ledgersync/internal/ledgersync"
	"github.com/ledgersync/ledgersync/libs/log"
	"github.com/ledgersync/ledgersync/node"
	"github.com/ledgersync/ledgersync/types"
)

// MakeSimulateCommand returns the command that runs a network of in-memory
// nodes, one of them producing the ledger, until every node holds the
// whole ledger.
func MakeSimulateCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	simCfg := node.DefaultSimulationConfig()

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Sync a ledger across a network of in-memory nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			var newMetrics func(types.NodeID) *ledgersync.Metrics
			if conf.Instrumentation.Prometheus {
				provider := ledgersync.NewPrometheusMetricsProvider(conf.Instrumentation.Namespace, "node_id")
				newMetrics = func(id types.NodeID) *ledgersync.Metrics {
					return provider("node_id", string(id))
				}
			}

			sim, err := node.NewSimulation(cmd.Context(), conf, simCfg, logger, newMetrics)
			if err != nil {
				return err
			}
			result, err := sim.Run(cmd.Context())
			if err != nil {
				return err
			}

			return printSimulationResult(cmd, result)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&simCfg.Nodes, "nodes", simCfg.Nodes, "number of nodes in the network")
	flags.IntVar(&simCfg.Faulty, "faulty", simCfg.Faulty, "number of nodes serving tampered batches")
	flags.IntVar(&simCfg.Validators, "validators", simCfg.Validators, "size of each epoch's validator set")
	flags.IntVar(&simCfg.InitialBatches, "initial-batches", simCfg.InitialBatches,
		"batches committed by the producer before the network starts")
	flags.IntVar(&simCfg.LiveBatches, "live-batches", simCfg.LiveBatches,
		"batches committed by the producer while the network runs")
	flags.DurationVar(&simCfg.ProduceInterval, "produce-interval", simCfg.ProduceInterval,
		"interval between live batches")
	flags.IntVar(&simCfg.BatchSize, "batch-size", simCfg.BatchSize, "transactions per batch")
	flags.IntVar(&simCfg.EpochLength, "epoch-length", simCfg.EpochLength, "batches per epoch")
	flags.DurationVar(&simCfg.ReportInterval, "report-interval", simCfg.ReportInterval,
		"interval between progress reports")

	return cmd
}

func printSimulationResult(cmd *cobra.Command, result *node.SimulationResult) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "synced to version %d (epoch %d) in %s\n",
		result.Tip.StateVersion(), result.Tip.Epoch(), result.Elapsed)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NODE\tFAULTY\tVERSION\tEPOCH")
	for _, status := range result.Nodes {
		fmt.Fprintf(w, "%s\t%t\t%d\t%d\n", status.ID, status.Faulty, status.StateVersion, status.Epoch)
	}
	return w.Flush()
}
