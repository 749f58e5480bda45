package cli

import (
	"github.com/spf13/cobra"

	"github.com/randalmurphal/flowtrace/pkg/flowtrace/store"
	"github.com/randalmurphal/flowtrace/pkg/flowtrace/trace"
)

var (
	listLimit  int
	listOffset int
	skipBlobs  bool
)

func init() {
	threadsCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum rows to return")
	threadsCmd.Flags().IntVar(&listOffset, "offset", 0, "Rows to skip")
	checkpointsCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum rows to return")
	checkpointsCmd.Flags().IntVar(&listOffset, "offset", 0, "Rows to skip")
	traceCmd.Flags().BoolVar(&skipBlobs, "no-blobs", false, "Skip blob decoding; payloads become placeholders")
}

// withReconstructor opens the configured store and hands a
// reconstructor to fn, closing the store afterwards.
func withReconstructor(cmd *cobra.Command, fn func(store.Adapter, *trace.Reconstructor) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	adapter, err := openAdapter(cfg)
	if err != nil {
		return err
	}
	defer adapter.Close()

	recon := trace.NewReconstructor(adapter,
		trace.WithPricing(pricingFromConfig(cfg)),
		trace.WithLogger(newLogger(cfg)),
	)
	return fn(adapter, recon)
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Probe the checkpoint store's dialect, version, and features",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReconstructor(cmd, func(adapter store.Adapter, _ *trace.Reconstructor) error {
			info, err := adapter.Info(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(info)
		})
	},
}

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List threads in the checkpoint store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReconstructor(cmd, func(adapter store.Adapter, _ *trace.Reconstructor) error {
			threads, total, err := adapter.ListThreads(cmd.Context(), listLimit, listOffset)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"threads": threads, "total": total})
		})
	},
}

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints <thread-id>",
	Short: "List a thread's checkpoints, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReconstructor(cmd, func(adapter store.Adapter, _ *trace.Reconstructor) error {
			checkpoints, total, err := adapter.ListCheckpoints(cmd.Context(), args[0], listLimit, listOffset)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"checkpoints": checkpoints, "total": total})
		})
	},
}

var traceCmd = &cobra.Command{
	Use:   "trace <thread-id> <checkpoint-id>",
	Short: "Reconstruct the execution graph for a checkpoint",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReconstructor(cmd, func(_ store.Adapter, recon *trace.Reconstructor) error {
			result, err := recon.Trace(cmd.Context(), args[0], args[1], !skipBlobs)
			if err != nil {
				return err
			}
			return printJSON(result)
		})
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <thread-id>",
	Short: "Aggregate token, cost, and duration metrics over a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReconstructor(cmd, func(_ store.Adapter, recon *trace.Reconstructor) error {
			analysis, err := recon.AnalyzeThread(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(analysis)
		})
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff <thread-id> <source-checkpoint> <target-checkpoint>",
	Short: "Diff channel state between two checkpoints",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReconstructor(cmd, func(_ store.Adapter, recon *trace.Reconstructor) error {
			diff, err := recon.Compare(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return printJSON(diff)
		})
	},
}
