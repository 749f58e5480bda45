// Package cli implements the flowtrace command-line interface.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/flowtrace/pkg/flowtrace/config"
	"github.com/randalmurphal/flowtrace/pkg/flowtrace/store"
	"github.com/randalmurphal/flowtrace/pkg/flowtrace/trace"
)

var configPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "flowtrace",
	Short: "Inspect agent execution traces from checkpoint stores",
	Long: "flowtrace reconstructs execution graphs, token usage, and costs from " +
		"an agent engine's checkpoint database, and streams live callback events.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (yaml or json)")

	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(infoCmd)
	RootCmd.AddCommand(threadsCmd)
	RootCmd.AddCommand(checkpointsCmd)
	RootCmd.AddCommand(traceCmd)
	RootCmd.AddCommand(analyzeCmd)
	RootCmd.AddCommand(diffCmd)
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func openAdapter(cfg config.Config) (store.Adapter, error) {
	return store.Open(store.Dialect(cfg.Database.Dialect), cfg.Database.DSN)
}

func pricingFromConfig(cfg config.Config) trace.Pricing {
	if len(cfg.Pricing) == 0 {
		return trace.DefaultPricing()
	}
	p := trace.DefaultPricing()
	p.Models = make(map[string]trace.ModelPrice, len(cfg.Pricing))
	for model, rate := range cfg.Pricing {
		p.Models[model] = trace.ModelPrice{
			InputPerMTok:  rate.InputPerMTok,
			OutputPerMTok: rate.OutputPerMTok,
		}
	}
	return p
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
