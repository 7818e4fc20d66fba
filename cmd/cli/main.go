package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dvloznov/customer-insights/internal/app"
	"github.com/dvloznov/customer-insights/internal/config"
	"github.com/dvloznov/customer-insights/internal/logger"
	"github.com/spf13/cobra"
)

var (
	configPath string
	jsonOutput bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "insights",
		Short:         "Customer reconciliation and spending insights",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("INSIGHTS_CONFIG"), "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "output as JSON")

	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(customersCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(uploadsCmd())

	return rootCmd
}

// openApp loads the config and opens the application. Logs go to stderr so
// stdout stays machine readable.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := logger.NewWithConfig(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	return app.New(ctx, cfg, log)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
