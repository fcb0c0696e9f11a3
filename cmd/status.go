package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/solterra-energy/quote-cli/internal/monitoring"
)

var statusLookbackHours int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show lead totals and queue health",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		collector := monitoring.NewCollector(st, nil)
		snap, err := collector.Collect(ctx, statusLookbackHours)
		if err != nil {
			return err
		}

		// A fresh process has no in-memory relay state; report the persisted
		// queue depth instead.
		entries, err := st.LoadQueue(ctx)
		if err != nil {
			return err
		}
		snap.QueueDepth = len(entries)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLookbackHours, "hours", 24, "lookback window in hours")
	rootCmd.AddCommand(statusCmd)
}
