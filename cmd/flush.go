package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Drain the queued leads to the configured sinks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		for {
			delay := env.Relay.Flush(ctx)
			depth := env.Relay.Depth()
			if depth == 0 {
				break
			}
			zap.L().Info("queue not yet drained",
				zap.Int("depth", depth),
				zap.Duration("next_flush", delay),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		sent, _, dropped := env.Relay.Stats()
		fmt.Printf("flushed: %d sent, %d dropped\n", sent, dropped)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(flushCmd)
}
