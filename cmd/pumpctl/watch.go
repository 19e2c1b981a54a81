package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stationsync/internal/metrics"
	"stationsync/internal/statusapi"
	"stationsync/internal/tui"
)

var watchAttachPort int

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Launch the live terminal dashboard",
	Long: `Watch renders the bubbletea dashboard (phase, file progress,
backpressure, merge diagnostics, logs). With --attach it dials a
pumpctl serve status feed over a loopback WebSocket; without it, it
polls the local state file (~/.pumpctl/state.json) that a running
pumpctl run-all writes every 2 seconds, so it can follow a detached
run-all without a serve process in front of it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		collector := metrics.NewCollector(logger)
		defer collector.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		if cmd.Flags().Changed("attach") {
			snapshots, err := statusapi.Dial(ctx, watchAttachPort)
			if err != nil {
				return ioErr(fmt.Errorf("watch: attach: %w", err))
			}
			go func() {
				for snap := range snapshots {
					collector.ApplyRemoteSnapshot(snap)
				}
			}()
		} else {
			go pollStateFile(ctx, collector)
		}

		return tui.Run(collector)
	},
}

func pollStateFile(ctx context.Context, collector *metrics.Collector) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := metrics.ReadStateFile()
			if err != nil {
				continue
			}
			collector.ApplyRemoteSnapshot(*snap)
		}
	}
}

func init() {
	watchCmd.Flags().IntVar(&watchAttachPort, "attach", 7654, "Dial a pumpctl serve status feed on this port instead of polling the local state file")
	rootCmd.AddCommand(watchCmd)
}
