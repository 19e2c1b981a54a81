package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stationsync/internal/metrics"
	"stationsync/internal/statusapi"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the live status feed for a detached run-all",
	Long: `Serve starts a loopback-only WebSocket status feed that mirrors the
last-known run state, for pumpctl watch --attach to follow a run-all
launched elsewhere (e.g. in a background shell or systemd unit). It reads
the last-persisted state file on startup and otherwise reflects whatever
a concurrently-running pumpctl process is writing to it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		collector := metrics.NewCollector(logger)
		defer collector.Close()

		if snap, err := metrics.ReadStateFile(); err == nil {
			collector.ApplyRemoteSnapshot(*snap)
		}
		go pollStateFile(cmd.Context(), collector)

		srv := statusapi.New(collector, logger)
		fmt.Printf("status feed listening on ws://127.0.0.1:%d/ws\n", servePort)
		return srv.Start(cmd.Context(), servePort)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 7654, "Status feed port (loopback-only)")
	rootCmd.AddCommand(serveCmd)
}
