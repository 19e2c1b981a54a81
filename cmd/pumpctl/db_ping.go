package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var dbPingVerbose bool

var dbPingCmd = &cobra.Command{
	Use:   "db-ping",
	Short: "Verify database connectivity with SELECT 1",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runID := newRunID(cfg.Ingest.BatchIDMode.Value)
		rt, cleanup, err := connectRuntime(cmd.Context(), runID)
		if err != nil {
			return err
		}
		defer cleanup()

		sess, err := rt.Pool.Acquire(cmd.Context(), 5*time.Second)
		if err != nil {
			return dbErr(fmt.Errorf("db-ping: %w", err))
		}
		defer rt.Pool.Release(sess)

		var one int
		if err := sess.Conn().QueryRow(cmd.Context(), "SELECT 1").Scan(&one); err != nil {
			return dbErr(fmt.Errorf("db-ping: %w", err))
		}
		if dbPingVerbose {
			metrics := rt.Pool.Stats()
			fmt.Printf("ok (pool: total=%d active=%d idle=%d peak=%d)\n", metrics.Total, metrics.Active, metrics.Idle, metrics.Peak)
		} else {
			fmt.Println("ok")
		}
		return nil
	},
}

func init() {
	dbPingCmd.Flags().BoolVar(&dbPingVerbose, "verbose", false, "Print pool metrics alongside the ping result")
	rootCmd.AddCommand(dbPingCmd)
}
