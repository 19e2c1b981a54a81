package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stationsync/internal/staging"
)

var adminClearDBCmd = &cobra.Command{
	Use:   "admin-clear-db",
	Short: "Truncate the staging tables (operator-invoked only; never called implicitly)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runID := newRunID(cfg.Ingest.BatchIDMode.Value)
		rt, cleanup, err := connectRuntime(cmd.Context(), runID)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := staging.New(rt).Reset(cmd.Context()); err != nil {
			return dbErr(fmt.Errorf("admin-clear-db: %w", err))
		}
		fmt.Println("staging tables truncated")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(adminClearDBCmd)
}
