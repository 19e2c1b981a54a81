package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stationsync/internal/staging"
)

var createStagingCmd = &cobra.Command{
	Use:   "create-staging",
	Short: "Create the unlogged staging tables if they don't already exist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runID := newRunID(cfg.Ingest.BatchIDMode.Value)
		rt, cleanup, err := connectRuntime(cmd.Context(), runID)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := staging.New(rt).Create(cmd.Context()); err != nil {
			return dbErr(fmt.Errorf("create-staging: %w", err))
		}
		fmt.Println("staging tables ready")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createStagingCmd)
}
