package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stationsync/internal/dimension"
	"stationsync/internal/mapping"
)

var catalogSQLPath string

var prepareDimCmd = &cobra.Command{
	Use:   "prepare-dim <mapping>",
	Short: "Upsert stations/devices from a mapping file and optionally reload the metric catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := mapping.Load(args[0])
		if err != nil {
			return ioErr(fmt.Errorf("prepare-dim: %w", err))
		}

		runID := newRunID(cfg.Ingest.BatchIDMode.Value)
		rt, cleanup, err := connectRuntime(cmd.Context(), runID)
		if err != nil {
			return err
		}
		defer cleanup()

		stats, err := dimension.New(rt).Run(cmd.Context(), m, catalogSQLPath)
		if err != nil {
			return dbErr(fmt.Errorf("prepare-dim: %w", err))
		}
		fmt.Printf("stations upserted: %d, devices upserted: %d, metrics loaded: %d\n",
			stats.StationsUpserted, stats.DevicesUpserted, stats.MetricsLoaded)
		return nil
	},
}

func init() {
	prepareDimCmd.Flags().StringVar(&catalogSQLPath, "catalog-sql", "", "Path to a metric catalog reload script (optional)")
	rootCmd.AddCommand(prepareDimCmd)
}
