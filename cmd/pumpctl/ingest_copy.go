package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stationsync/internal/copyloader"
	"stationsync/internal/eventlog"
	"stationsync/internal/mapping"
)

var ingestCopyCmd = &cobra.Command{
	Use:   "ingest-copy <mapping>",
	Short: "Bulk-copy every mapped CSV file into staging_raw/staging_rejects",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := mapping.Load(args[0])
		if err != nil {
			return ioErr(fmt.Errorf("ingest-copy: %w", err))
		}

		runID := newRunID(cfg.Ingest.BatchIDMode.Value)
		rt, cleanup, err := connectRuntime(cmd.Context(), runID)
		if err != nil {
			return err
		}
		defer cleanup()

		log := cfg.Logging
		events := eventlog.New(logger, "copyloader", log.EveryN.Value, time.Duration(log.MinIntervalSeconds.Value)*time.Second, log.Sample.Value)
		loader := copyloader.New(rt, events)

		stats, err := loader.LoadAll(cmd.Context(), m, cfg.Ingest.BaseDir.Value, runID)
		if err != nil {
			return dbErr(fmt.Errorf("ingest-copy: %w", err))
		}
		fmt.Printf("files: %d ok, %d failed; rows read %d, loaded %d, rejected %d\n",
			stats.FilesSucceeded, stats.FilesFailed, stats.RowsRead, stats.RowsLoaded, stats.RowsRejected)
		if stats.FilesFailed > 0 {
			logger.Warn().Int("files_failed", stats.FilesFailed).Msg("ingest-copy completed with failed files")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCopyCmd)
}
