package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stationsync/internal/metrics"
	"stationsync/internal/orchestrator"
	"stationsync/internal/statusapi"
)

var (
	runAllMapping         string
	runAllCatalogSQL      string
	runAllUseStagingRange bool
	runAllWindowStart     string
	runAllWindowEnd       string
	runAllSummaryJSON     string
	runAllResetStaging    bool
	runAllServeStatus     int
)

var runAllCmd = &cobra.Command{
	Use:   "run-all",
	Short: "Run the full pipeline: prepare-dim, create-staging, ingest-copy, merge-fact",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := orchestrator.Options{
			MappingPath:         runAllMapping,
			CatalogSQLPath:      runAllCatalogSQL,
			ResetStaging:        runAllResetStaging,
			UseStagingTimeRange: runAllUseStagingRange,
		}
		if !runAllUseStagingRange {
			start, end, err := parseWindowFlags(runAllWindowStart, runAllWindowEnd)
			if err != nil {
				return ioErr(fmt.Errorf("run-all: %w", err))
			}
			opts.WindowStart, opts.WindowEnd = start, end
		}

		runID := newRunID(cfg.Ingest.BatchIDMode.Value)
		rt, cleanup, err := connectRuntime(cmd.Context(), runID)
		if err != nil {
			return err
		}
		defer cleanup()

		collector := metrics.NewCollector(logger)
		defer collector.Close()
		persister, err := metrics.NewStatePersister(collector, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to start state persister")
		} else {
			persister.Start()
			defer persister.Stop()
		}
		opts.Collector = collector

		if runAllServeStatus > 0 {
			statusSrv := statusapi.New(collector, logger)
			statusSrv.StartBackground(cmd.Context(), runAllServeStatus)
			fmt.Printf("status feed listening on ws://127.0.0.1:%d/ws (attach with `pumpctl watch --attach %d`)\n",
				runAllServeStatus, runAllServeStatus)
		}

		summary, err := orchestrator.New(rt).Run(cmd.Context(), opts)
		writeErr := orchestrator.WriteEnvJSON(".", cfg.Summary(), runID, summary.WindowStart, summary.WindowEnd)
		if writeErr != nil {
			logger.Warn().Err(writeErr).Msg("failed to write env.json")
		}

		summaryPath := runAllSummaryJSON
		if summaryPath == "" {
			summaryPath = "summary.json"
		}
		if writeErr := orchestrator.WriteSummaryJSON(summaryPath, summary); writeErr != nil {
			logger.Warn().Err(writeErr).Msg("failed to write summary.json")
		} else if writeErr := orchestrator.WriteLastRunPointer(summaryPath); writeErr != nil {
			logger.Warn().Err(writeErr).Msg("failed to record last_run pointer")
		}

		if err != nil {
			if len(summary.Failures) > 0 && summary.CopyStats.FilesTotal == 0 {
				return ioErr(fmt.Errorf("run-all: window unavailable: %w", err))
			}
			return dbErr(fmt.Errorf("run-all: %w", err))
		}

		fmt.Printf("run-all complete: %d files ok, %d rows merged, summary at %s\n",
			summary.CopyStats.FilesSucceeded, summary.MergeStats.RowsMerged, summaryPath)
		return nil
	},
}

func init() {
	runAllCmd.Flags().StringVar(&runAllMapping, "mapping", "mapping.json", "Mapping file path")
	runAllCmd.Flags().StringVar(&runAllCatalogSQL, "catalog-sql", "", "Metric catalog reload script (optional)")
	runAllCmd.Flags().BoolVar(&runAllUseStagingRange, "use-staging-time-range", false, "Derive the merge window from staged rows instead of explicit flags")
	runAllCmd.Flags().StringVar(&runAllWindowStart, "window-start", "", "UTC ISO-8601 window start (inclusive)")
	runAllCmd.Flags().StringVar(&runAllWindowEnd, "window-end", "", "UTC ISO-8601 window end (exclusive)")
	runAllCmd.Flags().StringVar(&runAllSummaryJSON, "summary-json", "", "Override summary.json output path")
	runAllCmd.Flags().BoolVar(&runAllResetStaging, "reset-staging", false, "Truncate staging tables before this run")
	runAllCmd.Flags().IntVar(&runAllServeStatus, "serve-status", 0, "Expose a live loopback status feed on this port while running (0 disables)")
	rootCmd.AddCommand(runAllCmd)
}
