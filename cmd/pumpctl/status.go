package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stationsync/internal/metrics"
	"stationsync/internal/orchestrator"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ingest progress, or the last completed run's summary",
	Long: `Status first checks for a live or recently-active run via the
2-second state file written by a running pumpctl process. If none is
found, it falls back to the last completed run's persisted summary.json,
resolved via the ~/.pumpctl/last_run pointer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if snap, err := metrics.ReadStateFile(); err == nil {
			printLiveStatus(snap)
			return nil
		}

		summary, summaryPath, err := orchestrator.ReadLastRunPointer()
		if err != nil {
			fmt.Println("No ingest state found. Has `pumpctl run-all` been run?")
			fmt.Printf("  (error: %v)\n", err)
			return nil
		}
		printLastRunSummary(summary, summaryPath)
		return nil
	},
}

func printLiveStatus(snap *metrics.Snapshot) {
	age := time.Since(snap.Timestamp)
	stale := ""
	if age > 10*time.Second {
		stale = fmt.Sprintf(" (stale - %s ago)", age.Truncate(time.Second))
	}

	fmt.Printf("Phase:       %s%s\n", snap.Phase, stale)
	fmt.Printf("Elapsed:     %.0fs\n", snap.ElapsedSec)
	fmt.Printf("Files:       %d/%d\n", snap.FilesCompleted, snap.FilesTotal)
	fmt.Printf("Batch size:  %d  Workers: %d  Congested: %v\n", snap.BatchSize, snap.Workers, snap.Congested)
	fmt.Printf("Throughput:  %.0f rows/s\n", snap.RowsPerSec)
	fmt.Printf("Total rows:  %d\n", snap.TotalRows)
	if !snap.MergeWindowStart.IsZero() {
		fmt.Printf("Merge window: [%s, %s)\n", snap.MergeWindowStart.Format(time.RFC3339), snap.MergeWindowEnd.Format(time.RFC3339))
		fmt.Printf("Rows merged:  %d (dedup ratio %.3f, tz fallback %d)\n", snap.RowsMerged, snap.DedupRatio, snap.TZFallbackCount)
	}
	if snap.ErrorCount > 0 {
		fmt.Printf("Errors:      %d (last: %s)\n", snap.ErrorCount, snap.LastError)
	}
}

func printLastRunSummary(s *orchestrator.Summary, summaryPath string) {
	fmt.Printf("Last run:    %s\n", s.RunID)
	fmt.Printf("Summary:     %s\n", summaryPath)
	fmt.Printf("Window:      [%s, %s)\n", s.WindowStart.Format(time.RFC3339), s.WindowEnd.Format(time.RFC3339))
	fmt.Printf("Files:       %d ok, %d failed (of %d)\n", s.CopyStats.FilesSucceeded, s.CopyStats.FilesFailed, s.CopyStats.FilesTotal)
	fmt.Printf("Rows:        %d loaded, %d rejected\n", s.CopyStats.RowsLoaded, s.CopyStats.RowsRejected)
	fmt.Printf("Merge:       %d rows merged, dedup ratio %.3f, tz fallback %d\n", s.MergeStats.RowsMerged, s.MergeStats.DedupRatio, s.TZFallbackCount)
	fmt.Printf("Batch cost:  p50=%.0fms p95=%.0fms p99=%.0fms max=%.0fms (n=%d)\n",
		s.Diagnostics.BatchCostP50, s.Diagnostics.BatchCostP95, s.Diagnostics.BatchCostP99, s.Diagnostics.BatchCostMax, s.Diagnostics.SamplesCount)
	fmt.Printf("Backpressure: entered %d times, exited %d times\n", s.Diagnostics.BackpressureEnter, s.Diagnostics.BackpressureExit)
	if len(s.Failures) > 0 {
		fmt.Println("Failures:")
		for _, f := range s.Failures {
			fmt.Printf("  - %s\n", f)
		}
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
