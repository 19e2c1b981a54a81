package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"stationsync/internal/quality"
	"stationsync/internal/runtime"
)

var (
	reportWindowStart string
	reportWindowEnd   string
	reportExpectedInterval int
	reportTopK             int
	reportGroupBy           string
)

var dataReportCmd = &cobra.Command{
	Use:   "data-report",
	Short: "Compute coverage, gap, outlier, quantile, and zero/const statistics over a window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := parseWindowFlags(reportWindowStart, reportWindowEnd)
		if err != nil {
			return ioErr(fmt.Errorf("data-report: %w", err))
		}
		groupBy := quality.GroupKey(reportGroupBy)

		runID := newRunID(cfg.Ingest.BatchIDMode.Value)
		rt, cleanup, err := connectRuntime(cmd.Context(), runID)
		if err != nil {
			return err
		}
		defer cleanup()

		samples, err := loadQualitySamples(cmd.Context(), rt, start, end, groupBy)
		if err != nil {
			return dbErr(fmt.Errorf("data-report: %w", err))
		}

		report := quality.Build(samples, start, end, groupBy, reportTopK, reportExpectedInterval, nil)

		outPath := fmt.Sprintf("reports/data_quality_report.%s.json", runID)
		if err := writeJSONFile(outPath, report); err != nil {
			return ioErr(fmt.Errorf("data-report: write report: %w", err))
		}
		fmt.Printf("data quality report written to %s (%d groups)\n", outPath, len(report.CoverageTop))
		return nil
	},
}

func init() {
	dataReportCmd.Flags().StringVar(&reportWindowStart, "window-start", "", "UTC ISO-8601 window start (inclusive)")
	dataReportCmd.Flags().StringVar(&reportWindowEnd, "window-end", "", "UTC ISO-8601 window end (exclusive)")
	dataReportCmd.Flags().IntVar(&reportExpectedInterval, "expected-interval", 60, "Expected seconds between samples, for coverage/gap detection")
	dataReportCmd.Flags().IntVar(&reportTopK, "top-k", 20, "Number of groups/gaps to keep in the report")
	dataReportCmd.Flags().StringVar(&reportGroupBy, "group-by", "metric", "Group key: metric|device|station|batch|source")
	_ = dataReportCmd.MarkFlagRequired("window-start")
	_ = dataReportCmd.MarkFlagRequired("window-end")
	rootCmd.AddCommand(dataReportCmd)
}

// groupColumnFor maps a quality.GroupKey to the fact_measurements column
// (joined through the dimension tables) used as the group value.
func groupColumnFor(k quality.GroupKey) (string, error) {
	switch k {
	case quality.GroupStation:
		return "ds.name", nil
	case quality.GroupDevice:
		return "dd.name", nil
	case quality.GroupMetric:
		return "dm.metric_key", nil
	case quality.GroupSource:
		return "fm.source_hint", nil
	case quality.GroupBatch:
		return "split_part(fm.source_hint, '|batch=', 2)", nil
	default:
		return "", fmt.Errorf("unknown group-by %q", k)
	}
}

func loadQualitySamples(ctx context.Context, rt *runtime.Runtime, start, end time.Time, groupBy quality.GroupKey) ([]quality.Sample, error) {
	groupCol, err := groupColumnFor(groupBy)
	if err != nil {
		return nil, err
	}
	timeout := 30 * time.Second
	sess, err := rt.Pool.Acquire(ctx, timeout)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	defer rt.Pool.Release(sess)

	sql := fmt.Sprintf(`
		SELECT %s AS group_value, fm.ts_bucket, fm.value
		FROM fact_measurements fm
		JOIN dim_station ds ON ds.station_id = fm.station_id
		JOIN dim_device dd ON dd.device_id = fm.device_id
		JOIN dim_metric_config dm ON dm.metric_id = fm.metric_id
		WHERE fm.ts_bucket >= $1 AND fm.ts_bucket < $2`, groupCol)

	rows, err := sess.Conn().Query(ctx, sql, start, end)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var samples []quality.Sample
	for rows.Next() {
		var s quality.Sample
		if err := rows.Scan(&s.GroupValue, &s.TSBucket, &s.Value); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll("reports", 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
