// Package orchestrator implements C12: sequencing phases, writing
// env.json/summary.json atomically, and aggregating run diagnostics.
// Grounded on the internal/pipeline.Pipeline (cfg + logger +
// components as fields, RunClone/RunCloneAndFollow phase sequencing) and
// internal/metrics/state.go's StatePersister.write() temp-file-then-rename
// atomic JSON write, reused verbatim for env.json/summary.json.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"stationsync/internal/copyloader"
	"stationsync/internal/dimension"
	"stationsync/internal/eventlog"
	"stationsync/internal/mapping"
	"stationsync/internal/merge"
	"stationsync/internal/metrics"
	"stationsync/internal/partition"
	"stationsync/internal/runtime"
	"stationsync/internal/staging"
	"stationsync/internal/window"
)

// Diagnostics aggregates batch-cost and fail-rate percentiles plus
// backpressure transition counts across the whole run.
type Diagnostics struct {
	BatchCostP50    float64 `json:"batch_cost_p50_ms"`
	BatchCostP90    float64 `json:"batch_cost_p90_ms"`
	BatchCostP95    float64 `json:"batch_cost_p95_ms"`
	BatchCostP99    float64 `json:"batch_cost_p99_ms"`
	BatchCostMax    float64 `json:"batch_cost_max_ms"`
	BatchCostMin    float64 `json:"batch_cost_min_ms"`
	FailRateAvg     float64 `json:"fail_rate_avg"`
	FailRateP95     float64 `json:"fail_rate_p95"`
	FailRateMax     float64 `json:"fail_rate_max"`
	SamplesCount    int     `json:"samples_count"`
	BackpressureEnter int   `json:"backpressure_enter_count"`
	BackpressureExit  int   `json:"backpressure_exit_count"`
}

// SlowSQLEntry is one of the top-N most expensive merge statements.
type SlowSQLEntry struct {
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	SQLCostMs    float64   `json:"sql_cost_ms"`
	AffectedRows int64     `json:"affected_rows"`
}

// Summary is the complete post-run aggregate written to summary.json.
type Summary struct {
	RunID         string                 `json:"run_id"`
	WindowStart   time.Time              `json:"window_start"`
	WindowEnd     time.Time              `json:"window_end"`
	CopyStats     copyloader.CopyStats   `json:"copy_stats"`
	MergeStats    merge.Stats            `json:"merge_stats"`
	PhaseTimings  map[string]float64     `json:"phase_timings_ms"`
	Diagnostics   Diagnostics            `json:"diagnostics"`
	SlowSQLTop    []SlowSQLEntry         `json:"slow_sql_top"`
	TZFallbackCount int64                `json:"tz_fallback_count"`
	Failures      []string               `json:"failures,omitempty"`
}

// Recorder accumulates batch-cost and fail-rate samples across the run for
// the final Diagnostics computation. copyloader.Loader.OnBatch feeds
// RecordBatch/RecordBackpressure concurrently from its worker pool, so all
// methods are safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	batchCosts        []float64
	failRates         []float64
	backpressureEnter int
	backpressureExit  int
	slowSQL           []SlowSQLEntry
}

// NewRecorder constructs an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// RecordBatch appends one batch's cost and fail rate.
func (r *Recorder) RecordBatch(costMs, failRate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batchCosts = append(r.batchCosts, costMs)
	r.failRates = append(r.failRates, failRate)
}

// RecordBackpressure increments the enter/exit counters.
func (r *Recorder) RecordBackpressure(entered, exited bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entered {
		r.backpressureEnter++
	}
	if exited {
		r.backpressureExit++
	}
}

// RecordMergeSegment records one segment's cost for slow_sql_top.
func (r *Recorder) RecordMergeSegment(seg merge.Window, stats merge.Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slowSQL = append(r.slowSQL, SlowSQLEntry{
		WindowStart:  seg.Start,
		WindowEnd:    seg.End,
		SQLCostMs:    stats.SQLCostMs,
		AffectedRows: stats.AffectedRows,
	})
}

// Diagnostics computes the final percentile/backpressure aggregate.
func (r *Recorder) Diagnostics() Diagnostics {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := Diagnostics{
		SamplesCount:      len(r.batchCosts),
		BackpressureEnter: r.backpressureEnter,
		BackpressureExit:  r.backpressureExit,
	}
	if len(r.batchCosts) > 0 {
		sorted := append([]float64(nil), r.batchCosts...)
		sort.Float64s(sorted)
		d.BatchCostP50 = nearestRank(sorted, 0.50)
		d.BatchCostP90 = nearestRank(sorted, 0.90)
		d.BatchCostP95 = nearestRank(sorted, 0.95)
		d.BatchCostP99 = nearestRank(sorted, 0.99)
		d.BatchCostMin = sorted[0]
		d.BatchCostMax = sorted[len(sorted)-1]
	}
	if len(r.failRates) > 0 {
		var sum float64
		sorted := append([]float64(nil), r.failRates...)
		sort.Float64s(sorted)
		for _, v := range r.failRates {
			sum += v
		}
		d.FailRateAvg = sum / float64(len(r.failRates))
		d.FailRateP95 = nearestRank(sorted, 0.95)
		d.FailRateMax = sorted[len(sorted)-1]
	}
	return d
}

// SlowSQLTop returns the n most expensive recorded merge segments.
func (r *Recorder) SlowSQLTop(n int) []SlowSQLEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	sorted := append([]SlowSQLEntry(nil), r.slowSQL...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SQLCostMs > sorted[j].SQLCostMs })
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func nearestRank(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

// Options configures one run-all invocation.
type Options struct {
	MappingPath       string
	CatalogSQLPath    string
	ResetStaging      bool
	UseStagingTimeRange bool
	WindowStart       time.Time
	WindowEnd         time.Time
	RunDir            string
	SummaryJSONPath   string

	// Collector, if set, receives coarse phase/progress updates for
	// pumpctl watch/status/serve to render. Optional; nil is a valid no-op.
	Collector *metrics.Collector
}

// Orchestrator sequences C5-C11 phases for one run.
type Orchestrator struct {
	rt *runtime.Runtime
}

// New constructs an Orchestrator bound to rt.
func New(rt *runtime.Runtime) *Orchestrator {
	return &Orchestrator{rt: rt.With("orchestrator")}
}

// Run executes: optional cleanup -> prepare_dim -> create_staging ->
// copy_from_mapping -> optional auto-window detection -> merge_window.
// Data-quality reporting is driven separately by the caller (it needs the
// merged window, which this method returns).
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Summary, error) {
	summary := &Summary{
		RunID:        o.rt.RunID,
		PhaseTimings: map[string]float64{},
	}

	if opts.ResetStaging {
		o.setPhase(opts, "reset_staging")
		t0 := time.Now()
		if err := staging.New(o.rt).Reset(ctx); err != nil {
			return summary, fmt.Errorf("orchestrator: reset staging: %w", err)
		}
		summary.PhaseTimings["reset_staging"] = elapsedMs(t0)
	}

	m, err := mapping.Load(opts.MappingPath)
	if err != nil {
		return summary, fmt.Errorf("orchestrator: load mapping: %w", err)
	}

	o.setPhase(opts, "prepare_dim")
	t0 := time.Now()
	if _, err := dimension.New(o.rt).Run(ctx, m, opts.CatalogSQLPath); err != nil {
		summary.Failures = append(summary.Failures, err.Error())
		return summary, fmt.Errorf("orchestrator: prepare_dim: %w", err)
	}
	summary.PhaseTimings["prepare_dim"] = elapsedMs(t0)

	o.setPhase(opts, "create_staging")
	t0 = time.Now()
	if err := staging.New(o.rt).Create(ctx); err != nil {
		summary.Failures = append(summary.Failures, err.Error())
		return summary, fmt.Errorf("orchestrator: create_staging: %w", err)
	}
	summary.PhaseTimings["create_staging"] = elapsedMs(t0)

	o.setPhase(opts, "copy_from_mapping")
	if opts.Collector != nil {
		entries := m.Flatten()
		paths := make([]string, 0, len(entries))
		for _, f := range entries {
			paths = append(paths, f.FilePath)
		}
		opts.Collector.SetFiles(paths)
	}
	t0 = time.Now()
	log := o.rt.Config.Logging
	events := eventlog.New(o.rt.Logger, "copyloader", log.EveryN.Value, time.Duration(log.MinIntervalSeconds.Value)*time.Second, log.Sample.Value)
	loader := copyloader.New(o.rt, events)
	rec := NewRecorder()
	loader.OnBatch = func(costMs, failRate float64, entered, exited bool) {
		rec.RecordBatch(costMs, failRate)
		rec.RecordBackpressure(entered, exited)
	}
	copyStats, err := loader.LoadAll(ctx, m, o.rt.Config.Ingest.BaseDir.Value, o.rt.RunID)
	if err != nil {
		summary.Failures = append(summary.Failures, err.Error())
		return summary, fmt.Errorf("orchestrator: copy_from_mapping: %w", err)
	}
	summary.CopyStats = copyStats
	summary.PhaseTimings["copy_from_mapping"] = elapsedMs(t0)
	if opts.Collector != nil {
		opts.Collector.RecordRows(copyStats.RowsLoaded)
		for _, f := range m.Flatten() {
			opts.Collector.FileDone(f.FilePath, false, 0)
		}
	}

	windowStart, windowEnd := opts.WindowStart, opts.WindowEnd
	if opts.UseStagingTimeRange {
		ws, we, err := detectStagingTimeRange(ctx, o.rt)
		if err != nil {
			summary.Failures = append(summary.Failures, err.Error())
			return summary, fmt.Errorf("orchestrator: auto-window detection: %w", err)
		}
		windowStart, windowEnd = ws, we
	}
	summary.WindowStart, summary.WindowEnd = windowStart, windowEnd

	o.setPhase(opts, "ensure_partitions")
	t0 = time.Now()
	if err := partition.New(o.rt).EnsureWindow(ctx, windowStart, windowEnd); err != nil {
		summary.Failures = append(summary.Failures, err.Error())
		return summary, fmt.Errorf("orchestrator: ensure partitions: %w", err)
	}

	o.setPhase(opts, "merge_window")
	executor := merge.New(o.rt)
	sched := window.New(executor)
	result, err := sched.Run(ctx, windowStart, windowEnd, o.rt.Config.Merge.SegmentedEnabled.Value, o.rt.Config.Merge.Granularity.Value)
	summary.PhaseTimings["merge_window"] = elapsedMs(t0)
	if err != nil {
		summary.Failures = append(summary.Failures, err.Error())
		return summary, fmt.Errorf("orchestrator: merge_window: %w", err)
	}
	summary.MergeStats = result.Total
	summary.TZFallbackCount = result.Total.TZFallbackRows
	if opts.Collector != nil {
		opts.Collector.RecordMerge(windowStart, windowEnd, result.Total.RowsMerged, result.Total.TZFallbackRows, result.Total.DedupRatio)
	}
	for i, stats := range result.PerSegment {
		rec.RecordMergeSegment(result.Segments[i], stats)
	}

	summary.Diagnostics = rec.Diagnostics()
	summary.SlowSQLTop = rec.SlowSQLTop(o.rt.Config.Merge.SlowSQLTopN.Value)

	o.setPhase(opts, "done")
	return summary, nil
}

func (o *Orchestrator) setPhase(opts Options, phase string) {
	if opts.Collector != nil {
		opts.Collector.SetPhase(phase)
	}
}

func elapsedMs(t0 time.Time) float64 {
	return float64(time.Since(t0).Microseconds()) / 1000.0
}

// WriteEnvJSON atomically writes env.json under runDir, merging any
// already-present CLI snapshot rather than overwriting it.
func WriteEnvJSON(runDir string, cliSnapshot map[string]any, runID string, windowStart, windowEnd time.Time) error {
	path := filepath.Join(runDir, "env.json")
	merged := map[string]any{}
	if existing, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(existing, &merged)
	}
	for k, v := range cliSnapshot {
		merged[k] = v
	}
	merged["run_id"] = runID
	merged["window_start"] = windowStart
	merged["window_end"] = windowEnd
	return atomicWriteJSON(path, merged)
}

// WriteSummaryJSON atomically writes summary.json under runDir (or an
// explicit path override).
func WriteSummaryJSON(path string, summary *Summary) error {
	return atomicWriteJSON(path, summary)
}

const lastRunPointerDir = ".pumpctl"
const lastRunPointerFile = "last_run"

// WriteLastRunPointer atomically records the absolute path to the
// just-written summary.json under ~/.pumpctl/last_run, so `pumpctl status`
// can find the most recent run's summary without scanning run directories.
// Mirrors the internal/metrics/state.go StatePersister.write()
// temp-file-then-rename pattern.
func WriteLastRunPointer(summaryPath string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("orchestrator: last_run pointer: %w", err)
	}
	abs, err := filepath.Abs(summaryPath)
	if err != nil {
		return fmt.Errorf("orchestrator: last_run pointer: %w", err)
	}
	dir := filepath.Join(home, lastRunPointerDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("orchestrator: last_run pointer: %w", err)
	}
	path := filepath.Join(dir, lastRunPointerFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(abs), 0o644); err != nil {
		return fmt.Errorf("orchestrator: last_run pointer: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("orchestrator: last_run pointer: %w", err)
	}
	return nil
}

// ReadLastRunPointer resolves the summary.json path recorded by
// WriteLastRunPointer and loads the Summary it points to.
func ReadLastRunPointer() (*Summary, string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("orchestrator: last_run pointer: %w", err)
	}
	path := filepath.Join(home, lastRunPointerDir, lastRunPointerFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("orchestrator: no last run recorded: %w", err)
	}
	summaryPath := string(data)
	raw, err := os.ReadFile(summaryPath)
	if err != nil {
		return nil, summaryPath, fmt.Errorf("orchestrator: read %s: %w", summaryPath, err)
	}
	var summary Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, summaryPath, fmt.Errorf("orchestrator: parse %s: %w", summaryPath, err)
	}
	return &summary, summaryPath, nil
}

func atomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("orchestrator: marshal %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("orchestrator: mkdir for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("orchestrator: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("orchestrator: rename %s: %w", tmp, err)
	}
	return nil
}
