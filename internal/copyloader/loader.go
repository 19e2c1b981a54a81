// Package copyloader implements C7: per-file batched bulk-copy into
// staging, rolling P95 + fail-rate feeding the backpressure controller
// (C8), and reject-threshold handling. Grounded directly on
// internal/snapshot.Copier.copyTable: pgx.CopyFrom(ctx, pgx.Identifier{...},
// colNames, pgx.CopyFromRows(batch)) driven by a per-file worker pool
// (CopyAll's worker channel + sync.WaitGroup).
package copyloader

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"stationsync/internal/backpressure"
	"stationsync/internal/csvsource"
	"stationsync/internal/eventlog"
	"stationsync/internal/mapping"
	"stationsync/internal/provenance"
	"stationsync/internal/runtime"
)

// CopyStats summarizes the whole ingest-copy run across every file in the
// mapping.
type CopyStats struct {
	FilesTotal     int
	FilesSucceeded int
	FilesFailed    int
	RowsRead       int64
	RowsLoaded     int64
	RowsRejected   int64
	BytesRead      int64
}

func (s *CopyStats) merge(o CopyStats) {
	s.FilesTotal += o.FilesTotal
	s.FilesSucceeded += o.FilesSucceeded
	s.FilesFailed += o.FilesFailed
	s.RowsRead += o.RowsRead
	s.RowsLoaded += o.RowsLoaded
	s.RowsRejected += o.RowsRejected
	s.BytesRead += o.BytesRead
}

// BatchReport is one ingest.copy.batch sample fed to the backpressure
// controller and, sampled, emitted as an event.
type BatchReport struct {
	BatchSize   int
	BatchCostMs float64
	RowsPerSec  float64
}

// Loader drives the COPY phase for an entire mapping file.
type Loader struct {
	rt     *runtime.Runtime
	events *eventlog.Log

	bpMu sync.Mutex
	bp   *backpressure.Controller

	p95Mu     sync.Mutex
	p95Window []float64 // recent batch_cost_ms, bounded to ingest.p95_window

	thresholdMu  sync.Mutex
	failedGlobal int

	// OnBatch, if set, is invoked after every flushed batch with its cost,
	// fail rate, and whether that batch triggered a backpressure
	// enter/exit transition. Lets a caller (the orchestrator's Recorder)
	// accumulate the batch-cost/fail-rate diagnostics in summary.json
	// without copyloader knowing about orchestrator types.
	OnBatch func(costMs, failRate float64, entered, exited bool)
}

// New constructs a Loader bound to rt, with its own backpressure
// controller seeded from ingest config.
func New(rt *runtime.Runtime, events *eventlog.Log) *Loader {
	rt = rt.With("copyloader")
	ing := rt.Config.Ingest
	th := backpressure.Thresholds{
		P95Ms:      ing.P95Ms.Value,
		FailRate:   ing.FailRateThreshold.Value,
		MinBatch:   ing.MinBatch.Value,
		MinWorkers: ing.MinWorkers.Value,
	}
	initialBatch := ing.BatchSize.Value
	if initialBatch <= 0 {
		initialBatch = ing.CommitInterval.Value
	}
	return &Loader{
		rt:     rt,
		events: events,
		bp:     backpressure.New(th, initialBatch, ing.Workers.Value),
	}
}

// LoadAll iterates every (station, device, metric, file) entry in m,
// bounded to ingest.workers in-flight files at a time, and returns the
// aggregated CopyStats.
func (l *Loader) LoadAll(ctx context.Context, m *mapping.Mapping, baseDir, runID string) (CopyStats, error) {
	entries := m.Flatten()
	total := CopyStats{}

	workers := l.currentWorkers()
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan mapping.FileEntry)
	results := make(chan CopyStats)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				stats, err := l.loadFile(ctx, job, baseDir, runID)
				if err != nil {
					l.rt.Logger.Error().Err(err).Str("file", job.FilePath).Msg("file load failed")
				}
				results <- stats
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, e := range entries {
			select {
			case jobs <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	continueOnError := l.rt.Config.Ingest.ContinueOnError.Value
	stopped := false
	for r := range results {
		if stopped {
			continue
		}
		total.merge(r)
		if r.FilesFailed > 0 && !continueOnError {
			stopped = true
		}
	}

	return total, nil
}

func (l *Loader) currentWorkers() int {
	l.bpMu.Lock()
	defer l.bpMu.Unlock()
	return l.bp.State().Workers
}

func (l *Loader) currentBatchSize() int {
	l.bpMu.Lock()
	defer l.bpMu.Unlock()
	return l.bp.State().BatchSize
}

// loadFile streams one CSV file into staging_raw in batches, reporting
// progress and feeding backpressure.
func (l *Loader) loadFile(ctx context.Context, job mapping.FileEntry, baseDir, runID string) (CopyStats, error) {
	fullPath := filepath.Join(baseDir, job.FilePath)
	enhanced := l.rt.Config.Ingest.EnhancedSourceHint.Value
	hint := provenance.Encode(baseDir, fullPath, runID, enhanced)

	l.events.Begin(zerolog.InfoLevel, "ingest.load.begin").
		Str("file_path", job.FilePath).Emit("starting file load")

	reader, err := csvsource.Open(fullPath, hint, csvsource.Options{})
	if err != nil {
		// HeaderError or I/O error: whole file fails, not a RejectRow.
		return CopyStats{FilesTotal: 1, FilesFailed: 1}, err
	}
	defer reader.Close()

	stats := CopyStats{FilesTotal: 1}
	maxErrs := l.rt.Config.Ingest.MaxErrorsPerFile.Value
	errPct := l.rt.Config.Ingest.ErrorThresholdPercent.Value

	var validBatch [][]any
	var rejectBatch [][]any
	var valids, rejects int
	batchIdx := 0
	thresholdBreached := false

	flush := func() error {
		if len(validBatch) == 0 && len(rejectBatch) == 0 {
			return nil
		}
		start := time.Now()
		if len(validBatch) > 0 {
			n, err := l.rt.Pool.Raw().CopyFrom(ctx,
				pgx.Identifier{"staging_raw"},
				[]string{"station_name", "device_name", "metric_key", "tag_name", "data_time", "data_value", "source_hint"},
				pgx.CopyFromRows(validBatch))
			if err != nil {
				return fmt.Errorf("copyloader: copy staging_raw: %w", err)
			}
			stats.RowsLoaded += n
		}
		if len(rejectBatch) > 0 && !thresholdBreached {
			n, err := l.rt.Pool.Raw().CopyFrom(ctx,
				pgx.Identifier{"staging_rejects"},
				[]string{"station_name", "device_name", "metric_key", "source_hint", "error_msg"},
				pgx.CopyFromRows(rejectBatch))
			if err != nil {
				return fmt.Errorf("copyloader: copy staging_rejects: %w", err)
			}
			_ = n
		}
		costMs := float64(time.Since(start).Microseconds()) / 1000.0
		batchSize := len(validBatch) + len(rejectBatch)
		rowsPerSec := 0.0
		if costMs > 0 {
			rowsPerSec = float64(batchSize) / (costMs / 1000.0)
		}

		batchIdx++
		l.events.Sampled(zerolog.InfoLevel, "ingest.copy.batch", batchIdx).
			Int("batch_size", batchSize).Float64("batch_cost_ms", costMs).
			Float64("rows_per_sec", rowsPerSec).Emit("batch copied")

		l.recordBatchCost(costMs)
		failRate := 0.0
		if valids+rejects > 0 {
			failRate = float64(rejects) / float64(valids+rejects)
		}
		p95 := l.p95()
		transition := l.evaluateBackpressure(int(p95), failRate)
		if l.OnBatch != nil {
			l.OnBatch(costMs, failRate, transition.Entered, transition.Exited)
		}
		if transition.Entered {
			l.events.Sampled(zerolog.WarnLevel, "backpressure.enter", batchIdx).
				Int("p95_batch_ms", int(p95)).Float64("fail_rate", failRate).
				Float64("batch_cost_ms", costMs).Str("adjustment", string(transition.Action)).
				Emit("backpressure entered")
		}
		if transition.Exited {
			l.events.Sampled(zerolog.InfoLevel, "backpressure.exit", batchIdx).
				Int("p95_batch_ms", int(p95)).Float64("fail_rate", failRate).
				Float64("batch_cost_ms", costMs).Emit("backpressure exited")
		}

		validBatch = validBatch[:0]
		rejectBatch = rejectBatch[:0]
		return nil
	}

	for {
		row, ok := reader.Next()
		if !ok {
			break
		}
		stats.RowsRead++
		switch row.Kind {
		case csvsource.KindValid:
			valids++
			v := row.Valid
			validBatch = append(validBatch, []any{job.Station, job.Device, job.MetricKey, v.TagName, v.DataTime, v.DataValue, v.SourceHint})
		case csvsource.KindReject:
			rejects++
			stats.RowsRejected++
			r := row.Reject
			rejectBatch = append(rejectBatch, []any{job.Station, job.Device, job.MetricKey, r.SourceHint, r.ErrorMsg})

			if rejects > maxErrs || (valids+rejects > 0 && float64(rejects)/float64(valids+rejects)*100 > errPct) {
				if !thresholdBreached {
					thresholdBreached = true
					l.events.Begin(zerolog.ErrorLevel, "ingest.error.threshold").
						Str("file_path", job.FilePath).Int("rejects", rejects).Emit("reject threshold breached")
				}
			}
		}

		if len(validBatch)+len(rejectBatch) >= l.currentBatchSize() {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := flush(); err != nil {
		return stats, err
	}

	if thresholdBreached {
		stats.FilesFailed = 1
		stats.FilesTotal = 1
		l.events.Begin(zerolog.WarnLevel, "ingest.load.end").
			Str("file_path", job.FilePath).Int64("rows_loaded", 0).Emit("file failed threshold")
		return stats, nil
	}

	stats.FilesSucceeded = 1
	l.events.Begin(zerolog.InfoLevel, "ingest.load.end").
		Str("file_path", job.FilePath).Int64("rows_loaded", stats.RowsLoaded).Emit("file load complete")
	return stats, nil
}

func (l *Loader) recordBatchCost(ms float64) {
	window := l.rt.Config.Ingest.P95Window.Value
	if window < 1 {
		window = 1
	}
	l.p95Mu.Lock()
	defer l.p95Mu.Unlock()
	l.p95Window = append(l.p95Window, ms)
	if len(l.p95Window) > window {
		l.p95Window = l.p95Window[len(l.p95Window)-window:]
	}
}

func (l *Loader) p95() float64 {
	l.p95Mu.Lock()
	samples := append([]float64(nil), l.p95Window...)
	l.p95Mu.Unlock()
	if len(samples) == 0 {
		return 0
	}
	sort.Float64s(samples)
	idx := int(0.95 * float64(len(samples)-1))
	return samples[idx]
}

func (l *Loader) evaluateBackpressure(p95Ms int, failRate float64) backpressure.Transition {
	l.bpMu.Lock()
	defer l.bpMu.Unlock()
	return l.bp.Evaluate(p95Ms, failRate)
}
