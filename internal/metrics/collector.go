// Package metrics tracks live run progress (copy throughput, backpressure
// state, merge diagnostics) for consumption by internal/tui and
// internal/statusapi. Grounded on the internal/metrics.Collector:
// same mutex-guarded snapshot struct, sliding-window throughput, ring-buffer
// logs, and a subscriber broadcast loop — repurposed from replication LSN
// lag tracking to ingest/merge progress tracking.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// FileStatus is the lifecycle state of one mapped CSV file within a run.
type FileStatus string

const (
	FilePending FileStatus = "pending"
	FileLoading FileStatus = "loading"
	FileDone    FileStatus = "done"
	FileFailed  FileStatus = "failed"
)

// FileProgress tracks per-file copy progress, the analogue of a
// TableProgress record in a table-copy migration tool.
type FileProgress struct {
	Path        string     `json:"path"`
	Status      FileStatus `json:"status"`
	RowsRead    int64      `json:"rows_read"`
	RowsLoaded  int64      `json:"rows_loaded"`
	RowsRejected int64     `json:"rows_rejected"`
	StartedAt   time.Time  `json:"-"`
	ElapsedSec  float64    `json:"elapsed_sec"`
}

// Snapshot is the complete live progress state at a point in time.
type Snapshot struct {
	Timestamp  time.Time `json:"timestamp"`
	Phase      string    `json:"phase"`
	ElapsedSec float64   `json:"elapsed_sec"`

	// Copy progress
	FilesTotal     int            `json:"files_total"`
	FilesCompleted int            `json:"files_completed"`
	Files          []FileProgress `json:"files"`

	// Throughput
	RowsPerSec float64 `json:"rows_per_sec"`
	TotalRows  int64   `json:"total_rows"`

	// Backpressure
	BatchSize         int  `json:"batch_size"`
	Workers           int  `json:"workers"`
	Congested         bool `json:"congested"`
	BackpressureEnter int  `json:"backpressure_enter_count"`
	BackpressureExit  int  `json:"backpressure_exit_count"`
	P95BatchMs        float64 `json:"p95_batch_ms"`

	// Merge diagnostics
	MergeWindowStart time.Time `json:"merge_window_start"`
	MergeWindowEnd   time.Time `json:"merge_window_end"`
	RowsMerged       int64     `json:"rows_merged"`
	DedupRatio       float64   `json:"dedup_ratio"`
	TZFallbackCount  int64     `json:"tz_fallback_count"`

	// Errors
	ErrorCount int    `json:"error_count"`
	LastError  string `json:"last_error,omitempty"`
}

// LogEntry represents a log line captured for the UI.
type LogEntry struct {
	Time    time.Time         `json:"time"`
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Collector aggregates live run progress and provides snapshots for
// consumption by the status API and TUI.
type Collector struct {
	logger zerolog.Logger

	mu         sync.RWMutex
	phase      string
	startedAt  time.Time
	files      map[string]*FileProgress
	fileOrder  []string

	batchSize int
	workers   int
	congested bool
	bpEnter   atomic.Int64
	bpExit    atomic.Int64
	p95BatchMs atomic.Int64 // stored as milli-int to stay lock-free

	mergeWindowStart time.Time
	mergeWindowEnd   time.Time
	rowsMerged       atomic.Int64
	tzFallback       atomic.Int64
	dedupRatioBits   atomic.Uint64

	totalRows atomic.Int64

	remote         atomic.Bool
	remoteRowsPerSecBits atomic.Uint64

	errorCount atomic.Int64
	lastError  atomic.Value // string

	rowWindow *slidingWindow

	subMu       sync.Mutex
	subscribers map[chan Snapshot]struct{}

	logMu  sync.Mutex
	logs   []LogEntry
	logCap int

	done chan struct{}
}

// NewCollector creates a new Collector with a running broadcast loop.
func NewCollector(logger zerolog.Logger) *Collector {
	c := &Collector{
		logger:      logger.With().Str("component", "metrics").Logger(),
		files:       make(map[string]*FileProgress),
		subscribers: make(map[chan Snapshot]struct{}),
		rowWindow:   newSlidingWindow(60 * time.Second),
		logs:        make([]LogEntry, 0, 500),
		logCap:      500,
		done:        make(chan struct{}),
	}
	go c.broadcastLoop()
	return c
}

// SetPhase updates the current pipeline phase (prepare_dim, create_staging,
// copy_from_mapping, merge_window, data_report).
func (c *Collector) SetPhase(phase string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = phase
	if c.startedAt.IsZero() {
		c.startedAt = time.Now()
	}
}

// SetFiles initializes the per-file progress tracking list.
func (c *Collector) SetFiles(paths []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = make(map[string]*FileProgress, len(paths))
	c.fileOrder = make([]string, 0, len(paths))
	for _, p := range paths {
		c.files[p] = &FileProgress{Path: p, Status: FilePending}
		c.fileOrder = append(c.fileOrder, p)
	}
}

// FileStarted marks a file as actively loading.
func (c *Collector) FileStarted(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fp, ok := c.files[path]; ok {
		fp.Status = FileLoading
		fp.StartedAt = time.Now()
	}
}

// UpdateFileProgress updates per-batch counters for an in-flight file.
func (c *Collector) UpdateFileProgress(path string, rowsRead, rowsLoaded, rowsRejected int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fp, ok := c.files[path]; ok {
		fp.RowsRead = rowsRead
		fp.RowsLoaded = rowsLoaded
		fp.RowsRejected = rowsRejected
		if !fp.StartedAt.IsZero() {
			fp.ElapsedSec = time.Since(fp.StartedAt).Seconds()
		}
	}
}

// FileDone marks a file complete (success or threshold failure).
func (c *Collector) FileDone(path string, failed bool, rowsLoaded int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fp, ok := c.files[path]; ok {
		if failed {
			fp.Status = FileFailed
		} else {
			fp.Status = FileDone
		}
		fp.RowsLoaded = rowsLoaded
		if !fp.StartedAt.IsZero() {
			fp.ElapsedSec = time.Since(fp.StartedAt).Seconds()
		}
	}
}

// RecordRows adds to the rolling rows/sec window and cumulative total.
func (c *Collector) RecordRows(n int64) {
	c.totalRows.Add(n)
	c.rowWindow.Add(time.Now(), float64(n))
}

// RecordBackpressure updates the live batch_size/workers/congested state
// and increments enter/exit counters on transition.
func (c *Collector) RecordBackpressure(batchSize, workers int, congested, entered, exited bool, p95BatchMs float64) {
	c.mu.Lock()
	c.batchSize = batchSize
	c.workers = workers
	c.congested = congested
	c.mu.Unlock()
	c.p95BatchMs.Store(int64(p95BatchMs * 1000))
	if entered {
		c.bpEnter.Add(1)
	}
	if exited {
		c.bpExit.Add(1)
	}
}

// RecordMerge updates the live merge window/diagnostics state.
func (c *Collector) RecordMerge(windowStart, windowEnd time.Time, rowsMerged, tzFallback int64, dedupRatio float64) {
	c.mu.Lock()
	c.mergeWindowStart = windowStart
	c.mergeWindowEnd = windowEnd
	c.mu.Unlock()
	c.rowsMerged.Store(rowsMerged)
	c.tzFallback.Store(tzFallback)
	c.dedupRatioBits.Store(math.Float64bits(dedupRatio))
}

// RecordError increments the error count and stores the last error message.
func (c *Collector) RecordError(err error) {
	c.errorCount.Add(1)
	if err != nil {
		c.lastError.Store(err.Error())
	}
}

// AddLog appends a log entry to the ring buffer.
func (c *Collector) AddLog(entry LogEntry) {
	c.logMu.Lock()
	defer c.logMu.Unlock()
	if len(c.logs) >= c.logCap {
		n := c.logCap / 4
		copy(c.logs, c.logs[n:])
		c.logs = c.logs[:len(c.logs)-n]
	}
	c.logs = append(c.logs, entry)
}

// Logs returns a copy of recent log entries.
func (c *Collector) Logs() []LogEntry {
	c.logMu.Lock()
	defer c.logMu.Unlock()
	out := make([]LogEntry, len(c.logs))
	copy(out, c.logs)
	return out
}

// Snapshot returns the current metrics state (thread-safe).
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	var elapsed float64
	if !c.startedAt.IsZero() {
		elapsed = now.Sub(c.startedAt).Seconds()
	}

	files := make([]FileProgress, 0, len(c.fileOrder))
	completed := 0
	for _, key := range c.fileOrder {
		fp := *c.files[key]
		files = append(files, fp)
		if fp.Status == FileDone || fp.Status == FileFailed {
			completed++
		}
	}

	var lastErr string
	if v := c.lastError.Load(); v != nil {
		lastErr = v.(string)
	}

	rowsPerSec := c.rowWindow.Rate()
	if c.remote.Load() {
		rowsPerSec = math.Float64frombits(c.remoteRowsPerSecBits.Load())
	}

	return Snapshot{
		Timestamp:         now,
		Phase:             c.phase,
		ElapsedSec:        elapsed,
		FilesTotal:        len(c.fileOrder),
		FilesCompleted:    completed,
		Files:             files,
		RowsPerSec:        rowsPerSec,
		TotalRows:         c.totalRows.Load(),
		BatchSize:         c.batchSize,
		Workers:           c.workers,
		Congested:         c.congested,
		BackpressureEnter: int(c.bpEnter.Load()),
		BackpressureExit:  int(c.bpExit.Load()),
		P95BatchMs:        float64(c.p95BatchMs.Load()) / 1000.0,
		MergeWindowStart:  c.mergeWindowStart,
		MergeWindowEnd:    c.mergeWindowEnd,
		RowsMerged:        c.rowsMerged.Load(),
		DedupRatio:        math.Float64frombits(c.dedupRatioBits.Load()),
		TZFallbackCount:   c.tzFallback.Load(),
		ErrorCount:        int(c.errorCount.Load()),
		LastError:         lastErr,
	}
}

// ApplyRemoteSnapshot overwrites local state with a Snapshot fetched from a
// remote run's status feed, so the TUI can render an attached run through
// the same Collector/Snapshot path as an in-process one.
func (c *Collector) ApplyRemoteSnapshot(s Snapshot) {
	c.mu.Lock()
	c.phase = s.Phase
	if c.startedAt.IsZero() {
		c.startedAt = s.Timestamp.Add(-time.Duration(s.ElapsedSec * float64(time.Second)))
	}
	c.files = make(map[string]*FileProgress, len(s.Files))
	c.fileOrder = make([]string, 0, len(s.Files))
	for _, fp := range s.Files {
		cp := fp
		c.files[fp.Path] = &cp
		c.fileOrder = append(c.fileOrder, fp.Path)
	}
	c.batchSize = s.BatchSize
	c.workers = s.Workers
	c.congested = s.Congested
	c.mergeWindowStart = s.MergeWindowStart
	c.mergeWindowEnd = s.MergeWindowEnd
	c.mu.Unlock()

	c.totalRows.Store(s.TotalRows)
	c.p95BatchMs.Store(int64(s.P95BatchMs * 1000))
	c.bpEnter.Store(int64(s.BackpressureEnter))
	c.bpExit.Store(int64(s.BackpressureExit))
	c.rowsMerged.Store(s.RowsMerged)
	c.tzFallback.Store(s.TZFallbackCount)
	c.dedupRatioBits.Store(math.Float64bits(s.DedupRatio))
	c.errorCount.Store(int64(s.ErrorCount))
	if s.LastError != "" {
		c.lastError.Store(s.LastError)
	}
	c.remote.Store(true)
	c.remoteRowsPerSecBits.Store(math.Float64bits(s.RowsPerSec))
}

// Subscribe returns a channel that receives periodic Snapshot updates.
func (c *Collector) Subscribe() chan Snapshot {
	ch := make(chan Snapshot, 4)
	c.subMu.Lock()
	c.subscribers[ch] = struct{}{}
	c.subMu.Unlock()
	return ch
}

// Unsubscribe removes a subscription channel.
func (c *Collector) Unsubscribe(ch chan Snapshot) {
	c.subMu.Lock()
	delete(c.subscribers, ch)
	c.subMu.Unlock()
}

// Close stops the broadcast loop.
func (c *Collector) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *Collector) broadcastLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			snap := c.Snapshot()
			c.subMu.Lock()
			for ch := range c.subscribers {
				select {
				case ch <- snap:
				default:
				}
			}
			c.subMu.Unlock()
		}
	}
}

// --- Sliding window for throughput calculation ---

type windowEntry struct {
	time  time.Time
	value float64
}

type slidingWindow struct {
	mu      sync.Mutex
	entries []windowEntry
	window  time.Duration
}

func newSlidingWindow(d time.Duration) *slidingWindow {
	return &slidingWindow{
		entries: make([]windowEntry, 0, 128),
		window:  d,
	}
}

func (w *slidingWindow) Add(t time.Time, val float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, windowEntry{time: t, value: val})
	w.evict(t)
}

func (w *slidingWindow) Rate() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	w.evict(now)
	if len(w.entries) == 0 {
		return 0
	}
	var total float64
	for _, e := range w.entries {
		total += e.value
	}
	elapsed := now.Sub(w.entries[0].time).Seconds()
	if elapsed < 1 {
		elapsed = 1
	}
	return total / elapsed
}

func (w *slidingWindow) evict(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.entries) && w.entries[i].time.Before(cutoff) {
		i++
	}
	if i > 0 {
		copy(w.entries, w.entries[i:])
		w.entries = w.entries[:len(w.entries)-i]
	}
}
