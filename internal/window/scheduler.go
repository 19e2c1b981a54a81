// Package window implements C11: splitting [start,end) into granularity
// segments and driving the merge executor per segment, folding results.
// Grounded on the internal/pipeline.Pipeline Progress aggregation
// across phases — the same "drive N sub-units, fold results" shape, scaled
// down to pure segment math plus calls into merge.Executor.
package window

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"stationsync/internal/merge"
)

// ParseGranularity parses strings like "30m" or "1h" into seconds, with the
// minimums mandated by C11: 60s for "m", 3600s for "h"; defaults to 3600s
// when g is empty.
func ParseGranularity(g string) (int, error) {
	if g == "" {
		return 3600, nil
	}
	if len(g) < 2 {
		return 0, fmt.Errorf("window: invalid granularity %q", g)
	}
	unit := g[len(g)-1]
	numPart := g[:len(g)-1]
	n, err := strconv.Atoi(numPart)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("window: invalid granularity %q", g)
	}
	switch unit {
	case 'm':
		secs := n * 60
		if secs < 60 {
			secs = 60
		}
		return secs, nil
	case 'h':
		secs := n * 3600
		if secs < 3600 {
			secs = 3600
		}
		return secs, nil
	default:
		return 0, fmt.Errorf("window: invalid granularity unit in %q (want 'm' or 'h')", g)
	}
}

// Split divides [start, end) into consecutive half-open segments of
// granularitySeconds length, the last possibly shorter.
func Split(start, end time.Time, granularitySeconds int) []merge.Window {
	if !start.Before(end) {
		return nil
	}
	step := time.Duration(granularitySeconds) * time.Second
	var segs []merge.Window
	for s := start; s.Before(end); s = s.Add(step) {
		e := s.Add(step)
		if e.After(end) {
			e = end
		}
		segs = append(segs, merge.Window{Start: s, End: e})
	}
	return segs
}

// Scheduler drives the merge executor across a window, segmented or not.
type Scheduler struct {
	executor *merge.Executor
}

// New constructs a Scheduler over the given merge executor.
func New(executor *merge.Executor) *Scheduler {
	return &Scheduler{executor: executor}
}

// Result is the aggregated outcome of running merge over a (possibly
// segmented) window.
type Result struct {
	Total      merge.Stats
	Segmented  bool
	Granularity string
	PerSegment []merge.Stats
	Segments   []merge.Window
}

// Run executes the merge over [start, end). If segmented is true, the
// window is split per granularity and each segment is merged in order,
// in-order because the fact upsert contract is last-writer-wins and must
// stay deterministic; otherwise the whole window is merged as one segment.
func (s *Scheduler) Run(ctx context.Context, start, end time.Time, segmented bool, granularity string) (Result, error) {
	res := Result{Segmented: segmented, Granularity: granularity}

	var segs []merge.Window
	if segmented {
		secs, err := ParseGranularity(granularity)
		if err != nil {
			return res, err
		}
		segs = Split(start, end, secs)
	} else {
		segs = []merge.Window{{Start: start, End: end}}
	}

	for _, seg := range segs {
		stats, err := s.executor.RunSegment(ctx, seg)
		if err != nil {
			return res, fmt.Errorf("window: segment [%s,%s): %w", seg.Start, seg.End, err)
		}
		res.PerSegment = append(res.PerSegment, stats)
		res.Segments = append(res.Segments, seg)
		merge.Sum(&res.Total, stats)
	}
	return res, nil
}
