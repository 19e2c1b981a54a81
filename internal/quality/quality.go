// Package quality implements C14: coverage, gap, outlier, quantile, and
// zero/const statistics per window and group-by key. Grounded on the
// teacher's internal/metrics.Collector aggregation style (pre-sorted
// slices, simple nearest-rank percentile) — no pack repo pulls in a
// quantile library (DDSketch appears only in a manifest-only
// other_examples entry with no source to imitate), so this stays on
// stdlib sort/math, documented in DESIGN.md.
package quality

import (
	"math"
	"sort"
	"time"
)

// GroupKey names which dimension rows are grouped by.
type GroupKey string

const (
	GroupMetric  GroupKey = "metric"
	GroupDevice  GroupKey = "device"
	GroupStation GroupKey = "station"
	GroupBatch   GroupKey = "batch"
	GroupSource  GroupKey = "source"
)

// Sample is one fact row's projection needed for quality statistics.
type Sample struct {
	GroupValue string
	TSBucket   time.Time
	Value      float64
}

// CoverageEntry is one top-K group's row count and ts_bucket span.
type CoverageEntry struct {
	Group    string
	Rows     int
	MinTS    time.Time
	MaxTS    time.Time
}

// CoverageRate adds expected-vs-actual coverage for one group.
type CoverageRate struct {
	Group           string
	Expected        int
	Actual          int
	Rate            float64
	GapSecondsTotal float64
}

// GapRecord is one inter-sample gap exceeding 1.5x the expected interval.
type GapRecord struct {
	Group      string
	From       time.Time
	To         time.Time
	GapSeconds float64
}

// Outlier is a row outside [valid_min, valid_max].
type Outlier struct {
	Group string
	TS    time.Time
	Value float64
}

// Quantiles holds p01/p50/p95 for a group.
type Quantiles struct {
	Group string
	P01   float64
	P50   float64
	P95   float64
}

// ZeroConst holds zero-value ratio and max-same-value-run ratio for a
// group.
type ZeroConst struct {
	Group         string
	ZeroRatio     float64
	MaxConstRatio float64
}

// Report is the complete data-quality document for one window.
type Report struct {
	WindowStart    time.Time
	WindowEnd      time.Time
	GroupBy        GroupKey
	CoverageTop    []CoverageEntry
	HistogramHourly map[string][]int // group -> per-hour-bucket counts
	CoverageRates  []CoverageRate
	GapsTop        []GapRecord
	OutliersAgg    []Outlier
	QuantilesAgg   []Quantiles
	ZeroConstAgg   []ZeroConst
}

// MetricBounds supplies per-group valid_min/valid_max for outlier
// detection, keyed by group value (e.g. metric_key when GroupBy=metric).
type MetricBounds map[string]struct{ Min, Max float64 }

// Build computes the full report from a flat sample set, already filtered
// to [windowStart, windowEnd). topK bounds CoverageTop/GapsTop sizes;
// expectedIntervalSeconds drives coverage_rate/gaps_top.
func Build(samples []Sample, windowStart, windowEnd time.Time, groupBy GroupKey, topK int, expectedIntervalSeconds int, bounds MetricBounds) Report {
	rep := Report{
		WindowStart:     windowStart,
		WindowEnd:       windowEnd,
		GroupBy:         groupBy,
		HistogramHourly: map[string][]int{},
	}

	groups := groupSamples(samples)

	type groupCount struct {
		key   string
		count int
	}
	var counts []groupCount
	for k, ss := range groups {
		counts = append(counts, groupCount{k, len(ss)})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].count > counts[j].count })
	if topK > 0 && len(counts) > topK {
		counts = counts[:topK]
	}

	for _, gc := range counts {
		ss := groups[gc.key]
		sort.Slice(ss, func(i, j int) bool { return ss[i].TSBucket.Before(ss[j].TSBucket) })

		minTS, maxTS := ss[0].TSBucket, ss[0].TSBucket
		for _, s := range ss {
			if s.TSBucket.Before(minTS) {
				minTS = s.TSBucket
			}
			if s.TSBucket.After(maxTS) {
				maxTS = s.TSBucket
			}
		}
		rep.CoverageTop = append(rep.CoverageTop, CoverageEntry{Group: gc.key, Rows: len(ss), MinTS: minTS, MaxTS: maxTS})

		rep.HistogramHourly[gc.key] = hourlyHistogram(ss, windowStart, windowEnd)

		if expectedIntervalSeconds > 0 {
			expected := int(math.Ceil(maxTS.Sub(minTS).Seconds()/float64(expectedIntervalSeconds))) + 1
			rate := float64(len(ss)) / float64(expected)
			if rate > 1.0 {
				rate = 1.0
			}
			var gapTotal float64
			threshold := 1.5 * float64(expectedIntervalSeconds)
			for i := 1; i < len(ss); i++ {
				gap := ss[i].TSBucket.Sub(ss[i-1].TSBucket).Seconds()
				if gap > threshold {
					gapTotal += gap
					rep.GapsTop = append(rep.GapsTop, GapRecord{Group: gc.key, From: ss[i-1].TSBucket, To: ss[i].TSBucket, GapSeconds: gap})
				}
			}
			rep.CoverageRates = append(rep.CoverageRates, CoverageRate{Group: gc.key, Expected: expected, Actual: len(ss), Rate: rate, GapSecondsTotal: gapTotal})
		}

		if b, ok := bounds[gc.key]; ok {
			for _, s := range ss {
				if s.Value < b.Min || s.Value > b.Max {
					rep.OutliersAgg = append(rep.OutliersAgg, Outlier{Group: gc.key, TS: s.TSBucket, Value: s.Value})
				}
			}
		}

		values := make([]float64, len(ss))
		for i, s := range ss {
			values[i] = s.Value
		}
		p01, p50, p95 := percentiles(values)
		rep.QuantilesAgg = append(rep.QuantilesAgg, Quantiles{Group: gc.key, P01: p01, P50: p50, P95: p95})

		rep.ZeroConstAgg = append(rep.ZeroConstAgg, ZeroConst{Group: gc.key, ZeroRatio: zeroRatio(values), MaxConstRatio: maxConstRunRatio(values)})
	}

	sort.Slice(rep.GapsTop, func(i, j int) bool { return rep.GapsTop[i].GapSeconds > rep.GapsTop[j].GapSeconds })
	if topK > 0 && len(rep.GapsTop) > topK {
		rep.GapsTop = rep.GapsTop[:topK]
	}

	return rep
}

func groupSamples(samples []Sample) map[string][]Sample {
	out := map[string][]Sample{}
	for _, s := range samples {
		out[s.GroupValue] = append(out[s.GroupValue], s)
	}
	return out
}

func hourlyHistogram(ss []Sample, windowStart, windowEnd time.Time) []int {
	hours := int(math.Ceil(windowEnd.Sub(windowStart).Hours()))
	if hours < 1 {
		hours = 1
	}
	hist := make([]int, hours)
	for _, s := range ss {
		idx := int(s.TSBucket.Sub(windowStart).Hours())
		if idx >= 0 && idx < len(hist) {
			hist[idx]++
		}
	}
	return hist
}

// percentiles computes p01/p50/p95 via the nearest-rank method over a
// sorted copy of values.
func percentiles(values []float64) (p01, p50, p95 float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	rank := func(p float64) float64 {
		idx := int(p * float64(len(sorted)-1))
		return sorted[idx]
	}
	return rank(0.01), rank(0.50), rank(0.95)
}

func zeroRatio(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	zeros := 0
	for _, v := range values {
		if v == 0 {
			zeros++
		}
	}
	return float64(zeros) / float64(len(values))
}

// maxConstRunRatio returns the longest run of identical consecutive
// values, as a ratio of the total sample count.
func maxConstRunRatio(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	maxRun, run := 1, 1
	for i := 1; i < len(values); i++ {
		if values[i] == values[i-1] {
			run++
			if run > maxRun {
				maxRun = run
			}
		} else {
			run = 1
		}
	}
	return float64(maxRun) / float64(len(values))
}
