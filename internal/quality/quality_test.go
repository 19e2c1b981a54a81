package quality

import (
	"testing"
	"time"
)

func mkSample(group string, minute int, value float64) Sample {
	base := time.Date(2025, 2, 28, 2, 0, 0, 0, time.UTC)
	return Sample{GroupValue: group, TSBucket: base.Add(time.Duration(minute) * time.Minute), Value: value}
}

func TestBuildCoverageTopOrdering(t *testing.T) {
	samples := []Sample{
		mkSample("a", 0, 1), mkSample("a", 1, 1), mkSample("a", 2, 1),
		mkSample("b", 0, 1),
	}
	rep := Build(samples, time.Time{}, time.Time{}.Add(4*time.Hour), GroupMetric, 10, 60, nil)
	if len(rep.CoverageTop) != 2 {
		t.Fatalf("CoverageTop = %v", rep.CoverageTop)
	}
	if rep.CoverageTop[0].Group != "a" || rep.CoverageTop[0].Rows != 3 {
		t.Fatalf("expected group a first with 3 rows, got %+v", rep.CoverageTop[0])
	}
}

func TestZeroRatio(t *testing.T) {
	if got := zeroRatio([]float64{0, 0, 1, 2}); got != 0.5 {
		t.Fatalf("zeroRatio = %v, want 0.5", got)
	}
	if got := zeroRatio(nil); got != 0 {
		t.Fatalf("zeroRatio(nil) = %v, want 0", got)
	}
}

func TestMaxConstRunRatio(t *testing.T) {
	if got := maxConstRunRatio([]float64{1, 1, 1, 2, 3}); got != 0.6 {
		t.Fatalf("maxConstRunRatio = %v, want 0.6", got)
	}
}

func TestPercentilesNearestRank(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	p01, p50, p95 := percentiles(values)
	if p50 != 5 {
		t.Fatalf("p50 = %v, want 5 (nearest-rank)", p50)
	}
	if p01 < 1 || p95 > 10 {
		t.Fatalf("p01=%v p95=%v out of range", p01, p95)
	}
}

func TestOutlierDetection(t *testing.T) {
	samples := []Sample{mkSample("m1", 0, 500), mkSample("m1", 1, 10)}
	bounds := MetricBounds{"m1": {Min: 0, Max: 100}}
	rep := Build(samples, time.Time{}, time.Time{}.Add(time.Hour), GroupMetric, 10, 60, bounds)
	if len(rep.OutliersAgg) != 1 || rep.OutliersAgg[0].Value != 500 {
		t.Fatalf("OutliersAgg = %+v", rep.OutliersAgg)
	}
}

func TestGapDetection(t *testing.T) {
	samples := []Sample{mkSample("m1", 0, 1), mkSample("m1", 10, 1)}
	rep := Build(samples, time.Time{}, time.Time{}.Add(time.Hour), GroupMetric, 10, 60, nil)
	if len(rep.GapsTop) != 1 {
		t.Fatalf("GapsTop = %+v, want 1 gap (10min > 1.5x60s expected)", rep.GapsTop)
	}
}
