package orchestrator

import (
	"testing"
	"time"

	"stationsync/internal/merge"
)

func TestRecorderDiagnosticsPercentiles(t *testing.T) {
	r := NewRecorder()
	for _, c := range []float64{500, 900, 2500, 2700, 2800} {
		r.RecordBatch(c, 0)
	}
	d := r.Diagnostics()
	if d.SamplesCount != 5 {
		t.Fatalf("SamplesCount = %d, want 5", d.SamplesCount)
	}
	if d.BatchCostP95 != 2700 {
		t.Fatalf("BatchCostP95 = %v, want 2700 (nearest-rank idx=3)", d.BatchCostP95)
	}
	if d.BatchCostMax != 2800 || d.BatchCostMin != 500 {
		t.Fatalf("min/max = %v/%v", d.BatchCostMin, d.BatchCostMax)
	}
}

func TestRecorderDiagnosticsEmpty(t *testing.T) {
	r := NewRecorder()
	d := r.Diagnostics()
	if d.SamplesCount != 0 || d.BatchCostP50 != 0 {
		t.Fatalf("expected zero-value diagnostics for empty recorder, got %+v", d)
	}
}

func TestRecorderBackpressureCounts(t *testing.T) {
	r := NewRecorder()
	r.RecordBackpressure(true, false)
	r.RecordBackpressure(false, false)
	r.RecordBackpressure(false, true)
	d := r.Diagnostics()
	if d.BackpressureEnter != 1 || d.BackpressureExit != 1 {
		t.Fatalf("enter/exit = %d/%d, want 1/1", d.BackpressureEnter, d.BackpressureExit)
	}
}

func TestSlowSQLTopOrdersByCostDescending(t *testing.T) {
	r := NewRecorder()
	base := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	r.RecordMergeSegment(merge.Window{Start: base, End: base.Add(time.Hour)}, merge.Stats{SQLCostMs: 50, AffectedRows: 10})
	r.RecordMergeSegment(merge.Window{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)}, merge.Stats{SQLCostMs: 500, AffectedRows: 20})
	r.RecordMergeSegment(merge.Window{Start: base.Add(2 * time.Hour), End: base.Add(3 * time.Hour)}, merge.Stats{SQLCostMs: 200, AffectedRows: 5})

	top := r.SlowSQLTop(2)
	if len(top) != 2 {
		t.Fatalf("len(top) = %d, want 2", len(top))
	}
	if top[0].SQLCostMs != 500 || top[1].SQLCostMs != 200 {
		t.Fatalf("top not sorted descending: %+v", top)
	}
}

func TestNearestRankSingleSample(t *testing.T) {
	if got := nearestRank([]float64{42}, 0.95); got != 42 {
		t.Fatalf("nearestRank single = %v, want 42", got)
	}
}
