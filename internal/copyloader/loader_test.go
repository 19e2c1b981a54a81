package copyloader

import (
	"testing"

	"github.com/rs/zerolog"

	"stationsync/internal/config"
	"stationsync/internal/eventlog"
	"stationsync/internal/runtime"
)

func testLoader(t *testing.T) *Loader {
	t.Helper()
	cfg := config.Defaults()
	rt := &runtime.Runtime{Config: cfg, Logger: zerolog.Nop()}
	events := eventlog.New(zerolog.Nop(), "copyloader", 1, 0, nil)
	return New(rt, events)
}

func TestP95WindowBounded(t *testing.T) {
	l := testLoader(t)
	l.rt.Config.Ingest.P95Window.Value = 3
	for i := 1; i <= 10; i++ {
		l.recordBatchCost(float64(i) * 100)
	}
	if len(l.p95Window) != 3 {
		t.Fatalf("p95Window length = %d, want 3 (bounded)", len(l.p95Window))
	}
}

func TestP95EmptyIsZero(t *testing.T) {
	l := testLoader(t)
	if got := l.p95(); got != 0 {
		t.Fatalf("p95() = %v, want 0 for empty window", got)
	}
}

func TestP95ComputesNearestRank(t *testing.T) {
	l := testLoader(t)
	l.rt.Config.Ingest.P95Window.Value = 100
	for _, v := range []float64{500, 900, 2500, 2700, 2800} {
		l.recordBatchCost(v)
	}
	if got := l.p95(); got != 2700 {
		t.Fatalf("p95() = %v, want 2700 (nearest-rank idx=int(0.95*4)=3 over 5 samples)", got)
	}
}

func TestEvaluateBackpressureShrinksOnCongestion(t *testing.T) {
	cfg := config.Defaults()
	cfg.Ingest.P95Ms.Value = 100
	cfg.Ingest.FailRateThreshold.Value = 1.0
	cfg.Ingest.MinBatch.Value = 10
	cfg.Ingest.BatchSize.Value = 1000
	rt := &runtime.Runtime{Config: cfg, Logger: zerolog.Nop()}
	l := New(rt, eventlog.New(zerolog.Nop(), "copyloader", 1, 0, nil))

	tr := l.evaluateBackpressure(5000, 0)
	if tr.Action != "shrink_batch" {
		t.Fatalf("Action = %s, want shrink_batch", tr.Action)
	}
	if l.currentBatchSize() != 500 {
		t.Fatalf("currentBatchSize() = %d, want 500", l.currentBatchSize())
	}
}
