package eventlog

import "testing"

func TestSamplingGateExactCount(t *testing.T) {
	g := newGate()
	total, everyN := 103, 10
	count := 0
	for i := 1; i <= total; i++ {
		if g.allow("ev", i, everyN, 0) {
			count++
		}
	}
	want := total / everyN
	if count != want {
		t.Fatalf("count = %d, want %d", count, want)
	}
}

func TestSamplingGateMinIntervalBlocksRapidEmission(t *testing.T) {
	g := newGate()
	if !g.allow("ev", 1, 1, 0) {
		t.Fatal("first call should be allowed")
	}
	if g.allow("ev", 2, 1, 1<<62) {
		t.Fatal("second call should be blocked by min interval")
	}
}

func TestSamplingGateIndependentPerEventName(t *testing.T) {
	g := newGate()
	if !g.allow("a", 1, 1, 0) {
		t.Fatal("event a should be allowed")
	}
	if !g.allow("b", 1, 1, 0) {
		t.Fatal("event b should be allowed independently of a")
	}
}
