package backpressure

import "testing"

func TestBackpressureScenario(t *testing.T) {
	th := Thresholds{P95Ms: 2000, FailRate: 1.0, MinBatch: 1000, MinWorkers: 1}
	c := New(th, 4000, 4)

	costs := []int{500, 900, 2500, 2700, 2800}
	var transitions []Transition
	for _, cost := range costs {
		transitions = append(transitions, c.Evaluate(cost, 0))
	}

	if transitions[0].Action != ActionRecover || transitions[1].Action != ActionRecover {
		t.Fatalf("expected recover for first two batches, got %+v", transitions[:2])
	}
	if transitions[2].Action != ActionShrinkBatch || transitions[2].BatchSize != 2000 {
		t.Fatalf("batch 3: got %+v, want shrink_batch to 2000", transitions[2])
	}
	if transitions[3].Action != ActionShrinkBatch || transitions[3].BatchSize != 1000 {
		t.Fatalf("batch 4: got %+v, want shrink_batch to 1000", transitions[3])
	}
	if transitions[4].BatchSize != 1000 {
		t.Fatalf("batch 5: batch size moved past floor: %+v", transitions[4])
	}

	enters := 0
	for _, tr := range transitions {
		if tr.Entered {
			enters++
		}
	}
	if enters != 1 {
		t.Fatalf("enters = %d, want exactly 1", enters)
	}
}

func TestBatchSizeNeverBelowMinBatch(t *testing.T) {
	th := Thresholds{P95Ms: 100, FailRate: 1.0, MinBatch: 500, MinWorkers: 1}
	c := New(th, 900, 1)
	for i := 0; i < 10; i++ {
		tr := c.Evaluate(99999, 0)
		if tr.BatchSize < th.MinBatch {
			t.Fatalf("batch_size fell below floor: %d", tr.BatchSize)
		}
	}
}

func TestWorkersNeverBelowMinWorkers(t *testing.T) {
	th := Thresholds{P95Ms: 100, FailRate: 1.0, MinBatch: 1, MinWorkers: 2}
	c := New(th, 1, 5)
	for i := 0; i < 10; i++ {
		tr := c.Evaluate(99999, 0)
		if tr.Workers < th.MinWorkers {
			t.Fatalf("workers fell below floor: %d", tr.Workers)
		}
	}
}

func TestRecoverWhenBelowThresholds(t *testing.T) {
	th := Thresholds{P95Ms: 2000, FailRate: 0.05, MinBatch: 100, MinWorkers: 1}
	c := New(th, 4000, 4)
	tr := c.Evaluate(500, 0.0)
	if tr.Action != ActionRecover {
		t.Fatalf("Action = %s, want recover", tr.Action)
	}
	if tr.Entered || tr.Exited {
		t.Fatalf("unexpected transition on first healthy batch: %+v", tr)
	}
}

func TestExitTransition(t *testing.T) {
	th := Thresholds{P95Ms: 2000, FailRate: 1.0, MinBatch: 100, MinWorkers: 1}
	c := New(th, 4000, 4)
	tr1 := c.Evaluate(3000, 0)
	if !tr1.Entered {
		t.Fatalf("expected enter on first congested batch: %+v", tr1)
	}
	tr2 := c.Evaluate(500, 0)
	if !tr2.Exited {
		t.Fatalf("expected exit once congestion clears: %+v", tr2)
	}
}
