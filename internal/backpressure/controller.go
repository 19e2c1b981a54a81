// Package backpressure implements C8: a pure state machine over
// (batch_size, workers) driven by rolling batch P95 cost and fail rate.
// Grounded on the internal/metrics.slidingWindow for the rolling
// input; the decision function itself is new pure logic with no DB/IO.
package backpressure

// Action names the controller's decision for one batch.
type Action string

const (
	ActionShrinkBatch   Action = "shrink_batch"
	ActionShrinkWorkers Action = "shrink_workers"
	ActionRecover       Action = "recover"
)

// Thresholds configures when the controller considers the pipeline
// congested and the floors it will not shrink below.
type Thresholds struct {
	P95Ms       int
	FailRate    float64
	MinBatch    int
	MinWorkers  int
}

// State is the controller's mutable (batch_size, workers) pair.
type State struct {
	BatchSize int
	Workers   int

	congested bool // true while persistent congestion holds, for the enter/exit transition
}

// Controller evaluates one batch outcome and returns the action taken plus
// whether this call caused a congestion enter/exit transition.
type Controller struct {
	thresholds Thresholds
	state      State
}

// New constructs a Controller starting at initial (batch_size, workers).
func New(thresholds Thresholds, initialBatchSize, initialWorkers int) *Controller {
	return &Controller{
		thresholds: thresholds,
		state:      State{BatchSize: initialBatchSize, Workers: initialWorkers},
	}
}

// Transition records whether this Evaluate call flipped the congestion
// flag, for backpressure.enter/exit event emission.
type Transition struct {
	Action       Action
	Entered      bool
	Exited       bool
	BatchSize    int
	Workers      int
}

// Evaluate applies the decision rule from C8 for one observed batch and
// returns the resulting action and any enter/exit transition.
//
//   - p95 > p95_ms OR fail_rate > fail_rate, and batch_size > min_batch:
//     halve batch_size (floored at min_batch); action = shrink_batch.
//   - else if congestion persists and workers > min_workers:
//     decrement workers; action = shrink_workers.
//   - else: action = recover.
func (c *Controller) Evaluate(p95Ms int, failRate float64) Transition {
	congested := p95Ms > c.thresholds.P95Ms || failRate > c.thresholds.FailRate

	wasCongested := c.state.congested
	c.state.congested = congested

	t := Transition{
		Entered: congested && !wasCongested,
		Exited:  !congested && wasCongested,
	}

	switch {
	case congested && c.state.BatchSize > c.thresholds.MinBatch:
		c.state.BatchSize = c.state.BatchSize / 2
		if c.state.BatchSize < c.thresholds.MinBatch {
			c.state.BatchSize = c.thresholds.MinBatch
		}
		t.Action = ActionShrinkBatch
	case congested && c.state.Workers > c.thresholds.MinWorkers:
		c.state.Workers--
		t.Action = ActionShrinkWorkers
	default:
		t.Action = ActionRecover
	}

	t.BatchSize = c.state.BatchSize
	t.Workers = c.state.Workers
	return t
}

// State returns a copy of the controller's current (batch_size, workers).
func (c *Controller) State() State { return c.state }
