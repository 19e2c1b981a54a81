package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"stationsync/internal/metrics"
)

const sparklineChars = "▁▂▃▄▅▆▇█"

// BatchHistory keeps a rolling window of p95 batch-cost values for
// sparkline rendering. The analogue of the LagHistory, tracking
// backpressure pressure instead of replication lag.
type BatchHistory struct {
	values []float64
	cap    int
}

// NewBatchHistory creates a history buffer with the given capacity.
func NewBatchHistory(cap int) *BatchHistory {
	return &BatchHistory{
		values: make([]float64, 0, cap),
		cap:    cap,
	}
}

// Push adds a new p95 batch cost sample.
func (h *BatchHistory) Push(v float64) {
	if len(h.values) >= h.cap {
		copy(h.values, h.values[1:])
		h.values = h.values[:len(h.values)-1]
	}
	h.values = append(h.values, v)
}

// Sparkline returns a sparkline string representation.
func (h *BatchHistory) Sparkline(width int) string {
	if len(h.values) == 0 {
		return strings.Repeat("▁", width)
	}

	vals := h.values
	if len(vals) > width {
		vals = vals[len(vals)-width:]
	}

	var maxVal float64
	for _, v := range vals {
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal == 0 {
		maxVal = 1
	}

	runes := []rune(sparklineChars)
	var b strings.Builder
	for _, v := range vals {
		idx := int(v / maxVal * float64(len(runes)-1))
		if idx >= len(runes) {
			idx = len(runes) - 1
		}
		b.WriteRune(runes[idx])
	}

	for b.Len() < width {
		b.WriteRune(runes[0])
	}

	return b.String()
}

// RenderBackpressure renders the current batch_size/workers/congestion
// state with a p95 batch-cost sparkline.
func RenderBackpressure(snap metrics.Snapshot, history *BatchHistory, width int) string {
	history.Push(snap.P95BatchMs)

	stateColor := lipgloss.Color("#10B981") // green
	stateLabel := "steady"
	if snap.Congested {
		stateColor = lipgloss.Color("#EF4444") // red
		stateLabel = "congested"
	}
	stateStyle := lipgloss.NewStyle().Foreground(stateColor)

	sparkWidth := width - 40
	if sparkWidth < 10 {
		sparkWidth = 10
	}
	spark := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Render(history.Sparkline(sparkWidth))

	return fmt.Sprintf("  %s  batch=%d workers=%d p95=%.0fms  %s",
		stateStyle.Render(stateLabel), snap.BatchSize, snap.Workers, snap.P95BatchMs, spark)
}
