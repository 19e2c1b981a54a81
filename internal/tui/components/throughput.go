package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"stationsync/internal/metrics"
)

var throughputValueStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))

// RenderThroughput renders the ingest/merge throughput counters.
func RenderThroughput(snap metrics.Snapshot, width int) string {
	rowsPerSec := throughputValueStyle.Render(fmt.Sprintf("%.0f rows/s", snap.RowsPerSec))
	totalRows := formatCount(snap.TotalRows)
	merged := formatCount(snap.RowsMerged)
	dedup := throughputValueStyle.Render(fmt.Sprintf("%.1f%%", snap.DedupRatio*100))

	errStr := ""
	if snap.ErrorCount > 0 {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
		errStr = fmt.Sprintf("  Errors: %s", errStyle.Render(fmt.Sprintf("%d", snap.ErrorCount)))
	}

	tzStr := ""
	if snap.TZFallbackCount > 0 {
		tzStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
		tzStr = fmt.Sprintf("  TZ fallback: %s", tzStyle.Render(fmt.Sprintf("%d", snap.TZFallbackCount)))
	}

	return fmt.Sprintf("  %s  |  Total: %s rows  |  Merged: %s (dedup %s)%s%s",
		rowsPerSec, totalRows, merged, dedup, errStr, tzStr)
}
