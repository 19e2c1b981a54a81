package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"stationsync/internal/metrics"
)

// RenderProgress renders the overall file-copy progress bar.
func RenderProgress(snap metrics.Snapshot, width int) string {
	total := snap.FilesTotal
	done := snap.FilesCompleted
	if total == 0 {
		return "  No files to copy"
	}

	pct := float64(done) / float64(total) * 100

	barWidth := width - 40
	if barWidth < 10 {
		barWidth = 10
	}

	filled := int(float64(barWidth) * pct / 100)
	if filled > barWidth {
		filled = barWidth
	}
	empty := barWidth - filled

	coloredFull := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Render(strings.Repeat("█", filled))
	coloredEmpty := lipgloss.NewStyle().Foreground(lipgloss.Color("#374151")).Render(strings.Repeat("░", empty))

	return fmt.Sprintf("  Overall: %s%s %5.1f%% (%d/%d files)",
		coloredFull, coloredEmpty, pct, done, total)
}
