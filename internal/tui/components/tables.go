package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"stationsync/internal/metrics"
)

var (
	tblHeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3B82F6"))
	tblLoadingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	tblDoneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	tblFailedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	tblPendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// RenderFiles renders the per-file copy progress table.
func RenderFiles(snap metrics.Snapshot, width, maxRows int) string {
	if len(snap.Files) == 0 {
		return "  No file data available"
	}

	var b strings.Builder

	header := fmt.Sprintf("  %-45s %-20s %s", "File", "Rows", "Status")
	b.WriteString(tblHeaderStyle.Render(header))
	b.WriteByte('\n')

	shown := len(snap.Files)
	if maxRows > 0 && shown > maxRows {
		shown = maxRows
	}

	for i := 0; i < shown; i++ {
		f := snap.Files[i]
		name := f.Path
		if len(name) > 43 {
			name = "..." + name[len(name)-40:]
		}

		rowsStr := fmt.Sprintf("%s/%s (%s rej)",
			formatCount(f.RowsLoaded), formatCount(f.RowsRead), formatCount(f.RowsRejected))

		var statusStr string
		switch f.Status {
		case metrics.FileLoading:
			statusStr = tblLoadingStyle.Render("loading")
		case metrics.FileDone:
			statusStr = tblDoneStyle.Render("done")
		case metrics.FileFailed:
			statusStr = tblFailedStyle.Render("failed")
		default:
			statusStr = tblPendingStyle.Render("pending")
		}

		line := fmt.Sprintf("  %-45s %-20s %s", name, rowsStr, statusStr)
		b.WriteString(line)
		if i < shown-1 {
			b.WriteByte('\n')
		}
	}

	if len(snap.Files) > shown {
		b.WriteByte('\n')
		b.WriteString(fmt.Sprintf("  ... and %d more files", len(snap.Files)-shown))
	}

	return b.String()
}

func formatCount(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1e9)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1e3)
	default:
		return fmt.Sprintf("%d", n)
	}
}
