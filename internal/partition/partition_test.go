package partition

import (
	"testing"
	"time"
)

func TestWeekStartFloorsToMonday(t *testing.T) {
	// Friday 2025-02-28 is in ISO week 9 (2025), starting Monday 2025-02-24.
	fri := time.Date(2025, 2, 28, 15, 30, 0, 0, time.UTC)
	ws := weekStart(fri)
	want := time.Date(2025, 2, 24, 0, 0, 0, 0, time.UTC)
	if !ws.Equal(want) {
		t.Fatalf("weekStart() = %v, want %v", ws, want)
	}
}

func TestWeekStartOnMondayIsIdempotent(t *testing.T) {
	mon := time.Date(2025, 2, 24, 0, 0, 0, 0, time.UTC)
	if got := weekStart(mon); !got.Equal(mon) {
		t.Fatalf("weekStart(monday) = %v, want unchanged", got)
	}
}

func TestWeekLabel(t *testing.T) {
	ws := time.Date(2025, 2, 24, 0, 0, 0, 0, time.UTC)
	if got := weekLabel(ws); got != "2025w09" {
		t.Fatalf("weekLabel() = %q, want 2025w09", got)
	}
}

func TestWeekIterationCoversEntireWindow(t *testing.T) {
	start := time.Date(2025, 2, 28, 2, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 5, 2, 0, 0, 0, time.UTC) // spans into the next ISO week
	var weeks []string
	for ws := weekStart(start); ws.Before(end); ws = ws.AddDate(0, 0, 7) {
		weeks = append(weeks, weekLabel(ws))
	}
	if len(weeks) != 2 {
		t.Fatalf("weeks = %v, want 2 ISO weeks covered", weeks)
	}
}
