package window

import (
	"testing"
	"time"
)

func TestParseGranularityMinutes(t *testing.T) {
	secs, err := ParseGranularity("30m")
	if err != nil || secs != 1800 {
		t.Fatalf("ParseGranularity(30m) = %d, %v", secs, err)
	}
}

func TestParseGranularityMinutesFloor(t *testing.T) {
	secs, err := ParseGranularity("0m")
	if err == nil {
		t.Fatalf("expected error for 0m, got %d", secs)
	}
}

func TestParseGranularityHours(t *testing.T) {
	secs, err := ParseGranularity("1h")
	if err != nil || secs != 3600 {
		t.Fatalf("ParseGranularity(1h) = %d, %v", secs, err)
	}
}

func TestParseGranularityDefault(t *testing.T) {
	secs, err := ParseGranularity("")
	if err != nil || secs != 3600 {
		t.Fatalf("ParseGranularity(\"\") = %d, %v", secs, err)
	}
}

func TestSplitTwoSegments(t *testing.T) {
	start := time.Date(2025, 2, 28, 2, 0, 0, 0, time.UTC)
	end := time.Date(2025, 2, 28, 4, 0, 0, 0, time.UTC)
	segs := Split(start, end, 3600)
	if len(segs) != 2 {
		t.Fatalf("Split() = %d segments, want 2", len(segs))
	}
	if !segs[0].Start.Equal(start) || !segs[1].End.Equal(end) {
		t.Fatalf("segments = %+v", segs)
	}
	if !segs[0].End.Equal(segs[1].Start) {
		t.Fatalf("segments not contiguous: %+v", segs)
	}
}

func TestSplitLastSegmentShorter(t *testing.T) {
	start := time.Date(2025, 2, 28, 2, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Minute)
	segs := Split(start, end, 3600)
	if len(segs) != 2 {
		t.Fatalf("Split() = %d segments, want 2", len(segs))
	}
	if segs[1].End.Sub(segs[1].Start) != 30*time.Minute {
		t.Fatalf("last segment length = %v, want 30m", segs[1].End.Sub(segs[1].Start))
	}
}

func TestSplitEmptyWhenStartNotBeforeEnd(t *testing.T) {
	start := time.Date(2025, 2, 28, 2, 0, 0, 0, time.UTC)
	if segs := Split(start, start, 3600); segs != nil {
		t.Fatalf("Split(equal bounds) = %v, want nil", segs)
	}
}
