package mapping

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeDeviceType(t *testing.T) {
	cases := map[string]string{
		"main_pipe":      "main_pipeline",
		"mainpipeline":   "main_pipeline",
		"Pipeline":       "main_pipeline",
		"MAIN":           "main_pipeline",
		"":               "pump",
		"variable":       "pump",
	}
	for in, want := range cases {
		if got := NormalizeDeviceType(in); got != want {
			t.Errorf("NormalizeDeviceType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFlatten(t *testing.T) {
	m := &Mapping{Stations: []Station{
		{Name: "St1", Devices: []Device{
			{Name: "D1", Metrics: []Metric{
				{Key: "flow_rate", Files: []string{"a.csv", "b.csv"}},
			}},
		}},
	}}
	entries := m.Flatten()
	if len(entries) != 2 {
		t.Fatalf("Flatten() returned %d entries, want 2", len(entries))
	}
	if entries[0].Station != "St1" || entries[0].MetricKey != "flow_rate" || entries[0].FilePath != "a.csv" {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestCheckReportsMissingAndBadPrefix(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "present.csv"), []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	m := &Mapping{Stations: []Station{
		{Name: "St1", Devices: []Device{
			{Name: "D1", Metrics: []Metric{
				{Key: "flow_rate", Files: []string{"present.csv", "missing.csv", "data/present.csv"}},
			}},
		}},
	}}
	res := m.Check(dir)
	if res.TotalFiles != 3 {
		t.Fatalf("TotalFiles = %d, want 3", res.TotalFiles)
	}
	if len(res.MissingFiles) != 2 {
		t.Fatalf("MissingFiles = %v, want 2 entries", res.MissingFiles)
	}
	if len(res.BadPrefixFiles) != 1 {
		t.Fatalf("BadPrefixFiles = %v, want 1 entry", res.BadPrefixFiles)
	}
}
