// Package mapping parses the station/device/metric/file mapping JSON that
// drives C5 (dimension prep) and C7 (COPY loader), plus the read-only
// check-mapping validation mode.
package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Metric names one metric_key and the files that feed it.
type Metric struct {
	Key   string   `json:"key"`
	Files []string `json:"files"`
}

// Device names one device and its metrics.
type Device struct {
	Name     string   `json:"name"`
	Type     string   `json:"type,omitempty"`
	PumpType string   `json:"pump_type,omitempty"`
	Metrics  []Metric `json:"metrics"`
}

// Station names one station and its devices.
type Station struct {
	Name    string   `json:"name"`
	Devices []Device `json:"devices"`
}

// Mapping is the top-level decoded mapping file.
type Mapping struct {
	Stations []Station `json:"stations"`
}

// Load reads and decodes a mapping file from path.
func Load(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mapping: read %s: %w", path, err)
	}
	var m Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("mapping: parse %s: %w", path, err)
	}
	return &m, nil
}

// NormalizeDeviceType maps free-form device type strings to the canonical
// enum: main_pipe/mainpipeline/pipeline/main -> main_pipeline; anything
// else -> pump (the unrecognized-default per C5).
func NormalizeDeviceType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "main_pipe", "mainpipeline", "pipeline", "main", "main_pipeline":
		return "main_pipeline"
	default:
		return "pump"
	}
}

// FileEntry flattens one (station, device, metric, file) tuple for the
// COPY loader to iterate over.
type FileEntry struct {
	Station    string
	Device     string
	DeviceType string
	PumpType   string
	MetricKey  string
	FilePath   string // as written in the mapping, relative to base_dir
}

// Flatten walks the nested mapping into a flat slice of file entries in
// document order.
func (m *Mapping) Flatten() []FileEntry {
	var out []FileEntry
	for _, st := range m.Stations {
		for _, dev := range st.Devices {
			for _, met := range dev.Metrics {
				for _, f := range met.Files {
					out = append(out, FileEntry{
						Station:    st.Name,
						Device:     dev.Name,
						DeviceType: dev.Type,
						PumpType:   dev.PumpType,
						MetricKey:  met.Key,
						FilePath:   f,
					})
				}
			}
		}
	}
	return out
}

// CheckResult is the report produced by check-mapping.
type CheckResult struct {
	TotalFiles      int
	MissingFiles    []string // relative paths that do not exist under base_dir
	BadPrefixFiles  []string // paths erroneously prefixed "data/"
	PerStation      map[string]StationCheck
}

// StationCheck aggregates per-station/device/metric counts.
type StationCheck struct {
	Devices map[string]DeviceCheck
}

// DeviceCheck aggregates per-device/metric counts.
type DeviceCheck struct {
	Metrics map[string]MetricCheck
}

// MetricCheck counts files, missing files, and bad-prefix files for one
// metric entry.
type MetricCheck struct {
	Files        int
	Missing      int
	BadPrefixed  int
}

// Check validates every file path against baseDir without mutating
// anything: reports counts of missing files and of paths erroneously
// prefixed "data/".
func (m *Mapping) Check(baseDir string) CheckResult {
	res := CheckResult{PerStation: map[string]StationCheck{}}
	for _, st := range m.Stations {
		sc, ok := res.PerStation[st.Name]
		if !ok {
			sc = StationCheck{Devices: map[string]DeviceCheck{}}
		}
		for _, dev := range st.Devices {
			dc, ok := sc.Devices[dev.Name]
			if !ok {
				dc = DeviceCheck{Metrics: map[string]MetricCheck{}}
			}
			for _, met := range dev.Metrics {
				mc := dc.Metrics[met.Key]
				for _, f := range met.Files {
					res.TotalFiles++
					mc.Files++
					badPrefix := strings.HasPrefix(f, "data/") || strings.HasPrefix(f, "data\\")
					if badPrefix {
						mc.BadPrefixed++
						res.BadPrefixFiles = append(res.BadPrefixFiles, f)
					}
					full := filepath.Join(baseDir, f)
					if _, err := os.Stat(full); err != nil {
						mc.Missing++
						res.MissingFiles = append(res.MissingFiles, f)
					}
				}
				dc.Metrics[met.Key] = mc
			}
			sc.Devices[dev.Name] = dc
		}
		res.PerStation[st.Name] = sc
	}
	return res
}
