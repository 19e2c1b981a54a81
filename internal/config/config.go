// Package config resolves layered YAML configuration for pumpctl: one file
// per concern (database, logging, ingest, merge, web, system), each field
// tagged with the source that produced its effective value.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source identifies where an effective field value came from.
type Source string

const (
	SourceDefault Source = "DEFAULT"
	SourceYAML    Source = "YAML"
	SourceEnv     Source = "ENV"
)

// ConfigError is a fatal, startup-time configuration problem.
type ConfigError struct {
	File  string
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("config: %s: %s: %s", e.File, e.Field, e.Msg)
}

// Tagged records an effective value alongside its provenance.
type Tagged[T any] struct {
	Value  T
	Source Source
}

func def[T any](v T) Tagged[T] { return Tagged[T]{Value: v, Source: SourceDefault} }

// DatabaseConfig is file-only: ENV must never override any field here.
type DatabaseConfig struct {
	Host               Tagged[string]
	Port               Tagged[uint16]
	User               Tagged[string]
	Password           Tagged[string]
	DBName             Tagged[string]
	SSLMode            Tagged[string]
	Min                Tagged[int]
	Max                Tagged[int]
	MaxInactiveSeconds Tagged[int]
	ConnectTimeoutMs   Tagged[int]
	StatementTimeoutMs Tagged[int]
	MaxRetries         Tagged[int]
	BaseDelayMs        Tagged[int]
	BackoffMultiplier  Tagged[float64]
	MaxDelayMs         Tagged[int]
}

// DSN renders the libpq connection string for this database config.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host.Value, d.Port.Value, d.User.Value, d.Password.Value, d.DBName.Value, d.SSLMode.Value)
}

// LoggingConfig is file-only: ENV must never override any field here.
type LoggingConfig struct {
	Level     Tagged[string] // debug|info|warn|error
	Format    Tagged[string] // console|json
	LogsDir   Tagged[string]
	Sample    Tagged[map[string]float64] // per-event sampling rate override
	EveryN    Tagged[int]
	MinIntervalSeconds Tagged[int]
}

// IngestConfig holds the only fields the ENV whitelist is allowed to touch,
// plus ingest.base_dir which is pinned regardless of any source.
type IngestConfig struct {
	BaseDir               Tagged[string] // pinned to "data", never overridable
	Workers               Tagged[int]    // ENV: INGEST_WORKERS
	CommitInterval        Tagged[int]    // ENV: INGEST_COMMIT_INTERVAL (fallback batch size)
	BatchSize             Tagged[int]
	P95Window             Tagged[int] // ENV: INGEST_P95_WINDOW
	EnhancedSourceHint    Tagged[bool] // ENV: INGEST_ENHANCED_SOURCE_HINT
	BatchIDMode           Tagged[string] // ENV: INGEST_BATCH_ID_MODE ("timestamp"|"uuid")
	MaxErrorsPerFile      Tagged[int]
	ErrorThresholdPercent Tagged[float64]
	ContinueOnError       Tagged[bool]
	P95Ms                 Tagged[int]
	FailRateThreshold     Tagged[float64]
	MinBatch              Tagged[int]
	MinWorkers            Tagged[int]
}

// MergeConfig controls the windowed merge engine.
type MergeConfig struct {
	DefaultStationTZ    Tagged[string]
	AllowMissingTZ      Tagged[bool]
	SegmentedEnabled    Tagged[bool]
	Granularity         Tagged[string] // "30m", "1h", ...
	SlowSQLTopN         Tagged[int]
}

// WebConfig holds the settings loaded from web.yaml. Nothing reads them:
// the status API and `pumpctl watch --attach` take their port from
// command-line flags and always bind 127.0.0.1.
type WebConfig struct {
	Enabled Tagged[bool]
	Addr    Tagged[string]
}

// SystemConfig holds cross-cutting operational knobs.
type SystemConfig struct {
	ExpectedIntervalSeconds Tagged[int]
	TopK                    Tagged[int]
	GroupBy                 Tagged[string] // metric|device|station|batch|source
}

// Config is the fully resolved configuration for one pumpctl invocation.
type Config struct {
	Database DatabaseConfig
	Logging  LoggingConfig
	Ingest   IngestConfig
	Merge    MergeConfig
	Web      WebConfig
	System   SystemConfig
}

// envWhitelist names the only ENV variables ingest-sensitive fields may read.
var envWhitelist = map[string]struct{}{
	"INGEST_WORKERS":               {},
	"INGEST_COMMIT_INTERVAL":       {},
	"INGEST_P95_WINDOW":            {},
	"INGEST_ENHANCED_SOURCE_HINT":  {},
	"INGEST_BATCH_ID_MODE":         {},
}

// Defaults returns a Config populated entirely from DEFAULT-tagged values.
func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:               def("localhost"),
			Port:               def(uint16(5432)),
			User:               def("postgres"),
			Password:           def(""),
			DBName:             def("pumpstation"),
			SSLMode:            def("disable"),
			Min:                def(2),
			Max:                def(16),
			MaxInactiveSeconds: def(300),
			ConnectTimeoutMs:   def(5000),
			StatementTimeoutMs: def(30000),
			MaxRetries:         def(5),
			BaseDelayMs:        def(100),
			BackoffMultiplier:  def(2.0),
			MaxDelayMs:         def(10000),
		},
		Logging: LoggingConfig{
			Level:              def("info"),
			Format:             def("console"),
			LogsDir:            def("logs"),
			Sample:             def(map[string]float64{}),
			EveryN:             def(10),
			MinIntervalSeconds: def(5),
		},
		Ingest: IngestConfig{
			BaseDir:               def("data"),
			Workers:               def(4),
			CommitInterval:        def(2000),
			BatchSize:             def(2000),
			P95Window:             def(20),
			EnhancedSourceHint:    def(false),
			BatchIDMode:           def("timestamp"),
			MaxErrorsPerFile:      def(1000),
			ErrorThresholdPercent: def(10.0),
			ContinueOnError:       def(true),
			P95Ms:                 def(2000),
			FailRateThreshold:     def(0.05),
			MinBatch:              def(100),
			MinWorkers:            def(1),
		},
		Merge: MergeConfig{
			DefaultStationTZ: def("UTC"),
			AllowMissingTZ:   def(false),
			SegmentedEnabled: def(false),
			Granularity:      def("1h"),
			SlowSQLTopN:      def(10),
		},
		Web: WebConfig{
			Enabled: def(false),
			Addr:    def("127.0.0.1:7777"),
		},
		System: SystemConfig{
			ExpectedIntervalSeconds: def(60),
			TopK:                    def(20),
			GroupBy:                 def("metric"),
		},
	}
}

// yamlDoc is the generic shape every config file is decoded into before
// typed, tagged fields are extracted field-by-field.
type yamlDoc map[string]any

func loadYAMLFile(path string) (yamlDoc, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var doc yamlDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, false, &ConfigError{File: path, Msg: fmt.Sprintf("parse yaml: %v", err)}
	}
	return doc, true, nil
}

// findConfigFile searches explicit dir, then ./configs, then ./config.
func findConfigFile(explicitDir, name string) (string, bool) {
	candidates := []string{}
	if explicitDir != "" {
		candidates = append(candidates, filepath.Join(explicitDir, name))
	}
	candidates = append(candidates, filepath.Join("configs", name), filepath.Join("config", name))
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, true
		}
	}
	return "", false
}

// Load resolves the full Config from configDir (explicit search root, may be
// empty) plus the process environment.
func Load(configDir string) (*Config, error) {
	cfg := Defaults()
	var errs []error

	apply := func(name string, into func(yamlDoc) error) {
		path, ok := findConfigFile(configDir, name)
		if !ok {
			return
		}
		doc, ok, err := loadYAMLFile(path)
		if err != nil {
			errs = append(errs, err)
			return
		}
		if !ok {
			return
		}
		if err := into(doc); err != nil {
			errs = append(errs, err)
		}
	}

	apply("database.yaml", func(doc yamlDoc) error { return applyDatabase(&cfg.Database, doc) })
	apply("logging.yaml", func(doc yamlDoc) error { return applyLogging(&cfg.Logging, doc) })
	apply("ingest.yaml", func(doc yamlDoc) error { return applyIngest(&cfg.Ingest, doc) })
	apply("merge.yaml", func(doc yamlDoc) error { return applyMerge(&cfg.Merge, doc) })
	apply("web.yaml", func(doc yamlDoc) error { return applyWeb(&cfg.Web, doc) })
	apply("system.yaml", func(doc yamlDoc) error { return applySystem(&cfg.System, doc) })

	if err := applyEnv(&cfg.Ingest); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func yamlString(doc yamlDoc, key string) (string, bool, error) {
	v, ok := doc[key]
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, &ConfigError{Field: key, Msg: "expected string"}
	}
	return s, true, nil
}

func yamlInt(doc yamlDoc, key string) (int, bool, error) {
	v, ok := doc[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case float64:
		if n != float64(int(n)) {
			return 0, false, &ConfigError{Field: key, Msg: "expected integer"}
		}
		return int(n), true, nil
	default:
		return 0, false, &ConfigError{Field: key, Msg: "expected integer"}
	}
}

func yamlFloat(doc yamlDoc, key string) (float64, bool, error) {
	v, ok := doc[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case int:
		return float64(n), true, nil
	default:
		return 0, false, &ConfigError{Field: key, Msg: "expected number"}
	}
}

func yamlBool(doc yamlDoc, key string) (bool, bool, error) {
	v, ok := doc[key]
	if !ok {
		return false, false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, false, &ConfigError{Field: key, Msg: "expected boolean"}
	}
	return b, true, nil
}

func applyDatabase(d *DatabaseConfig, doc yamlDoc) error {
	// database.yaml is file-only: presence of an "env_override" key is a hard error.
	if _, ok := doc["env_override"]; ok {
		return &ConfigError{Field: "database.env_override", Msg: "database config is file-only; ENV overrides are not permitted"}
	}
	if v, ok, err := yamlString(doc, "host"); err != nil {
		return err
	} else if ok {
		d.Host = Tagged[string]{v, SourceYAML}
	}
	if v, ok, err := yamlInt(doc, "port"); err != nil {
		return err
	} else if ok {
		if v <= 0 || v > 65535 {
			return &ConfigError{Field: "database.port", Msg: "out of range"}
		}
		d.Port = Tagged[uint16]{uint16(v), SourceYAML}
	}
	if v, ok, err := yamlString(doc, "user"); err != nil {
		return err
	} else if ok {
		d.User = Tagged[string]{v, SourceYAML}
	}
	if v, ok, err := yamlString(doc, "password"); err != nil {
		return err
	} else if ok {
		d.Password = Tagged[string]{v, SourceYAML}
	}
	if v, ok, err := yamlString(doc, "dbname"); err != nil {
		return err
	} else if ok {
		d.DBName = Tagged[string]{v, SourceYAML}
	}
	if v, ok, err := yamlString(doc, "sslmode"); err != nil {
		return err
	} else if ok {
		d.SSLMode = Tagged[string]{v, SourceYAML}
	}
	if v, ok, err := yamlInt(doc, "min"); err != nil {
		return err
	} else if ok {
		d.Min = Tagged[int]{v, SourceYAML}
	}
	if v, ok, err := yamlInt(doc, "max"); err != nil {
		return err
	} else if ok {
		d.Max = Tagged[int]{v, SourceYAML}
	}
	if v, ok, err := yamlInt(doc, "max_inactive_seconds"); err != nil {
		return err
	} else if ok {
		d.MaxInactiveSeconds = Tagged[int]{v, SourceYAML}
	}
	if v, ok, err := yamlInt(doc, "connect_timeout_ms"); err != nil {
		return err
	} else if ok {
		if v < 0 {
			return &ConfigError{Field: "database.connect_timeout_ms", Msg: "negative timeout"}
		}
		d.ConnectTimeoutMs = Tagged[int]{v, SourceYAML}
	}
	if v, ok, err := yamlInt(doc, "statement_timeout_ms"); err != nil {
		return err
	} else if ok {
		if v < 0 {
			return &ConfigError{Field: "database.statement_timeout_ms", Msg: "negative timeout"}
		}
		d.StatementTimeoutMs = Tagged[int]{v, SourceYAML}
	}
	if v, ok, err := yamlInt(doc, "max_retries"); err != nil {
		return err
	} else if ok {
		d.MaxRetries = Tagged[int]{v, SourceYAML}
	}
	if v, ok, err := yamlInt(doc, "base_delay_ms"); err != nil {
		return err
	} else if ok {
		d.BaseDelayMs = Tagged[int]{v, SourceYAML}
	}
	if v, ok, err := yamlFloat(doc, "backoff_multiplier"); err != nil {
		return err
	} else if ok {
		d.BackoffMultiplier = Tagged[float64]{v, SourceYAML}
	}
	if v, ok, err := yamlInt(doc, "max_delay_ms"); err != nil {
		return err
	} else if ok {
		d.MaxDelayMs = Tagged[int]{v, SourceYAML}
	}
	return nil
}

func applyLogging(l *LoggingConfig, doc yamlDoc) error {
	if v, ok, err := yamlString(doc, "level"); err != nil {
		return err
	} else if ok {
		switch v {
		case "debug", "info", "warn", "error":
		default:
			return &ConfigError{Field: "logging.level", Msg: "invalid enum value"}
		}
		l.Level = Tagged[string]{v, SourceYAML}
	}
	if v, ok, err := yamlString(doc, "format"); err != nil {
		return err
	} else if ok {
		switch v {
		case "console", "json":
		default:
			return &ConfigError{Field: "logging.format", Msg: "invalid enum value"}
		}
		l.Format = Tagged[string]{v, SourceYAML}
	}
	if v, ok, err := yamlString(doc, "logs_dir"); err != nil {
		return err
	} else if ok {
		l.LogsDir = Tagged[string]{v, SourceYAML}
	}
	if v, ok, err := yamlInt(doc, "every_n"); err != nil {
		return err
	} else if ok {
		l.EveryN = Tagged[int]{v, SourceYAML}
	}
	if v, ok, err := yamlInt(doc, "min_interval_seconds"); err != nil {
		return err
	} else if ok {
		l.MinIntervalSeconds = Tagged[int]{v, SourceYAML}
	}
	if raw, ok := doc["sample"]; ok {
		m, ok := raw.(map[string]any)
		if !ok {
			return &ConfigError{Field: "logging.sample", Msg: "expected mapping"}
		}
		rates := make(map[string]float64, len(m))
		for k, rv := range m {
			f, ok := rv.(float64)
			if !ok {
				if i, ok2 := rv.(int); ok2 {
					f = float64(i)
				} else {
					return &ConfigError{Field: "logging.sample." + k, Msg: "expected number"}
				}
			}
			if f < 0 || f > 1 {
				return &ConfigError{Field: "logging.sample." + k, Msg: "rate must be in [0,1]"}
			}
			rates[k] = f
		}
		l.Sample = Tagged[map[string]float64]{rates, SourceYAML}
	}
	return nil
}

func applyIngest(ing *IngestConfig, doc yamlDoc) error {
	// ingest.base_dir is pinned; reject attempts to set it from file.
	if _, ok := doc["base_dir"]; ok {
		return &ConfigError{Field: "ingest.base_dir", Msg: "base_dir is pinned to \"data\" and cannot be overridden"}
	}
	if v, ok, err := yamlInt(doc, "workers"); err != nil {
		return err
	} else if ok {
		ing.Workers = Tagged[int]{v, SourceYAML}
	}
	if v, ok, err := yamlInt(doc, "commit_interval"); err != nil {
		return err
	} else if ok {
		ing.CommitInterval = Tagged[int]{v, SourceYAML}
	}
	if v, ok, err := yamlInt(doc, "batch_size"); err != nil {
		return err
	} else if ok {
		ing.BatchSize = Tagged[int]{v, SourceYAML}
	}
	if v, ok, err := yamlInt(doc, "p95_window"); err != nil {
		return err
	} else if ok {
		ing.P95Window = Tagged[int]{v, SourceYAML}
	}
	if v, ok, err := yamlBool(doc, "enhanced_source_hint"); err != nil {
		return err
	} else if ok {
		ing.EnhancedSourceHint = Tagged[bool]{v, SourceYAML}
	}
	if v, ok, err := yamlString(doc, "batch_id_mode"); err != nil {
		return err
	} else if ok {
		if v != "timestamp" && v != "uuid" {
			return &ConfigError{Field: "ingest.batch_id_mode", Msg: "invalid enum value"}
		}
		ing.BatchIDMode = Tagged[string]{v, SourceYAML}
	}
	if v, ok, err := yamlInt(doc, "max_errors_per_file"); err != nil {
		return err
	} else if ok {
		ing.MaxErrorsPerFile = Tagged[int]{v, SourceYAML}
	}
	if v, ok, err := yamlFloat(doc, "error_threshold_percent"); err != nil {
		return err
	} else if ok {
		ing.ErrorThresholdPercent = Tagged[float64]{v, SourceYAML}
	}
	if v, ok, err := yamlBool(doc, "continue_on_error"); err != nil {
		return err
	} else if ok {
		ing.ContinueOnError = Tagged[bool]{v, SourceYAML}
	}
	if v, ok, err := yamlInt(doc, "p95_ms"); err != nil {
		return err
	} else if ok {
		ing.P95Ms = Tagged[int]{v, SourceYAML}
	}
	if v, ok, err := yamlFloat(doc, "fail_rate_threshold"); err != nil {
		return err
	} else if ok {
		ing.FailRateThreshold = Tagged[float64]{v, SourceYAML}
	}
	if v, ok, err := yamlInt(doc, "min_batch"); err != nil {
		return err
	} else if ok {
		ing.MinBatch = Tagged[int]{v, SourceYAML}
	}
	if v, ok, err := yamlInt(doc, "min_workers"); err != nil {
		return err
	} else if ok {
		ing.MinWorkers = Tagged[int]{v, SourceYAML}
	}
	return nil
}

func applyMerge(m *MergeConfig, doc yamlDoc) error {
	if v, ok, err := yamlString(doc, "default_station_tz"); err != nil {
		return err
	} else if ok {
		m.DefaultStationTZ = Tagged[string]{v, SourceYAML}
	}
	if v, ok, err := yamlBool(doc, "allow_missing_tz"); err != nil {
		return err
	} else if ok {
		m.AllowMissingTZ = Tagged[bool]{v, SourceYAML}
	}
	if v, ok, err := yamlBool(doc, "segmented_enabled"); err != nil {
		return err
	} else if ok {
		m.SegmentedEnabled = Tagged[bool]{v, SourceYAML}
	}
	if v, ok, err := yamlString(doc, "granularity"); err != nil {
		return err
	} else if ok {
		m.Granularity = Tagged[string]{v, SourceYAML}
	}
	if v, ok, err := yamlInt(doc, "slow_sql_top_n"); err != nil {
		return err
	} else if ok {
		m.SlowSQLTopN = Tagged[int]{v, SourceYAML}
	}
	return nil
}

func applyWeb(w *WebConfig, doc yamlDoc) error {
	if v, ok, err := yamlBool(doc, "enabled"); err != nil {
		return err
	} else if ok {
		w.Enabled = Tagged[bool]{v, SourceYAML}
	}
	if v, ok, err := yamlString(doc, "addr"); err != nil {
		return err
	} else if ok {
		w.Addr = Tagged[string]{v, SourceYAML}
	}
	return nil
}

func applySystem(s *SystemConfig, doc yamlDoc) error {
	if v, ok, err := yamlInt(doc, "expected_interval_seconds"); err != nil {
		return err
	} else if ok {
		s.ExpectedIntervalSeconds = Tagged[int]{v, SourceYAML}
	}
	if v, ok, err := yamlInt(doc, "top_k"); err != nil {
		return err
	} else if ok {
		s.TopK = Tagged[int]{v, SourceYAML}
	}
	if v, ok, err := yamlString(doc, "group_by"); err != nil {
		return err
	} else if ok {
		switch v {
		case "metric", "device", "station", "batch", "source":
		default:
			return &ConfigError{Field: "system.group_by", Msg: "invalid enum value"}
		}
		s.GroupBy = Tagged[string]{v, SourceYAML}
	}
	return nil
}

// applyEnv overrides only the documented ingest whitelist; base_dir is never
// touched regardless of what the environment contains.
func applyEnv(ing *IngestConfig) error {
	for _, kv := range os.Environ() {
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			continue
		}
		key := kv[:idx]
		if !strings.HasPrefix(key, "INGEST_") {
			continue
		}
		if _, ok := envWhitelist[key]; !ok {
			continue
		}
		val := kv[idx+1:]
		switch key {
		case "INGEST_WORKERS":
			n, err := strconv.Atoi(val)
			if err != nil {
				return &ConfigError{Field: key, Msg: "invalid integer"}
			}
			ing.Workers = Tagged[int]{n, SourceEnv}
		case "INGEST_COMMIT_INTERVAL":
			n, err := strconv.Atoi(val)
			if err != nil {
				return &ConfigError{Field: key, Msg: "invalid integer"}
			}
			ing.CommitInterval = Tagged[int]{n, SourceEnv}
		case "INGEST_P95_WINDOW":
			n, err := strconv.Atoi(val)
			if err != nil {
				return &ConfigError{Field: key, Msg: "invalid integer"}
			}
			ing.P95Window = Tagged[int]{n, SourceEnv}
		case "INGEST_ENHANCED_SOURCE_HINT":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return &ConfigError{Field: key, Msg: "invalid boolean"}
			}
			ing.EnhancedSourceHint = Tagged[bool]{b, SourceEnv}
		case "INGEST_BATCH_ID_MODE":
			if val != "timestamp" && val != "uuid" {
				return &ConfigError{Field: key, Msg: "invalid enum value"}
			}
			ing.BatchIDMode = Tagged[string]{val, SourceEnv}
		}
	}
	return nil
}

// Validate aggregates every remaining cross-field violation.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Min.Value < 0 || c.Database.Max.Value < c.Database.Min.Value {
		errs = append(errs, &ConfigError{Field: "database.min/max", Msg: "min must be <= max"})
	}
	if c.Database.ConnectTimeoutMs.Value < 0 {
		errs = append(errs, &ConfigError{Field: "database.connect_timeout_ms", Msg: "negative timeout"})
	}
	if c.Ingest.BaseDir.Value != "data" {
		errs = append(errs, &ConfigError{Field: "ingest.base_dir", Msg: "must remain pinned to \"data\""})
	}
	if c.Ingest.Workers.Value < 1 {
		errs = append(errs, &ConfigError{Field: "ingest.workers", Msg: "must be >= 1"})
	}
	if c.Ingest.MinWorkers.Value < 1 {
		errs = append(errs, &ConfigError{Field: "ingest.min_workers", Msg: "must be >= 1"})
	}
	if c.Ingest.MinBatch.Value < 1 {
		errs = append(errs, &ConfigError{Field: "ingest.min_batch", Msg: "must be >= 1"})
	}
	if c.Ingest.ErrorThresholdPercent.Value < 0 || c.Ingest.ErrorThresholdPercent.Value > 100 {
		errs = append(errs, &ConfigError{Field: "ingest.error_threshold_percent", Msg: "out of range"})
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Summary renders a redacted, source-tagged snapshot suitable for env.json.
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"database": map[string]any{
			"host":   fieldSummary(c.Database.Host),
			"port":   fieldSummary(c.Database.Port),
			"dbname": fieldSummary(c.Database.DBName),
			"min":    fieldSummary(c.Database.Min),
			"max":    fieldSummary(c.Database.Max),
		},
		"ingest": map[string]any{
			"base_dir":             fieldSummary(c.Ingest.BaseDir),
			"workers":              fieldSummary(c.Ingest.Workers),
			"commit_interval":      fieldSummary(c.Ingest.CommitInterval),
			"p95_window":           fieldSummary(c.Ingest.P95Window),
			"enhanced_source_hint": fieldSummary(c.Ingest.EnhancedSourceHint),
			"batch_id_mode":        fieldSummary(c.Ingest.BatchIDMode),
		},
		"merge": map[string]any{
			"default_station_tz": fieldSummary(c.Merge.DefaultStationTZ),
			"allow_missing_tz":   fieldSummary(c.Merge.AllowMissingTZ),
			"segmented_enabled":  fieldSummary(c.Merge.SegmentedEnabled),
			"granularity":        fieldSummary(c.Merge.Granularity),
		},
	}
}

func fieldSummary[T any](t Tagged[T]) map[string]any {
	return map[string]any{"value": t.Value, "source": string(t.Source)}
}
