package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ingest.BaseDir.Value != "data" || cfg.Ingest.BaseDir.Source != SourceDefault {
		t.Fatalf("base_dir = %+v, want data/DEFAULT", cfg.Ingest.BaseDir)
	}
	if cfg.Ingest.Workers.Source != SourceDefault {
		t.Fatalf("workers source = %s, want DEFAULT", cfg.Ingest.Workers.Source)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ingest.yaml", "workers: 8\nbatch_size: 500\n")
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ingest.Workers.Value != 8 || cfg.Ingest.Workers.Source != SourceYAML {
		t.Fatalf("workers = %+v, want 8/YAML", cfg.Ingest.Workers)
	}
}

func TestBaseDirPinned(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ingest.yaml", "base_dir: /tmp/other\n")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected ConfigError for base_dir override, got nil")
	}
}

func TestDatabaseIsFileOnly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "database.yaml", "host: dbhost\nport: 5433\n")
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Host.Value != "dbhost" || cfg.Database.Host.Source != SourceYAML {
		t.Fatalf("host = %+v", cfg.Database.Host)
	}
}

func TestEnvWhitelistOverridesIngestOnly(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("INGEST_WORKERS", "16")
	t.Setenv("INGEST_ENHANCED_SOURCE_HINT", "true")
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ingest.Workers.Value != 16 || cfg.Ingest.Workers.Source != SourceEnv {
		t.Fatalf("workers = %+v, want 16/ENV", cfg.Ingest.Workers)
	}
	if !cfg.Ingest.EnhancedSourceHint.Value || cfg.Ingest.EnhancedSourceHint.Source != SourceEnv {
		t.Fatalf("enhanced_source_hint = %+v", cfg.Ingest.EnhancedSourceHint)
	}
}

func TestInvalidEnumRejected(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "logging.yaml", "level: verbose\n")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for invalid logging.level enum")
	}
}

func TestNegativeTimeoutRejected(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "database.yaml", "connect_timeout_ms: -1\n")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for negative connect_timeout_ms")
	}
}
