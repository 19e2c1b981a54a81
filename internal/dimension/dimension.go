// Package dimension implements C5: idempotent station/device upsert,
// surrogate-key sequence repair, and metric catalog reload from an
// authoritative SQL script. Grounded on the internal/cluster
// store upsert-CRUD shape and internal/schema's statement-splitting
// DDL executor for the catalog reload step.
package dimension

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"stationsync/internal/mapping"
	"stationsync/internal/runtime"
)

// Stats summarizes one prepare_dim run.
type Stats struct {
	StationsUpserted int
	DevicesUpserted  int
	MetricsLoaded    int
}

// Preparer runs C5 against the resolved mapping file.
type Preparer struct {
	rt *runtime.Runtime
}

// New constructs a Preparer bound to rt.
func New(rt *runtime.Runtime) *Preparer {
	return &Preparer{rt: rt.With("dimension")}
}

// Run upserts every station/device in m, repairs surrogate-key sequence
// gaps, and reloads dim_metric_config from catalogSQLPath (may be empty to
// skip the catalog reload, e.g. in tests against a pre-seeded catalog).
func (p *Preparer) Run(ctx context.Context, m *mapping.Mapping, catalogSQLPath string) (Stats, error) {
	timeout := time.Duration(p.rt.Config.Database.ConnectTimeoutMs.Value) * time.Millisecond
	sess, err := p.rt.Pool.Acquire(ctx, timeout)
	if err != nil {
		return Stats{}, fmt.Errorf("dimension: acquire session: %w", err)
	}
	defer p.rt.Pool.Release(sess)
	conn := sess.Conn()

	var stats Stats

	for _, st := range m.Stations {
		stationID, err := upsertStation(ctx, conn, st.Name)
		if err != nil {
			return stats, fmt.Errorf("dimension: upsert station %q: %w", st.Name, err)
		}
		stats.StationsUpserted++

		for _, dev := range st.Devices {
			devType := mapping.NormalizeDeviceType(dev.Type)
			pumpType := normalizePumpType(devType, dev.PumpType)
			if _, err := upsertDevice(ctx, conn, stationID, dev.Name, devType, pumpType); err != nil {
				return stats, fmt.Errorf("dimension: upsert device %q/%q: %w", st.Name, dev.Name, err)
			}
			stats.DevicesUpserted++
		}
	}

	if err := repairSequence(ctx, conn, "dim_station", "station_id"); err != nil {
		return stats, fmt.Errorf("dimension: repair sequence dim_station: %w", err)
	}
	if err := repairSequence(ctx, conn, "dim_device", "device_id"); err != nil {
		return stats, fmt.Errorf("dimension: repair sequence dim_device: %w", err)
	}

	if catalogSQLPath != "" {
		n, err := reloadMetricCatalog(ctx, conn, p.rt.Logger, catalogSQLPath)
		if err != nil {
			return stats, fmt.Errorf("dimension: reload metric catalog: %w", err)
		}
		stats.MetricsLoaded = n
	}

	return stats, nil
}

// upsertStation inserts station by natural key name if absent, then
// returns its surrogate id either way. Uses INSERT ... WHERE NOT EXISTS ...
// RETURNING id then a SELECT fallback, as the contract requires, to stay
// safe against sequence skew from concurrent writers.
func upsertStation(ctx context.Context, conn *pgx.Conn, name string) (int64, error) {
	var id int64
	err := conn.QueryRow(ctx, `
		INSERT INTO dim_station (name, extra)
		SELECT $1, '{}'::jsonb
		WHERE NOT EXISTS (SELECT 1 FROM dim_station WHERE name = $1)
		RETURNING station_id`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != pgx.ErrNoRows {
		return 0, err
	}
	err = conn.QueryRow(ctx, `SELECT station_id FROM dim_station WHERE name = $1`, name).Scan(&id)
	return id, err
}

func upsertDevice(ctx context.Context, conn *pgx.Conn, stationID int64, name, devType, pumpType string) (int64, error) {
	var pumpTypeArg any
	if pumpType == "" {
		pumpTypeArg = nil
	} else {
		pumpTypeArg = pumpType
	}
	var id int64
	err := conn.QueryRow(ctx, `
		INSERT INTO dim_device (station_id, name, type, pump_type)
		SELECT $1, $2, $3, $4
		WHERE NOT EXISTS (
			SELECT 1 FROM dim_device WHERE station_id = $1 AND name = $2)
		RETURNING device_id`, stationID, name, devType, pumpTypeArg).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != pgx.ErrNoRows {
		return 0, err
	}
	err = conn.QueryRow(ctx,
		`SELECT device_id FROM dim_device WHERE station_id = $1 AND name = $2`,
		stationID, name).Scan(&id)
	return id, err
}

// normalizePumpType enforces the invariant type=pump ⇒ pump_type populated.
func normalizePumpType(devType, raw string) string {
	if devType != "pump" {
		return ""
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "variable_frequency", "vfd", "variable":
		return "variable_frequency"
	case "soft_start", "soft":
		return "soft_start"
	default:
		return "variable_frequency"
	}
}

func repairSequence(ctx context.Context, conn *pgx.Conn, table, pkCol string) error {
	seqExpr := fmt.Sprintf("pg_get_serial_sequence('%s', '%s')", table, pkCol)
	_, err := conn.Exec(ctx, fmt.Sprintf(`
		SELECT setval(%s, COALESCE((SELECT MAX(%s) FROM %s), 1))`,
		seqExpr, pkCol, table))
	return err
}

// reloadMetricCatalog truncates dim_metric_config (CASCADE, restart
// identity) and re-executes the authoritative SQL script, with
// statement_timeout/lock_timeout temporarily lifted for the duration.
func reloadMetricCatalog(ctx context.Context, conn *pgx.Conn, logger zerolog.Logger, scriptPath string) (int, error) {
	if _, err := conn.Exec(ctx, "SET statement_timeout = 0"); err != nil {
		logger.Warn().Err(err).Msg("failed to lift statement_timeout for catalog reload")
	}
	if _, err := conn.Exec(ctx, "SET lock_timeout = 0"); err != nil {
		logger.Warn().Err(err).Msg("failed to lift lock_timeout for catalog reload")
	}

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE dim_metric_config CASCADE"); err != nil {
		return 0, fmt.Errorf("truncate dim_metric_config: %w", err)
	}
	if _, err := conn.Exec(ctx, "ALTER SEQUENCE dim_metric_config_metric_id_seq RESTART WITH 1"); err != nil {
		logger.Warn().Err(err).Msg("restart identity failed (sequence name may differ); continuing")
	}

	script, err := os.ReadFile(scriptPath)
	if err != nil {
		return 0, fmt.Errorf("read catalog script %s: %w", scriptPath, err)
	}

	stmts := splitStatements(string(script))
	for _, stmt := range stmts {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return 0, fmt.Errorf("exec catalog statement: %w", err)
		}
	}

	var count int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM dim_metric_config").Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// splitStatements splits a SQL script on statement-terminating semicolons.
// Mirrors the schema.Migrator statement-by-statement execution.
func splitStatements(script string) []string {
	parts := strings.Split(script, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
