// Package staging implements C6: idempotent unlogged staging table DDL.
// Grounded on the internal/db.migrate() — ordered, idempotent
// DDL applied over a pool, with IF NOT EXISTS guards before acting.
package staging

import (
	"context"
	"fmt"
	"time"

	"stationsync/internal/runtime"
)

const createStagingRaw = `
CREATE UNLOGGED TABLE IF NOT EXISTS staging_raw (
	station_name TEXT NOT NULL,
	device_name  TEXT NOT NULL,
	metric_key   TEXT NOT NULL,
	tag_name     TEXT NOT NULL,
	data_time    TEXT NOT NULL,
	data_value   TEXT NOT NULL,
	source_hint  TEXT NOT NULL,
	loaded_at    TIMESTAMPTZ NOT NULL DEFAULT now()
) WITH (autovacuum_enabled = true)`

const createStagingRejects = `
CREATE UNLOGGED TABLE IF NOT EXISTS staging_rejects (
	station_name TEXT,
	device_name  TEXT,
	metric_key   TEXT,
	tag_name     TEXT,
	data_time    TEXT,
	data_value   TEXT,
	source_hint  TEXT NOT NULL,
	error_msg    TEXT NOT NULL,
	rejected_at  TIMESTAMPTZ NOT NULL DEFAULT now()
) WITH (autovacuum_enabled = true)`

// Manager creates and (on explicit operator request only) truncates the
// staging tables.
type Manager struct {
	rt *runtime.Runtime
}

// New constructs a Manager bound to rt.
func New(rt *runtime.Runtime) *Manager {
	return &Manager{rt: rt.With("staging")}
}

// Create issues the idempotent CREATE UNLOGGED TABLE IF NOT EXISTS DDL for
// both staging tables.
func (m *Manager) Create(ctx context.Context) error {
	timeout := time.Duration(m.rt.Config.Database.ConnectTimeoutMs.Value) * time.Millisecond
	sess, err := m.rt.Pool.Acquire(ctx, timeout)
	if err != nil {
		return fmt.Errorf("staging: acquire session: %w", err)
	}
	defer m.rt.Pool.Release(sess)
	conn := sess.Conn()

	if _, err := conn.Exec(ctx, createStagingRaw); err != nil {
		return fmt.Errorf("staging: create staging_raw: %w", err)
	}
	if _, err := conn.Exec(ctx, createStagingRejects); err != nil {
		return fmt.Errorf("staging: create staging_rejects: %w", err)
	}
	m.rt.Logger.Info().Msg("staging tables ready")
	return nil
}

// Reset truncates both staging tables. Never invoked implicitly by any
// other command: only reachable via the explicit --reset-staging flag on
// run-all or the standalone admin-clear-db step.
func (m *Manager) Reset(ctx context.Context) error {
	timeout := time.Duration(m.rt.Config.Database.ConnectTimeoutMs.Value) * time.Millisecond
	sess, err := m.rt.Pool.Acquire(ctx, timeout)
	if err != nil {
		return fmt.Errorf("staging: acquire session: %w", err)
	}
	defer m.rt.Pool.Release(sess)
	conn := sess.Conn()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE staging_raw"); err != nil {
		return fmt.Errorf("staging: truncate staging_raw: %w", err)
	}
	if _, err := conn.Exec(ctx, "TRUNCATE TABLE staging_rejects"); err != nil {
		return fmt.Errorf("staging: truncate staging_rejects: %w", err)
	}
	m.rt.Logger.Warn().Msg("staging tables truncated")
	return nil
}
