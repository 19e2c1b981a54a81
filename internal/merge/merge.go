// Package merge implements C10: the set-based parse -> tz-normalize ->
// second-bucket dedup -> upsert executor. The canonical statement is
// rendered once from a versioned text/template (mergeSQLVersion), modeled
// on the internal/migration/replay/applier statement-cache
// pattern of reusing one canonical statement across batches, rather than
// the source's practice of rewriting merge SQL inline mid-function.
package merge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"
	"time"

	"github.com/jackc/pgx/v5"

	"stationsync/internal/runtime"
)

// mergeSQLVersion identifies the canonical statement shape. Any future
// change to the merge semantics goes through a new version, not an inline
// rewrite.
const mergeSQLVersion = 1

// MissingTZError is returned when a segment contains a station lacking an
// explicit tz and allow_missing_tz is false.
type MissingTZError struct {
	StationName string
}

func (e *MissingTZError) Error() string {
	return fmt.Sprintf("merge: station %q has no tz and allow_missing_tz=false", e.StationName)
}

// Error wraps a segment-level merge failure with a truncated EXPLAIN
// capture, per the §4.10 error contract.
type Error struct {
	Segment     Window
	ExplainText string
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("merge: segment [%s,%s): %v", e.Segment.Start, e.Segment.End, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

const explainTruncateLen = 2000

// Window is a half-open UTC time interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Stats is the per-segment (and, summed, per-window) result of a merge.
type Stats struct {
	AffectedRows   int64
	RowsInput      int64
	RowsDeduped    int64
	RowsMerged     int64
	DedupRatio     float64
	SQLCostMs      float64
	TZFallbackRows int64
}

func (s *Stats) add(o Stats) {
	s.AffectedRows += o.AffectedRows
	s.RowsInput += o.RowsInput
	s.RowsDeduped += o.RowsDeduped
	s.RowsMerged += o.RowsMerged
	s.SQLCostMs += o.SQLCostMs
	s.TZFallbackRows += o.TZFallbackRows
	if s.RowsInput > 0 {
		s.DedupRatio = float64(s.RowsDeduped) / float64(s.RowsInput)
	}
}

// mergeSQLTmpl is the canonical merge statement. parsed strips 'T'/'Z' and
// fractional seconds before parsing, then resolves the station timezone
// (falling back to the configured default when allowed); dedup keeps the
// row with the greatest ts_raw per (station,device,metric,second); the
// final insert upserts with last-writer-wins on value/source_hint/ts_raw.
var mergeSQLTmpl = template.Must(template.New("merge").Parse(`
WITH parsed AS (
	SELECT
		ds.station_id, dd.device_id, dm.metric_id,
		regexp_replace(trim(sr.data_time), '[TZ]', ' ', 'g') AS cleaned,
		sr.data_value, sr.source_hint,
		COALESCE(ds.extra->>'tz', {{if .AllowMissingTZ}}$3{{else}}NULL{{end}}) AS tz,
		(ds.extra->>'tz' IS NULL) AS tz_is_fallback
	FROM staging_raw sr
	JOIN dim_station ds ON ds.name = sr.station_name
	JOIN dim_device dd ON dd.station_id = ds.station_id AND dd.name = sr.device_name
	JOIN dim_metric_config dm ON dm.metric_key = sr.metric_key
), resolved AS (
	SELECT *,
		(to_timestamp(split_part(cleaned, '.', 1), 'YYYY-MM-DD HH24:MI:SS')::timestamp
			AT TIME ZONE COALESCE(tz, 'UTC')) AS ts_utc
	FROM parsed
	WHERE tz IS NOT NULL
), dedup AS (
	SELECT *,
		date_trunc('second', ts_utc) AS ts_bucket,
		row_number() OVER (
			PARTITION BY station_id, device_id, metric_id, date_trunc('second', ts_utc)
			ORDER BY ts_utc DESC
		) AS rn
	FROM resolved
)
{{if .StatsOnly}}
SELECT
	(SELECT count(*) FROM resolved WHERE ts_utc >= $1 AND ts_utc < $2) AS rows_input,
	(SELECT count(*) FROM dedup WHERE rn > 1 AND ts_bucket >= $1 AND ts_bucket < $2) AS rows_deduped,
	(SELECT count(*) FROM dedup WHERE rn = 1 AND ts_bucket >= $1 AND ts_bucket < $2) AS rows_merged,
	(SELECT count(*) FROM resolved WHERE tz_is_fallback AND ts_utc >= $1 AND ts_utc < $2) AS tz_fallback_rows
{{else}}
INSERT INTO fact_measurements (station_id, device_id, metric_id, ts_raw, ts_bucket, value, source_hint, inserted_at)
SELECT station_id, device_id, metric_id, ts_utc, ts_bucket, data_value::numeric, source_hint, now()
FROM dedup
WHERE rn = 1 AND ts_bucket >= $1 AND ts_bucket < $2
ON CONFLICT (station_id, device_id, metric_id, ts_bucket)
DO UPDATE SET value = EXCLUDED.value,
              source_hint = EXCLUDED.source_hint,
              ts_raw = EXCLUDED.ts_raw
{{end}}
`))

type tmplParams struct {
	AllowMissingTZ bool
	StatsOnly      bool
}

// missingTZCheckSQL finds a station that has staging rows falling inside
// the segment window but no explicit tz, parsing the raw timestamp the
// same way mergeSQLTmpl does (minus tz resolution, since this check is
// exactly what determines whether resolution is even allowed).
const missingTZCheckSQL = `
SELECT ds.name
FROM staging_raw sr
JOIN dim_station ds ON ds.name = sr.station_name
WHERE ds.extra->>'tz' IS NULL
AND (to_timestamp(split_part(regexp_replace(trim(sr.data_time), '[TZ]', ' ', 'g'), '.', 1), 'YYYY-MM-DD HH24:MI:SS')::timestamp AT TIME ZONE 'UTC') >= $1
AND (to_timestamp(split_part(regexp_replace(trim(sr.data_time), '[TZ]', ' ', 'g'), '.', 1), 'YYYY-MM-DD HH24:MI:SS')::timestamp AT TIME ZONE 'UTC') < $2
LIMIT 1
`

func renderSQL(allowMissingTZ, statsOnly bool) string {
	var buf bytes.Buffer
	_ = mergeSQLTmpl.Execute(&buf, tmplParams{AllowMissingTZ: allowMissingTZ, StatsOnly: statsOnly})
	return buf.String()
}

// Executor runs C10 against one resolved Runtime.
type Executor struct {
	rt *runtime.Runtime
}

// New constructs an Executor bound to rt.
func New(rt *runtime.Runtime) *Executor {
	return &Executor{rt: rt.With("merge")}
}

// RunSegment executes the canonical merge statement for one segment. On
// SQL failure, it rolls back and attempts to attach a truncated EXPLAIN of
// the statement before re-raising as a *Error.
func (ex *Executor) RunSegment(ctx context.Context, seg Window) (Stats, error) {
	allowMissingTZ := ex.rt.Config.Merge.AllowMissingTZ.Value
	defaultTZ := ex.rt.Config.Merge.DefaultStationTZ.Value

	timeout := time.Duration(ex.rt.Config.Database.ConnectTimeoutMs.Value) * time.Millisecond
	sess, err := ex.rt.Pool.Acquire(ctx, timeout)
	if err != nil {
		return Stats{}, fmt.Errorf("merge: acquire session: %w", err)
	}
	defer ex.rt.Pool.Release(sess)
	conn := sess.Conn()

	if !allowMissingTZ {
		var station string
		err := conn.QueryRow(ctx, missingTZCheckSQL, seg.Start, seg.End).Scan(&station)
		if err == nil {
			return Stats{}, &MissingTZError{StationName: station}
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return Stats{}, fmt.Errorf("merge: missing-tz check: %w", err)
		}
	}

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Stats{}, fmt.Errorf("merge: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	insertSQL := renderSQL(allowMissingTZ, false)
	args := mergeArgs(seg, allowMissingTZ, defaultTZ)

	start := time.Now()
	tag, err := tx.Exec(ctx, insertSQL, args...)
	costMs := float64(time.Since(start).Microseconds()) / 1000.0
	if err != nil {
		_ = tx.Rollback(ctx)
		explain := captureExplain(ctx, conn, insertSQL, args)
		return Stats{}, &Error{Segment: seg, ExplainText: explain, Err: err}
	}

	statsSQL := renderSQL(allowMissingTZ, true)
	var rowsInput, rowsDeduped, rowsMerged, tzFallback int64
	if err := tx.QueryRow(ctx, statsSQL, args...).Scan(&rowsInput, &rowsDeduped, &rowsMerged, &tzFallback); err != nil {
		_ = tx.Rollback(ctx)
		explain := captureExplain(ctx, conn, statsSQL, args)
		return Stats{}, &Error{Segment: seg, ExplainText: explain, Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return Stats{}, fmt.Errorf("merge: commit: %w", err)
	}
	committed = true

	stats := Stats{
		AffectedRows:   tag.RowsAffected(),
		RowsInput:      rowsInput,
		RowsDeduped:    rowsDeduped,
		RowsMerged:     rowsMerged,
		SQLCostMs:      costMs,
		TZFallbackRows: tzFallback,
	}
	if rowsInput > 0 {
		stats.DedupRatio = float64(rowsDeduped) / float64(rowsInput)
	}
	return stats, nil
}

func mergeArgs(seg Window, allowMissingTZ bool, defaultTZ string) []any {
	if allowMissingTZ {
		return []any{seg.Start, seg.End, defaultTZ}
	}
	return []any{seg.Start, seg.End}
}

func captureExplain(ctx context.Context, conn *pgx.Conn, sql string, args []any) string {
	rows, err := conn.Query(ctx, "EXPLAIN "+sql, args...)
	if err != nil {
		return ""
	}
	defer rows.Close()
	var buf bytes.Buffer
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			break
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
		if buf.Len() >= explainTruncateLen {
			break
		}
	}
	s := buf.String()
	if len(s) > explainTruncateLen {
		s = s[:explainTruncateLen]
	}
	return s
}

// Sum folds a segment Stats into a running window total.
func Sum(total *Stats, seg Stats) { total.add(seg) }
