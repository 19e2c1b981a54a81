package orchestrator

import (
	"context"
	"fmt"
	"time"

	"stationsync/internal/runtime"
)

// detectStagingTimeRange derives [min, max] over staging_raw.data_time,
// parsed the same way merge's "cleaned" CTE column does (strip T/Z
// separators, truncate to whole seconds), widened by one second on the
// high end so the returned window is a valid half-open [start, end).
// Grounded on the internal/schema.DetectTableBounds, which runs
// a single MIN/MAX aggregate ahead of a bulk operation to size its plan.
const detectRangeSQL = `
SELECT
	min(to_timestamp(split_part(regexp_replace(trim(data_time), '[TZ]', ' ', 'g'), '.', 1), 'YYYY-MM-DD HH24:MI:SS')),
	max(to_timestamp(split_part(regexp_replace(trim(data_time), '[TZ]', ' ', 'g'), '.', 1), 'YYYY-MM-DD HH24:MI:SS'))
FROM staging_raw`

func detectStagingTimeRange(ctx context.Context, rt *runtime.Runtime) (time.Time, time.Time, error) {
	timeout := time.Duration(rt.Config.Database.ConnectTimeoutMs.Value) * time.Millisecond
	sess, err := rt.Pool.Acquire(ctx, timeout)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("orchestrator: acquire session for auto-window: %w", err)
	}
	defer rt.Pool.Release(sess)

	var minTS, maxTS *time.Time
	if err := sess.Conn().QueryRow(ctx, detectRangeSQL).Scan(&minTS, &maxTS); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("orchestrator: detect staging time range: %w", err)
	}
	if minTS == nil || maxTS == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("orchestrator: staging_raw is empty, cannot auto-detect window")
	}
	return *minTS, maxTS.Add(time.Second), nil
}
