package merge

import "testing"

func TestStatsAdd(t *testing.T) {
	total := Stats{}
	total.add(Stats{RowsInput: 10, RowsDeduped: 3, RowsMerged: 7, AffectedRows: 7, SQLCostMs: 5})
	total.add(Stats{RowsInput: 5, RowsDeduped: 1, RowsMerged: 4, AffectedRows: 4, SQLCostMs: 2})
	if total.RowsInput != 15 || total.RowsDeduped != 4 || total.RowsMerged != 11 {
		t.Fatalf("total = %+v", total)
	}
	wantRatio := 4.0 / 15.0
	if total.DedupRatio != wantRatio {
		t.Fatalf("DedupRatio = %v, want %v", total.DedupRatio, wantRatio)
	}
}

func TestRenderSQLDiffersByMode(t *testing.T) {
	insertSQL := renderSQL(true, false)
	statsSQL := renderSQL(true, true)
	if insertSQL == statsSQL {
		t.Fatal("insert and stats statements must differ")
	}
	if !contains(insertSQL, "INSERT INTO fact_measurements") {
		t.Fatalf("insert statement missing INSERT clause:\n%s", insertSQL)
	}
	if !contains(statsSQL, "rows_deduped") {
		t.Fatalf("stats statement missing rows_deduped column:\n%s", statsSQL)
	}
}

func TestMergeArgsIncludeDefaultTZOnlyWhenAllowed(t *testing.T) {
	seg := Window{}
	withFallback := mergeArgs(seg, true, "Asia/Shanghai")
	if len(withFallback) != 3 {
		t.Fatalf("expected 3 args when allow_missing_tz, got %d", len(withFallback))
	}
	without := mergeArgs(seg, false, "Asia/Shanghai")
	if len(without) != 2 {
		t.Fatalf("expected 2 args when !allow_missing_tz, got %d", len(without))
	}
}

func TestMissingTZErrorMessage(t *testing.T) {
	err := &MissingTZError{StationName: "pump-07"}
	want := `merge: station "pump-07" has no tz and allow_missing_tz=false`
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && indexOf(s, sub) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
