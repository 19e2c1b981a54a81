package csvsource

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "m1.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestHeaderToleranceCaseBOMWhitespace(t *testing.T) {
	content := "\xef\xbb\xbf Tagname , DATATIME, dataValue \nT,2025-02-28 10:00:00,1.0\n"
	path := writeCSV(t, content)
	r, err := Open(path, "hint", Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	row, ok := r.Next()
	if !ok {
		t.Fatal("expected one row")
	}
	if row.Kind != KindValid {
		t.Fatalf("expected valid row, got reject: %+v", row.Reject)
	}
	if row.Valid.TagName != "T" || row.Valid.DataValue != "1.0" {
		t.Fatalf("unexpected row: %+v", row.Valid)
	}
}

func TestMissingHeaderColumnFailsConstruction(t *testing.T) {
	path := writeCSV(t, "TagName,DataTime\nT,2025-02-28 10:00:00\n")
	_, err := Open(path, "hint", Options{})
	if err == nil {
		t.Fatal("expected HeaderError")
	}
	var hdrErr *HeaderError
	if !asHeaderError(err, &hdrErr) {
		t.Fatalf("expected *HeaderError, got %T: %v", err, err)
	}
}

func asHeaderError(err error, target **HeaderError) bool {
	for err != nil {
		if he, ok := err.(*HeaderError); ok {
			*target = he
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func TestMalformedRowBecomesRejectRowNotError(t *testing.T) {
	path := writeCSV(t, "TagName,DataTime,DataValue\nT,2025-02-28 10:00:00,1.0\nT,\"unterminated\n")
	r, err := Open(path, "hint", Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	row1, ok := r.Next()
	if !ok || row1.Kind != KindValid {
		t.Fatalf("expected first row valid, got %+v ok=%v", row1, ok)
	}
	row2, ok := r.Next()
	if !ok {
		t.Fatal("expected second row (reject)")
	}
	if row2.Kind != KindReject {
		t.Fatalf("expected reject row, got %+v", row2)
	}
	if row2.Reject.SourceHint != "hint" {
		t.Fatalf("source hint not propagated: %+v", row2.Reject)
	}
}

func TestEOF(t *testing.T) {
	path := writeCSV(t, "TagName,DataTime,DataValue\nT,2025-02-28 10:00:00,1.0\n")
	r, err := Open(path, "hint", Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	if _, ok := r.Next(); !ok {
		t.Fatal("expected one row before EOF")
	}
	if _, ok := r.Next(); ok {
		t.Fatal("expected EOF (ok=false)")
	}
}
