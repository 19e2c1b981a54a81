// Package csvsource implements a streaming, BOM-tolerant CSV row producer
// yielding a tagged ValidRow/RejectRow union, matched exhaustively by
// callers (C3).
package csvsource

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// HeaderError means the file's header does not contain the three required
// columns; it is unrecoverable for the whole file (not a RejectRow).
type HeaderError struct {
	Path   string
	Header []string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("csvsource: %s: header missing required columns (tagname, datatime, datavalue): got %v", e.Path, e.Header)
}

// RowKind distinguishes the two arms of the Row sum type.
type RowKind int

const (
	KindValid RowKind = iota
	KindReject
)

// ValidRow is a successfully parsed input line. station_name/device_name/
// metric_key are left zero here; the COPY loader (C7) fills them from the
// mapping entry being processed, not the reader.
type ValidRow struct {
	StationName string
	DeviceName  string
	MetricKey   string
	TagName     string
	DataTime    string
	DataValue   string
	SourceHint  string
}

// RejectRow is structured data about a row the reader could not make
// sense of. It is not an error: it is persisted to staging_rejects.
type RejectRow struct {
	SourceHint string
	ErrorMsg   string
}

// Row is the tagged union read from the stream. Exactly one of Valid/Reject
// is populated, selected by Kind.
type Row struct {
	Kind   RowKind
	Valid  ValidRow
	Reject RejectRow
}

// Reader streams rows from one CSV file.
type Reader struct {
	path       string
	sourceHint string
	csvr       *csv.Reader
	closer     io.Closer
	colTag     int
	colTime    int
	colValue   int
	lineNo     int
}

// Options configures delimiter/quote behavior. A leading UTF-8 BOM is
// always stripped; there is no option to keep it.
type Options struct {
	Delimiter rune // default ','
	LazyQuotes bool
}

const bom = "\xef\xbb\xbf"

// Open opens path, validates its header, and returns a Reader positioned
// at the first data row. sourceHint is the provenance token (C4 output)
// stamped onto every row this reader yields.
func Open(path string, sourceHint string, opts Options) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csvsource: open %s: %w", path, err)
	}

	br := bufio.NewReader(f)
	if err := stripBOM(br); err != nil {
		f.Close()
		return nil, fmt.Errorf("csvsource: %s: %w", path, err)
	}

	cr := csv.NewReader(br)
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}
	cr.LazyQuotes = opts.LazyQuotes
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csvsource: %s: read header: %w", path, err)
	}

	colTag, colTime, colValue, ok := resolveHeader(header)
	if !ok {
		f.Close()
		return nil, &HeaderError{Path: path, Header: header}
	}

	return &Reader{
		path:       path,
		sourceHint: sourceHint,
		csvr:       cr,
		closer:     f,
		colTag:     colTag,
		colTime:    colTime,
		colValue:   colValue,
	}, nil
}

// resolveHeader normalizes (case-insensitive, BOM-stripped, trimmed) header
// names and locates the three required columns.
func resolveHeader(header []string) (tag, dt, dv int, ok bool) {
	tag, dt, dv = -1, -1, -1
	for i, h := range header {
		norm := normalizeHeaderCell(h)
		switch norm {
		case "tagname":
			tag = i
		case "datatime":
			dt = i
		case "datavalue":
			dv = i
		}
	}
	return tag, dt, dv, tag >= 0 && dt >= 0 && dv >= 0
}

func normalizeHeaderCell(s string) string {
	s = strings.TrimPrefix(s, bom)
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "")
	return s
}

func stripBOM(br *bufio.Reader) error {
	peek, err := br.Peek(3)
	if err != nil && err != io.EOF {
		return err
	}
	if len(peek) >= 3 && string(peek) == bom {
		_, _ = br.Discard(3)
	}
	return nil
}

// Next returns the next row, or (Row{}, false) at EOF. Parse failures never
// stop the stream: they are surfaced as a RejectRow and reading continues.
func (r *Reader) Next() (Row, bool) {
	rec, err := r.csvr.Read()
	if err == io.EOF {
		return Row{}, false
	}
	r.lineNo++
	if err != nil {
		return Row{
			Kind: KindReject,
			Reject: RejectRow{
				SourceHint: r.sourceHint,
				ErrorMsg:   fmt.Sprintf("line %d: %v", r.lineNo, err),
			},
		}, true
	}

	maxCol := max3(r.colTag, r.colTime, r.colValue)
	if len(rec) <= maxCol {
		return Row{
			Kind: KindReject,
			Reject: RejectRow{
				SourceHint: r.sourceHint,
				ErrorMsg:   fmt.Sprintf("line %d: short row (%d columns)", r.lineNo, len(rec)),
			},
		}, true
	}

	return Row{
		Kind: KindValid,
		Valid: ValidRow{
			TagName:    strings.TrimSpace(rec[r.colTag]),
			DataTime:   strings.TrimSpace(rec[r.colTime]),
			DataValue:  strings.TrimSpace(rec[r.colValue]),
			SourceHint: r.sourceHint,
		},
	}, true
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.closer.Close()
}

func max3(a, b, c int) int {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
