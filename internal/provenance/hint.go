// Package provenance produces the stable per-row source_hint token (C4).
// Modeled on the pkg/lsn package: a tiny, pure, independently
// tested formatting unit with no I/O.
package provenance

import (
	"path/filepath"
	"strings"
)

// Version is the provenance token format version emitted when the
// enhanced source-hint toggle is on.
const Version = 2

// Encode computes the source_hint for csvPath relative to baseDir.
//
// If enhanced is false, the token is just the file's basename. Otherwise
// the relative path of csvPath under baseDir is computed (falling back to
// the basename if csvPath lies outside baseDir), separators are normalized
// to forward slashes, and the v2 token is emitted:
// "data/<rel>|batch=<runID>|ver=2".
func Encode(baseDir, csvPath, runID string, enhanced bool) string {
	if !enhanced {
		return filepath.Base(csvPath)
	}
	rel, err := filepath.Rel(baseDir, csvPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "data/" + filepath.Base(csvPath) + "|batch=" + runID + "|ver=2"
	}
	rel = filepath.ToSlash(rel)
	return "data/" + rel + "|batch=" + runID + "|ver=2"
}

// ParsedHint is a source_hint decoded back into its components. Both the
// v1 (bare basename) and v2 (structured) shapes must be accepted by any
// downstream reader, since staged data from both encoding eras can coexist
// in the fact table.
type ParsedHint struct {
	Version int
	Path    string
	BatchID string
}

// Decode accepts either token shape. v1 tokens (no "|ver=" suffix) decode
// to Version 1 with Path set to the raw token and BatchID empty.
func Decode(hint string) ParsedHint {
	if !strings.Contains(hint, "|ver=") {
		return ParsedHint{Version: 1, Path: hint}
	}
	parts := strings.Split(hint, "|")
	p := ParsedHint{Version: 1, Path: parts[0]}
	for _, seg := range parts[1:] {
		switch {
		case strings.HasPrefix(seg, "batch="):
			p.BatchID = strings.TrimPrefix(seg, "batch=")
		case strings.HasPrefix(seg, "ver="):
			if seg == "ver=2" {
				p.Version = 2
			}
		}
	}
	return p
}
