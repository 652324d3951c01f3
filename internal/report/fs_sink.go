package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FSSink writes reports as timestamped JSON files under one directory.
type FSSink struct {
	dir string
}

// NewFSSink builds a filesystem sink rooted at dir. The directory is created
// on first persist.
func NewFSSink(dir string) *FSSink {
	return &FSSink{dir: dir}
}

// Persist writes the report to report_YYYYMMDD_HHMMSS.json and returns the
// file path.
func (s *FSSink) Persist(ctx context.Context, r *Report) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("report_%s.json", r.Timestamp.UTC().Format("20060102_150405")))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	return path, nil
}
