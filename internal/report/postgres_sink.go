package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/gackouhamady/bnpp-risk-insights/internal/retry"
)

// PostgresSink appends reports to the report_runs table as JSONB rows, so
// past runs stay queryable next to the datamart.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink builds a sink over an open database handle.
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// Persist inserts the report keyed by its run id and returns that id.
// Transient failures are retried with backoff; constraint violations are not.
func (s *PostgresSink) Persist(ctx context.Context, r *Report) (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	err = retry.Do(ctx, 3, 200*time.Millisecond, func() error {
		_, execErr := s.db.ExecContext(ctx,
			`INSERT INTO report_runs (run_id, created_at, report) VALUES ($1, $2, $3)`,
			r.RunID, r.Timestamp.UTC(), raw,
		)
		var pqErr *pq.Error
		if errors.As(execErr, &pqErr) && pqErr.Code.Class() == "23" {
			// Integrity violation, retrying cannot help.
			return retry.Permanent(execErr)
		}
		return execErr
	})
	if err != nil {
		return "", fmt.Errorf("insert report run %s: %w", r.RunID, err)
	}
	return r.RunID, nil
}

// Latest returns the most recently created report, or sql.ErrNoRows wrapped
// when none exist.
func (s *PostgresSink) Latest(ctx context.Context) (*Report, error) {
	var raw []byte
	var created time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT report, created_at FROM report_runs ORDER BY created_at DESC, run_id DESC LIMIT 1`,
	).Scan(&raw, &created)
	if err != nil {
		return nil, fmt.Errorf("read latest report: %w", err)
	}

	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode latest report: %w", err)
	}
	return &r, nil
}
