// Package report assembles and persists the pipeline's output: a JSON risk
// report plus timestamped CSV exports of the datamart.
package report

import (
	"context"
	"time"

	"github.com/gackouhamady/bnpp-risk-insights/internal/anomaly"
)

// AccountRisk is one account's default-risk score.
type AccountRisk struct {
	AccountID   int64   `json:"account_id"`
	DefaultRisk float64 `json:"default_risk"`
}

// ClientRisk is one client's churn-risk score.
type ClientRisk struct {
	ClientID  int64   `json:"client_id"`
	ChurnRisk float64 `json:"churn_risk"`
}

// Report is the complete output of one pipeline run.
type Report struct {
	RunID              string           `json:"run_id"`
	Timestamp          time.Time        `json:"timestamp"`
	DefaultRiskSummary []AccountRisk    `json:"default_risk_summary"`
	ChurnRiskSummary   []ClientRisk     `json:"churn_risk_summary"`
	Anomalies          []anomaly.Result `json:"anomalies"`
}

// Sink persists a report and returns where it went (a file path or a row
// reference, depending on the sink).
type Sink interface {
	Persist(ctx context.Context, r *Report) (location string, err error)
}
