package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gackouhamady/bnpp-risk-insights/internal/anomaly"
	"github.com/gackouhamady/bnpp-risk-insights/internal/datamart"
)

func sampleReport() *Report {
	return &Report{
		RunID:     "4f1c2b9a-0000-0000-0000-000000000001",
		Timestamp: time.Date(2024, 3, 15, 10, 30, 45, 0, time.UTC),
		DefaultRiskSummary: []AccountRisk{
			{AccountID: 1, DefaultRisk: 0.12},
			{AccountID: 2, DefaultRisk: 0.87},
		},
		ChurnRiskSummary: []ClientRisk{
			{ClientID: 10, ChurnRisk: 0.34},
		},
		Anomalies: []anomaly.Result{
			{TransactionID: 5, Amount: 5000, TxPerAccount: 1, Score: 0.71, IsAnomaly: true},
		},
	}
}

func TestFSSinkWritesTimestampedJSON(t *testing.T) {
	dir := t.TempDir()
	sink := NewFSSink(filepath.Join(dir, "reports"))

	location, err := sink.Persist(context.Background(), sampleReport())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "reports", "report_20240315_103045.json"), location)

	raw, err := os.ReadFile(location)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	for _, key := range []string{"run_id", "timestamp", "default_risk_summary", "churn_risk_summary", "anomalies"} {
		assert.Contains(t, decoded, key)
	}

	var got Report
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, sampleReport(), &got)
}

func TestExporterWritesTablesAndKPIs(t *testing.T) {
	store := datamart.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.WriteClients(ctx, []datamart.Client{
		{ID: 10, Name: "Alice Martin", Birthdate: time.Date(1980, 4, 12, 0, 0, 0, 0, time.UTC), Country: "FR"},
	}, datamart.Replace))
	require.NoError(t, store.WriteAccounts(ctx, []datamart.Account{
		{ID: 1, ClientID: 10, Type: "checking", OpenedAt: time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)},
	}, datamart.Replace))
	require.NoError(t, store.WriteTransactions(ctx, []datamart.Transaction{
		{ID: 1, AccountID: 1, ClientID: 10, TimeID: 1, Timestamp: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC), Amount: 50, Type: "debit"},
		{ID: 2, AccountID: 1, ClientID: 10, TimeID: 2, Timestamp: time.Date(2024, 3, 3, 14, 0, 0, 0, time.UTC), Amount: 70, Type: "debit"},
		{ID: 3, AccountID: 1, ClientID: 10, TimeID: 1, Timestamp: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), Amount: 200, Type: "credit"},
	}, datamart.Replace))

	dir := t.TempDir()
	now := time.Date(2024, 3, 15, 10, 30, 45, 0, time.UTC)

	paths, err := NewExporter(store, dir).Export(ctx, now)
	require.NoError(t, err)
	require.Len(t, paths, 4)
	for _, p := range paths {
		assert.Contains(t, p, "_20240315_103045.csv")
	}

	f, err := os.Open(filepath.Join(dir, "kpi_transactions_20240315_103045.csv"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"transaction_type", "total_amount", "avg_amount", "tx_count"}, rows[0])
	assert.Equal(t, []string{"credit", "200", "200", "1"}, rows[1])
	assert.Equal(t, []string{"debit", "120", "60", "2"}, rows[2])
}
