package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gackouhamady/bnpp-risk-insights/internal/anomaly"
	"github.com/gackouhamady/bnpp-risk-insights/internal/datamart"
	"github.com/gackouhamady/bnpp-risk-insights/internal/etl"
	"github.com/gackouhamady/bnpp-risk-insights/internal/features"
	"github.com/gackouhamady/bnpp-risk-insights/internal/logging"
	"github.com/gackouhamady/bnpp-risk-insights/internal/models"
	"github.com/gackouhamady/bnpp-risk-insights/internal/pipeline"
	"github.com/gackouhamady/bnpp-risk-insights/internal/report"
	"github.com/gackouhamady/bnpp-risk-insights/internal/synthetic"
)

type captureSink struct {
	reports []*report.Report
}

func (s *captureSink) Persist(_ context.Context, r *report.Report) (string, error) {
	s.reports = append(s.reports, r)
	return "memory://" + r.RunID, nil
}

type captureMetrics struct {
	values map[string]float64
}

func (m *captureMetrics) Record(values map[string]float64) { m.values = values }

func aggregateDefaults(txs []datamart.Transaction) ([]features.DefaultFeatures, error) {
	days := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		days[tx.Timestamp.UTC().Format("2006-01-02")] = struct{}{}
	}
	return features.AggregateDefaultAll(txs, len(days))
}

func aggregateChurn(txs []datamart.Transaction, accounts []datamart.Account) ([]features.ChurnFeatures, error) {
	return features.AggregateChurnAll(txs, accounts, time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC))
}

// trainModels runs a generate-load-train cycle into modelDir, the same flow
// the train subcommand performs.
func trainModels(t *testing.T, rawDir, modelDir string) {
	t.Helper()
	store := datamart.NewMemoryStore()
	runner := etl.NewRunner(store, logging.New("error", "text"))
	ctx := context.Background()

	_, err := runner.Run(ctx, rawDir)
	require.NoError(t, err)

	txs, err := store.ReadTransactions(ctx)
	require.NoError(t, err)
	accounts, err := store.ReadAccounts(ctx)
	require.NoError(t, err)

	defRows, err := aggregateDefaults(txs)
	require.NoError(t, err)
	defModel, err := models.TrainDefault(defRows)
	require.NoError(t, err)

	churnRows, err := aggregateChurn(txs, accounts)
	require.NoError(t, err)
	churnModel, err := models.TrainChurn(churnRows)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(modelDir, 0o755))
	require.NoError(t, models.Save(filepath.Join(modelDir, "model_default.json"), defModel))
	require.NoError(t, models.Save(filepath.Join(modelDir, "model_churn.json"), churnModel))
}

func newPipeline(t *testing.T, cfg pipeline.Config, sink report.Sink, mSink pipeline.MetricsSink) *pipeline.Pipeline {
	t.Helper()
	store := datamart.NewMemoryStore()
	logger := logging.New("error", "text")
	runner := etl.NewRunner(store, logger)
	p := pipeline.New(cfg, store, runner, anomaly.NewScorer(), sink, mSink, logger)
	return p.WithClock(func() time.Time { return time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC) })
}

func TestRunProducesCompleteReport(t *testing.T) {
	rawDir := t.TempDir()
	modelDir := t.TempDir()
	require.NoError(t, synthetic.Generate(rawDir, synthetic.Config{
		Transactions: 1000,
		Seed:         42,
		Now:          time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}))
	trainModels(t, rawDir, modelDir)

	sink := &captureSink{}
	mSink := &captureMetrics{}
	p := newPipeline(t, pipeline.Config{RawDir: rawDir, ModelDir: modelDir, Contamination: 0.05}, sink, mSink)

	r, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, r.RunID)
	assert.Equal(t, time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC), r.Timestamp)
	assert.Len(t, r.DefaultRiskSummary, 100, "one entry per account")
	assert.Len(t, r.ChurnRiskSummary, 10, "one entry per client")
	assert.InDelta(t, 50, len(r.Anomalies), 5, "roughly contamination times the set")

	for _, ar := range r.DefaultRiskSummary {
		assert.GreaterOrEqual(t, ar.DefaultRisk, 0.0)
		assert.LessOrEqual(t, ar.DefaultRisk, 1.0)
	}

	// Every report row is flagged and the ordering is most anomalous first.
	for i, a := range r.Anomalies {
		assert.True(t, a.IsAnomaly)
		if i > 0 {
			assert.LessOrEqual(t, a.Score, r.Anomalies[i-1].Score)
		}
	}

	require.Len(t, sink.reports, 1)
	assert.Equal(t, r, sink.reports[0])

	require.NotNil(t, mSink.values)
	assert.Equal(t, float64(len(r.Anomalies)), mSink.values["anomalies_flagged"])
	assert.Greater(t, mSink.values["avg_default_risk"], 0.0)
	assert.Greater(t, mSink.values["avg_churn_risk"], 0.0)
}

func TestRunFailsWithoutModels(t *testing.T) {
	rawDir := t.TempDir()
	require.NoError(t, synthetic.Generate(rawDir, synthetic.Config{
		Transactions: 100,
		Seed:         42,
		Now:          time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}))

	sink := &captureSink{}
	p := newPipeline(t, pipeline.Config{RawDir: rawDir, ModelDir: t.TempDir(), Contamination: 0.05}, sink, nil)

	_, err := p.Run(context.Background())
	require.Error(t, err)

	var stageErr *pipeline.StageFailure
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, pipeline.StageLoad, stageErr.Stage)
	assert.ErrorIs(t, err, models.ErrModelUnavailable)
	assert.Empty(t, sink.reports, "no partial report on failure")
}

func TestRunFailsOnBadContamination(t *testing.T) {
	rawDir := t.TempDir()
	modelDir := t.TempDir()
	require.NoError(t, synthetic.Generate(rawDir, synthetic.Config{
		Transactions: 1000,
		Seed:         42,
		Now:          time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}))
	trainModels(t, rawDir, modelDir)

	sink := &captureSink{}
	p := newPipeline(t, pipeline.Config{RawDir: rawDir, ModelDir: modelDir, Contamination: 0.9}, sink, nil)

	_, err := p.Run(context.Background())
	require.Error(t, err)

	var stageErr *pipeline.StageFailure
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, pipeline.StageScoreAnomalies, stageErr.Stage)
	assert.ErrorIs(t, err, anomaly.ErrInvalidContamination)
	assert.Empty(t, sink.reports)
}

func TestRunFailsOnMissingRawDir(t *testing.T) {
	modelDir := t.TempDir()
	rawDir := t.TempDir()
	require.NoError(t, synthetic.Generate(rawDir, synthetic.Config{
		Transactions: 100,
		Seed:         42,
		Now:          time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}))
	trainModels(t, rawDir, modelDir)

	sink := &captureSink{}
	p := newPipeline(t, pipeline.Config{RawDir: filepath.Join(rawDir, "absent"), ModelDir: modelDir, Contamination: 0.05}, sink, nil)

	_, err := p.Run(context.Background())
	require.Error(t, err)

	var stageErr *pipeline.StageFailure
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, pipeline.StageLoad, stageErr.Stage)
}
