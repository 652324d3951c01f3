// Package pipeline orchestrates a full risk run: load the raw extracts into
// the datamart, aggregate features, score default, churn, and anomalies,
// summarize, and persist the report. A run either produces a complete report
// or fails with the stage that broke; no partial report is ever persisted.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gackouhamady/bnpp-risk-insights/internal/anomaly"
	"github.com/gackouhamady/bnpp-risk-insights/internal/datamart"
	"github.com/gackouhamady/bnpp-risk-insights/internal/etl"
	"github.com/gackouhamady/bnpp-risk-insights/internal/features"
	"github.com/gackouhamady/bnpp-risk-insights/internal/logging"
	"github.com/gackouhamady/bnpp-risk-insights/internal/metrics"
	"github.com/gackouhamady/bnpp-risk-insights/internal/models"
	"github.com/gackouhamady/bnpp-risk-insights/internal/report"
	"github.com/gackouhamady/bnpp-risk-insights/internal/traces"
)

// Stage names, in run order.
const (
	StageLoad             = "load"
	StageAggregateDefault = "aggregate_default"
	StageAggregateChurn   = "aggregate_churn"
	StageScoreAnomalies   = "score_anomalies"
	StageSummarize        = "summarize"
	StagePersistReport    = "persist_report"
)

// StageFailure wraps the error that aborted a run with the stage it came
// from.
type StageFailure struct {
	Stage string
	Err   error
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("pipeline stage %s: %v", e.Stage, e.Err)
}

func (e *StageFailure) Unwrap() error { return e.Err }

// MetricsSink receives the summary metrics of a completed run.
type MetricsSink interface {
	Record(values map[string]float64)
}

// Config holds the knobs of one pipeline instance.
type Config struct {
	RawDir        string
	ModelDir      string
	Contamination float64
}

// Pipeline runs the end-to-end risk flow against one datamart.
type Pipeline struct {
	cfg    Config
	store  datamart.Store
	runner *etl.Runner
	scorer *anomaly.Scorer
	sink   report.Sink
	mSink  MetricsSink
	logger *slog.Logger
	now    func() time.Time
}

// New builds a pipeline. The metrics sink may be nil.
func New(cfg Config, store datamart.Store, runner *etl.Runner, scorer *anomaly.Scorer, sink report.Sink, mSink MetricsSink, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		store:  store,
		runner: runner,
		scorer: scorer,
		sink:   sink,
		mSink:  mSink,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the wall clock, for tests and replayable runs.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Run executes every stage and returns the persisted report. The run id is
// attached to the context so all stage logs carry it.
func (p *Pipeline) Run(ctx context.Context) (*report.Report, error) {
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	ctx = logging.WithLogger(ctx, p.logger)
	started := p.now()

	ctx, span := traces.StartSpan(ctx, "pipeline.run", traces.RunID(runID))
	defer span.End()

	r, err := p.run(ctx, runID)
	if err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("failure").Inc()
		return nil, err
	}
	metrics.PipelineRunsTotal.WithLabelValues("success").Inc()

	logging.L(ctx).Info("pipeline run complete",
		"accounts_scored", len(r.DefaultRiskSummary),
		"clients_scored", len(r.ChurnRiskSummary),
		"anomalies", len(r.Anomalies),
		"duration", p.now().Sub(started).String(),
	)
	return r, nil
}

func (p *Pipeline) run(ctx context.Context, runID string) (*report.Report, error) {
	// Models load up front so a missing artifact fails before any table is
	// touched.
	defaultModel, err := models.Load(filepath.Join(p.cfg.ModelDir, "model_default.json"))
	if err != nil {
		return nil, &StageFailure{Stage: StageLoad, Err: err}
	}
	churnModel, err := models.Load(filepath.Join(p.cfg.ModelDir, "model_churn.json"))
	if err != nil {
		return nil, &StageFailure{Stage: StageLoad, Err: err}
	}

	summary, err := stage(ctx, StageLoad, func(ctx context.Context) (etl.Summary, error) {
		return p.runner.Run(ctx, p.cfg.RawDir)
	})
	if err != nil {
		return nil, err
	}
	metrics.ETLRowsLoaded.WithLabelValues(datamart.TableClients).Set(float64(summary.Clients))
	metrics.ETLRowsLoaded.WithLabelValues(datamart.TableAccounts).Set(float64(summary.Accounts))
	metrics.ETLRowsLoaded.WithLabelValues(datamart.TableTime).Set(float64(summary.TimeEntries))
	metrics.ETLRowsLoaded.WithLabelValues(datamart.TableTransactions).Set(float64(summary.Transactions))

	// Each stage re-reads the store so it sees exactly what was persisted,
	// not what the previous stage held in memory.
	defaultRisks, err := stage(ctx, StageAggregateDefault, func(ctx context.Context) ([]report.AccountRisk, error) {
		return p.scoreDefaults(ctx, defaultModel)
	})
	if err != nil {
		return nil, err
	}

	churnRisks, err := stage(ctx, StageAggregateChurn, func(ctx context.Context) ([]report.ClientRisk, error) {
		return p.scoreChurn(ctx, churnModel)
	})
	if err != nil {
		return nil, err
	}

	anomalies, err := stage(ctx, StageScoreAnomalies, func(ctx context.Context) ([]anomaly.Result, error) {
		txs, err := p.store.ReadTransactions(ctx)
		if err != nil {
			return nil, err
		}
		return p.scorer.Score(txs, p.cfg.Contamination)
	})
	if err != nil {
		return nil, err
	}

	r, err := stage(ctx, StageSummarize, func(ctx context.Context) (*report.Report, error) {
		return p.summarize(runID, defaultRisks, churnRisks, anomalies)
	})
	if err != nil {
		return nil, err
	}

	location, err := stage(ctx, StagePersistReport, func(ctx context.Context) (string, error) {
		return p.sink.Persist(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	logging.L(ctx).Info("report persisted", "location", location)

	return r, nil
}

// stage wraps one pipeline step with a span, a duration observation, and
// failure accounting.
func stage[T any](ctx context.Context, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := traces.StartSpan(ctx, "pipeline."+name, traces.Stage(name))
	defer span.End()

	timer := time.Now()
	out, err := fn(ctx)
	metrics.PipelineStageDuration.WithLabelValues(name).Observe(time.Since(timer).Seconds())

	if err != nil {
		metrics.PipelineStageFailuresTotal.WithLabelValues(name).Inc()
		logging.L(ctx).Error("pipeline stage failed", "stage", name, "error", err)
		var zero T
		return zero, &StageFailure{Stage: name, Err: err}
	}
	return out, nil
}

func (p *Pipeline) scoreDefaults(ctx context.Context, model models.Model) ([]report.AccountRisk, error) {
	txs, err := p.store.ReadTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read transactions: %w", err)
	}

	rows, err := features.AggregateDefaultAll(txs, distinctDays(txs))
	if err != nil {
		return nil, fmt.Errorf("aggregate default features: %w", err)
	}
	imputed := features.ImputeDefaults(rows)

	risks := make([]report.AccountRisk, len(imputed))
	for i, row := range imputed {
		vec, err := row.Vector()
		if err != nil {
			return nil, fmt.Errorf("vectorize account %d: %w", row.AccountID, err)
		}
		prob, err := model.PredictProbability(vec)
		if err != nil {
			return nil, fmt.Errorf("predict default risk for account %d: %w", row.AccountID, err)
		}
		risks[i] = report.AccountRisk{AccountID: row.AccountID, DefaultRisk: prob}
	}
	return risks, nil
}

func (p *Pipeline) scoreChurn(ctx context.Context, model models.Model) ([]report.ClientRisk, error) {
	txs, err := p.store.ReadTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read transactions: %w", err)
	}
	accounts, err := p.store.ReadAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}

	rows, err := features.AggregateChurnAll(txs, accounts, p.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("aggregate churn features: %w", err)
	}

	risks := make([]report.ClientRisk, len(rows))
	for i, row := range rows {
		prob, err := model.PredictProbability(row.Vector())
		if err != nil {
			return nil, fmt.Errorf("predict churn risk for client %d: %w", row.ClientID, err)
		}
		risks[i] = report.ClientRisk{ClientID: row.ClientID, ChurnRisk: prob}
	}
	return risks, nil
}

// summarize assembles the immutable report. Only flagged anomalies make it
// in, ordered most anomalous first.
func (p *Pipeline) summarize(runID string, defaults []report.AccountRisk, churns []report.ClientRisk, scored []anomaly.Result) (*report.Report, error) {
	flagged := make([]anomaly.Result, 0)
	for _, res := range scored {
		if res.IsAnomaly {
			flagged = append(flagged, res)
		}
	}
	sort.Slice(flagged, func(i, j int) bool {
		if flagged[i].Score == flagged[j].Score {
			return flagged[i].TransactionID < flagged[j].TransactionID
		}
		return flagged[i].Score > flagged[j].Score
	})

	r := &report.Report{
		RunID:              runID,
		Timestamp:          p.now().UTC(),
		DefaultRiskSummary: defaults,
		ChurnRiskSummary:   churns,
		Anomalies:          flagged,
	}

	if p.mSink != nil {
		p.mSink.Record(map[string]float64{
			"anomalies_flagged": float64(len(flagged)),
			"avg_default_risk":  meanDefaultRisk(defaults),
			"avg_churn_risk":    meanChurnRisk(churns),
		})
	}
	return r, nil
}

func meanDefaultRisk(risks []report.AccountRisk) float64 {
	if len(risks) == 0 {
		return 0
	}
	var sum float64
	for _, r := range risks {
		sum += r.DefaultRisk
	}
	return sum / float64(len(risks))
}

func meanChurnRisk(risks []report.ClientRisk) float64 {
	if len(risks) == 0 {
		return 0
	}
	var sum float64
	for _, r := range risks {
		sum += r.ChurnRisk
	}
	return sum / float64(len(risks))
}

func distinctDays(txs []datamart.Transaction) int {
	days := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		days[tx.Timestamp.UTC().Format("2006-01-02")] = struct{}{}
	}
	return len(days)
}
