// Package scoring exposes on-demand risk scores over the datamart. It joins
// the stored facts with the feature aggregations and the trained models so
// callers ask for a score by entity id and never see feature plumbing.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gackouhamady/bnpp-risk-insights/internal/anomaly"
	"github.com/gackouhamady/bnpp-risk-insights/internal/datamart"
	"github.com/gackouhamady/bnpp-risk-insights/internal/features"
	"github.com/gackouhamady/bnpp-risk-insights/internal/logging"
	"github.com/gackouhamady/bnpp-risk-insights/internal/models"
	"github.com/gackouhamady/bnpp-risk-insights/internal/traces"
)

// ErrNotFound means the requested account or client has no transactions in
// the datamart.
var ErrNotFound = errors.New("entity not found in datamart")

// Service computes risk scores from the datamart.
type Service struct {
	store        datamart.Store
	defaultModel models.Model
	churnModel   models.Model
	scorer       *anomaly.Scorer
	logger       *slog.Logger
	now          func() time.Time
}

// New builds a scoring service. Either model may be nil, in which case the
// corresponding score operation fails with models.ErrModelUnavailable.
func New(store datamart.Store, defaultModel, churnModel models.Model, scorer *anomaly.Scorer, logger *slog.Logger) *Service {
	return &Service{
		store:        store,
		defaultModel: defaultModel,
		churnModel:   churnModel,
		scorer:       scorer,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock overrides the wall clock, for tests and replayable runs.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AggregateDefaultFeatures computes the default-risk feature vector for one
// account from its stored transactions.
func (s *Service) AggregateDefaultFeatures(ctx context.Context, accountID int64) (features.DefaultFeatures, error) {
	txs, err := s.store.ReadTransactions(ctx)
	if err != nil {
		return features.DefaultFeatures{}, fmt.Errorf("read transactions: %w", err)
	}

	var mine []datamart.Transaction
	for _, tx := range txs {
		if tx.AccountID == accountID {
			mine = append(mine, tx)
		}
	}
	if len(mine) == 0 {
		return features.DefaultFeatures{}, fmt.Errorf("%w: account %d", ErrNotFound, accountID)
	}

	return features.AggregateDefault(accountID, mine, datasetSpanDays(txs))
}

// AggregateChurnFeatures computes the churn-risk feature vector for one
// client from its accounts and transactions.
func (s *Service) AggregateChurnFeatures(ctx context.Context, clientID int64) (features.ChurnFeatures, error) {
	txs, err := s.store.ReadTransactions(ctx)
	if err != nil {
		return features.ChurnFeatures{}, fmt.Errorf("read transactions: %w", err)
	}
	accounts, err := s.store.ReadAccounts(ctx)
	if err != nil {
		return features.ChurnFeatures{}, fmt.Errorf("read accounts: %w", err)
	}

	var mine []datamart.Transaction
	for _, tx := range txs {
		if tx.ClientID == clientID {
			mine = append(mine, tx)
		}
	}
	if len(mine) == 0 {
		return features.ChurnFeatures{}, fmt.Errorf("%w: client %d", ErrNotFound, clientID)
	}

	var opened []time.Time
	for _, acct := range accounts {
		if acct.ClientID == clientID {
			opened = append(opened, acct.OpenedAt)
		}
	}

	return features.AggregateChurn(clientID, mine, opened, s.now().UTC())
}

// ScoreDefault returns the default-risk probability for one account. Null
// features are imputed with column means over every scored account before
// prediction, matching how the model was trained.
func (s *Service) ScoreDefault(ctx context.Context, accountID int64) (float64, error) {
	ctx, span := traces.StartSpan(ctx, "scoring.default", traces.AccountID(accountID))
	defer span.End()

	if s.defaultModel == nil {
		return 0, fmt.Errorf("%w: default model not loaded", models.ErrModelUnavailable)
	}

	txs, err := s.store.ReadTransactions(ctx)
	if err != nil {
		return 0, fmt.Errorf("read transactions: %w", err)
	}

	rows, err := features.AggregateDefaultAll(txs, datasetSpanDays(txs))
	if err != nil {
		return 0, fmt.Errorf("aggregate default features: %w", err)
	}
	imputed := features.ImputeDefaults(rows)

	for _, row := range imputed {
		if row.AccountID != accountID {
			continue
		}
		vec, err := row.Vector()
		if err != nil {
			return 0, fmt.Errorf("vectorize account %d: %w", accountID, err)
		}
		p, err := s.defaultModel.PredictProbability(vec)
		if err != nil {
			return 0, fmt.Errorf("predict default risk: %w", err)
		}
		logging.L(ctx).Debug("scored default risk", "account_id", accountID, "probability", p)
		return p, nil
	}
	return 0, fmt.Errorf("%w: account %d", ErrNotFound, accountID)
}

// ScoreChurn returns the churn-risk probability for one client.
func (s *Service) ScoreChurn(ctx context.Context, clientID int64) (float64, error) {
	ctx, span := traces.StartSpan(ctx, "scoring.churn", traces.ClientID(clientID))
	defer span.End()

	if s.churnModel == nil {
		return 0, fmt.Errorf("%w: churn model not loaded", models.ErrModelUnavailable)
	}

	feats, err := s.AggregateChurnFeatures(ctx, clientID)
	if err != nil {
		return 0, err
	}
	p, err := s.churnModel.PredictProbability(feats.Vector())
	if err != nil {
		return 0, fmt.Errorf("predict churn risk: %w", err)
	}
	logging.L(ctx).Debug("scored churn risk", "client_id", clientID, "probability", p)
	return p, nil
}

// ScoreAnomalies scores every stored transaction with the isolation forest
// at the given contamination.
func (s *Service) ScoreAnomalies(ctx context.Context, contamination float64) ([]anomaly.Result, error) {
	ctx, span := traces.StartSpan(ctx, "scoring.anomalies", traces.Contamination(contamination))
	defer span.End()

	txs, err := s.store.ReadTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read transactions: %w", err)
	}
	results, err := s.scorer.Score(txs, contamination)
	if err != nil {
		return nil, fmt.Errorf("score anomalies: %w", err)
	}
	return results, nil
}

// datasetSpanDays counts the distinct calendar days covered by the full
// transaction set, the denominator of per-day rates.
func datasetSpanDays(txs []datamart.Transaction) int {
	days := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		days[tx.Timestamp.UTC().Format("2006-01-02")] = struct{}{}
	}
	return len(days)
}
