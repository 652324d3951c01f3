// Package anomaly flags suspicious transactions with an unsupervised
// isolation-forest model over per-transaction feature vectors.
//
// Each transaction is described by its amount and the transaction count of
// its account within the scored set. The forest is fit on the full set, every
// transaction receives a score in (0, 1), and the flagging threshold is the
// (1 - contamination) quantile of those scores. Scoring is deterministic for
// a fixed seed and input.
package anomaly

import (
	"errors"
	"math"
	"math/rand"
	"sort"

	"github.com/gackouhamady/bnpp-risk-insights/internal/datamart"
)

var (
	// ErrInvalidContamination means contamination fell outside (0, 0.5].
	ErrInvalidContamination = errors.New("contamination must be in (0, 0.5]")

	// ErrEmptyInput means there were no transactions to score.
	ErrEmptyInput = errors.New("no transactions to score")
)

// Result is the scored view of one transaction.
type Result struct {
	TransactionID int64   `json:"transaction_id"`
	Amount        float64 `json:"amount"`
	TxPerAccount  float64 `json:"tx_per_account"`
	Score         float64 `json:"anomaly_score"`
	IsAnomaly     bool    `json:"is_anomaly"`
}

// Scorer fits and applies the isolation forest. The zero value is not usable;
// construct with NewScorer.
type Scorer struct {
	seed       int64
	trees      int
	minSamples int
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithSeed fixes the random seed of the forest. Defaults to 42.
func WithSeed(seed int64) Option {
	return func(s *Scorer) { s.seed = seed }
}

// WithTrees sets the ensemble size. Defaults to 100.
func WithTrees(n int) Option {
	return func(s *Scorer) { s.trees = n }
}

// WithMinSamples sets the minimum input size below which no transaction is
// flagged. Defaults to 2; operators with larger datamarts typically raise it.
func WithMinSamples(n int) Option {
	return func(s *Scorer) { s.minSamples = n }
}

// NewScorer builds a Scorer with the given options applied over defaults.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{seed: 42, trees: defaultTrees, minSamples: 2}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score fits the forest on txs and returns one Result per transaction, in
// input order. Transactions whose score is at or above the
// (1 - contamination) quantile are flagged; ties with the threshold are
// included. Inputs smaller than the configured minimum are scored but never
// flagged.
func (s *Scorer) Score(txs []datamart.Transaction, contamination float64) ([]Result, error) {
	if contamination <= 0 || contamination > 0.5 {
		return nil, ErrInvalidContamination
	}
	if len(txs) == 0 {
		return nil, ErrEmptyInput
	}

	perAccount := make(map[int64]int, len(txs))
	for _, tx := range txs {
		perAccount[tx.AccountID]++
	}

	matrix := make([][]float64, len(txs))
	for i, tx := range txs {
		matrix[i] = []float64{tx.Amount, float64(perAccount[tx.AccountID])}
	}

	rng := rand.New(rand.NewSource(s.seed))
	forest := fitForest(matrix, s.trees, rng)

	results := make([]Result, len(txs))
	scores := make([]float64, len(txs))
	for i, tx := range txs {
		sc := forest.score(matrix[i])
		scores[i] = sc
		results[i] = Result{
			TransactionID: tx.ID,
			Amount:        tx.Amount,
			TxPerAccount:  matrix[i][1],
			Score:         sc,
		}
	}

	if len(txs) < s.minSamples {
		return results, nil
	}

	threshold := quantile(scores, 1-contamination)
	for i := range results {
		results[i].IsAnomaly = results[i].Score >= threshold
	}
	return results, nil
}

// quantile returns the q-th quantile of values using linear interpolation
// between the two nearest order statistics.
func quantile(values []float64, q float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
