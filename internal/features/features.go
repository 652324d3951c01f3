// Package features turns raw transaction rows into per-entity feature
// vectors with explicit temporal semantics.
//
// Two shapes are produced: per-account default-risk features and per-client
// churn features. Nullable statistics (std of a single amount, delay between
// fewer than two transactions) stay null until Impute fills them with column
// means — they are never silently zeroed. Every time-relative computation
// takes an injected reference time so results are reproducible.
package features

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/gackouhamady/bnpp-risk-insights/internal/datamart"
)

var (
	// ErrNoTransactions reports an aggregation over zero rows.
	ErrNoTransactions = errors.New("features: no transactions to aggregate")

	// ErrZeroDaySpan reports a zero distinct-day span, which would make the
	// per-day rate a division by zero.
	ErrZeroDaySpan = errors.New("features: dataset spans zero distinct days")

	// ErrMissingAccount reports a transaction whose account id has no
	// account row, violating the star-schema referential invariant.
	ErrMissingAccount = errors.New("features: transaction references unknown account")

	// ErrNullFeature reports a feature vector still carrying nulls where an
	// imputed matrix was required.
	ErrNullFeature = errors.New("features: feature vector has unimputed nulls")
)

// DefaultFeatures is the per-account feature vector feeding default scoring.
type DefaultFeatures struct {
	AccountID    int64    `json:"account_id"`
	AvgAmount    float64  `json:"avg_amount"`
	StdAmount    *float64 `json:"std_amount"`     // nil when the account has a single transaction
	TxCount      int      `json:"tx_count"`
	TxPerDay     float64  `json:"tx_count_per_day"`
	AvgDelayDays *float64 `json:"avg_delay_days"` // nil below two transactions
}

// Vector returns the model input row [avg_amount, std_amount,
// tx_count_per_day, avg_delay_days]. The vector must already be imputed.
func (f DefaultFeatures) Vector() ([]float64, error) {
	if f.StdAmount == nil || f.AvgDelayDays == nil {
		return nil, fmt.Errorf("%w: account %d", ErrNullFeature, f.AccountID)
	}
	return []float64{f.AvgAmount, *f.StdAmount, f.TxPerDay, *f.AvgDelayDays}, nil
}

// ChurnFeatures is the per-client feature vector feeding churn prediction.
// All fields are defined whenever the client has at least one transaction.
type ChurnFeatures struct {
	ClientID      int64   `json:"client_id"`
	TenureDays    float64 `json:"tenure_days"`
	AvgBalance    float64 `json:"avg_balance"`
	TotalTxCount  int     `json:"total_tx_count"`
	DaysSinceLast float64 `json:"days_since_last"`
}

// Vector returns the model input row [tenure_days, avg_balance,
// total_tx_count, days_since_last].
func (f ChurnFeatures) Vector() []float64 {
	return []float64{f.TenureDays, f.AvgBalance, float64(f.TotalTxCount), f.DaysSinceLast}
}

// AggregateDefault computes default-risk features for one account from its
// transactions. totalDays is the distinct-day span of the whole dataset
// (the dim_time row count); a zero span fails with ErrZeroDaySpan.
func AggregateDefault(accountID int64, txs []datamart.Transaction, totalDays int) (DefaultFeatures, error) {
	if len(txs) == 0 {
		return DefaultFeatures{}, fmt.Errorf("%w: account %d", ErrNoTransactions, accountID)
	}
	if totalDays == 0 {
		return DefaultFeatures{}, ErrZeroDaySpan
	}

	ordered := sortByTime(txs)
	amounts := make([]float64, len(ordered))
	for i, tx := range ordered {
		amounts[i] = tx.Amount
	}

	avg, err := stats.Mean(amounts)
	if err != nil {
		return DefaultFeatures{}, fmt.Errorf("mean amount for account %d: %w", accountID, err)
	}

	f := DefaultFeatures{
		AccountID: accountID,
		AvgAmount: avg,
		TxCount:   len(ordered),
		TxPerDay:  float64(len(ordered)) / float64(totalDays),
	}

	// Sample std (ddof=1) is undefined for a single observation.
	if len(amounts) > 1 {
		sd, err := stats.StandardDeviationSample(amounts)
		if err != nil {
			return DefaultFeatures{}, fmt.Errorf("std amount for account %d: %w", accountID, err)
		}
		f.StdAmount = &sd
	}

	if delay, ok := meanConsecutiveDelay(ordered); ok {
		f.AvgDelayDays = &delay
	}

	return f, nil
}

// AggregateChurn computes churn features for one client. openDates are the
// opening dates of the accounts its transactions belong to; now is the
// injected reference time.
func AggregateChurn(clientID int64, txs []datamart.Transaction, openDates []time.Time, now time.Time) (ChurnFeatures, error) {
	if len(txs) == 0 {
		return ChurnFeatures{}, fmt.Errorf("%w: client %d", ErrNoTransactions, clientID)
	}
	if len(openDates) == 0 {
		return ChurnFeatures{}, fmt.Errorf("%w: client %d", ErrMissingAccount, clientID)
	}

	ordered := sortByTime(txs)
	amounts := make([]float64, len(ordered))
	for i, tx := range ordered {
		amounts[i] = tx.Amount
	}
	avg, err := stats.Mean(amounts)
	if err != nil {
		return ChurnFeatures{}, fmt.Errorf("mean amount for client %d: %w", clientID, err)
	}

	earliest := openDates[0]
	for _, d := range openDates[1:] {
		if d.Before(earliest) {
			earliest = d
		}
	}
	latest := ordered[len(ordered)-1].Timestamp

	return ChurnFeatures{
		ClientID:      clientID,
		TenureDays:    wholeDays(now.Sub(earliest)),
		AvgBalance:    avg,
		TotalTxCount:  len(ordered),
		DaysSinceLast: wholeDays(now.Sub(latest)),
	}, nil
}

// AggregateDefaultAll groups the fact table by account and aggregates each
// group, ordered by account id.
func AggregateDefaultAll(txs []datamart.Transaction, totalDays int) ([]DefaultFeatures, error) {
	if len(txs) == 0 {
		return nil, ErrNoTransactions
	}

	byAccount := make(map[int64][]datamart.Transaction)
	for _, tx := range txs {
		byAccount[tx.AccountID] = append(byAccount[tx.AccountID], tx)
	}

	ids := make([]int64, 0, len(byAccount))
	for id := range byAccount {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]DefaultFeatures, 0, len(ids))
	for _, id := range ids {
		f, err := AggregateDefault(id, byAccount[id], totalDays)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// AggregateChurnAll groups the fact table by client, joins the account
// dimension for opening dates, and aggregates each group ordered by client id.
func AggregateChurnAll(txs []datamart.Transaction, accounts []datamart.Account, now time.Time) ([]ChurnFeatures, error) {
	if len(txs) == 0 {
		return nil, ErrNoTransactions
	}

	accountByID := make(map[int64]datamart.Account, len(accounts))
	for _, a := range accounts {
		accountByID[a.ID] = a
	}

	byClient := make(map[int64][]datamart.Transaction)
	openByClient := make(map[int64][]time.Time)
	for _, tx := range txs {
		acct, ok := accountByID[tx.AccountID]
		if !ok {
			return nil, fmt.Errorf("%w: account %d (transaction %d)", ErrMissingAccount, tx.AccountID, tx.ID)
		}
		byClient[tx.ClientID] = append(byClient[tx.ClientID], tx)
		openByClient[tx.ClientID] = append(openByClient[tx.ClientID], acct.OpenedAt)
	}

	ids := make([]int64, 0, len(byClient))
	for id := range byClient {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]ChurnFeatures, 0, len(ids))
	for _, id := range ids {
		f, err := AggregateChurn(id, byClient[id], openByClient[id], now)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// meanConsecutiveDelay returns the mean whole-day gap between consecutive
// transactions, false when there are fewer than two.
func meanConsecutiveDelay(ordered []datamart.Transaction) (float64, bool) {
	if len(ordered) < 2 {
		return 0, false
	}
	var sum float64
	for i := 1; i < len(ordered); i++ {
		sum += wholeDays(ordered[i].Timestamp.Sub(ordered[i-1].Timestamp))
	}
	return sum / float64(len(ordered)-1), true
}

// wholeDays converts a duration to whole days, flooring partial days.
func wholeDays(d time.Duration) float64 {
	return math.Floor(d.Hours() / 24)
}

func sortByTime(txs []datamart.Transaction) []datamart.Transaction {
	ordered := make([]datamart.Transaction, len(txs))
	copy(ordered, txs)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Timestamp.Equal(ordered[j].Timestamp) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})
	return ordered
}
