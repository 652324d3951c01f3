package features

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/gackouhamady/bnpp-risk-insights/internal/datamart"
)

func tx(id, account, client int64, day int, amount float64) datamart.Transaction {
	return datamart.Transaction{
		ID:        id,
		AccountID: account,
		ClientID:  client,
		Timestamp: time.Date(2022, 3, day, 0, 0, 0, 0, time.UTC),
		Amount:    amount,
	}
}

func TestAggregateDefaultBasics(t *testing.T) {
	txs := []datamart.Transaction{
		tx(1, 1, 10, 1, 50),
		tx(2, 1, 10, 3, 60),
		tx(3, 1, 10, 6, 70),
	}

	f, err := AggregateDefault(1, txs, 10)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	if f.AvgAmount != 60 {
		t.Errorf("avg_amount = %v, want 60", f.AvgAmount)
	}
	if f.TxCount != 3 {
		t.Errorf("tx_count = %d, want 3", f.TxCount)
	}
	if f.TxPerDay != 0.3 {
		t.Errorf("tx_count_per_day = %v, want 0.3", f.TxPerDay)
	}
	// Sample std of 50,60,70 with ddof=1 is 10.
	if f.StdAmount == nil || math.Abs(*f.StdAmount-10) > 1e-9 {
		t.Errorf("std_amount = %v, want 10", f.StdAmount)
	}
	// Gaps are 2 and 3 days.
	if f.AvgDelayDays == nil || math.Abs(*f.AvgDelayDays-2.5) > 1e-9 {
		t.Errorf("avg_delay_days = %v, want 2.5", f.AvgDelayDays)
	}
}

func TestAggregateDefaultSingleTransactionNulls(t *testing.T) {
	f, err := AggregateDefault(1, []datamart.Transaction{tx(1, 1, 10, 1, 50)}, 5)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if f.StdAmount != nil {
		t.Errorf("std_amount should be null for one transaction, got %v", *f.StdAmount)
	}
	if f.AvgDelayDays != nil {
		t.Errorf("avg_delay_days should be null for one transaction, got %v", *f.AvgDelayDays)
	}
	if _, err := f.Vector(); !errors.Is(err, ErrNullFeature) {
		t.Errorf("Vector on unimputed features: err = %v, want ErrNullFeature", err)
	}
}

func TestAggregateDefaultZeroRows(t *testing.T) {
	if _, err := AggregateDefault(1, nil, 5); !errors.Is(err, ErrNoTransactions) {
		t.Errorf("err = %v, want ErrNoTransactions", err)
	}
}

func TestAggregateDefaultZeroDaySpan(t *testing.T) {
	_, err := AggregateDefault(1, []datamart.Transaction{tx(1, 1, 10, 1, 50)}, 0)
	if !errors.Is(err, ErrZeroDaySpan) {
		t.Errorf("err = %v, want ErrZeroDaySpan", err)
	}
}

func TestAggregateDefaultOrderIndependent(t *testing.T) {
	a := []datamart.Transaction{tx(1, 1, 10, 1, 50), tx(2, 1, 10, 5, 60)}
	b := []datamart.Transaction{tx(2, 1, 10, 5, 60), tx(1, 1, 10, 1, 50)}

	fa, err := AggregateDefault(1, a, 10)
	if err != nil {
		t.Fatal(err)
	}
	fb, err := AggregateDefault(1, b, 10)
	if err != nil {
		t.Fatal(err)
	}
	if *fa.AvgDelayDays != *fb.AvgDelayDays {
		t.Errorf("delay depends on input order: %v vs %v", *fa.AvgDelayDays, *fb.AvgDelayDays)
	}
}

func TestAggregateDefaultIdempotent(t *testing.T) {
	txs := []datamart.Transaction{tx(1, 1, 10, 1, 50), tx(2, 1, 10, 2, 55)}
	first, err := AggregateDefault(1, txs, 4)
	if err != nil {
		t.Fatal(err)
	}
	second, err := AggregateDefault(1, txs, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first.AvgAmount, second.AvgAmount) ||
		*first.StdAmount != *second.StdAmount ||
		*first.AvgDelayDays != *second.AvgDelayDays {
		t.Errorf("aggregation not idempotent: %+v vs %+v", first, second)
	}
}

func TestAggregateChurn(t *testing.T) {
	now := time.Date(2022, 4, 1, 0, 0, 0, 0, time.UTC)
	opened := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	txs := []datamart.Transaction{
		tx(1, 1, 10, 1, 100),
		tx(2, 1, 10, 15, 200),
	}

	f, err := AggregateChurn(10, txs, []time.Time{opened}, now)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if f.TenureDays != 821 {
		t.Errorf("tenure_days = %v, want 821", f.TenureDays)
	}
	if f.DaysSinceLast != 17 {
		t.Errorf("days_since_last = %v, want 17", f.DaysSinceLast)
	}
	if f.AvgBalance != 150 {
		t.Errorf("avg_balance = %v, want 150", f.AvgBalance)
	}
	if f.TotalTxCount != 2 {
		t.Errorf("total_tx_count = %d, want 2", f.TotalTxCount)
	}
}

func TestAggregateChurnInjectedNow(t *testing.T) {
	opened := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	txs := []datamart.Transaction{tx(1, 1, 10, 1, 100)}

	f1, _ := AggregateChurn(10, txs, []time.Time{opened}, time.Date(2022, 4, 1, 0, 0, 0, 0, time.UTC))
	f2, _ := AggregateChurn(10, txs, []time.Time{opened}, time.Date(2022, 4, 11, 0, 0, 0, 0, time.UTC))

	if f2.DaysSinceLast-f1.DaysSinceLast != 10 {
		t.Errorf("days_since_last should move with injected now: %v then %v", f1.DaysSinceLast, f2.DaysSinceLast)
	}
}

func TestAggregateChurnAllMissingAccount(t *testing.T) {
	txs := []datamart.Transaction{tx(1, 99, 10, 1, 100)}
	_, err := AggregateChurnAll(txs, nil, time.Now())
	if !errors.Is(err, ErrMissingAccount) {
		t.Errorf("err = %v, want ErrMissingAccount", err)
	}
}

func TestAggregateDefaultAllGroupsAndOrders(t *testing.T) {
	txs := []datamart.Transaction{
		tx(3, 2, 20, 2, 5000),
		tx(1, 1, 10, 1, 50),
		tx(2, 1, 10, 2, 55),
	}

	rows, err := AggregateDefaultAll(txs, 2)
	if err != nil {
		t.Fatalf("aggregate all: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(rows))
	}
	if rows[0].AccountID != 1 || rows[1].AccountID != 2 {
		t.Errorf("rows not ordered by account id: %v, %v", rows[0].AccountID, rows[1].AccountID)
	}
	if rows[0].TxCount != 2 || rows[1].TxCount != 1 {
		t.Errorf("unexpected group sizes: %d, %d", rows[0].TxCount, rows[1].TxCount)
	}
}

func TestImputeDefaults(t *testing.T) {
	sd := 10.0
	delay := 4.0
	rows := []DefaultFeatures{
		{AccountID: 1, AvgAmount: 52.5, StdAmount: &sd, AvgDelayDays: &delay},
		{AccountID: 2, AvgAmount: 5000}, // single-transaction account, both null
	}

	imputed := ImputeDefaults(rows)

	if *imputed[1].StdAmount != 10 {
		t.Errorf("imputed std = %v, want column mean 10", *imputed[1].StdAmount)
	}
	if *imputed[1].AvgDelayDays != 4 {
		t.Errorf("imputed delay = %v, want column mean 4", *imputed[1].AvgDelayDays)
	}
	// Original slice stays null.
	if rows[1].StdAmount != nil {
		t.Error("Impute mutated its input")
	}

	if _, err := imputed[1].Vector(); err != nil {
		t.Errorf("imputed vector should be dense: %v", err)
	}
}

func TestImputeDefaultsAllNullColumn(t *testing.T) {
	rows := []DefaultFeatures{{AccountID: 1, AvgAmount: 50}, {AccountID: 2, AvgAmount: 60}}
	imputed := ImputeDefaults(rows)
	for _, f := range imputed {
		if *f.StdAmount != 0 || *f.AvgDelayDays != 0 {
			t.Errorf("all-null column should impute to 0, got %+v", f)
		}
	}
}
