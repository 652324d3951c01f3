package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/gackouhamady/bnpp-risk-insights/internal/datamart"
)

// Exporter dumps datamart tables and transaction KPIs as timestamped CSVs.
type Exporter struct {
	store datamart.Store
	dir   string
}

// NewExporter builds an exporter writing under dir.
func NewExporter(store datamart.Store, dir string) *Exporter {
	return &Exporter{store: store, dir: dir}
}

// Export writes one CSV per dimension and fact table plus a KPI summary,
// every file suffixed with the same timestamp. It returns the written paths.
func (e *Exporter) Export(ctx context.Context, now time.Time) ([]string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	stamp := now.UTC().Format("20060102_150405")

	clients, err := e.store.ReadClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("read clients: %w", err)
	}
	accounts, err := e.store.ReadAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}
	txs, err := e.store.ReadTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read transactions: %w", err)
	}

	var paths []string
	write := func(name string, headerRow []string, rows [][]string) error {
		path := filepath.Join(e.dir, fmt.Sprintf("%s_%s.csv", name, stamp))
		if err := writeCSV(path, headerRow, rows); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	}

	clientRows := make([][]string, len(clients))
	for i, c := range clients {
		clientRows[i] = []string{
			strconv.FormatInt(c.ID, 10), c.Name, c.Birthdate.Format("2006-01-02"), c.Country,
		}
	}
	if err := write("dim_clients", []string{"client_id", "name", "birthdate", "country"}, clientRows); err != nil {
		return nil, err
	}

	accountRows := make([][]string, len(accounts))
	for i, a := range accounts {
		accountRows[i] = []string{
			strconv.FormatInt(a.ID, 10), strconv.FormatInt(a.ClientID, 10), a.Type, a.OpenedAt.Format("2006-01-02"),
		}
	}
	if err := write("dim_accounts", []string{"account_id", "client_id", "account_type", "opened_date"}, accountRows); err != nil {
		return nil, err
	}

	txRows := make([][]string, len(txs))
	for i, tx := range txs {
		txRows[i] = []string{
			strconv.FormatInt(tx.ID, 10),
			strconv.FormatInt(tx.AccountID, 10),
			strconv.FormatInt(tx.ClientID, 10),
			tx.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatFloat(tx.Amount, 'f', -1, 64),
			tx.Type,
		}
	}
	if err := write("fact_transactions",
		[]string{"transaction_id", "account_id", "client_id", "transaction_date", "amount", "transaction_type"},
		txRows); err != nil {
		return nil, err
	}

	kpiRows, err := transactionKPIs(txs)
	if err != nil {
		return nil, err
	}
	if err := write("kpi_transactions", []string{"transaction_type", "total_amount", "avg_amount", "tx_count"}, kpiRows); err != nil {
		return nil, err
	}

	return paths, nil
}

// transactionKPIs aggregates amount totals, means, and counts per
// transaction type, ordered by type.
func transactionKPIs(txs []datamart.Transaction) ([][]string, error) {
	byType := make(map[string][]float64)
	for _, tx := range txs {
		byType[tx.Type] = append(byType[tx.Type], tx.Amount)
	}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	rows := make([][]string, 0, len(types))
	for _, t := range types {
		amounts := byType[t]
		total, err := stats.Sum(amounts)
		if err != nil {
			return nil, fmt.Errorf("sum amounts for %s: %w", t, err)
		}
		avg, err := stats.Mean(amounts)
		if err != nil {
			return nil, fmt.Errorf("mean amount for %s: %w", t, err)
		}
		rows = append(rows, []string{
			t,
			strconv.FormatFloat(total, 'f', -1, 64),
			strconv.FormatFloat(avg, 'f', -1, 64),
			strconv.Itoa(len(amounts)),
		})
	}
	return rows, nil
}

func writeCSV(path string, headerRow []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(headerRow); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write export row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush export %s: %w", path, err)
	}
	return nil
}
