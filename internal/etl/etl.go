// Package etl loads the raw CSV extracts into the star-schema datamart. Each
// run reads accounts.csv, transactions.csv, and kyc.csv from the raw
// directory, cleans them, derives the time dimension, and replaces the
// datamart tables in one pass.
package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"time"

	"github.com/gackouhamady/bnpp-risk-insights/internal/datamart"
	"github.com/gackouhamady/bnpp-risk-insights/internal/validation"
)

// maxCountryLength bounds the KYC country field; alpha-2 and alpha-3 codes
// both fit.
const maxCountryLength = 3

var (
	// ErrMalformedInput means a CSV file could not be parsed.
	ErrMalformedInput = errors.New("malformed csv input")

	// ErrUnknownAccount means a transaction references an account absent
	// from accounts.csv.
	ErrUnknownAccount = errors.New("transaction references unknown account")
)

// Runner executes ETL runs against one datamart store.
type Runner struct {
	store  datamart.Store
	logger *slog.Logger
}

// NewRunner builds an ETL runner.
func NewRunner(store datamart.Store, logger *slog.Logger) *Runner {
	return &Runner{store: store, logger: logger}
}

// Summary reports what one ETL run loaded.
type Summary struct {
	Clients      int `json:"clients"`
	Accounts     int `json:"accounts"`
	TimeEntries  int `json:"time_entries"`
	Transactions int `json:"transactions"`
	Duplicates   int `json:"duplicates_dropped"`
}

// Run loads the three CSVs under rawDir into the datamart, replacing every
// table.
func (r *Runner) Run(ctx context.Context, rawDir string) (Summary, error) {
	accounts, err := ReadAccountsCSV(filepath.Join(rawDir, "accounts.csv"))
	if err != nil {
		return Summary{}, err
	}
	transactions, err := ReadTransactionsCSV(filepath.Join(rawDir, "transactions.csv"))
	if err != nil {
		return Summary{}, err
	}
	kyc, err := ReadKYCCSV(filepath.Join(rawDir, "kyc.csv"))
	if err != nil {
		return Summary{}, err
	}
	return r.Load(ctx, accounts, transactions, kyc)
}

// Load cleans the raw rows and replaces the datamart tables with them.
func (r *Runner) Load(ctx context.Context, accounts []RawAccount, transactions []RawTransaction, kyc []RawKYC) (Summary, error) {
	accounts, dupAccts := dedupeAccounts(accounts)
	transactions, dupTxs := dedupeTransactions(transactions)
	kyc, dupKYC := dedupeKYC(kyc)

	clientByAccount := make(map[int64]int64, len(accounts))
	for _, a := range accounts {
		clientByAccount[a.AccountID] = a.ClientID
	}
	for _, tx := range transactions {
		if _, ok := clientByAccount[tx.AccountID]; !ok {
			return Summary{}, fmt.Errorf("%w: transaction %d -> account %d", ErrUnknownAccount, tx.TransactionID, tx.AccountID)
		}
	}

	timeDim, timeIDByDate := buildTimeDim(transactions)

	dimClients := make([]datamart.Client, len(kyc))
	for i, k := range kyc {
		name := validation.SanitizeString(k.Name, validation.MaxStringLength)
		country := validation.SanitizeString(k.Country, validation.MaxStringLength)
		if errs := validation.Validate(
			validation.Required("name", name),
			validation.Required("country", country),
			validation.MaxLength("country", country, maxCountryLength),
		); len(errs) > 0 {
			return Summary{}, fmt.Errorf("%w: kyc client %d: %s", ErrMalformedInput, k.ClientID, errs.Error())
		}
		dimClients[i] = datamart.Client{ID: k.ClientID, Name: name, Birthdate: k.Birthdate, Country: country}
	}
	dimAccounts := make([]datamart.Account, len(accounts))
	for i, a := range accounts {
		dimAccounts[i] = datamart.Account{ID: a.AccountID, ClientID: a.ClientID, Type: a.Type, OpenedAt: a.OpenedDate}
	}

	facts := make([]datamart.Transaction, len(transactions))
	for i, tx := range transactions {
		facts[i] = datamart.Transaction{
			ID:        tx.TransactionID,
			AccountID: tx.AccountID,
			ClientID:  clientByAccount[tx.AccountID],
			TimeID:    timeIDByDate[dateKey(tx.Timestamp)],
			Timestamp: tx.Timestamp,
			Amount:    math.Abs(tx.Amount),
			Type:      tx.Type,
		}
	}

	if err := r.store.WriteClients(ctx, dimClients, datamart.Replace); err != nil {
		return Summary{}, fmt.Errorf("load dim_clients: %w", err)
	}
	if err := r.store.WriteAccounts(ctx, dimAccounts, datamart.Replace); err != nil {
		return Summary{}, fmt.Errorf("load dim_accounts: %w", err)
	}
	if err := r.store.WriteTimeDim(ctx, timeDim, datamart.Replace); err != nil {
		return Summary{}, fmt.Errorf("load dim_time: %w", err)
	}
	if err := r.store.WriteTransactions(ctx, facts, datamart.Replace); err != nil {
		return Summary{}, fmt.Errorf("load fact_transactions: %w", err)
	}
	if err := r.store.WriteEvents(ctx, nil, datamart.Replace); err != nil {
		return Summary{}, fmt.Errorf("load fact_events: %w", err)
	}

	s := Summary{
		Clients:      len(dimClients),
		Accounts:     len(dimAccounts),
		TimeEntries:  len(timeDim),
		Transactions: len(facts),
		Duplicates:   dupAccts + dupTxs + dupKYC,
	}
	r.logger.Info("etl run loaded",
		"clients", s.Clients,
		"accounts", s.Accounts,
		"time_entries", s.TimeEntries,
		"transactions", s.Transactions,
		"duplicates_dropped", s.Duplicates,
	)
	return s, nil
}

func dateKey(ts time.Time) string {
	return ts.UTC().Format("2006-01-02")
}

// buildTimeDim derives dim_time from the distinct transaction dates, ids
// assigned in date order starting at 1.
func buildTimeDim(txs []RawTransaction) ([]datamart.TimeEntry, map[string]int64) {
	seen := make(map[string]time.Time)
	for _, tx := range txs {
		key := dateKey(tx.Timestamp)
		if _, ok := seen[key]; !ok {
			ts := tx.Timestamp.UTC()
			seen[key] = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]datamart.TimeEntry, len(keys))
	ids := make(map[string]int64, len(keys))
	for i, k := range keys {
		d := seen[k]
		id := int64(i + 1)
		entries[i] = datamart.TimeEntry{
			ID:      id,
			Date:    d,
			Year:    d.Year(),
			Month:   int(d.Month()),
			Day:     d.Day(),
			Quarter: (int(d.Month())-1)/3 + 1,
			Weekday: int(d.Weekday()),
		}
		ids[k] = id
	}
	return entries, ids
}

// Dedupe keeps the first occurrence of each id, matching how the raw
// extracts are cleaned upstream.

func dedupeAccounts(rows []RawAccount) ([]RawAccount, int) {
	seen := make(map[int64]struct{}, len(rows))
	out := rows[:0:0]
	for _, row := range rows {
		if _, ok := seen[row.AccountID]; ok {
			continue
		}
		seen[row.AccountID] = struct{}{}
		out = append(out, row)
	}
	return out, len(rows) - len(out)
}

func dedupeTransactions(rows []RawTransaction) ([]RawTransaction, int) {
	seen := make(map[int64]struct{}, len(rows))
	out := rows[:0:0]
	for _, row := range rows {
		if _, ok := seen[row.TransactionID]; ok {
			continue
		}
		seen[row.TransactionID] = struct{}{}
		out = append(out, row)
	}
	return out, len(rows) - len(out)
}

func dedupeKYC(rows []RawKYC) ([]RawKYC, int) {
	seen := make(map[int64]struct{}, len(rows))
	out := rows[:0:0]
	for _, row := range rows {
		if _, ok := seen[row.ClientID]; ok {
			continue
		}
		seen[row.ClientID] = struct{}{}
		out = append(out, row)
	}
	return out, len(rows) - len(out)
}
