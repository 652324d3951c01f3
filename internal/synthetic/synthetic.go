// Package synthetic generates seeded CSV fixtures shaped like the raw
// extracts the ETL consumes, so the whole pipeline can run without real
// data.
package synthetic

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var (
	accountTypes     = []string{"checking", "savings"}
	transactionTypes = []string{"debit", "credit"}
	countries        = []string{"FR", "BE", "DE", "IT", "ES"}
	firstNames       = []string{"Alice", "Bob", "Chloe", "David", "Emma", "Felix", "Gina", "Hugo", "Ines", "Jules"}
	lastNames        = []string{"Martin", "Dupont", "Bernard", "Rossi", "Garcia", "Weber", "Moreau", "Lefevre"}
)

// Config controls the size and randomness of one generation run.
type Config struct {
	Transactions int       // rows in transactions.csv
	Seed         int64     // drives all randomness
	Now          time.Time // transactions fall in the year before this
}

// Generate writes accounts.csv, transactions.csv, and kyc.csv under rawDir.
// Account count is one tenth of the transaction count (at least one), and
// client count one tenth of that again. Amounts follow an exponential
// distribution with scale 200. The same config always produces the same
// files.
func Generate(rawDir string, cfg Config) error {
	if cfg.Transactions <= 0 {
		return fmt.Errorf("transaction count must be positive, got %d", cfg.Transactions)
	}
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return fmt.Errorf("create raw dir: %w", err)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	now := cfg.Now.UTC()

	nAccounts := cfg.Transactions / 10
	if nAccounts < 1 {
		nAccounts = 1
	}
	nClients := nAccounts / 10
	if nClients < 1 {
		nClients = 1
	}

	kycRows := make([][]string, nClients)
	for i := 0; i < nClients; i++ {
		birth := now.AddDate(-20-rng.Intn(50), 0, -rng.Intn(365))
		kycRows[i] = []string{
			strconv.Itoa(i + 1),
			firstNames[rng.Intn(len(firstNames))] + " " + lastNames[rng.Intn(len(lastNames))],
			birth.Format("2006-01-02"),
			countries[rng.Intn(len(countries))],
		}
	}

	// Round-robin client assignment so every client owns at least one account.
	accountRows := make([][]string, nAccounts)
	for i := 0; i < nAccounts; i++ {
		opened := now.AddDate(0, 0, -rng.Intn(5*365)-30)
		accountRows[i] = []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(i%nClients + 1),
			accountTypes[rng.Intn(len(accountTypes))],
			opened.Format("2006-01-02"),
		}
	}

	// The first nAccounts transactions cover every account once, the rest land
	// on random accounts. Each entity then appears in every downstream feature
	// table.
	txRows := make([][]string, cfg.Transactions)
	for i := 0; i < cfg.Transactions; i++ {
		accountID := i%nAccounts + 1
		if i >= nAccounts {
			accountID = rng.Intn(nAccounts) + 1
		}
		ts := now.Add(-time.Duration(rng.Int63n(int64(365 * 24 * time.Hour))))
		txRows[i] = []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(accountID),
			ts.Format("2006-01-02 15:04:05"),
			strconv.FormatFloat(rng.ExpFloat64()*200, 'f', 2, 64),
			transactionTypes[rng.Intn(len(transactionTypes))],
		}
	}

	files := []struct {
		name      string
		headerRow []string
		rows      [][]string
	}{
		{"kyc.csv", []string{"client_id", "name", "birthdate", "country"}, kycRows},
		{"accounts.csv", []string{"account_id", "client_id", "account_type", "opened_date"}, accountRows},
		{"transactions.csv", []string{"transaction_id", "account_id", "transaction_date", "amount", "transaction_type"}, txRows},
	}
	for _, file := range files {
		if err := writeCSV(filepath.Join(rawDir, file.name), file.headerRow, file.rows); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(path string, headerRow []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(headerRow); err != nil {
		return fmt.Errorf("write header of %s: %w", path, err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row of %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return nil
}
