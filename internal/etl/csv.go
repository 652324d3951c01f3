package etl

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// RawAccount is one row of accounts.csv before cleaning.
type RawAccount struct {
	AccountID  int64
	ClientID   int64
	Type       string
	OpenedDate time.Time
}

// RawTransaction is one row of transactions.csv before cleaning.
type RawTransaction struct {
	TransactionID int64
	AccountID     int64
	Timestamp     time.Time
	Amount        float64
	Type          string
}

// RawKYC is one row of kyc.csv before cleaning.
type RawKYC struct {
	ClientID  int64
	Name      string
	Birthdate time.Time
	Country   string
}

// timestampLayouts are the accepted transaction_date formats, most specific
// first.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// header maps column names to indices, so column order in the file does not
// matter.
type header map[string]int

func readHeader(r *csv.Reader, required ...string) (header, error) {
	record, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h := make(header, len(record))
	for i, name := range record {
		h[strings.TrimSpace(name)] = i
	}
	for _, name := range required {
		if _, ok := h[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformedInput, name)
		}
	}
	return h, nil
}

func (h header) get(record []string, name string) string {
	return strings.TrimSpace(record[h[name]])
}

func (h header) getInt64(record []string, name string) (int64, error) {
	v, err := strconv.ParseInt(h.get(record, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: column %q: %v", ErrMalformedInput, name, err)
	}
	return v, nil
}

func (h header) getFloat(record []string, name string) (float64, error) {
	v, err := strconv.ParseFloat(h.get(record, name), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: column %q: %v", ErrMalformedInput, name, err)
	}
	return v, nil
}

func (h header) getDate(record []string, name string) (time.Time, error) {
	ts, err := time.Parse("2006-01-02", h.get(record, name))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: column %q: %v", ErrMalformedInput, name, err)
	}
	return ts.UTC(), nil
}

// ReadAccountsCSV parses accounts.csv.
func ReadAccountsCSV(path string) ([]RawAccount, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open accounts csv: %w", err)
	}
	defer f.Close()
	return parseAccounts(f)
}

func parseAccounts(src io.Reader) ([]RawAccount, error) {
	r := csv.NewReader(src)
	h, err := readHeader(r, "account_id", "client_id", "account_type", "opened_date")
	if err != nil {
		return nil, err
	}

	var rows []RawAccount
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: accounts row: %v", ErrMalformedInput, err)
		}

		var row RawAccount
		if row.AccountID, err = h.getInt64(record, "account_id"); err != nil {
			return nil, err
		}
		if row.ClientID, err = h.getInt64(record, "client_id"); err != nil {
			return nil, err
		}
		row.Type = h.get(record, "account_type")
		if row.OpenedDate, err = h.getDate(record, "opened_date"); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadTransactionsCSV parses transactions.csv.
func ReadTransactionsCSV(path string) ([]RawTransaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transactions csv: %w", err)
	}
	defer f.Close()
	return parseTransactions(f)
}

func parseTransactions(src io.Reader) ([]RawTransaction, error) {
	r := csv.NewReader(src)
	h, err := readHeader(r, "transaction_id", "account_id", "transaction_date", "amount", "transaction_type")
	if err != nil {
		return nil, err
	}

	var rows []RawTransaction
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: transactions row: %v", ErrMalformedInput, err)
		}

		var row RawTransaction
		if row.TransactionID, err = h.getInt64(record, "transaction_id"); err != nil {
			return nil, err
		}
		if row.AccountID, err = h.getInt64(record, "account_id"); err != nil {
			return nil, err
		}
		if row.Timestamp, err = parseTimestamp(h.get(record, "transaction_date")); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		if row.Amount, err = h.getFloat(record, "amount"); err != nil {
			return nil, err
		}
		row.Type = h.get(record, "transaction_type")
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadKYCCSV parses kyc.csv.
func ReadKYCCSV(path string) ([]RawKYC, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open kyc csv: %w", err)
	}
	defer f.Close()
	return parseKYC(f)
}

func parseKYC(src io.Reader) ([]RawKYC, error) {
	r := csv.NewReader(src)
	h, err := readHeader(r, "client_id", "name", "birthdate", "country")
	if err != nil {
		return nil, err
	}

	var rows []RawKYC
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: kyc row: %v", ErrMalformedInput, err)
		}

		var row RawKYC
		if row.ClientID, err = h.getInt64(record, "client_id"); err != nil {
			return nil, err
		}
		row.Name = h.get(record, "name")
		if row.Birthdate, err = h.getDate(record, "birthdate"); err != nil {
			return nil, err
		}
		row.Country = h.get(record, "country")
		rows = append(rows, row)
	}
	return rows, nil
}
