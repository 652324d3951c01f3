// Package datamart exposes the star-schema datamart behind a typed Store
// interface.
//
// Dimensions (dim_clients, dim_accounts, dim_time) describe entities; facts
// (fact_transactions, fact_events) record what happened. Every transaction
// references an account and every account references a client. The store is
// an external collaborator: the scoring pipeline only reads and writes whole
// tables through it and never assumes exclusive access.
package datamart

import (
	"context"
	"errors"
	"time"
)

// Table names as they exist in the datamart.
const (
	TableClients      = "dim_clients"
	TableAccounts     = "dim_accounts"
	TableTime         = "dim_time"
	TableTransactions = "fact_transactions"
	TableEvents       = "fact_events"
)

// WriteMode controls whether a write replaces the table contents or appends.
type WriteMode string

const (
	Replace WriteMode = "replace"
	Append  WriteMode = "append"
)

var (
	// ErrUnavailable wraps connectivity failures so callers can distinguish
	// "the store is down" from "the data is wrong".
	ErrUnavailable = errors.New("datamart: store unavailable")
)

// Client is one row of dim_clients (KYC data).
type Client struct {
	ID        int64     `json:"client_id"`
	Name      string    `json:"name"`
	Birthdate time.Time `json:"birthdate"`
	Country   string    `json:"country"`
}

// Account is one row of dim_accounts. Owned by exactly one client.
type Account struct {
	ID       int64     `json:"account_id"`
	ClientID int64     `json:"client_id"`
	Type     string    `json:"account_type"`
	OpenedAt time.Time `json:"opened_date"`
}

// TimeEntry is one row of dim_time, one per distinct transaction date.
type TimeEntry struct {
	ID      int64     `json:"time_id"`
	Date    time.Time `json:"date"`
	Year    int       `json:"year"`
	Month   int       `json:"month"`
	Day     int       `json:"day"`
	Quarter int       `json:"quarter"`
	Weekday int       `json:"weekday"`
}

// Transaction is one row of fact_transactions. Immutable once loaded;
// amount is non-negative after cleaning.
type Transaction struct {
	ID        int64     `json:"transaction_id"`
	AccountID int64     `json:"account_id"`
	ClientID  int64     `json:"client_id"`
	TimeID    int64     `json:"time_id"`
	Timestamp time.Time `json:"transaction_date"`
	Amount    float64   `json:"amount"`
	Type      string    `json:"transaction_type"`
}

// Event is one row of fact_events. The event fact is a placeholder in the
// current loads but the store supports it like any other table.
type Event struct {
	ID        int64  `json:"event_id"`
	ClientID  int64  `json:"client_id"`
	AccountID int64  `json:"account_id"`
	TimeID    int64  `json:"time_id"`
	Type      string `json:"event_type"`
}

// Store is the typed read/write surface over the datamart. Reads return rows
// ordered by primary key so round-trips are stable. Implementations must
// tolerate concurrent readers; the pipeline re-reads at every stage start
// instead of caching across stages.
type Store interface {
	ReadClients(ctx context.Context) ([]Client, error)
	ReadAccounts(ctx context.Context) ([]Account, error)
	ReadTimeDim(ctx context.Context) ([]TimeEntry, error)
	ReadTransactions(ctx context.Context) ([]Transaction, error)
	ReadEvents(ctx context.Context) ([]Event, error)

	WriteClients(ctx context.Context, rows []Client, mode WriteMode) error
	WriteAccounts(ctx context.Context, rows []Account, mode WriteMode) error
	WriteTimeDim(ctx context.Context, rows []TimeEntry, mode WriteMode) error
	WriteTransactions(ctx context.Context, rows []Transaction, mode WriteMode) error
	WriteEvents(ctx context.Context, rows []Event, mode WriteMode) error
}
