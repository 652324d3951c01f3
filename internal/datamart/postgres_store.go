package datamart

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists the star schema in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed datamart store.
// The schema is managed by goose migrations (see migrations/).
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ReadClients(ctx context.Context) ([]Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT client_id, name, birthdate, country
		FROM dim_clients
		ORDER BY client_id
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: read dim_clients: %v", ErrUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Birthdate, &c.Country); err != nil {
			return nil, fmt.Errorf("scan dim_clients: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ReadAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, client_id, account_type, opened_date
		FROM dim_accounts
		ORDER BY account_id
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: read dim_accounts: %v", ErrUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.ClientID, &a.Type, &a.OpenedAt); err != nil {
			return nil, fmt.Errorf("scan dim_accounts: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ReadTimeDim(ctx context.Context) ([]TimeEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time_id, date, year, month, day, quarter, weekday
		FROM dim_time
		ORDER BY time_id
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: read dim_time: %v", ErrUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var out []TimeEntry
	for rows.Next() {
		var t TimeEntry
		if err := rows.Scan(&t.ID, &t.Date, &t.Year, &t.Month, &t.Day, &t.Quarter, &t.Weekday); err != nil {
			return nil, fmt.Errorf("scan dim_time: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ReadTransactions(ctx context.Context) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, account_id, client_id, time_id, transaction_date, amount, transaction_type
		FROM fact_transactions
		ORDER BY transaction_id
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: read fact_transactions: %v", ErrUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.ClientID, &t.TimeID, &t.Timestamp, &t.Amount, &t.Type); err != nil {
			return nil, fmt.Errorf("scan fact_transactions: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ReadEvents(ctx context.Context) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, client_id, account_id, time_id, event_type
		FROM fact_events
		ORDER BY event_id
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: read fact_events: %v", ErrUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.ClientID, &e.AccountID, &e.TimeID, &e.Type); err != nil {
			return nil, fmt.Errorf("scan fact_events: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) WriteClients(ctx context.Context, rows []Client, mode WriteMode) error {
	return s.writeTable(ctx, TableClients, mode, len(rows), func(tx *sql.Tx) error {
		for _, c := range rows {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO dim_clients (client_id, name, birthdate, country)
				VALUES ($1, $2, $3, $4)
			`, c.ID, c.Name, c.Birthdate, c.Country); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) WriteAccounts(ctx context.Context, rows []Account, mode WriteMode) error {
	return s.writeTable(ctx, TableAccounts, mode, len(rows), func(tx *sql.Tx) error {
		for _, a := range rows {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO dim_accounts (account_id, client_id, account_type, opened_date)
				VALUES ($1, $2, $3, $4)
			`, a.ID, a.ClientID, a.Type, a.OpenedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) WriteTimeDim(ctx context.Context, rows []TimeEntry, mode WriteMode) error {
	return s.writeTable(ctx, TableTime, mode, len(rows), func(tx *sql.Tx) error {
		for _, t := range rows {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO dim_time (time_id, date, year, month, day, quarter, weekday)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, t.ID, t.Date, t.Year, t.Month, t.Day, t.Quarter, t.Weekday); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) WriteTransactions(ctx context.Context, rows []Transaction, mode WriteMode) error {
	return s.writeTable(ctx, TableTransactions, mode, len(rows), func(tx *sql.Tx) error {
		for _, t := range rows {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO fact_transactions
					(transaction_id, account_id, client_id, time_id, transaction_date, amount, transaction_type)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, t.ID, t.AccountID, t.ClientID, t.TimeID, t.Timestamp, t.Amount, t.Type); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) WriteEvents(ctx context.Context, rows []Event, mode WriteMode) error {
	return s.writeTable(ctx, TableEvents, mode, len(rows), func(tx *sql.Tx) error {
		for _, e := range rows {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO fact_events (event_id, client_id, account_id, time_id, event_type)
				VALUES ($1, $2, $3, $4, $5)
			`, e.ID, e.ClientID, e.AccountID, e.TimeID, e.Type); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeTable runs a replace-or-append write in one transaction so concurrent
// readers never observe a half-replaced table.
func (s *PostgresStore) writeTable(ctx context.Context, table string, mode WriteMode, n int, insert func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin write %s: %v", ErrUnavailable, table, err)
	}
	defer func() { _ = tx.Rollback() }()

	if mode == Replace {
		// Table name comes from the package constants, not user input.
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil { // #nosec G202
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := insert(tx); err != nil {
		return fmt.Errorf("write %d rows to %s: %w", n, table, err)
	}
	return tx.Commit()
}
