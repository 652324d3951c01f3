package datamart

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu           sync.RWMutex
	clients      []Client
	accounts     []Account
	timeDim      []TimeEntry
	transactions []Transaction
	events       []Event
}

// NewMemoryStore creates an empty in-memory datamart.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) ReadClients(ctx context.Context) ([]Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Client, len(s.clients))
	copy(out, s.clients)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ReadAccounts(ctx context.Context) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Account, len(s.accounts))
	copy(out, s.accounts)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ReadTimeDim(ctx context.Context) ([]TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TimeEntry, len(s.timeDim))
	copy(out, s.timeDim)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ReadTransactions(ctx context.Context) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transaction, len(s.transactions))
	copy(out, s.transactions)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ReadEvents(ctx context.Context) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) WriteClients(ctx context.Context, rows []Client, mode WriteMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == Replace {
		s.clients = nil
	}
	s.clients = append(s.clients, rows...)
	return nil
}

func (s *MemoryStore) WriteAccounts(ctx context.Context, rows []Account, mode WriteMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == Replace {
		s.accounts = nil
	}
	s.accounts = append(s.accounts, rows...)
	return nil
}

func (s *MemoryStore) WriteTimeDim(ctx context.Context, rows []TimeEntry, mode WriteMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == Replace {
		s.timeDim = nil
	}
	s.timeDim = append(s.timeDim, rows...)
	return nil
}

func (s *MemoryStore) WriteTransactions(ctx context.Context, rows []Transaction, mode WriteMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == Replace {
		s.transactions = nil
	}
	s.transactions = append(s.transactions, rows...)
	return nil
}

func (s *MemoryStore) WriteEvents(ctx context.Context, rows []Event, mode WriteMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == Replace {
		s.events = nil
	}
	s.events = append(s.events, rows...)
	return nil
}
