package datamart

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func day(d int) time.Time {
	return time.Date(2022, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestMemoryStoreTransactionRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rows := []Transaction{
		{ID: 2, AccountID: 1, ClientID: 10, TimeID: 1, Timestamp: day(2), Amount: 55, Type: "credit"},
		{ID: 1, AccountID: 1, ClientID: 10, TimeID: 1, Timestamp: day(1), Amount: 50, Type: "debit"},
	}
	if err := store.WriteTransactions(ctx, rows, Replace); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := store.ReadTransactions(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	// Reads come back ordered by id regardless of write order.
	want := []Transaction{rows[1], rows[0]}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestMemoryStoreReplaceVsAppend(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := []Client{{ID: 1, Name: "Alice", Birthdate: day(1), Country: "FR"}}
	second := []Client{{ID: 2, Name: "Bob", Birthdate: day(2), Country: "US"}}

	if err := store.WriteClients(ctx, first, Replace); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.WriteClients(ctx, second, Append); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, _ := store.ReadClients(ctx)
	if len(got) != 2 {
		t.Fatalf("after append expected 2 clients, got %d", len(got))
	}

	if err := store.WriteClients(ctx, second, Replace); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, _ = store.ReadClients(ctx)
	if len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("after replace expected only client 2, got %+v", got)
	}
}

func TestMemoryStoreReadCopiesAreIndependent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_ = store.WriteAccounts(ctx, []Account{{ID: 1, ClientID: 10, Type: "checking", OpenedAt: day(1)}}, Replace)

	a, _ := store.ReadAccounts(ctx)
	a[0].Type = "mutated"

	b, _ := store.ReadAccounts(ctx)
	if b[0].Type != "checking" {
		t.Error("mutating a read slice leaked into the store")
	}
}

func TestMemoryStoreEmptyTables(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	events, err := store.ReadEvents(ctx)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected empty events, got %d", len(events))
	}
}
