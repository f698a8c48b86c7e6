package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_InsertAndQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, title := range []string{"first", "second", "third"} {
		_, err := s.Insert(ctx, CollTransactions, Record{
			FieldOwner:      "alice",
			FieldTitle:      title,
			FieldAmount:     int64(100),
			FieldOccurredAt: time.Now(),
			FieldRecordedAt: time.Now(),
		})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if _, err := s.Insert(ctx, CollTransactions, Record{FieldOwner: "bob", FieldTitle: "noise"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	recs, err := s.QueryByField(ctx, CollTransactions, FieldOwner, "alice")
	if err != nil {
		t.Fatalf("QueryByField: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	// Insertion order is preserved.
	for i, want := range []string{"first", "second", "third"} {
		if got := recs[i][FieldTitle]; got != want {
			t.Errorf("record %d title = %v, want %q", i, got, want)
		}
		if RecordID(recs[i]) == "" {
			t.Errorf("record %d missing id", i)
		}
	}
}

func TestMemoryStore_UpdateUpserts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.Get(ctx, CollBalances, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Update(ctx, CollBalances, "alice", Record{FieldOwner: "alice", FieldAmount: int64(500)}); err != nil {
		t.Fatalf("Update (insert): %v", err)
	}
	if err := s.Update(ctx, CollBalances, "alice", Record{FieldAmount: int64(300)}); err != nil {
		t.Fatalf("Update (patch): %v", err)
	}

	rec, err := s.Get(ctx, CollBalances, "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec[FieldAmount] != int64(300) {
		t.Errorf("amount = %v, want 300", rec[FieldAmount])
	}
	if rec[FieldOwner] != "alice" {
		t.Errorf("owner field lost on patch: %v", rec[FieldOwner])
	}
}

func TestMemoryStore_SubscribeFiltersByField(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	aliceNotified := 0
	cancel, err := s.Subscribe(ctx, CollDeposits, FieldOwner, "alice", func() { aliceNotified++ })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if _, err := s.Insert(ctx, CollDeposits, Record{FieldOwner: "alice", FieldAmount: int64(100)}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Insert(ctx, CollDeposits, Record{FieldOwner: "bob", FieldAmount: int64(100)}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Insert(ctx, CollTransactions, Record{FieldOwner: "alice"}); err != nil {
		t.Fatal(err)
	}

	if aliceNotified != 1 {
		t.Fatalf("expected 1 notification, got %d", aliceNotified)
	}

	cancel()
	if _, err := s.Insert(ctx, CollDeposits, Record{FieldOwner: "alice", FieldAmount: int64(50)}); err != nil {
		t.Fatal(err)
	}
	if aliceNotified != 1 {
		t.Fatalf("notification after cancel: got %d", aliceNotified)
	}
}

func TestDecodeTransactionRoundTrip(t *testing.T) {
	occurred := time.Date(2024, 5, 2, 18, 45, 0, 0, time.UTC)
	recorded := occurred.Add(2 * time.Hour)
	ctx := context.Background()
	s := NewMemoryStore()

	id, err := s.Insert(ctx, CollTransactions, Record{
		FieldOwner:      "alice",
		FieldTitle:      "Cinema",
		FieldAmount:     int64(45000),
		FieldCategory:   "Entertainment",
		FieldOccurredAt: occurred,
		FieldRecordedAt: recorded,
	})
	if err != nil {
		t.Fatal(err)
	}

	recs, err := s.QueryByField(ctx, CollTransactions, FieldOwner, "alice")
	if err != nil {
		t.Fatal(err)
	}
	tx, err := DecodeTransaction(RecordID(recs[0]), recs[0])
	if err != nil {
		t.Fatalf("DecodeTransaction: %v", err)
	}
	if tx.ID != id || tx.Title != "Cinema" || tx.Amount.Cents != 45000 {
		t.Errorf("decoded transaction mismatch: %+v", tx)
	}
	if !tx.OccurredAt.Equal(occurred) || !tx.RecordedAt.Equal(recorded) {
		t.Errorf("decoded timestamps mismatch: %+v", tx)
	}
}
