package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"solana-rent-reclaimer/internal/domain"
	"solana-rent-reclaimer/internal/storage"
)

func TestBatchRecordStore_PutAndGet(t *testing.T) {
	store := NewBatchRecordStore()
	ctx := context.Background()

	rec := &storage.BatchRecord{
		BatchID:   "batch1",
		Wallet:    "wallet1",
		Index:     0,
		Signature: "sig1",
		Status:    domain.BatchSubmitted,
		Accounts:  10,
		Refund:    20_392_800,
	}

	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "batch1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got.Signature != "sig1" || got.Status != domain.BatchSubmitted {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	// Mutating the returned copy must not affect the store
	got.Status = domain.BatchFailed
	again, _ := store.Get(ctx, "batch1")
	if again.Status != domain.BatchSubmitted {
		t.Errorf("store mutated through returned copy: %s", again.Status)
	}
}

func TestBatchRecordStore_PutUpdatesKeepsCreatedAt(t *testing.T) {
	store := NewBatchRecordStore()
	ctx := context.Background()

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	rec := &storage.BatchRecord{BatchID: "b", Wallet: "w", Signature: "s1", Status: domain.BatchSubmitted}
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	clock = clock.Add(time.Minute)
	rec.Status = domain.BatchConfirmed
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	got, err := store.Get(ctx, "b")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.BatchConfirmed {
		t.Errorf("Status = %s, want confirmed", got.Status)
	}
	if !got.CreatedAt.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt changed on update: %v", got.CreatedAt)
	}
	if !got.UpdatedAt.Equal(clock) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, clock)
	}
}

func TestBatchRecordStore_NotFound(t *testing.T) {
	store := NewBatchRecordStore()

	_, err := store.Get(context.Background(), "nonexistent")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestBatchRecordStore_InvalidInput(t *testing.T) {
	store := NewBatchRecordStore()
	ctx := context.Background()

	for _, rec := range []*storage.BatchRecord{
		nil,
		{Wallet: "w", Status: domain.BatchBuilt},
		{BatchID: "b", Status: domain.BatchBuilt},
		{BatchID: "b", Wallet: "w"},
	} {
		if err := store.Put(ctx, rec); !errors.Is(err, storage.ErrInvalidInput) {
			t.Errorf("Put(%+v) = %v, want ErrInvalidInput", rec, err)
		}
	}
}

func TestBatchRecordStore_Lists(t *testing.T) {
	store := NewBatchRecordStore()
	ctx := context.Background()

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	records := []*storage.BatchRecord{
		{BatchID: "b1", Wallet: "w1", Index: 0, Status: domain.BatchConfirmed},
		{BatchID: "b2", Wallet: "w1", Index: 1, Status: domain.BatchTimedOut},
		{BatchID: "b3", Wallet: "w2", Index: 0, Status: domain.BatchTimedOut},
	}
	for _, r := range records {
		if err := store.Put(ctx, r); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	w1, err := store.ListByWallet(ctx, "w1")
	if err != nil {
		t.Fatalf("ListByWallet failed: %v", err)
	}
	if len(w1) != 2 || w1[0].BatchID != "b1" || w1[1].BatchID != "b2" {
		t.Errorf("unexpected wallet listing: %+v", w1)
	}

	timedOut, err := store.ListByStatus(ctx, domain.BatchTimedOut)
	if err != nil {
		t.Fatalf("ListByStatus failed: %v", err)
	}
	if len(timedOut) != 2 || timedOut[0].BatchID != "b2" || timedOut[1].BatchID != "b3" {
		t.Errorf("unexpected status listing: %+v", timedOut)
	}

	none, _ := store.ListByWallet(ctx, "unknown")
	if len(none) != 0 {
		t.Errorf("expected empty listing, got %d", len(none))
	}
}
