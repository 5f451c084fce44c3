package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"solana-rent-reclaimer/internal/storage"
)

func summary(id, wallet, state string, closed int, refunded uint64, finished time.Time) *storage.SessionSummary {
	return &storage.SessionSummary{
		SessionID:        id,
		Requester:        "req-" + id,
		Wallet:           wallet,
		State:            state,
		Candidates:       closed,
		AccountsClosed:   closed,
		RefundedLamports: refunded,
		StartedAt:        finished.Add(-time.Minute),
		FinishedAt:       finished,
	}
}

func TestHistoryStore_InsertAndGet(t *testing.T) {
	store := NewHistoryStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Insert(ctx, summary("s1", "w1", storage.CompletedState, 3, 6_117_840, now)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetBySession failed: %v", err)
	}
	if got.RefundedLamports != 6_117_840 {
		t.Errorf("RefundedLamports = %d, want 6117840", got.RefundedLamports)
	}
}

func TestHistoryStore_DuplicateKey(t *testing.T) {
	store := NewHistoryStore()
	ctx := context.Background()
	s := summary("s1", "w1", storage.CompletedState, 1, 1, time.Now())

	if err := store.Insert(ctx, s); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if err := store.Insert(ctx, s); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestHistoryStore_NotFound(t *testing.T) {
	_, err := NewHistoryStore().GetBySession(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestHistoryStore_GetByWalletAndTotals(t *testing.T) {
	store := NewHistoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, s := range []*storage.SessionSummary{
		summary("s2", "w1", storage.CompletedState, 2, 4_078_560, base.Add(2*time.Hour)),
		summary("s1", "w1", "failed", 0, 0, base.Add(time.Hour)),
		summary("s3", "w2", storage.CompletedState, 5, 10_196_400, base.Add(3*time.Hour)),
		summary("s4", "w2", storage.CompletedState, 1, 2_039_280, base.Add(48*time.Hour)),
	} {
		if err := store.Insert(ctx, s); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	w1, err := store.GetByWallet(ctx, "w1")
	if err != nil {
		t.Fatalf("GetByWallet failed: %v", err)
	}
	if len(w1) != 2 || w1[0].SessionID != "s1" || w1[1].SessionID != "s2" {
		t.Errorf("unexpected ordering: %+v", w1)
	}

	totals, err := store.Totals(ctx, base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}
	if totals.Sessions != 3 || totals.Completed != 2 || totals.AccountsClosed != 7 {
		t.Errorf("unexpected totals: %+v", totals)
	}
	if totals.RefundedLamports != 14_274_960 {
		t.Errorf("RefundedLamports = %d, want 14274960", totals.RefundedLamports)
	}
}
