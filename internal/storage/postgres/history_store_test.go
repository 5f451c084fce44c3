package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-rent-reclaimer/internal/storage"
)

func testSummary(id, wallet, state string, closed int, refunded uint64, finished time.Time) *storage.SessionSummary {
	return &storage.SessionSummary{
		SessionID:         id,
		Requester:         "req-" + id,
		Wallet:            wallet,
		State:             state,
		Candidates:        closed,
		AccountsClosed:    closed,
		EstimatedLamports: refunded,
		RefundedLamports:  refunded,
		ConfirmedBatches:  1,
		StartedAt:         finished.Add(-time.Minute),
		FinishedAt:        finished,
	}
}

func TestHistoryStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewHistoryStore(pool)
	ctx := context.Background()
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, testSummary("s1", "wallet-1", storage.CompletedState, 3, 6_117_840, finished)))

	got, err := store.GetBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "req-s1", got.Requester)
	assert.Equal(t, 3, got.AccountsClosed)
	assert.Equal(t, uint64(6_117_840), got.RefundedLamports)
	assert.True(t, got.FinishedAt.Equal(finished))
}

func TestHistoryStore_DuplicateKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewHistoryStore(pool)
	ctx := context.Background()
	s := testSummary("dup", "wallet-1", storage.CompletedState, 1, 2_039_280, time.Now())

	require.NoError(t, store.Insert(ctx, s))
	assert.ErrorIs(t, store.Insert(ctx, s), storage.ErrDuplicateKey)
}

func TestHistoryStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewHistoryStore(pool).GetBySession(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHistoryStore_GetByWalletAndTotals(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewHistoryStore(pool)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, testSummary("a", "w1", storage.CompletedState, 2, 4_078_560, base.Add(2*time.Hour))))
	require.NoError(t, store.Insert(ctx, testSummary("b", "w1", "failed", 0, 0, base.Add(time.Hour))))
	require.NoError(t, store.Insert(ctx, testSummary("c", "w2", storage.CompletedState, 1, 2_039_280, base.Add(48*time.Hour))))

	list, err := store.GetByWallet(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].SessionID)
	assert.Equal(t, "a", list[1].SessionID)

	totals, err := store.Totals(ctx, base, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, totals.Sessions)
	assert.Equal(t, 1, totals.Completed)
	assert.Equal(t, 2, totals.AccountsClosed)
	assert.Equal(t, uint64(4_078_560), totals.RefundedLamports)
}
