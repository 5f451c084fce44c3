package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-rent-reclaimer/internal/storage"
)

// HistoryStore is an in-memory implementation of storage.HistoryStore.
type HistoryStore struct {
	mu   sync.RWMutex
	data map[string]*storage.SessionSummary // keyed by session_id
}

// NewHistoryStore creates a new in-memory history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		data: make(map[string]*storage.SessionSummary),
	}
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

// Insert adds a summary. Returns ErrDuplicateKey if session_id exists.
func (s *HistoryStore) Insert(_ context.Context, sum *storage.SessionSummary) error {
	if err := storage.ValidateSessionSummary(sum); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[sum.SessionID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *sum
	s.data[sum.SessionID] = &cp
	return nil
}

// GetBySession retrieves a summary by session id.
func (s *HistoryStore) GetBySession(_ context.Context, sessionID string) (*storage.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum, ok := s.data[sessionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *sum
	return &cp, nil
}

// GetByWallet retrieves all summaries for a wallet, ordered by finished_at ASC.
func (s *HistoryStore) GetByWallet(_ context.Context, wallet string) ([]*storage.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.SessionSummary
	for _, sum := range s.data {
		if sum.Wallet == wallet {
			cp := *sum
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].FinishedAt.Equal(result[j].FinishedAt) {
			return result[i].FinishedAt.Before(result[j].FinishedAt)
		}
		return result[i].SessionID < result[j].SessionID
	})

	return result, nil
}

// Totals aggregates summaries finished within [start, end].
func (s *HistoryStore) Totals(_ context.Context, start, end time.Time) (*storage.HistoryTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := &storage.HistoryTotals{}
	for _, sum := range s.data {
		if sum.FinishedAt.Before(start) || sum.FinishedAt.After(end) {
			continue
		}
		totals.Sessions++
		if sum.State == storage.CompletedState {
			totals.Completed++
		}
		totals.AccountsClosed += sum.AccountsClosed
		totals.RefundedLamports += sum.RefundedLamports
	}
	return totals, nil
}
