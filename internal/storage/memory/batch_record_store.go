package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-rent-reclaimer/internal/domain"
	"solana-rent-reclaimer/internal/storage"
)

// BatchRecordStore is an in-memory implementation of storage.BatchRecordStore.
type BatchRecordStore struct {
	mu   sync.RWMutex
	data map[string]*storage.BatchRecord // keyed by batch_id
	now  func() time.Time
}

// NewBatchRecordStore creates a new in-memory batch record store.
func NewBatchRecordStore() *BatchRecordStore {
	return &BatchRecordStore{
		data: make(map[string]*storage.BatchRecord),
		now:  time.Now,
	}
}

// Compile-time interface check.
var _ storage.BatchRecordStore = (*BatchRecordStore)(nil)

// Get retrieves a record by batch id.
func (s *BatchRecordStore) Get(_ context.Context, batchID string) (*storage.BatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[batchID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// Put inserts or updates a record.
func (s *BatchRecordStore) Put(_ context.Context, r *storage.BatchRecord) error {
	if err := storage.ValidateBatchRecord(r); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	cp := *r
	cp.UpdatedAt = now
	if prev, ok := s.data[r.BatchID]; ok {
		cp.CreatedAt = prev.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	s.data[r.BatchID] = &cp
	return nil
}

// ListByWallet retrieves all records for a wallet.
func (s *BatchRecordStore) ListByWallet(_ context.Context, wallet string) ([]*storage.BatchRecord, error) {
	return s.filter(func(r *storage.BatchRecord) bool { return r.Wallet == wallet }), nil
}

// ListByStatus retrieves all records in status.
func (s *BatchRecordStore) ListByStatus(_ context.Context, status domain.BatchStatus) ([]*storage.BatchRecord, error) {
	return s.filter(func(r *storage.BatchRecord) bool { return r.Status == status }), nil
}

func (s *BatchRecordStore) filter(keep func(*storage.BatchRecord) bool) []*storage.BatchRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.BatchRecord
	for _, r := range s.data {
		if keep(r) {
			cp := *r
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		if result[i].Index != result[j].Index {
			return result[i].Index < result[j].Index
		}
		return result[i].BatchID < result[j].BatchID
	})

	return result
}
