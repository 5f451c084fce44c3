package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-rent-reclaimer/internal/domain"
	"solana-rent-reclaimer/internal/storage"
)

// BatchRecordStore is a PostgreSQL implementation of storage.BatchRecordStore.
type BatchRecordStore struct {
	pool *Pool
}

// NewBatchRecordStore creates a new PostgreSQL batch record store.
func NewBatchRecordStore(pool *Pool) *BatchRecordStore {
	return &BatchRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BatchRecordStore = (*BatchRecordStore)(nil)

const batchRecordColumns = `batch_id, wallet, batch_index, signature, status, accounts, refund_lamports, error, created_at, updated_at`

// Get retrieves a record by batch id.
func (s *BatchRecordStore) Get(ctx context.Context, batchID string) (_ *storage.BatchRecord, err error) {
	defer observe("batch_record_get", time.Now(), &err)

	row := s.pool.QueryRow(ctx, `
		SELECT `+batchRecordColumns+`
		FROM batch_records
		WHERE batch_id = $1
	`, batchID)

	r, err := scanBatchRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get batch record: %w", err)
	}
	return r, nil
}

// Put inserts or updates a record. created_at is kept from the first insert.
func (s *BatchRecordStore) Put(ctx context.Context, r *storage.BatchRecord) (err error) {
	if err := storage.ValidateBatchRecord(r); err != nil {
		return err
	}
	defer observe("batch_record_put", time.Now(), &err)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO batch_records (
			batch_id, wallet, batch_index, signature, status,
			accounts, refund_lamports, error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (batch_id) DO UPDATE
		SET signature = EXCLUDED.signature,
		    status = EXCLUDED.status,
		    accounts = EXCLUDED.accounts,
		    refund_lamports = EXCLUDED.refund_lamports,
		    error = EXCLUDED.error,
		    updated_at = NOW()
	`,
		r.BatchID, r.Wallet, r.Index, r.Signature, string(r.Status),
		r.Accounts, int64(r.Refund), r.Error,
	)
	if err != nil {
		return fmt.Errorf("put batch record: %w", err)
	}
	return nil
}

// ListByWallet retrieves all records for a wallet.
func (s *BatchRecordStore) ListByWallet(ctx context.Context, wallet string) ([]*storage.BatchRecord, error) {
	return s.list(ctx, `
		SELECT `+batchRecordColumns+`
		FROM batch_records
		WHERE wallet = $1
		ORDER BY created_at ASC, batch_index ASC, batch_id ASC
	`, wallet)
}

// ListByStatus retrieves all records in status.
func (s *BatchRecordStore) ListByStatus(ctx context.Context, status domain.BatchStatus) ([]*storage.BatchRecord, error) {
	return s.list(ctx, `
		SELECT `+batchRecordColumns+`
		FROM batch_records
		WHERE status = $1
		ORDER BY created_at ASC, batch_index ASC, batch_id ASC
	`, string(status))
}

func (s *BatchRecordStore) list(ctx context.Context, query string, arg string) ([]*storage.BatchRecord, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list batch records: %w", err)
	}
	defer rows.Close()

	var result []*storage.BatchRecord
	for rows.Next() {
		r, err := scanBatchRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch record: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatchRecord(row rowScanner) (*storage.BatchRecord, error) {
	var (
		r      storage.BatchRecord
		status string
		refund int64
	)
	err := row.Scan(
		&r.BatchID, &r.Wallet, &r.Index, &r.Signature, &status,
		&r.Accounts, &refund, &r.Error, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = domain.BatchStatus(status)
	r.Refund = uint64(refund)
	return &r, nil
}
