package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-rent-reclaimer/internal/storage"
)

// HistoryStore is a PostgreSQL implementation of storage.HistoryStore.
// Append-only: rows are never updated.
type HistoryStore struct {
	pool *Pool
}

// NewHistoryStore creates a new PostgreSQL history store.
func NewHistoryStore(pool *Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

const historyColumns = `session_id, requester, wallet, state, candidates, accounts_closed,
	estimated_lamports, refunded_lamports, confirmed_batches, failed_batches, timed_out_batches,
	started_at, finished_at`

// Insert adds a summary. Returns ErrDuplicateKey if session_id exists.
func (s *HistoryStore) Insert(ctx context.Context, sum *storage.SessionSummary) (err error) {
	if err := storage.ValidateSessionSummary(sum); err != nil {
		return err
	}
	defer observe("history_insert", time.Now(), &err)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO reclaim_history (`+historyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		sum.SessionID, sum.Requester, sum.Wallet, sum.State, sum.Candidates, sum.AccountsClosed,
		int64(sum.EstimatedLamports), int64(sum.RefundedLamports),
		sum.ConfirmedBatches, sum.FailedBatches, sum.TimedOutBatches,
		sum.StartedAt, sum.FinishedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert session summary: %w", err)
	}
	return nil
}

// GetBySession retrieves a summary by session id.
func (s *HistoryStore) GetBySession(ctx context.Context, sessionID string) (*storage.SessionSummary, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+historyColumns+`
		FROM reclaim_history
		WHERE session_id = $1
	`, sessionID)

	sum, err := scanSummary(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get session summary: %w", err)
	}
	return sum, nil
}

// GetByWallet retrieves all summaries for a wallet, ordered by finished_at ASC.
func (s *HistoryStore) GetByWallet(ctx context.Context, wallet string) ([]*storage.SessionSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+historyColumns+`
		FROM reclaim_history
		WHERE wallet = $1
		ORDER BY finished_at ASC, session_id ASC
	`, wallet)
	if err != nil {
		return nil, fmt.Errorf("query session summaries: %w", err)
	}
	defer rows.Close()

	var result []*storage.SessionSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		result = append(result, sum)
	}
	return result, rows.Err()
}

// Totals aggregates summaries finished within [start, end].
func (s *HistoryStore) Totals(ctx context.Context, start, end time.Time) (*storage.HistoryTotals, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE state = $3),
			COALESCE(SUM(accounts_closed), 0)::BIGINT,
			COALESCE(SUM(refunded_lamports), 0)::BIGINT
		FROM reclaim_history
		WHERE finished_at >= $1 AND finished_at <= $2
	`, start, end, storage.CompletedState)

	var (
		totals   storage.HistoryTotals
		refunded int64
	)
	if err := row.Scan(&totals.Sessions, &totals.Completed, &totals.AccountsClosed, &refunded); err != nil {
		return nil, fmt.Errorf("aggregate session summaries: %w", err)
	}
	totals.RefundedLamports = uint64(refunded)
	return &totals, nil
}

func scanSummary(row rowScanner) (*storage.SessionSummary, error) {
	var (
		sum                 storage.SessionSummary
		estimated, refunded int64
	)
	err := row.Scan(
		&sum.SessionID, &sum.Requester, &sum.Wallet, &sum.State, &sum.Candidates, &sum.AccountsClosed,
		&estimated, &refunded, &sum.ConfirmedBatches, &sum.FailedBatches, &sum.TimedOutBatches,
		&sum.StartedAt, &sum.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	sum.EstimatedLamports = uint64(estimated)
	sum.RefundedLamports = uint64(refunded)
	return &sum, nil
}
