package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solana-rent-reclaimer/internal/observability"
	"solana-rent-reclaimer/internal/storage"
)

// HistoryStore implements storage.HistoryStore using ClickHouse.
type HistoryStore struct {
	conn *Conn
}

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(conn *Conn) *HistoryStore {
	return &HistoryStore{conn: conn}
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
	start := time.Now()
	defer func() {
		failed := err
		if errors.Is(failed, storage.ErrDuplicateKey) {
			failed = nil
		}
		observability.RecordDBQuery("clickhouse", "history_insert", time.Since(start).Seconds(), failed)
	}()

	// MergeTree does not enforce uniqueness; check explicitly for append-only semantics.
	exists, err := s.exists(ctx, sum.SessionID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO reclaim_history (`+historyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sum.SessionID, sum.Requester, sum.Wallet, sum.State,
		uint32(sum.Candidates), uint32(sum.AccountsClosed),
		sum.EstimatedLamports, sum.RefundedLamports,
		uint32(sum.ConfirmedBatches), uint32(sum.FailedBatches), uint32(sum.TimedOutBatches),
		sum.StartedAt.UTC(), sum.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert session summary: %w", err)
	}
	return nil
}

// GetBySession retrieves a summary by session id.
func (s *HistoryStore) GetBySession(ctx context.Context, sessionID string) (*storage.SessionSummary, error) {
	rows, err := s.query(ctx, `
		SELECT `+historyColumns+`
		FROM reclaim_history FINAL
		WHERE session_id = ?
		LIMIT 1
	`, sessionID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, storage.ErrNotFound
	}
	return rows[0], nil
}

// GetByWallet retrieves all summaries for a wallet, ordered by finished_at ASC.
func (s *HistoryStore) GetByWallet(ctx context.Context, wallet string) ([]*storage.SessionSummary, error) {
	return s.query(ctx, `
		SELECT `+historyColumns+`
		FROM reclaim_history FINAL
		WHERE wallet = ?
		ORDER BY finished_at ASC, session_id ASC
	`, wallet)
}

// Totals aggregates summaries finished within [start, end].
func (s *HistoryStore) Totals(ctx context.Context, start, end time.Time) (*storage.HistoryTotals, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT
			count(),
			countIf(state = ?),
			sum(accounts_closed),
			sum(refunded_lamports)
		FROM reclaim_history FINAL
		WHERE finished_at >= ? AND finished_at <= ?
	`, storage.CompletedState, start.UTC(), end.UTC())

	var (
		sessions, completed uint64
		closed, refunded    uint64
	)
	if err := row.Scan(&sessions, &completed, &closed, &refunded); err != nil {
		return nil, fmt.Errorf("aggregate session summaries: %w", err)
	}

	return &storage.HistoryTotals{
		Sessions:         int(sessions),
		Completed:        int(completed),
		AccountsClosed:   int(closed),
		RefundedLamports: refunded,
	}, nil
}

func (s *HistoryStore) exists(ctx context.Context, sessionID string) (bool, error) {
	var count uint64
	row := s.conn.QueryRow(ctx, `
		SELECT count() FROM reclaim_history WHERE session_id = ?
	`, sessionID)
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *HistoryStore) query(ctx context.Context, query string, args ...any) ([]*storage.SessionSummary, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query session summaries: %w", err)
	}
	defer rows.Close()

	var result []*storage.SessionSummary
	for rows.Next() {
		var (
			sum                         storage.SessionSummary
			candidates, closed          uint32
			confirmed, failed, timedOut uint32
			estimated, refunded         uint64
		)
		if err := rows.Scan(
			&sum.SessionID, &sum.Requester, &sum.Wallet, &sum.State, &candidates, &closed,
			&estimated, &refunded, &confirmed, &failed, &timedOut,
			&sum.StartedAt, &sum.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		sum.Candidates = int(candidates)
		sum.AccountsClosed = int(closed)
		sum.EstimatedLamports = estimated
		sum.RefundedLamports = refunded
		sum.ConfirmedBatches = int(confirmed)
		sum.FailedBatches = int(failed)
		sum.TimedOutBatches = int(timedOut)
		result = append(result, &sum)
	}
	return result, rows.Err()
}
