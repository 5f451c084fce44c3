package storage

import (
	"context"
	"time"

	"solana-rent-reclaimer/internal/domain"
)

// BatchRecord is the persisted submission state of one transaction batch.
// It never holds key material.
type BatchRecord struct {
	BatchID   string             // deterministic batch id
	Wallet    string             // fee payer and refund destination
	Index     int                // position within the session
	Signature string             // first signature of the submitted transaction
	Status    domain.BatchStatus // latest known status
	Accounts  int                // close instructions in the batch
	Refund    uint64             // expected refund in lamports
	Error     string             // failure reason, empty on success
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BatchRecordStore provides access to batch_records storage.
// Records are keyed by batch id; Put replaces the previous state of a batch.
type BatchRecordStore interface {
	// Get retrieves a record by batch id. Returns ErrNotFound if not exists.
	Get(ctx context.Context, batchID string) (*BatchRecord, error)

	// Put inserts or updates a record. CreatedAt is kept from the first insert.
	Put(ctx context.Context, r *BatchRecord) error

	// ListByWallet retrieves all records for a wallet, ordered by created_at ASC, index ASC.
	ListByWallet(ctx context.Context, wallet string) ([]*BatchRecord, error)

	// ListByStatus retrieves all records in status, ordered by created_at ASC.
	// Used to follow up on timed-out batches.
	ListByStatus(ctx context.Context, status domain.BatchStatus) ([]*BatchRecord, error)
}

// CompletedState is the State of a session that confirmed at least one batch.
const CompletedState = "completed"

// SessionSummary is the append-only history row written when a session ends.
type SessionSummary struct {
	SessionID         string
	Requester         string
	Wallet            string
	State             string // terminal session state
	Candidates        int
	AccountsClosed    int
	EstimatedLamports uint64
	RefundedLamports  uint64
	ConfirmedBatches  int
	FailedBatches     int
	TimedOutBatches   int
	StartedAt         time.Time
	FinishedAt        time.Time
}

// HistoryTotals aggregates session summaries over a time range.
type HistoryTotals struct {
	Sessions         int
	Completed        int
	AccountsClosed   int
	RefundedLamports uint64
}

// HistoryStore provides access to reclaim_history storage.
type HistoryStore interface {
	// Insert adds a summary. Returns ErrDuplicateKey if session_id exists.
	Insert(ctx context.Context, s *SessionSummary) error

	// GetBySession retrieves a summary by session id. Returns ErrNotFound if not exists.
	GetBySession(ctx context.Context, sessionID string) (*SessionSummary, error)

	// GetByWallet retrieves all summaries for a wallet, ordered by finished_at ASC.
	GetByWallet(ctx context.Context, wallet string) ([]*SessionSummary, error)

	// Totals aggregates summaries finished within [start, end] (inclusive).
	Totals(ctx context.Context, start, end time.Time) (*HistoryTotals, error)
}

// ValidateBatchRecord checks the fields every store requires.
func ValidateBatchRecord(r *BatchRecord) error {
	if r == nil || r.BatchID == "" || r.Wallet == "" || r.Status == "" {
		return ErrInvalidInput
	}
	return nil
}

// ValidateSessionSummary checks the fields every store requires.
func ValidateSessionSummary(s *SessionSummary) error {
	if s == nil || s.SessionID == "" || s.Wallet == "" || s.State == "" {
		return ErrInvalidInput
	}
	return nil
}
