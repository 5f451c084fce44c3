package domain

import "fmt"

// BatchStatus is the lifecycle state of a transaction batch.
type BatchStatus string

const (
	BatchBuilt     BatchStatus = "built"
	BatchSigned    BatchStatus = "signed"
	BatchSubmitted BatchStatus = "submitted"
	BatchConfirmed BatchStatus = "confirmed"
	BatchFailed    BatchStatus = "failed"
	BatchTimedOut  BatchStatus = "timed-out"
)

// String returns the string representation of BatchStatus.
func (s BatchStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is expected.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchConfirmed || s == BatchFailed || s == BatchTimedOut
}

// BurnSpec burns the remaining balance of an account before it is closed.
// SPL Token refuses to close accounts holding tokens.
type BurnSpec struct {
	Mint     string
	Amount   uint64
	Decimals uint8
}

// CloseInstruction closes one token account and refunds its rent to Destination.
type CloseInstruction struct {
	Account     string
	Destination WalletAddress
	Authority   WalletAddress
	Burn        *BurnSpec // nil unless the account still holds a balance
	Refund      Lamports  // lamports expected back from this account
}

// TransactionBatch is an ordered group of close instructions submitted as one transaction.
type TransactionBatch struct {
	ID           string // deterministic, see idhash.ComputeBatchID
	Index        int    // position within the session, 0-based
	Wallet       WalletAddress
	Instructions []CloseInstruction
	Status       BatchStatus
}

// Accounts returns the account addresses closed by the batch, in order.
func (b TransactionBatch) Accounts() []string {
	out := make([]string, len(b.Instructions))
	for i, ix := range b.Instructions {
		out[i] = ix.Account
	}
	return out
}

// Refund returns the expected refund of the whole batch.
func (b TransactionBatch) Refund() Lamports {
	var total Lamports
	for _, ix := range b.Instructions {
		total += ix.Refund
	}
	return total
}

// BatchOutcome is the submission result of one batch.
type BatchOutcome struct {
	BatchID   string
	Index     int
	Signature string // empty if the batch never reached the ledger
	Status    BatchStatus
	Accounts  int
	Refund    Lamports
	Reused    bool   // outcome taken from an earlier submission of the same batch
	Error     string // human readable failure reason
}

// Report aggregates batch outcomes of one reclamation.
type Report struct {
	Outcomes         []BatchOutcome
	AccountsClosed   int
	AccountsFailed   int
	RefundedLamports Lamports
	ConfirmedBatches int
	FailedBatches    int
	TimedOutBatches  int
}

// NewReport aggregates outcomes. Reused confirmations count once, like any
// other confirmation, so resubmission never inflates the totals.
func NewReport(outcomes []BatchOutcome) *Report {
	r := &Report{Outcomes: outcomes}
	seen := make(map[string]struct{}, len(outcomes))
	for _, o := range outcomes {
		if _, dup := seen[o.BatchID]; dup && o.BatchID != "" {
			continue
		}
		seen[o.BatchID] = struct{}{}

		switch o.Status {
		case BatchConfirmed:
			r.ConfirmedBatches++
			r.AccountsClosed += o.Accounts
			r.RefundedLamports += o.Refund
		case BatchTimedOut:
			r.TimedOutBatches++
			r.AccountsFailed += o.Accounts
		default:
			r.FailedBatches++
			r.AccountsFailed += o.Accounts
		}
	}
	return r
}

// AnyConfirmed reports whether at least one batch confirmed.
func (r *Report) AnyConfirmed() bool {
	return r.ConfirmedBatches > 0
}

// Partial reports whether some but not all batches confirmed.
func (r *Report) Partial() bool {
	return r.ConfirmedBatches > 0 && (r.FailedBatches > 0 || r.TimedOutBatches > 0)
}

// Err summarizes the report as an error: nil when every batch confirmed,
// ErrPartialBatchFailure when some did, ErrReclaimFailed when none did.
func (r *Report) Err() error {
	switch {
	case r.FailedBatches == 0 && r.TimedOutBatches == 0:
		return nil
	case r.ConfirmedBatches > 0:
		return fmt.Errorf("%w: %d confirmed, %d failed, %d timed out",
			ErrPartialBatchFailure, r.ConfirmedBatches, r.FailedBatches, r.TimedOutBatches)
	case r.TimedOutBatches > 0:
		return fmt.Errorf("%w: %d failed, %w on %d", ErrReclaimFailed, r.FailedBatches, ErrTimeout, r.TimedOutBatches)
	default:
		return fmt.Errorf("%w: %d failed", ErrReclaimFailed, r.FailedBatches)
	}
}
