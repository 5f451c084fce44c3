package session

import (
	"sync"
	"time"

	"solana-rent-reclaimer/internal/domain"
)

// Session is one requester's reclamation in progress. Fields are guarded by mu.
type Session struct {
	mu sync.Mutex

	id             string
	requester      string
	wallet         domain.WalletAddress
	state          State
	candidates     domain.CandidateSet
	candidateCount int // kept after candidates are dropped
	estimate       domain.Lamports
	attempts       int
	report         *domain.Report
	noAccounts     bool
	createdAt      time.Time
	updatedAt      time.Time
	done           *finished // set by finish, consumed by unlock
}

// apply moves the session along the transition table.
func (s *Session) apply(in Input, now time.Time) error {
	to, err := Next(s.state, in)
	if err != nil {
		return err
	}
	s.state = to
	s.updatedAt = now
	return nil
}

// Snapshot is a read-only copy of a session's public state.
type Snapshot struct {
	ID                    string               `json:"id"`
	Requester             string               `json:"requester"`
	Wallet                domain.WalletAddress `json:"wallet"`
	State                 State                `json:"state"`
	Candidates            int                  `json:"candidates"`
	EstimatedLamports     domain.Lamports      `json:"estimated_lamports"`
	Attempts              int                  `json:"credential_attempts"`
	NoReclaimableAccounts bool                 `json:"no_reclaimable_accounts,omitempty"`
	CreatedAt             time.Time            `json:"created_at"`
	UpdatedAt             time.Time            `json:"updated_at"`
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		ID:                    s.id,
		Requester:             s.requester,
		Wallet:                s.wallet,
		State:                 s.state,
		Candidates:            s.candidateCount,
		EstimatedLamports:     s.estimate,
		Attempts:              s.attempts,
		NoReclaimableAccounts: s.noAccounts,
		CreatedAt:             s.createdAt,
		UpdatedAt:             s.updatedAt,
	}
}
