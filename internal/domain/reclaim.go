package domain

// Reason tags why a token account is reclaimable.
type Reason string

const (
	ReasonZeroBalance         Reason = "zero-balance"
	ReasonSingletonNoDecimals Reason = "singleton-no-decimals"
)

// String returns the string representation of Reason.
func (r Reason) String() string {
	return string(r)
}

// IsValid checks if the reason is a known value.
func (r Reason) IsValid() bool {
	return r == ReasonZeroBalance || r == ReasonSingletonNoDecimals
}

// ReclaimCandidate is a token account flagged eligible for closure.
type ReclaimCandidate struct {
	Account TokenAccountDescriptor
	Reason  Reason
}

// CandidateSet is the frozen set of candidates presented to a requester.
// It must not be recomputed between confirmation and execution.
type CandidateSet struct {
	wallet     WalletAddress
	candidates []ReclaimCandidate
}

// NewCandidateSet copies candidates into an immutable set owned by wallet.
func NewCandidateSet(wallet WalletAddress, candidates []ReclaimCandidate) CandidateSet {
	cp := make([]ReclaimCandidate, len(candidates))
	copy(cp, candidates)
	return CandidateSet{wallet: wallet, candidates: cp}
}

// Wallet returns the owner the set was computed for.
func (s CandidateSet) Wallet() WalletAddress {
	return s.wallet
}

// Len returns the number of candidates.
func (s CandidateSet) Len() int {
	return len(s.candidates)
}

// Candidates returns a copy of the candidates in scan order.
func (s CandidateSet) Candidates() []ReclaimCandidate {
	cp := make([]ReclaimCandidate, len(s.candidates))
	copy(cp, s.candidates)
	return cp
}

// CountByReason returns the number of candidates per reason.
func (s CandidateSet) CountByReason() map[Reason]int {
	counts := make(map[Reason]int)
	for _, c := range s.candidates {
		counts[c.Reason]++
	}
	return counts
}
