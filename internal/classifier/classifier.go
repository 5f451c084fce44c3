// Package classifier decides which token accounts may be closed for their rent.
package classifier

import (
	"github.com/shopspring/decimal"

	"solana-rent-reclaimer/internal/domain"
)

// Policy is the single eligibility rule applied to every scan.
type Policy struct {
	// ReclaimSingletons also selects accounts holding exactly one unit of a
	// zero-decimal mint. Closing them burns the unit first.
	ReclaimSingletons bool
	// SkipFrozen excludes frozen accounts, which the token program refuses to close.
	SkipFrozen bool
}

// DefaultPolicy returns the conservative policy: empty accounts only.
func DefaultPolicy() Policy {
	return Policy{SkipFrozen: true}
}

// SkipReason tags why a non-empty or ineligible account was left alone.
type SkipReason string

const (
	SkipNonZeroBalance SkipReason = "non-zero-balance"
	SkipFrozen         SkipReason = "frozen"
	SkipForeignProgram SkipReason = "foreign-program"
)

// Skipped is an account the classifier left alone.
type Skipped struct {
	Account string
	Reason  SkipReason
}

// Result is the partition of one scan.
type Result struct {
	Candidates []domain.ReclaimCandidate
	ByReason   map[domain.Reason][]domain.ReclaimCandidate
	Skipped    []Skipped
}

// Count returns the number of candidates.
func (r Result) Count() int {
	return len(r.Candidates)
}

// Counts returns the number of candidates per reason.
func (r Result) Counts() map[domain.Reason]int {
	out := make(map[domain.Reason]int, len(r.ByReason))
	for reason, cs := range r.ByReason {
		out[reason] = len(cs)
	}
	return out
}

var one = decimal.NewFromInt(1)

// Classify partitions descriptors into candidates and skipped accounts.
// It is pure: the same input always yields the same partition, in input order,
// and descriptors are never modified.
func Classify(policy Policy, descriptors []domain.TokenAccountDescriptor) Result {
	res := Result{
		Candidates: make([]domain.ReclaimCandidate, 0),
		ByReason:   make(map[domain.Reason][]domain.ReclaimCandidate),
	}

	for _, d := range descriptors {
		reason, skip := classifyOne(policy, d)
		if skip != "" {
			res.Skipped = append(res.Skipped, Skipped{Account: d.Address, Reason: skip})
			continue
		}
		c := domain.ReclaimCandidate{Account: d, Reason: reason}
		res.Candidates = append(res.Candidates, c)
		res.ByReason[reason] = append(res.ByReason[reason], c)
	}

	return res
}

func classifyOne(policy Policy, d domain.TokenAccountDescriptor) (domain.Reason, SkipReason) {
	if d.ProgramID != "" && d.ProgramID != domain.TokenProgramID {
		return "", SkipForeignProgram
	}
	if policy.SkipFrozen && d.IsFrozen() {
		return "", SkipFrozen
	}

	switch {
	case d.UIAmount.IsZero():
		return domain.ReasonZeroBalance, ""
	case policy.ReclaimSingletons && d.Decimals == 0 && d.UIAmount.Equal(one):
		return domain.ReasonSingletonNoDecimals, ""
	default:
		return "", SkipNonZeroBalance
	}
}
