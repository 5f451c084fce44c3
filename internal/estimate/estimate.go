// Package estimate computes the rent refund expected from closing accounts.
package estimate

import (
	"context"
	"fmt"

	"solana-rent-reclaimer/internal/domain"
)

// RentSource reports the rent-exempt minimum for an account size.
type RentSource interface {
	GetMinimumBalanceForRentExemption(ctx context.Context, size int) (uint64, error)
}

// Estimator multiplies a candidate count by a fixed per-account refund.
type Estimator struct {
	RefundPerAccount domain.Lamports
}

// New returns an estimator using refund per closed account.
func New(refund domain.Lamports) Estimator {
	return Estimator{RefundPerAccount: refund}
}

// FromLedger asks the ledger for the rent-exempt minimum of a token account
// and returns an estimator using it.
func FromLedger(ctx context.Context, src RentSource) (Estimator, error) {
	lamports, err := src.GetMinimumBalanceForRentExemption(ctx, domain.TokenAccountLength)
	if err != nil {
		return Estimator{}, fmt.Errorf("rent exemption minimum: %w", err)
	}
	if lamports == 0 {
		return Estimator{}, fmt.Errorf("rent exemption minimum: ledger returned zero")
	}
	return New(domain.Lamports(lamports)), nil
}

// Estimate returns count × RefundPerAccount.
func (e Estimator) Estimate(count int) domain.Lamports {
	if count <= 0 {
		return 0
	}
	return domain.Lamports(count) * e.RefundPerAccount
}

// Quote is the estimate presented before confirmation.
type Quote struct {
	Candidates       int
	RefundPerAccount domain.Lamports
	Total            domain.Lamports
}

// Quote returns the full estimate for count candidates.
func (e Estimator) Quote(count int) Quote {
	return Quote{
		Candidates:       count,
		RefundPerAccount: e.RefundPerAccount,
		Total:            e.Estimate(count),
	}
}
