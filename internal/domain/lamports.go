package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// DefaultRefundPerAccount is the rent-exempt minimum of a 165-byte token account.
const DefaultRefundPerAccount Lamports = 2_039_280

// Lamports is an amount of native SOL in base units.
type Lamports uint64

// SOL returns the amount in SOL as an exact decimal.
func (l Lamports) SOL() decimal.Decimal {
	return decimal.NewFromInt(int64(l)).Shift(-9)
}

// String formats the amount as SOL with nine fractional digits.
func (l Lamports) String() string {
	return fmt.Sprintf("%s SOL", l.SOL().StringFixed(9))
}
