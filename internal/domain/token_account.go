package domain

import "github.com/shopspring/decimal"

// SPL Token program IDs.
const (
	TokenProgramID     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	NativeMint         = "So11111111111111111111111111111111111111112"
	TokenAccountLength = 165 // bytes of a classic SPL token account
)

// Token account states as reported by the jsonParsed encoding.
const (
	AccountStateInitialized = "initialized"
	AccountStateFrozen      = "frozen"
)

// TokenAccountDescriptor is a token account owned by a scanned wallet.
// Produced by the scanner; read-only downstream.
type TokenAccountDescriptor struct {
	Address   string          // token account address
	Mint      string          // token mint
	Owner     string          // owning wallet
	UIAmount  decimal.Decimal // balance adjusted for decimals
	Amount    uint64          // raw balance in base units
	Decimals  uint8           // mint decimals
	Lamports  uint64          // account lamport balance (rent deposit)
	State     string          // initialized | frozen
	ProgramID string          // owning token program
	IsNative  bool            // wrapped SOL account
}

// IsFrozen reports whether the account is frozen by its mint authority.
// Frozen accounts cannot be closed.
func (d TokenAccountDescriptor) IsFrozen() bool {
	return d.State == AccountStateFrozen
}
