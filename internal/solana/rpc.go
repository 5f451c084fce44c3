package solana

import (
	"context"

	"solana-rent-reclaimer/internal/domain"
)

// LedgerGateway defines the Solana RPC surface the reclaimer depends on.
type LedgerGateway interface {
	// GetTokenAccountsByOwner returns one page of token accounts owned by owner
	// under programID. An empty cursor requests the first page; an empty
	// NextCursor on the result means there are no more pages.
	GetTokenAccountsByOwner(ctx context.Context, owner, programID, cursor string) (*TokenAccountsPage, error)

	// GetLatestBlockhash returns a recent blockhash for transaction assembly.
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)

	// SendTransaction submits a signed, serialized transaction and returns its signature.
	SendTransaction(ctx context.Context, rawTx []byte) (string, error)

	// GetSignatureStatuses returns the status of each signature, nil if unknown.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)

	// GetMinimumBalanceForRentExemption returns the rent-exempt minimum for an account size.
	GetMinimumBalanceForRentExemption(ctx context.Context, size int) (uint64, error)
}

// TokenAccountsPage is one page of getTokenAccountsByOwner results.
type TokenAccountsPage struct {
	Accounts   []domain.TokenAccountDescriptor
	Malformed  []MalformedAccount // entries whose parsed payload could not be decoded
	NextCursor string
}

// MalformedAccount identifies an account entry that failed to decode.
type MalformedAccount struct {
	Address string
	Reason  string
}
