// Package txbuilder groups reclaim candidates into close-account transactions.
// Building is pure; the only input from the ledger is the recent blockhash
// passed to Assemble.
package txbuilder

import (
	"fmt"

	"solana-rent-reclaimer/internal/domain"
	"solana-rent-reclaimer/internal/idhash"
)

// Batch limits.
const (
	DefaultMaxPerBatch = 10
	MaxPerBatchLimit   = 20
	// PacketLimit is the maximum serialized size of a transaction.
	PacketLimit = 1232
)

// Builder splits candidates into batches of at most MaxPerBatch instructions.
type Builder struct {
	MaxPerBatch      int
	RefundPerAccount domain.Lamports
	// PriorityFee is the compute unit price in micro-lamports. Zero omits the instruction.
	PriorityFee uint64
}

// New returns a builder with the given limits. maxPerBatch is clamped to
// [1, MaxPerBatchLimit]; zero selects DefaultMaxPerBatch.
func New(maxPerBatch int, refund domain.Lamports) *Builder {
	switch {
	case maxPerBatch <= 0:
		maxPerBatch = DefaultMaxPerBatch
	case maxPerBatch > MaxPerBatchLimit:
		maxPerBatch = MaxPerBatchLimit
	}
	return &Builder{MaxPerBatch: maxPerBatch, RefundPerAccount: refund}
}

// Build converts candidates into ordered batches for wallet.
//
// Every candidate yields one close instruction returning rent to the wallet;
// singleton candidates also carry a burn that runs first. Duplicate accounts
// are dropped. A batch never holds more than MaxPerBatch instructions nor
// exceeds the packet limit once serialized. Candidates owned by another
// wallet fail the whole build with ErrForeignCandidate.
func (b *Builder) Build(wallet domain.WalletAddress, candidates []domain.ReclaimCandidate) ([]domain.TransactionBatch, error) {
	if b.MaxPerBatch <= 0 || b.MaxPerBatch > MaxPerBatchLimit {
		return nil, fmt.Errorf("max per batch %d outside [1, %d]", b.MaxPerBatch, MaxPerBatchLimit)
	}

	seen := make(map[string]struct{}, len(candidates))
	instructions := make([]domain.CloseInstruction, 0, len(candidates))

	for _, c := range candidates {
		acct := c.Account
		if acct.Owner != wallet.String() {
			return nil, fmt.Errorf("%w: account %s owned by %s", domain.ErrForeignCandidate, acct.Address, acct.Owner)
		}
		if _, dup := seen[acct.Address]; dup {
			continue
		}
		seen[acct.Address] = struct{}{}

		ix := domain.CloseInstruction{
			Account:     acct.Address,
			Destination: wallet,
			Authority:   wallet,
			Refund:      b.RefundPerAccount,
		}
		if c.Reason == domain.ReasonSingletonNoDecimals {
			ix.Burn = &domain.BurnSpec{
				Mint:     acct.Mint,
				Amount:   acct.Amount,
				Decimals: acct.Decimals,
			}
		}
		instructions = append(instructions, ix)
	}

	var (
		batches []domain.TransactionBatch
		current []domain.CloseInstruction
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		batch := domain.TransactionBatch{
			Index:        len(batches),
			Wallet:       wallet,
			Instructions: current,
			Status:       domain.BatchBuilt,
		}
		batch.ID = idhash.ComputeBatchID(wallet.String(), batch.Index, batch.Accounts())
		batches = append(batches, batch)
		current = nil
	}

	for _, ix := range instructions {
		next := append(current[:len(current):len(current)], ix)
		if len(current) > 0 && (instructionCount(next) > b.MaxPerBatch || b.EstimateSize(next) > PacketLimit) {
			flush()
			next = []domain.CloseInstruction{ix}
		}
		current = next
	}
	flush()

	return batches, nil
}

// instructionCount returns the number of token program instructions, burns included.
func instructionCount(ixs []domain.CloseInstruction) int {
	n := 0
	for _, ix := range ixs {
		n++
		if ix.Burn != nil {
			n++
		}
	}
	return n
}

// EstimateSize returns the serialized size of a legacy transaction carrying
// ixs with a single signer. Keys below 128 entries take one length byte.
func (b *Builder) EstimateSize(ixs []domain.CloseInstruction) int {
	keys := map[string]struct{}{
		domain.TokenProgramID: {},
	}
	size := 1 + 64 + 3 + 32 + 1 // signatures, header, blockhash, instruction count

	if b.PriorityFee > 0 {
		keys[computeBudgetProgramID] = struct{}{}
		size += 1 + 1 + 1 + 9
	}
	for _, ix := range ixs {
		keys[ix.Authority.String()] = struct{}{}
		keys[ix.Account] = struct{}{}
		size += 1 + 1 + 3 + 1 + 1
		if ix.Burn != nil {
			keys[ix.Burn.Mint] = struct{}{}
			size += 1 + 1 + 3 + 1 + 10
		}
	}

	size += compactLen(len(keys)) + 32*len(keys)
	return size
}

func compactLen(n int) int {
	switch {
	case n < 0x80:
		return 1
	case n < 0x4000:
		return 2
	default:
		return 3
	}
}
