package txbuilder

import (
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"

	"solana-rent-reclaimer/internal/domain"
)

const computeBudgetProgramID = "ComputeBudget111111111111111111111111111111"

// Assemble converts a batch into an unsigned wire transaction paid for by the
// batch wallet. Burns precede the close of the same account.
func (b *Builder) Assemble(batch domain.TransactionBatch, recentBlockhash string) (*solanago.Transaction, error) {
	if len(batch.Instructions) == 0 {
		return nil, fmt.Errorf("batch %d has no instructions", batch.Index)
	}

	payer, err := solanago.PublicKeyFromBase58(batch.Wallet.String())
	if err != nil {
		return nil, fmt.Errorf("payer: %w", err)
	}
	hash, err := solanago.HashFromBase58(recentBlockhash)
	if err != nil {
		return nil, fmt.Errorf("blockhash: %w", err)
	}

	ixs := make([]solanago.Instruction, 0, instructionCount(batch.Instructions)+1)
	if b.PriorityFee > 0 {
		ix, err := computebudget.NewSetComputeUnitPriceInstruction(b.PriorityFee).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("compute unit price: %w", err)
		}
		ixs = append(ixs, ix)
	}

	for _, ci := range batch.Instructions {
		if ci.Authority != batch.Wallet || ci.Destination != batch.Wallet {
			return nil, fmt.Errorf("%w: instruction for %s", domain.ErrForeignCandidate, ci.Account)
		}

		account, err := solanago.PublicKeyFromBase58(ci.Account)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", ci.Account, err)
		}

		if ci.Burn != nil {
			mint, err := solanago.PublicKeyFromBase58(ci.Burn.Mint)
			if err != nil {
				return nil, fmt.Errorf("mint %s: %w", ci.Burn.Mint, err)
			}
			burn, err := token.NewBurnCheckedInstruction(
				ci.Burn.Amount,
				ci.Burn.Decimals,
				account,
				mint,
				payer,
				nil,
			).ValidateAndBuild()
			if err != nil {
				return nil, fmt.Errorf("burn %s: %w", ci.Account, err)
			}
			ixs = append(ixs, burn)
		}

		closeIx, err := token.NewCloseAccountInstruction(
			account,
			payer,
			payer,
			nil,
		).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("close %s: %w", ci.Account, err)
		}
		ixs = append(ixs, closeIx)
	}

	tx, err := solanago.NewTransaction(ixs, hash, solanago.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("new transaction: %w", err)
	}
	return tx, nil
}
