package stub

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"solana-rent-reclaimer/internal/domain"
)

// Wallet is a deterministic test keypair.
type Wallet struct {
	Address domain.WalletAddress
	Key     ed25519.PrivateKey
}

// NewWallet derives a keypair from a one-byte seed so tests get stable addresses.
func NewWallet(seed byte) Wallet {
	s := make([]byte, ed25519.SeedSize)
	for i := range s {
		s[i] = seed
	}
	key := ed25519.NewKeyFromSeed(s)
	return Wallet{
		Address: domain.WalletAddress(base58.Encode(key.Public().(ed25519.PublicKey))),
		Key:     key,
	}
}

// SecretBase58 returns the 64-byte secret key in base58, the format wallets export.
func (w Wallet) SecretBase58() []byte {
	return []byte(base58.Encode(w.Key))
}

// Account returns an initialized token account descriptor owned by the wallet.
// The address is derived from the wallet and n so it is a valid public key.
func (w Wallet) Account(n int, uiAmount string, decimals uint8) domain.TokenAccountDescriptor {
	ui := decimal.RequireFromString(uiAmount)
	return domain.TokenAccountDescriptor{
		Address:   NewWallet(byte(n) ^ 0xA5 ^ w.Key[0]).Address.String(),
		Mint:      NewWallet(byte(n) ^ 0x5A ^ w.Key[0]).Address.String(),
		Owner:     w.Address.String(),
		UIAmount:  ui,
		Amount:    uint64(ui.Shift(int32(decimals)).IntPart()),
		Decimals:  decimals,
		Lamports:  uint64(domain.DefaultRefundPerAccount),
		State:     domain.AccountStateInitialized,
		ProgramID: domain.TokenProgramID,
	}
}

// String implements fmt.Stringer without exposing the key.
func (w Wallet) String() string {
	return fmt.Sprintf("Wallet(%s)", w.Address.Short())
}
