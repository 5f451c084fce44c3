package domain

import (
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeyLength is the byte length of a Solana public key.
const PublicKeyLength = 32

// WalletAddress is the base58 public key of a wallet owner.
// Once parsed it is treated as immutable.
type WalletAddress string

// ParseWalletAddress validates a base58 wallet address.
// The key must decode to 32 bytes and lie on the ed25519 curve; program derived
// addresses are off-curve and can never sign a close instruction.
func ParseWalletAddress(s string) (WalletAddress, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty address", ErrInvalidAddressFormat)
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddressFormat, err)
	}
	if len(raw) != PublicKeyLength {
		return "", fmt.Errorf("%w: decoded length %d, want %d", ErrInvalidAddressFormat, len(raw), PublicKeyLength)
	}
	if !IsOnCurve(raw) {
		return "", fmt.Errorf("%w: address is not an ed25519 point", ErrInvalidAddressFormat)
	}

	return WalletAddress(s), nil
}

// String returns the base58 form.
func (w WalletAddress) String() string {
	return string(w)
}

// Short returns the abbreviated form used in logs and prompts.
func (w WalletAddress) Short() string {
	if len(w) <= 8 {
		return string(w)
	}
	return string(w[:4]) + "…" + string(w[len(w)-4:])
}

// Bytes returns the decoded 32-byte key, or nil if the value does not decode.
func (w WalletAddress) Bytes() []byte {
	raw, err := base58.Decode(string(w))
	if err != nil || len(raw) != PublicKeyLength {
		return nil
	}
	return raw
}

// IsOnCurve reports whether a 32-byte value decodes to an ed25519 point.
func IsOnCurve(point []byte) bool {
	if len(point) != PublicKeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
