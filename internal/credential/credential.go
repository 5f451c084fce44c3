// Package credential holds signing key material for the duration of one
// signing call. Material is never logged, persisted or copied out.
package credential

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strings"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"solana-rent-reclaimer/internal/domain"
)

// Material is an ed25519 signing key. The zero value is unusable.
// Call Destroy when done; it overwrites the key in place.
type Material struct {
	key    ed25519.PrivateKey
	public domain.WalletAddress
}

// Parse decodes secret into signing material. Accepted encodings are base58
// of a 32-byte seed or a 64-byte keypair, and the JSON byte array written by
// solana-keygen. For keypairs the embedded public half must match the key
// derived from the seed. secret is not retained; callers still own and must
// wipe it.
func Parse(secret []byte) (*Material, error) {
	raw, err := decode(secret)
	if err != nil {
		return nil, err
	}
	defer Wipe(raw)

	var seed []byte
	switch len(raw) {
	case ed25519.SeedSize:
		seed = raw
	case ed25519.PrivateKeySize:
		seed = raw[:ed25519.SeedSize]
	default:
		return nil, fmt.Errorf("%w: decoded length %d, want %d or %d",
			domain.ErrCredentialFormat, len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
	}

	key := ed25519.NewKeyFromSeed(seed)
	pub := key[ed25519.SeedSize:]

	if len(raw) == ed25519.PrivateKeySize && !bytes.Equal(raw[ed25519.SeedSize:], pub) {
		Wipe(key)
		return nil, fmt.Errorf("%w: public half does not match seed", domain.ErrCredentialFormat)
	}
	if !domain.IsOnCurve(pub) {
		Wipe(key)
		return nil, fmt.Errorf("%w: derived public key is not an ed25519 point", domain.ErrCredentialFormat)
	}

	return &Material{
		key:    key,
		public: domain.WalletAddress(base58.Encode(pub)),
	}, nil
}

func decode(secret []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(secret)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty", domain.ErrCredentialFormat)
	}

	if trimmed[0] == '[' {
		var ints []int
		if err := json.Unmarshal(trimmed, &ints); err != nil {
			return nil, fmt.Errorf("%w: invalid byte array", domain.ErrCredentialFormat)
		}
		raw := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				Wipe(raw)
				wipeInts(ints)
				return nil, fmt.Errorf("%w: byte %d out of range", domain.ErrCredentialFormat, i)
			}
			raw[i] = byte(v)
		}
		wipeInts(ints)
		return raw, nil
	}

	raw, err := base58.Decode(strings.TrimSpace(string(trimmed)))
	if err != nil {
		// The decoder error may quote the input; report only the class of failure.
		return nil, fmt.Errorf("%w: not base58", domain.ErrCredentialFormat)
	}
	return raw, nil
}

// PublicKey returns the wallet address the material signs for.
func (m *Material) PublicKey() domain.WalletAddress {
	if m == nil {
		return ""
	}
	return m.public
}

// Matches reports whether the material signs for wallet.
func (m *Material) Matches(wallet domain.WalletAddress) bool {
	return m != nil && m.key != nil && m.public == wallet
}

// Verify returns ErrCredentialWalletMismatch unless the material signs for wallet.
func (m *Material) Verify(wallet domain.WalletAddress) error {
	if m == nil || m.key == nil {
		return fmt.Errorf("%w: credential destroyed", domain.ErrCredentialFormat)
	}
	if m.public != wallet {
		return fmt.Errorf("%w: credential signs for %s, session wallet is %s",
			domain.ErrCredentialWalletMismatch, m.public.Short(), wallet.Short())
	}
	return nil
}

// SignTransaction signs tx for every required signer the material covers.
// The key is lent to solana-go for the duration of the call only.
func (m *Material) SignTransaction(tx *solanago.Transaction) error {
	if m == nil || m.key == nil {
		return fmt.Errorf("%w: credential destroyed", domain.ErrCredentialFormat)
	}

	signer := solanago.PrivateKey(m.key)
	pub := solanago.PublicKeyFromBytes(m.key[ed25519.SeedSize:])

	_, err := tx.Sign(func(k solanago.PublicKey) *solanago.PrivateKey {
		if k.Equals(pub) {
			return &signer
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	return nil
}

// Destroy zeroes the key. Safe to call more than once.
func (m *Material) Destroy() {
	if m == nil {
		return
	}
	Wipe(m.key)
	m.key = nil
}

// Destroyed reports whether Destroy has run.
func (m *Material) Destroyed() bool {
	return m == nil || m.key == nil
}

// String never reveals key bytes.
func (m *Material) String() string {
	if m.Destroyed() {
		return "credential(destroyed)"
	}
	return fmt.Sprintf("credential(%s)", m.public.Short())
}

// GoString matches String so %#v cannot leak the key.
func (m *Material) GoString() string {
	return m.String()
}

// Format makes every fmt verb go through String.
func (m *Material) Format(f fmt.State, _ rune) {
	fmt.Fprint(f, m.String())
}

// MarshalJSON refuses to serialize key bytes.
func (m *Material) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// With parses secret, wipes it, runs fn and destroys the material on every
// exit path, including panics.
func With(secret []byte, fn func(*Material) error) error {
	defer Wipe(secret)

	m, err := Parse(secret)
	if err != nil {
		return err
	}
	defer m.Destroy()

	return fn(m)
}

// Wipe zeroes b in place.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func wipeInts(v []int) {
	for i := range v {
		v[i] = 0
	}
}
