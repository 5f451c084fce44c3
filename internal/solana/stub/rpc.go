package stub

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/mr-tron/base58"

	"solana-rent-reclaimer/internal/domain"
	"solana-rent-reclaimer/internal/solana"
)

// ErrNotFound is returned when no canned response exists.
var ErrNotFound = errors.New("not found")

// Ledger implements solana.LedgerGateway in memory for testing.
// Token accounts are served in pages of PageSize; zero serves everything at once.
type Ledger struct {
	mu sync.Mutex

	Accounts  map[string][]domain.TokenAccountDescriptor
	Malformed map[string][]solana.MalformedAccount
	PageSize  int
	Blockhash string
	RentMin   uint64

	// Statuses overrides the status reported for a signature.
	Statuses map[string]*solana.SignatureStatus
	// SendStatus is reported for every signature accepted by SendTransaction
	// unless Statuses overrides it. Nil reports the signature as unknown.
	SendStatus *solana.SignatureStatus

	// ListErrs are returned, in order, by successive GetTokenAccountsByOwner calls.
	ListErrs []error
	// SendErr, when set, is returned for the n-th send (1-based); zero fails all sends.
	SendErr   error
	SendErrAt int

	Sent       [][]byte
	ListCalls  int
	StatusCall int
}

var _ solana.LedgerGateway = (*Ledger)(nil)

// NewLedger creates a stub ledger that confirms every submitted transaction.
func NewLedger() *Ledger {
	return &Ledger{
		Accounts:   make(map[string][]domain.TokenAccountDescriptor),
		Malformed:  make(map[string][]solana.MalformedAccount),
		Statuses:   make(map[string]*solana.SignatureStatus),
		Blockhash:  "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N",
		RentMin:    uint64(domain.DefaultRefundPerAccount),
		SendStatus: &solana.SignatureStatus{Slot: 1, ConfirmationStatus: solana.CommitmentConfirmed},
	}
}

// AddAccounts registers token accounts for owner.
func (l *Ledger) AddAccounts(owner string, accounts ...domain.TokenAccountDescriptor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Accounts[owner] = append(l.Accounts[owner], accounts...)
}

// GetTokenAccountsByOwner serves a page of the registered accounts. The cursor
// is the decimal offset of the next page.
func (l *Ledger) GetTokenAccountsByOwner(_ context.Context, owner, _ string, cursor string) (*solana.TokenAccountsPage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ListCalls++
	if len(l.ListErrs) > 0 {
		err := l.ListErrs[0]
		l.ListErrs = l.ListErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	all := l.Accounts[owner]
	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 || n > len(all) {
			return nil, fmt.Errorf("invalid cursor %q", cursor)
		}
		start = n
	}

	end := len(all)
	if l.PageSize > 0 && start+l.PageSize < end {
		end = start + l.PageSize
	}

	page := &solana.TokenAccountsPage{
		Accounts: append([]domain.TokenAccountDescriptor(nil), all[start:end]...),
	}
	if start == 0 {
		page.Malformed = append(page.Malformed, l.Malformed[owner]...)
	}
	if end < len(all) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

// GetLatestBlockhash returns the configured blockhash.
func (l *Ledger) GetLatestBlockhash(_ context.Context) (*solana.Blockhash, error) {
	return &solana.Blockhash{Hash: l.Blockhash, LastValidBlockHeight: 1000}, nil
}

// SendTransaction records the raw transaction and returns a signature derived from it.
func (l *Ledger) SendTransaction(_ context.Context, rawTx []byte) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.Sent = append(l.Sent, append([]byte(nil), rawTx...))
	if l.SendErr != nil && (l.SendErrAt == 0 || l.SendErrAt == len(l.Sent)) {
		return "", l.SendErr
	}

	sum := sha256.Sum256(rawTx)
	sig := base58.Encode(append(sum[:], sum[:]...))
	if _, ok := l.Statuses[sig]; !ok && l.SendStatus != nil {
		st := *l.SendStatus
		l.Statuses[sig] = &st
	}
	return sig, nil
}

// GetSignatureStatuses reports the recorded status of each signature.
func (l *Ledger) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.StatusCall++
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		if st, ok := l.Statuses[sig]; ok {
			cp := *st
			out[i] = &cp
		}
	}
	return out, nil
}

// GetMinimumBalanceForRentExemption returns RentMin regardless of size.
func (l *Ledger) GetMinimumBalanceForRentExemption(_ context.Context, _ int) (uint64, error) {
	return l.RentMin, nil
}

// SentCount returns the number of SendTransaction calls.
func (l *Ledger) SentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Sent)
}
