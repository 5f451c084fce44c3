// Package scanner enumerates the token accounts owned by a wallet.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-rent-reclaimer/internal/domain"
	"solana-rent-reclaimer/internal/observability"
	"solana-rent-reclaimer/internal/solana"
)

// Default retry configuration for transient ledger failures.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultMaxPages    = 1000
)

// Scanner pages through getTokenAccountsByOwner for the classic token program.
type Scanner struct {
	gateway     solana.LedgerGateway
	programID   string
	maxAttempts int
	retryDelay  time.Duration
	maxDelay    time.Duration
	maxPages    int
	log         *zap.Logger
}

// Option configures Scanner.
type Option func(*Scanner)

// WithMaxAttempts sets how many times a page is requested before giving up.
func WithMaxAttempts(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the initial and maximum backoff between attempts.
func WithRetryDelay(initial, max time.Duration) Option {
	return func(s *Scanner) {
		s.retryDelay = initial
		s.maxDelay = max
	}
}

// WithMaxPages bounds the number of pages fetched for one wallet.
func WithMaxPages(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.maxPages = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scanner) {
		s.log = l
	}
}

// New creates a scanner reading from gateway.
func New(gateway solana.LedgerGateway, opts ...Option) *Scanner {
	s := &Scanner{
		gateway:     gateway,
		programID:   domain.TokenProgramID,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		maxPages:    DefaultMaxPages,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan returns every token account owned by wallet, in ledger order.
// Entries whose parsed payload cannot be decoded are skipped and logged.
// Transport failures are retried with backoff; an error leaves no partial result.
func (s *Scanner) Scan(ctx context.Context, wallet domain.WalletAddress) ([]domain.TokenAccountDescriptor, error) {
	var (
		accounts  []domain.TokenAccountDescriptor
		cursor    string
		malformed int
		seen      = make(map[string]struct{})
	)

	for pages := 0; ; pages++ {
		if pages >= s.maxPages {
			return nil, fmt.Errorf("scan %s: exceeded %d pages", wallet.Short(), s.maxPages)
		}

		page, err := s.fetchPage(ctx, wallet, cursor)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", wallet.Short(), err)
		}

		for _, m := range page.Malformed {
			s.log.Warn("skipping malformed token account",
				zap.String("wallet", wallet.Short()),
				zap.String("account", m.Address),
				zap.String("reason", m.Reason))
		}
		malformed += len(page.Malformed)
		accounts = append(accounts, page.Accounts...)

		if page.NextCursor == "" {
			break
		}
		if _, dup := seen[page.NextCursor]; dup {
			return nil, fmt.Errorf("scan %s: pagination cursor %q repeated", wallet.Short(), page.NextCursor)
		}
		seen[page.NextCursor] = struct{}{}
		cursor = page.NextCursor
	}

	observability.RecordScan(len(accounts), malformed)
	s.log.Debug("scan complete",
		zap.String("wallet", wallet.Short()),
		zap.Int("accounts", len(accounts)))
	return accounts, nil
}

// fetchPage requests one page, retrying only network failures.
func (s *Scanner) fetchPage(ctx context.Context, wallet domain.WalletAddress, cursor string) (*solana.TokenAccountsPage, error) {
	delay := s.retryDelay
	var lastErr error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			s.log.Info("retrying token account page",
				zap.String("wallet", wallet.Short()),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > s.maxDelay {
				delay = s.maxDelay
			}
		}

		page, err := s.gateway.GetTokenAccountsByOwner(ctx, wallet.String(), s.programID, cursor)
		if err == nil {
			return page, nil
		}
		if !errors.Is(err, domain.ErrNetwork) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("after %d attempts: %w", s.maxAttempts, lastErr)
}
