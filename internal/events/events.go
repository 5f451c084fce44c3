// Package events publishes reclaim session outcomes to downstream consumers.
package events

import (
	"context"
	"errors"
	"time"
)

// BatchEvent is the published view of one batch outcome.
type BatchEvent struct {
	Index     int    `json:"index"`
	BatchID   string `json:"batch_id"`
	Signature string `json:"signature,omitempty"`
	Status    string `json:"status"`
	Accounts  int    `json:"accounts"`
	Error     string `json:"error,omitempty"`
}

// SessionOutcome is published once per session when it reaches a terminal
// state. It carries signatures and totals only, never key material.
type SessionOutcome struct {
	SessionID        string       `json:"session_id"`
	Requester        string       `json:"requester"`
	Wallet           string       `json:"wallet"`
	State            string       `json:"state"`
	Candidates       int          `json:"candidates"`
	AccountsClosed   int          `json:"accounts_closed"`
	RefundedLamports uint64       `json:"refunded_lamports"`
	Batches          []BatchEvent `json:"batches,omitempty"`
	FinishedAt       time.Time    `json:"finished_at"`
}

// Publisher delivers session outcomes.
type Publisher interface {
	Publish(ctx context.Context, evt *SessionOutcome) error
	Close() error
}

// Multi fans an outcome out to every publisher. All publishers are tried;
// their errors are joined.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, evt *SessionOutcome) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Publisher.
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
