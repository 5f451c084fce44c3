package submitter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-rent-reclaimer/internal/domain"
)

const finalStatusTimeout = 5 * time.Second

// awaitConfirmation blocks until signature reaches the configured commitment,
// lands with an error, or ConfirmTimeout passes. A subscription is tried first
// when a watcher is configured; polling covers a missing or dropped one.
func (s *Submitter) awaitConfirmation(ctx context.Context, signature string) (domain.BatchStatus, error) {
	status, err := s.wait(ctx, signature)
	if status != domain.BatchTimedOut {
		return status, err
	}
	// A notification can be lost; ask the ledger once more before giving up.
	if final, ok, finalErr := s.lastStatus(ctx, signature); ok {
		return final, finalErr
	}
	return status, err
}

func (s *Submitter) wait(ctx context.Context, signature string) (domain.BatchStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.ConfirmTimeout)
	defer cancel()

	if s.watcher != nil {
		status, settled, err := s.watch(ctx, signature)
		if settled {
			return status, err
		}
	}
	return s.poll(ctx, signature)
}

// lastStatus queries signature once, outside the expired wait. It reports ok
// only when the transaction has settled.
func (s *Submitter) lastStatus(ctx context.Context, signature string) (domain.BatchStatus, bool, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalStatusTimeout)
	defer cancel()

	statuses, err := s.gateway.GetSignatureStatuses(ctx, []string{signature})
	if err != nil || len(statuses) == 0 {
		return "", false, nil
	}
	switch st := statuses[0]; {
	case st.Failed():
		return domain.BatchFailed, true, fmt.Errorf("transaction error: %v", st.Err)
	case st.Reached(s.config.Commitment):
		return domain.BatchConfirmed, true, nil
	}
	return "", false, nil
}

// watch waits on a signature subscription. It reports settled=false when the
// subscription could not be made or ended without a notification.
func (s *Submitter) watch(ctx context.Context, signature string) (domain.BatchStatus, bool, error) {
	ch, err := s.watcher.SubscribeSignature(ctx, signature, s.config.Commitment)
	if err != nil {
		s.logger.Debug("signature subscription unavailable, polling",
			zap.String("signature", signature), zap.Error(err))
		return "", false, nil
	}

	select {
	case n, ok := <-ch:
		if !ok {
			return "", false, nil
		}
		if n.Failed() {
			return domain.BatchFailed, true, fmt.Errorf("transaction error: %v", n.Err)
		}
		return domain.BatchConfirmed, true, nil
	case <-ctx.Done():
		return domain.BatchTimedOut, true, timeoutError(ctx, signature)
	}
}

func (s *Submitter) poll(ctx context.Context, signature string) (domain.BatchStatus, error) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		statuses, err := s.gateway.GetSignatureStatuses(ctx, []string{signature})
		switch {
		case err != nil:
			if ctx.Err() == nil {
				s.logger.Debug("signature status poll failed",
					zap.String("signature", signature), zap.Error(err))
			}
		case len(statuses) > 0 && statuses[0].Failed():
			return domain.BatchFailed, fmt.Errorf("transaction error: %v", statuses[0].Err)
		case len(statuses) > 0 && statuses[0].Reached(s.config.Commitment):
			return domain.BatchConfirmed, nil
		}

		select {
		case <-ctx.Done():
			return domain.BatchTimedOut, timeoutError(ctx, signature)
		case <-ticker.C:
		}
	}
}

func timeoutError(ctx context.Context, signature string) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%w: cancelled while awaiting %s", domain.ErrTimeout, signature)
	}
	return fmt.Errorf("%w: %s not confirmed", domain.ErrTimeout, signature)
}
