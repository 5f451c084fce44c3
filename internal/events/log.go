package events

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher writes outcomes to a structured log.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, evt *SessionOutcome) error {
	fields := []zap.Field{
		zap.String("session_id", evt.SessionID),
		zap.String("requester", evt.Requester),
		zap.String("wallet", evt.Wallet),
		zap.String("state", evt.State),
		zap.Int("candidates", evt.Candidates),
		zap.Int("accounts_closed", evt.AccountsClosed),
		zap.Uint64("refunded_lamports", evt.RefundedLamports),
	}
	p.logger.Info("session finished", fields...)

	for _, b := range evt.Batches {
		p.logger.Info("batch outcome",
			zap.String("session_id", evt.SessionID),
			zap.Int("index", b.Index),
			zap.String("batch", b.BatchID),
			zap.String("signature", b.Signature),
			zap.String("status", b.Status),
			zap.Int("accounts", b.Accounts),
			zap.String("error", b.Error),
		)
	}
	return nil
}

// Close implements Publisher.
func (p *LogPublisher) Close() error {
	return nil
}
