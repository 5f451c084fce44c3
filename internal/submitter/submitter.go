// Package submitter signs, sends and confirms reclaim transaction batches.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-rent-reclaimer/internal/credential"
	"solana-rent-reclaimer/internal/domain"
	"solana-rent-reclaimer/internal/observability"
	"solana-rent-reclaimer/internal/solana"
	"solana-rent-reclaimer/internal/storage"
	"solana-rent-reclaimer/internal/txbuilder"
)

// Config holds submission parameters.
type Config struct {
	Concurrency    int           // batches in flight at once (default 4)
	Commitment     string        // commitment a batch must reach (default confirmed)
	PollInterval   time.Duration // getSignatureStatuses interval (default 2s)
	ConfirmTimeout time.Duration // per batch, after send (default 60s)
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:    4,
		Commitment:     solana.CommitmentConfirmed,
		PollInterval:   2 * time.Second,
		ConfirmTimeout: 60 * time.Second,
	}
}

// Submitter turns built batches into confirmed ledger transactions.
type Submitter struct {
	config  Config
	gateway solana.LedgerGateway
	builder *txbuilder.Builder
	records storage.BatchRecordStore // optional
	watcher solana.SignatureWatcher  // optional
	logger  *zap.Logger
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithRecords enables idempotent resubmission through a batch record store.
func WithRecords(records storage.BatchRecordStore) Option {
	return func(s *Submitter) {
		s.records = records
	}
}

// WithWatcher confirms through signature subscriptions before falling back to polling.
func WithWatcher(w solana.SignatureWatcher) Option {
	return func(s *Submitter) {
		s.watcher = w
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Submitter) {
		s.logger = logger
	}
}

// New creates a Submitter. Zero config fields take their defaults.
func New(config Config, gateway solana.LedgerGateway, builder *txbuilder.Builder, opts ...Option) *Submitter {
	def := DefaultConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.Commitment == "" {
		config.Commitment = def.Commitment
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.ConfirmTimeout <= 0 {
		config.ConfirmTimeout = def.ConfirmTimeout
	}

	s := &Submitter{
		config:  config,
		gateway: gateway,
		builder: builder,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit signs and submits every batch and waits for each to confirm, fail or
// time out. The credential is checked against wallet before any batch is
// touched; on mismatch nothing is sent and no outcomes are returned.
// Batches are independent: one failing never stops the others. Outcomes are
// returned in the order of batches.
func (s *Submitter) Submit(ctx context.Context, wallet domain.WalletAddress, batches []domain.TransactionBatch, cred *credential.Material) ([]domain.BatchOutcome, error) {
	if err := cred.Verify(wallet); err != nil {
		return nil, err
	}
	for _, b := range batches {
		if b.Wallet != wallet {
			return nil, fmt.Errorf("%w: batch %d belongs to %s", domain.ErrForeignCandidate, b.Index, b.Wallet.Short())
		}
	}

	outcomes := make([]domain.BatchOutcome, len(batches))

	var g errgroup.Group
	g.SetLimit(s.config.Concurrency)
	for i := range batches {
		g.Go(func() error {
			outcomes[i] = s.submitBatch(ctx, batches[i], cred)
			observability.RecordBatch(outcomes[i].Status.String(), outcomes[i].Accounts,
				uint64(outcomes[i].Refund), outcomes[i].Reused)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	return outcomes, nil
}

func (s *Submitter) submitBatch(ctx context.Context, batch domain.TransactionBatch, cred *credential.Material) domain.BatchOutcome {
	out := domain.BatchOutcome{
		BatchID:  batch.ID,
		Index:    batch.Index,
		Accounts: len(batch.Instructions),
		Refund:   batch.Refund(),
	}
	logger := s.logger.With(
		zap.String("wallet", batch.Wallet.Short()),
		zap.String("batch", batch.ID),
		zap.Int("index", batch.Index),
	)

	if done, ok := s.resume(ctx, batch, &out, logger); ok {
		return done
	}

	bh, err := s.gateway.GetLatestBlockhash(ctx)
	if err != nil {
		return s.fail(ctx, batch, out, fmt.Errorf("latest blockhash: %w", err), logger)
	}

	tx, err := s.builder.Assemble(batch, bh.Hash)
	if err != nil {
		return s.fail(ctx, batch, out, fmt.Errorf("assemble: %w", err), logger)
	}
	if err := cred.SignTransaction(tx); err != nil {
		return s.fail(ctx, batch, out, err, logger)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return s.fail(ctx, batch, out, fmt.Errorf("serialize: %w", err), logger)
	}

	// Persist the signature before sending so a crash cannot lose track of it.
	if len(tx.Signatures) > 0 {
		out.Signature = tx.Signatures[0].String()
	}
	out.Status = domain.BatchSigned
	s.persist(ctx, batch, out, logger)

	sig, err := s.gateway.SendTransaction(ctx, raw)
	if err != nil {
		out.Signature = ""
		return s.fail(ctx, batch, out, fmt.Errorf("send: %w", err), logger)
	}
	out.Signature = sig
	out.Status = domain.BatchSubmitted
	s.persist(ctx, batch, out, logger)
	logger.Info("batch submitted", zap.String("signature", sig), zap.Int("accounts", out.Accounts))

	return s.finish(ctx, batch, out, logger)
}

// resume consults the record of an earlier submission of the same batch.
// It reports ok when that record settles the outcome without a new send.
func (s *Submitter) resume(ctx context.Context, batch domain.TransactionBatch, out *domain.BatchOutcome, logger *zap.Logger) (domain.BatchOutcome, bool) {
	if s.records == nil {
		return domain.BatchOutcome{}, false
	}

	prior, err := s.records.Get(ctx, batch.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.BatchOutcome{}, false
	}
	if err != nil {
		logger.Warn("batch record lookup failed, submitting as new", zap.Error(err))
		return domain.BatchOutcome{}, false
	}
	if prior.Signature == "" {
		return domain.BatchOutcome{}, false
	}

	logger = logger.With(zap.String("signature", prior.Signature), zap.String("prior_status", prior.Status.String()))

	if prior.Status == domain.BatchConfirmed {
		logger.Info("batch already confirmed, reusing outcome")
		o := *out
		o.Signature = prior.Signature
		o.Status = domain.BatchConfirmed
		o.Reused = true
		return o, true
	}

	statuses, err := s.gateway.GetSignatureStatuses(ctx, []string{prior.Signature})
	var st *solana.SignatureStatus
	if err == nil && len(statuses) > 0 {
		st = statuses[0]
	}

	switch {
	case st.Reached(s.config.Commitment):
		o := *out
		o.Signature = prior.Signature
		o.Status = domain.BatchConfirmed
		o.Reused = true
		s.persist(ctx, batch, o, logger)
		logger.Info("earlier submission confirmed, reusing outcome")
		return o, true

	case st.Failed():
		logger.Info("earlier submission failed, resubmitting")
		return domain.BatchOutcome{}, false

	case st == nil && prior.Status == domain.BatchSigned:
		// Signed but the ledger never saw it.
		logger.Info("earlier submission never landed, resubmitting")
		return domain.BatchOutcome{}, false

	case prior.Status == domain.BatchFailed:
		return domain.BatchOutcome{}, false
	}

	// Sent before and still pending: wait instead of sending twice.
	logger.Info("earlier submission pending, waiting for confirmation")
	o := *out
	o.Signature = prior.Signature
	o.Status = domain.BatchSubmitted
	o = s.finish(ctx, batch, o, logger)
	o.Reused = true
	return o, true
}

// finish waits for the submitted batch to settle and records the result.
func (s *Submitter) finish(ctx context.Context, batch domain.TransactionBatch, out domain.BatchOutcome, logger *zap.Logger) domain.BatchOutcome {
	start := time.Now()
	status, err := s.awaitConfirmation(ctx, out.Signature)
	out.Status = status
	if err != nil {
		out.Error = err.Error()
	}
	s.persist(ctx, batch, out, logger)

	switch status {
	case domain.BatchConfirmed:
		observability.RecordConfirmLatency(time.Since(start))
		logger.Info("batch confirmed", zap.String("signature", out.Signature))
	case domain.BatchTimedOut:
		logger.Warn("batch confirmation timed out, signature retained",
			zap.String("signature", out.Signature), zap.Duration("timeout", s.config.ConfirmTimeout))
	default:
		logger.Error("batch failed on ledger", zap.String("signature", out.Signature), zap.Error(err))
	}
	return out
}

func (s *Submitter) fail(ctx context.Context, batch domain.TransactionBatch, out domain.BatchOutcome, err error, logger *zap.Logger) domain.BatchOutcome {
	out.Status = domain.BatchFailed
	out.Error = err.Error()
	s.persist(ctx, batch, out, logger)
	logger.Error("batch failed", zap.Error(err))
	return out
}

// persist records the batch state. Storage failures are logged; the ledger
// remains the source of truth for a sent transaction.
func (s *Submitter) persist(ctx context.Context, batch domain.TransactionBatch, out domain.BatchOutcome, logger *zap.Logger) {
	if s.records == nil {
		return
	}
	err := s.records.Put(context.WithoutCancel(ctx), &storage.BatchRecord{
		BatchID:   batch.ID,
		Wallet:    batch.Wallet.String(),
		Index:     batch.Index,
		Signature: out.Signature,
		Status:    out.Status,
		Accounts:  out.Accounts,
		Refund:    uint64(out.Refund),
		Error:     out.Error,
	})
	if err != nil {
		logger.Error("persist batch record", zap.String("status", out.Status.String()), zap.Error(err))
	}
}
