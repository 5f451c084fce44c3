// Package session drives a requester through scan, confirmation, credential
// entry and submission of a reclamation.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"solana-rent-reclaimer/internal/classifier"
	"solana-rent-reclaimer/internal/credential"
	"solana-rent-reclaimer/internal/domain"
	"solana-rent-reclaimer/internal/estimate"
	"solana-rent-reclaimer/internal/events"
	"solana-rent-reclaimer/internal/observability"
	"solana-rent-reclaimer/internal/storage"
	"solana-rent-reclaimer/internal/txbuilder"
)

// AccountScanner lists the token accounts owned by a wallet.
type AccountScanner interface {
	Scan(ctx context.Context, wallet domain.WalletAddress) ([]domain.TokenAccountDescriptor, error)
}

// BatchSubmitter signs and submits batches, returning one outcome per batch.
type BatchSubmitter interface {
	Submit(ctx context.Context, wallet domain.WalletAddress, batches []domain.TransactionBatch, cred *credential.Material) ([]domain.BatchOutcome, error)
}

// Config holds session parameters.
type Config struct {
	ConfirmTokens         []string      // accepted confirmation replies (default yes, نعم)
	MaxCredentialAttempts int           // rejected credentials before the session fails (default 3)
	SessionTTL            time.Duration // idle sessions older than this expire (default 10m)
	Policy                classifier.Policy
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		ConfirmTokens:         []string{"yes", "نعم"},
		MaxCredentialAttempts: 3,
		SessionTTL:            10 * time.Minute,
		Policy:                classifier.DefaultPolicy(),
	}
}

// ConfirmResult is the outcome of Confirm.
type ConfirmResult string

const (
	ConfirmAck       ConfirmResult = "ack"
	ConfirmCancelled ConfirmResult = "cancelled"
)

// Quote is returned to the requester after a scan.
type Quote struct {
	SessionID             string
	Wallet                domain.WalletAddress
	Candidates            int
	ByReason              map[domain.Reason]int
	RefundPerAccount      domain.Lamports
	EstimatedLamports     domain.Lamports
	NoReclaimableAccounts bool
	Prompt                string
}

// Manager owns the session store and runs the reclamation workflow.
type Manager struct {
	config    Config
	store     *Store
	scanner   AccountScanner
	estimator estimate.Estimator
	builder   *txbuilder.Builder
	submitter BatchSubmitter
	history   storage.HistoryStore // optional
	publisher events.Publisher     // optional
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithHistory records a summary of every finished session.
func WithHistory(h storage.HistoryStore) Option {
	return func(m *Manager) {
		m.history = h
	}
}

// WithPublisher publishes the outcome of every finished session.
func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) {
		m.publisher = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager. Zero config fields take their defaults.
func NewManager(
	config Config,
	scanner AccountScanner,
	estimator estimate.Estimator,
	builder *txbuilder.Builder,
	submitter BatchSubmitter,
	opts ...Option,
) *Manager {
	def := DefaultConfig()
	if len(config.ConfirmTokens) == 0 {
		config.ConfirmTokens = def.ConfirmTokens
	}
	if config.MaxCredentialAttempts <= 0 {
		config.MaxCredentialAttempts = def.MaxCredentialAttempts
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = def.SessionTTL
	}

	m := &Manager{
		config:    config,
		store:     NewStore(),
		scanner:   scanner,
		estimator: estimator,
		builder:   builder,
		submitter: submitter,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SubmitWallet scans address, classifies its token accounts and quotes the
// refund. With at least one candidate the session waits for confirmation.
// With none the session completes at once and the quote reports
// NoReclaimableAccounts. Scan failures leave the requester without a session.
func (m *Manager) SubmitWallet(ctx context.Context, requester, address string) (*Quote, error) {
	wallet, err := domain.ParseWalletAddress(address)
	if err != nil {
		return nil, err
	}

	now := m.now()
	s := &Session{
		id:        uuid.NewString(),
		requester: requester,
		wallet:    wallet,
		state:     StateIdle,
		createdAt: now,
		updatedAt: now,
	}
	if err := m.store.Reserve(s); err != nil {
		return nil, err
	}
	observability.RecordSessionStarted()

	logger := m.logger.With(
		zap.String("requester", requester),
		zap.String("session_id", s.id),
		zap.String("wallet", wallet.Short()),
	)

	accounts, err := m.scanner.Scan(ctx, wallet)
	if err != nil {
		m.store.Remove(s)
		observability.RecordSessionFinished("scan-error")
		logger.Warn("scan failed", zap.Error(err))
		return nil, err
	}

	result := classifier.Classify(m.config.Policy, accounts)
	observability.RecordClassification(reasonCounts(result.Counts()), skipCounts(result.Skipped))
	q := m.estimator.Quote(result.Count())

	s.mu.Lock()
	defer m.unlock(s)

	if s.state != StateIdle {
		logger.Info("session ended during scan", zap.String("state", s.state.String()))
		return nil, fmt.Errorf("%w: session %s during scan", domain.ErrSessionNotFound, s.state)
	}

	s.candidates = domain.NewCandidateSet(wallet, result.Candidates)
	s.candidateCount = s.candidates.Len()
	s.estimate = q.Total

	quote := &Quote{
		SessionID:         s.id,
		Wallet:            wallet,
		Candidates:        q.Candidates,
		ByReason:          result.Counts(),
		RefundPerAccount:  q.RefundPerAccount,
		EstimatedLamports: q.Total,
	}

	if result.Count() == 0 {
		s.noAccounts = true
		if err := s.apply(InputNoCandidates, m.now()); err != nil {
			return nil, err
		}
		quote.NoReclaimableAccounts = true
		quote.Prompt = fmt.Sprintf("No reclaimable token accounts found for %s.", wallet.Short())
		logger.Info("no reclaimable accounts", zap.Int("scanned", len(accounts)))
		m.finish(s)
		return quote, nil
	}

	if err := s.apply(InputScanned, m.now()); err != nil {
		return nil, err
	}
	quote.Prompt = m.prompt(quote)
	logger.Info("awaiting confirmation",
		zap.Int("scanned", len(accounts)),
		zap.Int("candidates", quote.Candidates),
		zap.Uint64("estimated_lamports", uint64(quote.EstimatedLamports)))
	return quote, nil
}

func (m *Manager) prompt(q *Quote) string {
	return fmt.Sprintf(
		"Found %d reclaimable token accounts on %s. Closing them refunds about %s. "+
			"Submitted transactions cannot be recalled. Reply %q to continue or anything else to cancel.",
		q.Candidates, q.Wallet.Short(), q.EstimatedLamports, m.config.ConfirmTokens[0])
}

// Confirm accepts an allow-listed token and moves the session on to credential
// entry. Any other token cancels the session.
func (m *Manager) Confirm(requester, token string) (ConfirmResult, error) {
	s, err := m.store.Get(requester)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer m.unlock(s)

	if s.state != StateAwaitingConfirmation {
		return "", fmt.Errorf("%w: confirm in %s", domain.ErrInvalidTransition, s.state)
	}

	if m.accepts(token) {
		if err := s.apply(InputConfirmed, m.now()); err != nil {
			return "", err
		}
		m.logger.Info("confirmation accepted",
			zap.String("requester", requester), zap.String("session_id", s.id))
		return ConfirmAck, nil
	}

	if err := s.apply(InputDeclined, m.now()); err != nil {
		return "", err
	}
	m.logger.Info("confirmation declined",
		zap.String("requester", requester), zap.String("session_id", s.id))
	m.finish(s)
	return ConfirmCancelled, nil
}

func (m *Manager) accepts(token string) bool {
	token = strings.TrimSpace(token)
	for _, t := range m.config.ConfirmTokens {
		if strings.EqualFold(token, t) {
			return true
		}
	}
	return false
}

// ProvideCredential parses secret, checks it against the session wallet and,
// if it matches, submits the reclamation and returns its report. The secret
// is wiped and the parsed key destroyed before returning, on every path.
//
// A malformed or mismatched credential keeps the session waiting for another
// attempt until MaxCredentialAttempts is reached. The returned error is
// ErrPartialBatchFailure or ErrReclaimFailed when batches did not all confirm;
// the report is returned alongside it.
func (m *Manager) ProvideCredential(ctx context.Context, requester string, secret []byte) (*domain.Report, error) {
	defer credential.Wipe(secret)

	s, err := m.store.Get(requester)
	if err != nil {
		return nil, err
	}

	var report *domain.Report
	err = credential.With(secret, func(cred *credential.Material) error {
		if err := m.beginProcessing(s, cred); err != nil {
			return err
		}
		// Processing cannot be cancelled; each batch is bounded by its own timeout.
		report = m.process(context.WithoutCancel(ctx), s, cred)
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrCredentialFormat) || errors.Is(err, domain.ErrCredentialWalletMismatch) {
			return nil, m.rejectCredential(s, err)
		}
		return nil, err
	}
	return report, report.Err()
}

func (m *Manager) beginProcessing(s *Session, cred *credential.Material) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingCredential {
		return fmt.Errorf("%w: credential in %s", domain.ErrInvalidTransition, s.state)
	}
	if err := cred.Verify(s.wallet); err != nil {
		return err
	}
	return s.apply(InputCredentialAccepted, m.now())
}

func (m *Manager) rejectCredential(s *Session, cause error) error {
	s.mu.Lock()
	defer m.unlock(s)

	if s.state != StateAwaitingCredential {
		return fmt.Errorf("%w: credential in %s", domain.ErrInvalidTransition, s.state)
	}

	kind := "format"
	if errors.Is(cause, domain.ErrCredentialWalletMismatch) {
		kind = "mismatch"
	}
	observability.RecordCredentialError(kind)

	s.attempts++
	logger := m.logger.With(
		zap.String("requester", s.requester),
		zap.String("session_id", s.id),
		zap.Int("attempt", s.attempts),
		zap.String("kind", kind),
	)

	if s.attempts >= m.config.MaxCredentialAttempts {
		if err := s.apply(InputAttemptsExhausted, m.now()); err != nil {
			return err
		}
		logger.Warn("credential attempts exhausted")
		m.finish(s)
		return fmt.Errorf("%w (attempt %d of %d, session failed)", cause, s.attempts, m.config.MaxCredentialAttempts)
	}

	if err := s.apply(InputCredentialRejected, m.now()); err != nil {
		return err
	}
	logger.Info("credential rejected")
	return fmt.Errorf("%w (attempt %d of %d)", cause, s.attempts, m.config.MaxCredentialAttempts)
}

// process builds and submits the frozen candidate set. The session is in
// Processing, so no other input can touch the candidates meanwhile.
func (m *Manager) process(ctx context.Context, s *Session, cred *credential.Material) *domain.Report {
	logger := m.logger.With(zap.String("requester", s.requester), zap.String("session_id", s.id))

	var outcomes []domain.BatchOutcome
	batches, err := m.builder.Build(s.wallet, s.candidates.Candidates())
	if err == nil {
		logger.Info("submitting batches", zap.Int("batches", len(batches)), zap.Int("accounts", s.candidates.Len()))
		outcomes, err = m.submitter.Submit(ctx, s.wallet, batches, cred)
	}
	if err != nil {
		logger.Error("submission aborted", zap.Error(err))
		outcomes = []domain.BatchOutcome{{
			Index:    0,
			Status:   domain.BatchFailed,
			Accounts: s.candidates.Len(),
			Error:    err.Error(),
		}}
	}
	report := domain.NewReport(outcomes)

	s.mu.Lock()
	defer m.unlock(s)

	in := InputNoneConfirmed
	if report.AnyConfirmed() {
		in = InputAnyConfirmed
	}
	if err := s.apply(in, m.now()); err != nil {
		logger.Error("unexpected state after submission", zap.Error(err))
	}
	s.report = report
	logger.Info("reclamation finished",
		zap.String("state", s.state.String()),
		zap.Int("accounts_closed", report.AccountsClosed),
		zap.Uint64("refunded_lamports", uint64(report.RefundedLamports)))
	m.finish(s)
	return report
}

// Cancel ends a session that has not started submitting.
func (m *Manager) Cancel(requester string) error {
	s, err := m.store.Get(requester)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer m.unlock(s)

	if s.state == StateProcessing {
		return domain.ErrNotCancellable
	}
	if err := s.apply(InputCancel, m.now()); err != nil {
		return err
	}
	m.logger.Info("session cancelled", zap.String("requester", requester), zap.String("session_id", s.id))
	m.finish(s)
	return nil
}

// Status returns a snapshot of the requester's live session.
func (m *Manager) Status(requester string) (Snapshot, error) {
	s, err := m.store.Get(requester)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

// SweepExpired cancels sessions idle for longer than SessionTTL and returns
// how many were removed.
func (m *Manager) SweepExpired() int {
	cutoff := m.now().Add(-m.config.SessionTTL)
	n := 0
	for _, s := range m.store.Expired(cutoff) {
		s.mu.Lock()
		if !s.state.IsTerminal() && s.state != StateProcessing && s.updatedAt.Before(cutoff) {
			if err := s.apply(InputExpired, m.now()); err == nil {
				m.logger.Info("session expired",
					zap.String("requester", s.requester), zap.String("session_id", s.id))
				m.finish(s)
				n++
			}
		}
		m.unlock(s)
	}
	return n
}

// Run sweeps expired sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SweepExpired()
		}
	}
}

// Active returns the number of live sessions.
func (m *Manager) Active() int {
	return m.store.Len()
}

// finished is what a terminal session leaves behind for history and events.
type finished struct {
	requester string
	sessionID string
	summary   *storage.SessionSummary
	event     *events.SessionOutcome
}

// finish runs once a session reaches a terminal state: candidates are
// dropped and the session leaves the store. The outcome is recorded by
// unlock once s.mu is released. Must be called with s.mu held.
func (m *Manager) finish(s *Session) {
	s.candidates = domain.CandidateSet{}
	m.store.Remove(s)
	observability.RecordSessionFinished(s.state.String())

	sum := m.summary(s)
	s.done = &finished{
		requester: s.requester,
		sessionID: s.id,
		summary:   sum,
		event:     m.outcomeEvent(s, sum),
	}
}

// unlock releases s.mu, then records a session that finish ended.
func (m *Manager) unlock(s *Session) {
	done := s.done
	s.done = nil
	s.mu.Unlock()
	if done != nil {
		m.record(done)
	}
}

func (m *Manager) record(f *finished) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger := m.logger.With(zap.String("requester", f.requester), zap.String("session_id", f.sessionID))
	if m.history != nil {
		if err := m.history.Insert(ctx, f.summary); err != nil {
			logger.Error("record session history", zap.Error(err))
		}
	}
	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, f.event); err != nil {
			logger.Error("publish session outcome", zap.Error(err))
		}
	}
}

func (m *Manager) summary(s *Session) *storage.SessionSummary {
	sum := &storage.SessionSummary{
		SessionID:         s.id,
		Requester:         s.requester,
		Wallet:            s.wallet.String(),
		State:             s.state.String(),
		Candidates:        s.candidateCount,
		EstimatedLamports: uint64(s.estimate),
		StartedAt:         s.createdAt,
		FinishedAt:        s.updatedAt,
	}
	if r := s.report; r != nil {
		sum.AccountsClosed = r.AccountsClosed
		sum.RefundedLamports = uint64(r.RefundedLamports)
		sum.ConfirmedBatches = r.ConfirmedBatches
		sum.FailedBatches = r.FailedBatches
		sum.TimedOutBatches = r.TimedOutBatches
	}
	return sum
}

func (m *Manager) outcomeEvent(s *Session, sum *storage.SessionSummary) *events.SessionOutcome {
	evt := &events.SessionOutcome{
		SessionID:        s.id,
		Requester:        s.requester,
		Wallet:           sum.Wallet,
		State:            sum.State,
		Candidates:       sum.Candidates,
		AccountsClosed:   sum.AccountsClosed,
		RefundedLamports: sum.RefundedLamports,
		FinishedAt:       sum.FinishedAt,
	}
	if s.report != nil {
		for _, o := range s.report.Outcomes {
			evt.Batches = append(evt.Batches, events.BatchEvent{
				Index:     o.Index,
				BatchID:   o.BatchID,
				Signature: o.Signature,
				Status:    o.Status.String(),
				Accounts:  o.Accounts,
				Error:     o.Error,
			})
		}
	}
	return evt
}

func reasonCounts(in map[domain.Reason]int) map[string]int {
	out := make(map[string]int, len(in))
	for r, n := range in {
		out[r.String()] = n
	}
	return out
}

func skipCounts(skipped []classifier.Skipped) map[string]int {
	out := make(map[string]int)
	for _, s := range skipped {
		out[string(s.Reason)]++
	}
	return out
}
