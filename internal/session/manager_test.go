package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-rent-reclaimer/internal/credential"
	"solana-rent-reclaimer/internal/domain"
	"solana-rent-reclaimer/internal/estimate"
	"solana-rent-reclaimer/internal/events"
	"solana-rent-reclaimer/internal/scanner"
	"solana-rent-reclaimer/internal/solana"
	"solana-rent-reclaimer/internal/solana/stub"
	"solana-rent-reclaimer/internal/storage"
	"solana-rent-reclaimer/internal/storage/memory"
	"solana-rent-reclaimer/internal/submitter"
	"solana-rent-reclaimer/internal/txbuilder"
)

type recorder struct {
	mu  sync.Mutex
	got []*events.SessionOutcome
}

func (r *recorder) Publish(_ context.Context, evt *events.SessionOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, evt)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) events() []*events.SessionOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*events.SessionOutcome(nil), r.got...)
}

type fixture struct {
	ledger    *stub.Ledger
	wallet    stub.Wallet
	history   *memory.HistoryStore
	publisher *recorder
	manager   *Manager
}

func newFixture(t *testing.T, zeroAccounts, fundedAccounts int, opts ...Option) *fixture {
	t.Helper()

	w := stub.NewWallet(7)
	ledger := stub.NewLedger()
	for i := 0; i < zeroAccounts; i++ {
		ledger.AddAccounts(w.Address.String(), w.Account(i, "0", 6))
	}
	for i := 0; i < fundedAccounts; i++ {
		ledger.AddAccounts(w.Address.String(), w.Account(100+i, "5", 6))
	}

	builder := txbuilder.New(10, domain.DefaultRefundPerAccount)
	sub := submitter.New(submitter.Config{
		Concurrency:    1,
		PollInterval:   5 * time.Millisecond,
		ConfirmTimeout: 200 * time.Millisecond,
	}, ledger, builder)
	sc := scanner.New(ledger, scanner.WithRetryDelay(time.Millisecond, time.Millisecond))

	history := memory.NewHistoryStore()
	pub := &recorder{}
	opts = append([]Option{WithHistory(history), WithPublisher(pub)}, opts...)
	m := NewManager(DefaultConfig(), sc, estimate.New(domain.DefaultRefundPerAccount), builder, sub, opts...)

	return &fixture{ledger: ledger, wallet: w, history: history, publisher: pub, manager: m}
}

func assertWiped(t *testing.T, b []byte) {
	t.Helper()
	for i, v := range b {
		if v != 0 {
			t.Fatalf("secret byte %d not wiped", i)
		}
	}
}

func TestManager_FullReclamation(t *testing.T) {
	f := newFixture(t, 12, 2)
	ctx := context.Background()

	quote, err := f.manager.SubmitWallet(ctx, "alice", f.wallet.Address.String())
	require.NoError(t, err)
	assert.Equal(t, 12, quote.Candidates)
	assert.Equal(t, 12*domain.DefaultRefundPerAccount, quote.EstimatedLamports)
	assert.Equal(t, 12, quote.ByReason[domain.ReasonZeroBalance])
	assert.False(t, quote.NoReclaimableAccounts)
	assert.Contains(t, quote.Prompt, "cannot be recalled")

	snap, err := f.manager.Status("alice")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingConfirmation, snap.State)

	res, err := f.manager.Confirm("alice", "  YES ")
	require.NoError(t, err)
	assert.Equal(t, ConfirmAck, res)

	secret := f.wallet.SecretBase58()
	report, err := f.manager.ProvideCredential(ctx, "alice", secret)
	require.NoError(t, err)
	assertWiped(t, secret)

	assert.Equal(t, 12, report.AccountsClosed)
	assert.Equal(t, 2, report.ConfirmedBatches)
	assert.Equal(t, 12*domain.DefaultRefundPerAccount, report.RefundedLamports)
	assert.Equal(t, 2, f.ledger.SentCount())

	_, err = f.manager.Status("alice")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	sum, err := f.history.GetBySession(ctx, quote.SessionID)
	require.NoError(t, err)
	assert.Equal(t, storage.CompletedState, sum.State)
	assert.Equal(t, 12, sum.Candidates)
	assert.Equal(t, 12, sum.AccountsClosed)

	evts := f.publisher.events()
	require.Len(t, evts, 1)
	assert.Equal(t, "completed", evts[0].State)
	assert.Len(t, evts[0].Batches, 2)
}

func TestManager_NoReclaimableAccounts(t *testing.T) {
	f := newFixture(t, 0, 3)
	ctx := context.Background()

	quote, err := f.manager.SubmitWallet(ctx, "bob", f.wallet.Address.String())
	require.NoError(t, err)

	assert.True(t, quote.NoReclaimableAccounts)
	assert.Equal(t, 0, quote.Candidates)
	assert.Equal(t, domain.Lamports(0), quote.EstimatedLamports)
	assert.Equal(t, 0, f.manager.Active())

	sum, err := f.history.GetBySession(ctx, quote.SessionID)
	require.NoError(t, err)
	assert.Equal(t, storage.CompletedState, sum.State)
}

func TestManager_InvalidAddress(t *testing.T) {
	f := newFixture(t, 1, 0)

	_, err := f.manager.SubmitWallet(context.Background(), "carol", "not-a-wallet!")

	assert.ErrorIs(t, err, domain.ErrInvalidAddressFormat)
	assert.Equal(t, 0, f.manager.Active())
	assert.Equal(t, 0, f.ledger.ListCalls)
}

func TestManager_ScanFailureLeavesNoSession(t *testing.T) {
	f := newFixture(t, 3, 0)
	netErr := fmt.Errorf("dial: %w", domain.ErrNetwork)
	f.ledger.ListErrs = []error{netErr, netErr, netErr}

	_, err := f.manager.SubmitWallet(context.Background(), "dave", f.wallet.Address.String())
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.Equal(t, 0, f.manager.Active())

	// The requester can try again once the ledger recovers.
	quote, err := f.manager.SubmitWallet(context.Background(), "dave", f.wallet.Address.String())
	require.NoError(t, err)
	assert.Equal(t, 3, quote.Candidates)
}

func TestManager_OneSessionPerRequester(t *testing.T) {
	f := newFixture(t, 2, 0)
	ctx := context.Background()

	_, err := f.manager.SubmitWallet(ctx, "erin", f.wallet.Address.String())
	require.NoError(t, err)

	_, err = f.manager.SubmitWallet(ctx, "erin", f.wallet.Address.String())
	assert.ErrorIs(t, err, domain.ErrSessionBusy)

	_, err = f.manager.SubmitWallet(ctx, "frank", f.wallet.Address.String())
	assert.NoError(t, err)
}

func TestManager_DeclineCancels(t *testing.T) {
	f := newFixture(t, 2, 0)
	ctx := context.Background()

	quote, err := f.manager.SubmitWallet(ctx, "gina", f.wallet.Address.String())
	require.NoError(t, err)

	res, err := f.manager.Confirm("gina", "yes please")
	require.NoError(t, err)
	assert.Equal(t, ConfirmCancelled, res)
	assert.Equal(t, 0, f.manager.Active())
	assert.Equal(t, 0, f.ledger.SentCount())

	sum, err := f.history.GetBySession(ctx, quote.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled.String(), sum.State)
}

func TestManager_ConfirmTokens(t *testing.T) {
	tests := []struct {
		token string
		want  ConfirmResult
	}{
		{"yes", ConfirmAck},
		{"Yes", ConfirmAck},
		{" نعم ", ConfirmAck},
		{"no", ConfirmCancelled},
		{"y", ConfirmCancelled},
		{"", ConfirmCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			f := newFixture(t, 1, 0)
			_, err := f.manager.SubmitWallet(context.Background(), "req", f.wallet.Address.String())
			require.NoError(t, err)

			got, err := f.manager.Confirm("req", tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestManager_CredentialMismatchRetriesThenFails(t *testing.T) {
	f := newFixture(t, 3, 0)
	ctx := context.Background()
	other := stub.NewWallet(8)

	quote, err := f.manager.SubmitWallet(ctx, "hank", f.wallet.Address.String())
	require.NoError(t, err)
	_, err = f.manager.Confirm("hank", "yes")
	require.NoError(t, err)

	for attempt := 1; attempt <= 2; attempt++ {
		secret := other.SecretBase58()
		_, err := f.manager.ProvideCredential(ctx, "hank", secret)
		assert.ErrorIs(t, err, domain.ErrCredentialWalletMismatch)
		assertWiped(t, secret)

		snap, err := f.manager.Status("hank")
		require.NoError(t, err)
		assert.Equal(t, StateAwaitingCredential, snap.State)
		assert.Equal(t, attempt, snap.Attempts)
	}

	_, err = f.manager.ProvideCredential(ctx, "hank", other.SecretBase58())
	assert.ErrorIs(t, err, domain.ErrCredentialWalletMismatch)

	_, err = f.manager.Status("hank")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Equal(t, 0, f.ledger.SentCount())

	sum, err := f.history.GetBySession(ctx, quote.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed.String(), sum.State)
}

func TestManager_MalformedCredential(t *testing.T) {
	f := newFixture(t, 1, 0)
	ctx := context.Background()

	_, err := f.manager.SubmitWallet(ctx, "ivy", f.wallet.Address.String())
	require.NoError(t, err)
	_, err = f.manager.Confirm("ivy", "yes")
	require.NoError(t, err)

	secret := []byte("0OIl-not-base58")
	_, err = f.manager.ProvideCredential(ctx, "ivy", secret)
	assert.ErrorIs(t, err, domain.ErrCredentialFormat)
	assertWiped(t, secret)

	snap, err := f.manager.Status("ivy")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Attempts)

	// A correct credential still works afterwards.
	report, err := f.manager.ProvideCredential(ctx, "ivy", f.wallet.SecretBase58())
	require.NoError(t, err)
	assert.Equal(t, 1, report.AccountsClosed)
}

func TestManager_CredentialBeforeConfirmation(t *testing.T) {
	f := newFixture(t, 1, 0)
	ctx := context.Background()

	_, err := f.manager.SubmitWallet(ctx, "jack", f.wallet.Address.String())
	require.NoError(t, err)

	secret := f.wallet.SecretBase58()
	_, err = f.manager.ProvideCredential(ctx, "jack", secret)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assertWiped(t, secret)
	assert.Equal(t, 0, f.ledger.SentCount())

	snap, err := f.manager.Status("jack")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingConfirmation, snap.State)
	assert.Equal(t, 0, snap.Attempts)
}

func TestManager_UnknownRequester(t *testing.T) {
	f := newFixture(t, 1, 0)

	secret := f.wallet.SecretBase58()
	_, err := f.manager.ProvideCredential(context.Background(), "nobody", secret)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assertWiped(t, secret)

	_, err = f.manager.Confirm("nobody", "yes")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, f.manager.Cancel("nobody"), domain.ErrSessionNotFound)
}

func TestManager_PartialFailure(t *testing.T) {
	f := newFixture(t, 12, 0)
	f.ledger.SendErr = errors.New("blockhash not found")
	f.ledger.SendErrAt = 1
	ctx := context.Background()

	quote, err := f.manager.SubmitWallet(ctx, "kim", f.wallet.Address.String())
	require.NoError(t, err)
	_, err = f.manager.Confirm("kim", "yes")
	require.NoError(t, err)

	report, err := f.manager.ProvideCredential(ctx, "kim", f.wallet.SecretBase58())
	assert.ErrorIs(t, err, domain.ErrPartialBatchFailure)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.ConfirmedBatches)
	assert.Equal(t, 1, report.FailedBatches)
	assert.Equal(t, 10, report.AccountsFailed)
	assert.Equal(t, 2, report.AccountsClosed)
	assert.Equal(t, 2*domain.DefaultRefundPerAccount, report.RefundedLamports)

	sum, err := f.history.GetBySession(ctx, quote.SessionID)
	require.NoError(t, err)
	assert.Equal(t, storage.CompletedState, sum.State)
}

func TestManager_AllBatchesFail(t *testing.T) {
	f := newFixture(t, 4, 0)
	f.ledger.SendErr = errors.New("insufficient funds for fee")
	ctx := context.Background()

	quote, err := f.manager.SubmitWallet(ctx, "lee", f.wallet.Address.String())
	require.NoError(t, err)
	_, err = f.manager.Confirm("lee", "yes")
	require.NoError(t, err)

	report, err := f.manager.ProvideCredential(ctx, "lee", f.wallet.SecretBase58())
	assert.ErrorIs(t, err, domain.ErrReclaimFailed)
	require.NotNil(t, report)
	assert.Equal(t, 0, report.AccountsClosed)

	sum, err := f.history.GetBySession(ctx, quote.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed.String(), sum.State)
}

type blockingSubmitter struct {
	started chan struct{}
	release chan struct{}
	calls   int
	mu      sync.Mutex
}

func (b *blockingSubmitter) Submit(_ context.Context, wallet domain.WalletAddress, batches []domain.TransactionBatch, cred *credential.Material) ([]domain.BatchOutcome, error) {
	if err := cred.Verify(wallet); err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	close(b.started)
	<-b.release

	out := make([]domain.BatchOutcome, len(batches))
	for i, batch := range batches {
		out[i] = domain.BatchOutcome{BatchID: batch.ID, Index: batch.Index, Signature: "sig", Status: domain.BatchConfirmed, Accounts: len(batch.Instructions), Refund: batch.Refund()}
	}
	return out, nil
}

func TestManager_ProcessingIsExclusive(t *testing.T) {
	w := stub.NewWallet(7)
	ledger := stub.NewLedger()
	ledger.AddAccounts(w.Address.String(), w.Account(1, "0", 6), w.Account(2, "0", 6))
	builder := txbuilder.New(10, domain.DefaultRefundPerAccount)
	blocker := &blockingSubmitter{started: make(chan struct{}), release: make(chan struct{})}
	m := NewManager(DefaultConfig(), scanner.New(ledger), estimate.New(domain.DefaultRefundPerAccount), builder, blocker)
	ctx := context.Background()

	_, err := m.SubmitWallet(ctx, "max", w.Address.String())
	require.NoError(t, err)
	_, err = m.Confirm("max", "yes")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.ProvideCredential(ctx, "max", w.SecretBase58())
		done <- err
	}()
	<-blocker.started

	snap, err := m.Status("max")
	require.NoError(t, err)
	assert.Equal(t, StateProcessing, snap.State)

	assert.ErrorIs(t, m.Cancel("max"), domain.ErrNotCancellable)
	_, err = m.ProvideCredential(ctx, "max", w.SecretBase58())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = m.SubmitWallet(ctx, "max", w.Address.String())
	assert.ErrorIs(t, err, domain.ErrSessionBusy)

	close(blocker.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, blocker.calls)
	assert.Equal(t, 0, m.Active())
}

func TestManager_CancelBeforeSubmission(t *testing.T) {
	f := newFixture(t, 2, 0)
	ctx := context.Background()

	_, err := f.manager.SubmitWallet(ctx, "nia", f.wallet.Address.String())
	require.NoError(t, err)
	_, err = f.manager.Confirm("nia", "yes")
	require.NoError(t, err)

	require.NoError(t, f.manager.Cancel("nia"))
	assert.Equal(t, 0, f.manager.Active())

	_, err = f.manager.ProvideCredential(ctx, "nia", f.wallet.SecretBase58())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Equal(t, 0, f.ledger.SentCount())
}

func TestManager_SweepExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	f := newFixture(t, 2, 0, WithClock(clock))
	ctx := context.Background()

	_, err := f.manager.SubmitWallet(ctx, "olga", f.wallet.Address.String())
	require.NoError(t, err)

	advance(5 * time.Minute)
	_, err = f.manager.SubmitWallet(ctx, "pete", f.wallet.Address.String())
	require.NoError(t, err)

	advance(6 * time.Minute)
	assert.Equal(t, 1, f.manager.SweepExpired())

	_, err = f.manager.Status("olga")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = f.manager.Status("pete")
	assert.NoError(t, err)
}

// cancellingLedger cancels the caller after the first send and, like the
// HTTP client, fails every call made on a done context.
type cancellingLedger struct {
	*stub.Ledger
	cancel context.CancelFunc
}

func (l *cancellingLedger) GetLatestBlockhash(ctx context.Context) (*solana.Blockhash, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.Ledger.GetLatestBlockhash(ctx)
}

func (l *cancellingLedger) SendTransaction(ctx context.Context, raw []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	defer l.cancel()
	return l.Ledger.SendTransaction(ctx, raw)
}

func (l *cancellingLedger) GetSignatureStatuses(ctx context.Context, sigs []string) ([]*solana.SignatureStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.Ledger.GetSignatureStatuses(ctx, sigs)
}

func TestManager_CallerCancelDuringProcessing(t *testing.T) {
	w := stub.NewWallet(7)
	ledger := stub.NewLedger()
	for i := 0; i < 12; i++ {
		ledger.AddAccounts(w.Address.String(), w.Account(i, "0", 6))
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gw := &cancellingLedger{Ledger: ledger, cancel: cancel}

	builder := txbuilder.New(10, domain.DefaultRefundPerAccount)
	sub := submitter.New(submitter.Config{
		Concurrency:    1,
		PollInterval:   5 * time.Millisecond,
		ConfirmTimeout: 200 * time.Millisecond,
	}, gw, builder)
	history := memory.NewHistoryStore()
	m := NewManager(DefaultConfig(), scanner.New(gw), estimate.New(domain.DefaultRefundPerAccount),
		builder, sub, WithHistory(history))

	quote, err := m.SubmitWallet(ctx, "quinn", w.Address.String())
	require.NoError(t, err)
	_, err = m.Confirm("quinn", "yes")
	require.NoError(t, err)

	report, err := m.ProvideCredential(ctx, "quinn", w.SecretBase58())
	require.NoError(t, err)
	assert.Error(t, ctx.Err())
	assert.Equal(t, 2, ledger.SentCount())
	assert.Equal(t, 2, report.ConfirmedBatches)
	assert.Equal(t, 12, report.AccountsClosed)
	assert.Zero(t, report.TimedOutBatches)

	sum, err := history.GetBySession(context.Background(), quote.SessionID)
	require.NoError(t, err)
	assert.Equal(t, storage.CompletedState, sum.State)
}

type blockingPublisher struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingPublisher) Publish(_ context.Context, _ *events.SessionOutcome) error {
	close(b.started)
	<-b.release
	return nil
}

func (b *blockingPublisher) Close() error { return nil }

func TestManager_OutcomeRecordedOutsideLock(t *testing.T) {
	pub := &blockingPublisher{started: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, 2, 0, WithPublisher(pub))
	ctx := context.Background()

	_, err := f.manager.SubmitWallet(ctx, "ravi", f.wallet.Address.String())
	require.NoError(t, err)
	s, err := f.manager.store.Get("ravi")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.manager.Cancel("ravi") }()
	<-pub.started

	locked := s.mu.TryLock()
	if locked {
		assert.Equal(t, StateCancelled, s.state)
		s.mu.Unlock()
	}
	close(pub.release)
	require.NoError(t, <-done)
	assert.True(t, locked, "session lock held while publishing")
}

type blockingScanner struct {
	started  chan struct{}
	release  chan struct{}
	accounts []domain.TokenAccountDescriptor
}

func (b *blockingScanner) Scan(_ context.Context, _ domain.WalletAddress) ([]domain.TokenAccountDescriptor, error) {
	close(b.started)
	<-b.release
	return b.accounts, nil
}

func TestManager_CancelDuringScan(t *testing.T) {
	w := stub.NewWallet(7)
	sc := &blockingScanner{
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		accounts: []domain.TokenAccountDescriptor{w.Account(1, "0", 6)},
	}
	history := memory.NewHistoryStore()
	pub := &recorder{}
	builder := txbuilder.New(10, domain.DefaultRefundPerAccount)
	m := NewManager(DefaultConfig(), sc, estimate.New(domain.DefaultRefundPerAccount), builder, nil,
		WithHistory(history), WithPublisher(pub))

	type result struct {
		quote *Quote
		err   error
	}
	done := make(chan result, 1)
	go func() {
		q, err := m.SubmitWallet(context.Background(), "sara", w.Address.String())
		done <- result{q, err}
	}()
	<-sc.started

	require.NoError(t, m.Cancel("sara"))
	close(sc.release)

	res := <-done
	assert.Nil(t, res.quote)
	assert.ErrorIs(t, res.err, domain.ErrSessionNotFound)
	assert.Equal(t, 0, m.Active())

	evts := pub.events()
	require.Len(t, evts, 1)
	assert.Equal(t, StateCancelled.String(), evts[0].State)
	assert.Zero(t, evts[0].Candidates)
}
