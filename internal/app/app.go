// Package app assembles the reclaimer from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"solana-rent-reclaimer/internal/classifier"
	"solana-rent-reclaimer/internal/config"
	"solana-rent-reclaimer/internal/domain"
	"solana-rent-reclaimer/internal/estimate"
	"solana-rent-reclaimer/internal/events"
	"solana-rent-reclaimer/internal/observability"
	"solana-rent-reclaimer/internal/scanner"
	"solana-rent-reclaimer/internal/session"
	"solana-rent-reclaimer/internal/solana"
	"solana-rent-reclaimer/internal/storage"
	chstore "solana-rent-reclaimer/internal/storage/clickhouse"
	"solana-rent-reclaimer/internal/storage/memory"
	"solana-rent-reclaimer/internal/storage/migrations"
	pgstore "solana-rent-reclaimer/internal/storage/postgres"
	"solana-rent-reclaimer/internal/submitter"
	"solana-rent-reclaimer/internal/txbuilder"
)

// App holds the wired components.
type App struct {
	Config    *config.Config
	Gateway   solana.LedgerGateway
	Scanner   *scanner.Scanner
	Estimator estimate.Estimator
	Builder   *txbuilder.Builder
	Submitter *submitter.Submitter
	Manager   *session.Manager
	Records   storage.BatchRecordStore
	History   storage.HistoryStore

	logger  *zap.Logger
	closers []func() error
}

// Option adjusts how New wires the app.
type Option func(*options)

type options struct {
	gateway solana.LedgerGateway
	watcher solana.SignatureWatcher
	noWS    bool
}

// WithGateway uses gw instead of an HTTP client for cfg.Solana.RPCEndpoint.
func WithGateway(gw solana.LedgerGateway) Option {
	return func(o *options) {
		o.gateway = gw
	}
}

// WithWatcher uses w instead of dialing cfg.Solana.WSEndpoint.
func WithWatcher(w solana.SignatureWatcher) Option {
	return func(o *options) {
		o.watcher = w
	}
}

// WithoutSubscriptions confirms by polling only.
func WithoutSubscriptions() Option {
	return func(o *options) {
		o.noWS = true
	}
}

// New connects the configured backends and builds the session manager.
// Close releases everything New opened.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Gateway = o.gateway
	if a.Gateway == nil {
		// The scanner owns retries; submission never repeats a call blindly.
		a.Gateway = solana.NewHTTPClient(cfg.Solana.RPCEndpoint,
			solana.WithTimeout(cfg.Solana.Timeout),
			solana.WithMaxRetries(0),
			solana.WithCommitment(cfg.Solana.Commitment),
			solana.WithPageSize(cfg.Scanner.PageSize),
			solana.WithCallObserver(observability.RecordRPCCall),
		)
	}

	if err := a.openStores(ctx); err != nil {
		return nil, err
	}

	a.Estimator = estimate.New(domain.Lamports(cfg.Reclaim.RefundPerAccount))
	if cfg.Reclaim.RefundFromLedger {
		a.Estimator, err = estimate.FromLedger(ctx, a.Gateway)
		if err != nil {
			return nil, err
		}
		logger.Info("refund per account from ledger", zap.Uint64("lamports", uint64(a.Estimator.RefundPerAccount)))
	}

	a.Scanner = scanner.New(a.Gateway,
		scanner.WithMaxAttempts(cfg.Scanner.MaxAttempts),
		scanner.WithRetryDelay(cfg.Scanner.RetryDelay, cfg.Scanner.MaxDelay),
		scanner.WithMaxPages(cfg.Scanner.MaxPages),
		scanner.WithLogger(logger.Named("scanner")),
	)

	a.Builder = txbuilder.New(cfg.Reclaim.MaxPerBatch, a.Estimator.RefundPerAccount)
	a.Builder.PriorityFee = cfg.Reclaim.PriorityFee

	subOpts := []submitter.Option{
		submitter.WithRecords(a.Records),
		submitter.WithLogger(logger.Named("submitter")),
	}
	if w := a.watcher(ctx, o); w != nil {
		subOpts = append(subOpts, submitter.WithWatcher(w))
	}
	a.Submitter = submitter.New(submitter.Config{
		Concurrency:    cfg.Submitter.Concurrency,
		Commitment:     cfg.Solana.Commitment,
		PollInterval:   cfg.Submitter.PollInterval,
		ConfirmTimeout: cfg.Submitter.ConfirmTimeout,
	}, a.Gateway, a.Builder, subOpts...)

	publisher, err := a.publisher()
	if err != nil {
		return nil, err
	}

	a.Manager = session.NewManager(session.Config{
		ConfirmTokens:         cfg.Session.ConfirmTokens,
		MaxCredentialAttempts: cfg.Session.MaxCredentialAttempts,
		SessionTTL:            cfg.Session.TTL,
		Policy: classifier.Policy{
			ReclaimSingletons: cfg.Reclaim.ReclaimSingletons,
			SkipFrozen:        cfg.Reclaim.SkipFrozen,
		},
	}, a.Scanner, a.Estimator, a.Builder, a.Submitter,
		session.WithHistory(a.History),
		session.WithPublisher(publisher),
		session.WithLogger(logger.Named("session")),
	)

	return a, nil
}

// openStores selects the batch record and history backends. Postgres holds
// batch records and, without ClickHouse, the history too.
func (a *App) openStores(ctx context.Context) error {
	cfg := a.Config.Storage

	a.Records = memory.NewBatchRecordStore()
	a.History = memory.NewHistoryStore()

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		a.Records = pgstore.NewBatchRecordStore(pool)
		a.History = pgstore.NewHistoryStore(pool)
		a.logger.Info("postgres storage enabled")
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
		a.History = chstore.NewHistoryStore(conn)
		a.logger.Info("clickhouse history enabled")
	}
	return nil
}

// watcher returns the signature subscription source, or nil to poll.
func (a *App) watcher(ctx context.Context, o options) solana.SignatureWatcher {
	if o.watcher != nil {
		return o.watcher
	}
	if o.noWS || a.Config.Solana.WSEndpoint == "" {
		return nil
	}
	wsCfg := solana.DefaultWSConfig()
	wsCfg.Logger = a.logger.Named("ws")
	ws, err := solana.NewWSClient(ctx, a.Config.Solana.WSEndpoint, &wsCfg)
	if err != nil {
		a.logger.Warn("websocket unavailable, confirming by polling", zap.Error(err))
		return nil
	}
	a.closers = append(a.closers, ws.Close)
	return ws
}

func (a *App) publisher() (events.Publisher, error) {
	pubs := events.Multi{events.NewLogPublisher(a.logger.Named("events"))}
	if url := a.Config.Events.RabbitMQURL; url != "" {
		mq, err := events.NewRabbitMQPublisher(events.RabbitMQConfig{
			URL:     url,
			Queue:   a.Config.Events.Queue,
			Durable: true,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, mq.Close)
		pubs = append(pubs, mq)
	}
	return pubs, nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
