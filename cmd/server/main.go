// Package main runs the reclaimer HTTP service: wallet sessions over a JSON
// API, a session expiry sweeper, health and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"solana-rent-reclaimer/internal/app"
	"solana-rent-reclaimer/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("RECLAIM_CONFIG"), "YAML config file")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before environment overrides")
	rpcEndpoint := flag.String("rpc-endpoint", "", "Solana RPC HTTP endpoint (overrides SOLANA_RPC_ENDPOINT)")
	wsEndpoint := flag.String("ws-endpoint", "", "Solana WebSocket endpoint (overrides SOLANA_WS_ENDPOINT)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (overrides POSTGRES_DSN)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (overrides CLICKHOUSE_DSN)")
	rabbitURL := flag.String("rabbitmq-url", "", "RabbitMQ URL for outcome events (overrides RABBITMQ_URL)")
	addr := flag.String("addr", "", "HTTP listen address (overrides RECLAIM_HTTP_ADDR)")
	singletons := flag.Bool("reclaim-singletons", false, "also reclaim accounts holding one unit of a zero-decimal mint")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	logCfg := zap.NewProductionConfig()
	if *debug {
		logCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := logCfg.Build()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		return err
	}

	// Flags given on the command line win over file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "rpc-endpoint":
			cfg.Solana.RPCEndpoint = *rpcEndpoint
		case "ws-endpoint":
			cfg.Solana.WSEndpoint = *wsEndpoint
		case "postgres-dsn":
			cfg.Storage.PostgresDSN = *postgresDSN
		case "clickhouse-dsn":
			cfg.Storage.ClickhouseDSN = *clickhouseDSN
		case "rabbitmq-url":
			cfg.Events.RabbitMQURL = *rabbitURL
		case "addr":
			cfg.Server.Address = *addr
		case "reclaim-singletons":
			cfg.Reclaim.ReclaimSingletons = *singletons
		}
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close", zap.Error(err))
		}
	}()

	go a.Manager.Run(ctx, cfg.Session.SweepInterval)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           newAPI(a.Manager, logger.Named("http")).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Int("active_sessions", a.Manager.Active()))
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
