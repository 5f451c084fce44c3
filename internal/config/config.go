// Package config loads reclaimer configuration from YAML, .env files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"solana-rent-reclaimer/internal/domain"
	"solana-rent-reclaimer/internal/solana"
	"solana-rent-reclaimer/internal/txbuilder"
)

// Config is the full reclaimer configuration.
type Config struct {
	Solana    SolanaConfig    `yaml:"solana"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Reclaim   ReclaimConfig   `yaml:"reclaim"`
	Submitter SubmitterConfig `yaml:"submitter"`
	Session   SessionConfig   `yaml:"session"`
	Storage   StorageConfig   `yaml:"storage"`
	Events    EventsConfig    `yaml:"events"`
	Server    ServerConfig    `yaml:"server"`
}

// SolanaConfig points at the ledger.
type SolanaConfig struct {
	RPCEndpoint string        `yaml:"rpc_endpoint"`
	WSEndpoint  string        `yaml:"ws_endpoint"` // empty disables signature subscriptions
	Commitment  string        `yaml:"commitment"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ScannerConfig bounds wallet scans.
type ScannerConfig struct {
	// PageSize > 0 switches to the paginated getTokenAccountsByOwnerV2 method,
	// which not every RPC provider serves.
	PageSize    int           `yaml:"page_size"`
	MaxPages    int           `yaml:"max_pages"`
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// ReclaimConfig selects and prices reclaimable accounts.
type ReclaimConfig struct {
	RefundPerAccount uint64 `yaml:"refund_per_account"`
	// RefundFromLedger replaces RefundPerAccount with the ledger's rent-exempt minimum at startup.
	RefundFromLedger  bool   `yaml:"refund_from_ledger"`
	MaxPerBatch       int    `yaml:"max_per_batch"`
	PriorityFee       uint64 `yaml:"priority_fee"` // micro-lamports per compute unit
	ReclaimSingletons bool   `yaml:"reclaim_singletons"`
	SkipFrozen        bool   `yaml:"skip_frozen"`
}

// SubmitterConfig controls batch submission.
type SubmitterConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
}

// SessionConfig controls the conversation with a requester.
type SessionConfig struct {
	ConfirmTokens         []string      `yaml:"confirm_tokens"`
	MaxCredentialAttempts int           `yaml:"max_credential_attempts"`
	TTL                   time.Duration `yaml:"ttl"`
	SweepInterval         time.Duration `yaml:"sweep_interval"`
}

// StorageConfig names optional backends. Empty DSNs fall back to memory.
type StorageConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
}

// EventsConfig configures outcome publishing.
type EventsConfig struct {
	RabbitMQURL string `yaml:"rabbitmq_url"`
	Queue       string `yaml:"queue"`
}

// ServerConfig controls the HTTP front end.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Solana: SolanaConfig{
			Commitment: solana.CommitmentConfirmed,
			Timeout:    solana.DefaultTimeout,
		},
		Scanner: ScannerConfig{
			MaxPages:    100,
			MaxAttempts: 3,
			RetryDelay:  500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
		},
		Reclaim: ReclaimConfig{
			RefundPerAccount: uint64(domain.DefaultRefundPerAccount),
			MaxPerBatch:      txbuilder.DefaultMaxPerBatch,
			SkipFrozen:       true,
		},
		Submitter: SubmitterConfig{
			Concurrency:    4,
			PollInterval:   2 * time.Second,
			ConfirmTimeout: 60 * time.Second,
		},
		Session: SessionConfig{
			ConfirmTokens:         []string{"yes", "نعم"},
			MaxCredentialAttempts: 3,
			TTL:                   10 * time.Minute,
			SweepInterval:         time.Minute,
		},
		Events: EventsConfig{
			Queue: "reclaimer.outcomes",
		},
		Server: ServerConfig{
			Address:         ":8080",
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then variables from envFiles, then the process environment.
// Variables already set in the environment win over .env entries.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := LoadEnvFiles(envFiles...); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFiles loads .env style files into the environment. Missing files
// are ignored. With no arguments ".env" is tried.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from environment variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.str("SOLANA_RPC_ENDPOINT", &c.Solana.RPCEndpoint)
	e.str("SOLANA_WS_ENDPOINT", &c.Solana.WSEndpoint)
	e.str("SOLANA_COMMITMENT", &c.Solana.Commitment)
	e.duration("SOLANA_TIMEOUT", &c.Solana.Timeout)

	e.integer("RECLAIM_PAGE_SIZE", &c.Scanner.PageSize)
	e.integer("RECLAIM_MAX_PAGES", &c.Scanner.MaxPages)
	e.integer("RECLAIM_SCAN_ATTEMPTS", &c.Scanner.MaxAttempts)

	e.uint("RECLAIM_REFUND_PER_ACCOUNT", &c.Reclaim.RefundPerAccount)
	e.boolean("RECLAIM_REFUND_FROM_LEDGER", &c.Reclaim.RefundFromLedger)
	e.integer("RECLAIM_MAX_PER_BATCH", &c.Reclaim.MaxPerBatch)
	e.uint("RECLAIM_PRIORITY_FEE", &c.Reclaim.PriorityFee)
	e.boolean("RECLAIM_SINGLETONS", &c.Reclaim.ReclaimSingletons)
	e.boolean("RECLAIM_SKIP_FROZEN", &c.Reclaim.SkipFrozen)

	e.integer("RECLAIM_CONCURRENCY", &c.Submitter.Concurrency)
	e.duration("RECLAIM_POLL_INTERVAL", &c.Submitter.PollInterval)
	e.duration("RECLAIM_CONFIRM_TIMEOUT", &c.Submitter.ConfirmTimeout)

	e.list("RECLAIM_CONFIRM_TOKENS", &c.Session.ConfirmTokens)
	e.integer("RECLAIM_CREDENTIAL_ATTEMPTS", &c.Session.MaxCredentialAttempts)
	e.duration("RECLAIM_SESSION_TTL", &c.Session.TTL)

	e.str("POSTGRES_DSN", &c.Storage.PostgresDSN)
	e.str("CLICKHOUSE_DSN", &c.Storage.ClickhouseDSN)
	e.str("RABBITMQ_URL", &c.Events.RabbitMQURL)
	e.str("RECLAIM_EVENTS_QUEUE", &c.Events.Queue)
	e.str("RECLAIM_HTTP_ADDR", &c.Server.Address)

	return errors.Join(e.errs...)
}

// Validate checks limits that would otherwise fail at submission time.
func (c *Config) Validate() error {
	var errs []error
	if c.Solana.RPCEndpoint == "" {
		errs = append(errs, errors.New("solana.rpc_endpoint is required"))
	}
	switch c.Solana.Commitment {
	case solana.CommitmentProcessed, solana.CommitmentConfirmed, solana.CommitmentFinalized:
	default:
		errs = append(errs, fmt.Errorf("solana.commitment %q is not processed, confirmed or finalized", c.Solana.Commitment))
	}
	if c.Reclaim.MaxPerBatch < 1 || c.Reclaim.MaxPerBatch > txbuilder.MaxPerBatchLimit {
		errs = append(errs, fmt.Errorf("reclaim.max_per_batch %d outside [1, %d]", c.Reclaim.MaxPerBatch, txbuilder.MaxPerBatchLimit))
	}
	if c.Reclaim.RefundPerAccount == 0 && !c.Reclaim.RefundFromLedger {
		errs = append(errs, errors.New("reclaim.refund_per_account must be positive"))
	}
	if c.Scanner.MaxAttempts < 1 {
		errs = append(errs, errors.New("scanner.max_attempts must be at least 1"))
	}
	if c.Session.MaxCredentialAttempts < 1 {
		errs = append(errs, errors.New("session.max_credential_attempts must be at least 1"))
	}
	if len(c.Session.ConfirmTokens) == 0 {
		errs = append(errs, errors.New("session.confirm_tokens must not be empty"))
	}
	if c.Session.SweepInterval <= 0 {
		errs = append(errs, errors.New("session.sweep_interval must be positive"))
	}
	if c.Submitter.Concurrency < 1 {
		errs = append(errs, errors.New("submitter.concurrency must be at least 1"))
	}
	return errors.Join(errs...)
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) uint(key string, dst *uint64) {
	if v, ok := e.get(key); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
}

func (e *envReader) list(key string, dst *[]string) {
	if v, ok := e.get(key); ok {
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}
