// Package main is the interactive reclaimer CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"solana-rent-reclaimer/internal/app"
	"solana-rent-reclaimer/internal/config"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath  string
	envFile     string
	rpcEndpoint string
	singletons  bool
	verbose     bool

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Close empty Solana token accounts and recover their rent",
	Long: `reclaim scans a wallet for token accounts that hold nothing, shows the
rent they lock up, and after explicit confirmation closes them with the
wallet's own key, returning the lamports to the wallet.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		logCfg := zap.NewProductionConfig()
		logCfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			logCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = logCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath, envFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("rpc-endpoint") {
			cfg.Solana.RPCEndpoint = rpcEndpoint
		}
		if cmd.Flags().Changed("reclaim-singletons") {
			cfg.Reclaim.ReclaimSingletons = singletons
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan <wallet>",
	Short: "Show reclaimable accounts and the estimated refund without sending anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return scan(cmd.Context(), cmd.OutOrStdout(), a, args[0])
	},
}

var runCmd = &cobra.Command{
	Use:   "run <wallet>",
	Short: "Scan, confirm and close reclaimable accounts",
	Long: `run scans the wallet, prints the estimate and asks for confirmation.
After confirming, paste the wallet's base58 secret key. The key is used to
sign the close transactions and is wiped from memory afterwards; it is never
stored or logged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		p := &prompter{in: cmd.InOrStdin(), out: cmd.OutOrStdout()}
		return runInteractive(cmd.Context(), p, a.Manager, args[0])
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "reclaim", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("RECLAIM_CONFIG"), "YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before environment overrides")
	rootCmd.PersistentFlags().StringVar(&rpcEndpoint, "rpc-endpoint", "", "Solana RPC endpoint (overrides SOLANA_RPC_ENDPOINT)")
	rootCmd.PersistentFlags().BoolVar(&singletons, "reclaim-singletons", false, "also close accounts holding one unit of a zero-decimal mint (burns it)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(scanCmd, runCmd, versionCmd)
}

func newApp(ctx context.Context) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
