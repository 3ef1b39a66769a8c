package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ignasirv/zkVaccionation/internal/platform/config"
	"github.com/ignasirv/zkVaccionation/internal/platform/logger"
)

var (
	cfg config.Node
	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "zkvaccination",
	Short: "zkVaccination contract node and tooling",
	Long: "Run a local zkVaccination node, generate Groth16 keys and Solidity verifiers, " +
		"and walk through the certificate lifecycle.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		if err := config.LoadDotEnv(envFile); err != nil {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		cfg = config.FromEnv()

		flags := cmd.Flags()
		if flags.Changed("log-level") {
			cfg.LogLevel, _ = flags.GetString("log-level")
		}
		if flags.Changed("key-dir") {
			cfg.KeyDir, _ = flags.GetString("key-dir")
		}
		if flags.Changed("issuer-seed") {
			cfg.IssuerSeed, _ = flags.GetString("issuer-seed")
		}
		log = logger.New(cfg.LogLevel)
		slog.SetDefault(log)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("env-file", ".env", "dotenv file with ZKV_* settings")
	pf.String("log-level", "info", "debug|info|warn|error")
	pf.String("key-dir", config.DefaultKeyDir, "directory of Groth16 keys and verifiers")
	pf.String("issuer-seed", config.DefaultIssuerSeed, "seed of the registered issuer credential")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
