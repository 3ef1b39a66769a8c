package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignasirv/zkVaccionation/api"
	"github.com/ignasirv/zkVaccionation/internal/node"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local node with an HTTP API",
	Example: `  zkvaccination serve --addr :8080
  ZKV_LEVELDB_PATH=data ZKV_PROVE=true zkvaccination serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		flags := cmd.Flags()
		if flags.Changed("addr") {
			cfg.Addr, _ = flags.GetString("addr")
		}
		if flags.Changed("prove") {
			cfg.Prove, _ = flags.GetBool("prove")
		}

		n, err := node.New(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer n.Close()

		srv := &http.Server{
			Addr:              cfg.Addr,
			Handler:           api.New(n.Contract, n.Registry, log).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			log.InfoContext(ctx, "listening", "addr", cfg.Addr, "prove", cfg.Prove, "issuer", n.Issuer.PublicKey().String())
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().Bool("prove", false, "attach Groth16 proofs instead of account signatures")
}
