package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignasirv/zkVaccionation/identity"
	"github.com/ignasirv/zkVaccionation/internal/node"
	"github.com/ignasirv/zkVaccionation/ledger"
	"github.com/ignasirv/zkVaccionation/proof"
	"github.com/ignasirv/zkVaccionation/zkapp"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Deploy, record two doses and check the certificate on an in-memory node",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg.Prove, _ = cmd.Flags().GetBool("prove")
		cfg.LevelDBPath = ""
		clock := ledger.NewManualClock(uint64(time.Now().UnixMilli()))

		// 1) keys, store and ledger; the contract is deployed with the registered issuer
		n, err := node.New(ctx, cfg, log, node.WithClock(clock))
		if err != nil {
			return err
		}
		defer n.Close()
		log.InfoContext(ctx, "deployed", "issuer", n.Issuer.PublicKey().String(), "prove", cfg.Prove)

		// 2) two doses, three weeks apart
		for dose := 1; dose <= 2; dose++ {
			tx, err := n.Contract.AddVaccination(ctx, n.Issuer)
			if err != nil {
				return err
			}
			receipt, err := n.Contract.Send(ctx, tx)
			if err != nil {
				return err
			}
			log.InfoContext(ctx, "dose recorded", "dose", dose, "tx_id", receipt.TxID, "at", clock.Now())
			clock.Advance(21 * 24 * time.Hour)
		}

		// 3) a non-issuer cannot add doses
		intruder, err := identity.Generate(nil)
		if err != nil {
			return err
		}
		if _, err := n.Contract.AddVaccination(ctx, intruder); !errors.Is(err, zkapp.ErrUnauthorized) {
			return fmt.Errorf("expected unauthorized, got %v", err)
		}
		log.InfoContext(ctx, "non-issuer rejected")

		// 4) the certificate check, as a verifier contract would receive it
		check, err := n.Contract.CheckVaccination(ctx)
		if err != nil {
			return err
		}
		if _, err := n.Contract.Send(ctx, check); err != nil {
			return err
		}
		log.InfoContext(ctx, "certificate valid", "valid_from", check.Network.TimestampLower, "valid_until", check.Network.TimestampUpper)
		if check.Proof != nil {
			if err := printCalldata(cmd, check.Proof); err != nil {
				return err
			}
		}

		// 5) once the window has passed the same check fails
		clock.Set(check.Network.TimestampUpper + 1)
		if _, err := n.Contract.CheckVaccination(ctx); !errors.Is(err, zkapp.ErrOutsideWindow) {
			return fmt.Errorf("expected expired certificate, got %v", err)
		}
		log.InfoContext(ctx, "certificate expired", "now", clock.Now())
		return nil
	},
}

func printCalldata(cmd *cobra.Command, p *zkapp.Proof) error {
	sol, err := proof.ExportProofForSol(p.Groth16)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(struct {
		Proof  proof.SolidityProof `json:"proof"`
		Inputs []string            `json:"inputs"`
	}{sol, p.PublicInputs}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().Bool("prove", true, "generate Groth16 proofs (runs or loads the setup)")
}
