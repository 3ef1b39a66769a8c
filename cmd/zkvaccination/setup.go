package main

import (
	"github.com/spf13/cobra"

	"github.com/ignasirv/zkVaccionation/identity"
	"github.com/ignasirv/zkVaccionation/keys"
)

// setup compiles every contract circuit, runs the Groth16 setup, saves the keys and
// exports one Solidity verifier per method.
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Generate Groth16 keys and Solidity verifiers",
	Example: `  zkvaccination setup
  zkvaccination setup --key-dir build --issuer-seed hospital-1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		issuer := identity.FromSeed(cfg.IssuerSeed).PublicKey()
		log.InfoContext(ctx, "step 1: compile circuits and run setup", "issuer", issuer.String())

		set, err := keys.Setup(ctx, issuer, log)
		if err != nil {
			return err
		}

		log.InfoContext(ctx, "step 2: save keys", "dir", cfg.KeyDir)
		if err := set.Save(cfg.KeyDir); err != nil {
			return err
		}

		if skip, _ := cmd.Flags().GetBool("no-solidity"); skip {
			return nil
		}
		return exportSolidity(cmd, set)
	},
}

// export-verifier only needs the verifying keys of an earlier setup.
var exportVerifierCmd = &cobra.Command{
	Use:   "export-verifier",
	Short: "Export Solidity verifiers from saved keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		log.InfoContext(cmd.Context(), "reading keys", "dir", cfg.KeyDir)
		set, err := keys.Load(cfg.KeyDir, identity.FromSeed(cfg.IssuerSeed).PublicKey())
		if err != nil {
			return err
		}
		return exportSolidity(cmd, set)
	},
}

func exportSolidity(cmd *cobra.Command, set *keys.Set) error {
	if err := set.ExportSolidity(cfg.KeyDir); err != nil {
		return err
	}
	log.InfoContext(cmd.Context(), "exported solidity verifiers", "dir", cfg.KeyDir)
	return nil
}

func init() {
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(exportVerifierCmd)
	setupCmd.Flags().Bool("no-solidity", false, "skip the Solidity verifier export")
}
