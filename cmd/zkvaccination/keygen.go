package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignasirv/zkVaccionation/identity"
)

type keyPair struct {
	Credential string             `json:"credential"`
	PublicKey  identity.PublicKey `json:"publicKey"`
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Create an issuer credential and its public identity",
	Example: `  zkvaccination keygen
  zkvaccination keygen --seed hospital-1 --output json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		seed, _ := cmd.Flags().GetString("seed")
		output, _ := cmd.Flags().GetString("output")

		cred := identity.FromSeed(seed)
		if seed == "" {
			var err error
			if cred, err = identity.Generate(nil); err != nil {
				return err
			}
		}
		kp := keyPair{Credential: cred.String(), PublicKey: cred.PublicKey()}

		if output == "json" {
			b, err := json.MarshalIndent(kp, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Credential: %s\nPublic key: %s\n", kp.Credential, kp.PublicKey)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().String("seed", "", "derive the credential from a seed instead of randomness")
	keygenCmd.Flags().StringP("output", "o", "plain", "Output format: plain|json")
}
