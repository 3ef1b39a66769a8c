// Verify proof-carrying transactions: the verifier only sees the public inputs and the proof.
package verifier

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"

	"github.com/ignasirv/zkVaccionation/circuits"
	"github.com/ignasirv/zkVaccionation/keys"
	"github.com/ignasirv/zkVaccionation/proof"
	"github.com/ignasirv/zkVaccionation/zkapp"
)

var (
	ErrMissingProof = errors.New("transaction carries no proof")
	ErrInvalidProof = errors.New("proof verification failed")
)

// Verifier checks transaction proofs against the verifying keys of a key set.
type Verifier struct {
	keys *keys.Set
}

func New(set *keys.Set) *Verifier {
	return &Verifier{keys: set}
}

// Verify rebuilds the public witness from the transaction's own commitments and network
// precondition, never from the inputs the prover reported.
func (v *Verifier) Verify(tx *zkapp.Transaction) error {
	if tx.Proof == nil || tx.Proof.Groth16 == nil {
		return ErrMissingProof
	}
	c, err := v.keys.Get(tx.Method)
	if err != nil {
		return err
	}

	assignment, err := proof.NewPublicAssignment(tx)
	if err != nil {
		return err
	}
	public, err := frontend.NewWitness(assignment, circuits.Curve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("make public witness: %w", err)
	}

	if err := groth16.Verify(tx.Proof.Groth16, c.VK, public); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidProof, tx.Method, err)
	}
	return nil
}
