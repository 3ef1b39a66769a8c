// Generate Groth16 proofs for contract transactions.
//
// To generate a proof the prover needs:
//  1. the transaction witness (private inputs) and its public inputs
//  2. the circuit's ProvingKey
//  3. the compiled circuit constraint system (cs)
package proof

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/frontend"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ignasirv/zkVaccionation/circuits"
	"github.com/ignasirv/zkVaccionation/keys"
	"github.com/ignasirv/zkVaccionation/zkapp"
)

var tracer = otel.Tracer("github.com/ignasirv/zkVaccionation/proof")

// Prover proves contract transactions with a key set.
type Prover struct {
	keys   *keys.Set
	logger *slog.Logger
}

func NewProver(set *keys.Set, logger *slog.Logger) *Prover {
	return &Prover{keys: set, logger: logger}
}

// Prove generates the proof of tx, stores it on tx and drops the private witness.
func (p *Prover) Prove(ctx context.Context, tx *zkapp.Transaction) error {
	ctx, span := tracer.Start(ctx, "proof.Prove", trace.WithAttributes(
		attribute.String("method", tx.Method.String()),
		attribute.String("tx_id", tx.ID.String()),
	))
	defer span.End()

	c, err := p.keys.Get(tx.Method)
	if err != nil {
		return err
	}

	assignment, err := NewAssignment(tx)
	if err != nil {
		return fmt.Errorf("failed to build assignment: %w", err)
	}
	w, err := frontend.NewWitness(assignment, circuits.Curve.ScalarField())
	if err != nil {
		return fmt.Errorf("failed to construct witness: %w", err)
	}

	start := time.Now()
	pr, err := groth16.Prove(c.CS, c.PK, w)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to generate proof: %w", err)
	}
	p.logger.InfoContext(ctx, "generated proof",
		"method", tx.Method.String(),
		"tx_id", tx.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	public, err := ExportPublicInputs(w)
	if err != nil {
		return err
	}
	tx.Proof = &zkapp.Proof{Groth16: pr, PublicInputs: public}
	tx.Witness = nil
	return nil
}

// ExportPublicInputs returns the public part of w as decimal strings, in circuit order.
func ExportPublicInputs(w witness.Witness) ([]string, error) {
	public, err := w.Public()
	if err != nil {
		return nil, fmt.Errorf("extract public witness: %w", err)
	}
	elems, ok := public.Vector().(fr.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected witness vector %T", public.Vector())
	}
	result := make([]string, 0, len(elems))
	for _, e := range elems {
		result = append(result, e.BigInt(new(big.Int)).String())
	}
	return result, nil
}

// SolidityProof is a BN254 Groth16 proof laid out as verifier contract calldata.
type SolidityProof struct {
	A [2]string    `json:"a"`
	B [2][2]string `json:"b"`
	C [2]string    `json:"c"`
}

// ExportProofForSol converts a proof into the calldata shape of the exported verifier.
func ExportProofForSol(pr groth16.Proof) (SolidityProof, error) {
	p, ok := pr.(*groth16_bn254.Proof)
	if !ok {
		return SolidityProof{}, fmt.Errorf("failed to cast proof to bn254.Proof")
	}
	return SolidityProof{
		A: [2]string{p.Ar.X.String(), p.Ar.Y.String()},
		B: [2][2]string{
			{p.Bs.X.A0.String(), p.Bs.X.A1.String()},
			{p.Bs.Y.A0.String(), p.Bs.Y.A1.String()},
		},
		C: [2]string{p.Krs.X.String(), p.Krs.Y.String()},
	}, nil
}
