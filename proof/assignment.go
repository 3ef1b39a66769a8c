package proof

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark/frontend"

	"github.com/ignasirv/zkVaccionation/circuits"
	"github.com/ignasirv/zkVaccionation/state"
	"github.com/ignasirv/zkVaccionation/zkapp"
)

var ErrMissingWitness = errors.New("transaction has no witness")

// NewAssignment builds the full witness assignment (public and private inputs) of tx.
func NewAssignment(tx *zkapp.Transaction) (frontend.Circuit, error) {
	if tx.Witness == nil {
		return nil, ErrMissingWitness
	}
	pub, err := NewPublicAssignment(tx)
	if err != nil {
		return nil, err
	}

	switch c := pub.(type) {
	case *circuits.InitializeCircuit:
		return c, nil
	case *circuits.AddVaccinationCircuit:
		c.Pre = toSlots(tx.Witness.Pre)
		c.SignerKey = tx.Witness.Signer.Scalar()
		return c, nil
	case *circuits.CheckVaccinationCircuit:
		c.Slots = toSlots(tx.Witness.Pre)
		return c, nil
	}
	return nil, fmt.Errorf("no assignment for %s", tx.Method)
}

// NewPublicAssignment builds the public inputs of tx only. Ordering follows the circuit
// struct declarations.
func NewPublicAssignment(tx *zkapp.Transaction) (frontend.Circuit, error) {
	switch tx.Method {
	case circuits.MethodInitialize:
		if tx.NewState == nil {
			return nil, errors.New("initialize: missing new state")
		}
		return &circuits.InitializeCircuit{NewState: tx.NewState}, nil
	case circuits.MethodAddVaccination:
		if tx.OldState == nil || tx.NewState == nil {
			return nil, errors.New("addVaccination: missing state commitments")
		}
		return &circuits.AddVaccinationCircuit{
			OldState:  tx.OldState,
			NewState:  tx.NewState,
			Timestamp: new(big.Int).SetUint64(tx.Network.TimestampLower),
		}, nil
	case circuits.MethodCheckVaccination:
		if tx.OldState == nil {
			return nil, errors.New("checkVaccination: missing state commitment")
		}
		return &circuits.CheckVaccinationCircuit{
			State:      tx.OldState,
			ValidFrom:  new(big.Int).SetUint64(tx.Network.TimestampLower),
			ValidUntil: new(big.Int).SetUint64(tx.Network.TimestampUpper),
		}, nil
	}
	return nil, fmt.Errorf("no circuit for %s", tx.Method)
}

func toSlots(s state.Snapshot) circuits.Slots {
	issuer, _ := s.Issuer()
	count, _ := s.VaccinationCount()
	last, _ := s.LastVaccinationTime()
	x, y := issuer.Coordinates()
	return circuits.Slots{
		IssuerX:             x,
		IssuerY:             y,
		VaccinationCount:    new(big.Int).SetUint64(count),
		LastVaccinationTime: new(big.Int).SetUint64(last),
	}
}
