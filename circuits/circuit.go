// Package circuits holds the constraint systems of the vaccination contract.
//
// Each contract method is one circuit. Slot values are private inputs bound to a public MiMC
// state hash, so a proof is only valid against the state it was built from.
package circuits

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/frontend"
	mimc "github.com/consensys/gnark/std/hash/mimc"
)

// Curve is the pairing curve of every circuit.
const Curve = ecc.BN254

const (
	// ValidityWindow is nine months in milliseconds.
	ValidityWindow uint64 = 23_668_200_000

	// CountBits and TimestampBits bound the integer slots.
	CountBits     = 64
	TimestampBits = 64
)

// Method identifies a contract method and its circuit.
type Method uint8

const (
	MethodInitialize Method = iota + 1
	MethodAddVaccination
	MethodCheckVaccination
)

// Methods lists every contract method.
func Methods() []Method {
	return []Method{MethodInitialize, MethodAddVaccination, MethodCheckVaccination}
}

func (m Method) String() string {
	switch m {
	case MethodInitialize:
		return "initialize"
	case MethodAddVaccination:
		return "addVaccination"
	case MethodCheckVaccination:
		return "checkVaccination"
	}
	return fmt.Sprintf("method(%d)", uint8(m))
}

// Blank returns the circuit definition of m used for compilation. The registered issuer
// coordinates are compiled into the initialize circuit as constants.
func Blank(m Method, issuerX, issuerY *big.Int) (frontend.Circuit, error) {
	switch m {
	case MethodInitialize:
		return &InitializeCircuit{IssuerX: issuerX, IssuerY: issuerY}, nil
	case MethodAddVaccination:
		return &AddVaccinationCircuit{}, nil
	case MethodCheckVaccination:
		return &CheckVaccinationCircuit{}, nil
	}
	return nil, fmt.Errorf("no circuit for %s", m)
}

// Slots are the contract slots as circuit variables.
type Slots struct {
	IssuerX             frontend.Variable
	IssuerY             frontend.Variable
	VaccinationCount    frontend.Variable
	LastVaccinationTime frontend.Variable
}

// Hash computes MiMC(IssuerX, IssuerY, VaccinationCount, LastVaccinationTime).
// The order must match state.ComputeStateHash.
func (s Slots) Hash(api frontend.API) (frontend.Variable, error) {
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return nil, err
	}
	hasher.Write(s.IssuerX, s.IssuerY, s.VaccinationCount, s.LastVaccinationTime)
	return hasher.Sum(), nil
}

// AssertCommitted binds the slot values to the public state hash.
func (s Slots) AssertCommitted(api frontend.API, commitment frontend.Variable) error {
	h, err := s.Hash(api)
	if err != nil {
		return err
	}
	api.AssertIsEqual(h, commitment)
	return nil
}
