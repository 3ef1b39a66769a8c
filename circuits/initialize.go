package circuits

import (
	"math/big"

	"github.com/consensys/gnark/frontend"
)

// InitializeCircuit proves that the new state holds the registered issuer, a zero count and
// a zero timestamp. The issuer is a compile-time constant, not an input.
type InitializeCircuit struct {
	NewState frontend.Variable `gnark:",public"`

	IssuerX *big.Int `gnark:"-"`
	IssuerY *big.Int `gnark:"-"`
}

func (c *InitializeCircuit) Define(api frontend.API) error {
	post := Slots{
		IssuerX:             c.IssuerX,
		IssuerY:             c.IssuerY,
		VaccinationCount:    0,
		LastVaccinationTime: 0,
	}
	return post.AssertCommitted(api, c.NewState)
}
