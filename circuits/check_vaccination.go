package circuits

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/rangecheck"
)

// CheckVaccinationCircuit proves the certificate predicate over the committed state:
// at least two doses, and the validity window [ValidFrom, ValidUntil] starts at the last
// dose and spans ValidityWindow. The network checks its own clock against the window.
type CheckVaccinationCircuit struct {
	State      frontend.Variable `gnark:",public"`
	ValidFrom  frontend.Variable `gnark:",public"`
	ValidUntil frontend.Variable `gnark:",public"`

	Slots Slots
}

func (c *CheckVaccinationCircuit) Define(api frontend.API) error {
	if err := c.Slots.AssertCommitted(api, c.State); err != nil {
		return err
	}

	rc := rangecheck.New(api)
	rc.Check(c.Slots.VaccinationCount, CountBits)
	// count > 1
	rc.Check(api.Sub(c.Slots.VaccinationCount, 2), CountBits)

	rc.Check(c.Slots.LastVaccinationTime, TimestampBits)
	api.AssertIsEqual(c.ValidFrom, c.Slots.LastVaccinationTime)
	api.AssertIsEqual(c.ValidUntil, api.Add(c.Slots.LastVaccinationTime, ValidityWindow))
	return nil
}
