package circuits

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/algebra/native/twistededwards"
	"github.com/consensys/gnark/std/rangecheck"
)

// AddVaccinationCircuit proves one certified dose:
//
//	OldState = H(issuer, n, t0)
//	SignerKey * Base = issuer
//	t0 <= Timestamp
//	NewState = H(issuer, n+1, Timestamp)
//
// with n+1 and Timestamp inside 64 bits.
type AddVaccinationCircuit struct {
	OldState  frontend.Variable `gnark:",public"`
	NewState  frontend.Variable `gnark:",public"`
	Timestamp frontend.Variable `gnark:",public"` // network time the proof is bound to

	Pre       Slots
	SignerKey frontend.Variable
}

func (c *AddVaccinationCircuit) Define(api frontend.API) error {
	if err := c.Pre.AssertCommitted(api, c.OldState); err != nil {
		return err
	}

	issuer := twistededwards.Point{X: c.Pre.IssuerX, Y: c.Pre.IssuerY}
	if err := AssertAuthorized(api, c.SignerKey, issuer); err != nil {
		return err
	}

	rc := rangecheck.New(api)
	rc.Check(c.Pre.VaccinationCount, CountBits)
	count := api.Add(c.Pre.VaccinationCount, 1)
	rc.Check(count, CountBits)

	rc.Check(c.Pre.LastVaccinationTime, TimestampBits)
	rc.Check(c.Timestamp, TimestampBits)
	// wraps around the field unless LastVaccinationTime <= Timestamp
	rc.Check(api.Sub(c.Timestamp, c.Pre.LastVaccinationTime), TimestampBits)

	post := Slots{
		IssuerX:             c.Pre.IssuerX,
		IssuerY:             c.Pre.IssuerY,
		VaccinationCount:    count,
		LastVaccinationTime: c.Timestamp,
	}
	return post.AssertCommitted(api, c.NewState)
}
