package circuits

import (
	tedwards "github.com/consensys/gnark-crypto/ecc/twistededwards"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/algebra/native/twistededwards"
)

// AssertAuthorized derives signer*Base on Baby-Jubjub and asserts it equals issuer.
func AssertAuthorized(api frontend.API, signer frontend.Variable, issuer twistededwards.Point) error {
	curve, err := twistededwards.NewEdCurve(api, tedwards.BN254)
	if err != nil {
		return err
	}
	params := curve.Params()
	base := twistededwards.Point{X: params.Base[0], Y: params.Base[1]}

	derived := curve.ScalarMul(base, signer)
	api.AssertIsEqual(derived.X, issuer.X)
	api.AssertIsEqual(derived.Y, issuer.Y)
	return nil
}
