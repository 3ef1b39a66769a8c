package state

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	frhashmimc "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	"github.com/ignasirv/zkVaccionation/identity"
)

// ComputeStateHash computes the public state commitment enforced by every circuit:
//
//	S = MiMC(IssuerX, IssuerY, VaccinationCount, LastVaccinationTime)
//
// The write order must match circuits.Slots.Hash.
func ComputeStateHash(issuer identity.PublicKey, count, lastTime uint64) *big.Int {
	x, y := issuer.Elements()
	var c, t fr.Element
	c.SetUint64(count)
	t.SetUint64(lastTime)

	h := frhashmimc.NewMiMC()
	for _, fe := range []fr.Element{x, y, c, t} {
		h.Write(fe.Marshal())
	}

	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out.BigInt(new(big.Int))
}
