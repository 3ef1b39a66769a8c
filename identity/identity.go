// Package identity is the credential provider behind the issuer authorization check.
//
// A credential is a scalar on the BN254 twisted Edwards (Baby-Jubjub) curve and its public
// identity is scalar*Base. The same derivation is re-done inside the circuits with
// twistededwards.Curve.ScalarMul, so a credential must stay below the subgroup order.
package identity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/sha3"
)

var (
	ErrUnauthorized      = errors.New("signer is not the registered issuer")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrInvalidPublicKey  = errors.New("invalid public key")
)

// Credential is the private signing credential of an issuer.
type Credential struct {
	scalar [fr.Bytes]byte // big-endian, in [1, order)
}

// PublicKey is the public identity derived from a Credential.
type PublicKey struct {
	point twistededwards.PointAffine
}

func order() *big.Int {
	params := twistededwards.GetEdwardsCurve()
	return new(big.Int).Set(&params.Order)
}

// Generate draws a fresh credential from r (crypto/rand when r is nil).
func Generate(r io.Reader) (Credential, error) {
	if r == nil {
		r = rand.Reader
	}
	upper := new(big.Int).Sub(order(), big.NewInt(1))
	k, err := rand.Int(r, upper)
	if err != nil {
		return Credential{}, fmt.Errorf("draw scalar: %w", err)
	}
	return FromScalar(k.Add(k, big.NewInt(1)))
}

// FromSeed derives a deterministic credential: Keccak256(seed) reduced into [1, order).
func FromSeed(seed string) Credential {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(seed))
	k := new(big.Int).SetBytes(h.Sum(nil))

	upper := new(big.Int).Sub(order(), big.NewInt(1))
	k.Mod(k, upper).Add(k, big.NewInt(1))

	var c Credential
	k.FillBytes(c.scalar[:])
	return c
}

// FromScalar wraps k as a credential. k must lie in [1, order).
func FromScalar(k *big.Int) (Credential, error) {
	if k == nil || k.Sign() <= 0 || k.Cmp(order()) >= 0 {
		return Credential{}, fmt.Errorf("%w: scalar out of range", ErrInvalidCredential)
	}
	var c Credential
	k.FillBytes(c.scalar[:])
	return c, nil
}

// ParseCredential decodes the 0x-prefixed hex form produced by Credential.String.
func ParseCredential(s string) (Credential, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if len(b) != fr.Bytes {
		return Credential{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidCredential, fr.Bytes, len(b))
	}
	return FromScalar(new(big.Int).SetBytes(b))
}

// Scalar returns a copy of the credential scalar.
func (c Credential) Scalar() *big.Int {
	return new(big.Int).SetBytes(c.scalar[:])
}

func (c Credential) String() string {
	return hexutil.Encode(c.scalar[:])
}

// PublicKey derives the public identity of c.
func (c Credential) PublicKey() PublicKey {
	return DerivePublicIdentity(c)
}

// DerivePublicIdentity computes scalar*Base.
func DerivePublicIdentity(c Credential) PublicKey {
	params := twistededwards.GetEdwardsCurve()
	var pk PublicKey
	pk.point.ScalarMultiplication(&params.Base, c.Scalar())
	return pk
}

// Authorize reports ErrUnauthorized unless the identity derived from signer equals issuer.
func Authorize(signer Credential, issuer PublicKey) error {
	if !signer.PublicKey().Equal(issuer) {
		return ErrUnauthorized
	}
	return nil
}

// NewPublicKey builds a public key from affine coordinates and checks it lies on the curve.
func NewPublicKey(x, y *big.Int) (PublicKey, error) {
	var pk PublicKey
	pk.point.X.SetBigInt(x)
	pk.point.Y.SetBigInt(y)
	if !pk.point.IsOnCurve() {
		return PublicKey{}, ErrInvalidPublicKey
	}
	return pk, nil
}

// ParsePublicKey decodes the compressed 0x-prefixed hex form produced by PublicKey.String.
func ParsePublicKey(s string) (PublicKey, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	var pk PublicKey
	if _, err := pk.point.SetBytes(b); err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pk, nil
}

// Coordinates returns the affine coordinates as field integers.
func (p PublicKey) Coordinates() (x, y *big.Int) {
	return p.point.X.BigInt(new(big.Int)), p.point.Y.BigInt(new(big.Int))
}

// Elements returns the affine coordinates as field elements.
func (p PublicKey) Elements() (x, y fr.Element) {
	return p.point.X, p.point.Y
}

func (p PublicKey) Equal(other PublicKey) bool {
	return p.point.Equal(&other.point)
}

// IsZero reports whether p is the zero value (not a curve point).
func (p PublicKey) IsZero() bool {
	return p.point.X.IsZero() && p.point.Y.IsZero()
}

func (p PublicKey) String() string {
	b := p.point.Bytes()
	return hexutil.Encode(b[:])
}

func (p PublicKey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *PublicKey) UnmarshalText(text []byte) error {
	pk, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*p = pk
	return nil
}
