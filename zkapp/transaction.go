package zkapp

import (
	"fmt"
	"math"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	frhashmimc "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"github.com/consensys/gnark-crypto/hash"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/google/uuid"

	"github.com/ignasirv/zkVaccionation/circuits"
	"github.com/ignasirv/zkVaccionation/identity"
	"github.com/ignasirv/zkVaccionation/state"
)

// NetworkPrecondition bounds the network timestamp at which the transaction may commit.
type NetworkPrecondition struct {
	TimestampLower uint64
	TimestampUpper uint64
}

// Unconstrained accepts any network time.
func Unconstrained() NetworkPrecondition {
	return NetworkPrecondition{TimestampLower: 0, TimestampUpper: math.MaxUint64}
}

// At pins the network time to ts.
func At(ts uint64) NetworkPrecondition {
	return NetworkPrecondition{TimestampLower: ts, TimestampUpper: ts}
}

func (p NetworkPrecondition) Holds(now uint64) bool {
	return p.TimestampLower <= now && now <= p.TimestampUpper
}

// Witness holds the private inputs of a transaction. The prover drops it once the proof exists.
type Witness struct {
	Pre    state.Snapshot
	Signer identity.Credential
}

// Proof is a Groth16 proof and the public inputs it was generated for, as decimal strings.
type Proof struct {
	Groth16      groth16.Proof
	PublicInputs []string
}

// Transaction is one contract method call: what it read, what it writes, and the
// authorization (proof and/or account signature) the ledger checks before committing.
type Transaction struct {
	ID            uuid.UUID
	Method        circuits.Method
	Preconditions []state.Token
	Network       NetworkPrecondition
	Writes        []state.Write

	// OldState is the state commitment the transaction read; nil for initialize.
	OldState *big.Int
	// NewState is the commitment after Writes; equal to OldState for read-only calls.
	NewState *big.Int

	Witness   *Witness
	Proof     *Proof
	Signature []byte
}

func newTransaction(m circuits.Method) *Transaction {
	return &Transaction{
		ID:      uuid.New(),
		Method:  m,
		Network: Unconstrained(),
	}
}

func (tx *Transaction) bind(tok state.Token) {
	tx.Preconditions = append(tx.Preconditions, tok)
}

// CheckNetwork evaluates the network precondition against now.
func (tx *Transaction) CheckNetwork(now uint64) error {
	if tx.Network.Holds(now) {
		return nil
	}
	if tx.Method == circuits.MethodCheckVaccination {
		return fmt.Errorf("%w: %w: %d not in [%d, %d]", ErrInvalidCertificate, ErrOutsideWindow,
			now, tx.Network.TimestampLower, tx.Network.TimestampUpper)
	}
	return fmt.Errorf("%w: network time %d, transaction bound to [%d, %d]", ErrStale,
		now, tx.Network.TimestampLower, tx.Network.TimestampUpper)
}

// TransitionHash is the message an account signature covers:
//
//	MiMC(method, OldState, NewState, TimestampLower, TimestampUpper)
func (tx *Transaction) TransitionHash() []byte {
	var elems [5]fr.Element
	elems[0].SetUint64(uint64(tx.Method))
	if tx.OldState != nil {
		elems[1].SetBigInt(tx.OldState)
	}
	if tx.NewState != nil {
		elems[2].SetBigInt(tx.NewState)
	}
	elems[3].SetUint64(tx.Network.TimestampLower)
	elems[4].SetUint64(tx.Network.TimestampUpper)

	h := frhashmimc.NewMiMC()
	for i := range elems {
		h.Write(elems[i].Marshal())
	}
	return h.Sum(nil)
}

// Sign attaches an EdDSA signature of the zkApp account over TransitionHash.
func (tx *Transaction) Sign(key *eddsa.PrivateKey) error {
	sig, err := key.Sign(tx.TransitionHash(), hash.MIMC_BN254.New())
	if err != nil {
		return fmt.Errorf("sign %s transaction: %w", tx.Method, err)
	}
	tx.Signature = sig
	return nil
}

// VerifySignature checks the account signature against pub.
func (tx *Transaction) VerifySignature(pub *eddsa.PublicKey) (bool, error) {
	if len(tx.Signature) == 0 {
		return false, nil
	}
	return pub.Verify(tx.Signature, tx.TransitionHash(), hash.MIMC_BN254.New())
}
