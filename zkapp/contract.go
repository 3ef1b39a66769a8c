// Package zkapp is the transition and predicate engine of the vaccination contract.
//
// Every method reads the committed slots, binds each read with a state.Token, evaluates all
// of its assertions eagerly and returns a Transaction describing the transition. Nothing is
// written here: the network commits the transaction once its proof or signature checks out.
package zkapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"github.com/google/uuid"

	"github.com/ignasirv/zkVaccionation/circuits"
	"github.com/ignasirv/zkVaccionation/identity"
	"github.com/ignasirv/zkVaccionation/state"
)

// Receipt statuses.
const (
	StatusCommitted = "committed"
	StatusRejected  = "rejected"
)

// Receipt is the network's answer to a submitted transaction.
type Receipt struct {
	TxID      uuid.UUID `json:"txId"`
	Method    string    `json:"method"`
	Status    string    `json:"status"`
	Included  bool      `json:"included"`
	Finalized bool      `json:"finalized"`
	Errors    []string  `json:"errors,omitempty"`
}

// Network orders and commits transactions and serves the committed state and time.
type Network interface {
	State(ctx context.Context) (state.Snapshot, error)
	// Timestamp is the current network time in milliseconds.
	Timestamp(ctx context.Context) (uint64, error)
	// Deploy commits the initialize transaction of a fresh contract.
	Deploy(ctx context.Context, tx *Transaction) (Receipt, error)
	Submit(ctx context.Context, tx *Transaction) (Receipt, error)
}

// Prover attaches a proof to a transaction.
type Prover interface {
	Prove(ctx context.Context, tx *Transaction) error
}

// Contract builds and sends the method calls of one deployed vaccination contract.
type Contract struct {
	network Network
	issuer  identity.PublicKey
	prover  Prover
	account *eddsa.PrivateKey
	logger  *slog.Logger
}

type Option func(*Contract)

// WithProver makes every sent transaction carry a Groth16 proof.
func WithProver(p Prover) Option {
	return func(c *Contract) { c.prover = p }
}

// WithAccountKey makes every sent transaction carry the zkApp account signature.
func WithAccountKey(key *eddsa.PrivateKey) Option {
	return func(c *Contract) { c.account = key }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Contract) { c.logger = logger }
}

// New binds a contract to network. issuer is the registered authority written by initialize.
func New(network Network, issuer identity.PublicKey, opts ...Option) (*Contract, error) {
	if network == nil {
		return nil, errors.New("zkapp: nil network")
	}
	if issuer.IsZero() {
		return nil, fmt.Errorf("zkapp: %w", identity.ErrInvalidPublicKey)
	}
	c := &Contract{
		network: network,
		issuer:  issuer,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issuer returns the registered authority this contract initializes with.
func (c *Contract) Issuer() identity.PublicKey {
	return c.issuer
}

// State returns the committed slots.
func (c *Contract) State(ctx context.Context) (state.Snapshot, error) {
	return c.network.State(ctx)
}

// Initialize writes the registered issuer and zeroes both counters. It reads nothing, so
// calling it on an advanced contract resets progress; the network only accepts it once.
func (c *Contract) Initialize(_ context.Context) (*Transaction, error) {
	tx := newTransaction(circuits.MethodInitialize)
	tx.Writes = []state.Write{
		state.SetIssuer(c.issuer),
		state.SetVaccinationCount(0),
		state.SetLastVaccinationTime(0),
	}
	tx.NewState = state.ComputeStateHash(c.issuer, 0, 0)
	tx.Witness = &Witness{}
	return tx, nil
}

// AddVaccination records one dose certified by signer at the current network time.
func (c *Contract) AddVaccination(ctx context.Context, signer identity.Credential) (*Transaction, error) {
	snap, err := c.network.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	now, err := c.network.Timestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("read network time: %w", err)
	}

	tx := newTransaction(circuits.MethodAddVaccination)
	var checks Assertions

	issuer, tok := snap.Issuer()
	tx.bind(tok)
	checks.Check(identity.Authorize(signer, issuer))

	count, tok := snap.VaccinationCount()
	tx.bind(tok)
	checks.That(count < math.MaxUint64, fmt.Errorf("%w: vaccinationCount %d", ErrOverflow, count))

	last, tok := snap.LastVaccinationTime()
	tx.bind(tok)
	tx.Network = At(now)
	checks.That(last <= now, fmt.Errorf("%w: network time %d before last dose %d", ErrStale, now, last))

	if err := checks.Err(); err != nil {
		return nil, &RejectionError{Method: tx.Method, Err: err}
	}

	tx.Writes = []state.Write{
		state.SetVaccinationCount(count + 1),
		state.SetLastVaccinationTime(now),
	}
	next, err := snap.Apply(tx.Writes)
	if err != nil {
		return nil, err
	}
	tx.OldState = snap.Commitment()
	tx.NewState = next.Commitment()
	tx.Witness = &Witness{Pre: snap, Signer: signer}
	return tx, nil
}

// CheckVaccination evaluates the certificate predicate: more than one dose and the network
// time inside [lastVaccinationTime, lastVaccinationTime+ValidityWindow]. It writes nothing.
func (c *Contract) CheckVaccination(ctx context.Context) (*Transaction, error) {
	snap, err := c.network.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	now, err := c.network.Timestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("read network time: %w", err)
	}

	tx := newTransaction(circuits.MethodCheckVaccination)
	var checks Assertions

	count, tok := snap.VaccinationCount()
	tx.bind(tok)
	checks.That(count > 1, fmt.Errorf("%w: %w: count %d", ErrInvalidCertificate, ErrNotEnoughDoses, count))

	last, tok := snap.LastVaccinationTime()
	tx.bind(tok)
	checks.That(last <= math.MaxUint64-circuits.ValidityWindow,
		fmt.Errorf("%w: lastVaccinationTime %d", ErrOverflow, last))
	expiration := last + circuits.ValidityWindow
	tx.Network = NetworkPrecondition{TimestampLower: last, TimestampUpper: expiration}
	checks.Check(tx.CheckNetwork(now))

	if err := checks.Err(); err != nil {
		return nil, &RejectionError{Method: tx.Method, Err: err}
	}

	commitment := snap.Commitment()
	tx.OldState = commitment
	tx.NewState = commitment
	tx.Witness = &Witness{Pre: snap}
	return tx, nil
}

// Authorize attaches a proof and/or an account signature, depending on the options.
// The proof comes first so the signature covers a transaction whose witness is gone.
func (c *Contract) Authorize(ctx context.Context, tx *Transaction) error {
	if c.prover != nil {
		if err := c.prover.Prove(ctx, tx); err != nil {
			return fmt.Errorf("prove %s: %w", tx.Method, err)
		}
	}
	if c.account != nil {
		if err := tx.Sign(c.account); err != nil {
			return err
		}
	}
	return nil
}

// Deploy initializes the contract on the network.
func (c *Contract) Deploy(ctx context.Context) (Receipt, error) {
	tx, err := c.Initialize(ctx)
	if err != nil {
		return Receipt{}, err
	}
	if err := c.Authorize(ctx, tx); err != nil {
		return Receipt{}, err
	}
	c.logger.InfoContext(ctx, "deploying contract", "tx_id", tx.ID, "issuer", c.issuer.String())
	return c.network.Deploy(ctx, tx)
}

// Send authorizes tx and submits it.
func (c *Contract) Send(ctx context.Context, tx *Transaction) (Receipt, error) {
	if err := c.Authorize(ctx, tx); err != nil {
		return Receipt{}, err
	}
	c.logger.InfoContext(ctx, "sending transaction", "tx_id", tx.ID, "method", tx.Method.String())
	return c.network.Submit(ctx, tx)
}
