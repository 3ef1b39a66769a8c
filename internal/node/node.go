// Package node wires a local zkVaccination node: state store, ledger, proof backend and
// the contract client, from a config.Node.
package node

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/crypto/sha3"

	"github.com/ignasirv/zkVaccionation/identity"
	"github.com/ignasirv/zkVaccionation/internal/platform/config"
	"github.com/ignasirv/zkVaccionation/keys"
	"github.com/ignasirv/zkVaccionation/ledger"
	"github.com/ignasirv/zkVaccionation/proof"
	"github.com/ignasirv/zkVaccionation/state"
	"github.com/ignasirv/zkVaccionation/verifier"
	"github.com/ignasirv/zkVaccionation/zkapp"
)

type Node struct {
	Issuer   identity.Credential
	Store    state.Store
	Ledger   *ledger.Local
	Contract *zkapp.Contract
	// Keys is nil unless the node proves transactions.
	Keys     *keys.Set
	Registry *prometheus.Registry
}

type Option func(*options)

type options struct {
	clock ledger.Clock
}

// WithClock replaces the wall clock of the ledger.
func WithClock(c ledger.Clock) Option {
	return func(o *options) { o.clock = c }
}

// New opens the state store, loads (or generates) Groth16 keys when cfg.Prove is set and
// deploys the contract if the store is empty.
func New(ctx context.Context, cfg config.Node, logger *slog.Logger, opts ...Option) (*Node, error) {
	o := options{clock: ledger.SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	account, err := AccountKey(cfg.AccountSeed)
	if err != nil {
		return nil, err
	}
	store, err := openStore(cfg.LevelDBPath)
	if err != nil {
		return nil, err
	}

	n := &Node{
		Issuer:   identity.FromSeed(cfg.IssuerSeed),
		Store:    store,
		Registry: prometheus.NewRegistry(),
	}
	n.Registry.MustRegister(collectors.NewGoCollector())

	ledgerOpts := []ledger.Option{
		ledger.WithClock(o.clock),
		ledger.WithAccount(&account.PublicKey),
		ledger.WithMetrics(ledger.NewMetrics(n.Registry)),
		ledger.WithLogger(logger),
	}
	if cfg.BlockInterval > 0 {
		ledgerOpts = append(ledgerOpts, ledger.WithBlockInterval(cfg.BlockInterval))
	}
	contractOpts := []zkapp.Option{zkapp.WithLogger(logger)}

	if cfg.Prove {
		n.Keys, err = LoadOrSetupKeys(ctx, cfg.KeyDir, n.Issuer.PublicKey(), logger)
		if err != nil {
			store.Close()
			return nil, err
		}
		ledgerOpts = append(ledgerOpts, ledger.WithVerifier(verifier.New(n.Keys)))
		contractOpts = append(contractOpts, zkapp.WithProver(proof.NewProver(n.Keys, logger)))
	} else {
		contractOpts = append(contractOpts, zkapp.WithAccountKey(account))
	}

	n.Ledger = ledger.NewLocal(store, ledgerOpts...)
	n.Contract, err = zkapp.New(n.Ledger, n.Issuer.PublicKey(), contractOpts...)
	if err != nil {
		store.Close()
		return nil, err
	}

	if _, err := store.Load(ctx); errors.Is(err, state.ErrUninitialized) {
		if _, err := n.Contract.Deploy(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("deploy contract: %w", err)
		}
	} else if err != nil {
		store.Close()
		return nil, err
	}
	return n, nil
}

func (n *Node) Close() error {
	return n.Store.Close()
}

// LoadOrSetupKeys reads the key set from dir, running the Groth16 setup and saving the
// result when dir holds no keys yet. Keys saved for another issuer are an error.
func LoadOrSetupKeys(ctx context.Context, dir string, issuer identity.PublicKey, logger *slog.Logger) (*keys.Set, error) {
	set, err := keys.Load(dir, issuer)
	if err == nil {
		logger.InfoContext(ctx, "loaded groth16 keys", "dir", dir)
		return set, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	logger.InfoContext(ctx, "no keys found, running setup", "dir", dir)
	set, err = keys.Setup(ctx, issuer, logger)
	if err != nil {
		return nil, err
	}
	if err := set.Save(dir); err != nil {
		return nil, err
	}
	return set, nil
}

// AccountKey derives the zkApp account key from seed, or draws one when seed is empty.
func AccountKey(seed string) (*eddsa.PrivateKey, error) {
	var r io.Reader = rand.Reader
	if seed != "" {
		h := sha3.NewLegacyKeccak256()
		h.Write([]byte(seed))
		r = bytes.NewReader(h.Sum(nil))
	}
	key, err := eddsa.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("generate account key: %w", err)
	}
	return key, nil
}

func openStore(path string) (state.Store, error) {
	if path == "" {
		return state.NewMemoryStore(), nil
	}
	return state.NewLevelStore(path)
}
