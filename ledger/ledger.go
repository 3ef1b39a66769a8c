// Package ledger is a single-node network for the vaccination contract. It orders
// transactions, checks their authorization and preconditions, and commits them to a
// state.Store. Committed transactions are final immediately.
//
// The network timestamp is the time of the open block, not the wall clock. A block opens
// on the first time read after the previous one closed and keeps its timestamp until a
// transaction commits in it or it outlives the block interval, so a transaction bound to
// the timestamp it read stays committable while it is being proved.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ignasirv/zkVaccionation/circuits"
	"github.com/ignasirv/zkVaccionation/state"
	"github.com/ignasirv/zkVaccionation/verifier"
	"github.com/ignasirv/zkVaccionation/zkapp"
)

var (
	ErrMalformed       = errors.New("malformed transaction")
	ErrMissingAuth     = errors.New("transaction lacks the required authorization")
	ErrBadSignature    = errors.New("account signature is invalid")
	ErrNoProofVerifier = errors.New("ledger cannot verify proofs")
)

// DefaultBlockInterval is how long an open block keeps its timestamp.
const DefaultBlockInterval = 10 * time.Second

var tracer = otel.Tracer("github.com/ignasirv/zkVaccionation/ledger")

// ProofVerifier checks the proof attached to a transaction.
type ProofVerifier interface {
	Verify(tx *zkapp.Transaction) error
}

// block is the open block; a zero value means none is open.
type block struct {
	open bool
	time uint64
}

// Local is an in-process network. Submissions are serialized.
type Local struct {
	mu       sync.Mutex
	store    state.Store
	clock    Clock
	interval time.Duration
	block    block
	verifier ProofVerifier
	account  *eddsa.PublicKey
	perms    Permissions
	metrics  *Metrics
	logger   *slog.Logger
}

type Option func(*Local)

func WithClock(c Clock) Option {
	return func(l *Local) { l.clock = c }
}

// WithBlockInterval bounds how long a block keeps its timestamp. Zero makes every time
// read return the clock.
func WithBlockInterval(d time.Duration) Option {
	return func(l *Local) { l.interval = d }
}

// WithVerifier enables proof authorization.
func WithVerifier(v ProofVerifier) Option {
	return func(l *Local) { l.verifier = v }
}

// WithAccount sets the zkApp account key that signature authorizations are checked against.
func WithAccount(pub *eddsa.PublicKey) Option {
	return func(l *Local) { l.account = pub }
}

func WithPermissions(p Permissions) Option {
	return func(l *Local) { l.perms = p }
}

func WithMetrics(m *Metrics) Option {
	return func(l *Local) { l.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Local) { l.logger = logger }
}

func NewLocal(store state.Store, opts ...Option) *Local {
	l := &Local{
		store:    store,
		clock:    SystemClock{},
		interval: DefaultBlockInterval,
		perms:    DefaultPermissions(),
		metrics:  NewMetrics(nil),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ zkapp.Network = (*Local)(nil)

func (l *Local) State(ctx context.Context) (state.Snapshot, error) {
	return l.store.Load(ctx)
}

// Timestamp returns the timestamp of the open block, opening one if needed.
func (l *Local) Timestamp(_ context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blockTime(), nil
}

func (l *Local) blockTime() uint64 {
	now := l.clock.Now()
	age := uint64(l.interval.Milliseconds())
	if !l.block.open || now < l.block.time || now-l.block.time >= age {
		l.block = block{open: true, time: now}
	}
	return l.block.time
}

// Deploy commits the initialize transaction. It is accepted exactly once per store.
func (l *Local) Deploy(ctx context.Context, tx *zkapp.Transaction) (zkapp.Receipt, error) {
	ctx, span := l.startSpan(ctx, "ledger.Deploy", tx)
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.metrics.Submitted.WithLabelValues(tx.Method.String()).Inc()

	if tx.Method != circuits.MethodInitialize {
		return l.reject(ctx, span, tx, fmt.Errorf("%w: deploy expects initialize, got %s", ErrMalformed, tx.Method))
	}
	_, err := l.store.Load(ctx)
	switch {
	case err == nil:
		return l.reject(ctx, span, tx, zkapp.ErrAlreadyInitialized)
	case !errors.Is(err, state.ErrUninitialized):
		return l.reject(ctx, span, tx, err)
	}
	return l.apply(ctx, span, tx, state.Snapshot{})
}

// Submit validates tx against the committed state and the network clock and commits it.
func (l *Local) Submit(ctx context.Context, tx *zkapp.Transaction) (zkapp.Receipt, error) {
	ctx, span := l.startSpan(ctx, "ledger.Submit", tx)
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.metrics.Submitted.WithLabelValues(tx.Method.String()).Inc()

	snap, err := l.store.Load(ctx)
	if err != nil {
		return l.reject(ctx, span, tx, err)
	}
	if tx.Method == circuits.MethodInitialize {
		return l.reject(ctx, span, tx, zkapp.ErrAlreadyInitialized)
	}
	if tx.OldState == nil || tx.OldState.Cmp(snap.Commitment()) != 0 {
		return l.reject(ctx, span, tx, fmt.Errorf("%w: transaction built against another state", zkapp.ErrStale))
	}
	return l.apply(ctx, span, tx, snap)
}

func (l *Local) apply(ctx context.Context, span trace.Span, tx *zkapp.Transaction, base state.Snapshot) (zkapp.Receipt, error) {
	next, err := base.Apply(tx.Writes)
	if err != nil {
		return l.reject(ctx, span, tx, fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	if tx.NewState == nil || tx.NewState.Cmp(next.Commitment()) != 0 {
		return l.reject(ctx, span, tx, fmt.Errorf("%w: writes do not match the new state commitment", ErrMalformed))
	}
	if tx.Method == circuits.MethodAddVaccination {
		if err := checkDoseTime(tx, next); err != nil {
			return l.reject(ctx, span, tx, err)
		}
	}
	if err := l.authorize(ctx, tx); err != nil {
		return l.reject(ctx, span, tx, err)
	}
	blockTime := l.blockTime()
	if err := tx.CheckNetwork(blockTime); err != nil {
		return l.reject(ctx, span, tx, err)
	}

	committed, err := l.store.Commit(ctx, tx.Preconditions, tx.Writes)
	if err != nil {
		return l.reject(ctx, span, tx, err)
	}

	l.block = block{}

	count, _ := committed.VaccinationCount()
	last, _ := committed.LastVaccinationTime()
	l.metrics.Committed.WithLabelValues(tx.Method.String()).Inc()
	l.metrics.VaccinationCount.Set(float64(count))
	l.metrics.LastVaccinationTime.Set(float64(last))
	l.logger.InfoContext(ctx, "transaction committed",
		"tx_id", tx.ID,
		"method", tx.Method.String(),
		"block_time", blockTime,
		"vaccination_count", count,
		"last_vaccination_time", last,
	)
	return zkapp.Receipt{
		TxID:      tx.ID,
		Method:    tx.Method.String(),
		Status:    zkapp.StatusCommitted,
		Included:  true,
		Finalized: true,
	}, nil
}

// checkDoseTime requires an addVaccination to be bound to exactly one network timestamp
// and to record that timestamp. The proof only covers the lower bound.
func checkDoseTime(tx *zkapp.Transaction, next state.Snapshot) error {
	if tx.Network.TimestampLower != tx.Network.TimestampUpper {
		return fmt.Errorf("%w: addVaccination bound to [%d, %d], not a single timestamp",
			ErrMalformed, tx.Network.TimestampLower, tx.Network.TimestampUpper)
	}
	if last, _ := next.LastVaccinationTime(); last != tx.Network.TimestampLower {
		return fmt.Errorf("%w: lastVaccinationTime %d, transaction bound to %d",
			ErrMalformed, last, tx.Network.TimestampLower)
	}
	return nil
}

// authorize checks the attached proof, if any, then holds the transaction to the EditState
// permission. Read-only calls are held to the same requirement.
func (l *Local) authorize(ctx context.Context, tx *zkapp.Transaction) error {
	proved := false
	if tx.Proof != nil {
		if l.verifier == nil {
			return ErrNoProofVerifier
		}
		start := time.Now()
		err := l.verifier.Verify(tx)
		l.metrics.VerifyDurationMs.WithLabelValues(tx.Method.String()).
			Observe(float64(time.Since(start).Milliseconds()))
		if err != nil {
			return err
		}
		proved = true
	}

	signed := false
	if len(tx.Signature) > 0 {
		if l.account == nil {
			return fmt.Errorf("%w: no account key registered", ErrBadSignature)
		}
		ok, err := tx.VerifySignature(l.account)
		if err != nil || !ok {
			return ErrBadSignature
		}
		signed = true
	}

	var ok bool
	switch l.perms.EditState {
	case AuthNone:
		ok = true
	case AuthProof:
		ok = proved
	case AuthSignature:
		ok = signed
	case AuthProofOrSignature:
		ok = proved || signed
	}
	if !ok {
		l.logger.DebugContext(ctx, "missing authorization", "tx_id", tx.ID, "requires", l.perms.EditState.String())
		return fmt.Errorf("%w: edit state requires %s", ErrMissingAuth, l.perms.EditState)
	}
	return nil
}

func (l *Local) reject(ctx context.Context, span trace.Span, tx *zkapp.Transaction, err error) (zkapp.Receipt, error) {
	reason := Reason(err)
	l.metrics.Rejected.WithLabelValues(tx.Method.String(), reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	l.logger.WarnContext(ctx, "transaction rejected",
		"tx_id", tx.ID,
		"method", tx.Method.String(),
		"reason", reason,
		"error", err,
	)
	err = &zkapp.RejectionError{Method: tx.Method, Err: err}
	return zkapp.Receipt{
		TxID:   tx.ID,
		Method: tx.Method.String(),
		Status: zkapp.StatusRejected,
		Errors: []string{err.Error()},
	}, err
}

func (l *Local) startSpan(ctx context.Context, name string, tx *zkapp.Transaction) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("method", tx.Method.String()),
		attribute.String("tx_id", tx.ID.String()),
	))
}

// Reason classifies a rejection for metrics and logs.
func Reason(err error) string {
	switch {
	case errors.Is(err, zkapp.ErrUnauthorized), errors.Is(err, ErrMissingAuth), errors.Is(err, ErrBadSignature):
		return "unauthorized"
	case errors.Is(err, zkapp.ErrStale):
		return "stale"
	case errors.Is(err, zkapp.ErrInvalidCertificate):
		return "invalid_certificate"
	case errors.Is(err, zkapp.ErrOverflow):
		return "overflow"
	case errors.Is(err, zkapp.ErrUninitialized):
		return "uninitialized"
	case errors.Is(err, zkapp.ErrAlreadyInitialized):
		return "already_initialized"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, verifier.ErrInvalidProof), errors.Is(err, ErrNoProofVerifier):
		return "invalid_proof"
	}
	return "other"
}
