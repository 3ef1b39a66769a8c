package ledger_test

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignasirv/zkVaccionation/circuits"
	"github.com/ignasirv/zkVaccionation/identity"
	"github.com/ignasirv/zkVaccionation/keys"
	"github.com/ignasirv/zkVaccionation/ledger"
	"github.com/ignasirv/zkVaccionation/proof"
	"github.com/ignasirv/zkVaccionation/state"
	"github.com/ignasirv/zkVaccionation/verifier"
	"github.com/ignasirv/zkVaccionation/zkapp"
)

const genesis = 1_700_000_000_000

var (
	issuerCred = identity.FromSeed("ledger-test-issuer")
	quiet      = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func newAccount(t *testing.T) *eddsa.PrivateKey {
	t.Helper()
	key, err := eddsa.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return key
}

func TestDeployOnce(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewLocal(state.NewMemoryStore(), ledger.WithPermissions(ledger.Permissions{EditState: ledger.AuthNone}), ledger.WithLogger(quiet))
	c, err := zkapp.New(l, issuerCred.PublicKey(), zkapp.WithLogger(quiet))
	require.NoError(t, err)

	receipt, err := c.Deploy(ctx)
	require.NoError(t, err)
	assert.Equal(t, zkapp.StatusCommitted, receipt.Status)
	assert.Equal(t, "initialize", receipt.Method)

	receipt, err = c.Deploy(ctx)
	assert.ErrorIs(t, err, zkapp.ErrAlreadyInitialized)
	assert.Equal(t, zkapp.StatusRejected, receipt.Status)
	assert.NotEmpty(t, receipt.Errors)
}

func TestDeployRejectsOtherMethods(t *testing.T) {
	l := ledger.NewLocal(state.NewMemoryStore(), ledger.WithLogger(quiet))
	tx := &zkapp.Transaction{Method: circuits.MethodCheckVaccination, Network: zkapp.Unconstrained()}

	_, err := l.Deploy(context.Background(), tx)
	assert.ErrorIs(t, err, ledger.ErrMalformed)
}

func TestSubmitBeforeDeploy(t *testing.T) {
	l := ledger.NewLocal(state.NewMemoryStore(), ledger.WithLogger(quiet))
	tx := &zkapp.Transaction{Method: circuits.MethodAddVaccination, Network: zkapp.Unconstrained()}

	_, err := l.Submit(context.Background(), tx)
	assert.ErrorIs(t, err, zkapp.ErrUninitialized)
}

func TestPermissions(t *testing.T) {
	account := newAccount(t)
	other := newAccount(t)

	tests := []struct {
		name    string
		perms   ledger.AuthRequired
		signer  *eddsa.PrivateKey
		fakePrf bool
		wantErr error
		reason  string
	}{
		{name: "none accepts unsigned", perms: ledger.AuthNone},
		{name: "signature accepts account key", perms: ledger.AuthSignature, signer: account},
		{name: "proofOrSignature accepts account key", perms: ledger.AuthProofOrSignature, signer: account},
		{name: "signature rejects unsigned", perms: ledger.AuthSignature, wantErr: ledger.ErrMissingAuth, reason: "unauthorized"},
		{name: "signature rejects foreign key", perms: ledger.AuthSignature, signer: other, wantErr: ledger.ErrBadSignature, reason: "unauthorized"},
		{name: "proof rejects signature only", perms: ledger.AuthProof, signer: account, wantErr: ledger.ErrMissingAuth, reason: "unauthorized"},
		{name: "proof without verifier", perms: ledger.AuthProof, fakePrf: true, wantErr: ledger.ErrNoProofVerifier, reason: "invalid_proof"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := state.NewMemoryStore()
			l := ledger.NewLocal(store,
				ledger.WithClock(ledger.NewManualClock(genesis)),
				ledger.WithAccount(&account.PublicKey),
				ledger.WithLogger(quiet),
			)

			// deploy is always signed by the account
			deployer, err := zkapp.New(l, issuerCred.PublicKey(), zkapp.WithAccountKey(account), zkapp.WithLogger(quiet))
			require.NoError(t, err)
			_, err = deployer.Deploy(ctx)
			require.NoError(t, err)

			ledger.WithPermissions(ledger.Permissions{EditState: tt.perms})(l)

			var opts []zkapp.Option
			if tt.signer != nil {
				opts = append(opts, zkapp.WithAccountKey(tt.signer))
			}
			c, err := zkapp.New(l, issuerCred.PublicKey(), opts...)
			require.NoError(t, err)

			tx, err := c.AddVaccination(ctx, issuerCred)
			require.NoError(t, err)
			if tt.fakePrf {
				tx.Proof = &zkapp.Proof{}
			}
			_, err = c.Send(ctx, tx)

			snap, lerr := store.Load(ctx)
			require.NoError(t, lerr)
			count, _ := snap.VaccinationCount()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.reason, ledger.Reason(err), err)
				assert.Equal(t, uint64(0), count)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint64(1), count)
		})
	}
}

func TestSubmitRejectsInconsistentCommitment(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewLocal(state.NewMemoryStore(),
		ledger.WithClock(ledger.NewManualClock(genesis)),
		ledger.WithPermissions(ledger.Permissions{EditState: ledger.AuthNone}),
		ledger.WithLogger(quiet),
	)
	c, err := zkapp.New(l, issuerCred.PublicKey(), zkapp.WithLogger(quiet))
	require.NoError(t, err)
	_, err = c.Deploy(ctx)
	require.NoError(t, err)

	tx, err := c.AddVaccination(ctx, issuerCred)
	require.NoError(t, err)
	tx.Writes[0] = state.SetVaccinationCount(10)

	_, err = c.Send(ctx, tx)
	assert.ErrorIs(t, err, ledger.ErrMalformed)

	tx, err = c.AddVaccination(ctx, issuerCred)
	require.NoError(t, err)
	tx.OldState = big.NewInt(1)
	_, err = c.Send(ctx, tx)
	assert.ErrorIs(t, err, zkapp.ErrStale)
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := ledger.NewMetrics(reg)
	clock := ledger.NewManualClock(genesis)
	l := ledger.NewLocal(state.NewMemoryStore(),
		ledger.WithClock(clock),
		ledger.WithPermissions(ledger.Permissions{EditState: ledger.AuthNone}),
		ledger.WithMetrics(m),
		ledger.WithLogger(quiet),
	)
	c, err := zkapp.New(l, issuerCred.PublicKey(), zkapp.WithLogger(quiet))
	require.NoError(t, err)
	_, err = c.Deploy(ctx)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		clock.Advance(time.Hour)
		tx, err := c.AddVaccination(ctx, issuerCred)
		require.NoError(t, err)
		_, err = c.Send(ctx, tx)
		require.NoError(t, err)
	}
	tx, err := c.AddVaccination(ctx, identity.FromSeed("someone else"))
	assert.Nil(t, tx)
	assert.ErrorIs(t, err, zkapp.ErrUnauthorized)

	stale, err := c.AddVaccination(ctx, issuerCred)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = c.Send(ctx, stale)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Committed.WithLabelValues("initialize")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Committed.WithLabelValues("addVaccination")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Submitted.WithLabelValues("addVaccination")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejected.WithLabelValues("addVaccination", "stale")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.VaccinationCount))
	assert.Equal(t, float64(genesis+2*time.Hour.Milliseconds()), testutil.ToFloat64(m.LastVaccinationTime))
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{zkapp.ErrUnauthorized, "unauthorized"},
		{ledger.ErrBadSignature, "unauthorized"},
		{fmt.Errorf("wrapped: %w", zkapp.ErrStale), "stale"},
		{&zkapp.RejectionError{Method: circuits.MethodCheckVaccination, Err: fmt.Errorf("%w: %w", zkapp.ErrInvalidCertificate, zkapp.ErrNotEnoughDoses)}, "invalid_certificate"},
		{fmt.Errorf("%w: %w", zkapp.ErrInvalidCertificate, zkapp.ErrOutsideWindow), "invalid_certificate"},
		{zkapp.ErrOverflow, "overflow"},
		{zkapp.ErrUninitialized, "uninitialized"},
		{zkapp.ErrAlreadyInitialized, "already_initialized"},
		{ledger.ErrMalformed, "malformed"},
		{verifier.ErrInvalidProof, "invalid_proof"},
		{errors.New("disk full"), "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ledger.Reason(tt.err), tt.err.Error())
	}
}

func TestAuthRequiredString(t *testing.T) {
	assert.Equal(t, "proofOrSignature", ledger.DefaultPermissions().EditState.String())
	assert.Equal(t, "auth(9)", ledger.AuthRequired(9).String())
}

func TestManualClock(t *testing.T) {
	c := ledger.NewManualClock(10)
	assert.Equal(t, uint64(10), c.Now())
	assert.Equal(t, uint64(1010), c.Advance(time.Second))
	c.Set(5)
	assert.Equal(t, uint64(5), c.Now())
}

func TestBlockTimestamp(t *testing.T) {
	ctx := context.Background()

	t.Run("fixed until the interval passes", func(t *testing.T) {
		clock := ledger.NewManualClock(genesis)
		l := ledger.NewLocal(state.NewMemoryStore(), ledger.WithClock(clock), ledger.WithBlockInterval(time.Second))

		ts, err := l.Timestamp(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(genesis), ts)

		clock.Advance(999 * time.Millisecond)
		ts, _ = l.Timestamp(ctx)
		assert.Equal(t, uint64(genesis), ts)

		clock.Advance(time.Millisecond)
		ts, _ = l.Timestamp(ctx)
		assert.Equal(t, uint64(genesis+1_000), ts)
	})

	t.Run("clock moving back opens a new block", func(t *testing.T) {
		clock := ledger.NewManualClock(genesis)
		l := ledger.NewLocal(state.NewMemoryStore(), ledger.WithClock(clock))
		_, _ = l.Timestamp(ctx)

		clock.Set(genesis - 5)
		ts, _ := l.Timestamp(ctx)
		assert.Equal(t, uint64(genesis-5), ts)
	})

	t.Run("zero interval follows the clock", func(t *testing.T) {
		clock := ledger.NewManualClock(genesis)
		l := ledger.NewLocal(state.NewMemoryStore(), ledger.WithClock(clock), ledger.WithBlockInterval(0))
		_, _ = l.Timestamp(ctx)

		clock.Advance(time.Millisecond)
		ts, _ := l.Timestamp(ctx)
		assert.Equal(t, uint64(genesis+1), ts)
	})
}

// TestGroth16Lifecycle runs the whole contract with proof authorization only.
func TestGroth16Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("groth16 setup is slow")
	}
	ctx := context.Background()

	set, err := keys.Setup(ctx, issuerCred.PublicKey(), quiet)
	require.NoError(t, err)
	prover := proof.NewProver(set, quiet)

	clock := ledger.NewManualClock(genesis)
	l := ledger.NewLocal(state.NewMemoryStore(),
		ledger.WithClock(clock),
		ledger.WithVerifier(verifier.New(set)),
		ledger.WithPermissions(ledger.Permissions{EditState: ledger.AuthProof}),
		ledger.WithLogger(quiet),
	)
	c, err := zkapp.New(l, issuerCred.PublicKey(), zkapp.WithProver(prover), zkapp.WithLogger(quiet))
	require.NoError(t, err)

	_, err = c.Deploy(ctx)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		clock.Advance(28 * 24 * time.Hour)
		tx, err := c.AddVaccination(ctx, issuerCred)
		require.NoError(t, err)
		_, err = c.Send(ctx, tx)
		require.NoError(t, err)
		require.NotNil(t, tx.Proof)
		assert.Nil(t, tx.Witness)
		assert.Len(t, tx.Proof.PublicInputs, 3)
	}

	check, err := c.CheckVaccination(ctx)
	require.NoError(t, err)
	_, err = c.Send(ctx, check)
	require.NoError(t, err)

	t.Run("proof does not cover altered writes", func(t *testing.T) {
		snap, err := c.State(ctx)
		require.NoError(t, err)
		tx, err := c.AddVaccination(ctx, issuerCred)
		require.NoError(t, err)
		require.NoError(t, prover.Prove(ctx, tx))

		tx.Writes[0] = state.SetVaccinationCount(50)
		forged, err := snap.Apply(tx.Writes)
		require.NoError(t, err)
		tx.NewState = forged.Commitment()

		_, err = l.Submit(ctx, tx)
		assert.ErrorIs(t, err, verifier.ErrInvalidProof)

		after, err := c.State(ctx)
		require.NoError(t, err)
		count, _ := after.VaccinationCount()
		assert.Equal(t, uint64(2), count)
	})

	t.Run("unproved transaction is refused", func(t *testing.T) {
		bare, err := zkapp.New(l, issuerCred.PublicKey(), zkapp.WithLogger(quiet))
		require.NoError(t, err)
		tx, err := bare.CheckVaccination(ctx)
		require.NoError(t, err)
		_, err = bare.Send(ctx, tx)
		assert.ErrorIs(t, err, ledger.ErrMissingAuth)
	})

	t.Run("proof does not cover a widened time bound", func(t *testing.T) {
		tx, err := c.AddVaccination(ctx, issuerCred)
		require.NoError(t, err)
		require.NoError(t, prover.Prove(ctx, tx))

		tx.Network.TimestampUpper = math.MaxUint64
		clock.Advance(200 * 24 * time.Hour)
		_, err = l.Submit(ctx, tx)
		assert.ErrorIs(t, err, ledger.ErrMalformed)

		after, err := c.State(ctx)
		require.NoError(t, err)
		count, _ := after.VaccinationCount()
		assert.Equal(t, uint64(2), count)
	})

	t.Run("proved dose commits on the wall clock", func(t *testing.T) {
		wall := ledger.NewLocal(state.NewMemoryStore(),
			ledger.WithVerifier(verifier.New(set)),
			ledger.WithPermissions(ledger.Permissions{EditState: ledger.AuthProof}),
			ledger.WithLogger(quiet),
		)
		wc, err := zkapp.New(wall, issuerCred.PublicKey(), zkapp.WithProver(prover), zkapp.WithLogger(quiet))
		require.NoError(t, err)
		_, err = wc.Deploy(ctx)
		require.NoError(t, err)

		before := uint64(time.Now().UnixMilli())
		tx, err := wc.AddVaccination(ctx, issuerCred)
		require.NoError(t, err)
		_, err = wc.Send(ctx, tx)
		require.NoError(t, err)

		snap, err := wc.State(ctx)
		require.NoError(t, err)
		count, _ := snap.VaccinationCount()
		last, _ := snap.LastVaccinationTime()
		assert.Equal(t, uint64(1), count)
		assert.GreaterOrEqual(t, last, before)
		assert.Equal(t, tx.Network.TimestampLower, last)
	})

	t.Run("certificate expires", func(t *testing.T) {
		clock.Advance(time.Duration(circuits.ValidityWindow+1) * time.Millisecond)
		_, err := c.CheckVaccination(ctx)
		assert.ErrorIs(t, err, zkapp.ErrOutsideWindow)
	})
}
