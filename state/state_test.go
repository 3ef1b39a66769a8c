package state_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignasirv/zkVaccionation/identity"
	"github.com/ignasirv/zkVaccionation/state"
)

func initWrites(issuer identity.PublicKey) []state.Write {
	return []state.Write{
		state.SetIssuer(issuer),
		state.SetVaccinationCount(0),
		state.SetLastVaccinationTime(0),
	}
}

func testStore(t *testing.T, store state.Store) {
	ctx := context.Background()
	issuer := identity.FromSeed("issuer").PublicKey()

	t.Run("uninitialized", func(t *testing.T) {
		_, err := store.Load(ctx)
		assert.ErrorIs(t, err, state.ErrUninitialized)
	})

	t.Run("initialize", func(t *testing.T) {
		snap, err := store.Commit(ctx, nil, initWrites(issuer))
		require.NoError(t, err)
		assert.True(t, snap.Initialized())

		loaded, err := store.Load(ctx)
		require.NoError(t, err)
		got, _ := loaded.Issuer()
		assert.True(t, got.Equal(issuer))
		count, _ := loaded.VaccinationCount()
		assert.Equal(t, uint64(0), count)
	})

	t.Run("commit with fresh tokens", func(t *testing.T) {
		snap, err := store.Load(ctx)
		require.NoError(t, err)
		_, countTok := snap.VaccinationCount()
		_, timeTok := snap.LastVaccinationTime()

		next, err := store.Commit(ctx, []state.Token{countTok, timeTok}, []state.Write{
			state.SetVaccinationCount(1),
			state.SetLastVaccinationTime(1_000),
		})
		require.NoError(t, err)
		count, tok := next.VaccinationCount()
		assert.Equal(t, uint64(1), count)
		assert.Equal(t, countTok.Version+1, tok.Version)
	})

	t.Run("stale token rejects the whole commit", func(t *testing.T) {
		before, err := store.Load(ctx)
		require.NoError(t, err)
		_, tok := before.VaccinationCount()
		tok.Version--

		_, err = store.Commit(ctx, []state.Token{tok}, []state.Write{
			state.SetVaccinationCount(99),
			state.SetLastVaccinationTime(99),
		})
		assert.ErrorIs(t, err, state.ErrStale)

		after, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, before.Commitment(), after.Commitment())
	})
}

func TestMemoryStore(t *testing.T) {
	testStore(t, state.NewMemoryStore())
}

func TestLevelStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	store, err := state.NewLevelStore(path)
	require.NoError(t, err)

	testStore(t, store)
	want, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	t.Run("reopen keeps committed slots", func(t *testing.T) {
		reopened, err := state.NewLevelStore(path)
		require.NoError(t, err)
		defer reopened.Close()

		got, err := reopened.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want.Commitment(), got.Commitment())
		for _, slot := range state.Slots() {
			assert.Equal(t, want.Version(slot), got.Version(slot), slot.String())
		}
	})
}

func TestCommitmentDependsOnEverySlot(t *testing.T) {
	issuer := identity.FromSeed("issuer").PublicKey()
	other := identity.FromSeed("other").PublicKey()

	base := state.ComputeStateHash(issuer, 1, 10)
	assert.Equal(t, base, state.ComputeStateHash(issuer, 1, 10))
	assert.NotEqual(t, base, state.ComputeStateHash(other, 1, 10))
	assert.NotEqual(t, base, state.ComputeStateHash(issuer, 2, 10))
	assert.NotEqual(t, base, state.ComputeStateHash(issuer, 1, 11))
}

func TestSlotNames(t *testing.T) {
	for _, slot := range state.Slots() {
		parsed, err := state.ParseSlot(slot.String())
		require.NoError(t, err)
		assert.Equal(t, slot, parsed)
	}
	_, err := state.ParseSlot("user")
	assert.ErrorIs(t, err, state.ErrUnknownSlot)
}
