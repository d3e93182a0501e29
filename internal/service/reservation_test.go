package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reloveapp/relove-server/internal/service"
)

func TestReserve_MutualExclusion(t *testing.T) {
	env, _ := setupFakeClockEnv(t)
	ctx := context.Background()

	first, err := env.reservations.Reserve(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"prod-1"}, first.Reserved)
	assert.True(t, first.AllReserved())

	// Second shopper loses; the winner's hold is untouched.
	second, err := env.reservations.Reserve(ctx, holderB, []string{"prod-1"})
	require.NoError(t, err)
	assert.Empty(t, second.Reserved)
	assert.Equal(t, []string{"prod-1"}, second.Conflicts)

	res, err := env.store.GetReservation(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, holderA, res.HolderID)
}

func TestReserve_ExpiredHoldIsFree(t *testing.T) {
	env, clk := setupFakeClockEnv(t)
	ctx := context.Background()

	_, err := env.reservations.Reserve(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)

	clk.Advance(service.DefaultReservationTTL + time.Second)

	outcome, err := env.reservations.Reserve(ctx, holderB, []string{"prod-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"prod-1"}, outcome.Reserved)
}

func TestReserve_SameHolderRefreshes(t *testing.T) {
	env, clk := setupFakeClockEnv(t)
	ctx := context.Background()

	first, err := env.reservations.Reserve(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)

	// A page reload mid-checkout re-reserves; it must not self-conflict.
	clk.Advance(3 * time.Minute)
	second, err := env.reservations.Reserve(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"prod-1"}, second.Reserved)
	assert.True(t, second.ExpiresAt.After(first.ExpiresAt))
}

func TestReserve_EmptyInputIsNoop(t *testing.T) {
	env, _ := setupFakeClockEnv(t)
	ctx := context.Background()

	outcome, err := env.reservations.Reserve(ctx, holderA, nil)
	require.NoError(t, err)
	assert.Empty(t, outcome.Reserved)

	outcome, err = env.reservations.Reserve(ctx, "", []string{"prod-1"})
	require.NoError(t, err)
	assert.Empty(t, outcome.Reserved)
}

func TestReserve_BatchFansOut(t *testing.T) {
	env, _ := setupFakeClockEnv(t)
	ctx := context.Background()

	_, err := env.reservations.Reserve(ctx, holderB, []string{"prod-2"})
	require.NoError(t, err)

	// prod-2 conflicts but prod-1 and prod-3 still go through.
	outcome, err := env.reservations.Reserve(ctx, holderA, []string{"prod-1", "prod-2", "prod-3"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"prod-1", "prod-3"}, outcome.Reserved)
	assert.Equal(t, []string{"prod-2"}, outcome.Conflicts)
}

func TestExtend_ResetsTTL(t *testing.T) {
	env, clk := setupFakeClockEnv(t)
	ctx := context.Background()

	_, err := env.reservations.Reserve(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)

	clk.Advance(9 * time.Minute)

	renewed, expiresAt, err := env.reservations.Extend(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"prod-1"}, renewed)
	// Fresh full TTL from the moment of the extend, regardless of how much
	// time was left.
	assert.Equal(t, clk.Now().Add(service.DefaultReservationTTL), expiresAt)
}

func TestExtend_ForeignOrAbsentIsSkipped(t *testing.T) {
	env, _ := setupFakeClockEnv(t)
	ctx := context.Background()

	// Nothing reserved at all.
	renewed, _, err := env.reservations.Extend(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)
	assert.Empty(t, renewed)

	// Someone else owns it: no state change, no crash.
	_, err = env.reservations.Reserve(ctx, holderB, []string{"prod-1"})
	require.NoError(t, err)

	renewed, _, err = env.reservations.Extend(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)
	assert.Empty(t, renewed)

	res, err := env.store.GetReservation(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, holderB, res.HolderID)
}

func TestRelease_Idempotent(t *testing.T) {
	env, _ := setupFakeClockEnv(t)
	ctx := context.Background()

	_, err := env.reservations.Reserve(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)

	released, err := env.reservations.Release(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"prod-1"}, released)

	// Second release: same observable effect, no error.
	released, err = env.reservations.Release(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)
	assert.Empty(t, released)
}

func TestRelease_ForeignHoldIsKept(t *testing.T) {
	env, _ := setupFakeClockEnv(t)
	ctx := context.Background()

	_, err := env.reservations.Reserve(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)

	released, err := env.reservations.Release(ctx, holderB, []string{"prod-1"})
	require.NoError(t, err)
	assert.Empty(t, released)

	res, err := env.store.GetReservation(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, holderA, res.HolderID)
}

func TestLockedByOthers(t *testing.T) {
	env, clk := setupFakeClockEnv(t)
	ctx := context.Background()

	_, err := env.reservations.Reserve(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)
	_, err = env.reservations.Reserve(ctx, holderB, []string{"prod-2"})
	require.NoError(t, err)

	// From B's point of view only prod-1 is locked: their own hold on
	// prod-2 does not count.
	locked, err := env.reservations.LockedByOthers(ctx, holderB, []string{"prod-1", "prod-2", "prod-3"})
	require.NoError(t, err)
	assert.True(t, has(locked, "prod-1"))
	assert.False(t, has(locked, "prod-2"))
	assert.False(t, has(locked, "prod-3"))

	// Expiry clears the lock without any delete.
	clk.Advance(service.DefaultReservationTTL + time.Second)
	locked, err = env.reservations.LockedByOthers(ctx, holderB, []string{"prod-1"})
	require.NoError(t, err)
	assert.Empty(t, locked)
}

func TestSubscribeReservedByOthers_TracksChanges(t *testing.T) {
	env, _ := setupFakeClockEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recorder := newSetRecorder()
	err := env.reservations.SubscribeReservedByOthers(ctx, holderB, []string{"prod-1"}, recorder.callback)
	require.NoError(t, err)

	// Initial state: nothing locked.
	initial := recorder.next(t)
	assert.Empty(t, initial)

	// A reserves: B's locked set gains prod-1 once the change propagates.
	_, err = env.reservations.Reserve(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)
	recorder.waitFor(t, func(set map[string]struct{}) bool { return has(set, "prod-1") })

	// A releases: the set empties again.
	_, err = env.reservations.Release(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)
	recorder.waitFor(t, func(set map[string]struct{}) bool { return !has(set, "prod-1") })
}

func TestSubscribeReservedByOthers_OwnHoldNotReported(t *testing.T) {
	env, _ := setupFakeClockEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recorder := newSetRecorder()
	err := env.reservations.SubscribeReservedByOthers(ctx, holderA, []string{"prod-1"}, recorder.callback)
	require.NoError(t, err)
	recorder.next(t)

	_, err = env.reservations.Reserve(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)

	// The change notification fires, but the viewer's own hold is never
	// "locked by others".
	set := recorder.next(t)
	assert.Empty(t, set)
}

func TestHeartbeatInterval(t *testing.T) {
	env, _ := setupFakeClockEnv(t)

	assert.Equal(t, service.DefaultHeartbeatInterval, env.reservations.HeartbeatInterval())
	assert.Equal(t, service.DefaultReservationTTL, env.reservations.TTL())
}
