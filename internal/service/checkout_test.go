package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reloveapp/relove-server/internal/clock"
	domainerrors "github.com/reloveapp/relove-server/internal/errors"
	"github.com/reloveapp/relove-server/internal/service"
	"github.com/reloveapp/relove-server/internal/store"
)

// setupCheckoutEnv shrinks the reservation timers to test scale so timer
// transitions can be observed with a real clock.
func setupCheckoutEnv(t *testing.T, ttl, heartbeat, grace time.Duration) *testEnv {
	t.Helper()
	return setupTestEnv(t, clock.NewSystem(),
		[]service.ReservationOption{
			service.WithTTL(ttl),
			service.WithHeartbeatInterval(heartbeat),
		},
		[]service.CheckoutOption{service.WithWarningGrace(grace)},
	)
}

func TestCheckout_BeginConvertsPresenceIntoReservation(t *testing.T) {
	env, _ := setupFakeClockEnv(t)
	ctx := context.Background()

	env.seedProduct(t, "prod-1")
	env.seedProduct(t, "prod-2")
	require.NoError(t, env.presence.SetPresent(ctx, "prod-1", holderA))
	require.NoError(t, env.presence.SetPresent(ctx, "prod-2", holderA))

	c, err := env.checkout.Begin(ctx, holderA, []string{"prod-1", "prod-2"})
	require.NoError(t, err)
	defer func() { _ = c.Leave(ctx) }()

	assert.Equal(t, service.CheckoutActive, c.State())
	assert.ElementsMatch(t, []string{"prod-1", "prod-2"}, c.Products())

	// Presence and reservation are mutually exclusive per holder.
	for _, productID := range []string{"prod-1", "prod-2"} {
		rows, err := env.store.ListPresenceByProduct(ctx, productID)
		require.NoError(t, err)
		assert.Empty(t, rows, productID)

		res, err := env.store.GetReservation(ctx, productID)
		require.NoError(t, err)
		assert.Equal(t, holderA, res.HolderID)
	}
}

func TestCheckout_BeginSkipsLockedItems(t *testing.T) {
	env, _ := setupFakeClockEnv(t)
	ctx := context.Background()

	env.seedProduct(t, "prod-1")
	env.seedProduct(t, "prod-2")
	_, err := env.reservations.Reserve(ctx, holderB, []string{"prod-1"})
	require.NoError(t, err)

	c, err := env.checkout.Begin(ctx, holderA, []string{"prod-1", "prod-2"})
	require.NoError(t, err)
	defer func() { _ = c.Leave(ctx) }()

	assert.Equal(t, []string{"prod-2"}, c.Products())
}

func TestCheckout_BeginFailsWhenEverythingLocked(t *testing.T) {
	env, _ := setupFakeClockEnv(t)
	ctx := context.Background()

	env.seedProduct(t, "prod-1")
	_, err := env.reservations.Reserve(ctx, holderB, []string{"prod-1"})
	require.NoError(t, err)

	_, err = env.checkout.Begin(ctx, holderA, []string{"prod-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrReservedByOther)
}

func TestCheckout_LeaveReleasesAndRestoresBag(t *testing.T) {
	env, _ := setupFakeClockEnv(t)
	ctx := context.Background()

	env.seedProduct(t, "prod-1")
	env.seedProduct(t, "prod-2")
	require.NoError(t, env.presence.SetPresent(ctx, "prod-1", holderA))
	require.NoError(t, env.presence.SetPresent(ctx, "prod-2", holderA))

	c, err := env.checkout.Begin(ctx, holderA, []string{"prod-1", "prod-2"})
	require.NoError(t, err)

	// The tab is abandoned: page-hide fires Leave.
	require.NoError(t, c.Leave(ctx))
	assert.Equal(t, service.CheckoutIdle, c.State())

	for _, productID := range []string{"prod-1", "prod-2"} {
		_, err := env.store.GetReservation(ctx, productID)
		assert.ErrorIs(t, err, store.ErrNotFound, productID)

		rows, err := env.store.ListPresenceByProduct(ctx, productID)
		require.NoError(t, err)
		assert.Len(t, rows, 1, productID)
		assert.Equal(t, holderA, rows[0].HolderID)
	}

	// Teardown fires too; the second Leave is a no-op.
	require.NoError(t, c.Leave(ctx))
	assert.Nil(t, env.checkout.Session(holderA))
}

func TestCheckout_LeaveSurvivesAbortedRequest(t *testing.T) {
	env, _ := setupFakeClockEnv(t)
	ctx := context.Background()

	env.seedProduct(t, "prod-1")
	require.NoError(t, env.presence.SetPresent(ctx, "prod-1", holderA))

	c, err := env.checkout.Begin(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)

	// A page-hide beacon's request often dies mid-flight; the release
	// must still go through or the hold lingers until the TTL.
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	require.NoError(t, c.Leave(canceled))

	_, err = env.store.GetReservation(ctx, "prod-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	rows, err := env.store.ListPresenceByProduct(ctx, "prod-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, holderA, rows[0].HolderID)
}

func TestCheckout_HeartbeatKeepsHoldAlive(t *testing.T) {
	env := setupCheckoutEnv(t, 250*time.Millisecond, 50*time.Millisecond, time.Second)
	ctx := context.Background()

	env.seedProduct(t, "prod-1")
	c, err := env.checkout.Begin(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)
	defer func() { _ = c.Leave(ctx) }()

	// Well past the original TTL the session is still Active and the hold
	// still live: each beat reset the countdown to the full TTL.
	time.Sleep(600 * time.Millisecond)
	assert.Equal(t, service.CheckoutActive, c.State())

	res, err := env.store.GetReservation(ctx, "prod-1")
	require.NoError(t, err)
	assert.True(t, res.Live(time.Now()))
}

func TestCheckout_CountdownExpiryEntersWarningThenAutoReleases(t *testing.T) {
	// Heartbeat far beyond the TTL so the countdown actually runs out.
	env := setupCheckoutEnv(t, 100*time.Millisecond, time.Hour, 150*time.Millisecond)
	ctx := context.Background()

	env.seedProduct(t, "prod-1")
	c, err := env.checkout.Begin(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return c.State() == service.CheckoutWarning
	}, 2*time.Second, 10*time.Millisecond, "countdown expiry should enter Warning")

	// No answer within the grace period: the hold is auto-released and the
	// item returns to the bag.
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("grace expiry should end the session")
	}

	assert.Equal(t, service.CheckoutIdle, c.State())
	_, err = env.store.GetReservation(ctx, "prod-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	rows, err := env.store.ListPresenceByProduct(ctx, "prod-1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestCheckout_KeepGoingRenewsFromWarning(t *testing.T) {
	env := setupCheckoutEnv(t, 100*time.Millisecond, time.Hour, 5*time.Second)
	ctx := context.Background()

	env.seedProduct(t, "prod-1")
	c, err := env.checkout.Begin(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)
	defer func() { _ = c.Leave(ctx) }()

	require.Eventually(t, func() bool {
		return c.State() == service.CheckoutWarning
	}, 2*time.Second, 10*time.Millisecond)

	// "Yes, keep going" extends the hold and returns to Active.
	c.KeepGoing()
	require.Eventually(t, func() bool {
		return c.State() == service.CheckoutActive
	}, 2*time.Second, 10*time.Millisecond)

	res, err := env.store.GetReservation(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, holderA, res.HolderID)
}

func TestCheckout_RemainingResetsOnExtend(t *testing.T) {
	env, clk := setupFakeClockEnv(t)
	ctx := context.Background()

	env.seedProduct(t, "prod-1")
	c, err := env.checkout.Begin(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)
	defer func() { _ = c.Leave(ctx) }()

	assert.Equal(t, service.DefaultReservationTTL, c.Remaining())

	clk.Advance(7 * time.Minute)
	assert.Equal(t, 3*time.Minute, c.Remaining())
}

func TestCheckout_PaymentRedirectSuppressesRelease(t *testing.T) {
	env, _ := setupFakeClockEnv(t)
	ctx := context.Background()

	env.seedProduct(t, "prod-1")
	c, err := env.checkout.Begin(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)

	url, reference, err := c.BeginPaymentRedirect(ctx)
	require.NoError(t, err)
	assert.Contains(t, url, reference)

	// The product list was handed off and persisted for the return path.
	pending, err := env.store.Payments.Get(ctx, reference)
	require.NoError(t, err)
	assert.Equal(t, holderA, pending.HolderID)
	assert.Equal(t, []string{"prod-1"}, pending.ProductIDs)
	require.Len(t, env.gateway.Redirects(), 1)

	// Leaving (teardown fires during the redirect) must NOT release.
	require.NoError(t, c.Leave(ctx))
	res, err := env.store.GetReservation(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, holderA, res.HolderID)
}

func TestCheckout_PaymentHandoffFailureKeepsSessionReleasable(t *testing.T) {
	env, _ := setupFakeClockEnv(t)
	ctx := context.Background()

	env.seedProduct(t, "prod-1")
	c, err := env.checkout.Begin(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)

	env.gateway.FailNext = true
	_, _, err = c.BeginPaymentRedirect(ctx)
	require.Error(t, err)
	assert.False(t, c.Redirected())

	// The failed handoff left no pending payment, and leave still works.
	require.NoError(t, c.Leave(ctx))
	_, err = env.store.GetReservation(ctx, "prod-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCheckout_CompletePaymentSuccess(t *testing.T) {
	env, _ := setupFakeClockEnv(t)
	ctx := context.Background()

	env.seedProduct(t, "prod-1")
	c, err := env.checkout.Begin(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)

	_, reference, err := c.BeginPaymentRedirect(ctx)
	require.NoError(t, err)

	require.NoError(t, env.checkout.CompletePayment(ctx, reference, true))

	// The item is consumed: sold, hold gone, pending record cleared.
	product, err := env.catalog.GetProduct(ctx, "prod-1")
	require.NoError(t, err)
	assert.True(t, product.Sold)

	_, err = env.store.GetReservation(ctx, "prod-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = env.store.Payments.Get(ctx, reference)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.Nil(t, env.checkout.Session(holderA))
}

func TestCheckout_CompletePaymentFailureRestoresBag(t *testing.T) {
	env, _ := setupFakeClockEnv(t)
	ctx := context.Background()

	env.seedProduct(t, "prod-1")
	c, err := env.checkout.Begin(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)

	_, reference, err := c.BeginPaymentRedirect(ctx)
	require.NoError(t, err)

	require.NoError(t, env.checkout.CompletePayment(ctx, reference, false))

	product, err := env.catalog.GetProduct(ctx, "prod-1")
	require.NoError(t, err)
	assert.False(t, product.Sold)

	_, err = env.store.GetReservation(ctx, "prod-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	rows, err := env.store.ListPresenceByProduct(ctx, "prod-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, holderA, rows[0].HolderID)
}

func TestCheckout_CompletePaymentUnknownReference(t *testing.T) {
	env, _ := setupFakeClockEnv(t)

	err := env.checkout.CompletePayment(context.Background(), "ref-nope", true)
	assert.Error(t, err)
}

func TestCheckout_BeginReplacesExistingSession(t *testing.T) {
	env, _ := setupFakeClockEnv(t)
	ctx := context.Background()

	env.seedProduct(t, "prod-1")
	env.seedProduct(t, "prod-2")

	first, err := env.checkout.Begin(ctx, holderA, []string{"prod-1"})
	require.NoError(t, err)

	second, err := env.checkout.Begin(ctx, holderA, []string{"prod-2"})
	require.NoError(t, err)
	defer func() { _ = second.Leave(ctx) }()

	assert.Equal(t, service.CheckoutIdle, first.State())
	assert.Same(t, second, env.checkout.Session(holderA))

	// The first session's hold was released when it was replaced.
	_, err = env.store.GetReservation(ctx, "prod-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
