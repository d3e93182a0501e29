package service_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reloveapp/relove-server/internal/bus"
	"github.com/reloveapp/relove-server/internal/clock"
	"github.com/reloveapp/relove-server/internal/domain"
	"github.com/reloveapp/relove-server/internal/payment"
	"github.com/reloveapp/relove-server/internal/search"
	"github.com/reloveapp/relove-server/internal/service"
	"github.com/reloveapp/relove-server/internal/store"
)

var testStart = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

const (
	holderA = "shop-a"
	holderB = "shop-b"
	holderC = "shop-c"
)

type testEnv struct {
	store        *store.Store
	bus          *bus.Bus
	clock        clock.Clock
	reservations *service.ReservationService
	presence     *service.PresenceService
	viewers      *service.ViewerService
	catalog      *service.CatalogService
	checkout     *service.CheckoutManager
	gateway      *payment.FakeGateway
}

// setupTestEnv wires the full service stack on a temp store, a running bus
// and the given clock. Reservation options let checkout tests shrink the
// timers to test scale.
func setupTestEnv(t *testing.T, clk clock.Clock, resOpts []service.ReservationOption, checkoutOpts []service.CheckoutOption) *testEnv {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	b := bus.New(logger)
	busCtx, busCancel := context.WithCancel(context.Background())
	go b.Start(busCtx)
	t.Cleanup(busCancel)

	s, err := store.New(t.TempDir()+"/db", logger, b)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	idx, err := search.NewIndex(search.Options{DataPath: t.TempDir(), Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	gateway := payment.NewFakeGateway()

	env := &testEnv{
		store:   s,
		bus:     b,
		clock:   clk,
		gateway: gateway,
	}
	env.reservations = service.NewReservationService(s, b, clk, logger, resOpts...)
	env.presence = service.NewPresenceService(s, b, clk, logger)
	env.viewers = service.NewViewerService(s, b, clk, logger)
	env.catalog = service.NewCatalogService(s, idx, clk, logger)
	env.checkout = service.NewCheckoutManager(env.reservations, env.presence, env.catalog, s, gateway, clk, logger, checkoutOpts...)

	return env
}

// setupFakeClockEnv is the default harness: a fake clock for deterministic
// liveness checks.
func setupFakeClockEnv(t *testing.T) (*testEnv, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(testStart)
	return setupTestEnv(t, clk, nil, nil), clk
}

func (e *testEnv) seedProduct(t *testing.T, productID string) {
	t.Helper()
	err := e.catalog.CreateProduct(context.Background(), &domain.Product{
		ID:         productID,
		Title:      "Item " + productID,
		PriceCents: 5000,
		Currency:   "EUR",
		SellerID:   "user-seller",
	})
	require.NoError(t, err)
}

// collectSets records snapshots pushed by a subscription callback.
type setRecorder struct {
	ch chan map[string]struct{}
}

func newSetRecorder() *setRecorder {
	return &setRecorder{ch: make(chan map[string]struct{}, 64)}
}

func (r *setRecorder) callback(set map[string]struct{}) {
	r.ch <- set
}

// next waits for the next callback invocation.
func (r *setRecorder) next(t *testing.T) map[string]struct{} {
	t.Helper()
	select {
	case set := <-r.ch:
		return set
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscription callback")
		return nil
	}
}

// waitFor waits until a callback delivers a set satisfying pred.
func (r *setRecorder) waitFor(t *testing.T, pred func(map[string]struct{}) bool) map[string]struct{} {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case set := <-r.ch:
			if pred(set) {
				return set
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching subscription callback")
			return nil
		}
	}
}

func has(set map[string]struct{}, id string) bool {
	_, ok := set[id]
	return ok
}
