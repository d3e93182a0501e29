package sse_test

import (
	"bufio"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reloveapp/relove-server/internal/auth"
	"github.com/reloveapp/relove-server/internal/bus"
	"github.com/reloveapp/relove-server/internal/clock"
	"github.com/reloveapp/relove-server/internal/service"
	"github.com/reloveapp/relove-server/internal/sse"
	"github.com/reloveapp/relove-server/internal/store"
)

type testEnv struct {
	store        *store.Store
	reservations *service.ReservationService
	presence     *service.PresenceService
	viewers      *service.ViewerService
	manager      *sse.Manager
}

func setupTestManager(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	b := bus.New(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Start(ctx)

	st, err := store.New(t.TempDir()+"/db", logger, b)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	clk := clock.NewFake(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	reservations := service.NewReservationService(st, b, clk, logger)
	presence := service.NewPresenceService(st, b, clk, logger)
	viewers := service.NewViewerService(st, b, clk, logger)

	manager := sse.NewManager(reservations, presence, viewers, logger)
	t.Cleanup(func() { _ = manager.Shutdown(context.Background()) })

	return &testEnv{
		store:        st,
		reservations: reservations,
		presence:     presence,
		viewers:      viewers,
		manager:      manager,
	}
}

// waitEvent reads from the client channel until an event of the wanted type
// arrives, discarding everything else.
func waitEvent(t *testing.T, client *sse.Client, eventType sse.EventType) sse.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-client.EventChan:
			if event.Type == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("no %s event within deadline", eventType)
			return sse.Event{}
		}
	}
}

func TestManager_ConnectPushesInitialState(t *testing.T) {
	env := setupTestManager(t)

	client, err := env.manager.Connect("shop-b", []string{"prod-1", "prod-2"})
	require.NoError(t, err)
	defer env.manager.Disconnect(client.ID)

	event := waitEvent(t, client, sse.EventAvailability)
	data := event.Data.(sse.AvailabilityData)
	assert.Empty(t, data.LockedByOthers)
	assert.Empty(t, data.WantedByOthers)

	// The stream itself counts as a viewer on every watched product.
	viewersEvent := waitEvent(t, client, sse.EventViewers)
	viewersData := viewersEvent.Data.(sse.ViewersData)
	assert.Equal(t, 1, viewersData.Count)

	assert.Equal(t, 1, env.manager.ClientCount())
}

func TestManager_ReservationShowsUpAsLocked(t *testing.T) {
	env := setupTestManager(t)
	ctx := context.Background()

	client, err := env.manager.Connect("shop-b", []string{"prod-1", "prod-2"})
	require.NoError(t, err)
	defer env.manager.Disconnect(client.ID)
	waitEvent(t, client, sse.EventAvailability)

	_, err = env.reservations.Reserve(ctx, "shop-a", []string{"prod-1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		select {
		case event := <-client.EventChan:
			if event.Type != sse.EventAvailability {
				return false
			}
			data := event.Data.(sse.AvailabilityData)
			return len(data.LockedByOthers) == 1 && data.LockedByOthers[0] == "prod-1"
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_BagPresenceShowsUpAsWanted(t *testing.T) {
	env := setupTestManager(t)
	ctx := context.Background()

	client, err := env.manager.Connect("shop-b", []string{"prod-1"})
	require.NoError(t, err)
	defer env.manager.Disconnect(client.ID)
	waitEvent(t, client, sse.EventAvailability)

	require.NoError(t, env.presence.SetPresent(ctx, "prod-1", "shop-c"))

	require.Eventually(t, func() bool {
		select {
		case event := <-client.EventChan:
			if event.Type != sse.EventAvailability {
				return false
			}
			data := event.Data.(sse.AvailabilityData)
			return len(data.WantedByOthers) == 1 && data.WantedByOthers[0] == "prod-1"
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_ViewerCountTracksOtherStreams(t *testing.T) {
	env := setupTestManager(t)

	first, err := env.manager.Connect("shop-b", []string{"prod-1"})
	require.NoError(t, err)
	defer env.manager.Disconnect(first.ID)

	second, err := env.manager.Connect("shop-c", []string{"prod-1"})
	require.NoError(t, err)

	// The first stream sees the count rise to 2 when the second arrives.
	require.Eventually(t, func() bool {
		select {
		case event := <-first.EventChan:
			if event.Type != sse.EventViewers {
				return false
			}
			return event.Data.(sse.ViewersData).Count == 2
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	// And fall back to 1 when it leaves.
	env.manager.Disconnect(second.ID)
	require.Eventually(t, func() bool {
		select {
		case event := <-first.EventChan:
			if event.Type != sse.EventViewers {
				return false
			}
			return event.Data.(sse.ViewersData).Count == 1
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_SameViewerTwoTabsCountedSeparately(t *testing.T) {
	env := setupTestManager(t)
	ctx := context.Background()

	first, err := env.manager.Connect("shop-b", []string{"prod-1"})
	require.NoError(t, err)
	defer env.manager.Disconnect(first.ID)

	second, err := env.manager.Connect("shop-b", []string{"prod-1"})
	require.NoError(t, err)

	count, err := env.viewers.Count(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Closing one tab must not erase the row the other still represents.
	env.manager.Disconnect(second.ID)

	count, err = env.viewers.Count(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestManager_DisconnectRemovesViewerRows(t *testing.T) {
	env := setupTestManager(t)
	ctx := context.Background()

	client, err := env.manager.Connect("shop-b", []string{"prod-1"})
	require.NoError(t, err)

	count, err := env.viewers.Count(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	env.manager.Disconnect(client.ID)

	count, err = env.viewers.Count(ctx, "prod-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	select {
	case <-client.Done:
	default:
		t.Fatal("Done should be closed after Disconnect")
	}

	// Unknown IDs are ignored.
	env.manager.Disconnect("sse-nope")
}

func TestManager_ShutdownRefusesNewStreams(t *testing.T) {
	env := setupTestManager(t)

	client, err := env.manager.Connect("shop-b", []string{"prod-1"})
	require.NoError(t, err)

	require.NoError(t, env.manager.Shutdown(context.Background()))

	select {
	case <-client.Done:
	default:
		t.Fatal("Shutdown should close existing streams")
	}

	_, err = env.manager.Connect("shop-c", []string{"prod-1"})
	assert.Error(t, err)
	assert.Zero(t, env.manager.ClientCount())
}

func TestHandler_StreamsFramesOverHTTP(t *testing.T) {
	env := setupTestManager(t)
	logger := slog.New(slog.DiscardHandler)
	handler := sse.NewHandler(env.manager, logger)

	// Stand-in for the auth middleware.
	withClaims := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithClaims(r.Context(), &auth.AccessClaims{ShopperID: "shop-b"})
		handler.ServeHTTP(w, r.WithContext(ctx))
	})
	server := httptest.NewServer(withClaims)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"?products=prod-1,prod-2", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var sawConnected, sawAvailability bool
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: connected") {
			sawConnected = true
		}
		if strings.HasPrefix(line, "event: availability") {
			sawAvailability = true
		}
		if sawConnected && sawAvailability {
			break
		}
	}
	assert.True(t, sawConnected)
	assert.True(t, sawAvailability)
}

func TestHandler_RejectsMissingProducts(t *testing.T) {
	env := setupTestManager(t)
	handler := sse.NewHandler(env.manager, slog.New(slog.DiscardHandler))

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), &auth.AccessClaims{ShopperID: "shop-b"}))
	handler.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandler_RejectsAnonymousConnection(t *testing.T) {
	env := setupTestManager(t)
	handler := sse.NewHandler(env.manager, slog.New(slog.DiscardHandler))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/stream?products=prod-1", nil))
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}
