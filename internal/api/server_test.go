package api

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reloveapp/relove-server/internal/auth"
	"github.com/reloveapp/relove-server/internal/bus"
	"github.com/reloveapp/relove-server/internal/clock"
	"github.com/reloveapp/relove-server/internal/domain"
	"github.com/reloveapp/relove-server/internal/payment"
	"github.com/reloveapp/relove-server/internal/search"
	"github.com/reloveapp/relove-server/internal/service"
	"github.com/reloveapp/relove-server/internal/sse"
	"github.com/reloveapp/relove-server/internal/store"
)

// testEnvelope mirrors APIEnvelope with typed data for assertions.
type testEnvelope[T any] struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
}

// testErrorEnvelope mirrors APIErrorEnvelope.
type testErrorEnvelope struct {
	Version int    `json:"v"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// setupTestServer creates a server over a fresh store with all services
// wired the way cmd/api does it.
func setupTestServer(t *testing.T) *Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	b := bus.New(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Start(ctx)

	st, err := store.New(t.TempDir()+"/db", logger, b)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	idx, err := search.NewIndex(search.Options{DataPath: t.TempDir(), Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	testKeyHex := "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	tokens, err := auth.NewTokenService(testKeyHex, 15*time.Minute, 30*24*time.Hour)
	require.NoError(t, err)

	clk := clock.NewSystem()
	reservations := service.NewReservationService(st, b, clk, logger)
	presence := service.NewPresenceService(st, b, clk, logger)
	viewers := service.NewViewerService(st, b, clk, logger)
	catalog := service.NewCatalogService(st, idx, clk, logger)
	identity := service.NewIdentityService(st, tokens, clk, logger)
	gateway := payment.NewFakeGateway()
	checkout := service.NewCheckoutManager(reservations, presence, catalog, st, gateway, clk, logger)

	sseManager := sse.NewManager(reservations, presence, viewers, logger)
	t.Cleanup(func() { _ = sseManager.Shutdown(context.Background()) })

	return NewServer(st, Services{
		Identity:     identity,
		Catalog:      catalog,
		Reservations: reservations,
		Presence:     presence,
		Viewers:      viewers,
		Checkout:     checkout,
	}, sseManager, logger)
}

// doRequest performs a request against the server, JSON-encoding body when
// present and attaching the bearer token when set.
func doRequest(t *testing.T, server *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	return recorder
}

// decodeData unmarshals the envelope and returns its typed data.
func decodeData[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope testEnvelope[T]
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope), recorder.Body.String())
	require.True(t, envelope.Success, recorder.Body.String())
	return envelope.Data
}

// startShopper starts an anonymous session and returns its token.
func startShopper(t *testing.T, server *Server) string {
	t.Helper()
	resp := doRequest(t, server, http.MethodPost, "/api/v1/auth/session", "", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	return decodeData[SessionResponse](t, resp).Token
}

// registerUser registers an account and returns its token.
func registerUser(t *testing.T, server *Server, email string) string {
	t.Helper()
	resp := doRequest(t, server, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":        email,
		"password":     "correct horse battery",
		"display_name": "Test Seller",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	return decodeData[AuthResponse](t, resp).Token
}

// createListing creates a product as the given seller and returns its ID.
func createListing(t *testing.T, server *Server, sellerToken, title string) string {
	t.Helper()
	resp := doRequest(t, server, http.MethodPost, "/api/v1/products", sellerToken, map[string]any{
		"title":       title,
		"brand":       "Acne Studios",
		"size":        "medium",
		"price_cents": 12000,
		"currency":    "EUR",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	return decodeData[domain.Product](t, resp).ID
}
