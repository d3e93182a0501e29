package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailabilitySnapshot_ReflectsLocksAndBags(t *testing.T) {
	server := setupTestServer(t)
	seller := registerUser(t, server, "seller@example.com")
	prodA := createListing(t, server, seller, "Wool overcoat")
	prodB := createListing(t, server, seller, "Silk scarf")

	holder := startShopper(t, server)
	observer := startShopper(t, server)

	// Holder bags A and takes B through checkout.
	resp := doRequest(t, server, http.MethodPut, "/api/v1/products/"+prodA+"/bag", holder, nil)
	require.Equal(t, http.StatusNoContent, resp.Code)
	resp = doRequest(t, server, http.MethodPost, "/api/v1/checkout", holder, map[string]any{
		"product_ids": []string{prodB},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = doRequest(t, server, http.MethodGet,
		"/api/v1/availability?products="+prodA+","+prodB, observer, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	snapshot := decodeData[AvailabilityResponse](t, resp)
	assert.Equal(t, []string{prodB}, snapshot.LockedByOthers)
	assert.Equal(t, []string{prodA}, snapshot.WantedByOthers)

	// The holder's own snapshot shows neither: your bag and your lock are
	// not "others".
	resp = doRequest(t, server, http.MethodGet,
		"/api/v1/availability?products="+prodA+","+prodB, holder, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	own := decodeData[AvailabilityResponse](t, resp)
	assert.Empty(t, own.LockedByOthers)
	assert.Empty(t, own.WantedByOthers)
}

func TestAvailabilitySnapshot_RequiresIdentity(t *testing.T) {
	server := setupTestServer(t)

	resp := doRequest(t, server, http.MethodGet, "/api/v1/availability?products=prod-1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestViewerCount_RoundTrip(t *testing.T) {
	server := setupTestServer(t)
	seller := registerUser(t, server, "seller@example.com")
	productID := createListing(t, server, seller, "Wool overcoat")

	shopper := startShopper(t, server)

	resp := doRequest(t, server, http.MethodPut, "/api/v1/products/"+productID+"/viewing", shopper, nil)
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = doRequest(t, server, http.MethodGet, "/api/v1/products/"+productID+"/viewers", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	count := decodeData[ViewerCountResponse](t, resp)
	assert.Equal(t, 1, count.Count)

	resp = doRequest(t, server, http.MethodDelete, "/api/v1/products/"+productID+"/viewing", shopper, nil)
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = doRequest(t, server, http.MethodGet, "/api/v1/products/"+productID+"/viewers", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	count = decodeData[ViewerCountResponse](t, resp)
	assert.Zero(t, count.Count)
}

func TestAvailabilityStream_ServesEventStream(t *testing.T) {
	server := setupTestServer(t)
	shopper := startShopper(t, server)

	ts := httptest.NewServer(server)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// EventSource cannot set headers; the token rides the query string.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		ts.URL+"/api/v1/availability/stream?products=prod-1&token="+shopper, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sawConnected := false
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "event: connected") {
			sawConnected = true
			break
		}
	}
	assert.True(t, sawConnected)
}
