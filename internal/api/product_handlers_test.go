package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reloveapp/relove-server/internal/domain"
	"github.com/reloveapp/relove-server/internal/search"
)

func TestCreateProduct_RequiresAccount(t *testing.T) {
	server := setupTestServer(t)
	shopper := startShopper(t, server)

	resp := doRequest(t, server, http.MethodPost, "/api/v1/products", shopper, map[string]any{
		"title":       "Wool overcoat",
		"price_cents": 12000,
		"currency":    "EUR",
	})
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestCreateProduct_NormalizesAndReturnsListing(t *testing.T) {
	server := setupTestServer(t)
	seller := registerUser(t, server, "seller@example.com")

	resp := doRequest(t, server, http.MethodPost, "/api/v1/products", seller, map[string]any{
		"title":       "Wool overcoat",
		"brand":       "Acne Studios",
		"size":        "medium",
		"price_cents": 12000,
		"currency":    "EUR",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	product := decodeData[domain.Product](t, resp)
	assert.NotEmpty(t, product.ID)
	assert.Equal(t, "M", product.Size)
	assert.False(t, product.Sold)

	resp = doRequest(t, server, http.MethodGet, "/api/v1/products/"+product.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	fetched := decodeData[domain.Product](t, resp)
	assert.Equal(t, product.Title, fetched.Title)
}

func TestCreateProduct_RejectsBadCurrency(t *testing.T) {
	server := setupTestServer(t)
	seller := registerUser(t, server, "seller@example.com")

	resp := doRequest(t, server, http.MethodPost, "/api/v1/products", seller, map[string]any{
		"title":       "Wool overcoat",
		"price_cents": 12000,
		"currency":    "EURO",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetProduct_NotFound(t *testing.T) {
	server := setupTestServer(t)

	resp := doRequest(t, server, http.MethodGet, "/api/v1/products/prod-nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestUpdateProduct_OnlySeller(t *testing.T) {
	server := setupTestServer(t)
	seller := registerUser(t, server, "seller@example.com")
	other := registerUser(t, server, "other@example.com")
	productID := createListing(t, server, seller, "Wool overcoat")

	resp := doRequest(t, server, http.MethodPatch, "/api/v1/products/"+productID, other, map[string]any{
		"title": "Hijacked",
	})
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = doRequest(t, server, http.MethodPatch, "/api/v1/products/"+productID, seller, map[string]any{
		"title":       "Wool overcoat, belted",
		"price_cents": 9900,
	})
	require.Equal(t, http.StatusOK, resp.Code)
	updated := decodeData[domain.Product](t, resp)
	assert.Equal(t, "Wool overcoat, belted", updated.Title)
	assert.Equal(t, int64(9900), updated.PriceCents)
}

func TestDeleteProduct_RemovesListing(t *testing.T) {
	server := setupTestServer(t)
	seller := registerUser(t, server, "seller@example.com")
	productID := createListing(t, server, seller, "Wool overcoat")

	resp := doRequest(t, server, http.MethodDelete, "/api/v1/products/"+productID, seller, nil)
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = doRequest(t, server, http.MethodGet, "/api/v1/products/"+productID, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSearchProducts_FiltersAndExcludesSold(t *testing.T) {
	server := setupTestServer(t)
	seller := registerUser(t, server, "seller@example.com")
	createListing(t, server, seller, "Wool overcoat")
	createListing(t, server, seller, "Silk scarf")

	resp := doRequest(t, server, http.MethodGet, "/api/v1/products?q=overcoat", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	result := decodeData[search.Result](t, resp)
	require.Equal(t, uint64(1), result.Total)
	assert.Equal(t, "Wool overcoat", result.Hits[0].Title)

	// Brand filter uses slugs.
	resp = doRequest(t, server, http.MethodGet, "/api/v1/products?brand=acne-studios", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	result = decodeData[search.Result](t, resp)
	assert.Equal(t, uint64(2), result.Total)
}

func TestReindex_ReportsCount(t *testing.T) {
	server := setupTestServer(t)
	seller := registerUser(t, server, "seller@example.com")
	createListing(t, server, seller, "Wool overcoat")
	createListing(t, server, seller, "Silk scarf")

	resp := doRequest(t, server, http.MethodPost, "/api/v1/admin/reindex", seller, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	report := decodeData[ReindexResponse](t, resp)
	assert.Equal(t, 2, report.Indexed)
}
