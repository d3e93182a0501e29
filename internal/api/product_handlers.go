package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/reloveapp/relove-server/internal/domain"
	domainerrors "github.com/reloveapp/relove-server/internal/errors"
	"github.com/reloveapp/relove-server/internal/search"
)

func (s *Server) registerProductRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "search-products",
		Method:      http.MethodGet,
		Path:        "/api/v1/products",
		Summary:     "Search listings",
		Description: "Full-text search over garment listings with brand, size, condition and price filters. Sold items are excluded unless include_sold is set.",
		Tags:        []string{"Catalog"},
	}, s.handleSearchProducts)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-product",
		Method:      http.MethodGet,
		Path:        "/api/v1/products/{id}",
		Summary:     "Get a listing",
		Tags:        []string{"Catalog"},
	}, s.handleGetProduct)

	huma.Register(s.api, huma.Operation{
		OperationID: "create-product",
		Method:      http.MethodPost,
		Path:        "/api/v1/products",
		Summary:     "Create a listing",
		Security:    []map[string][]string{{"bearer": {}}},
		Tags:        []string{"Catalog"},
	}, s.handleCreateProduct)

	huma.Register(s.api, huma.Operation{
		OperationID: "update-product",
		Method:      http.MethodPatch,
		Path:        "/api/v1/products/{id}",
		Summary:     "Update a listing",
		Security:    []map[string][]string{{"bearer": {}}},
		Tags:        []string{"Catalog"},
	}, s.handleUpdateProduct)

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-product",
		Method:      http.MethodDelete,
		Path:        "/api/v1/products/{id}",
		Summary:     "Delete a listing",
		Security:    []map[string][]string{{"bearer": {}}},
		Tags:        []string{"Catalog"},
	}, s.handleDeleteProduct)

	huma.Register(s.api, huma.Operation{
		OperationID: "reindex-products",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/reindex",
		Summary:     "Rebuild the search index",
		Security:    []map[string][]string{{"bearer": {}}},
		Tags:        []string{"Admin"},
	}, s.handleReindex)
}

// === DTOs ===

// SearchProductsInput carries the search query parameters.
type SearchProductsInput struct {
	Query       string   `query:"q" doc:"Free-text query"`
	Brands      []string `query:"brand" doc:"Brand slugs to filter by"`
	Sizes       []string `query:"size" doc:"Size labels to filter by"`
	Conditions  []string `query:"condition" doc:"Condition labels to filter by"`
	MinPrice    int64    `query:"min_price" doc:"Minimum price in cents"`
	MaxPrice    int64    `query:"max_price" doc:"Maximum price in cents"`
	IncludeSold bool     `query:"include_sold" doc:"Include sold items"`
	Limit       int      `query:"limit" minimum:"1" maximum:"100" doc:"Page size (default 20)"`
	Offset      int      `query:"offset" minimum:"0" doc:"Page offset"`
	SortBy      string   `query:"sort" enum:"relevance,title,price,recent" doc:"Sort field"`
	SortOrder   string   `query:"order" enum:"asc,desc" doc:"Sort direction"`
}

// SearchProductsOutput wraps search results for Huma.
type SearchProductsOutput struct {
	Body search.Result
}

// ProductRequest is the request body for creating a listing.
type ProductRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=200" doc:"Listing title"`
	Description string `json:"description,omitempty" validate:"omitempty,max=5000" doc:"Free-form description"`
	Brand       string `json:"brand,omitempty" validate:"omitempty,max=100" doc:"Brand name"`
	Size        string `json:"size,omitempty" validate:"omitempty,max=20" doc:"Size label"`
	Condition   string `json:"condition,omitempty" validate:"omitempty,max=50" doc:"Condition label"`
	PriceCents  int64  `json:"price_cents" validate:"required,gt=0" doc:"Price in minor units"`
	Currency    string `json:"currency" validate:"required,iso4217" doc:"ISO 4217 currency code"`
}

// CreateProductInput wraps the create request for Huma.
type CreateProductInput struct {
	Body ProductRequest
}

// UpdateProductRequest is the request body for updating a listing.
// Zero values leave the field unchanged.
type UpdateProductRequest struct {
	Title       string `json:"title,omitempty" validate:"omitempty,min=1,max=200" doc:"Listing title"`
	Description string `json:"description,omitempty" validate:"omitempty,max=5000" doc:"Free-form description"`
	Brand       string `json:"brand,omitempty" validate:"omitempty,max=100" doc:"Brand name"`
	Size        string `json:"size,omitempty" validate:"omitempty,max=20" doc:"Size label"`
	Condition   string `json:"condition,omitempty" validate:"omitempty,max=50" doc:"Condition label"`
	PriceCents  int64  `json:"price_cents,omitempty" validate:"omitempty,gt=0" doc:"Price in minor units"`
}

// UpdateProductInput wraps the update request for Huma.
type UpdateProductInput struct {
	ID   string `path:"id" doc:"Product ID"`
	Body UpdateProductRequest
}

// ProductIDInput identifies a listing by path parameter.
type ProductIDInput struct {
	ID string `path:"id" doc:"Product ID"`
}

// ProductOutput wraps a listing for Huma.
type ProductOutput struct {
	Body domain.Product
}

// ReindexResponse reports the result of an index rebuild.
type ReindexResponse struct {
	Indexed int `json:"indexed" doc:"Number of listings indexed"`
}

// ReindexOutput wraps the reindex response for Huma.
type ReindexOutput struct {
	Body ReindexResponse
}

// === Handlers ===

func (s *Server) handleSearchProducts(ctx context.Context, input *SearchProductsInput) (*SearchProductsOutput, error) {
	params := search.DefaultParams()
	params.Query = input.Query
	params.BrandSlugs = input.Brands
	params.Sizes = input.Sizes
	params.Conditions = input.Conditions
	params.MinPrice = input.MinPrice
	params.MaxPrice = input.MaxPrice
	params.IncludeSold = input.IncludeSold
	if input.Limit > 0 {
		params.Limit = input.Limit
	}
	params.Offset = input.Offset
	if input.SortBy != "" {
		params.SortBy = input.SortBy
	}
	if input.SortOrder != "" {
		params.SortOrder = input.SortOrder
	}

	result, err := s.services.Catalog.Search(ctx, params)
	if err != nil {
		return nil, err
	}

	return &SearchProductsOutput{Body: *result}, nil
}

func (s *Server) handleGetProduct(ctx context.Context, input *ProductIDInput) (*ProductOutput, error) {
	product, err := s.services.Catalog.GetProduct(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &ProductOutput{Body: *product}, nil
}

func (s *Server) handleCreateProduct(ctx context.Context, input *CreateProductInput) (*ProductOutput, error) {
	claims, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	product := &domain.Product{
		Title:       input.Body.Title,
		Description: input.Body.Description,
		Brand:       input.Body.Brand,
		Size:        input.Body.Size,
		Condition:   input.Body.Condition,
		PriceCents:  input.Body.PriceCents,
		Currency:    input.Body.Currency,
		SellerID:    claims.UserID,
	}
	if err := s.services.Catalog.CreateProduct(ctx, product); err != nil {
		return nil, err
	}

	return &ProductOutput{Body: *product}, nil
}

func (s *Server) handleUpdateProduct(ctx context.Context, input *UpdateProductInput) (*ProductOutput, error) {
	product, err := s.requireSeller(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	if input.Body.Title != "" {
		product.Title = input.Body.Title
	}
	if input.Body.Description != "" {
		product.Description = input.Body.Description
	}
	if input.Body.Brand != "" {
		product.Brand = input.Body.Brand
	}
	if input.Body.Size != "" {
		product.Size = input.Body.Size
	}
	if input.Body.Condition != "" {
		product.Condition = input.Body.Condition
	}
	if input.Body.PriceCents > 0 {
		product.PriceCents = input.Body.PriceCents
	}

	if err := s.services.Catalog.UpdateProduct(ctx, product); err != nil {
		return nil, err
	}

	return &ProductOutput{Body: *product}, nil
}

func (s *Server) handleDeleteProduct(ctx context.Context, input *ProductIDInput) (*struct{}, error) {
	if _, err := s.requireSeller(ctx, input.ID); err != nil {
		return nil, err
	}
	if err := s.services.Catalog.DeleteProduct(ctx, input.ID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleReindex(ctx context.Context, _ *struct{}) (*ReindexOutput, error) {
	if _, err := requireUser(ctx); err != nil {
		return nil, err
	}
	if err := s.services.Catalog.Reindex(ctx); err != nil {
		return nil, err
	}

	count, err := s.services.Catalog.IndexedCount()
	if err != nil {
		return nil, err
	}
	return &ReindexOutput{Body: ReindexResponse{Indexed: count}}, nil
}

// requireSeller loads a listing and checks the caller owns it.
func (s *Server) requireSeller(ctx context.Context, productID string) (*domain.Product, error) {
	claims, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	product, err := s.services.Catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.SellerID != claims.UserID {
		return nil, domainerrors.Forbidden("only the seller can modify a listing")
	}
	return product, nil
}
