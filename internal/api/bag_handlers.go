package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerBagRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "bag-add",
		Method:      http.MethodPut,
		Path:        "/api/v1/products/{id}/bag",
		Summary:     "Add to bag",
		Description: "Marks the product as present in this shopper's bag. Bag presence is the advisory 'someone wants this' signal other shoppers see; it never blocks a purchase.",
		Security:    []map[string][]string{{"bearer": {}}},
		Tags:        []string{"Bag"},
	}, s.handleBagAdd)

	huma.Register(s.api, huma.Operation{
		OperationID: "bag-remove",
		Method:      http.MethodDelete,
		Path:        "/api/v1/products/{id}/bag",
		Summary:     "Remove from bag",
		Security:    []map[string][]string{{"bearer": {}}},
		Tags:        []string{"Bag"},
	}, s.handleBagRemove)

	huma.Register(s.api, huma.Operation{
		OperationID: "bag-list",
		Method:      http.MethodGet,
		Path:        "/api/v1/bag",
		Summary:     "List bag contents",
		Security:    []map[string][]string{{"bearer": {}}},
		Tags:        []string{"Bag"},
	}, s.handleBagList)
}

// BagResponse lists the product IDs currently in the shopper's bag.
type BagResponse struct {
	ProductIDs []string `json:"product_ids" doc:"Products in the bag"`
}

// BagOutput wraps the bag response for Huma.
type BagOutput struct {
	Body BagResponse
}

func (s *Server) handleBagAdd(ctx context.Context, input *ProductIDInput) (*struct{}, error) {
	claims, err := requireClaims(ctx)
	if err != nil {
		return nil, err
	}

	// The listing must exist; a dangling bag row would haunt the wanted
	// signal until it is cleaned up.
	if _, err := s.services.Catalog.GetProduct(ctx, input.ID); err != nil {
		return nil, err
	}

	if err := s.services.Presence.SetPresent(ctx, input.ID, claims.HolderID()); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleBagRemove(ctx context.Context, input *ProductIDInput) (*struct{}, error) {
	claims, err := requireClaims(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.services.Presence.ClearPresent(ctx, input.ID, claims.HolderID()); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleBagList(ctx context.Context, _ *struct{}) (*BagOutput, error) {
	claims, err := requireClaims(ctx)
	if err != nil {
		return nil, err
	}

	productIDs, err := s.services.Presence.ListBag(ctx, claims.HolderID())
	if err != nil {
		return nil, err
	}

	return &BagOutput{Body: BagResponse{ProductIDs: productIDs}}, nil
}
