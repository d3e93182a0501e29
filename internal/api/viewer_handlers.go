package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerViewerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "viewer-enter",
		Method:      http.MethodPut,
		Path:        "/api/v1/products/{id}/viewing",
		Summary:     "Enter product page",
		Description: "Counts this session as looking at the product. Clients without the live stream call this on mount and delete it on unmount.",
		Security:    []map[string][]string{{"bearer": {}}},
		Tags:        []string{"Viewers"},
	}, s.handleViewerEnter)

	huma.Register(s.api, huma.Operation{
		OperationID: "viewer-leave",
		Method:      http.MethodDelete,
		Path:        "/api/v1/products/{id}/viewing",
		Summary:     "Leave product page",
		Security:    []map[string][]string{{"bearer": {}}},
		Tags:        []string{"Viewers"},
	}, s.handleViewerLeave)

	huma.Register(s.api, huma.Operation{
		OperationID: "viewer-count",
		Method:      http.MethodGet,
		Path:        "/api/v1/products/{id}/viewers",
		Summary:     "Current viewer count",
		Tags:        []string{"Viewers"},
	}, s.handleViewerCount)
}

// ViewerCountResponse carries the live viewer count of a product.
type ViewerCountResponse struct {
	ProductID string `json:"product_id" doc:"Product ID"`
	Count     int    `json:"count" doc:"Sessions currently on the page"`
}

// ViewerCountOutput wraps the viewer count for Huma.
type ViewerCountOutput struct {
	Body ViewerCountResponse
}

func (s *Server) handleViewerEnter(ctx context.Context, input *ProductIDInput) (*struct{}, error) {
	claims, err := requireClaims(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.services.Viewers.AddViewer(ctx, input.ID, claims.HolderID()); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleViewerLeave(ctx context.Context, input *ProductIDInput) (*struct{}, error) {
	claims, err := requireClaims(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.services.Viewers.RemoveViewer(ctx, input.ID, claims.HolderID()); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleViewerCount(ctx context.Context, input *ProductIDInput) (*ViewerCountOutput, error) {
	count, err := s.services.Viewers.Count(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &ViewerCountOutput{Body: ViewerCountResponse{ProductID: input.ID, Count: count}}, nil
}
