package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/reloveapp/relove-server/internal/sse"
)

func (s *Server) registerAvailabilityRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "availability-snapshot",
		Method:      http.MethodGet,
		Path:        "/api/v1/availability",
		Summary:     "Availability snapshot",
		Description: "Returns, relative to the calling session, which of the given products are locked by someone else's checkout and which sit in someone else's bag. A product never appears in both lists.",
		Security:    []map[string][]string{{"bearer": {}}},
		Tags:        []string{"Availability"},
	}, s.handleAvailabilitySnapshot)

	// The live stream is mounted on chi directly: huma's typed responses
	// don't model an unbounded event stream. Connects are rate limited per
	// IP to absorb EventSource reconnect storms.
	streamHandler := sse.NewHandler(s.sseManager, s.logger)
	streamLimiter := RateLimitMiddleware(NewRateLimiter(30, time.Minute, 10), s.logger)
	s.router.Get("/api/v1/availability/stream",
		streamLimiter(streamAuth(s.services.Identity, streamHandler)).ServeHTTP)
}

// AvailabilityInput names the products to report on.
type AvailabilityInput struct {
	Products []string `query:"products" minItems:"1" maxItems:"50" doc:"Product IDs to report on"`
}

// AvailabilityResponse is the viewer-relative snapshot.
type AvailabilityResponse struct {
	LockedByOthers []string `json:"locked_by_others" doc:"Products locked by another shopper's checkout"`
	WantedByOthers []string `json:"wanted_by_others" doc:"Products in another shopper's bag"`
}

// AvailabilityOutput wraps the snapshot for Huma.
type AvailabilityOutput struct {
	Body AvailabilityResponse
}

func (s *Server) handleAvailabilitySnapshot(ctx context.Context, input *AvailabilityInput) (*AvailabilityOutput, error) {
	claims, err := requireClaims(ctx)
	if err != nil {
		return nil, err
	}

	viewerID := claims.HolderID()
	locked, err := s.services.Reservations.LockedByOthers(ctx, viewerID, input.Products)
	if err != nil {
		return nil, err
	}
	wanted, err := s.services.Presence.WantedByOthers(ctx, viewerID, input.Products, locked)
	if err != nil {
		return nil, err
	}

	return &AvailabilityOutput{Body: AvailabilityResponse{
		LockedByOthers: sortedSet(locked),
		WantedByOthers: sortedSet(wanted),
	}}, nil
}

func sortedSet(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for productID := range set {
		ids = append(ids, productID)
	}
	sort.Strings(ids)
	return ids
}
