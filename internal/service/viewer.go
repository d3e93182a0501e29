package service

import (
	"context"
	"log/slog"

	"github.com/reloveapp/relove-server/internal/bus"
	"github.com/reloveapp/relove-server/internal/clock"
	"github.com/reloveapp/relove-server/internal/domain"
	"github.com/reloveapp/relove-server/internal/store"
)

// ViewerService tracks the ephemeral "N people looking at this now" signal.
// No ownership checks, no TTL; cleanup relies on page-lifecycle hooks and is
// best-effort, so a crashed client may leave a stale row behind.
type ViewerService struct {
	store  *store.Store
	bus    *bus.Bus
	clock  clock.Clock
	logger *slog.Logger
}

// NewViewerService creates a viewer service.
func NewViewerService(st *store.Store, b *bus.Bus, clk clock.Clock, logger *slog.Logger) *ViewerService {
	return &ViewerService{
		store:  st,
		bus:    b,
		clock:  clk,
		logger: logger,
	}
}

// AddViewer records that a session is looking at a product page. Idempotent.
func (s *ViewerService) AddViewer(ctx context.Context, productID, viewerID string) error {
	if productID == "" || viewerID == "" {
		return nil
	}
	return s.store.PutViewer(ctx, &domain.Viewer{
		ProductID: productID,
		ViewerID:  viewerID,
		LastSeen:  s.clock.Now(),
	})
}

// RemoveViewer drops the session's viewer row. Idempotent.
func (s *ViewerService) RemoveViewer(ctx context.Context, productID, viewerID string) error {
	if productID == "" || viewerID == "" {
		return nil
	}
	return s.store.DeleteViewer(ctx, productID, viewerID)
}

// Count returns the current viewer count for a product.
func (s *ViewerService) Count(ctx context.Context, productID string) (int, error) {
	return s.store.CountViewers(ctx, productID)
}

// SubscribeCount watches the viewer topic for a product and invokes callback
// with the recount on every change. Fires once with the initial count; ends
// when ctx is canceled.
func (s *ViewerService) SubscribeCount(ctx context.Context, productID string, callback func(count int)) error {
	sub, err := s.bus.Subscribe(bus.ViewerTopic(productID))
	if err != nil {
		return err
	}

	initial, err := s.Count(ctx, productID)
	if err != nil {
		s.bus.Unsubscribe(sub.ID)
		return err
	}
	callback(initial)

	go func() {
		defer s.bus.Unsubscribe(sub.ID)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-sub.Events:
				if !ok {
					return
				}
				if event.Type == bus.EventHeartbeat {
					continue
				}
				count, err := s.Count(ctx, productID)
				if err != nil {
					s.logger.Warn("viewer recount failed", "product_id", productID, "error", err)
					continue
				}
				callback(count)
			}
		}
	}()

	return nil
}
