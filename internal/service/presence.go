package service

import (
	"context"
	"log/slog"

	"github.com/reloveapp/relove-server/internal/bus"
	"github.com/reloveapp/relove-server/internal/clock"
	"github.com/reloveapp/relove-server/internal/domain"
	"github.com/reloveapp/relove-server/internal/store"
)

// PresenceService owns the "in my bag" signal per (product, holder).
// Presence is a weak signal: it nudges other shoppers but never blocks a
// purchase. Only a live reservation may.
type PresenceService struct {
	store  *store.Store
	bus    *bus.Bus
	clock  clock.Clock
	logger *slog.Logger
}

// NewPresenceService creates a presence service.
func NewPresenceService(st *store.Store, b *bus.Bus, clk clock.Clock, logger *slog.Logger) *PresenceService {
	return &PresenceService{
		store:  st,
		bus:    b,
		clock:  clk,
		logger: logger,
	}
}

// SetPresent marks a product as sitting in the holder's bag. Idempotent.
func (s *PresenceService) SetPresent(ctx context.Context, productID, holderID string) error {
	if productID == "" || holderID == "" {
		return nil
	}
	return s.store.SetPresence(ctx, &domain.CartPresence{
		ProductID: productID,
		HolderID:  holderID,
		UpdatedAt: s.clock.Now(),
	})
}

// ClearPresent removes the bag signal. Idempotent.
func (s *PresenceService) ClearPresent(ctx context.Context, productID, holderID string) error {
	if productID == "" || holderID == "" {
		return nil
	}
	return s.store.DeletePresence(ctx, productID, holderID)
}

// ClearPresentBatch clears presence for a set of products, fanning out so
// one failure never aborts the rest. Used when a holder enters checkout and
// bag presence converts into reservation intent; callers must subsequently
// reserve.
func (s *PresenceService) ClearPresentBatch(ctx context.Context, holderID string, productIDs []string) []string {
	var cleared []string
	for _, productID := range productIDs {
		if ctx.Err() != nil {
			return cleared
		}
		if err := s.ClearPresent(ctx, productID, holderID); err != nil {
			s.logger.Warn("clear presence failed", "product_id", productID, "holder_id", holderID, "error", err)
			continue
		}
		cleared = append(cleared, productID)
	}
	return cleared
}

// ListBag returns the product IDs currently in the holder's bag.
func (s *PresenceService) ListBag(ctx context.Context, holderID string) ([]string, error) {
	rows, err := s.store.ListPresenceByHolder(ctx, holderID)
	if err != nil {
		return nil, err
	}
	productIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		productIDs = append(productIDs, row.ProductID)
	}
	return productIDs, nil
}

// WantedByOthers computes the set of products some other holder has bagged
// AND that are not already hard-locked. The locked set is supplied by the
// caller so a product is never reported as both wanted and locked.
func (s *PresenceService) WantedByOthers(ctx context.Context, viewerID string, productIDs []string, locked map[string]struct{}) (map[string]struct{}, error) {
	wanted := make(map[string]struct{})

	for _, productID := range productIDs {
		if err := ctx.Err(); err != nil {
			return wanted, err
		}
		if _, isLocked := locked[productID]; isLocked {
			continue
		}

		rows, err := s.store.ListPresenceByProduct(ctx, productID)
		if err != nil {
			s.logger.Warn("presence lookup failed", "product_id", productID, "error", err)
			continue
		}
		for _, row := range rows {
			if row.HolderID != viewerID {
				wanted[productID] = struct{}{}
				break
			}
		}
	}

	return wanted, nil
}

// WantedWatch is a live subscription to the wanted-by-others set. The
// watched set is re-evaluated in full on every presence change and whenever
// Refresh is called (the aggregator calls it when the locked set moves, the
// store has no compound listen-and-diff primitive).
type WantedWatch struct {
	refresh chan struct{}
}

// Refresh asks the watch to recompute against the current locked set.
// Non-blocking; coalesces with a pending refresh.
func (w *WantedWatch) Refresh() {
	select {
	case w.refresh <- struct{}{}:
	default:
	}
}

// SubscribeWantedByOthers watches presence topics for a product set and
// invokes callback with the recomputed wanted set on every change. The
// getLockedSet callback supplies the current hard-lock set for de-dup.
// Fires once with the initial state; ends when ctx is canceled.
func (s *PresenceService) SubscribeWantedByOthers(ctx context.Context, viewerID string, productIDs []string, getLockedSet func() map[string]struct{}, callback func(wanted map[string]struct{})) (*WantedWatch, error) {
	topics := make([]string, 0, len(productIDs))
	for _, productID := range productIDs {
		topics = append(topics, bus.PresenceTopic(productID))
	}

	sub, err := s.bus.Subscribe(topics...)
	if err != nil {
		return nil, err
	}
	watch := &WantedWatch{refresh: make(chan struct{}, 1)}

	initial, err := s.WantedByOthers(ctx, viewerID, productIDs, getLockedSet())
	if err != nil {
		s.bus.Unsubscribe(sub.ID)
		return nil, err
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
			case <-watch.refresh:
			}

			wanted, err := s.WantedByOthers(ctx, viewerID, productIDs, getLockedSet())
			if err != nil {
				return
			}
			callback(wanted)
		}
	}()

	return watch, nil
}
