package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/reloveapp/relove-server/internal/bus"
	"github.com/reloveapp/relove-server/internal/clock"
	"github.com/reloveapp/relove-server/internal/domain"
	"github.com/reloveapp/relove-server/internal/store"
)

const (
	// DefaultReservationTTL is how long a checkout holds a product without
	// a heartbeat.
	DefaultReservationTTL = 10 * time.Minute
	// DefaultHeartbeatInterval is the renewal period. A safe fraction of
	// the TTL: several beats can fail before the hold lapses.
	DefaultHeartbeatInterval = 2 * time.Minute
)

// ReservationService owns the exclusive "about to be paid for" hold per
// product. Holds are advisory documents with a TTL; liveness is computed by
// readers against the injected clock, there is no expiry sweep.
type ReservationService struct {
	store  *store.Store
	bus    *bus.Bus
	clock  clock.Clock
	logger *slog.Logger

	tunablesMu        sync.RWMutex
	ttl               time.Duration
	heartbeatInterval time.Duration
}

// ReservationOption customizes a ReservationService.
type ReservationOption func(*ReservationService)

// WithTTL overrides the reservation TTL. Used by tests and ops tuning.
func WithTTL(d time.Duration) ReservationOption {
	return func(s *ReservationService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithHeartbeatInterval overrides the heartbeat period.
func WithHeartbeatInterval(d time.Duration) ReservationOption {
	return func(s *ReservationService) {
		if d > 0 {
			s.heartbeatInterval = d
		}
	}
}

// NewReservationService creates a reservation service.
func NewReservationService(st *store.Store, b *bus.Bus, clk clock.Clock, logger *slog.Logger, opts ...ReservationOption) *ReservationService {
	s := &ReservationService{
		store:             st,
		bus:               b,
		clock:             clk,
		logger:            logger,
		ttl:               DefaultReservationTTL,
		heartbeatInterval: DefaultHeartbeatInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the configured reservation lifetime.
func (s *ReservationService) TTL() time.Duration {
	s.tunablesMu.RLock()
	defer s.tunablesMu.RUnlock()
	return s.ttl
}

// HeartbeatInterval returns the renewal period, exposed so callers can
// schedule extends at a safe fraction of the TTL.
func (s *ReservationService) HeartbeatInterval() time.Duration {
	s.tunablesMu.RLock()
	defer s.tunablesMu.RUnlock()
	return s.heartbeatInterval
}

// Retune replaces the TTL and heartbeat interval at runtime. Config reload
// calls this; existing holds keep their old expiry until the next extend.
func (s *ReservationService) Retune(ttl, heartbeatInterval time.Duration) {
	s.tunablesMu.Lock()
	defer s.tunablesMu.Unlock()
	if ttl > 0 {
		s.ttl = ttl
	}
	if heartbeatInterval > 0 {
		s.heartbeatInterval = heartbeatInterval
	}
}

// ReserveOutcome reports the per-product result of a batch reserve. Each
// product's write is independent; one failure never aborts the rest.
type ReserveOutcome struct {
	Reserved  []string  `json:"reserved"`
	Conflicts []string  `json:"conflicts"`
	Failed    []string  `json:"failed"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AllReserved reports whether every requested product was reserved.
func (o *ReserveOutcome) AllReserved() bool {
	return len(o.Conflicts) == 0 && len(o.Failed) == 0
}

// Reserve writes a reservation for each product with a fresh TTL. A product
// held live by another shopper lands in Conflicts so the loser can be told
// immediately; transient store failures land in Failed and are retried on
// the next heartbeat. Empty input is a no-op.
func (s *ReservationService) Reserve(ctx context.Context, holderID string, productIDs []string) (*ReserveOutcome, error) {
	outcome := &ReserveOutcome{}
	if holderID == "" || len(productIDs) == 0 {
		return outcome, nil
	}

	now := s.clock.Now()
	outcome.ExpiresAt = now.Add(s.TTL())

	for _, productID := range productIDs {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		res := &domain.Reservation{
			ProductID: productID,
			HolderID:  holderID,
			ExpiresAt: outcome.ExpiresAt,
			UpdatedAt: now,
		}

		err := s.store.TryReserve(ctx, res, now)
		switch {
		case err == nil:
			outcome.Reserved = append(outcome.Reserved, productID)
		case errors.Is(err, store.ErrReservationHeld):
			outcome.Conflicts = append(outcome.Conflicts, productID)
		default:
			s.logger.Warn("reserve failed", "product_id", productID, "holder_id", holderID, "error", err)
			outcome.Failed = append(outcome.Failed, productID)
		}
	}

	return outcome, nil
}

// Extend renews each product the holder still owns and returns the renewed
// IDs with the new expiry. An absent or foreign reservation is silently
// skipped: the holder has lost that slot.
func (s *ReservationService) Extend(ctx context.Context, holderID string, productIDs []string) ([]string, time.Time, error) {
	if holderID == "" || len(productIDs) == 0 {
		return nil, time.Time{}, nil
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.TTL())

	var renewed []string
	for _, productID := range productIDs {
		if err := ctx.Err(); err != nil {
			return renewed, expiresAt, err
		}

		ok, err := s.store.ExtendReservation(ctx, productID, holderID, expiresAt, now)
		if err != nil {
			s.logger.Warn("extend failed", "product_id", productID, "holder_id", holderID, "error", err)
			continue
		}
		if ok {
			renewed = append(renewed, productID)
		}
	}

	return renewed, expiresAt, nil
}

// Release deletes each reservation the holder owns. Foreign or absent
// reservations are left alone, so release is idempotent and safe to wire to
// multiple teardown paths.
func (s *ReservationService) Release(ctx context.Context, holderID string, productIDs []string) ([]string, error) {
	if holderID == "" || len(productIDs) == 0 {
		return nil, nil
	}

	var released []string
	for _, productID := range productIDs {
		if err := ctx.Err(); err != nil {
			return released, err
		}

		ok, err := s.store.ReleaseReservation(ctx, productID, holderID)
		if err != nil {
			s.logger.Warn("release failed", "product_id", productID, "holder_id", holderID, "error", err)
			continue
		}
		if ok {
			released = append(released, productID)
		}
	}

	return released, nil
}

// LockedByOthers computes the set of products with a live reservation held
// by someone other than the viewer. Products whose lookup fails are treated
// as free; the next change notification corrects the picture.
func (s *ReservationService) LockedByOthers(ctx context.Context, viewerID string, productIDs []string) (map[string]struct{}, error) {
	locked := make(map[string]struct{})
	now := s.clock.Now()

	for _, productID := range productIDs {
		if err := ctx.Err(); err != nil {
			return locked, err
		}

		res, err := s.store.GetReservation(ctx, productID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn("reservation lookup failed", "product_id", productID, "error", err)
			continue
		}
		if res.Live(now) && !res.HeldBy(viewerID) {
			locked[productID] = struct{}{}
		}
	}

	return locked, nil
}

// SubscribeReservedByOthers watches the reservation topics for a product set
// and invokes callback with the recomputed locked set on every change. The
// full set is recomputed per event; the callback also fires once with the
// initial state. The watch ends when ctx is canceled.
//
// Callbacks are invoked from a single goroutine per subscription.
func (s *ReservationService) SubscribeReservedByOthers(ctx context.Context, viewerID string, productIDs []string, callback func(locked map[string]struct{})) error {
	topics := make([]string, 0, len(productIDs))
	for _, productID := range productIDs {
		topics = append(topics, bus.ReservationTopic(productID))
	}

	sub, err := s.bus.Subscribe(topics...)
	if err != nil {
		return err
	}

	initial, err := s.LockedByOthers(ctx, viewerID, productIDs)
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
				locked, err := s.LockedByOthers(ctx, viewerID, productIDs)
				if err != nil {
					return
				}
				callback(locked)
			}
		}
	}()

	return nil
}
