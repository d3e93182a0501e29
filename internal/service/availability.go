package service

import (
	"context"
	"log/slog"
	"sync"

	domainerrors "github.com/reloveapp/relove-server/internal/errors"
)

// AvailabilitySnapshot is the derived availability picture for one observer
// over one product set. A product never appears in both sets: locked wins.
type AvailabilitySnapshot struct {
	LockedByOthers map[string]struct{} `json:"locked_by_others"`
	WantedByOthers map[string]struct{} `json:"wanted_by_others"`
}

// Aggregator composes the locked-by-others and wanted-by-others streams for
// a product set and observer identity. Calling Watch again (new products,
// new identity) tears the previous subscriptions down before creating new
// ones; Close tears everything down.
type Aggregator struct {
	reservations *ReservationService
	presence     *PresenceService
	logger       *slog.Logger

	mu          sync.Mutex
	generation  int
	locked      map[string]struct{}
	wanted      map[string]struct{}
	wantedWatch *WantedWatch
	cancel      context.CancelFunc
	closed      bool
	onChange    func(AvailabilitySnapshot)
}

// NewAggregator creates an aggregator. One aggregator serves one connected
// session; it is not shared between observers.
func NewAggregator(reservations *ReservationService, presence *PresenceService, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		reservations: reservations,
		presence:     presence,
		logger:       logger,
		locked:       make(map[string]struct{}),
		wanted:       make(map[string]struct{}),
	}
}

// Watch replaces the current subscription set with one for the given
// observer and products. The previous watch, if any, is canceled first so a
// stale callback can never race a fresh one. onChange fires once with the
// initial snapshot and then on every underlying change.
func (a *Aggregator) Watch(viewerID string, productIDs []string, onChange func(AvailabilitySnapshot)) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return domainerrors.Internal("aggregator is closed")
	}

	// Teardown before resubscribe. Bumping the generation fences any
	// in-flight callback from the old watch.
	if a.cancel != nil {
		a.cancel()
	}
	a.generation++
	generation := a.generation

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.locked = make(map[string]struct{})
	a.wanted = make(map[string]struct{})
	a.wantedWatch = nil
	a.onChange = onChange
	a.mu.Unlock()

	err := a.reservations.SubscribeReservedByOthers(ctx, viewerID, productIDs, func(locked map[string]struct{}) {
		a.mu.Lock()
		if generation != a.generation || a.closed {
			a.mu.Unlock()
			return
		}
		a.locked = locked
		watch := a.wantedWatch
		snapshot := a.snapshotLocked()
		a.mu.Unlock()

		if watch != nil {
			// The locked set moved, so the wanted set must be
			// re-deduplicated against it.
			watch.Refresh()
		}
		onChange(snapshot)
	})
	if err != nil {
		cancel()
		return err
	}

	getLockedSet := func() map[string]struct{} {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.locked
	}

	watch, err := a.presence.SubscribeWantedByOthers(ctx, viewerID, productIDs, getLockedSet, func(wanted map[string]struct{}) {
		a.mu.Lock()
		if generation != a.generation || a.closed {
			a.mu.Unlock()
			return
		}
		a.wanted = wanted
		snapshot := a.snapshotLocked()
		a.mu.Unlock()

		onChange(snapshot)
	})
	if err != nil {
		cancel()
		return err
	}

	a.mu.Lock()
	if generation == a.generation {
		a.wantedWatch = watch
	}
	a.mu.Unlock()

	return nil
}

// Current returns the latest snapshot.
func (a *Aggregator) Current() AvailabilitySnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// snapshotLocked copies the derived sets. Caller must hold a.mu.
func (a *Aggregator) snapshotLocked() AvailabilitySnapshot {
	snapshot := AvailabilitySnapshot{
		LockedByOthers: make(map[string]struct{}, len(a.locked)),
		WantedByOthers: make(map[string]struct{}, len(a.wanted)),
	}
	for pid := range a.locked {
		snapshot.LockedByOthers[pid] = struct{}{}
	}
	for pid := range a.wanted {
		// Locked wins when a refresh has not caught up yet.
		if _, isLocked := a.locked[pid]; isLocked {
			continue
		}
		snapshot.WantedByOthers[pid] = struct{}{}
	}
	return snapshot
}

// Close tears down both underlying streams. Idempotent.
func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}
