package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/reloveapp/relove-server/internal/bus"
	"github.com/reloveapp/relove-server/internal/domain"
)

// ErrReservationHeld is returned by TryReserve when another shopper holds a
// live reservation on the product.
var ErrReservationHeld = errors.New("reservation held by another shopper")

// GetReservation returns the reservation document for a product.
// Returns ErrNotFound when no document exists. Callers decide liveness;
// an expired document is still returned.
func (s *Store) GetReservation(ctx context.Context, productID string) (*domain.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var res domain.Reservation
	err := s.db.View(func(txn *badger.Txn) error {
		key := buildKey(prefixReservation, productID)
		defer releaseKey(key)

		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get reservation: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &res)
		})
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// TryReserve writes a reservation if and only if the product is free at the
// given instant: no existing document, an expired one, or one already held by
// the same shopper (which is treated as a renewal). A live reservation held
// by someone else fails with ErrReservationHeld, so the losing shopper can be
// told immediately instead of silently evicting the winner.
//
// The check and the write happen inside one Badger transaction.
func (s *Store) TryReserve(ctx context.Context, res *domain.Reservation, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal reservation: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		key := buildKey(prefixReservation, res.ProductID)
		defer releaseKey(key)

		item, err := txn.Get(key)
		if err == nil {
			var existing domain.Reservation
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &existing)
			}); err != nil {
				return err
			}
			if existing.Live(now) && !existing.HeldBy(res.HolderID) {
				return ErrReservationHeld
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check reservation: %w", err)
		}

		return txn.Set(key, data)
	})
	if err != nil {
		return err
	}

	s.publish(bus.Event{
		Topic: bus.ReservationTopic(res.ProductID),
		Type:  bus.EventReservationPut,
		Data: bus.ReservationData{
			ProductID: res.ProductID,
			HolderID:  res.HolderID,
			ExpiresAt: res.ExpiresAt,
		},
	})
	return nil
}

// ExtendReservation rewrites the reservation with a fresh expiry when, and
// only when, it exists and belongs to the given holder. It reports whether
// the renewal happened; an absent or foreign reservation is skipped without
// error, which means the caller has lost their slot.
func (s *Store) ExtendReservation(ctx context.Context, productID, holderID string, expiresAt, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	renewed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := buildKey(prefixReservation, productID)
		defer releaseKey(key)

		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get reservation: %w", err)
		}

		var existing domain.Reservation
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &existing)
		}); err != nil {
			return err
		}
		if !existing.HeldBy(holderID) {
			return nil
		}

		existing.ExpiresAt = expiresAt
		existing.UpdatedAt = now

		data, err := json.Marshal(&existing)
		if err != nil {
			return fmt.Errorf("failed to marshal reservation: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		renewed = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if renewed {
		s.publish(bus.Event{
			Topic: bus.ReservationTopic(productID),
			Type:  bus.EventReservationPut,
			Data: bus.ReservationData{
				ProductID: productID,
				HolderID:  holderID,
				ExpiresAt: expiresAt,
			},
		})
	}
	return renewed, nil
}

// ReleaseReservation deletes the reservation when it exists and belongs to
// the given holder. It reports whether a delete happened. Releasing an
// absent or foreign reservation is a no-op, making release idempotent.
func (s *Store) ReleaseReservation(ctx context.Context, productID, holderID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	released := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := buildKey(prefixReservation, productID)
		defer releaseKey(key)

		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get reservation: %w", err)
		}

		var existing domain.Reservation
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &existing)
		}); err != nil {
			return err
		}
		if !existing.HeldBy(holderID) {
			return nil
		}

		if err := txn.Delete(key); err != nil {
			return err
		}
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if released {
		s.publish(bus.Event{
			Topic: bus.ReservationTopic(productID),
			Type:  bus.EventReservationDeleted,
			Data: bus.ReservationData{
				ProductID: productID,
				HolderID:  holderID,
			},
		})
	}
	return released, nil
}
