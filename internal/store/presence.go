package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/reloveapp/relove-server/internal/bus"
	"github.com/reloveapp/relove-server/internal/domain"
)

// Presence documents are keyed productID_holderID, so a prefix scan on
// "productID_" is the field query "all bags currently holding this product".

// SetPresence creates or refreshes a bag-presence document. Idempotent.
func (s *Store) SetPresence(ctx context.Context, p *domain.CartPresence) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		key := buildKey(prefixPresence, domain.PresenceKey(p.ProductID, p.HolderID))
		defer releaseKey(key)
		return txn.Set(key, data)
	})
	if err != nil {
		return err
	}

	s.publish(bus.Event{
		Topic: bus.PresenceTopic(p.ProductID),
		Type:  bus.EventPresencePut,
		Data:  bus.PresenceData{ProductID: p.ProductID, HolderID: p.HolderID},
	})
	return nil
}

// DeletePresence removes a bag-presence document. Idempotent; the change
// event is only published when a document was actually removed.
func (s *Store) DeletePresence(ctx context.Context, productID, holderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deleted := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := buildKey(prefixPresence, domain.PresenceKey(productID, holderID))
		defer releaseKey(key)

		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to check presence: %w", err)
		}

		if err := txn.Delete(key); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return err
	}

	if deleted {
		s.publish(bus.Event{
			Topic: bus.PresenceTopic(productID),
			Type:  bus.EventPresenceDeleted,
			Data:  bus.PresenceData{ProductID: productID, HolderID: holderID},
		})
	}
	return nil
}

// ListPresenceByProduct returns every bag-presence document for a product.
func (s *Store) ListPresenceByProduct(ctx context.Context, productID string) ([]*domain.CartPresence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scanPrefix := []byte(prefixPresence + productID + "_")

	var rows []*domain.CartPresence
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = scanPrefix
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(scanPrefix); it.ValidForPrefix(scanPrefix); it.Next() {
			var p domain.CartPresence
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			})
			if err != nil {
				return err
			}
			rows = append(rows, &p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListPresenceByHolder returns every bag-presence document for a holder.
// This walks all presence rows; the keyspace is small (bags, not orders).
func (s *Store) ListPresenceByHolder(ctx context.Context, holderID string) ([]*domain.CartPresence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scanPrefix := []byte(prefixPresence)

	var rows []*domain.CartPresence
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = scanPrefix
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(scanPrefix); it.ValidForPrefix(scanPrefix); it.Next() {
			var p domain.CartPresence
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			})
			if err != nil {
				return err
			}
			if p.HolderID == holderID {
				rows = append(rows, &p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
