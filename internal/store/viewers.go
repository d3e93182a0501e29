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

// Viewer documents are keyed productID_viewerID. They carry no ownership
// semantics; anyone may add or remove any viewer row. Cleanup relies on
// page-lifecycle hooks and is best-effort only.

// PutViewer creates or refreshes a viewer document. Idempotent.
func (s *Store) PutViewer(ctx context.Context, v *domain.Viewer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal viewer: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		key := buildKey(prefixViewer, domain.ViewerKey(v.ProductID, v.ViewerID))
		defer releaseKey(key)
		return txn.Set(key, data)
	})
	if err != nil {
		return err
	}

	s.publish(bus.Event{
		Topic: bus.ViewerTopic(v.ProductID),
		Type:  bus.EventViewerPut,
		Data:  bus.ViewerData{ProductID: v.ProductID, ViewerID: v.ViewerID},
	})
	return nil
}

// DeleteViewer removes a viewer document. Idempotent; publishes only when a
// document was actually removed.
func (s *Store) DeleteViewer(ctx context.Context, productID, viewerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deleted := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := buildKey(prefixViewer, domain.ViewerKey(productID, viewerID))
		defer releaseKey(key)

		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to check viewer: %w", err)
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
			Topic: bus.ViewerTopic(productID),
			Type:  bus.EventViewerDeleted,
			Data:  bus.ViewerData{ProductID: productID, ViewerID: viewerID},
		})
	}
	return nil
}

// CountViewers returns how many viewer documents exist for a product.
func (s *Store) CountViewers(ctx context.Context, productID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	scanPrefix := []byte(prefixViewer + productID + "_")

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = scanPrefix
		opts.PrefetchValues = false // Keys are enough for counting

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(scanPrefix); it.ValidForPrefix(scanPrefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
