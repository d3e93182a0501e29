package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Collection provides generic document operations for any domain type.
type Collection[T any] struct {
	store   *Store
	prefix  string
	indexes []index[T]
}

// index defines a secondary index on a collection.
// Unique indexes map one value to one document and reject conflicts;
// non-unique indexes allow many documents to share a value and back
// field queries (ListByIndex).
type index[T any] struct {
	name   string
	keyGen func(*T) []string
	unique bool
}

// NewCollection creates a new Collection instance for type T.
func NewCollection[T any](s *Store, prefix string) *Collection[T] {
	return &Collection[T]{
		store:   s,
		prefix:  prefix,
		indexes: make([]index[T], 0),
	}
}

// WithIndex adds a non-unique secondary index to the collection.
func (c *Collection[T]) WithIndex(name string, keyGen func(*T) []string) *Collection[T] {
	c.indexes = append(c.indexes, index[T]{name: name, keyGen: keyGen})
	return c
}

// WithUniqueIndex adds a unique secondary index to the collection.
func (c *Collection[T]) WithUniqueIndex(name string, keyGen func(*T) []string) *Collection[T] {
	c.indexes = append(c.indexes, index[T]{name: name, keyGen: keyGen, unique: true})
	return c
}

// indexKey builds the stored key for one index entry.
// Non-unique entries append the document ID so many documents can share a value.
func (c *Collection[T]) indexKey(idx index[T], value, docID string) string {
	if idx.unique {
		return c.prefix + "idx:" + idx.name + ":" + value
	}
	return c.prefix + "idx:" + idx.name + ":" + value + ":" + docID
}

// Create creates a new document with the given ID.
// Returns ErrAlreadyExists if a document with this ID already exists or a
// unique index value is taken.
func (c *Collection[T]) Create(ctx context.Context, id string, doc *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	key := c.prefix + id

	return c.store.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check existing key: %w", err)
		}

		if err := c.checkUniqueConflicts(txn, doc, id); err != nil {
			return err
		}

		if err := txn.Set([]byte(key), data); err != nil {
			return fmt.Errorf("failed to set key: %w", err)
		}

		return c.writeIndexEntries(txn, doc, id)
	})
}

// Put creates or replaces a document, keeping index entries in sync.
func (c *Collection[T]) Put(ctx context.Context, id string, doc *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	key := c.prefix + id

	return c.store.db.Update(func(txn *badger.Txn) error {
		// Clean up index entries for a previous version, if any.
		old, err := c.getInTxn(txn, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if old != nil {
			if err := c.deleteIndexEntries(txn, old, id); err != nil {
				return err
			}
		}

		if err := c.checkUniqueConflicts(txn, doc, id); err != nil {
			return err
		}

		if err := txn.Set([]byte(key), data); err != nil {
			return fmt.Errorf("failed to set key: %w", err)
		}

		return c.writeIndexEntries(txn, doc, id)
	})
}

// Get retrieves a document by ID.
// Returns ErrNotFound if the document does not exist.
func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var doc *T
	err := c.store.db.View(func(txn *badger.Txn) error {
		var err error
		doc, err = c.getInTxn(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetByUniqueIndex retrieves a document via a unique secondary index.
func (c *Collection[T]) GetByUniqueIndex(ctx context.Context, indexName, value string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idxKey := []byte(c.prefix + "idx:" + indexName + ":" + value)

	var id string
	err := c.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(idxKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return c.Get(ctx, id)
}

// Delete deletes a document by ID.
// This operation is idempotent - it does not return an error if the document
// does not exist.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := c.prefix + id

	return c.store.db.Update(func(txn *badger.Txn) error {
		doc, err := c.getInTxn(txn, id)
		if errors.Is(err, ErrNotFound) {
			// Idempotent - no error if it doesn't exist.
			return nil
		}
		if err != nil {
			return err
		}

		if err := c.deleteIndexEntries(txn, doc, id); err != nil {
			return err
		}

		if err := txn.Delete([]byte(key)); err != nil {
			return fmt.Errorf("failed to delete key: %w", err)
		}
		return nil
	})
}

// ListByIndex returns all documents whose non-unique index entry matches value.
func (c *Collection[T]) ListByIndex(ctx context.Context, indexName, value string) ([]*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scanPrefix := []byte(c.prefix + "idx:" + indexName + ":" + value + ":")

	var ids []string
	err := c.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = scanPrefix
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(scanPrefix); it.ValidForPrefix(scanPrefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	docs := make([]*T, 0, len(ids))
	for _, id := range ids {
		doc, err := c.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Index entry raced a delete; skip the stale pointer.
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// List returns an iterator over all documents in the collection.
func (c *Collection[T]) List(ctx context.Context) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		_ = c.store.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(c.prefix)
			opts.PrefetchValues = true

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek([]byte(c.prefix)); it.ValidForPrefix([]byte(c.prefix)); it.Next() {
				if ctx.Err() != nil {
					yield(nil, ctx.Err())
					return ctx.Err()
				}

				// Skip index keys.
				key := string(it.Item().Key())
				if strings.HasPrefix(key[len(c.prefix):], "idx:") {
					continue
				}

				var doc T
				err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &doc)
				})
				if err != nil {
					yield(nil, err)
					return err
				}

				if !yield(&doc, nil) {
					return nil // Consumer stopped early
				}
			}
			return nil
		})
	}
}

// getInTxn reads and unmarshals one document inside an open transaction.
func (c *Collection[T]) getInTxn(txn *badger.Txn, id string) (*T, error) {
	key := buildKey(c.prefix, id)
	defer releaseKey(key)

	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}

	var doc T
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &doc)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return &doc, nil
}

// checkUniqueConflicts fails when a unique index value is held by another document.
func (c *Collection[T]) checkUniqueConflicts(txn *badger.Txn, doc *T, docID string) error {
	for _, idx := range c.indexes {
		if !idx.unique {
			continue
		}
		for _, value := range idx.keyGen(doc) {
			idxKey := []byte(c.indexKey(idx, value, docID))
			item, err := txn.Get(idxKey)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to check index key: %w", err)
			}

			var owner string
			if err := item.Value(func(val []byte) error {
				owner = string(val)
				return nil
			}); err != nil {
				return err
			}
			if owner != docID {
				return fmt.Errorf("index %s conflict on value %s: %w", idx.name, value, ErrAlreadyExists)
			}
		}
	}
	return nil
}

// writeIndexEntries records every index entry for a document version.
func (c *Collection[T]) writeIndexEntries(txn *badger.Txn, doc *T, docID string) error {
	for _, idx := range c.indexes {
		for _, value := range idx.keyGen(doc) {
			if err := txn.Set([]byte(c.indexKey(idx, value, docID)), []byte(docID)); err != nil {
				return fmt.Errorf("failed to set index key: %w", err)
			}
		}
	}
	return nil
}

// deleteIndexEntries removes every index entry for a document version.
func (c *Collection[T]) deleteIndexEntries(txn *badger.Txn, doc *T, docID string) error {
	for _, idx := range c.indexes {
		for _, value := range idx.keyGen(doc) {
			if err := txn.Delete([]byte(c.indexKey(idx, value, docID))); err != nil {
				return fmt.Errorf("failed to delete index key: %w", err)
			}
		}
	}
	return nil
}
