// Package store implements the shared document store on top of Badger.
// Documents are JSON values under prefixed keys; every availability mutation
// is published to the event bus so subscribers observe changes in real time.
// Consistency is last-write-wins per document from the point of view of
// concurrent writers, but single-document read-verify-write sequences run
// inside one Badger transaction.
package store

import (
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/reloveapp/relove-server/internal/bus"
	"github.com/reloveapp/relove-server/internal/domain"
)

// Publisher is the interface for announcing document changes.
// Store uses this to broadcast without depending on bus wiring details.
type Publisher interface {
	Publish(event bus.Event)
}

// NoopPublisher is a no-op implementation of Publisher for testing.
type NoopPublisher struct{}

// Publish implements Publisher.Publish as a no-op.
func (NoopPublisher) Publish(_ bus.Event) {}

// NewNoopPublisher creates a new no-op publisher for testing.
func NewNoopPublisher() Publisher {
	return NoopPublisher{}
}

// Store wraps a Badger database instance.
type Store struct {
	db        *badger.DB
	logger    *slog.Logger
	publisher Publisher

	// Generic collections
	Products *Collection[domain.Product]
	Users    *Collection[domain.User]
	Sessions *Collection[domain.ShopperSession]
	Payments *Collection[domain.PendingPayment]
}

// New creates a new Store instance with the given database path and publisher.
// The publisher is required and used to broadcast availability changes.
func New(path string, logger *slog.Logger, publisher Publisher) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Sync writes to disk to prevent corruption on crashes
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	store := &Store{
		db:        db,
		logger:    logger,
		publisher: publisher,
	}

	store.Products = NewCollection[domain.Product](store, prefixProduct)
	store.Users = NewCollection[domain.User](store, prefixUser).
		WithUniqueIndex("email", func(u *domain.User) []string {
			if u.Email == "" {
				return nil
			}
			return []string{u.Email}
		})
	store.Sessions = NewCollection[domain.ShopperSession](store, prefixSession)
	store.Payments = NewCollection[domain.PendingPayment](store, prefixPayment)

	logger.Info("Badger database opened successfully", "path", path)

	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.logger.Info("closing database")
	return s.db.Close()
}

// publish forwards an event to the configured publisher.
func (s *Store) publish(event bus.Event) {
	if s.publisher != nil {
		s.publisher.Publish(event)
	}
}
