package sse

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/reloveapp/relove-server/internal/id"
	"github.com/reloveapp/relove-server/internal/service"
)

// MaxProductsPerStream bounds how many products one stream may cover. A
// product grid page watches everything above the fold, so the limit is
// generous.
const MaxProductsPerStream = 50

// Client represents one connected product-page stream.
type Client struct {
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}
	ID          string
	ViewerID    string
	Products    []string

	aggregator *service.Aggregator
	cancel     context.CancelFunc
}

// Manager owns the live product-page streams. Each client gets its own
// availability aggregator and viewer-count subscriptions; the manager only
// tracks lifecycles and fans events into per-client buffered channels.
type Manager struct {
	reservations *service.ReservationService
	presence     *service.PresenceService
	viewers      *service.ViewerService
	logger       *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client

	shutdownMu sync.RWMutex
	shutdown   bool
}

// NewManager creates a stream manager.
func NewManager(reservations *service.ReservationService, presence *service.PresenceService, viewers *service.ViewerService, logger *slog.Logger) *Manager {
	return &Manager{
		reservations: reservations,
		presence:     presence,
		viewers:      viewers,
		logger:       logger,
		clients:      make(map[string]*Client),
	}
}

// Connect registers a stream for one viewer over a set of products. The
// viewer is counted as looking at every product on the stream until
// Disconnect. The first availability snapshot and viewer counts are pushed
// onto the client channel before Connect returns.
func (m *Manager) Connect(viewerID string, productIDs []string) (*Client, error) {
	m.shutdownMu.RLock()
	down := m.shutdown
	m.shutdownMu.RUnlock()
	if down {
		return nil, context.Canceled
	}

	clientID, err := id.Generate("sse")
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		ID:          clientID,
		ViewerID:    viewerID,
		Products:    productIDs,
		EventChan:   make(chan Event, 100), // Buffer 100 events per client
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
		aggregator:  service.NewAggregator(m.reservations, m.presence, m.logger),
		cancel:      cancel,
	}

	// The viewer rows make this stream show up in everyone's counter. They
	// are keyed by connection, not by viewer, so two tabs from the same
	// session count as two and closing one does not erase the other.
	for _, productID := range productIDs {
		if err := m.viewers.AddViewer(ctx, productID, clientID); err != nil {
			m.logger.Warn("add viewer failed",
				slog.String("product_id", productID),
				slog.String("error", err.Error()))
		}
	}

	err = client.aggregator.Watch(viewerID, productIDs, func(snapshot service.AvailabilitySnapshot) {
		m.push(client, NewAvailabilityEvent(sortedIDs(snapshot.LockedByOthers), sortedIDs(snapshot.WantedByOthers)))
	})
	if err != nil {
		m.teardown(client)
		return nil, err
	}

	for _, productID := range productIDs {
		pid := productID
		err := m.viewers.SubscribeCount(ctx, pid, func(count int) {
			m.push(client, NewViewersEvent(pid, count))
		})
		if err != nil {
			m.teardown(client)
			return nil, err
		}
	}

	m.mu.Lock()
	m.clients[client.ID] = client
	totalClients := len(m.clients)
	m.mu.Unlock()

	m.logger.Info("stream connected",
		slog.String("client_id", clientID),
		slog.String("viewer_id", viewerID),
		slog.Int("products", len(productIDs)),
		slog.Int("total_clients", totalClients))
	return client, nil
}

// Disconnect tears down a stream: subscriptions canceled, viewer rows
// removed, channels closed. Safe to call for an unknown ID.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	client, ok := m.clients[clientID]
	if ok {
		delete(m.clients, clientID)
	}
	totalClients := len(m.clients)
	m.mu.Unlock()
	if !ok {
		return
	}

	m.teardown(client)
	close(client.Done)

	m.logger.Info("stream disconnected",
		slog.String("client_id", clientID),
		slog.Int("total_clients", totalClients))
}

// Shutdown disconnects every client. New connections are refused afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownMu.Lock()
	m.shutdown = true
	m.shutdownMu.Unlock()

	m.mu.Lock()
	clients := make([]*Client, 0, len(m.clients))
	for _, client := range m.clients {
		clients = append(clients, client)
	}
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for _, client := range clients {
		m.teardown(client)
		close(client.Done)
	}

	m.logger.Info("stream manager shutdown complete", slog.Int("clients_closed", len(clients)))
	return nil
}

// ClientCount returns the number of live streams.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *Manager) teardown(client *Client) {
	client.aggregator.Close()
	client.cancel()

	// Best effort: a crashed teardown just leaves a stale viewer row.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, productID := range client.Products {
		if err := m.viewers.RemoveViewer(ctx, productID, client.ID); err != nil {
			m.logger.Warn("remove viewer failed",
				slog.String("product_id", productID),
				slog.String("error", err.Error()))
		}
	}
}

// push delivers without blocking. Events are full snapshots, so a drop is
// repaired by the next event rather than lost state.
func (m *Manager) push(client *Client, event Event) {
	select {
	case client.EventChan <- event:
	default:
		m.logger.Warn("dropped event for slow client",
			slog.String("client_id", client.ID),
			slog.String("event_type", string(event.Type)))
	}
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for productID := range set {
		ids = append(ids, productID)
	}
	sort.Strings(ids)
	return ids
}
