package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reloveapp/relove-server/internal/id"
)

// Subscription is a registered consumer of bus events.
type Subscription struct {
	CreatedAt time.Time
	Events    chan Event
	Done      chan struct{}
	ID        string

	// topics this subscription receives. Empty means "receive all".
	topics map[string]struct{}
}

// Wants reports whether the subscription should receive events on a topic.
func (s *Subscription) Wants(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

// Bus fans change events out to subscriptions by topic.
type Bus struct {
	subs     map[string]*Subscription
	events   chan Event
	loopDone chan struct{}
	logger   *slog.Logger
	mu       sync.RWMutex

	// Shutdown state - protected by shutdownMu
	shutdownMu sync.RWMutex
	shutdown   bool

	heartbeatInterval time.Duration
}

// New creates a new Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bus{
		subs:              make(map[string]*Subscription),
		events:            make(chan Event, 1024), // Buffer bursts of fan-out writes
		loopDone:          make(chan struct{}),
		logger:            logger,
		heartbeatInterval: 30 * time.Second,
	}
}

// Start begins the delivery loop.
// This should be called once at startup in a goroutine.
func (b *Bus) Start(ctx context.Context) {
	defer close(b.loopDone)

	b.logger.Info("event bus starting")

	heartbeatTicker := time.NewTicker(b.heartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case event, ok := <-b.events:
			if !ok {
				// Shutdown closed the queue; any buffered events were
				// already received above before the channel reported closed.
				b.logger.Info("event bus drained")
				b.closeAllSubscriptions()
				return
			}
			b.deliver(event)

		case <-heartbeatTicker.C:
			// Keepalive for streaming consumers.
			b.deliver(NewHeartbeatEvent())

		case <-ctx.Done():
			b.logger.Info("event bus stopping")
			b.closeAllSubscriptions()
			return
		}
	}
}

// Shutdown stops accepting new events and waits for the delivery loop to
// drain the queue and close all subscriptions.
func (b *Bus) Shutdown(ctx context.Context) error {
	// Mark as shutdown AND close the channel while holding the lock.
	// This prevents a race with Publish() which holds a read lock during send.
	b.shutdownMu.Lock()
	if b.shutdown {
		b.shutdownMu.Unlock()
		return nil
	}
	b.shutdown = true
	close(b.events)
	b.shutdownMu.Unlock()

	b.logger.Info("event bus shutdown initiated")

	select {
	case <-b.loopDone:
		b.logger.Info("event bus shutdown complete")
	case <-ctx.Done():
		b.logger.Warn("event bus drain timeout, some events may be lost")
	}
	return nil
}

// Publish queues an event for delivery to matching subscriptions.
// It never blocks; if the queue is full the event is dropped and logged.
// Watchers tolerate drops because they re-query the store on each event.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Hold the read lock through the entire send so Shutdown() cannot close
	// the channel out from under us.
	b.shutdownMu.RLock()
	defer b.shutdownMu.RUnlock()

	if b.shutdown {
		// Expected during shutdown, drop silently.
		return
	}

	select {
	case b.events <- event:
	default:
		b.logger.Error("event bus queue full, dropping event",
			slog.String("topic", event.Topic),
			slog.String("event_type", string(event.Type)))
	}
}

// Subscribe registers a consumer for the given topics.
// Passing no topics subscribes to everything.
func (b *Bus) Subscribe(topics ...string) (*Subscription, error) {
	subID, err := id.Generate("sub")
	if err != nil {
		return nil, err
	}

	topicSet := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		topicSet[t] = struct{}{}
	}

	sub := &Subscription{
		ID:        subID,
		Events:    make(chan Event, 256), // Buffer per-subscription
		Done:      make(chan struct{}),
		CreatedAt: time.Now(),
		topics:    topicSet,
	}

	b.mu.Lock()
	b.subs[sub.ID] = sub
	total := len(b.subs)
	b.mu.Unlock()

	b.logger.Debug("bus subscription opened",
		slog.String("sub_id", subID),
		slog.Int("topics", len(topics)),
		slog.Int("total_subs", total))
	return sub, nil
}

// Unsubscribe removes a subscription and closes its channels.
// Safe to call more than once.
func (b *Bus) Unsubscribe(subID string) {
	b.mu.Lock()
	sub, ok := b.subs[subID]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subs, subID)
	total := len(b.subs)
	b.mu.Unlock()

	close(sub.Done)
	close(sub.Events)

	b.logger.Debug("bus subscription closed",
		slog.String("sub_id", subID),
		slog.Duration("duration", time.Since(sub.CreatedAt)),
		slog.Int("total_subs", total))
}

// SubscriptionCount returns the number of open subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// deliver sends an event to every subscription matching its topic.
func (b *Bus) deliver(event Event) {
	var delivered, dropped int

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		// Heartbeats go to everyone; other events are topic-filtered.
		if event.Type != EventHeartbeat && !sub.Wants(event.Topic) {
			continue
		}

		// Non-blocking send (drop if consumer is slow/stuck).
		select {
		case sub.Events <- event:
			delivered++
		default:
			dropped++
			b.logger.Warn("dropped event for slow subscription",
				slog.String("sub_id", sub.ID),
				slog.String("event_type", string(event.Type)))
		}
	}

	if event.Type != EventHeartbeat {
		b.logger.Debug("event delivered",
			slog.String("topic", event.Topic),
			slog.String("event_type", string(event.Type)),
			slog.Int("delivered", delivered),
			slog.Int("dropped", dropped))
	}
}

// closeAllSubscriptions closes every subscription (used during shutdown).
func (b *Bus) closeAllSubscriptions() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		close(sub.Done)
		close(sub.Events)
	}
	b.subs = make(map[string]*Subscription)

	b.logger.Info("all bus subscriptions closed")
}
