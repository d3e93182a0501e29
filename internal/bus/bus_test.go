package bus

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestBus(t *testing.T) *Bus {
	t.Helper()

	b := New(slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	go b.Start(ctx)
	t.Cleanup(cancel)
	return b
}

func waitForEvent(t *testing.T, sub *Subscription, eventType EventType) Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub.Events:
			if ev.Type == eventType {
				return ev
			}
			// Skip heartbeats and unrelated types.
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", eventType)
		}
	}
}

func TestBus_DeliversToMatchingTopic(t *testing.T) {
	b := startTestBus(t)

	sub, err := b.Subscribe(ReservationTopic("prod-1"))
	require.NoError(t, err)
	defer b.Unsubscribe(sub.ID)

	b.Publish(Event{
		Topic: ReservationTopic("prod-1"),
		Type:  EventReservationPut,
		Data:  ReservationData{ProductID: "prod-1", HolderID: "shop-a"},
	})

	ev := waitForEvent(t, sub, EventReservationPut)
	data, ok := ev.Data.(ReservationData)
	require.True(t, ok)
	assert.Equal(t, "prod-1", data.ProductID)
	assert.Equal(t, "shop-a", data.HolderID)
}

func TestBus_FiltersOtherTopics(t *testing.T) {
	b := startTestBus(t)

	sub, err := b.Subscribe(ReservationTopic("prod-1"))
	require.NoError(t, err)
	defer b.Unsubscribe(sub.ID)

	b.Publish(Event{Topic: ReservationTopic("prod-2"), Type: EventReservationPut})
	b.Publish(Event{Topic: PresenceTopic("prod-1"), Type: EventPresencePut})
	b.Publish(Event{Topic: ReservationTopic("prod-1"), Type: EventReservationDeleted})

	// The first matching event must be the prod-1 reservation delete;
	// anything before it would be a filtering bug.
	ev := waitForEvent(t, sub, EventReservationDeleted)
	assert.Equal(t, ReservationTopic("prod-1"), ev.Topic)
}

func TestBus_EmptyTopicsReceivesAll(t *testing.T) {
	b := startTestBus(t)

	sub, err := b.Subscribe()
	require.NoError(t, err)
	defer b.Unsubscribe(sub.ID)

	b.Publish(Event{Topic: ViewerTopic("prod-9"), Type: EventViewerPut})

	ev := waitForEvent(t, sub, EventViewerPut)
	assert.Equal(t, ViewerTopic("prod-9"), ev.Topic)
}

func TestBus_UnsubscribeClosesChannels(t *testing.T) {
	b := startTestBus(t)

	sub, err := b.Subscribe(ReservationTopic("prod-1"))
	require.NoError(t, err)

	b.Unsubscribe(sub.ID)

	select {
	case <-sub.Done:
	case <-time.After(time.Second):
		t.Fatal("Done channel not closed after Unsubscribe")
	}

	// Double unsubscribe must not panic.
	b.Unsubscribe(sub.ID)
	assert.Equal(t, 0, b.SubscriptionCount())
}

func TestBus_PublishAfterShutdownIsDropped(t *testing.T) {
	b := New(slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	go b.Start(ctx)
	defer cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	require.NoError(t, b.Shutdown(shutdownCtx))

	// Must not panic on a closed bus.
	b.Publish(Event{Topic: ReservationTopic("prod-1"), Type: EventReservationPut})
}

func TestBus_ShutdownReturnsWithDeliveryLoopRunning(t *testing.T) {
	b := New(slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	go b.Start(ctx)
	defer cancel()

	sub, err := b.Subscribe(ReservationTopic("prod-1"))
	require.NoError(t, err)

	// Prove the delivery loop is up before shutting down.
	b.Publish(Event{Topic: ReservationTopic("prod-1"), Type: EventReservationPut})
	waitForEvent(t, sub, EventReservationPut)

	done := make(chan error, 1)
	go func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		done <- b.Shutdown(shutdownCtx)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return while the delivery loop was running")
	}

	// The loop closes every subscription on its way out.
	select {
	case <-sub.Done:
	case <-time.After(time.Second):
		t.Fatal("subscription not closed by shutdown")
	}
	assert.Equal(t, 0, b.SubscriptionCount())

	// Repeated shutdown is a no-op.
	require.NoError(t, b.Shutdown(context.Background()))
}

func TestBus_SetsTimestampOnPublish(t *testing.T) {
	b := startTestBus(t)

	sub, err := b.Subscribe()
	require.NoError(t, err)
	defer b.Unsubscribe(sub.ID)

	before := time.Now()
	b.Publish(Event{Topic: PresenceTopic("prod-1"), Type: EventPresencePut})

	ev := waitForEvent(t, sub, EventPresencePut)
	assert.False(t, ev.Timestamp.Before(before))
}
