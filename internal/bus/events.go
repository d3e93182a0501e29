// Package bus implements the change-notification side of the shared store:
// an in-process pub/sub fan-out keyed by topic. Store writes publish here and
// availability watchers, SSE clients, and tests subscribe without touching
// the database layer.
package bus

import "time"

// EventType represents the kind of document change being announced.
type EventType string

const (
	// EventReservationPut announces a created or renewed reservation.
	EventReservationPut EventType = "reservation.put"
	// EventReservationDeleted announces a released or consumed reservation.
	EventReservationDeleted EventType = "reservation.deleted"

	// EventPresencePut announces an item added to a shopper's bag.
	EventPresencePut EventType = "presence.put"
	// EventPresenceDeleted announces an item removed from a shopper's bag.
	EventPresenceDeleted EventType = "presence.deleted"

	// EventViewerPut announces a viewer arriving on a product page.
	EventViewerPut EventType = "viewer.put"
	// EventViewerDeleted announces a viewer leaving a product page.
	EventViewerDeleted EventType = "viewer.deleted"

	// EventHeartbeat is a connection keepalive for streaming consumers.
	EventHeartbeat EventType = "heartbeat"
)

// Event is a single change notification.
// The Data field carries the event payload for direct serialization.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Type      EventType `json:"type"`

	// Topic routes the event to matching subscriptions.
	// It is transport metadata, not part of the payload.
	Topic string `json:"-"`
}

// ReservationTopic is the topic carrying reservation changes for a product.
func ReservationTopic(productID string) string {
	return "reservation:" + productID
}

// PresenceTopic is the topic carrying bag-presence changes for a product.
func PresenceTopic(productID string) string {
	return "presence:" + productID
}

// ViewerTopic is the topic carrying viewer changes for a product.
func ViewerTopic(productID string) string {
	return "viewer:" + productID
}

// ReservationData is the payload for reservation events.
type ReservationData struct {
	ProductID string    `json:"product_id"`
	HolderID  string    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// PresenceData is the payload for bag-presence events.
type PresenceData struct {
	ProductID string `json:"product_id"`
	HolderID  string `json:"holder_id"`
}

// ViewerData is the payload for viewer events.
type ViewerData struct {
	ProductID string `json:"product_id"`
	ViewerID  string `json:"viewer_id"`
}

// NewHeartbeatEvent creates a keepalive event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Timestamp: time.Now(),
	}
}
