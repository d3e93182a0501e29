// Package sse streams product availability to connected browsers. Each
// product page opens one stream covering every product visible on it; the
// server pushes full snapshots, so a dropped event is repaired by the next
// one rather than replayed.
package sse

import "time"

// EventType identifies the kind of stream event.
type EventType string

const (
	// EventConnected is the first event on every stream.
	EventConnected EventType = "connected"
	// EventAvailability carries a full locked/wanted snapshot.
	EventAvailability EventType = "availability"
	// EventViewers carries a fresh viewer count for one product.
	EventViewers EventType = "viewers"
	// EventHeartbeat keeps intermediaries from closing an idle stream.
	EventHeartbeat EventType = "heartbeat"
)

// Event is a single message on a product-page stream.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// ConnectedData confirms the subscription back to the client.
type ConnectedData struct {
	ClientID string   `json:"client_id"`
	Products []string `json:"products"`
}

// AvailabilityData is the viewer-relative availability snapshot: product IDs
// locked by other shoppers and product IDs sitting in other shoppers' bags.
// A product never appears in both lists.
type AvailabilityData struct {
	LockedByOthers []string `json:"locked_by_others"`
	WantedByOthers []string `json:"wanted_by_others"`
}

// ViewersData is the live viewer count for one product.
type ViewersData struct {
	ProductID string `json:"product_id"`
	Count     int    `json:"count"`
}

// NewConnectedEvent creates the stream-opening event.
func NewConnectedEvent(clientID string, products []string) Event {
	return Event{
		Type:      EventConnected,
		Timestamp: time.Now(),
		Data:      ConnectedData{ClientID: clientID, Products: products},
	}
}

// NewAvailabilityEvent creates a snapshot event.
func NewAvailabilityEvent(locked, wanted []string) Event {
	return Event{
		Type:      EventAvailability,
		Timestamp: time.Now(),
		Data:      AvailabilityData{LockedByOthers: locked, WantedByOthers: wanted},
	}
}

// NewViewersEvent creates a viewer-count event.
func NewViewersEvent(productID string, count int) Event {
	return Event{
		Type:      EventViewers,
		Timestamp: time.Now(),
		Data:      ViewersData{ProductID: productID, Count: count},
	}
}

// NewHeartbeatEvent creates a keepalive event.
func NewHeartbeatEvent() Event {
	return Event{Type: EventHeartbeat, Timestamp: time.Now()}
}
