package domain

import "time"

// Every garment on Relove is a unique physical item: quantity is exactly one.
// The holder of a Reservation or CartPresence is the only actor allowed to
// renew or delete it. All three availability entities are ephemeral; they
// live only as long as the behavior they represent and are never archived.

// Reservation is the exclusive "about to be paid for" lock on a product.
// There is at most one per product, keyed by product ID.
type Reservation struct {
	ProductID string    `json:"product_id"`
	HolderID  string    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Live reports whether the reservation has not yet expired at the given
// instant. An expired-but-undeleted reservation is treated as absent by
// every reader; there is no server-side expiry sweep.
func (r *Reservation) Live(now time.Time) bool {
	return r != nil && r.ExpiresAt.After(now)
}

// HeldBy reports whether the reservation belongs to the given holder.
func (r *Reservation) HeldBy(holderID string) bool {
	return r != nil && holderID != "" && r.HolderID == holderID
}

// CartPresence is the "this shopper has the item in their bag" signal,
// one per (product, holder). Presence is advisory: it never blocks a
// purchase, only a live Reservation may.
type CartPresence struct {
	ProductID string    `json:"product_id"`
	HolderID  string    `json:"holder_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PresenceKey builds the document key for a (product, holder) pair.
func PresenceKey(productID, holderID string) string {
	return productID + "_" + holderID
}

// Viewer is the ephemeral "someone is looking at this page" marker, one per
// (product, viewer session). It carries no ownership semantics and is
// excluded from availability computation. Cleanup is best-effort via page
// lifecycle hooks; a crashed client leaves a stale row until overwritten.
type Viewer struct {
	ProductID string    `json:"product_id"`
	ViewerID  string    `json:"viewer_id"`
	LastSeen  time.Time `json:"last_seen"`
}

// ViewerKey builds the document key for a (product, viewer) pair.
func ViewerKey(productID, viewerID string) string {
	return productID + "_" + viewerID
}

// PendingPayment records the product list handed off to the payment gateway.
// It is written just before the redirect so that, when control returns from
// the provider on either the success or failure path, the correct items can
// be released or finally consumed.
type PendingPayment struct {
	HolderID   string    `json:"holder_id"`
	Reference  string    `json:"reference"`
	ProductIDs []string  `json:"product_ids"`
	CreatedAt  time.Time `json:"created_at"`
}
