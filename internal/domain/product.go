package domain

// Product is a garment listing. The catalog itself is a thin collaborator of
// the availability subsystem; these fields exist to anchor reservations and
// search to real items.
type Product struct {
	Timestamps
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Brand       string `json:"brand,omitempty"`
	Size        string `json:"size,omitempty"`
	Condition   string `json:"condition,omitempty"`
	PriceCents  int64  `json:"price_cents"`
	Currency    string `json:"currency"`
	SellerID    string `json:"seller_id"`
	Sold        bool   `json:"sold"`
}

// Available reports whether the product can still be bought at all.
// Reservation state is a separate, ephemeral layer on top of this.
func (p *Product) Available() bool {
	return p != nil && !p.Sold
}
