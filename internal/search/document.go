// Package search provides full-text catalog search using Bleve, with
// faceted filtering on brand, size and condition, fuzzy matching for
// seller typos, and price range queries.
package search

import (
	"github.com/reloveapp/relove-server/internal/domain"
	"github.com/reloveapp/relove-server/internal/normalize"
)

// ProductDocument is the document structure for the Bleve index.
//
// Brand and size are indexed twice: the raw text for full-text matching
// and a normalized slug for exact facet filtering, because sellers type
// "Hermès", "HERMES" and "hermes" for the same brand.
type ProductDocument struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Brand       string `json:"brand,omitempty"`
	BrandSlug   string `json:"brand_slug,omitempty"`
	Size        string `json:"size,omitempty"`
	Condition   string `json:"condition,omitempty"`
	SellerID    string `json:"seller_id"`

	PriceCents int64 `json:"price_cents"`
	Sold       bool  `json:"sold"`

	// Timestamps for sorting. Unix millis.
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// ToMap converts the document to a map with lowercase field names.
// Bleve by default uses Go struct field names (capitalized), but our
// mapping uses lowercase names, so we convert explicitly.
func (d *ProductDocument) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"id":          d.ID,
		"title":       d.Title,
		"seller_id":   d.SellerID,
		"price_cents": d.PriceCents,
		"sold":        d.Sold,
		"created_at":  d.CreatedAt,
		"updated_at":  d.UpdatedAt,
	}

	if d.Description != "" {
		m["description"] = d.Description
	}
	if d.Brand != "" {
		m["brand"] = d.Brand
	}
	if d.BrandSlug != "" {
		m["brand_slug"] = d.BrandSlug
	}
	if d.Size != "" {
		m["size"] = d.Size
	}
	if d.Condition != "" {
		m["condition"] = d.Condition
	}

	return m
}

// ProductToDocument converts a domain Product to an indexable document.
func ProductToDocument(p *domain.Product) *ProductDocument {
	return &ProductDocument{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Brand:       p.Brand,
		BrandSlug:   normalize.BrandSlug(p.Brand),
		Size:        normalize.Size(p.Size),
		Condition:   p.Condition,
		SellerID:    p.SellerID,
		PriceCents:  p.PriceCents,
		Sold:        p.Sold,
		CreatedAt:   p.CreatedAt.UnixMilli(),
		UpdatedAt:   p.UpdatedAt.UnixMilli(),
	}
}
