package search

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/reloveapp/relove-server/internal/normalize"
)

// Params configures a search query.
type Params struct {
	Query string // User's search query

	// Filters
	BrandSlugs  []string // Filter by exact brand slugs
	Sizes       []string // Filter by canonical size labels
	Conditions  []string // Filter by condition
	MinPrice    int64    // Minimum price in cents
	MaxPrice    int64    // Maximum price in cents
	IncludeSold bool     // Sold items are excluded unless set

	// Pagination
	Limit  int
	Offset int

	// Sorting
	SortBy    string // "relevance", "title", "price", "recent"
	SortOrder string // "asc", "desc"

	// Options
	IncludeFacets bool // Include facet counts in results
	Highlight     bool // Include match highlighting
}

// DefaultParams returns sensible defaults.
func DefaultParams() Params {
	return Params{
		Limit:         20,
		Offset:        0,
		SortBy:        "relevance",
		SortOrder:     "desc",
		IncludeFacets: true,
		Highlight:     true,
	}
}

// Result represents the search results.
type Result struct {
	Query  string `json:"query"`
	Total  uint64 `json:"total"`
	TookMs int64  `json:"took_ms"`
	Hits   []Hit  `json:"hits"`
	Facets Facets `json:"facets,omitempty"`
}

// Hit represents a single search result.
type Hit struct {
	ID         string            `json:"id"`
	Score      float64           `json:"score"`
	Title      string            `json:"title"`
	Brand      string            `json:"brand,omitempty"`
	Size       string            `json:"size,omitempty"`
	Condition  string            `json:"condition,omitempty"`
	PriceCents int64             `json:"price_cents"`
	Sold       bool              `json:"sold"`
	Highlights map[string]string `json:"highlights,omitempty"`
}

// Facets contains facet counts.
type Facets struct {
	Brands     []FacetCount `json:"brands,omitempty"`
	Sizes      []FacetCount `json:"sizes,omitempty"`
	Conditions []FacetCount `json:"conditions,omitempty"`
}

// FacetCount represents a facet value and its count.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Search executes a search query.
func (s *Index) Search(ctx context.Context, params Params) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	searchQuery := buildSearchQuery(params)

	searchRequest := bleve.NewSearchRequestOptions(searchQuery, params.Limit, params.Offset, false)

	addSorting(searchRequest, params)

	if params.IncludeFacets {
		searchRequest.AddFacet("brand_slug", bleve.NewFacetRequest("brand_slug", 20))
		searchRequest.AddFacet("size", bleve.NewFacetRequest("size", 20))
		searchRequest.AddFacet("condition", bleve.NewFacetRequest("condition", 10))
	}

	if params.Highlight {
		searchRequest.Highlight = bleve.NewHighlight()
		searchRequest.Highlight.AddField("title")
		searchRequest.Highlight.AddField("brand")
	}

	searchRequest.Fields = []string{
		"id", "title", "brand", "size", "condition", "price_cents", "sold",
	}

	searchResult, err := s.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &Result{
		Query:  params.Query,
		Total:  searchResult.Total,
		TookMs: searchResult.Took.Milliseconds(),
		Hits:   make([]Hit, 0, len(searchResult.Hits)),
	}

	for _, hit := range searchResult.Hits {
		h := Hit{
			ID:    hit.ID,
			Score: hit.Score,
		}

		if t, ok := hit.Fields["title"].(string); ok {
			h.Title = t
		}
		if b, ok := hit.Fields["brand"].(string); ok {
			h.Brand = b
		}
		if sz, ok := hit.Fields["size"].(string); ok {
			h.Size = sz
		}
		if c, ok := hit.Fields["condition"].(string); ok {
			h.Condition = c
		}
		if p, ok := hit.Fields["price_cents"].(float64); ok {
			h.PriceCents = int64(p)
		}
		if sold, ok := hit.Fields["sold"].(bool); ok {
			h.Sold = sold
		}

		if len(hit.Fragments) > 0 {
			h.Highlights = make(map[string]string)
			for field, fragments := range hit.Fragments {
				if len(fragments) > 0 {
					h.Highlights[field] = fragments[0]
				}
			}
		}

		result.Hits = append(result.Hits, h)
	}

	if params.IncludeFacets {
		result.Facets = extractFacets(searchResult)
	}

	return result, nil
}

// buildSearchQuery constructs the Bleve query from params.
func buildSearchQuery(params Params) query.Query {
	var queries []query.Query

	// Main text query: title carries the highest boost, then brand.
	// A fuzzy title match catches seller typos, and a prefix match makes
	// search-as-you-type usable.
	if params.Query != "" {
		textQueries := []query.Query{}

		titleMatch := bleve.NewMatchQuery(params.Query)
		titleMatch.SetField("title")
		titleMatch.SetBoost(3.0)
		textQueries = append(textQueries, titleMatch)

		brandMatch := bleve.NewMatchQuery(params.Query)
		brandMatch.SetField("brand")
		brandMatch.SetBoost(2.0)
		textQueries = append(textQueries, brandMatch)

		descMatch := bleve.NewMatchQuery(params.Query)
		descMatch.SetField("description")
		descMatch.SetBoost(0.5)
		textQueries = append(textQueries, descMatch)

		fuzzyQuery := bleve.NewFuzzyQuery(params.Query)
		fuzzyQuery.SetFuzziness(1)
		fuzzyQuery.SetField("title")
		fuzzyQuery.SetBoost(0.8)
		textQueries = append(textQueries, fuzzyQuery)

		if len(params.Query) >= 2 {
			prefixQuery := bleve.NewPrefixQuery(strings.ToLower(params.Query))
			prefixQuery.SetField("title")
			prefixQuery.SetBoost(0.5)
			textQueries = append(textQueries, prefixQuery)
		}

		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	// Brand filter (exact slug match, OR across slugs)
	if len(params.BrandSlugs) > 0 {
		brandQueries := make([]query.Query, len(params.BrandSlugs))
		for i, slug := range params.BrandSlugs {
			bq := bleve.NewTermQuery(normalize.BrandSlug(slug))
			bq.SetField("brand_slug")
			brandQueries[i] = bq
		}
		queries = append(queries, bleve.NewDisjunctionQuery(brandQueries...))
	}

	// Size filter
	if len(params.Sizes) > 0 {
		sizeQueries := make([]query.Query, len(params.Sizes))
		for i, size := range params.Sizes {
			sq := bleve.NewTermQuery(normalize.Size(size))
			sq.SetField("size")
			sizeQueries[i] = sq
		}
		queries = append(queries, bleve.NewDisjunctionQuery(sizeQueries...))
	}

	// Condition filter
	if len(params.Conditions) > 0 {
		condQueries := make([]query.Query, len(params.Conditions))
		for i, cond := range params.Conditions {
			cq := bleve.NewTermQuery(cond)
			cq.SetField("condition")
			condQueries[i] = cq
		}
		queries = append(queries, bleve.NewDisjunctionQuery(condQueries...))
	}

	// Price range filter
	if params.MinPrice > 0 || params.MaxPrice > 0 {
		min := float64(params.MinPrice)
		max := float64(params.MaxPrice)
		if params.MaxPrice == 0 {
			max = math.MaxFloat64
		}
		rangeQuery := bleve.NewNumericRangeQuery(&min, &max)
		rangeQuery.SetField("price_cents")
		queries = append(queries, rangeQuery)
	}

	// Sold items are hidden from browse results unless explicitly asked for.
	if !params.IncludeSold {
		unsold := bleve.NewBoolFieldQuery(false)
		unsold.SetField("sold")
		queries = append(queries, unsold)
	}

	if len(queries) == 0 {
		return bleve.NewMatchAllQuery()
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewConjunctionQuery(queries...)
}

// addSorting configures sort order.
func addSorting(req *bleve.SearchRequest, params Params) {
	switch params.SortBy {
	case "title":
		if params.SortOrder == "desc" {
			req.SortBy([]string{"-title"})
		} else {
			req.SortBy([]string{"title"})
		}
	case "price":
		if params.SortOrder == "desc" {
			req.SortBy([]string{"-price_cents"})
		} else {
			req.SortBy([]string{"price_cents"})
		}
	case "recent":
		if params.SortOrder == "asc" {
			req.SortBy([]string{"created_at"})
		} else {
			req.SortBy([]string{"-created_at"})
		}
	default:
		// Relevance (score) is default
		req.SortBy([]string{"-_score"})
	}
}

// extractFacets converts Bleve facets to our format.
func extractFacets(result *bleve.SearchResult) Facets {
	facets := Facets{}

	if brandFacet, ok := result.Facets["brand_slug"]; ok {
		for _, term := range brandFacet.Terms.Terms() {
			facets.Brands = append(facets.Brands, FacetCount{
				Value: term.Term,
				Count: term.Count,
			})
		}
	}

	if sizeFacet, ok := result.Facets["size"]; ok {
		for _, term := range sizeFacet.Terms.Terms() {
			facets.Sizes = append(facets.Sizes, FacetCount{
				Value: term.Term,
				Count: term.Count,
			})
		}
	}

	if condFacet, ok := result.Facets["condition"]; ok {
		for _, term := range condFacet.Terms.Terms() {
			facets.Conditions = append(facets.Conditions, FacetCount{
				Value: term.Term,
				Count: term.Count,
			})
		}
	}

	return facets
}
