package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve index mapping for product documents.
//
// The mapping is designed with these priorities:
//  1. Fast full-text search on titles with English stemming
//  2. Boosted relevance for brand matches
//  3. Exact keyword matching for brand/size/condition facets
//  4. Numeric range queries on price
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	// --- Text fields (full-text searchable) ---

	// Title - primary search target
	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = en.AnalyzerName
	titleFieldMapping.Store = true
	titleFieldMapping.IncludeTermVectors = true // For highlighting
	docMapping.AddFieldMappingsAt("title", titleFieldMapping)

	// Description - searchable but not stored (too large)
	descFieldMapping := bleve.NewTextFieldMapping()
	descFieldMapping.Analyzer = en.AnalyzerName
	descFieldMapping.Store = false
	docMapping.AddFieldMappingsAt("description", descFieldMapping)

	// Brand - free-text match on the raw seller spelling
	brandFieldMapping := bleve.NewTextFieldMapping()
	brandFieldMapping.Analyzer = en.AnalyzerName
	brandFieldMapping.Store = true
	brandFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("brand", brandFieldMapping)

	// --- Keyword fields (exact match, facetable) ---

	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("id", idFieldMapping)

	brandSlugFieldMapping := bleve.NewTextFieldMapping()
	brandSlugFieldMapping.Analyzer = keyword.Name
	brandSlugFieldMapping.Store = true
	brandSlugFieldMapping.IncludeTermVectors = true // For faceting
	docMapping.AddFieldMappingsAt("brand_slug", brandSlugFieldMapping)

	sizeFieldMapping := bleve.NewTextFieldMapping()
	sizeFieldMapping.Analyzer = keyword.Name
	sizeFieldMapping.Store = true
	sizeFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("size", sizeFieldMapping)

	conditionFieldMapping := bleve.NewTextFieldMapping()
	conditionFieldMapping.Analyzer = keyword.Name
	conditionFieldMapping.Store = true
	conditionFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("condition", conditionFieldMapping)

	sellerFieldMapping := bleve.NewTextFieldMapping()
	sellerFieldMapping.Analyzer = keyword.Name
	sellerFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("seller_id", sellerFieldMapping)

	// --- Boolean / numeric fields ---

	soldFieldMapping := bleve.NewBooleanFieldMapping()
	soldFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("sold", soldFieldMapping)

	priceFieldMapping := bleve.NewNumericFieldMapping()
	priceFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("price_cents", priceFieldMapping)

	createdAtFieldMapping := bleve.NewNumericFieldMapping()
	createdAtFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("created_at", createdAtFieldMapping)

	updatedAtFieldMapping := bleve.NewNumericFieldMapping()
	updatedAtFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("updated_at", updatedAtFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
