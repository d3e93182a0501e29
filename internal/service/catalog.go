package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reloveapp/relove-server/internal/clock"
	"github.com/reloveapp/relove-server/internal/domain"
	"github.com/reloveapp/relove-server/internal/id"
	"github.com/reloveapp/relove-server/internal/normalize"
	"github.com/reloveapp/relove-server/internal/search"
	"github.com/reloveapp/relove-server/internal/store"
)

// CatalogService manages garment listings. The catalog is deliberately thin;
// it exists to anchor reservations, bags and search to real products.
type CatalogService struct {
	store  *store.Store
	search *search.Index
	clock  clock.Clock
	logger *slog.Logger
}

// NewCatalogService creates a catalog service.
func NewCatalogService(st *store.Store, idx *search.Index, clk clock.Clock, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		store:  st,
		search: idx,
		clock:  clk,
		logger: logger,
	}
}

// CreateProduct stores a new listing and indexes it for search.
func (s *CatalogService) CreateProduct(ctx context.Context, product *domain.Product) error {
	if product.ID == "" {
		productID, err := id.Generate("prod")
		if err != nil {
			return fmt.Errorf("generate product ID: %w", err)
		}
		product.ID = productID
	}
	product.Size = normalize.Size(product.Size)
	product.InitTimestamps(s.clock.Now())

	if err := s.store.Products.Create(ctx, product.ID, product); err != nil {
		return fmt.Errorf("create product: %w", err)
	}

	s.indexProduct(product)
	return nil
}

// GetProduct returns a listing by ID.
func (s *CatalogService) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return s.store.Products.Get(ctx, productID)
}

// UpdateProduct rewrites a listing and refreshes the search index.
func (s *CatalogService) UpdateProduct(ctx context.Context, product *domain.Product) error {
	product.Size = normalize.Size(product.Size)
	product.Touch(s.clock.Now())

	if err := s.store.Products.Put(ctx, product.ID, product); err != nil {
		return fmt.Errorf("update product: %w", err)
	}

	s.indexProduct(product)
	return nil
}

// DeleteProduct removes a listing and its search document.
func (s *CatalogService) DeleteProduct(ctx context.Context, productID string) error {
	if err := s.store.Products.Delete(ctx, productID); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if err := s.search.DeleteProduct(productID); err != nil {
		s.logger.Warn("failed to deindex product", "product_id", productID, "error", err)
	}
	return nil
}

// MarkSold flags a product as sold. The listing stays for order history but
// drops out of default search results and can no longer be reserved for a
// new checkout.
func (s *CatalogService) MarkSold(ctx context.Context, productID string) error {
	product, err := s.store.Products.Get(ctx, productID)
	if err != nil {
		return fmt.Errorf("get product: %w", err)
	}

	product.Sold = true
	product.Touch(s.clock.Now())

	if err := s.store.Products.Put(ctx, productID, product); err != nil {
		return fmt.Errorf("mark sold: %w", err)
	}

	s.indexProduct(product)
	return nil
}

// Search runs a catalog search.
func (s *CatalogService) Search(ctx context.Context, params search.Params) (*search.Result, error) {
	return s.search.Search(ctx, params)
}

// Reindex rebuilds the search index from the store. Used at startup when the
// mapping version changed and by the admin reindex endpoint.
func (s *CatalogService) Reindex(ctx context.Context) error {
	var docs []*search.ProductDocument
	for product, err := range s.store.Products.List(ctx) {
		if err != nil {
			return fmt.Errorf("list products: %w", err)
		}
		docs = append(docs, search.ProductToDocument(product))
	}

	if err := s.search.Rebuild(); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	if err := s.search.IndexProducts(docs); err != nil {
		return fmt.Errorf("reindex products: %w", err)
	}

	s.logger.Info("reindexed catalog", "products", len(docs))
	return nil
}

// IndexedCount returns the number of documents in the search index.
func (s *CatalogService) IndexedCount() (int, error) {
	count, err := s.search.DocumentCount()
	if err != nil {
		return 0, fmt.Errorf("document count: %w", err)
	}
	return int(count), nil
}

// indexProduct updates the search document. Index failures are logged, not
// surfaced; the store remains the source of truth and a reindex repairs it.
func (s *CatalogService) indexProduct(product *domain.Product) {
	if err := s.search.IndexProduct(search.ProductToDocument(product)); err != nil {
		s.logger.Warn("failed to index product", "product_id", product.ID, "error", err)
	}
}
