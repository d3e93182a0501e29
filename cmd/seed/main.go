// Package main provides a tool to seed the database with test listings.
//
// It creates a handful of sellers and a rack of garment listings so the
// availability endpoints have something real to coordinate over.
//
// Usage:
//
//	DATA_PATH=~/Relove/data go run ./cmd/seed
//	DATA_PATH=~/Relove/data go run ./cmd/seed --wipe  # Drop existing listings first
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/reloveapp/relove-server/internal/auth"
	"github.com/reloveapp/relove-server/internal/domain"
	"github.com/reloveapp/relove-server/internal/id"
	"github.com/reloveapp/relove-server/internal/store"
)

var wipe = flag.Bool("wipe", false, "Delete existing listings before seeding")

var brands = []string{"Acne Studios", "A.P.C.", "Lemaire", "Our Legacy", "Margaret Howell", "Stüssy", "COS"}

var garments = []struct {
	title     string
	condition string
}{
	{"Wool overcoat", "very good"},
	{"Raw denim jacket", "good"},
	{"Linen shirt", "excellent"},
	{"Pleated trousers", "very good"},
	{"Mohair cardigan", "good"},
	{"Silk slip dress", "excellent"},
	{"Corduroy work jacket", "fair"},
	{"Cashmere crewneck", "very good"},
	{"Canvas tote", "good"},
	{"Leather chelsea boots", "fair"},
}

var sizes = []string{"XS", "S", "M", "L", "XL"}

func main() {
	flag.Parse()

	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		dataPath = os.ExpandEnv("$HOME/Relove/data")
	}
	dbPath := filepath.Join(dataPath, "db")

	fmt.Printf("Opening database at: %s\n", dbPath)

	s, err := store.New(dbPath, slog.New(slog.DiscardHandler), store.NewNoopPublisher())
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()

	if *wipe {
		wipeListings(ctx, s)
	}

	sellers := ensureSellers(ctx, s)
	fmt.Printf("Seeding with %d sellers\n", len(sellers))

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	now := time.Now()

	created := 0
	for _, g := range garments {
		seller := sellers[rng.Intn(len(sellers))]
		productID, err := id.Generate("prod")
		if err != nil {
			log.Fatalf("Failed to generate product ID: %v", err)
		}

		product := &domain.Product{
			ID:         productID,
			Title:      g.title,
			Brand:      brands[rng.Intn(len(brands))],
			Size:       sizes[rng.Intn(len(sizes))],
			Condition:  g.condition,
			PriceCents: int64(1500 + rng.Intn(20000)),
			Currency:   "EUR",
			SellerID:   seller.ID,
		}
		product.InitTimestamps(now)

		if err := s.Products.Create(ctx, product.ID, product); err != nil {
			log.Printf("Failed to create %q: %v", g.title, err)
			continue
		}
		created++
		fmt.Printf("  %s — %s %s (%s) %.2f EUR\n",
			product.ID, product.Brand, product.Title, product.Size,
			float64(product.PriceCents)/100)
	}

	fmt.Printf("\nSeeded %d listings. Run the server and hit POST /api/v1/admin/reindex to index them.\n", created)
}

// ensureSellers creates the test seller accounts if they don't exist yet.
func ensureSellers(ctx context.Context, s *store.Store) []*domain.User {
	seed := []struct {
		email string
		name  string
	}{
		{"frida@example.com", "Frida"},
		{"theo@example.com", "Theo"},
		{"noor@example.com", "Noor"},
	}

	var sellers []*domain.User
	for _, entry := range seed {
		if existing, err := s.Users.GetByUniqueIndex(ctx, "email", entry.email); err == nil {
			sellers = append(sellers, existing)
			continue
		}

		userID, err := id.Generate("user")
		if err != nil {
			log.Fatalf("Failed to generate user ID: %v", err)
		}
		hash, err := auth.HashPassword("seed password only")
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}

		user := &domain.User{
			ID:           userID,
			Email:        entry.email,
			DisplayName:  entry.name,
			PasswordHash: hash,
		}
		user.InitTimestamps(time.Now())

		if err := s.Users.Create(ctx, user.ID, user); err != nil {
			log.Fatalf("Failed to create seller %s: %v", entry.email, err)
		}
		fmt.Printf("Created seller: %s (%s)\n", entry.name, entry.email)
		sellers = append(sellers, user)
	}
	return sellers
}

// wipeListings removes every existing product.
func wipeListings(ctx context.Context, s *store.Store) {
	var ids []string
	for product, err := range s.Products.List(ctx) {
		if err != nil {
			log.Fatalf("Failed to list products: %v", err)
		}
		ids = append(ids, product.ID)
	}
	for _, productID := range ids {
		if err := s.Products.Delete(ctx, productID); err != nil {
			log.Printf("Failed to delete %s: %v", productID, err)
		}
	}
	fmt.Printf("Wiped %d listings\n", len(ids))
}
