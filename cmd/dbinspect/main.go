// Package main dumps the availability keyspace of a Relove database for
// debugging. Read-only; safe to run against a live data directory copy.
package main

import (
	"encoding/json/v2"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/reloveapp/relove-server/internal/domain"
)

func main() {
	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		dataPath = os.ExpandEnv("$HOME/Relove/data")
	}
	dbPath := filepath.Join(dataPath, "db")

	opts := badger.DefaultOptions(dbPath).
		WithReadOnly(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	fmt.Println("=== Availability Inspection ===")
	fmt.Println()

	now := time.Now()
	productCount := 0
	soldCount := 0
	liveHolds := 0
	expiredHolds := 0
	bagRows := 0
	viewerRows := 0

	err = db.View(func(txn *badger.Txn) error {
		countPrefix(txn, "product:", func(val []byte) {
			var product domain.Product
			if err := json.Unmarshal(val, &product); err != nil {
				return
			}
			productCount++
			if product.Sold {
				soldCount++
			}
		})

		countPrefix(txn, "reservation:", func(val []byte) {
			var res domain.Reservation
			if err := json.Unmarshal(val, &res); err != nil {
				return
			}
			if res.Live(now) {
				liveHolds++
				fmt.Printf("Live hold: %s by %s, %s remaining\n",
					res.ProductID, res.HolderID, res.ExpiresAt.Sub(now).Round(time.Second))
			} else {
				expiredHolds++
			}
		})

		countPrefix(txn, "presence:", func(_ []byte) { bagRows++ })
		countPrefix(txn, "viewer:", func(_ []byte) { viewerRows++ })
		return nil
	})
	if err != nil {
		log.Fatalf("Error iterating database: %v", err)
	}

	fmt.Println()
	fmt.Println("=== Summary ===")
	fmt.Printf("Listings: %d (%d sold)\n", productCount, soldCount)
	fmt.Printf("Reservations: %d live, %d expired (expired rows are inert, overwritten on next reserve)\n", liveHolds, expiredHolds)
	fmt.Printf("Bag presence rows: %d\n", bagRows)
	fmt.Printf("Viewer rows: %d\n", viewerRows)
}

// countPrefix walks every document under a key prefix.
func countPrefix(txn *badger.Txn, prefix string, visit func(val []byte)) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
		if err := it.Item().Value(func(val []byte) error {
			visit(val)
			return nil
		}); err != nil {
			log.Printf("Error reading %s: %v", it.Item().Key(), err)
		}
	}
}
