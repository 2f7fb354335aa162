// Command generate regenerates testdata/merchants.json, the seed the server
// loads into an empty database on first start.
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/dsapoetra/payment-processing-sub001/internal/domain"
)

func main() {
	rng := rand.New(rand.NewSource(42))
	baseDir := findTestdataDir()

	tenants := []string{"tenant-acme", "tenant-globex", "tenant-initech"}
	names := []string{
		"Online Store", "Subscriptions", "Marketplace", "Travel",
		"Digital Goods", "Food Delivery", "Ticketing", "Donations",
	}

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	var merchants []domain.Merchant
	id := 1
	for _, tenant := range tenants {
		n := 3 + rng.Intn(3)
		for i := 0; i < n; i++ {
			// Status distribution: mostly active, a few suspended/closed.
			status := domain.MerchantActive
			switch roll := rng.Float64(); {
			case roll > 0.9:
				status = domain.MerchantClosed
			case roll > 0.75:
				status = domain.MerchantSuspended
			}

			merchants = append(merchants, domain.Merchant{
				ID:        fmt.Sprintf("merch-%03d", id),
				TenantID:  tenant,
				Name:      names[rng.Intn(len(names))],
				Status:    status,
				CreatedAt: start.AddDate(0, 0, rng.Intn(180)),
			})
			id++
		}
	}

	out := filepath.Join(baseDir, "merchants.json")
	data, err := json.MarshalIndent(merchants, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", out, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d merchants to %s\n", len(merchants), out)
}

func findTestdataDir() string {
	candidates := []string{"testdata", filepath.Join("..", "..", "testdata"), "."}
	for _, dir := range candidates {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return "."
}
