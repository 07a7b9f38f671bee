// Package seed fills a record store with a deterministic demo catalog.
// Re-running a seed with the same size inserts nothing new: product ids are
// derived from the product index.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/repository"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
)

// namespace scopes the derived product ids.
var namespace = uuid.MustParse("6f1c9a52-3d0e-4b7a-9c55-0e8f2a7d41b3")

type category struct {
	Name     string
	Weight   float64 // share of generated products
	Nouns    []string
	MinPrice float64
	MaxPrice float64
}

var categories = []category{
	{"Footwear", 0.20, []string{"Running Shoe", "Hiking Boot", "Sandal", "Sneaker", "Loafer"}, 25, 220},
	{"Apparel", 0.30, []string{"Rain Jacket", "Fleece Hoodie", "Linen Shirt", "Wool Sweater", "Chino Pants"}, 15, 260},
	{"Electronics", 0.20, []string{"Wireless Mouse", "Mechanical Keyboard", "USB-C Hub", "Bluetooth Speaker", "Webcam"}, 10, 400},
	{"Kitchen", 0.15, []string{"Coffee Grinder", "Chef Knife", "Cast Iron Skillet", "Travel Mug", "Teapot"}, 8, 180},
	{"Outdoor", 0.15, []string{"Camping Lantern", "Trekking Pole", "Daypack", "Sleeping Bag", "Water Filter"}, 12, 300},
}

var adjectives = []string{
	"Lightweight", "Classic", "Compact", "Waterproof", "Ergonomic",
	"Premium", "Everyday", "Rugged", "Minimalist", "Insulated",
}

var features = []string{
	"built to last through daily use",
	"with a grippy, durable finish",
	"that packs down small for travel",
	"designed for all-day comfort",
	"made from recycled materials",
	"with a two-year warranty",
}

// ProductID returns the id of the i-th generated product.
func ProductID(i int) string {
	return uuid.NewSHA1(namespace, []byte(fmt.Sprintf("product:%d", i))).String()
}

// Generate returns n products. The same seed and n always produce the same
// catalog.
func Generate(n int, seed int64, now time.Time) []domain.Product {
	rng := rand.New(rand.NewSource(seed))
	products := make([]domain.Product, 0, n)

	for i := 0; i < n; i++ {
		cat := pickCategory(rng)
		noun := cat.Nouns[rng.Intn(len(cat.Nouns))]
		adj := adjectives[rng.Intn(len(adjectives))]

		price := cat.MinPrice + rng.Float64()*(cat.MaxPrice-cat.MinPrice)
		created := now.Add(-time.Duration(n-i) * time.Minute).UTC().Truncate(time.Millisecond)

		products = append(products, domain.Product{
			ID:          ProductID(i),
			Title:       adj + " " + noun,
			Description: fmt.Sprintf("%s %s %s.", adj, noun, features[rng.Intn(len(features))]),
			Category:    cat.Name,
			Price:       float64(int(price*100)) / 100,
			ImageURL:    fmt.Sprintf("https://images.example.com/products/%d.jpg", i),
			CreatedAt:   created,
			UpdatedAt:   created,
		})
	}
	return products
}

func pickCategory(rng *rand.Rand) category {
	r := rng.Float64()
	var acc float64
	for _, c := range categories {
		acc += c.Weight
		if r < acc {
			return c
		}
	}
	return categories[len(categories)-1]
}

// Result summarizes a seed run.
type Result struct {
	Inserted int
	Skipped  int
}

// Run inserts products into repo. Products that already exist are skipped.
func Run(ctx context.Context, repo repository.ProductRepository, products []domain.Product, logger *slog.Logger) (Result, error) {
	var res Result
	for i := range products {
		err := repo.Create(ctx, &products[i])
		switch {
		case err == nil:
			res.Inserted++
		case errors.Is(err, apperrors.ErrAlreadyExists):
			res.Skipped++
		default:
			return res, fmt.Errorf("insert product %d: %w", i, err)
		}

		if (i+1)%1000 == 0 {
			logger.Info("seed progress", slog.Int("done", i+1), slog.Int("total", len(products)))
		}
	}
	return res, nil
}
