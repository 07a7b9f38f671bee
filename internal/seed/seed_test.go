package seed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalogsearch/internal/domain"
	repomemory "github.com/utafrali/catalogsearch/internal/repository/memory"
	"github.com/utafrali/catalogsearch/pkg/logger"
	"github.com/utafrali/catalogsearch/pkg/validator"
)

var seedTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(50, 42, seedTime)
	b := Generate(50, 42, seedTime)

	require.Len(t, a, 50)
	assert.Equal(t, a, b)
	assert.Equal(t, ProductID(7), a[7].ID)
}

func TestGenerate_ProducesValidProducts(t *testing.T) {
	seen := make(map[string]bool)
	for _, p := range Generate(200, 1, seedTime) {
		assert.False(t, seen[p.ID], "duplicate id %s", p.ID)
		seen[p.ID] = true

		input := domain.ProductInput{
			Title:       p.Title,
			Description: p.Description,
			Category:    p.Category,
			Price:       p.Price,
			ImageURL:    p.ImageURL,
		}
		assert.NoError(t, validator.Validate(input))
		assert.True(t, p.CreatedAt.Before(seedTime))
		assert.Equal(t, p.CreatedAt, p.UpdatedAt)
	}
}

func TestRun_SkipsExisting(t *testing.T) {
	repo := repomemory.NewProductRepository()
	ctx := context.Background()

	res, err := Run(ctx, repo, Generate(20, 3, seedTime), logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, Result{Inserted: 20}, res)

	res, err = Run(ctx, repo, Generate(25, 3, seedTime), logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, Result{Inserted: 5, Skipped: 20}, res)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 25)
}

func TestRun_StoreFailure(t *testing.T) {
	repo := repomemory.NewProductRepository()
	repo.Fail(errors.New("disk full"))

	_, err := Run(context.Background(), repo, Generate(3, 3, seedTime), logger.Discard())
	require.Error(t, err)
}
