package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/repository"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
)

var _ repository.ProductRepository = (*ProductRepository)(nil)

// ProductRepository is an in-memory record store for development and tests.
// Stored products are copied on the way in and out.
type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	failure  error
}

// NewProductRepository creates a new empty in-memory repository.
func NewProductRepository() *ProductRepository {
	return &ProductRepository{products: make(map[string]domain.Product)}
}

// Fail makes every following call return a store-unavailable error caused by
// err. Passing nil restores normal operation.
func (r *ProductRepository) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failure = err
}

func (r *ProductRepository) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.StoreUnavailable(op, err)
	}
	if r.failure != nil {
		return apperrors.StoreUnavailable(op, r.failure)
	}
	return nil
}

func (r *ProductRepository) List(ctx context.Context) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.check(ctx, "list products"); err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(r.products))
	for _, p := range r.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool {
		if !products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].CreatedAt.Before(products[j].CreatedAt)
		}
		return products[i].ID < products[j].ID
	})
	return products, nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.check(ctx, "get product"); err != nil {
		return nil, err
	}

	p, ok := r.products[id]
	if !ok {
		return nil, apperrors.NotFound("product", id)
	}
	return &p, nil
}

func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(ctx, "insert product"); err != nil {
		return err
	}

	if _, ok := r.products[p.ID]; ok {
		return apperrors.AlreadyExists("product", "id", p.ID)
	}
	r.products[p.ID] = *p
	return nil
}

func (r *ProductRepository) Replace(ctx context.Context, id string, p *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(ctx, "replace product"); err != nil {
		return err
	}

	if _, ok := r.products[id]; !ok {
		return apperrors.NotFound("product", id)
	}
	stored := *p
	stored.ID = id
	r.products[id] = stored
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(ctx, "delete product"); err != nil {
		return err
	}

	if _, ok := r.products[id]; !ok {
		return apperrors.NotFound("product", id)
	}
	delete(r.products, id)
	return nil
}

func (r *ProductRepository) Ping(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.check(ctx, "ping")
}
