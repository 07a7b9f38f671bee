package repository

import (
	"context"

	"github.com/utafrali/catalogsearch/internal/domain"
)

// ProductRepository defines the persistence operations of the record store,
// the source of truth for products.
//
// Implementations return apperrors.ErrNotFound (wrapped) for missing ids,
// apperrors.ErrAlreadyExists for duplicate ids and apperrors.ErrStoreUnavailable
// for anything else that went wrong talking to the backing store.
type ProductRepository interface {
	List(ctx context.Context) ([]domain.Product, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	Create(ctx context.Context, product *domain.Product) error
	// Replace overwrites the whole record stored under id.
	Replace(ctx context.Context, id string, product *domain.Product) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}
