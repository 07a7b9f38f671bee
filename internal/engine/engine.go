package engine

import (
	"context"

	"github.com/utafrali/catalogsearch/internal/domain"
)

// SearchEngine is the search index adapter. Implementations translate the
// calls to a concrete backend and perform no business logic.
//
// Errors are classified with pkg/errors: connectivity or write failures wrap
// ErrIndexUnavailable, responses that cannot be interpreted wrap
// ErrIndexInconsistent, and malformed query specs wrap ErrInvalidInput.
type SearchEngine interface {
	// IndexExists reports whether the product index has been created.
	IndexExists(ctx context.Context) (bool, error)

	// EnsureIndex creates the index with the given schema. An index that
	// already exists is left untouched and reported as IndexAlreadyExists.
	EnsureIndex(ctx context.Context, schema domain.Schema) (domain.IndexStatus, error)

	// Index upserts a single document by its ID.
	Index(ctx context.Context, doc *domain.SearchDocument) error

	// BulkIndex upserts many documents. Per-document rejections are reported
	// in the result, not as an error.
	BulkIndex(ctx context.Context, docs []domain.SearchDocument) (*domain.BulkResult, error)

	// Query runs a query spec and returns hits ordered by relevance.
	Query(ctx context.Context, spec *QuerySpec) ([]domain.Hit, error)

	// Delete removes a document. Deleting an absent document is not an error.
	Delete(ctx context.Context, id string) error

	Ping(ctx context.Context) error
}
