package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/repository"
	"github.com/utafrali/catalogsearch/pkg/database"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
)

const (
	querySchema = `
		CREATE TABLE IF NOT EXISTS products (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category    TEXT NOT NULL DEFAULT '',
			price       DOUBLE PRECISION NOT NULL DEFAULT 0,
			image_url   TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		)`

	queryInsert = `
		INSERT INTO products (id, title, description, category, price, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	queryGetByID = `
		SELECT id, title, description, category, price, image_url, created_at, updated_at
		FROM products
		WHERE id = $1`

	queryList = `
		SELECT id, title, description, category, price, image_url, created_at, updated_at
		FROM products
		ORDER BY created_at, id`

	queryReplace = `
		UPDATE products
		SET title = $1, description = $2, category = $3, price = $4, image_url = $5,
		    created_at = $6, updated_at = $7
		WHERE id = $8`

	queryDelete = `DELETE FROM products WHERE id = $1`
)

var _ repository.ProductRepository = (*ProductRepository)(nil)

// ProductRepository implements repository.ProductRepository using PostgreSQL.
type ProductRepository struct {
	db database.DBTX
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(db database.DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

// EnsureSchema creates the products table when it does not exist yet.
func (r *ProductRepository) EnsureSchema(ctx context.Context) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "EnsureSchema", querySchema)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, querySchema); err != nil {
		return apperrors.StoreUnavailable("create schema", err)
	}
	return nil
}

// Create inserts a new product into the database.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "CreateProduct", queryInsert)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, queryInsert,
		p.ID,
		p.Title,
		p.Description,
		p.Category,
		p.Price,
		p.ImageURL,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("product", "id", p.ID)
		}
		return apperrors.StoreUnavailable("insert product", err)
	}
	return nil
}

// GetByID retrieves a product by its ID.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (_ *domain.Product, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "GetProduct", queryGetByID)
	defer func() { end(err) }()

	var p domain.Product
	err = scanProduct(r.db.QueryRow(ctx, queryGetByID, id), &p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", id)
		}
		return nil, apperrors.StoreUnavailable("get product", err)
	}
	return &p, nil
}

// List returns every product ordered by creation time.
func (r *ProductRepository) List(ctx context.Context) (_ []domain.Product, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "ListProducts", queryList)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, queryList)
	if err != nil {
		return nil, apperrors.StoreUnavailable("list products", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		var p domain.Product
		if err = scanProduct(rows, &p); err != nil {
			return nil, apperrors.StoreUnavailable("list products", fmt.Errorf("scan product row: %w", err))
		}
		products = append(products, p)
	}
	if err = rows.Err(); err != nil {
		return nil, apperrors.StoreUnavailable("list products", fmt.Errorf("iterate product rows: %w", err))
	}

	return products, nil
}

// Replace overwrites the stored row for id with p.
func (r *ProductRepository) Replace(ctx context.Context, id string, p *domain.Product) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "ReplaceProduct", queryReplace)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, queryReplace,
		p.Title,
		p.Description,
		p.Category,
		p.Price,
		p.ImageURL,
		p.CreatedAt,
		p.UpdatedAt,
		id,
	)
	if err != nil {
		return apperrors.StoreUnavailable("replace product", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", id)
	}
	return nil
}

// Delete removes a product from the database by its ID.
func (r *ProductRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "DeleteProduct", queryDelete)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, queryDelete, id)
	if err != nil {
		return apperrors.StoreUnavailable("delete product", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", id)
	}
	return nil
}

// Ping checks that the database is reachable.
func (r *ProductRepository) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return apperrors.StoreUnavailable("ping", err)
	}
	return nil
}

func scanProduct(row pgx.Row, p *domain.Product) error {
	return row.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&p.Category,
		&p.Price,
		&p.ImageURL,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
