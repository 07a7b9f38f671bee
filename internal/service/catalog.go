package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
	"github.com/utafrali/catalogsearch/internal/repository"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
	"github.com/utafrali/catalogsearch/pkg/logger"
	"github.com/utafrali/catalogsearch/pkg/validator"
)

// DefaultRebuildBatchSize is the number of documents sent per bulk request
// during RebuildAll.
const DefaultRebuildBatchSize = 500

// Operation names used in logs, metrics and repair events.
const (
	OpCreate    = "create"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpRebuild   = "rebuild"
	OpReconcile = "reconcile"
)

// EventPublisher publishes catalog events. Implementations must be safe for
// concurrent use.
type EventPublisher interface {
	PublishProductCreated(ctx context.Context, product *domain.Product) error
	PublishProductUpdated(ctx context.Context, product *domain.Product) error
	PublishProductDeleted(ctx context.Context, id string) error
	PublishIndexRepair(ctx context.Context, id, operation, reason string) error
}

// RebuildReport summarizes a RebuildAll run.
type RebuildReport struct {
	Total    int                  `json:"total"`
	Indexed  int                  `json:"indexed"`
	Failed   []domain.BulkFailure `json:"failed"`
	Removed  int                  `json:"removed"`
	Batches  int                  `json:"batches"`
	Duration string               `json:"duration"`
}

// CatalogService is the catalog synchronizer. It applies product changes to
// the record store first and then propagates them to the search index.
type CatalogService struct {
	repo      repository.ProductRepository
	engine    engine.SearchEngine
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
	batchSize int

	// indexReady is set once Bootstrap has succeeded. Writes before that
	// would let the backend create the index without the product schema.
	indexReady atomic.Bool
}

// Option configures a CatalogService.
type Option func(*CatalogService)

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *CatalogService) { s.now = now }
}

// WithBatchSize sets the RebuildAll batch size. Non-positive values keep the default.
func WithBatchSize(n int) Option {
	return func(s *CatalogService) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// NewCatalogService creates a new catalog service. publisher may be nil, in
// which case no events are published.
func NewCatalogService(repo repository.ProductRepository, eng engine.SearchEngine, publisher EventPublisher, logger *slog.Logger, opts ...Option) *CatalogService {
	s := &CatalogService{
		repo:      repo,
		engine:    eng,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		batchSize: DefaultRebuildBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CatalogService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// List returns every product in the record store.
func (s *CatalogService) List(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// Get returns the product with the given id from the record store.
func (s *CatalogService) Get(ctx context.Context, id string) (*domain.Product, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product by id: %w", err)
	}
	return product, nil
}

// Create stores a new product and indexes it.
//
// If the record store write fails nothing is indexed. If only the index write
// fails the product is returned together with a *PropagationError.
func (s *CatalogService) Create(ctx context.Context, input domain.ProductInput) (*domain.Product, error) {
	ctx = logger.WithOperation(ctx, OpCreate)

	input = input.Normalize()
	if err := validator.Validate(input); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	now := s.timestamp()
	product := &domain.Product{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	input.Apply(product)

	if err := s.repo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.publish(ctx, "product.created", product.ID, func() error {
		return s.publisher.PublishProductCreated(ctx, product)
	})

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "product created",
		slog.String("product_id", product.ID),
	)

	doc := domain.NewSearchDocument(product)
	if err := s.indexDocument(ctx, &doc); err != nil {
		return product, s.propagationFailed(ctx, OpCreate, product.ID, err)
	}
	indexPropagationTotal.WithLabelValues(OpCreate, resultOK).Inc()

	return product, nil
}

// Update replaces the caller-controlled fields of an existing product and
// re-indexes it. ID and CreatedAt are preserved; UpdatedAt always moves forward.
func (s *CatalogService) Update(ctx context.Context, id string, input domain.ProductInput) (*domain.Product, error) {
	ctx = logger.WithOperation(ctx, OpUpdate)

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product by id: %w", err)
	}

	input = input.Normalize()
	if err := validator.Validate(input); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	updated := *existing
	input.Apply(&updated)
	updated.UpdatedAt = s.timestamp()
	if !updated.UpdatedAt.After(existing.UpdatedAt) {
		updated.UpdatedAt = existing.UpdatedAt.Add(time.Millisecond)
	}

	if err := s.repo.Replace(ctx, id, &updated); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}

	s.publish(ctx, "product.updated", id, func() error {
		return s.publisher.PublishProductUpdated(ctx, &updated)
	})

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "product updated",
		slog.String("product_id", id),
	)

	doc := domain.NewSearchDocument(&updated)
	if err := s.indexDocument(ctx, &doc); err != nil {
		return &updated, s.propagationFailed(ctx, OpUpdate, id, err)
	}
	indexPropagationTotal.WithLabelValues(OpUpdate, resultOK).Inc()

	return &updated, nil
}

// Delete removes a product from the record store and then from the index.
func (s *CatalogService) Delete(ctx context.Context, id string) error {
	ctx = logger.WithOperation(ctx, OpDelete)

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	s.publish(ctx, "product.deleted", id, func() error {
		return s.publisher.PublishProductDeleted(ctx, id)
	})

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "product deleted",
		slog.String("product_id", id),
	)

	if err := s.engine.Delete(ctx, id); err != nil {
		return s.propagationFailed(ctx, OpDelete, id, err)
	}
	indexPropagationTotal.WithLabelValues(OpDelete, resultOK).Inc()

	return nil
}

// ensureIndex runs Bootstrap until it has succeeded once.
func (s *CatalogService) ensureIndex(ctx context.Context) error {
	if s.indexReady.Load() {
		return nil
	}
	_, err := s.Bootstrap(ctx)
	return err
}

func (s *CatalogService) indexDocument(ctx context.Context, doc *domain.SearchDocument) error {
	if err := s.ensureIndex(ctx); err != nil {
		return err
	}
	return s.engine.Index(ctx, doc)
}

// Bootstrap makes sure the product index exists. It never touches the data of
// an existing index and is safe to run concurrently from several processes.
func (s *CatalogService) Bootstrap(ctx context.Context) (domain.IndexStatus, error) {
	exists, err := s.engine.IndexExists(ctx)
	if err != nil {
		return "", fmt.Errorf("bootstrap index: %w", err)
	}
	if exists {
		s.indexReady.Store(true)
		return domain.IndexAlreadyExists, nil
	}

	status, err := s.engine.EnsureIndex(ctx, domain.ProductSchema)
	if err != nil {
		return "", fmt.Errorf("bootstrap index: %w", err)
	}
	s.indexReady.Store(true)

	s.logger.InfoContext(ctx, "search index bootstrapped", slog.String("status", string(status)))
	return status, nil
}

// RebuildAll re-indexes every product in the record store in batches.
// Per-document failures are collected in the report and never abort the
// run. Documents are only added or overwritten; the only deletions are
// snapshot products that disappeared from the record store mid-run.
func (s *CatalogService) RebuildAll(ctx context.Context) (*RebuildReport, error) {
	ctx = logger.WithOperation(ctx, OpRebuild)
	log := logger.WithContext(ctx, s.logger)
	start := time.Now()

	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("rebuild index: %w", err)
	}
	if err := s.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("rebuild index: %w", err)
	}

	report := &RebuildReport{Total: len(products), Failed: []domain.BulkFailure{}}

	for from := 0; from < len(products); from += s.batchSize {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("rebuild index: %w", err)
		}

		to := min(from+s.batchSize, len(products))
		report.Batches++

		docs := make([]domain.SearchDocument, 0, to-from)
		for i := from; i < to; i++ {
			doc := domain.NewSearchDocument(&products[i])
			if reason := invalidDocument(doc); reason != "" {
				report.Failed = append(report.Failed, domain.BulkFailure{ID: doc.ID, Reason: reason})
				continue
			}
			docs = append(docs, doc)
		}
		if len(docs) == 0 {
			continue
		}

		res, err := s.engine.BulkIndex(ctx, docs)
		if err != nil {
			log.WarnContext(ctx, "rebuild batch failed",
				slog.Int("batch", report.Batches),
				slog.Int("documents", len(docs)),
				slog.String("error", err.Error()),
			)
			for _, d := range docs {
				report.Failed = append(report.Failed, domain.BulkFailure{ID: d.ID, Reason: err.Error()})
			}
			continue
		}

		report.Indexed += res.Indexed
		report.Failed = append(report.Failed, res.Failed...)
	}

	if report.Indexed > 0 {
		s.dropVanished(ctx, products, report)
	}

	report.Duration = time.Since(start).String()
	rebuildDocumentsTotal.WithLabelValues("indexed").Add(float64(report.Indexed))
	rebuildDocumentsTotal.WithLabelValues("failed").Add(float64(len(report.Failed)))

	log.InfoContext(ctx, "search index rebuilt",
		slog.Int("total", report.Total),
		slog.Int("indexed", report.Indexed),
		slog.Int("failed", len(report.Failed)),
		slog.Int("removed", report.Removed),
		slog.Int("batches", report.Batches),
	)
	return report, nil
}

// dropVanished removes the index entries of snapshot products that were
// deleted from the record store while the rebuild ran, since the bulk write
// may have restored them after the delete. Only ids from the snapshot are
// touched.
func (s *CatalogService) dropVanished(ctx context.Context, snapshot []domain.Product, report *RebuildReport) {
	log := logger.WithContext(ctx, s.logger)

	current, err := s.repo.List(ctx)
	if err != nil {
		log.WarnContext(ctx, "rebuild could not re-read the record store",
			slog.String("error", err.Error()),
		)
		return
	}

	present := make(map[string]struct{}, len(current))
	for i := range current {
		present[current[i].ID] = struct{}{}
	}

	for i := range snapshot {
		id := snapshot[i].ID
		if _, ok := present[id]; ok {
			continue
		}
		if err := s.engine.Delete(ctx, id); err != nil {
			log.WarnContext(ctx, "failed to drop deleted product from index",
				slog.String("product_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.Removed++
	}
}

// Reconcile re-applies the record store state of one product to the index:
// a present record is indexed, an absent one is removed from the index.
func (s *CatalogService) Reconcile(ctx context.Context, id string) error {
	ctx = logger.WithOperation(ctx, OpReconcile)

	if strings.TrimSpace(id) == "" {
		return apperrors.InvalidInput("product id is required")
	}

	product, err := s.repo.GetByID(ctx, id)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		if err := s.engine.Delete(ctx, id); err != nil {
			return fmt.Errorf("reconcile product %s: %w", id, err)
		}
	case err != nil:
		return fmt.Errorf("reconcile product %s: %w", id, err)
	default:
		doc := domain.NewSearchDocument(product)
		if err := s.indexDocument(ctx, &doc); err != nil {
			return fmt.Errorf("reconcile product %s: %w", id, err)
		}
	}

	indexPropagationTotal.WithLabelValues(OpReconcile, resultOK).Inc()
	logger.WithContext(ctx, s.logger).InfoContext(ctx, "product reconciled",
		slog.String("product_id", id),
		slog.Bool("present", err == nil),
	)
	return nil
}

// propagationFailed records a failed index write for a committed change and
// requests an asynchronous repair.
func (s *CatalogService) propagationFailed(ctx context.Context, op, id string, cause error) *PropagationError {
	perr := newPropagationError(op, id, cause)
	indexPropagationTotal.WithLabelValues(op, resultStale).Inc()

	logger.WithContext(ctx, s.logger).WarnContext(ctx, "search index propagation failed",
		slog.String("product_id", id),
		slog.String("error", cause.Error()),
	)

	s.publish(ctx, "catalog.index_repair", id, func() error {
		return s.publisher.PublishIndexRepair(ctx, id, op, cause.Error())
	})
	return perr
}

// publish runs fn when a publisher is configured. Failures are logged and
// never fail the calling operation.
func (s *CatalogService) publish(ctx context.Context, eventType, id string, fn func() error) {
	if s.publisher == nil {
		return
	}
	if err := fn(); err != nil {
		logger.WithContext(ctx, s.logger).ErrorContext(ctx, "failed to publish event",
			slog.String("event_type", eventType),
			slog.String("product_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func invalidDocument(doc domain.SearchDocument) string {
	switch {
	case strings.TrimSpace(doc.ID) == "":
		return "invalid document: missing id"
	case strings.TrimSpace(doc.Title) == "":
		return "invalid document: title is required"
	case doc.Price < 0:
		return "invalid document: price must not be negative"
	}
	return ""
}
