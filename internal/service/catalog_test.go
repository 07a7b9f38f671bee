package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalogsearch/internal/domain"
	enginememory "github.com/utafrali/catalogsearch/internal/engine/memory"
	repomemory "github.com/utafrali/catalogsearch/internal/repository/memory"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
	"github.com/utafrali/catalogsearch/pkg/logger"
)

// --- Mock Publisher ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishProductCreated(ctx context.Context, product *domain.Product) error {
	return m.Called(ctx, product).Error(0)
}

func (m *mockPublisher) PublishProductUpdated(ctx context.Context, product *domain.Product) error {
	return m.Called(ctx, product).Error(0)
}

func (m *mockPublisher) PublishProductDeleted(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockPublisher) PublishIndexRepair(ctx context.Context, id, operation, reason string) error {
	return m.Called(ctx, id, operation, reason).Error(0)
}

// --- Fixtures ---

type fixture struct {
	repo    *repomemory.ProductRepository
	engine  *enginememory.Engine
	catalog *CatalogService
	query   *QueryService
	clock   *fakeClock
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func newFixture(t *testing.T, publisher EventPublisher, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		repo:   repomemory.NewProductRepository(),
		engine: enginememory.New(),
		clock:  &fakeClock{t: time.Date(2025, 6, 15, 12, 0, 0, 123456789, time.UTC)},
	}
	opts = append([]Option{WithClock(f.clock.Now)}, opts...)
	f.catalog = NewCatalogService(f.repo, f.engine, publisher, logger.Discard(), opts...)
	f.query = NewQueryService(f.engine, logger.Discard())

	_, err := f.catalog.Bootstrap(context.Background())
	require.NoError(t, err)
	return f
}

func shoeInput() domain.ProductInput {
	return domain.ProductInput{
		Title:       "Trail Running Shoe",
		Description: "Lightweight shoe with a grippy outsole",
		Category:    "Footwear",
		Price:       129.5,
	}
}

func strPtr(s string) *string { return &s }

// --- Create ---

func TestCreate_StoresAndIndexes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.catalog.Create(ctx, shoeInput())
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, time.Date(2025, 6, 15, 12, 0, 0, 123000000, time.UTC), p.CreatedAt, "timestamps have millisecond precision")
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)

	got, err := f.catalog.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Trail Running Shoe", got.Title)
	assert.Equal(t, "Lightweight shoe with a grippy outsole", got.Description)
	assert.Equal(t, "Footwear", got.Category)
	assert.Equal(t, 129.5, got.Price)

	results, err := f.query.Search(ctx, "shoe", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, p.ID, results[0].ID)
}

func TestCreate_InvalidInput(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name  string
		input domain.ProductInput
	}{
		{"blank title", domain.ProductInput{Title: "   ", Price: 1}},
		{"negative price", domain.ProductInput{Title: "Lamp", Price: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.catalog.Create(context.Background(), tt.input)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}

	all, err := f.catalog.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, 0, f.engine.Len())
}

func TestCreate_StoreFailureSkipsIndex(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.Fail(errors.New("connection refused"))

	_, err := f.catalog.Create(context.Background(), shoeInput())
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.Equal(t, 0, f.engine.Len())
}

func TestCreate_IndexFailureKeepsRecord(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("PublishProductCreated", mock.Anything, mock.Anything).Return(nil)
	pub.On("PublishIndexRepair", mock.Anything, mock.Anything, OpCreate, mock.Anything).Return(nil)

	f := newFixture(t, pub)
	f.engine.FailOn(enginememory.OpIndex, errors.New("connection refused"))
	ctx := context.Background()

	p, err := f.catalog.Create(ctx, shoeInput())
	require.Error(t, err)
	require.NotNil(t, p, "the committed product is returned with the propagation error")

	perr, ok := IsPropagationError(err)
	require.True(t, ok)
	assert.Equal(t, OpCreate, perr.Operation)
	assert.Equal(t, p.ID, perr.ProductID)
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)
	assert.NotEmpty(t, perr.Warning())

	got, err := f.catalog.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Title, got.Title)
	assert.Equal(t, 0, f.engine.Len())

	pub.AssertCalled(t, "PublishIndexRepair", mock.Anything, p.ID, OpCreate, mock.Anything)

	// Reconcile repairs the stale entry.
	f.engine.FailOn(enginememory.OpIndex, nil)
	require.NoError(t, f.catalog.Reconcile(ctx, p.ID))
	_, indexed := f.engine.Document(p.ID)
	assert.True(t, indexed)
}

func TestCreate_PublishFailureDoesNotFail(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("PublishProductCreated", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	f := newFixture(t, pub)
	p, err := f.catalog.Create(context.Background(), shoeInput())
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	pub.AssertExpectations(t)
}

// --- Update ---

func TestUpdate_PreservesIdentityAndReindexes(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("PublishProductCreated", mock.Anything, mock.Anything).Return(nil)
	pub.On("PublishProductUpdated", mock.Anything, mock.Anything).Return(nil)

	f := newFixture(t, pub)
	ctx := context.Background()

	p, err := f.catalog.Create(ctx, shoeInput())
	require.NoError(t, err)

	f.clock.Set(f.clock.Now().Add(time.Hour))
	in := shoeInput()
	in.Title = "Mountain Boot"
	in.Category = "Boots"

	updated, err := f.catalog.Update(ctx, p.ID, in)
	require.NoError(t, err)
	assert.Equal(t, p.ID, updated.ID)
	assert.Equal(t, p.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(p.UpdatedAt))

	doc, ok := f.engine.Document(p.ID)
	require.True(t, ok)
	assert.Equal(t, "Mountain Boot", doc.Title)
	assert.Equal(t, "Boots", doc.Category)

	results, err := f.query.Search(ctx, "boot", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, updated.UpdatedAt, results[0].UpdatedAt)

	pub.AssertNumberOfCalls(t, "PublishProductUpdated", 1)
}

func TestUpdate_UpdatedAtStrictlyIncreases(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.catalog.Create(ctx, shoeInput())
	require.NoError(t, err)

	// The clock has not moved, or has gone backwards.
	first, err := f.catalog.Update(ctx, p.ID, shoeInput())
	require.NoError(t, err)
	assert.True(t, first.UpdatedAt.After(p.UpdatedAt))

	f.clock.Set(f.clock.Now().Add(-time.Minute))
	second, err := f.catalog.Update(ctx, p.ID, shoeInput())
	require.NoError(t, err)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
}

func TestUpdate_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	leftover := domain.SearchDocument{ID: "missing", Title: "Old Lamp"}
	require.NoError(t, f.engine.Index(ctx, &leftover))

	_, err := f.catalog.Update(ctx, "missing", shoeInput())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, isStale := IsPropagationError(err)
	assert.False(t, isStale)

	doc, ok := f.engine.Document("missing")
	require.True(t, ok)
	assert.Equal(t, "Old Lamp", doc.Title, "index entry is not touched")
}

func TestUpdate_NotFoundBeforeValidation(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.catalog.Update(context.Background(), "missing", domain.ProductInput{Title: " ", Price: -1})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NotErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestUpdate_InvalidInputOnExistingProduct(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.catalog.Create(ctx, shoeInput())
	require.NoError(t, err)

	_, err = f.catalog.Update(ctx, p.ID, domain.ProductInput{Title: " "})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestUpdate_IndexFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.catalog.Create(ctx, shoeInput())
	require.NoError(t, err)

	f.engine.FailOn(enginememory.OpIndex, errors.New("timeout"))
	in := shoeInput()
	in.Title = "Renamed"
	updated, err := f.catalog.Update(ctx, p.ID, in)

	perr, ok := IsPropagationError(err)
	require.True(t, ok)
	assert.Equal(t, OpUpdate, perr.Operation)
	assert.Equal(t, "Renamed", updated.Title)

	stored, err := f.catalog.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Title)

	doc, _ := f.engine.Document(p.ID)
	assert.Equal(t, "Trail Running Shoe", doc.Title, "index keeps the stale version")
}

// --- Delete ---

func TestDelete_RemovesRecordAndDocument(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.catalog.Create(ctx, shoeInput())
	require.NoError(t, err)

	require.NoError(t, f.catalog.Delete(ctx, p.ID))

	_, err = f.catalog.Get(ctx, p.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	results, err := f.query.Search(ctx, "shoe", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDelete_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	leftover := domain.SearchDocument{ID: "missing", Title: "Old Lamp"}
	require.NoError(t, f.engine.Index(ctx, &leftover))

	err := f.catalog.Delete(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, isStale := IsPropagationError(err)
	assert.False(t, isStale)

	_, ok := f.engine.Document("missing")
	assert.True(t, ok, "index entry is not touched")
}

func TestDelete_IndexFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.catalog.Create(ctx, shoeInput())
	require.NoError(t, err)

	f.engine.FailOn(enginememory.OpDelete, errors.New("timeout"))
	err = f.catalog.Delete(ctx, p.ID)
	perr, ok := IsPropagationError(err)
	require.True(t, ok)
	assert.Equal(t, OpDelete, perr.Operation)

	_, err = f.catalog.Get(ctx, p.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "record stays deleted")

	f.engine.FailOn(enginememory.OpDelete, nil)
	require.NoError(t, f.catalog.Reconcile(ctx, p.ID))
	_, indexed := f.engine.Document(p.ID)
	assert.False(t, indexed)
}

// --- Bootstrap ---

func TestBootstrap_Idempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.catalog.Create(ctx, shoeInput())
	require.NoError(t, err)

	status, err := f.catalog.Bootstrap(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexAlreadyExists, status)
	assert.Equal(t, 1, f.engine.Len(), "bootstrap leaves existing data alone")
}

func TestBootstrap_CreatesMissingIndex(t *testing.T) {
	eng := enginememory.New()
	svc := NewCatalogService(repomemory.NewProductRepository(), eng, nil, logger.Discard())

	status, err := svc.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.IndexCreated, status)
}

func TestBootstrap_Concurrent(t *testing.T) {
	eng := enginememory.New()
	svc := NewCatalogService(repomemory.NewProductRepository(), eng, nil, logger.Discard())

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Bootstrap(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestBootstrap_IndexUnavailable(t *testing.T) {
	eng := enginememory.New()
	eng.FailOn(enginememory.OpExists, errors.New("connection refused"))
	svc := NewCatalogService(repomemory.NewProductRepository(), eng, nil, logger.Discard())

	_, err := svc.Bootstrap(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)
}

func TestBootstrap_RetriedBeforeFirstWrite(t *testing.T) {
	repo := repomemory.NewProductRepository()
	eng := enginememory.New()
	svc := NewCatalogService(repo, eng, nil, logger.Discard())
	query := NewQueryService(eng, logger.Discard())
	ctx := context.Background()

	eng.FailOn(enginememory.OpExists, errors.New("connection refused"))
	_, err := svc.Bootstrap(ctx)
	require.Error(t, err)

	// Still unreachable: the write is reported stale and nothing is created.
	p, err := svc.Create(ctx, domain.ProductInput{Title: "Desk Lamp", Category: "Home Goods", Price: 40})
	_, isStale := IsPropagationError(err)
	require.True(t, isStale)
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)

	// Back online: the next write bootstraps the index with the product schema first.
	eng.FailOn(enginememory.OpExists, nil)
	_, err = svc.Create(ctx, domain.ProductInput{Title: "Floor Lamp", Category: "Home Goods", Price: 90})
	require.NoError(t, err)

	_, err = svc.RebuildAll(ctx)
	require.NoError(t, err)

	results, err := query.Search(ctx, "lamp", strPtr("Home Goods"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Desk Lamp", "Floor Lamp"}, titles(results))

	results, err = query.Search(ctx, "lamp", strPtr("home"))
	require.NoError(t, err)
	assert.Empty(t, results, "category is matched as a whole keyword")

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Desk Lamp", got.Title)
}

func TestRebuildAll_BootstrapsMissingIndex(t *testing.T) {
	repo := repomemory.NewProductRepository()
	eng := enginememory.New()
	svc := NewCatalogService(repo, eng, nil, logger.Discard())
	query := NewQueryService(eng, logger.Discard())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.Product{ID: "p-1", Title: "Desk Lamp", Category: "Home Goods"}))

	report, err := svc.RebuildAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)

	results, err := query.Search(ctx, "lamp", strPtr("Home Goods"))
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRebuildAll_IndexUnreachable(t *testing.T) {
	repo := repomemory.NewProductRepository()
	eng := enginememory.New()
	eng.FailOn(enginememory.OpExists, errors.New("connection refused"))
	svc := NewCatalogService(repo, eng, nil, logger.Discard())

	_, err := svc.RebuildAll(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)
	assert.Equal(t, 0, eng.Len())
}

// --- RebuildAll ---

func seed(t *testing.T, f *fixture, n int) []*domain.Product {
	t.Helper()
	out := make([]*domain.Product, 0, n)
	for i := 0; i < n; i++ {
		p := &domain.Product{
			ID:        fmt.Sprintf("p-%03d", i),
			Title:     fmt.Sprintf("Lamp %d", i),
			Category:  "Lighting",
			Price:     float64(i),
			CreatedAt: f.clock.Now(),
			UpdatedAt: f.clock.Now(),
		}
		require.NoError(t, f.repo.Create(context.Background(), p))
		out = append(out, p)
	}
	return out
}

func TestRebuildAll_IndexesEverything(t *testing.T) {
	f := newFixture(t, nil, WithBatchSize(4))
	seed(t, f, 10)

	report, err := f.catalog.RebuildAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, report.Total)
	assert.Equal(t, 10, report.Indexed)
	assert.Empty(t, report.Failed)
	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, 10, f.engine.Len())
}

func TestRebuildAll_PerItemFailuresDoNotAbort(t *testing.T) {
	f := newFixture(t, nil, WithBatchSize(4))
	seed(t, f, 10)
	f.engine.Reject("p-002", "failed to parse")
	f.engine.Reject("p-007", "failed to parse")

	report, err := f.catalog.RebuildAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, report.Total)
	assert.Equal(t, 8, report.Indexed)
	require.Len(t, report.Failed, 2)
	assert.ElementsMatch(t, []string{"p-002", "p-007"}, []string{report.Failed[0].ID, report.Failed[1].ID})
	assert.Equal(t, report.Total, report.Indexed+len(report.Failed))
}

func TestRebuildAll_InvalidProjectionReported(t *testing.T) {
	f := newFixture(t, nil)
	seed(t, f, 2)
	require.NoError(t, f.repo.Create(context.Background(), &domain.Product{ID: "legacy", Title: " "}))

	report, err := f.catalog.RebuildAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Indexed)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "legacy", report.Failed[0].ID)
}

func TestRebuildAll_WholeBatchFailure(t *testing.T) {
	f := newFixture(t, nil, WithBatchSize(5))
	seed(t, f, 5)
	f.engine.FailOn(enginememory.OpBulk, errors.New("cluster red"))

	report, err := f.catalog.RebuildAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Indexed)
	assert.Len(t, report.Failed, 5)
}

func TestRebuildAll_NeverDeletes(t *testing.T) {
	f := newFixture(t, nil)
	seed(t, f, 2)

	orphan := domain.SearchDocument{ID: "orphan", Title: "Orphan"}
	require.NoError(t, f.engine.Index(context.Background(), &orphan))

	_, err := f.catalog.RebuildAll(context.Background())
	require.NoError(t, err)
	_, ok := f.engine.Document("orphan")
	assert.True(t, ok)
}

// deletingRepo removes a product right after the first List, as a concurrent
// Delete would while a rebuild is working from its snapshot.
type deletingRepo struct {
	*repomemory.ProductRepository
	engine *enginememory.Engine
	victim string
	lists  int
}

func (r *deletingRepo) List(ctx context.Context) ([]domain.Product, error) {
	products, err := r.ProductRepository.List(ctx)
	r.lists++
	if r.lists == 1 {
		if err := r.ProductRepository.Delete(ctx, r.victim); err != nil {
			return nil, err
		}
		if err := r.engine.Delete(ctx, r.victim); err != nil {
			return nil, err
		}
	}
	return products, err
}

func TestRebuildAll_ConcurrentDeleteIsNotResurrected(t *testing.T) {
	f := newFixture(t, nil)
	seed(t, f, 3)
	repo := &deletingRepo{ProductRepository: f.repo, engine: f.engine, victim: "p-001"}
	svc := NewCatalogService(repo, f.engine, nil, logger.Discard())
	_, err := svc.Bootstrap(context.Background())
	require.NoError(t, err)

	report, err := svc.RebuildAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Indexed)
	assert.Equal(t, 1, report.Removed)

	_, ok := f.engine.Document("p-001")
	assert.False(t, ok)
	assert.Equal(t, 2, f.engine.Len())
}

func TestRebuildAll_Idempotent(t *testing.T) {
	f := newFixture(t, nil)
	seed(t, f, 3)

	_, err := f.catalog.RebuildAll(context.Background())
	require.NoError(t, err)
	report, err := f.catalog.RebuildAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Indexed)
	assert.Equal(t, 3, f.engine.Len())
}

func TestRebuildAll_StoreUnavailable(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.Fail(errors.New("connection refused"))

	_, err := f.catalog.RebuildAll(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}

func TestRebuildAll_Empty(t *testing.T) {
	f := newFixture(t, nil)

	report, err := f.catalog.RebuildAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)
	assert.Equal(t, 0, report.Batches)
	assert.NotNil(t, report.Failed)
}

// --- Reconcile ---

func TestReconcile_BlankID(t *testing.T) {
	f := newFixture(t, nil)
	assert.ErrorIs(t, f.catalog.Reconcile(context.Background(), " "), apperrors.ErrInvalidInput)
}

func TestReconcile_IndexUnavailable(t *testing.T) {
	f := newFixture(t, nil)
	seed(t, f, 1)
	f.engine.FailOn(enginememory.OpIndex, errors.New("down"))

	err := f.catalog.Reconcile(context.Background(), "p-000")
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)
}
