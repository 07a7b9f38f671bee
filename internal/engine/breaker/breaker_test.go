package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
	"github.com/utafrali/catalogsearch/internal/engine/memory"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
	"github.com/utafrali/catalogsearch/pkg/logger"
)

func testConfig(name string) Config {
	return Config{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      50 * time.Millisecond,
		FailureRatio: 0.5,
		MinRequests:  3,
	}
}

func newEngine(t *testing.T, name string) (*Engine, *memory.Engine) {
	t.Helper()
	inner := memory.New()
	_, err := inner.EnsureIndex(context.Background(), domain.ProductSchema)
	require.NoError(t, err)
	return New(inner, testConfig(name), logger.Discard()), inner
}

func TestBreaker_PassesThrough(t *testing.T) {
	e, inner := newEngine(t, "test-pass")
	ctx := context.Background()

	doc := domain.SearchDocument{ID: "p1", Title: "Lamp"}
	require.NoError(t, e.Index(ctx, &doc))
	assert.Equal(t, 1, inner.Len())

	exists, err := e.IndexExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	status, err := e.EnsureIndex(ctx, domain.ProductSchema)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexAlreadyExists, status)

	res, err := e.BulkIndex(ctx, []domain.SearchDocument{{ID: "p2", Title: "Desk"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)

	hits, err := e.Query(ctx, &engine.QuerySpec{Query: engine.MatchPrefix{Field: "title", Prefix: "la"}})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	require.NoError(t, e.Delete(ctx, "p1"))
	assert.Equal(t, gobreaker.StateClosed, e.State())
}

func TestBreaker_TripsAndFailsFast(t *testing.T) {
	e, inner := newEngine(t, "test-trip")
	ctx := context.Background()
	inner.FailOn(memory.OpIndex, errors.New("connection refused"))

	doc := domain.SearchDocument{ID: "p1", Title: "Lamp"}
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, e.Index(ctx, &doc), apperrors.ErrIndexUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, e.State())

	inner.FailOn(memory.OpIndex, nil)
	err := e.Index(ctx, &doc)
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 0, inner.Len(), "open breaker must not reach the backend")
}

func TestBreaker_RecoversAfterTimeout(t *testing.T) {
	e, inner := newEngine(t, "test-recover")
	ctx := context.Background()
	inner.FailOn(memory.OpDelete, errors.New("timeout"))

	for i := 0; i < 3; i++ {
		_ = e.Delete(ctx, "p1")
	}
	require.Equal(t, gobreaker.StateOpen, e.State())

	inner.FailOn(memory.OpDelete, nil)
	time.Sleep(80 * time.Millisecond)

	require.NoError(t, e.Delete(ctx, "p1"))
	assert.Equal(t, gobreaker.StateClosed, e.State())
}

func TestBreaker_RejectedQueriesDoNotTrip(t *testing.T) {
	e, _ := newEngine(t, "test-invalid")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := e.Query(ctx, &engine.QuerySpec{})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	}
	assert.Equal(t, gobreaker.StateClosed, e.State())
}

func TestIsSuccessful(t *testing.T) {
	assert.True(t, isSuccessful(nil))
	assert.True(t, isSuccessful(apperrors.InvalidInput("bad")))
	assert.True(t, isSuccessful(apperrors.IndexUnavailable("search", context.Canceled)))
	assert.True(t, isSuccessful(apperrors.IndexInconsistent("bad response")))
	assert.False(t, isSuccessful(apperrors.IndexUnavailable("search", errors.New("down"))))
}
