package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
)

func doc(id, title, description, category string) domain.SearchDocument {
	return domain.SearchDocument{ID: id, Title: title, Description: description, Category: category}
}

func newIndexedEngine(t *testing.T, docs ...domain.SearchDocument) *Engine {
	t.Helper()
	e := New()
	_, err := e.EnsureIndex(context.Background(), domain.ProductSchema)
	require.NoError(t, err)
	if len(docs) > 0 {
		res, err := e.BulkIndex(context.Background(), docs)
		require.NoError(t, err)
		require.Empty(t, res.Failed)
	}
	return e
}

func searchSpec(text, category string) *engine.QuerySpec {
	clauses := []engine.Query{engine.MatchText{
		Fields:   []engine.FieldBoost{{Field: "title", Boost: 2}, {Field: "description", Boost: 1}},
		Text:     text,
		Fuzzy:    true,
		Operator: engine.OperatorOr,
	}}
	if category != "" {
		clauses = append(clauses, engine.TermFilter{Field: "category", Value: category})
	}
	return &engine.QuerySpec{Query: engine.BoolAnd{Clauses: clauses}, Size: 100}
}

func prefixSpec(prefix string) *engine.QuerySpec {
	return &engine.QuerySpec{
		Query: engine.BoolOr{Clauses: []engine.Query{
			engine.MatchPrefix{Field: "title", Prefix: prefix},
			engine.MatchPrefix{Field: "description", Prefix: prefix},
		}, MinimumShouldMatch: 1},
		Size: 5,
	}
}

func ids(hits []domain.Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Document.ID
	}
	return out
}

func TestEnsureIndex_Idempotent(t *testing.T) {
	e := New()
	ctx := context.Background()

	exists, err := e.IndexExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	status, err := e.EnsureIndex(ctx, domain.ProductSchema)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexCreated, status)

	status, err = e.EnsureIndex(ctx, domain.ProductSchema)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexAlreadyExists, status)

	exists, err = e.IndexExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestIndex_UpsertsByID(t *testing.T) {
	e := newIndexedEngine(t)
	ctx := context.Background()

	d := doc("p1", "Shoe", "", "Footwear")
	require.NoError(t, e.Index(ctx, &d))
	d.Title = "Boot"
	require.NoError(t, e.Index(ctx, &d))

	assert.Equal(t, 1, e.Len())
	got, ok := e.Document("p1")
	require.True(t, ok)
	assert.Equal(t, "Boot", got.Title)
}

func TestDelete_AbsentIsNoop(t *testing.T) {
	e := newIndexedEngine(t, doc("p1", "Shoe", "", ""))
	require.NoError(t, e.Delete(context.Background(), "p1"))
	require.NoError(t, e.Delete(context.Background(), "p1"))
	assert.Equal(t, 0, e.Len())
}

func TestQuery_TitleBoostRanksFirst(t *testing.T) {
	e := newIndexedEngine(t,
		doc("d", "Rain Jacket", "Great on the trail", "Outerwear"),
		doc("t", "Trail Shoe", "Grippy", "Footwear"),
	)

	hits, err := e.Query(context.Background(), searchSpec("trail", ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"t", "d"}, ids(hits))
	assert.Equal(t, 2.0, hits[0].Score)
	assert.Equal(t, 1.0, hits[1].Score)
}

func TestQuery_FuzzyMatch(t *testing.T) {
	e := newIndexedEngine(t,
		doc("p1", "Running Shoe", "", "Footwear"),
		doc("p2", "Laptop", "", "Electronics"),
	)

	hits, err := e.Query(context.Background(), searchSpec("shoo", ""))
	require.NoError(t, err)
	require.Equal(t, []string{"p1"}, ids(hits))
	assert.Equal(t, 1.0, hits[0].Score, "fuzzy title match weighs half the boost")

	// Transposed letters are one edit.
	hits, err = e.Query(context.Background(), searchSpec("lpatop", ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, ids(hits))
}

func TestQuery_ShortTermsMustMatchExactly(t *testing.T) {
	e := newIndexedEngine(t, doc("p1", "TV stand", "", ""))

	hits, err := e.Query(context.Background(), searchSpec("tx", ""))
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = e.Query(context.Background(), searchSpec("TV", ""))
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestQuery_CategoryFilterIsExact(t *testing.T) {
	e := newIndexedEngine(t,
		doc("p1", "Trail Shoe", "", "Footwear"),
		doc("p2", "Trail Map", "", "Books"),
	)
	ctx := context.Background()

	hits, err := e.Query(ctx, searchSpec("trail", "Footwear"))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids(hits))

	hits, err = e.Query(ctx, searchSpec("trail", "footwear"))
	require.NoError(t, err)
	assert.Empty(t, hits, "keyword filters are case sensitive")

	hits, err = e.Query(ctx, searchSpec("trail", "Garden"))
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestQuery_OperatorAnd(t *testing.T) {
	e := newIndexedEngine(t,
		doc("p1", "Red Shoe", "", ""),
		doc("p2", "Red Hat", "", ""),
	)
	spec := searchSpec("red shoe", "")
	and := spec.Query.(engine.BoolAnd)
	mt := and.Clauses[0].(engine.MatchText)
	mt.Operator = engine.OperatorAnd
	spec.Query = engine.BoolAnd{Clauses: []engine.Query{mt}}

	hits, err := e.Query(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids(hits))
}

func TestQuery_TiesBreakByTitleThenID(t *testing.T) {
	e := newIndexedEngine(t,
		doc("b", "Zebra Lamp", "", ""),
		doc("c", "Alpha Lamp", "", ""),
		doc("a", "Alpha Lamp", "", ""),
	)

	hits, err := e.Query(context.Background(), searchSpec("lamp", ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, ids(hits))
}

func TestQuery_Prefix(t *testing.T) {
	e := newIndexedEngine(t,
		doc("p1", "Wireless Headphones", "", ""),
		doc("p2", "Desk", "Has a wire organiser", ""),
		doc("p3", "Chair", "", ""),
	)

	hits, err := e.Query(context.Background(), prefixSpec("wire"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2"}, ids(hits))

	hits, err = e.Query(context.Background(), prefixSpec("Wire"))
	require.NoError(t, err)
	assert.Empty(t, hits, "prefixes are compared against lowercased terms")
}

func TestQuery_SizeLimit(t *testing.T) {
	var docs []domain.SearchDocument
	for i := 0; i < 8; i++ {
		docs = append(docs, doc(fmt.Sprintf("p%d", i), fmt.Sprintf("Lamp %d", i), "", ""))
	}
	e := newIndexedEngine(t, docs...)

	hits, err := e.Query(context.Background(), prefixSpec("lam"))
	require.NoError(t, err)
	assert.Len(t, hits, 5)
}

func TestQuery_MissingIndex(t *testing.T) {
	e := New()
	_, err := e.Query(context.Background(), searchSpec("x", ""))
	assert.ErrorIs(t, err, apperrors.ErrIndexInconsistent)
}

func TestQuery_InvalidSpec(t *testing.T) {
	e := newIndexedEngine(t)
	_, err := e.Query(context.Background(), &engine.QuerySpec{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestFailOn(t *testing.T) {
	e := newIndexedEngine(t)
	ctx := context.Background()
	cause := errors.New("connection refused")

	e.FailOn(OpIndex, cause)
	d := doc("p1", "Shoe", "", "")
	err := e.Index(ctx, &d)
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 0, e.Len())

	e.FailOn(OpIndex, nil)
	require.NoError(t, e.Index(ctx, &d))
}

func TestReject(t *testing.T) {
	e := newIndexedEngine(t)
	ctx := context.Background()
	e.Reject("bad", "failed to parse field [price]")

	res, err := e.BulkIndex(ctx, []domain.SearchDocument{doc("ok", "A", "", ""), doc("bad", "B", "", "")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "bad", res.Failed[0].ID)

	d := doc("bad", "B", "", "")
	assert.ErrorIs(t, e.Index(ctx, &d), apperrors.ErrIndexUnavailable)
}

func TestCanceledContext(t *testing.T) {
	e := newIndexedEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Query(ctx, searchSpec("x", ""))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentAccess(t *testing.T) {
	e := newIndexedEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := doc(fmt.Sprintf("p%d", i), "Lamp", "", "")
			_ = e.Index(ctx, &d)
			_, _ = e.Query(ctx, searchSpec("lamp", ""))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, e.Len())
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"shoe", "", 4},
		{"shoe", "shoe", 0},
		{"shoe", "shoo", 1},
		{"trail", "trial", 1},
		{"kitten", "sitting", 3},
		{"çanta", "canta", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, editDistance(tt.a, tt.b), "%s -> %s", tt.a, tt.b)
	}
}

func TestAutoFuzziness(t *testing.T) {
	assert.Equal(t, 0, autoFuzziness("tv"))
	assert.Equal(t, 1, autoFuzziness("shoe"))
	assert.Equal(t, 1, autoFuzziness("trail"))
	assert.Equal(t, 2, autoFuzziness("jacket"))
}
