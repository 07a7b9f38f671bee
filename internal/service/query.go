package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
	"github.com/utafrali/catalogsearch/pkg/logger"
)

// Result sizes requested from the index.
const (
	SearchSize       = 100
	AutocompleteSize = 5
)

// QueryService answers search and autocomplete requests from the index alone.
type QueryService struct {
	engine engine.SearchEngine
	logger *slog.Logger
}

// NewQueryService creates a new query service.
func NewQueryService(eng engine.SearchEngine, logger *slog.Logger) *QueryService {
	return &QueryService{
		engine: eng,
		logger: logger,
	}
}

// SearchSpec builds the full-text search query: a fuzzy match on title
// (boosted) and description, optionally narrowed to an exact category.
func SearchSpec(text string, category *string) *engine.QuerySpec {
	clauses := []engine.Query{
		engine.MatchText{
			Fields: []engine.FieldBoost{
				{Field: domain.FieldNameTitle, Boost: 2},
				{Field: domain.FieldNameDescription, Boost: 1},
			},
			Text:     text,
			Fuzzy:    true,
			Operator: engine.OperatorOr,
		},
	}
	if category != nil && strings.TrimSpace(*category) != "" {
		clauses = append(clauses, engine.TermFilter{
			Field: domain.FieldNameCategory,
			Value: strings.TrimSpace(*category),
		})
	}
	return &engine.QuerySpec{Query: engine.BoolAnd{Clauses: clauses}, Size: SearchSize}
}

// AutocompleteSpec builds the prefix query used for suggestions.
func AutocompleteSpec(text string) *engine.QuerySpec {
	prefix := strings.ToLower(text)
	return &engine.QuerySpec{
		Query: engine.BoolOr{
			Clauses: []engine.Query{
				engine.MatchPrefix{Field: domain.FieldNameTitle, Prefix: prefix},
				engine.MatchPrefix{Field: domain.FieldNameDescription, Prefix: prefix},
			},
			MinimumShouldMatch: 1,
		},
		Size: AutocompleteSize,
	}
}

// Search returns products matching text in relevance order. A blank
// category means no category filter. Zero matches is a successful, empty
// result; index failures are returned to the caller.
func (s *QueryService) Search(ctx context.Context, text string, category *string) ([]domain.Product, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.InvalidInput("search query is required")
	}

	hits, err := s.engine.Query(ctx, SearchSpec(text, category))
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return products(hits), nil
}

// Autocomplete returns up to AutocompleteSize products whose title or
// description has a term starting with text. Index failures are logged and
// produce an empty result.
func (s *QueryService) Autocomplete(ctx context.Context, text string) ([]domain.Product, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.InvalidInput("autocomplete query is required")
	}

	hits, err := s.engine.Query(ctx, AutocompleteSpec(text))
	if err != nil {
		autocompleteFailuresTotal.Inc()
		logger.WithContext(ctx, s.logger).WarnContext(ctx, "autocomplete failed, returning no suggestions",
			slog.String("query", text),
			slog.String("error", err.Error()),
		)
		return []domain.Product{}, nil
	}
	return products(hits), nil
}

func products(hits []domain.Hit) []domain.Product {
	out := make([]domain.Product, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Document.Product())
	}
	return out
}
