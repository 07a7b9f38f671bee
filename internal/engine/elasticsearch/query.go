package elasticsearch

import (
	"fmt"
	"strconv"

	"github.com/utafrali/catalogsearch/internal/engine"
)

// buildSearchBody constructs the Elasticsearch search request body for spec.
func buildSearchBody(spec *engine.QuerySpec) (map[string]interface{}, error) {
	query, err := translate(spec.Query)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"query": query,
		"size":  spec.Limit(),
	}, nil
}

// translate converts one query node into the query DSL.
func translate(q engine.Query) (map[string]interface{}, error) {
	switch q := q.(type) {
	case engine.MatchText:
		fields := make([]string, 0, len(q.Fields))
		for _, f := range q.Fields {
			fields = append(fields, boostedField(f))
		}
		multiMatch := map[string]interface{}{
			"query":    q.Text,
			"fields":   fields,
			"operator": string(q.EffectiveOperator()),
		}
		if q.Fuzzy {
			multiMatch["fuzziness"] = "AUTO"
		}
		return map[string]interface{}{"multi_match": multiMatch}, nil

	case engine.MatchPrefix:
		return map[string]interface{}{
			"prefix": map[string]interface{}{
				q.Field: map[string]interface{}{"value": q.Prefix},
			},
		}, nil

	case engine.TermFilter:
		return map[string]interface{}{
			"term": map[string]interface{}{
				q.Field: map[string]interface{}{"value": q.Value},
			},
		}, nil

	case engine.BoolAnd:
		var must, filter []interface{}
		for _, c := range q.Clauses {
			clause, err := translate(c)
			if err != nil {
				return nil, err
			}
			// Exact filters do not affect relevance.
			if _, ok := c.(engine.TermFilter); ok {
				filter = append(filter, clause)
				continue
			}
			must = append(must, clause)
		}
		boolQuery := map[string]interface{}{}
		if len(must) > 0 {
			boolQuery["must"] = must
		}
		if len(filter) > 0 {
			boolQuery["filter"] = filter
		}
		return map[string]interface{}{"bool": boolQuery}, nil

	case engine.BoolOr:
		should := make([]interface{}, 0, len(q.Clauses))
		for _, c := range q.Clauses {
			clause, err := translate(c)
			if err != nil {
				return nil, err
			}
			should = append(should, clause)
		}
		return map[string]interface{}{
			"bool": map[string]interface{}{
				"should":               should,
				"minimum_should_match": q.MinimumMatches(),
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported query clause %T", q)
	}
}

func boostedField(f engine.FieldBoost) string {
	if f.Boost == 0 || f.Boost == 1 {
		return f.Field
	}
	return f.Field + "^" + strconv.FormatFloat(f.Boost, 'f', -1, 64)
}
