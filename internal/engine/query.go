package engine

import (
	"fmt"
	"strings"
)

// DefaultQuerySize is used when a QuerySpec leaves Size unset.
const DefaultQuerySize = 10

// Query is one node of a query tree. The concrete node types are MatchText,
// MatchPrefix, TermFilter, BoolAnd and BoolOr.
type Query interface {
	isQuery()
}

// Operator joins the terms of a MatchText query.
type Operator string

const (
	OperatorOr  Operator = "or"
	OperatorAnd Operator = "and"
)

// FieldBoost names a field and the weight of matches in it.
type FieldBoost struct {
	Field string
	Boost float64
}

// MatchText is a full-text match of Text against Fields. With Fuzzy set the
// backend tolerates typos, scaled to the term length.
type MatchText struct {
	Fields   []FieldBoost
	Text     string
	Fuzzy    bool
	Operator Operator
}

// MatchPrefix matches documents whose Field has a term starting with Prefix.
type MatchPrefix struct {
	Field  string
	Prefix string
}

// TermFilter matches documents whose Field equals Value exactly. It does not
// contribute to the score.
type TermFilter struct {
	Field string
	Value string
}

// BoolAnd matches documents matching every clause.
type BoolAnd struct {
	Clauses []Query
}

// BoolOr matches documents matching at least MinimumShouldMatch clauses.
// A zero MinimumShouldMatch behaves as 1.
type BoolOr struct {
	Clauses            []Query
	MinimumShouldMatch int
}

func (MatchText) isQuery()   {}
func (MatchPrefix) isQuery() {}
func (TermFilter) isQuery()  {}
func (BoolAnd) isQuery()     {}
func (BoolOr) isQuery()      {}

// QuerySpec is a backend-neutral search request.
type QuerySpec struct {
	Query Query
	Size  int
}

// Limit returns the effective result size.
func (s *QuerySpec) Limit() int {
	if s.Size <= 0 {
		return DefaultQuerySize
	}
	return s.Size
}

// Validate checks that the query tree is well formed.
func (s *QuerySpec) Validate() error {
	if s == nil || s.Query == nil {
		return fmt.Errorf("query spec: missing query")
	}
	return validateQuery(s.Query)
}

func validateQuery(q Query) error {
	switch q := q.(type) {
	case MatchText:
		if len(q.Fields) == 0 {
			return fmt.Errorf("match text: no fields")
		}
		for _, f := range q.Fields {
			if f.Field == "" {
				return fmt.Errorf("match text: empty field name")
			}
		}
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("match text: empty text")
		}
		if q.Operator != "" && q.Operator != OperatorOr && q.Operator != OperatorAnd {
			return fmt.Errorf("match text: unknown operator %q", q.Operator)
		}
	case MatchPrefix:
		if q.Field == "" {
			return fmt.Errorf("match prefix: empty field name")
		}
	case TermFilter:
		if q.Field == "" {
			return fmt.Errorf("term filter: empty field name")
		}
	case BoolAnd:
		if len(q.Clauses) == 0 {
			return fmt.Errorf("bool and: no clauses")
		}
		for _, c := range q.Clauses {
			if err := validateQuery(c); err != nil {
				return err
			}
		}
	case BoolOr:
		if len(q.Clauses) == 0 {
			return fmt.Errorf("bool or: no clauses")
		}
		if q.MinimumShouldMatch > len(q.Clauses) {
			return fmt.Errorf("bool or: minimum_should_match %d exceeds %d clauses", q.MinimumShouldMatch, len(q.Clauses))
		}
		for _, c := range q.Clauses {
			if err := validateQuery(c); err != nil {
				return err
			}
		}
	case nil:
		return fmt.Errorf("query spec: nil clause")
	default:
		return fmt.Errorf("query spec: unsupported clause %T", q)
	}
	return nil
}

// MinimumMatches returns the effective number of clauses that must match.
func (q BoolOr) MinimumMatches() int {
	if q.MinimumShouldMatch < 1 {
		return 1
	}
	return q.MinimumShouldMatch
}

// EffectiveOperator returns the operator, defaulting to OperatorOr.
func (q MatchText) EffectiveOperator() Operator {
	if q.Operator == "" {
		return OperatorOr
	}
	return q.Operator
}
