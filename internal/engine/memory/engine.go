package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
)

var _ engine.SearchEngine = (*Engine)(nil)

// Op names an engine operation for fault injection.
type Op string

const (
	OpExists Op = "exists"
	OpEnsure Op = "ensure"
	OpIndex  Op = "index"
	OpBulk   Op = "bulk"
	OpQuery  Op = "query"
	OpDelete Op = "delete"
	OpPing   Op = "ping"
)

// Engine is an in-memory implementation of engine.SearchEngine. It evaluates
// query specs directly with deterministic scoring: each matched field adds
// its boost, fuzzy matches add half of it, and ties are broken by title then
// id. Thread-safe via sync.RWMutex.
type Engine struct {
	mu       sync.RWMutex
	exists   bool
	schema   domain.Schema
	docs     map[string]domain.SearchDocument
	failures map[Op]error
	rejected map[string]string
}

// New creates a new in-memory search engine with no index.
func New() *Engine {
	return &Engine{
		docs:     make(map[string]domain.SearchDocument),
		failures: make(map[Op]error),
		rejected: make(map[string]string),
	}
}

// FailOn makes every following call of op fail with an index-unavailable
// error caused by err. Passing nil clears the fault.
func (e *Engine) FailOn(op Op, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.failures, op)
		return
	}
	e.failures[op] = err
}

// Reject makes the engine refuse the document with the given id, as a real
// index refuses a document it cannot parse.
func (e *Engine) Reject(id, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejected[id] = reason
}

// Document returns the stored document for id.
func (e *Engine) Document(id string) (domain.SearchDocument, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	doc, ok := e.docs[id]
	return doc, ok
}

// Len returns the number of stored documents.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs)
}

func (e *Engine) check(ctx context.Context, op Op) error {
	if err := ctx.Err(); err != nil {
		return apperrors.IndexUnavailable(string(op), err)
	}
	if err := e.failures[op]; err != nil {
		return apperrors.IndexUnavailable(string(op), err)
	}
	return nil
}

func (e *Engine) Ping(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.check(ctx, OpPing)
}

func (e *Engine) IndexExists(ctx context.Context) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.check(ctx, OpExists); err != nil {
		return false, err
	}
	return e.exists, nil
}

func (e *Engine) EnsureIndex(ctx context.Context, schema domain.Schema) (domain.IndexStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(ctx, OpEnsure); err != nil {
		return "", err
	}
	if e.exists {
		return domain.IndexAlreadyExists, nil
	}
	e.exists = true
	e.schema = schema
	return domain.IndexCreated, nil
}

// Index upserts doc. Like Elasticsearch, writing to a missing index creates
// it implicitly with an empty schema.
func (e *Engine) Index(ctx context.Context, doc *domain.SearchDocument) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(ctx, OpIndex); err != nil {
		return err
	}
	if reason, ok := e.rejected[doc.ID]; ok {
		return apperrors.IndexUnavailable("index document", fmt.Errorf("document %s rejected: %s", doc.ID, reason))
	}
	e.exists = true
	e.docs[doc.ID] = *doc
	return nil
}

func (e *Engine) BulkIndex(ctx context.Context, docs []domain.SearchDocument) (*domain.BulkResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(ctx, OpBulk); err != nil {
		return nil, err
	}

	result := &domain.BulkResult{}
	for i := range docs {
		if reason, ok := e.rejected[docs[i].ID]; ok {
			result.Failed = append(result.Failed, domain.BulkFailure{ID: docs[i].ID, Reason: reason})
			continue
		}
		e.exists = true
		e.docs[docs[i].ID] = docs[i]
		result.Indexed++
	}
	return result, nil
}

func (e *Engine) Delete(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(ctx, OpDelete); err != nil {
		return err
	}
	delete(e.docs, id)
	return nil
}

func (e *Engine) Query(ctx context.Context, spec *engine.QuerySpec) ([]domain.Hit, error) {
	if err := spec.Validate(); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.check(ctx, OpQuery); err != nil {
		return nil, err
	}
	if !e.exists {
		return nil, apperrors.IndexInconsistent("search rejected: index does not exist")
	}

	hits := make([]domain.Hit, 0)
	for _, doc := range e.docs {
		if ok, score := e.eval(spec.Query, doc); ok {
			hits = append(hits, domain.Hit{Document: doc, Score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Document.Title != b.Document.Title {
			return a.Document.Title < b.Document.Title
		}
		return a.Document.ID < b.Document.ID
	})

	if limit := spec.Limit(); len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// eval reports whether doc matches q and the score it contributes.
func (e *Engine) eval(q engine.Query, doc domain.SearchDocument) (bool, float64) {
	switch q := q.(type) {
	case engine.MatchText:
		return e.evalMatchText(q, doc)

	case engine.MatchPrefix:
		for _, tok := range e.fieldTerms(doc, q.Field) {
			if strings.HasPrefix(tok, q.Prefix) {
				return true, 1
			}
		}
		return false, 0

	case engine.TermFilter:
		for _, tok := range e.fieldTerms(doc, q.Field) {
			if tok == q.Value {
				return true, 0
			}
		}
		return false, 0

	case engine.BoolAnd:
		total := 0.0
		for _, c := range q.Clauses {
			ok, score := e.eval(c, doc)
			if !ok {
				return false, 0
			}
			total += score
		}
		return true, total

	case engine.BoolOr:
		matched, total := 0, 0.0
		for _, c := range q.Clauses {
			if ok, score := e.eval(c, doc); ok {
				matched++
				total += score
			}
		}
		if matched < q.MinimumMatches() {
			return false, 0
		}
		return true, total
	}
	return false, 0
}

func (e *Engine) evalMatchText(q engine.MatchText, doc domain.SearchDocument) (bool, float64) {
	queryTerms := tokenize(q.Text)
	if len(queryTerms) == 0 {
		return false, 0
	}

	total := 0.0
	matchedTerms := 0
	for _, qt := range queryTerms {
		found := false
		for _, f := range q.Fields {
			boost := f.Boost
			if boost == 0 {
				boost = 1
			}
			if w := termWeight(qt, e.fieldTerms(doc, f.Field), q.Fuzzy); w > 0 {
				found = true
				total += w * boost
			}
		}
		if found {
			matchedTerms++
		}
	}

	if q.EffectiveOperator() == engine.OperatorAnd {
		return matchedTerms == len(queryTerms), total
	}
	return matchedTerms > 0, total
}

// termWeight returns 1 for an exact term match, 0.5 for a fuzzy one and 0
// otherwise.
func termWeight(term string, fieldTerms []string, fuzzy bool) float64 {
	best := 0.0
	maxEdits := autoFuzziness(term)
	for _, ft := range fieldTerms {
		if ft == term {
			return 1
		}
		if fuzzy && maxEdits > 0 && editDistance(term, ft) <= maxEdits {
			best = 0.5
		}
	}
	return best
}

// fieldTerms returns the searchable terms of a document field. Text fields
// are tokenized and lowercased; keyword fields are a single exact term.
func (e *Engine) fieldTerms(doc domain.SearchDocument, field string) []string {
	value, ok := fieldValue(doc, field)
	if !ok {
		return nil
	}

	typ, known := e.schema.Lookup(field)
	if !known {
		typ = domain.FieldText
	}
	switch typ {
	case domain.FieldText:
		return tokenize(value)
	case domain.FieldStored:
		return nil
	default:
		return []string{value}
	}
}

func fieldValue(doc domain.SearchDocument, field string) (string, bool) {
	switch field {
	case "id":
		return doc.ID, true
	case domain.FieldNameTitle:
		return doc.Title, true
	case domain.FieldNameDescription:
		return doc.Description, true
	case domain.FieldNameCategory:
		return doc.Category, true
	case domain.FieldNamePrice:
		return strconv.FormatFloat(doc.Price, 'f', -1, 64), true
	case domain.FieldNameImageURL:
		return doc.ImageURL, true
	case domain.FieldNameCreatedAt:
		return doc.CreatedAt.Format(time.RFC3339Nano), true
	case domain.FieldNameUpdatedAt:
		return doc.UpdatedAt.Format(time.RFC3339Nano), true
	default:
		return "", false
	}
}

// tokenize lowercases s and splits it on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// autoFuzziness mirrors Elasticsearch's AUTO fuzziness: terms of one or two
// characters must match exactly, three to five allow one edit, longer allow two.
func autoFuzziness(term string) int {
	switch n := len([]rune(term)); {
	case n <= 2:
		return 0
	case n <= 5:
		return 1
	default:
		return 2
	}
}

// editDistance is the optimal string alignment distance between a and b:
// insertions, deletions, substitutions and adjacent transpositions each cost 1.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	n, m := len(ra), len(rb)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}

	d := make([][]int, n+1)
	for i := range d {
		d[i] = make([]int, m+1)
		d[i][0] = i
	}
	for j := 0; j <= m; j++ {
		d[0][j] = j
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			d[i][j] = min(d[i-1][j]+1, d[i][j-1]+1, d[i-1][j-1]+cost)
			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				d[i][j] = min(d[i][j], d[i-2][j-2]+1)
			}
		}
	}
	return d[n][m]
}
