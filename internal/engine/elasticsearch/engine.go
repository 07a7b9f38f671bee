package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
)

const errTypeAlreadyExists = "resource_already_exists_exception"

var _ engine.SearchEngine = (*Engine)(nil)

// Config holds Elasticsearch connection settings.
type Config struct {
	URL        string
	Index      string
	Username   string
	Password   string
	MaxRetries int
	// Refresh is passed to write requests. "true" makes writes visible to
	// the next search.
	Refresh string
}

// DefaultConfig returns defaults matching a local single-node cluster.
func DefaultConfig() Config {
	return Config{
		URL:        "http://localhost:9200",
		Index:      DefaultIndexName,
		MaxRetries: 3,
		Refresh:    "true",
	}
}

// Engine is an Elasticsearch-backed implementation of engine.SearchEngine.
type Engine struct {
	client    *elasticsearch.Client
	indexName string
	refresh   string
	logger    *slog.Logger
}

// esSearchResponse is the structure used to decode Elasticsearch search responses.
type esSearchResponse struct {
	Hits *struct {
		Hits []struct {
			ID     string                `json:"_id"`
			Score  float64               `json:"_score"`
			Source domain.SearchDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// esBulkResponse is the structure used to decode Elasticsearch bulk responses.
type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates an Elasticsearch engine. It does not contact the cluster; the
// index is created by EnsureIndex.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.Index == "" {
		cfg.Index = DefaultIndexName
	}
	if cfg.Refresh == "" {
		cfg.Refresh = "true"
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:  []string{cfg.URL},
		Username:   cfg.Username,
		Password:   cfg.Password,
		MaxRetries: cfg.MaxRetries,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   20,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}

	return &Engine{
		client:    client,
		indexName: cfg.Index,
		refresh:   cfg.Refresh,
		logger:    logger,
	}, nil
}

// IndexName returns the name of the index this engine writes to.
func (e *Engine) IndexName() string {
	return e.indexName
}

// Ping checks whether the Elasticsearch cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return apperrors.IndexUnavailable("ping", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return apperrors.IndexUnavailable("ping", fmt.Errorf("unexpected status %s", res.Status()))
	}
	return nil
}

// IndexExists reports whether the product index exists.
func (e *Engine) IndexExists(ctx context.Context) (bool, error) {
	res, err := e.client.Indices.Exists(
		[]string{e.indexName},
		e.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return false, apperrors.IndexUnavailable("check index exists", err)
	}
	defer func() { _ = res.Body.Close() }()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, apperrors.IndexUnavailable("check index exists", fmt.Errorf("unexpected status %s", res.Status()))
	}
}

// EnsureIndex creates the product index with a mapping derived from schema.
// Losing a creation race to another process counts as success.
func (e *Engine) EnsureIndex(ctx context.Context, schema domain.Schema) (domain.IndexStatus, error) {
	body, err := json.Marshal(buildIndexMapping(schema))
	if err != nil {
		return "", fmt.Errorf("elasticsearch create index: marshal mapping: %w", err)
	}

	res, err := e.client.Indices.Create(
		e.indexName,
		e.client.Indices.Create.WithBody(bytes.NewReader(body)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return "", apperrors.IndexUnavailable("create index", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		errResp := decodeError(res)
		if errResp.Error.Type == errTypeAlreadyExists {
			e.logger.InfoContext(ctx, "elasticsearch index already exists", slog.String("index", e.indexName))
			return domain.IndexAlreadyExists, nil
		}
		return "", apperrors.IndexUnavailable("create index", errResp.err(res))
	}

	e.logger.InfoContext(ctx, "elasticsearch index created", slog.String("index", e.indexName))
	return domain.IndexCreated, nil
}

// Index adds or updates a single document in the Elasticsearch index.
func (e *Engine) Index(ctx context.Context, doc *domain.SearchDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("elasticsearch index: marshal document: %w", err)
	}

	res, err := e.client.Index(
		e.indexName,
		bytes.NewReader(data),
		e.client.Index.WithDocumentID(doc.ID),
		e.client.Index.WithRefresh(e.refresh),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return apperrors.IndexUnavailable("index document", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return apperrors.IndexUnavailable("index document", decodeError(res).err(res))
	}

	e.logger.DebugContext(ctx, "indexed product", slog.String("id", doc.ID), slog.String("title", doc.Title))
	return nil
}

// Delete removes a document from the Elasticsearch index by its ID.
// A 404 response is not an error; the document is already gone.
func (e *Engine) Delete(ctx context.Context, id string) error {
	res, err := e.client.Delete(
		e.indexName,
		id,
		e.client.Delete.WithRefresh(e.refresh),
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return apperrors.IndexUnavailable("delete document", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return apperrors.IndexUnavailable("delete document", decodeError(res).err(res))
	}

	e.logger.DebugContext(ctx, "deleted product", slog.String("id", id))
	return nil
}

// BulkIndex adds or updates multiple documents using the bulk NDJSON API.
func (e *Engine) BulkIndex(ctx context.Context, docs []domain.SearchDocument) (*domain.BulkResult, error) {
	result := &domain.BulkResult{}
	if len(docs) == 0 {
		return result, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range docs {
		action := map[string]interface{}{
			"index": map[string]interface{}{
				"_index": e.indexName,
				"_id":    docs[i].ID,
			},
		}
		if err := enc.Encode(action); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk index: encode action: %w", err)
		}
		if err := enc.Encode(docs[i]); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk index: encode document: %w", err)
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.indexName),
		e.client.Bulk.WithRefresh(e.refresh),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return nil, apperrors.IndexUnavailable("bulk index", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, apperrors.IndexUnavailable("bulk index", decodeError(res).err(res))
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return nil, apperrors.IndexUnavailable("bulk index", fmt.Errorf("decode response: %w", err))
	}

	for _, item := range bulkResp.Items {
		if item.Index.Error.Type != "" || item.Index.Status >= 300 {
			result.Failed = append(result.Failed, domain.BulkFailure{
				ID:     item.Index.ID,
				Reason: fmt.Sprintf("%s: %s", item.Index.Error.Type, item.Index.Error.Reason),
			})
			continue
		}
		result.Indexed++
	}

	e.logger.InfoContext(ctx, "bulk indexed products",
		slog.Int("indexed", result.Indexed),
		slog.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// Query executes spec against Elasticsearch and returns hits in relevance order.
func (e *Engine) Query(ctx context.Context, spec *engine.QuerySpec) ([]domain.Hit, error) {
	if err := spec.Validate(); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	body, err := buildSearchBody(spec)
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, apperrors.IndexUnavailable("search", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		cause := decodeError(res).err(res)
		if res.StatusCode >= http.StatusInternalServerError || res.StatusCode == http.StatusTooManyRequests {
			return nil, apperrors.IndexUnavailable("search", cause)
		}
		return nil, apperrors.IndexInconsistent(fmt.Sprintf("search rejected: %v", cause))
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, apperrors.IndexInconsistent(fmt.Sprintf("decode search response: %v", err))
	}
	if esResp.Hits == nil {
		return nil, apperrors.IndexInconsistent("search response has no hits section")
	}

	hits := make([]domain.Hit, 0, len(esResp.Hits.Hits))
	for _, h := range esResp.Hits.Hits {
		doc := h.Source
		if doc.ID == "" {
			doc.ID = h.ID
		}
		hits = append(hits, domain.Hit{Document: doc, Score: h.Score})
	}
	return hits, nil
}

// DeleteIndex removes the entire Elasticsearch index.
// It is intended for tests and administrative operations only.
// A 404 response is treated as success (index already absent).
func (e *Engine) DeleteIndex(ctx context.Context) error {
	res, err := e.client.Indices.Delete(
		[]string{e.indexName},
		e.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return apperrors.IndexUnavailable("delete index", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return apperrors.IndexUnavailable("delete index", decodeError(res).err(res))
	}

	e.logger.InfoContext(ctx, "elasticsearch index deleted", slog.String("index", e.indexName))
	return nil
}

func decodeError(res *esapi.Response) esErrorResponse {
	var errResp esErrorResponse
	_ = json.NewDecoder(res.Body).Decode(&errResp)
	return errResp
}

func (r esErrorResponse) err(res *esapi.Response) error {
	if r.Error.Type != "" {
		return fmt.Errorf("%s: %s", r.Error.Type, r.Error.Reason)
	}
	return fmt.Errorf("unexpected status %s", res.Status())
}
