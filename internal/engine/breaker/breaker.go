package breaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
)

var _ engine.SearchEngine = (*Engine)(nil)

// Config holds configuration for the circuit breaker.
type Config struct {
	// Name identifies this breaker (used in metrics and logs).
	Name string

	// MaxRequests is the maximum number of requests allowed in the half-open state.
	// 0 means 1 request is allowed.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state for clearing internal counts.
	// 0 means internal counts are never cleared during the closed state.
	Interval time.Duration

	// Timeout is how long the breaker stays open before moving to half-open.
	Timeout time.Duration

	// FailureRatio is the ratio of failures to total requests that trips the breaker.
	FailureRatio float64

	// MinRequests is the minimum number of requests needed before the failure ratio is evaluated.
	MinRequests uint32
}

// DefaultConfig returns sensible defaults for the search index breaker.
func DefaultConfig() Config {
	return Config{
		Name:         "search-index",
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

var breakerState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "catalog_index_circuit_breaker_state",
		Help: "Current state of the search index circuit breaker (0=closed, 1=half-open, 2=open)",
	},
	[]string{"name"},
)

func init() {
	prometheus.MustRegister(breakerState)
}

// stateToFloat maps gobreaker states to prometheus gauge values.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Engine decorates a SearchEngine with a circuit breaker. While the breaker
// is open every call fails fast with an index-unavailable error.
type Engine struct {
	next    engine.SearchEngine
	breaker *gobreaker.CircuitBreaker[any]
}

// New wraps next with a circuit breaker.
func New(next engine.SearchEngine, cfg Config, logger *slog.Logger) *Engine {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	}

	breakerState.WithLabelValues(cfg.Name).Set(0)

	return &Engine{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

// isSuccessful counts only backend unavailability against the breaker.
// Rejected queries and caller cancellations say nothing about index health.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	return !errors.Is(err, apperrors.ErrIndexUnavailable)
}

// State returns the current state of the circuit breaker.
func (e *Engine) State() gobreaker.State {
	return e.breaker.State()
}

func (e *Engine) execute(op string, fn func() (any, error)) (any, error) {
	res, err := e.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, apperrors.IndexUnavailable(op, err)
	}
	return res, err
}

func (e *Engine) IndexExists(ctx context.Context) (bool, error) {
	res, err := e.execute("check index exists", func() (any, error) {
		return e.next.IndexExists(ctx)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

func (e *Engine) EnsureIndex(ctx context.Context, schema domain.Schema) (domain.IndexStatus, error) {
	res, err := e.execute("create index", func() (any, error) {
		return e.next.EnsureIndex(ctx, schema)
	})
	if err != nil {
		return "", err
	}
	return res.(domain.IndexStatus), nil
}

func (e *Engine) Index(ctx context.Context, doc *domain.SearchDocument) error {
	_, err := e.execute("index document", func() (any, error) {
		return nil, e.next.Index(ctx, doc)
	})
	return err
}

func (e *Engine) BulkIndex(ctx context.Context, docs []domain.SearchDocument) (*domain.BulkResult, error) {
	res, err := e.execute("bulk index", func() (any, error) {
		return e.next.BulkIndex(ctx, docs)
	})
	if err != nil {
		return nil, err
	}
	return res.(*domain.BulkResult), nil
}

func (e *Engine) Query(ctx context.Context, spec *engine.QuerySpec) ([]domain.Hit, error) {
	res, err := e.execute("search", func() (any, error) {
		return e.next.Query(ctx, spec)
	})
	if err != nil {
		return nil, err
	}
	return res.([]domain.Hit), nil
}

func (e *Engine) Delete(ctx context.Context, id string) error {
	_, err := e.execute("delete document", func() (any, error) {
		return nil, e.next.Delete(ctx, id)
	})
	return err
}

// Ping bypasses the breaker so readiness reflects the backend itself.
func (e *Engine) Ping(ctx context.Context) error {
	return e.next.Ping(ctx)
}
