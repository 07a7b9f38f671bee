package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/catalogsearch/internal/service"
	"github.com/utafrali/catalogsearch/pkg/health"
	"github.com/utafrali/catalogsearch/pkg/middleware"
)

// ServiceName labels HTTP metrics and spans.
const ServiceName = "catalog"

// RouterConfig holds the router settings that come from configuration.
type RouterConfig struct {
	CORSOrigins        []string
	PprofAllowedCIDRs  []string
	AutocompleteMaxAge int
	RequestTimeout     time.Duration
	TracingEnabled     bool
	QueryRateLimit     float64
	QueryBurst         int
}

// NewRouter creates a chi router with all catalog routes registered.
func NewRouter(
	cfg RouterConfig,
	catalogService *service.CatalogService,
	queryService *service.QueryService,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	// Global middleware
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.CORSOrigins}))
	r.Use(middleware.Recovery(logger))
	if cfg.TracingEnabled {
		r.Use(middleware.Tracing(ServiceName))
	}
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)

	productHandler := NewProductHandler(catalogService, logger)
	searchHandler := NewSearchHandler(queryService, logger)
	adminHandler := NewAdminHandler(catalogService, logger)

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", productHandler.ListProducts)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.QueryRateLimit, cfg.QueryBurst, logger))
			r.Get("/search", searchHandler.Search)
			r.With(middleware.CacheControl(cfg.AutocompleteMaxAge)).Get("/autocomplete", searchHandler.Autocomplete)
		})
		r.Get("/{id}", productHandler.GetProduct)
		r.Delete("/{id}", productHandler.DeleteProduct)

		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Post("/", productHandler.CreateProduct)
			r.Put("/{id}", productHandler.UpdateProduct)
		})
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Post("/reindex", adminHandler.Reindex)
		r.Post("/reindex/{id}", adminHandler.ReindexProduct)
	})

	return r
}
