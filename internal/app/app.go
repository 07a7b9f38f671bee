package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/catalogsearch/internal/config"
	"github.com/utafrali/catalogsearch/internal/engine"
	"github.com/utafrali/catalogsearch/internal/engine/breaker"
	esengine "github.com/utafrali/catalogsearch/internal/engine/elasticsearch"
	enginememory "github.com/utafrali/catalogsearch/internal/engine/memory"
	"github.com/utafrali/catalogsearch/internal/event"
	handler "github.com/utafrali/catalogsearch/internal/handler/http"
	"github.com/utafrali/catalogsearch/internal/repository"
	repomemory "github.com/utafrali/catalogsearch/internal/repository/memory"
	mongorepo "github.com/utafrali/catalogsearch/internal/repository/mongo"
	"github.com/utafrali/catalogsearch/internal/repository/postgres"
	"github.com/utafrali/catalogsearch/internal/service"
	"github.com/utafrali/catalogsearch/pkg/database"
	"github.com/utafrali/catalogsearch/pkg/health"
	pkgkafka "github.com/utafrali/catalogsearch/pkg/kafka"
	"github.com/utafrali/catalogsearch/pkg/tracing"
)

// ServiceName identifies the catalog service in logs, traces and metrics.
const ServiceName = "catalog"

// closer releases one owned client during shutdown.
type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// App wires together all dependencies and runs the catalog service.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	repo       repository.ProductRepository
	catalog    *service.CatalogService
	consumers  []*pkgkafka.Consumer
	httpServer *http.Server

	// closers run in order after the HTTP server and consumers have stopped.
	closers []closer
}

// NewApp creates a new application instance, initializing all dependencies.
// Clients opened before a failure are released before returning.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.closers = append(a.closers, closer{"tracer", tracerShutdown})

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	healthHandler := health.NewHandler()

	a.repo, err = a.openRecordStore(ctx, healthHandler)
	if err != nil {
		return nil, err
	}

	eng, err := a.openSearchEngine(healthHandler)
	if err != nil {
		return nil, err
	}

	// Kafka is optional. A nil publisher must stay an untyped nil so the
	// catalog service sees no publisher at all.
	var publisher service.EventPublisher
	var kafkaProducer *pkgkafka.Producer
	if cfg.KafkaEnabled {
		kafkaProducer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		a.closers = append(a.closers, closer{"kafka producer", func(context.Context) error { return kafkaProducer.Close() }})
		publisher = event.NewProducer(kafkaProducer, logger)
		healthHandler.Register("kafka", kafkaProducer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	a.catalog = service.NewCatalogService(a.repo, eng, publisher, logger,
		service.WithBatchSize(cfg.RebuildBatchSize),
	)
	queryService := service.NewQueryService(eng, logger)

	if cfg.KafkaEnabled {
		if err := a.initRepairConsumer(ctx, healthHandler); err != nil {
			return nil, err
		}
	}

	// HTTP router.
	router := handler.NewRouter(handler.RouterConfig{
		CORSOrigins:        cfg.CORSAllowedOrigins,
		PprofAllowedCIDRs:  cfg.PprofAllowedCIDRs,
		AutocompleteMaxAge: cfg.AutocompleteCacheSecs,
		RequestTimeout:     time.Duration(cfg.RequestTimeoutSecs) * time.Second,
		TracingEnabled:     cfg.OTELEnabled,
		QueryRateLimit:     cfg.QueryRateLimitRPS,
		QueryBurst:         cfg.QueryRateLimitBurst,
	}, a.catalog, queryService, healthHandler, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      time.Duration(cfg.RequestTimeoutSecs+15) * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// openRecordStore connects the configured record store and registers its
// readiness check.
func (a *App) openRecordStore(ctx context.Context, hh *health.Handler) (repository.ProductRepository, error) {
	cfg := a.cfg
	switch cfg.RecordStore {
	case config.RecordStorePostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.PostgresConfig(), a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, closer{"postgres", func(context.Context) error {
			pool.Close()
			return nil
		}})
		a.logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, ServiceName); err != nil {
			a.logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
		}

		repo := postgres.NewProductRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure products table: %w", err)
		}
		hh.Register("postgres", repo.Ping)
		return repo, nil

	case config.RecordStoreMongo:
		mongoCfg := cfg.MongoConfig()
		client, err := database.NewMongoClient(ctx, mongoCfg, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to mongodb: %w", err)
		}
		a.closers = append(a.closers, closer{"mongodb", client.Disconnect})
		a.logger.Info("connected to MongoDB",
			slog.String("database", mongoCfg.Database),
			slog.String("collection", mongoCfg.Collection),
		)

		repo := mongorepo.NewProductRepository(client.Database(mongoCfg.Database).Collection(mongoCfg.Collection))
		hh.Register("mongodb", repo.Ping)
		return repo, nil

	default:
		a.logger.Warn("using in-memory record store; data is lost on restart")
		return repomemory.NewProductRepository(), nil
	}
}

// openSearchEngine builds the configured search index adapter, wrapped in a
// circuit breaker when enabled.
func (a *App) openSearchEngine(hh *health.Handler) (engine.SearchEngine, error) {
	cfg := a.cfg

	var eng engine.SearchEngine
	switch cfg.SearchEngine {
	case config.SearchEngineElasticsearch:
		esCfg := esengine.DefaultConfig()
		esCfg.URL = cfg.ElasticsearchURL
		esCfg.Index = cfg.ElasticsearchIndex
		esCfg.Username = cfg.ElasticsearchUsername
		esCfg.Password = cfg.ElasticsearchPassword
		esCfg.MaxRetries = cfg.ElasticsearchMaxRetries

		esEng, err := esengine.New(esCfg, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		eng = esEng
		a.logger.Info("elasticsearch search engine initialized",
			slog.String("url", cfg.ElasticsearchURL),
			slog.String("index", cfg.ElasticsearchIndex),
		)
	default:
		eng = enginememory.New()
		a.logger.Info("in-memory search engine initialized")
	}

	if cfg.BreakerEnabled {
		bcfg := breaker.DefaultConfig()
		bcfg.Timeout = time.Duration(cfg.BreakerTimeoutSecs) * time.Second
		bcfg.FailureRatio = cfg.BreakerFailureRatio
		bcfg.MinRequests = cfg.BreakerMinRequests
		eng = breaker.New(eng, bcfg, a.logger)
	}

	hh.Register("search_index", eng.Ping)
	return eng, nil
}

// initRepairConsumer subscribes to index repair events. Duplicate deliveries
// are filtered through Redis when it is enabled and in memory otherwise.
func (a *App) initRepairConsumer(ctx context.Context, hh *health.Handler) error {
	cfg := a.cfg
	ttl := time.Duration(cfg.DedupTTLMinutes) * time.Minute

	var store pkgkafka.IdempotencyStore
	if cfg.RedisEnabled {
		redisCfg := cfg.RedisConfig()
		client, err := database.NewRedisClient(ctx, redisCfg, a.logger)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, closer{"redis", func(context.Context) error { return client.Close() }})
		hh.Register("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
		store = pkgkafka.NewRedisIdempotencyStore(client, redisCfg.KeyPrefix, ttl)
		a.logger.Info("redis event deduplication enabled", slog.String("addr", redisCfg.Addr()))
	} else {
		store = pkgkafka.NewMemoryIdempotencyStore(ttl)
	}

	dlq := pkgkafka.NewDLQProducer(cfg.KafkaBrokers, a.logger)
	a.closers = append(a.closers, closer{"kafka dlq producer", func(context.Context) error { return dlq.Close() }})

	repair := event.NewRepairConsumer(a.catalog, a.logger)
	consumer := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.KafkaGroupID,
		Topic:    event.TopicIndexRepair,
		MinBytes: 1,
		MaxBytes: 10e6, // 10 MB
	}, pkgkafka.IdempotentHandler(store, repair.Handle, a.logger), dlq, a.logger)
	a.consumers = append(a.consumers, consumer)

	a.logger.Info("index repair consumer initialized",
		slog.String("topic", event.TopicIndexRepair),
		slog.String("group", cfg.KafkaGroupID),
	)
	return nil
}

// PrepareIndex creates the search index when it is absent. An unreachable
// index is not fatal: the catalog retries the bootstrap before its next index
// write, and writes report stale propagation until the index is back.
func (a *App) PrepareIndex(ctx context.Context) {
	status, err := a.catalog.Bootstrap(ctx)
	if err != nil {
		a.logger.Warn("search index bootstrap failed", slog.String("error", err.Error()))
		return
	}
	a.logger.Info("search index ready", slog.String("status", string(status)))
}

func (a *App) rebuild(ctx context.Context) {
	report, err := a.catalog.RebuildAll(ctx)
	if err != nil {
		a.logger.Error("startup rebuild failed", slog.String("error", err.Error()))
		return
	}
	a.logger.Info("startup rebuild finished",
		slog.Int("total", report.Total),
		slog.Int("indexed", report.Indexed),
		slog.Int("failed", len(report.Failed)),
	)
}

// Run prepares the index, then serves HTTP and consumes repair events until
// ctx is canceled or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.PrepareIndex(ctx)

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.RebuildOnStartup {
		g.Go(func() error {
			a.rebuild(gctx)
			return nil
		})
	}

	for _, c := range a.consumers {
		g.Go(func() error {
			if err := c.Start(gctx); err != nil {
				return fmt.Errorf("kafka consumer %s: %w", c.Topic(), err)
			}
			return nil
		})
	}

	g.Go(func() error {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown signal received")

		// Drain in-flight HTTP requests (10s budget).
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	return errors.Join(err, a.Close())
}

// Close releases owned clients in registration order. Consumers close their
// own readers when Start returns.
func (a *App) Close() error {
	a.logger.Info("shutting down application...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	for _, c := range a.closers {
		if err := c.fn(ctx); err != nil {
			a.logger.Error("shutdown error",
				slog.String("component", c.name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
