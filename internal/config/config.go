package config

import (
	"errors"
	"fmt"
	"time"

	pkgconfig "github.com/utafrali/catalogsearch/pkg/config"
	"github.com/utafrali/catalogsearch/pkg/database"
)

// Record store backends.
const (
	RecordStorePostgres = "postgres"
	RecordStoreMongo    = "mongo"
	RecordStoreMemory   = "memory"
)

// Search engine backends.
const (
	SearchEngineElasticsearch = "elasticsearch"
	SearchEngineMemory        = "memory"
)

// Config holds all configuration for the catalog service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int `env:"CATALOG_HTTP_PORT" envDefault:"8080"`
	RequestTimeoutSecs int `env:"HTTP_REQUEST_TIMEOUT_SECONDS" envDefault:"30"`

	// Per-client limit on the query endpoints. Zero disables it.
	QueryRateLimitRPS   float64 `env:"QUERY_RATE_LIMIT_RPS" envDefault:"50"`
	QueryRateLimitBurst int     `env:"QUERY_RATE_LIMIT_BURST" envDefault:"100"`

	// Backend selection
	RecordStore  string `env:"RECORD_STORE" envDefault:"postgres"`
	SearchEngine string `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"catalog"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"catalog_secret"`
	PostgresDB   string `env:"CATALOG_DB_NAME" envDefault:"catalog_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// MongoDB
	MongoURI        string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase   string `env:"MONGODB_DATABASE" envDefault:"catalog"`
	MongoCollection string `env:"MONGODB_COLLECTION" envDefault:"products"`

	// Elasticsearch
	ElasticsearchURL        string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200"`
	ElasticsearchIndex      string `env:"ELASTICSEARCH_INDEX" envDefault:"products"`
	ElasticsearchUsername   string `env:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPassword   string `env:"ELASTICSEARCH_PASSWORD"`
	ElasticsearchMaxRetries int    `env:"ELASTICSEARCH_MAX_RETRIES" envDefault:"3"`

	// Circuit breaker around the search index
	BreakerEnabled      bool    `env:"INDEX_BREAKER_ENABLED" envDefault:"true"`
	BreakerTimeoutSecs  int     `env:"INDEX_BREAKER_TIMEOUT_SECONDS" envDefault:"30"`
	BreakerFailureRatio float64 `env:"INDEX_BREAKER_FAILURE_RATIO" envDefault:"0.6"`
	BreakerMinRequests  uint32  `env:"INDEX_BREAKER_MIN_REQUESTS" envDefault:"5"`

	// Index maintenance
	RebuildOnStartup bool `env:"REBUILD_ON_STARTUP" envDefault:"true"`
	RebuildBatchSize int  `env:"REBUILD_BATCH_SIZE" envDefault:"500"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"catalog-service"`

	// Redis (repair event deduplication)
	RedisEnabled    bool   `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost       string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort       int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	RedisDB         int    `env:"REDIS_DB" envDefault:"0"`
	DedupTTLMinutes int    `env:"EVENT_DEDUP_TTL_MINUTES" envDefault:"1440"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Autocomplete responses may be cached by shared caches for this long.
	AutocompleteCacheSecs int `env:"AUTOCOMPLETE_CACHE_SECONDS" envDefault:"30"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load catalog config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	switch c.RecordStore {
	case RecordStorePostgres:
		if c.PostgresHost == "" {
			return errors.New("POSTGRES_HOST is required")
		}
		if c.PostgresUser == "" {
			return errors.New("POSTGRES_USER is required")
		}
	case RecordStoreMongo:
		if c.MongoURI == "" {
			return errors.New("MONGODB_URI is required")
		}
		if c.MongoDatabase == "" || c.MongoCollection == "" {
			return errors.New("MONGODB_DATABASE and MONGODB_COLLECTION are required")
		}
	case RecordStoreMemory:
	default:
		return fmt.Errorf("RECORD_STORE must be one of postgres, mongo, memory, got %q", c.RecordStore)
	}

	switch c.SearchEngine {
	case SearchEngineElasticsearch:
		if c.ElasticsearchURL == "" {
			return errors.New("ELASTICSEARCH_URL is required")
		}
		if c.ElasticsearchIndex == "" {
			return errors.New("ELASTICSEARCH_INDEX is required")
		}
	case SearchEngineMemory:
	default:
		return fmt.Errorf("SEARCH_ENGINE must be one of elasticsearch, memory, got %q", c.SearchEngine)
	}

	if c.QueryRateLimitRPS < 0 || c.QueryRateLimitBurst < 0 {
		return errors.New("QUERY_RATE_LIMIT_RPS and QUERY_RATE_LIMIT_BURST must not be negative")
	}

	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1.0 {
		return fmt.Errorf("INDEX_BREAKER_FAILURE_RATIO must be in (0, 1], got %f", c.BreakerFailureRatio)
	}
	if c.RebuildBatchSize < 1 {
		return fmt.Errorf("REBUILD_BATCH_SIZE must be positive, got %d", c.RebuildBatchSize)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// PostgresConfig returns the connection settings for the record store pool.
func (c *Config) PostgresConfig() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// MongoConfig returns the connection settings for the MongoDB record store.
func (c *Config) MongoConfig() database.MongoConfig {
	cfg := database.DefaultMongoConfig()
	cfg.URI = c.MongoURI
	cfg.Database = c.MongoDatabase
	cfg.Collection = c.MongoCollection
	return cfg
}

// RedisConfig returns the connection settings for Redis.
func (c *Config) RedisConfig() database.RedisConfig {
	cfg := database.DefaultRedisConfig()
	cfg.Host = c.RedisHost
	cfg.Port = c.RedisPort
	cfg.Password = c.RedisPassword
	cfg.DB = c.RedisDB
	return cfg
}
