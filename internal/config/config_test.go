package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, RecordStorePostgres, cfg.RecordStore)
	assert.Equal(t, SearchEngineElasticsearch, cfg.SearchEngine)
	assert.Equal(t, "http://localhost:9200", cfg.ElasticsearchURL)
	assert.Equal(t, "products", cfg.ElasticsearchIndex)
	assert.True(t, cfg.RebuildOnStartup)
	assert.Equal(t, 500, cfg.RebuildBatchSize)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("RECORD_STORE", "mongo")
	t.Setenv("SEARCH_ENGINE", "memory")
	t.Setenv("MONGODB_URI", "mongodb://mongo:27017")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("REBUILD_ON_STARTUP", "false")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, RecordStoreMongo, cfg.RecordStore)
	assert.Equal(t, SearchEngineMemory, cfg.SearchEngine)
	assert.Equal(t, "mongodb://mongo:27017", cfg.MongoConfig().URI)
	assert.Equal(t, "products", cfg.MongoConfig().Collection)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.RebuildOnStartup)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"http port", "CATALOG_HTTP_PORT", "0", "invalid HTTP port"},
		{"record store", "RECORD_STORE", "sqlite", "RECORD_STORE must be one of"},
		{"search engine", "SEARCH_ENGINE", "solr", "SEARCH_ENGINE must be one of"},
		{"batch size", "REBUILD_BATCH_SIZE", "0", "REBUILD_BATCH_SIZE must be positive"},
		{"breaker ratio", "INDEX_BREAKER_FAILURE_RATIO", "1.5", "INDEX_BREAKER_FAILURE_RATIO"},
		{"sample rate", "OTEL_SAMPLE_RATE", "2", "OTEL_SAMPLE_RATE"},
		{"rate limit", "QUERY_RATE_LIMIT_RPS", "-1", "QUERY_RATE_LIMIT_RPS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MalformedNumber(t *testing.T) {
	t.Setenv("CATALOG_HTTP_PORT", "eighty")

	cfg, err := Load()

	assert.Nil(t, cfg)
	assert.Error(t, err)
}

func TestPostgresConfig(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("DB_MAX_CONN_LIFETIME_MINUTES", "10")

	cfg, err := Load()
	require.NoError(t, err)

	pg := cfg.PostgresConfig()
	assert.Equal(t, "db", pg.Host)
	assert.Equal(t, 10*time.Minute, pg.MaxConnLifetime)
	assert.Equal(t, "postgres://catalog:catalog_secret@db:5432/catalog_db?sslmode=disable", pg.DSN())
}

func TestRedisConfig(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load()
	require.NoError(t, err)

	rc := cfg.RedisConfig()
	assert.Equal(t, "cache:6379", rc.Addr())
	assert.Equal(t, 2, rc.DB)
}
