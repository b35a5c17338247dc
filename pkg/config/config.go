// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for the
// indexer, the retrieval engine and the optional Redis, Kafka and Postgres
// integrations.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/errors"
)

// Frequency counting modes for block inversion.
const (
	FrequencyCount    = "count"
	FrequencyPresence = "presence"
)

// Config is the top-level application configuration.
type Config struct {
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Postgres PostgresConfig `yaml:"postgres"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// IndexerConfig controls where the collection lives, where index files are
// written and how blocks are inverted.
type IndexerConfig struct {
	CollectionDir     string `yaml:"collectionDir"`
	OutputDir         string `yaml:"outputDir"`
	IndexName         string `yaml:"indexName"`
	Workers           int    `yaml:"workers"`
	FrequencyMode     string `yaml:"frequencyMode"`
	PostingsCacheSize int    `yaml:"postingsCacheSize"`
	KeepIntermediate  bool   `yaml:"keepIntermediate"`
}

// BM25Config holds the two BM25 free parameters.
type BM25Config struct {
	K1 float64 `yaml:"k1"`
	B  float64 `yaml:"b"`
}

// SearchConfig controls retrieval defaults.
type SearchConfig struct {
	DefaultLimit int        `yaml:"defaultLimit"`
	Scheme       string     `yaml:"scheme"`
	BM25         BM25Config `yaml:"bm25"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexComplete string `yaml:"indexComplete"`
}

// PostgresConfig holds PostgreSQL connection parameters for the build journal.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config suitable for indexing a local collection.
func Default() *Config {
	return &Config{
		Indexer: IndexerConfig{
			CollectionDir:     "collection",
			OutputDir:         "index",
			IndexName:         "main_index",
			Workers:           4,
			FrequencyMode:     FrequencyCount,
			PostingsCacheSize: 1024,
		},
		Search: SearchConfig{
			DefaultLimit: 10,
			Scheme:       "bm25",
			BM25: BM25Config{
				K1: 1.5,
				B:  0.8,
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "bsbi-search",
			Topics: KafkaTopics{
				IndexComplete: "index.complete",
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "bsbi",
			User:            "bsbi",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
	}
}

// Validate rejects settings the indexer or retrieval engine cannot honour.
func (c *Config) Validate() error {
	switch c.Indexer.FrequencyMode {
	case FrequencyCount, FrequencyPresence:
	default:
		return apperrors.Newf(apperrors.ErrInvalidInput, "config",
			"indexer.frequencyMode must be %q or %q, got %q",
			FrequencyCount, FrequencyPresence, c.Indexer.FrequencyMode)
	}
	if c.Indexer.Workers <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidInput, "config",
			"indexer.workers must be positive, got %d", c.Indexer.Workers)
	}
	if c.Indexer.IndexName == "" {
		return apperrors.New(apperrors.ErrInvalidInput, "config", "indexer.indexName is empty")
	}
	switch strings.ToLower(c.Search.Scheme) {
	case "tfidf", "binary", "bm25":
	default:
		return apperrors.Newf(apperrors.ErrInvalidInput, "config",
			"search.scheme must be one of tfidf, binary, bm25, got %q", c.Search.Scheme)
	}
	if c.Search.BM25.K1 < 0 || c.Search.BM25.B < 0 || c.Search.BM25.B > 1 {
		return apperrors.Newf(apperrors.ErrInvalidInput, "config",
			"search.bm25 out of range: k1=%v b=%v", c.Search.BM25.K1, c.Search.BM25.B)
	}
	return nil
}

// applyEnvOverrides reads BSBI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BSBI_COLLECTION_DIR"); v != "" {
		cfg.Indexer.CollectionDir = v
	}
	if v := os.Getenv("BSBI_OUTPUT_DIR"); v != "" {
		cfg.Indexer.OutputDir = v
	}
	if v := os.Getenv("BSBI_INDEX_NAME"); v != "" {
		cfg.Indexer.IndexName = v
	}
	if v := os.Getenv("BSBI_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.Workers = n
		}
	}
	if v := os.Getenv("BSBI_FREQUENCY_MODE"); v != "" {
		cfg.Indexer.FrequencyMode = v
	}
	if v := os.Getenv("BSBI_SEARCH_SCHEME"); v != "" {
		cfg.Search.Scheme = v
	}
	if v := os.Getenv("BSBI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("BSBI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("BSBI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("BSBI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
		cfg.Postgres.Enabled = true
	}
	if v := os.Getenv("BSBI_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("BSBI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BSBI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("BSBI_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
			cfg.Metrics.Enabled = true
		}
	}
}
