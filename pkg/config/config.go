// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Server, Postgres, Redis, Kafka, Retrieval, External,
// Vector, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Vector    VectorConfig    `yaml:"vector"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	External  ExternalConfig  `yaml:"external"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds connection parameters for the business-records store.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters for the search cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// KafkaConfig holds broker and topic settings for retrieval-log publishing.
type KafkaConfig struct {
	Enabled bool        `yaml:"enabled"`
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	RetrievalLog string `yaml:"retrievalLog"`
}

// VectorConfig selects and configures the vector index backend.
type VectorConfig struct {
	// Backend is "memory" for the in-process index or "chroma" for a
	// remote Chroma instance.
	Backend          string `yaml:"backend"`
	ChromaURL        string `yaml:"chromaUrl"`
	CollectionPrefix string `yaml:"collectionPrefix"`
}

// TenantWeights overrides scoring weights for a single tenant.
type TenantWeights struct {
	SemanticWeight     float64 `yaml:"semanticWeight"`
	KeywordWeight      float64 `yaml:"keywordWeight"`
	AttributionEnabled *bool   `yaml:"attributionEnabled"`
}

// RetrievalConfig controls fan-out budgets, scoring weights, priority
// boosts, and context assembly limits.
type RetrievalConfig struct {
	MaxResults           int           `yaml:"maxResults"`
	OverallTimeout       time.Duration `yaml:"overallTimeout"`
	SourceTimeout        time.Duration `yaml:"sourceTimeout"`
	SemanticWeight       float64       `yaml:"semanticWeight"`
	KeywordWeight        float64       `yaml:"keywordWeight"`
	RecordBoost          float64       `yaml:"recordBoost"`
	DocumentBoost        float64       `yaml:"documentBoost"`
	ExternalBoost        float64       `yaml:"externalBoost"`
	MinDescriptionLength int           `yaml:"minDescriptionLength"`
	SimilarityThreshold  float64       `yaml:"similarityThreshold"`
	ContextTokenBudget   int           `yaml:"contextTokenBudget"`

	// TenantOverrides keys are tenant identifiers.
	TenantOverrides map[string]TenantWeights `yaml:"tenantOverrides"`
}

// WeightsFor returns the semantic/keyword weights for a tenant, falling
// back to the global defaults when no override is configured.
func (r RetrievalConfig) WeightsFor(tenantID string) (semantic, keyword float64) {
	if tw, ok := r.TenantOverrides[tenantID]; ok && tw.SemanticWeight > 0 {
		return tw.SemanticWeight, tw.KeywordWeight
	}
	return r.SemanticWeight, r.KeywordWeight
}

// AttributionEnabledFor reports whether citation labels are enabled for a
// tenant. Attribution defaults to on.
func (r RetrievalConfig) AttributionEnabledFor(tenantID string) bool {
	if tw, ok := r.TenantOverrides[tenantID]; ok && tw.AttributionEnabled != nil {
		return *tw.AttributionEnabled
	}
	return true
}

// ExternalConfig controls the external web-search provider and its cache.
type ExternalConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	APIKey       string        `yaml:"apiKey"`
	Timeout      time.Duration `yaml:"timeout"`
	CacheTTL     time.Duration `yaml:"cacheTtl"`
	MaxSnippets  int           `yaml:"maxSnippets"`
	ScoreCeiling float64       `yaml:"scoreCeiling"`
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

// Load reads a YAML config file (if provided) and applies environment-
// variable overrides. It returns a Config populated with sensible defaults
// for any missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "tulia",
			User:            "tulia",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
		},
		Kafka: KafkaConfig{
			Enabled: false,
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				RetrievalLog: "retrieval-log",
			},
		},
		Vector: VectorConfig{
			Backend:          "memory",
			ChromaURL:        "http://localhost:8000",
			CollectionPrefix: "tulia",
		},
		Retrieval: RetrievalConfig{
			MaxResults:           5,
			OverallTimeout:       300 * time.Millisecond,
			SourceTimeout:        250 * time.Millisecond,
			SemanticWeight:       0.7,
			KeywordWeight:        0.3,
			RecordBoost:          1.0,
			DocumentBoost:        0.95,
			ExternalBoost:        0.85,
			MinDescriptionLength: 50,
			SimilarityThreshold:  0.3,
			ContextTokenBudget:   1200,
		},
		External: ExternalConfig{
			Endpoint:     "",
			Timeout:      200 * time.Millisecond,
			CacheTTL:     24 * time.Hour,
			MaxSnippets:  3,
			ScoreCeiling: 0.6,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads TULIA_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TULIA_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TULIA_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("TULIA_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("TULIA_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("TULIA_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("TULIA_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("TULIA_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("TULIA_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TULIA_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TULIA_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("TULIA_VECTOR_BACKEND"); v != "" {
		cfg.Vector.Backend = v
	}
	if v := os.Getenv("TULIA_CHROMA_URL"); v != "" {
		cfg.Vector.ChromaURL = v
	}
	if v := os.Getenv("TULIA_EXTERNAL_ENDPOINT"); v != "" {
		cfg.External.Endpoint = v
	}
	if v := os.Getenv("TULIA_EXTERNAL_API_KEY"); v != "" {
		cfg.External.APIKey = v
	}
	if v := os.Getenv("TULIA_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TULIA_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
