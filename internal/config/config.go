// Package config provides environment-aware configuration management
// for the memory engine, per spec.md §6's configuration knobs.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/nexusmem/memengine/infrastructure/runtime"
)

// Environment is an alias of runtime.Environment for callers that only
// import config.
type Environment = runtime.Environment

const (
	Development = runtime.Development
	Testing     = runtime.Testing
	Production  = runtime.Production
)

// PrimaryConfig configures the primary store connection and pool.
type PrimaryConfig struct {
	URL             string
	Token           string
	PoolMin         int
	PoolMax         int
	PoolIdleTimeout time.Duration
	PoolKeepAlive   time.Duration
}

// CacheConfig configures the embedded cache store driver (§4.3).
type CacheConfig struct {
	Path       string
	MaxEntries int
	TTL        time.Duration
	Enable     bool
}

// BatchConfig configures the step-buffer batch writer (§4.5).
type BatchConfig struct {
	Size             int
	FlushInterval    time.Duration
	Enable           bool
	FlushRetryAttempts int
}

// CircuitConfig configures the circuit breaker (§4.4).
type CircuitConfig struct {
	FailureThreshold  int
	SuccessThreshold  int
	OpenTimeout       time.Duration
	HalfOpenMax       int
}

// LimitsConfig bounds raw input sizes (§4.1 / §3).
type LimitsConfig struct {
	MaxDescription int
	MaxSteps       int
	MaxArtifact    int
	MaxObservation int
}

// DeserializeConfig bounds deserialized blob sizes, independent of the
// in-memory LimitsConfig, since a stored row can be corrupted or
// maliciously oversized even when writes were validated.
type DeserializeConfig struct {
	MaxEpisode   int64
	MaxPattern   int64
	MaxHeuristic int64
}

// RetrievalConfig configures the hierarchical retriever + MMR (§4.8).
type RetrievalConfig struct {
	EnableHierarchical bool
	EnableDiversity    bool
	DiversityLambda    float64
	TemporalBias       float64
	MaxClusters        int
}

// EmbeddingConfig configures the embedding provider client (§4.9).
type EmbeddingConfig struct {
	Provider  string
	Dimension int
	Timeout   time.Duration
	Enable    bool
}

// QueryCacheConfig configures the Redis-backed query cache (§4.13).
type QueryCacheConfig struct {
	TTL      time.Duration
	Capacity int
}

// Config holds the engine's full runtime configuration.
type Config struct {
	Env Environment

	Primary    PrimaryConfig
	Cache      CacheConfig
	Batch      BatchConfig
	Circuit    CircuitConfig
	Limits     LimitsConfig
	Deserialize DeserializeConfig
	Retrieval  RetrievalConfig
	Embedding  EmbeddingConfig
	QueryCache QueryCacheConfig

	ActiveEpisodeLimit int

	LogLevel  string
	LogFormat string

	MetricsEnabled bool
	MetricsPort    int
}

// Load loads configuration based on the MEMENGINE_ENV environment
// variable, optionally pre-populating os.Getenv from a
// config/<env>.env file.
func Load() (*Config, error) {
	envStr := os.Getenv("MEMENGINE_ENV")
	if envStr == "" {
		envStr = string(runtime.Development)
	}

	parsedEnv, ok := runtime.ParseEnvironment(envStr)
	if !ok {
		return nil, fmt.Errorf("invalid MEMENGINE_ENV: %s (must be development, testing, or production)", envStr)
	}
	env := Environment(parsedEnv)

	configFile := filepath.Join("config", fmt.Sprintf("%s.env", env))
	if err := godotenv.Load(configFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("Warning: Could not load %s: %v\n", configFile, err)
		}
	}

	cfg := &Config{Env: env}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	var err error

	c.Primary.URL = getEnv("MEMENGINE_PRIMARY_URL", "postgres://localhost:5432/memengine?sslmode=disable")
	c.Primary.Token = getEnv("MEMENGINE_PRIMARY_TOKEN", "")
	c.Primary.PoolMin = getIntEnv("MEMENGINE_PRIMARY_POOL_MIN", 2)
	c.Primary.PoolMax = getIntEnv("MEMENGINE_PRIMARY_POOL_MAX", 20)
	if c.Primary.PoolIdleTimeout, err = getDurationEnv("MEMENGINE_PRIMARY_POOL_IDLE_TIMEOUT", "5m"); err != nil {
		return err
	}
	if c.Primary.PoolKeepAlive, err = getDurationEnv("MEMENGINE_PRIMARY_POOL_KEEP_ALIVE", "30s"); err != nil {
		return err
	}

	c.Cache.Path = getEnv("MEMENGINE_CACHE_PATH", "./data/cache.db")
	c.Cache.MaxEntries = getIntEnv("MEMENGINE_CACHE_MAX_ENTRIES", 1000)
	if c.Cache.TTL, err = getDurationEnv("MEMENGINE_CACHE_TTL", "60m"); err != nil {
		return err
	}
	c.Cache.Enable = getBoolEnv("MEMENGINE_CACHE_ENABLE", true)

	c.Batch.Size = getIntEnv("MEMENGINE_BATCH_SIZE", 50)
	if c.Batch.FlushInterval, err = getDurationEnv("MEMENGINE_BATCH_FLUSH_INTERVAL", "100ms"); err != nil {
		return err
	}
	c.Batch.Enable = getBoolEnv("MEMENGINE_BATCH_ENABLE", true)
	c.Batch.FlushRetryAttempts = getIntEnv("MEMENGINE_BATCH_FLUSH_RETRY_ATTEMPTS", 3)

	c.Circuit.FailureThreshold = getIntEnv("MEMENGINE_CIRCUIT_FAILURE_THRESHOLD", 5)
	c.Circuit.SuccessThreshold = getIntEnv("MEMENGINE_CIRCUIT_SUCCESS_THRESHOLD", 2)
	if c.Circuit.OpenTimeout, err = getDurationEnv("MEMENGINE_CIRCUIT_OPEN_TIMEOUT", "30s"); err != nil {
		return err
	}
	c.Circuit.HalfOpenMax = getIntEnv("MEMENGINE_CIRCUIT_HALF_OPEN_MAX", 3)

	c.Limits.MaxDescription = getIntEnv("MEMENGINE_LIMITS_MAX_DESCRIPTION", 10_000)
	c.Limits.MaxSteps = getIntEnv("MEMENGINE_LIMITS_MAX_STEPS", 1000)
	c.Limits.MaxArtifact = getIntEnv("MEMENGINE_LIMITS_MAX_ARTIFACT", 1_000_000)
	c.Limits.MaxObservation = getIntEnv("MEMENGINE_LIMITS_MAX_OBSERVATION", 10_000)

	c.Deserialize.MaxEpisode = getInt64Env("MEMENGINE_DESERIALIZE_MAX_EPISODE", 10*1024*1024)
	c.Deserialize.MaxPattern = getInt64Env("MEMENGINE_DESERIALIZE_MAX_PATTERN", 1*1024*1024)
	c.Deserialize.MaxHeuristic = getInt64Env("MEMENGINE_DESERIALIZE_MAX_HEURISTIC", 100*1024)

	c.Retrieval.EnableHierarchical = getBoolEnv("MEMENGINE_RETRIEVAL_ENABLE_HIERARCHICAL", true)
	c.Retrieval.EnableDiversity = getBoolEnv("MEMENGINE_RETRIEVAL_ENABLE_DIVERSITY", true)
	c.Retrieval.DiversityLambda = getFloatEnv("MEMENGINE_RETRIEVAL_DIVERSITY_LAMBDA", 0.7)
	c.Retrieval.TemporalBias = getFloatEnv("MEMENGINE_RETRIEVAL_TEMPORAL_BIAS", 0.3)
	c.Retrieval.MaxClusters = getIntEnv("MEMENGINE_RETRIEVAL_MAX_CLUSTERS", 5)

	c.Embedding.Provider = getEnv("MEMENGINE_EMBEDDING_PROVIDER", "local")
	c.Embedding.Dimension = getIntEnv("MEMENGINE_EMBEDDING_DIMENSION", 768)
	if c.Embedding.Timeout, err = getDurationEnv("MEMENGINE_EMBEDDING_TIMEOUT", "5s"); err != nil {
		return err
	}
	c.Embedding.Enable = getBoolEnv("MEMENGINE_EMBEDDING_ENABLE", true)

	c.ActiveEpisodeLimit = getIntEnv("MEMENGINE_ACTIVE_EPISODE_LIMIT", 100)
	if c.QueryCache.TTL, err = getDurationEnv("MEMENGINE_QUERY_CACHE_TTL", "5m"); err != nil {
		return err
	}
	c.QueryCache.Capacity = getIntEnv("MEMENGINE_QUERY_CACHE_CAPACITY", 10_000)

	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "json")

	c.MetricsEnabled = getBoolEnv("METRICS_ENABLED", c.Env == Production)
	c.MetricsPort = getIntEnv("METRICS_PORT", 9090)

	return nil
}

func (c *Config) IsDevelopment() bool { return c.Env == Development }
func (c *Config) IsTesting() bool     { return c.Env == Testing }
func (c *Config) IsProduction() bool  { return c.Env == Production }

// Validate rejects configurations that would be unsafe in production
// or structurally invalid regardless of environment.
func (c *Config) Validate() error {
	if c.Primary.PoolMin < 0 || c.Primary.PoolMax < c.Primary.PoolMin {
		return fmt.Errorf("invalid primary pool bounds: min=%d max=%d", c.Primary.PoolMin, c.Primary.PoolMax)
	}
	if c.Retrieval.DiversityLambda < 0 || c.Retrieval.DiversityLambda > 1 {
		return fmt.Errorf("retrieval.diversity_lambda must be in [0,1], got %v", c.Retrieval.DiversityLambda)
	}
	if c.IsProduction() {
		if c.Primary.Token == "" {
			return fmt.Errorf("MEMENGINE_PRIMARY_TOKEN must be set in production")
		}
		if !c.Batch.Enable {
			return fmt.Errorf("MEMENGINE_BATCH_ENABLE must be true in production")
		}
	}
	return nil
}

// Helper functions. These delegate to infrastructure/runtime's env-var
// parsers rather than re-implementing them, since that package already
// carries the cfgValue/env-var/fallback precedence every config field
// here follows.

func getEnv(key, defaultValue string) string {
	return runtime.ResolveString("", key, defaultValue)
}

func getIntEnv(key string, defaultValue int) int {
	if value, ok := runtime.ParseEnvInt(key); ok {
		return value
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value, ok := runtime.ParseEnvInt64(key); ok {
		return value
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value, ok := runtime.ParseEnvFloat(key); ok {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	return runtime.ResolveBool(defaultValue, key)
}

func getDurationEnv(key, defaultValue string) (time.Duration, error) {
	raw := getEnv(key, defaultValue)
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
