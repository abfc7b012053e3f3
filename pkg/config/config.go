package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration. Everything except the
// Search block is loaded once at startup and read-only thereafter; the
// Search block is held in a Settings holder and may be updated at
// runtime.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Search   SearchConfig
	LogLevel string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL         string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// RedisConfig holds the optional result-cache backend configuration.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// SearchConfig is the runtime-mutable search tuning surface. Updates
// take effect on the next search call; no restart is required.
type SearchConfig struct {
	EnableSemantic        bool          `yaml:"enable_semantic"`
	EnableFuzzy           bool          `yaml:"enable_fuzzy"`
	FuzzyThreshold        float64       `yaml:"fuzzy_threshold"`
	MaxResults            int           `yaml:"max_results"`
	MaxTextLength         int           `yaml:"max_text_length"`
	HighlightFragmentSize int           `yaml:"highlight_fragment_size"`
	HighlightMaxFragments int           `yaml:"highlight_max_fragments"`
	SuggestionCount       int           `yaml:"suggestion_count"`
	IndexBatchSize        int           `yaml:"index_batch_size"`
	ReindexIntervalHours  int           `yaml:"reindex_interval_hours"`
	AnalyticsRetentionDays int          `yaml:"analytics_retention_days"`
	FacetConcurrency      int           `yaml:"facet_concurrency"`
	SearchTimeout         time.Duration `yaml:"search_timeout"`
	FacetTimeout          time.Duration `yaml:"facet_timeout"`
	CacheTTL              time.Duration `yaml:"cache_ttl"`
}

// DefaultSearchConfig returns the search tuning defaults.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		EnableSemantic:         false,
		EnableFuzzy:            true,
		FuzzyThreshold:         0.3,
		MaxResults:             100,
		MaxTextLength:          1000,
		HighlightFragmentSize:  150,
		HighlightMaxFragments:  3,
		SuggestionCount:        5,
		IndexBatchSize:         100,
		ReindexIntervalHours:   24,
		AnalyticsRetentionDays: 90,
		FacetConcurrency:       4,
		SearchTimeout:          10 * time.Second,
		FacetTimeout:           3 * time.Second,
		CacheTTL:               30 * time.Second,
	}
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:   loadServerConfig(),
		Database: loadDatabaseConfig(),
		Redis:    loadRedisConfig(),
		Search:   loadSearchConfig(),
		LogLevel: getEnv("ALEXANDRIA_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("ALEXANDRIA_HOST", "0.0.0.0"),
		Port:            getEnv("ALEXANDRIA_PORT", "8080"),
		ReadTimeout:     getEnvDuration("ALEXANDRIA_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("ALEXANDRIA_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("ALEXANDRIA_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("ALEXANDRIA_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("ALEXANDRIA_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:         getEnv("ALEXANDRIA_POSTGRES_URL", ""),
		ReplicaURLs: splitList(getEnv("ALEXANDRIA_POSTGRES_REPLICA_URLS", "")),
		MaxConns:    getEnvInt("ALEXANDRIA_POSTGRES_MAX_CONNS", 25),
		MinConns:    getEnvInt("ALEXANDRIA_POSTGRES_MIN_CONNS", 5),
		Timeout:     getEnvDuration("ALEXANDRIA_POSTGRES_TIMEOUT", 5*time.Second),
		MaxLifetime: getEnvDuration("ALEXANDRIA_POSTGRES_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("ALEXANDRIA_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("ALEXANDRIA_REDIS_URL", ""),
		Password: getEnv("ALEXANDRIA_REDIS_PASSWORD", ""),
		DB:       getEnvInt("ALEXANDRIA_REDIS_DB", 0),
		PoolSize: getEnvInt("ALEXANDRIA_REDIS_POOL_SIZE", 10),
	}
}

func loadSearchConfig() SearchConfig {
	cfg := DefaultSearchConfig()

	cfg.EnableSemantic = getEnvBool("ALEXANDRIA_SEARCH_ENABLE_SEMANTIC", cfg.EnableSemantic)
	cfg.EnableFuzzy = getEnvBool("ALEXANDRIA_SEARCH_ENABLE_FUZZY", cfg.EnableFuzzy)
	cfg.FuzzyThreshold = getEnvFloat("ALEXANDRIA_SEARCH_FUZZY_THRESHOLD", cfg.FuzzyThreshold)
	cfg.MaxResults = getEnvInt("ALEXANDRIA_SEARCH_MAX_RESULTS", cfg.MaxResults)
	cfg.MaxTextLength = getEnvInt("ALEXANDRIA_SEARCH_MAX_TEXT_LENGTH", cfg.MaxTextLength)
	cfg.HighlightFragmentSize = getEnvInt("ALEXANDRIA_SEARCH_HIGHLIGHT_FRAGMENT_SIZE", cfg.HighlightFragmentSize)
	cfg.HighlightMaxFragments = getEnvInt("ALEXANDRIA_SEARCH_HIGHLIGHT_MAX_FRAGMENTS", cfg.HighlightMaxFragments)
	cfg.SuggestionCount = getEnvInt("ALEXANDRIA_SEARCH_SUGGESTION_COUNT", cfg.SuggestionCount)
	cfg.IndexBatchSize = getEnvInt("ALEXANDRIA_SEARCH_INDEX_BATCH_SIZE", cfg.IndexBatchSize)
	cfg.ReindexIntervalHours = getEnvInt("ALEXANDRIA_SEARCH_REINDEX_INTERVAL_HOURS", cfg.ReindexIntervalHours)
	cfg.AnalyticsRetentionDays = getEnvInt("ALEXANDRIA_SEARCH_ANALYTICS_RETENTION_DAYS", cfg.AnalyticsRetentionDays)
	cfg.FacetConcurrency = getEnvInt("ALEXANDRIA_SEARCH_FACET_CONCURRENCY", cfg.FacetConcurrency)
	cfg.SearchTimeout = getEnvDuration("ALEXANDRIA_SEARCH_TIMEOUT", cfg.SearchTimeout)
	cfg.FacetTimeout = getEnvDuration("ALEXANDRIA_SEARCH_FACET_TIMEOUT", cfg.FacetTimeout)
	cfg.CacheTTL = getEnvDuration("ALEXANDRIA_SEARCH_CACHE_TTL", cfg.CacheTTL)

	return cfg
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	return c.Search.Validate()
}

// Validate checks the search tuning block. It is called both at load
// time and on every runtime update.
func (c *SearchConfig) Validate() error {
	if c.FuzzyThreshold < 0 || c.FuzzyThreshold > 1 {
		return fmt.Errorf("fuzzy threshold must be in [0,1], got %v", c.FuzzyThreshold)
	}
	if c.MaxResults <= 0 {
		return fmt.Errorf("max results must be positive, got %d", c.MaxResults)
	}
	if c.MaxTextLength <= 0 {
		return fmt.Errorf("max text length must be positive, got %d", c.MaxTextLength)
	}
	if c.IndexBatchSize <= 0 {
		return fmt.Errorf("index batch size must be positive, got %d", c.IndexBatchSize)
	}
	if c.FacetConcurrency <= 0 {
		return fmt.Errorf("facet concurrency must be positive, got %d", c.FacetConcurrency)
	}
	if c.AnalyticsRetentionDays < 0 {
		return fmt.Errorf("analytics retention days must not be negative, got %d", c.AnalyticsRetentionDays)
	}
	if c.SearchTimeout <= 0 {
		return fmt.Errorf("search timeout must be positive, got %v", c.SearchTimeout)
	}
	if c.FacetTimeout <= 0 {
		return fmt.Errorf("facet timeout must be positive, got %v", c.FacetTimeout)
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// getEnv returns an environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
