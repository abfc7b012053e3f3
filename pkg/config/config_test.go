package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:       "8080",
			HealthPort: "9090",
		},
		Database: DatabaseConfig{
			URL: "postgres://localhost/alexandria",
		},
		Search: DefaultSearchConfig(),
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ALEXANDRIA_POSTGRES_URL", "postgres://localhost/alexandria")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 25, cfg.Database.MaxConns)
	assert.True(t, cfg.Search.EnableFuzzy)
	assert.False(t, cfg.Search.EnableSemantic)
	assert.Equal(t, 10*time.Second, cfg.Search.SearchTimeout)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ALEXANDRIA_POSTGRES_URL", "postgres://db/alexandria")
	t.Setenv("ALEXANDRIA_PORT", "9999")
	t.Setenv("ALEXANDRIA_POSTGRES_REPLICA_URLS", "postgres://r1/a, postgres://r2/a")
	t.Setenv("ALEXANDRIA_SEARCH_FUZZY_THRESHOLD", "0.5")
	t.Setenv("ALEXANDRIA_SEARCH_ENABLE_SEMANTIC", "true")
	t.Setenv("ALEXANDRIA_SEARCH_TIMEOUT", "2s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, []string{"postgres://r1/a", "postgres://r2/a"}, cfg.Database.ReplicaURLs)
	assert.InDelta(t, 0.5, cfg.Search.FuzzyThreshold, 1e-9)
	assert.True(t, cfg.Search.EnableSemantic)
	assert.Equal(t, 2*time.Second, cfg.Search.SearchTimeout)
}

func TestLoadConfig_MissingDatabaseURL(t *testing.T) {
	t.Setenv("ALEXANDRIA_POSTGRES_URL", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres URL")
}

func TestConfigValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	cfg = validConfig()
	cfg.Server.Port = ""
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Server.HealthPort = cfg.Server.Port
	require.Error(t, cfg.Validate())
}

func TestSearchConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SearchConfig)
		valid  bool
	}{
		{"defaults", func(*SearchConfig) {}, true},
		{"threshold above one", func(c *SearchConfig) { c.FuzzyThreshold = 1.5 }, false},
		{"threshold negative", func(c *SearchConfig) { c.FuzzyThreshold = -0.1 }, false},
		{"zero max results", func(c *SearchConfig) { c.MaxResults = 0 }, false},
		{"zero text length", func(c *SearchConfig) { c.MaxTextLength = 0 }, false},
		{"zero batch size", func(c *SearchConfig) { c.IndexBatchSize = 0 }, false},
		{"zero facet concurrency", func(c *SearchConfig) { c.FacetConcurrency = 0 }, false},
		{"negative retention", func(c *SearchConfig) { c.AnalyticsRetentionDays = -1 }, false},
		{"zero retention allowed", func(c *SearchConfig) { c.AnalyticsRetentionDays = 0 }, true},
		{"zero search timeout", func(c *SearchConfig) { c.SearchTimeout = 0 }, false},
		{"negative search timeout", func(c *SearchConfig) { c.SearchTimeout = -time.Second }, false},
		{"zero facet timeout", func(c *SearchConfig) { c.FacetTimeout = 0 }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultSearchConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a", "b"}, splitList("a, b"))
	assert.Equal(t, []string{"a"}, splitList("a,,  ,"))
}
