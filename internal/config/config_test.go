package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prewarm.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("minimal config applies all defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "version: \"1.0\"\n"))
		require.NoError(t, err)

		assert.Equal(t, 3, cfg.MaxConcurrentPrefetch())
		assert.Equal(t, time.Second, cfg.PrefetchDelay())
		assert.Equal(t, 30*time.Minute, cfg.BehaviorTrackingWindow())
		assert.InDelta(t, 0.6, cfg.MinConfidenceScore(), 1e-9)
		assert.Equal(t, 10*time.Minute, cfg.MaxPrefetchAge())
		assert.Equal(t, 2*time.Second, cfg.TickInterval())
		assert.Equal(t, 7*24*time.Hour, cfg.MaxPatternAge())
		assert.Equal(t, 10*time.Second, cfg.FetchTimeout())
	})

	t.Run("full config overrides defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, `
version: "1.0"
instance: prod
redis_url: redis://cache:6379
engine:
  max_concurrent_prefetch: 5
  prefetch_delay_ms: 500
  behavior_tracking_window_ms: 900000
  min_confidence_score: 0.8
  max_prefetch_age_ms: 300000
  tick_interval_ms: 1000
  max_pattern_age_ms: 86400000
fetcher:
  base_url: http://admin-api:8080
  timeout_ms: 3000
  endpoints:
    products: /v2/products
`))
		require.NoError(t, err)

		assert.Equal(t, "prod", cfg.Instance)
		assert.Equal(t, "redis://cache:6379", cfg.RedisURL)
		assert.Equal(t, 5, cfg.MaxConcurrentPrefetch())
		assert.Equal(t, 500*time.Millisecond, cfg.PrefetchDelay())
		assert.Equal(t, 15*time.Minute, cfg.BehaviorTrackingWindow())
		assert.InDelta(t, 0.8, cfg.MinConfidenceScore(), 1e-9)
		assert.Equal(t, 5*time.Minute, cfg.MaxPrefetchAge())
		assert.Equal(t, time.Second, cfg.TickInterval())
		assert.Equal(t, 24*time.Hour, cfg.MaxPatternAge())
		assert.Equal(t, 3*time.Second, cfg.FetchTimeout())

		endpoints := cfg.FetcherEndpoints()
		assert.Equal(t, "/v2/products", endpoints["products"], "override wins")
		assert.Equal(t, "/api/forms", endpoints["forms"], "omitted operations keep defaults")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "version: [unclosed"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Run("rejects wrong version", func(t *testing.T) {
		_, err := Load(writeConfig(t, "version: \"2.0\"\n"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported version")
	})

	t.Run("rejects zero concurrency", func(t *testing.T) {
		_, err := Load(writeConfig(t, "version: \"1.0\"\nengine:\n  max_concurrent_prefetch: 0\n"))
		assert.Error(t, err)
	})

	t.Run("rejects out-of-range confidence", func(t *testing.T) {
		_, err := Load(writeConfig(t, "version: \"1.0\"\nengine:\n  min_confidence_score: 1.5\n"))
		assert.Error(t, err)
	})

	t.Run("rejects negative tick interval", func(t *testing.T) {
		_, err := Load(writeConfig(t, "version: \"1.0\"\nengine:\n  tick_interval_ms: -5\n"))
		assert.Error(t, err)
	})

	t.Run("rejects route prefix without slash", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
version: "1.0"
route_data:
  - prefix: products
    requirements:
      - category: products
        identifier: all
`))
		assert.Error(t, err)
	})

	t.Run("rejects requirement without identifier", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
version: "1.0"
route_data:
  - prefix: /products
    requirements:
      - category: products
`))
		assert.Error(t, err)
	})
}

func TestRouteDataTable(t *testing.T) {
	t.Run("empty table falls back to defaults", func(t *testing.T) {
		cfg := &Config{Version: "1.0"}
		table := cfg.RouteDataTable()
		require.NotEmpty(t, table)
		assert.Equal(t, "/products", table[0].Prefix)
	})

	t.Run("configured table preserves order", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, `
version: "1.0"
route_data:
  - prefix: /products/archived
    requirements:
      - category: products
        identifier: archived
  - prefix: /products
    requirements:
      - category: products
        identifier: all
`))
		require.NoError(t, err)

		table := cfg.RouteDataTable()
		require.Len(t, table, 2)
		assert.Equal(t, "/products/archived", table[0].Prefix,
			"more specific prefix stays first so it wins the prefix match")
	})
}
