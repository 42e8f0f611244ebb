// Package config loads and validates prewarm.yml, the engine's deployment
// configuration: Redis connection, instance name, the seven engine tunables,
// the static route data table, and the fetcher endpoints.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/avockley/prewarm/internal/predictor"
	"github.com/avockley/prewarm/pkg/warmstore"
)

// Engine tunable defaults. Every tunable is optional in prewarm.yml.
const (
	DefaultMaxConcurrentPrefetch    = 3
	DefaultPrefetchDelayMs          = 1000
	DefaultBehaviorTrackingWindowMs = 1_800_000 // 30 minutes
	DefaultMinConfidenceScore       = 0.6
	DefaultMaxPrefetchAgeMs         = 600_000 // 10 minutes
	DefaultTickIntervalMs           = 2000
	DefaultMaxPatternAgeMs          = 604_800_000 // 7 days
	DefaultFetchTimeoutMs           = 10_000
)

// Config represents the top-level prewarm.yml configuration.
type Config struct {
	Version   string           `yaml:"version"`
	Instance  string           `yaml:"instance,omitempty"`  // Overridable via PREWARM_INSTANCE_NAME
	RedisURL  string           `yaml:"redis_url,omitempty"` // Overridable via REDIS_URL
	Engine    EngineConfig     `yaml:"engine,omitempty"`
	RouteData []RouteDataEntry `yaml:"route_data,omitempty"`
	Fetcher   FetcherConfig    `yaml:"fetcher,omitempty"`
}

// EngineConfig holds the engine tunables. Nil means "use the default".
type EngineConfig struct {
	MaxConcurrentPrefetch    *int     `yaml:"max_concurrent_prefetch,omitempty"`
	PrefetchDelayMs          *int64   `yaml:"prefetch_delay_ms,omitempty"`
	BehaviorTrackingWindowMs *int64   `yaml:"behavior_tracking_window_ms,omitempty"`
	MinConfidenceScore       *float64 `yaml:"min_confidence_score,omitempty"`
	MaxPrefetchAgeMs         *int64   `yaml:"max_prefetch_age_ms,omitempty"`
	TickIntervalMs           *int64   `yaml:"tick_interval_ms,omitempty"`
	MaxPatternAgeMs          *int64   `yaml:"max_pattern_age_ms,omitempty"`
}

// RouteDataEntry is one row of the static route-prefix table.
type RouteDataEntry struct {
	Prefix       string             `yaml:"prefix"`
	Requirements []RequirementEntry `yaml:"requirements"`
}

// RequirementEntry is one data requirement in yaml form.
type RequirementEntry struct {
	Category   string `yaml:"category"`
	Identifier string `yaml:"identifier"`
}

// FetcherConfig configures the HTTP data fetcher.
type FetcherConfig struct {
	BaseURL   string            `yaml:"base_url,omitempty"`
	TimeoutMs *int64            `yaml:"timeout_ms,omitempty"`
	Endpoints map[string]string `yaml:"endpoints,omitempty"`
}

// Load reads and validates a prewarm.yml file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate performs strict validation on the configuration.
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if err := c.Engine.validate(); err != nil {
		return err
	}

	for i, entry := range c.RouteData {
		if entry.Prefix == "" || !strings.HasPrefix(entry.Prefix, "/") {
			return fmt.Errorf("route_data[%d]: prefix must start with '/', got %q", i, entry.Prefix)
		}
		for j, req := range entry.Requirements {
			if req.Category == "" || req.Identifier == "" {
				return fmt.Errorf("route_data[%d].requirements[%d]: category and identifier are required", i, j)
			}
		}
	}

	if c.Fetcher.TimeoutMs != nil && *c.Fetcher.TimeoutMs <= 0 {
		return fmt.Errorf("fetcher.timeout_ms must be positive")
	}

	return nil
}

func (e *EngineConfig) validate() error {
	if e.MaxConcurrentPrefetch != nil && *e.MaxConcurrentPrefetch < 1 {
		return fmt.Errorf("engine.max_concurrent_prefetch must be at least 1")
	}
	if e.MinConfidenceScore != nil && (*e.MinConfidenceScore < 0 || *e.MinConfidenceScore > 1) {
		return fmt.Errorf("engine.min_confidence_score must be within [0, 1]")
	}
	for name, value := range map[string]*int64{
		"engine.prefetch_delay_ms":           e.PrefetchDelayMs,
		"engine.behavior_tracking_window_ms": e.BehaviorTrackingWindowMs,
		"engine.max_prefetch_age_ms":         e.MaxPrefetchAgeMs,
		"engine.tick_interval_ms":            e.TickIntervalMs,
		"engine.max_pattern_age_ms":          e.MaxPatternAgeMs,
	} {
		if value != nil && *value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// MaxConcurrentPrefetch returns the concurrency bound for prefetch execution.
func (c *Config) MaxConcurrentPrefetch() int {
	if c.Engine.MaxConcurrentPrefetch != nil {
		return *c.Engine.MaxConcurrentPrefetch
	}
	return DefaultMaxConcurrentPrefetch
}

// PrefetchDelay returns the delay before interaction-driven prefetches run.
func (c *Config) PrefetchDelay() time.Duration {
	return msOrDefault(c.Engine.PrefetchDelayMs, DefaultPrefetchDelayMs)
}

// BehaviorTrackingWindow returns the statistics retention window.
func (c *Config) BehaviorTrackingWindow() time.Duration {
	return msOrDefault(c.Engine.BehaviorTrackingWindowMs, DefaultBehaviorTrackingWindowMs)
}

// MinConfidenceScore returns the candidate emission threshold.
func (c *Config) MinConfidenceScore() float64 {
	if c.Engine.MinConfidenceScore != nil {
		return *c.Engine.MinConfidenceScore
	}
	return DefaultMinConfidenceScore
}

// MaxPrefetchAge returns the TTL applied to prefetched cache entries.
func (c *Config) MaxPrefetchAge() time.Duration {
	return msOrDefault(c.Engine.MaxPrefetchAgeMs, DefaultMaxPrefetchAgeMs)
}

// TickInterval returns the scheduler's drain interval.
func (c *Config) TickInterval() time.Duration {
	return msOrDefault(c.Engine.TickIntervalMs, DefaultTickIntervalMs)
}

// MaxPatternAge returns the snapshot staleness cutoff.
func (c *Config) MaxPatternAge() time.Duration {
	return msOrDefault(c.Engine.MaxPatternAgeMs, DefaultMaxPatternAgeMs)
}

// FetchTimeout returns the HTTP fetcher's per-request timeout.
func (c *Config) FetchTimeout() time.Duration {
	return msOrDefault(c.Fetcher.TimeoutMs, DefaultFetchTimeoutMs)
}

func msOrDefault(value *int64, def int64) time.Duration {
	if value != nil {
		return time.Duration(*value) * time.Millisecond
	}
	return time.Duration(def) * time.Millisecond
}

// RouteDataTable converts the configured table to the predictor's form, or
// returns the built-in defaults when prewarm.yml has no route_data section.
func (c *Config) RouteDataTable() []predictor.RouteData {
	if len(c.RouteData) == 0 {
		return predictor.DefaultRouteData()
	}

	table := make([]predictor.RouteData, 0, len(c.RouteData))
	for _, entry := range c.RouteData {
		reqs := make([]warmstore.DataRequirement, 0, len(entry.Requirements))
		for _, req := range entry.Requirements {
			reqs = append(reqs, warmstore.DataRequirement{
				Category:   req.Category,
				Identifier: req.Identifier,
			})
		}
		table = append(table, predictor.RouteData{
			Prefix:       entry.Prefix,
			Requirements: reqs,
		})
	}
	return table
}

// FetcherEndpoints returns the endpoint table, defaulting any operation the
// file omits to its conventional /api path.
func (c *Config) FetcherEndpoints() map[string]string {
	endpoints := map[string]string{
		"products":  "/api/products",
		"coverages": "/api/coverages",
		"forms":     "/api/forms",
		"rules":     "/api/rules",
		"tasks":     "/api/tasks",
		"pricing":   "/api/pricing/steps",
	}
	for operation, path := range c.Fetcher.Endpoints {
		endpoints[operation] = path
	}
	return endpoints
}
