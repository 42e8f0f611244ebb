// Package bridge turns one data requirement into "check cache, else fetch,
// else store with a short TTL". It is the only component that touches the
// data fetcher, and the only suspension point in the engine.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/avockley/prewarm/pkg/warmstore"
)

// CacheStore is the cache collaborator. The engine is a pure client: it never
// implements eviction and never refreshes an entry the cache already holds.
type CacheStore interface {
	CacheGet(ctx context.Context, req warmstore.DataRequirement) (json.RawMessage, error)
	CacheSet(ctx context.Context, req warmstore.DataRequirement, value json.RawMessage, ttl time.Duration) error
}

// Fetcher is the data collaborator. A nil result with a nil error means the
// operation produced no data; timeout and retry policy belong entirely to the
// implementation.
type Fetcher interface {
	Fetch(ctx context.Context, category, identifier string, params map[string]interface{}) (json.RawMessage, error)
}

// categoryOperations is the fixed dispatch table from requirement category to
// fetch operation. "steps" is an alias for the pricing-step evaluator data.
var categoryOperations = map[string]string{
	"products":  "products",
	"coverages": "coverages",
	"forms":     "forms",
	"rules":     "rules",
	"tasks":     "tasks",
	"pricing":   "pricing",
	"steps":     "pricing",
}

// Bridge executes fetch-and-cache workflows for prefetch candidates.
type Bridge struct {
	cache   CacheStore
	fetcher Fetcher
	ttl     time.Duration // maxPrefetchAge: TTL for prefetched entries
}

// New creates a bridge. ttl is the prefetched-entry TTL, deliberately shorter
// than a normally-fetched entry's TTL since prefetched data is provisional.
func New(cache CacheStore, fetcher Fetcher, ttl time.Duration) *Bridge {
	return &Bridge{
		cache:   cache,
		fetcher: fetcher,
		ttl:     ttl,
	}
}

// FetchAndCache processes one data requirement:
//
//  1. If the cache already holds the key, stop. Prefetching must never
//     overwrite a warm entry, regardless of the entry's own staleness.
//  2. Otherwise dispatch to the fetcher via the category table. An
//     unrecognized category logs a warning and yields nothing.
//  3. A non-empty result is stored with the short prefetch TTL.
//
// Returns an error only for fetch or store failures; cache hits and unknown
// categories return nil.
func (b *Bridge) FetchAndCache(ctx context.Context, req warmstore.DataRequirement) error {
	if _, err := b.cache.CacheGet(ctx, req); err == nil {
		// Already warm - nothing to do
		return nil
	} else if !warmstore.IsNotFound(err) {
		// Treat cache errors as a miss but note them; a flaky cache must not
		// stop the fetch from proceeding
		log.Printf("[Bridge] Cache check failed for %s:%s: %v", req.Category, req.Identifier, err)
	}

	operation, ok := categoryOperations[req.Category]
	if !ok {
		log.Printf("[Bridge] Unknown category %q, skipping prefetch of %s", req.Category, req.Identifier)
		return nil
	}

	data, err := b.fetcher.Fetch(ctx, operation, req.Identifier, req.Params)
	if err != nil {
		return fmt.Errorf("fetch failed for %s:%s: %w", req.Category, req.Identifier, err)
	}
	if len(data) == 0 {
		// No data for this key; nothing to cache
		return nil
	}

	if err := b.cache.CacheSet(ctx, req, data, b.ttl); err != nil {
		return fmt.Errorf("cache store failed for %s:%s: %w", req.Category, req.Identifier, err)
	}

	return nil
}

// FetchAll processes a candidate's requirements independently: a failure on
// one never prevents the others from completing. Returns the number of
// requirements that failed.
func (b *Bridge) FetchAll(ctx context.Context, reqs []warmstore.DataRequirement) int {
	failures := 0
	for _, req := range reqs {
		if err := b.FetchAndCache(ctx, req); err != nil {
			log.Printf("[Bridge] %v", err)
			failures++
		}
	}
	return failures
}
