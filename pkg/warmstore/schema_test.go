package warmstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKey(t *testing.T) {
	t.Run("param-free requirement", func(t *testing.T) {
		req := DataRequirement{Category: "products", Identifier: "all"}
		assert.Equal(t, "prewarm:prod:cache:products:all:-", CacheKey("prod", req))
	})

	t.Run("params contribute a hash segment", func(t *testing.T) {
		req := DataRequirement{
			Category:   "coverages",
			Identifier: "c1",
			Params:     map[string]interface{}{"state": "CA"},
		}
		key := CacheKey("prod", req)
		assert.Contains(t, key, "prewarm:prod:cache:coverages:c1:")
		assert.NotContains(t, key, ":-")
	})

	t.Run("same params yield same key", func(t *testing.T) {
		a := DataRequirement{Category: "forms", Identifier: "f1",
			Params: map[string]interface{}{"a": 1, "b": 2}}
		b := DataRequirement{Category: "forms", Identifier: "f1",
			Params: map[string]interface{}{"b": 2, "a": 1}}
		assert.Equal(t, CacheKey("x", a), CacheKey("x", b))
	})
}

func TestSnapshotKey(t *testing.T) {
	assert.Equal(t, "prewarm:prod:patterns", SnapshotKey("prod"))
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "prewarm:prod:route_events", RouteEventsChannel("prod"))
	assert.Equal(t, "prewarm:prod:access_events", AccessEventsChannel("prod"))
	assert.Equal(t, "prewarm:prod:interaction_events", InteractionEventsChannel("prod"))
	assert.Equal(t, "prewarm:prod:prefetch_events", PrefetchEventsChannel("prod"))
}
