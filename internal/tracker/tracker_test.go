package tracker

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock is a controllable time source for deterministic tests
type testClock struct {
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func newTestTracker(window time.Duration) (*Tracker, *testClock) {
	clock := newTestClock()
	tr := New(window)
	tr.SetClock(clock.Now)
	return tr, clock
}

func TestRecordRouteTransition(t *testing.T) {
	t.Run("confidence grows by tenths and caps at one", func(t *testing.T) {
		tr, _ := newTestTracker(30 * time.Minute)

		for n := 1; n <= 15; n++ {
			tr.RecordRouteTransition("/products", "/coverages", 1000)

			transitions := tr.TransitionsFrom("/products")
			require.Len(t, transitions, 1)

			expected := float64(n) / 10
			if expected > 1 {
				expected = 1
			}
			assert.InDelta(t, expected, transitions[0].Confidence, 1e-9,
				"confidence after %d observations", n)
		}
	})

	t.Run("accumulates count and dwell time", func(t *testing.T) {
		tr, clock := newTestTracker(30 * time.Minute)

		tr.RecordRouteTransition("/products", "/coverages", 1000)
		clock.Advance(time.Minute)
		tr.RecordRouteTransition("/products", "/coverages", 2500)

		transitions := tr.TransitionsFrom("/products")
		require.Len(t, transitions, 1)
		assert.Equal(t, 2, transitions[0].Count)
		assert.Equal(t, int64(3500), transitions[0].TotalTimeMs)
		assert.Equal(t, clock.Now(), transitions[0].LastAccess)
	})

	t.Run("distinct pairs tracked independently", func(t *testing.T) {
		tr, _ := newTestTracker(30 * time.Minute)

		tr.RecordRouteTransition("/products", "/coverages", 100)
		tr.RecordRouteTransition("/products", "/forms", 100)
		tr.RecordRouteTransition("/forms", "/products", 100)

		assert.Len(t, tr.TransitionsFrom("/products"), 2)
		assert.Len(t, tr.TransitionsFrom("/forms"), 1)
		assert.Empty(t, tr.TransitionsFrom("/coverages"))
	})
}

func TestRecordDataAccess(t *testing.T) {
	t.Run("prunes access times beyond the window", func(t *testing.T) {
		window := 30 * time.Minute
		tr, clock := newTestTracker(window)

		tr.RecordDataAccess("products", "p1", nil)
		clock.Advance(20 * time.Minute)
		tr.RecordDataAccess("products", "p1", nil)
		clock.Advance(20 * time.Minute) // first access now 40m old

		tr.RecordDataAccess("products", "p1", nil)

		pattern, ok := tr.Pattern("products:p1")
		require.True(t, ok)
		assert.Equal(t, 3, pattern.AccessCount, "access count is monotonic")
		assert.Len(t, pattern.AccessTimes, 2, "pruned to entries within the window")
		for _, ts := range pattern.AccessTimes {
			assert.LessOrEqual(t, clock.Now().Sub(ts), window)
		}
	})

	t.Run("counts parameter variants canonically", func(t *testing.T) {
		tr, _ := newTestTracker(30 * time.Minute)

		tr.RecordDataAccess("coverages", "c1", map[string]interface{}{"state": "CA", "limit": 50})
		tr.RecordDataAccess("coverages", "c1", map[string]interface{}{"limit": 50, "state": "CA"})
		tr.RecordDataAccess("coverages", "c1", nil)

		pattern, ok := tr.Pattern("coverages:c1")
		require.True(t, ok)
		assert.Len(t, pattern.ParamVariants, 2)
		assert.Equal(t, 2, pattern.ParamVariants[`{"limit":50,"state":"CA"}`])
		assert.Equal(t, 1, pattern.ParamVariants["{}"])
	})

	t.Run("records co-occurrence on the pre-existing pattern only", func(t *testing.T) {
		tr, clock := newTestTracker(30 * time.Minute)

		tr.RecordDataAccess("products", "p1", nil)
		clock.Advance(time.Minute)
		tr.RecordDataAccess("coverages", "c1", nil)

		p1, ok := tr.Pattern("products:p1")
		require.True(t, ok)
		assert.Equal(t, 1, p1.RelatedAccesses["coverages:c1"],
			"relation recorded on the earlier pattern")

		c1, ok := tr.Pattern("coverages:c1")
		require.True(t, ok)
		assert.Zero(t, c1.RelatedAccesses["products:p1"],
			"relation not mirrored onto the new pattern")
	})

	t.Run("no co-occurrence outside the related window", func(t *testing.T) {
		tr, clock := newTestTracker(time.Hour)

		tr.RecordDataAccess("products", "p1", nil)
		clock.Advance(6 * time.Minute) // beyond the 5 minute related window
		tr.RecordDataAccess("coverages", "c1", nil)

		p1, _ := tr.Pattern("products:p1")
		assert.Zero(t, p1.RelatedAccesses["coverages:c1"])
	})

	t.Run("alternating accesses accumulate per spec scenario", func(t *testing.T) {
		tr, clock := newTestTracker(30 * time.Minute)

		for i := 0; i < 3; i++ {
			tr.RecordDataAccess("products", "p1", nil)
			clock.Advance(10 * time.Second)
			tr.RecordDataAccess("coverages", "c1", nil)
			clock.Advance(10 * time.Second)
		}

		p1, ok := tr.Pattern("products:p1")
		require.True(t, ok)
		assert.Equal(t, 3, p1.AccessCount)
		assert.Equal(t, 3, p1.RelatedAccesses["coverages:c1"])
	})
}

func TestRecordInteraction(t *testing.T) {
	t.Run("valid payload upserts stat and returns targets", func(t *testing.T) {
		tr, _ := newTestTracker(30 * time.Minute)

		payload := []byte(`{
			"type": "hover",
			"identifier": "product-row",
			"prefetch_targets": [
				{"category": "products", "identifier": "p1"},
				{"category": "coverages", "identifier": "all"}
			]
		}`)

		targets, err := tr.RecordInteraction(payload)
		require.NoError(t, err)
		require.Len(t, targets, 2)
		assert.Equal(t, "products", targets[0].Category)

		_, _, interactions, _ := tr.Counts()
		assert.Equal(t, 1, interactions)
	})

	t.Run("prefetch targets fixed at first observation", func(t *testing.T) {
		tr, _ := newTestTracker(30 * time.Minute)

		first := []byte(`{"type":"hover","identifier":"row","prefetch_targets":[{"category":"products","identifier":"p1"}]}`)
		second := []byte(`{"type":"hover","identifier":"row","prefetch_targets":[{"category":"forms","identifier":"f9"}]}`)

		_, err := tr.RecordInteraction(first)
		require.NoError(t, err)

		targets, err := tr.RecordInteraction(second)
		require.NoError(t, err)
		require.Len(t, targets, 1)
		assert.Equal(t, "products", targets[0].Category,
			"later payloads do not replace the fixed target list")
	})

	t.Run("malformed JSON is rejected without mutation", func(t *testing.T) {
		tr, _ := newTestTracker(30 * time.Minute)

		_, err := tr.RecordInteraction([]byte("{not json"))
		assert.Error(t, err)

		_, _, interactions, _ := tr.Counts()
		assert.Zero(t, interactions)
		assert.Equal(t, int64(1), tr.DroppedPayloads())
	})

	t.Run("envelope missing required fields is rejected", func(t *testing.T) {
		tr, _ := newTestTracker(30 * time.Minute)

		_, err := tr.RecordInteraction([]byte(`{"type":"hover"}`))
		assert.Error(t, err)
		assert.Equal(t, int64(1), tr.DroppedPayloads())
	})
}

func TestRecentPatterns(t *testing.T) {
	tr, clock := newTestTracker(30 * time.Minute)

	tr.RecordDataAccess("products", "old", nil)
	clock.Advance(40 * time.Minute)
	tr.RecordDataAccess("products", "fresh", nil)

	patterns := tr.RecentPatterns()
	require.Len(t, patterns, 1)
	assert.Equal(t, "fresh", patterns[0].Identifier)
}

func TestPatternKeyHelpers(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		key := PatternKey("products", "p1")
		assert.Equal(t, "products:p1", key)

		category, identifier, err := SplitPatternKey(key)
		require.NoError(t, err)
		assert.Equal(t, "products", category)
		assert.Equal(t, "p1", identifier)
	})

	t.Run("identifier may contain colons", func(t *testing.T) {
		category, identifier, err := SplitPatternKey("forms:ca:fire:2026")
		require.NoError(t, err)
		assert.Equal(t, "forms", category)
		assert.Equal(t, "ca:fire:2026", identifier)
	})

	t.Run("malformed keys rejected", func(t *testing.T) {
		for _, bad := range []string{"", "products", ":p1", "products:"} {
			_, _, err := SplitPatternKey(bad)
			assert.Error(t, err, "key %q", bad)
		}
	})
}

func TestExportImportState(t *testing.T) {
	tr, clock := newTestTracker(30 * time.Minute)

	tr.RecordRouteTransition("/products", "/coverages", 1000)
	tr.RecordDataAccess("products", "p1", map[string]interface{}{"state": "CA"})
	clock.Advance(time.Minute)
	tr.RecordDataAccess("coverages", "c1", nil)
	_, err := tr.RecordInteraction([]byte(`{"type":"hover","identifier":"row"}`))
	require.NoError(t, err)

	state := tr.ExportState()

	t.Run("export is a deep copy", func(t *testing.T) {
		state.Patterns["products:p1"].RelatedAccesses["mutated"] = 99
		original, _ := tr.Pattern("products:p1")
		assert.Zero(t, original.RelatedAccesses["mutated"])
		delete(state.Patterns["products:p1"].RelatedAccesses, "mutated")
	})

	t.Run("import restores state verbatim", func(t *testing.T) {
		restored := New(30 * time.Minute)
		restored.SetClock(clock.Now)
		restored.ImportState(state)

		transitions, patterns, interactions, total := restored.Counts()
		assert.Equal(t, 1, transitions)
		assert.Equal(t, 2, patterns)
		assert.Equal(t, 1, interactions)
		assert.Equal(t, int64(2), total)

		p1, ok := restored.Pattern("products:p1")
		require.True(t, ok)
		assert.Equal(t, 1, p1.RelatedAccesses["coverages:c1"])
		assert.Equal(t, 1, p1.ParamVariants[`{"state":"CA"}`])
	})
}

func TestReset(t *testing.T) {
	tr, _ := newTestTracker(30 * time.Minute)

	for i := 0; i < 5; i++ {
		tr.RecordRouteTransition("/a", fmt.Sprintf("/b%d", i), 100)
		tr.RecordDataAccess("products", fmt.Sprintf("p%d", i), nil)
	}
	_, err := tr.RecordInteraction([]byte(`{"type":"hover","identifier":"row"}`))
	require.NoError(t, err)

	tr.Reset()

	transitions, patterns, interactions, total := tr.Counts()
	assert.Zero(t, transitions)
	assert.Zero(t, patterns)
	assert.Zero(t, interactions)
	assert.Zero(t, total)
	assert.Zero(t, tr.DroppedPayloads())
}
