// Package tracker maintains bounded, windowed statistics about observed
// navigation and data-access behavior. The tracker is the engine's memory:
// everything the predictor ranks is derived from the maps kept here.
package tracker

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/avockley/prewarm/pkg/warmstore"
)

// relatedWindow is how close together two data accesses must be for the
// tracker to record them as co-occurring.
const relatedWindow = 5 * time.Minute

// RouteTransition aggregates observations of one directed route pair.
type RouteTransition struct {
	From        string    `json:"from"`
	To          string    `json:"to"`
	Count       int       `json:"count"`
	TotalTimeMs int64     `json:"total_time_ms"`
	LastAccess  time.Time `json:"last_access"`
	Confidence  float64   `json:"confidence"` // min(count/10, 1), monotonic in count
}

// AccessPattern aggregates observations of one category:identifier data key.
type AccessPattern struct {
	Category    string    `json:"category"`
	Identifier  string    `json:"identifier"`
	AccessCount int       `json:"access_count"` // Monotonic; never pruned
	LastAccess  time.Time `json:"last_access"`

	// AccessTimes holds the timestamps of recent accesses, pruned to the
	// tracking window on every mutation of this pattern.
	AccessTimes []time.Time `json:"access_times"`

	// RelatedAccesses counts co-occurrences with other pattern keys. The
	// relation is recorded asymmetrically: when key B is accessed shortly
	// after key A, the counter lands on A's entry for B.
	RelatedAccesses map[string]int `json:"related_accesses"`

	// ParamVariants counts accesses per canonical parameter serialization.
	ParamVariants map[string]int `json:"param_variants"`
}

// InteractionStat aggregates observations of one UI interaction.
type InteractionStat struct {
	Type       string    `json:"type"`
	Identifier string    `json:"identifier"`
	Count      int       `json:"count"`
	LastAccess time.Time `json:"last_access"`

	// PrefetchTargets is fixed at first observation of this interaction.
	PrefetchTargets []warmstore.DataRequirement `json:"prefetch_targets"`
}

// State is the serializable snapshot of all three tracker maps. It is the
// contract between the tracker and pattern persistence: Load restores exactly
// what Export produced.
type State struct {
	Transitions  map[string]*RouteTransition `json:"route_transitions"`
	Patterns     map[string]*AccessPattern   `json:"access_patterns"`
	Interactions map[string]*InteractionStat `json:"interaction_stats"`
}

// Tracker records behavior events into windowed statistics.
//
// All maps are guarded by a mutex so that stats and prediction reads may come
// from outside the engine's single-writer run loop. Mutations are expected to
// arrive from that loop only.
type Tracker struct {
	mu sync.RWMutex

	transitions  map[string]*RouteTransition // keyed "from→to"
	patterns     map[string]*AccessPattern   // keyed "category:identifier"
	interactions map[string]*InteractionStat // keyed "interaction:type:identifier"

	window          time.Duration // behavior tracking window
	totalAccesses   int64         // Monotonic count of observed data accesses
	droppedPayloads int64         // Malformed interaction payloads dropped

	now func() time.Time
}

// New creates an empty tracker with the given behavior-tracking window.
func New(window time.Duration) *Tracker {
	return &Tracker{
		transitions:  make(map[string]*RouteTransition),
		patterns:     make(map[string]*AccessPattern),
		interactions: make(map[string]*InteractionStat),
		window:       window,
		now:          time.Now,
	}
}

// SetClock replaces the tracker's time source. Tests use this to control time
// deterministically; production code never calls it.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// TransitionKey returns the map key for a directed route pair.
func TransitionKey(from, to string) string {
	return from + "→" + to
}

// PatternKey returns the map key for a data access pattern.
func PatternKey(category, identifier string) string {
	return category + ":" + identifier
}

// SplitPatternKey parses a pattern key back into category and identifier.
// Identifiers may themselves contain colons; only the first colon splits.
func SplitPatternKey(key string) (category, identifier string, err error) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed pattern key: %q", key)
	}
	return parts[0], parts[1], nil
}

// RecordRouteTransition upserts the transition for from→to: increments its
// count, accumulates dwell time, stamps last access, and recomputes confidence.
func (t *Tracker) RecordRouteTransition(from, to string, durationMs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := TransitionKey(from, to)
	tr, ok := t.transitions[key]
	if !ok {
		tr = &RouteTransition{From: from, To: to}
		t.transitions[key] = tr
	}

	tr.Count++
	tr.TotalTimeMs += durationMs
	tr.LastAccess = t.now()
	tr.Confidence = confidenceFromCount(tr.Count)
}

// confidenceFromCount maps an observation count to a [0,1] confidence score.
// Ten observations saturate the score.
func confidenceFromCount(count int) float64 {
	confidence := float64(count) / 10
	if confidence > 1 {
		return 1
	}
	return confidence
}

// RecordDataAccess upserts the pattern for category:identifier, prunes its
// access times to the tracking window, counts the parameter variant, and
// records co-occurrence on every other recently-active pattern.
func (t *Tracker) RecordDataAccess(category, identifier string, params map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	key := PatternKey(category, identifier)

	pattern, ok := t.patterns[key]
	if !ok {
		pattern = &AccessPattern{
			Category:        category,
			Identifier:      identifier,
			RelatedAccesses: make(map[string]int),
			ParamVariants:   make(map[string]int),
		}
		t.patterns[key] = pattern
	}

	// Co-occurrence is recorded on the pre-existing patterns that were active
	// within the related window, not on the pattern being accessed now.
	for otherKey, other := range t.patterns {
		if otherKey == key {
			continue
		}
		if now.Sub(other.LastAccess) <= relatedWindow {
			other.RelatedAccesses[key]++
		}
	}

	pattern.AccessCount++
	pattern.LastAccess = now
	pattern.AccessTimes = append(pattern.AccessTimes, now)
	pattern.AccessTimes = pruneOld(pattern.AccessTimes, now, t.window)
	pattern.ParamVariants[warmstore.CanonicalParams(params)]++

	t.totalAccesses++
}

// pruneOld drops timestamps whose age exceeds the window.
func pruneOld(times []time.Time, now time.Time, window time.Duration) []time.Time {
	kept := times[:0]
	for _, ts := range times {
		if now.Sub(ts) <= window {
			kept = append(kept, ts)
		}
	}
	return kept
}

// RecordInteraction parses a raw interaction envelope and upserts its stat.
// Returns the stat's prefetch targets (fixed at first observation) so the
// caller can schedule them directly.
//
// Malformed payloads return an error; callers log and drop them. A bad
// payload never mutates tracker state.
func (t *Tracker) RecordInteraction(payload []byte) ([]warmstore.DataRequirement, error) {
	var event warmstore.InteractionEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		t.mu.Lock()
		t.droppedPayloads++
		t.mu.Unlock()
		return nil, fmt.Errorf("failed to parse interaction payload: %w", err)
	}
	if err := event.Validate(); err != nil {
		t.mu.Lock()
		t.droppedPayloads++
		t.mu.Unlock()
		return nil, fmt.Errorf("invalid interaction payload: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := fmt.Sprintf("interaction:%s:%s", event.Type, event.Identifier)
	stat, ok := t.interactions[key]
	if !ok {
		stat = &InteractionStat{
			Type:            event.Type,
			Identifier:      event.Identifier,
			PrefetchTargets: event.PrefetchTargets,
		}
		t.interactions[key] = stat
	}

	stat.Count++
	stat.LastAccess = t.now()

	targets := make([]warmstore.DataRequirement, len(stat.PrefetchTargets))
	copy(targets, stat.PrefetchTargets)
	return targets, nil
}

// TransitionsFrom returns copies of every transition leaving the given route,
// in lexical order of destination for deterministic downstream ranking.
func (t *Tracker) TransitionsFrom(from string) []RouteTransition {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []RouteTransition
	for _, tr := range t.transitions {
		if tr.From == from {
			out = append(out, *tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].To < out[j].To })
	return out
}

// RecentPatterns returns copies of every pattern whose last access lies within
// the tracking window, in lexical key order. The returned copies carry their
// own RelatedAccesses maps; callers may not mutate tracker state through them.
func (t *Tracker) RecentPatterns() []AccessPattern {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	keys := make([]string, 0, len(t.patterns))
	for key, p := range t.patterns {
		if now.Sub(p.LastAccess) <= t.window {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	out := make([]AccessPattern, 0, len(keys))
	for _, key := range keys {
		p := t.patterns[key]
		cp := *p
		cp.AccessTimes = append([]time.Time(nil), p.AccessTimes...)
		cp.RelatedAccesses = make(map[string]int, len(p.RelatedAccesses))
		for k, v := range p.RelatedAccesses {
			cp.RelatedAccesses[k] = v
		}
		cp.ParamVariants = make(map[string]int, len(p.ParamVariants))
		for k, v := range p.ParamVariants {
			cp.ParamVariants[k] = v
		}
		out = append(out, cp)
	}
	return out
}

// Pattern returns a copy of one pattern by key, or false if it is unknown.
func (t *Tracker) Pattern(key string) (AccessPattern, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.patterns[key]
	if !ok {
		return AccessPattern{}, false
	}
	cp := *p
	cp.AccessTimes = append([]time.Time(nil), p.AccessTimes...)
	cp.RelatedAccesses = make(map[string]int, len(p.RelatedAccesses))
	for k, v := range p.RelatedAccesses {
		cp.RelatedAccesses[k] = v
	}
	cp.ParamVariants = make(map[string]int, len(p.ParamVariants))
	for k, v := range p.ParamVariants {
		cp.ParamVariants[k] = v
	}
	return cp, true
}

// Counts returns the sizes of the three maps plus the monotonic access total.
func (t *Tracker) Counts() (transitions, patterns, interactions int, totalAccesses int64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.transitions), len(t.patterns), len(t.interactions), t.totalAccesses
}

// DroppedPayloads returns how many malformed interaction payloads were dropped.
func (t *Tracker) DroppedPayloads() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.droppedPayloads
}

// ExportState returns a deep copy of the tracker's maps for persistence.
func (t *Tracker) ExportState() *State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state := &State{
		Transitions:  make(map[string]*RouteTransition, len(t.transitions)),
		Patterns:     make(map[string]*AccessPattern, len(t.patterns)),
		Interactions: make(map[string]*InteractionStat, len(t.interactions)),
	}

	for key, tr := range t.transitions {
		cp := *tr
		state.Transitions[key] = &cp
	}
	for key, p := range t.patterns {
		cp := *p
		cp.AccessTimes = append([]time.Time(nil), p.AccessTimes...)
		cp.RelatedAccesses = make(map[string]int, len(p.RelatedAccesses))
		for k, v := range p.RelatedAccesses {
			cp.RelatedAccesses[k] = v
		}
		cp.ParamVariants = make(map[string]int, len(p.ParamVariants))
		for k, v := range p.ParamVariants {
			cp.ParamVariants[k] = v
		}
		state.Patterns[key] = &cp
	}
	for key, stat := range t.interactions {
		cp := *stat
		cp.PrefetchTargets = append([]warmstore.DataRequirement(nil), stat.PrefetchTargets...)
		state.Interactions[key] = &cp
	}

	return state
}

// ImportState replaces all tracker maps wholesale with the given state.
// Used once at startup when a fresh-enough snapshot exists.
func (t *Tracker) ImportState(state *State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.transitions = make(map[string]*RouteTransition, len(state.Transitions))
	for key, tr := range state.Transitions {
		t.transitions[key] = tr
	}

	t.patterns = make(map[string]*AccessPattern, len(state.Patterns))
	for key, p := range state.Patterns {
		if p.RelatedAccesses == nil {
			p.RelatedAccesses = make(map[string]int)
		}
		if p.ParamVariants == nil {
			p.ParamVariants = make(map[string]int)
		}
		t.patterns[key] = p
	}

	t.interactions = make(map[string]*InteractionStat, len(state.Interactions))
	for key, stat := range state.Interactions {
		t.interactions[key] = stat
	}

	// Restored patterns carry their historical access counts forward
	t.totalAccesses = 0
	for _, p := range t.patterns {
		t.totalAccesses += int64(p.AccessCount)
	}
}

// Reset clears all tracker state. The engine pairs this with deleting the
// durable snapshot.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.transitions = make(map[string]*RouteTransition)
	t.patterns = make(map[string]*AccessPattern)
	t.interactions = make(map[string]*InteractionStat)
	t.totalAccesses = 0
	t.droppedPayloads = 0
}
