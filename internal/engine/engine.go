// Package engine composes the tracker, predictor, scheduler, bridge, and
// persistence into the running prefetch engine. It subscribes to the inbound
// behavior channels, funnels every mutation through its single run loop, and
// drains the prefetch queue on a fixed tick.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/avockley/prewarm/internal/bridge"
	"github.com/avockley/prewarm/internal/config"
	"github.com/avockley/prewarm/internal/persist"
	"github.com/avockley/prewarm/internal/predictor"
	"github.com/avockley/prewarm/internal/scheduler"
	"github.com/avockley/prewarm/internal/tracker"
	"github.com/avockley/prewarm/pkg/warmstore"
)

// Stats is the engine's observability snapshot.
type Stats struct {
	RouteTransitionCount    int   `json:"route_transition_count"`
	BehaviorPatternCount    int   `json:"behavior_pattern_count"`
	ComponentStatCount      int   `json:"component_stat_count"`
	PrefetchQueueSize       int   `json:"prefetch_queue_size"`
	PrefetchInProgressCount int   `json:"prefetch_in_progress_count"`
	TotalObservedAccesses   int64 `json:"total_observed_accesses"`
}

// Engine is the predictive prefetch engine. Construct it once in the
// composition root and share the instance; it owns its component state for
// the process's whole lifetime.
type Engine struct {
	client       *warmstore.Client
	cfg          *config.Config
	instanceName string

	tracker   *tracker.Tracker
	predictor *predictor.Engine
	scheduler *scheduler.Scheduler
	bridge    *bridge.Bridge
	persist   *persist.Store

	prefetchDelay time.Duration

	// currentRoute is only touched from the run loop
	currentRoute string
}

// New wires an engine from its configuration and collaborators. The fetcher
// is injected so hosts and tests can supply their own data source.
func New(client *warmstore.Client, cfg *config.Config, fetcher bridge.Fetcher) *Engine {
	e := &Engine{
		client:        client,
		cfg:           cfg,
		instanceName:  client.InstanceName(),
		tracker:       tracker.New(cfg.BehaviorTrackingWindow()),
		bridge:        bridge.New(client, fetcher, cfg.MaxPrefetchAge()),
		persist:       persist.New(client, cfg.MaxPatternAge()),
		prefetchDelay: cfg.PrefetchDelay(),
	}

	e.predictor = predictor.New(e.tracker, cfg.RouteDataTable(), cfg.MinConfidenceScore())
	e.scheduler = scheduler.New(cfg.MaxConcurrentPrefetch(), e.executeCandidate)

	return e
}

// Tracker exposes the engine's tracker for hosts that record events in
// process instead of over Pub/Sub.
func (e *Engine) Tracker() *tracker.Tracker {
	return e.tracker
}

// Run starts the engine and blocks until the context is cancelled.
// Returns an error only if the event subscription cannot be established;
// everything after startup degrades instead of failing.
func (e *Engine) Run(ctx context.Context) error {
	e.restore(ctx)

	subscription, err := e.client.SubscribeEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to behavior events: %w", err)
	}
	defer subscription.Close()

	log.Printf("[Engine] Started for instance '%s'", e.instanceName)

	ticker := time.NewTicker(e.cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Engine] Shutting down...")
			e.scheduler.Wait()
			return nil

		case event, ok := <-subscription.Events():
			if !ok {
				log.Printf("[Engine] Event subscription closed")
				e.scheduler.Wait()
				return nil
			}
			if e.handleEvent(ctx, event) {
				e.persistState(ctx)
			}

		case err, ok := <-subscription.Errors():
			if !ok {
				log.Printf("[Engine] Error channel closed")
				e.scheduler.Wait()
				return nil
			}
			// Non-fatal: the message is skipped, processing continues
			log.Printf("[Engine] Subscription error: %v", err)

		case <-ticker.C:
			e.scheduler.ProcessTick(ctx)
		}
	}
}

// restore loads the persisted snapshot if one exists and is fresh enough.
// Any persistence failure degrades to a cold start.
func (e *Engine) restore(ctx context.Context) {
	state, err := e.persist.Load(ctx)
	if err != nil {
		log.Printf("[Engine] Failed to restore patterns, starting cold: %v", err)
		e.logEvent("restore_failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if state == nil {
		e.logEvent("cold_start", map[string]interface{}{})
		return
	}

	e.tracker.ImportState(state)
	e.logEvent("patterns_restored", map[string]interface{}{
		"route_transitions": len(state.Transitions),
		"access_patterns":   len(state.Patterns),
		"interaction_stats": len(state.Interactions),
	})
}

// handleEvent dispatches one inbound event. Returns true if tracker state
// was mutated and should be written through to the durable store.
func (e *Engine) handleEvent(ctx context.Context, event *warmstore.InboundEvent) bool {
	switch {
	case event.Route != nil:
		return e.handleRoute(ctx, event.Route)
	case event.Access != nil:
		return e.handleAccess(event.Access)
	case event.InteractionPayload != nil:
		return e.handleInteraction(ctx, event.InteractionPayload)
	default:
		return false
	}
}

// handleRoute records the transition, moves the engine's route cursor, and
// schedules fresh predictions for the new location.
func (e *Engine) handleRoute(ctx context.Context, event *warmstore.RouteEvent) bool {
	if err := event.Validate(); err != nil {
		log.Printf("[Engine] Dropping invalid route event: %v", err)
		return false
	}

	e.tracker.RecordRouteTransition(event.FromRoute, event.ToRoute, event.TimeSpentMs)
	e.currentRoute = event.ToRoute

	for _, candidate := range e.predictor.GeneratePredictions(e.currentRoute) {
		e.scheduleCandidate(ctx, candidate)
	}

	return true
}

func (e *Engine) handleAccess(event *warmstore.AccessEvent) bool {
	if err := event.Validate(); err != nil {
		log.Printf("[Engine] Dropping invalid access event: %v", err)
		return false
	}

	e.tracker.RecordDataAccess(event.Category, event.Identifier, event.Params)
	return true
}

// handleInteraction parses the raw payload and, when the interaction carries
// prefetch targets, schedules them directly after the configured delay -
// bypassing confidence scoring entirely.
func (e *Engine) handleInteraction(ctx context.Context, payload []byte) bool {
	targets, err := e.tracker.RecordInteraction(payload)
	if err != nil {
		log.Printf("[Engine] Dropping interaction payload: %v", err)
		e.logEvent("interaction_dropped", map[string]interface{}{"error": err.Error()})
		return false
	}

	if len(targets) > 0 {
		time.AfterFunc(e.prefetchDelay, func() {
			for _, target := range targets {
				e.scheduleCandidate(ctx, predictor.Candidate{
					Type:             predictor.CandidateRelatedData,
					Target:           tracker.PatternKey(target.Category, target.Identifier),
					Confidence:       1,
					DataRequirements: []warmstore.DataRequirement{target},
				})
			}
		})
	}

	return true
}

// scheduleCandidate enqueues a candidate and announces it if it was new.
func (e *Engine) scheduleCandidate(ctx context.Context, candidate predictor.Candidate) {
	if !e.scheduler.Schedule(candidate) {
		return
	}

	e.publishNotice(ctx, &warmstore.PrefetchNotice{
		Stage:      warmstore.PrefetchStageScheduled,
		Key:        candidate.Key(),
		Target:     candidate.Target,
		Confidence: candidate.Confidence,
	})
}

// executeCandidate is the scheduler's execute function: it runs the
// fetch-and-cache workflow for every requirement of one candidate.
// Fire-and-forget; failures are logged and never retried.
func (e *Engine) executeCandidate(ctx context.Context, candidate predictor.Candidate) {
	failures := e.bridge.FetchAll(ctx, candidate.DataRequirements)

	notice := &warmstore.PrefetchNotice{
		Stage:      warmstore.PrefetchStageCompleted,
		Key:        candidate.Key(),
		Target:     candidate.Target,
		Confidence: candidate.Confidence,
	}
	if failures > 0 {
		notice.Stage = warmstore.PrefetchStageFailed
		notice.Detail = fmt.Sprintf("%d of %d requirements failed", failures, len(candidate.DataRequirements))
	}
	e.publishNotice(ctx, notice)
}

func (e *Engine) publishNotice(ctx context.Context, notice *warmstore.PrefetchNotice) {
	if err := e.client.PublishPrefetchNotice(ctx, notice); err != nil {
		log.Printf("[Engine] Failed to publish prefetch notice: %v", err)
	}
}

// persistState writes tracker state through to the durable store. A failing
// store degrades the engine to in-memory operation; it never stops it.
func (e *Engine) persistState(ctx context.Context) {
	if err := e.persist.Save(ctx, e.tracker.ExportState()); err != nil {
		log.Printf("[Engine] Failed to persist patterns (continuing in-memory): %v", err)
	}
}

// GetStats returns the engine's observability counters. Safe to call from
// any goroutine.
func (e *Engine) GetStats() Stats {
	transitions, patterns, interactions, total := e.tracker.Counts()
	return Stats{
		RouteTransitionCount:    transitions,
		BehaviorPatternCount:    patterns,
		ComponentStatCount:      interactions,
		PrefetchQueueSize:       e.scheduler.PendingCount(),
		PrefetchInProgressCount: e.scheduler.InProgressCount(),
		TotalObservedAccesses:   total,
	}
}

// Reset clears all learned state and deletes the durable snapshot.
// In-flight prefetches run to completion; there is no cancellation.
func (e *Engine) Reset(ctx context.Context) error {
	e.tracker.Reset()
	e.scheduler.Reset()

	if err := e.persist.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear durable snapshot: %w", err)
	}

	e.logEvent("engine_reset", map[string]interface{}{})
	return nil
}

// logEvent emits a structured JSON log line in the engine's standard shape.
func (e *Engine) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "engine"
	data["event_type"] = eventType
	data["instance"] = e.instanceName

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Engine] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
