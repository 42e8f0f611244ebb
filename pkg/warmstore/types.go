package warmstore

import "fmt"

// DataRequirement identifies one piece of data the host may need: a category
// (products, coverages, forms, ...), an identifier within that category
// ("all" for collection-level data), and optional query parameters.
type DataRequirement struct {
	Category   string                 `json:"category"`
	Identifier string                 `json:"identifier"`
	Params     map[string]interface{} `json:"params,omitempty"`
}

// Validate checks that the requirement names both a category and an identifier.
func (r DataRequirement) Validate() error {
	if r.Category == "" {
		return fmt.Errorf("data requirement missing category")
	}
	if r.Identifier == "" {
		return fmt.Errorf("data requirement missing identifier")
	}
	return nil
}

// RouteEvent reports a navigation from one route to another, with dwell time
// on the source route. Published by the host on every route change.
type RouteEvent struct {
	ID          string `json:"id"`            // UUID assigned by the publisher
	FromRoute   string `json:"from_route"`    // Route being left
	ToRoute     string `json:"to_route"`      // Route being entered
	TimeSpentMs int64  `json:"time_spent_ms"` // Dwell time on from_route in milliseconds
}

// Validate checks that both endpoints of the transition are present.
func (e *RouteEvent) Validate() error {
	if e.FromRoute == "" {
		return fmt.Errorf("route event missing from_route")
	}
	if e.ToRoute == "" {
		return fmt.Errorf("route event missing to_route")
	}
	if e.TimeSpentMs < 0 {
		return fmt.Errorf("route event has negative time_spent_ms: %d", e.TimeSpentMs)
	}
	return nil
}

// AccessEvent reports that the host read a piece of data. Every read path that
// should feed the learning loop emits one of these.
type AccessEvent struct {
	ID         string                 `json:"id"` // UUID assigned by the publisher
	Category   string                 `json:"category"`
	Identifier string                 `json:"identifier"`
	Params     map[string]interface{} `json:"params,omitempty"`
}

// Validate checks that the access names a category and identifier.
func (e *AccessEvent) Validate() error {
	if e.Category == "" {
		return fmt.Errorf("access event missing category")
	}
	if e.Identifier == "" {
		return fmt.Errorf("access event missing identifier")
	}
	return nil
}

// InteractionEvent reports a UI interaction (hover, expand, focus) that the
// host has annotated with data it expects to need if the interaction leads
// anywhere. Interaction payloads arrive untrusted from UI code; the engine
// parses them defensively and drops malformed ones.
type InteractionEvent struct {
	ID              string            `json:"id"` // UUID assigned by the publisher
	Type            string            `json:"type"`
	Identifier      string            `json:"identifier"`
	PrefetchTargets []DataRequirement `json:"prefetch_targets,omitempty"`
}

// Validate checks the envelope fields and every prefetch target.
func (e *InteractionEvent) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("interaction event missing type")
	}
	if e.Identifier == "" {
		return fmt.Errorf("interaction event missing identifier")
	}
	for i, target := range e.PrefetchTargets {
		if err := target.Validate(); err != nil {
			return fmt.Errorf("invalid prefetch target %d: %w", i, err)
		}
	}
	return nil
}

// PrefetchStage describes where a prefetch is in its lifecycle.
type PrefetchStage string

const (
	// PrefetchStageScheduled indicates the candidate entered the pending queue
	PrefetchStageScheduled PrefetchStage = "scheduled"

	// PrefetchStageCompleted indicates all data requirements were processed
	PrefetchStageCompleted PrefetchStage = "completed"

	// PrefetchStageFailed indicates at least one data requirement failed to fetch
	PrefetchStageFailed PrefetchStage = "failed"
)

// PrefetchNotice is the outbound activity event published by the engine as it
// schedules and executes prefetches. Consumed by "prewarm watch" and any host
// telemetry that wants visibility into warming activity.
type PrefetchNotice struct {
	Stage      PrefetchStage `json:"stage"`
	Key        string        `json:"key"`        // Scheduler key: {type}:{target}
	Target     string        `json:"target"`     // Route or pattern key being warmed
	Confidence float64       `json:"confidence"` // Candidate confidence at schedule time
	Detail     string        `json:"detail,omitempty"`
}
