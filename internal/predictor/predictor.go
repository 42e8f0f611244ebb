// Package predictor turns tracker statistics into a ranked list of prefetch
// candidates. It has no side effects: scoring here, scheduling elsewhere.
package predictor

import (
	"sort"

	"github.com/avockley/prewarm/internal/tracker"
	"github.com/avockley/prewarm/pkg/warmstore"
)

// CandidateType describes which prediction source produced a candidate.
type CandidateType string

const (
	// CandidateRoute predicts navigation to another route
	CandidateRoute CandidateType = "route"

	// CandidateRelatedData predicts access to a correlated data key
	CandidateRelatedData CandidateType = "related_data"
)

// Candidate is one predicted future data need with a confidence score.
type Candidate struct {
	Type             CandidateType               `json:"type"`
	Target           string                      `json:"target"` // Route or pattern key
	Confidence       float64                     `json:"confidence"`
	DataRequirements []warmstore.DataRequirement `json:"data_requirements"`
}

// Key returns the scheduler key for this candidate. Candidates with the same
// key are the same unit of prefetch work regardless of confidence.
func (c Candidate) Key() string {
	return string(c.Type) + ":" + c.Target
}

// Engine generates ranked predictions from tracker state.
type Engine struct {
	tracker       *tracker.Tracker
	routeData     []RouteData
	minConfidence float64
}

// New creates a prediction engine over the given tracker. routeData is the
// ordered static route-prefix table; minConfidence is the emission threshold.
func New(tr *tracker.Tracker, routeData []RouteData, minConfidence float64) *Engine {
	return &Engine{
		tracker:       tr,
		routeData:     routeData,
		minConfidence: minConfidence,
	}
}

// GeneratePredictions returns prefetch candidates for the current route,
// sorted by confidence descending. Ties preserve generation order: route
// candidates first, then correlation candidates, each in stable key order.
//
// An empty result is the normal cold-start baseline, not an error.
func (e *Engine) GeneratePredictions(currentRoute string) []Candidate {
	var candidates []Candidate
	candidates = append(candidates, e.routeCandidates(currentRoute)...)
	candidates = append(candidates, e.correlationCandidates()...)

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	return candidates
}

// routeCandidates emits one candidate per observed transition out of the
// current route whose confidence clears the threshold.
func (e *Engine) routeCandidates(currentRoute string) []Candidate {
	var out []Candidate
	for _, tr := range e.tracker.TransitionsFrom(currentRoute) {
		if tr.Confidence < e.minConfidence {
			continue
		}

		requirements := RequirementsForRoute(e.routeData, tr.To)
		if len(requirements) == 0 {
			// Predicted route has no mapped data; nothing to warm
			continue
		}

		out = append(out, Candidate{
			Type:             CandidateRoute,
			Target:           tr.To,
			Confidence:       tr.Confidence,
			DataRequirements: requirements,
		})
	}
	return out
}

// correlationCandidates emits one candidate per strongly co-occurring data
// key of each recently-active, repeatedly-accessed pattern.
func (e *Engine) correlationCandidates() []Candidate {
	var out []Candidate
	for _, pattern := range e.tracker.RecentPatterns() {
		if pattern.AccessCount <= 2 {
			continue
		}

		for _, relatedKey := range sortedKeys(pattern.RelatedAccesses) {
			count := pattern.RelatedAccesses[relatedKey]
			if count <= 1 {
				continue
			}

			confidence := float64(count) / float64(pattern.AccessCount)
			if confidence > 1 {
				confidence = 1
			}
			if confidence < e.minConfidence {
				continue
			}

			category, identifier, err := tracker.SplitPatternKey(relatedKey)
			if err != nil {
				continue
			}

			out = append(out, Candidate{
				Type:       CandidateRelatedData,
				Target:     relatedKey,
				Confidence: confidence,
				DataRequirements: []warmstore.DataRequirement{
					{Category: category, Identifier: identifier},
				},
			})
		}
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
