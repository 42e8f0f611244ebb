// Package scheduler queues prefetch candidates and executes them under a
// concurrency bound on a fixed tick. The scheduler owns the dedup key space:
// a candidate key exists in the pending queue or the in-progress set, never
// both, and leaves the in-progress set when its execution finishes.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/avockley/prewarm/internal/predictor"
)

// ExecuteFunc runs one candidate's fetch-and-cache workflow. Implementations
// must be safe to call concurrently; the scheduler never retries a failure.
type ExecuteFunc func(ctx context.Context, candidate predictor.Candidate)

// queueItem is a pending candidate with its enqueue timestamp.
type queueItem struct {
	key         string
	candidate   predictor.Candidate
	scheduledAt time.Time
}

// Scheduler deduplicates, queues, and executes prefetch candidates.
// All methods are safe for concurrent use.
type Scheduler struct {
	mu         sync.Mutex
	pending    map[string]*queueItem
	order      []string // Pending keys in enqueue order, for stable tie-breaking
	inProgress map[string]struct{}

	maxConcurrent int
	execute       ExecuteFunc

	now func() time.Time
	wg  sync.WaitGroup
}

// New creates a scheduler that runs at most maxConcurrent candidates at once
// through the given execute function.
func New(maxConcurrent int, execute ExecuteFunc) *Scheduler {
	return &Scheduler{
		pending:       make(map[string]*queueItem),
		inProgress:    make(map[string]struct{}),
		maxConcurrent: maxConcurrent,
		execute:       execute,
		now:           time.Now,
	}
}

// SetClock replaces the scheduler's time source for deterministic tests.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Schedule enqueues a candidate unless its key is already pending or in
// progress. Returns true if the candidate was enqueued.
func (s *Scheduler) Schedule(candidate predictor.Candidate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := candidate.Key()
	if _, exists := s.pending[key]; exists {
		return false
	}
	if _, exists := s.inProgress[key]; exists {
		return false
	}

	s.pending[key] = &queueItem{
		key:         key,
		candidate:   candidate,
		scheduledAt: s.now(),
	}
	s.order = append(s.order, key)
	return true
}

// ProcessTick drains the pending queue up to the remaining concurrency
// capacity, highest confidence first. The sort happens at drain time, not at
// enqueue time: queued candidates from earlier ticks must compete on equal
// terms with fresher, possibly higher-confidence arrivals.
//
// Execution is fire-and-forget: each drained candidate runs on its own
// goroutine and removes itself from the in-progress set when done.
func (s *Scheduler) ProcessTick(ctx context.Context) {
	s.mu.Lock()

	capacity := s.maxConcurrent - len(s.inProgress)
	if capacity <= 0 || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}

	// Snapshot pending items in enqueue order, then rank by confidence.
	// SliceStable keeps enqueue order for equal confidences.
	items := make([]*queueItem, 0, len(s.order))
	for _, key := range s.order {
		if item, ok := s.pending[key]; ok {
			items = append(items, item)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].candidate.Confidence > items[j].candidate.Confidence
	})

	if capacity > len(items) {
		capacity = len(items)
	}
	drained := items[:capacity]

	for _, item := range drained {
		delete(s.pending, item.key)
		s.inProgress[item.key] = struct{}{}
	}
	s.compactOrder()

	s.mu.Unlock()

	for _, item := range drained {
		s.wg.Add(1)
		go func(item *queueItem) {
			defer s.wg.Done()
			defer s.finish(item.key)
			s.execute(ctx, item.candidate)
		}(item)
	}
}

// compactOrder drops order entries whose keys are no longer pending.
// Called with the mutex held.
func (s *Scheduler) compactOrder() {
	kept := s.order[:0]
	for _, key := range s.order {
		if _, ok := s.pending[key]; ok {
			kept = append(kept, key)
		}
	}
	s.order = kept
}

// finish removes a key from the in-progress set once its execution completes,
// successfully or not. The key may then be scheduled again by a future
// prediction cycle.
func (s *Scheduler) finish(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inProgress, key)
}

// PendingCount returns the number of queued candidates.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// InProgressCount returns the number of currently executing candidates.
func (s *Scheduler) InProgressCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inProgress)
}

// Reset discards all pending candidates. Already-started executions run to
// completion; there is no cancellation for in-flight prefetches.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[string]*queueItem)
	s.order = nil
}

// Wait blocks until every started execution has finished. Used by the engine
// during shutdown and by tests; new ticks must not run concurrently with Wait.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
