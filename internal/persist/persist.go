// Package persist serializes tracker state to a durable store and restores it
// at startup, discarding snapshots old enough to be unrepresentative.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avockley/prewarm/internal/tracker"
	"github.com/avockley/prewarm/pkg/warmstore"
)

// DurableStore is the key-value collaborator holding the snapshot.
// The warmstore client satisfies it.
type DurableStore interface {
	SnapshotGet(ctx context.Context) ([]byte, error)
	SnapshotSet(ctx context.Context, data []byte) error
	SnapshotDelete(ctx context.Context) error
}

// Snapshot is the stored shape: the three tracker maps plus a save timestamp
// used for the staleness cutoff at load time.
type Snapshot struct {
	SavedAt time.Time      `json:"saved_at"`
	State   *tracker.State `json:"state"`
}

// Store saves and loads behavior snapshots with an age-based staleness cutoff.
type Store struct {
	durable DurableStore
	maxAge  time.Duration // maxPatternAge: snapshots older than this load cold

	now func() time.Time
}

// New creates a persistence store over the given durable collaborator.
func New(durable DurableStore, maxAge time.Duration) *Store {
	return &Store{
		durable: durable,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// SetClock replaces the store's time source for deterministic tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Save writes the tracker state with the current timestamp. The engine calls
// this write-through after every mutating event; failures degrade the engine
// to in-memory-only operation, they never stop it.
func (s *Store) Save(ctx context.Context, state *tracker.State) error {
	data, err := json.Marshal(&Snapshot{
		SavedAt: s.now(),
		State:   state,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := s.durable.SnapshotSet(ctx, data); err != nil {
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}

	return nil
}

// Load reads the persisted snapshot. Returns (nil, nil) for a cold start:
// no snapshot, a snapshot older than maxAge, or an unreadable snapshot (a
// corrupt snapshot is logged by the caller and treated as absent rather than
// taking the engine down).
func (s *Store) Load(ctx context.Context) (*tracker.State, error) {
	snap, err := s.Inspect(ctx)
	if err != nil || snap == nil {
		return nil, err
	}

	if s.now().Sub(snap.SavedAt) > s.maxAge {
		// Stale behavior is assumed unrepresentative; start cold
		return nil, nil
	}

	if snap.State == nil {
		return nil, fmt.Errorf("snapshot has no state")
	}

	return snap.State, nil
}

// Inspect reads the persisted snapshot without applying the staleness cutoff.
// Operator tooling uses this to report on snapshots the engine itself would
// discard. Returns (nil, nil) when no snapshot exists.
func (s *Store) Inspect(ctx context.Context) (*Snapshot, error) {
	data, err := s.durable.SnapshotGet(ctx)
	if err != nil {
		if warmstore.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// Clear deletes the durable snapshot. Paired with tracker.Reset().
func (s *Store) Clear(ctx context.Context) error {
	if err := s.durable.SnapshotDelete(ctx); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
