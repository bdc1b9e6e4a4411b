// Package memory holds the in-process cache of every registered Target.
package memory

import (
	"sync"

	"github.com/owlfacerec/owlface/pkg/models"
)

// RecordStore is the read-optimized cache of all Targets. Searches take a Snapshot and
// scan it without holding any lock; registration appends under a brief exclusive lock.
// A published Target is never modified, so a Snapshot is always consistent.
type RecordStore struct {
	mu         sync.RWMutex
	targets    []models.Target
	dimensions int
}

// NewRecordStore returns an empty store accepting embeddings of exactly dimensions values.
func NewRecordStore(dimensions int) *RecordStore {
	return &RecordStore{dimensions: dimensions}
}

// Load replaces the store contents with targets, in order. Nothing is replaced if any
// Target has the wrong dimensionality. Load is meant to run once, before serving.
func (s *RecordStore) Load(targets []models.Target) error {
	loaded := make([]models.Target, len(targets))
	for i, t := range targets {
		if err := s.CheckDimensions(t.Embedding); err != nil {
			return err
		}
		loaded[i] = cloneTarget(t)
	}

	s.mu.Lock()
	s.targets = loaded
	s.mu.Unlock()

	return nil
}

// Insert appends target. It is visible to every Snapshot taken after Insert returns.
func (s *RecordStore) Insert(target models.Target) error {
	if err := s.CheckDimensions(target.Embedding); err != nil {
		return err
	}
	t := cloneTarget(target)

	s.mu.Lock()
	s.targets = append(s.targets, t)
	s.mu.Unlock()

	return nil
}

// Snapshot returns the Targets currently in the store in insertion order. The returned
// slice is shared and must be treated as read-only. Its capacity is clipped so later
// Inserts can never write into it.
func (s *RecordStore) Snapshot() []models.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.targets)
	return s.targets[:n:n]
}

// CheckDimensions reports a DimensionMismatchError if v cannot be stored.
func (s *RecordStore) CheckDimensions(v []float32) error {
	if len(v) != s.dimensions {
		return models.NewDimensionMismatchError(s.dimensions, len(v))
	}
	return nil
}

func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.targets)
}

func (s *RecordStore) Dimensions() int {
	return s.dimensions
}

func cloneTarget(t models.Target) models.Target {
	return models.Target{
		UUID:      t.UUID,
		Origin:    t.Origin,
		Embedding: append([]float32(nil), t.Embedding...),
	}
}
