// Package targets orders registration so the durable store always leads the in-memory one,
// and runs the decode, preprocess, extract and rank pipeline behind the HTTP handlers.
package targets

import (
	"context"

	"github.com/owlfacerec/owlface/internal"
	"github.com/owlfacerec/owlface/pkg/models"
	"github.com/owlfacerec/owlface/pkg/store/memory"
)

var log = internal.GetLogger()

// Synchronizer keeps a RecordStore consistent with a TargetRepository. Every Target in the
// store has been acknowledged by the repository, so reloading after a crash loses nothing
// that was ever searchable.
type Synchronizer struct {
	store      *memory.RecordStore
	repository models.TargetRepository
}

func NewSynchronizer(store *memory.RecordStore, repository models.TargetRepository) *Synchronizer {
	return &Synchronizer{store: store, repository: repository}
}

// Load replaces the store contents with everything in the repository. It must complete
// before the service accepts traffic.
func (s *Synchronizer) Load(ctx context.Context) error {
	targets, err := s.repository.GetAll(ctx)
	if err != nil {
		return asDurabilityError("failed to load targets", err)
	}
	if err := s.store.Load(targets); err != nil {
		return err
	}
	log.Infof("loaded %d targets into the record store", s.store.Len())
	return nil
}

// Register persists target and then makes it searchable. A Target with the wrong
// dimensionality is rejected before anything is written. If the durable write fails the
// store is not touched.
func (s *Synchronizer) Register(ctx context.Context, target models.Target) error {
	if err := s.store.CheckDimensions(target.Embedding); err != nil {
		return err
	}

	// A disconnecting client must not leave a half-acknowledged write behind.
	writeCtx := context.WithoutCancel(ctx)

	if err := s.repository.Put(writeCtx, &target); err != nil {
		return asDurabilityError("failed to persist target", err)
	}

	return s.store.Insert(target)
}
