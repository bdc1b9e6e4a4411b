package models

import "context"

// TargetRepository is the durable source of truth for Targets.
type TargetRepository interface {
	// Put persists a Target. It returns only once the write is acknowledged.
	Put(ctx context.Context, target *Target) error
	// GetAll returns every Target in insertion order.
	GetAll(ctx context.Context) ([]Target, error)
	Close() error
}

// TargetService is the registration and search pipeline used by the request layer.
type TargetService interface {
	Register(ctx context.Context, registration *Registration) error
	Search(ctx context.Context, probe *Probe) ([]SearchResult, error)
	Stats() StoreStats
}
