package store

import (
	"fmt"

	"github.com/eventuary/pipeline/dedup"
	"github.com/eventuary/pipeline/models"
)

// EventStore persists golden-record events. Implementations must be safe
// for concurrent Insert calls. Insert carries an InsertResult instead of a
// bare error since a dedup decision is part of the result, not a failure
// mode.
type EventStore interface {
	// Insert's 3rd return reports whether the caller should re-route the
	// merged record through the embed stage rather than treat it as done:
	// see dedup.Merge for what counts as a material change.
	Insert(ev *models.Event) (result models.InsertResult, stored *models.Event, needsReembed bool, err error)
	Get(fingerprint string) (*models.Event, bool, error)
	Flush() error
	Close() error
	Name() string
}

// MemoryStore is an in-memory EventStore reference implementation, built
// around dedup.Index for the insert/merge decision. A durable backend
// (e.g. Postgres) would satisfy the same interface by running the same
// Merge call inside a transaction keyed on the fingerprint unique
// constraint; no such backend ships here since schema/DDL is out of scope.
type MemoryStore struct {
	index *dedup.Index
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: dedup.NewIndex()}
}

func (s *MemoryStore) Insert(ev *models.Event) (models.InsertResult, *models.Event, bool, error) {
	if ev == nil {
		return 0, nil, false, fmt.Errorf("event is nil")
	}
	if ev.Fingerprint == "" {
		return 0, nil, false, fmt.Errorf("event %q has no fingerprint", ev.Title)
	}
	result, merged, needsReembed := s.index.Upsert(ev)
	return result, merged, needsReembed, nil
}

func (s *MemoryStore) Get(fingerprint string) (*models.Event, bool, error) {
	ev, ok := s.index.Get(fingerprint)
	return ev, ok, nil
}

func (s *MemoryStore) Flush() error { return nil }
func (s *MemoryStore) Close() error { return nil }
func (s *MemoryStore) Name() string { return "memory" }

// Len reports how many distinct events are currently stored.
func (s *MemoryStore) Len() int { return s.index.Len() }
