package engine

import (
	"sync"
	"time"

	"github.com/eventuary/pipeline/models"
)

// sourceRegistry is the engine's in-memory bookkeeping of registered
// sources, implementing coordinator.SourceLister. A durable deployment
// would back this with the same storage the event store uses; nothing
// downstream cares how Sources() is populated.
type sourceRegistry struct {
	mu      sync.RWMutex
	sources map[string]models.Source
}

func newSourceRegistry(seed []models.Source) *sourceRegistry {
	r := &sourceRegistry{sources: make(map[string]models.Source, len(seed))}
	for _, s := range seed {
		r.sources[s.ID] = s
	}
	return r
}

// Sources implements coordinator.SourceLister.
func (r *sourceRegistry) Sources() []models.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Source, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s)
	}
	return out
}

func (r *sourceRegistry) Get(id string) (models.Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[id]
	return s, ok
}

// Register adds or replaces a source.
func (r *sourceRegistry) Register(s models.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.ID] = s
}

// Touch stamps LastCrawledAt for sourceID, called after the coordinator
// mints a discover item for it so the next Tick's staleness window holds.
func (r *sourceRegistry) Touch(sourceID string, when time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sources[sourceID]
	if !ok {
		return
	}
	s.LastCrawledAt = when
	r.sources[sourceID] = s
}

// Reinstate clears a source's manual quarantine flag.
func (r *sourceRegistry) Reinstate(sourceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sources[sourceID]
	if !ok {
		return
	}
	s.Quarantined = false
	r.sources[sourceID] = s
}
