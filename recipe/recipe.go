package recipe

import (
	"sync"
	"time"

	"github.com/eventuary/pipeline/extract"
)

// Store is a hot-reloadable registry of per-source extraction recipes,
// implementing extract.RecipeProvider. Recipes can be replaced at runtime
// (the self-healing engine in heal/ does exactly that after regenerating
// selectors) without any consumer holding a stale pointer, since lookups
// always go through the map under a read lock.
type Store struct {
	mu           sync.RWMutex
	recipes      map[string]extract.Recipe
	lastWorking  map[string]extract.Recipe
}

// NewStore builds an empty recipe store.
func NewStore() *Store {
	return &Store{recipes: make(map[string]extract.Recipe), lastWorking: make(map[string]extract.Recipe)}
}

// Lookup implements extract.RecipeProvider.
func (s *Store) Lookup(sourceID string) (extract.Recipe, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.recipes[sourceID]
	return r, ok
}

// Put registers or replaces a source's recipe, stamping UpdatedAt.
func (s *Store) Put(r extract.Recipe) {
	r.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipes[r.SourceID] = r
}

// Remove drops a source's recipe, forcing the waterfall to fall through to
// the structured-data and heuristic strategies on its next crawl.
func (s *Store) Remove(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recipes, sourceID)
}

// Archive copies a source's current recipe into the last-working slot,
// called by the healer just before it overwrites the active recipe so a
// regression can be manually reverted. A no-op if the source has no recipe
// yet.
func (s *Store) Archive(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.recipes[sourceID]; ok {
		s.lastWorking[sourceID] = r
	}
}

// Revert swaps a source's active recipe back to its last-working archive,
// for a manual rollback after a bad self-healing regeneration. Reports
// false if no archive exists.
func (s *Store) Revert(sourceID string) (extract.Recipe, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.lastWorking[sourceID]
	if !ok {
		return extract.Recipe{}, false
	}
	s.recipes[sourceID] = r
	return r, true
}

// All returns a snapshot of every registered recipe, for admin inspection
// and for seeding a persisted store on startup.
func (s *Store) All() []extract.Recipe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]extract.Recipe, 0, len(s.recipes))
	for _, r := range s.recipes {
		out = append(out, r)
	}
	return out
}
