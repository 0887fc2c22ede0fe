package dedup

import (
	"sync"

	"github.com/eventuary/pipeline/models"
)

// Index is a dual-keyed in-memory index used by store.EventStore to decide
// whether an incoming candidate is new, a merge into an existing golden
// record, or lost a race to another worker that inserted the same identity
// microseconds earlier. It is deliberately narrow: the store owns
// durability, Index only owns the insert/merge/race decision.
//
// Two records are the same event iff ContentHash matches OR Fingerprint
// matches: ContentHash catches the same listing scraped from two different
// sources, Fingerprint catches a re-run of the same source.
// Both keys are kept pointing at the one golden record so either lookup
// finds it.
type Index struct {
	mu   sync.Mutex
	byFP map[string]*models.Event
	byCH map[string]*models.Event
}

// NewIndex builds an empty dedup index.
func NewIndex() *Index {
	return &Index{byFP: make(map[string]*models.Event), byCH: make(map[string]*models.Event)}
}

// Upsert resolves candidate against the index. On InsertResultInserted the
// candidate itself (unchanged) becomes the new golden record and the
// needsReembed bool is always false (nothing existed to merge against).
// On InsertResultMerged the returned event is the merge of the existing
// record and candidate, and needsReembed reports whether a descriptive
// field changed materially, per Merge. InsertResultDuplicateRace is
// reserved for callers layering their own compare-and-swap against a
// backing store on top of this index (the in-memory index itself is
// mutex-serialized so it never produces a race on its own).
func (idx *Index) Upsert(candidate *models.Event) (models.InsertResult, *models.Event, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	existing, ok := idx.byFP[candidate.Fingerprint]
	if !ok {
		existing, ok = idx.byCH[candidate.ContentHash]
	}
	if !ok {
		idx.put(candidate)
		return models.InsertResultInserted, candidate, false
	}
	merged, needsReembed := Merge(existing, candidate)
	idx.put(merged)
	return models.InsertResultMerged, merged, needsReembed
}

// put indexes e under both its fingerprint and content hash. Must be called
// with idx.mu held.
func (idx *Index) put(e *models.Event) {
	if e.Fingerprint != "" {
		idx.byFP[e.Fingerprint] = e
	}
	if e.ContentHash != "" {
		idx.byCH[e.ContentHash] = e
	}
}

// Get returns the current golden record for a fingerprint, if any.
func (idx *Index) Get(fingerprint string) (*models.Event, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.byFP[fingerprint]
	return e, ok
}

// GetByContentHash returns the current golden record for a content hash,
// if any -- the cross-source lookup path.
func (idx *Index) GetByContentHash(contentHash string) (*models.Event, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.byCH[contentHash]
	return e, ok
}

// Len reports how many distinct golden records are currently indexed.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	seen := make(map[*models.Event]bool, len(idx.byFP))
	for _, e := range idx.byFP {
		seen[e] = true
	}
	for _, e := range idx.byCH {
		seen[e] = true
	}
	return len(seen)
}
