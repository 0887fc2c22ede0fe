package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventuary/pipeline/extract"
)

func TestStorePutLookupRemove(t *testing.T) {
	s := NewStore()
	_, ok := s.Lookup("src-1")
	assert.False(t, ok)

	s.Put(extract.Recipe{SourceID: "src-1", Selectors: map[string]string{"title": "h1"}})
	r, ok := s.Lookup("src-1")
	require.True(t, ok)
	assert.Equal(t, "h1", r.Selectors["title"])
	assert.NotEmpty(t, r.UpdatedAt)

	s.Remove("src-1")
	_, ok = s.Lookup("src-1")
	assert.False(t, ok)
}

func TestStoreAllReturnsSnapshot(t *testing.T) {
	s := NewStore()
	s.Put(extract.Recipe{SourceID: "a"})
	s.Put(extract.Recipe{SourceID: "b"})
	all := s.All()
	assert.Len(t, all, 2)
}
