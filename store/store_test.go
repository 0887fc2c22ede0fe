package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventuary/pipeline/models"
)

func TestMemoryStoreInsertThenMerge(t *testing.T) {
	s := NewMemoryStore()
	result, _, needsReembed, err := s.Insert(&models.Event{Fingerprint: "fp1", Title: "Jazz Night"})
	require.NoError(t, err)
	assert.Equal(t, models.InsertResultInserted, result)
	assert.False(t, needsReembed)

	result, merged, needsReembed, err := s.Insert(&models.Event{Fingerprint: "fp1", Title: "Jazz Night", VenueName: "Blue Room"})
	require.NoError(t, err)
	assert.Equal(t, models.InsertResultMerged, result)
	assert.Equal(t, "Blue Room", merged.VenueName)
	assert.True(t, needsReembed)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStoreRejectsMissingFingerprint(t *testing.T) {
	s := NewMemoryStore()
	_, _, _, err := s.Insert(&models.Event{Title: "No fingerprint"})
	assert.Error(t, err)
}

func TestMemoryStoreGet(t *testing.T) {
	s := NewMemoryStore()
	_, _, _, _ = s.Insert(&models.Event{Fingerprint: "fp1", Title: "Jazz Night"})
	ev, ok, err := s.Get("fp1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Jazz Night", ev.Title)

	_, ok, err = s.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
