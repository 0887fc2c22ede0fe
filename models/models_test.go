package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertResultString(t *testing.T) {
	assert.Equal(t, "inserted", InsertResultInserted.String())
	assert.Equal(t, "merged", InsertResultMerged.String())
	assert.Equal(t, "duplicate_race", InsertResultDuplicateRace.String())
	assert.Equal(t, "unknown", InsertResult(99).String())
}

func TestStageErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := NewStageError("item-1", StageExtract, base)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "extract: boom", err.Error())
}
