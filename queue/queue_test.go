package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventuary/pipeline/models"
)

func TestClaimForStageOrdersByAgeThenPriority(t *testing.T) {
	q := New(DefaultConfig())
	older := q.Enqueue(&models.QueueItem{SourceID: "s1", URL: "https://a", Priority: 1})
	time.Sleep(time.Millisecond)
	newer := q.Enqueue(&models.QueueItem{SourceID: "s1", URL: "https://b", Priority: 10})

	items, ok := q.ClaimForStage(models.StageDiscover, "w1", 1)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, older.ID, items[0].ID, "oldest item claims first regardless of priority")
	assert.False(t, items[0].ProcessingStartedAt.IsZero())

	items2, ok := q.ClaimForStage(models.StageDiscover, "w1", 1)
	require.True(t, ok)
	require.Len(t, items2, 1)
	assert.Equal(t, newer.ID, items2[0].ID)
}

func TestClaimForStageTieBreaksOnPriorityWhenAgeIsEqual(t *testing.T) {
	q := New(DefaultConfig())
	now := time.Now().UTC()
	low := q.Enqueue(&models.QueueItem{SourceID: "s1", URL: "https://a", Priority: 1, CreatedAt: now})
	high := q.Enqueue(&models.QueueItem{SourceID: "s1", URL: "https://b", Priority: 10, CreatedAt: now})

	items, ok := q.ClaimForStage(models.StageDiscover, "w1", 1)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, high.ID, items[0].ID, "equal age falls back to highest priority")

	items2, ok := q.ClaimForStage(models.StageDiscover, "w1", 1)
	require.True(t, ok)
	require.Len(t, items2, 1)
	assert.Equal(t, low.ID, items2[0].ID)
}

func TestClaimForStageRespectsLimit(t *testing.T) {
	q := New(DefaultConfig())
	for i := 0; i < 5; i++ {
		q.Enqueue(&models.QueueItem{SourceID: "s1", URL: "https://a"})
	}

	items, ok := q.ClaimForStage(models.StageDiscover, "w1", 3)
	require.True(t, ok)
	assert.Len(t, items, 3)
	assert.Equal(t, 2, q.Depths()[models.StageDiscover])

	items2, ok := q.ClaimForStage(models.StageDiscover, "w1", 3)
	require.True(t, ok)
	assert.Len(t, items2, 2)
}

func TestAdvanceStageMovesItemAndResetsAttempts(t *testing.T) {
	q := New(DefaultConfig())
	item := q.Enqueue(&models.QueueItem{SourceID: "s1", URL: "https://a"})
	_, _ = q.ClaimForStage(models.StageDiscover, "w1", 1)

	require.NoError(t, q.AdvanceStage(item.ID, models.StageFetch))
	got, ok := q.Get(item.ID)
	require.True(t, ok)
	assert.Equal(t, models.StageFetch, got.Stage)
	assert.Equal(t, 0, got.Attempts)

	claimed, ok := q.ClaimForStage(models.StageFetch, "w1", 1)
	require.True(t, ok)
	require.Len(t, claimed, 1)
	assert.Equal(t, item.ID, claimed[0].ID)
}

func TestRecordFailureMovesToFailedAfterMaxAttempts(t *testing.T) {
	q := New(Config{StallTimeout: time.Minute, DefaultMaxAttempts: 2})
	item := q.Enqueue(&models.QueueItem{SourceID: "s1", URL: "https://a"})
	_, _ = q.ClaimForStage(models.StageDiscover, "w1", 1)

	require.NoError(t, q.RecordFailure(item.ID, models.FailureTransient, "boom", 0))
	got, _ := q.Get(item.ID)
	assert.Equal(t, models.StageDiscover, got.Stage)
	assert.Equal(t, 1, got.Attempts)

	_, _ = q.ClaimForStage(models.StageDiscover, "w1", 1)
	require.NoError(t, q.RecordFailure(item.ID, models.FailureTransient, "boom again", 0))
	got, _ = q.Get(item.ID)
	assert.Equal(t, models.StageFailed, got.Stage)
}

func TestRecordFailurePermanentSkipsRetryBudget(t *testing.T) {
	q := New(Config{StallTimeout: time.Minute, DefaultMaxAttempts: 5})
	item := q.Enqueue(&models.QueueItem{SourceID: "s1", URL: "https://a"})
	_, _ = q.ClaimForStage(models.StageDiscover, "w1", 1)

	require.NoError(t, q.RecordFailure(item.ID, models.FailurePermanent, "gone for good", 0))
	got, _ := q.Get(item.ID)
	assert.Equal(t, models.StageFailed, got.Stage)
	assert.Equal(t, 0, got.Attempts, "a permanent failure does not consume retry attempts")
	assert.Equal(t, "gone for good", got.LastError)
}

func TestReapStalledReturnsClaimedItems(t *testing.T) {
	q := New(Config{StallTimeout: 10 * time.Millisecond, DefaultMaxAttempts: 3})
	item := q.Enqueue(&models.QueueItem{SourceID: "s1", URL: "https://a"})
	_, _ = q.ClaimForStage(models.StageDiscover, "w1", 1)

	time.Sleep(20 * time.Millisecond)
	reaped := q.ReapStalled()
	assert.Equal(t, 1, reaped)

	claimed, ok := q.ClaimForStage(models.StageDiscover, "w2", 1)
	require.True(t, ok)
	require.Len(t, claimed, 1)
	assert.Equal(t, item.ID, claimed[0].ID)
}

func TestWorkerRunAdvancesItemsUntilContextCancelled(t *testing.T) {
	q := New(DefaultConfig())
	q.Enqueue(&models.QueueItem{SourceID: "s1", URL: "https://a"})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	w := &Worker{Queue: q, Stage: models.StageDiscover, ID: "w1", Retry: DefaultRetryPolicy(), Handle: func(ctx context.Context, item *models.QueueItem) (models.Stage, error) {
		return models.StageFetch, nil
	}}
	go func() { w.Run(ctx); close(done) }()
	<-done

	depths := q.Depths()
	assert.Equal(t, 1, depths[models.StageFetch])
}
