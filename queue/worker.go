package queue

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/eventuary/pipeline/models"
)

// RetryPolicy controls the exponential backoff with jitter applied between
// RecordFailure retries.
type RetryPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// BackoffFor returns the jittered delay before attempt number n (1-indexed)
// is retried.
func (p RetryPolicy) BackoffFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	max := p.MaxDelay
	if max <= 0 {
		max = 5 * time.Second
	}
	delay := base << uint(attempt-1)
	if delay <= 0 || delay > max {
		delay = max
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay/2 + jitter
}

// Handler processes one claimed item for a stage and returns the stage it
// should advance to next.
type Handler func(ctx context.Context, item *models.QueueItem) (models.Stage, error)

// Worker repeatedly claims items for Stage and runs Handle on them until ctx
// is cancelled, recording a backoff-scheduled failure whenever a handler
// errors.
type Worker struct {
	Queue    *Queue
	Stage    models.Stage
	ID       string
	Handle   Handler
	Retry    RetryPolicy
	IdleWait time.Duration
	// BatchSize is how many items this worker claims per poll via
	// claim_for_stage(stage, worker_id, limit); each claimed item is still
	// run through Handle sequentially. Defaults to 1.
	BatchSize int
	// Wake, when non-nil, cuts an idle wait short: the coordinator's
	// broadcaster signals it whenever new work is minted, so an idle worker
	// re-polls immediately instead of sleeping out its full IdleWait.
	Wake <-chan struct{}
}

// Run blocks until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	idle := w.IdleWait
	if idle <= 0 {
		idle = 50 * time.Millisecond
	}
	batch := w.BatchSize
	if batch <= 0 {
		batch = 1
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		items, ok := w.Queue.ClaimForStage(w.Stage, w.ID, batch)
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-w.Wake:
			case <-time.After(idle):
			}
			continue
		}
		for _, item := range items {
			next, err := w.Handle(ctx, item)
			if err != nil {
				level := models.FailureTransient
				if errors.Is(err, models.ErrPermanentFailure) {
					level = models.FailurePermanent
				}
				backoff := w.Retry.BackoffFor(item.Attempts + 1)
				_ = w.Queue.RecordFailure(item.ID, level, err.Error(), backoff)
				continue
			}
			_ = w.Queue.AdvanceStage(item.ID, next)
		}
	}
}
