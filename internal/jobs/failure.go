package jobs

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Niabag/Plublista-sub000/internal/classifier"
	"github.com/Niabag/Plublista-sub000/internal/content"
	"github.com/Niabag/Plublista-sub000/internal/logger"
	"github.com/Niabag/Plublista-sub000/pkg/queue"
)

// DirectFailed applies the failure policy to a direct publish attempt.
func (p *Processor) DirectFailed(ctx context.Context, job DirectPublishJob, a queue.Attempt, cause error) queue.Outcome {
	return p.publishFailed(ctx, []uuid.UUID{job.PublishJobID}, job.UserID, job.ContentItemID, "", a, cause)
}

// AggregatedFailed applies the failure policy to an aggregator attempt and
// restores the group charge on terminal failure.
func (p *Processor) AggregatedFailed(ctx context.Context, job AggregatorPublishJob, a queue.Attempt, cause error) queue.Outcome {
	return p.publishFailed(ctx, job.PublishJobIDs, job.UserID, job.ContentItemID, job.ChargeID, a, cause)
}

// publishFailed records the failure on every row of the group. A permanent
// or last failure is terminal: rows and content are failed, the charge is
// restored and a permanent failure skips the remaining attempts. Anything
// else leaves the group retrying.
func (p *Processor) publishFailed(ctx context.Context, ids []uuid.UUID, userID, contentItemID uuid.UUID, chargeID string, a queue.Attempt, cause error) queue.Outcome {
	category := classifier.Classify(cause)
	permanent := category == classifier.Permanent
	terminal := permanent || a.Exhausted()

	log := p.log.With(
		logger.UserID(userID),
		logger.ContentItemID(contentItemID),
		logger.Attempt(a.Number, a.MaxAttempts),
	)
	log.ErrorContext(ctx, "publish attempt failed", logger.Error(cause), slog.String("category", string(category)))

	f := content.JobFailure{
		Status:       content.JobRetrying,
		Message:      cause.Error(),
		AttemptCount: a.Number,
	}
	if terminal {
		f.Status = content.JobFailed
	}
	if category == classifier.Format {
		f.Code = content.ErrorCodeMediaFormat
	}
	if err := p.Store.RecordFailure(ctx, ids, f); err != nil {
		log.ErrorContext(ctx, "record publish failure", logger.Error(err))
	}

	if !terminal {
		p.setStatus(ctx, contentItemID, content.StatusRetrying)
		return queue.Retry
	}

	p.setStatus(ctx, contentItemID, content.StatusFailed)
	if chargeID != "" {
		p.restore(ctx, chargeID)
	}
	log.ErrorContext(ctx, "publish failed permanently")

	if permanent && !a.Exhausted() {
		return queue.Discard
	}
	return queue.Retry
}

// RenderFailed fails the item and restores the createReel charge once the
// render cannot succeed. Retryable failures leave the item generating.
func (p *Processor) RenderFailed(ctx context.Context, job RenderJob, a queue.Attempt, cause error) queue.Outcome {
	permanent := classifier.Classify(cause) == classifier.Permanent

	log := p.log.With(
		logger.UserID(job.UserID),
		logger.ContentItemID(job.ContentItemID),
		logger.Attempt(a.Number, a.MaxAttempts),
	)
	log.ErrorContext(ctx, "render attempt failed", logger.Error(cause))

	if !permanent && !a.Exhausted() {
		return queue.Retry
	}

	p.setStatus(ctx, job.ContentItemID, content.StatusFailed)
	p.restore(ctx, job.ChargeID)
	log.ErrorContext(ctx, "render failed permanently, credits restored")

	if permanent && !a.Exhausted() {
		return queue.Discard
	}
	return queue.Retry
}

func (p *Processor) setStatus(ctx context.Context, id uuid.UUID, status content.Status) {
	if err := p.Store.SetContentStatus(ctx, id, status); err != nil {
		p.log.ErrorContext(ctx, "update content status",
			logger.ContentItemID(id), logger.Error(err))
	}
}

func (p *Processor) restore(ctx context.Context, chargeID string) {
	if chargeID == "" {
		return
	}
	if err := p.Ledger.Restore(ctx, chargeID); err != nil {
		p.log.ErrorContext(ctx, "restore credits", logger.Error(err))
	}
}
