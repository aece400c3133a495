package jobs

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/Niabag/Plublista-sub000/internal/content"
	"github.com/Niabag/Plublista-sub000/internal/logger"
)

// chargeNamespace scopes charge ids derived from publish job ids.
var chargeNamespace = uuid.MustParse("6f1d3c2a-5b7e-4f0a-9c8d-2e4b6a8f0c13")

// GroupChargeID derives a stable charge id from a group of publish jobs, so
// dispatching the same group twice charges it once.
func GroupChargeID(ids []uuid.UUID) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = id.String()
	}
	slices.Sort(s)
	return uuid.NewSHA1(chargeNamespace, []byte(strings.Join(s, ","))).String()
}

// CheckSchedules dispatches scheduled publish jobs that are due, one queue
// job per content item. A failing group is logged and skipped.
func (p *Processor) CheckSchedules(ctx context.Context) error {
	due, err := p.Store.ListDueJobs(ctx, p.now())
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	var order []uuid.UUID
	groups := make(map[uuid.UUID][]content.PublishJob)
	for _, j := range due {
		if _, ok := groups[j.ContentItemID]; !ok {
			order = append(order, j.ContentItemID)
		}
		groups[j.ContentItemID] = append(groups[j.ContentItemID], j)
	}

	for _, id := range order {
		group := groups[id]
		if err := p.dispatch(ctx, group); err != nil {
			p.log.ErrorContext(ctx, "dispatch scheduled jobs",
				logger.UserID(group[0].UserID),
				logger.ContentItemID(id),
				logger.Error(err))
		}
	}
	return nil
}

// dispatch routes a single Instagram job of a free-tier user to the direct
// queue and everything else to the aggregator.
func (p *Processor) dispatch(ctx context.Context, group []content.PublishJob) error {
	first := group[0]

	if len(group) == 1 && first.Platform == content.PlatformInstagram {
		user, err := p.Store.GetUser(ctx, first.UserID)
		if err != nil {
			return err
		}
		if user.Tier == content.TierFree {
			return p.Enqueuer.Enqueue(ctx, DirectPublishJob{
				PublishJobID:  first.ID,
				UserID:        first.UserID,
				ContentItemID: first.ContentItemID,
			}, Options(QueuePublish)...)
		}
	}

	ids := make([]uuid.UUID, len(group))
	for i, j := range group {
		ids[i] = j.ID
	}
	return p.Enqueuer.Enqueue(ctx, AggregatorPublishJob{
		PublishJobIDs: ids,
		UserID:        first.UserID,
		ContentItemID: first.ContentItemID,
		ChargeID:      GroupChargeID(ids),
	}, Options(QueueAggregator)...)
}
