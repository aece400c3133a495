package jobs

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Niabag/Plublista-sub000/internal/ayrshare"
	"github.com/Niabag/Plublista-sub000/internal/classifier"
	"github.com/Niabag/Plublista-sub000/internal/content"
	"github.com/Niabag/Plublista-sub000/internal/credits"
	"github.com/Niabag/Plublista-sub000/internal/logger"
	"github.com/Niabag/Plublista-sub000/internal/telemetry"
)

const (
	aggregatorURLTTL       = 2 * time.Hour
	aggregatorCostPerPost  = 0.02
	videoTitleLimit        = 100
	defaultVideoTitle      = "Video"
	defaultPlatformFailure = "Publishing failed"
)

var ErrEmptyGroup = errors.New("aggregator job has no publish jobs")

// PublishAggregated sends a content item to every platform of the group in
// one aggregator call and records the outcome per platform. Rows that already
// settled on an earlier delivery are not sent again.
func (p *Processor) PublishAggregated(ctx context.Context, job AggregatorPublishJob) error {
	if len(job.PublishJobIDs) == 0 {
		return classifier.PermanentPublish(ErrEmptyGroup)
	}
	log := p.log.With(logger.UserID(job.UserID), logger.ContentItemID(job.ContentItemID))

	rows, err := p.Store.GetPublishJobs(ctx, job.PublishJobIDs)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return classifier.PermanentPublish(ErrEmptyGroup)
	}
	rows, published := openRows(rows)
	if len(rows) == 0 {
		return p.settleGroup(ctx, log, job, published)
	}

	err = p.Ledger.Charge(ctx, credits.Charge{
		ID:         job.ChargeID,
		UserID:     job.UserID,
		Operation:  credits.PublishAyrshare,
		Multiplier: len(job.PublishJobIDs),
	})
	if err != nil {
		if errors.Is(err, credits.ErrQuotaExceeded) || errors.Is(err, credits.ErrUserNotFound) {
			return classifier.PermanentPublish(err)
		}
		return err
	}

	ids := make([]uuid.UUID, len(rows))
	platforms := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
		platforms[i] = string(r.Platform)
	}
	if err := p.Store.MarkPublishing(ctx, ids...); err != nil {
		return err
	}
	item, err := p.Store.GetContent(ctx, job.UserID, job.ContentItemID)
	if err != nil {
		return permanentIfMissing(err)
	}
	user, err := p.Store.GetUser(ctx, job.UserID)
	if err != nil {
		return permanentIfMissing(err)
	}
	profileKey, err := p.Profiles.Key(ctx, user)
	if err != nil {
		return err
	}

	mediaURLs, err := p.aggregatorMedia(ctx, item)
	if err != nil {
		return err
	}

	req := ayrshare.PostRequest{
		Post:          item.PublishCaption(),
		Platforms:     platforms,
		MediaURLs:     mediaURLs,
		ShortsYouTube: item.Format == content.FormatPortrait && slices.Contains(platforms, string(content.PlatformYouTube)),
	}
	if item.Type == content.TypeReel {
		req.VideoTitle = videoTitle(item.Caption)
	}

	resp, err := p.Aggregator.Publish(ctx, profileKey, req)
	if err != nil {
		return err
	}

	results := make(map[string]ayrshare.PlatformResult, len(resp.PostIDs))
	for _, r := range resp.PostIDs {
		results[r.Platform] = r
	}

	succeeded := published
	now := p.now()
	for _, row := range rows {
		r, ok := results[string(row.Platform)]
		if ok && r.Succeeded() {
			succeeded++
			var url *string
			if r.PostURL != "" {
				url = &r.PostURL
			}
			if err := p.Store.MarkPublished(ctx, row.ID, url, now); err != nil {
				return err
			}
			continue
		}
		msg := r.Error
		if msg == "" {
			msg = defaultPlatformFailure
		}
		if err := p.Store.RecordFailure(ctx, []uuid.UUID{row.ID}, content.JobFailure{
			Status:  content.JobFailed,
			Message: msg,
			Code:    content.ErrorCodeAggregator,
		}); err != nil {
			return err
		}
		log.WarnContext(ctx, "aggregator platform failed", logger.Platform(string(row.Platform)), slog.String("reason", msg))
	}

	status := content.StatusPublished
	if succeeded == 0 {
		status = content.StatusFailed
	}
	if err := p.Store.SetContentStatus(ctx, job.ContentItemID, status); err != nil {
		return err
	}
	if succeeded == 0 {
		p.restore(ctx, job.ChargeID)
	}

	p.Costs.LogCost(ctx, job.UserID, telemetry.ServiceAyrshare, "POST /post", aggregatorCostPerPost*float64(len(rows)))

	log.InfoContext(ctx, "aggregator publish complete",
		slog.Int("succeeded", succeeded),
		slog.Int("total", len(job.PublishJobIDs)),
	)
	return nil
}

// openRows drops rows that already reached a terminal status and counts the
// published ones among them.
func openRows(rows []content.PublishJob) ([]content.PublishJob, int) {
	pending := make([]content.PublishJob, 0, len(rows))
	published := 0
	for _, r := range rows {
		switch r.Status {
		case content.JobPublished:
			published++
		case content.JobFailed:
		default:
			pending = append(pending, r)
		}
	}
	return pending, published
}

// settleGroup finishes a redelivered group whose rows are all terminal. The
// platforms are not called again; only the content status is brought in line.
func (p *Processor) settleGroup(ctx context.Context, log *slog.Logger, job AggregatorPublishJob, published int) error {
	status := content.StatusPublished
	if published == 0 {
		status = content.StatusFailed
	}
	if err := p.Store.SetContentStatus(ctx, job.ContentItemID, status); err != nil {
		return err
	}
	if published == 0 {
		p.restore(ctx, job.ChargeID)
	}
	log.InfoContext(ctx, "aggregator group already settled", slog.Int("published", published))
	return nil
}

// aggregatorMedia presigns the media of item. A rendered reel is sent alone.
func (p *Processor) aggregatorMedia(ctx context.Context, item *content.Item) ([]string, error) {
	if item.Type == content.TypeReel && item.GeneratedMediaKey != nil {
		u, err := p.Objects.PresignGet(ctx, *item.GeneratedMediaKey, aggregatorURLTTL)
		if err != nil {
			return nil, err
		}
		return []string{u}, nil
	}
	return p.presignAll(ctx, item.MediaKeys, aggregatorURLTTL)
}

func videoTitle(caption *string) string {
	if caption == nil || *caption == "" {
		return defaultVideoTitle
	}
	r := []rune(*caption)
	if len(r) > videoTitleLimit {
		r = r[:videoTitleLimit]
	}
	return string(r)
}
