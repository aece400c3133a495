package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Niabag/Plublista-sub000/internal/classifier"
	"github.com/Niabag/Plublista-sub000/internal/content"
	"github.com/Niabag/Plublista-sub000/internal/instagram"
	"github.com/Niabag/Plublista-sub000/internal/logger"
	"github.com/Niabag/Plublista-sub000/internal/store"
	"github.com/Niabag/Plublista-sub000/internal/telemetry"
)

const directURLTTL = time.Hour

var ErrNoMedia = errors.New("content item has no media")

// PublishDirect publishes one content item to the user's Instagram account
// through the container protocol.
func (p *Processor) PublishDirect(ctx context.Context, job DirectPublishJob) error {
	log := p.log.With(
		logger.UserID(job.UserID),
		logger.ContentItemID(job.ContentItemID),
		logger.PublishJobID(job.PublishJobID),
	)

	rows, err := p.Store.GetPublishJobs(ctx, []uuid.UUID{job.PublishJobID})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return classifier.PermanentPublish(store.ErrJobNotFound)
	}
	if rows[0].Status.Terminal() {
		return p.settleDirect(ctx, log, job, rows[0].Status)
	}

	if err := p.Store.MarkPublishing(ctx, job.PublishJobID); err != nil {
		return err
	}

	item, err := p.Store.GetContent(ctx, job.UserID, job.ContentItemID)
	if err != nil {
		return permanentIfMissing(err)
	}
	conn, err := p.Store.GetConnection(ctx, job.UserID, content.PlatformInstagram)
	if err != nil {
		return permanentIfMissing(err)
	}
	token, err := p.Tokens.Decrypt(conn.AccessToken)
	if err != nil {
		return classifier.PermanentPublish(fmt.Errorf("decrypt instagram token: %w", err))
	}
	user, err := p.Store.GetUser(ctx, job.UserID)
	if err != nil {
		return permanentIfMissing(err)
	}
	if len(item.MediaKeys) == 0 && item.GeneratedMediaKey == nil {
		return classifier.PermanentPublish(ErrNoMedia)
	}

	keys := item.MediaKeys
	if user.Tier == content.TierFree && item.Type.IsImage() {
		marked, err := p.Media.WatermarkAll(ctx, keys, job.UserID, job.ContentItemID)
		if err != nil {
			log.WarnContext(ctx, "watermark failed, publishing originals", logger.Error(err))
		} else {
			keys = marked
		}
	}

	caption := item.PublishCaption()
	containerID, err := p.createContainer(ctx, token, conn.PlatformUserID, item, keys, caption)
	if err == nil {
		err = p.Instagram.WaitUntilReady(ctx, token, containerID)
	}
	if err != nil {
		return p.remediate(ctx, item, err)
	}

	mediaID, err := p.Instagram.Publish(ctx, token, conn.PlatformUserID, containerID)
	if err != nil {
		return err
	}

	permalink, err := p.Instagram.Permalink(ctx, token, mediaID)
	if err != nil {
		log.WarnContext(ctx, "permalink lookup failed", logger.Error(err))
		permalink = instagram.FallbackPermalink(mediaID)
	}

	if err := p.Store.MarkPublished(ctx, job.PublishJobID, &permalink, p.now()); err != nil {
		return err
	}
	if err := p.Store.SetContentStatus(ctx, job.ContentItemID, content.StatusPublished); err != nil {
		return err
	}
	p.Costs.LogCost(ctx, job.UserID, telemetry.ServiceInstagram, "media_publish", 0)

	log.InfoContext(ctx, "published to instagram", slog.String("permalink", permalink))
	return nil
}

// settleDirect finishes a redelivered job whose row is already terminal
// without calling Instagram again.
func (p *Processor) settleDirect(ctx context.Context, log *slog.Logger, job DirectPublishJob, status content.JobStatus) error {
	itemStatus := content.StatusFailed
	if status == content.JobPublished {
		itemStatus = content.StatusPublished
	}
	if err := p.Store.SetContentStatus(ctx, job.ContentItemID, itemStatus); err != nil {
		return err
	}
	log.InfoContext(ctx, "publish job already settled", slog.String("status", string(status)))
	return nil
}

func (p *Processor) createContainer(ctx context.Context, token, igUserID string, item *content.Item, keys []string, caption string) (string, error) {
	switch item.Type {
	case content.TypeReel:
		key := ""
		if item.GeneratedMediaKey != nil {
			key = *item.GeneratedMediaKey
		} else if len(keys) > 0 {
			key = keys[0]
		}
		if key == "" {
			return "", classifier.PermanentPublish(ErrNoMedia)
		}
		url, err := p.Objects.PresignGet(ctx, key, directURLTTL)
		if err != nil {
			return "", err
		}
		return p.Instagram.CreateContainer(ctx, token, igUserID, instagram.ContainerParams{
			VideoURL:  url,
			Caption:   caption,
			MediaType: instagram.MediaReels,
		})

	case content.TypeCarousel:
		urls, err := p.presignAll(ctx, keys, directURLTTL)
		if err != nil {
			return "", err
		}
		children := make([]string, 0, len(urls))
		for _, u := range urls {
			id, err := p.Instagram.CreateContainer(ctx, token, igUserID, instagram.ContainerParams{
				ImageURL:       u,
				IsCarouselItem: true,
			})
			if err != nil {
				return "", err
			}
			children = append(children, id)
		}
		return p.Instagram.CreateContainer(ctx, token, igUserID, instagram.ContainerParams{
			MediaType: instagram.MediaCarousel,
			Children:  children,
			Caption:   caption,
		})

	default:
		if len(keys) == 0 {
			return "", classifier.PermanentPublish(ErrNoMedia)
		}
		url, err := p.Objects.PresignGet(ctx, keys[0], directURLTTL)
		if err != nil {
			return "", err
		}
		return p.Instagram.CreateContainer(ctx, token, igUserID, instagram.ContainerParams{
			ImageURL: url,
			Caption:  caption,
		})
	}
}

// remediate reacts to a container failure. Media the platform refused is
// converted and the new keys are stored for the next attempt; permanent
// failures are marked so the queue stops retrying. The original error is
// always returned.
func (p *Processor) remediate(ctx context.Context, item *content.Item, err error) error {
	switch classifier.Classify(err) {
	case classifier.Format:
		converted, convErr := p.Media.ConvertForPlatform(ctx, item.UserID, item.ID, item.MediaKeys)
		if convErr != nil {
			p.log.ErrorContext(ctx, "media conversion failed",
				logger.ContentItemID(item.ID), logger.Error(convErr))
			return err
		}
		if len(converted) > 0 {
			keys := make([]string, len(item.MediaKeys))
			for i, k := range item.MediaKeys {
				if c, ok := converted[k]; ok {
					k = c
				}
				keys[i] = k
			}
			if uerr := p.Store.UpdateMediaKeys(ctx, item.ID, keys); uerr != nil {
				p.log.ErrorContext(ctx, "store converted media keys",
					logger.ContentItemID(item.ID), logger.Error(uerr))
			}
		}
		return err
	case classifier.Permanent:
		return classifier.PermanentPublish(err)
	default:
		return err
	}
}

func (p *Processor) presignAll(ctx context.Context, keys []string, ttl time.Duration) ([]string, error) {
	urls := make([]string, len(keys))
	for i, k := range keys {
		u, err := p.Objects.PresignGet(ctx, k, ttl)
		if err != nil {
			return nil, err
		}
		urls[i] = u
	}
	return urls, nil
}

// permanentIfMissing turns lookups of rows that are gone into permanent
// failures; retrying cannot bring them back.
func permanentIfMissing(err error) error {
	if errors.Is(err, store.ErrContentNotFound) ||
		errors.Is(err, store.ErrUserNotFound) ||
		errors.Is(err, store.ErrConnectionNotFound) ||
		errors.Is(err, store.ErrJobNotFound) {
		return classifier.PermanentPublish(err)
	}
	return err
}
