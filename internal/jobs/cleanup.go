package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/Niabag/Plublista-sub000/internal/logger"
)

// SourceRetention is how long source media outlives a finished render.
const SourceRetention = 6 * time.Hour

// SweepSources deletes the source media of rendered items that have not
// changed for SourceRetention. Keys are cleared only when every object of an
// item was deleted, so a partial sweep is retried on the next run.
func (p *Processor) SweepSources(ctx context.Context) error {
	items, err := p.Store.ListStaleSources(ctx, p.now().Add(-SourceRetention))
	if err != nil {
		return err
	}

	for _, item := range items {
		deleted := 0
		for _, key := range item.MediaKeys {
			if err := p.Objects.Delete(ctx, key); err != nil {
				p.log.WarnContext(ctx, "delete source media",
					logger.ContentItemID(item.ID), slog.String("key", key), logger.Error(err))
				continue
			}
			deleted++
		}

		if deleted < len(item.MediaKeys) {
			continue
		}
		if err := p.Store.UpdateMediaKeys(ctx, item.ID, nil); err != nil {
			p.log.ErrorContext(ctx, "clear source media keys", logger.ContentItemID(item.ID), logger.Error(err))
			continue
		}
		p.log.InfoContext(ctx, "source media swept", logger.ContentItemID(item.ID), slog.Int("deleted", deleted))
	}
	return nil
}
