package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Niabag/Plublista-sub000/internal/content"
)

const contentColumns = `
	id, user_id, type, title, status,
	COALESCE(style, ''), COALESCE(format, ''), COALESCE(duration, 0),
	media_urls, generated_media_url, caption, hashtags,
	hook_text, cta_text, music_url, music_prompt,
	scheduled_at, created_at, updated_at`

func scanContent(row pgx.Row) (*content.Item, error) {
	var (
		it                         content.Item
		typ, status, style, format string
	)
	err := row.Scan(
		&it.ID, &it.UserID, &typ, &it.Title, &status,
		&style, &format, &it.Duration,
		&it.MediaKeys, &it.GeneratedMediaKey, &it.Caption, &it.Hashtags,
		&it.HookText, &it.CTAText, &it.MusicURL, &it.MusicPrompt,
		&it.ScheduledAt, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	it.Type = content.Type(typ)
	it.Status = content.Status(status)
	it.Style = style
	it.Format = content.Format(format)
	return &it, nil
}

// GetContent loads an item owned by userID.
func (s *Store) GetContent(ctx context.Context, userID, id uuid.UUID) (*content.Item, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+contentColumns+` FROM content_items WHERE id = $1 AND user_id = $2`, id, userID)
	it, err := scanContent(row)
	if err != nil {
		return nil, notFoundOr(err, ErrContentNotFound, "get content item")
	}
	return it, nil
}

func (s *Store) SetContentStatus(ctx context.Context, id uuid.UUID, status content.Status) error {
	return s.exec(ctx, ErrContentNotFound,
		`UPDATE content_items SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
}

// ScheduleContent flips the item to scheduled and records the publish time.
// A nil at is used by immediate publishing.
func (s *Store) ScheduleContent(ctx context.Context, id uuid.UUID, at *time.Time) error {
	return s.exec(ctx, ErrContentNotFound,
		`UPDATE content_items SET status = 'scheduled', scheduled_at = $2, updated_at = now() WHERE id = $1`, id, at)
}

// UnscheduleContent returns a scheduled item to draft.
func (s *Store) UnscheduleContent(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, ErrContentNotFound,
		`UPDATE content_items SET status = 'draft', scheduled_at = NULL, updated_at = now() WHERE id = $1`, id)
}

func (s *Store) UpdateMediaKeys(ctx context.Context, id uuid.UUID, keys []string) error {
	if keys == nil {
		keys = []string{}
	}
	return s.exec(ctx, ErrContentNotFound,
		`UPDATE content_items SET media_urls = $2, updated_at = now() WHERE id = $1`, id, keys)
}

// SaveRender stores the render output and copy, and moves the item back to draft.
// Nil copy fields keep what the item already had.
func (s *Store) SaveRender(ctx context.Context, id uuid.UUID, r content.RenderResult) error {
	var hashtags any
	if len(r.Hashtags) > 0 {
		hashtags = r.Hashtags
	}
	return s.exec(ctx, ErrContentNotFound, `
		UPDATE content_items SET
			generated_media_url = $2,
			music_url = COALESCE($3, music_url),
			caption = COALESCE($4, caption),
			hashtags = COALESCE($5::jsonb, hashtags),
			hook_text = COALESCE($6, hook_text),
			cta_text = COALESCE($7, cta_text),
			status = 'draft',
			updated_at = now()
		WHERE id = $1`,
		id, r.GeneratedMediaKey, r.MusicURL, r.Caption, hashtags, r.HookText, r.CTAText)
}

// ListStaleSources returns rendered items whose source media is still stored
// and that have not changed since before.
func (s *Store) ListStaleSources(ctx context.Context, before time.Time) ([]content.Item, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, media_urls
		FROM content_items
		WHERE generated_media_url IS NOT NULL
			AND jsonb_array_length(media_urls) > 0
			AND updated_at < $1
		ORDER BY updated_at`, before)
	if err != nil {
		return nil, fmt.Errorf("list stale sources: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (content.Item, error) {
		var it content.Item
		err := row.Scan(&it.ID, &it.UserID, &it.MediaKeys)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("list stale sources: %w", err)
	}
	return items, nil
}
