package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Niabag/Plublista-sub000/internal/content"
)

const jobColumns = `
	id, user_id, content_item_id, platform, status,
	published_url, error_message, error_code, attempt_count,
	scheduled_at, published_at, created_at, updated_at`

func scanJob(row pgx.CollectableRow) (content.PublishJob, error) {
	var (
		j                content.PublishJob
		platform, status string
	)
	err := row.Scan(
		&j.ID, &j.UserID, &j.ContentItemID, &platform, &status,
		&j.PublishedURL, &j.ErrorMessage, &j.ErrorCode, &j.AttemptCount,
		&j.ScheduledAt, &j.PublishedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	j.Platform = content.Platform(platform)
	j.Status = content.JobStatus(status)
	return j, err
}

func (s *Store) collectJobs(ctx context.Context, what, sql string, args ...any) ([]content.PublishJob, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	jobs, err := pgx.CollectRows(rows, scanJob)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return jobs, nil
}

// CreatePublishJobs inserts one pending row per platform and returns them in
// platform order.
func (s *Store) CreatePublishJobs(ctx context.Context, userID, contentItemID uuid.UUID, platforms []content.Platform, scheduledAt *time.Time) ([]content.PublishJob, error) {
	if len(platforms) == 0 {
		return nil, ErrNoJobs
	}
	jobs := make([]content.PublishJob, 0, len(platforms))
	err := s.InTx(ctx, func(tx *Store) error {
		for _, p := range platforms {
			rows, err := tx.db.Query(ctx, `
				INSERT INTO publish_jobs (id, user_id, content_item_id, platform, status, scheduled_at)
				VALUES ($1, $2, $3, $4, 'pending', $5)
				RETURNING `+jobColumns,
				uuid.New(), userID, contentItemID, string(p), scheduledAt)
			if err != nil {
				return err
			}
			j, err := pgx.CollectExactlyOneRow(rows, scanJob)
			if err != nil {
				return err
			}
			jobs = append(jobs, j)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create publish jobs: %w", err)
	}
	return jobs, nil
}

// GetPublishJobs loads the given rows in the order of ids. Missing rows are
// skipped.
func (s *Store) GetPublishJobs(ctx context.Context, ids []uuid.UUID) ([]content.PublishJob, error) {
	jobs, err := s.collectJobs(ctx, "get publish jobs",
		`SELECT `+jobColumns+` FROM publish_jobs WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]content.PublishJob, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}
	ordered := make([]content.PublishJob, 0, len(jobs))
	for _, id := range ids {
		if j, ok := byID[id]; ok {
			ordered = append(ordered, j)
		}
	}
	return ordered, nil
}

// MarkPublishing moves rows that are not terminal to publishing.
func (s *Store) MarkPublishing(ctx context.Context, ids ...uuid.UUID) error {
	return s.exec(ctx, nil, `
		UPDATE publish_jobs SET status = 'publishing', updated_at = now()
		WHERE id = ANY($1) AND status NOT IN ('published', 'failed')`, ids)
}

func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID, url *string, at time.Time) error {
	return s.exec(ctx, nil, `
		UPDATE publish_jobs SET
			status = 'published', published_url = $2, published_at = $3,
			error_message = NULL, error_code = NULL, updated_at = now()
		WHERE id = $1 AND status <> 'published'`, id, url, at)
}

// RecordFailure writes the failure to every row of the group that is not
// terminal. attempt_count never decreases.
func (s *Store) RecordFailure(ctx context.Context, ids []uuid.UUID, f content.JobFailure) error {
	var code *string
	if f.Code != "" {
		code = &f.Code
	}
	return s.exec(ctx, nil, `
		UPDATE publish_jobs SET
			status = $2,
			error_message = $3,
			error_code = COALESCE($4, error_code),
			attempt_count = GREATEST(attempt_count, $5),
			updated_at = now()
		WHERE id = ANY($1) AND status NOT IN ('published', 'failed')`,
		ids, string(f.Status), f.Message, code, f.AttemptCount)
}

// ListDueJobs returns pending scheduled rows whose time has come, oldest first.
func (s *Store) ListDueJobs(ctx context.Context, now time.Time) ([]content.PublishJob, error) {
	return s.collectJobs(ctx, "list due jobs", `
		SELECT `+jobColumns+`
		FROM publish_jobs
		WHERE status = 'pending' AND scheduled_at IS NOT NULL AND scheduled_at <= $1
		ORDER BY scheduled_at, created_at`, now)
}

// LatestPublishJobs returns the newest rows of a content item.
func (s *Store) LatestPublishJobs(ctx context.Context, userID, contentItemID uuid.UUID, limit int) ([]content.PublishJob, error) {
	return s.collectJobs(ctx, "latest publish jobs", `
		SELECT `+jobColumns+`
		FROM publish_jobs
		WHERE content_item_id = $1 AND user_id = $2
		ORDER BY created_at DESC
		LIMIT $3`, contentItemID, userID, limit)
}

// DeleteScheduledJobs removes pending rows that carry a schedule.
func (s *Store) DeleteScheduledJobs(ctx context.Context, userID, contentItemID uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM publish_jobs
		WHERE content_item_id = $1 AND user_id = $2
			AND status = 'pending' AND scheduled_at IS NOT NULL`, contentItemID, userID)
	if err != nil {
		return 0, fmt.Errorf("delete scheduled jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
