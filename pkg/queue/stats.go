package queue

import "context"

// StatsRepository exposes read-only queue inspection for operators.
type StatsRepository interface {
	Stats(ctx context.Context, queue string) (QueueStats, error)
	ListDead(ctx context.Context, queue string, limit int) ([]*DeadTask, error)
}
