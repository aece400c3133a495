package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis layout under the key prefix:
//
//	task:{id}          hash with the task fields
//	pending:{queue}    zset of task ids scored by ScheduledAt (unix ms)
//	processing:{queue} zset of task ids scored by LockedUntil (unix ms)
//	byname:{name}      set of periodic task ids, pruned lazily
//	dead:{queue}       list of JSON encoded DeadTask, newest first
//	stats:{queue}      hash of completed/failed counters
//	queues             set of every queue name seen
//
// Scripts build keys from the prefix, so the storage expects a single Redis
// node or a cluster hash tag in the prefix.

const (
	deadListLimit       = 1000
	defaultCompletedTTL = 24 * time.Hour
	claimScanLimit      = 50
)

var claimScript = redis.NewScript(`
local prefix = ARGV[1]
local now = ARGV[2]
local lockUntil = ARGV[3]
local workerID = ARGV[4]
local scan = tonumber(ARGV[5])

local best, bestQueue, bestPrio, bestScore
for i = 6, #ARGV do
  local queue = ARGV[i]
  local procKey = prefix .. 'processing:' .. queue
  local pendKey = prefix .. 'pending:' .. queue

  local expired = redis.call('ZRANGEBYSCORE', procKey, '-inf', now)
  for _, id in ipairs(expired) do
    redis.call('ZREM', procKey, id)
    if redis.call('EXISTS', prefix .. 'task:' .. id) == 1 then
      redis.call('HSET', prefix .. 'task:' .. id, 'status', 'pending', 'scheduled_at', now)
      redis.call('HDEL', prefix .. 'task:' .. id, 'locked_until', 'locked_by')
      redis.call('ZADD', pendKey, now, id)
    end
  end

  local due = redis.call('ZRANGEBYSCORE', pendKey, '-inf', now, 'WITHSCORES', 'LIMIT', 0, scan)
  for j = 1, #due, 2 do
    local id = due[j]
    local score = tonumber(due[j + 1])
    local prio = tonumber(redis.call('HGET', prefix .. 'task:' .. id, 'priority') or '0')
    if best == nil or prio > bestPrio or (prio == bestPrio and score < bestScore) then
      best, bestQueue, bestPrio, bestScore = id, queue, prio, score
    end
  end
end

if best == nil then
  return false
end

redis.call('ZREM', prefix .. 'pending:' .. bestQueue, best)
redis.call('ZADD', prefix .. 'processing:' .. bestQueue, lockUntil, best)
redis.call('HSET', prefix .. 'task:' .. best, 'status', 'processing', 'locked_until', lockUntil, 'locked_by', workerID)
return best
`)

var completeScript = redis.NewScript(`
local taskKey = KEYS[1]
local prefix = ARGV[1]
local id = ARGV[2]
local now = ARGV[3]
local ttl = tonumber(ARGV[4])

local status = redis.call('HGET', taskKey, 'status')
if not status then
  return -1
end
if status ~= 'processing' then
  return -2
end

local queue = redis.call('HGET', taskKey, 'queue')
redis.call('ZREM', prefix .. 'processing:' .. queue, id)
redis.call('HSET', taskKey, 'status', 'completed', 'processed_at', now)
redis.call('HDEL', taskKey, 'locked_until', 'locked_by')
redis.call('HINCRBY', prefix .. 'stats:' .. queue, 'completed', 1)
if ttl > 0 then
  redis.call('PEXPIRE', taskKey, ttl)
end
return 1
`)

var failScript = redis.NewScript(`
local taskKey = KEYS[1]
local prefix = ARGV[1]
local id = ARGV[2]
local msg = ARGV[3]
local retryAt = tonumber(ARGV[4])

local status = redis.call('HGET', taskKey, 'status')
if not status then
  return -1
end
if status ~= 'processing' then
  return -2
end

local queue = redis.call('HGET', taskKey, 'queue')
redis.call('ZREM', prefix .. 'processing:' .. queue, id)
redis.call('HINCRBY', taskKey, 'attempts_made', 1)
redis.call('HSET', taskKey, 'error', msg)
redis.call('HDEL', taskKey, 'locked_until', 'locked_by')

if retryAt > 0 then
  redis.call('HSET', taskKey, 'status', 'pending', 'scheduled_at', ARGV[4])
  redis.call('ZADD', prefix .. 'pending:' .. queue, retryAt, id)
else
  redis.call('HSET', taskKey, 'status', 'failed')
  redis.call('HINCRBY', prefix .. 'stats:' .. queue, 'failed', 1)
end
return 1
`)

var extendScript = redis.NewScript(`
local taskKey = KEYS[1]
local prefix = ARGV[1]
local id = ARGV[2]
local lockUntil = ARGV[3]

local status = redis.call('HGET', taskKey, 'status')
if not status then
  return -1
end
if status ~= 'processing' then
  return -2
end

local queue = redis.call('HGET', taskKey, 'queue')
redis.call('HSET', taskKey, 'locked_until', lockUntil)
redis.call('ZADD', prefix .. 'processing:' .. queue, 'XX', lockUntil, id)
return 1
`)

// RedisStorage implements the queue repositories on top of go-redis.
type RedisStorage struct {
	client       redis.UniversalClient
	prefix       string
	completedTTL time.Duration
	now          func() time.Time
}

// RedisStorageOption configures RedisStorage
type RedisStorageOption func(*RedisStorage)

// WithKeyPrefix sets the namespace for all queue keys
func WithKeyPrefix(prefix string) RedisStorageOption {
	return func(s *RedisStorage) {
		if prefix != "" {
			s.prefix = prefix + ":"
		}
	}
}

// WithCompletedTTL sets how long completed tasks stay readable
func WithCompletedTTL(d time.Duration) RedisStorageOption {
	return func(s *RedisStorage) {
		if d > 0 {
			s.completedTTL = d
		}
	}
}

// NewRedisStorage creates a Redis-backed queue storage
func NewRedisStorage(client redis.UniversalClient, opts ...RedisStorageOption) (*RedisStorage, error) {
	if client == nil {
		return nil, ErrRepositoryNil
	}

	s := &RedisStorage{
		client:       client,
		prefix:       "queue:",
		completedTTL: defaultCompletedTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RedisStorage) key(parts ...string) string {
	k := s.prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

func (s *RedisStorage) taskKey(id uuid.UUID) string {
	return s.key("task", id.String())
}

// CreateTask implements EnqueuerRepository and SchedulerRepository
func (s *RedisStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return ErrPayloadNil
	}

	taskKey := s.taskKey(task.ID)
	created, err := s.client.HSetNX(ctx, taskKey, "id", task.ID.String()).Result()
	if err != nil {
		return fmt.Errorf("reserve task %s: %w", task.ID, err)
	}
	if !created {
		return ErrTaskExists
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, taskKey, taskToHash(task))
		pipe.SAdd(ctx, s.key("queues"), task.Queue)
		if task.Status == TaskStatusPending {
			pipe.ZAdd(ctx, s.key("pending", task.Queue), redis.Z{
				Score:  float64(task.ScheduledAt.UnixMilli()),
				Member: task.ID.String(),
			})
		}
		if task.TaskType == TaskTypePeriodic {
			pipe.SAdd(ctx, s.key("byname", task.TaskName), task.ID.String())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store task %s: %w", task.ID, err)
	}
	return nil
}

// GetTask loads a task by id
func (s *RedisStorage) GetTask(ctx context.Context, taskID uuid.UUID) (*Task, error) {
	fields, err := s.client.HGetAll(ctx, s.taskKey(taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}
	if len(fields) == 0 {
		return nil, ErrTaskNotFound
	}
	return taskFromHash(fields)
}

// GetPendingTaskByName implements SchedulerRepository
func (s *RedisStorage) GetPendingTaskByName(ctx context.Context, taskName string) (*Task, error) {
	nameKey := s.key("byname", taskName)
	ids, err := s.client.SMembers(ctx, nameKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list tasks named %q: %w", taskName, err)
	}

	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.client.SRem(ctx, nameKey, raw)
			continue
		}
		task, err := s.GetTask(ctx, id)
		if errors.Is(err, ErrTaskNotFound) {
			s.client.SRem(ctx, nameKey, raw)
			continue
		}
		if err != nil {
			return nil, err
		}
		if task.Status == TaskStatusPending {
			return task, nil
		}
		if task.Status != TaskStatusProcessing {
			s.client.SRem(ctx, nameKey, raw)
		}
	}
	return nil, ErrTaskNotFound
}

// ClaimTask implements WorkerRepository. Expired locks in the requested
// queues are released before the claim.
func (s *RedisStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	if len(queues) == 0 {
		return nil, ErrNoTaskToClaim
	}

	now := s.now()
	args := []any{
		s.prefix,
		now.UnixMilli(),
		now.Add(lockDuration).UnixMilli(),
		workerID.String(),
		claimScanLimit,
	}
	for _, q := range queues {
		args = append(args, q)
	}

	res, err := claimScript.Run(ctx, s.client, []string{s.key("queues")}, args...).Text()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoTaskToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}

	id, err := uuid.Parse(res)
	if err != nil {
		return nil, fmt.Errorf("claimed task id %q: %w", res, err)
	}
	return s.GetTask(ctx, id)
}

// CompleteTask implements WorkerRepository
func (s *RedisStorage) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	code, err := completeScript.Run(ctx, s.client, []string{s.taskKey(taskID)},
		s.prefix, taskID.String(), s.now().UnixMilli(), s.completedTTL.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}
	return scriptResult(code)
}

// FailTask implements WorkerRepository
func (s *RedisStorage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string, retryAt time.Time) error {
	var retryMs int64
	if !retryAt.IsZero() {
		retryMs = retryAt.UnixMilli()
	}

	code, err := failScript.Run(ctx, s.client, []string{s.taskKey(taskID)},
		s.prefix, taskID.String(), errorMsg, retryMs,
	).Int()
	if err != nil {
		return fmt.Errorf("fail task %s: %w", taskID, err)
	}
	return scriptResult(code)
}

// MoveToDLQ implements WorkerRepository
func (s *RedisStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(newDeadTask(task, s.now()))
	if err != nil {
		return fmt.Errorf("encode dead task %s: %w", taskID, err)
	}

	deadKey := s.key("dead", task.Queue)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, deadKey, data)
		pipe.LTrim(ctx, deadKey, 0, deadListLimit-1)
		pipe.ZRem(ctx, s.key("pending", task.Queue), taskID.String())
		pipe.ZRem(ctx, s.key("processing", task.Queue), taskID.String())
		pipe.SRem(ctx, s.key("byname", task.TaskName), taskID.String())
		pipe.Del(ctx, s.taskKey(taskID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("move task %s to dead letter queue: %w", taskID, err)
	}
	return nil
}

// ExtendLock implements WorkerRepository
func (s *RedisStorage) ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	code, err := extendScript.Run(ctx, s.client, []string{s.taskKey(taskID)},
		s.prefix, taskID.String(), s.now().Add(duration).UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("extend lock for task %s: %w", taskID, err)
	}
	return scriptResult(code)
}

// Stats implements StatsRepository
func (s *RedisStorage) Stats(ctx context.Context, queue string) (QueueStats, error) {
	pipe := s.client.Pipeline()
	pending := pipe.ZCard(ctx, s.key("pending", queue))
	processing := pipe.ZCard(ctx, s.key("processing", queue))
	counters := pipe.HGetAll(ctx, s.key("stats", queue))
	dead := pipe.LLen(ctx, s.key("dead", queue))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return QueueStats{}, fmt.Errorf("queue %q stats: %w", queue, err)
	}

	stats := QueueStats{
		Queue:      queue,
		Pending:    pending.Val(),
		Processing: processing.Val(),
		Dead:       dead.Val(),
	}
	stats.Completed, _ = strconv.ParseInt(counters.Val()["completed"], 10, 64)
	stats.Failed, _ = strconv.ParseInt(counters.Val()["failed"], 10, 64)
	return stats, nil
}

// ListDead implements StatsRepository. An empty queue lists every queue.
func (s *RedisStorage) ListDead(ctx context.Context, queue string, limit int) ([]*DeadTask, error) {
	queues := []string{queue}
	if queue == "" {
		var err error
		if queues, err = s.client.SMembers(ctx, s.key("queues")).Result(); err != nil {
			return nil, fmt.Errorf("list queues: %w", err)
		}
	}

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	var out []*DeadTask
	for _, q := range queues {
		items, err := s.client.LRange(ctx, s.key("dead", q), 0, stop).Result()
		if err != nil {
			return nil, fmt.Errorf("list dead tasks in %q: %w", q, err)
		}
		for _, item := range items {
			var d DeadTask
			if err := json.Unmarshal([]byte(item), &d); err != nil {
				return nil, fmt.Errorf("decode dead task: %w", err)
			}
			out = append(out, &d)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func scriptResult(code int) error {
	switch code {
	case -1:
		return ErrTaskNotFound
	case -2:
		return ErrTaskNotProcessing
	default:
		return nil
	}
}

func taskToHash(t *Task) map[string]any {
	h := map[string]any{
		"id":            t.ID.String(),
		"queue":         t.Queue,
		"task_type":     string(t.TaskType),
		"task_name":     t.TaskName,
		"payload":       string(t.Payload),
		"status":        string(t.Status),
		"priority":      int(t.Priority),
		"attempts_made": int(t.AttemptsMade),
		"max_attempts":  int(t.MaxAttempts),
		"scheduled_at":  t.ScheduledAt.UnixMilli(),
		"created_at":    t.CreatedAt.UnixMilli(),
	}
	if t.LockedUntil != nil {
		h["locked_until"] = t.LockedUntil.UnixMilli()
	}
	if t.LockedBy != nil {
		h["locked_by"] = t.LockedBy.String()
	}
	if t.ProcessedAt != nil {
		h["processed_at"] = t.ProcessedAt.UnixMilli()
	}
	if t.Error != nil {
		h["error"] = *t.Error
	}
	return h
}

func taskFromHash(h map[string]string) (*Task, error) {
	id, err := uuid.Parse(h["id"])
	if err != nil {
		return nil, fmt.Errorf("task id %q: %w", h["id"], err)
	}

	t := &Task{
		ID:           id,
		Queue:        h["queue"],
		TaskType:     TaskType(h["task_type"]),
		TaskName:     h["task_name"],
		Status:       TaskStatus(h["status"]),
		Priority:     Priority(atoi(h["priority"])),
		AttemptsMade: int8(atoi(h["attempts_made"])),
		MaxAttempts:  int8(atoi(h["max_attempts"])),
		ScheduledAt:  msToTime(h["scheduled_at"]),
		CreatedAt:    msToTime(h["created_at"]),
	}
	if p := h["payload"]; p != "" {
		t.Payload = []byte(p)
	}
	if v, ok := h["locked_until"]; ok {
		lu := msToTime(v)
		t.LockedUntil = &lu
	}
	if v, ok := h["locked_by"]; ok {
		if wid, err := uuid.Parse(v); err == nil {
			t.LockedBy = &wid
		}
	}
	if v, ok := h["processed_at"]; ok {
		pa := msToTime(v)
		t.ProcessedAt = &pa
	}
	if v, ok := h["error"]; ok {
		t.Error = &v
	}
	return t, nil
}

func atoi(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func msToTime(s string) time.Time {
	return time.UnixMilli(atoi(s)).UTC()
}
