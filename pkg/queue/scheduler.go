package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SchedulerRepository defines the interface for scheduler operations
type SchedulerRepository interface {
	// CreateTask creates a new task in the storage
	CreateTask(ctx context.Context, task *Task) error

	// GetPendingTaskByName returns a pending task with the given name, or ErrTaskNotFound
	GetPendingTaskByName(ctx context.Context, taskName string) (*Task, error)
}

// Scheduler turns periodic task definitions into queued tasks.
// Each run is a regular task, so overlapping runs are serialized only by the
// concurrency of the worker that consumes the queue.
type Scheduler struct {
	repo     SchedulerRepository
	tasks    map[string]*scheduledTask
	mu       sync.RWMutex
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

type scheduledTask struct {
	name            string
	schedule        Schedule
	queue           string
	priority        Priority
	maxAttempts     int8
	lastScheduledAt *time.Time
}

// NewScheduler creates a new task scheduler
func NewScheduler(repo SchedulerRepository, opts ...SchedulerOption) (*Scheduler, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &schedulerOptions{
		checkInterval: 10 * time.Second,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Scheduler{
		repo:     repo,
		tasks:    make(map[string]*scheduledTask),
		interval: options.checkInterval,
		logger:   options.logger,
		now:      time.Now,
	}, nil
}

// AddTask registers a periodic task. Periodic runs get a single attempt unless
// WithTaskMaxAttempts says otherwise; the next tick produces a fresh run anyway.
func (s *Scheduler) AddTask(name string, schedule Schedule, opts ...SchedulerTaskOption) error {
	if schedule == nil {
		return ErrInvalidSchedule
	}

	taskOpts := &schedulerTaskOptions{
		queue:       DefaultQueueName,
		priority:    PriorityDefault,
		maxAttempts: 1,
	}
	for _, opt := range opts {
		opt(taskOpts)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return ErrTaskAlreadyRegistered
	}

	s.tasks[name] = &scheduledTask{
		name:        name,
		schedule:    schedule,
		queue:       taskOpts.queue,
		priority:    taskOpts.priority,
		maxAttempts: taskOpts.maxAttempts,
	}

	s.logger.Info("registered periodic task",
		slog.String("task_name", name),
		slog.String("queue", taskOpts.queue),
		slog.String("schedule", schedule.String()))

	return nil
}

// Start checks registered tasks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.RLock()
	taskCount := len(s.tasks)
	s.mu.RUnlock()

	if taskCount == 0 {
		return ErrSchedulerNotConfigured
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.checkTasks(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			return nil
		case <-ticker.C:
			s.checkTasks(ctx)
		}
	}
}

// Run returns a function suitable for errgroup
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error {
		return s.Start(ctx)
	}
}

func (s *Scheduler) checkTasks(ctx context.Context) {
	s.mu.RLock()
	tasks := make([]*scheduledTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task)
	}
	s.mu.RUnlock()

	now := s.now()
	for _, task := range tasks {
		if err := s.scheduleTaskIfNeeded(ctx, task, now); err != nil {
			s.logger.Error("failed to schedule task",
				slog.String("task_name", task.name),
				slog.String("error", err.Error()))
		}
	}
}

func (s *Scheduler) scheduleTaskIfNeeded(ctx context.Context, task *scheduledTask, now time.Time) error {
	s.mu.RLock()
	last := task.lastScheduledAt
	s.mu.RUnlock()

	var nextRun time.Time
	if last == nil {
		nextRun = task.schedule.Next(now)
	} else {
		nextRun = task.schedule.Next(*last)
		if nextRun.After(now) {
			return nil
		}
	}

	existing, err := s.repo.GetPendingTaskByName(ctx, task.name)
	switch {
	case err == nil && existing != nil:
		s.setLastScheduled(task.name, existing.ScheduledAt)
		s.logger.Debug("periodic task already pending",
			slog.String("task_name", task.name),
			slog.Time("scheduled_for", existing.ScheduledAt))
		return nil
	case err != nil && !errors.Is(err, ErrTaskNotFound):
		return fmt.Errorf("lookup pending %q: %w", task.name, err)
	}

	if err := s.repo.CreateTask(ctx, &Task{
		ID:          uuid.New(),
		Queue:       task.queue,
		TaskType:    TaskTypePeriodic,
		TaskName:    task.name,
		Status:      TaskStatusPending,
		Priority:    task.priority,
		MaxAttempts: task.maxAttempts,
		ScheduledAt: nextRun,
		CreatedAt:   now,
	}); err != nil {
		return errors.Join(ErrTaskCreate, err)
	}

	s.setLastScheduled(task.name, nextRun)

	s.logger.Info("created periodic task",
		slog.String("task_name", task.name),
		slog.Bool("first_run", last == nil),
		slog.Time("scheduled_for", nextRun))

	return nil
}

func (s *Scheduler) setLastScheduled(taskName string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tasks[taskName]; ok {
		t.lastScheduledAt = &at
	}
}

// ListTasks returns all registered periodic tasks
func (s *Scheduler) ListTasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	return names
}
