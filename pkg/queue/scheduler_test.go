package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Niabag/Plublista-sub000/pkg/queue"
)

type MockSchedulerRepository struct {
	mock.Mock
}

func (m *MockSchedulerRepository) CreateTask(ctx context.Context, task *queue.Task) error {
	return m.Called(ctx, task).Error(0)
}

func (m *MockSchedulerRepository) GetPendingTaskByName(ctx context.Context, taskName string) (*queue.Task, error) {
	args := m.Called(ctx, taskName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*queue.Task), args.Error(1)
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 3, 10, 10, 7, 0, 0, time.UTC)

	tests := []struct {
		spec string
		want time.Time
	}{
		{"@every 6h", from.Add(6 * time.Hour)},
		{"@hourly", time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2026, 3, 10, 10, 15, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			t.Parallel()

			s, err := queue.ParseSchedule(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Next(from))
			assert.Equal(t, tt.spec, s.String())
		})
	}

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()

		_, err := queue.ParseSchedule("every tuesday")
		assert.ErrorIs(t, err, queue.ErrInvalidSchedule)

		_, err = queue.ParseSchedule("  ")
		assert.ErrorIs(t, err, queue.ErrInvalidSchedule)

		assert.Panics(t, func() { queue.MustParseSchedule("nope") })
	})
}

func TestEvery(t *testing.T) {
	t.Parallel()

	from := time.Now()
	s := queue.Every(time.Minute)
	assert.Equal(t, from.Add(time.Minute), s.Next(from))
	assert.Equal(t, "every 1m0s", s.String())
}

func TestScheduler_AddTask(t *testing.T) {
	t.Parallel()

	_, err := queue.NewScheduler(nil)
	assert.ErrorIs(t, err, queue.ErrRepositoryNil)

	s, err := queue.NewScheduler(new(MockSchedulerRepository), queue.WithSchedulerLogger(discardLogger()))
	require.NoError(t, err)

	require.NoError(t, s.AddTask("schedule.check", queue.Every(time.Minute)))
	assert.ErrorIs(t, s.AddTask("schedule.check", queue.Every(time.Minute)), queue.ErrTaskAlreadyRegistered)
	assert.ErrorIs(t, s.AddTask("other", nil), queue.ErrInvalidSchedule)
	assert.Equal(t, []string{"schedule.check"}, s.ListTasks())
}

func TestScheduler_Start(t *testing.T) {
	t.Parallel()

	t.Run("no tasks", func(t *testing.T) {
		t.Parallel()

		s, err := queue.NewScheduler(new(MockSchedulerRepository), queue.WithSchedulerLogger(discardLogger()))
		require.NoError(t, err)
		assert.ErrorIs(t, s.Start(context.Background()), queue.ErrSchedulerNotConfigured)
	})

	t.Run("creates first run with task options", func(t *testing.T) {
		t.Parallel()

		repo := new(MockSchedulerRepository)
		created := make(chan *queue.Task, 1)
		repo.On("GetPendingTaskByName", mock.Anything, "cleanup.assets").Return(nil, queue.ErrTaskNotFound).Once()
		repo.On("CreateTask", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { created <- args.Get(1).(*queue.Task) }).
			Return(nil).Once()

		s, err := queue.NewScheduler(repo,
			queue.WithCheckInterval(time.Hour),
			queue.WithSchedulerLogger(discardLogger()),
		)
		require.NoError(t, err)
		require.NoError(t, s.AddTask("cleanup.assets", queue.Every(6*time.Hour),
			queue.WithTaskQueue("cleanup"),
			queue.WithTaskPriority(queue.PriorityLow),
		))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = s.Start(ctx) }()

		select {
		case task := <-created:
			assert.Equal(t, "cleanup.assets", task.TaskName)
			assert.Equal(t, "cleanup", task.Queue)
			assert.Equal(t, queue.TaskTypePeriodic, task.TaskType)
			assert.Equal(t, queue.PriorityLow, task.Priority)
			assert.Equal(t, int8(1), task.MaxAttempts)
			assert.WithinDuration(t, time.Now().Add(6*time.Hour), task.ScheduledAt, 5*time.Second)
		case <-time.After(2 * time.Second):
			t.Fatal("periodic task was not created")
		}
	})

	t.Run("skips when a run is already pending", func(t *testing.T) {
		t.Parallel()

		repo := new(MockSchedulerRepository)
		looked := make(chan struct{}, 1)
		repo.On("GetPendingTaskByName", mock.Anything, "schedule.check").
			Run(func(mock.Arguments) { looked <- struct{}{} }).
			Return(&queue.Task{TaskName: "schedule.check", ScheduledAt: time.Now().Add(time.Minute)}, nil).Once()

		s, err := queue.NewScheduler(repo, queue.WithCheckInterval(time.Hour), queue.WithSchedulerLogger(discardLogger()))
		require.NoError(t, err)
		require.NoError(t, s.AddTask("schedule.check", queue.Every(time.Minute)))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = s.Start(ctx) }()

		select {
		case <-looked:
		case <-time.After(2 * time.Second):
			t.Fatal("scheduler did not check pending tasks")
		}
		time.Sleep(20 * time.Millisecond)
		repo.AssertNotCalled(t, "CreateTask", mock.Anything, mock.Anything)
	})

	t.Run("lookup error does not create", func(t *testing.T) {
		t.Parallel()

		repo := new(MockSchedulerRepository)
		looked := make(chan struct{}, 1)
		repo.On("GetPendingTaskByName", mock.Anything, "schedule.check").
			Run(func(mock.Arguments) { looked <- struct{}{} }).
			Return(nil, errors.New("redis down")).Once()

		s, err := queue.NewScheduler(repo, queue.WithCheckInterval(time.Hour), queue.WithSchedulerLogger(discardLogger()))
		require.NoError(t, err)
		require.NoError(t, s.AddTask("schedule.check", queue.Every(time.Minute)))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = s.Start(ctx) }()

		<-looked
		time.Sleep(20 * time.Millisecond)
		repo.AssertNotCalled(t, "CreateTask", mock.Anything, mock.Anything)
	})
}
