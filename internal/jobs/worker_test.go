package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Niabag/Plublista-sub000/internal/content"
	"github.com/Niabag/Plublista-sub000/internal/jobs"
	"github.com/Niabag/Plublista-sub000/internal/store"
	"github.com/Niabag/Plublista-sub000/pkg/queue"
)

// startPublishWorker runs the publish pool of p against in-memory storage.
func startPublishWorker(t *testing.T, p *jobs.Processor) (*queue.MemoryStorage, *queue.Enqueuer) {
	t.Helper()

	storage := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = storage.Close() })

	enq, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)

	worker, err := queue.NewWorker(storage,
		queue.WithQueues(jobs.QueuePublish),
		queue.WithPullInterval(10*time.Millisecond),
		queue.WithWorkerLogger(discardLogger()),
	)
	require.NoError(t, err)
	for _, spec := range p.Queues() {
		if spec.Name == jobs.QueuePublish {
			worker.RegisterHandlers(spec.Handlers...)
		}
	}

	require.NoError(t, worker.Start(context.Background()))
	t.Cleanup(func() { _ = worker.Stop() })
	return storage, enq
}

func TestPublishQueue(t *testing.T) {
	t.Parallel()

	t.Run("transient failure is redelivered after a minute", func(t *testing.T) {
		t.Parallel()

		p, st, _, userID := newFailureProcessor(t)
		job := jobs.DirectPublishJob{PublishJobID: uuid.New(), UserID: userID, ContentItemID: uuid.New()}

		st.On("GetPublishJobs", mock.Anything, []uuid.UUID{job.PublishJobID}).
			Return(nil, errors.New("request timeout")).Once()
		st.On("RecordFailure", mock.Anything, []uuid.UUID{job.PublishJobID}, content.JobFailure{
			Status: content.JobRetrying, Message: "request timeout", AttemptCount: 1,
		}).Return(nil).Once()
		st.On("SetContentStatus", mock.Anything, job.ContentItemID, content.StatusRetrying).Return(nil).Once()

		storage, enq := startPublishWorker(t, p)
		enqueuedAt := time.Now()
		require.NoError(t, enq.Enqueue(context.Background(), job, jobs.Options(jobs.QueuePublish)...))

		var task *queue.Task
		require.Eventually(t, func() bool {
			got, err := storage.GetPendingTaskByName(context.Background(), "jobs.DirectPublishJob")
			if err != nil || got.AttemptsMade != 1 {
				return false
			}
			task = got
			return true
		}, 2*time.Second, 10*time.Millisecond)

		assert.Equal(t, jobs.MaxAttempts, task.MaxAttempts)
		assert.WithinDuration(t, enqueuedAt.Add(time.Minute), task.ScheduledAt, 5*time.Second)
		require.NotNil(t, task.Error)
		assert.Equal(t, "request timeout", *task.Error)
		st.AssertExpectations(t)

		dead, err := storage.ListDead(context.Background(), jobs.QueuePublish, 10)
		require.NoError(t, err)
		assert.Empty(t, dead)
	})

	t.Run("permanent failure is dead-lettered with attempts left", func(t *testing.T) {
		t.Parallel()

		p, st, _, userID := newFailureProcessor(t)
		job := jobs.DirectPublishJob{PublishJobID: uuid.New(), UserID: userID, ContentItemID: uuid.New()}

		st.On("GetPublishJobs", mock.Anything, []uuid.UUID{job.PublishJobID}).Return([]content.PublishJob{}, nil).Once()
		st.On("RecordFailure", mock.Anything, []uuid.UUID{job.PublishJobID}, content.JobFailure{
			Status: content.JobFailed, Message: store.ErrJobNotFound.Error(), AttemptCount: 1,
		}).Return(nil).Once()
		st.On("SetContentStatus", mock.Anything, job.ContentItemID, content.StatusFailed).Return(nil).Once()

		storage, enq := startPublishWorker(t, p)
		require.NoError(t, enq.Enqueue(context.Background(), job, jobs.Options(jobs.QueuePublish)...))

		var dead []*queue.DeadTask
		require.Eventually(t, func() bool {
			var err error
			dead, err = storage.ListDead(context.Background(), jobs.QueuePublish, 10)
			return err == nil && len(dead) == 1
		}, 2*time.Second, 10*time.Millisecond)

		assert.Equal(t, "jobs.DirectPublishJob", dead[0].TaskName)
		assert.Equal(t, int8(1), dead[0].AttemptsMade)
		assert.Equal(t, store.ErrJobNotFound.Error(), dead[0].Error)
		st.AssertExpectations(t)

		_, err := storage.GetPendingTaskByName(context.Background(), "jobs.DirectPublishJob")
		assert.ErrorIs(t, err, queue.ErrTaskNotFound)
	})
}
