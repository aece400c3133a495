package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Niabag/Plublista-sub000/internal/content"
	"github.com/Niabag/Plublista-sub000/internal/jobs"
	"github.com/Niabag/Plublista-sub000/pkg/queue"
)

func TestGroupChargeID(t *testing.T) {
	t.Parallel()

	a, b := uuid.New(), uuid.New()
	assert.Equal(t, jobs.GroupChargeID([]uuid.UUID{a, b}), jobs.GroupChargeID([]uuid.UUID{b, a}))
	assert.NotEqual(t, jobs.GroupChargeID([]uuid.UUID{a}), jobs.GroupChargeID([]uuid.UUID{a, b}))

	_, err := uuid.Parse(jobs.GroupChargeID([]uuid.UUID{a}))
	assert.NoError(t, err)
}

func TestCheckSchedules(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = storage.Close() })
	enq, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)

	freeUser, proUser, brokenUser := uuid.New(), uuid.New(), uuid.New()
	direct := content.PublishJob{ID: uuid.New(), UserID: freeUser, ContentItemID: uuid.New(), Platform: content.PlatformInstagram}
	multiA := content.PublishJob{ID: uuid.New(), UserID: proUser, ContentItemID: uuid.New(), Platform: content.PlatformInstagram}
	multiB := content.PublishJob{ID: uuid.New(), UserID: proUser, ContentItemID: multiA.ContentItemID, Platform: content.PlatformTikTok}
	broken := content.PublishJob{ID: uuid.New(), UserID: brokenUser, ContentItemID: uuid.New(), Platform: content.PlatformInstagram}

	st := new(MockStore)
	st.On("ListDueJobs", mock.Anything, fixedNow).Return([]content.PublishJob{broken, multiA, direct, multiB}, nil).Once()
	st.On("GetUser", mock.Anything, brokenUser).Return(nil, errors.New("db down")).Once()
	st.On("GetUser", mock.Anything, freeUser).Return(&content.User{ID: freeUser, Tier: content.TierFree}, nil).Once()

	p := jobs.New(jobs.Deps{Store: st, Enqueuer: enq},
		jobs.WithLogger(discardLogger()),
		jobs.WithClock(func() time.Time { return fixedNow }))

	require.NoError(t, p.CheckSchedules(ctx))
	st.AssertExpectations(t)

	worker := uuid.New()

	task, err := storage.ClaimTask(ctx, worker, []string{jobs.QueuePublish}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "jobs.DirectPublishJob", task.TaskName)
	assert.Equal(t, jobs.MaxAttempts, task.MaxAttempts)
	var dj jobs.DirectPublishJob
	require.NoError(t, json.Unmarshal(task.Payload, &dj))
	assert.Equal(t, jobs.DirectPublishJob{PublishJobID: direct.ID, UserID: freeUser, ContentItemID: direct.ContentItemID}, dj)

	_, err = storage.ClaimTask(ctx, worker, []string{jobs.QueuePublish}, time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)

	task, err = storage.ClaimTask(ctx, worker, []string{jobs.QueueAggregator}, time.Minute)
	require.NoError(t, err)
	var aj jobs.AggregatorPublishJob
	require.NoError(t, json.Unmarshal(task.Payload, &aj))
	assert.Equal(t, []uuid.UUID{multiA.ID, multiB.ID}, aj.PublishJobIDs)
	assert.Equal(t, proUser, aj.UserID)
	assert.Equal(t, jobs.GroupChargeID(aj.PublishJobIDs), aj.ChargeID)

	_, err = storage.ClaimTask(ctx, worker, []string{jobs.QueueAggregator}, time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)
}

func TestCheckSchedules_PaidInstagramGoesToAggregator(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = storage.Close() })
	enq, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)

	userID := uuid.New()
	job := content.PublishJob{ID: uuid.New(), UserID: userID, ContentItemID: uuid.New(), Platform: content.PlatformInstagram}

	st := new(MockStore)
	st.On("ListDueJobs", mock.Anything, mock.Anything).Return([]content.PublishJob{job}, nil).Once()
	st.On("GetUser", mock.Anything, userID).Return(&content.User{ID: userID, Tier: content.TierStarter}, nil).Once()

	p := jobs.New(jobs.Deps{Store: st, Enqueuer: enq}, jobs.WithLogger(discardLogger()))
	require.NoError(t, p.CheckSchedules(ctx))

	task, err := storage.ClaimTask(ctx, uuid.New(), []string{jobs.QueueAggregator}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "jobs.AggregatorPublishJob", task.TaskName)
}

func TestCheckSchedules_ListError(t *testing.T) {
	t.Parallel()

	st := new(MockStore)
	st.On("ListDueJobs", mock.Anything, mock.Anything).Return(nil, errors.New("db down")).Once()

	p := jobs.New(jobs.Deps{Store: st}, jobs.WithLogger(discardLogger()))
	assert.EqualError(t, p.CheckSchedules(context.Background()), "db down")
}
