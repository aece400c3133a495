package jobs_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Niabag/Plublista-sub000/internal/ai"
	"github.com/Niabag/Plublista-sub000/internal/ayrshare"
	"github.com/Niabag/Plublista-sub000/internal/content"
	"github.com/Niabag/Plublista-sub000/internal/instagram"
	"github.com/Niabag/Plublista-sub000/internal/render"
	"github.com/Niabag/Plublista-sub000/internal/secrets"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCipher(t *testing.T) *secrets.Cipher {
	t.Helper()
	c, err := secrets.New(testKey)
	require.NoError(t, err)
	return c
}

func ptr[T any](v T) *T { return &v }

type MockStore struct{ mock.Mock }

func (m *MockStore) GetContent(ctx context.Context, userID, id uuid.UUID) (*content.Item, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*content.Item), args.Error(1)
}

func (m *MockStore) SetContentStatus(ctx context.Context, id uuid.UUID, status content.Status) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockStore) UpdateMediaKeys(ctx context.Context, id uuid.UUID, keys []string) error {
	return m.Called(ctx, id, keys).Error(0)
}

func (m *MockStore) SaveRender(ctx context.Context, id uuid.UUID, r content.RenderResult) error {
	return m.Called(ctx, id, r).Error(0)
}

func (m *MockStore) ListStaleSources(ctx context.Context, before time.Time) ([]content.Item, error) {
	args := m.Called(ctx, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]content.Item), args.Error(1)
}

func (m *MockStore) GetPublishJobs(ctx context.Context, ids []uuid.UUID) ([]content.PublishJob, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]content.PublishJob), args.Error(1)
}

func (m *MockStore) MarkPublishing(ctx context.Context, ids ...uuid.UUID) error {
	return m.Called(ctx, ids).Error(0)
}

func (m *MockStore) MarkPublished(ctx context.Context, id uuid.UUID, url *string, at time.Time) error {
	return m.Called(ctx, id, url, at).Error(0)
}

func (m *MockStore) RecordFailure(ctx context.Context, ids []uuid.UUID, f content.JobFailure) error {
	return m.Called(ctx, ids, f).Error(0)
}

func (m *MockStore) ListDueJobs(ctx context.Context, now time.Time) ([]content.PublishJob, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]content.PublishJob), args.Error(1)
}

func (m *MockStore) GetUser(ctx context.Context, id uuid.UUID) (*content.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*content.User), args.Error(1)
}

func (m *MockStore) GetConnection(ctx context.Context, userID uuid.UUID, platform content.Platform) (*content.Connection, error) {
	args := m.Called(ctx, userID, platform)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*content.Connection), args.Error(1)
}

// fakeObjects presigns by prefixing keys and serves downloads from memory.
type fakeObjects struct {
	files    map[string]string
	failOn   map[string]error
	deleted  []string
	uploaded map[string][]byte
}

func (f *fakeObjects) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	return "https://cdn.test/" + key + "?ttl=" + ttl.String(), nil
}

func (f *fakeObjects) DownloadTo(_ context.Context, key string, w io.Writer) (int64, error) {
	n, err := io.Copy(w, strings.NewReader(f.files[key]))
	return n, err
}

func (f *fakeObjects) Upload(_ context.Context, key string, data []byte, _ string) error {
	if f.uploaded == nil {
		f.uploaded = map[string][]byte{}
	}
	f.uploaded[key] = data
	return nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	if err := f.failOn[key]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, key)
	return nil
}

type MockInstagram struct{ mock.Mock }

func (m *MockInstagram) CreateContainer(ctx context.Context, token, igUserID string, p instagram.ContainerParams) (string, error) {
	args := m.Called(ctx, token, igUserID, p)
	return args.String(0), args.Error(1)
}

func (m *MockInstagram) WaitUntilReady(ctx context.Context, token, containerID string) error {
	return m.Called(ctx, token, containerID).Error(0)
}

func (m *MockInstagram) Publish(ctx context.Context, token, igUserID, containerID string) (string, error) {
	args := m.Called(ctx, token, igUserID, containerID)
	return args.String(0), args.Error(1)
}

func (m *MockInstagram) Permalink(ctx context.Context, token, mediaID string) (string, error) {
	args := m.Called(ctx, token, mediaID)
	return args.String(0), args.Error(1)
}

type MockAggregator struct{ mock.Mock }

func (m *MockAggregator) Publish(ctx context.Context, profileKey string, req ayrshare.PostRequest) (*ayrshare.PostResponse, error) {
	args := m.Called(ctx, profileKey, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ayrshare.PostResponse), args.Error(1)
}

type fakeProfiles struct{ key string }

func (f fakeProfiles) Key(context.Context, *content.User) (string, error) { return f.key, nil }

type MockMedia struct{ mock.Mock }

func (m *MockMedia) ConvertForPlatform(ctx context.Context, userID, contentItemID uuid.UUID, keys []string) (map[string]string, error) {
	args := m.Called(ctx, userID, contentItemID, keys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *MockMedia) WatermarkAll(ctx context.Context, keys []string, userID, contentItemID uuid.UUID) ([]string, error) {
	args := m.Called(ctx, keys, userID, contentItemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type fakeAnalyzer struct {
	narrative *ai.Narrative
	err       error
	copy      *ai.Copy
	copyErr   error
	clips     []ai.Clip
	copyReq   ai.CopyRequest
}

func (f *fakeAnalyzer) AnalyzeClips(_ context.Context, _ uuid.UUID, clips []ai.Clip, _ string, _ int) (*ai.Narrative, error) {
	f.clips = clips
	return f.narrative, f.err
}

func (f *fakeAnalyzer) GenerateCopy(_ context.Context, _ uuid.UUID, req ai.CopyRequest) (*ai.Copy, error) {
	f.copyReq = req
	return f.copy, f.copyErr
}

type fakeMusic struct {
	url      string
	err      error
	fetchErr error
	mood     string
}

func (f *fakeMusic) GenerateMusic(_ context.Context, _ uuid.UUID, mood string, _ int) (string, error) {
	f.mood = mood
	return f.url, f.err
}

func (f *fakeMusic) Fetch(_ context.Context, _ string, w io.Writer) error {
	if f.fetchErr != nil {
		return f.fetchErr
	}
	_, err := w.Write([]byte("mp3"))
	return err
}

// fakeRenderer uses a real scratch directory and records the timeline.
type fakeRenderer struct {
	root     string
	dir      string
	duration float64
	timeline render.Timeline
	err      error
	cleaned  bool
}

func (f *fakeRenderer) Workspace(id string) (string, func(), error) {
	f.dir = filepath.Join(f.root, id)
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", nil, err
	}
	return f.dir, func() { f.cleaned = true; _ = os.RemoveAll(f.dir) }, nil
}

func (f *fakeRenderer) Probe(context.Context, string) (float64, error) { return f.duration, nil }

func (f *fakeRenderer) DetectSilence(context.Context, string) ([]render.Silence, error) {
	return []render.Silence{{Start: 1, End: 1.5}}, nil
}

func (f *fakeRenderer) Compose(_ context.Context, tl render.Timeline, dir string) (string, error) {
	f.timeline = tl
	if f.err != nil {
		return "", f.err
	}
	out := filepath.Join(dir, "output.mp4")
	return out, os.WriteFile(out, []byte("rendered"), 0o600)
}
