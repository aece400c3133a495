package jobs_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Niabag/Plublista-sub000/internal/ai"
	"github.com/Niabag/Plublista-sub000/internal/classifier"
	"github.com/Niabag/Plublista-sub000/internal/content"
	"github.com/Niabag/Plublista-sub000/internal/jobs"
	"github.com/Niabag/Plublista-sub000/internal/render"
	"github.com/Niabag/Plublista-sub000/internal/store"
)

type renderFixture struct {
	store    *MockStore
	objects  *fakeObjects
	analyzer *fakeAnalyzer
	music    *fakeMusic
	renderer *fakeRenderer
	proc     *jobs.Processor
	job      jobs.RenderJob
	item     *content.Item
}

func newRenderFixture(t *testing.T) *renderFixture {
	t.Helper()

	userID, itemID := uuid.New(), uuid.New()
	f := &renderFixture{
		store: new(MockStore),
		objects: &fakeObjects{files: map[string]string{
			"src/a.mov": "clip-a",
			"src/b":     "clip-b",
		}},
		analyzer: &fakeAnalyzer{
			narrative: &ai.Narrative{
				OrderedSegments: []ai.Segment{
					{ClipIndex: 1, StartSec: 2, EndSec: 6, TranscriptExcerpt: "hi"},
					{ClipIndex: 0, StartSec: 0, EndSec: 4, TranscriptExcerpt: "there"},
				},
				OverallNarrative: "a day at the beach",
				SuggestedMood:    "chill",
			},
			copy: &ai.Copy{Caption: "Beach day", Hashtags: []string{"beach"}, HookText: "Wait for it", CTAText: "Follow"},
		},
		music:    &fakeMusic{url: "https://fal.test/track.mp3"},
		renderer: &fakeRenderer{root: t.TempDir(), duration: 10},
		job:      jobs.RenderJob{UserID: userID, ContentItemID: itemID, ChargeID: "reel"},
		item: &content.Item{
			ID: itemID, UserID: userID, Type: content.TypeReel, Status: content.StatusGenerating,
			Style: "cinematic", Duration: 8, MediaKeys: []string{"src/a.mov", "src/b"},
		},
	}
	f.proc = jobs.New(jobs.Deps{
		Store:    f.store,
		Objects:  f.objects,
		Analyzer: f.analyzer,
		Music:    f.music,
		Renderer: f.renderer,
	}, jobs.WithLogger(discardLogger()))
	return f
}

func (f *renderFixture) uploadedKey(t *testing.T) string {
	t.Helper()
	require.Len(t, f.objects.uploaded, 1)
	for k := range f.objects.uploaded {
		return k
	}
	return ""
}

func TestRender(t *testing.T) {
	t.Parallel()

	t.Run("full pipeline", func(t *testing.T) {
		t.Parallel()

		f := newRenderFixture(t)
		f.store.On("GetContent", mock.Anything, f.job.UserID, f.job.ContentItemID).Return(f.item, nil).Once()

		var saved content.RenderResult
		f.store.On("SaveRender", mock.Anything, f.item.ID, mock.Anything).
			Run(func(args mock.Arguments) { saved = args.Get(2).(content.RenderResult) }).
			Return(nil).Once()

		require.NoError(t, f.proc.Render(context.Background(), f.job))
		f.store.AssertExpectations(t)

		require.Len(t, f.analyzer.clips, 2)
		assert.Equal(t, filepath.Join(f.renderer.dir, "clip_0.mov"), f.analyzer.clips[0].Path)
		assert.Equal(t, filepath.Join(f.renderer.dir, "clip_1.mp4"), f.analyzer.clips[1].Path)
		assert.InDelta(t, 10, f.analyzer.clips[0].DurationSec, 1e-9)
		assert.Equal(t, []ai.Span{{Start: 1, End: 1.5}}, f.analyzer.clips[0].Silences)

		assert.Equal(t, "chill", f.music.mood)
		assert.Equal(t, ai.CopyRequest{
			ContentType: "reel",
			Style:       "cinematic",
			Narrative:   "a day at the beach",
			Transcript:  "hi there",
			Mood:        "chill",
		}, f.analyzer.copyReq)

		tl := f.renderer.timeline
		assert.Equal(t, []render.Segment{
			{Path: filepath.Join(f.renderer.dir, "clip_1.mp4"), Start: 2, End: 6},
			{Path: filepath.Join(f.renderer.dir, "clip_0.mov"), Start: 0, End: 4},
		}, tl.Segments)
		assert.InDelta(t, 8, tl.TotalSec, 1e-9)
		assert.Equal(t, "9:16", tl.Format)
		assert.Equal(t, "cinematic", tl.Style)
		assert.Equal(t, filepath.Join(f.renderer.dir, "music.mp3"), tl.MusicPath)

		key := f.uploadedKey(t)
		assert.True(t, strings.HasPrefix(key, "users/"+f.job.UserID.String()+"/uploads/"))
		assert.True(t, strings.HasSuffix(key, f.item.ID.String()+"-render.mp4"))
		assert.Equal(t, []byte("rendered"), f.objects.uploaded[key])

		assert.Equal(t, key, saved.GeneratedMediaKey)
		require.NotNil(t, saved.MusicURL)
		assert.Equal(t, "https://fal.test/track.mp3", *saved.MusicURL)
		require.NotNil(t, saved.Caption)
		assert.Equal(t, "Beach day", *saved.Caption)
		assert.Equal(t, []string{"beach"}, saved.Hashtags)
		assert.Equal(t, "Wait for it", *saved.HookText)
		assert.Equal(t, "Follow", *saved.CTAText)

		assert.True(t, f.renderer.cleaned)
		assert.NoDirExists(t, f.renderer.dir)
	})

	t.Run("short analysis is padded", func(t *testing.T) {
		t.Parallel()

		f := newRenderFixture(t)
		f.item.Duration = 30
		f.item.MusicPrompt = ptr("lofi piano")
		f.store.On("GetContent", mock.Anything, f.job.UserID, f.job.ContentItemID).Return(f.item, nil).Once()
		f.store.On("SaveRender", mock.Anything, f.item.ID, mock.Anything).Return(nil).Once()

		require.NoError(t, f.proc.Render(context.Background(), f.job))

		assert.Equal(t, "lofi piano", f.music.mood)
		segs := f.renderer.timeline.Segments
		require.Len(t, segs, 5)
		assert.Equal(t, render.Segment{Path: filepath.Join(f.renderer.dir, "clip_0.mov"), Start: 0, End: 4}, segs[0])
		assert.Equal(t, render.Segment{Path: filepath.Join(f.renderer.dir, "clip_1.mp4"), Start: 6, End: 10}, segs[4])
	})

	t.Run("music and copy failures degrade", func(t *testing.T) {
		t.Parallel()

		f := newRenderFixture(t)
		f.music.err = errors.New("fal music generation failed (500): boom")
		f.analyzer.copy = nil
		f.analyzer.copyErr = ai.ErrInvalidResponse
		f.store.On("GetContent", mock.Anything, f.job.UserID, f.job.ContentItemID).Return(f.item, nil).Once()
		f.store.On("SaveRender", mock.Anything, f.item.ID, mock.MatchedBy(func(r content.RenderResult) bool {
			return r.GeneratedMediaKey != "" && r.MusicURL == nil && r.Caption == nil && r.Hashtags == nil
		})).Return(nil).Once()

		require.NoError(t, f.proc.Render(context.Background(), f.job))
		f.store.AssertExpectations(t)
		assert.Empty(t, f.renderer.timeline.MusicPath)
	})

	t.Run("music download failure renders without a track", func(t *testing.T) {
		t.Parallel()

		f := newRenderFixture(t)
		f.music.fetchErr = errors.New("connection reset")
		f.store.On("GetContent", mock.Anything, f.job.UserID, f.job.ContentItemID).Return(f.item, nil).Once()
		f.store.On("SaveRender", mock.Anything, f.item.ID, mock.Anything).Return(nil).Once()

		require.NoError(t, f.proc.Render(context.Background(), f.job))
		assert.Empty(t, f.renderer.timeline.MusicPath)
		assert.NoFileExists(t, filepath.Join(f.renderer.dir, "music.mp3"))
	})

	t.Run("analysis failure is returned", func(t *testing.T) {
		t.Parallel()

		f := newRenderFixture(t)
		f.analyzer.narrative = nil
		f.analyzer.err = ai.ErrEmptySegments
		f.store.On("GetContent", mock.Anything, f.job.UserID, f.job.ContentItemID).Return(f.item, nil).Once()

		assert.ErrorIs(t, f.proc.Render(context.Background(), f.job), ai.ErrEmptySegments)
		assert.Empty(t, f.objects.uploaded)
		assert.True(t, f.renderer.cleaned)
	})

	t.Run("compose failure is returned", func(t *testing.T) {
		t.Parallel()

		f := newRenderFixture(t)
		f.renderer.err = errors.New("ffmpeg concat: exit status 1")
		f.store.On("GetContent", mock.Anything, f.job.UserID, f.job.ContentItemID).Return(f.item, nil).Once()

		assert.EqualError(t, f.proc.Render(context.Background(), f.job), "ffmpeg concat: exit status 1")
		f.store.AssertNotCalled(t, "SaveRender", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing content is permanent", func(t *testing.T) {
		t.Parallel()

		f := newRenderFixture(t)
		f.store.On("GetContent", mock.Anything, f.job.UserID, f.job.ContentItemID).Return(nil, store.ErrContentNotFound).Once()

		err := f.proc.Render(context.Background(), f.job)
		assert.ErrorIs(t, err, store.ErrContentNotFound)
		assert.Equal(t, classifier.Permanent, classifier.Classify(err))
	})

	t.Run("no clips is permanent", func(t *testing.T) {
		t.Parallel()

		f := newRenderFixture(t)
		f.item.MediaKeys = nil
		f.store.On("GetContent", mock.Anything, f.job.UserID, f.job.ContentItemID).Return(f.item, nil).Once()

		err := f.proc.Render(context.Background(), f.job)
		assert.ErrorIs(t, err, jobs.ErrNoClips)
		assert.Equal(t, classifier.Permanent, classifier.Classify(err))
	})
}
