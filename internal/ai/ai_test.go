package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/Niabag/Plublista-sub000/internal/ai"
	"github.com/Niabag/Plublista-sub000/internal/telemetry"
)

type fakeModels struct {
	text     string
	usage    *genai.GenerateContentResponseUsageMetadata
	err      error
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model, f.contents, f.config = model, contents, config
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: f.text}}},
		}},
		UsageMetadata: f.usage,
	}, nil
}

type MockFiles struct {
	mock.Mock
}

func (m *MockFiles) Upload(ctx context.Context, r io.Reader, cfg *genai.UploadFileConfig) (*genai.File, error) {
	args := m.Called(ctx, r, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*genai.File), args.Error(1)
}

func (m *MockFiles) Get(ctx context.Context, name string, cfg *genai.GetFileConfig) (*genai.File, error) {
	args := m.Called(ctx, name, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*genai.File), args.Error(1)
}

func (m *MockFiles) Delete(ctx context.Context, name string, cfg *genai.DeleteFileConfig) (*genai.DeleteFileResponse, error) {
	args := m.Called(ctx, name, cfg)
	return &genai.DeleteFileResponse{}, args.Error(0)
}

func writeClip(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o600))
	return path
}

const narrativeJSON = `{
  "orderedSegments": [
    {"clipIndex": 0, "startSec": 0, "endSec": 4, "narrativeRole": "hook", "energyLevel": "high", "transcriptExcerpt": "hello"},
    {"clipIndex": 1, "startSec": 2, "endSec": 99, "narrativeRole": "conclusion", "energyLevel": "low", "transcriptExcerpt": "bye"},
    {"clipIndex": 7, "startSec": 0, "endSec": 3, "narrativeRole": "development", "energyLevel": "low"}
  ],
  "overallNarrative": "a day at the beach",
  "suggestedMood": "chill"
}`

func TestAnalyzeClips(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	t.Run("inline clips", func(t *testing.T) {
		t.Parallel()

		models := &fakeModels{
			text:  "```json\n" + narrativeJSON + "\n```",
			usage: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 1_000_000, CandidatesTokenCount: 100_000},
		}
		costs := &telemetry.Recorder{}
		g := ai.NewGeminiWith(models, new(MockFiles), ai.Config{}, ai.WithCostLogger(costs))

		clips := []ai.Clip{
			{Path: writeClip(t, 16), Index: 0, DurationSec: 10, Silences: []ai.Span{{Start: 3.9, End: 4.6}}},
			{Path: writeClip(t, 16), Index: 1, DurationSec: 8},
		}
		n, err := g.AnalyzeClips(context.Background(), userID, clips, "cinematic", 30)
		require.NoError(t, err)

		require.Len(t, n.OrderedSegments, 2)
		assert.Equal(t, 8.0, n.OrderedSegments[1].EndSec)
		assert.Equal(t, "chill", n.SuggestedMood)
		assert.Equal(t, "hello bye", n.Transcript())

		assert.Equal(t, "gemini-2.5-pro", models.model)
		require.Len(t, models.contents, 1)
		parts := models.contents[0].Parts
		require.Len(t, parts, 5)
		assert.Equal(t, "[Clip 0]", parts[0].Text)
		require.NotNil(t, parts[1].InlineData)
		assert.Equal(t, "video/mp4", parts[1].InlineData.MIMEType)
		assert.Contains(t, parts[4].Text, "cinematic social media montage")
		assert.Contains(t, parts[4].Text, "Clip 0: 3.9-4.6s")
		assert.Contains(t, parts[4].Text, "Clip 1: no silence detected")
		assert.Contains(t, parts[4].Text, "targeting 30s")
		assert.Equal(t, "application/json", models.config.ResponseMIMEType)

		entries := costs.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, telemetry.ServiceGemini, entries[0].Service)
		assert.Equal(t, "video-analysis", entries[0].Endpoint)
		assert.InDelta(t, 2.25, entries[0].CostUSD, 1e-9)
	})

	t.Run("large clip uploads and cleans up", func(t *testing.T) {
		t.Parallel()

		files := new(MockFiles)
		files.On("Upload", mock.Anything, mock.Anything, mock.Anything).
			Return(&genai.File{Name: "files/abc", State: genai.FileStateProcessing}, nil).Once()
		files.On("Get", mock.Anything, "files/abc", mock.Anything).
			Return(&genai.File{Name: "files/abc", State: genai.FileStateActive, URI: "https://gen/files/abc", MIMEType: "video/mp4"}, nil).Once()
		files.On("Delete", mock.Anything, "files/abc", mock.Anything).Return(nil).Once()

		models := &fakeModels{text: narrativeJSON}
		costs := &telemetry.Recorder{}
		g := ai.NewGeminiWith(models, files, ai.Config{InlineLimit: 4, FilePollInterval: time.Millisecond}, ai.WithCostLogger(costs))

		_, err := g.AnalyzeClips(context.Background(), userID, []ai.Clip{{Path: writeClip(t, 64), Index: 0, DurationSec: 10}}, "ugc", 15)
		require.NoError(t, err)

		part := models.contents[0].Parts[1]
		require.NotNil(t, part.FileData)
		assert.Equal(t, "https://gen/files/abc", part.FileData.FileURI)
		files.AssertExpectations(t)

		// no usage metadata falls back to a flat estimate
		assert.InDelta(t, 0.05, costs.Entries()[0].CostUSD, 1e-9)
	})

	t.Run("failed upload processing still deletes", func(t *testing.T) {
		t.Parallel()

		files := new(MockFiles)
		files.On("Upload", mock.Anything, mock.Anything, mock.Anything).
			Return(&genai.File{Name: "files/bad", State: genai.FileStateFailed}, nil).Once()
		files.On("Delete", mock.Anything, "files/bad", mock.Anything).Return(errors.New("gone")).Once()

		g := ai.NewGeminiWith(&fakeModels{text: narrativeJSON}, files, ai.Config{InlineLimit: 4})
		_, err := g.AnalyzeClips(context.Background(), userID, []ai.Clip{{Path: writeClip(t, 64), Index: 0}}, "ugc", 15)
		assert.ErrorIs(t, err, ai.ErrFileProcessing)
		files.AssertExpectations(t)
	})

	t.Run("bad responses", func(t *testing.T) {
		t.Parallel()

		clips := []ai.Clip{{Path: writeClip(t, 8), Index: 0, DurationSec: 5}}

		g := ai.NewGeminiWith(&fakeModels{text: "not json"}, new(MockFiles), ai.Config{})
		_, err := g.AnalyzeClips(context.Background(), userID, clips, "hype", 15)
		assert.ErrorIs(t, err, ai.ErrInvalidResponse)

		g = ai.NewGeminiWith(&fakeModels{text: `{"orderedSegments": []}`}, new(MockFiles), ai.Config{})
		_, err = g.AnalyzeClips(context.Background(), userID, clips, "hype", 15)
		assert.ErrorIs(t, err, ai.ErrEmptySegments)

		_, err = g.AnalyzeClips(context.Background(), userID, nil, "hype", 15)
		assert.ErrorIs(t, err, ai.ErrNoClips)

		g = ai.NewGeminiWith(&fakeModels{err: errors.New("503 unavailable")}, new(MockFiles), ai.Config{})
		_, err = g.AnalyzeClips(context.Background(), userID, clips, "hype", 15)
		assert.ErrorContains(t, err, "503")
	})
}

func TestGenerateCopy(t *testing.T) {
	t.Parallel()

	t.Run("sanitizes fields", func(t *testing.T) {
		t.Parallel()

		raw, err := json.Marshal(map[string]any{
			"caption":  strings.Repeat("é", 2300),
			"hashtags": []any{"#travel", " ", "beach", 3, "#sun", "sea", "sand", "extra"},
			"hookText": strings.Repeat("h", 60),
			"ctaText":  "Follow for more",
		})
		require.NoError(t, err)

		models := &fakeModels{
			text:  "```json\n" + string(raw),
			usage: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 1_000_000, CandidatesTokenCount: 1_000_000},
		}
		costs := &telemetry.Recorder{}
		g := ai.NewGeminiWith(models, new(MockFiles), ai.Config{}, ai.WithCostLogger(costs))

		c, err := g.GenerateCopy(context.Background(), uuid.New(), ai.CopyRequest{
			ContentType: "reel",
			Style:       "dynamic",
			Narrative:   "a trip",
			Transcript:  strings.Repeat("t", 600),
			Mood:        "upbeat",
		})
		require.NoError(t, err)

		assert.Equal(t, 2200, len([]rune(c.Caption)))
		assert.Equal(t, []string{"travel", "beach", "sun", "sea", "sand"}, c.Hashtags)
		assert.Len(t, c.HookText, 50)
		assert.Equal(t, "Follow for more", c.CTAText)

		prompt := models.contents[0].Parts[0].Text
		assert.Contains(t, prompt, `Generate social media copy for a reel in "dynamic" style.`)
		assert.Contains(t, prompt, "Transcript excerpt: "+strings.Repeat("t", 500)+"\n")
		assert.Contains(t, prompt, "Mood: upbeat")
		assert.Equal(t, "gemini-2.5-flash", models.model)

		entries := costs.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, "copy", entries[0].Endpoint)
		assert.InDelta(t, 2.80, entries[0].CostUSD, 1e-9)
	})

	t.Run("wrong field types", func(t *testing.T) {
		t.Parallel()

		g := ai.NewGeminiWith(&fakeModels{text: `{"caption": 1, "hashtags": [], "hookText": "", "ctaText": ""}`}, new(MockFiles), ai.Config{})
		_, err := g.GenerateCopy(context.Background(), uuid.New(), ai.CopyRequest{ContentType: "post", Style: "ugc"})
		assert.ErrorIs(t, err, ai.ErrUnexpectedCopy)
	})

	t.Run("invalid json", func(t *testing.T) {
		t.Parallel()

		g := ai.NewGeminiWith(&fakeModels{text: "sorry"}, new(MockFiles), ai.Config{})
		_, err := g.GenerateCopy(context.Background(), uuid.New(), ai.CopyRequest{ContentType: "post", Style: "ugc"})
		assert.ErrorIs(t, err, ai.ErrInvalidResponse)
	})
}

func TestFal(t *testing.T) {
	t.Parallel()

	_, err := ai.NewFal(ai.Config{})
	assert.ErrorIs(t, err, ai.ErrMissingAPIKey)

	t.Run("generate and fetch", func(t *testing.T) {
		t.Parallel()

		var srv *httptest.Server
		srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/cassetteai/music-gen":
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "Key secret", r.Header.Get("Authorization"))
				var body map[string]any
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "chill background music for social media content", body["prompt"])
				assert.Equal(t, float64(30), body["duration"])
				_, _ = w.Write([]byte(`{"audio_file": {"url": "` + srv.URL + `/track.wav"}}`))
			case "/track.wav":
				_, _ = w.Write([]byte("RIFF"))
			default:
				http.NotFound(w, r)
			}
		}))
		t.Cleanup(srv.Close)

		costs := &telemetry.Recorder{}
		f, err := ai.NewFal(ai.Config{FalKey: "secret", FalBaseURL: srv.URL}, ai.WithFalCostLogger(costs))
		require.NoError(t, err)

		url, err := f.GenerateMusic(context.Background(), uuid.New(), "chill", 30)
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/track.wav", url)

		var buf strings.Builder
		require.NoError(t, f.Fetch(context.Background(), url, &buf))
		assert.Equal(t, "RIFF", buf.String())

		entries := costs.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, telemetry.ServiceFal, entries[0].Service)
		assert.Equal(t, "cassetteai", entries[0].Endpoint)
	})

	t.Run("errors", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/empty" {
				_, _ = w.Write([]byte(`{}`))
				return
			}
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		t.Cleanup(srv.Close)

		f, err := ai.NewFal(ai.Config{FalKey: "k", FalBaseURL: srv.URL, MusicModel: "empty"})
		require.NoError(t, err)
		_, err = f.GenerateMusic(context.Background(), uuid.New(), "calm", 10)
		assert.ErrorIs(t, err, ai.ErrNoAudio)

		f, err = ai.NewFal(ai.Config{FalKey: "k", FalBaseURL: srv.URL})
		require.NoError(t, err)
		_, err = f.GenerateMusic(context.Background(), uuid.New(), "calm", 10)
		var falErr *ai.FalError
		require.ErrorAs(t, err, &falErr)
		assert.Equal(t, http.StatusServiceUnavailable, falErr.StatusCode)
		assert.ErrorContains(t, err, "503")
	})
}
