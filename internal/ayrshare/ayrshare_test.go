package ayrshare_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Niabag/Plublista-sub000/internal/ayrshare"
)

func newClient(t *testing.T, h http.HandlerFunc) *ayrshare.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return ayrshare.New(ayrshare.Config{APIKey: "key", BaseURL: srv.URL}, ayrshare.WithHTTPClient(srv.Client()))
}

func TestClient_CreateProfile(t *testing.T) {
	t.Parallel()

	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/profiles/profile", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("Profile-Key"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user-1", body["title"])
		fmt.Fprint(w, `{"profileKey":"pk","refUrl":"https://app.ayrshare.com/link","title":"user-1"}`)
	})

	p, err := c.CreateProfile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "pk", p.Key)
	assert.Equal(t, "https://app.ayrshare.com/link", p.RefURL)
}

func TestClient_ConnectedPlatforms(t *testing.T) {
	t.Parallel()

	t.Run("lists active accounts", func(t *testing.T) {
		t.Parallel()

		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/user", r.URL.Path)
			assert.Equal(t, "pk", r.Header.Get("Profile-Key"))
			fmt.Fprint(w, `{"activeSocialAccounts":["instagram","tiktok"]}`)
		})
		got, err := c.ConnectedPlatforms(context.Background(), "pk")
		require.NoError(t, err)
		assert.Equal(t, []string{"instagram", "tiktok"}, got)
	})

	t.Run("none linked", func(t *testing.T) {
		t.Parallel()

		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{}`)
		})
		got, err := c.ConnectedPlatforms(context.Background(), "pk")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("empty profile", func(t *testing.T) {
		t.Parallel()

		c := ayrshare.New(ayrshare.Config{APIKey: "key"})
		_, err := c.ConnectedPlatforms(context.Background(), "")
		assert.ErrorIs(t, err, ayrshare.ErrEmptyProfile)
	})
}

func TestClient_Publish(t *testing.T) {
	t.Parallel()

	t.Run("request body and partial results", func(t *testing.T) {
		t.Parallel()

		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/post", r.URL.Path)
			assert.Equal(t, "pk", r.Header.Get("Profile-Key"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "caption", body["post"])
			assert.Equal(t, []any{"youtube", "tiktok"}, body["platforms"])
			assert.Equal(t, []any{"https://cdn/v.mp4"}, body["mediaUrls"])
			assert.Equal(t, true, body["shortsYouTube"])
			assert.Equal(t, map[string]any{"title": "caption"}, body["youTubeOptions"])

			fmt.Fprint(w, `{"id":"post-1","postIds":[
				{"platform":"youtube","status":"success","postUrl":"https://youtu.be/x","id":"x"},
				{"platform":"tiktok","status":"pending","error":"Video too long"}]}`)
		})

		resp, err := c.Publish(context.Background(), "pk", ayrshare.PostRequest{
			Post:          "caption",
			Platforms:     []string{"youtube", "tiktok"},
			MediaURLs:     []string{"https://cdn/v.mp4"},
			ShortsYouTube: true,
			VideoTitle:    "caption",
		})
		require.NoError(t, err)
		assert.Equal(t, "post-1", resp.ID)
		require.Len(t, resp.PostIDs, 2)
		assert.True(t, resp.PostIDs[0].Succeeded())
		assert.Equal(t, "https://youtu.be/x", resp.PostIDs[0].PostURL)
		assert.False(t, resp.PostIDs[1].Succeeded())
		assert.Equal(t, "error", resp.PostIDs[1].Status)
		assert.Equal(t, "Video too long", resp.PostIDs[1].Error)
	})

	t.Run("optional fields omitted", func(t *testing.T) {
		t.Parallel()

		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.NotContains(t, body, "shortsYouTube")
			assert.NotContains(t, body, "youTubeOptions")
			assert.Equal(t, []any{}, body["mediaUrls"])
			fmt.Fprint(w, `{"id":"post-2"}`)
		})

		resp, err := c.Publish(context.Background(), "pk", ayrshare.PostRequest{Post: "p", Platforms: []string{"x"}})
		require.NoError(t, err)
		assert.Empty(t, resp.PostIDs)
	})

	t.Run("http error", func(t *testing.T) {
		t.Parallel()

		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, "upstream down")
		})
		_, err := c.Publish(context.Background(), "pk", ayrshare.PostRequest{Post: "p"})

		var apiErr *ayrshare.Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
		assert.Equal(t, "ayrshare publish failed (502): upstream down", err.Error())
	})

	t.Run("missing api key", func(t *testing.T) {
		t.Parallel()

		c := ayrshare.New(ayrshare.Config{})
		_, err := c.Publish(context.Background(), "pk", ayrshare.PostRequest{})
		assert.ErrorIs(t, err, ayrshare.ErrMissingAPIKey)
	})
}
