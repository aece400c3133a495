// Package ayrshare publishes to several social platforms at once through the
// Ayrshare aggregator. Every user gets their own Ayrshare profile; requests
// on behalf of a user carry its profile key.
package ayrshare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrMissingAPIKey = errors.New("ayrshare api key is not configured")
	ErrEmptyProfile  = errors.New("ayrshare profile key is empty")
)

type Config struct {
	APIKey  string        `env:"AYRSHARE_API_KEY"`
	BaseURL string        `env:"AYRSHARE_BASE_URL" envDefault:"https://app.ayrshare.com/api"`
	Timeout time.Duration `env:"AYRSHARE_TIMEOUT" envDefault:"30s"`
}

// Error is a non-2xx Ayrshare response.
type Error struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ayrshare %s failed (%d): %s", e.Op, e.StatusCode, e.Body)
}

type Profile struct {
	Key    string `json:"profileKey"`
	RefURL string `json:"refUrl"`
	Title  string `json:"title"`
}

type PostRequest struct {
	Post          string
	Platforms     []string
	MediaURLs     []string
	ShortsYouTube bool
	// VideoTitle is sent as youTubeOptions.title when set.
	VideoTitle string
}

func (r PostRequest) MarshalJSON() ([]byte, error) {
	type youTubeOptions struct {
		Title string `json:"title"`
	}
	body := struct {
		Post           string          `json:"post"`
		Platforms      []string        `json:"platforms"`
		MediaURLs      []string        `json:"mediaUrls"`
		ShortsYouTube  bool            `json:"shortsYouTube,omitempty"`
		YouTubeOptions *youTubeOptions `json:"youTubeOptions,omitempty"`
	}{
		Post:          r.Post,
		Platforms:     r.Platforms,
		MediaURLs:     r.MediaURLs,
		ShortsYouTube: r.ShortsYouTube,
	}
	if body.Platforms == nil {
		body.Platforms = []string{}
	}
	if body.MediaURLs == nil {
		body.MediaURLs = []string{}
	}
	if r.VideoTitle != "" {
		body.YouTubeOptions = &youTubeOptions{Title: r.VideoTitle}
	}
	return json.Marshal(body)
}

// PlatformResult is the outcome for one platform of a bulk post.
type PlatformResult struct {
	Platform string `json:"platform"`
	Status   string `json:"status"`
	PostURL  string `json:"postUrl,omitempty"`
	ID       string `json:"id,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (r PlatformResult) Succeeded() bool { return r.Status == "success" }

type PostResponse struct {
	ID      string           `json:"id"`
	PostIDs []PlatformResult `json:"postIds"`
}

type Client struct {
	http *http.Client
	cfg  Config
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://app.ayrshare.com/api"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{http: http.DefaultClient, cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateProfile provisions a profile titled after the user id.
func (c *Client) CreateProfile(ctx context.Context, title string) (*Profile, error) {
	var p Profile
	if err := c.call(ctx, "profile creation", http.MethodPost, "/profiles/profile", "", map[string]string{"title": title}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ConnectedPlatforms lists the social accounts linked to the profile.
func (c *Client) ConnectedPlatforms(ctx context.Context, profileKey string) ([]string, error) {
	if profileKey == "" {
		return nil, ErrEmptyProfile
	}
	var out struct {
		Active []string `json:"activeSocialAccounts"`
	}
	if err := c.call(ctx, "user fetch", http.MethodGet, "/user", profileKey, nil, &out); err != nil {
		return nil, err
	}
	if out.Active == nil {
		return []string{}, nil
	}
	return out.Active, nil
}

// Publish sends one post to every requested platform. Per-platform failures
// are reported in the response, not as an error.
func (c *Client) Publish(ctx context.Context, profileKey string, req PostRequest) (*PostResponse, error) {
	if profileKey == "" {
		return nil, ErrEmptyProfile
	}
	var out PostResponse
	if err := c.call(ctx, "publish", http.MethodPost, "/post", profileKey, req, &out); err != nil {
		return nil, err
	}
	for i, r := range out.PostIDs {
		if r.Status != "success" {
			out.PostIDs[i].Status = "error"
		}
	}
	return &out, nil
}

func (c *Client) call(ctx context.Context, op, method, path, profileKey string, in, out any) error {
	if c.cfg.APIKey == "" {
		return ErrMissingAPIKey
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("ayrshare %s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("ayrshare %s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if profileKey != "" {
		req.Header.Set("Profile-Key", profileKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ayrshare %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &Error{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ayrshare %s: decode response: %w", op, err)
	}
	return nil
}
