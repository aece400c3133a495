// Package instagram publishes media through the Instagram Graph API using
// the two-step container flow: create a container, wait for it to finish
// processing, then publish it.
package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	BaseURL       string        `env:"INSTAGRAM_GRAPH_URL" envDefault:"https://graph.instagram.com/v21.0"`
	FetchTimeout  time.Duration `env:"INSTAGRAM_FETCH_TIMEOUT" envDefault:"10s"`
	WriteTimeout  time.Duration `env:"INSTAGRAM_WRITE_TIMEOUT" envDefault:"30s"`
	PollInterval  time.Duration `env:"INSTAGRAM_POLL_INTERVAL" envDefault:"3s"`
	PollMaxChecks int           `env:"INSTAGRAM_POLL_MAX_CHECKS" envDefault:"40"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:       "https://graph.instagram.com/v21.0",
		FetchTimeout:  10 * time.Second,
		WriteTimeout:  30 * time.Second,
		PollInterval:  3 * time.Second,
		PollMaxChecks: 40,
	}
}

type MediaType string

const (
	MediaCarousel MediaType = "CAROUSEL"
	MediaReels    MediaType = "REELS"
)

// ContainerParams maps to the form fields of POST /{ig-user-id}/media.
// Empty fields are omitted.
type ContainerParams struct {
	ImageURL       string
	VideoURL       string
	Caption        string
	MediaType      MediaType
	IsCarouselItem bool
	Children       []string
}

func (p ContainerParams) form() url.Values {
	v := url.Values{}
	if p.ImageURL != "" {
		v.Set("image_url", p.ImageURL)
	}
	if p.VideoURL != "" {
		v.Set("video_url", p.VideoURL)
	}
	if p.Caption != "" {
		v.Set("caption", p.Caption)
	}
	if p.MediaType != "" {
		v.Set("media_type", string(p.MediaType))
	}
	if p.IsCarouselItem {
		v.Set("is_carousel_item", "true")
	}
	if len(p.Children) > 0 {
		v.Set("children", strings.Join(p.Children, ","))
	}
	return v
}

type StatusCode string

const (
	StatusInProgress StatusCode = "IN_PROGRESS"
	StatusFinished   StatusCode = "FINISHED"
	StatusError      StatusCode = "ERROR"
	StatusExpired    StatusCode = "EXPIRED"
)

type ContainerStatus struct {
	Code   StatusCode `json:"status_code"`
	Status string     `json:"status,omitempty"`
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
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.PollMaxChecks <= 0 {
		cfg.PollMaxChecks = def.PollMaxChecks
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{http: http.DefaultClient, cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateContainer returns the id of the new media container.
func (c *Client) CreateContainer(ctx context.Context, token, igUserID string, p ContainerParams) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()

	var out struct {
		ID string `json:"id"`
	}
	if err := c.postForm(ctx, opCreate, "/"+igUserID+"/media", token, p.form(), &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) ContainerStatus(ctx context.Context, token, containerID string) (ContainerStatus, error) {
	var out ContainerStatus
	err := c.get(ctx, opStatus, "/"+containerID, token, url.Values{"fields": {"status_code,status"}}, &out)
	return out, err
}

// WaitUntilReady polls the container until it is FINISHED. ERROR and EXPIRED
// end the wait immediately.
func (c *Client) WaitUntilReady(ctx context.Context, token, containerID string) error {
	for i := 0; i < c.cfg.PollMaxChecks; i++ {
		st, err := c.ContainerStatus(ctx, token, containerID)
		if err != nil {
			return err
		}
		switch st.Code {
		case StatusFinished:
			return nil
		case StatusError, StatusExpired:
			reason := st.Status
			if reason == "" {
				reason = string(st.Code)
			}
			return fmt.Errorf("%w: %s", ErrContainerFailed, reason)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}
	return ErrContainerTimedOut
}

// Publish returns the id of the published media.
func (c *Client) Publish(ctx context.Context, token, igUserID, containerID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()

	var out struct {
		ID string `json:"id"`
	}
	form := url.Values{"creation_id": {containerID}}
	if err := c.postForm(ctx, opPublish, "/"+igUserID+"/media_publish", token, form, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) Permalink(ctx context.Context, token, mediaID string) (string, error) {
	var out struct {
		Permalink string `json:"permalink"`
	}
	if err := c.get(ctx, opPermalink, "/"+mediaID, token, url.Values{"fields": {"permalink"}}, &out); err != nil {
		return "", err
	}
	return out.Permalink, nil
}

// FallbackPermalink is used when the permalink lookup fails after publishing.
func FallbackPermalink(mediaID string) string {
	return "https://www.instagram.com/p/" + mediaID
}

func (c *Client) postForm(ctx context.Context, op, path, token string, form url.Values, out any) error {
	if token == "" {
		return ErrEmptyToken
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	form.Set("access_token", token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("instagram %s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, op, out)
}

func (c *Client) get(ctx context.Context, op, path, token string, query url.Values, out any) error {
	if token == "" {
		return ErrEmptyToken
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	query.Set("access_token", token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("instagram %s: %w", op, err)
	}
	return c.do(req, op, out)
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("instagram %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("instagram %s: decode response: %w", op, err)
	}
	return nil
}
