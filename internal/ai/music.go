package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Niabag/Plublista-sub000/internal/telemetry"
)

const musicCost = 0.01

// FalError is a non-2xx response from fal.ai.
type FalError struct {
	StatusCode int
	Body       string
}

func (e *FalError) Error() string {
	return fmt.Sprintf("fal music generation failed (%d): %s", e.StatusCode, e.Body)
}

// Fal generates background music through fal.ai.
type Fal struct {
	cfg   Config
	http  *http.Client
	costs telemetry.CostLogger
}

type FalOption func(*Fal)

func WithFalHTTPClient(c *http.Client) FalOption {
	return func(f *Fal) { f.http = c }
}

func WithFalCostLogger(c telemetry.CostLogger) FalOption {
	return func(f *Fal) { f.costs = c }
}

func NewFal(cfg Config, opts ...FalOption) (*Fal, error) {
	if cfg.FalKey == "" {
		return nil, ErrMissingAPIKey
	}
	cfg = cfg.withDefaults()
	f := &Fal{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.MusicTimeout},
		costs: telemetry.Nop{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

type musicResponse struct {
	AudioURL  string `json:"audio_url"`
	AudioFile *struct {
		URL string `json:"url"`
	} `json:"audio_file"`
}

// GenerateMusic returns the URL of a generated track matching mood.
func (f *Fal) GenerateMusic(ctx context.Context, userID uuid.UUID, mood string, durationSec int) (string, error) {
	body, err := json.Marshal(map[string]any{
		"prompt":   mood + " background music for social media content",
		"duration": durationSec,
	})
	if err != nil {
		return "", fmt.Errorf("marshal music request: %w", err)
	}

	endpoint := strings.TrimRight(f.cfg.FalBaseURL, "/") + "/" + f.cfg.MusicModel
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build music request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+f.cfg.FalKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fal music request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &FalError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	var out musicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode music response: %w", err)
	}
	url := out.AudioURL
	if url == "" && out.AudioFile != nil {
		url = out.AudioFile.URL
	}
	if url == "" {
		return "", ErrNoAudio
	}

	f.costs.LogCost(ctx, userID, telemetry.ServiceFal, "cassetteai", musicCost)
	return url, nil
}

// Fetch streams the track at url into w.
func (f *Fal) Fetch(ctx context.Context, url string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build music download: %w", err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("download music: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("download music: unexpected status %d", resp.StatusCode)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download music: %w", err)
	}
	return nil
}
