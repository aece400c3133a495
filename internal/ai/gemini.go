// Package ai talks to the generative models used by the render pipeline:
// Gemini for clip analysis and copywriting, fal.ai for background music.
package ai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"google.golang.org/genai"

	"github.com/Niabag/Plublista-sub000/internal/telemetry"
)

// Models is the generation surface of the genai client.
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Files is the Files API surface of the genai client.
type Files interface {
	Upload(ctx context.Context, r io.Reader, config *genai.UploadFileConfig) (*genai.File, error)
	Get(ctx context.Context, name string, config *genai.GetFileConfig) (*genai.File, error)
	Delete(ctx context.Context, name string, config *genai.DeleteFileConfig) (*genai.DeleteFileResponse, error)
}

type Gemini struct {
	models Models
	files  Files
	cfg    Config
	costs  telemetry.CostLogger
	log    *slog.Logger
}

type Option func(*Gemini)

func WithCostLogger(c telemetry.CostLogger) Option {
	return func(g *Gemini) { g.costs = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gemini) { g.log = l }
}

// NewGemini builds a client for the Gemini developer API.
func NewGemini(ctx context.Context, cfg Config, opts ...Option) (*Gemini, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return NewGeminiWith(client.Models, client.Files, cfg, opts...), nil
}

// NewGeminiWith wires explicit Models and Files implementations.
func NewGeminiWith(models Models, files Files, cfg Config, opts ...Option) *Gemini {
	g := &Gemini{
		models: models,
		files:  files,
		cfg:    cfg.withDefaults(),
		costs:  telemetry.Nop{},
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// per million tokens
const (
	proInputRate    = 1.25
	proOutputRate   = 10.0
	flashInputRate  = 0.30
	flashOutputRate = 2.50

	analysisFallbackCost = 0.05
	copyFallbackCost     = 0.001
)

func tokenCost(resp *genai.GenerateContentResponse, inRate, outRate, fallback float64) float64 {
	if resp == nil || resp.UsageMetadata == nil {
		return fallback
	}
	u := resp.UsageMetadata
	return float64(u.PromptTokenCount)/1_000_000*inRate + float64(u.CandidatesTokenCount)/1_000_000*outRate
}

var (
	closedFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	openFence   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*)")
)

// stripCodeFences unwraps JSON a model put inside a markdown fence, including
// a fence left open by a truncated response.
func stripCodeFences(text string) string {
	if m := closedFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := openFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
