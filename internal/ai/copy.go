package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/Niabag/Plublista-sub000/internal/telemetry"
)

const (
	maxCaption  = 2200
	maxHashtags = 5
	maxHook     = 50
	maxCTA      = 80
	maxExcerpt  = 500
)

// CopyRequest describes what the copy is for. Narrative, Transcript and Mood
// are optional context.
type CopyRequest struct {
	ContentType string
	Style       string
	Narrative   string
	Transcript  string
	Mood        string
}

// Copy is the generated social text for one content item.
type Copy struct {
	Caption  string
	Hashtags []string
	HookText string
	CTAText  string
}

type rawCopy struct {
	Caption  any `json:"caption"`
	Hashtags any `json:"hashtags"`
	HookText any `json:"hookText"`
	CTAText  any `json:"ctaText"`
}

// GenerateCopy writes a caption, hashtags, hook and call to action.
func (g *Gemini) GenerateCopy(ctx context.Context, userID uuid.UUID, req CopyRequest) (*Copy, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.CopyTimeout)
	defer cancel()

	resp, err := g.models.GenerateContent(ctx, g.cfg.CopyModel,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: copyPrompt(req)}}}},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"})
	if err != nil {
		return nil, fmt.Errorf("gemini copy generation: %w", err)
	}

	c, err := parseCopy(resp.Text())
	if err != nil {
		return nil, err
	}

	g.costs.LogCost(ctx, userID, telemetry.ServiceGemini, "copy",
		tokenCost(resp, flashInputRate, flashOutputRate, copyFallbackCost))
	return c, nil
}

func parseCopy(text string) (*Copy, error) {
	var raw rawCopy
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &raw); err != nil {
		return nil, errors.Join(ErrInvalidResponse, err)
	}

	caption, ok1 := raw.Caption.(string)
	hook, ok2 := raw.HookText.(string)
	cta, ok3 := raw.CTAText.(string)
	tags, ok4 := raw.Hashtags.([]any)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, ErrUnexpectedCopy
	}

	c := &Copy{
		Caption:  truncate(caption, maxCaption),
		HookText: truncate(hook, maxHook),
		CTAText:  truncate(cta, maxCTA),
		Hashtags: make([]string, 0, maxHashtags),
	}
	for _, t := range tags {
		s, ok := t.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(s), "#"))
		if s == "" {
			continue
		}
		c.Hashtags = append(c.Hashtags, s)
		if len(c.Hashtags) == maxHashtags {
			break
		}
	}
	return c, nil
}

func copyPrompt(req CopyRequest) string {
	var ctxLines []string
	if req.Narrative != "" {
		ctxLines = append(ctxLines, "Narrative: "+req.Narrative)
	}
	if req.Transcript != "" {
		ctxLines = append(ctxLines, "Transcript excerpt: "+truncate(req.Transcript, maxExcerpt))
	}
	if req.Mood != "" {
		ctxLines = append(ctxLines, "Mood: "+req.Mood)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Generate social media copy for a %s in \"%s\" style.\n", req.ContentType, req.Style)
	if len(ctxLines) > 0 {
		b.WriteString("\nContext:\n")
		b.WriteString(strings.Join(ctxLines, "\n"))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, `
Requirements:
- caption: engaging caption, max %d characters
- hashtags: 3 to %d relevant hashtags without the # symbol
- hookText: attention-grabbing opening line, max %d characters
- ctaText: call to action, max %d characters

Respond with ONLY valid JSON:
{"caption": "...", "hashtags": ["..."], "hookText": "...", "ctaText": "..."}`, maxCaption, maxHashtags, maxHook, maxCTA)
	return b.String()
}
