package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/Niabag/Plublista-sub000/internal/telemetry"
)

// Span is a time range inside a clip, in seconds.
type Span struct {
	Start float64
	End   float64
}

// Clip is a downloaded source video ready for analysis.
type Clip struct {
	Path        string
	Index       int
	DurationSec float64
	Silences    []Span
}

type Segment struct {
	ClipIndex         int     `json:"clipIndex"`
	StartSec          float64 `json:"startSec"`
	EndSec            float64 `json:"endSec"`
	NarrativeRole     string  `json:"narrativeRole"`
	EnergyLevel       string  `json:"energyLevel"`
	TranscriptExcerpt string  `json:"transcriptExcerpt"`
}

// Narrative is the model's edit plan for a montage.
type Narrative struct {
	OrderedSegments  []Segment `json:"orderedSegments"`
	OverallNarrative string    `json:"overallNarrative"`
	SuggestedMood    string    `json:"suggestedMood"`
}

// Transcript joins the excerpts of all segments.
func (n *Narrative) Transcript() string {
	var parts []string
	for _, s := range n.OrderedSegments {
		if s.TranscriptExcerpt != "" {
			parts = append(parts, s.TranscriptExcerpt)
		}
	}
	return strings.Join(parts, " ")
}

// AnalyzeClips asks the model for an ordered list of segments that tells a
// story in roughly targetSec seconds. Clips above the inline limit go through
// the Files API and are deleted afterwards.
func (g *Gemini) AnalyzeClips(ctx context.Context, userID uuid.UUID, clips []Clip, style string, targetSec int) (*Narrative, error) {
	if len(clips) == 0 {
		return nil, ErrNoClips
	}

	var uploaded []string
	defer func() {
		for _, name := range uploaded {
			if _, err := g.files.Delete(context.WithoutCancel(ctx), name, nil); err != nil {
				g.log.WarnContext(ctx, "gemini file delete failed", slog.String("file", name), slog.String("error", err.Error()))
			}
		}
	}()

	var parts []*genai.Part
	for _, c := range clips {
		part, name, err := g.clipPart(ctx, c)
		if name != "" {
			uploaded = append(uploaded, name)
		}
		if err != nil {
			return nil, err
		}
		parts = append(parts, &genai.Part{Text: fmt.Sprintf("[Clip %d]", c.Index)}, part)
	}
	parts = append(parts, &genai.Part{Text: analysisPrompt(clips, style, targetSec)})

	ctx, cancel := context.WithTimeout(ctx, g.cfg.AnalysisTimeout)
	defer cancel()

	temperature := float32(0.2)
	resp, err := g.models.GenerateContent(ctx, g.cfg.AnalysisModel,
		[]*genai.Content{{Role: "user", Parts: parts}},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			Temperature:      &temperature,
		})
	if err != nil {
		return nil, fmt.Errorf("gemini video analysis: %w", err)
	}

	var n Narrative
	if err := json.Unmarshal([]byte(stripCodeFences(resp.Text())), &n); err != nil {
		return nil, errors.Join(ErrInvalidResponse, err)
	}
	n.OrderedSegments = validSegments(n.OrderedSegments, clips)
	if len(n.OrderedSegments) == 0 {
		return nil, ErrEmptySegments
	}

	g.costs.LogCost(ctx, userID, telemetry.ServiceGemini, "video-analysis",
		tokenCost(resp, proInputRate, proOutputRate, analysisFallbackCost))
	return &n, nil
}

// validSegments drops segments that point outside the known clips or have no
// length, and clamps the end to the clip duration when it is known.
func validSegments(segs []Segment, clips []Clip) []Segment {
	durations := make(map[int]float64, len(clips))
	for _, c := range clips {
		durations[c.Index] = c.DurationSec
	}
	out := segs[:0]
	for _, s := range segs {
		d, ok := durations[s.ClipIndex]
		if !ok {
			continue
		}
		if s.StartSec < 0 {
			s.StartSec = 0
		}
		if d > 0 && s.EndSec > d {
			s.EndSec = d
		}
		if s.EndSec <= s.StartSec {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (g *Gemini) clipPart(ctx context.Context, c Clip) (*genai.Part, string, error) {
	info, err := os.Stat(c.Path)
	if err != nil {
		return nil, "", fmt.Errorf("stat clip %d: %w", c.Index, err)
	}
	if info.Size() <= g.cfg.InlineLimit {
		data, err := os.ReadFile(c.Path)
		if err != nil {
			return nil, "", fmt.Errorf("read clip %d: %w", c.Index, err)
		}
		return &genai.Part{InlineData: &genai.Blob{MIMEType: "video/mp4", Data: data}}, "", nil
	}

	f, err := os.Open(c.Path)
	if err != nil {
		return nil, "", fmt.Errorf("open clip %d: %w", c.Index, err)
	}
	defer f.Close()

	file, err := g.files.Upload(ctx, f, &genai.UploadFileConfig{
		MIMEType:    "video/mp4",
		DisplayName: fmt.Sprintf("clip-%d", c.Index),
	})
	if err != nil {
		return nil, "", fmt.Errorf("upload clip %d: %w", c.Index, err)
	}

	deadline := time.Now().Add(g.cfg.FilePollTimeout)
	for file.State == genai.FileStateProcessing {
		if time.Now().After(deadline) {
			return nil, file.Name, fmt.Errorf("%w for clip %d", ErrFileProcessingTTL, c.Index)
		}
		select {
		case <-ctx.Done():
			return nil, file.Name, ctx.Err()
		case <-time.After(g.cfg.FilePollInterval):
		}
		name := file.Name
		file, err = g.files.Get(ctx, name, nil)
		if err != nil {
			return nil, name, fmt.Errorf("get clip %d state: %w", c.Index, err)
		}
	}
	if file.State == genai.FileStateFailed {
		return nil, file.Name, fmt.Errorf("%w for clip %d", ErrFileProcessing, c.Index)
	}
	return &genai.Part{FileData: &genai.FileData{MIMEType: file.MIMEType, FileURI: file.URI}}, file.Name, nil
}

func analysisPrompt(clips []Clip, style string, targetSec int) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "You are a professional video editor creating a %s social media montage.\n\n", style)

	b.WriteString("## Available Clips\n")
	for _, c := range clips {
		fmt.Fprintf(&b, "Clip %d: %.1fs\n", c.Index, c.DurationSec)
	}

	b.WriteString("\n## Silence Regions (good cut points)\n")
	for _, c := range clips {
		if len(c.Silences) == 0 {
			fmt.Fprintf(&b, "Clip %d: no silence detected\n", c.Index)
			continue
		}
		regions := make([]string, len(c.Silences))
		for i, s := range c.Silences {
			regions[i] = fmt.Sprintf("%.1f-%.1fs", s.Start, s.End)
		}
		fmt.Fprintf(&b, "Clip %d: %s\n", c.Index, strings.Join(regions, ", "))
	}

	fmt.Fprintf(&b, `
## Instructions
Create a compelling %[1]s montage targeting %[2]ds total duration.

Rules:
- Select the most engaging segments from the clips
- Order segments to create a coherent narrative arc (hook, development, climax, conclusion)
- Prefer cutting at silence boundaries or between words (never mid-word)
- The startSec/endSec must be within the clip's actual duration
- Each segment should be at least 2 seconds long
- Segments can come from the same clip multiple times if needed
- Total segment durations should sum close to %[2]ds (within 10%%)

Respond with ONLY valid JSON matching this schema:
{
  "orderedSegments": [
    {
      "clipIndex": number,
      "startSec": number,
      "endSec": number,
      "narrativeRole": "hook" | "development" | "climax" | "conclusion",
      "energyLevel": "low" | "medium" | "high",
      "transcriptExcerpt": "brief text from this segment"
    }
  ],
  "overallNarrative": "one-sentence description of the montage story",
  "suggestedMood": "one or two words describing the mood for background music"
}`, style, targetSec)
	return b.String()
}
