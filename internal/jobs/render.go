package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/Niabag/Plublista-sub000/internal/ai"
	"github.com/Niabag/Plublista-sub000/internal/classifier"
	"github.com/Niabag/Plublista-sub000/internal/content"
	"github.com/Niabag/Plublista-sub000/internal/logger"
	"github.com/Niabag/Plublista-sub000/internal/render"
	"github.com/Niabag/Plublista-sub000/internal/storage"
	"github.com/Niabag/Plublista-sub000/internal/store"
)

var ErrNoClips = errors.New("content item has no source clips")

// Render builds a montage from the item's source clips: analysis, music,
// copy, timeline, ffmpeg, upload. Music and copy failures degrade the result
// instead of failing the job.
func (p *Processor) Render(ctx context.Context, job RenderJob) error {
	log := p.log.With(logger.UserID(job.UserID), logger.ContentItemID(job.ContentItemID))

	item, err := p.Store.GetContent(ctx, job.UserID, job.ContentItemID)
	if err != nil {
		if errors.Is(err, store.ErrContentNotFound) {
			return classifier.PermanentRender(err)
		}
		return err
	}
	if len(item.MediaKeys) == 0 {
		return classifier.PermanentRender(ErrNoClips)
	}
	style, format, duration, musicPrompt := item.RenderSettings()

	dir, cleanup, err := p.Renderer.Workspace(item.ID.String())
	if err != nil {
		return err
	}
	defer cleanup()

	clips, err := p.fetchClips(ctx, item.MediaKeys, dir)
	if err != nil {
		return err
	}

	narrative, err := p.Analyzer.AnalyzeClips(ctx, job.UserID, clips, style, duration)
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "clip analysis complete", slog.Int("segments", len(narrative.OrderedSegments)))

	if item.MusicPrompt == nil || *item.MusicPrompt == "" || *item.MusicPrompt == "auto-match" {
		if narrative.SuggestedMood != "" {
			musicPrompt = narrative.SuggestedMood
		}
	}
	musicURL, err := p.Music.GenerateMusic(ctx, job.UserID, musicPrompt, duration)
	if err != nil {
		log.WarnContext(ctx, "music generation failed, continuing without music", logger.Error(err))
		musicURL = ""
	}

	copyText, err := p.Analyzer.GenerateCopy(ctx, job.UserID, ai.CopyRequest{
		ContentType: string(item.Type),
		Style:       style,
		Narrative:   narrative.OverallNarrative,
		Transcript:  narrative.Transcript(),
		Mood:        narrative.SuggestedMood,
	})
	if err != nil {
		log.WarnContext(ctx, "copy generation failed, continuing without copy", logger.Error(err))
		copyText = nil
	}

	tl := timeline(narrative, clips, float64(duration))
	tl.Format = string(format)
	tl.Style = style
	if musicURL != "" {
		tl.MusicPath = p.fetchMusic(ctx, log, musicURL, dir)
	}

	out, err := p.Renderer.Compose(ctx, tl, dir)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return fmt.Errorf("read rendered video: %w", err)
	}

	key := storage.UploadKey(job.UserID, item.ID.String()+"-render.mp4")
	if err := p.Objects.Upload(ctx, key, data, "video/mp4"); err != nil {
		return err
	}

	result := content.RenderResult{GeneratedMediaKey: key}
	if musicURL != "" {
		result.MusicURL = &musicURL
	}
	if copyText != nil {
		result.Caption = &copyText.Caption
		result.Hashtags = copyText.Hashtags
		result.HookText = &copyText.HookText
		result.CTAText = &copyText.CTAText
	}
	if err := p.Store.SaveRender(ctx, item.ID, result); err != nil {
		return err
	}

	log.InfoContext(ctx, "render complete", slog.String("key", key), slog.Int("bytes", len(data)))
	return nil
}

// fetchClips downloads every source clip into dir and probes it. Probe and
// silence failures only cost the model some context.
func (p *Processor) fetchClips(ctx context.Context, keys []string, dir string) ([]ai.Clip, error) {
	clips := make([]ai.Clip, len(keys))
	for i, key := range keys {
		ext := path.Ext(key)
		if ext == "" {
			ext = ".mp4"
		}
		local := filepath.Join(dir, fmt.Sprintf("clip_%d%s", i, ext))
		if err := p.download(ctx, key, local); err != nil {
			return nil, err
		}

		clip := ai.Clip{Path: local, Index: i}
		if d, err := p.Renderer.Probe(ctx, local); err == nil {
			clip.DurationSec = d
		} else {
			p.log.WarnContext(ctx, "probe clip", slog.String("key", key), logger.Error(err))
		}
		if silences, err := p.Renderer.DetectSilence(ctx, local); err == nil {
			for _, s := range silences {
				clip.Silences = append(clip.Silences, ai.Span{Start: s.Start, End: s.End})
			}
		} else {
			p.log.WarnContext(ctx, "detect silence", slog.String("key", key), logger.Error(err))
		}
		clips[i] = clip
	}
	return clips, nil
}

func (p *Processor) download(ctx context.Context, key, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create clip file: %w", err)
	}
	if _, err := p.Objects.DownloadTo(ctx, key, f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// fetchMusic downloads the track and returns its local path, or "" when the
// download failed.
func (p *Processor) fetchMusic(ctx context.Context, log *slog.Logger, url, dir string) string {
	dst := filepath.Join(dir, "music.mp3")
	f, err := os.Create(dst)
	if err != nil {
		log.WarnContext(ctx, "create music file", logger.Error(err))
		return ""
	}
	err = p.Music.Fetch(ctx, url, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		log.WarnContext(ctx, "music download failed, continuing without music", logger.Error(err))
		_ = os.Remove(dst)
		return ""
	}
	return dst
}

// timeline turns the model's segments into local ranges, padded with the
// rest of the clips when they fall short of target seconds.
func timeline(n *ai.Narrative, clips []ai.Clip, target float64) render.Timeline {
	ranges := make([]render.ClipRange, 0, len(n.OrderedSegments))
	for _, s := range n.OrderedSegments {
		ranges = append(ranges, render.ClipRange{Clip: s.ClipIndex, Start: s.StartSec, End: s.EndSec})
	}
	durations := make([]float64, len(clips))
	for i, c := range clips {
		durations[i] = c.DurationSec
	}
	ranges = render.PadTimeline(ranges, durations, target)

	tl := render.Timeline{TotalSec: target}
	for _, r := range ranges {
		if r.Clip < 0 || r.Clip >= len(clips) || r.Duration() <= 0 {
			continue
		}
		tl.Segments = append(tl.Segments, render.Segment{Path: clips[r.Clip].Path, Start: r.Start, End: r.End})
	}
	return tl
}
