// Package render composes montages from source clips with ffmpeg.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Segment is a range of a local clip file.
type Segment struct {
	Path  string
	Start float64
	End   float64
}

// Timeline is everything Compose needs to produce the final video.
type Timeline struct {
	Segments  []Segment
	TotalSec  float64
	Format    string
	Style     string
	MusicPath string
}

type Renderer struct {
	cfg Config
	run Runner
	log *slog.Logger
}

type Option func(*Renderer)

func WithRunner(r Runner) Option {
	return func(rd *Renderer) { rd.run = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(rd *Renderer) { rd.log = l }
}

func New(cfg Config, opts ...Option) *Renderer {
	r := &Renderer{
		cfg: cfg.withDefaults(),
		run: ExecRunner{},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Workspace creates a fresh scratch directory for one content item. The
// returned cleanup removes it and is safe to call more than once.
func (r *Renderer) Workspace(contentItemID string) (string, func(), error) {
	dir := filepath.Join(r.cfg.TempRoot, contentItemID)
	if err := os.RemoveAll(dir); err != nil {
		return "", nil, fmt.Errorf("reset render dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create render dir: %w", err)
	}
	return dir, func() {
		if err := os.RemoveAll(dir); err != nil {
			r.log.Warn("render dir cleanup failed", slog.String("dir", dir), slog.String("error", err.Error()))
		}
	}, nil
}

// Probe returns the container duration of a media file in seconds.
func (r *Renderer) Probe(ctx context.Context, path string) (float64, error) {
	out, err := r.run.Run(ctx, r.cfg.FFprobeBinary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return 0, commandError("ffprobe duration", err, out)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, strings.TrimSpace(string(out)))
	}
	return d, nil
}

// HasAudio reports whether a media file carries at least one audio stream.
func (r *Renderer) HasAudio(ctx context.Context, path string) (bool, error) {
	out, err := r.run.Run(ctx, r.cfg.FFprobeBinary,
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=index",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return false, commandError("ffprobe streams", err, out)
	}
	return strings.TrimSpace(string(out)) != "", nil
}

var (
	silenceStart = regexp.MustCompile(`silence_start:\s*(-?[\d.]+)`)
	silenceEnd   = regexp.MustCompile(`silence_end:\s*([\d.]+)`)
)

// Silence is a quiet region of a clip, in seconds.
type Silence struct {
	Start float64
	End   float64
}

// DetectSilence lists regions quieter than -30dB for at least half a second.
func (r *Renderer) DetectSilence(ctx context.Context, path string) ([]Silence, error) {
	out, err := r.run.Run(ctx, r.cfg.FFmpegBinary,
		"-hide_banner",
		"-i", path,
		"-af", "silencedetect=noise=-30dB:d=0.5",
		"-f", "null",
		"-",
	)
	if err != nil {
		return nil, commandError("ffmpeg silencedetect", err, out)
	}
	return parseSilences(string(out)), nil
}

func parseSilences(output string) []Silence {
	var (
		out     []Silence
		start   float64
		pending bool
	)
	for line := range strings.SplitSeq(output, "\n") {
		if m := silenceStart.FindStringSubmatch(line); m != nil {
			start, _ = strconv.ParseFloat(m[1], 64)
			start = max(start, 0)
			pending = true
			continue
		}
		if m := silenceEnd.FindStringSubmatch(line); m != nil && pending {
			end, _ := strconv.ParseFloat(m[1], 64)
			out = append(out, Silence{Start: start, End: end})
			pending = false
		}
	}
	return out
}

// Compose renders tl into dir and returns the path of the final mp4.
func (r *Renderer) Compose(ctx context.Context, tl Timeline, dir string) (string, error) {
	if len(tl.Segments) == 0 {
		return "", ErrEmptyTimeline
	}
	width, height := Resolution(tl.Format)
	transition := TransitionFor(tl.Style)

	normalized := make([]string, len(tl.Segments))
	durations := make([]float64, len(tl.Segments))
	for i, seg := range tl.Segments {
		out := filepath.Join(dir, fmt.Sprintf("segment_%d.mp4", i))
		if err := r.normalize(ctx, seg, out, width, height); err != nil {
			return "", err
		}
		d, err := r.Probe(ctx, out)
		if err != nil {
			return "", err
		}
		normalized[i] = out
		durations[i] = d
	}

	concat := filepath.Join(dir, "concat.mp4")
	if err := r.concat(ctx, normalized, durations, transition, concat); err != nil {
		return "", err
	}

	trimmed := filepath.Join(dir, "trimmed.mp4")
	if out, err := r.run.Run(ctx, r.cfg.FFmpegBinary,
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", concat,
		"-t", strconv.FormatFloat(tl.TotalSec, 'f', -1, 64),
		"-c", "copy",
		trimmed,
	); err != nil {
		return "", commandError("ffmpeg trim", err, out)
	}

	final := filepath.Join(dir, "output.mp4")
	if tl.MusicPath != "" && fileExists(tl.MusicPath) {
		if out, err := r.run.Run(ctx, r.cfg.FFmpegBinary,
			"-y", "-hide_banner", "-loglevel", "error",
			"-i", trimmed,
			"-i", tl.MusicPath,
			"-map", "0:v:0",
			"-map", "1:a:0",
			"-c:v", "copy",
			"-c:a", "aac",
			"-b:a", "128k",
			"-shortest",
			final,
		); err != nil {
			return "", commandError("ffmpeg music overlay", err, out)
		}
	} else if err := os.Rename(trimmed, final); err != nil {
		return "", fmt.Errorf("move rendered video: %w", err)
	}

	r.log.DebugContext(ctx, "montage composed",
		slog.Int("segments", len(tl.Segments)),
		slog.String("transition", transition.Name),
		slog.Float64("hook_sec", HookDuration),
		slog.Bool("music", tl.MusicPath != ""),
	)
	return final, nil
}

// normalize cuts one segment and re-encodes it to the shared frame size,
// frame rate and stereo audio so segments can be chained. Clips without an
// audio track get a silent one.
func (r *Renderer) normalize(ctx context.Context, seg Segment, out string, width, height int) error {
	dur := seg.End - seg.Start
	if dur <= 0 {
		return fmt.Errorf("%w: %s [%.2f, %.2f]", ErrInvalidSegment, filepath.Base(seg.Path), seg.Start, seg.End)
	}
	hasAudio, err := r.HasAudio(ctx, seg.Path)
	if err != nil {
		return err
	}

	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(seg.Start, 'f', 3, 64),
		"-t", strconv.FormatFloat(dur, 'f', 3, 64),
		"-i", seg.Path,
	}
	audioMap := "0:a:0"
	if !hasAudio {
		args = append(args,
			"-f", "lavfi",
			"-t", strconv.FormatFloat(dur, 'f', 3, 64),
			"-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
		)
		audioMap = "1:a:0"
	}
	args = append(args,
		"-vf", fmt.Sprintf("scale=%[1]d:%[2]d:force_original_aspect_ratio=decrease,pad=%[1]d:%[2]d:(ow-iw)/2:(oh-ih)/2:black", width, height),
		"-map", "0:v:0",
		"-map", audioMap,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-r", "30",
		"-c:a", "aac",
		"-b:a", "128k",
		"-ac", "2",
		"-ar", "44100",
		"-shortest",
		out,
	)
	if output, err := r.run.Run(ctx, r.cfg.FFmpegBinary, args...); err != nil {
		return commandError("ffmpeg normalize", err, output)
	}
	return nil
}

func (r *Renderer) concat(ctx context.Context, paths []string, durations []float64, t Transition, out string) error {
	if len(paths) == 1 {
		return copyFile(paths[0], out)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.ConcatTimeout)
	defer cancel()

	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	for _, p := range paths {
		args = append(args, "-i", p)
	}
	args = append(args,
		"-filter_complex", XfadeFilter(durations, t),
		"-map", "[vout]",
		"-map", "[aout]",
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-r", "30",
		"-c:a", "aac",
		"-b:a", "128k",
		out,
	)
	if output, err := r.run.Run(ctx, r.cfg.FFmpegBinary, args...); err != nil {
		return commandError("ffmpeg xfade", err, output)
	}
	return nil
}

// commandError keeps the tail of the tool output in the message; ffmpeg puts
// the decisive line last.
func commandError(step string, err error, output []byte) error {
	msg := strings.TrimSpace(string(output))
	if len(msg) > 512 {
		msg = msg[len(msg)-512:]
	}
	if msg == "" {
		return fmt.Errorf("%s: %w", step, err)
	}
	return fmt.Errorf("%s: %w: %s", step, err, msg)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open segment: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create concat output: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		return errors.Join(fmt.Errorf("copy segment: %w", err), out.Close())
	}
	return out.Close()
}
