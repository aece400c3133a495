package render

import (
	"fmt"
	"slices"
	"strings"
)

// HookDuration is the length of the opening hook shot, in seconds.
const HookDuration = 1.7

type Transition struct {
	Name     string
	Duration float64
}

var transitions = map[string]Transition{
	"dynamic":   {Name: "slideleft", Duration: 0.3},
	"cinematic": {Name: "dissolve", Duration: 1.0},
	"ugc":       {Name: "fade", Duration: 0.15},
	"tutorial":  {Name: "fadeblack", Duration: 0.5},
	"hype":      {Name: "radial", Duration: 0.2},
}

// TransitionFor returns the xfade transition for a montage style. Unknown
// styles get the dynamic transition.
func TransitionFor(style string) Transition {
	if t, ok := transitions[style]; ok {
		return t
	}
	return transitions["dynamic"]
}

// Resolution returns the output frame size for an aspect ratio. Unknown
// formats render vertically.
func Resolution(format string) (width, height int) {
	switch format {
	case "16:9":
		return 1920, 1080
	case "1:1":
		return 1080, 1080
	default:
		return 1080, 1920
	}
}

// ClipRange is a time range of one source clip, in seconds.
type ClipRange struct {
	Clip  int
	Start float64
	End   float64
}

func (r ClipRange) Duration() float64 { return r.End - r.Start }

// Covered sums the durations of ranges.
func Covered(ranges []ClipRange) float64 {
	var total float64
	for _, r := range ranges {
		total += r.Duration()
	}
	return total
}

// PadTimeline fills the gaps between selected ranges when they cover less
// than target seconds. durations holds each clip's length by clip index; a
// zero length is unknown and bounded by target. The padded result is ordered
// by clip, then start time. Ranges that already cover target are returned
// unchanged.
func PadTimeline(ranges []ClipRange, durations []float64, target float64) []ClipRange {
	if Covered(ranges) >= target {
		return ranges
	}

	out := slices.Clone(ranges)
	for clip, length := range durations {
		if length <= 0 {
			length = target
		}

		var existing []ClipRange
		for _, r := range ranges {
			if r.Clip == clip {
				existing = append(existing, r)
			}
		}
		slices.SortFunc(existing, func(a, b ClipRange) int { return cmpFloat(a.Start, b.Start) })

		cursor := 0.0
		for _, r := range existing {
			if r.Start > cursor {
				out = append(out, ClipRange{Clip: clip, Start: cursor, End: r.Start})
			}
			cursor = max(cursor, r.End)
		}
		if cursor < length {
			out = append(out, ClipRange{Clip: clip, Start: cursor, End: length})
		}
	}

	slices.SortStableFunc(out, func(a, b ClipRange) int {
		if a.Clip != b.Clip {
			return a.Clip - b.Clip
		}
		return cmpFloat(a.Start, b.Start)
	})
	return out
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// XfadeFilter chains n video inputs with xfade and concatenates their audio.
// durations are the real lengths of the normalized inputs. The graph exposes
// [vout] and [aout].
func XfadeFilter(durations []float64, t Transition) string {
	n := len(durations)
	parts := make([]string, 0, n)

	prev := "[0:v]"
	cumulative := durations[0]
	for i := 1; i < n; i++ {
		offset := max(0, cumulative-t.Duration)
		out := fmt.Sprintf("[v%d]", i)
		if i == n-1 {
			out = "[vout]"
		}
		parts = append(parts, fmt.Sprintf("%s[%d:v]xfade=transition=%s:duration=%s:offset=%.3f%s",
			prev, i, t.Name, trimFloat(t.Duration), offset, out))
		prev = out
		cumulative = offset + durations[i]
	}

	var audio strings.Builder
	for i := range n {
		fmt.Fprintf(&audio, "[%d:a]", i)
	}
	parts = append(parts, fmt.Sprintf("%sconcat=n=%d:v=0:a=1[aout]", audio.String(), n))
	return strings.Join(parts, ";")
}

func trimFloat(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", f), "0"), ".")
}
