package render

import "errors"

var (
	ErrEmptyTimeline   = errors.New("render timeline has no segments")
	ErrInvalidSegment  = errors.New("render segment has no duration")
	ErrInvalidDuration = errors.New("ffprobe returned an invalid duration")
)
