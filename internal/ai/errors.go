package ai

import "errors"

var (
	ErrMissingAPIKey     = errors.New("ai provider api key is not configured")
	ErrNoClips           = errors.New("no clips to analyze")
	ErrInvalidResponse   = errors.New("model returned invalid JSON")
	ErrEmptySegments     = errors.New("model returned empty segments")
	ErrUnexpectedCopy    = errors.New("model returned unexpected copy structure")
	ErrFileProcessing    = errors.New("gemini file processing failed")
	ErrFileProcessingTTL = errors.New("gemini file processing timed out")
	ErrNoAudio           = errors.New("music generation returned no audio url")
)
