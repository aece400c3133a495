// Package classifier sorts job failures into retry categories.
package classifier

import (
	"errors"
	"regexp"
)

type Category string

const (
	Transient Category = "transient"
	Format    Category = "format"
	Permanent Category = "permanent"
	Unknown   Category = "unknown"
)

// Retryable reports whether the queue should redeliver after a failure of
// this category.
func (c Category) Retryable() bool {
	return c != Permanent
}

// Stage names the pipeline a PermanentError came from.
type Stage string

const (
	StagePublish Stage = "publish"
	StageRender  Stage = "render"
)

// PermanentError marks a failure that no retry can fix.
type PermanentError struct {
	Stage Stage
	Err   error
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return string(e.Stage) + ": permanent failure"
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error { return e.Err }

// PermanentPublish wraps err as a permanent publish failure.
func PermanentPublish(err error) error {
	return &PermanentError{Stage: StagePublish, Err: err}
}

// PermanentRender wraps err as a permanent render failure.
func PermanentRender(err error) error {
	return &PermanentError{Stage: StageRender, Err: err}
}

// MediaFormatError reports media the target platform refuses. Key is the
// storage key of the offending file and Suggested the format to convert to.
type MediaFormatError struct {
	Msg       string
	Key       string
	Suggested string
}

func (e *MediaFormatError) Error() string { return e.Msg }

var (
	transientPatterns = compile(
		`rate.?limit`,
		`too many requests`,
		`timeout`,
		`timed out`,
		`5\d{2}`,
		`ECONNRESET`,
		`ENOTFOUND`,
		`ETIMEDOUT`,
		`network`,
		`temporarily unavailable`,
		`service unavailable`,
	)

	formatPatterns = compile(
		`unsupported.*format`,
		`invalid.*media`,
		`media.*type.*not.*supported`,
		`invalid image`,
		`unsupported.*image`,
		`webp.*not.*supported`,
	)

	ffmpegPermanentPatterns = compile(
		`Invalid data found`,
		`Codec.*not found`,
		`No such file or directory`,
		`Invalid argument`,
		`does not contain any stream`,
		`Output file.*is empty`,
	)

	permanentPatterns = compile(
		`invalid.*credentials`,
		`unauthorized`,
		`permission.*denied`,
		`content.*policy`,
		`copyright`,
		`account.*suspended`,
		`token.*expired`,
		`access.*token.*invalid`,
	)
)

// compile builds case-insensitive matchers. The digit pattern is unaffected
// by the flag.
func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// Classify inspects typed errors in the chain first, then matches the message
// against the format, ffmpeg, permanent and transient lists in that order.
func Classify(err error) Category {
	if err == nil {
		return Unknown
	}

	var perm *PermanentError
	if errors.As(err, &perm) {
		return Permanent
	}
	var mf *MediaFormatError
	if errors.As(err, &mf) {
		return Format
	}

	msg := err.Error()
	switch {
	case matchAny(formatPatterns, msg):
		return Format
	case matchAny(ffmpegPermanentPatterns, msg), matchAny(permanentPatterns, msg):
		return Permanent
	case matchAny(transientPatterns, msg):
		return Transient
	}
	return Unknown
}

func matchAny(patterns []*regexp.Regexp, msg string) bool {
	for _, p := range patterns {
		if p.MatchString(msg) {
			return true
		}
	}
	return false
}
