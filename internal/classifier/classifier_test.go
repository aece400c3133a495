package classifier_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Niabag/Plublista-sub000/internal/classifier"
)

func TestClassify_TypedErrors(t *testing.T) {
	t.Parallel()

	t.Run("permanent publish", func(t *testing.T) {
		t.Parallel()

		err := classifier.PermanentPublish(errors.New("Something weird happened"))
		assert.Equal(t, classifier.Permanent, classifier.Classify(err))
	})

	t.Run("permanent render wrapped", func(t *testing.T) {
		t.Parallel()

		err := fmt.Errorf("render: %w", classifier.PermanentRender(errors.New("no clips")))
		assert.Equal(t, classifier.Permanent, classifier.Classify(err))
	})

	t.Run("typed error beats message", func(t *testing.T) {
		t.Parallel()

		err := classifier.PermanentPublish(errors.New("HTTP 503"))
		assert.Equal(t, classifier.Permanent, classifier.Classify(err))
	})

	t.Run("media format", func(t *testing.T) {
		t.Parallel()

		err := &classifier.MediaFormatError{Msg: "bad file", Key: "a.webp", Suggested: "jpeg"}
		assert.Equal(t, classifier.Format, classifier.Classify(err))
	})
}

func TestClassify_Messages(t *testing.T) {
	t.Parallel()

	cases := map[string]classifier.Category{
		"Rate limit exceeded":                                  classifier.Transient,
		"Request timed out":                                    classifier.Transient,
		"HTTP 502 Bad Gateway":                                 classifier.Transient,
		"ECONNRESET":                                           classifier.Transient,
		"Network error occurred":                               classifier.Transient,
		"Service temporarily unavailable":                      classifier.Transient,
		"Unsupported image format":                             classifier.Format,
		"Invalid media type":                                   classifier.Format,
		"Media type not supported":                             classifier.Format,
		"webp not supported on this platform":                  classifier.Format,
		"Invalid credentials provided":                         classifier.Permanent,
		"Unauthorized access":                                  classifier.Permanent,
		"Permission denied for this resource":                  classifier.Permanent,
		"Content policy violation":                             classifier.Permanent,
		"Access token invalid or expired":                      classifier.Permanent,
		"Account suspended":                                    classifier.Permanent,
		"clip_0.mp4: Invalid data found when processing input": classifier.Permanent,
		"Something weird happened":                             classifier.Unknown,
	}

	for msg, want := range cases {
		t.Run(msg, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, want, classifier.Classify(errors.New(msg)))
		})
	}
}

func TestClassify_Precedence(t *testing.T) {
	t.Parallel()

	// format wins over transient digits
	assert.Equal(t, classifier.Format, classifier.Classify(errors.New("Instagram container creation failed (500): unsupported image format")))
	// permanent wins over transient
	assert.Equal(t, classifier.Permanent, classifier.Classify(errors.New("401 unauthorized, then timeout")))
	assert.Equal(t, classifier.Unknown, classifier.Classify(nil))
}

func TestCategory_Retryable(t *testing.T) {
	t.Parallel()

	assert.True(t, classifier.Transient.Retryable())
	assert.True(t, classifier.Format.Retryable())
	assert.True(t, classifier.Unknown.Retryable())
	assert.False(t, classifier.Permanent.Retryable())
}
