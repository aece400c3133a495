package instagram

import (
	"errors"
	"fmt"
)

var (
	ErrContainerFailed   = errors.New("instagram container processing failed")
	ErrContainerTimedOut = errors.New("instagram container processing timed out")
	ErrEmptyToken        = errors.New("instagram access token is empty")
)

// APIError is a non-2xx response from the Graph API. The message keeps the
// status code and body so that callers can classify it.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	switch e.Op {
	case opCreate, opPublish:
		return fmt.Sprintf("instagram %s failed (%d): %s", e.Op, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("instagram %s failed: %d", e.Op, e.StatusCode)
	}
}

const (
	opCreate    = "container creation"
	opStatus    = "container status check"
	opPublish   = "publish"
	opPermalink = "permalink fetch"
)
