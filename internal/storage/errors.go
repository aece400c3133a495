package storage

import "errors"

var (
	ErrInvalidConfig      = errors.New("storage: bucket and endpoint or region are required")
	ErrFailedToLoadConfig = errors.New("storage: failed to load aws config")
	ErrInvalidKey         = errors.New("storage: invalid object key")
	ErrFileNotFound       = errors.New("storage: file not found")
	ErrBucketNotFound     = errors.New("storage: bucket not found")
	ErrAccessDenied       = errors.New("storage: access denied")
	ErrOperationTimeout   = errors.New("storage: operation timeout")
	ErrOperationCanceled  = errors.New("storage: operation canceled")
	ErrServiceUnavailable = errors.New("storage: service unavailable")
	ErrEmptyBody          = errors.New("storage: empty body")
)
