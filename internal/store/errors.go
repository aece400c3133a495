package store

import "errors"

var (
	ErrContentNotFound    = errors.New("content item not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrConnectionNotFound = errors.New("platform connection not found")
	ErrJobNotFound        = errors.New("publish job not found")
	ErrNoJobs             = errors.New("no publish jobs given")
)
