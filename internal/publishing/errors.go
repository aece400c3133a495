package publishing

import "errors"

var (
	ErrNotPublishable        = errors.New("only draft or failed content can be published")
	ErrNotSchedulable        = errors.New("only draft or failed content can be scheduled")
	ErrNotScheduled          = errors.New("only scheduled content can be cancelled")
	ErrNotRenderable         = errors.New("only draft or failed reels can be rendered")
	ErrInstagramNotConnected = errors.New("instagram account not connected, connect your account in settings")
	ErrPlatformsNotConnected = errors.New("platforms not connected, connect them in settings")
	ErrPaidPlanRequired      = errors.New("multi-platform publishing requires a paid plan")
	ErrPlatformLimit         = errors.New("too many platforms for the current plan")
	ErrNoPlatforms           = errors.New("at least one platform is required")
	ErrScheduleTooSoon       = errors.New("scheduled time must be at least 5 minutes in the future")
	ErrEnqueue               = errors.New("failed to enqueue job")
)
