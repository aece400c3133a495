// Package content holds the records shared by the publish and render
// pipelines: content items, publish jobs, users and platform connections.
package content

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeReel     Type = "reel"
	TypeCarousel Type = "carousel"
	TypePost     Type = "post"
)

// IsImage reports whether the item is published from still images.
func (t Type) IsImage() bool {
	return t == TypePost || t == TypeCarousel
}

type Status string

const (
	StatusDraft      Status = "draft"
	StatusGenerating Status = "generating"
	StatusScheduled  Status = "scheduled"
	StatusPublished  Status = "published"
	StatusFailed     Status = "failed"
	StatusRetrying   Status = "retrying"
)

// Publishable reports whether an item in this status may be handed to a
// publish path.
func (s Status) Publishable() bool {
	return s == StatusDraft || s == StatusFailed
}

type Format string

const (
	FormatPortrait  Format = "9:16"
	FormatLandscape Format = "16:9"
	FormatSquare    Format = "1:1"
)

// Dimensions returns the output frame size for a render.
func (f Format) Dimensions() (width, height int) {
	switch f {
	case FormatLandscape:
		return 1920, 1080
	case FormatSquare:
		return 1080, 1080
	default:
		return 1080, 1920
	}
}

const (
	DefaultStyle       = "dynamic"
	DefaultFormat      = FormatPortrait
	DefaultDuration    = 30
	DefaultMusicPrompt = "upbeat energetic"
)

// Item is a user-authored piece of content. MediaKeys are storage keys of the
// uploaded sources; GeneratedMediaKey is set once a render has finished.
type Item struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	Type              Type
	Title             string
	Status            Status
	Style             string
	Format            Format
	Duration          int
	MediaKeys         []string
	GeneratedMediaKey *string
	Caption           *string
	Hashtags          []string
	HookText          *string
	CTAText           *string
	MusicURL          *string
	MusicPrompt       *string
	ScheduledAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RenderSettings applies the defaults used when the item leaves fields empty.
func (it *Item) RenderSettings() (style string, format Format, duration int, musicPrompt string) {
	style, format, duration, musicPrompt = it.Style, it.Format, it.Duration, DefaultMusicPrompt
	if style == "" {
		style = DefaultStyle
	}
	if format == "" {
		format = DefaultFormat
	}
	if duration <= 0 {
		duration = DefaultDuration
	}
	if it.MusicPrompt != nil && *it.MusicPrompt != "" && *it.MusicPrompt != "auto-match" {
		musicPrompt = *it.MusicPrompt
	}
	return style, format, duration, musicPrompt
}

// PublishCaption joins the caption and the hashtags, separated by a blank line.
func (it *Item) PublishCaption() string {
	var parts []string
	if it.Caption != nil && *it.Caption != "" {
		parts = append(parts, *it.Caption)
	}
	if len(it.Hashtags) > 0 {
		tags := make([]string, len(it.Hashtags))
		for i, h := range it.Hashtags {
			tags[i] = "#" + h
		}
		parts = append(parts, strings.Join(tags, " "))
	}
	return strings.Join(parts, "\n\n")
}

// RenderResult is what a finished render writes back to the item.
type RenderResult struct {
	GeneratedMediaKey string
	MusicURL          *string
	Caption           *string
	Hashtags          []string
	HookText          *string
	CTAText           *string
}

type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
	PlatformTikTok    Platform = "tiktok"
	PlatformFacebook  Platform = "facebook"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformX         Platform = "x"
)

var platforms = []Platform{
	PlatformInstagram, PlatformYouTube, PlatformTikTok,
	PlatformFacebook, PlatformLinkedIn, PlatformX,
}

func (p Platform) Valid() bool {
	for _, v := range platforms {
		if v == p {
			return true
		}
	}
	return false
}

// ParsePlatforms validates and de-duplicates platform names, keeping order.
func ParsePlatforms(names []string) ([]Platform, error) {
	seen := make(map[Platform]bool, len(names))
	out := make([]Platform, 0, len(names))
	for _, n := range names {
		p := Platform(strings.ToLower(strings.TrimSpace(n)))
		if !p.Valid() {
			return nil, fmt.Errorf("unknown platform %q", n)
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobPublishing JobStatus = "publishing"
	JobPublished  JobStatus = "published"
	JobFailed     JobStatus = "failed"
	JobRetrying   JobStatus = "retrying"
)

// Terminal reports whether workers may no longer change the row.
func (s JobStatus) Terminal() bool {
	return s == JobPublished || s == JobFailed
}

const (
	ErrorCodeMediaFormat = "MEDIA_FORMAT_ERROR"
	ErrorCodeAggregator  = "AYRSHARE_ERROR"
)

// PublishJob tracks one platform delivery of a content item.
type PublishJob struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	ContentItemID uuid.UUID
	Platform      Platform
	Status        JobStatus
	PublishedURL  *string
	ErrorMessage  *string
	ErrorCode     *string
	AttemptCount  int
	ScheduledAt   *time.Time
	PublishedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// JobFailure is written to publish jobs by failure handlers. An empty Code
// leaves the stored code untouched.
type JobFailure struct {
	Status       JobStatus
	Message      string
	Code         string
	AttemptCount int
}

type Tier string

const (
	TierFree     Tier = "free"
	TierStarter  Tier = "starter"
	TierPro      Tier = "pro"
	TierBusiness Tier = "business"
	TierAgency   Tier = "agency"
)

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierStarter, TierPro, TierBusiness, TierAgency:
		return true
	}
	return false
}

func (t Tier) Paid() bool {
	return t.Valid() && t != TierFree
}

type User struct {
	ID    uuid.UUID
	Email string
	Tier  Tier
	// AggregatorProfileKey is stored encrypted.
	AggregatorProfileKey *string
}

// Connection is a linked platform account. AccessToken is stored encrypted.
type Connection struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Platform         Platform
	AccessToken      string
	PlatformUserID   string
	PlatformUsername string
	TokenExpiresAt   *time.Time
	ConnectedAt      time.Time
}
