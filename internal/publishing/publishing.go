// Package publishing is the producer side of the pipeline. It validates
// publish, schedule and render requests, writes the pending rows and hands
// the work to the queue. Everything after the enqueue happens in jobs.
package publishing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Niabag/Plublista-sub000/internal/content"
	"github.com/Niabag/Plublista-sub000/internal/credits"
	"github.com/Niabag/Plublista-sub000/internal/jobs"
	"github.com/Niabag/Plublista-sub000/internal/logger"
	"github.com/Niabag/Plublista-sub000/internal/store"
)

// MinScheduleLead is how far ahead a scheduled publish must be.
const MinScheduleLead = 5 * time.Minute

// StatusLimit is the number of rows Status returns.
const StatusLimit = 5

type Store interface {
	GetContent(ctx context.Context, userID, id uuid.UUID) (*content.Item, error)
	SetContentStatus(ctx context.Context, id uuid.UUID, status content.Status) error
	ScheduleContent(ctx context.Context, id uuid.UUID, at *time.Time) error
	UnscheduleContent(ctx context.Context, id uuid.UUID) error

	CreatePublishJobs(ctx context.Context, userID, contentItemID uuid.UUID, platforms []content.Platform, scheduledAt *time.Time) ([]content.PublishJob, error)
	DeleteScheduledJobs(ctx context.Context, userID, contentItemID uuid.UUID) (int64, error)
	LatestPublishJobs(ctx context.Context, userID, contentItemID uuid.UUID, limit int) ([]content.PublishJob, error)

	GetUser(ctx context.Context, id uuid.UUID) (*content.User, error)
	GetConnection(ctx context.Context, userID uuid.UUID, platform content.Platform) (*content.Connection, error)
}

// Profiles hands out aggregator profile keys.
type Profiles interface {
	Existing(user *content.User) (string, bool, error)
	Provision(ctx context.Context, user *content.User) (key, refURL string, err error)
}

// Accounts lists the platforms linked to an aggregator profile.
type Accounts interface {
	ConnectedPlatforms(ctx context.Context, profileKey string) ([]string, error)
}

type Service struct {
	store    Store
	ledger   credits.Ledger
	enqueuer jobs.Enqueuer
	profiles Profiles
	accounts Accounts
	log      *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(st Store, ledger credits.Ledger, enq jobs.Enqueuer, profiles Profiles, accounts Accounts, opts ...Option) *Service {
	s := &Service{
		store:    st,
		ledger:   ledger,
		enqueuer: enq,
		profiles: profiles,
		accounts: accounts,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PublishNow publishes an item to the user's own Instagram account.
func (s *Service) PublishNow(ctx context.Context, userID, contentItemID uuid.UUID) (uuid.UUID, error) {
	item, err := s.store.GetContent(ctx, userID, contentItemID)
	if err != nil {
		return uuid.Nil, err
	}
	if !item.Status.Publishable() {
		return uuid.Nil, ErrNotPublishable
	}
	if err := s.requireInstagram(ctx, userID); err != nil {
		return uuid.Nil, err
	}

	rows, err := s.store.CreatePublishJobs(ctx, userID, item.ID, []content.Platform{content.PlatformInstagram}, nil)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.store.ScheduleContent(ctx, item.ID, nil); err != nil {
		return uuid.Nil, err
	}

	job := jobs.DirectPublishJob{PublishJobID: rows[0].ID, UserID: userID, ContentItemID: item.ID}
	if err := s.enqueue(ctx, item.ID, job, jobs.QueuePublish); err != nil {
		return uuid.Nil, err
	}

	s.log.InfoContext(ctx, "direct publish queued",
		logger.UserID(userID), logger.ContentItemID(item.ID), logger.PublishJobID(rows[0].ID))
	return rows[0].ID, nil
}

// PublishMulti publishes an item to several platforms through the
// aggregator. Paid tiers only; every platform must be linked to the user's
// aggregator profile.
func (s *Service) PublishMulti(ctx context.Context, userID, contentItemID uuid.UUID, platformNames []string) ([]uuid.UUID, error) {
	platforms, err := parsePlatforms(platformNames)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.Tier.Paid() {
		return nil, ErrPaidPlanRequired
	}
	if err := checkPlatformLimit(user.Tier, len(platforms)); err != nil {
		return nil, err
	}

	item, err := s.store.GetContent(ctx, userID, contentItemID)
	if err != nil {
		return nil, err
	}
	if !item.Status.Publishable() {
		return nil, ErrNotPublishable
	}

	key, _, err := s.profiles.Provision(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := s.requireConnected(ctx, key, platforms); err != nil {
		return nil, err
	}

	rows, err := s.store.CreatePublishJobs(ctx, userID, item.ID, platforms, nil)
	if err != nil {
		return nil, err
	}
	if err := s.store.ScheduleContent(ctx, item.ID, nil); err != nil {
		return nil, err
	}

	ids := jobIDs(rows)
	job := jobs.AggregatorPublishJob{
		PublishJobIDs: ids,
		UserID:        userID,
		ContentItemID: item.ID,
		ChargeID:      uuid.NewString(),
	}
	if err := s.enqueue(ctx, item.ID, job, jobs.QueueAggregator); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "aggregator publish queued",
		logger.UserID(userID), logger.ContentItemID(item.ID), slog.Int("platforms", len(ids)))
	return ids, nil
}

// Schedule records pending rows to be published at at. The schedule
// checker dispatches them once they are due.
func (s *Service) Schedule(ctx context.Context, userID, contentItemID uuid.UUID, platformNames []string, at time.Time) ([]uuid.UUID, error) {
	if !at.After(s.now().Add(MinScheduleLead)) {
		return nil, ErrScheduleTooSoon
	}
	platforms, err := parsePlatforms(platformNames)
	if err != nil {
		return nil, err
	}

	item, err := s.store.GetContent(ctx, userID, contentItemID)
	if err != nil {
		return nil, err
	}
	if !item.Status.Publishable() {
		return nil, ErrNotSchedulable
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	switch {
	case user.Tier.Paid():
		if err := checkPlatformLimit(user.Tier, len(platforms)); err != nil {
			return nil, err
		}
		// Connections are checked when a profile exists; a user without
		// one finds out at publish time.
		key, ok, err := s.profiles.Existing(user)
		if err != nil {
			return nil, err
		}
		if ok {
			if err := s.requireConnected(ctx, key, platforms); err != nil {
				return nil, err
			}
		}
	case len(platforms) == 1 && platforms[0] == content.PlatformInstagram:
		if err := s.requireInstagram(ctx, userID); err != nil {
			return nil, err
		}
	default:
		return nil, ErrPaidPlanRequired
	}

	at = at.UTC()
	rows, err := s.store.CreatePublishJobs(ctx, userID, item.ID, platforms, &at)
	if err != nil {
		return nil, err
	}
	if err := s.store.ScheduleContent(ctx, item.ID, &at); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "publish scheduled",
		logger.UserID(userID), logger.ContentItemID(item.ID), slog.Time("at", at))
	return jobIDs(rows), nil
}

// CancelSchedule drops the pending scheduled rows of an item and returns it
// to draft.
func (s *Service) CancelSchedule(ctx context.Context, userID, contentItemID uuid.UUID) error {
	item, err := s.store.GetContent(ctx, userID, contentItemID)
	if err != nil {
		return err
	}
	if item.Status != content.StatusScheduled {
		return ErrNotScheduled
	}

	n, err := s.store.DeleteScheduledJobs(ctx, userID, item.ID)
	if err != nil {
		return err
	}
	if err := s.store.UnscheduleContent(ctx, item.ID); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "schedule cancelled",
		logger.UserID(userID), logger.ContentItemID(item.ID), slog.Int64("deleted", n))
	return nil
}

// Status returns the latest publish rows of an item, newest first.
func (s *Service) Status(ctx context.Context, userID, contentItemID uuid.UUID) ([]content.PublishJob, error) {
	return s.store.LatestPublishJobs(ctx, userID, contentItemID, StatusLimit)
}

// Connections describes the aggregator accounts of a user. URL is the
// account linking page; it is only known right after the profile is created.
type Connections struct {
	URL       string
	Platforms []string
}

// ConnectionURL provisions the user's aggregator profile and lists the
// platforms already linked to it.
func (s *Service) ConnectionURL(ctx context.Context, userID uuid.UUID) (*Connections, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.Tier.Paid() {
		return nil, ErrPaidPlanRequired
	}

	key, ref, err := s.profiles.Provision(ctx, user)
	if err != nil {
		return nil, err
	}
	connected, err := s.accounts.ConnectedPlatforms(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Connections{URL: ref, Platforms: connected}, nil
}

// RequestRender charges a reel render and queues it. The charge is restored
// when the job cannot be queued.
func (s *Service) RequestRender(ctx context.Context, userID, contentItemID uuid.UUID) error {
	item, err := s.store.GetContent(ctx, userID, contentItemID)
	if err != nil {
		return err
	}
	if item.Type != content.TypeReel || !item.Status.Publishable() {
		return ErrNotRenderable
	}
	if len(item.MediaKeys) == 0 {
		return jobs.ErrNoClips
	}

	chargeID := uuid.NewString()
	if err := s.ledger.Charge(ctx, credits.Charge{
		ID:         chargeID,
		UserID:     userID,
		Operation:  credits.CreateReel,
		Multiplier: 1,
	}); err != nil {
		return err
	}

	job := jobs.RenderJob{UserID: userID, ContentItemID: item.ID, ChargeID: chargeID}
	if err := s.enqueuer.Enqueue(ctx, job, jobs.Options(jobs.QueueRender)...); err != nil {
		if rerr := s.ledger.Restore(ctx, chargeID); rerr != nil {
			s.log.ErrorContext(ctx, "restore credits", logger.UserID(userID), logger.Error(rerr))
		}
		return errors.Join(ErrEnqueue, err)
	}

	if err := s.store.SetContentStatus(ctx, item.ID, content.StatusGenerating); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "render queued", logger.UserID(userID), logger.ContentItemID(item.ID))
	return nil
}

// enqueue queues a publish job. A refused job leaves the rows pending and the
// item scheduled; the caller gets ErrEnqueue.
func (s *Service) enqueue(ctx context.Context, contentItemID uuid.UUID, job any, queueName string) error {
	if err := s.enqueuer.Enqueue(ctx, job, jobs.Options(queueName)...); err != nil {
		s.log.ErrorContext(ctx, "enqueue publish job", logger.ContentItemID(contentItemID), logger.Error(err))
		return errors.Join(ErrEnqueue, err)
	}
	return nil
}

func (s *Service) requireInstagram(ctx context.Context, userID uuid.UUID) error {
	_, err := s.store.GetConnection(ctx, userID, content.PlatformInstagram)
	if errors.Is(err, store.ErrConnectionNotFound) {
		return ErrInstagramNotConnected
	}
	return err
}

func (s *Service) requireConnected(ctx context.Context, profileKey string, platforms []content.Platform) error {
	connected, err := s.accounts.ConnectedPlatforms(ctx, profileKey)
	if err != nil {
		return err
	}
	var missing []string
	for _, p := range platforms {
		if !slices.Contains(connected, string(p)) {
			missing = append(missing, string(p))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrPlatformsNotConnected, strings.Join(missing, ", "))
	}
	return nil
}

func parsePlatforms(names []string) ([]content.Platform, error) {
	platforms, err := content.ParsePlatforms(names)
	if err != nil {
		return nil, err
	}
	if len(platforms) == 0 {
		return nil, ErrNoPlatforms
	}
	return platforms, nil
}

func checkPlatformLimit(tier content.Tier, n int) error {
	limit, err := credits.PlatformLimit(tier)
	if err != nil {
		return err
	}
	if n > limit {
		return fmt.Errorf("%w: %d allowed", ErrPlatformLimit, limit)
	}
	return nil
}

func jobIDs(rows []content.PublishJob) []uuid.UUID {
	ids := make([]uuid.UUID, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}
