// Package jobs holds the queue handlers of the publish and render pipelines:
// direct Instagram publishing, aggregator publishing, montage rendering, the
// schedule checker and the source media sweeper.
//
// Handlers are at-least-once. Store updates never move a published or failed
// row, a redelivered task skips rows that already settled, and credit charges
// are keyed by charge id, so a redelivered task does not double-count.
package jobs

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Niabag/Plublista-sub000/internal/ai"
	"github.com/Niabag/Plublista-sub000/internal/ayrshare"
	"github.com/Niabag/Plublista-sub000/internal/content"
	"github.com/Niabag/Plublista-sub000/internal/credits"
	"github.com/Niabag/Plublista-sub000/internal/instagram"
	"github.com/Niabag/Plublista-sub000/internal/render"
	"github.com/Niabag/Plublista-sub000/internal/telemetry"
	"github.com/Niabag/Plublista-sub000/pkg/queue"
)

// Queue names. One queue per job family.
const (
	QueueRender     = "render"
	QueuePublish    = "publish"
	QueueAggregator = "aggregator"
	QueueCleanup    = "cleanup"
	QueueSchedule   = "schedule"
)

// MaxAttempts is the delivery budget of every one-time job.
const MaxAttempts int8 = 3

// Names of the periodic tasks.
const (
	TaskCheckSchedules = "schedule.check"
	TaskSweepSources   = "cleanup.sources"
)

// RenderJob asks for a montage of a reel's source clips. ChargeID names the
// createReel debit taken at submission.
type RenderJob struct {
	UserID        uuid.UUID `json:"userId"`
	ContentItemID uuid.UUID `json:"contentItemId"`
	ChargeID      string    `json:"chargeId"`
}

// DirectPublishJob publishes one row straight to Instagram.
type DirectPublishJob struct {
	PublishJobID  uuid.UUID `json:"publishJobId"`
	UserID        uuid.UUID `json:"userId"`
	ContentItemID uuid.UUID `json:"contentItemId"`
}

// AggregatorPublishJob publishes a group of rows, one per platform, in a
// single aggregator call. ChargeID names the publishAyrshare debit.
type AggregatorPublishJob struct {
	PublishJobIDs []uuid.UUID `json:"publishJobIds"`
	UserID        uuid.UUID   `json:"userId"`
	ContentItemID uuid.UUID   `json:"contentItemId"`
	ChargeID      string      `json:"chargeId"`
}

// Store is the persistence the handlers need.
type Store interface {
	GetContent(ctx context.Context, userID, id uuid.UUID) (*content.Item, error)
	SetContentStatus(ctx context.Context, id uuid.UUID, status content.Status) error
	UpdateMediaKeys(ctx context.Context, id uuid.UUID, keys []string) error
	SaveRender(ctx context.Context, id uuid.UUID, r content.RenderResult) error
	ListStaleSources(ctx context.Context, before time.Time) ([]content.Item, error)

	GetPublishJobs(ctx context.Context, ids []uuid.UUID) ([]content.PublishJob, error)
	MarkPublishing(ctx context.Context, ids ...uuid.UUID) error
	MarkPublished(ctx context.Context, id uuid.UUID, url *string, at time.Time) error
	RecordFailure(ctx context.Context, ids []uuid.UUID, f content.JobFailure) error
	ListDueJobs(ctx context.Context, now time.Time) ([]content.PublishJob, error)

	GetUser(ctx context.Context, id uuid.UUID) (*content.User, error)
	GetConnection(ctx context.Context, userID uuid.UUID, platform content.Platform) (*content.Connection, error)
}

// Objects is the media bucket.
type Objects interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	DownloadTo(ctx context.Context, key string, w io.Writer) (int64, error)
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Instagram is the Graph API container protocol.
type Instagram interface {
	CreateContainer(ctx context.Context, token, igUserID string, p instagram.ContainerParams) (string, error)
	WaitUntilReady(ctx context.Context, token, containerID string) error
	Publish(ctx context.Context, token, igUserID, containerID string) (string, error)
	Permalink(ctx context.Context, token, mediaID string) (string, error)
}

// Aggregator publishes one post to several platforms of a profile.
type Aggregator interface {
	Publish(ctx context.Context, profileKey string, req ayrshare.PostRequest) (*ayrshare.PostResponse, error)
}

// Profiles resolves the aggregator profile key of a user, creating the
// profile when needed.
type Profiles interface {
	Key(ctx context.Context, user *content.User) (string, error)
}

// Media converts media the platforms reject and watermarks free-tier images.
type Media interface {
	ConvertForPlatform(ctx context.Context, userID, contentItemID uuid.UUID, keys []string) (map[string]string, error)
	WatermarkAll(ctx context.Context, keys []string, userID, contentItemID uuid.UUID) ([]string, error)
}

// Decrypter opens platform tokens stored encrypted.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// Enqueuer queues follow-up jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) error
}

// Analyzer picks the best moments of the clips and writes the copy.
type Analyzer interface {
	AnalyzeClips(ctx context.Context, userID uuid.UUID, clips []ai.Clip, style string, targetSec int) (*ai.Narrative, error)
	GenerateCopy(ctx context.Context, userID uuid.UUID, req ai.CopyRequest) (*ai.Copy, error)
}

// Music generates and downloads the background track.
type Music interface {
	GenerateMusic(ctx context.Context, userID uuid.UUID, mood string, durationSec int) (string, error)
	Fetch(ctx context.Context, url string, w io.Writer) error
}

// Renderer owns the scratch directory and the ffmpeg calls of a render.
type Renderer interface {
	Workspace(contentItemID string) (string, func(), error)
	Probe(ctx context.Context, path string) (float64, error)
	DetectSilence(ctx context.Context, path string) ([]render.Silence, error)
	Compose(ctx context.Context, tl render.Timeline, dir string) (string, error)
}

// Deps are the collaborators of the handlers. Render collaborators may be
// nil on processes that do not run the render queue.
type Deps struct {
	Store      Store
	Ledger     credits.Ledger
	Objects    Objects
	Instagram  Instagram
	Aggregator Aggregator
	Profiles   Profiles
	Media      Media
	Tokens     Decrypter
	Enqueuer   Enqueuer
	Costs      telemetry.CostLogger

	Analyzer Analyzer
	Music    Music
	Renderer Renderer
}

// Processor implements every handler and failure hook of the pipeline.
type Processor struct {
	Deps
	log *slog.Logger
	now func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.log = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// New builds a Processor. A nil Costs logger discards cost entries.
func New(d Deps, opts ...Option) *Processor {
	if d.Costs == nil {
		d.Costs = telemetry.Nop{}
	}
	p := &Processor{Deps: d, log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// QueueSpec is one worker pool: the queue it consumes, how many tasks run at
// once and the handlers it dispatches to.
type QueueSpec struct {
	Name        string
	Concurrency int
	Handlers    []queue.Handler
}

// Queues lists the worker pools of the pipeline.
func (p *Processor) Queues() []QueueSpec {
	return []QueueSpec{
		{Name: QueueRender, Concurrency: 2, Handlers: []queue.Handler{
			queue.NewTaskHandler(p.Render, queue.WithFailureFunc(p.RenderFailed)),
		}},
		{Name: QueuePublish, Concurrency: 2, Handlers: []queue.Handler{
			queue.NewTaskHandler(p.PublishDirect, queue.WithFailureFunc(p.DirectFailed)),
		}},
		{Name: QueueAggregator, Concurrency: 2, Handlers: []queue.Handler{
			queue.NewTaskHandler(p.PublishAggregated, queue.WithFailureFunc(p.AggregatedFailed)),
		}},
		{Name: QueueCleanup, Concurrency: 1, Handlers: []queue.Handler{
			queue.NewPeriodicTaskHandler(TaskSweepSources, p.SweepSources),
		}},
		{Name: QueueSchedule, Concurrency: 1, Handlers: []queue.Handler{
			queue.NewPeriodicTaskHandler(TaskCheckSchedules, p.CheckSchedules),
		}},
	}
}

// Schedule registers the periodic tasks.
func Schedule(s *queue.Scheduler) error {
	if err := s.AddTask(TaskCheckSchedules, queue.Every(time.Minute),
		queue.WithTaskQueue(QueueSchedule),
		queue.WithTaskPriority(queue.PriorityHigh),
	); err != nil {
		return err
	}
	return s.AddTask(TaskSweepSources, queue.MustParseSchedule("@every 6h"),
		queue.WithTaskQueue(QueueCleanup),
		queue.WithTaskPriority(queue.PriorityLow),
	)
}

// Options returns the enqueue options for a job family.
func Options(queueName string) []queue.EnqueueOption {
	return []queue.EnqueueOption{
		queue.WithQueue(queueName),
		queue.WithMaxAttempts(MaxAttempts),
	}
}
