// Package telemetry records the dollar cost of external API calls.
//
// Logging is fire-and-forget: a failed insert is logged and never reaches
// the caller.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Service string

const (
	ServiceFal       Service = "fal"
	ServiceAyrshare  Service = "ayrshare"
	ServiceStripe    Service = "stripe"
	ServiceClaude    Service = "claude"
	ServiceInstagram Service = "instagram"
	ServiceGemini    Service = "gemini"
)

// CostLogger is what pipeline components depend on.
type CostLogger interface {
	LogCost(ctx context.Context, userID uuid.UUID, service Service, endpoint string, costUSD float64)
}

// Nop discards every entry.
type Nop struct{}

func (Nop) LogCost(context.Context, uuid.UUID, Service, string, float64) {}

// Postgres writes entries to api_cost_logs.
type Postgres struct {
	pool    *pgxpool.Pool
	log     *slog.Logger
	timeout time.Duration
}

func NewPostgres(pool *pgxpool.Pool, log *slog.Logger) *Postgres {
	if log == nil {
		log = slog.Default()
	}
	return &Postgres{pool: pool, log: log, timeout: 5 * time.Second}
}

// LogCost stores the cost rounded to four decimals. It detaches from the
// caller's cancellation so a finished job still gets its entry.
func (p *Postgres) LogCost(ctx context.Context, userID uuid.UUID, service Service, endpoint string, costUSD float64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	_, err := p.pool.Exec(ctx,
		`INSERT INTO api_cost_logs (user_id, service, endpoint, cost_usd) VALUES ($1, $2, $3, $4::numeric)`,
		userID, string(service), endpoint, FormatCost(costUSD),
	)
	if err != nil {
		p.log.WarnContext(ctx, "failed to log api cost",
			slog.String("service", string(service)),
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
	}
}

// FormatCost renders a cost with four decimals, matching numeric(10,4).
func FormatCost(costUSD float64) string {
	if math.IsNaN(costUSD) || math.IsInf(costUSD, 0) || costUSD < 0 {
		costUSD = 0
	}
	return fmt.Sprintf("%.4f", costUSD)
}

// Entry is a cost recorded by Recorder.
type Entry struct {
	UserID   uuid.UUID
	Service  Service
	Endpoint string
	CostUSD  float64
}
