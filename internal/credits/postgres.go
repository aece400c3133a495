package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Niabag/Plublista-sub000/internal/content"
)

// PostgresLedger keeps monthly usage in credit_usage and one row per charge
// in credit_charges.
type PostgresLedger struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool, now: time.Now}
}

const (
	insertChargeQuery = `
		INSERT INTO credit_charges (charge_id, user_id, operation, amount, period_start)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (charge_id) DO NOTHING`

	incrementUsageQuery = `
		UPDATE credit_usage
		SET credits_used = credits_used + $3, updated_at = now()
		WHERE user_id = $1 AND period_start = $2 AND credits_used + $3 <= credits_limit`

	insertUsageQuery = `
		INSERT INTO credit_usage (user_id, period_start, period_end, credits_used, credits_limit, platforms_limit)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, period_start) DO NOTHING`

	markRestoredQuery = `
		UPDATE credit_charges
		SET restored_at = now()
		WHERE charge_id = $1 AND restored_at IS NULL
		RETURNING user_id, amount, period_start`

	decrementUsageQuery = `
		UPDATE credit_usage
		SET credits_used = GREATEST(credits_used - $3, 0), updated_at = now()
		WHERE user_id = $1 AND period_start = $2`
)

// Charge debits the user inside one transaction. The guarded update keeps
// usage within the limit under concurrent charges; a missing usage row for
// the period is created on first use.
func (l *PostgresLedger) Charge(ctx context.Context, c Charge) error {
	amount, err := c.Amount()
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, l.pool, func(tx pgx.Tx) error {
		var rawTier string
		err := tx.QueryRow(ctx, `SELECT subscription_tier FROM users WHERE id = $1`, c.UserID).Scan(&rawTier)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("load tier: %w", err)
		}
		tier := content.Tier(rawTier)
		limit, err := MonthlyLimit(tier)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidTier, rawTier)
		}
		platforms, _ := PlatformLimit(tier)
		start, end := Period(l.now())

		tag, err := tx.Exec(ctx, insertChargeQuery, c.ID, c.UserID, string(c.Operation), amount, start)
		if err != nil {
			return fmt.Errorf("record charge: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// already charged
			return nil
		}

		tag, err = tx.Exec(ctx, incrementUsageQuery, c.UserID, start, amount)
		if err != nil {
			return fmt.Errorf("increment usage: %w", err)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}

		if amount <= limit {
			tag, err = tx.Exec(ctx, insertUsageQuery, c.UserID, start, end, amount, limit, platforms)
			if err != nil {
				return fmt.Errorf("create usage: %w", err)
			}
			if tag.RowsAffected() > 0 {
				return nil
			}
		}

		// a concurrent charge created the row first
		tag, err = tx.Exec(ctx, incrementUsageQuery, c.UserID, start, amount)
		if err != nil {
			return fmt.Errorf("increment usage: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrQuotaExceeded
		}
		return nil
	})
}

// Restore credits a charge back to the period it was taken from. Unknown and
// already restored charges are ignored.
func (l *PostgresLedger) Restore(ctx context.Context, chargeID string) error {
	if chargeID == "" {
		return ErrEmptyChargeID
	}

	return pgx.BeginFunc(ctx, l.pool, func(tx pgx.Tx) error {
		var (
			userID      uuid.UUID
			amount      int
			periodStart time.Time
		)
		err := tx.QueryRow(ctx, markRestoredQuery, chargeID).Scan(&userID, &amount, &periodStart)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("mark charge restored: %w", err)
		}
		if _, err := tx.Exec(ctx, decrementUsageQuery, userID, periodStart, amount); err != nil {
			return fmt.Errorf("decrement usage: %w", err)
		}
		return nil
	})
}
