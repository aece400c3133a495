// Package credits meters the monthly credit allowance of each user.
//
// Every debit is recorded as a charge keyed by a caller-chosen ID. Charging
// an ID twice debits once and restoring an ID twice credits once, so queue
// redelivery never moves the balance more than the first delivery did.
package credits

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Niabag/Plublista-sub000/internal/content"
)

var (
	ErrQuotaExceeded     = errors.New("not enough credits, upgrade your plan for more")
	ErrUnknownOperation  = errors.New("unknown credit operation")
	ErrInvalidTier       = errors.New("invalid subscription tier")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidMultiplier = errors.New("credit multiplier must be positive")
	ErrEmptyChargeID     = errors.New("charge id is required")
)

type Operation string

const (
	CreateReel      Operation = "createReel"
	CreateCarousel  Operation = "createCarousel"
	GenerateAIImage Operation = "generateAiImage"
	RegenerateCopy  Operation = "regenerateCopy"
	PublishAyrshare Operation = "publishAyrshare"
)

var costs = map[Operation]int{
	CreateReel:      5,
	CreateCarousel:  1,
	GenerateAIImage: 3,
	RegenerateCopy:  1,
	PublishAyrshare: 1,
}

// Cost returns the credits one unit of op consumes.
func (op Operation) Cost() (int, error) {
	c, ok := costs[op]
	if !ok {
		return 0, ErrUnknownOperation
	}
	return c, nil
}

var monthlyLimits = map[content.Tier]int{
	content.TierFree:     35,
	content.TierStarter:  200,
	content.TierPro:      700,
	content.TierBusiness: 2000,
	content.TierAgency:   7000,
}

var platformLimits = map[content.Tier]int{
	content.TierFree:     1,
	content.TierStarter:  3,
	content.TierPro:      5,
	content.TierBusiness: 10,
	content.TierAgency:   25,
}

func MonthlyLimit(tier content.Tier) (int, error) {
	l, ok := monthlyLimits[tier]
	if !ok {
		return 0, ErrInvalidTier
	}
	return l, nil
}

func PlatformLimit(tier content.Tier) (int, error) {
	l, ok := platformLimits[tier]
	if !ok {
		return 0, ErrInvalidTier
	}
	return l, nil
}

// Charge is one debit request. Multiplier scales the operation cost, e.g. by
// the number of platforms in an aggregator publish.
type Charge struct {
	ID         string
	UserID     uuid.UUID
	Operation  Operation
	Multiplier int
}

// Amount validates the charge and returns its total cost.
func (c Charge) Amount() (int, error) {
	if c.ID == "" {
		return 0, ErrEmptyChargeID
	}
	if c.Multiplier <= 0 {
		return 0, ErrInvalidMultiplier
	}
	cost, err := c.Operation.Cost()
	if err != nil {
		return 0, err
	}
	return cost * c.Multiplier, nil
}

// Ledger debits and restores credits.
type Ledger interface {
	Charge(ctx context.Context, c Charge) error
	Restore(ctx context.Context, chargeID string) error
}

// Period returns the monthly billing window containing t, in UTC.
func Period(t time.Time) (start, end time.Time) {
	t = t.UTC()
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, -1)
	return start, end
}
