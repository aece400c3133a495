package credits

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Niabag/Plublista-sub000/internal/content"
)

// MemoryLedger is an in-process Ledger with the same semantics as
// PostgresLedger. Users must be registered with SetTier before charging.
type MemoryLedger struct {
	mu      sync.Mutex
	tiers   map[uuid.UUID]content.Tier
	used    map[usageKey]int
	charges map[string]*memoryCharge
	now     func() time.Time
}

type usageKey struct {
	user  uuid.UUID
	start time.Time
}

type memoryCharge struct {
	key      usageKey
	amount   int
	restored bool
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		tiers:   make(map[uuid.UUID]content.Tier),
		used:    make(map[usageKey]int),
		charges: make(map[string]*memoryCharge),
		now:     time.Now,
	}
}

func (l *MemoryLedger) SetTier(userID uuid.UUID, tier content.Tier) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tiers[userID] = tier
}

// Used returns the credits consumed by the user in the current period.
func (l *MemoryLedger) Used(userID uuid.UUID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	start, _ := Period(l.now())
	return l.used[usageKey{userID, start}]
}

func (l *MemoryLedger) Charge(_ context.Context, c Charge) error {
	amount, err := c.Amount()
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tier, ok := l.tiers[c.UserID]
	if !ok {
		return ErrUserNotFound
	}
	limit, err := MonthlyLimit(tier)
	if err != nil {
		return err
	}
	if _, charged := l.charges[c.ID]; charged {
		return nil
	}

	start, _ := Period(l.now())
	key := usageKey{c.UserID, start}
	if l.used[key]+amount > limit {
		return ErrQuotaExceeded
	}
	l.used[key] += amount
	l.charges[c.ID] = &memoryCharge{key: key, amount: amount}
	return nil
}

func (l *MemoryLedger) Restore(_ context.Context, chargeID string) error {
	if chargeID == "" {
		return ErrEmptyChargeID
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.charges[chargeID]
	if !ok || ch.restored {
		return nil
	}
	ch.restored = true
	l.used[ch.key] = max(l.used[ch.key]-ch.amount, 0)
	return nil
}
