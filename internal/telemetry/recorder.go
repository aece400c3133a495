package telemetry

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Recorder keeps entries in memory. Tests use it to assert what a pipeline
// reported.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *Recorder) LogCost(_ context.Context, userID uuid.UUID, service Service, endpoint string, costUSD float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{UserID: userID, Service: service, Endpoint: endpoint, CostUSD: costUSD})
}

func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}
