package harness

import (
	"sync"

	"github.com/google/uuid"
)

// RunIDGenerator mints identifiers for persisted runs.
type RunIDGenerator interface {
	NewRunID() string
}

// UUIDGenerator mints time-sortable UUIDv7 run IDs, so run rows list in
// creation order.
//
// Thread-safety: stateless, safe for concurrent use.
type UUIDGenerator struct{}

// NewRunID returns a fresh UUIDv7 as a hyphenated string. Panics if UUID
// generation fails, which does not happen in practice.
func (UUIDGenerator) NewRunID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined run IDs in order. Tests that
// persist runs use it to keep store contents deterministic.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// NewRunID returns the next predetermined ID. Panics when all IDs have
// been consumed, to fail fast on test misconfiguration.
func (g *FixedGenerator) NewRunID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("harness: FixedGenerator run IDs exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
