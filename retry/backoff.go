package retry

import (
	"math/rand"
	"sync"
	"time"
)

// Default delivery loop intervals.
const (
	// DefaultPollInterval is the sleep between store polls while a
	// subscription has no pending work.
	DefaultPollInterval = 1 * time.Second

	// PollOverlap is how far a poll window's lower bound trails the newest
	// pub_time retrieved. A row stamped before a poll's store read but
	// committed after it lands inside the overlap and is picked up by a
	// later poll instead of being stranded behind the window.
	PollOverlap = 5 * time.Second

	// DefaultBackoffMin and DefaultBackoffMax bound the randomized sleep
	// after a failed delivery pass.
	DefaultBackoffMin = 10 * time.Second
	DefaultBackoffMax = 20 * time.Second
)

// Backoff yields randomized delays within [Min, Max] after failed delivery
// passes. The jitter desynchronizes subscribers that all fail against the
// same degraded downstream endpoint, so their retries do not arrive as a
// thundering herd.
//
// Safe for concurrent use.
type Backoff struct {
	Min time.Duration
	Max time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBackoff creates a Backoff over [min, max]. A max at or below min
// degenerates to a fixed min delay.
func NewBackoff(min, max time.Duration) *Backoff {
	return &Backoff{
		Min: min,
		Max: max,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// DefaultBackoff returns the production delivery backoff of [10s, 20s].
func DefaultBackoff() *Backoff {
	return NewBackoff(DefaultBackoffMin, DefaultBackoffMax)
}

// Next returns the delay to apply before the next delivery pass.
func (b *Backoff) Next() time.Duration {
	if b.Max <= b.Min {
		return b.Min
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Min + time.Duration(b.rng.Int63n(int64(b.Max-b.Min)))
}
