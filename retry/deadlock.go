// Package retry provides the retry policies of the delivery engine: the
// indefinite short-delay retry used around store confirmations that hit
// transient deadlocks, and the randomized backoff applied after a failed
// delivery pass.
package retry

import (
	"context"
	"time"
)

// Logger is the minimal logging surface the policies need. The root broker
// Logger satisfies it.
type Logger interface {
	Warnf(format string, args ...interface{})
}

// DeadlockPolicy retries an operation for as long as it keeps failing with a
// transient, deadlock-classified error. Any other error propagates
// immediately. There is no attempt cap: a confirmation must eventually land,
// the store resolves the deadlock by killing one victim transaction and the
// retried statement then succeeds.
type DeadlockPolicy struct {
	// Delay between attempts. Deliberately short: deadlock victims can
	// retry almost immediately.
	Delay time.Duration

	// LogEvery controls how often a warning is emitted while retrying.
	LogEvery int

	// IsTransient classifies an error as a retryable deadlock. Driver
	// specific classifiers live next to the store adapters.
	IsTransient func(error) bool
}

// DefaultDeadlockPolicy returns the production policy: 5ms delay, warning
// every 50th attempt.
func DefaultDeadlockPolicy(isTransient func(error) bool) DeadlockPolicy {
	return DeadlockPolicy{
		Delay:       5 * time.Millisecond,
		LogEvery:    50,
		IsTransient: isTransient,
	}
}

// Run invokes op until it returns nil or a non-transient error. Context
// cancellation aborts the wait between attempts and returns ctx.Err().
func (p DeadlockPolicy) Run(ctx context.Context, logger Logger, op func(ctx context.Context) error) error {
	attempt := 0
	for {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if p.IsTransient == nil || !p.IsTransient(err) {
			return err
		}

		attempt++
		if p.LogEvery > 0 && attempt%p.LogEvery == 0 && logger != nil {
			logger.Warnf("Store deadlock, still retrying (attempt=%d): %v", attempt, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay):
		}
	}
}
