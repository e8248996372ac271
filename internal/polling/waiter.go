// Package polling runs the periodic fetchers that keep the game master
// supplied with fresh snapshots.
package polling

import (
	"context"
	"math/rand/v2"
	"time"
)

// maxJitter is added uniformly at random to every wait. Without it all
// pollers synchronize on the shared pool and cause allocation spikes.
const maxJitter = 50 * time.Millisecond

// PollWaiter paces one poller. Each wait targets the configured period
// measured from the previous tick, so slow fetches do not stack delays.
type PollWaiter struct {
	period time.Duration
	last   time.Time
}

// NewPollWaiter creates a waiter whose first tick fires after roughly one
// period.
func NewPollWaiter(period time.Duration) *PollWaiter {
	return &PollWaiter{period: period, last: time.Now()}
}

// Wait sleeps until the next tick or until the context ends.
func (w *PollWaiter) Wait(ctx context.Context) error {
	delay := w.period - time.Since(w.last)
	if delay < 0 {
		delay = 0
	}
	delay += time.Duration(rand.Int64N(int64(maxJitter)))

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	w.last = time.Now()
	return nil
}
