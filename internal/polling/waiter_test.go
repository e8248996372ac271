package polling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollWaiter_WaitsRoughlyOnePeriod(t *testing.T) {
	waiter := NewPollWaiter(50 * time.Millisecond)

	start := time.Now()
	require.NoError(t, waiter.Wait(context.Background()))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.Less(t, elapsed, 250*time.Millisecond)
}

func TestPollWaiter_SlowTickDoesNotStackDelay(t *testing.T) {
	waiter := NewPollWaiter(30 * time.Millisecond)
	require.NoError(t, waiter.Wait(context.Background()))

	// Simulate a fetch that took longer than the period; the next wait
	// should be jitter only.
	time.Sleep(60 * time.Millisecond)

	start := time.Now()
	require.NoError(t, waiter.Wait(context.Background()))
	assert.Less(t, time.Since(start), 60*time.Millisecond)
}

func TestPollWaiter_CancelledContext(t *testing.T) {
	waiter := NewPollWaiter(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := waiter.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
