package resilience

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottle_PacesCallsAcrossGoroutines(t *testing.T) {
	th := NewThrottle(20 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, th.Wait(ctx))
		}()
	}
	wg.Wait()

	// The first token is immediate, the remaining three wait one interval each.
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestThrottle_ZeroDelayDoesNotPace(t *testing.T) {
	th := NewThrottle(0)
	start := time.Now()
	for range 100 {
		require.NoError(t, th.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestThrottle_PauseBlocksEveryCaller(t *testing.T) {
	th := NewThrottle(0)
	th.Pause(60 * time.Millisecond)
	th.Pause(10 * time.Millisecond) // shorter pause does not shorten the deadline

	start := time.Now()
	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, th.Wait(context.Background()))
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 2, th.Pauses())
}

func TestThrottle_WaitHonoursCancellation(t *testing.T) {
	th := NewThrottle(0)
	th.Pause(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := th.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
