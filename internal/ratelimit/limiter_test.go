package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/ngxweb/internal/clock"
)

var epoch = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestLimiter_Allow(t *testing.T) {
	l := NewLimiter(3, time.Minute, clock.NewMockClock(epoch))

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "event %d", i+1)
	}
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "keys are independent")
}

func TestLimiter_Refill(t *testing.T) {
	clk := clock.NewMockClock(epoch)
	l := NewLimiter(2, time.Minute, clk)

	require.True(t, l.Allow("k"))
	require.True(t, l.Allow("k"))
	require.False(t, l.Allow("k"))

	clk.Advance(59 * time.Second)
	assert.False(t, l.Allow("k"))

	clk.Advance(time.Second)
	assert.True(t, l.Allow("k"))
}

func TestLimiter_AllowN(t *testing.T) {
	l := NewLimiter(5, time.Minute, clock.NewMockClock(epoch))

	assert.True(t, l.AllowN("k", 3))
	assert.False(t, l.AllowN("k", 3), "only 2 left")
	assert.True(t, l.AllowN("k", 2))
	assert.False(t, l.Allow("k"))
}

func TestLimiter_ExhaustedAndRetryAfter(t *testing.T) {
	clk := clock.NewMockClock(epoch)
	l := NewLimiter(1, time.Minute, clk)

	assert.False(t, l.Exhausted("k"), "unknown key")
	assert.Zero(t, l.RetryAfter("k"))

	require.True(t, l.Allow("k"))
	assert.True(t, l.Exhausted("k"))

	clk.Advance(20 * time.Second)
	assert.Equal(t, 40*time.Second, l.RetryAfter("k"))

	clk.Advance(40 * time.Second)
	assert.False(t, l.Exhausted("k"))
	assert.Zero(t, l.RetryAfter("k"))
}

func TestLimiter_Reset(t *testing.T) {
	l := NewLimiter(1, time.Minute, clock.NewMockClock(epoch))

	require.True(t, l.Allow("k"))
	require.False(t, l.Allow("k"))
	l.Reset("k")
	assert.True(t, l.Allow("k"))
}

func TestLimiter_CleanupExpired(t *testing.T) {
	clk := clock.NewMockClock(epoch)
	l := NewLimiter(1, time.Minute, clk)

	l.Allow("old")
	clk.Advance(10 * time.Minute)
	l.Allow("new")

	assert.Equal(t, 1, l.CleanupExpired(5*time.Minute))
	assert.Equal(t, 1, l.Len())
	assert.False(t, l.Exhausted("old"))
	assert.True(t, l.Exhausted("new"))
}

func TestLimiter_StartCleanup(t *testing.T) {
	l := NewLimiter(1, time.Minute, clock.NewMockClock(epoch.Add(-time.Hour)))
	l.Allow("k")
	l.clock = clock.NewMockClock(epoch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.StartCleanup(ctx, 10*time.Millisecond, time.Minute)

	assert.Eventually(t, func() bool { return l.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
