package web

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Refill(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(2, time.Minute)
	defer rl.stop()
	rl.now = func() time.Time { return now }

	ok, _ := rl.allow("1.2.3.4")
	assert.True(t, ok)
	ok, _ = rl.allow("1.2.3.4")
	assert.True(t, ok)

	ok, wait := rl.allow("1.2.3.4")
	assert.False(t, ok)
	assert.InDelta(t, float64(30*time.Second), float64(wait), float64(time.Millisecond))

	ok, _ = rl.allow("5.6.7.8")
	assert.True(t, ok, "budgets are per client")

	now = now.Add(31 * time.Second)
	ok, _ = rl.allow("1.2.3.4")
	assert.True(t, ok, "one token refills every half minute")
	ok, _ = rl.allow("1.2.3.4")
	assert.False(t, ok)
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)
	rl.stop()
	rl.stop()
}
