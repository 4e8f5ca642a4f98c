package ratelimit

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// fakeClock drives the limiter deterministically: sleeps advance the clock
// instead of blocking.
type fakeClock struct {
	now    time.Time
	slept  []time.Duration
	asleep time.Duration
}

func newFakeLimiter() (*Limiter, *fakeClock) {
	clk := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLimiter(zerolog.Nop())
	l.now = func() time.Time { return clk.now }
	l.sleep = func(d time.Duration) {
		clk.slept = append(clk.slept, d)
		clk.asleep += d
		clk.now = clk.now.Add(d)
	}
	return l, clk
}

func TestWait_FirstRequestDoesNotSleep(t *testing.T) {
	l, clk := newFakeLimiter()

	l.Wait("src", 2*time.Second)
	assert.Empty(t, clk.slept)
}

func TestWait_ThrottlesWithinInterval(t *testing.T) {
	l, clk := newFakeLimiter()

	l.Wait("src", 2*time.Second)
	clk.now = clk.now.Add(500 * time.Millisecond)
	l.Wait("src", 2*time.Second)

	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, clk.slept)
}

func TestWait_NoThrottleAfterInterval(t *testing.T) {
	l, clk := newFakeLimiter()

	l.Wait("src", 2*time.Second)
	clk.now = clk.now.Add(3 * time.Second)
	l.Wait("src", 2*time.Second)

	assert.Empty(t, clk.slept)
}

func TestWait_SourcesAreIndependent(t *testing.T) {
	l, clk := newFakeLimiter()

	l.Wait("a", 2*time.Second)
	l.Wait("b", 2*time.Second)

	assert.Empty(t, clk.slept)
}

func TestRecordError_ExponentialBackoff(t *testing.T) {
	l, clk := newFakeLimiter()

	base := 5 * time.Second
	l.Wait("src", 0)

	l.RecordError("src", base)
	assert.Equal(t, 1, l.ConsecutiveErrors("src"))
	l.Wait("src", 0)
	assert.Equal(t, base, clk.slept[len(clk.slept)-1])

	l.RecordError("src", base)
	l.Wait("src", 0)
	assert.Equal(t, 2*base, clk.slept[len(clk.slept)-1])

	l.RecordError("src", base)
	l.Wait("src", 0)
	assert.Equal(t, 4*base, clk.slept[len(clk.slept)-1])
}

func TestRecordError_CappedBackoff(t *testing.T) {
	l, clk := newFakeLimiter()

	for i := 0; i < 12; i++ {
		l.RecordError("src", 5*time.Second)
	}
	l.Wait("src", 0)

	assert.Equal(t, DefaultBackoffCap, clk.slept[len(clk.slept)-1])
}

func TestRecordSuccess_ResetsErrorCount(t *testing.T) {
	l, clk := newFakeLimiter()

	l.RecordError("src", 5*time.Second)
	l.RecordError("src", 5*time.Second)
	l.RecordSuccess("src")
	assert.Equal(t, 0, l.ConsecutiveErrors("src"))

	// Next error starts from the base again.
	clk.now = clk.now.Add(time.Hour)
	l.RecordError("src", 5*time.Second)
	l.Wait("src", 0)
	assert.Equal(t, 5*time.Second, clk.slept[len(clk.slept)-1])
}
