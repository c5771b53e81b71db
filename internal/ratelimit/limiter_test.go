package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock 提供可手动推进的时间源。
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(clock *fakeClock, windows ...Window) (*Limiter, *MemoryCounter) {
	counter := NewMemoryCounter()
	counter.now = clock.Now
	l := New(counter, windows...)
	l.now = clock.Now
	return l, counter
}

func TestAdmitUnderLimit(t *testing.T) {
	clock := newFakeClock()
	l, _ := newTestLimiter(clock, Window{Kind: "minute", Limit: 10, Duration: time.Minute})

	for i := 0; i < 10; i++ {
		assert.NoError(t, l.Admit(context.Background(), "1.2.3.4"))
	}
}

func TestAdmitRejectsOverLimit(t *testing.T) {
	clock := newFakeClock()
	l, _ := newTestLimiter(clock, Window{Kind: "minute", Limit: 3, Duration: time.Minute})

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Admit(context.Background(), "1.2.3.4"))
	}

	err := l.Admit(context.Background(), "1.2.3.4")
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "minute", limitErr.Window)
	assert.Greater(t, limitErr.RetryAfterSec, int64(0))
	assert.LessOrEqual(t, limitErr.RetryAfterSec, int64(60))
}

func TestAdmitResetsAfterWindow(t *testing.T) {
	clock := newFakeClock()
	l, _ := newTestLimiter(clock, Window{Kind: "minute", Limit: 2, Duration: time.Minute})

	require.NoError(t, l.Admit(context.Background(), "k"))
	require.NoError(t, l.Admit(context.Background(), "k"))
	require.Error(t, l.Admit(context.Background(), "k"))

	clock.Advance(time.Minute)
	assert.NoError(t, l.Admit(context.Background(), "k"))
}

func TestAdmitIsolatesClients(t *testing.T) {
	clock := newFakeClock()
	l, _ := newTestLimiter(clock, Window{Kind: "minute", Limit: 1, Duration: time.Minute})

	require.NoError(t, l.Admit(context.Background(), "client-a"))
	require.Error(t, l.Admit(context.Background(), "client-a"))
	// 其他客户端不受影响
	assert.NoError(t, l.Admit(context.Background(), "client-b"))
}

func TestAdmitDayWindowStillCounts(t *testing.T) {
	clock := newFakeClock()
	l, _ := newTestLimiter(clock,
		Window{Kind: "minute", Limit: 10, Duration: time.Minute},
		Window{Kind: "day", Limit: 15, Duration: 24 * time.Hour},
	)

	// 两轮分钟窗口共 16 次请求：分钟配额分别用掉 8 次，不会触顶，
	// 但天窗口累计到 16 次后超出 15 的上限。
	for i := 0; i < 8; i++ {
		require.NoError(t, l.Admit(context.Background(), "k"))
	}
	clock.Advance(time.Minute)
	for i := 0; i < 7; i++ {
		require.NoError(t, l.Admit(context.Background(), "k"))
	}

	err := l.Admit(context.Background(), "k")
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "day", limitErr.Window)
	assert.LessOrEqual(t, limitErr.RetryAfterSec, int64(86400))
}

type failingCounter struct{}

func (failingCounter) Incr(context.Context, string, time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("计数器不可用")
}

func TestAdmitPropagatesCounterError(t *testing.T) {
	l := New(failingCounter{}, Window{Kind: "minute", Limit: 1, Duration: time.Minute})

	err := l.Admit(context.Background(), "k")
	require.Error(t, err)
	var limitErr *LimitError
	assert.False(t, errors.As(err, &limitErr), "计数器故障不应被当成超限")
}

func TestSweepRemovesExpiredBuckets(t *testing.T) {
	clock := newFakeClock()
	counter := NewMemoryCounter()
	counter.now = clock.Now

	_, _, err := counter.Incr(context.Background(), "minute:a", time.Minute)
	require.NoError(t, err)
	_, _, err = counter.Incr(context.Background(), "day:a", 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 2, counter.size())

	// 分钟桶过期超过宽限期，天桶仍在窗口内
	clock.Advance(2 * time.Minute)
	removed := counter.Sweep(30 * time.Second)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, counter.size())
}

func TestSweepKeepsBucketsWithinGrace(t *testing.T) {
	clock := newFakeClock()
	counter := NewMemoryCounter()
	counter.now = clock.Now

	_, _, err := counter.Incr(context.Background(), "minute:a", time.Minute)
	require.NoError(t, err)

	// 刚过期但还在宽限期内，不应被清理
	clock.Advance(time.Minute + 10*time.Second)
	assert.Zero(t, counter.Sweep(30*time.Second))
	assert.Equal(t, 1, counter.size())
}
