package resilience_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-detailing/internal/resilience"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestBreakerTransitions(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	breaker := resilience.NewBreaker(resilience.BreakerOptions{MinRequests: 2, FailureRatio: 0.5, OpenFor: time.Minute, Now: clock.Now})
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)

	require.False(t, breaker.Allow(ctx), "breaker should open after threshold exceeded")
	require.Equal(t, resilience.Open, breaker.State())

	clock.Advance(time.Minute)
	require.True(t, breaker.Allow(ctx), "breaker should admit a probe after cool off")
	require.False(t, breaker.Allow(ctx), "only one probe while half-open")
	breaker.Report(ctx, true)
	require.Equal(t, resilience.Closed, breaker.State())
	require.True(t, breaker.Allow(ctx))
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	breaker := resilience.NewBreaker(resilience.BreakerOptions{MinRequests: 1, OpenFor: time.Second, Now: clock.Now})
	ctx := context.Background()

	breaker.Report(ctx, false)
	clock.Advance(time.Second)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.State())
	require.False(t, breaker.Allow(ctx))
}

func TestBreakerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	resilience.MustRegisterMetrics("detailing", reg)

	clock := &fakeClock{now: time.Unix(0, 0)}
	breaker := resilience.NewBreaker(resilience.BreakerOptions{MinRequests: 1, OpenFor: time.Second, Target: "invoice-webhook", Now: clock.Now})
	ctx := context.Background()
	breaker.Report(ctx, false)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	require.True(t, names["detailing_breaker_state"])
	require.True(t, names["detailing_breaker_transitions_total"])
	require.Equal(t, 1, testutil.CollectAndCount(reg, "detailing_breaker_transitions_total"))
}

func TestBackoffWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, base, resilience.Backoff(base, 1, 0))
	require.Equal(t, base*4, resilience.Backoff(base, 3, 0))
	require.Equal(t, 100*time.Millisecond, resilience.Backoff(0, 0, 0))

	d := resilience.Backoff(base, 2, 0.2)
	require.GreaterOrEqual(t, d, base*2-base*2/5)
	require.LessOrEqual(t, d, base*2+base*2/5)
}

func TestNilBreakerAllowsEverything(t *testing.T) {
	var breaker *resilience.Breaker
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.True(t, breaker.Allow(ctx))
		breaker.Report(ctx, false)
	}
}
