package frotixsync

import (
	"context"
	"testing"
	"time"
)

// governorClock drives a RateGovernor with simulated time: every sleep
// advances the clock instead of blocking.
type governorClock struct {
	base  time.Time
	slept time.Duration
}

func newGovernorClock() *governorClock {
	return &governorClock{base: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *governorClock) install(g *RateGovernor) {
	g.now = func() time.Time { return c.base.Add(c.slept) }
	g.sleep = func(ctx context.Context, d time.Duration) error {
		c.slept += d
		return nil
	}
}

func TestGovernorBlocksWhenMinuteWindowExhausted(t *testing.T) {
	g := NewRateGovernor(3, 100, nil)
	clock := newGovernorClock()
	clock.install(g)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := g.Await(ctx, endpointOrders); err != nil {
			t.Fatalf("await %d: %v", i, err)
		}
	}
	sleptBefore := clock.slept
	if sleptBefore > time.Second {
		t.Fatalf("first three permits slept %s, expected only spacing waits", sleptBefore)
	}

	if err := g.Await(ctx, endpointOrders); err != nil {
		t.Fatalf("fourth await: %v", err)
	}
	if clock.slept < 50*time.Second {
		t.Fatalf("fourth permit slept %s, expected to wait out the minute window", clock.slept)
	}
}

func TestGovernorEnforcesSpacingBetweenRequests(t *testing.T) {
	g := NewRateGovernor(100, 1000, nil)
	clock := newGovernorClock()
	clock.install(g)
	ctx := context.Background()

	if err := g.Await(ctx, endpointOrders); err != nil {
		t.Fatalf("first await: %v", err)
	}
	if err := g.Await(ctx, endpointOrders); err != nil {
		t.Fatalf("second await: %v", err)
	}
	if clock.slept < minRequestSpacing {
		t.Fatalf("back-to-back permits slept %s, want at least %s", clock.slept, minRequestSpacing)
	}
}

func TestGovernorSpacingOnlyRatchetsUp(t *testing.T) {
	g := NewRateGovernor(100, 1000, nil)
	clock := newGovernorClock()
	clock.install(g)
	ctx := context.Background()

	g.RecordThrottled(ctx, endpointOrders, 2*time.Second)
	first := g.Spacing()
	if first <= minRequestSpacing {
		t.Fatalf("spacing after throttle = %s, expected wider than %s", first, minRequestSpacing)
	}

	g.RecordThrottled(ctx, endpointOrders, 100*time.Millisecond)
	second := g.Spacing()
	if second < first {
		t.Fatalf("spacing shrank from %s to %s", first, second)
	}

	g.RecordThrottled(ctx, endpointOrders, time.Hour)
	if got := g.Spacing(); got != maxRequestSpacing {
		t.Fatalf("spacing = %s, want capped at %s", got, maxRequestSpacing)
	}
}

func TestGovernorCooldownIsPerEndpoint(t *testing.T) {
	g := NewRateGovernor(100, 1000, nil)
	clock := newGovernorClock()
	clock.install(g)
	ctx := context.Background()

	g.RecordThrottled(ctx, endpointOrders, 30*time.Second)

	if err := g.Await(ctx, endpointOrderDetail); err != nil {
		t.Fatalf("await other endpoint: %v", err)
	}
	if clock.slept >= 30*time.Second {
		t.Fatalf("other endpoint waited out the cooldown (%s)", clock.slept)
	}

	if err := g.Await(ctx, endpointOrders); err != nil {
		t.Fatalf("await throttled endpoint: %v", err)
	}
	if clock.slept < 30*time.Second {
		t.Fatalf("throttled endpoint admitted after %s, want full cooldown", clock.slept)
	}
}
