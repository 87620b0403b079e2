package frotixsync

import (
	"context"
	"sync"
	"time"
)

const (
	minRequestSpacing = 100 * time.Millisecond
	maxRequestSpacing = 5 * time.Second
)

// GovernorRecorder receives observational rate-limit updates. The governor
// never reads these back; its decisions come from in-process counters only.
type GovernorRecorder interface {
	TouchRateLimit(ctx context.Context, endpoint string, limited bool, resetAt *time.Time) error
}

// RateGovernor serializes outbound requests against the remote API budget.
// It tracks rolling per-minute and per-hour windows, enforces adaptive
// spacing between consecutive requests, and honors server-imposed cooldowns.
type RateGovernor struct {
	mu sync.Mutex

	perMinute int
	perHour   int

	minuteStamps []time.Time
	hourStamps   []time.Time

	lastRequest time.Time
	spacing     time.Duration

	cooldowns map[string]time.Time

	recorder GovernorRecorder

	// injectable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRateGovernor(perMinute, perHour int, recorder GovernorRecorder) *RateGovernor {
	if perMinute <= 0 {
		perMinute = 30
	}
	if perHour <= 0 {
		perHour = perMinute * 40
	}
	return &RateGovernor{
		perMinute: perMinute,
		perHour:   perHour,
		spacing:   minRequestSpacing,
		cooldowns: map[string]time.Time{},
		recorder:  recorder,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Await blocks until a request to endpoint may be issued, then records the
// permit. The wait condition is re-evaluated after every sleep because a
// cooldown may land while we are waiting out the spacing interval.
func (g *RateGovernor) Await(ctx context.Context, endpoint string) error {
	for {
		g.mu.Lock()
		now := g.now()
		wait := g.nextDelayLocked(now, endpoint)
		if wait <= 0 {
			g.admitLocked(now)
			g.mu.Unlock()
			return nil
		}
		g.mu.Unlock()

		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (g *RateGovernor) nextDelayLocked(now time.Time, endpoint string) time.Duration {
	var wait time.Duration

	if until, ok := g.cooldowns[endpoint]; ok {
		if d := until.Sub(now); d > 0 {
			wait = d
		} else {
			delete(g.cooldowns, endpoint)
		}
	}

	g.minuteStamps = pruneStamps(g.minuteStamps, now.Add(-time.Minute))
	g.hourStamps = pruneStamps(g.hourStamps, now.Add(-time.Hour))

	if len(g.minuteStamps) >= g.perMinute {
		if d := g.minuteStamps[0].Add(time.Minute).Sub(now); d > wait {
			wait = d
		}
	}
	if len(g.hourStamps) >= g.perHour {
		if d := g.hourStamps[0].Add(time.Hour).Sub(now); d > wait {
			wait = d
		}
	}

	if !g.lastRequest.IsZero() {
		if d := g.lastRequest.Add(g.spacing).Sub(now); d > wait {
			wait = d
		}
	}

	return wait
}

func (g *RateGovernor) admitLocked(now time.Time) {
	g.minuteStamps = append(g.minuteStamps, now)
	g.hourStamps = append(g.hourStamps, now)
	g.lastRequest = now
}

// RecordThrottled registers a server-imposed cooldown for endpoint and
// widens the spacing interval. Spacing only ever ratchets up within a run.
func (g *RateGovernor) RecordThrottled(ctx context.Context, endpoint string, retryAfter time.Duration) {
	g.mu.Lock()
	now := g.now()
	resetAt := now.Add(retryAfter)
	g.cooldowns[endpoint] = resetAt

	if widened := g.spacing + retryAfter/4; widened > g.spacing {
		g.spacing = widened
	}
	if g.spacing > maxRequestSpacing {
		g.spacing = maxRequestSpacing
	}
	recorder := g.recorder
	g.mu.Unlock()

	if recorder != nil {
		// best effort, the persisted row is observational
		_ = recorder.TouchRateLimit(ctx, endpoint, true, &resetAt)
	}
}

// RecordSuccess reports a completed request so the persisted window counter
// stays roughly current for operators.
func (g *RateGovernor) RecordSuccess(ctx context.Context, endpoint string) {
	g.mu.Lock()
	recorder := g.recorder
	g.mu.Unlock()

	if recorder != nil {
		_ = recorder.TouchRateLimit(ctx, endpoint, false, nil)
	}
}

func (g *RateGovernor) Spacing() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.spacing
}

func pruneStamps(stamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(stamps) && !stamps[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[idx:]...)
}
