package scraper

import (
	"context"
	"time"
)

// RateLimiter admits at most calls operations in any sliding window of
// length period. Waiters are admitted in arrival order. A nil limiter
// admits everything.
type RateLimiter struct {
	calls  int
	period time.Duration

	// turn is held by the single waiter allowed to inspect the window.
	// Blocked senders on a channel are served first-in first-out.
	turn chan struct{}

	stamps []time.Time // ring of the last admissions, oldest at next
	next   int

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewRateLimiter returns a limiter for calls per period. It returns nil
// when either bound is not positive.
func NewRateLimiter(calls int, period time.Duration) *RateLimiter {
	if calls <= 0 || period <= 0 {
		return nil
	}
	return &RateLimiter{
		calls:  calls,
		period: period,
		turn:   make(chan struct{}, 1),
		stamps: make([]time.Time, 0, calls),
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Wait blocks until the window admits another call or ctx is done.
func (l *RateLimiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}

	select {
	case l.turn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.turn }()

	for {
		now := l.now()
		if len(l.stamps) < l.calls {
			l.stamps = append(l.stamps, now)
			return nil
		}
		wait := l.stamps[l.next].Add(l.period).Sub(now)
		if wait <= 0 {
			l.stamps[l.next] = now
			l.next = (l.next + 1) % l.calls
			return nil
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
