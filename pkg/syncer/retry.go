package syncer

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy is exponential backoff with optional jitter. MaxAttempts of 0 retries forever and an
// AttemptTimeout of 0 lets a single attempt run as long as ctx allows.
// Sleep and Rand can be swapped out so tests do not wait on the wall clock.
type RetryPolicy struct {
	Interval       time.Duration
	MaxInterval    time.Duration
	Multiplier     float64
	Jitter         float64
	MaxAttempts    int
	AttemptTimeout time.Duration

	Sleep func(ctx context.Context, d time.Duration) error
	Rand  func() float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Interval:    5 * time.Second,
		MaxInterval: time.Minute,
		Multiplier:  2,
		Jitter:      0.1,

		AttemptTimeout: time.Minute,
	}
}

// Delay is how long to wait after the given (1-based) failed attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	d := float64(p.Interval) * math.Pow(multiplier, float64(attempt-1))
	if p.MaxInterval > 0 && d > float64(p.MaxInterval) {
		d = float64(p.MaxInterval)
	}

	if p.Jitter > 0 {
		random := rand.Float64
		if p.Rand != nil {
			random = p.Rand
		}
		d *= 1 + p.Jitter*(2*random()-1)
	}

	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func withAttemptTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
