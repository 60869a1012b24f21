package storage

import (
	"context"
	"time"
)

// RetryPolicy bounds how often a sink write is retried.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// OnRetry, if set, observes each failed attempt before the wait.
	OnRetry func(attempt int, err error)
}

// Do calls fn until it succeeds, doubling the delay after each failure up to
// MaxDelay. It gives up after MaxRetries retries or when ctx is done.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	delay := p.BaseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= retries {
			return err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}
