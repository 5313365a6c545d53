package connector

import (
	"context"
	"time"

	"github.com/Konsultn-Engineering/stormweaver/database"
)

// RetryOptions controls connect retries with exponential backoff.
type RetryOptions struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func retryConnect(ctx context.Context, opts RetryOptions,
	connectFn func(context.Context) (database.Driver, error)) (database.Driver, error) {

	var err error
	var drv database.Driver
	delay := opts.BaseDelay
	if delay == 0 {
		delay = time.Second // default
	}

	attempts := opts.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		drv, err = connectFn(ctx)
		if err == nil {
			return drv, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
			delay *= 2
			if delay > opts.MaxDelay && opts.MaxDelay > 0 {
				delay = opts.MaxDelay
			}
		}
	}
	return nil, err
}
